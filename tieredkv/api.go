package tieredkv

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"encore.dev/rlog"

	"encore.app/pkg/envelope"
	"encore.app/pkg/kv"
	"encore.app/pkg/middleware"
)

// Request envelope headers (spec.md §4.5), carried over verbatim from
// original_source's sig_verify_middleware (src/api/utils.rs).
const (
	headerPublicKey = "public_key"
	headerAddress   = "address"
	headerSignature = "signature"
)

// writeBody is the JSON shape of POST /set_data, field names carried
// over from original_source's SetRequestData (src/interfaces.rs):
// address, data_id, data.
type writeBody struct {
	Address string          `json:"address"`
	DataID  string          `json:"data_id"`
	Data    json.RawMessage `json:"data"`
}

// envelopeFromHeaders extracts and verifies the (public_key, address,
// signature) triple from request headers, the pre-filter step spec.md
// §4.5 requires before any coordinator call.
func envelopeFromHeaders(r *http.Request) (address string, err error) {
	pubKey := r.Header.Get(headerPublicKey)
	addr := r.Header.Get(headerAddress)
	sig := r.Header.Get(headerSignature)

	if pubKey == "" || addr == "" || sig == "" {
		return "", envelope.ErrInvalidSignature
	}
	if err := envelope.Verify(pubKey, addr, sig); err != nil {
		return "", err
	}

	decoded, err := decodeHexAddress(addr)
	if err != nil {
		return "", envelope.ErrInvalidSignature
	}
	return decoded, nil
}

func writeJSON(w http.ResponseWriter, status int, resp envelope.Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(resp)
}

func writeError(w http.ResponseWriter, route string, kind envelope.ErrorKind) {
	writeJSON(w, kind.HTTPStatus(), envelope.Err(route, kind))
}

// kindToEnvelope maps a coordinator ErrorKind to the transport-facing
// envelope.ErrorKind. tieredkv stays ignorant of HTTP; this is the one
// place the two enums meet.
func kindToEnvelope(kind ErrorKind) envelope.ErrorKind {
	switch kind {
	case KindNotPresent:
		return envelope.KindNotPresent
	case KindNotFound:
		return envelope.KindNotFound
	case KindCacheWriteFailed:
		return envelope.KindCacheWriteFailed
	case KindCacheDeleteFailed:
		return envelope.KindCacheDeleteFailed
	case KindDurableWriteFailed:
		return envelope.KindDurableWriteFailed
	case KindDurableDeleteFailed:
		return envelope.KindDurableDeleteFailed
	case KindBackendUnavailable:
		return envelope.KindBackendUnavailable
	case KindFilterFull:
		return envelope.KindFilterFull
	default:
		return envelope.KindGeneric
	}
}

func (s *Service) writeTierError(w http.ResponseWriter, route string, err error) {
	var terr *Error
	if errors.As(err, &terr) {
		writeError(w, route, kindToEnvelope(terr.Kind))
		return
	}
	writeError(w, route, envelope.KindGeneric)
}

// GetData serves GET /get_data and GET /get_data/:id (spec.md §6's
// read_all and read_one), matching original_source's get_data/
// get_data_with_id routes (src/api/routes.rs) folded into one Encore raw
// handler keyed on whether id was supplied.
//
//encore:api public raw method=GET path=/get_data
func GetData(w http.ResponseWriter, r *http.Request) {
	getData(w, r, "")
}

//encore:api public raw method=GET path=/get_data/:id
func GetDataByID(w http.ResponseWriter, r *http.Request) {
	id := lastPathSegment(r.URL.Path)
	getData(w, r, id)
}

func getData(w http.ResponseWriter, r *http.Request, subID string) {
	handler := middleware.CORS([]string{"GET"}, func(w http.ResponseWriter, r *http.Request) {
		svc, err := initService()
		if err != nil {
			writeError(w, "get_data", envelope.KindGeneric)
			return
		}
		svc.serveGet(w, r, subID)
	})
	middleware.RequestLogger(http.HandlerFunc(handler)).ServeHTTP(w, r)
}

// serveGet implements GET /get_data[/:id] against an already-constructed
// Service, kept separate from getData so tests can exercise it without
// going through initService's real durabletier/sqldb wiring.
func (svc *Service) serveGet(w http.ResponseWriter, r *http.Request, subID string) {
	address, err := envelopeFromHeaders(r)
	if err != nil {
		writeError(w, "get_data", envelope.KindInvalidSignature)
		return
	}

	sel := kv.Whole()
	if subID != "" {
		sel = kv.One(subID)
	}

	mapping, err := svc.Read(r.Context(), address, sel)
	if err != nil {
		svc.writeTierError(w, "get_data", err)
		return
	}

	var content interface{}
	if subID != "" {
		content = mapping[subID]
	} else {
		content = mapping
	}
	writeJSON(w, http.StatusOK, envelope.Ok("get_data", "Data retrieved successfully", content))
}

// SetData serves POST /set_data (spec.md §6's write).
//
//encore:api public raw method=POST path=/set_data
func SetData(w http.ResponseWriter, r *http.Request) {
	handler := middleware.CORS([]string{"POST"}, func(w http.ResponseWriter, r *http.Request) {
		svc, err := initService()
		if err != nil {
			writeError(w, "set_data", envelope.KindGeneric)
			return
		}
		svc.serveSet(w, r)
	})
	middleware.RequestLogger(http.HandlerFunc(handler)).ServeHTTP(w, r)
}

func (svc *Service) serveSet(w http.ResponseWriter, r *http.Request) {
	address, err := envelopeFromHeaders(r)
	if err != nil {
		writeError(w, "set_data", envelope.KindInvalidSignature)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, int64(svc.cfg.BodyLimit)))
	if err != nil {
		writeError(w, "set_data", envelope.KindGeneric)
		return
	}
	var req writeBody
	if err := json.Unmarshal(body, &req); err != nil {
		writeError(w, "set_data", envelope.KindGeneric)
		return
	}

	if err := svc.Write(r.Context(), address, req.DataID, req.Data); err != nil {
		svc.writeTierError(w, "set_data", err)
		return
	}

	writeJSON(w, http.StatusOK, envelope.Ok("set_data", "Data set successfully", address))
}

// DeleteData serves DELETE /delete_data and DELETE /delete_data/:id
// (spec.md §6's delete_all and delete_one). original_source never wired
// a delete route (its routes.rs only builds get_data/set_data); this is
// an addition to satisfy spec.md §6's explicit delete_all/delete_one
// operations.
//
//encore:api public raw method=DELETE path=/delete_data
func DeleteData(w http.ResponseWriter, r *http.Request) {
	deleteData(w, r, "")
}

//encore:api public raw method=DELETE path=/delete_data/:id
func DeleteDataByID(w http.ResponseWriter, r *http.Request) {
	id := lastPathSegment(r.URL.Path)
	deleteData(w, r, id)
}

func deleteData(w http.ResponseWriter, r *http.Request, subID string) {
	handler := middleware.CORS([]string{"DELETE"}, func(w http.ResponseWriter, r *http.Request) {
		svc, err := initService()
		if err != nil {
			writeError(w, "delete_data", envelope.KindGeneric)
			return
		}
		svc.serveDelete(w, r, subID)
	})
	middleware.RequestLogger(http.HandlerFunc(handler)).ServeHTTP(w, r)
}

func (svc *Service) serveDelete(w http.ResponseWriter, r *http.Request, subID string) {
	address, err := envelopeFromHeaders(r)
	if err != nil {
		writeError(w, "delete_data", envelope.KindInvalidSignature)
		return
	}

	sel := kv.Whole()
	if subID != "" {
		sel = kv.One(subID)
	}

	if err := svc.Delete(r.Context(), address, sel); err != nil {
		svc.writeTierError(w, "delete_data", err)
		return
	}

	rlog.Debug("address deleted", "address", address, "sub_id", subID)
	writeJSON(w, http.StatusOK, envelope.Ok("delete_data", "Data deleted successfully", address))
}
