package tieredkv

import (
	"bytes"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// testSigner builds a real Ed25519 keypair and signs an address the same
// way spec.md §8's fixture constants (TEST_VALID_PUB_KEY, etc.) are
// described: a known keypair signing the raw address bytes.
type testSigner struct {
	pubHex string
	priv   ed25519.PrivateKey
}

func newTestSigner(t *testing.T) *testSigner {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return &testSigner{pubHex: hex.EncodeToString(pub), priv: priv}
}

// setHeaders attaches a valid envelope for the given plaintext address.
func (s *testSigner) setHeaders(r *http.Request, address string) {
	addrHex := hex.EncodeToString([]byte(address))
	sig := ed25519.Sign(s.priv, []byte(address))
	r.Header.Set(headerPublicKey, s.pubHex)
	r.Header.Set(headerAddress, addrHex)
	r.Header.Set(headerSignature, hex.EncodeToString(sig))
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return out
}

// Seed scenario 1: empty system, read_all yields NotPresent.
func TestScenario1_ReadAllEmptySystem(t *testing.T) {
	svc := testService(t)
	signer := newTestSigner(t)

	req := httptest.NewRequest(http.MethodGet, "/get_data", nil)
	signer.setHeaders(req, "0x123")
	rec := httptest.NewRecorder()

	svc.serveGet(rec, req, "")

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	body := decodeResponse(t, rec)
	if body["status"] != "Error" || body["route"] != "get_data" || body["content"] != nil {
		t.Fatalf("unexpected body: %v", body)
	}
	if body["reason"] != "Cuckoo filter lookup failed, data for address not found on this node" {
		t.Fatalf("unexpected reason: %v", body["reason"])
	}
}

// Seed scenarios 3 & 2: write then read_all.
func TestScenario3And2_WriteThenReadAll(t *testing.T) {
	svc := testService(t)
	signer := newTestSigner(t)

	writeReq := httptest.NewRequest(http.MethodPost, "/set_data",
		bytes.NewReader([]byte(`{"address":"0x123","data_id":"id","data":{"Hello":20}}`)))
	signer.setHeaders(writeReq, "0x123")
	writeRec := httptest.NewRecorder()
	svc.serveSet(writeRec, writeReq)

	if writeRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", writeRec.Code, writeRec.Body.String())
	}
	writeBody := decodeResponse(t, writeRec)
	if writeBody["status"] != "Success" || writeBody["reason"] != "Data set successfully" ||
		writeBody["route"] != "set_data" || writeBody["content"] != "0x123" {
		t.Fatalf("unexpected write body: %v", writeBody)
	}

	readReq := httptest.NewRequest(http.MethodGet, "/get_data", nil)
	signer.setHeaders(readReq, "0x123")
	readRec := httptest.NewRecorder()
	svc.serveGet(readRec, readReq, "")

	if readRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", readRec.Code)
	}
	readBody := decodeResponse(t, readRec)
	content, ok := readBody["content"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected object content, got %v", readBody["content"])
	}
	idEntry, ok := content["id"].(map[string]interface{})
	if !ok || idEntry["Hello"] != float64(20) {
		t.Fatalf("unexpected mapping: %v", content)
	}
}

// Seed scenario 4: read_one after scenario 3's write.
func TestScenario4_ReadOne(t *testing.T) {
	svc := testService(t)
	signer := newTestSigner(t)

	writeReq := httptest.NewRequest(http.MethodPost, "/set_data",
		bytes.NewReader([]byte(`{"address":"0x123","data_id":"id","data":{"Hello":20}}`)))
	signer.setHeaders(writeReq, "0x123")
	svc.serveSet(httptest.NewRecorder(), writeReq)

	readReq := httptest.NewRequest(http.MethodGet, "/get_data/id", nil)
	signer.setHeaders(readReq, "0x123")
	readRec := httptest.NewRecorder()
	svc.serveGet(readRec, readReq, "id")

	body := decodeResponse(t, readRec)
	content, ok := body["content"].(map[string]interface{})
	if !ok || content["Hello"] != float64(20) {
		t.Fatalf("unexpected content: %v", body["content"])
	}
}

// Seed scenario 5: delete_all then read_all yields NotPresent.
func TestScenario5_DeleteAllThenReadAll(t *testing.T) {
	svc := testService(t)
	signer := newTestSigner(t)

	writeReq := httptest.NewRequest(http.MethodPost, "/set_data",
		bytes.NewReader([]byte(`{"address":"0x123","data_id":"id","data":{"Hello":20}}`)))
	signer.setHeaders(writeReq, "0x123")
	svc.serveSet(httptest.NewRecorder(), writeReq)

	delReq := httptest.NewRequest(http.MethodDelete, "/delete_data", nil)
	signer.setHeaders(delReq, "0x123")
	delRec := httptest.NewRecorder()
	svc.serveDelete(delRec, delReq, "")
	if delRec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", delRec.Code)
	}

	readReq := httptest.NewRequest(http.MethodGet, "/get_data", nil)
	signer.setHeaders(readReq, "0x123")
	readRec := httptest.NewRecorder()
	svc.serveGet(readRec, readReq, "")

	if readRec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 after delete_all, got %d", readRec.Code)
	}
	body := decodeResponse(t, readRec)
	if body["status"] != "Error" {
		t.Fatalf("expected Error status, got %v", body)
	}
}

// Seed scenario 6: three distinct writes with distinct sub-ids.
func TestScenario6_ThreeWritesSameAddress(t *testing.T) {
	svc := testService(t)
	signer := newTestSigner(t)

	for _, sub := range []string{"a", "b", "c"} {
		body := `{"address":"0xabc","data_id":"` + sub + `","data":"v-` + sub + `"}`
		req := httptest.NewRequest(http.MethodPost, "/set_data", bytes.NewReader([]byte(body)))
		signer.setHeaders(req, "0xabc")
		svc.serveSet(httptest.NewRecorder(), req)
	}

	readReq := httptest.NewRequest(http.MethodGet, "/get_data", nil)
	signer.setHeaders(readReq, "0xabc")
	readRec := httptest.NewRecorder()
	svc.serveGet(readRec, readReq, "")

	body := decodeResponse(t, readRec)
	content, ok := body["content"].(map[string]interface{})
	if !ok || len(content) != 3 {
		t.Fatalf("expected 3 entries, got %v", body["content"])
	}
}

// Signature-path seeds: missing headers and a tampered signature both
// yield HTTP 400 and reason="Invalid signature".
func TestMissingEnvelopeHeaderYieldsInvalidSignature(t *testing.T) {
	svc := testService(t)
	req := httptest.NewRequest(http.MethodGet, "/get_data", nil)
	rec := httptest.NewRecorder()

	svc.serveGet(rec, req, "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeResponse(t, rec)
	if body["reason"] != "Invalid signature" {
		t.Fatalf("unexpected reason: %v", body["reason"])
	}
}

func TestTamperedSignatureYieldsInvalidSignature(t *testing.T) {
	svc := testService(t)
	signer := newTestSigner(t)

	req := httptest.NewRequest(http.MethodGet, "/get_data", nil)
	signer.setHeaders(req, "0x123")
	sig := req.Header.Get(headerSignature)
	tampered := []byte(sig)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}
	req.Header.Set(headerSignature, string(tampered))

	rec := httptest.NewRecorder()
	svc.serveGet(rec, req, "")

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	body := decodeResponse(t, rec)
	if body["reason"] != "Invalid signature" {
		t.Fatalf("unexpected reason: %v", body["reason"])
	}
}
