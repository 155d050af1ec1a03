package tieredkv

import (
	"encoding/base64"
	"encoding/json"

	"encore.app/pkg/kv"
)

// filterExportDoc is the JSON shape persisted under the reserved filter
// address: the raw export bytes base64-encoded alongside the export's
// byte length, which cuckoo.Import needs to validate bucket layout.
type filterExportDoc struct {
	Data   string `json:"data"`
	Length int    `json:"length"`
}

func encodeFilterExport(data []byte, length int) kv.Record {
	doc := filterExportDoc{Data: base64.StdEncoding.EncodeToString(data), Length: length}
	record, _ := json.Marshal(doc)
	return record
}

func decodeFilterExport(record kv.Record) ([]byte, int, error) {
	var doc filterExportDoc
	if err := json.Unmarshal(record, &doc); err != nil {
		return nil, 0, err
	}
	data, err := base64.StdEncoding.DecodeString(doc.Data)
	if err != nil {
		return nil, 0, err
	}
	return data, doc.Length, nil
}
