package durabletier

import (
	"encoding/json"

	"encore.app/pkg/kv"
)

func marshalMapping(m kv.Mapping) ([]byte, error) { return json.Marshal(m) }

func unmarshalMapping(data []byte) (kv.Mapping, error) {
	if len(data) == 0 {
		return kv.Mapping{}, nil
	}
	var m kv.Mapping
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
