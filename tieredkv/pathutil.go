package tieredkv

import (
	"encoding/hex"
	"strings"
)

// decodeHexAddress decodes the hex-encoded address header into the raw
// address string used as the storage key (spec.md §3's Address), the
// same bytes envelope.Verify authenticates the signature over.
func decodeHexAddress(addressHex string) (string, error) {
	raw, err := hex.DecodeString(addressHex)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

// lastPathSegment extracts the :id path parameter from a raw Encore
// endpoint's request path, since raw handlers receive the full path
// rather than Encore's usual bound path parameters.
func lastPathSegment(path string) string {
	trimmed := strings.TrimRight(path, "/")
	idx := strings.LastIndex(trimmed, "/")
	if idx < 0 {
		return ""
	}
	return trimmed[idx+1:]
}
