package durabletier

import (
	"testing"

	"encore.app/pkg/kv"
)

// These cover the JSONB marshal/unmarshal helpers directly. The rest of
// Store (Get/Set/Delete/runExpirySweep) needs a live *sqldb.Database,
// which this pack's own tests never construct outside Encore's test
// runtime either (invalidation/service_test.go and
// cache-manager/service_test.go both stop short of exercising their
// sqldb-backed methods directly) — so it's left to integration testing
// under `encore test`.

func TestMarshalUnmarshalMappingRoundTrip(t *testing.T) {
	m := kv.Mapping{
		"a": kv.Record(`{"x":1}`),
		"b": kv.Record(`"hello"`),
	}

	data, err := marshalMapping(m)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	got, err := unmarshalMapping(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(got) != 2 || string(got["a"]) != `{"x":1}` || string(got["b"]) != `"hello"` {
		t.Fatalf("unexpected round trip: %v", got)
	}
}

func TestUnmarshalEmptyMappingYieldsEmptyNotNil(t *testing.T) {
	got, err := unmarshalMapping(nil)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil mapping, got %v", got)
	}
}
