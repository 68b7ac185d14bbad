package query

import (
	"os"
	"testing"
)

func TestCTECachePutGetRoundTrip(t *testing.T) {
	c, err := NewCTECache(0)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	defer c.Close()

	rows := []Value{ObjectVal(map[string]Value{"a": IntVal(1)}), ObjectVal(map[string]Value{"a": IntVal(2)})}
	if err := c.Put("recent", rows); err != nil {
		t.Fatalf("put: %v", err)
	}
	got, ok, err := c.Get("recent")
	if err != nil || !ok {
		t.Fatalf("get: %v %v", ok, err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(got))
	}
}

func TestCTECacheSpillsWhenOverBudget(t *testing.T) {
	c, err := NewCTECache(200) // tiny budget forces a spill
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	defer c.Close()

	big := make([]Value, 50)
	for i := range big {
		big[i] = ObjectVal(map[string]Value{"field": StringVal("some reasonably long string value")})
	}
	if err := c.Put("first", big); err != nil {
		t.Fatalf("put first: %v", err)
	}
	if err := c.Put("second", big); err != nil {
		t.Fatalf("put second: %v", err)
	}

	first := c.entries["first"]
	if first.rows != nil {
		t.Fatalf("expected first entry to have been spilled to disk")
	}
	if first.spillPath == "" {
		t.Fatalf("expected a spill path to be recorded")
	}

	got, ok, err := c.Get("first")
	if err != nil || !ok {
		t.Fatalf("reload after spill: %v %v", ok, err)
	}
	if len(got) != len(big) {
		t.Fatalf("expected %d rows reloaded, got %d", len(big), len(got))
	}
}

func TestCTECacheCloseRemovesTempDir(t *testing.T) {
	c, err := NewCTECache(0)
	if err != nil {
		t.Fatalf("new cache: %v", err)
	}
	dir := c.dir
	if err := c.Put("x", []Value{IntVal(1)}); err != nil {
		t.Fatalf("put: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected temp dir to be removed, stat err=%v", err)
	}
}
