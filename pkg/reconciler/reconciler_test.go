package reconciler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/warrendb/pkg/engine"
	"github.com/cuemby/warrendb/pkg/types"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(engine.Config{StorePath: filepath.Join(t.TempDir(), "warrendb.db")})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestIndexedCollectionsDeduplicates(t *testing.T) {
	e := newTestEngine(t)
	if err := e.CreateIndex(types.IndexEquality, "users", []string{"age"}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := e.CreateIndex(types.IndexEquality, "users", []string{"name"}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if err := e.CreateIndex(types.IndexEquality, "widgets", []string{"sku"}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}

	r := NewReconciler(e, time.Hour)
	collections := r.indexedCollections()
	if len(collections) != 2 {
		t.Fatalf("expected 2 distinct collections, got %v", collections)
	}
}

func TestReconcileRebuildsIndexedCollections(t *testing.T) {
	e := newTestEngine(t)
	if err := e.CreateIndex(types.IndexEquality, "users", []string{"age"}); err != nil {
		t.Fatalf("CreateIndex: %v", err)
	}
	if _, _, err := e.Upsert("users", "u1", map[string]interface{}{"age": int64(30)}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	r := NewReconciler(e, time.Hour)
	if err := r.reconcile(); err != nil {
		t.Fatalf("reconcile: %v", err)
	}
}

func TestNewReconcilerDefaultsInterval(t *testing.T) {
	e := newTestEngine(t)
	r := NewReconciler(e, 0)
	if r.interval != 10*time.Second {
		t.Fatalf("expected default interval of 10s, got %v", r.interval)
	}
}
