package query

import (
	"context"
	"testing"

	"github.com/cuemby/warrendb/pkg/types"
)

// memStore is an in-memory EntityStore test double keyed by collection.
type memStore struct {
	rows map[string][]types.Entity
}

func newMemStore() *memStore { return &memStore{rows: map[string][]types.Entity{}} }

func (s *memStore) put(collection, pk string, fields map[string]interface{}) {
	s.rows[collection] = append(s.rows[collection], types.Entity{PK: pk, Collection: collection, Fields: fields})
}

func (s *memStore) Get(collection, pk string) (types.Entity, bool, error) {
	for _, e := range s.rows[collection] {
		if e.PK == pk {
			return e, true, nil
		}
	}
	return types.Entity{}, false, nil
}

func (s *memStore) ScanCollection(collection string, visit func(types.Entity) (bool, error)) error {
	for _, e := range s.rows[collection] {
		more, err := visit(e)
		if err != nil {
			return err
		}
		if !more {
			break
		}
	}
	return nil
}

// memGraph is an in-memory GraphIndex test double.
type memGraph struct {
	out map[string][]types.Edge
	in  map[string][]types.Edge
}

func newMemGraph() *memGraph { return &memGraph{out: map[string][]types.Edge{}, in: map[string][]types.Edge{}} }

func (g *memGraph) addEdge(from, to string, weight float64) {
	e := types.Edge{PK: from + "->" + to, From: from, To: to, Weight: weight}
	g.out[from] = append(g.out[from], e)
	g.in[to] = append(g.in[to], e)
}

func (g *memGraph) Neighbors(_, vertex string, dir types.Direction) ([]types.Edge, error) {
	switch dir {
	case types.DirIn:
		return g.in[vertex], nil
	default:
		return g.out[vertex], nil
	}
}

// memVectorIndex is an in-memory VectorIndex test double returning
// canned hits regardless of the query vector, sufficient to exercise
// the executeVectorGeo plumbing without a real HNSW index.
type memVectorIndex struct {
	hits []types.VectorHit
}

func (m *memVectorIndex) SearchKNN(_ string, _ []float32, k int, _ []string) ([]types.VectorHit, error) {
	if k > 0 && k < len(m.hits) {
		return m.hits[:k], nil
	}
	return m.hits, nil
}

func mustTranslate(t *testing.T, aql string) *types.Query {
	t.Helper()
	prog, err := Parse(aql)
	if err != nil {
		t.Fatalf("parse %q: %v", aql, err)
	}
	q, err := Translate(prog)
	if err != nil {
		t.Fatalf("translate %q: %v", aql, err)
	}
	return q
}

func TestExecuteConjunctiveFullScan(t *testing.T) {
	store := newMemStore()
	store.put("users", "users:1", map[string]interface{}{"name": "ada", "age": int64(30)})
	store.put("users", "users:2", map[string]interface{}{"name": "bo", "age": int64(17)})

	q := mustTranslate(t, `FOR u IN users FILTER u.age >= 18 RETURN u.name`)
	rows, _, err := Execute(context.Background(), q, Deps{Entities: store})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(rows) != 1 || rows[0][""].String() != "ada" {
		t.Fatalf("unexpected rows: %+v", rows)
	}
}

// TestExecuteDisjunctiveFallsBackToScanWhenUnindexed ensures an OR query
// over a field with no equality index still returns matching rows via a
// full collection scan, instead of silently dropping them.
func TestExecuteDisjunctiveFallsBackToScanWhenUnindexed(t *testing.T) {
	store := newMemStore()
	store.put("users", "users:1", map[string]interface{}{"city": "Berlin"})
	store.put("users", "users:2", map[string]interface{}{"city": "Munich"})
	store.put("users", "users:3", map[string]interface{}{"city": "Paris"})

	q := mustTranslate(t, `FOR u IN users FILTER u.city == "Berlin" OR u.city == "Munich" RETURN u.city`)
	rows, _, err := Execute(context.Background(), q, Deps{Entities: store})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 matching rows from unindexed scan, got %d: %+v", len(rows), rows)
	}
}

func TestExecuteCollectAggregate(t *testing.T) {
	store := newMemStore()
	store.put("orders", "orders:1", map[string]interface{}{"customer": "a", "amount": int64(10)})
	store.put("orders", "orders:2", map[string]interface{}{"customer": "a", "amount": int64(5)})
	store.put("orders", "orders:3", map[string]interface{}{"customer": "b", "amount": int64(7)})

	q := mustTranslate(t, `FOR o IN orders COLLECT customer = o.customer AGGREGATE total = SUM(o.amount) RETURN {customer, total}`)
	rows, _, err := Execute(context.Background(), q, Deps{Entities: store})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 groups, got %d: %+v", len(rows), rows)
	}
	first := rows[0][""].ToInterface().(map[string]interface{})
	if first["customer"] != "a" || first["total"] != int64(15) {
		t.Fatalf("unexpected first group: %+v", first)
	}
}

// TestExecuteJoinHashPath exercises the hash-join path on an equality
// condition whose two sides name different fields (a._key == b.account)
// — the shape joinEqualityFields exists to recognize, since naive
// same-name matching would reject it and silently fall back to a
// nested-loop scan instead.
func TestExecuteJoinHashPath(t *testing.T) {
	store := newMemStore()
	store.put("accounts", "accounts:1", map[string]interface{}{"_key": "1", "name": "acme"})
	store.put("balances", "balances:1", map[string]interface{}{"account": "1", "amount": int64(42)})

	q := mustTranslate(t, `FOR a IN accounts FOR b IN balances FILTER a._key == b.account RETURN {name: a.name, amount: b.amount}`)
	rows, metrics, err := Execute(context.Background(), q, Deps{Entities: store})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 joined row, got %d: %+v", len(rows), rows)
	}
	row := rows[0][""].ToInterface().(map[string]interface{})
	if row["name"] != "acme" || row["amount"] != int64(42) {
		t.Fatalf("unexpected joined row: %+v", row)
	}
	if metrics == nil || metrics.Join == nil || metrics.Join.BuildSide == "" {
		t.Fatalf("expected a hash-join build side to be recorded, got %+v", metrics)
	}
	if metrics.Join.PairsEmitted != 1 {
		t.Fatalf("expected 1 emitted pair, got %+v", metrics.Join)
	}
}

// TestExecuteJoinNestedLoopFallback exercises the other half of
// executeJoin: a join filter with no recognizable equality condition
// falls back to a nested-loop scan, reported by an empty BuildSide.
func TestExecuteJoinNestedLoopFallback(t *testing.T) {
	store := newMemStore()
	store.put("accounts", "accounts:1", map[string]interface{}{"limit": int64(100)})
	store.put("balances", "balances:1", map[string]interface{}{"amount": int64(42)})
	store.put("balances", "balances:2", map[string]interface{}{"amount": int64(150)})

	q := mustTranslate(t, `FOR a IN accounts FOR b IN balances FILTER b.amount < a.limit RETURN b.amount`)
	rows, metrics, err := Execute(context.Background(), q, Deps{Entities: store})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(rows) != 1 || rows[0][""].ToInterface() != int64(42) {
		t.Fatalf("unexpected rows: %+v", rows)
	}
	if metrics == nil || metrics.Join == nil || metrics.Join.BuildSide != "" {
		t.Fatalf("expected nested-loop fallback (no build side), got %+v", metrics)
	}
	if metrics.Join.ProbesEvaluated != 2 {
		t.Fatalf("expected 2 probed pairs, got %+v", metrics.Join)
	}
}

func TestExecuteTraversalBFS(t *testing.T) {
	store := newMemStore()
	store.put("users", "users:1", map[string]interface{}{"name": "root"})
	store.put("users", "users:2", map[string]interface{}{"name": "friend"})
	store.put("users", "users:3", map[string]interface{}{"name": "friend-of-friend"})

	graph := newMemGraph()
	graph.addEdge("users:1", "users:2", 1)
	graph.addEdge("users:2", "users:3", 1)

	q := mustTranslate(t, `FOR v, e IN 1..2 OUTBOUND "users:1" GRAPH "social" RETURN v.name`)
	rows, metrics, err := Execute(context.Background(), q, Deps{Entities: store, Graph: graph})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 hits within depth 2, got %d: %+v", len(rows), rows)
	}
	if metrics == nil || metrics.Traversal == nil || metrics.Traversal.EdgesExpanded != 2 {
		t.Fatalf("unexpected traversal metrics: %+v", metrics)
	}
}

// TestExecuteTraversalEmitsStartVertexAtMinDepthZero covers the 0..N
// form: the start vertex itself must appear in the results, not just
// vertices reached by traversing at least one edge.
func TestExecuteTraversalEmitsStartVertexAtMinDepthZero(t *testing.T) {
	store := newMemStore()
	store.put("users", "users:1", map[string]interface{}{"name": "root"})
	store.put("users", "users:2", map[string]interface{}{"name": "friend"})

	graph := newMemGraph()
	graph.addEdge("users:1", "users:2", 1)

	q := mustTranslate(t, `FOR v, e IN 0..1 OUTBOUND "users:1" GRAPH "social" RETURN v.name`)
	rows, _, err := Execute(context.Background(), q, Deps{Entities: store, Graph: graph})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected start vertex plus its neighbor, got %d: %+v", len(rows), rows)
	}
	if rows[0][""].String() != "root" {
		t.Fatalf("expected start vertex first, got %+v", rows[0])
	}
}

func TestExecuteVectorGeo(t *testing.T) {
	store := newMemStore()
	store.put("docs", "docs:1", map[string]interface{}{"title": "a", "published": true})
	store.put("docs", "docs:2", map[string]interface{}{"title": "b", "published": false})

	vecIdx := &memVectorIndex{hits: []types.VectorHit{
		{PK: "docs:2", Distance: 0.1},
		{PK: "docs:1", Distance: 0.2},
	}}

	q := mustTranslate(t, `FOR d IN VECTOR_SEARCH(docs, "embedding", [0.1, 0.2], 5) FILTER d.published == true RETURN d.title`)
	rows, _, err := Execute(context.Background(), q, Deps{Entities: store, VectorIdx: vecIdx})
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(rows) != 1 || rows[0][""].String() != "a" {
		t.Fatalf("unexpected vector-geo rows: %+v", rows)
	}
}
