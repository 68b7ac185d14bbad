package secindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warrendb/pkg/kv"
	"github.com/cuemby/warrendb/pkg/types"
)

func newTestManager(t *testing.T) (*Manager, kv.Store) {
	t.Helper()
	dir := t.TempDir()
	store, err := kv.Open(kv.DefaultConfig(filepath.Join(dir, "test.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	m, err := New(store)
	require.NoError(t, err)
	return m, store
}

func TestEqualityIndexRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.CreateEquality("users", "city"))
	assert.True(t, m.HasEquality("users", "city"))

	berlin1 := types.Entity{PK: "users:1", Collection: "users", Fields: map[string]interface{}{"city": "Berlin"}}
	berlin2 := types.Entity{PK: "users:2", Collection: "users", Fields: map[string]interface{}{"city": "Berlin"}}
	munich := types.Entity{PK: "users:3", Collection: "users", Fields: map[string]interface{}{"city": "Munich"}}

	require.NoError(t, m.Put(berlin1))
	require.NoError(t, m.Put(berlin2))
	require.NoError(t, m.Put(munich))

	pks, err := m.ScanKeysEqual("users", "city", "Berlin")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"users:1", "users:2"}, pks)

	require.NoError(t, m.Erase(berlin1))
	pks, err = m.ScanKeysEqual("users", "city", "Berlin")
	require.NoError(t, err)
	assert.Equal(t, []string{"users:2"}, pks)
}

func TestEqualityUnknownIndex(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.ScanKeysEqual("users", "city", "Berlin")
	assert.Error(t, err)
}

func TestRangeIndexOrdering(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.CreateRange("users", "age"))

	ages := []int{45, 18, 80, 33, 60}
	for i, age := range ages {
		e := types.Entity{PK: types.Key("users", string(rune('a'+i))), Collection: "users", Fields: map[string]interface{}{"age": age}}
		require.NoError(t, m.Put(e))
	}

	pks, err := m.ScanKeysRange("users", "age", 30, nil, true, false, 0, false)
	require.NoError(t, err)
	// ages >= 30: 45, 33, 60, 80 -> ascending order 33,45,60,80
	require.Len(t, pks, 4)

	desc, err := m.ScanKeysRange("users", "age", 30, nil, true, false, 0, true)
	require.NoError(t, err)
	require.Len(t, desc, 4)
	assert.Equal(t, pks[0], desc[len(desc)-1])
}

func TestCompositeIndexColumnMismatch(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.CreateComposite("orders", []string{"region", "status"}))
	_, err := m.ScanKeysEqualComposite("orders", []string{"region", "status"}, []interface{}{"eu"})
	assert.Error(t, err)
}

func TestCompositeIndexRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.CreateComposite("orders", []string{"region", "status"}))

	e1 := types.Entity{PK: "orders:1", Collection: "orders", Fields: map[string]interface{}{"region": "eu", "status": "open"}}
	e2 := types.Entity{PK: "orders:2", Collection: "orders", Fields: map[string]interface{}{"region": "eu", "status": "closed"}}
	require.NoError(t, m.Put(e1))
	require.NoError(t, m.Put(e2))

	pks, err := m.ScanKeysEqualComposite("orders", []string{"region", "status"}, []interface{}{"eu", "open"})
	require.NoError(t, err)
	assert.Equal(t, []string{"orders:1"}, pks)
}

func TestEstimateCountEqualCap(t *testing.T) {
	m, _ := newTestManager(t)
	require.NoError(t, m.CreateEquality("users", "city"))
	for i := 0; i < 20; i++ {
		e := types.Entity{PK: types.Key("users", string(rune('a'+i))), Collection: "users", Fields: map[string]interface{}{"city": "Berlin"}}
		require.NoError(t, m.Put(e))
	}

	est, err := m.EstimateCountEqual("users", "city", "Berlin", 10)
	require.NoError(t, err)
	assert.True(t, est.Capped)
	assert.Equal(t, 10, est.Count)

	est, err = m.EstimateCountEqual("users", "city", "Berlin", 1000)
	require.NoError(t, err)
	assert.False(t, est.Capped)
	assert.Equal(t, 20, est.Count)
}

func TestDropIndexRemovesEntries(t *testing.T) {
	m, store := newTestManager(t)
	require.NoError(t, m.CreateEquality("users", "city"))
	e := types.Entity{PK: "users:1", Collection: "users", Fields: map[string]interface{}{"city": "Berlin"}}
	require.NoError(t, m.Put(e))

	require.NoError(t, m.DropEquality("users", "city"))
	assert.False(t, m.HasEquality("users", "city"))

	var count int
	require.NoError(t, store.ScanPrefix([]byte(nsEquality), func(_, _ []byte) bool {
		count++
		return true
	}))
	assert.Zero(t, count)
}

func TestFullTextSearch(t *testing.T) {
	_, store := newTestManager(t)
	ft := NewFullText(store)

	require.NoError(t, ft.Put("articles", "body", "articles:1", "the quick brown fox"))
	require.NoError(t, ft.Put("articles", "body", "articles:2", "the lazy dog"))

	pks, err := ft.Search("articles", "body", "the")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"articles:1", "articles:2"}, pks)

	pks, err = ft.Search("articles", "body", "fox")
	require.NoError(t, err)
	assert.Equal(t, []string{"articles:1"}, pks)

	require.NoError(t, ft.Erase("articles", "body", "articles:1", "the quick brown fox"))
	pks, err = ft.Search("articles", "body", "fox")
	require.NoError(t, err)
	assert.Empty(t, pks)
}
