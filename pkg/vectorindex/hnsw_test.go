package vectorindex

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warrendb/pkg/types"
)

func testConfig() types.VectorConfig {
	return types.VectorConfig{
		Collection:     "docs",
		Field:          "embedding",
		Dim:            8,
		Metric:         types.MetricL2,
		M:              8,
		EfConstruction: 32,
		EfSearch:       32,
	}
}

func randomVector(n int, r *rand.Rand) []float32 {
	v := make([]float32, n)
	for i := range v {
		v[i] = r.Float32()
	}
	return v
}

func TestSearchKNNFindsExactMatch(t *testing.T) {
	idx := New(testConfig())
	r := rand.New(rand.NewSource(42))

	target := randomVector(8, r)
	require.NoError(t, idx.AddEntity(types.Entity{PK: "docs:target", Fields: map[string]interface{}{"embedding": toIface(target)}}))
	for i := 0; i < 50; i++ {
		v := randomVector(8, r)
		pk := "docs:" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		require.NoError(t, idx.AddEntity(types.Entity{PK: pk, Fields: map[string]interface{}{"embedding": toIface(v)}}))
	}

	hits, err := idx.SearchKNN(target, 1, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, "docs:target", hits[0].PK)
	assert.InDelta(t, 0, hits[0].Distance, 1e-4)
}

func TestSearchKNNRespectsWhitelist(t *testing.T) {
	idx := New(testConfig())
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 30; i++ {
		v := randomVector(8, r)
		pk := "docs:" + string(rune('a'+i))
		require.NoError(t, idx.AddEntity(types.Entity{PK: pk, Fields: map[string]interface{}{"embedding": toIface(v)}}))
	}

	hits, err := idx.SearchKNN(randomVector(8, r), 3, []string{"docs:a", "docs:b"})
	require.NoError(t, err)
	for _, h := range hits {
		assert.Contains(t, []string{"docs:a", "docs:b"}, h.PK)
	}
}

func TestSearchKNNKLargerThanPopulation(t *testing.T) {
	idx := New(testConfig())
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 5; i++ {
		v := randomVector(8, r)
		pk := "docs:" + string(rune('a'+i))
		require.NoError(t, idx.AddEntity(types.Entity{PK: pk, Fields: map[string]interface{}{"embedding": toIface(v)}}))
	}

	hits, err := idx.SearchKNN(randomVector(8, r), 100, nil)
	require.NoError(t, err)
	assert.Len(t, hits, 5)
	for i := 1; i < len(hits); i++ {
		assert.LessOrEqual(t, hits[i-1].Distance, hits[i].Distance)
	}
}

func TestRemoveByPKExcludesFromSearch(t *testing.T) {
	idx := New(testConfig())
	r := rand.New(rand.NewSource(9))
	target := randomVector(8, r)
	require.NoError(t, idx.AddEntity(types.Entity{PK: "docs:x", Fields: map[string]interface{}{"embedding": toIface(target)}}))
	for i := 0; i < 10; i++ {
		v := randomVector(8, r)
		pk := "docs:" + string(rune('a'+i))
		require.NoError(t, idx.AddEntity(types.Entity{PK: pk, Fields: map[string]interface{}{"embedding": toIface(v)}}))
	}

	idx.RemoveByPK("docs:x")
	hits, err := idx.SearchKNN(target, 11, nil)
	require.NoError(t, err)
	for _, h := range hits {
		assert.NotEqual(t, "docs:x", h.PK)
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	cfg := testConfig()
	idx := New(cfg)
	r := rand.New(rand.NewSource(11))
	var queries [][]float32
	for i := 0; i < 40; i++ {
		v := randomVector(8, r)
		pk := "docs:" + string(rune('a'+i%26)) + string(rune('0'+i/26))
		require.NoError(t, idx.AddEntity(types.Entity{PK: pk, Fields: map[string]interface{}{"embedding": toIface(v)}}))
		if i%5 == 0 {
			queries = append(queries, randomVector(8, r))
		}
	}

	path := filepath.Join(t.TempDir(), "docs.hnsw")
	require.NoError(t, idx.Save(path))

	reloaded, err := Load(path, cfg)
	require.NoError(t, err)

	for _, q := range queries {
		want, err := idx.SearchKNN(q, 5, nil)
		require.NoError(t, err)
		got, err := reloaded.SearchKNN(q, 5, nil)
		require.NoError(t, err)
		require.Equal(t, len(want), len(got))
		for i := range want {
			assert.Equal(t, want[i].PK, got[i].PK)
			assert.InDelta(t, want[i].Distance, got[i].Distance, 1e-6)
		}
	}
}

func TestLoadRejectsDimMismatch(t *testing.T) {
	cfg := testConfig()
	idx := New(cfg)
	r := rand.New(rand.NewSource(1))
	require.NoError(t, idx.AddEntity(types.Entity{PK: "docs:a", Fields: map[string]interface{}{"embedding": toIface(randomVector(8, r))}}))

	path := filepath.Join(t.TempDir(), "docs.hnsw")
	require.NoError(t, idx.Save(path))

	badCfg := cfg
	badCfg.Dim = 16
	_, err := Load(path, badCfg)
	assert.Error(t, err)
}

func toIface(v []float32) []interface{} {
	out := make([]interface{}, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}
