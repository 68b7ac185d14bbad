package timeseries

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warrendb/pkg/kv"
	"github.com/cuemby/warrendb/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := kv.Open(kv.DefaultConfig(filepath.Join(t.TempDir(), "ts.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

// TestGorillaRoundTrip encodes a batch of 1000 non-decreasing timestamps
// with values drawn from a random walk, decodes, and asserts bitwise
// equality of every timestamp and value.
func TestGorillaRoundTrip(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	const n = 1000
	samples := make([]gorillaSample, n)
	ts := int64(1_700_000_000_000)
	val := 100.0
	for i := 0; i < n; i++ {
		ts += int64(rng.Intn(5000))
		val += rng.NormFloat64()
		samples[i] = gorillaSample{TS: ts, Value: val}
	}

	encoded := encodeGorilla(samples)
	decoded, err := decodeGorilla(encoded, n)
	require.NoError(t, err)
	require.Len(t, decoded, n)
	for i := range samples {
		assert.Equal(t, samples[i].TS, decoded[i].TS, "timestamp mismatch at %d", i)
		assert.Equal(t, samples[i].Value, decoded[i].Value, "value mismatch at %d", i)
	}
}

func TestGorillaRoundTripConstantValue(t *testing.T) {
	samples := []gorillaSample{
		{TS: 1000, Value: 42.5},
		{TS: 2000, Value: 42.5},
		{TS: 3000, Value: 42.5},
		{TS: 4000, Value: 42.5},
	}
	encoded := encodeGorilla(samples)
	decoded, err := decodeGorilla(encoded, len(samples))
	require.NoError(t, err)
	assert.Equal(t, samples, decoded)
}

func TestPutPointAndQueryRaw(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutPoint(types.Point{Metric: "cpu", Entity: "host1", Timestamp: 100, Value: 1.0}))
	require.NoError(t, s.PutPoint(types.Point{Metric: "cpu", Entity: "host1", Timestamp: 200, Value: 2.0}))
	require.NoError(t, s.PutPoint(types.Point{Metric: "cpu", Entity: "host2", Timestamp: 150, Value: 9.0}))

	points, err := s.Query(types.TSQueryOptions{Metric: "cpu", Entity: "host1", From: 0, To: 1000})
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, int64(100), points[0].Timestamp)
	assert.Equal(t, int64(200), points[1].Timestamp)

	all, err := s.Query(types.TSQueryOptions{Metric: "cpu", From: 0, To: 1000})
	require.NoError(t, err)
	assert.Len(t, all, 3)
}

func TestPutPointsGorillaChunkAndQuery(t *testing.T) {
	s := newTestStore(t)
	batch := []types.Point{
		{Metric: "temp", Entity: "sensor1", Timestamp: 300, Value: 3.0, Tags: map[string]string{"unit": "c"}},
		{Metric: "temp", Entity: "sensor1", Timestamp: 100, Value: 1.0, Tags: map[string]string{"unit": "c"}},
		{Metric: "temp", Entity: "sensor1", Timestamp: 200, Value: 2.0, Tags: map[string]string{"unit": "c"}},
	}
	require.NoError(t, s.PutPoints(batch, "gorilla"))

	points, err := s.Query(types.TSQueryOptions{Metric: "temp", Entity: "sensor1", From: 0, To: 1000})
	require.NoError(t, err)
	require.Len(t, points, 3)
	assert.Equal(t, []int64{100, 200, 300}, []int64{points[0].Timestamp, points[1].Timestamp, points[2].Timestamp})
	assert.Equal(t, "c", points[0].Tags["unit"])

	filtered, err := s.Query(types.TSQueryOptions{Metric: "temp", Entity: "sensor1", From: 150, To: 250})
	require.NoError(t, err)
	require.Len(t, filtered, 1)
	assert.Equal(t, int64(200), filtered[0].Timestamp)
}

func TestAggregate(t *testing.T) {
	s := newTestStore(t)
	batch := []types.Point{
		{Metric: "latency", Entity: "svc", Timestamp: 1, Value: 10},
		{Metric: "latency", Entity: "svc", Timestamp: 2, Value: 20},
		{Metric: "latency", Entity: "svc", Timestamp: 3, Value: 30},
	}
	require.NoError(t, s.PutPoints(batch, "none"))

	agg, err := s.Aggregate(types.TSQueryOptions{Metric: "latency", Entity: "svc", From: 0, To: 10})
	require.NoError(t, err)
	assert.Equal(t, 10.0, agg.Min)
	assert.Equal(t, 30.0, agg.Max)
	assert.Equal(t, 20.0, agg.Avg)
	assert.Equal(t, 60.0, agg.Sum)
	assert.Equal(t, int64(3), agg.Count)
}

func TestDeleteOldRemovesRawAndChunks(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.PutPoint(types.Point{Metric: "m", Entity: "e", Timestamp: 100, Value: 1}))
	require.NoError(t, s.PutPoints([]types.Point{
		{Metric: "m", Entity: "e2", Timestamp: 50, Value: 1},
		{Metric: "m", Entity: "e2", Timestamp: 60, Value: 2},
	}, "gorilla"))

	require.NoError(t, s.DeleteOld(80))

	points, err := s.Query(types.TSQueryOptions{Metric: "m", From: 0, To: 1000})
	require.NoError(t, err)
	require.Len(t, points, 1)
	assert.Equal(t, int64(100), points[0].Timestamp)
}

func TestContinuousAggregateWritesDerivedMetric(t *testing.T) {
	s := newTestStore(t)
	batch := []types.Point{
		{Metric: "reqs", Entity: "svc", Timestamp: 10, Value: 1},
		{Metric: "reqs", Entity: "svc", Timestamp: 20, Value: 3},
		{Metric: "reqs", Entity: "svc", Timestamp: 1010, Value: 5},
	}
	require.NoError(t, s.PutPoints(batch, "none"))
	require.NoError(t, s.ContinuousAggregate("reqs", "svc", 0, 2000, 1000))

	derived, err := s.Query(types.TSQueryOptions{Metric: "reqs__agg_1000ms", Entity: "svc", From: 0, To: 3000})
	require.NoError(t, err)
	require.Len(t, derived, 2)
	assert.Equal(t, int64(1000), derived[0].Timestamp)
	assert.Equal(t, int64(2000), derived[1].Timestamp)
	assert.InDelta(t, 2.0, derived[0].Value, 1e-9)
	assert.InDelta(t, 5.0, derived[1].Value, 1e-9)
}
