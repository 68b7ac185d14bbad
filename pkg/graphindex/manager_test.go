package graphindex

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warrendb/pkg/kv"
	"github.com/cuemby/warrendb/pkg/types"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	store, err := kv.Open(kv.DefaultConfig(filepath.Join(t.TempDir(), "graph.db")))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return New(store)
}

func TestNeighborsDirections(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.AddEdge("social", types.Edge{PK: "e1", From: "alice", To: "bob", Weight: 1}))
	require.NoError(t, m.AddEdge("social", types.Edge{PK: "e2", From: "carol", To: "alice", Weight: 1}))

	out, err := m.Neighbors("social", "alice", types.DirOut)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "bob", out[0].To)

	in, err := m.Neighbors("social", "alice", types.DirIn)
	require.NoError(t, err)
	require.Len(t, in, 1)
	assert.Equal(t, "carol", in[0].From)

	any, err := m.Neighbors("social", "alice", types.DirAny)
	require.NoError(t, err)
	assert.Len(t, any, 2)
}

func TestRemoveEdge(t *testing.T) {
	m := newTestManager(t)
	edge := types.Edge{PK: "e1", From: "alice", To: "bob"}
	require.NoError(t, m.AddEdge("social", edge))
	require.NoError(t, m.RemoveEdge("social", edge))

	out, err := m.Neighbors("social", "alice", types.DirOut)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestShortestPath(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.AddEdge("routes", types.Edge{PK: "e1", From: "a", To: "b", Weight: 1}))
	require.NoError(t, m.AddEdge("routes", types.Edge{PK: "e2", From: "b", To: "c", Weight: 1}))
	require.NoError(t, m.AddEdge("routes", types.Edge{PK: "e3", From: "a", To: "c", Weight: 5}))

	hops, found, err := m.ShortestPath("routes", "a", "c", types.DirOut)
	require.NoError(t, err)
	require.True(t, found)
	require.Len(t, hops, 3)
	assert.Equal(t, []string{"a", "b", "c"}, []string{hops[0].Vertex, hops[1].Vertex, hops[2].Vertex})
	assert.InDelta(t, 2.0, hops[2].CumulativeDist, 1e-9)
}

func TestShortestPathUnreachable(t *testing.T) {
	m := newTestManager(t)
	require.NoError(t, m.AddEdge("routes", types.Edge{PK: "e1", From: "a", To: "b"}))

	_, found, err := m.ShortestPath("routes", "a", "z", types.DirOut)
	require.NoError(t, err)
	assert.False(t, found)
}
