package graphindex

import (
	"encoding/json"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
	"github.com/cuemby/warrendb/pkg/kv"
	"github.com/cuemby/warrendb/pkg/types"
)

const (
	nsOut = "gx:out:" // gx:out:{graph}:{from}:{edgePK} -> edge JSON
	nsIn  = "gx:in:"  // gx:in:{graph}:{to}:{edgePK}    -> edge JSON
)

// Manager maintains the outgoing/incoming adjacency projections for one
// or more named graphs (a graph is just a namespace; collections that
// store edge entities pick the name).
type Manager struct {
	store kv.Store
}

// New builds a Manager over an already-open store.
func New(store kv.Store) *Manager {
	return &Manager{store: store}
}

func outKey(graph, vertex, edgePK string) []byte {
	return []byte(nsOut + graph + "\x00" + vertex + "\x00" + edgePK)
}

func inKey(graph, vertex, edgePK string) []byte {
	return []byte(nsIn + graph + "\x00" + vertex + "\x00" + edgePK)
}

// AddEdge indexes edge under both adjacency projections for graph.
func (m *Manager) AddEdge(graph string, edge types.Edge) error {
	if edge.From == "" || edge.To == "" {
		return kverrs.InvalidArgument.New("edge requires both from and to")
	}
	data, err := json.Marshal(edge)
	if err != nil {
		return kverrs.Internal.Wrap(err)
	}
	return m.store.WriteBatch([]kv.Op{
		kv.PutOp(outKey(graph, edge.From, edge.PK), data),
		kv.PutOp(inKey(graph, edge.To, edge.PK), data),
	})
}

// RemoveEdge removes edge's entries from both projections (spec §3
// Lifecycle: "destroyed by delete... removes all derived index entries
// in the same atomic batch").
func (m *Manager) RemoveEdge(graph string, edge types.Edge) error {
	return m.store.WriteBatch([]kv.Op{
		kv.DeleteOp(outKey(graph, edge.From, edge.PK)),
		kv.DeleteOp(inKey(graph, edge.To, edge.PK)),
	})
}

// Neighbors returns every edge touching vertex in the given direction.
// DirAny returns the union of outgoing and incoming edges.
func (m *Manager) Neighbors(graph, vertex string, dir types.Direction) ([]types.Edge, error) {
	switch dir {
	case types.DirOut:
		return m.scan(outKey(graph, vertex, ""))
	case types.DirIn:
		return m.scan(inKey(graph, vertex, ""))
	default:
		out, err := m.scan(outKey(graph, vertex, ""))
		if err != nil {
			return nil, err
		}
		in, err := m.scan(inKey(graph, vertex, ""))
		if err != nil {
			return nil, err
		}
		return append(out, in...), nil
	}
}

func (m *Manager) scan(prefix []byte) ([]types.Edge, error) {
	var edges []types.Edge
	err := m.store.ScanPrefix(prefix, func(_, v []byte) bool {
		var e types.Edge
		if json.Unmarshal(v, &e) == nil {
			edges = append(edges, e)
		}
		return true
	})
	return edges, err
}
