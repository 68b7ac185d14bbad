package graphindex

import (
	"container/heap"

	"github.com/cuemby/warrendb/pkg/types"
)

// PathHop is one vertex in a ShortestPath result, carrying the edge PK
// used to reach it from the previous hop (empty for the start vertex)
// and the cumulative path weight from start up to and including this hop.
type PathHop struct {
	Vertex         string
	EdgePK         string
	CumulativeDist float64
}

// pqItem is one entry in the Dijkstra frontier.
type pqItem struct {
	vertex string
	dist   float64
}

type priorityQueue []pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i] }
func (pq *priorityQueue) Push(x interface{}) { *pq = append(*pq, x.(pqItem)) }
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[:n-1]
	return item
}

// ShortestPath runs Dijkstra over graph's adjacency in direction dir from
// start to end, using each edge's Weight (edges with no weight are
// treated as weight 1). Returns nil, false if end is unreachable.
func (m *Manager) ShortestPath(graph, start, end string, dir types.Direction) ([]PathHop, bool, error) {
	dist := map[string]float64{start: 0}
	prevEdge := map[string]string{}
	prevVertex := map[string]string{}
	visited := map[string]bool{}

	pq := &priorityQueue{{vertex: start, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(pqItem)
		if visited[cur.vertex] {
			continue
		}
		visited[cur.vertex] = true
		if cur.vertex == end {
			break
		}

		edges, err := m.Neighbors(graph, cur.vertex, dir)
		if err != nil {
			return nil, false, err
		}
		for _, e := range edges {
			next := e.To
			if dir == types.DirIn || (dir == types.DirAny && e.To == cur.vertex) {
				next = e.From
			}
			w := e.Weight
			if w == 0 {
				w = 1
			}
			nd := cur.dist + w
			if existing, ok := dist[next]; !ok || nd < existing {
				dist[next] = nd
				prevVertex[next] = cur.vertex
				prevEdge[next] = e.PK
				heap.Push(pq, pqItem{vertex: next, dist: nd})
			}
		}
	}

	if _, ok := dist[end]; !ok {
		return nil, false, nil
	}

	var hops []PathHop
	v := end
	for v != start {
		hops = append([]PathHop{{Vertex: v, EdgePK: prevEdge[v], CumulativeDist: dist[v]}}, hops...)
		v = prevVertex[v]
	}
	hops = append([]PathHop{{Vertex: start}}, hops...)
	return hops, true, nil
}
