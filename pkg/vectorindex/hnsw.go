package vectorindex

import (
	"container/heap"
	"math"
	"math/rand"
	"sync"
	"sync/atomic"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
	"github.com/cuemby/warrendb/pkg/types"
)

// node is one HNSW graph vertex. links[l] holds the ids of its neighbors
// at layer l; links[0] is the base layer every live node participates in.
type node struct {
	id     uint32
	vector []float32
	links  [][]uint32
}

// counters are the spec §4.3 "Metrics (exported)" — free of locks via
// atomics so a search never contends with a concurrent insert's
// bookkeeping.
type counters struct {
	queries   uint64
	inserts   uint64
	removes   uint64
	updates   uint64
	candExam  uint64
	mbrChecks uint64
}

// Stats is a snapshot of Index's lock-free counters.
type Stats struct {
	Queries           uint64
	Inserts           uint64
	Removes           uint64
	Updates           uint64
	CandidatesExamine uint64
	MBRChecks         uint64
}

// Index is one collection's HNSW graph (spec §4.3 "Structure").
type Index struct {
	cfg types.VectorConfig

	mu         sync.RWMutex
	nodes      map[uint32]*node
	entryPoint uint32
	hasEntry   bool
	maxLevel   int
	levelMult  float64

	pkToID map[string]uint32
	idToPK map[uint32]string
	dead   map[uint32]bool
	nextID uint32

	rng *rand.Rand

	counters counters
}

// New allocates an empty HNSW index for cfg.
func New(cfg types.VectorConfig) *Index {
	return &Index{
		cfg:       cfg,
		nodes:     make(map[uint32]*node),
		pkToID:    make(map[string]uint32),
		idToPK:    make(map[uint32]string),
		dead:      make(map[uint32]bool),
		rng:       rand.New(rand.NewSource(1)),
		levelMult: 1 / math.Log(float64(max(cfg.M, 2))),
	}
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// Dim, Metric expose the configuration an Init call checked against on
// load (spec §4.3 "restores state and validates dim/metric match").
func (idx *Index) Dim() int           { return idx.cfg.Dim }
func (idx *Index) Metric() types.Metric { return idx.cfg.Metric }
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.pkToID)
}

func (idx *Index) Stats() Stats {
	return Stats{
		Queries:           atomic.LoadUint64(&idx.counters.queries),
		Inserts:           atomic.LoadUint64(&idx.counters.inserts),
		Removes:           atomic.LoadUint64(&idx.counters.removes),
		Updates:           atomic.LoadUint64(&idx.counters.updates),
		CandidatesExamine: atomic.LoadUint64(&idx.counters.candExam),
		MBRChecks:         atomic.LoadUint64(&idx.counters.mbrChecks),
	}
}

// distance returns the configured metric's distance between two vectors,
// oriented so ascending distance always means descending similarity
// (spec §4.3).
func (idx *Index) distance(a, b []float32) float32 {
	switch idx.cfg.Metric {
	case types.MetricCosine:
		var dot, na, nb float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
			na += float64(a[i]) * float64(a[i])
			nb += float64(b[i]) * float64(b[i])
		}
		if na == 0 || nb == 0 {
			return 1
		}
		return float32(1 - dot/(math.Sqrt(na)*math.Sqrt(nb)))
	case types.MetricDot:
		var dot float64
		for i := range a {
			dot += float64(a[i]) * float64(b[i])
		}
		return float32(-dot)
	default: // MetricL2
		var sum float64
		for i := range a {
			d := float64(a[i]) - float64(b[i])
			sum += d * d
		}
		return float32(math.Sqrt(sum))
	}
}

func (idx *Index) randomLevel() int {
	lvl := int(math.Floor(-math.Log(idx.rng.Float64()) * idx.levelMult))
	const capLevel = 32
	if lvl > capLevel {
		lvl = capLevel
	}
	return lvl
}

// candidate is one entry in the search frontier/result heaps.
type candidate struct {
	id   uint32
	dist float32
}

// minHeap/maxHeap over candidate.dist, used by the layer search.
type minHeap []candidate

func (h minHeap) Len() int            { return len(h) }
func (h minHeap) Less(i, j int) bool  { return h[i].dist < h[j].dist }
func (h minHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *minHeap) Push(x interface{}) { *h = append(*h, x.(candidate)) }
func (h *minHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

type maxHeap struct{ minHeap }

func (h maxHeap) Less(i, j int) bool { return h.minHeap[i].dist > h.minHeap[j].dist }

// searchLayer runs greedy best-first search on layer lc starting from the
// entry points in ep, returning up to ef nearest candidates to query.
func (idx *Index) searchLayer(query []float32, ep []uint32, ef, lc int) []candidate {
	visited := make(map[uint32]bool, len(ep))
	candidates := &minHeap{}
	results := &maxHeap{}

	for _, e := range ep {
		n, ok := idx.nodes[e]
		if !ok {
			continue
		}
		d := idx.distance(query, n.vector)
		visited[e] = true
		heap.Push(candidates, candidate{e, d})
		heap.Push(results, candidate{e, d})
	}

	for candidates.Len() > 0 {
		c := heap.Pop(candidates).(candidate)
		if results.Len() >= ef {
			worst := results.minHeap[0]
			if c.dist > worst.dist {
				break
			}
		}
		n, ok := idx.nodes[c.id]
		if !ok || lc >= len(n.links) {
			continue
		}
		atomic.AddUint64(&idx.counters.candExam, 1)
		for _, neighbor := range n.links[lc] {
			if visited[neighbor] {
				continue
			}
			visited[neighbor] = true
			nn, ok := idx.nodes[neighbor]
			if !ok {
				continue
			}
			d := idx.distance(query, nn.vector)
			if results.Len() < ef {
				heap.Push(candidates, candidate{neighbor, d})
				heap.Push(results, candidate{neighbor, d})
			} else if d < results.minHeap[0].dist {
				heap.Push(candidates, candidate{neighbor, d})
				heap.Push(results, candidate{neighbor, d})
				heap.Pop(results)
			}
		}
	}

	out := make([]candidate, results.Len())
	for i := len(out) - 1; i >= 0; i-- {
		out[i] = heap.Pop(results).(candidate)
	}
	return out
}

// selectNeighbors keeps the M closest candidates to query (the simple
// heuristic the spec leaves unconstrained, spec §4.3 implementer's
// choice).
func selectNeighbors(candidates []candidate, m int) []uint32 {
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	out := make([]uint32, len(candidates))
	for i, c := range candidates {
		out[i] = c.id
	}
	return out
}

// Insert adds vector under a fresh internal id and wires it into the
// graph, returning the assigned id.
func (idx *Index) insert(vector []float32) uint32 {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	id := idx.nextID
	idx.nextID++
	level := idx.randomLevel()
	n := &node{id: id, vector: vector, links: make([][]uint32, level+1)}
	idx.nodes[id] = n

	if !idx.hasEntry {
		idx.entryPoint = id
		idx.hasEntry = true
		idx.maxLevel = level
		atomic.AddUint64(&idx.counters.inserts, 1)
		return id
	}

	ep := []uint32{idx.entryPoint}
	for lc := idx.maxLevel; lc > level; lc-- {
		res := idx.searchLayer(vector, ep, 1, lc)
		if len(res) > 0 {
			ep = []uint32{res[0].id}
		}
	}

	mMax := idx.cfg.M
	for lc := min(level, idx.maxLevel); lc >= 0; lc-- {
		res := idx.searchLayer(vector, ep, idx.cfg.EfConstruction, lc)
		layerMax := mMax
		if lc == 0 {
			layerMax = mMax * 2
		}
		neighbors := selectNeighbors(res, layerMax)
		n.links[lc] = neighbors

		for _, nb := range neighbors {
			other := idx.nodes[nb]
			if other == nil || lc >= len(other.links) {
				continue
			}
			other.links[lc] = append(other.links[lc], id)
			if len(other.links[lc]) > layerMax {
				other.links[lc] = idx.pruneLinks(other, lc, layerMax)
			}
		}
		ep = neighbors
		if len(ep) == 0 {
			ep = []uint32{idx.entryPoint}
		}
	}

	if level > idx.maxLevel {
		idx.maxLevel = level
		idx.entryPoint = id
	}
	atomic.AddUint64(&idx.counters.inserts, 1)
	return id
}

func (idx *Index) pruneLinks(n *node, layer, limit int) []uint32 {
	cands := make([]candidate, 0, len(n.links[layer]))
	for _, nb := range n.links[layer] {
		other := idx.nodes[nb]
		if other == nil {
			continue
		}
		cands = append(cands, candidate{nb, idx.distance(n.vector, other.vector)})
	}
	for i := 1; i < len(cands); i++ {
		for j := i; j > 0 && cands[j].dist < cands[j-1].dist; j-- {
			cands[j], cands[j-1] = cands[j-1], cands[j]
		}
	}
	return selectNeighbors(cands, limit)
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}

// search performs a top-k' search for query starting from the graph's
// current entry point, ef controlling the base-layer beam width.
func (idx *Index) search(query []float32, k, ef int) []candidate {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if !idx.hasEntry {
		return nil
	}
	ep := []uint32{idx.entryPoint}
	for lc := idx.maxLevel; lc > 0; lc-- {
		res := idx.searchLayer(query, ep, 1, lc)
		if len(res) > 0 {
			ep = []uint32{res[0].id}
		}
	}
	if ef < k {
		ef = k
	}
	res := idx.searchLayer(query, ep, ef, 0)
	if len(res) > k {
		res = res[:k]
	}
	atomic.AddUint64(&idx.counters.queries, 1)
	return res
}

// AddEntity extracts cfg.Field from entity, validates its dimension, and
// inserts/replaces it (spec §4.3 "idempotent on repeated PKs").
func (idx *Index) AddEntity(e types.Entity) error {
	raw, ok := e.Fields[idx.cfg.Field]
	if !ok {
		return kverrs.InvalidArgument.New("entity missing vector field %q", idx.cfg.Field)
	}
	vec, err := toFloat32Slice(raw)
	if err != nil {
		return err
	}
	if len(vec) != idx.cfg.Dim {
		return kverrs.InvalidArgument.New("vector length %d does not match configured dim %d", len(vec), idx.cfg.Dim)
	}

	idx.mu.Lock()
	if oldID, exists := idx.pkToID[e.PK]; exists {
		idx.dead[oldID] = true
		delete(idx.idToPK, oldID)
	}
	idx.mu.Unlock()

	id := idx.insert(vec)

	idx.mu.Lock()
	idx.pkToID[e.PK] = id
	idx.idToPK[id] = e.PK
	idx.mu.Unlock()
	atomic.AddUint64(&idx.counters.updates, 1)
	return nil
}

// RemoveByPK marks pk's id dead; safe on unknown PKs.
func (idx *Index) RemoveByPK(pk string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	id, ok := idx.pkToID[pk]
	if !ok {
		return
	}
	idx.dead[id] = true
	delete(idx.pkToID, pk)
	delete(idx.idToPK, id)
	atomic.AddUint64(&idx.counters.removes, 1)
}

// SearchKNN performs top-k search, optionally restricted to whitelist
// (spec §4.3: over-fetch factor k' = max(k, min(len(whitelist), 4k))).
func (idx *Index) SearchKNN(query []float32, k int, whitelist []string) ([]types.VectorHit, error) {
	if len(query) != idx.cfg.Dim {
		return nil, kverrs.InvalidArgument.New("query vector length %d does not match configured dim %d", len(query), idx.cfg.Dim)
	}
	if k <= 0 {
		return nil, kverrs.InvalidArgument.New("k must be positive")
	}

	var allow map[string]bool
	kPrime := k
	if len(whitelist) > 0 {
		allow = make(map[string]bool, len(whitelist))
		for _, pk := range whitelist {
			allow[pk] = true
		}
		over := 4 * k
		if len(whitelist) < over {
			over = len(whitelist)
		}
		if over < k {
			over = k
		}
		kPrime = over
	}

	ef := idx.cfg.EfSearch
	if ef < kPrime {
		ef = kPrime
	}

	var hits []types.VectorHit
	for {
		res := idx.search(query, kPrime, ef)
		hits = hits[:0]
		idx.mu.RLock()
		for _, c := range res {
			if idx.dead[c.id] {
				continue
			}
			pk, ok := idx.idToPK[c.id]
			if !ok {
				continue
			}
			if allow != nil && !allow[pk] {
				continue
			}
			hits = append(hits, types.VectorHit{PK: pk, Distance: float64(c.dist)})
		}
		idx.mu.RUnlock()

		if len(hits) >= k || kPrime >= idx.Count() {
			break
		}
		kPrime *= 2
		ef = kPrime
	}
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func toFloat32Slice(v interface{}) ([]float32, error) {
	switch x := v.(type) {
	case []float32:
		return x, nil
	case []float64:
		out := make([]float32, len(x))
		for i, f := range x {
			out[i] = float32(f)
		}
		return out, nil
	case []interface{}:
		out := make([]float32, len(x))
		for i, e := range x {
			f, ok := e.(float64)
			if !ok {
				return nil, kverrs.InvalidArgument.New("vector element %d is not numeric", i)
			}
			out[i] = float32(f)
		}
		return out, nil
	default:
		return nil, kverrs.InvalidArgument.New("field is not a vector")
	}
}
