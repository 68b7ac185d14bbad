package vectorindex

import (
	"os"
	"sync"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
	"github.com/cuemby/warrendb/pkg/log"
	"github.com/cuemby/warrendb/pkg/types"
)

// Manager owns one HNSW Index per collection (spec §4.3: "the vector
// index is a process-wide shared singleton per collection").
type Manager struct {
	mu      sync.RWMutex
	indexes map[string]*Index
}

// NewManager builds an empty vector index manager.
func NewManager() *Manager {
	return &Manager{indexes: make(map[string]*Index)}
}

// Init allocates collection's vector index. If cfg.LoadPath is non-empty
// and the file exists, state is restored and validated against
// dim/metric; otherwise the index starts empty (spec §4.3 "init").
func (m *Manager) Init(cfg types.VectorConfig) error {
	var idx *Index
	if cfg.LoadPath != "" {
		if _, err := os.Stat(cfg.LoadPath); err == nil {
			loaded, lerr := Load(cfg.LoadPath, cfg)
			if lerr != nil {
				return lerr
			}
			idx = loaded
			log.WithComponent("vector").Info().Str("collection", cfg.Collection).Str("path", cfg.LoadPath).Msg("restored vector index")
		}
	}
	if idx == nil {
		idx = New(cfg)
	}

	m.mu.Lock()
	m.indexes[cfg.Collection] = idx
	m.mu.Unlock()
	return nil
}

func (m *Manager) get(collection string) (*Index, error) {
	m.mu.RLock()
	idx, ok := m.indexes[collection]
	m.mu.RUnlock()
	if !ok {
		return nil, kverrs.InvalidArgument.New("no vector index initialized for %q", collection)
	}
	return idx, nil
}

// AddEntity extracts and inserts collection's configured vector field
// from entity.
func (m *Manager) AddEntity(collection string, entity types.Entity) error {
	idx, err := m.get(collection)
	if err != nil {
		return err
	}
	return idx.AddEntity(entity)
}

// RemoveByPK marks pk dead in collection's index; safe on unknown PKs.
func (m *Manager) RemoveByPK(collection, pk string) error {
	idx, err := m.get(collection)
	if err != nil {
		return err
	}
	idx.RemoveByPK(pk)
	return nil
}

// SearchKNN runs a top-k search against collection's index.
func (m *Manager) SearchKNN(collection string, query []float32, k int, whitelist []string) ([]types.VectorHit, error) {
	idx, err := m.get(collection)
	if err != nil {
		return nil, err
	}
	return idx.SearchKNN(query, k, whitelist)
}

// Save persists collection's index to path.
func (m *Manager) Save(collection, path string) error {
	idx, err := m.get(collection)
	if err != nil {
		return err
	}
	return idx.Save(path)
}

// Stats returns collection's lock-free counters.
func (m *Manager) Stats(collection string) (Stats, error) {
	idx, err := m.get(collection)
	if err != nil {
		return Stats{}, err
	}
	return idx.Stats(), nil
}

// Collections lists every initialized collection, for shutdown save
// sweeps driven by the engine.
func (m *Manager) Collections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.indexes))
	for c := range m.indexes {
		out = append(out, c)
	}
	return out
}
