package secindex

import (
	"encoding/json"
	"sync"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
	"github.com/cuemby/warrendb/pkg/kv"
	"github.com/cuemby/warrendb/pkg/log"
	"github.com/cuemby/warrendb/pkg/types"
)

const (
	nsMeta      = "ix:meta:"
	nsEquality  = "ix:eq:"
	nsRange     = "ix:rg:"
	nsComposite = "ix:cp:"
)

// Manager owns every declared secondary index and keeps them synchronized
// with collection mutations through a single kv.Store handle (spec §4.2).
// It borrows the store; it never owns or closes it (spec §9).
type Manager struct {
	store kv.Store

	mu      sync.RWMutex
	byName  map[string]types.IndexDescriptor
	columns map[string][]types.IndexDescriptor // collection -> descriptors touching it
}

// New builds a Manager over an already-open store, loading any index
// descriptors persisted by a previous process.
func New(store kv.Store) (*Manager, error) {
	m := &Manager{
		store:   store,
		byName:  make(map[string]types.IndexDescriptor),
		columns: make(map[string][]types.IndexDescriptor),
	}
	if err := m.loadDescriptors(); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *Manager) loadDescriptors() error {
	return m.store.ScanPrefix([]byte(nsMeta), func(_, v []byte) bool {
		var d types.IndexDescriptor
		if err := json.Unmarshal(v, &d); err != nil {
			log.WithComponent("index").Warn().Err(err).Msg("skipping malformed index descriptor")
			return true
		}
		m.byName[d.Name()] = d
		m.columns[d.Collection] = append(m.columns[d.Collection], d)
		return true
	})
}

func metaKey(d types.IndexDescriptor) []byte {
	return []byte(nsMeta + d.Name())
}

func (m *Manager) register(d types.IndexDescriptor) error {
	data, err := json.Marshal(d)
	if err != nil {
		return kverrs.Internal.Wrap(err)
	}
	if err := m.store.Put(metaKey(d), data); err != nil {
		return err
	}
	m.mu.Lock()
	m.byName[d.Name()] = d
	m.columns[d.Collection] = append(m.columns[d.Collection], d)
	m.mu.Unlock()
	return nil
}

func (m *Manager) unregister(d types.IndexDescriptor) error {
	if err := m.store.Delete(metaKey(d)); err != nil {
		return err
	}
	m.mu.Lock()
	delete(m.byName, d.Name())
	cols := m.columns[d.Collection]
	for i, c := range cols {
		if c.Name() == d.Name() {
			m.columns[d.Collection] = append(cols[:i], cols[i+1:]...)
			break
		}
	}
	m.mu.Unlock()
	return nil
}

// CreateEquality declares an equality index on collection.column.
func (m *Manager) CreateEquality(collection, column string) error {
	return m.register(types.IndexDescriptor{Collection: collection, Kind: types.IndexEquality, Columns: []string{column}})
}

// CreateRange declares a range index on collection.column.
func (m *Manager) CreateRange(collection, column string) error {
	return m.register(types.IndexDescriptor{Collection: collection, Kind: types.IndexRange, Columns: []string{column}})
}

// CreateComposite declares a composite index over >=2 columns, in order.
func (m *Manager) CreateComposite(collection string, columns []string) error {
	if len(columns) < 2 {
		return kverrs.InvalidArgument.New("composite index requires at least 2 columns")
	}
	return m.register(types.IndexDescriptor{Collection: collection, Kind: types.IndexComposite, Columns: append([]string(nil), columns...)})
}

// DropEquality removes a previously created equality index and all of its
// entries.
func (m *Manager) DropEquality(collection, column string) error {
	return m.drop(types.IndexDescriptor{Collection: collection, Kind: types.IndexEquality, Columns: []string{column}})
}

// DropRange removes a previously created range index and all of its
// entries.
func (m *Manager) DropRange(collection, column string) error {
	return m.drop(types.IndexDescriptor{Collection: collection, Kind: types.IndexRange, Columns: []string{column}})
}

// DropComposite removes a previously created composite index and all of
// its entries.
func (m *Manager) DropComposite(collection string, columns []string) error {
	return m.drop(types.IndexDescriptor{Collection: collection, Kind: types.IndexComposite, Columns: columns})
}

func (m *Manager) drop(d types.IndexDescriptor) error {
	prefix := indexPrefix(d)
	var keys [][]byte
	if err := m.store.ScanPrefix(prefix, func(k, _ []byte) bool {
		keys = append(keys, append([]byte(nil), k...))
		return true
	}); err != nil {
		return err
	}
	ops := make([]kv.Op, 0, len(keys))
	for _, k := range keys {
		ops = append(ops, kv.DeleteOp(k))
	}
	if len(ops) > 0 {
		if err := m.store.WriteBatch(ops); err != nil {
			return err
		}
	}
	return m.unregister(d)
}

// Descriptors returns every registered index descriptor, used by the
// metrics collector to report index counts per collection.
func (m *Manager) Descriptors() []types.IndexDescriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]types.IndexDescriptor, 0, len(m.byName))
	for _, d := range m.byName {
		out = append(out, d)
	}
	return out
}

// HasEquality reports whether an equality index exists on collection.column.
func (m *Manager) HasEquality(collection, column string) bool {
	return m.has(types.IndexDescriptor{Collection: collection, Kind: types.IndexEquality, Columns: []string{column}})
}

// HasRange reports whether a range index exists on collection.column.
func (m *Manager) HasRange(collection, column string) bool {
	return m.has(types.IndexDescriptor{Collection: collection, Kind: types.IndexRange, Columns: []string{column}})
}

// HasComposite reports whether a composite index exists over columns.
func (m *Manager) HasComposite(collection string, columns []string) bool {
	return m.has(types.IndexDescriptor{Collection: collection, Kind: types.IndexComposite, Columns: columns})
}

func (m *Manager) has(d types.IndexDescriptor) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.byName[d.Name()]
	return ok
}

func indexPrefix(d types.IndexDescriptor) []byte {
	ns := nsEquality
	switch d.Kind {
	case types.IndexRange:
		ns = nsRange
	case types.IndexComposite:
		ns = nsComposite
	}
	key := ns + d.Collection + "\x00" + joinCols(d.Columns) + "\x00"
	return []byte(key)
}

func joinCols(cols []string) string {
	out := ""
	for i, c := range cols {
		if i > 0 {
			out += "\x00"
		}
		out += c
	}
	return out
}

func entryKey(d types.IndexDescriptor, values []interface{}, pk string) []byte {
	key := indexPrefix(d)
	for _, v := range values {
		key = append(key, encodeSortable(v)...)
		key = append(key, 0x00)
	}
	key = append(key, pk...)
	return key
}

// Put synchronizes every declared index for entity's collection within one
// atomic batch (spec §4.2).
func (m *Manager) Put(entity types.Entity) error {
	m.mu.RLock()
	descs := append([]types.IndexDescriptor(nil), m.columns[entity.Collection]...)
	m.mu.RUnlock()
	if len(descs) == 0 {
		return nil
	}
	var ops []kv.Op
	for _, d := range descs {
		values := make([]interface{}, len(d.Columns))
		for i, c := range d.Columns {
			values[i] = entity.Fields[c]
		}
		ops = append(ops, kv.PutOp(entryKey(d, values, entity.PK), nil))
	}
	return m.store.WriteBatch(ops)
}

// Erase removes pk's entries from every index on its collection, given the
// previous field values (so the correct encoded key can be removed). The
// caller supplies the prior entity since index entries are keyed by value,
// not by PK alone.
func (m *Manager) Erase(prior types.Entity) error {
	m.mu.RLock()
	descs := append([]types.IndexDescriptor(nil), m.columns[prior.Collection]...)
	m.mu.RUnlock()
	if len(descs) == 0 {
		return nil
	}
	var ops []kv.Op
	for _, d := range descs {
		values := make([]interface{}, len(d.Columns))
		for i, c := range d.Columns {
			values[i] = prior.Fields[c]
		}
		ops = append(ops, kv.DeleteOp(entryKey(d, values, prior.PK)))
	}
	return m.store.WriteBatch(ops)
}

// ScanKeysEqual returns every PK whose column equals value.
func (m *Manager) ScanKeysEqual(collection, column string, value interface{}) ([]string, error) {
	d := types.IndexDescriptor{Collection: collection, Kind: types.IndexEquality, Columns: []string{column}}
	if !m.has(d) {
		return nil, kverrs.InvalidArgument.New("no equality index on %s.%s", collection, column)
	}
	prefix := append(indexPrefix(d), encodeSortable(value)...)
	prefix = append(prefix, 0x00)
	return m.scanPKs(prefix)
}

// ScanKeysEqualComposite returns every PK whose columns equal values, in
// order; len(values) must equal len(columns).
func (m *Manager) ScanKeysEqualComposite(collection string, columns []string, values []interface{}) ([]string, error) {
	if len(columns) != len(values) {
		return nil, kverrs.InvalidArgument.New("column-count mismatch: %d columns, %d values", len(columns), len(values))
	}
	d := types.IndexDescriptor{Collection: collection, Kind: types.IndexComposite, Columns: columns}
	if !m.has(d) {
		return nil, kverrs.InvalidArgument.New("no composite index on %s", d.Name())
	}
	prefix := indexPrefix(d)
	for _, v := range values {
		prefix = append(prefix, encodeSortable(v)...)
		prefix = append(prefix, 0x00)
	}
	return m.scanPKs(prefix)
}

func (m *Manager) scanPKs(prefix []byte) ([]string, error) {
	var pks []string
	err := m.store.ScanPrefix(prefix, func(k, _ []byte) bool {
		pks = append(pks, string(k[len(prefix):]))
		return true
	})
	return pks, err
}

// ScanKeysRange returns PKs with column in [lower,upper] (bounds inclusive
// per include_lower/include_upper), up to limit, in ascending or
// descending order of the column's value.
func (m *Manager) ScanKeysRange(collection, column string, lower, upper interface{}, includeLower, includeUpper bool, limit int, descending bool) ([]string, error) {
	d := types.IndexDescriptor{Collection: collection, Kind: types.IndexRange, Columns: []string{column}}
	if !m.has(d) {
		return nil, kverrs.InvalidArgument.New("no range index on %s.%s", collection, column)
	}
	base := indexPrefix(d)

	var lowKey, highKey []byte
	if lower != nil {
		lk := append(append([]byte(nil), base...), encodeSortable(lower)...)
		if !includeLower {
			lk = append(lk, 0xFF) // skip exact matches on the bound
		}
		lowKey = lk
	} else {
		lowKey = base
	}
	if upper != nil {
		hk := append(append([]byte(nil), base...), encodeSortable(upper)...)
		hk = append(hk, 0x00)
		if includeUpper {
			hk = append(hk, 0xFF) // include entries whose PK suffix follows
		}
		highKey = hk
	}

	var matches [][]byte
	err := m.store.ScanPrefix(base, func(k, _ []byte) bool {
		if lowKey != nil && bytesLess(k, lowKey) {
			return true
		}
		if highKey != nil && bytesGreater(k, highKey) {
			return false
		}
		matches = append(matches, append([]byte(nil), k...))
		return true
	})
	if err != nil {
		return nil, err
	}

	if descending {
		for i, j := 0, len(matches)-1; i < j; i, j = i+1, j-1 {
			matches[i], matches[j] = matches[j], matches[i]
		}
	}
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	pks := make([]string, len(matches))
	for i, k := range matches {
		pks[i] = string(k[len(base):])
		// strip the encoded value, leaving just the trailing PK.
		if idx := lastNulIndex(pks[i]); idx >= 0 {
			pks[i] = pks[i][idx+1:]
		}
	}
	return pks, nil
}

func lastNulIndex(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		if s[i] == 0x00 {
			return i
		}
	}
	return -1
}

func bytesLess(a, b []byte) bool {
	return compareBytes(a, b) < 0
}

func bytesGreater(a, b []byte) bool {
	return compareBytes(a, b) > 0
}

func compareBytes(a, b []byte) int {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	for i := 0; i < n; i++ {
		if a[i] != b[i] {
			if a[i] < b[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	default:
		return 0
	}
}

// EstimateCountEqual samples cardinality by iterating up to cap entries
// (spec §4.2, §4.6.2).
func (m *Manager) EstimateCountEqual(collection, column string, value interface{}, cap int) (types.Estimation, error) {
	d := types.IndexDescriptor{Collection: collection, Kind: types.IndexEquality, Columns: []string{column}}
	if !m.has(d) {
		return types.Estimation{}, kverrs.InvalidArgument.New("no equality index on %s.%s", collection, column)
	}
	prefix := append(indexPrefix(d), encodeSortable(value)...)
	prefix = append(prefix, 0x00)
	return m.estimate(prefix, cap)
}

// EstimateCountEqualComposite is EstimateCountEqual over a composite key.
func (m *Manager) EstimateCountEqualComposite(collection string, columns []string, values []interface{}, cap int) (types.Estimation, error) {
	if len(columns) != len(values) {
		return types.Estimation{}, kverrs.InvalidArgument.New("column-count mismatch: %d columns, %d values", len(columns), len(values))
	}
	d := types.IndexDescriptor{Collection: collection, Kind: types.IndexComposite, Columns: columns}
	if !m.has(d) {
		return types.Estimation{}, kverrs.InvalidArgument.New("no composite index on %s", d.Name())
	}
	prefix := indexPrefix(d)
	for _, v := range values {
		prefix = append(prefix, encodeSortable(v)...)
		prefix = append(prefix, 0x00)
	}
	return m.estimate(prefix, cap)
}

func (m *Manager) estimate(prefix []byte, cap int) (types.Estimation, error) {
	var count int
	capped := false
	err := m.store.ScanPrefix(prefix, func(_, _ []byte) bool {
		count++
		if count >= cap {
			capped = true
			return false
		}
		return true
	})
	if err != nil {
		return types.Estimation{}, err
	}
	return types.Estimation{Count: count, Capped: capped}, nil
}
