package engine

import (
	"encoding/json"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
	"github.com/cuemby/warrendb/pkg/kv"
	"github.com/cuemby/warrendb/pkg/types"
)

// nsEntity namespaces entity rows so they never collide with
// secindex/graphindex/cdc/timeseries keys sharing the same store.
const nsEntity = "ent:"

func entityKey(collection, pk string) []byte {
	return []byte(nsEntity + collection + "\x00" + pk)
}

func entityPrefix(collection string) []byte {
	return []byte(nsEntity + collection + "\x00")
}

func decodeEntityKey(k []byte) (collection, pk string, ok bool) {
	s := string(k)
	if len(s) <= len(nsEntity) {
		return "", "", false
	}
	s = s[len(nsEntity):]
	for i := 0; i < len(s); i++ {
		if s[i] == '\x00' {
			return s[:i], s[i+1:], true
		}
	}
	return "", "", false
}

// entityStore implements pkg/query.EntityStore directly over a
// kv.Store, JSON-encoding each entity's Fields map as the row value
// (spec §4.1's KV backbone is the sole source of truth for entity
// contents; every index is a derived projection).
type entityStore struct {
	store kv.Store
}

func newEntityStore(store kv.Store) *entityStore {
	return &entityStore{store: store}
}

func (s *entityStore) get(collection, pk string) (types.Entity, bool, error) {
	raw, err := s.store.Get(entityKey(collection, pk))
	if err != nil {
		return types.Entity{}, false, err
	}
	if raw == nil {
		return types.Entity{}, false, nil
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return types.Entity{}, false, kverrs.Internal.Wrap(err)
	}
	return types.Entity{PK: pk, Collection: collection, Fields: fields}, true, nil
}

// Get satisfies query.EntityStore.
func (s *entityStore) Get(collection, pk string) (types.Entity, bool, error) {
	return s.get(collection, pk)
}

// ScanCollection satisfies query.EntityStore, visiting every entity row
// under collection in ascending PK order.
func (s *entityStore) ScanCollection(collection string, visit func(types.Entity) (bool, error)) error {
	var visitErr error
	err := s.store.ScanPrefix(entityPrefix(collection), func(key, value []byte) bool {
		_, pk, ok := decodeEntityKey(key)
		if !ok {
			return true
		}
		var fields map[string]interface{}
		if err := json.Unmarshal(value, &fields); err != nil {
			visitErr = kverrs.Internal.Wrap(err)
			return false
		}
		more, err := visit(types.Entity{PK: pk, Collection: collection, Fields: fields})
		if err != nil {
			visitErr = err
			return false
		}
		return more
	})
	if visitErr != nil {
		return visitErr
	}
	return err
}

func encodeEntityValue(fields map[string]interface{}) ([]byte, error) {
	b, err := json.Marshal(fields)
	if err != nil {
		return nil, kverrs.Internal.Wrap(err)
	}
	return b, nil
}

// cteEntityStore layers materialized CTE result sets (keyed by CTE
// name) over the real entityStore, so a FOR clause scanning a CTE name
// and a FOR clause scanning a real collection go through the same
// query.EntityStore seam (spec §4.6.4).
type cteEntityStore struct {
	real *entityStore
	ctes map[string][]types.Entity
}

func (s *cteEntityStore) Get(collection, pk string) (types.Entity, bool, error) {
	if rows, ok := s.ctes[collection]; ok {
		for _, e := range rows {
			if e.PK == pk {
				return e, true, nil
			}
		}
		return types.Entity{}, false, nil
	}
	return s.real.Get(collection, pk)
}

func (s *cteEntityStore) ScanCollection(collection string, visit func(types.Entity) (bool, error)) error {
	if rows, ok := s.ctes[collection]; ok {
		for _, e := range rows {
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
	return s.real.ScanCollection(collection, visit)
}
