package kv

import (
	"bytes"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
	"github.com/cuemby/warrendb/pkg/log"
)

var dataBucket = []byte("kv")

// BoltStore implements Store on top of go.etcd.io/bbolt (see package doc
// for why a B+tree stands in for the spec's LSM backbone).
type BoltStore struct {
	db    *bolt.DB
	cfg   Config
	bloom *bloomFilter
}

// Open creates or opens a bbolt-backed Store at cfg.Path.
func Open(cfg Config) (*BoltStore, error) {
	if cfg.Path == "" {
		return nil, kverrs.InvalidArgument.New("storage path is required")
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, kverrs.IO.Wrap(err)
	}
	db, err := bolt.Open(cfg.Path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, kverrs.IO.Wrap(err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(dataBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, kverrs.IO.Wrap(err)
	}

	s := &BoltStore{
		db:    db,
		cfg:   cfg,
		bloom: newBloomFilter(1024, cfg.BloomBitsPerKey),
	}
	if err := s.warmBloom(); err != nil {
		db.Close()
		return nil, err
	}
	log.WithComponent("kv").Info().Str("path", cfg.Path).Msg("opened store")
	return s, nil
}

func (s *BoltStore) warmBloom() error {
	return s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			s.bloom.Add(k)
		}
		return nil
	})
}

func (s *BoltStore) Get(key []byte) ([]byte, error) {
	if !s.bloom.MaybeContains(key) {
		return nil, nil
	}
	var out []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(dataBucket).Get(key)
		if v == nil {
			return nil
		}
		out = append([]byte(nil), v...)
		return nil
	})
	if err != nil {
		return nil, kverrs.IO.Wrap(err)
	}
	if out == nil {
		return nil, nil
	}
	return decompress(out)
}

func (s *BoltStore) Put(key, value []byte) error {
	return s.WriteBatch([]Op{PutOp(key, value)})
}

func (s *BoltStore) Delete(key []byte) error {
	return s.WriteBatch([]Op{DeleteOp(key)})
}

func (s *BoltStore) ScanPrefix(prefix []byte, visit Visitor) error {
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(dataBucket).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			val, derr := decompress(v)
			if derr != nil {
				return derr
			}
			if !visit(append([]byte(nil), k...), val) {
				break
			}
		}
		return nil
	})
	if err != nil {
		return kverrs.IO.Wrap(err)
	}
	return nil
}

func (s *BoltStore) WriteBatch(ops []Op) error {
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		for _, op := range ops {
			switch op.Type {
			case OpPut:
				enc, err := compress(op.Value, s.cfg.CompressionDefault)
				if err != nil {
					return err
				}
				if err := b.Put(op.Key, enc); err != nil {
					return err
				}
			case OpDelete:
				if err := b.Delete(op.Key); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return kverrs.IO.Wrap(err)
	}
	for _, op := range ops {
		if op.Type == OpPut {
			s.bloom.Add(op.Key)
		}
	}
	return nil
}

// Checkpoint writes a physically-consistent snapshot to dir/<basename> by
// copying the whole bbolt file from within a read transaction, matching
// bbolt's documented hot-backup recipe.
func (s *BoltStore) Checkpoint(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return kverrs.IO.Wrap(err)
	}
	dst := filepath.Join(dir, filepath.Base(s.cfg.Path))
	f, err := os.Create(dst)
	if err != nil {
		return kverrs.IO.Wrap(err)
	}
	defer f.Close()
	err = s.db.View(func(tx *bolt.Tx) error {
		_, err := tx.WriteTo(f)
		return err
	})
	if err != nil {
		return kverrs.IO.Wrap(err)
	}
	return nil
}

// Restore opens a store from a checkpoint directory previously produced
// by Checkpoint, copying it into cfg.Path first.
func Restore(cfg Config, checkpointDir string) (*BoltStore, error) {
	src := filepath.Join(checkpointDir, filepath.Base(cfg.Path))
	data, err := os.ReadFile(src)
	if err != nil {
		return nil, kverrs.IO.Wrap(err)
	}
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, kverrs.IO.Wrap(err)
	}
	if err := os.WriteFile(cfg.Path, data, 0o600); err != nil {
		return nil, kverrs.IO.Wrap(err)
	}
	return Open(cfg)
}

// Compact rewrites every key with CompressionBottommost applied, the
// closest bbolt analog to an LSM's bottommost-level recompaction.
func (s *BoltStore) Compact() error {
	type kvpair struct{ k, v []byte }
	var all []kvpair
	if err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(dataBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			raw, err := decompress(v)
			if err != nil {
				return err
			}
			all = append(all, kvpair{append([]byte(nil), k...), raw})
		}
		return nil
	}); err != nil {
		return kverrs.IO.Wrap(err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(dataBucket)
		for _, p := range all {
			enc, err := compress(p.v, s.cfg.CompressionBottommost)
			if err != nil {
				return err
			}
			if err := b.Put(p.k, enc); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *BoltStore) ApproximateSize() (int64, error) {
	info, err := os.Stat(s.cfg.Path)
	if err != nil {
		return 0, kverrs.IO.Wrap(err)
	}
	return info.Size(), nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
