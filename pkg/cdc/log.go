package cdc

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	kverrs "github.com/cuemby/warrendb/pkg/errs"
	"github.com/cuemby/warrendb/pkg/kv"
	"github.com/cuemby/warrendb/pkg/types"
)

const (
	nsEvent     = "cdc:"
	seqKey      = "cdc:seq"
	pollBackoff = 20 * time.Millisecond
)

// Log is the append-only change data capture log.
type Log struct {
	store kv.Store

	mu     sync.Mutex
	notify chan struct{} // closed and replaced on every Record, wakes long-pollers
}

// New builds a Log over an already-open kv.Store.
func New(store kv.Store) *Log {
	return &Log{store: store, notify: make(chan struct{})}
}

func seqRowKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%s%020d", nsEvent, seq))
}

func encodeSeq(seq uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return b[:]
}

func decodeSeq(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.BigEndian.Uint64(b)
}

// LatestSequence reads the current maximum sequence (spec §4.5).
func (l *Log) LatestSequence() (uint64, error) {
	v, err := l.store.Get([]byte(seqKey))
	if err != nil {
		return 0, err
	}
	if v == nil {
		return 0, nil
	}
	return decodeSeq(v), nil
}

// Record atomically increments the sequence, stamps event, and writes
// it in the same batch as extraOps (e.g. the business mutation that
// triggered it), then wakes any long-polling List callers.
func (l *Log) Record(event types.ChangeEvent, extraOps ...kv.Op) (types.ChangeEvent, error) {
	current, err := l.LatestSequence()
	if err != nil {
		return types.ChangeEvent{}, err
	}
	next := current + 1
	event.Sequence = next

	data, err := json.Marshal(event)
	if err != nil {
		return types.ChangeEvent{}, kverrs.Internal.Wrap(err)
	}

	ops := make([]kv.Op, 0, len(extraOps)+2)
	ops = append(ops, extraOps...)
	ops = append(ops, kv.PutOp(seqRowKey(next), data), kv.PutOp([]byte(seqKey), encodeSeq(next)))

	if err := l.store.WriteBatch(ops); err != nil {
		return types.ChangeEvent{}, err
	}

	l.mu.Lock()
	close(l.notify)
	l.notify = make(chan struct{})
	l.mu.Unlock()

	return event, nil
}

func (l *Log) waitChan() chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.notify
}

func (l *Log) fetch(fromSeq uint64, limit int, keyPrefix string, changeType types.ChangeType) ([]types.ChangeEvent, error) {
	var out []types.ChangeEvent
	err := l.store.ScanPrefix([]byte(nsEvent), func(k, v []byte) bool {
		if string(k) == seqKey {
			return true
		}
		var ev types.ChangeEvent
		if err := json.Unmarshal(v, &ev); err != nil {
			return true
		}
		if ev.Sequence <= fromSeq {
			return true
		}
		if keyPrefix != "" && !strings.HasPrefix(ev.Key, keyPrefix) {
			return true
		}
		if changeType != "" && ev.Type != changeType {
			return true
		}
		out = append(out, ev)
		return true
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// List returns events with sequence > fromSequence matching the optional
// filters. If longPollMs > 0 and nothing is immediately available, the
// call blocks cooperatively — waking on Record's broadcast, with a short
// poll backoff as a fallback — until either an event arrives or the
// timeout elapses (spec §4.5).
func (l *Log) List(fromSequence uint64, limit int, keyPrefix string, changeType types.ChangeType, longPollMs int) ([]types.ChangeEvent, error) {
	events, err := l.fetch(fromSequence, limit, keyPrefix, changeType)
	if err != nil {
		return nil, err
	}
	if len(events) > 0 || longPollMs <= 0 {
		return events, nil
	}

	deadline := time.Now().Add(time.Duration(longPollMs) * time.Millisecond)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return events, nil
		}
		wait := remaining
		if wait > pollBackoff {
			wait = pollBackoff
		}

		select {
		case <-l.waitChan():
		case <-time.After(wait):
		}

		events, err = l.fetch(fromSequence, limit, keyPrefix, changeType)
		if err != nil {
			return nil, err
		}
		if len(events) > 0 {
			return events, nil
		}
	}
}

// DeleteBefore removes every event with sequence < sequence (spec §4.5).
func (l *Log) DeleteBefore(sequence uint64) error {
	var ops []kv.Op
	err := l.store.ScanPrefix([]byte(nsEvent), func(k, v []byte) bool {
		if string(k) == seqKey {
			return true
		}
		var ev types.ChangeEvent
		if err := json.Unmarshal(v, &ev); err != nil {
			return true
		}
		if ev.Sequence < sequence {
			ops = append(ops, kv.DeleteOp(append([]byte(nil), k...)))
		}
		return true
	})
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	return l.store.WriteBatch(ops)
}

// Clear removes every event row but preserves the sequence counter, so
// sequences never repeat even after a clear (spec §4.5 invariant).
func (l *Log) Clear() error {
	var ops []kv.Op
	err := l.store.ScanPrefix([]byte(nsEvent), func(k, _ []byte) bool {
		if string(k) == seqKey {
			return true
		}
		ops = append(ops, kv.DeleteOp(append([]byte(nil), k...)))
		return true
	})
	if err != nil {
		return err
	}
	if len(ops) == 0 {
		return nil
	}
	return l.store.WriteBatch(ops)
}
