package scheduler

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/cuemby/warrendb/pkg/engine"
	"github.com/cuemby/warrendb/pkg/types"
)

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.New(engine.Config{StorePath: filepath.Join(t.TempDir(), "warrendb.db")})
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestNewSchedulerDefaultsInterval(t *testing.T) {
	e := newTestEngine(t)
	s := NewScheduler(e, Config{})
	if s.cfg.Interval != 5*time.Second {
		t.Fatalf("expected default interval of 5s, got %v", s.cfg.Interval)
	}
}

func TestSweepSkipsDisabledStages(t *testing.T) {
	e := newTestEngine(t)
	s := NewScheduler(e, Config{Interval: time.Hour})
	if err := s.sweep(); err != nil {
		t.Fatalf("sweep with no sweeps configured should be a no-op: %v", err)
	}
}

func TestSweepRunsTSRetention(t *testing.T) {
	e := newTestEngine(t)
	now := time.Now().UnixMilli()
	if err := e.TSPut(types.Point{Metric: "cpu", Entity: "host1", Timestamp: now - 10_000, Value: 1}); err != nil {
		t.Fatalf("TSPut: %v", err)
	}

	s := NewScheduler(e, Config{Interval: time.Hour, TSRetention: time.Millisecond})
	if err := s.sweep(); err != nil {
		t.Fatalf("sweep: %v", err)
	}
}

func TestPruneCDCKeepsMostRecent(t *testing.T) {
	e := newTestEngine(t)
	for i := 0; i < 5; i++ {
		if _, _, err := e.Upsert("users", "u1", map[string]interface{}{"n": int64(i)}); err != nil {
			t.Fatalf("Upsert: %v", err)
		}
	}

	s := NewScheduler(e, Config{Interval: time.Hour, CDCRetentionKeep: 2})
	if err := s.pruneCDC(); err != nil {
		t.Fatalf("pruneCDC: %v", err)
	}

	latest, err := e.CDCLatestSequence()
	if err != nil {
		t.Fatalf("CDCLatestSequence: %v", err)
	}
	events, err := e.CDCList(0, 100, "", "", 0)
	if err != nil {
		t.Fatalf("CDCList: %v", err)
	}
	cutoff := latest - 2
	for _, ev := range events {
		if ev.Sequence < cutoff {
			t.Fatalf("expected retention to prune sequence %d older than %d", ev.Sequence, cutoff)
		}
	}
}
