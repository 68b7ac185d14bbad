// Package reconciler periodically rebuilds secondary and vector indexes
// to repair drift between a collection's entities and its indexes —
// the kind of drift a crash between the entity write and the index
// write in a non-transactional deploy could leave behind, or that an
// operator restoring a checkpoint without its vector blobs introduces.
package reconciler

import (
	"sync"
	"time"

	"github.com/cuemby/warrendb/pkg/engine"
	"github.com/cuemby/warrendb/pkg/log"
	"github.com/cuemby/warrendb/pkg/metrics"
	"github.com/rs/zerolog"
)

// Reconciler rebuilds every indexed collection's secondary and vector
// indexes on a fixed interval.
type Reconciler struct {
	eng      *engine.Engine
	logger   zerolog.Logger
	interval time.Duration
	mu       sync.RWMutex
	stopCh   chan struct{}
}

// NewReconciler creates a reconciler over eng. A zero interval defaults
// to 10 seconds, matching the cadence the rest of the corpus reconciles
// at.
func NewReconciler(eng *engine.Engine, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Reconciler{
		eng:      eng,
		logger:   log.WithComponent("reconciler"),
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the reconciliation loop.
func (r *Reconciler) Start() {
	go r.run()
}

// Stop stops the reconciler.
func (r *Reconciler) Stop() {
	close(r.stopCh)
}

func (r *Reconciler) run() {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info().Msg("reconciler started")

	for {
		select {
		case <-ticker.C:
			if err := r.reconcile(); err != nil {
				r.logger.Error().Err(err).Msg("reconciliation cycle failed")
			}
		case <-r.stopCh:
			r.logger.Info().Msg("reconciler stopped")
			return
		}
	}
}

// reconcile performs one rebuild pass over every collection that has a
// registered secondary index.
func (r *Reconciler) reconcile() error {
	timer := metrics.NewTimer()
	defer func() {
		timer.ObserveDuration(metrics.ReconciliationDuration)
		metrics.ReconciliationCyclesTotal.Inc()
	}()

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, collection := range r.indexedCollections() {
		if err := r.eng.RebuildIndex(collection); err != nil {
			r.logger.Error().
				Err(err).
				Str("collection", collection).
				Msg("failed to rebuild indexes for collection")
		}
	}

	return nil
}

// indexedCollections returns the distinct collections with at least one
// registered secondary index descriptor.
func (r *Reconciler) indexedCollections() []string {
	seen := map[string]bool{}
	var out []string
	for _, d := range r.eng.Descriptors() {
		if seen[d.Collection] {
			continue
		}
		seen[d.Collection] = true
		out = append(out, d.Collection)
	}
	return out
}
