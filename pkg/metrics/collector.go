package metrics

import (
	"time"

	"github.com/cuemby/warrendb/pkg/engine"
)

// Collector periodically snapshots an Engine's owned state into the
// package's gauges.
type Collector struct {
	eng    *engine.Engine
	stopCh chan struct{}
}

// NewCollector creates a new metrics collector over eng.
func NewCollector(eng *engine.Engine) *Collector {
	return &Collector{
		eng:    eng,
		stopCh: make(chan struct{}),
	}
}

// Start begins collecting metrics on a 15-second interval.
func (c *Collector) Start() {
	ticker := time.NewTicker(15 * time.Second)
	go func() {
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	snap, err := c.eng.Snapshot()
	if err != nil {
		return
	}
	KVStoreBytes.Set(float64(snap.StoreBytes))
	IndexCount.Set(float64(snap.IndexCount))
	VectorCollectionsTotal.Set(float64(snap.VectorCollections))
	CDCSequence.Set(float64(snap.CDCSequence))
}
