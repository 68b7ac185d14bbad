package saga

import (
	"fmt"
	"runtime"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/cuemby/warrendb/pkg/log"
)

// CompensationFn undoes one forward step. It must be idempotent: calling
// it twice (e.g. once explicitly, once via the finalizer backstop) must
// have the same effect as calling it once.
type CompensationFn func() error

type step struct {
	name        string
	compensate  CompensationFn
	compensated bool
}

// Coordinator is a single-transaction SAGA: add a step after each
// successful forward mutation, Commit when the whole transaction
// succeeds, or Compensate to unwind in reverse order on failure. A
// Coordinator is not thread-safe across transactions — build one per
// logical transaction, never share it.
type Coordinator struct {
	mu    sync.Mutex
	steps []*step
	done  bool
}

// New builds a Coordinator and arms a best-effort finalizer: if the
// caller drops the Coordinator without calling Commit or Compensate,
// the finalizer runs Compensate on GC as a backstop. Finalizer timing
// is not guaranteed — callers should still call Commit/Compensate
// explicitly on every path.
func New() *Coordinator {
	c := &Coordinator{}
	runtime.SetFinalizer(c, func(c *Coordinator) { _ = c.Compensate() })
	return c
}

// AddStep records a compensation for a forward step that just succeeded.
func (c *Coordinator) AddStep(name string, compensate CompensationFn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.steps = append(c.steps, &step{name: name, compensate: compensate})
}

// Commit marks the transaction successful; Compensate becomes a no-op
// afterward.
func (c *Coordinator) Commit() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done = true
}

// Compensate runs every uncompensated step's compensation in reverse
// order. Each is isolated (recovered panic, accumulated error) so one
// failing compensation never prevents the rest from running. Calling
// Compensate after Commit, or more than once, is a no-op.
func (c *Coordinator) Compensate() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return nil
	}
	c.done = true

	var result *multierror.Error
	for i := len(c.steps) - 1; i >= 0; i-- {
		s := c.steps[i]
		if s.compensated {
			continue
		}
		if err := runCompensation(s); err != nil {
			result = multierror.Append(result, fmt.Errorf("step %q: %w", s.name, err))
			log.WithComponent("saga").Warn().Err(err).Str("step", s.name).Msg("compensation failed")
		}
		s.compensated = true
	}
	return result.ErrorOrNil()
}

func runCompensation(s *step) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return s.compensate()
}

// CaptureOldValue is the spec's "core provides helpers that capture
// old-values-if-present before mutation" idiom: it builds a
// compensation closure that restores prior to its captured value, or
// deletes it if there was no prior value, on undo.
func CaptureOldValue(old interface{}, hadOld bool, restore func(interface{}) error, delete func() error) CompensationFn {
	return func() error {
		if hadOld {
			return restore(old)
		}
		return delete()
	}
}
