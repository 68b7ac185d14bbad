package health

import (
	"context"
	"time"
)

// ProbeFunc performs a single point-in-time component probe, returning
// a non-nil error when the component is unhealthy.
type ProbeFunc func(ctx context.Context) error

// FuncChecker adapts a ProbeFunc to the Checker interface. It's used
// for in-process component checks (the KV backbone, a vector index, the
// CDC log) that have no network endpoint to dial — the check just calls
// into the component directly.
type FuncChecker struct {
	CheckName string
	Probe     ProbeFunc
}

// Type reports this checker as an exec-style check: it runs in-process
// rather than dialing out.
func (c *FuncChecker) Type() CheckType { return CheckTypeExec }

// Check runs Probe and converts its error (if any) into a Result.
func (c *FuncChecker) Check(ctx context.Context) Result {
	start := time.Now()
	err := c.Probe(ctx)
	res := Result{CheckedAt: start, Duration: time.Since(start)}
	if err != nil {
		res.Message = err.Error()
		return res
	}
	res.Healthy = true
	res.Message = "ok"
	return res
}

// RunAll runs every checker in checks and returns each Result keyed by
// name, used by Engine.Healthy to assemble a component-by-component
// health snapshot.
func RunAll(ctx context.Context, checks map[string]Checker) map[string]Result {
	out := make(map[string]Result, len(checks))
	for name, c := range checks {
		out[name] = c.Check(ctx)
	}
	return out
}
