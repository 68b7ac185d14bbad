package health

import (
	"context"
	"time"
)

// CheckType categorizes how a Checker reaches the thing it probes.
type CheckType string

// CheckTypeExec marks a checker that probes a component in-process by
// calling a Go function directly, with no network endpoint to dial.
const CheckTypeExec CheckType = "exec"

// Result is the outcome of a single health check.
type Result struct {
	Healthy   bool
	Message   string
	CheckedAt time.Time
	Duration  time.Duration
}

// Checker is the interface every health checker implements.
type Checker interface {
	// Check performs the health check and returns the result.
	Check(ctx context.Context) Result

	// Type returns the type of health check.
	Type() CheckType
}
