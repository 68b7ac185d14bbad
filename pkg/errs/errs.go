// Package errs defines the typed error kinds surfaced across warrendb
// (spec §7), implemented as zeebo/errs classes so callers can test error
// identity with errors.Is against a named class instead of string
// matching.
package errs

import "github.com/zeebo/errs"

var (
	// InvalidArgument signals a caller-provided violation: bad dimension,
	// missing required field, empty metric, column-count mismatch,
	// unknown index.
	InvalidArgument = errs.Class("invalid argument")

	// NotFound signals a key or CTE name absent from the current scope.
	NotFound = errs.Class("not found")

	// Conflict signals an index invariant violation.
	Conflict = errs.Class("conflict")

	// IO signals an underlying KV or file failure.
	IO = errs.Class("io")

	// Timeout signals a deadline exceeded at a cooperative checkpoint.
	Timeout = errs.Class("timeout")

	// Cancelled signals caller-requested cancellation.
	Cancelled = errs.Class("cancelled")

	// Internal signals a broken invariant; the operation fails but the
	// store remains consistent.
	Internal = errs.Class("internal")

	// Runtime signals an expression-level failure during query
	// execution (division by zero, type mismatch on arithmetic).
	Runtime = errs.Class("runtime")
)
