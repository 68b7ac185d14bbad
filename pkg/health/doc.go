/*
Package health defines a small checker framework used to probe the
liveness of Engine-owned components: the KV backbone, the vector
index manager, and the CDC log.

A Checker reports a Result for a single probe; FuncChecker adapts a
plain in-process probe function (no network endpoint to dial) into
that interface.

	checks := map[string]health.Checker{
		"store": &health.FuncChecker{Probe: probeStore},
	}
	results := health.RunAll(ctx, checks)

Engine.Healthy builds its checker set this way and flattens the results
into a store-up/store-down summary for callers that don't need the
per-component detail.
*/
package health
