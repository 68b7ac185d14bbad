/*
Package log provides structured logging for warrendb using zerolog.

The package wraps zerolog to give every subsystem a JSON- or
console-formatted logger with a "component" field, plus small helpers for
collection, query, and CDC-sequence context.

# Usage

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})

	kvLog := log.WithComponent("kv")
	kvLog.Info().Str("path", dbPath).Msg("opened store")

	qLog := log.WithComponent("query").With().Str("query_id", id).Logger()
	qLog.Debug().Str("mode", string(plan.Mode)).Msg("plan selected")

Component names used across the engine: kv, index, vector,
timeseries, saga, engine, scheduler, reconciler.
*/
package log
