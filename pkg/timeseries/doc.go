// Package timeseries implements the time-series store (spec §4.4): raw
// point storage, Gorilla-chunked storage, range queries, aggregation, and
// retention, all layered over pkg/kv the same way pkg/secindex and
// pkg/graphindex are — two coexisting key-space layouts rather than a
// dedicated storage engine.
package timeseries
