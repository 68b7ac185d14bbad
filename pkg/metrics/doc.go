/*
Package metrics defines and registers warrendb's Prometheus metrics: KV
backbone size, secondary/vector index counts, time-series ingestion and
retention, CDC sequence position, query execution latency by plan mode,
and SAGA compensation activity. Metrics are exposed via the handler
returned by Handler for scraping by a Prometheus server.

Collector snapshots a running *engine.Engine on an interval and updates
the package's gauges. Of the counters and histograms, pkg/scheduler
observes the time-series and CDC retention durations and pkg/reconciler
the reconciliation duration and cycle count; the query, SAGA, index
rebuild, vector search and time-series ingestion families are
registered, but no code in this module updates them.
*/
package metrics
