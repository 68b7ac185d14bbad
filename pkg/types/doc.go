/*
Package types defines the core data structures shared across warrendb.

This package holds the domain model that every other package builds on:
entities and collections, the four secondary index flavors, vector index
configuration, time-series points, change events, and the query engine's
AST and plan shapes. Nothing in here talks to storage directly; it is the
vocabulary the rest of the engine speaks.

# Core Types

Data model (spec §3):
  - Entity: a document with a PK and a field map
  - ValueKind: the tag for the scalar/vector/object kind a field can hold
  - IndexKind: equality, range, composite, full-text
  - VectorConfig, Metric: HNSW index parameters
  - Edge: directed, optionally weighted graph edge
  - Point: a single time-series sample
  - ChangeEvent, ChangeType: CDC log entries

Query engine (spec §4.6, §9):
  - Query: a tagged variant, one arm per query shape
  - Expr: a tagged variant expression tree
  - Plan: the result of translation + optimization, returned by `explain`

All types are plain structs with JSON tags; there is no hidden behavior
here beyond small constructors and validation helpers.
*/
package types
