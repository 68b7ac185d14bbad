// Package vectorindex implements the vector index manager (spec §4.3):
// one HNSW graph per collection, with a PK<->internal-id map, atomic
// save/load, and lock-free metrics.
//
// No pack example repo carries an HNSW (or any ANN graph) implementation
// to ground this on, so the graph itself — layer assignment, greedy
// search, neighbor selection on insert — is hand-rolled following the
// standard Malkov & Yashunin construction the spec references. The
// surrounding shape (config struct, PK<->id bookkeeping, atomic
// save-to-tmp-then-rename persistence, lock-free counters) follows the
// teacher's conventions elsewhere in the module.
package vectorindex
