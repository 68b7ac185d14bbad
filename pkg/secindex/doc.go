// Package secindex implements the secondary index manager (spec §4.2):
// equality, range, composite, and full-text indexes, each a synthetic
// key-space layered on top of pkg/kv rather than a structure of its own.
//
// Every index entry's key is built so that a kv.Store.ScanPrefix over the
// index's namespace visits PKs in the order the index promises: ascending
// lexicographic byte order for equality and composite lookups, and
// semantic order for range lookups via the sortable encoding in
// keyenc.go. The PK lives in the key itself; index entries carry an empty
// value, so synchronizing an index on put/erase is just a key
// add/remove, not a read-modify-write.
package secindex
