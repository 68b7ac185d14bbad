/*
Package kv implements the keyed storage backbone every higher-level index
in warrendb is built on (spec §4.1).

It wraps go.etcd.io/bbolt in a single flat bucket addressed by raw byte
keys, which is what lets ScanPrefix walk an arbitrary key namespace
("users:", "idx:eq:users:city:", "ts:cpu:", "cdc:", ...) with a single
cursor seek. bbolt's B+tree gives the ordering and the atomic transaction
semantics the spec's write_batch requires; it does not give per-level
compression or bloom filters the way a true LSM would, so this package
layers both on top: values are compressed at Put time with the configured
codec, and each Store keeps an in-memory xxhash-keyed Bloom filter sized
by bloom_bits_per_key to short-circuit misses before touching bbolt.
*/
package kv
