// Package db provides a standardized interface for the storage engines below a
// key-value node.
//
// The KVDB interface is deliberately small: set, get, delete and close. Engines do
// not validate keys or values and do not cache; that is the job of the node in
// lib/store/kvnode. Any error an engine returns is reported to clients as a
// storage I/O failure.
//
// Engines:
//
//   - pebbledb (github.com/ValentinKolb/tpcKV/lib/db/engines/pebbledb): durable
//     engine backed by cockroachdb/pebble, every write is synced.
//   - memory (github.com/ValentinKolb/tpcKV/lib/db/engines/memory): volatile
//     engine backed by a concurrent hash map, used by tests and throwaway nodes.
//
// The testing package (github.com/ValentinKolb/tpcKV/lib/db/testing) provides a
// conformance suite (RunKVDBTests) every engine must pass and a fault-injecting
// wrapper (NewFlakyDB) for exercising retry paths.
package db
