// Package testing provides standardised tests, benchmarks and fault injection for
// storage engines that satisfy the db.KVDB interface.
//
// The package contains:
//   - RunKVDBTests: the conformance suite every engine must pass
//   - RunKVDBBenchmarks: throughput of set and get
//   - FlakyDB: a wrapper that fails a given number of calls, used to test callers
//     that must retry on I/O failures
//
// Example usage:
//
//	factory := func() db.KVDB {
//		return memory.NewMemoryDB()
//	}
//
//	dbtesting.RunKVDBTests(t, "MemoryDB", factory)
//	dbtesting.RunKVDBBenchmarks(b, "MemoryDB", factory)
package testing
