// Package store defines the contract of a single key-value node (IStore) and the
// error taxonomy shared by every layer of the system.
//
// Key Components:
//
//   - IStore Interface: put, get, delete and has on one node. Implementations
//     enforce the size limits (MaxKeySize, MaxValueSize) before touching any state.
//
//   - Error System: every failure is an *Error carrying a RetCode. The textual form
//     "<CodeName>: <message>" is what travels over the wire, ParseError turns it
//     back into a typed error on the receiving side. The sentinel errors
//     (ErrNotFound, ErrTimeout, ...) match by code with errors.Is.
//
// Implementations:
//
//	- Key-Value Node (kvnode): a write-through combination of a bounded LRU cache
//	  (lib/cache) and a storage engine (lib/db). Without an engine it acts as a
//	  pure cache, which is how the master keeps its read cache.
//	  Available in the "github.com/ValentinKolb/tpcKV/lib/store/kvnode" package.
package store
