// Package kvnode implements store.IStore as a write-through combination of a
// bounded LRU cache and a storage engine.
//
// Writes go to the engine first and reach the cache only after the engine
// accepted them, so the cache never holds data the engine does not have. Reads
// are served from the cache and fill it on a miss. Size limits are checked
// before any state is touched.
//
// A node created with NewCacheOnlyNode has no engine. The master uses such a node
// as its read cache: puts and deletes only touch the cache and a miss is
// reported as store.ErrNotFound.
package kvnode
