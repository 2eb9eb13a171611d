// Package cache implements the bounded LRU cache that sits in front of every
// key-value node and of the master.
//
// The cache is built on hashicorp/golang-lru's simplelru and is safe for
// concurrent use. Values are copied on Put and on Get. Hits, misses and
// evictions are counted in a rcrowley/go-metrics registry, which can be
// logged periodically with LogStats.
package cache
