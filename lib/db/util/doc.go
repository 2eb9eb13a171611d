// Package util provides the hash functions used across the system.
//
// The package contains:
//   - RingHash: places keys on the replica ring, stable across processes
//   - HashString: seeded FNV-1a, used to derive numeric slave ids from names
package util
