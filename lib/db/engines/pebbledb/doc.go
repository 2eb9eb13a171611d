// Package pebbledb implements a durable db.KVDB on top of cockroachdb/pebble.
//
// Every Set and Delete is written with pebble.Sync unless DBOptions.NoSync is set,
// so a successful call survives a process crash. Keys are stored verbatim, values
// are copied out of pebble before Get returns.
//
// The file system can be swapped through DBOptions.FS, tests use vfs.NewMem().
package pebbledb
