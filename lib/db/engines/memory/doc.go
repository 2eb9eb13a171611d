// Package memory implements a volatile db.KVDB backed by xsync.MapOf.
// Values are copied on the way in and on the way out, so callers never share
// memory with the engine. All data is lost when the process exits.
package memory
