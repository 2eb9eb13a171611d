package db

import "errors"

// --------------------------------------------------------------------------
// Helper Types
// --------------------------------------------------------------------------

type Implementation string

const (
	ImplPebble Implementation = "pebble"
	ImplMemory Implementation = "memory"
)

// ErrClosed is returned by every operation on a closed database.
var ErrClosed = errors.New("db: database is closed")

// --------------------------------------------------------------------------
// Database Interface
// --------------------------------------------------------------------------

// KVDB defines an interface for key-value storage engines.
// Implementations must be safe for concurrent use. Every error returned is
// treated as an I/O failure by the callers.
type KVDB interface {

	// --------------------------------------------------------------------------
	// Write Operations
	// --------------------------------------------------------------------------

	// Set inserts or updates an entry. The write must be durable when the call returns
	// (for engines that persist at all).
	Set(key string, value []byte) (err error)

	// Delete removes an entry. Deleting a missing key is not an error.
	Delete(key string) (err error)

	// --------------------------------------------------------------------------
	// Query Operations
	// --------------------------------------------------------------------------

	// Get retrieves the value for an exact key.
	// The boolean return value indicates whether a value for the key was found.
	// The returned slice is owned by the caller.
	Get(key string) (value []byte, loaded bool, err error)

	// --------------------------------------------------------------------------
	// Lifecycle
	// --------------------------------------------------------------------------

	// Implementation returns the name of the engine.
	Implementation() Implementation

	// Close closes the database.
	Close() (err error)
}
