package pebbledb

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/ValentinKolb/tpcKV/lib/db"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
)

// pebbleImpl stores every entry as a single pebble key
type pebbleImpl struct {
	db     *pebble.DB
	write  *pebble.WriteOptions
	closed atomic.Bool
}

// DBOptions configures the pebble engine
type DBOptions struct {
	Dir    string // Directory of the pebble database
	FS     vfs.FS // File system (nil = the operating system)
	NoSync bool   // Skip the fsync after each write (testing only)
}

// NewPebbleDB opens (or creates) a pebble database in opts.Dir
func NewPebbleDB(opts *DBOptions) (db.KVDB, error) {
	if opts == nil || opts.Dir == "" {
		return nil, fmt.Errorf("pebble: a data directory is required")
	}

	pebbleOpts := &pebble.Options{}
	if opts.FS != nil {
		pebbleOpts.FS = opts.FS
	}

	pdb, err := pebble.Open(opts.Dir, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("pebble: failed to open %s: %w", opts.Dir, err)
	}

	write := pebble.Sync
	if opts.NoSync {
		write = pebble.NoSync
	}

	return &pebbleImpl{db: pdb, write: write}, nil
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.KVDB)
// --------------------------------------------------------------------------

func (p *pebbleImpl) Set(key string, value []byte) error {
	if p.closed.Load() {
		return db.ErrClosed
	}
	return p.db.Set([]byte(key), value, p.write)
}

func (p *pebbleImpl) Get(key string) ([]byte, bool, error) {
	if p.closed.Load() {
		return nil, false, db.ErrClosed
	}

	value, closer, err := p.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	} else if err != nil {
		return nil, false, err
	}
	defer closer.Close()

	// the slice returned by pebble is only valid until closer.Close()
	result := make([]byte, len(value))
	copy(result, value)
	return result, true, nil
}

func (p *pebbleImpl) Delete(key string) error {
	if p.closed.Load() {
		return db.ErrClosed
	}
	return p.db.Delete([]byte(key), p.write)
}

func (p *pebbleImpl) Implementation() db.Implementation {
	return db.ImplPebble
}

func (p *pebbleImpl) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.db.Close()
}
