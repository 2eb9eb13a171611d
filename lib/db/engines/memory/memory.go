package memory

import (
	"sync/atomic"

	"github.com/ValentinKolb/tpcKV/lib/db"
	"github.com/puzpuzpuz/xsync/v3"
)

// memoryImpl is a volatile engine on top of a concurrent hash map
type memoryImpl struct {
	data   *xsync.MapOf[string, []byte]
	closed atomic.Bool
}

// NewMemoryDB creates an empty in-memory database
func NewMemoryDB() db.KVDB {
	return &memoryImpl{
		data: xsync.NewMapOf[string, []byte](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see db.KVDB)
// --------------------------------------------------------------------------

func (m *memoryImpl) Set(key string, value []byte) error {
	if m.closed.Load() {
		return db.ErrClosed
	}
	m.data.Store(key, cloneBytes(value))
	return nil
}

func (m *memoryImpl) Get(key string) ([]byte, bool, error) {
	if m.closed.Load() {
		return nil, false, db.ErrClosed
	}
	value, ok := m.data.Load(key)
	if !ok {
		return nil, false, nil
	}
	return cloneBytes(value), true, nil
}

func (m *memoryImpl) Delete(key string) error {
	if m.closed.Load() {
		return db.ErrClosed
	}
	m.data.Delete(key)
	return nil
}

func (m *memoryImpl) Implementation() db.Implementation {
	return db.ImplMemory
}

func (m *memoryImpl) Close() error {
	m.closed.Store(true)
	m.data.Clear()
	return nil
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func cloneBytes(b []byte) []byte {
	c := make([]byte, len(b))
	copy(c, b)
	return c
}
