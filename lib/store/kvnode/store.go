package kvnode

import (
	"fmt"
	"sync"

	"github.com/ValentinKolb/tpcKV/lib/cache"
	"github.com/ValentinKolb/tpcKV/lib/db"
	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
)

var log = logger.GetLogger("store")

type storeImpl struct {
	mu    sync.RWMutex
	db    db.KVDB // nil in cache-only mode
	cache *cache.LRU
}

// NewKeyValueNode creates a node that writes through to database and serves
// reads from the cache first.
func NewKeyValueNode(database db.KVDB, c *cache.LRU) store.IStore {
	return &storeImpl{
		db:    database,
		cache: c,
	}
}

// NewCacheOnlyNode creates a node without a storage engine. Entries only live in
// the cache and may be evicted at any time, deleting a missing key is not an error.
func NewCacheOnlyNode(c *cache.LRU) store.IStore {
	return &storeImpl{
		cache: c,
	}
}

// ioError wraps an engine failure.
func ioError(op string, err error) error {
	log.Warningf("storage engine failed during %s: %v", op, err)
	return store.NewError(store.RetCStorageIO, fmt.Sprintf("IO Error: %v", err))
}

// --------------------------------------------------------------------------
// Interface Methods (docu see store/interface.go)
// --------------------------------------------------------------------------

func (s *storeImpl) Put(key string, value []byte) (bool, error) {
	if err := store.ValidateKey(key); err != nil {
		return false, err
	}
	if err := store.ValidateValue(value); err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		return s.cache.Put(key, value), nil
	}

	_, existed, err := s.db.Get(key)
	if err != nil {
		return false, ioError("put", err)
	}

	// the engine is written first, the cache only sees committed data
	if err := s.db.Set(key, value); err != nil {
		return false, ioError("put", err)
	}
	s.cache.Put(key, value)
	return existed, nil
}

func (s *storeImpl) Get(key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if value, ok := s.cache.Get(key); ok {
		return value, nil
	}
	if s.db == nil {
		return nil, store.NewError(store.RetCNotFound, "Does not exist")
	}

	value, ok, err := s.db.Get(key)
	if err != nil {
		return nil, ioError("get", err)
	}
	if !ok {
		return nil, store.NewError(store.RetCNotFound, "Does not exist")
	}

	s.cache.Put(key, value)
	return value, nil
}

func (s *storeImpl) Delete(key string) error {
	if err := store.ValidateKey(key); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db == nil {
		s.cache.Delete(key)
		return nil
	}

	_, ok, err := s.db.Get(key)
	if err != nil {
		return ioError("delete", err)
	}
	if !ok {
		return store.NewError(store.RetCNotFound, "Does not exist")
	}

	// cache first, a failed engine delete leaves the key readable through read-fill
	s.cache.Delete(key)
	if err := s.db.Delete(key); err != nil {
		return ioError("delete", err)
	}
	return nil
}

func (s *storeImpl) Has(key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.cache.Get(key); ok {
		return true, nil
	}
	if s.db == nil {
		return false, nil
	}

	_, ok, err := s.db.Get(key)
	if err != nil {
		return false, ioError("has", err)
	}
	return ok, nil
}

func (s *storeImpl) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}
