package testing

import (
	"errors"
	"sync"

	"github.com/ValentinKolb/tpcKV/lib/db"
)

// ErrInjected is the error returned by FlakyDB for a failed call.
var ErrInjected = errors.New("db: injected failure")

// FlakyDB wraps a db.KVDB and fails a configurable number of calls per operation.
// It is used to exercise the retry behaviour of callers.
type FlakyDB struct {
	db.KVDB

	mu       sync.Mutex
	failSet  int
	failGet  int
	failDel  int
	failures int
}

// NewFlakyDB wraps inner. Use FailSets, FailGets and FailDeletes to arm failures.
func NewFlakyDB(inner db.KVDB) *FlakyDB {
	return &FlakyDB{KVDB: inner}
}

// FailSets makes the next n Set calls fail.
func (f *FlakyDB) FailSets(n int) { f.mu.Lock(); f.failSet = n; f.mu.Unlock() }

// FailGets makes the next n Get calls fail.
func (f *FlakyDB) FailGets(n int) { f.mu.Lock(); f.failGet = n; f.mu.Unlock() }

// FailDeletes makes the next n Delete calls fail.
func (f *FlakyDB) FailDeletes(n int) { f.mu.Lock(); f.failDel = n; f.mu.Unlock() }

// Failures returns how many calls failed so far.
func (f *FlakyDB) Failures() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.failures
}

func (f *FlakyDB) take(counter *int) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if *counter > 0 {
		*counter--
		f.failures++
		return true
	}
	return false
}

func (f *FlakyDB) Set(key string, value []byte) error {
	if f.take(&f.failSet) {
		return ErrInjected
	}
	return f.KVDB.Set(key, value)
}

func (f *FlakyDB) Get(key string) ([]byte, bool, error) {
	if f.take(&f.failGet) {
		return nil, false, ErrInjected
	}
	return f.KVDB.Get(key)
}

func (f *FlakyDB) Delete(key string) error {
	if f.take(&f.failDel) {
		return ErrInjected
	}
	return f.KVDB.Delete(key)
}
