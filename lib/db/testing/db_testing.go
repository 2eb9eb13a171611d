package testing

import (
	"bytes"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/tpcKV/lib/db"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs a comprehensive test suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("BinaryValues", func(t *testing.T) {
			testBinaryValues(t, factory())
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, factory())
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func mustSet(t *testing.T, database db.KVDB, key string, value []byte) {
	t.Helper()
	if err := database.Set(key, value); err != nil {
		t.Fatalf("Set(%q) failed: %v", key, err)
	}
}

func mustGet(t *testing.T, database db.KVDB, key string) ([]byte, bool) {
	t.Helper()
	value, ok, err := database.Get(key)
	if err != nil {
		t.Fatalf("Get(%q) failed: %v", key, err)
	}
	return value, ok
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	testKey := "test-key"
	testValue1 := []byte("test-value1")
	testValue2 := []byte("test-value2")

	mustSet(t, database, testKey, testValue1)

	result, exists := mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !bytes.Equal(result, testValue1) {
		t.Errorf("Expected value %s, got %s", testValue1, result)
	}

	mustSet(t, database, testKey, testValue2)

	result, exists = mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if !bytes.Equal(result, testValue2) {
		t.Errorf("Expected value %s, got %s", testValue2, result)
	}

	_, exists = mustGet(t, database, "nonexistent-key")
	if exists {
		t.Errorf("Expected nonexistent key to return exists=false")
	}

	retrievedValue, _ := mustGet(t, database, testKey)
	retrievedValue[0] = 'X'

	originalValue, _ := mustGet(t, database, testKey)
	if bytes.Equal(retrievedValue, originalValue) {
		t.Errorf("Get should return a copy, not a reference to the stored value")
	}

	input := []byte("input-value")
	mustSet(t, database, "input-key", input)
	input[0] = 'X'

	result, _ = mustGet(t, database, "input-key")
	if !bytes.Equal(result, []byte("input-value")) {
		t.Errorf("Set should store a copy of the value, got %s", result)
	}
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	testKey := "delete-test-key"
	testValue := []byte("delete-test-value")

	mustSet(t, database, testKey, testValue)

	_, exists := mustGet(t, database, testKey)
	if !exists {
		t.Errorf("Expected key %s to exist after Set", testKey)
	}

	if err := database.Delete(testKey); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	_, exists = mustGet(t, database, testKey)
	if exists {
		t.Errorf("Expected key %s to not exist after Delete", testKey)
	}

	if err := database.Delete("nonexistent-key"); err != nil {
		t.Errorf("Deleting a missing key should not fail, got %v", err)
	}
}

func testBinaryValues(t *testing.T, database db.KVDB) {
	defer database.Close()

	value := make([]byte, 128000)
	for i := range value {
		value[i] = byte(i % 256)
	}

	key := string([]byte{0x00, 0xFF, 'k', 0x10})
	mustSet(t, database, key, value)

	result, exists := mustGet(t, database, key)
	if !exists {
		t.Fatalf("Binary key not found after Set")
	}
	if !bytes.Equal(result, value) {
		t.Errorf("Binary value mismatch (len %d vs %d)", len(result), len(value))
	}
}

func testClosed(t *testing.T, database db.KVDB) {
	mustSet(t, database, "key", []byte("value"))

	if err := database.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if err := database.Set("key", []byte("value")); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed from Set, got %v", err)
	}
	if _, _, err := database.Get("key"); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed from Get, got %v", err)
	}
	if err := database.Delete("key"); !errors.Is(err, db.ErrClosed) {
		t.Errorf("Expected ErrClosed from Delete, got %v", err)
	}
}

func testConcurrent(t *testing.T, database db.KVDB) {
	defer database.Close()

	const workers = 8
	const perWorker = 100

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := fmt.Sprintf("w%d-k%d", w, i)
				if err := database.Set(key, []byte(key)); err != nil {
					t.Errorf("Set(%q) failed: %v", key, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < workers; w++ {
		for i := 0; i < perWorker; i++ {
			key := fmt.Sprintf("w%d-k%d", w, i)
			value, ok := mustGet(t, database, key)
			if !ok || string(value) != key {
				t.Fatalf("Expected %q=%q, got ok=%v value=%q", key, key, ok, value)
			}
		}
	}
}
