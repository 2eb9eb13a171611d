package memory

import (
	"testing"

	"github.com/ValentinKolb/tpcKV/lib/db"
	dbtesting "github.com/ValentinKolb/tpcKV/lib/db/testing"
)

func Test(t *testing.T) {
	dbtesting.RunKVDBTests(t, "MemoryDB", func() db.KVDB {
		return NewMemoryDB()
	})
}

func Benchmark(b *testing.B) {
	dbtesting.RunKVDBBenchmarks(b, "MemoryDB", func() db.KVDB {
		return NewMemoryDB()
	})
}
