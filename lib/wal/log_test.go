package wal

import (
	"errors"
	"os"
	"testing"

	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/spf13/afero"
)

const testPath = "data/slave.wal"

func openLog(t *testing.T, fs afero.Fs) *Log {
	t.Helper()
	l, err := Open(fs, testPath)
	if err != nil {
		t.Fatalf("Failed to open log: %v", err)
	}
	return l
}

func mustAppend(t *testing.T, l *Log, e Entry) {
	t.Helper()
	if err := l.Append(e); err != nil {
		t.Fatalf("Append(%+v) failed: %v", e, err)
	}
}

func sampleEntries() []Entry {
	return []Entry{
		{Type: EntryTReady, Request: RequestTPut, OpID: 1, Key: "a", Value: []byte("1")},
		{Type: EntryTCommit, OpID: 1},
		{Type: EntryTReady, Request: RequestTDelete, OpID: 2, Key: "a"},
		{Type: EntryTAbort, OpID: 2},
	}
}

func TestOpenEmpty(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := openLog(t, fs)
	defer l.Close()

	if !l.IsEmpty() {
		t.Errorf("Expected a new log to be empty")
	}
	if ok, _ := afero.Exists(fs, testPath); !ok {
		t.Errorf("Expected the log file to be created")
	}

	entries, err := l.LoadEntries()
	if err != nil || len(entries) != 0 {
		t.Errorf("Expected no entries, got %v, %v", entries, err)
	}
}

func TestAppendAndReload(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := openLog(t, fs)
	for _, e := range sampleEntries() {
		mustAppend(t, l, e)
	}

	if l.Len() != 4 || l.IsEmpty() {
		t.Fatalf("Expected 4 entries, got %d", l.Len())
	}

	loaded, err := l.LoadEntries()
	if err != nil {
		t.Fatalf("LoadEntries failed: %v", err)
	}
	if len(loaded) != 4 {
		t.Fatalf("Expected 4 durable entries, got %d", len(loaded))
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := openLog(t, fs)
	defer reopened.Close()

	entries := reopened.Entries()
	for i, want := range sampleEntries() {
		got := entries[i]
		if got.Type != want.Type || got.OpID != want.OpID || got.Key != want.Key || string(got.Value) != string(want.Value) {
			t.Errorf("Entry %d: got %+v, want %+v", i, got, want)
		}
	}

	ready, ok := reopened.FindReady(2)
	if !ok || ready.Request != RequestTDelete {
		t.Errorf("Expected ready delete for op 2, got %+v, %v", ready, ok)
	}
	if outcome, ok := reopened.Outcome(1); !ok || outcome != EntryTCommit {
		t.Errorf("Expected op 1 committed, got %v, %v", outcome, ok)
	}
	if outcome, ok := reopened.Outcome(2); !ok || outcome != EntryTAbort {
		t.Errorf("Expected op 2 aborted, got %v, %v", outcome, ok)
	}
	if _, ok := reopened.FindReady(3); ok {
		t.Errorf("Expected no ready entry for op 3")
	}
}

func TestOutcomeFollowsLatestReady(t *testing.T) {
	fs := afero.NewMemMapFs()
	l := openLog(t, fs)

	mustAppend(t, l, Entry{Type: EntryTReady, Request: RequestTPut, OpID: 1, Key: "a", Value: []byte("1")})
	mustAppend(t, l, Entry{Type: EntryTCommit, OpID: 1})
	mustAppend(t, l, Entry{Type: EntryTReady, Request: RequestTPut, OpID: 1, Key: "a", Value: []byte("2"), Existed: true})

	check := func(t *testing.T, l *Log) {
		t.Helper()
		if outcome, ok := l.Outcome(1); ok {
			t.Errorf("Expected no outcome for the new ready entry, got %v", outcome)
		}
		ready, ok := l.FindReady(1)
		if !ok || string(ready.Value) != "2" || !ready.Existed {
			t.Errorf("Expected the latest ready entry, got %+v, %v", ready, ok)
		}
	}

	check(t, l)
	if err := l.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened := openLog(t, fs)
	defer reopened.Close()
	check(t, reopened)

	mustAppend(t, reopened, Entry{Type: EntryTAbort, OpID: 1})
	if outcome, ok := reopened.Outcome(1); !ok || outcome != EntryTAbort {
		t.Errorf("Expected op 1 aborted, got %v, %v", outcome, ok)
	}
}

func TestTornTail(t *testing.T) {
	tests := []struct {
		name    string
		corrupt func(t *testing.T, fs afero.Fs)
		want    int
	}{
		{
			name: "partial record header",
			corrupt: func(t *testing.T, fs afero.Fs) {
				appendBytes(t, fs, []byte{0, 0, 0})
			},
			want: 4,
		},
		{
			name: "partial record payload",
			corrupt: func(t *testing.T, fs afero.Fs) {
				record := encodeRecord(Entry{Type: EntryTReady, Request: RequestTPut, OpID: 9, Key: "k", Value: []byte("value")})
				appendBytes(t, fs, record[:len(record)-2])
			},
			want: 4,
		},
		{
			name: "bad checksum on last record",
			corrupt: func(t *testing.T, fs afero.Fs) {
				data, err := afero.ReadFile(fs, testPath)
				if err != nil {
					t.Fatalf("ReadFile failed: %v", err)
				}
				data[len(data)-1] ^= 0xFF
				if err := afero.WriteFile(fs, testPath, data, 0o644); err != nil {
					t.Fatalf("WriteFile failed: %v", err)
				}
			},
			want: 3,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := afero.NewMemMapFs()
			l := openLog(t, fs)
			for _, e := range sampleEntries() {
				mustAppend(t, l, e)
			}
			l.Close()

			tt.corrupt(t, fs)

			reopened := openLog(t, fs)
			defer reopened.Close()
			if reopened.Len() != tt.want {
				t.Fatalf("Expected %d entries after recovery, got %d", tt.want, reopened.Len())
			}

			// appends continue behind the last intact record
			mustAppend(t, reopened, Entry{Type: EntryTCommit, OpID: 5})
			loaded, err := reopened.LoadEntries()
			if err != nil {
				t.Fatalf("LoadEntries failed: %v", err)
			}
			if len(loaded) != tt.want+1 || loaded[len(loaded)-1].OpID != 5 {
				t.Errorf("Expected %d entries ending with op 5, got %+v", tt.want+1, loaded)
			}
		})
	}
}

func TestAppendAfterClose(t *testing.T) {
	l := openLog(t, afero.NewMemMapFs())
	l.Close()

	err := l.Append(Entry{Type: EntryTAbort, OpID: 1})
	if !errors.Is(err, store.ErrStorageIO) {
		t.Errorf("Expected storage error after close, got %v", err)
	}
}

func appendBytes(t *testing.T, fs afero.Fs, data []byte) {
	t.Helper()
	f, err := fs.OpenFile(testPath, os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		t.Fatalf("OpenFile failed: %v", err)
	}
	defer f.Close()
	if _, err := f.Write(data); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
}
