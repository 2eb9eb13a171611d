package wal

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"github.com/spf13/afero"
)

var log = logger.GetLogger("wal")

// --------------------------------------------------------------------------
// Record Format
// --------------------------------------------------------------------------

// Every entry is stored as a record:
// 4 bytes payload length (big endian),
// 4 bytes CRC-32C of the payload (big endian),
// N bytes payload (Entry.Serialize)
const (
	recordHeaderSize = 8
	maxRecordSize    = 1 << 20
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

func encodeRecord(e Entry) []byte {
	payload := e.Serialize()
	record := make([]byte, recordHeaderSize+len(payload))
	binary.BigEndian.PutUint32(record[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(record[4:8], crc32.Checksum(payload, crcTable))
	copy(record[recordHeaderSize:], payload)
	return record
}

// readEntries decodes records until the end of r or the first torn or corrupt
// record. valid is the offset just behind the last intact record.
func readEntries(r io.Reader) (entries []Entry, valid int64, err error) {
	reader := bufio.NewReader(r)
	header := make([]byte, recordHeaderSize)

	for {
		if _, err := io.ReadFull(reader, header); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return entries, valid, nil
			}
			return nil, 0, err
		}

		length := binary.BigEndian.Uint32(header[0:4])
		checksum := binary.BigEndian.Uint32(header[4:8])
		if length > maxRecordSize {
			log.Warningf("record at offset %d has invalid length %d, ignoring the rest of the log", valid, length)
			return entries, valid, nil
		}

		payload := make([]byte, length)
		if _, err := io.ReadFull(reader, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return entries, valid, nil
			}
			return nil, 0, err
		}

		if crc32.Checksum(payload, crcTable) != checksum {
			log.Warningf("record at offset %d has a bad checksum, ignoring the rest of the log", valid)
			return entries, valid, nil
		}

		var e Entry
		if err := e.Deserialize(payload); err != nil {
			log.Warningf("record at offset %d cannot be decoded (%v), ignoring the rest of the log", valid, err)
			return entries, valid, nil
		}

		entries = append(entries, e)
		valid += int64(recordHeaderSize) + int64(length)
	}
}

// --------------------------------------------------------------------------
// Log
// --------------------------------------------------------------------------

// Log is an append-only, durable sequence of entries. Entries are never removed.
type Log struct {
	fs   afero.Fs
	path string

	mu      sync.RWMutex
	file    afero.File
	size    int64
	entries []Entry

	// latest ready entry per operation id and the decision that followed it
	ready    *xsync.MapOf[uint64, Entry]
	outcomes *xsync.MapOf[uint64, EntryType]
}

// Open opens the log at path, creating it if it does not exist. A missing file
// is an empty history. A torn or corrupt tail (left by a crash during an append)
// is cut off.
func Open(fs afero.Fs, path string) (*Log, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := fs.MkdirAll(dir, 0o755); err != nil {
			return nil, ioError("create log directory", err)
		}
	}

	file, err := fs.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, ioError("open log", err)
	}

	entries, valid, err := readEntries(file)
	if err != nil {
		file.Close()
		return nil, ioError("read log", err)
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, ioError("stat log", err)
	}
	if info.Size() > valid {
		log.Warningf("truncating %d bytes of incomplete records from %s", info.Size()-valid, path)
		if err := file.Truncate(valid); err != nil {
			file.Close()
			return nil, ioError("truncate log", err)
		}
		if err := file.Sync(); err != nil {
			file.Close()
			return nil, ioError("sync log", err)
		}
	}
	if _, err := file.Seek(valid, io.SeekStart); err != nil {
		file.Close()
		return nil, ioError("seek log", err)
	}

	l := &Log{
		fs:       fs,
		path:     path,
		file:     file,
		size:     valid,
		ready:    xsync.NewMapOf[uint64, Entry](),
		outcomes: xsync.NewMapOf[uint64, EntryType](),
	}
	for _, e := range entries {
		l.index(e)
	}
	l.entries = entries

	log.Infof("opened log %s with %d entries", path, len(entries))
	return l, nil
}

func (l *Log) index(e Entry) {
	switch e.Type {
	case EntryTReady:
		// a decision only belongs to the nearest preceding ready entry
		l.ready.Store(e.OpID, e)
		l.outcomes.Delete(e.OpID)
	case EntryTCommit, EntryTAbort:
		l.outcomes.Store(e.OpID, e.Type)
	}
}

// Append durably adds an entry to the end of the log. It returns only after the
// record has been synced. If the write fails the log keeps its previous content.
func (l *Log) Append(e Entry) error {
	record := encodeRecord(e)

	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file == nil {
		return store.NewError(store.RetCStorageIO, "IO Error: log is closed")
	}

	if _, err := l.file.Write(record); err != nil {
		l.rollback()
		return ioError("append", err)
	}
	if err := l.file.Sync(); err != nil {
		l.rollback()
		return ioError("sync", err)
	}

	l.size += int64(len(record))
	l.entries = append(l.entries, e)
	l.index(e)

	log.Debugf("appended %s entry for op %d (%s)", e.Type, e.OpID, e.Request)
	return nil
}

// rollback cuts off a partially written record.
func (l *Log) rollback() {
	if err := l.file.Truncate(l.size); err != nil {
		log.Errorf("failed to roll back partial append: %v", err)
	}
	if _, err := l.file.Seek(l.size, io.SeekStart); err != nil {
		log.Errorf("failed to reposition log after rollback: %v", err)
	}
}

// LoadEntries reads the whole history back from durable storage.
func (l *Log) LoadEntries() ([]Entry, error) {
	file, err := l.fs.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	} else if err != nil {
		return nil, ioError("open log", err)
	}
	defer file.Close()

	entries, _, err := readEntries(file)
	if err != nil {
		return nil, ioError("read log", err)
	}
	return entries, nil
}

// Entries returns the entries in log order. The slice must not be modified.
func (l *Log) Entries() []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()
	result := make([]Entry, len(l.entries))
	copy(result, l.entries)
	return result
}

// Len returns the number of entries.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}

// IsEmpty reports whether the log holds no entries.
func (l *Log) IsEmpty() bool {
	return l.Len() == 0
}

// FindReady returns the most recent ready entry for opID.
func (l *Log) FindReady(opID uint64) (Entry, bool) {
	return l.ready.Load(opID)
}

// Outcome returns the decision recorded after the most recent ready entry for opID, if any.
func (l *Log) Outcome(opID uint64) (EntryType, bool) {
	return l.outcomes.Load(opID)
}

// Close closes the log file. Appends after Close fail.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}

func ioError(op string, err error) error {
	return store.NewError(store.RetCStorageIO, fmt.Sprintf("IO Error: %s: %v", op, err))
}
