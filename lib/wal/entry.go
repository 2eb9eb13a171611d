package wal

import (
	"encoding/binary"
	"fmt"
)

// EntryType is the protocol state an entry records.
type EntryType uint8

const (
	EntryTReady  EntryType = iota + 1 // The participant voted ready for the operation.
	EntryTCommit                      // The coordinator decided to commit.
	EntryTAbort                       // The coordinator decided to abort.
)

func (et EntryType) String() string {
	switch et {
	case EntryTReady:
		return "ready"
	case EntryTCommit:
		return "commit"
	case EntryTAbort:
		return "abort"
	default:
		return fmt.Sprintf("Unknown(%d)", et)
	}
}

// RequestType is the client request carried by a ready entry.
type RequestType uint8

const (
	RequestTNone   RequestType = iota // Decision entries carry no request.
	RequestTPut                       // Insert or replace a key.
	RequestTDelete                    // Remove a key.
	RequestTGet                       // Read a key, replaying it is a no-op.
)

func (rt RequestType) String() string {
	switch rt {
	case RequestTNone:
		return "none"
	case RequestTPut:
		return "put"
	case RequestTDelete:
		return "delete"
	case RequestTGet:
		return "get"
	default:
		return fmt.Sprintf("Unknown(%d)", rt)
	}
}

// Entry is a single record of the write-ahead log
type Entry struct {
	Type    EntryType
	Request RequestType
	OpID    uint64
	Key     string
	Value   []byte
	Existed bool // Ready entries: the key was present when the vote was cast.
}

const flagExisted byte = 1

// headerSize is Type + Request + Flags + OpID + KeyLen
const headerSize = 1 + 1 + 1 + 8 + 4

// SizeBytes returns the exact number of bytes needed to serialize this entry
func (e *Entry) SizeBytes() int {
	return headerSize + len(e.Key) + len(e.Value)
}

// Serialize serializes an entry into a byte array with the format:
// 1 byte for the entry type,
// 1 byte for the request type,
// 1 byte of flags (bit 0: existed),
// 8 bytes for the operation id (big endian),
// 4 bytes for key length (big endian),
// N bytes for key data,
// N bytes for value data (optional)
func (e *Entry) Serialize() []byte {
	result := make([]byte, e.SizeBytes())

	result[0] = byte(e.Type)
	result[1] = byte(e.Request)
	if e.Existed {
		result[2] = flagExisted
	}
	binary.BigEndian.PutUint64(result[3:11], e.OpID)
	binary.BigEndian.PutUint32(result[11:15], uint32(len(e.Key)))

	n := copy(result[headerSize:], e.Key)
	copy(result[headerSize+n:], e.Value)

	return result
}

// Deserialize extracts all Entry fields from a byte array.
func (e *Entry) Deserialize(data []byte) error {
	if len(data) < headerSize {
		return fmt.Errorf("data too short for entry")
	}

	e.Type = EntryType(data[0])
	if e.Type < EntryTReady || e.Type > EntryTAbort {
		return fmt.Errorf("unknown entry type %d", data[0])
	}
	e.Request = RequestType(data[1])
	if e.Request > RequestTGet {
		return fmt.Errorf("unknown request type %d", data[1])
	}
	if data[2]&^flagExisted != 0 {
		return fmt.Errorf("unknown entry flags %#x", data[2])
	}
	e.Existed = data[2]&flagExisted != 0
	e.OpID = binary.BigEndian.Uint64(data[3:11])

	keyLen := binary.BigEndian.Uint32(data[11:15])
	if uint64(len(data)) < uint64(headerSize)+uint64(keyLen) {
		return fmt.Errorf("data too short for key of length %d", keyLen)
	}
	keyEnd := headerSize + int(keyLen)
	e.Key = string(data[headerSize:keyEnd])

	if len(data) > keyEnd {
		e.Value = make([]byte, len(data)-keyEnd)
		copy(e.Value, data[keyEnd:])
	} else {
		e.Value = nil
	}

	return nil
}
