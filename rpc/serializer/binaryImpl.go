package serializer

import (
	"encoding/binary"
	"fmt"

	"github.com/ValentinKolb/tpcKV/rpc/common"
)

// NewBinarySerializer creates a new serializer using a custom binary format
// optimized for speed and efficiency
func NewBinarySerializer() IRPCSerializer {
	return &binarySerializerImpl{}
}

// binarySerializerImpl implements IRPCSerializer using a custom binary format:
// 1 byte message type, 1 byte flags, then only the fields whose flag is set.
// Byte and string fields are length prefixed (4 bytes, big endian), the
// operation id is 8 bytes big endian.
type binarySerializerImpl struct {
}

// Bit flags to indicate which optional fields are present
const (
	hasKey     byte = 1 << 0
	hasValue   byte = 1 << 1
	hasStatus  byte = 1 << 2
	hasMessage byte = 1 << 3
	hasOpID    byte = 1 << 4
)

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b binarySerializerImpl) Serialize(msg common.Message) ([]byte, error) {
	result := make([]byte, 2, b.sizeBytes(msg))
	result[0] = byte(msg.MsgType)

	var flags byte
	if msg.Key != nil {
		flags |= hasKey
		result = appendBytes(result, msg.Key)
	}
	if msg.Value != nil {
		flags |= hasValue
		result = appendBytes(result, msg.Value)
	}
	if msg.Status != "" {
		flags |= hasStatus
		result = appendBytes(result, []byte(msg.Status))
	}
	if msg.Message != "" {
		flags |= hasMessage
		result = appendBytes(result, []byte(msg.Message))
	}
	if msg.OpID != 0 {
		flags |= hasOpID
		result = binary.BigEndian.AppendUint64(result, msg.OpID)
	}

	result[1] = flags
	return result, nil
}

func (b binarySerializerImpl) Deserialize(data []byte, msg *common.Message) error {
	*msg = common.Message{}
	if len(data) < 2 {
		return parseError(fmt.Errorf("data too short for message header"))
	}

	msg.MsgType = common.MessageType(data[0])
	flags := data[1]
	pos := 2

	var err error
	if flags&hasKey != 0 {
		if msg.Key, pos, err = readBytes(data, pos); err != nil {
			return parseError(fmt.Errorf("key: %w", err))
		}
	}
	if flags&hasValue != 0 {
		if msg.Value, pos, err = readBytes(data, pos); err != nil {
			return parseError(fmt.Errorf("value: %w", err))
		}
	}
	if flags&hasStatus != 0 {
		var status []byte
		if status, pos, err = readBytes(data, pos); err != nil {
			return parseError(fmt.Errorf("status: %w", err))
		}
		msg.Status = string(status)
	}
	if flags&hasMessage != 0 {
		var message []byte
		if message, pos, err = readBytes(data, pos); err != nil {
			return parseError(fmt.Errorf("message: %w", err))
		}
		msg.Message = string(message)
	}
	if flags&hasOpID != 0 {
		if len(data) < pos+8 {
			return parseError(fmt.Errorf("data too short for op id"))
		}
		msg.OpID = binary.BigEndian.Uint64(data[pos : pos+8])
		pos += 8
	}

	if pos != len(data) {
		return parseError(fmt.Errorf("%d trailing bytes", len(data)-pos))
	}
	return checkType(msg)
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

// sizeBytes returns the exact number of bytes needed to serialize msg
func (b binarySerializerImpl) sizeBytes(msg common.Message) int {
	size := 2
	if msg.Key != nil {
		size += 4 + len(msg.Key)
	}
	if msg.Value != nil {
		size += 4 + len(msg.Value)
	}
	if msg.Status != "" {
		size += 4 + len(msg.Status)
	}
	if msg.Message != "" {
		size += 4 + len(msg.Message)
	}
	if msg.OpID != 0 {
		size += 8
	}
	return size
}

func appendBytes(dst, field []byte) []byte {
	dst = binary.BigEndian.AppendUint32(dst, uint32(len(field)))
	return append(dst, field...)
}

func readBytes(data []byte, pos int) ([]byte, int, error) {
	if len(data) < pos+4 {
		return nil, pos, fmt.Errorf("data too short for length prefix")
	}
	length := int(binary.BigEndian.Uint32(data[pos : pos+4]))
	pos += 4
	if length < 0 || len(data)-pos < length {
		return nil, pos, fmt.Errorf("data too short for field of length %d", length)
	}
	field := make([]byte, length)
	copy(field, data[pos:pos+length])
	return field, pos + length, nil
}
