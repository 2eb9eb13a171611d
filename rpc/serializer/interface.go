package serializer

import (
	"fmt"

	"github.com/ValentinKolb/tpcKV/lib/store"
	"github.com/ValentinKolb/tpcKV/rpc/common"
)

// IRPCSerializer is the interface for all Message Serializers
type IRPCSerializer interface {
	// Serialize serializes a Message into a byte array
	// It returns the serialized byte array and an error if any
	Serialize(msg common.Message) ([]byte, error)
	// Deserialize deserializes a byte array into a Message
	// It takes a byte array and a pointer to a Message as parameters
	// Malformed input and messages without a type fail with a store.RetCProtocol error
	Deserialize(b []byte, msg *common.Message) error
}

// parseError wraps a decoding failure.
func parseError(err error) error {
	return store.NewError(store.RetCProtocol, fmt.Sprintf("Received unparseable message: %v", err))
}

// checkType rejects messages without a known type.
func checkType(msg *common.Message) error {
	if msg.MsgType == common.MsgTUnknown || msg.MsgType > common.MsgTKeyReq {
		return store.NewError(store.RetCProtocol, "Received unparseable message: missing or unknown message type")
	}
	return nil
}
