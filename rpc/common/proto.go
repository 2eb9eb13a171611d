package common

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ValentinKolb/tpcKV/lib/store"
)

// --------------------------------------------------------------------------
// Message Structure
// --------------------------------------------------------------------------

// Message represents a single message used for both requests and responses.
// Which fields are used depends on the type of message.
type Message struct {
	// Type of message
	MsgType MessageType `json:"type"`

	// General fields
	Key   []byte `json:"key,omitempty"`   // Used for: getreq, putreq, delreq, resp (get)
	Value []byte `json:"value,omitempty"` // Used for: putreq, resp (get)

	// Response fields
	Status  string `json:"status,omitempty"`  // "Error" for failures, "True"/"False" for put responses
	Message string `json:"message,omitempty"` // Error text, "Success", the shared key or the slave information

	// Protocol fields
	OpID uint64 `json:"op_id,omitempty"` // Used for: putreq, delreq (prepare), ready, abort, commit, ack
}

// Values of Message.Status and Message.Message
const (
	StatusError = "Error"
	StatusTrue  = "True"
	StatusFalse = "False"

	MessageSuccess = "Success"
)

// Err returns the error carried by a response, nil if it is not an error response.
// Composite replica errors ("@<id>=><error>" per line) keep their text, the code
// is the one all replicas agree on or store.RetCInternalError.
func (m *Message) Err() error {
	if m.Status != StatusError {
		return nil
	}
	if !strings.HasPrefix(m.Message, "@") {
		return store.ParseError(m.Message)
	}

	code := store.RetCSuccess
	for _, line := range strings.Split(m.Message, "\n") {
		_, text, ok := strings.Cut(line, "=>")
		if !ok {
			return store.NewError(store.RetCInternalError, m.Message)
		}
		lineCode := store.ParseError(text).Code
		if code != store.RetCSuccess && lineCode != code {
			return store.NewError(store.RetCInternalError, m.Message)
		}
		code = lineCode
	}
	return store.NewError(code, m.Message)
}

// --------------------------------------------------------------------------
// Client API Factory Functions
// --------------------------------------------------------------------------

// NewGetRequest creates a new get request
func NewGetRequest(key string) *Message {
	return &Message{
		MsgType: MsgTGetReq,
		Key:     []byte(key),
	}
}

// NewGetResponse creates a new get response
func NewGetResponse(key string, value []byte) *Message {
	return &Message{
		MsgType: MsgTResp,
		Key:     []byte(key),
		Value:   value,
	}
}

// NewPutRequest creates a new put request
func NewPutRequest(key string, value []byte) *Message {
	return &Message{
		MsgType: MsgTPutReq,
		Key:     []byte(key),
		Value:   value,
	}
}

// NewPutResponse creates a new put response, existed reports whether the key was overwritten
func NewPutResponse(existed bool) *Message {
	msg := &Message{
		MsgType: MsgTResp,
		Status:  StatusFalse,
		Message: MessageSuccess,
	}
	if existed {
		msg.Status = StatusTrue
	}
	return msg
}

// NewDeleteRequest creates a new delete request
func NewDeleteRequest(key string) *Message {
	return &Message{
		MsgType: MsgTDelReq,
		Key:     []byte(key),
	}
}

// NewDeleteResponse creates a new delete response
func NewDeleteResponse() *Message {
	return &Message{
		MsgType: MsgTResp,
		Message: MessageSuccess,
	}
}

// NewKeyRequest creates a new key exchange request
func NewKeyRequest() *Message {
	return &Message{
		MsgType: MsgTKeyReq,
	}
}

// NewKeyResponse creates a new key exchange response
func NewKeyResponse(key string) *Message {
	return &Message{
		MsgType: MsgTResp,
		Message: key,
	}
}

// NewErrorResponse creates a response carrying err
func NewErrorResponse(err error) *Message {
	return &Message{
		MsgType: MsgTResp,
		Status:  StatusError,
		Message: err.Error(),
	}
}

// --------------------------------------------------------------------------
// Registration Factory Functions
// --------------------------------------------------------------------------

// NewRegisterRequest creates a new registration request, info has the format "<id>@<host>:<port>"
func NewRegisterRequest(info string) *Message {
	return &Message{
		MsgType: MsgTRegister,
		Message: info,
	}
}

// NewRegisterResponse creates a new registration response
func NewRegisterResponse(info string) *Message {
	return &Message{
		MsgType: MsgTResp,
		Message: "Successfully registered " + info,
	}
}

// --------------------------------------------------------------------------
// 2PC Factory Functions
// --------------------------------------------------------------------------

// NewPrepareRequest creates the first phase request for an operation.
// Puts use the putreq type, deletes the delreq type.
func NewPrepareRequest(opID uint64, isDelete bool, key string, value []byte) *Message {
	msg := &Message{
		MsgType: MsgTPutReq,
		Key:     []byte(key),
		Value:   value,
		OpID:    opID,
	}
	if isDelete {
		msg.MsgType = MsgTDelReq
		msg.Value = nil
	}
	return msg
}

// NewReadyVote creates a ready vote, existed reports whether the key was present
func NewReadyVote(opID uint64, existed bool) *Message {
	msg := &Message{
		MsgType: MsgTReady,
		OpID:    opID,
		Status:  StatusFalse,
	}
	if existed {
		msg.Status = StatusTrue
	}
	return msg
}

// NewAbortVote creates an abort vote carrying the reason
func NewAbortVote(opID uint64, err error) *Message {
	return &Message{
		MsgType: MsgTAbort,
		OpID:    opID,
		Message: err.Error(),
	}
}

// NewDecision creates a commit or abort decision
func NewDecision(opID uint64, commit bool) *Message {
	msg := &Message{
		MsgType: MsgTAbort,
		OpID:    opID,
	}
	if commit {
		msg.MsgType = MsgTCommit
	}
	return msg
}

// NewAck creates an acknowledgement of a decision
func NewAck(opID uint64) *Message {
	return &Message{
		MsgType: MsgTAck,
		OpID:    opID,
	}
}

// --------------------------------------------------------------------------
// Message Type Definitions
// --------------------------------------------------------------------------

// MessageType is the type of message
type MessageType uint8

// String converts a MessageType to its wire representation.
func (t MessageType) String() string {
	switch t {
	case MsgTGetReq:
		return "getreq"
	case MsgTPutReq:
		return "putreq"
	case MsgTDelReq:
		return "delreq"
	case MsgTResp:
		return "resp"
	case MsgTReady:
		return "ready"
	case MsgTAbort:
		return "abort"
	case MsgTCommit:
		return "commit"
	case MsgTAck:
		return "ack"
	case MsgTRegister:
		return "register"
	case MsgTKeyReq:
		return "getEnKey"
	default:
		return "unknown"
	}
}

// MarshalJSON implements the json.Marshaller interface for MessageType.
// This allows MessageType to be serialized as a string in JSON.
func (t MessageType) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.String())
}

// UnmarshalJSON implements the json.Unmarshaler interface for MessageType.
// This allows MessageType to be deserialized from a string in JSON.
func (t *MessageType) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}

	for candidate := MsgTGetReq; candidate <= MsgTKeyReq; candidate++ {
		if candidate.String() == s {
			*t = candidate
			return nil
		}
	}
	return fmt.Errorf("unknown message type: %s", s)
}

// --------------------------------------------------------------------------
// Message Type Constants
// --------------------------------------------------------------------------

const (
	MsgTUnknown MessageType = iota

	// Client API

	MsgTGetReq // Read a key (client -> master, master -> slave)
	MsgTPutReq // Write a key (client -> master) or prepare a put (master -> slave)
	MsgTDelReq // Delete a key (client -> master) or prepare a delete (master -> slave)
	MsgTResp   // Response to any request except the protocol ones

	// 2PC

	MsgTReady  // Ready vote
	MsgTAbort  // Abort vote or abort decision
	MsgTCommit // Commit decision
	MsgTAck    // Acknowledgement of a decision

	// Membership and key exchange

	MsgTRegister // Slave registration
	MsgTKeyReq   // Request the shared key
)
