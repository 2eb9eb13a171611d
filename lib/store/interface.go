package store

import (
	"errors"
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Interface Definition
// --------------------------------------------------------------------------

// IStore is the interface of a single key-value node.
// All failures are returned as *Error so callers can branch on the RetCode.
type IStore interface {
	// Put inserts or replaces a key–value pair. existed reports whether the key
	// was present before the call.
	Put(key string, value []byte) (existed bool, err error)
	// Get returns the value for a key. A missing key yields an error with RetCNotFound.
	Get(key string) (value []byte, err error)
	// Delete removes a key–value pair. Deleting a missing key fails with RetCNotFound
	// and changes nothing.
	Delete(key string) (err error)
	// Has returns whether a key exists in the store.
	Has(key string) (loaded bool, err error)
	// Close releases the underlying storage engine.
	Close() (err error)
}

// --------------------------------------------------------------------------
// Size Limits
// --------------------------------------------------------------------------

const (
	// MaxKeySize is the maximum length of a key in bytes.
	MaxKeySize = 256
	// MaxValueSize is the maximum length of a value in bytes.
	MaxValueSize = 128000
)

// ValidateKey checks a key against the size limits.
func ValidateKey(key string) error {
	switch {
	case len(key) == 0:
		return NewError(RetCValidation, "Empty key")
	case len(key) > MaxKeySize:
		return NewError(RetCValidation, "Over sized key")
	}
	return nil
}

// ValidateValue checks a value against the size limits.
func ValidateValue(value []byte) error {
	switch {
	case len(value) == 0:
		return NewError(RetCValidation, "Empty value")
	case len(value) > MaxValueSize:
		return NewError(RetCValidation, "Over sized value")
	}
	return nil
}

// --------------------------------------------------------------------------
// Custom Error Type
// --------------------------------------------------------------------------

// Error is a custom error type that wraps a return code (of type RetCode)
// and an error message.
type Error struct {
	Code RetCode // The return code
	Msg  string  // The error message.
}

// Error implements the error interface. The output can be turned back into an
// *Error with ParseError.
func (e *Error) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Msg)
}

// Is reports whether target is an *Error with the same code. This makes the
// sentinel errors below usable with errors.Is regardless of the message.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code RetCode, msg string) *Error {
	return &Error{
		Code: code,
		Msg:  msg,
	}
}

// Sentinels for errors.Is, they only match on the code.
var (
	ErrInternal     = NewError(RetCInternalError, "")
	ErrInvalid      = NewError(RetCInvalidOperation, "")
	ErrValidation   = NewError(RetCValidation, "")
	ErrNotFound     = NewError(RetCNotFound, "")
	ErrStorageIO    = NewError(RetCStorageIO, "")
	ErrNetwork      = NewError(RetCNetwork, "")
	ErrTimeout      = NewError(RetCTimeout, "")
	ErrProtocol     = NewError(RetCProtocol, "")
	ErrRegistration = NewError(RetCRegistration, "")
)

// CodeOf returns the RetCode of err. Errors that are not an *Error map to
// RetCInternalError, nil maps to RetCSuccess.
func CodeOf(err error) RetCode {
	if err == nil {
		return RetCSuccess
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return RetCInternalError
}

// ParseError reverses Error.Error(). Strings without a known code prefix become
// an internal error carrying the whole string.
func ParseError(s string) *Error {
	if name, msg, ok := strings.Cut(s, ": "); ok {
		for code := RetCInternalError; code <= RetCRegistration; code++ {
			if code.String() == name {
				return NewError(code, msg)
			}
		}
	}
	return NewError(RetCInternalError, s)
}

// --------------------------------------------------------------------------
// Return Codes
// --------------------------------------------------------------------------

type RetCode uint64

const (
	RetCSuccess          RetCode = iota // 0: Command executed successfully.
	RetCInternalError                   // 1: Command failed due to an internal error.
	RetCInvalidOperation                // 2: Invalid operation.
	RetCValidation                      // 3: Key or value violates the size limits.
	RetCNotFound                        // 4: Key does not exist.
	RetCStorageIO                       // 5: The storage engine or the log failed.
	RetCNetwork                         // 6: A peer could not be reached.
	RetCTimeout                         // 7: A peer did not answer in time.
	RetCProtocol                        // 8: A message could not be parsed or was unexpected.
	RetCRegistration                    // 9: Slave information could not be parsed.
)

func (c RetCode) String() string {
	switch c {
	case RetCSuccess:
		return "Success"
	case RetCInternalError:
		return "InternalError"
	case RetCInvalidOperation:
		return "InvalidOperation"
	case RetCValidation:
		return "ValidationError"
	case RetCNotFound:
		return "NotFoundError"
	case RetCStorageIO:
		return "StorageIOError"
	case RetCNetwork:
		return "NetworkError"
	case RetCTimeout:
		return "TimeoutError"
	case RetCProtocol:
		return "ProtocolError"
	case RetCRegistration:
		return "RegistrationError"
	default:
		return "Unknown"
	}
}
