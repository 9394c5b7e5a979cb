// Package cacheerr defines the error taxonomy for the hybrid cache core.
// It is grounded on pkg/apperr's code+message+wrapped-error shape but
// carries no HTTP status: the cache core has no HTTP dependency. The
// admin HTTP surface (adapter/in/http) maps these codes to statuses.
package cacheerr

import (
	"context"
	"errors"
	"fmt"
)

const (
	CodeEntryTooLarge       = "ENTRY_TOO_LARGE"
	CodeSerializationFailed = "SERIALIZATION_FAILED"
	CodeL2Unavailable       = "L2_UNAVAILABLE"
	CodeBusUnavailable      = "BUS_UNAVAILABLE"
	CodeCancelled           = "CANCELLED"
)

// Error is a structured cache error.
type Error struct {
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func new(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

// EntryTooLarge is returned by MemoryStore.Set in strict sizing mode
// when a value exceeds MaxEntrySize.
func EntryTooLarge(key string, size, max int) *Error {
	return new(CodeEntryTooLarge, fmt.Sprintf("entry %q is %d bytes, exceeds max entry size %d", key, size, max), nil)
}

// SerializationFailed wraps a Serializer failure. User-visible per §7.
func SerializationFailed(err error) *Error {
	return new(CodeSerializationFailed, "failed to serialize or deserialize value", err)
}

// L2Unavailable wraps a DistributedStore round-trip failure.
// User-visible per §7; L1 is left untouched and nothing is published.
func L2Unavailable(op string, err error) *Error {
	return new(CodeL2Unavailable, fmt.Sprintf("distributed store unavailable during %s", op), err)
}

// BusUnavailable wraps an InvalidationBus publish failure. Never
// surfaced to callers per §7 — logged and swallowed by the coordinator.
func BusUnavailable(err error) *Error {
	return new(CodeBusUnavailable, "invalidation bus publish failed", err)
}

// Cancelled wraps a caller-cancelled operation.
func Cancelled(op string) *Error {
	return new(CodeCancelled, fmt.Sprintf("operation cancelled: %s", op), context.Canceled)
}

// Is reports whether err carries the given code.
func Is(err error, code string) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}
