package laps

import (
	"errors"
	"fmt"
)

// Error kinds. Every fatal error returned by this package matches exactly one
// of these with errors.Is.
var (
	ErrNotBound             = errors.New("machine is not bound to Active Directory")
	ErrDirectoryUnreachable = errors.New("active directory not reachable")
	ErrAmbiguousRecord      = errors.New("computer account lookup did not return exactly one record")
	ErrNotWritable          = errors.New("computer record is not writable")
	ErrSetPassword          = errors.New("failed to set password")

	ErrNotProbed         = errors.New("record has not passed a write probe")
	ErrInvalidCredential = errors.New("invalid credential")
	ErrUnknownOperation  = errors.New("unknown operation")
)

// Warning kinds attached to non-fatal log lines under the "warning" field.
const (
	WarningSetExpiration     = "set_expiration"
	WarningMissingExpiration = "missing_expiration"
)

// Error is a fatal failure of one operation.
type Error struct {
	Kind   error  // One of the Err* sentinels
	Op     string // Operation that failed, e.g. "connect"
	Detail string // Extra context such as a DN or count
	Err    error  // Underlying cause, may be nil
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Detail != "" {
		msg = fmt.Sprintf("%s (%s)", msg, e.Detail)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool {
	return e.Kind == target
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind error, op, detail string, err error) *Error {
	return &Error{Kind: kind, Op: op, Detail: detail, Err: err}
}
