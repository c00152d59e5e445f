package domain

import (
	"context"
	"errors"
	"fmt"
)

// ErrorKind is the closed error taxonomy shared by all layers.
type ErrorKind int

const (
	KindUnknown ErrorKind = iota
	KindConnection
	KindAuthentication
	KindPermission
	KindDecryption
	KindTimeout
	KindNotFound
	KindAlreadyExists
	KindInvalid
)

func (k ErrorKind) String() string {
	switch k {
	case KindConnection:
		return "connection"
	case KindAuthentication:
		return "authentication"
	case KindPermission:
		return "permission"
	case KindDecryption:
		return "decryption"
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not found"
	case KindAlreadyExists:
		return "already exists"
	case KindInvalid:
		return "invalid"
	}
	return "unknown"
}

// Error carries a Kind so callers can branch without string matching.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	}
	return e.Kind.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound)
// works for every wrapped not-found error.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Op == "" && t.Err == nil && t.Kind == e.Kind
}

// Retryable reports whether retrying the operation may succeed.
func (e *Error) Retryable() bool {
	return e.Kind == KindConnection || e.Kind == KindTimeout
}

// Sentinels for errors.Is.
var (
	ErrConnection     = &Error{Kind: KindConnection}
	ErrAuthentication = &Error{Kind: KindAuthentication}
	ErrPermission     = &Error{Kind: KindPermission}
	ErrDecryption     = &Error{Kind: KindDecryption}
	ErrTimeout        = &Error{Kind: KindTimeout}
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrAlreadyExists  = &Error{Kind: KindAlreadyExists}
	ErrInvalid        = &Error{Kind: KindInvalid}
)

// NewError wraps err with a kind and operation name.
func NewError(kind ErrorKind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a kinded error from a format string.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf returns the kind of the first *Error in err's chain. Context
// deadline errors classify as timeouts.
func KindOf(err error) ErrorKind {
	if err == nil {
		return KindUnknown
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	return KindUnknown
}

// IsRetryable reports whether err is worth retrying.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable()
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// WithTimeout classifies a context deadline error as a TimeoutError.
func WithTimeout(op string, err error) error {
	if err == nil {
		return nil
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var e *Error
	if errors.As(err, &e) && e.Kind == KindTimeout {
		return err
	}
	return NewError(KindTimeout, op, err)
}
