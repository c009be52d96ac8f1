package service

import (
	"errors"
	"fmt"
	"time"
)

// Kind classifies expected failures so the HTTP layer can map them to a
// status code without string matching.
type Kind int

const (
	KindInternal Kind = iota
	KindValidation
	KindUnauthorized
	KindForbidden
	KindLocked
	KindConflict
	KindNotFound
	KindInvalidResetToken
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindLocked:
		return "locked"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindInvalidResetToken:
		return "invalid_reset_token"
	}
	return "internal"
}

// Error is the tagged result returned by every service operation.  Message
// is safe to show to clients; Err holds the underlying cause for logs.
type Error struct {
	Kind       Kind
	Message    string
	RetryAfter time.Duration // set for KindLocked
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind and Message so that sentinel comparisons survive
// wrapping with a different cause.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && t.Message == e.Message
}

var (
	ErrInvalidCredentials = &Error{Kind: KindUnauthorized, Message: "Invalid credentials"}
	ErrAccountDeactivated = &Error{Kind: KindUnauthorized, Message: "Account is deactivated"}
	ErrInvalidRefresh     = &Error{Kind: KindUnauthorized, Message: "Invalid or expired refresh token"}
	ErrEmailTaken         = &Error{Kind: KindConflict, Message: "Email is already registered"}
	ErrUserNotFound       = &Error{Kind: KindNotFound, Message: "User not found"}
	ErrResetTokenInvalid  = &Error{Kind: KindInvalidResetToken, Message: "Invalid or expired reset token"}
	ErrResetTokenExpired  = &Error{Kind: KindInvalidResetToken, Message: "Reset token has expired"}
)

// lockedError carries the remaining lockout time to the caller.
func lockedError(remaining time.Duration, minutes int) *Error {
	return &Error{
		Kind:       KindLocked,
		Message:    fmt.Sprintf("Account is locked. Try again in %d minute(s)", minutes),
		RetryAfter: remaining,
	}
}

// internal wraps an unexpected failure.  The message never reveals the
// cause.
func internal(op string, err error) *Error {
	return &Error{Kind: KindInternal, Message: "Internal server error", Err: fmt.Errorf("%s: %w", op, err)}
}

// KindOf extracts the Kind of err, defaulting to KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
