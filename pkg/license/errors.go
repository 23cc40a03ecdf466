package license

import (
	"errors"
	"fmt"
)

// Kind is the stable, machine-readable category of a lifecycle failure.
type Kind string

const (
	KindUnauthorized      Kind = "UNAUTHORIZED"
	KindNotFound          Kind = "NOT_FOUND"
	KindRevoked           Kind = "REVOKED"
	KindNotRedeemed       Kind = "NOT_REDEEMED"
	KindAlreadyClaimed    Kind = "ALREADY_CLAIMED"
	KindHwidMismatch      Kind = "HWID_MISMATCH"
	KindNoResetsRemaining Kind = "NO_RESETS_REMAINING"
	KindStoreUnavailable  Kind = "STORE_UNAVAILABLE"
	KindInvalidInput      Kind = "INVALID_INPUT"
)

// Error is returned by every Engine and Detector operation that fails.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches another *Error of the same kind, so callers can write
// errors.Is(err, license.ErrRevoked).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnauthorized      = &Error{Kind: KindUnauthorized, Message: "unauthorized"}
	ErrNotFound          = &Error{Kind: KindNotFound, Message: "license not found"}
	ErrRevoked           = &Error{Kind: KindRevoked, Message: "license revoked"}
	ErrNotRedeemed       = &Error{Kind: KindNotRedeemed, Message: "license not activated, redeem it first"}
	ErrAlreadyClaimed    = &Error{Kind: KindAlreadyClaimed, Message: "license already claimed by another user"}
	ErrHwidMismatch      = &Error{Kind: KindHwidMismatch, Message: "hwid mismatch, license bound to another machine"}
	ErrNoResetsRemaining = &Error{Kind: KindNoResetsRemaining, Message: "no hwid resets remaining"}
)

func invalidInput(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Message: msg}
}

func storeUnavailable(op string, err error) *Error {
	return &Error{Kind: KindStoreUnavailable, Message: op + " failed", Err: err}
}

// KindOf returns the Kind carried by err, or "" when err is not a lifecycle error.
func KindOf(err error) Kind {
	var le *Error
	if errors.As(err, &le) {
		return le.Kind
	}
	return ""
}

// IsRetryable reports whether the caller may retry the operation with backoff.
func IsRetryable(err error) bool {
	return KindOf(err) == KindStoreUnavailable
}
