package gate

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is the kind of every authentication failure (401).
	ErrUnauthenticated = errors.New("unauthenticated")

	// ErrForbidden is the kind of every CheckPermissions failure (403).
	ErrForbidden = errors.New("forbidden")

	// ErrUnknownSubject is what an IdentityResolver returns when the token's
	// subject no longer maps to an active user.
	ErrUnknownSubject = errors.New("unknown subject")
)

// Rejection reasons, also used as metric labels.
const (
	ReasonMissingToken   = "missing_token"
	ReasonInvalidToken   = "invalid_token"
	ReasonExpiredToken   = "expired_token"
	ReasonUnknownSubject = "unknown_subject"
)

// AuthError is an authentication failure with a machine-readable reason.
type AuthError struct {
	Reason string
	Err    error
}

func (e *AuthError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%v: %s", ErrUnauthenticated, e.Reason)
	}
	return fmt.Sprintf("%v: %s: %v", ErrUnauthenticated, e.Reason, e.Err)
}

func (e *AuthError) Is(target error) bool { return target == ErrUnauthenticated }

func (e *AuthError) Unwrap() error { return e.Err }

// Reason extracts the rejection reason from err, or "" when err is not an AuthError.
func Reason(err error) string {
	var ae *AuthError
	if errors.As(err, &ae) {
		return ae.Reason
	}
	return ""
}

// PermissionError names the first permission an identity lacks.
type PermissionError struct {
	Permission string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("%v: missing permission %s", ErrForbidden, e.Permission)
}

func (e *PermissionError) Is(target error) bool { return target == ErrForbidden }
