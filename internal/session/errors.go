package session

import (
	"errors"

	apperrors "github.com/Atulx21/SevaConnect/pkg/errors"
)

// Error kinds reported by the Manager. Match them with errors.Is.
var (
	ErrNoUser           = errors.New("no user logged in")
	ErrNoProfile        = errors.New("no profile to update")
	ErrSessionRetrieval = errors.New("session retrieval failed")
	ErrProfileFetch     = errors.New("profile fetch failed")
	ErrProfileUpdate    = errors.New("profile update failed")
	ErrProfileCreate    = errors.New("profile creation failed")
	ErrSignOut          = errors.New("sign-out failed")
	ErrSignIn           = errors.New("sign-in failed")
	ErrSignUp           = errors.New("sign-up failed")
	ErrUserUpdate       = errors.New("user update failed")
	ErrClosed           = errors.New("session manager closed")
)

// Error is a failure of a Manager operation. It matches both its Kind and
// its cause with errors.Is and errors.As.
type Error struct {
	Kind error
	Err  error
}

func newError(kind, cause error) *Error {
	return &Error{Kind: kind, Err: cause}
}

func (e *Error) Error() string {
	if e.Err == nil {
		return e.Kind.Error()
	}
	return e.Kind.Error() + ": " + e.Err.Error()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Message is the human-readable summary without the cause chain.
func (e *Error) Message() string {
	return e.Kind.Error()
}

// Code is the backend's machine-readable code for the cause, if any.
func (e *Error) Code() string {
	return apperrors.RemoteCodeOf(e.Err)
}
