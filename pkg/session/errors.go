package session

import (
	"errors"
	"fmt"
)

var (
	// ErrNoSession is returned when an operation needs a token and none is active.
	ErrNoSession = errors.New("no active session token")

	// ErrMissingCredentials is returned when Acquire is called without a username.
	ErrMissingCredentials = errors.New("username is required")

	// ErrEmptyToken is returned when the service accepts the login but
	// returns no token.
	ErrEmptyToken = errors.New("service returned an empty user token")

	// ErrSessionChanged is returned when the token an operation started
	// with was replaced or revoked before the operation finished.
	ErrSessionChanged = errors.New("session token changed during operation")
)

// AuthenticationError reports bad credentials or an absent, revoked or
// expired token.
type AuthenticationError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *AuthenticationError) Error() string {
	return fmt.Sprintf("authentication failed (%s): %v", e.Op, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *AuthenticationError) Unwrap() error {
	return e.Err
}
