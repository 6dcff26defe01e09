package transport

import (
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the transport.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of transport failures.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than auth and rate limiting.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassAuth represents 401 and 403 responses.
	ErrorClassAuth ErrorClass = "auth"

	// ErrorClassRateLimit represents 429 responses.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassUnavailable represents 503 responses.
	ErrorClassUnavailable ErrorClass = "unavailable"

	// ErrorClassServer represents other 5xx responses.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"

	// ErrorClassDecode represents a success status with an undecodable body.
	ErrorClassDecode ErrorClass = "decode"
)

// TransportError is a failed call to the service. StatusCode is 0 for
// network failures.
type TransportError struct {
	Endpoint   string
	StatusCode int
	ErrorClass ErrorClass
	Message    string
	Err        error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("axiom %s error on %s (status %d): %s: %v",
			e.ErrorClass, e.Endpoint, e.StatusCode, e.Message, e.Err)
	}
	return fmt.Sprintf("axiom %s error on %s (status %d): %s",
		e.ErrorClass, e.Endpoint, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// IsAuth reports whether err is a transport failure caused by a rejected
// or expired token.
func IsAuth(err error) bool {
	var te *TransportError
	return errors.As(err, &te) && te.ErrorClass == ErrorClassAuth
}

// ClassifyStatus maps a non-2xx HTTP status to an error class.
func ClassifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ErrorClassAuth
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status == http.StatusServiceUnavailable:
		return ErrorClassUnavailable
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry determines if an error should be retried based on its classification.
// Only responses where the service states it did not process the request
// are retried: a continuation token may already be spent otherwise.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassRateLimit, ErrorClassUnavailable:
		return true
	default:
		return false
	}
}
