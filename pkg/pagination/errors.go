package pagination

import (
	"errors"
	"fmt"
)

// ErrPaginationExhausted is matched by PaginationExhaustedError.
var ErrPaginationExhausted = errors.New("pagination page limit reached")

// PaginationExhaustedError is returned when the service keeps returning
// continuation tokens past the configured page limit.
type PaginationExhaustedError struct {
	Endpoint string
	Pages    int
}

// Error implements the error interface.
func (e *PaginationExhaustedError) Error() string {
	return fmt.Sprintf("%s: service still returned a continuation after %d pages", e.Endpoint, e.Pages)
}

// Is makes errors.Is(err, ErrPaginationExhausted) match.
func (e *PaginationExhaustedError) Is(target error) bool {
	return target == ErrPaginationExhausted
}

// CancellationError is returned when the caller's context ends during a
// fetch. It unwraps to context.Canceled or context.DeadlineExceeded.
type CancellationError struct {
	// Pages is the number of pages completed before cancellation.
	Pages int
	Err   error
}

// Error implements the error interface.
func (e *CancellationError) Error() string {
	return fmt.Sprintf("fetch cancelled after %d pages: %v", e.Pages, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *CancellationError) Unwrap() error {
	return e.Err
}
