package errors

import (
	"errors"
)

// Common error types
var (
	ErrInvalidInput          = errors.New("invalid input")
	ErrStoreUnavailable      = errors.New("state store unavailable")
	ErrClassifierUnavailable = errors.New("classification engine unavailable")
	ErrNotFound              = errors.New("not found")
	ErrInternal              = errors.New("internal error")
)
