// Package errors defines the sentinel error taxonomy shared across
// SynapseNet's packages, plus a thin Wrap helper in the same spirit as the
// one in pkg/utils.
package errors

import (
	"errors"
	"fmt"
)

// Sentinel classes. Call sites wrap one of these with fmt.Errorf("...: %w")
// so callers can still errors.Is against the class while getting a specific
// message.
var (
	ErrInvalidInput     = errors.New("invalid input")
	ErrInvalidSignature = errors.New("invalid signature")
	ErrAlreadyPresent   = errors.New("already present")
	ErrNotFound         = errors.New("not found")
	ErrTimeout          = errors.New("timeout")
	ErrRateLimited      = errors.New("rate limited")
	ErrBackend          = errors.New("backend failure")
	ErrFatal            = errors.New("fatal")
)

// Wrap adds context to err while preserving it for errors.Is/errors.As.
// Returns nil if err is nil.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Classify maps err to the sentinel class it's wrapped around, if any, or
// ErrFatal if none of the known classes match. Useful at transport/API
// boundaries that need to translate an internal error into a status code.
func Classify(err error) error {
	for _, class := range []error{
		ErrInvalidInput, ErrInvalidSignature, ErrAlreadyPresent,
		ErrNotFound, ErrTimeout, ErrRateLimited, ErrBackend,
	} {
		if errors.Is(err, class) {
			return class
		}
	}
	return ErrFatal
}
