package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound            = errors.New("entity not found")
	ErrAlreadyExists       = errors.New("entity already exists")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrInvalidExecContext  = errors.New("invalid execution context")
	ErrReadDatabaseRow     = errors.New("failed to read database row")
	ErrStorageUnavailable  = errors.New("storage unavailable")
	ErrInvalidTransition   = errors.New("invalid job status transition")
	ErrJobBusy             = errors.New("job is being processed by another worker")
	ErrQueueFull           = errors.New("worker queue full")
	ErrRateLimited         = errors.New("too many requests")
	ErrEmptyQuestion       = errors.New("question is empty")
	ErrUnknownChannel      = errors.New("unknown delivery channel")
	ErrEngineNotConfigured = errors.New("no generation engine configured")

	// ErrPermanent marks failures that must not be retried by the step runner.
	ErrPermanent = errors.New("permanent failure")
)

type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }

func (e *permanentError) Unwrap() []error { return []error{ErrPermanent, e.err} }

// Permanent wraps err so that errors.Is(err, ErrPermanent) reports true while the
// original error stays reachable through errors.Is/As.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrPermanent) {
		return err
	}
	return &permanentError{err: err}
}

// IsPermanent reports whether err was marked with Permanent.
func IsPermanent(err error) bool {
	return errors.Is(err, ErrPermanent)
}

// Unavailable wraps a driver error as ErrStorageUnavailable.
func Unavailable(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
