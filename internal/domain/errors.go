package domain

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across stores and services.
var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrLockHeld       = errors.New("lock already held")
	ErrResultConflict = errors.New("result conflict")
	ErrAlreadySettled = errors.New("already settled")
	ErrOracleNotSet   = errors.New("oracle outcome not set")
	ErrUnauthorized   = errors.New("unauthorized")
)

// ErrorClass buckets every failure of an outbound call. Each call site must
// classify before retrying; a catch-all retry would break the at-most-once
// settlement requirement.
type ErrorClass int

const (
	// ClassUnknown is an unclassified error. Never retried; re-raised.
	ClassUnknown ErrorClass = iota
	// ClassTransient covers network faults, RPC timeouts, 5xx responses and
	// nonce races. Retried with capped exponential backoff.
	ClassTransient
	// ClassDataIncomplete means an input is not available yet (fixture not
	// finished, outcome not derived). Deferred to the next tick, not an
	// error at the taxonomy level.
	ClassDataIncomplete
	// ClassPermanentChain is a non-whitelisted revert. The affected entity
	// is halted until an operator intervenes.
	ClassPermanentChain
	// ClassFatalConfig is a misconfiguration (bad contract address,
	// unauthorized signer, missing migration). The process exits non-zero.
	ClassFatalConfig
)

func (c ErrorClass) String() string {
	switch c {
	case ClassTransient:
		return "transient"
	case ClassDataIncomplete:
		return "data_incomplete"
	case ClassPermanentChain:
		return "permanent_chain"
	case ClassFatalConfig:
		return "fatal_config"
	default:
		return "unknown"
	}
}

// ClassifiedError attaches an ErrorClass to an underlying error.
type ClassifiedError struct {
	Class ErrorClass
	Err   error
}

func (e *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", e.Class, e.Err)
}

func (e *ClassifiedError) Unwrap() error { return e.Err }

// Transient wraps err as retryable.
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: ClassTransient, Err: err}
}

// DataIncomplete wraps err as a deferral.
func DataIncomplete(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: ClassDataIncomplete, Err: err}
}

// PermanentChain wraps err as a halting chain failure.
func PermanentChain(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: ClassPermanentChain, Err: err}
}

// FatalConfig wraps err as a process-terminating misconfiguration.
func FatalConfig(err error) error {
	if err == nil {
		return nil
	}
	return &ClassifiedError{Class: ClassFatalConfig, Err: err}
}

// ClassOf extracts the ErrorClass from err, walking the wrap chain.
// Unclassified errors report ClassUnknown.
func ClassOf(err error) ErrorClass {
	var ce *ClassifiedError
	if errors.As(err, &ce) {
		return ce.Class
	}
	return ClassUnknown
}

// Retryable reports whether err may be retried under the taxonomy.
func Retryable(err error) bool {
	return ClassOf(err) == ClassTransient
}
