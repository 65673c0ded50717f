package models

import (
	"errors"
	"fmt"
)

// ValidationError is returned when an observation or request violates the
// presence/optional-field invariants. Invalid observations are never stored.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation failed: " + e.Reason
	}
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// NotFoundError is returned when a referenced project or keyword does not exist.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// CollectionCause classifies why an engine check failed.
type CollectionCause string

const (
	CauseTimeout           CollectionCause = "timeout"
	CauseRateLimited       CollectionCause = "rate_limited"
	CauseEngineUnavailable CollectionCause = "engine_unavailable"
	CauseParseFailure      CollectionCause = "parse_failure"
)

// CollectionError is returned by engine checkers. It is skippable per
// (keyword, engine) pair: the batch carries on without the observation.
type CollectionError struct {
	Engine    Engine
	KeywordID string
	Cause     CollectionCause
	Err       error
}

func (e *CollectionError) Error() string {
	return fmt.Sprintf("collection from %s for keyword %s failed (%s): %v", e.Engine, e.KeywordID, e.Cause, e.Err)
}

func (e *CollectionError) Unwrap() error {
	return e.Err
}

// Retryable reports whether the caller may retry the same pair.
func (e *CollectionError) Retryable() bool {
	return e.Cause == CauseTimeout || e.Cause == CauseRateLimited
}

// PersistenceError reports a failed bulk write for one batch. Batches
// committed before it are not rolled back.
type PersistenceError struct {
	BatchIndex int
	Size       int
	Written    int
	Err        error
}

func (e *PersistenceError) Error() string {
	if e.Written > 0 {
		return fmt.Sprintf("persisting batch %d (%d observations) failed after %d were written: %v", e.BatchIndex, e.Size, e.Written, e.Err)
	}
	return fmt.Sprintf("persisting batch %d (%d observations) failed: %v", e.BatchIndex, e.Size, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// PartialWriteError is returned by stores that cannot write a batch
// atomically. Written observations stay stored.
type PartialWriteError struct {
	Written int
	Err     error
}

func (e *PartialWriteError) Error() string {
	return fmt.Sprintf("%d observations written before failure: %v", e.Written, e.Err)
}

func (e *PartialWriteError) Unwrap() error {
	return e.Err
}

// WrittenBefore returns how many observations a failed append left stored.
func WrittenBefore(err error) int {
	var partial *PartialWriteError
	if errors.As(err, &partial) {
		return partial.Written
	}
	return 0
}

func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}
