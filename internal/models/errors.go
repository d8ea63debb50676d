package models

import (
	"fmt"
	"strings"
)

// ValidationError is returned before any write when a submission or a query
// is malformed.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed: " + e.Reason
	}
	if e.Reason == "" {
		return "validation failed: " + strings.Join(e.Fields, ", ")
	}
	return fmt.Sprintf("validation failed: %s: %s", strings.Join(e.Fields, ", "), e.Reason)
}

// DuplicateEventError means an event with the same external id is already
// recorded. Nothing was written.
type DuplicateEventError struct {
	ExternalEventID string
}

func (e *DuplicateEventError) Error() string {
	return fmt.Sprintf("duplicate event: external event id %q already recorded", e.ExternalEventID)
}

// ReferenceLookupError means a batched registry call failed outright. It is
// not returned for individual trackables that were simply not found.
type ReferenceLookupError struct {
	ReferenceType ReferenceType
	Err           error
}

func (e *ReferenceLookupError) Error() string {
	return fmt.Sprintf("%s registry lookup: %v", e.ReferenceType, e.Err)
}

func (e *ReferenceLookupError) Unwrap() error { return e.Err }

type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }
