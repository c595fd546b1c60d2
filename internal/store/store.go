// Package store persists one ExecutionRecord per pipeline execution, keyed by
// execution id. Reads tolerate a missing row (ErrNotFound); writes are full
// record overwrites, never merges. MarkNotified is the only conditional
// operation: it flips isNotified false->true exactly once so that overlapping
// invocations cannot double-send a notification.
package store

import (
	"context"
	"errors"

	"github.com/pipewatch/pipewatch/internal/models"
)

var (
	// ErrNotFound is returned by Get when no record exists for the id.
	ErrNotFound = errors.New("execution not found")

	// ErrAlreadyNotified is returned by MarkNotified when the stored record
	// already has isNotified set. Callers treat it as a recoverable no-op.
	ErrAlreadyNotified = errors.New("execution already notified")
)

// Store is the persistence abstraction for execution records.
type Store interface {
	// Get reads the record for executionID, or ErrNotFound.
	Get(ctx context.Context, executionID string) (models.ExecutionRecord, error)

	// Put overwrites the full record keyed by its ExecutionID.
	Put(ctx context.Context, rec models.ExecutionRecord) error

	// MarkNotified conditionally flips isNotified false->true. Returns
	// ErrAlreadyNotified if another invocation won the race, ErrNotFound if
	// the record does not exist.
	MarkNotified(ctx context.Context, executionID string) error

	// Ping validates the store is reachable.
	Ping(ctx context.Context) error
}
