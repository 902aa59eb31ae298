// Package ports defines the interfaces between the verification core and its
// adapters.
package ports

import (
	"context"

	"github.com/tjfontaine/behavior-verify-gateway/internal/core/domain"
)

// LogAppender is the write side of the verification log store. It is
// append-only: no update or delete is exposed.
type LogAppender interface {
	// AppendLog persists log and returns its id. A log whose SubmissionID is
	// already stored is not written again; the existing id is returned.
	// Failures are returned as *domain.PersistenceError.
	AppendLog(ctx context.Context, log *domain.VerificationLog) (domain.LogID, error)

	// FindBySubmission returns the log recorded for submissionID, or
	// domain.ErrLogNotFound.
	FindBySubmission(ctx context.Context, submissionID string) (*domain.VerificationLog, error)
}

// LogReader is the read side used by the query service.
type LogReader interface {
	// ListLogs returns logs ordered by descending SubmittedAt.
	ListLogs(ctx context.Context, opts domain.LogListOptions) ([]*domain.VerificationLog, error)

	// CountLogs returns the number of logs matching filter.
	CountLogs(ctx context.Context, filter domain.LogFilter) (int, error)

	// GetLog returns one log or domain.ErrLogNotFound.
	GetLog(ctx context.Context, id domain.LogID) (*domain.VerificationLog, error)

	// Stats returns verdict totals.
	Stats(ctx context.Context) (*domain.LogStats, error)
}

// LogStore is a complete verification log backend.
// Implementations: SQLite (default), PostgreSQL, Badger, memory.
type LogStore interface {
	LogAppender
	LogReader
	Close() error
}
