// Package storage defines the submission history store.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a submission does not exist.
var ErrNotFound = errors.New("submission not found")

// Submission is one completed generator call as seen by the orchestrator.
type Submission struct {
	ID string `json:"id"`
	// SessionID is the session's history ID, never its cookie value.
	SessionID string          `json:"session_id,omitempty"`
	Generator string          `json:"generator"`
	Sequence  uint64          `json:"sequence"`
	Request   json.RawMessage `json:"request"`
	Outcome   string          `json:"outcome"` // success, failure, superseded
	ErrorKind string          `json:"error_kind,omitempty"`
	Message   string          `json:"message,omitempty"`
	Duration  time.Duration   `json:"duration_ns"`
	CreatedAt time.Time       `json:"created_at"`
}

// ListOptions filters and paginates ListSubmissions. Results are newest first.
type ListOptions struct {
	Generator string
	SessionID string
	Limit     int
	Offset    int
}

// SubmissionStore persists submission history.
type SubmissionStore interface {
	RecordSubmission(ctx context.Context, sub *Submission) error
	GetSubmission(ctx context.Context, id string) (*Submission, error)
	ListSubmissions(ctx context.Context, opts ListOptions) ([]*Submission, error)
	Close() error
}
