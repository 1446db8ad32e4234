package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tjfontaine/mealgen/internal/storage"
)

// Store is an in-memory SubmissionStore. Submissions are kept in insertion order.
type Store struct {
	mu          sync.RWMutex
	submissions []*storage.Submission
	byID        map[string]*storage.Submission
}

var _ storage.SubmissionStore = (*Store)(nil)

// New creates a new in-memory store
func New() *Store {
	return &Store{
		byID: make(map[string]*storage.Submission),
	}
}

func (s *Store) RecordSubmission(ctx context.Context, sub *storage.Submission) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[sub.ID]; exists {
		return fmt.Errorf("submission %s already exists", sub.ID)
	}
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = time.Now()
	}

	stored := *sub
	s.submissions = append(s.submissions, &stored)
	s.byID[sub.ID] = &stored
	return nil
}

func (s *Store) GetSubmission(ctx context.Context, id string) (*storage.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, exists := s.byID[id]
	if !exists {
		return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, id)
	}
	out := *sub
	return &out, nil
}

func (s *Store) ListSubmissions(ctx context.Context, opts storage.ListOptions) ([]*storage.Submission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*storage.Submission
	for i := len(s.submissions) - 1; i >= 0; i-- {
		sub := s.submissions[i]
		if opts.Generator != "" && sub.Generator != opts.Generator {
			continue
		}
		if opts.SessionID != "" && sub.SessionID != opts.SessionID {
			continue
		}
		out := *sub
		result = append(result, &out)
	}

	// Simple pagination
	start := opts.Offset
	if start >= len(result) {
		return []*storage.Submission{}, nil
	}

	end := start + opts.Limit
	if opts.Limit == 0 || end > len(result) {
		end = len(result)
	}

	return result[start:end], nil
}

func (s *Store) Close() error {
	return nil
}
