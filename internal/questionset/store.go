package questionset

import (
	"context"
	"errors"
)

// ErrNotFound is returned by Get when the requested question set does not exist.
var ErrNotFound = errors.New("question set not found")

// ErrDuplicateID is returned by Add when a set with the same ID already exists.
var ErrDuplicateID = errors.New("question set with that ID already exists")

// Store serves interview templates.
//
// All implementations must be safe for concurrent use.
type Store interface {
	// Add validates and stores a question set. Returns the stored set with a
	// generated ID if the provided ID is empty.
	// Returns [ErrDuplicateID] if a set with the same non-empty ID exists.
	Add(ctx context.Context, qs QuestionSet) (QuestionSet, error)

	// Get retrieves a question set by ID.
	// Returns [ErrNotFound] when no set with that ID exists.
	Get(ctx context.Context, id string) (QuestionSet, error)

	// List returns the sets matching opts, ordered by ID.
	List(ctx context.Context, opts ListOptions) ([]QuestionSet, error)
}

// ListOptions narrows the result set of [Store.List].
// All non-zero fields are applied as AND conditions.
type ListOptions struct {
	// Status restricts results to sets in this state.
	Status Status

	// InterviewType restricts results to sets that use this category.
	InterviewType string
}
