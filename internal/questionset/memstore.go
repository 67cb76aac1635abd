package questionset

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Compile-time assertion that MemStore satisfies the Store interface.
var _ Store = (*MemStore)(nil)

// MemStore is a thread-safe, in-memory implementation of [Store].
// The zero value is ready to use.
type MemStore struct {
	mu   sync.RWMutex
	sets map[string]QuestionSet
}

// NewMemStore returns an initialised [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{sets: make(map[string]QuestionSet)}
}

// Add implements [Store.Add].
func (s *MemStore) Add(_ context.Context, qs QuestionSet) (QuestionSet, error) {
	if err := Validate(qs); err != nil {
		return QuestionSet{}, fmt.Errorf("questionset: invalid set %q: %w", qs.ID, err)
	}
	qs = normalize(qs)
	if qs.ID == "" {
		qs.ID = uuid.NewString()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.sets == nil {
		s.sets = make(map[string]QuestionSet)
	}
	if _, exists := s.sets[qs.ID]; exists {
		return QuestionSet{}, ErrDuplicateID
	}
	s.sets[qs.ID] = qs
	return clone(qs), nil
}

// Get implements [Store.Get].
func (s *MemStore) Get(_ context.Context, id string) (QuestionSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	qs, ok := s.sets[id]
	if !ok {
		return QuestionSet{}, ErrNotFound
	}
	return clone(qs), nil
}

// List implements [Store.List].
func (s *MemStore) List(_ context.Context, opts ListOptions) ([]QuestionSet, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]QuestionSet, 0, len(s.sets))
	for _, qs := range s.sets {
		if !matchesOpts(qs, opts) {
			continue
		}
		result = append(result, clone(qs))
	}
	slices.SortFunc(result, func(a, b QuestionSet) int { return strings.Compare(a.ID, b.ID) })
	return result, nil
}

// matchesOpts reports whether qs satisfies all conditions in opts.
func matchesOpts(qs QuestionSet, opts ListOptions) bool {
	if opts.Status != "" && qs.Status != opts.Status {
		return false
	}
	if opts.InterviewType != "" && !slices.Contains(qs.InterviewTypes, opts.InterviewType) {
		return false
	}
	return true
}

// clone copies the slices so callers cannot mutate stored sets.
func clone(qs QuestionSet) QuestionSet {
	qs.Questions = slices.Clone(qs.Questions)
	qs.InterviewTypes = slices.Clone(qs.InterviewTypes)
	return qs
}
