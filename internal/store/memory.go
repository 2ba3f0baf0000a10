package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/nvandessel/qualsim/internal/export"
)

// InMemoryRunStore implements RunStore for tests and for sessions that
// keep runs without a database.
type InMemoryRunStore struct {
	mu   sync.RWMutex
	runs map[string]*export.Document
}

// NewInMemoryRunStore creates an empty in-memory store.
func NewInMemoryRunStore() *InMemoryRunStore {
	return &InMemoryRunStore{runs: make(map[string]*export.Document)}
}

// SaveRun stores doc. The document must not be modified afterwards.
func (s *InMemoryRunStore) SaveRun(ctx context.Context, doc *export.Document) error {
	if err := checkDocument(doc); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.runs[doc.RunID]; exists {
		return fmt.Errorf("%s: %w", doc.RunID, ErrRunExists)
	}
	s.runs[doc.RunID] = doc
	return nil
}

// GetRun returns a stored document.
func (s *InMemoryRunStore) GetRun(ctx context.Context, id string) (*export.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	doc, ok := s.runs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	return doc, nil
}

// ListRuns returns matching runs, newest first.
func (s *InMemoryRunStore) ListRuns(ctx context.Context, filter ListFilter) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []RunSummary
	for _, doc := range s.runs {
		sum := summarize(doc)
		if filter.matches(sum) {
			out = append(out, sum)
		}
	}
	sortSummaries(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// DeleteRun removes a run.
func (s *InMemoryRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.runs[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	delete(s.runs, id)
	return nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryRunStore) Close() error {
	return nil
}

// sortSummaries orders newest first, ties by id.
func sortSummaries(runs []RunSummary) {
	sort.Slice(runs, func(i, j int) bool {
		if !runs[i].CreatedAt.Equal(runs[j].CreatedAt) {
			return runs[i].CreatedAt.After(runs[j].CreatedAt)
		}
		return runs[i].ID < runs[j].ID
	})
}
