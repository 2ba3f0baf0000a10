// Package store defines the RunStore interface for persisting finished
// simulation runs, with SQLite, in-memory and multi-scope implementations.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/nvandessel/qualsim/internal/export"
)

// ErrRunNotFound is returned when a run id is not stored.
var ErrRunNotFound = errors.New("run not found")

// ErrRunExists is returned when saving a run id that is already stored.
// Runs are immutable once saved.
var ErrRunExists = errors.New("run already stored")

// RunSummary is the listing entry of a stored run.
type RunSummary struct {
	ID         string    `json:"id"`
	ObjectType string    `json:"object_type"`
	Scenario   string    `json:"scenario,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	Steps      int       `json:"steps"`
	Truncated  bool      `json:"truncated"`
	Scope      string    `json:"scope,omitempty"`
	export.Summary
}

// ListFilter narrows ListRuns. Zero fields match everything; Limit <= 0 is
// unlimited.
type ListFilter struct {
	ObjectType string
	Scenario   string
	Limit      int
}

func (f ListFilter) matches(s RunSummary) bool {
	if f.ObjectType != "" && s.ObjectType != f.ObjectType {
		return false
	}
	if f.Scenario != "" && s.Scenario != f.Scenario {
		return false
	}
	return true
}

// RunStore persists finished runs as documents.
type RunStore interface {
	// SaveRun validates and stores a document. Saving an id twice fails
	// with ErrRunExists.
	SaveRun(ctx context.Context, doc *export.Document) error
	// GetRun returns the stored document or ErrRunNotFound.
	GetRun(ctx context.Context, id string) (*export.Document, error)
	// ListRuns returns matching runs, newest first.
	ListRuns(ctx context.Context, filter ListFilter) ([]RunSummary, error)
	// DeleteRun removes a run or returns ErrRunNotFound.
	DeleteRun(ctx context.Context, id string) error
	Close() error
}

func summarize(doc *export.Document) RunSummary {
	return RunSummary{
		ID:         doc.RunID,
		ObjectType: doc.ObjectType,
		Scenario:   doc.Scenario,
		CreatedAt:  doc.CreatedAt,
		Steps:      len(doc.Steps),
		Truncated:  doc.Truncated,
		Summary:    doc.Summarize(),
	}
}

// NodeQuerier answers indexed lookups over stored nodes without decoding
// whole documents. The SQLite store implements it.
type NodeQuerier interface {
	NodesByStatus(ctx context.Context, runID, status string) ([]NodeRef, error)
	AttributeChanges(ctx context.Context, runID, attribute string) ([]ChangeRef, error)
}
