package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/nvandessel/qualsim/internal/constants"
	"github.com/nvandessel/qualsim/internal/export"
	"github.com/nvandessel/qualsim/internal/pathutil"
)

// MultiRunStore implements RunStore over a project store (./.qualsim/) and
// a user store (~/.qualsim/). Reads consult the stores selected by the
// scope; writes go to the project store unless the scope is global.
type MultiRunStore struct {
	localStore  RunStore
	globalStore RunStore
	scope       constants.Scope
}

// NewMultiRunStore opens the SQLite stores selected by scope.
func NewMultiRunStore(projectRoot string, scope constants.Scope) (*MultiRunStore, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("invalid scope: %s", scope)
	}
	m := &MultiRunStore{scope: scope}

	if scope.IncludesLocal() {
		local, err := NewSQLiteRunStore(pathutil.LocalDataDir(projectRoot))
		if err != nil {
			return nil, fmt.Errorf("failed to create local store: %w", err)
		}
		m.localStore = local
	}
	if scope.IncludesGlobal() {
		dir, err := pathutil.GlobalDataDir()
		if err != nil {
			m.Close()
			return nil, err
		}
		global, err := NewSQLiteRunStore(dir)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("failed to create global store: %w", err)
		}
		m.globalStore = global
	}
	return m, nil
}

// NewMultiRunStoreFrom wraps existing stores. Either may be nil.
func NewMultiRunStoreFrom(local, global RunStore) *MultiRunStore {
	scope := constants.ScopeBoth
	switch {
	case global == nil:
		scope = constants.ScopeLocal
	case local == nil:
		scope = constants.ScopeGlobal
	}
	return &MultiRunStore{localStore: local, globalStore: global, scope: scope}
}

type scoped struct {
	scope constants.Scope
	store RunStore
}

// stores returns the open stores, project store first.
func (m *MultiRunStore) stores() []scoped {
	var out []scoped
	if m.localStore != nil {
		out = append(out, scoped{constants.ScopeLocal, m.localStore})
	}
	if m.globalStore != nil {
		out = append(out, scoped{constants.ScopeGlobal, m.globalStore})
	}
	return out
}

// SaveRun writes to the project store, or the user store for global scope.
func (m *MultiRunStore) SaveRun(ctx context.Context, doc *export.Document) error {
	if m.localStore != nil {
		return m.localStore.SaveRun(ctx, doc)
	}
	if m.globalStore != nil {
		return m.globalStore.SaveRun(ctx, doc)
	}
	return errors.New("no store configured")
}

// GetRun looks the run up in the project store first.
func (m *MultiRunStore) GetRun(ctx context.Context, id string) (*export.Document, error) {
	for _, s := range m.stores() {
		doc, err := s.store.GetRun(ctx, id)
		if err == nil {
			return doc, nil
		}
		if !errors.Is(err, ErrRunNotFound) {
			return nil, fmt.Errorf("%s store: %w", s.scope, err)
		}
	}
	return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
}

// ListRuns merges the listings of all stores, newest first. Each summary
// records the scope it came from.
func (m *MultiRunStore) ListRuns(ctx context.Context, filter ListFilter) ([]RunSummary, error) {
	var out []RunSummary
	for _, s := range m.stores() {
		runs, err := s.store.ListRuns(ctx, filter)
		if err != nil {
			return nil, fmt.Errorf("%s store: %w", s.scope, err)
		}
		for _, r := range runs {
			r.Scope = s.scope.String()
			out = append(out, r)
		}
	}
	sortSummaries(out)
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

// DeleteRun removes the run from whichever store holds it.
func (m *MultiRunStore) DeleteRun(ctx context.Context, id string) error {
	for _, s := range m.stores() {
		err := s.store.DeleteRun(ctx, id)
		if err == nil {
			return nil
		}
		if !errors.Is(err, ErrRunNotFound) {
			return fmt.Errorf("%s store: %w", s.scope, err)
		}
	}
	return fmt.Errorf("%s: %w", id, ErrRunNotFound)
}

// Close closes every open store.
func (m *MultiRunStore) Close() error {
	var errs []error
	for _, s := range m.stores() {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("%s store: %w", s.scope, err))
		}
	}
	return errors.Join(errs...)
}

// queriers returns the indexed stores. Runs are stored in one place only, so
// results from all of them can be concatenated.
func (m *MultiRunStore) queriers() ([]NodeQuerier, error) {
	var out []NodeQuerier
	for _, s := range m.stores() {
		if q, ok := s.store.(NodeQuerier); ok {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil, errors.New("no indexed store configured")
	}
	return out, nil
}

// NodesByStatus collects the nodes of runID with the given status.
func (m *MultiRunStore) NodesByStatus(ctx context.Context, runID, status string) ([]NodeRef, error) {
	qs, err := m.queriers()
	if err != nil {
		return nil, err
	}
	var out []NodeRef
	for _, q := range qs {
		nodes, err := q.NodesByStatus(ctx, runID, status)
		if err != nil {
			return nil, err
		}
		out = append(out, nodes...)
	}
	return out, nil
}

// AttributeChanges collects the diff entries of runID touching attribute.
func (m *MultiRunStore) AttributeChanges(ctx context.Context, runID, attribute string) ([]ChangeRef, error) {
	qs, err := m.queriers()
	if err != nil {
		return nil, err
	}
	var out []ChangeRef
	for _, q := range qs {
		changes, err := q.AttributeChanges(ctx, runID, attribute)
		if err != nil {
			return nil, err
		}
		out = append(out, changes...)
	}
	return out, nil
}
