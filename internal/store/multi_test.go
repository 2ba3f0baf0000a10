package store

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nvandessel/qualsim/internal/constants"
)

func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	return home
}

func TestNewMultiRunStore(t *testing.T) {
	home := isolateHome(t)
	root := t.TempDir()

	tests := []struct {
		scope      constants.Scope
		wantLocal  bool
		wantGlobal bool
	}{
		{constants.ScopeLocal, true, false},
		{constants.ScopeGlobal, false, true},
		{constants.ScopeBoth, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.scope.String(), func(t *testing.T) {
			m, err := NewMultiRunStore(root, tt.scope)
			if err != nil {
				t.Fatalf("NewMultiRunStore() error = %v", err)
			}
			defer m.Close()
			if (m.localStore != nil) != tt.wantLocal || (m.globalStore != nil) != tt.wantGlobal {
				t.Errorf("stores local=%v global=%v", m.localStore != nil, m.globalStore != nil)
			}
		})
	}

	if _, err := os.Stat(filepath.Join(home, ".qualsim", "qualsim.db")); err != nil {
		t.Errorf("global database not created: %v", err)
	}
	if _, err := os.Stat(filepath.Join(root, ".qualsim", "qualsim.db")); err != nil {
		t.Errorf("local database not created: %v", err)
	}
	if _, err := NewMultiRunStore(root, constants.Scope("nowhere")); err == nil {
		t.Error("NewMultiRunStore() should reject an invalid scope")
	}
}

func TestMultiRunStore_MergesScopes(t *testing.T) {
	local := NewInMemoryRunStore()
	global := NewInMemoryRunStore()
	m := NewMultiRunStoreFrom(local, global)
	ctx := context.Background()
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)

	if err := global.SaveRun(ctx, testDoc("g1", "flashlight@1", base.Add(2*time.Hour))); err != nil {
		t.Fatal(err)
	}
	if err := m.SaveRun(ctx, testDoc("l1", "flashlight@1", base)); err != nil {
		t.Fatalf("SaveRun() error = %v", err)
	}
	if _, err := local.GetRun(ctx, "l1"); err != nil {
		t.Errorf("SaveRun() should write to the local store: %v", err)
	}

	runs, err := m.ListRuns(ctx, ListFilter{})
	if err != nil {
		t.Fatalf("ListRuns() error = %v", err)
	}
	if len(runs) != 2 || runs[0].ID != "g1" || runs[0].Scope != "global" || runs[1].Scope != "local" {
		t.Errorf("ListRuns() = %+v", runs)
	}
	if runs, _ := m.ListRuns(ctx, ListFilter{Limit: 1}); len(runs) != 1 {
		t.Errorf("ListRuns(limit 1) = %d runs", len(runs))
	}

	if doc, err := m.GetRun(ctx, "g1"); err != nil || doc.RunID != "g1" {
		t.Errorf("GetRun(g1) = %v, %v", doc, err)
	}
	if err := m.DeleteRun(ctx, "g1"); err != nil {
		t.Errorf("DeleteRun(g1) error = %v", err)
	}
	if _, err := m.GetRun(ctx, "g1"); !errors.Is(err, ErrRunNotFound) {
		t.Errorf("GetRun() after delete error = %v", err)
	}
	if err := m.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestMultiRunStore_GlobalOnlyWritesGlobal(t *testing.T) {
	global := NewInMemoryRunStore()
	m := NewMultiRunStoreFrom(nil, global)
	if err := m.SaveRun(context.Background(), testDoc("g", "flashlight@1", time.Now())); err != nil {
		t.Fatal(err)
	}
	if _, err := global.GetRun(context.Background(), "g"); err != nil {
		t.Errorf("global-only SaveRun() did not write the global store: %v", err)
	}
	if m.scope != constants.ScopeGlobal {
		t.Errorf("scope = %s, want global", m.scope)
	}
}

func TestMultiRunStore_NodeQueries(t *testing.T) {
	isolateHome(t)
	root := t.TempDir()
	m, err := NewMultiRunStore(root, constants.ScopeBoth)
	if err != nil {
		t.Fatal(err)
	}
	defer m.Close()
	ctx := context.Background()
	if err := m.SaveRun(ctx, testDoc("run-1", "flashlight@1", time.Now())); err != nil {
		t.Fatal(err)
	}

	rejected, err := m.NodesByStatus(ctx, "run-1", "rejected")
	if err != nil {
		t.Fatalf("NodesByStatus() error = %v", err)
	}
	if len(rejected) != 1 || rejected[0].NodeID != 2 {
		t.Errorf("NodesByStatus(rejected) = %+v", rejected)
	}
	changes, err := m.AttributeChanges(ctx, "run-1", "battery.level")
	if err != nil || len(changes) != 3 {
		t.Errorf("AttributeChanges() = %d entries, %v; want 3", len(changes), err)
	}

	inMemory := NewMultiRunStoreFrom(NewInMemoryRunStore(), nil)
	if _, err := inMemory.NodesByStatus(ctx, "run-1", "ok"); err == nil {
		t.Error("NodesByStatus() without an indexed store should fail")
	}
}
