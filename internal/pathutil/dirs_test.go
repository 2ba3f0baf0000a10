package pathutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/nvandessel/qualsim/internal/constants"
)

func TestDataDirs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	root := t.TempDir()

	global := filepath.Join(home, ".qualsim")
	local := filepath.Join(root, ".qualsim")

	tests := []struct {
		scope constants.Scope
		want  []string
	}{
		{constants.ScopeLocal, []string{local}},
		{constants.ScopeGlobal, []string{global}},
		{constants.ScopeBoth, []string{global, local}},
	}
	for _, tt := range tests {
		t.Run(tt.scope.String(), func(t *testing.T) {
			got, err := DataDirs(root, tt.scope)
			if err != nil {
				t.Fatalf("DataDirs() error = %v", err)
			}
			if len(got) != len(tt.want) {
				t.Fatalf("DataDirs() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("DataDirs()[%d] = %s, want %s", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestEnsureDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "a", "b")
	if err := EnsureDir(dir); err != nil {
		t.Fatalf("EnsureDir() error = %v", err)
	}
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		t.Fatalf("EnsureDir() did not create %s: %v", dir, err)
	}
	if err := EnsureDir(dir); err != nil {
		t.Errorf("EnsureDir() on existing dir: %v", err)
	}
}
