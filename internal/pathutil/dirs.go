package pathutil

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/qualsim/internal/constants"
)

// GlobalDataDir returns the user's data directory.
// On Unix: ~/.qualsim
// On Windows: %USERPROFILE%\.qualsim
func GlobalDataDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(homeDir, constants.DataDirName), nil
}

// LocalDataDir returns the data directory of the project rooted at projectRoot.
func LocalDataDir(projectRoot string) string {
	return filepath.Join(projectRoot, constants.DataDirName)
}

// EnsureDir creates dir with owner-only permissions if it does not exist.
func EnsureDir(dir string) error {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", RedactPath(dir), err)
	}
	return nil
}

// DataDirs returns the data directories selected by scope, user directory
// first so that project files are read last.
func DataDirs(projectRoot string, scope constants.Scope) ([]string, error) {
	var dirs []string
	if scope.IncludesGlobal() {
		global, err := GlobalDataDir()
		if err != nil {
			return nil, err
		}
		dirs = append(dirs, global)
	}
	if scope.IncludesLocal() {
		dirs = append(dirs, LocalDataDir(projectRoot))
	}
	return dirs, nil
}
