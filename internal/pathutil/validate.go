// Package pathutil locates qualsim data directories and validates output paths.
package pathutil

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// ErrOutsideAllowed is wrapped by ValidatePath when a path escapes every
// allowed directory.
var ErrOutsideAllowed = errors.New("outside allowed directories")

// RedactPath reduces a full path to .../<parent>/<basename> for safe error messages.
// For example, "/home/user/.qualsim/config.yaml" becomes ".../.qualsim/config.yaml".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// ValidatePath checks that path, once made absolute and with symlinks
// resolved, lies inside one of allowedDirs. Knowledge base paths received
// over MCP and every tree document or graph written to disk go through it.
func ValidatePath(path string, allowedDirs []string) error {
	switch {
	case path == "":
		return fmt.Errorf("path validation failed: path is empty")
	case len(allowedDirs) == 0:
		return fmt.Errorf("path validation failed: no allowed directories configured")
	case strings.ContainsRune(path, '\x00'):
		return fmt.Errorf("path validation failed: path contains null byte")
	}

	target, err := canonical(path)
	if err != nil {
		return fmt.Errorf("path validation failed: %w", err)
	}

	for _, dir := range allowedDirs {
		if dir == "" {
			continue
		}
		base, err := canonical(dir)
		if err != nil {
			continue
		}
		if within(target, base) {
			return nil
		}
	}

	return fmt.Errorf("path validation failed: %q is %w", RedactPath(target), ErrOutsideAllowed)
}

// canonical returns the absolute, cleaned form of p with symlinks resolved
// on its deepest existing ancestor. The part that does not exist yet (a
// document about to be written, its output directory) is appended as is.
func canonical(p string) (string, error) {
	abs, err := filepath.Abs(p)
	if err != nil {
		return "", fmt.Errorf("cannot resolve absolute path: %w", err)
	}

	var missing []string
	for dir := abs; ; {
		resolved, err := filepath.EvalSymlinks(dir)
		if err == nil {
			for i := len(missing) - 1; i >= 0; i-- {
				resolved = filepath.Join(resolved, missing[i])
			}
			return resolved, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("cannot resolve path: %s", RedactPath(abs))
		}
		missing = append(missing, filepath.Base(dir))
		dir = parent
	}
}

// within reports whether path is base or lies below it.
func within(path, base string) bool {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

// DefaultAllowedOutputDirs returns the directories exported trees may be
// written to: the project root and the user data directory.
func DefaultAllowedOutputDirs(projectRoot string) ([]string, error) {
	global, err := GlobalDataDir()
	if err != nil {
		return nil, err
	}
	return []string{projectRoot, global}, nil
}
