package constants

import "fmt"

// Scope selects which data directories a command reads knowledge bases and
// runs from: the project's .qualsim, the user's ~/.qualsim, or both.
type Scope string

const (
	// ScopeLocal reads only the project data directory
	ScopeLocal Scope = "local"

	// ScopeGlobal reads only the user data directory
	ScopeGlobal Scope = "global"

	// ScopeBoth reads the user directory first, then the project directory
	ScopeBoth Scope = "both"
)

// ParseScope validates a --scope flag value. The empty string is local.
func ParseScope(s string) (Scope, error) {
	if s == "" {
		return ScopeLocal, nil
	}
	sc := Scope(s)
	if !sc.Valid() {
		return "", fmt.Errorf("invalid scope %q (valid: local, global, both)", s)
	}
	return sc, nil
}

// Valid returns true if the scope is a recognized value.
func (s Scope) Valid() bool {
	switch s {
	case ScopeLocal, ScopeGlobal, ScopeBoth:
		return true
	}
	return false
}

// IncludesLocal reports whether the project directory is read.
func (s Scope) IncludesLocal() bool { return s == ScopeLocal || s == ScopeBoth }

// IncludesGlobal reports whether the user directory is read.
func (s Scope) IncludesGlobal() bool { return s == ScopeGlobal || s == ScopeBoth }

// String returns the string representation of the scope.
func (s Scope) String() string {
	return string(s)
}
