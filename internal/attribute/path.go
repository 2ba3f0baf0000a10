// Package attribute provides the attribute schema (Spec), the runtime
// attribute cell that holds a possibly uncertain value, and the Value and
// Path types shared by the condition, transition and simulation packages.
package attribute

import (
	"fmt"
	"strings"
)

// Path addresses an attribute either inside a part ("battery.level") or in
// the instance's global scope ("temperature").
type Path struct {
	Part      string
	Attribute string
}

// Global returns the path of a global attribute.
func Global(attribute string) Path {
	return Path{Attribute: attribute}
}

// In returns the path of an attribute that belongs to a part.
func In(part, attribute string) Path {
	return Path{Part: part, Attribute: attribute}
}

// ParsePath parses "part.attribute" or "attribute".
func ParsePath(s string) (Path, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Path{}, fmt.Errorf("attribute path is empty")
	}
	parts := strings.Split(s, ".")
	switch len(parts) {
	case 1:
		return Path{Attribute: parts[0]}, nil
	case 2:
		if parts[0] == "" || parts[1] == "" {
			return Path{}, fmt.Errorf("invalid attribute path %q", s)
		}
		return Path{Part: parts[0], Attribute: parts[1]}, nil
	default:
		return Path{}, fmt.Errorf("invalid attribute path %q (use part.attribute or attribute)", s)
	}
}

// MustParsePath is like ParsePath but panics on error.
func MustParsePath(s string) Path {
	p, err := ParsePath(s)
	if err != nil {
		panic(err)
	}
	return p
}

// IsGlobal reports whether the path addresses a global attribute.
func (p Path) IsGlobal() bool {
	return p.Part == ""
}

func (p Path) String() string {
	if p.Part == "" {
		return p.Attribute
	}
	return p.Part + "." + p.Attribute
}

// MarshalText lets paths be used as JSON object keys.
func (p Path) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Path) UnmarshalText(b []byte) error {
	parsed, err := ParsePath(string(b))
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}
