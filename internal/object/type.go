// Package object models object types (parts with attribute schemas plus
// dependency constraints) and their runtime instances and snapshots.
package object

import (
	"errors"
	"fmt"
	"strings"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/constraint"
)

// ErrUnknownAttribute is returned when a path does not address a declared
// attribute of the object type.
var ErrUnknownAttribute = errors.New("unknown attribute")

// Part is a named component of an object type.
type Part struct {
	Name       string
	Attributes []*attribute.Spec
}

// Type is the schema of a family of objects. Types are read-only once loaded
// and are shared by every instance and branch.
type Type struct {
	Name        string
	Version     string
	Parts       []Part
	Globals     []*attribute.Spec
	Constraints []constraint.Dependency
}

// Key identifies a type version in a registry.
func (t *Type) Key() string {
	if t.Version == "" {
		return t.Name
	}
	return t.Name + "@" + t.Version
}

// Paths returns every attribute path in declaration order: parts first, then
// globals.
func (t *Type) Paths() []attribute.Path {
	var out []attribute.Path
	for _, p := range t.Parts {
		for _, a := range p.Attributes {
			out = append(out, attribute.In(p.Name, a.Name))
		}
	}
	for _, g := range t.Globals {
		out = append(out, attribute.Global(g.Name))
	}
	return out
}

// Spec returns the attribute spec addressed by path.
func (t *Type) Spec(path attribute.Path) (*attribute.Spec, error) {
	if path.IsGlobal() {
		for _, g := range t.Globals {
			if g.Name == path.Attribute {
				return g, nil
			}
		}
		return nil, fmt.Errorf("%s: %s: %w", t.Key(), path, ErrUnknownAttribute)
	}
	for _, p := range t.Parts {
		if p.Name != path.Part {
			continue
		}
		for _, a := range p.Attributes {
			if a.Name == path.Attribute {
				return a, nil
			}
		}
	}
	return nil, fmt.Errorf("%s: %s: %w", t.Key(), path, ErrUnknownAttribute)
}

// Validate checks names, attribute specs and that every constraint only
// references declared attributes and levels.
func (t *Type) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("object type name is required")
	}

	parts := make(map[string]bool, len(t.Parts))
	for _, p := range t.Parts {
		if p.Name == "" || strings.Contains(p.Name, ".") {
			return fmt.Errorf("%s: invalid part name %q", t.Key(), p.Name)
		}
		if parts[p.Name] {
			return fmt.Errorf("%s: duplicate part %q", t.Key(), p.Name)
		}
		parts[p.Name] = true
		if err := validateSpecs(t.Key()+"."+p.Name, p.Attributes); err != nil {
			return err
		}
	}
	if err := validateSpecs(t.Key(), t.Globals); err != nil {
		return err
	}

	names := make(map[string]bool, len(t.Constraints))
	for _, c := range t.Constraints {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("%s: %w", t.Key(), err)
		}
		if names[c.Name] {
			return fmt.Errorf("%s: duplicate constraint %q", t.Key(), c.Name)
		}
		names[c.Name] = true
		for _, p := range c.Paths() {
			if _, err := t.Spec(p); err != nil {
				return fmt.Errorf("constraint %q: %w", c.Name, err)
			}
		}
		for _, corr := range c.Corrections {
			spec, _ := t.Spec(corr.Target)
			if !spec.Mutable {
				return fmt.Errorf("constraint %q: correction target %s is immutable", c.Name, corr.Target)
			}
			if !spec.Space.Contains(corr.Value) {
				return fmt.Errorf("constraint %q: correction %s = %q is not a level of %s", c.Name, corr.Target, corr.Value, spec.Space)
			}
		}
	}
	return nil
}

func validateSpecs(scope string, specs []*attribute.Spec) error {
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return fmt.Errorf("%s: %w", scope, err)
		}
		if strings.Contains(s.Name, ".") {
			return fmt.Errorf("%s: invalid attribute name %q", scope, s.Name)
		}
		if seen[s.Name] {
			return fmt.Errorf("%s: duplicate attribute %q", scope, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}
