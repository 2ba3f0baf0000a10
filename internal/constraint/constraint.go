// Package constraint validates dependency constraints between attributes of
// an object instance.
package constraint

import (
	"fmt"
	"strings"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/condition"
)

// Dependency states that whenever Condition holds, Requires must hold too.
// Corrections are set-effects applied by the transition engine to repair a
// violation before rejecting the action.
type Dependency struct {
	Name        string
	Condition   condition.Condition
	Requires    condition.Condition
	Corrections []Correction
}

// Correction overwrites one attribute with a concrete level.
type Correction struct {
	Target attribute.Path
	Value  string
}

// Validate checks both condition trees and the corrections.
func (d Dependency) Validate() error {
	if d.Name == "" {
		return fmt.Errorf("constraint name is required")
	}
	if err := d.Condition.Validate(); err != nil {
		return fmt.Errorf("constraint %q: condition: %w", d.Name, err)
	}
	if err := d.Requires.Validate(); err != nil {
		return fmt.Errorf("constraint %q: requires: %w", d.Name, err)
	}
	for i, c := range d.Corrections {
		if c.Target.Attribute == "" || c.Value == "" {
			return fmt.Errorf("constraint %q: correction %d needs a target and a value", d.Name, i)
		}
	}
	return nil
}

// Paths returns every attribute path the constraint reads or writes.
func (d Dependency) Paths() []attribute.Path {
	var out []attribute.Path
	for _, leaf := range d.Condition.Leaves() {
		out = append(out, leaf.Target)
	}
	for _, leaf := range d.Requires.Leaves() {
		out = append(out, leaf.Target)
	}
	for _, c := range d.Corrections {
		out = append(out, c.Target)
	}
	return out
}

// Violation records a constraint whose condition holds while its requirement
// does not.
type Violation struct {
	Constraint string `json:"constraint" yaml:"constraint"`
	Condition  string `json:"condition" yaml:"condition"`
	Requires   string `json:"requires" yaml:"requires"`
}

func (v Violation) String() string {
	return fmt.Sprintf("%s: %s requires %s", v.Constraint, v.Condition, v.Requires)
}

// Validate evaluates every constraint against r and returns all violations.
// A constraint is violated only when its condition is definitely true and its
// requirement definitely false; indeterminate results are not violations.
func Validate(r condition.Resolver, constraints []Dependency) ([]Violation, error) {
	var violations []Violation
	for _, d := range constraints {
		cond, err := condition.Evaluate(d.Condition, r)
		if err != nil {
			return nil, fmt.Errorf("constraint %q: %w", d.Name, err)
		}
		if cond.Truth != condition.True {
			continue
		}
		req, err := condition.Evaluate(d.Requires, r)
		if err != nil {
			return nil, fmt.Errorf("constraint %q: %w", d.Name, err)
		}
		if req.Truth != condition.False {
			continue
		}
		violations = append(violations, Violation{
			Constraint: d.Name,
			Condition:  d.Condition.String(),
			Requires:   condition.Describe(req, r),
		})
	}
	return violations, nil
}

// ValidationError is returned when an instance is constructed in a state that
// violates its constraints.
type ValidationError struct {
	Object     string
	Violations []Violation
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Violations))
	for i, v := range e.Violations {
		parts[i] = v.String()
	}
	return fmt.Sprintf("%s violates %d constraint(s): %s", e.Object, len(e.Violations), strings.Join(parts, "; "))
}
