// Package transition applies actions to object instances: precondition
// checks, ordered effects, constraint correction and the resulting diff.
package transition

import (
	"fmt"
	"strings"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/condition"
	"github.com/nvandessel/qualsim/internal/object"
	"github.com/nvandessel/qualsim/internal/quantity"
)

// EffectKind selects how an effect changes its target.
type EffectKind string

const (
	EffectSet   EffectKind = "set"
	EffectStep  EffectKind = "step"
	EffectTrend EffectKind = "trend"
)

// Effect is one state change of an action.
type Effect struct {
	Kind   EffectKind
	Target attribute.Path
	// Value is the level written by a set effect. "$name" is replaced by the
	// apply parameter of that name.
	Value     string
	Direction quantity.Direction
	// When guards the effect. It is evaluated in the state the action is
	// applied to; a nil guard always fires.
	When *condition.Condition
}

func (e Effect) String() string {
	var s string
	switch e.Kind {
	case EffectSet:
		s = fmt.Sprintf("set %s = %s", e.Target, e.Value)
	default:
		s = fmt.Sprintf("%s %s %s", e.Kind, e.Target, e.Direction)
	}
	if e.When != nil {
		s += " when " + e.When.String()
	}
	return s
}

// Action is a named state change declared by the knowledge base for one
// object type.
type Action struct {
	Name          string
	ObjectType    string
	Preconditions *condition.Condition
	Effects       []Effect
	Parameters    []string
}

// Validate checks the action against the object type it applies to.
func (a *Action) Validate(t *object.Type) error {
	if a.Name == "" {
		return fmt.Errorf("action name is required")
	}
	if a.ObjectType != t.Name {
		return fmt.Errorf("action %q: declared for %q, not %q", a.Name, a.ObjectType, t.Name)
	}
	params := make(map[string]bool, len(a.Parameters))
	for _, p := range a.Parameters {
		params[p] = true
	}
	if a.Preconditions != nil {
		if err := validateCondition(t, *a.Preconditions); err != nil {
			return fmt.Errorf("action %q: preconditions: %w", a.Name, err)
		}
	}
	for i, e := range a.Effects {
		if err := validateEffect(t, e, params); err != nil {
			return fmt.Errorf("action %q: effect %d (%s): %w", a.Name, i, e, err)
		}
	}
	return nil
}

func validateCondition(t *object.Type, c condition.Condition) error {
	if err := c.Validate(); err != nil {
		return err
	}
	for _, leaf := range c.Leaves() {
		spec, err := t.Spec(leaf.Target)
		if err != nil {
			return err
		}
		for _, v := range leaf.Values {
			if !spec.Space.Contains(v) {
				return fmt.Errorf("%s: %q in %s: %w", leaf.Target, v, spec.Space, condition.ErrUnknownLevel)
			}
		}
	}
	return nil
}

func validateEffect(t *object.Type, e Effect, params map[string]bool) error {
	spec, err := t.Spec(e.Target)
	if err != nil {
		return err
	}
	switch e.Kind {
	case EffectSet:
		if name, ok := paramName(e.Value); ok {
			if !params[name] {
				return fmt.Errorf("undeclared parameter %q", name)
			}
		} else if !spec.Space.Contains(e.Value) {
			return fmt.Errorf("%q is not a level of %s", e.Value, spec.Space)
		}
	case EffectStep:
		if !e.Direction.IsMoving() {
			return fmt.Errorf("step needs direction up or down")
		}
	case EffectTrend:
		if _, err := quantity.ParseDirection(string(e.Direction)); err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown effect kind %q", e.Kind)
	}
	if e.When != nil {
		if err := validateCondition(t, *e.When); err != nil {
			return fmt.Errorf("when: %w", err)
		}
	}
	return nil
}

func paramName(v string) (string, bool) {
	if strings.HasPrefix(v, "$") && len(v) > 1 {
		return v[1:], true
	}
	return "", false
}

// resolveValue substitutes a "$name" value from params.
func resolveValue(v string, params map[string]string) (string, error) {
	name, ok := paramName(v)
	if !ok {
		return v, nil
	}
	val, ok := params[name]
	if !ok {
		return "", fmt.Errorf("missing parameter %q", name)
	}
	return val, nil
}
