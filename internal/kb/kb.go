// Package kb loads knowledge bases: YAML documents declaring quantity
// spaces, object types with their constraints, actions and scenarios. A
// loaded KnowledgeBase is read-only and safe for concurrent use.
package kb

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/constraint"
	"github.com/nvandessel/qualsim/internal/object"
	"github.com/nvandessel/qualsim/internal/quantity"
	"github.com/nvandessel/qualsim/internal/simulation"
	"github.com/nvandessel/qualsim/internal/transition"
)

// ErrNotFound is wrapped by lookups of names the knowledge base does not
// declare.
var ErrNotFound = errors.New("not found")

// Kind names the section of a document a LoadError refers to.
type Kind string

const (
	KindFile       Kind = "file"
	KindSpace      Kind = "quantity_space"
	KindObjectType Kind = "object_type"
	KindConstraint Kind = "constraint"
	KindAction     Kind = "action"
	KindScenario   Kind = "scenario"
)

// LoadError reports a malformed or inconsistent knowledge base entry.
type LoadError struct {
	File string
	Kind Kind
	Name string
	Err  error
}

func (e *LoadError) Error() string {
	var b strings.Builder
	b.WriteString("knowledge base")
	if e.File != "" {
		b.WriteString(" ")
		b.WriteString(e.File)
	}
	if e.Name != "" {
		fmt.Fprintf(&b, ": %s %q", e.Kind, e.Name)
	}
	b.WriteString(": ")
	b.WriteString(e.Err.Error())
	return b.String()
}

func (e *LoadError) Unwrap() error { return e.Err }

// ScenarioSpec is a declared scenario: the initial attribute values of one
// object type and the steps to simulate.
type ScenarioSpec struct {
	Name       string
	ObjectType string
	Initial    map[attribute.Path]attribute.Value
	Steps      []simulation.Step
}

type actionKey struct {
	objectType string
	name       string
}

// KnowledgeBase holds the registries built from one or more documents.
type KnowledgeBase struct {
	files       []string
	spaces      map[string]*quantity.Space
	types       map[string]*object.Type
	byName      map[string][]*object.Type
	actions     map[actionKey]*transition.Action
	constraints map[actionKey]constraint.Dependency
	scenarios   map[string]*ScenarioSpec
}

func newKnowledgeBase() *KnowledgeBase {
	return &KnowledgeBase{
		spaces:      make(map[string]*quantity.Space),
		types:       make(map[string]*object.Type),
		byName:      make(map[string][]*object.Type),
		actions:     make(map[actionKey]*transition.Action),
		constraints: make(map[actionKey]constraint.Dependency),
		scenarios:   make(map[string]*ScenarioSpec),
	}
}

// Files returns the files the knowledge base was loaded from.
func (k *KnowledgeBase) Files() []string {
	return append([]string(nil), k.files...)
}

// Space returns a quantity space by name.
func (k *KnowledgeBase) Space(name string) (*quantity.Space, error) {
	s, ok := k.spaces[name]
	if !ok {
		return nil, fmt.Errorf("quantity space %q: %w", name, ErrNotFound)
	}
	return s, nil
}

// Spaces returns every quantity space sorted by name.
func (k *KnowledgeBase) Spaces() []*quantity.Space {
	out := make([]*quantity.Space, 0, len(k.spaces))
	for _, s := range k.spaces {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// ObjectType returns a type by "name" or "name@version". A bare name that
// matches several versions is ambiguous.
func (k *KnowledgeBase) ObjectType(ref string) (*object.Type, error) {
	if t, ok := k.types[ref]; ok {
		return t, nil
	}
	versions := k.byName[ref]
	switch len(versions) {
	case 0:
		return nil, fmt.Errorf("object type %q: %w", ref, ErrNotFound)
	case 1:
		return versions[0], nil
	default:
		keys := make([]string, len(versions))
		for i, t := range versions {
			keys[i] = t.Key()
		}
		return nil, fmt.Errorf("object type %q is ambiguous (%s)", ref, strings.Join(keys, ", "))
	}
}

// ObjectTypes returns every type sorted by key.
func (k *KnowledgeBase) ObjectTypes() []*object.Type {
	out := make([]*object.Type, 0, len(k.types))
	for _, t := range k.types {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out
}

// Action returns the action name declared for objectType. It makes a
// KnowledgeBase usable as a simulation.ActionLookup.
func (k *KnowledgeBase) Action(objectType, name string) (*transition.Action, error) {
	a, ok := k.actions[actionKey{objectType, name}]
	if !ok {
		return nil, fmt.Errorf("action %q for %s: %w", name, objectType, ErrNotFound)
	}
	return a, nil
}

// Actions returns the actions declared for objectType sorted by name.
func (k *KnowledgeBase) Actions(objectType string) []*transition.Action {
	var out []*transition.Action
	for key, a := range k.actions {
		if key.objectType == objectType {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Constraint returns the dependency constraint name of objectType.
func (k *KnowledgeBase) Constraint(objectType, name string) (constraint.Dependency, error) {
	c, ok := k.constraints[actionKey{objectType, name}]
	if !ok {
		return constraint.Dependency{}, fmt.Errorf("constraint %q for %s: %w", name, objectType, ErrNotFound)
	}
	return c, nil
}

// ScenarioSpec returns a declared scenario by name.
func (k *KnowledgeBase) ScenarioSpec(name string) (*ScenarioSpec, error) {
	s, ok := k.scenarios[name]
	if !ok {
		return nil, fmt.Errorf("scenario %q: %w", name, ErrNotFound)
	}
	return s, nil
}

// ScenarioSpecs returns every declared scenario sorted by name.
func (k *KnowledgeBase) ScenarioSpecs() []*ScenarioSpec {
	out := make([]*ScenarioSpec, 0, len(k.scenarios))
	for _, s := range k.scenarios {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Scenario instantiates a declared scenario. Each call returns a fresh
// instance.
func (k *KnowledgeBase) Scenario(name string) (simulation.Scenario, error) {
	spec, err := k.ScenarioSpec(name)
	if err != nil {
		return simulation.Scenario{}, err
	}
	return k.instantiate(spec)
}

func (k *KnowledgeBase) instantiate(spec *ScenarioSpec) (simulation.Scenario, error) {
	t, err := k.ObjectType(spec.ObjectType)
	if err != nil {
		return simulation.Scenario{}, err
	}
	inst, err := object.NewWithValues(t, spec.Initial)
	if err != nil {
		return simulation.Scenario{}, fmt.Errorf("scenario %q: %w", spec.Name, err)
	}
	return simulation.Scenario{
		Name:     spec.Name,
		Instance: inst,
		Steps:    append([]simulation.Step(nil), spec.Steps...),
	}, nil
}
