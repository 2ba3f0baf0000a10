package object

import (
	"fmt"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/constraint"
	"github.com/nvandessel/qualsim/internal/quantity"
)

// Instance is one object of a Type: a cell per declared attribute. Each
// branch of a simulation owns its own instance; Clone never shares cells.
type Instance struct {
	typ   *Type
	cells map[attribute.Path]*attribute.Cell
	order []attribute.Path
}

func newInstance(t *Type) *Instance {
	paths := t.Paths()
	inst := &Instance{
		typ:   t,
		cells: make(map[attribute.Path]*attribute.Cell, len(paths)),
		order: paths,
	}
	for _, p := range paths {
		spec, _ := t.Spec(p)
		inst.cells[p] = attribute.NewCell(p, spec)
	}
	return inst
}

// New instantiates t with every attribute at its default and checks the
// constraints. Violations are returned as *constraint.ValidationError.
func New(t *Type) (*Instance, error) {
	return NewWithValues(t, nil)
}

// NewWithValues instantiates t and overrides the listed attributes before
// validating. Overrides are initial configuration, so immutable attributes
// may be given any level of their space.
func NewWithValues(t *Type, values map[attribute.Path]attribute.Value) (*Instance, error) {
	inst := newInstance(t)
	for _, p := range inst.order {
		v, ok := values[p]
		if !ok {
			continue
		}
		if err := inst.cells[p].Restore(attribute.State{Value: v, Trend: quantity.DirectionNone}); err != nil {
			return nil, err
		}
	}
	for p := range values {
		if _, ok := inst.cells[p]; !ok {
			return nil, fmt.Errorf("%s: %s: %w", t.Key(), p, ErrUnknownAttribute)
		}
	}
	if err := inst.Validate(); err != nil {
		return nil, err
	}
	return inst, nil
}

// FromSnapshot rebuilds an instance from a snapshot taken of an instance of
// t. Constraints are not checked: rejected states are snapshotted too.
func FromSnapshot(t *Type, s *Snapshot) (*Instance, error) {
	inst := newInstance(t)
	for _, p := range s.Paths() {
		cell, ok := inst.cells[p]
		if !ok {
			return nil, fmt.Errorf("%s: snapshot path %s: %w", t.Key(), p, ErrUnknownAttribute)
		}
		st, _ := s.State(p)
		if err := cell.Restore(st); err != nil {
			return nil, err
		}
	}
	return inst, nil
}

func (i *Instance) Type() *Type { return i.typ }

// Paths returns attribute paths in declaration order.
func (i *Instance) Paths() []attribute.Path {
	return append([]attribute.Path(nil), i.order...)
}

// Cell returns the cell at path.
func (i *Instance) Cell(path attribute.Path) (*attribute.Cell, error) {
	c, ok := i.cells[path]
	if !ok {
		return nil, fmt.Errorf("%s: %s: %w", i.typ.Key(), path, ErrUnknownAttribute)
	}
	return c, nil
}

// Resolve implements condition.Resolver.
func (i *Instance) Resolve(path attribute.Path) (attribute.Value, *quantity.Space, error) {
	c, err := i.Cell(path)
	if err != nil {
		return attribute.Value{}, nil, err
	}
	return c.Value(), c.Space(), nil
}

// SetAttributeValue commits a level chosen for path. For a concrete cell this
// is a mutation and requires a mutable attribute. For a candidate set or an
// unknown cell it resolves the uncertainty, and the level must be one of the
// cell's candidates.
func (i *Instance) SetAttributeValue(path attribute.Path, level string) error {
	c, err := i.Cell(path)
	if err != nil {
		return err
	}
	if c.Value().IsConcrete() {
		return c.Set(level)
	}
	return c.Narrow(level)
}

// Clone returns a deep copy.
func (i *Instance) Clone() *Instance {
	cp := &Instance{
		typ:   i.typ,
		cells: make(map[attribute.Path]*attribute.Cell, len(i.cells)),
		order: i.order,
	}
	for p, c := range i.cells {
		cp.cells[p] = c.Clone()
	}
	return cp
}

// CloneWithValues returns a deep copy with the listed attributes narrowed to
// the given concrete levels or candidate sets. The receiver is not modified.
func (i *Instance) CloneWithValues(values map[attribute.Path]attribute.Value) (*Instance, error) {
	cp := i.Clone()
	for _, p := range i.order {
		v, ok := values[p]
		if !ok {
			continue
		}
		if v.IsUnknown() || v.IsZero() {
			return nil, fmt.Errorf("%s: cannot narrow to %s", p, v)
		}
		if err := cp.cells[p].Narrow(v.Levels()...); err != nil {
			return nil, err
		}
	}
	for p := range values {
		if _, ok := i.cells[p]; !ok {
			return nil, fmt.Errorf("%s: %s: %w", i.typ.Key(), p, ErrUnknownAttribute)
		}
	}
	return cp, nil
}

// Violations runs the constraint engine over the instance.
func (i *Instance) Violations() ([]constraint.Violation, error) {
	return constraint.Validate(i, i.typ.Constraints)
}

// Validate returns a *constraint.ValidationError when any constraint is
// violated.
func (i *Instance) Validate() error {
	v, err := i.Violations()
	if err != nil {
		return err
	}
	if len(v) > 0 {
		return &constraint.ValidationError{Object: i.typ.Key(), Violations: v}
	}
	return nil
}

// Snapshot captures the full state of the instance.
func (i *Instance) Snapshot() *Snapshot {
	s := &Snapshot{
		object: i.typ.Key(),
		order:  i.order,
		states: make(map[attribute.Path]attribute.State, len(i.cells)),
	}
	for p, c := range i.cells {
		s.states[p] = c.State()
	}
	return s
}
