package attribute

import (
	"fmt"

	"github.com/nvandessel/qualsim/internal/quantity"
)

// State is the full observable state of a cell. It is what snapshots store.
type State struct {
	Value     Value              `json:"value" yaml:"value"`
	Trend     quantity.Direction `json:"trend" yaml:"trend"`
	LastKnown string             `json:"last_known,omitempty" yaml:"last_known,omitempty"`
	LastTrend quantity.Direction `json:"last_trend,omitempty" yaml:"last_trend,omitempty"`
}

// Cell is the runtime holder of one attribute of one object instance.
// A cell is owned by exactly one instance; branches never share cells.
//
// Invariants:
//   - value is concrete, a non-empty candidate set, or unknown
//   - when a trend drives the value to unknown, lastKnown is the concrete
//     bound held before and lastTrend the direction; re-asserting a trend
//     never clears them
type Cell struct {
	path      Path
	spec      *Spec
	value     Value
	trend     quantity.Direction
	lastKnown string
	lastTrend quantity.Direction
}

// NewCell creates a cell holding the spec's initial value.
func NewCell(path Path, spec *Spec) *Cell {
	return &Cell{
		path:  path,
		spec:  spec,
		value: spec.InitialValue(),
		trend: quantity.DirectionNone,
	}
}

func (c *Cell) Path() Path                    { return c.path }
func (c *Cell) Spec() *Spec                   { return c.spec }
func (c *Cell) Space() *quantity.Space        { return c.spec.Space }
func (c *Cell) Value() Value                  { return c.value }
func (c *Cell) Trend() quantity.Direction     { return c.trend }
func (c *Cell) LastTrend() quantity.Direction { return c.lastTrend }

// LastKnown returns the last concrete bound recorded before the value was
// lost. ok is false when no bound has been recorded.
func (c *Cell) LastKnown() (string, bool) {
	return c.lastKnown, c.lastKnown != ""
}

// State returns the cell's observable state.
func (c *Cell) State() State {
	return State{
		Value:     c.value,
		Trend:     c.trend,
		LastKnown: c.lastKnown,
		LastTrend: c.lastTrend,
	}
}

// Candidates returns every level the attribute may currently hold, in space
// order: the level itself, the members of a set, or the levels allowed by
// the last-known bound for unknown values.
func (c *Cell) Candidates() []string {
	switch c.value.Kind() {
	case KindConcrete:
		return []string{c.value.Level()}
	case KindSet:
		return c.spec.Space.Sort(c.value.Levels())
	default:
		return BoundedLevels(c.spec.Space, c.lastKnown, c.lastTrend)
	}
}

// Clone returns an independent copy of the cell.
func (c *Cell) Clone() *Cell {
	cp := *c
	return &cp
}

// Set overwrites the value with a concrete level and stops any trend.
func (c *Cell) Set(level string) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	if !c.spec.Space.Contains(level) {
		return &MutationError{Path: c.path, Reason: fmt.Sprintf("%q is not a level of %s", level, c.spec.Space)}
	}
	c.value = Concrete(level)
	c.trend = quantity.DirectionNone
	c.lastKnown = ""
	c.lastTrend = ""
	return nil
}

// Narrow restricts the value to a subset of its current candidates. It
// refines knowledge rather than mutating the modeled object, so it is
// allowed on immutable attributes. Trend and bookkeeping are kept.
func (c *Cell) Narrow(levels ...string) error {
	if len(levels) == 0 {
		return &MutationError{Path: c.path, Reason: "cannot narrow to an empty set"}
	}
	candidates := c.Candidates()
	allowed := make(map[string]bool, len(candidates))
	for _, l := range candidates {
		allowed[l] = true
	}
	for _, l := range levels {
		if !allowed[l] {
			return &MutationError{Path: c.path, Reason: fmt.Sprintf("%q is not a candidate (candidates: %v)", l, candidates)}
		}
	}
	c.value = Set(c.spec.Space.Sort(levels)...)
	return nil
}

// Drift applies a trend effect. Up or down loses the exact level: the value
// becomes unknown and the bound it was known to be within is recorded. For a
// concrete value the bound is that value. For a candidate set it is the
// highest candidate when drifting down and the lowest when drifting up.
// Re-asserting the current drift keeps the recorded bound. Reversing it
// re-anchors the bound at the opposite extreme of the allowed range. Drift
// none stops the trend and keeps value and bookkeeping.
func (c *Cell) Drift(d quantity.Direction) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	if !d.IsMoving() {
		c.trend = quantity.DirectionNone
		return nil
	}

	space := c.spec.Space
	switch c.value.Kind() {
	case KindConcrete:
		c.lastKnown = c.value.Level()
	case KindSet:
		lo, hi, _ := space.Bounds(c.value.Levels())
		if d == quantity.DirectionDown {
			c.lastKnown = hi
		} else {
			c.lastKnown = lo
		}
	case KindUnknown:
		if c.lastTrend != d || c.lastKnown == "" {
			allowed := BoundedLevels(space, c.lastKnown, c.lastTrend)
			if d == quantity.DirectionDown {
				c.lastKnown = allowed[len(allowed)-1]
			} else {
				c.lastKnown = allowed[0]
			}
		}
	}

	c.value = Unknown()
	c.trend = d
	c.lastTrend = d
	return nil
}

// StepValue moves the value one level in direction d. Candidate sets are
// stepped member-wise. For unknown values the recorded bound is stepped,
// which stays sound because stepping is monotonic.
func (c *Cell) StepValue(d quantity.Direction) error {
	if err := c.checkMutable(); err != nil {
		return err
	}
	space := c.spec.Space
	switch c.value.Kind() {
	case KindConcrete:
		c.value = Concrete(space.Step(c.value.Level(), d))
	case KindSet:
		stepped := make([]string, 0, len(c.value.levels))
		for _, l := range c.value.levels {
			stepped = append(stepped, space.Step(l, d))
		}
		c.value = Set(space.Sort(stepped)...)
	case KindUnknown:
		if c.lastKnown != "" {
			c.lastKnown = space.Step(c.lastKnown, d)
		}
	}
	return nil
}

// Restore replaces the cell's state wholesale, as when an instance is rebuilt
// from a snapshot. Levels are checked against the space; mutability is not.
func (c *Cell) Restore(s State) error {
	space := c.spec.Space
	switch s.Value.Kind() {
	case KindConcrete, KindSet:
		for _, l := range s.Value.Levels() {
			if !space.Contains(l) {
				return &MutationError{Path: c.path, Reason: fmt.Sprintf("%q is not a level of %s", l, space)}
			}
		}
	case KindUnknown:
	default:
		return &MutationError{Path: c.path, Reason: "value is missing"}
	}
	if s.LastKnown != "" && !space.Contains(s.LastKnown) {
		return &MutationError{Path: c.path, Reason: fmt.Sprintf("last-known %q is not a level of %s", s.LastKnown, space)}
	}
	c.value = s.Value.Normalize(space)
	c.trend = orNone(s.Trend)
	c.lastKnown = s.LastKnown
	c.lastTrend = ""
	if s.LastTrend.IsMoving() {
		c.lastTrend = s.LastTrend
	}
	return nil
}

func (c *Cell) checkMutable() error {
	if !c.spec.Mutable {
		return &MutationError{Path: c.path, Reason: "attribute is immutable"}
	}
	return nil
}

func orNone(d quantity.Direction) quantity.Direction {
	if d == "" {
		return quantity.DirectionNone
	}
	return d
}
