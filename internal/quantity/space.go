// Package quantity provides ordered symbolic value domains (quantity spaces)
// and the clamped stepping used to move an attribute between adjacent levels.
package quantity

import (
	"fmt"
	"strings"
)

// UnknownLevel is the reserved sentinel rendered for attributes whose level
// has been lost. It can never be declared as a level of a space.
const UnknownLevel = "unknown"

// Direction is a monotonic drift direction. It doubles as an attribute trend.
type Direction string

const (
	DirectionUp   Direction = "up"
	DirectionDown Direction = "down"
	DirectionNone Direction = "none"
)

// ParseDirection maps a string to a Direction. The empty string is none.
func ParseDirection(s string) (Direction, error) {
	switch Direction(strings.ToLower(strings.TrimSpace(s))) {
	case DirectionUp:
		return DirectionUp, nil
	case DirectionDown:
		return DirectionDown, nil
	case DirectionNone, "":
		return DirectionNone, nil
	default:
		return DirectionNone, fmt.Errorf("invalid direction %q (valid: up, down, none)", s)
	}
}

// Opposite returns the reverse direction. None has no opposite.
func (d Direction) Opposite() Direction {
	switch d {
	case DirectionUp:
		return DirectionDown
	case DirectionDown:
		return DirectionUp
	default:
		return DirectionNone
	}
}

// IsMoving reports whether d is up or down.
func (d Direction) IsMoving() bool {
	return d == DirectionUp || d == DirectionDown
}

// Space is an ordered, finite set of qualitative levels, lowest first.
// A Space is immutable once created and safe for concurrent reads.
type Space struct {
	Name   string
	Levels []string

	index map[string]int
}

// New creates a quantity space. Levels must be non-empty and unique, and may
// not use the reserved UnknownLevel sentinel.
func New(name string, levels ...string) (*Space, error) {
	if name == "" {
		return nil, fmt.Errorf("quantity space name is required")
	}
	if len(levels) == 0 {
		return nil, fmt.Errorf("quantity space %q: at least one level is required", name)
	}

	index := make(map[string]int, len(levels))
	for i, l := range levels {
		if l == "" {
			return nil, fmt.Errorf("quantity space %q: level %d is empty", name, i)
		}
		if l == UnknownLevel {
			return nil, fmt.Errorf("quantity space %q: %q is reserved", name, UnknownLevel)
		}
		if _, dup := index[l]; dup {
			return nil, fmt.Errorf("quantity space %q: duplicate level %q", name, l)
		}
		index[l] = i
	}

	return &Space{
		Name:   name,
		Levels: append([]string(nil), levels...),
		index:  index,
	}, nil
}

// MustNew is like New but panics on error. Intended for tests and fixtures.
func MustNew(name string, levels ...string) *Space {
	s, err := New(name, levels...)
	if err != nil {
		panic(err)
	}
	return s
}

// Len returns the number of levels.
func (s *Space) Len() int {
	return len(s.Levels)
}

// Index returns the position of level, or -1 when it is not part of the space.
func (s *Space) Index(level string) int {
	if i, ok := s.index[level]; ok {
		return i
	}
	return -1
}

// Contains reports whether level belongs to the space.
func (s *Space) Contains(level string) bool {
	return s.Index(level) >= 0
}

// Lowest returns the first level.
func (s *Space) Lowest() string {
	return s.Levels[0]
}

// Highest returns the last level.
func (s *Space) Highest() string {
	return s.Levels[len(s.Levels)-1]
}

// Clamp returns level when it belongs to the space and the lowest level
// otherwise. Mapping unrecognized input to index 0 is lossy but never fails.
func (s *Space) Clamp(level string) string {
	if s.Contains(level) {
		return level
	}
	return s.Levels[0]
}

// Step moves level one position in direction d, clamped at both boundaries.
// Step(v, DirectionNone) == Clamp(v).
func (s *Space) Step(level string, d Direction) string {
	i := s.Index(s.Clamp(level))
	switch d {
	case DirectionUp:
		i++
	case DirectionDown:
		i--
	}
	if i < 0 {
		i = 0
	}
	if i > len(s.Levels)-1 {
		i = len(s.Levels) - 1
	}
	return s.Levels[i]
}

// AtOrBelow returns the levels whose index is <= index(level), in order.
// Unrecognized input returns nil.
func (s *Space) AtOrBelow(level string) []string {
	i := s.Index(level)
	if i < 0 {
		return nil
	}
	return append([]string(nil), s.Levels[:i+1]...)
}

// AtOrAbove returns the levels whose index is >= index(level), in order.
// Unrecognized input returns nil.
func (s *Space) AtOrAbove(level string) []string {
	i := s.Index(level)
	if i < 0 {
		return nil
	}
	return append([]string(nil), s.Levels[i:]...)
}

// Sort returns the members of levels in space order with duplicates and
// non-members removed.
func (s *Space) Sort(levels []string) []string {
	seen := make(map[string]bool, len(levels))
	for _, l := range levels {
		seen[l] = true
	}
	out := make([]string, 0, len(seen))
	for _, l := range s.Levels {
		if seen[l] {
			out = append(out, l)
		}
	}
	return out
}

// Bounds returns the lowest and highest of levels by space order.
// ok is false when none of levels belongs to the space.
func (s *Space) Bounds(levels []string) (lo, hi string, ok bool) {
	sorted := s.Sort(levels)
	if len(sorted) == 0 {
		return "", "", false
	}
	return sorted[0], sorted[len(sorted)-1], true
}

// String renders the space as name[l1 < l2 < ...].
func (s *Space) String() string {
	return fmt.Sprintf("%s[%s]", s.Name, strings.Join(s.Levels, " < "))
}
