package attribute

import (
	"errors"
	"fmt"

	"github.com/nvandessel/qualsim/internal/quantity"
)

// ErrInvalidMutation is returned when an attribute is written in a way its
// schema forbids: immutable attributes, or values outside the quantity space.
var ErrInvalidMutation = errors.New("invalid mutation")

// MutationError describes a rejected attribute write.
type MutationError struct {
	Path   Path
	Reason string
}

func (e *MutationError) Error() string {
	return fmt.Sprintf("invalid mutation of %s: %s", e.Path, e.Reason)
}

// Unwrap allows errors.Is(err, ErrInvalidMutation).
func (e *MutationError) Unwrap() error {
	return ErrInvalidMutation
}

// Spec is the schema of one attribute.
type Spec struct {
	Name    string
	Space   *quantity.Space
	Mutable bool
	// Default is the initial level; "" means the attribute starts as the set
	// of all levels of its space.
	Default string
}

// Validate checks that the spec is complete and its default is a level of
// its space.
func (s *Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("attribute name is required")
	}
	if s.Space == nil {
		return fmt.Errorf("attribute %q: quantity space is required", s.Name)
	}
	if s.Default != "" && !s.Space.Contains(s.Default) {
		return fmt.Errorf("attribute %q: default %q is not a level of %s", s.Name, s.Default, s.Space)
	}
	return nil
}

// InitialValue returns the value a fresh cell starts with.
func (s *Spec) InitialValue() Value {
	if s.Default != "" {
		return Concrete(s.Default)
	}
	return Set(s.Space.Levels...)
}

// BoundedLevels returns the levels an unknown attribute may hold given its
// last-known value and last trend direction. A downward trend allows the
// levels at or below the last-known value, an upward trend those at or
// above. Without a usable bound every level is allowed.
func BoundedLevels(space *quantity.Space, lastKnown string, lastTrend quantity.Direction) []string {
	if lastKnown == "" || !space.Contains(lastKnown) {
		return append([]string(nil), space.Levels...)
	}
	switch lastTrend {
	case quantity.DirectionDown:
		return space.AtOrBelow(lastKnown)
	case quantity.DirectionUp:
		return space.AtOrAbove(lastKnown)
	default:
		return append([]string(nil), space.Levels...)
	}
}
