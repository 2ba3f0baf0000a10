package attribute

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/nvandessel/qualsim/internal/quantity"
	"gopkg.in/yaml.v3"
)

// Kind classifies a Value.
type Kind int

const (
	KindInvalid  Kind = iota
	KindConcrete      // a single level
	KindSet           // a non-empty set of candidate levels, not yet branched
	KindUnknown       // level lost; bounded by the cell's last-known value and trend
)

func (k Kind) String() string {
	switch k {
	case KindConcrete:
		return "concrete"
	case KindSet:
		return "set"
	case KindUnknown:
		return "unknown"
	default:
		return "invalid"
	}
}

// Value is the current value of an attribute: a concrete level, a set of
// candidate levels, or the unknown sentinel. Values are immutable.
type Value struct {
	kind   Kind
	levels []string
}

// Concrete returns a single-level value.
func Concrete(level string) Value {
	return Value{kind: KindConcrete, levels: []string{level}}
}

// Set returns a candidate set. Duplicates are dropped, insertion order is
// kept. A one-element set collapses to a concrete value; an empty set is
// invalid.
func Set(levels ...string) Value {
	seen := make(map[string]bool, len(levels))
	out := make([]string, 0, len(levels))
	for _, l := range levels {
		if !seen[l] {
			seen[l] = true
			out = append(out, l)
		}
	}
	switch len(out) {
	case 0:
		return Value{}
	case 1:
		return Concrete(out[0])
	default:
		return Value{kind: KindSet, levels: out}
	}
}

// Unknown returns the unknown sentinel value.
func Unknown() Value {
	return Value{kind: KindUnknown}
}

func (v Value) Kind() Kind         { return v.kind }
func (v Value) IsZero() bool       { return v.kind == KindInvalid }
func (v Value) IsConcrete() bool   { return v.kind == KindConcrete }
func (v Value) IsSet() bool        { return v.kind == KindSet }
func (v Value) IsUnknown() bool    { return v.kind == KindUnknown }
func (v Value) IsDetermined() bool { return v.kind == KindConcrete }

// Level returns the level of a concrete value and "" otherwise.
func (v Value) Level() string {
	if v.kind != KindConcrete {
		return ""
	}
	return v.levels[0]
}

// Levels returns a copy of the levels held by a concrete or set value.
// Unknown values hold no levels.
func (v Value) Levels() []string {
	return append([]string(nil), v.levels...)
}

// Contains reports whether a concrete or set value holds level.
func (v Value) Contains(level string) bool {
	for _, l := range v.levels {
		if l == level {
			return true
		}
	}
	return false
}

// Equal reports whether two values hold the same kind and the same levels,
// ignoring set order.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind || len(v.levels) != len(o.levels) {
		return false
	}
	for _, l := range v.levels {
		if !o.Contains(l) {
			return false
		}
	}
	return true
}

// Normalize orders set levels by space order. Concrete and unknown values
// are returned unchanged.
func (v Value) Normalize(space *quantity.Space) Value {
	if v.kind != KindSet {
		return v
	}
	return Set(space.Sort(v.levels)...)
}

func (v Value) String() string {
	switch v.kind {
	case KindConcrete:
		return v.levels[0]
	case KindSet:
		return "{" + strings.Join(v.levels, ", ") + "}"
	case KindUnknown:
		return quantity.UnknownLevel
	default:
		return "<invalid>"
	}
}

// ParseValue parses the CLI/scenario rendering of a value: "high",
// "low|med|high" for a candidate set, or "unknown".
func ParseValue(s string) (Value, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Value{}, fmt.Errorf("value is empty")
	}
	if s == quantity.UnknownLevel {
		return Unknown(), nil
	}
	if strings.Contains(s, "|") {
		var levels []string
		for _, l := range strings.Split(s, "|") {
			if l = strings.TrimSpace(l); l != "" {
				levels = append(levels, l)
			}
		}
		v := Set(levels...)
		if v.IsZero() {
			return Value{}, fmt.Errorf("invalid value set %q", s)
		}
		return v, nil
	}
	return Concrete(s), nil
}

// MarshalJSON renders concrete values as a string, sets as an array and
// unknown as "unknown".
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindSet:
		return json.Marshal(v.levels)
	case KindConcrete, KindUnknown:
		return json.Marshal(v.String())
	default:
		return []byte("null"), nil
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (v *Value) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*v = Value{}
		return nil
	}
	var levels []string
	if err := json.Unmarshal(b, &levels); err == nil {
		*v = Set(levels...)
		return nil
	}
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("value must be a string or an array of strings: %w", err)
	}
	if s == quantity.UnknownLevel {
		*v = Unknown()
	} else {
		*v = Concrete(s)
	}
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (v Value) MarshalYAML() (interface{}, error) {
	switch v.kind {
	case KindSet:
		return v.Levels(), nil
	case KindConcrete, KindUnknown:
		return v.String(), nil
	default:
		return nil, nil
	}
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (v *Value) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.SequenceNode:
		var levels []string
		if err := node.Decode(&levels); err != nil {
			return err
		}
		*v = Set(levels...)
	case yaml.ScalarNode:
		if node.Tag == "!!null" {
			*v = Value{}
			return nil
		}
		if node.Value == quantity.UnknownLevel {
			*v = Unknown()
		} else {
			*v = Concrete(node.Value)
		}
	default:
		return fmt.Errorf("line %d: value must be a string or a list of strings", node.Line)
	}
	return nil
}
