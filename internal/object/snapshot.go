package object

import (
	"encoding/json"
	"fmt"

	"github.com/nvandessel/qualsim/internal/attribute"
)

// Snapshot is an immutable copy of an instance's attribute states. Tree nodes
// store snapshots, never live instances.
type Snapshot struct {
	object string
	order  []attribute.Path
	states map[attribute.Path]attribute.State
}

// Object returns the key of the object type the snapshot was taken from.
func (s *Snapshot) Object() string { return s.object }

// Paths returns attribute paths in declaration order.
func (s *Snapshot) Paths() []attribute.Path {
	return append([]attribute.Path(nil), s.order...)
}

// State returns the state recorded for path.
func (s *Snapshot) State(path attribute.Path) (attribute.State, bool) {
	st, ok := s.states[path]
	return st, ok
}

// Value returns the value recorded for path, or the zero Value.
func (s *Snapshot) Value(path attribute.Path) attribute.Value {
	return s.states[path].Value
}

// Values returns a copy of every recorded value.
func (s *Snapshot) Values() map[attribute.Path]attribute.Value {
	out := make(map[attribute.Path]attribute.Value, len(s.states))
	for p, st := range s.states {
		out[p] = st.Value
	}
	return out
}

// Equal reports whether two snapshots record the same states.
func (s *Snapshot) Equal(o *Snapshot) bool {
	if s == nil || o == nil {
		return s == o
	}
	if len(s.states) != len(o.states) {
		return false
	}
	for p, st := range s.states {
		ost, ok := o.states[p]
		if !ok || !st.Value.Equal(ost.Value) || st.Trend != ost.Trend ||
			st.LastKnown != ost.LastKnown || st.LastTrend != ost.LastTrend {
			return false
		}
	}
	return true
}

type snapshotEntry struct {
	Path attribute.Path `json:"path"`
	attribute.State
}

type snapshotJSON struct {
	Object     string          `json:"object"`
	Attributes []snapshotEntry `json:"attributes"`
}

// MarshalJSON renders the snapshot as an ordered attribute list.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	out := snapshotJSON{Object: s.object, Attributes: make([]snapshotEntry, 0, len(s.order))}
	for _, p := range s.order {
		out.Attributes = append(out.Attributes, snapshotEntry{Path: p, State: s.states[p]})
	}
	return json.Marshal(out)
}

// UnmarshalJSON implements json.Unmarshaler.
func (s *Snapshot) UnmarshalJSON(b []byte) error {
	var in snapshotJSON
	if err := json.Unmarshal(b, &in); err != nil {
		return fmt.Errorf("decoding snapshot: %w", err)
	}
	s.object = in.Object
	s.order = make([]attribute.Path, 0, len(in.Attributes))
	s.states = make(map[attribute.Path]attribute.State, len(in.Attributes))
	for _, e := range in.Attributes {
		if _, dup := s.states[e.Path]; dup {
			return fmt.Errorf("decoding snapshot: duplicate attribute %s", e.Path)
		}
		s.order = append(s.order, e.Path)
		s.states[e.Path] = e.State
	}
	return nil
}
