package transition

import (
	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/object"
	"github.com/nvandessel/qualsim/internal/quantity"
)

// ChangeKind classifies a diff entry.
type ChangeKind string

const (
	ChangeValue      ChangeKind = "value"
	ChangeTrend      ChangeKind = "trend"
	ChangeNarrowing  ChangeKind = "narrowing"
	ChangeConstraint ChangeKind = "constraint"
)

// Change is the diff entry of one attribute.
type Change struct {
	Attribute   attribute.Path     `json:"attribute"`
	Before      attribute.Value    `json:"before"`
	After       attribute.Value    `json:"after"`
	BeforeTrend quantity.Direction `json:"before_trend"`
	AfterTrend  quantity.Direction `json:"after_trend"`
	Kind        ChangeKind         `json:"kind"`
	Note        string             `json:"note,omitempty"`
}

// DiffSnapshots compares two snapshots of the same object and returns one
// entry per changed attribute, in declaration order.
func DiffSnapshots(before, after *object.Snapshot) []Change {
	var out []Change
	for _, p := range after.Paths() {
		b, _ := before.State(p)
		a, _ := after.State(p)
		kind, note, changed := classify(b, a)
		if !changed {
			continue
		}
		out = append(out, Change{
			Attribute:   p,
			Before:      b.Value,
			After:       a.Value,
			BeforeTrend: b.Trend,
			AfterTrend:  a.Trend,
			Kind:        kind,
			Note:        note,
		})
	}
	return out
}

func classify(b, a attribute.State) (ChangeKind, string, bool) {
	switch {
	case !b.Value.Equal(a.Value):
		if isNarrowing(b.Value, a.Value) {
			return ChangeNarrowing, "", true
		}
		return ChangeValue, "", true
	case b.Trend != a.Trend:
		return ChangeTrend, "", true
	case b.LastKnown != a.LastKnown:
		return ChangeValue, "last-known bound moved", true
	default:
		return "", "", false
	}
}

// isNarrowing reports whether after keeps only some of the candidates of an
// uncertain before value.
func isNarrowing(before, after attribute.Value) bool {
	if after.IsUnknown() || after.IsZero() {
		return false
	}
	switch {
	case before.IsUnknown():
		return true
	case before.IsSet():
		for _, l := range after.Levels() {
			if !before.Contains(l) {
				return false
			}
		}
		return true
	default:
		return false
	}
}
