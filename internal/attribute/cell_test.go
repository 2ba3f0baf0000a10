package attribute

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/nvandessel/qualsim/internal/quantity"
	"gopkg.in/yaml.v3"
)

func levelSpec(mutable bool, def string) *Spec {
	return &Spec{
		Name:    "level",
		Space:   quantity.MustNew("battery_level", "empty", "low", "med", "high"),
		Mutable: mutable,
		Default: def,
	}
}

func TestSpecValidate(t *testing.T) {
	if err := levelSpec(true, "high").Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
	if err := levelSpec(true, "full").Validate(); err == nil {
		t.Error("Validate() should reject a default outside the space")
	}
	if err := (&Spec{Name: "x"}).Validate(); err == nil {
		t.Error("Validate() should reject a missing space")
	}
}

func TestNewCell_InitialValue(t *testing.T) {
	c := NewCell(In("battery", "level"), levelSpec(true, "high"))
	if !c.Value().Equal(Concrete("high")) {
		t.Errorf("Value() = %s, want high", c.Value())
	}

	undeclared := NewCell(In("battery", "level"), levelSpec(true, ""))
	if !undeclared.Value().IsSet() {
		t.Fatalf("cell without default should start as a set, got %s", undeclared.Value())
	}
	if got := undeclared.Candidates(); !reflect.DeepEqual(got, []string{"empty", "low", "med", "high"}) {
		t.Errorf("Candidates() = %v", got)
	}
}

func TestCellSet(t *testing.T) {
	c := NewCell(In("battery", "level"), levelSpec(true, "high"))
	if err := c.Drift(quantity.DirectionDown); err != nil {
		t.Fatalf("Drift() error = %v", err)
	}
	if err := c.Set("low"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !c.Value().Equal(Concrete("low")) || c.Trend() != quantity.DirectionNone {
		t.Errorf("after Set: value=%s trend=%s", c.Value(), c.Trend())
	}
	if _, ok := c.LastKnown(); ok {
		t.Error("Set() should clear the last-known bound")
	}

	err := c.Set("full")
	if !errors.Is(err, ErrInvalidMutation) {
		t.Errorf("Set(full) error = %v, want ErrInvalidMutation", err)
	}

	immutable := NewCell(In("battery", "level"), levelSpec(false, "high"))
	err = immutable.Set("low")
	var mErr *MutationError
	if !errors.As(err, &mErr) || mErr.Path.String() != "battery.level" {
		t.Errorf("Set on immutable error = %v, want MutationError for battery.level", err)
	}
}

func TestCellDrift_DownRecordsLastKnown(t *testing.T) {
	for _, start := range []string{"empty", "low", "med", "high"} {
		t.Run(start, func(t *testing.T) {
			c := NewCell(In("battery", "level"), levelSpec(true, start))
			if err := c.Drift(quantity.DirectionDown); err != nil {
				t.Fatalf("Drift() error = %v", err)
			}
			if !c.Value().IsUnknown() {
				t.Fatalf("Value() = %s, want unknown", c.Value())
			}
			lk, ok := c.LastKnown()
			if !ok || lk != start {
				t.Errorf("LastKnown() = %q, %v; want %q", lk, ok, start)
			}
			if c.LastTrend() != quantity.DirectionDown || c.Trend() != quantity.DirectionDown {
				t.Errorf("trend=%s lastTrend=%s, want down/down", c.Trend(), c.LastTrend())
			}
		})
	}
}

func TestCellDrift_ReassertAndStopKeepBookkeeping(t *testing.T) {
	c := NewCell(In("battery", "level"), levelSpec(true, "med"))
	_ = c.Drift(quantity.DirectionDown)
	_ = c.Drift(quantity.DirectionDown)
	if lk, _ := c.LastKnown(); lk != "med" {
		t.Errorf("re-asserted drift changed LastKnown to %q", lk)
	}

	_ = c.Drift(quantity.DirectionNone)
	if c.Trend() != quantity.DirectionNone {
		t.Errorf("Trend() = %s, want none", c.Trend())
	}
	if lk, _ := c.LastKnown(); lk != "med" || c.LastTrend() != quantity.DirectionDown {
		t.Errorf("stopping drift lost bookkeeping: lastKnown=%q lastTrend=%s", lk, c.LastTrend())
	}
	if got := c.Candidates(); !reflect.DeepEqual(got, []string{"empty", "low", "med"}) {
		t.Errorf("Candidates() = %v", got)
	}
}

func TestCellDrift_ReversalReanchors(t *testing.T) {
	c := NewCell(In("battery", "level"), levelSpec(true, "low"))
	_ = c.Drift(quantity.DirectionDown) // value <= low
	_ = c.Drift(quantity.DirectionUp)   // value >= empty

	lk, _ := c.LastKnown()
	if lk != "empty" || c.LastTrend() != quantity.DirectionUp {
		t.Errorf("after reversal lastKnown=%q lastTrend=%s, want empty/up", lk, c.LastTrend())
	}
	if got := c.Candidates(); len(got) != 4 {
		t.Errorf("Candidates() = %v, want all levels", got)
	}
}

func TestCellDrift_FromSet(t *testing.T) {
	c := NewCell(In("battery", "level"), levelSpec(true, ""))
	if err := c.Narrow("low", "med"); err != nil {
		t.Fatalf("Narrow() error = %v", err)
	}
	_ = c.Drift(quantity.DirectionDown)
	if lk, _ := c.LastKnown(); lk != "med" {
		t.Errorf("LastKnown() = %q, want the upper bound med", lk)
	}
}

func TestCellStepValue(t *testing.T) {
	c := NewCell(In("battery", "level"), levelSpec(true, "high"))
	_ = c.StepValue(quantity.DirectionDown)
	if c.Value().Level() != "med" {
		t.Errorf("StepValue(down) = %s, want med", c.Value())
	}

	set := NewCell(In("battery", "level"), levelSpec(true, ""))
	_ = set.Narrow("empty", "low")
	_ = set.StepValue(quantity.DirectionDown)
	if !set.Value().Equal(Concrete("empty")) {
		t.Errorf("stepping {empty, low} down = %s, want empty", set.Value())
	}

	unknown := NewCell(In("battery", "level"), levelSpec(true, "med"))
	_ = unknown.Drift(quantity.DirectionDown)
	_ = unknown.StepValue(quantity.DirectionDown)
	if got := unknown.Candidates(); !reflect.DeepEqual(got, []string{"empty", "low"}) {
		t.Errorf("Candidates() after stepping unknown = %v, want [empty low]", got)
	}
}

func TestCellNarrow(t *testing.T) {
	immutable := NewCell(In("battery", "level"), levelSpec(false, ""))
	if err := immutable.Narrow("high"); err != nil {
		t.Fatalf("Narrow() on immutable cell error = %v", err)
	}
	if !immutable.Value().Equal(Concrete("high")) {
		t.Errorf("Value() = %s, want high", immutable.Value())
	}
	if err := immutable.Narrow("low"); err == nil {
		t.Error("Narrow() outside the candidates should fail")
	}
}

func TestCellClone_NoAliasing(t *testing.T) {
	c := NewCell(In("battery", "level"), levelSpec(true, "high"))
	cp := c.Clone()
	_ = cp.Drift(quantity.DirectionDown)
	if !c.Value().Equal(Concrete("high")) || c.Trend() != quantity.DirectionNone {
		t.Errorf("original changed after mutating clone: %s/%s", c.Value(), c.Trend())
	}
}

func TestCellRestore(t *testing.T) {
	c := NewCell(In("battery", "level"), levelSpec(false, "high"))
	state := State{Value: Unknown(), Trend: quantity.DirectionDown, LastKnown: "low", LastTrend: quantity.DirectionDown}
	if err := c.Restore(state); err != nil {
		t.Fatalf("Restore() error = %v", err)
	}
	if !reflect.DeepEqual(c.State(), state) {
		t.Errorf("State() = %+v, want %+v", c.State(), state)
	}
	if err := c.Restore(State{Value: Concrete("full")}); err == nil {
		t.Error("Restore() should reject levels outside the space")
	}
}

func TestValueEncoding(t *testing.T) {
	tests := []struct {
		name string
		v    Value
		json string
	}{
		{"concrete", Concrete("high"), `"high"`},
		{"set", Set("low", "med"), `["low","med"]`},
		{"unknown", Unknown(), `"unknown"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, err := json.Marshal(tt.v)
			if err != nil || string(b) != tt.json {
				t.Fatalf("Marshal = %s, %v; want %s", b, err, tt.json)
			}
			var back Value
			if err := json.Unmarshal(b, &back); err != nil || !back.Equal(tt.v) {
				t.Errorf("Unmarshal = %s, %v", back, err)
			}

			y, err := yaml.Marshal(tt.v)
			if err != nil {
				t.Fatalf("yaml.Marshal error = %v", err)
			}
			var yback Value
			if err := yaml.Unmarshal(y, &yback); err != nil || !yback.Equal(tt.v) {
				t.Errorf("yaml round trip = %s, %v", yback, err)
			}
		})
	}
}

func TestParseValueAndPath(t *testing.T) {
	v, err := ParseValue("low|med")
	if err != nil || !v.Equal(Set("low", "med")) {
		t.Errorf("ParseValue(low|med) = %s, %v", v, err)
	}
	if v, _ := ParseValue("unknown"); !v.IsUnknown() {
		t.Errorf("ParseValue(unknown) = %s", v)
	}
	if _, err := ParseValue(""); err == nil {
		t.Error("ParseValue(\"\") should fail")
	}

	p, err := ParsePath("battery.level")
	if err != nil || p != In("battery", "level") {
		t.Errorf("ParsePath = %v, %v", p, err)
	}
	if g, _ := ParsePath("temperature"); !g.IsGlobal() {
		t.Error("single-segment path should be global")
	}
	if _, err := ParsePath("a.b.c"); err == nil {
		t.Error("three-segment path should fail")
	}
}
