package transition

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/condition"
	"github.com/nvandessel/qualsim/internal/object"
	"github.com/nvandessel/qualsim/internal/object/objecttest"
	"github.com/nvandessel/qualsim/internal/quantity"
)

func condPtr(c condition.Condition) *condition.Condition { return &c }

func turnOn() *Action {
	return &Action{
		Name:       "turn_on",
		ObjectType: "flashlight",
		Preconditions: condPtr(condition.And(
			condition.Attr(objecttest.SwitchState, condition.OpEquals, "off"),
			condition.Attr(objecttest.BatteryLevel, condition.OpNotEquals, "empty"),
		)),
		Effects: []Effect{
			{Kind: EffectSet, Target: objecttest.SwitchState, Value: "on"},
			{Kind: EffectSet, Target: objecttest.BulbState, Value: "on"},
			{Kind: EffectSet, Target: objecttest.BulbBrightness, Value: "bright"},
			{Kind: EffectTrend, Target: objecttest.BatteryLevel, Direction: quantity.DirectionDown},
		},
	}
}

func turnOff() *Action {
	return &Action{
		Name:          "turn_off",
		ObjectType:    "flashlight",
		Preconditions: condPtr(condition.Attr(objecttest.SwitchState, condition.OpEquals, "on")),
		Effects: []Effect{
			{Kind: EffectSet, Target: objecttest.SwitchState, Value: "off"},
			{Kind: EffectTrend, Target: objecttest.BatteryLevel, Direction: quantity.DirectionNone},
		},
	}
}

func newInstance(t *testing.T, values map[attribute.Path]attribute.Value) *object.Instance {
	t.Helper()
	inst, err := object.NewWithValues(objecttest.Flashlight(), values)
	if err != nil {
		t.Fatalf("NewWithValues() error = %v", err)
	}
	return inst
}

func changeKinds(diff []Change) map[string]ChangeKind {
	out := make(map[string]ChangeKind, len(diff))
	for _, c := range diff {
		out[c.Attribute.String()] = c.Kind
	}
	return out
}

func TestApply_FlashlightEndToEnd(t *testing.T) {
	ty := objecttest.Flashlight()
	for _, a := range []*Action{turnOn(), turnOff()} {
		if err := a.Validate(ty); err != nil {
			t.Fatalf("Validate(%s) error = %v", a.Name, err)
		}
	}

	e := NewEngine(nil)
	inst := newInstance(t, nil)

	on, err := e.Apply(inst, turnOn(), nil)
	if err != nil {
		t.Fatalf("Apply(turn_on) error = %v", err)
	}
	if on.Status != StatusOK {
		t.Fatalf("turn_on status = %s (%s)", on.Status, on.Reason)
	}
	if got := on.After.Value(objecttest.SwitchState); !got.Equal(attribute.Concrete("on")) {
		t.Errorf("switch.state = %s, want on", got)
	}
	battery, _ := on.After.State(objecttest.BatteryLevel)
	if !battery.Value.IsUnknown() || battery.LastKnown != "high" || battery.LastTrend != quantity.DirectionDown {
		t.Errorf("battery after turn_on = %+v, want unknown bounded by high going down", battery)
	}
	wantOn := map[string]ChangeKind{
		"switch.state": ChangeValue, "bulb.state": ChangeValue, "bulb.brightness": ChangeValue, "battery.level": ChangeValue,
	}
	if got := changeKinds(on.Diff); !reflect.DeepEqual(got, wantOn) {
		t.Errorf("turn_on diff kinds = %v, want %v", got, wantOn)
	}

	lit, err := object.FromSnapshot(inst.Type(), on.After)
	if err != nil {
		t.Fatalf("FromSnapshot() error = %v", err)
	}
	off, err := e.Apply(lit, turnOff(), nil)
	if err != nil {
		t.Fatalf("Apply(turn_off) error = %v", err)
	}
	if off.Status != StatusOK {
		t.Fatalf("turn_off status = %s (%s)", off.Status, off.Reason)
	}
	if got := off.After.Value(objecttest.BulbState); !got.Equal(attribute.Concrete("off")) {
		t.Errorf("bulb.state = %s, want off after correction", got)
	}
	if got := off.After.Value(objecttest.BulbBrightness); !got.Equal(attribute.Concrete("none")) {
		t.Errorf("bulb.brightness = %s, want none once the bulb is off", got)
	}
	wantOff := map[string]ChangeKind{
		"switch.state": ChangeValue, "bulb.state": ChangeConstraint, "bulb.brightness": ChangeConstraint, "battery.level": ChangeTrend,
	}
	if got := changeKinds(off.Diff); !reflect.DeepEqual(got, wantOff) {
		t.Errorf("turn_off diff kinds = %v, want %v", got, wantOff)
	}
	battery, _ = off.After.State(objecttest.BatteryLevel)
	if battery.LastKnown != "high" || battery.Trend != quantity.DirectionNone {
		t.Errorf("battery after turn_off = %+v, want bound kept and drift stopped", battery)
	}
}

func TestApply_RejectionIsIdempotent(t *testing.T) {
	e := NewEngine(nil)
	inst := newInstance(t, map[attribute.Path]attribute.Value{objecttest.BatteryLevel: attribute.Concrete("empty")})
	before := inst.Snapshot()

	first, err := e.Apply(inst, turnOn(), nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	second, err := e.Apply(inst, turnOn(), nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	want := "precondition failed: battery.level != empty (actual: empty)"
	for _, res := range []*Result{first, second} {
		if res.Status != StatusRejected || res.Reason != want || res.After != nil {
			t.Errorf("result = %s %q after=%v, want rejected %q", res.Status, res.Reason, res.After, want)
		}
	}
	if !inst.Snapshot().Equal(before) {
		t.Error("rejected apply changed the instance")
	}
}

func TestApply_PendingPrecondition(t *testing.T) {
	inst := newInstance(t, map[attribute.Path]attribute.Value{objecttest.BatteryLevel: attribute.Set("low", "med", "high")})
	res, err := NewEngine(nil).Apply(inst, turnOn(), nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Status != StatusPending || res.Branch == nil {
		t.Fatalf("result = %+v, want pending", res)
	}
	if res.Branch.Stage != StagePrecondition || res.Branch.Path != objecttest.BatteryLevel {
		t.Errorf("Branch = %+v", res.Branch)
	}
	if res.Branch.Leaf.Operator != condition.OpNotEquals {
		t.Errorf("Branch leaf = %s", res.Branch.Leaf)
	}
}

func TestApply_GuardedEffects(t *testing.T) {
	boost := &Action{
		Name:       "boost",
		ObjectType: "flashlight",
		Effects: []Effect{{
			Kind:      EffectStep,
			Target:    objecttest.BatteryLevel,
			Direction: quantity.DirectionUp,
			When:      condPtr(condition.Attr(objecttest.BatteryLevel, condition.OpLT, "high")),
		}},
	}

	tests := []struct {
		name   string
		level  attribute.Value
		status Status
		after  string
	}{
		{"guard true", attribute.Concrete("low"), StatusOK, "med"},
		{"guard false", attribute.Concrete("high"), StatusOK, "high"},
		{"guard indeterminate", attribute.Set("med", "high"), StatusPending, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := newInstance(t, map[attribute.Path]attribute.Value{objecttest.BatteryLevel: tt.level})
			res, err := NewEngine(nil).Apply(inst, boost, nil)
			if err != nil {
				t.Fatalf("Apply() error = %v", err)
			}
			if res.Status != tt.status {
				t.Fatalf("Status = %s, want %s", res.Status, tt.status)
			}
			if tt.status == StatusPending {
				if res.Branch.Stage != StagePostcondition || res.Branch.Effect != 0 {
					t.Errorf("Branch = %+v, want postcondition on effect 0", res.Branch)
				}
				return
			}
			if got := res.After.Value(objecttest.BatteryLevel).Level(); got != tt.after {
				t.Errorf("battery.level = %s, want %s", got, tt.after)
			}
		})
	}
}

func TestApply_ConstraintRejectionKeepsOffendingState(t *testing.T) {
	light := &Action{
		Name:       "light",
		ObjectType: "flashlight",
		Effects:    []Effect{{Kind: EffectSet, Target: objecttest.BulbState, Value: "on"}},
	}
	inst := newInstance(t, map[attribute.Path]attribute.Value{
		objecttest.BatteryLevel: attribute.Concrete("empty"),
		objecttest.SwitchState:  attribute.Concrete("on"),
	})

	res, err := NewEngine(nil).Apply(inst, light, nil)
	if err != nil {
		t.Fatalf("Apply() error = %v", err)
	}
	if res.Status != StatusRejected || len(res.Violations) != 1 {
		t.Fatalf("result = %s %v, want one violation", res.Status, res.Violations)
	}
	if res.Violations[0].Constraint != "bulb_needs_charge" || res.Reason != "constraint violated: bulb_needs_charge" {
		t.Errorf("Violations = %v, Reason = %q", res.Violations, res.Reason)
	}
	if got := res.After.Value(objecttest.BulbState); !got.Equal(attribute.Concrete("on")) {
		t.Errorf("After bulb.state = %s, want the offending on", got)
	}

	var found *Change
	for i := range res.Diff {
		if res.Diff[i].Kind == ChangeConstraint {
			found = &res.Diff[i]
		}
	}
	if found == nil {
		t.Fatalf("Diff = %v, want a constraint change for the violation", res.Diff)
	}
	if found.Attribute != objecttest.BatteryLevel || !strings.Contains(found.Note, "bulb_needs_charge") {
		t.Errorf("constraint change = %+v, want battery.level noting bulb_needs_charge", *found)
	}
	if !found.After.Equal(attribute.Concrete("empty")) {
		t.Errorf("constraint change After = %s, want empty", found.After)
	}
	if kinds := changeKinds(res.Diff); kinds["bulb.state"] != ChangeValue {
		t.Errorf("bulb.state kind = %s, want value", kinds["bulb.state"])
	}
}

func TestApply_Errors(t *testing.T) {
	ty := objecttest.Flashlight()
	ty.Parts[0].Attributes[0].Mutable = false
	inst, err := object.New(ty)
	if err != nil {
		t.Fatalf("object.New() error = %v", err)
	}
	e := NewEngine(nil)

	_, err = e.Apply(inst, turnOn(), nil)
	if !errors.Is(err, attribute.ErrInvalidMutation) {
		t.Errorf("trend on immutable attribute error = %v, want ErrInvalidMutation", err)
	}

	setLevel := &Action{
		Name:       "set_switch",
		ObjectType: "flashlight",
		Parameters: []string{"state"},
		Effects:    []Effect{{Kind: EffectSet, Target: objecttest.SwitchState, Value: "$state"}},
	}
	if _, err := e.Apply(inst, setLevel, nil); err == nil {
		t.Error("missing parameter should fail")
	}
	res, err := e.Apply(inst, setLevel, map[string]string{"state": "on"})
	if err != nil || res.Status != StatusOK {
		t.Errorf("Apply with parameter = %v, %v", res, err)
	}
	if _, err := e.Apply(inst, setLevel, map[string]string{"state": "dim"}); !errors.Is(err, attribute.ErrInvalidMutation) {
		t.Errorf("out-of-space parameter error = %v", err)
	}

	other := &Action{Name: "x", ObjectType: "lamp"}
	if _, err := e.Apply(inst, other, nil); !errors.Is(err, ErrWrongObjectType) {
		t.Errorf("wrong object type error = %v", err)
	}
}

func TestActionValidate(t *testing.T) {
	ty := objecttest.Flashlight()
	tests := []struct {
		name   string
		action *Action
	}{
		{"undeclared parameter", &Action{Name: "a", ObjectType: "flashlight", Effects: []Effect{{Kind: EffectSet, Target: objecttest.SwitchState, Value: "$x"}}}},
		{"level outside space", &Action{Name: "a", ObjectType: "flashlight", Effects: []Effect{{Kind: EffectSet, Target: objecttest.SwitchState, Value: "dim"}}}},
		{"step without direction", &Action{Name: "a", ObjectType: "flashlight", Effects: []Effect{{Kind: EffectStep, Target: objecttest.BatteryLevel}}}},
		{"unknown target", &Action{Name: "a", ObjectType: "flashlight", Effects: []Effect{{Kind: EffectSet, Target: attribute.Global("lens"), Value: "on"}}}},
		{"precondition level", &Action{Name: "a", ObjectType: "flashlight", Preconditions: condPtr(condition.Attr(objecttest.BatteryLevel, condition.OpEquals, "full"))}},
		{"wrong type", &Action{Name: "a", ObjectType: "lamp"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.action.Validate(ty); err == nil {
				t.Error("Validate() succeeded, want error")
			}
		})
	}
}
