package condition

import (
	"errors"
	"fmt"
	"testing"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/quantity"
)

var (
	batteryLevel = attribute.In("battery", "level")
	switchState  = attribute.In("switch", "state")
)

// mapResolver serves attribute values from a map for tests.
type mapResolver struct {
	values map[attribute.Path]attribute.Value
	spaces map[attribute.Path]*quantity.Space
}

func (m mapResolver) Resolve(p attribute.Path) (attribute.Value, *quantity.Space, error) {
	v, ok := m.values[p]
	if !ok {
		return attribute.Value{}, nil, fmt.Errorf("no attribute %s", p)
	}
	return v, m.spaces[p], nil
}

func flashlight(t *testing.T, level, state attribute.Value) mapResolver {
	t.Helper()
	return mapResolver{
		values: map[attribute.Path]attribute.Value{
			batteryLevel: level,
			switchState:  state,
		},
		spaces: map[attribute.Path]*quantity.Space{
			batteryLevel: quantity.MustNew("battery_level", "empty", "low", "med", "high"),
			switchState:  quantity.MustNew("on_off", "off", "on"),
		},
	}
}

func TestEvaluate_Leaves(t *testing.T) {
	r := flashlight(t, attribute.Concrete("low"), attribute.Concrete("off"))

	tests := []struct {
		name string
		cond Condition
		want Truth
	}{
		{"equals true", Attr(switchState, OpEquals, "off"), True},
		{"equals false", Attr(switchState, OpEquals, "on"), False},
		{"not equals", Attr(batteryLevel, OpNotEquals, "empty"), True},
		{"in", Attr(batteryLevel, OpIn, "low", "med"), True},
		{"not in", Attr(batteryLevel, OpNotIn, "low", "med"), False},
		{"gt", Attr(batteryLevel, OpGT, "empty"), True},
		{"gte equal", Attr(batteryLevel, OpGTE, "low"), True},
		{"lt", Attr(batteryLevel, OpLT, "low"), False},
		{"lte", Attr(batteryLevel, OpLTE, "med"), True},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Evaluate(tt.cond, r)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if res.Truth != tt.want {
				t.Errorf("Evaluate(%s) = %s, want %s", tt.cond, res.Truth, tt.want)
			}
		})
	}
}

func TestEvaluate_UncertainValuesAreIndeterminate(t *testing.T) {
	for _, v := range []attribute.Value{attribute.Set("low", "med", "high"), attribute.Unknown()} {
		t.Run(v.Kind().String(), func(t *testing.T) {
			r := flashlight(t, v, attribute.Concrete("off"))
			res, err := Evaluate(Attr(batteryLevel, OpNotEquals, "empty"), r)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if res.Truth != Indeterminate {
				t.Fatalf("Truth = %s, want indeterminate", res.Truth)
			}
			if res.Path != batteryLevel || res.Leaf == nil {
				t.Errorf("Result = %+v, want leaf on battery.level", res)
			}
		})
	}
}

func TestEvaluate_Kleene(t *testing.T) {
	r := flashlight(t, attribute.Unknown(), attribute.Concrete("off"))
	indet := Attr(batteryLevel, OpEquals, "high")
	yes := Attr(switchState, OpEquals, "off")
	no := Attr(switchState, OpEquals, "on")

	tests := []struct {
		name string
		cond Condition
		want Truth
	}{
		{"and false dominates", And(indet, no), False},
		{"and indeterminate", And(yes, indet), Indeterminate},
		{"and true", And(yes, yes), True},
		{"or true dominates", Or(indet, yes), True},
		{"or indeterminate", Or(no, indet), Indeterminate},
		{"or false", Or(no, no), False},
		{"not indeterminate", Not(indet), Indeterminate},
		{"empty and", And(), True},
		{"empty or", Or(), False},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Evaluate(tt.cond, r)
			if err != nil {
				t.Fatalf("Evaluate() error = %v", err)
			}
			if res.Truth != tt.want {
				t.Errorf("Evaluate(%s) = %s, want %s", tt.cond, res.Truth, tt.want)
			}
		})
	}
}

func TestNormalize_DeMorgan(t *testing.T) {
	c := Not(And(
		Attr(switchState, OpEquals, "on"),
		Not(Attr(batteryLevel, OpGT, "low")),
	))
	n := Normalize(c)

	if n.Kind != KindOr || len(n.Children) != 2 {
		t.Fatalf("Normalize() = %s, want a two-child or", n)
	}
	if got := n.Children[0]; got.Operator != OpNotEquals {
		t.Errorf("first leaf operator = %s, want not_equals", got.Operator)
	}
	if got := n.Children[1]; got.Kind != KindAttr || got.Operator != OpGT {
		t.Errorf("double negation should cancel, got %s", got)
	}
	for _, leaf := range n.Leaves() {
		if leaf.Kind != KindAttr {
			t.Errorf("normalized tree still contains %s", leaf.Kind)
		}
	}
}

func TestOperatorNegateIsInvolution(t *testing.T) {
	for _, op := range []Operator{OpEquals, OpNotEquals, OpIn, OpNotIn, OpGT, OpGTE, OpLT, OpLTE} {
		if op.Negate().Negate() != op {
			t.Errorf("%s.Negate().Negate() = %s", op, op.Negate().Negate())
		}
		if op.Negate() == op {
			t.Errorf("%s.Negate() returned itself", op)
		}
	}
}

func TestEvaluateLeafValue_NegationAgrees(t *testing.T) {
	space := quantity.MustNew("battery_level", "empty", "low", "med", "high")
	for _, op := range []Operator{OpEquals, OpNotEquals, OpGT, OpGTE, OpLT, OpLTE} {
		for _, actual := range space.Levels {
			leaf := Attr(batteryLevel, op, "low")
			a, err := EvaluateLeafValue(leaf, actual, space)
			if err != nil {
				t.Fatalf("EvaluateLeafValue() error = %v", err)
			}
			b, _ := EvaluateLeafValue(Normalize(Not(leaf)), actual, space)
			if a == b {
				t.Errorf("%s vs negation disagree at %s", leaf, actual)
			}
		}
	}
}

func TestEvaluate_UnknownLevelIsError(t *testing.T) {
	r := flashlight(t, attribute.Concrete("low"), attribute.Concrete("off"))
	_, err := Evaluate(Attr(batteryLevel, OpEquals, "full"), r)
	if !errors.Is(err, ErrUnknownLevel) {
		t.Errorf("Evaluate() error = %v, want ErrUnknownLevel", err)
	}
}

func TestDescribe(t *testing.T) {
	r := flashlight(t, attribute.Concrete("empty"), attribute.Concrete("off"))
	res, err := Evaluate(And(Attr(switchState, OpEquals, "off"), Attr(batteryLevel, OpNotEquals, "empty")), r)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	want := "battery.level != empty (actual: empty)"
	if got := Describe(res, r); got != want {
		t.Errorf("Describe() = %q, want %q", got, want)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cond    Condition
		wantErr bool
	}{
		{"leaf ok", Attr(batteryLevel, OpEquals, "low"), false},
		{"equals needs one value", Attr(batteryLevel, OpEquals, "low", "med"), true},
		{"in needs values", Attr(batteryLevel, OpIn), true},
		{"bad operator", Attr(batteryLevel, Operator("approx"), "low"), true},
		{"missing target", Attr(attribute.Path{}, OpEquals, "low"), true},
		{"nested error", And(Attr(batteryLevel, OpLT)), true},
		{"not arity", Condition{Kind: KindNot}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cond.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
