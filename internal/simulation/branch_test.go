package simulation

import (
	"reflect"
	"testing"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/condition"
	"github.com/nvandessel/qualsim/internal/object/objecttest"
	"github.com/nvandessel/qualsim/internal/quantity"
	"github.com/nvandessel/qualsim/internal/transition"
)

func TestDetectCondition(t *testing.T) {
	leaf := condition.Attr(objecttest.BatteryLevel, condition.OpNotEquals, "empty")

	set := flashlight(t, map[attribute.Path]attribute.Value{objecttest.BatteryLevel: attribute.Set("low", "high")})
	unknown := flashlight(t, nil)
	cell, _ := unknown.Cell(objecttest.BatteryLevel)
	_ = cell.Drift(quantity.DirectionDown)

	tests := []struct {
		name    string
		req     *transition.BranchRequest
		want    Source
		unknown bool
	}{
		{name: "value set", req: &transition.BranchRequest{Stage: transition.StagePrecondition, Path: objecttest.BatteryLevel, Leaf: leaf}, want: SourcePrecondition},
		{name: "unknown", req: &transition.BranchRequest{Stage: transition.StagePrecondition, Path: objecttest.BatteryLevel, Leaf: leaf}, want: SourceUnknownResolution, unknown: true},
		{name: "guard", req: &transition.BranchRequest{Stage: transition.StagePostcondition, Path: objecttest.BatteryLevel, Leaf: leaf}, want: SourcePostcondition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inst := set
			if tt.unknown {
				inst = unknown
			}
			f, err := DetectCondition(inst, tt.req)
			if err != nil {
				t.Fatalf("DetectCondition() error = %v", err)
			}
			if f.Source != tt.want || f.Path != objecttest.BatteryLevel {
				t.Errorf("Fork = %+v, want source %s", f, tt.want)
			}
		})
	}

	if _, err := DetectCondition(set, nil); err == nil {
		t.Error("DetectCondition(nil) should fail")
	}
	determined := flashlight(t, nil)
	if _, err := DetectCondition(determined, &transition.BranchRequest{Path: objecttest.SwitchState, Leaf: leaf}); err == nil {
		t.Error("DetectCondition on a concrete attribute should fail")
	}
}

func TestPartitionCandidates(t *testing.T) {
	inst := flashlight(t, map[attribute.Path]attribute.Value{
		objecttest.BatteryLevel: attribute.Set("high", "empty", "med"),
	})
	f := Fork{
		Path:   objecttest.BatteryLevel,
		Leaf:   condition.Attr(objecttest.BatteryLevel, condition.OpGTE, "med"),
		Source: SourcePrecondition,
	}
	p, err := PartitionCandidates(inst, f)
	if err != nil {
		t.Fatalf("PartitionCandidates() error = %v", err)
	}
	if !reflect.DeepEqual(p.Candidates, []string{"empty", "med", "high"}) {
		t.Errorf("Candidates = %v, want space order", p.Candidates)
	}
	if !reflect.DeepEqual(p.Satisfying, []string{"med", "high"}) || !reflect.DeepEqual(p.Failing, []string{"empty"}) {
		t.Errorf("Satisfying = %v, Failing = %v", p.Satisfying, p.Failing)
	}
}

func TestCreateChildren_IndependentClones(t *testing.T) {
	inst := flashlight(t, map[attribute.Path]attribute.Value{
		objecttest.BatteryLevel: attribute.Set("low", "med", "high"),
	})
	before := inst.Snapshot()
	f := Fork{
		Path:   objecttest.BatteryLevel,
		Leaf:   condition.Attr(objecttest.BatteryLevel, condition.OpNotEquals, "empty"),
		Source: SourcePrecondition,
	}
	p, _ := PartitionCandidates(inst, f)
	children, err := CreateChildren(inst, f, p)
	if err != nil {
		t.Fatalf("CreateChildren() error = %v", err)
	}
	if len(children) != 3 {
		t.Fatalf("CreateChildren() = %d children, want 3", len(children))
	}

	for _, c := range children {
		v, _, _ := c.Instance.Resolve(objecttest.BatteryLevel)
		if !v.Equal(attribute.Concrete(c.Branch.Value)) {
			t.Errorf("child %s holds %s", c.Branch.Value, v)
		}
		if !c.Branch.Satisfies {
			t.Errorf("child %s should satisfy != empty", c.Branch.Value)
		}
		if c.Narrowing.Kind != transition.ChangeNarrowing || !c.Narrowing.Before.IsSet() {
			t.Errorf("Narrowing = %+v", c.Narrowing)
		}
	}

	cell, _ := children[0].Instance.Cell(objecttest.SwitchState)
	if err := cell.Set("on"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if !inst.Snapshot().Equal(before) {
		t.Error("mutating a child changed the parent instance")
	}
	if v, _, _ := children[1].Instance.Resolve(objecttest.SwitchState); v.Level() != "off" {
		t.Errorf("mutating one child changed a sibling: switch = %s", v)
	}
}
