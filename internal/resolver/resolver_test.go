package resolver

import (
	"errors"
	"reflect"
	"testing"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/object"
	"github.com/nvandessel/qualsim/internal/object/objecttest"
	"github.com/nvandessel/qualsim/internal/quantity"
)

func drainedFrom(t *testing.T, level string) *object.Instance {
	t.Helper()
	inst, err := object.NewWithValues(objecttest.Flashlight(), map[attribute.Path]attribute.Value{
		objecttest.BatteryLevel: attribute.Concrete(level),
	})
	if err != nil {
		t.Fatalf("NewWithValues() error = %v", err)
	}
	cell, _ := inst.Cell(objecttest.BatteryLevel)
	if err := cell.Drift(quantity.DirectionDown); err != nil {
		t.Fatalf("Drift() error = %v", err)
	}
	return inst
}

func TestAllowedLevels(t *testing.T) {
	tests := []struct {
		lastKnown string
		want      []string
	}{
		{"high", []string{"empty", "low", "med", "high"}},
		{"med", []string{"empty", "low", "med"}},
		{"low", []string{"empty", "low"}},
		{"empty", []string{"empty"}},
	}
	for _, tt := range tests {
		t.Run(tt.lastKnown, func(t *testing.T) {
			cell, _ := drainedFrom(t, tt.lastKnown).Cell(objecttest.BatteryLevel)
			if got := AllowedLevels(cell, cell.Space()); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("AllowedLevels() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAllowedLevels_UpAndNoBound(t *testing.T) {
	inst, _ := object.NewWithValues(objecttest.Flashlight(), map[attribute.Path]attribute.Value{
		objecttest.BatteryLevel: attribute.Concrete("low"),
	})
	cell, _ := inst.Cell(objecttest.BatteryLevel)
	_ = cell.Drift(quantity.DirectionUp)
	if got := AllowedLevels(cell, cell.Space()); !reflect.DeepEqual(got, []string{"low", "med", "high"}) {
		t.Errorf("AllowedLevels() = %v", got)
	}

	_ = cell.Restore(attribute.State{Value: attribute.Unknown()})
	if got := AllowedLevels(cell, cell.Space()); len(got) != 4 {
		t.Errorf("AllowedLevels() without bound = %v, want all levels", got)
	}
}

func TestCandidates(t *testing.T) {
	inst, _ := object.NewWithValues(objecttest.Flashlight(), map[attribute.Path]attribute.Value{
		objecttest.BatteryLevel: attribute.Set("high", "low"),
	})
	cell, _ := inst.Cell(objecttest.BatteryLevel)
	if got := Candidates(cell); !reflect.DeepEqual(got, []string{"low", "high"}) {
		t.Errorf("Candidates(set) = %v, want space order", got)
	}
	sw, _ := inst.Cell(objecttest.SwitchState)
	if got := Candidates(sw); !reflect.DeepEqual(got, []string{"off"}) {
		t.Errorf("Candidates(concrete) = %v", got)
	}
}

type recordingPrompter struct {
	answer  string
	options []string
}

func (r *recordingPrompter) Choose(_ attribute.Path, options []string) (string, error) {
	r.options = options
	return r.answer, nil
}

func TestResolve(t *testing.T) {
	inst := drainedFrom(t, "low")
	p := &recordingPrompter{answer: "empty"}

	got, err := Resolve(inst, objecttest.BatteryLevel, p)
	if err != nil || got != "empty" {
		t.Fatalf("Resolve() = %q, %v", got, err)
	}
	if !reflect.DeepEqual(p.options, []string{"empty", "low"}) {
		t.Errorf("prompter saw %v, want the allowed levels", p.options)
	}
	if v, _, _ := inst.Resolve(objecttest.BatteryLevel); !v.Equal(attribute.Concrete("empty")) {
		t.Errorf("value after Resolve = %s", v)
	}
	cell, _ := inst.Cell(objecttest.BatteryLevel)
	if cell.Trend() != quantity.DirectionDown {
		t.Errorf("Resolve() changed the trend to %s", cell.Trend())
	}

	if _, err := Resolve(inst, objecttest.BatteryLevel, p); !errors.Is(err, ErrAlreadyDetermined) {
		t.Errorf("second Resolve() error = %v, want ErrAlreadyDetermined", err)
	}
}

func TestResolve_RejectsLevelOutsideCandidates(t *testing.T) {
	inst := drainedFrom(t, "low")
	_, err := Resolve(inst, objecttest.BatteryLevel, StaticPrompter{objecttest.BatteryLevel: "high"})
	if !errors.Is(err, attribute.ErrInvalidMutation) {
		t.Errorf("Resolve() error = %v, want ErrInvalidMutation", err)
	}
	if _, err := Resolve(inst, objecttest.SwitchState, StaticPrompter{}); !errors.Is(err, ErrAlreadyDetermined) {
		t.Errorf("Resolve(concrete) error = %v", err)
	}
}
