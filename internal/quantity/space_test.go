package quantity

import (
	"reflect"
	"testing"
)

func batterySpace(t *testing.T) *Space {
	t.Helper()
	s, err := New("battery_level", "empty", "low", "med", "high")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return s
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		space   string
		levels  []string
		wantErr bool
	}{
		{"valid", "level", []string{"empty", "low"}, false},
		{"single level", "flag", []string{"on"}, false},
		{"no levels", "level", nil, true},
		{"duplicate level", "level", []string{"low", "low"}, true},
		{"empty level", "level", []string{"low", ""}, true},
		{"reserved sentinel", "level", []string{"low", UnknownLevel}, true},
		{"missing name", "", []string{"low"}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.space, tt.levels...)
			if (err != nil) != tt.wantErr {
				t.Errorf("New(%q, %v) error = %v, wantErr %v", tt.space, tt.levels, err, tt.wantErr)
			}
		})
	}
}

func TestStep(t *testing.T) {
	s := batterySpace(t)

	tests := []struct {
		name  string
		level string
		dir   Direction
		want  string
	}{
		{"up from low", "low", DirectionUp, "med"},
		{"down from med", "med", DirectionDown, "low"},
		{"up clamps at top", "high", DirectionUp, "high"},
		{"down clamps at bottom", "empty", DirectionDown, "empty"},
		{"none keeps value", "med", DirectionNone, "med"},
		{"unknown input clamps to first level", "bogus", DirectionNone, "empty"},
		{"unknown input then up", "bogus", DirectionUp, "low"},
		{"unknown input then down", "bogus", DirectionDown, "empty"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := s.Step(tt.level, tt.dir); got != tt.want {
				t.Errorf("Step(%q, %s) = %q, want %q", tt.level, tt.dir, got, tt.want)
			}
		})
	}
}

func TestStep_NeverLeavesBounds(t *testing.T) {
	s := batterySpace(t)
	starts := []string{"empty", "low", "med", "high", "bogus"}
	for _, start := range starts {
		for _, d := range []Direction{DirectionUp, DirectionDown, DirectionNone} {
			v := start
			for i := 0; i < 2*s.Len(); i++ {
				v = s.Step(v, d)
				if idx := s.Index(v); idx < 0 || idx > s.Len()-1 {
					t.Fatalf("Step chain from %q (%s) produced out-of-range %q", start, d, v)
				}
			}
			if d == DirectionNone && v != s.Clamp(start) {
				t.Errorf("Step(%q, none) = %q, want Clamp = %q", start, v, s.Clamp(start))
			}
		}
	}
}

func TestAtOrBelowAndAbove(t *testing.T) {
	s := batterySpace(t)

	if got := s.AtOrBelow("high"); !reflect.DeepEqual(got, []string{"empty", "low", "med", "high"}) {
		t.Errorf("AtOrBelow(high) = %v", got)
	}
	if got := s.AtOrBelow("low"); !reflect.DeepEqual(got, []string{"empty", "low"}) {
		t.Errorf("AtOrBelow(low) = %v", got)
	}
	if got := s.AtOrAbove("med"); !reflect.DeepEqual(got, []string{"med", "high"}) {
		t.Errorf("AtOrAbove(med) = %v", got)
	}
	if got := s.AtOrBelow("bogus"); got != nil {
		t.Errorf("AtOrBelow(bogus) = %v, want nil", got)
	}
}

func TestSortAndBounds(t *testing.T) {
	s := batterySpace(t)

	got := s.Sort([]string{"high", "bogus", "low", "high"})
	if !reflect.DeepEqual(got, []string{"low", "high"}) {
		t.Errorf("Sort() = %v, want [low high]", got)
	}

	lo, hi, ok := s.Bounds([]string{"med", "low", "high"})
	if !ok || lo != "low" || hi != "high" {
		t.Errorf("Bounds() = (%q, %q, %v), want (low, high, true)", lo, hi, ok)
	}
	if _, _, ok := s.Bounds([]string{"bogus"}); ok {
		t.Error("Bounds() of non-members should not be ok")
	}
}

func TestParseDirection(t *testing.T) {
	tests := []struct {
		in      string
		want    Direction
		wantErr bool
	}{
		{"up", DirectionUp, false},
		{"DOWN", DirectionDown, false},
		{"", DirectionNone, false},
		{"none", DirectionNone, false},
		{"sideways", DirectionNone, true},
	}
	for _, tt := range tests {
		got, err := ParseDirection(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseDirection(%q) = %v, %v; want %v, err=%v", tt.in, got, err, tt.want, tt.wantErr)
		}
	}
	if DirectionUp.Opposite() != DirectionDown || DirectionNone.Opposite() != DirectionNone {
		t.Error("Opposite() mismatch")
	}
}
