package transition

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/condition"
	"github.com/nvandessel/qualsim/internal/constraint"
	"github.com/nvandessel/qualsim/internal/object"
)

// ErrWrongObjectType is returned when an action is applied to an instance of
// a type it was not declared for.
var ErrWrongObjectType = errors.New("action does not apply to object type")

// Status is the outcome of applying an action.
type Status string

const (
	StatusOK       Status = "ok"
	StatusRejected Status = "rejected"
	// StatusPending means a precondition or an effect guard could not be
	// decided because an attribute is uncertain. Branch says which one.
	StatusPending Status = "pending"
)

// Stage is where indeterminacy was found.
type Stage string

const (
	StagePrecondition  Stage = "precondition"
	StagePostcondition Stage = "postcondition"
)

// BranchRequest identifies the undecided leaf of a pending result.
type BranchRequest struct {
	Stage Stage
	Path  attribute.Path
	Leaf  condition.Condition
	// Effect is the index of the guarded effect for postcondition requests.
	Effect int
}

// Result is the outcome of Engine.Apply.
type Result struct {
	Status Status
	Before *object.Snapshot
	// After is nil when preconditions reject or are pending. For constraint
	// rejections it holds the offending state.
	After      *object.Snapshot
	Diff       []Change
	Reason     string
	Violations []constraint.Violation
	Branch     *BranchRequest
}

// Engine applies actions. It never modifies the instance it is given.
type Engine struct {
	logger *slog.Logger
}

// NewEngine returns an engine logging to logger. A nil logger discards.
func NewEngine(logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Engine{logger: logger}
}

// Apply applies action a to inst with the given parameters.
//
// Errors are reserved for invalid input: a mismatched object type, a missing
// parameter, an effect the attribute schema forbids (attribute.ErrInvalidMutation)
// or a condition referencing a level outside its space. Rejection and
// indeterminacy are reported through Result.Status.
func (e *Engine) Apply(inst *object.Instance, a *Action, params map[string]string) (*Result, error) {
	if a.ObjectType != inst.Type().Name {
		return nil, fmt.Errorf("action %q on %s: %w", a.Name, inst.Type().Key(), ErrWrongObjectType)
	}
	res := &Result{Before: inst.Snapshot()}

	if a.Preconditions != nil {
		pre, err := condition.Evaluate(*a.Preconditions, inst)
		if err != nil {
			return nil, fmt.Errorf("action %q: preconditions: %w", a.Name, err)
		}
		switch pre.Truth {
		case condition.False:
			res.Status = StatusRejected
			res.Reason = "precondition failed: " + condition.Describe(pre, inst)
			e.logger.Debug("action rejected", "action", a.Name, "reason", res.Reason)
			return res, nil
		case condition.Indeterminate:
			res.Status = StatusPending
			res.Branch = &BranchRequest{Stage: StagePrecondition, Path: pre.Path, Leaf: *pre.Leaf}
			return res, nil
		}
	}

	work := inst.Clone()
	written := make(map[attribute.Path]ChangeKind)
	for i, eff := range a.Effects {
		if eff.When != nil {
			guard, err := condition.Evaluate(*eff.When, inst)
			if err != nil {
				return nil, fmt.Errorf("action %q: effect %d guard: %w", a.Name, i, err)
			}
			switch guard.Truth {
			case condition.False:
				continue
			case condition.Indeterminate:
				res.Status = StatusPending
				res.Branch = &BranchRequest{Stage: StagePostcondition, Path: guard.Path, Leaf: *guard.Leaf, Effect: i}
				return res, nil
			}
		}
		if err := applyEffect(work, eff, params); err != nil {
			return nil, fmt.Errorf("action %q: effect %d (%s): %w", a.Name, i, eff, err)
		}
		if eff.Kind != EffectTrend {
			written[eff.Target] = ChangeValue
		}
	}

	violations, err := e.correct(work, written)
	if err != nil {
		return nil, fmt.Errorf("action %q: %w", a.Name, err)
	}

	res.After = work.Snapshot()
	res.Diff = diff(res.Before, res.After, written)
	if len(violations) > 0 {
		names := make([]string, len(violations))
		for i, v := range violations {
			names[i] = v.Constraint
		}
		res.Status = StatusRejected
		res.Violations = violations
		res.Reason = "constraint violated: " + strings.Join(names, ", ")
		res.Diff = append(res.Diff, violationChanges(work.Type(), res.After, violations)...)
		e.logger.Debug("action rejected", "action", a.Name, "reason", res.Reason)
		return res, nil
	}
	res.Status = StatusOK
	return res, nil
}

func applyEffect(inst *object.Instance, eff Effect, params map[string]string) error {
	cell, err := inst.Cell(eff.Target)
	if err != nil {
		return err
	}
	switch eff.Kind {
	case EffectSet:
		level, err := resolveValue(eff.Value, params)
		if err != nil {
			return err
		}
		return cell.Set(level)
	case EffectStep:
		return cell.StepValue(eff.Direction)
	case EffectTrend:
		return cell.Drift(eff.Direction)
	default:
		return fmt.Errorf("unknown effect kind %q", eff.Kind)
	}
}

// correct validates constraints and applies the corrections of violated
// ones, each constraint at most once, until no further correction applies.
// It returns the violations that remain.
func (e *Engine) correct(inst *object.Instance, written map[attribute.Path]ChangeKind) ([]constraint.Violation, error) {
	deps := make(map[string]constraint.Dependency, len(inst.Type().Constraints))
	for _, d := range inst.Type().Constraints {
		deps[d.Name] = d
	}
	applied := make(map[string]bool)

	for {
		violations, err := inst.Violations()
		if err != nil {
			return nil, err
		}
		progressed := false
		for _, v := range violations {
			d := deps[v.Constraint]
			if applied[d.Name] || len(d.Corrections) == 0 {
				continue
			}
			applied[d.Name] = true
			progressed = true
			for _, c := range d.Corrections {
				cell, err := inst.Cell(c.Target)
				if err != nil {
					return nil, err
				}
				if err := cell.Set(c.Value); err != nil {
					return nil, fmt.Errorf("correcting %q: %w", d.Name, err)
				}
				written[c.Target] = ChangeConstraint
				e.logger.Debug("constraint corrected", "constraint", d.Name, "target", c.Target.String(), "value", c.Value)
			}
		}
		if !progressed {
			return violations, nil
		}
	}
}

// violationChanges records each uncorrected violation as a constraint change
// keyed on the attribute its requirement tests, left at its current state.
func violationChanges(ty *object.Type, after *object.Snapshot, violations []constraint.Violation) []Change {
	deps := make(map[string]constraint.Dependency, len(ty.Constraints))
	for _, d := range ty.Constraints {
		deps[d.Name] = d
	}
	changes := make([]Change, 0, len(violations))
	for _, v := range violations {
		d := deps[v.Constraint]
		leaves := d.Requires.Leaves()
		if len(leaves) == 0 {
			leaves = d.Condition.Leaves()
		}
		if len(leaves) == 0 {
			continue
		}
		path := leaves[0].Target
		st, _ := after.State(path)
		changes = append(changes, Change{
			Attribute:   path,
			Before:      st.Value,
			After:       st.Value,
			BeforeTrend: st.Trend,
			AfterTrend:  st.Trend,
			Kind:        ChangeConstraint,
			Note:        "violates " + v.String(),
		})
	}
	return changes
}

func diff(before, after *object.Snapshot, written map[attribute.Path]ChangeKind) []Change {
	changes := DiffSnapshots(before, after)
	for i := range changes {
		if kind, ok := written[changes[i].Attribute]; ok {
			changes[i].Kind = kind
			if kind == ChangeConstraint {
				changes[i].Note = "corrected by constraint"
			} else {
				changes[i].Note = ""
			}
		}
	}
	return changes
}
