package simulation

import (
	"fmt"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/condition"
	"github.com/nvandessel/qualsim/internal/object"
	"github.com/nvandessel/qualsim/internal/resolver"
	"github.com/nvandessel/qualsim/internal/transition"
)

// Fork is an undecided leaf that the runner branches on.
type Fork struct {
	Path   attribute.Path
	Leaf   condition.Condition
	Source Source
}

// DetectCondition turns a pending result's branch request into a Fork.
// Guard indeterminacy is a postcondition fork; otherwise the source depends
// on whether the attribute holds a candidate set or is unknown.
func DetectCondition(inst *object.Instance, req *transition.BranchRequest) (Fork, error) {
	if req == nil {
		return Fork{}, fmt.Errorf("pending result without a branch request")
	}
	cell, err := inst.Cell(req.Path)
	if err != nil {
		return Fork{}, err
	}
	f := Fork{Path: req.Path, Leaf: req.Leaf}
	switch {
	case req.Stage == transition.StagePostcondition:
		f.Source = SourcePostcondition
	case cell.Value().IsUnknown():
		f.Source = SourceUnknownResolution
	case cell.Value().IsSet():
		f.Source = SourcePrecondition
	default:
		return Fork{}, fmt.Errorf("%s = %s is determined, nothing to branch on", req.Path, cell.Value())
	}
	return f, nil
}

// Partition splits the candidate levels of a fork's attribute by whether
// they satisfy the fork's leaf. Candidates keeps space order.
type Partition struct {
	Candidates []string
	Satisfying []string
	Failing    []string
}

func (p Partition) satisfies(level string) bool {
	for _, l := range p.Satisfying {
		if l == level {
			return true
		}
	}
	return false
}

// PartitionCandidates evaluates the fork's leaf against every candidate level
// of its attribute.
func PartitionCandidates(inst *object.Instance, f Fork) (Partition, error) {
	cell, err := inst.Cell(f.Path)
	if err != nil {
		return Partition{}, err
	}
	p := Partition{Candidates: resolver.Candidates(cell)}
	for _, level := range p.Candidates {
		ok, err := condition.EvaluateLeafValue(f.Leaf, level, cell.Space())
		if err != nil {
			return Partition{}, err
		}
		if ok {
			p.Satisfying = append(p.Satisfying, level)
		} else {
			p.Failing = append(p.Failing, level)
		}
	}
	return p, nil
}

// Child is one world created by a fork.
type Child struct {
	Instance *object.Instance
	Branch   BranchCondition
	// Narrowing is the diff entry from the forked state to this child.
	Narrowing transition.Change
}

// CreateChildren returns one independent clone of inst per candidate level,
// each narrowed to that level. inst is not modified.
func CreateChildren(inst *object.Instance, f Fork, p Partition) ([]Child, error) {
	cell, err := inst.Cell(f.Path)
	if err != nil {
		return nil, err
	}
	before := cell.State()

	children := make([]Child, 0, len(p.Candidates))
	for _, level := range p.Candidates {
		clone, err := inst.CloneWithValues(map[attribute.Path]attribute.Value{f.Path: attribute.Concrete(level)})
		if err != nil {
			return nil, fmt.Errorf("branching %s on %s: %w", f.Path, level, err)
		}
		children = append(children, Child{
			Instance: clone,
			Branch: BranchCondition{
				Path:      f.Path,
				Operator:  condition.OpEquals,
				Value:     level,
				Source:    f.Source,
				Satisfies: p.satisfies(level),
			},
			Narrowing: transition.Change{
				Attribute:   f.Path,
				Before:      before.Value,
				After:       attribute.Concrete(level),
				BeforeTrend: before.Trend,
				AfterTrend:  before.Trend,
				Kind:        transition.ChangeNarrowing,
				Note:        string(f.Source),
			},
		})
	}
	return children, nil
}
