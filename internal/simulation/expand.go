package simulation

import (
	"fmt"

	"github.com/nvandessel/qualsim/internal/object"
	"github.com/nvandessel/qualsim/internal/transition"
)

type applyArgs struct {
	step   int
	action *transition.Action
	params map[string]string
}

// apply applies the step's action to inst and inserts the outcome under
// parentID. via is the branch child inst was created as, nil for a frontier
// node. It returns the ok nodes created.
//
// A determinate result becomes a single node. A pending result forks: the
// children are inserted directly under parentID for a precondition fork of
// a frontier node, and under a new pending node otherwise, so that every
// node carries at most one branch assumption.
func (rn *run) apply(parentID NodeID, inst *object.Instance, a applyArgs, via *Child, depth int) ([]NodeID, error) {
	res, err := rn.engine.Apply(inst, a.action, a.params)
	if err != nil {
		return nil, err
	}

	node := Node{
		Parent: parentID,
		Step:   a.step,
		Action: a.action.Name,
		Status: res.Status,
		Reason: res.Reason,
	}
	var prefix []transition.Change
	if via != nil {
		b := via.Branch
		node.Branch = &b
		prefix = []transition.Change{via.Narrowing}
	}

	switch res.Status {
	case transition.StatusOK:
		node.Snapshot = res.After
		node.Diff = append(prefix, res.Diff...)
		id, ok := rn.insert(node)
		if !ok {
			return nil, nil
		}
		return []NodeID{id}, nil

	case transition.StatusRejected:
		// A constraint rejection keeps the offending state so the
		// violation can be inspected.
		node.Snapshot = res.Before
		if res.After != nil {
			node.Snapshot = res.After
		}
		node.Diff = append(prefix, res.Diff...)
		node.Violations = res.Violations
		id, ok := rn.insert(node)
		if !ok {
			return nil, nil
		}
		rn.opts.Metrics.Rejected(a.action.Name)
		rn.opts.Decisions.Log(map[string]any{
			"event":  "rejected",
			"run":    rn.tree.RunID,
			"step":   a.step,
			"node":   int(id),
			"action": a.action.Name,
			"reason": res.Reason,
		})
		return nil, nil
	}

	if depth >= rn.opts.MaxBranchDepth {
		return nil, fmt.Errorf("action %q at depth %d: %w", a.action.Name, depth, ErrBranchDepth)
	}
	fork, err := DetectCondition(inst, res.Branch)
	if err != nil {
		return nil, err
	}
	part, err := PartitionCandidates(inst, fork)
	if err != nil {
		return nil, err
	}
	children, err := CreateChildren(inst, fork, part)
	if err != nil {
		return nil, err
	}

	forkID := parentID
	if via != nil || fork.Source == SourcePostcondition {
		node.Snapshot = inst.Snapshot()
		node.Diff = prefix
		node.Reason = fmt.Sprintf("%s undetermined: branching on %s", fork.Leaf, fork.Path)
		id, ok := rn.insert(node)
		if !ok {
			return nil, nil
		}
		forkID = id
	}

	rn.opts.Metrics.Branched(string(fork.Source), len(children))
	rn.opts.Decisions.Log(map[string]any{
		"event":      "branch",
		"run":        rn.tree.RunID,
		"step":       a.step,
		"node":       int(forkID),
		"action":     a.action.Name,
		"path":       fork.Path.String(),
		"source":     string(fork.Source),
		"leaf":       fork.Leaf.String(),
		"satisfying": part.Satisfying,
		"failing":    part.Failing,
	})
	rn.opts.Logger.Debug("branching", "run", rn.tree.RunID, "node", int(forkID), "path", fork.Path.String(),
		"source", fork.Source, "children", len(children))

	var out []NodeID
	for i := range children {
		ids, err := rn.apply(forkID, children[i].Instance, a, &children[i], depth+1)
		if err != nil {
			return nil, err
		}
		out = append(out, ids...)
		if rn.tree.Truncated() {
			break
		}
	}
	return out, nil
}

func (rn *run) insert(n Node) (NodeID, bool) {
	id, ok := rn.tree.insert(n)
	if ok {
		rn.opts.Metrics.NodeAdded(string(n.Status))
	}
	return id, ok
}
