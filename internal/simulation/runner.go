package simulation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nvandessel/qualsim/internal/constants"
	"github.com/nvandessel/qualsim/internal/logging"
	"github.com/nvandessel/qualsim/internal/metrics"
	"github.com/nvandessel/qualsim/internal/object"
	"github.com/nvandessel/qualsim/internal/transition"
)

// ErrBranchDepth is returned when resolving one action application needs
// more nested forks than Options.MaxBranchDepth allows.
var ErrBranchDepth = errors.New("branch depth limit exceeded")

// ActionLookup finds the action declared for an object type.
type ActionLookup interface {
	Action(objectType, name string) (*transition.Action, error)
}

// Step is one action application of a scenario.
type Step struct {
	Action string            `json:"action" yaml:"action"`
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// Scenario is the input of a run.
type Scenario struct {
	Name     string
	Instance *object.Instance
	Steps    []Step
}

// Options tune a Runner. Zero values take the defaults from constants.
type Options struct {
	// MaxNodes caps the tree size. When reached the run stops and the tree
	// is marked truncated.
	MaxNodes int
	// MaxBranchDepth caps nested forks within one action application.
	MaxBranchDepth int
	// Parallelism is the number of frontier nodes expanded concurrently.
	Parallelism int

	Logger    *slog.Logger
	Decisions *logging.DecisionLogger
	Metrics   *metrics.Recorder
}

func (o Options) withDefaults() Options {
	if o.MaxNodes <= 0 {
		o.MaxNodes = constants.DefaultMaxNodes
	}
	if o.MaxBranchDepth <= 0 {
		o.MaxBranchDepth = constants.DefaultMaxBranchDepth
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 1
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Runner expands scenarios into trees.
type Runner struct {
	actions ActionLookup
	engine  *transition.Engine
	opts    Options
}

// NewRunner creates a runner resolving action names through actions.
func NewRunner(actions ActionLookup, opts Options) *Runner {
	opts = opts.withDefaults()
	return &Runner{
		actions: actions,
		engine:  transition.NewEngine(opts.Logger),
		opts:    opts,
	}
}

// Run builds the tree of a scenario. Cancellation and the node budget stop
// the run early without an error; the returned tree is then marked
// truncated. Errors are reserved for invalid scenarios and engine errors.
func (r *Runner) Run(ctx context.Context, sc Scenario) (*Tree, error) {
	start := time.Now()
	typ := sc.Instance.Type()

	actions := make([]*transition.Action, len(sc.Steps))
	for i, step := range sc.Steps {
		a, err := r.actions.Action(typ.Name, step.Action)
		if err != nil {
			return nil, fmt.Errorf("scenario %q step %d: %w", sc.Name, i+1, err)
		}
		actions[i] = a
	}

	tree := newTree(r.opts.MaxNodes)
	tree.RunID = uuid.NewString()
	tree.ObjectType = typ.Key()
	tree.Scenario = sc.Name
	tree.Steps = sc.Steps

	rn := &run{Runner: r, tree: tree, typ: typ}
	root, ok := rn.insert(Node{Parent: NoParent, Status: transition.StatusOK, Snapshot: sc.Instance.Snapshot()})
	if !ok {
		return tree, nil
	}
	r.opts.Logger.Debug("simulation started", "run", tree.RunID, "scenario", sc.Name, "object", tree.ObjectType, "steps", len(sc.Steps))

	frontier := []NodeID{root}
	for i, step := range sc.Steps {
		if len(frontier) == 0 || tree.Truncated() {
			break
		}
		if err := ctx.Err(); err != nil {
			tree.stop(fmt.Sprintf("canceled before step %d: %v", i+1, err))
			break
		}

		next := make([][]NodeID, len(frontier))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(r.opts.Parallelism)
		for j, id := range frontier {
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					tree.stop(fmt.Sprintf("canceled during step %d: %v", i+1, err))
					return nil
				}
				ids, err := rn.expand(id, i+1, actions[i], step.Params)
				next[j] = ids
				return err
			})
		}
		if err := g.Wait(); err != nil {
			return nil, fmt.Errorf("scenario %q step %d (%s): %w", sc.Name, i+1, step.Action, err)
		}

		frontier = frontier[:0]
		for _, ids := range next {
			frontier = append(frontier, ids...)
		}
		r.opts.Logger.Debug("step applied", "run", tree.RunID, "step", i+1, "action", step.Action, "frontier", len(frontier), "nodes", tree.Len())
	}

	r.opts.Metrics.RunFinished(tree.Truncated(), time.Since(start))
	if tree.Truncated() {
		r.opts.Logger.Warn("simulation truncated", "run", tree.RunID, "reason", tree.StopReason(), "nodes", tree.Len())
	}
	return tree, nil
}

// run is the state of one Run call.
type run struct {
	*Runner
	tree *Tree
	typ  *object.Type
}

// expand applies action to the frontier node id and returns the ok nodes it
// created.
func (rn *run) expand(id NodeID, step int, action *transition.Action, params map[string]string) ([]NodeID, error) {
	parent, ok := rn.tree.Node(id)
	if !ok {
		return nil, fmt.Errorf("node %d not found", id)
	}
	inst, err := object.FromSnapshot(rn.typ, parent.Snapshot)
	if err != nil {
		return nil, fmt.Errorf("node %d: %w", id, err)
	}
	return rn.apply(id, inst, applyArgs{step: step, action: action, params: params}, nil, 0)
}
