// Package simulation expands a scenario (an initial object instance and a
// sequence of actions) into a tree of possible futures.
//
// Each step applies the step's action to every frontier node. When the
// transition engine cannot decide a precondition or an effect guard because
// an attribute holds a candidate set or is unknown, the runner branches: one
// child per candidate level, each narrowed to that level and re-evaluated.
// Rejected children stay in the tree as dead ends; ok children form the next
// frontier.
//
// The tree is an append-only arena of immutable snapshots addressed by
// NodeID. Nothing in the tree references a live instance.
//
// Usage:
//
//	r := simulation.NewRunner(registry, simulation.Options{MaxNodes: 10000})
//	tree, err := r.Run(ctx, simulation.Scenario{
//	    Name:     "drain",
//	    Instance: inst,
//	    Steps:    []simulation.Step{{Action: "turn_on"}, {Action: "turn_off"}},
//	})
package simulation
