package simulation

import (
	"fmt"
	"sync"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/condition"
	"github.com/nvandessel/qualsim/internal/constraint"
	"github.com/nvandessel/qualsim/internal/object"
	"github.com/nvandessel/qualsim/internal/transition"
)

// NodeID addresses a node in a Tree. IDs are allocated sequentially.
type NodeID int

// NoParent is the parent of the root node.
const NoParent NodeID = -1

// Source says why a branch was created.
type Source string

const (
	SourcePrecondition      Source = "precondition"
	SourcePostcondition     Source = "postcondition"
	SourceUnknownResolution Source = "unknown-resolution"
)

// BranchCondition records the assumption a branch child was created under:
// Path was narrowed to Value. Satisfies tells whether that level satisfies
// the leaf that caused the branch.
type BranchCondition struct {
	Path      attribute.Path     `json:"path"`
	Operator  condition.Operator `json:"operator"`
	Value     string             `json:"value"`
	Source    Source             `json:"source"`
	Satisfies bool               `json:"satisfies"`
}

func (b BranchCondition) String() string {
	return fmt.Sprintf("%s %s %s [%s]", b.Path, b.Operator.Symbol(), b.Value, b.Source)
}

// Node is one world state in the tree. Nodes are never modified after
// insertion.
type Node struct {
	ID         NodeID
	Parent     NodeID
	Step       int
	Action     string
	Branch     *BranchCondition
	Status     transition.Status
	Snapshot   *object.Snapshot
	Diff       []transition.Change
	Reason     string
	Violations []constraint.Violation
}

// Tree is the append-only arena of a run. Insertion is serialized; readers
// may walk the tree once Run has returned.
type Tree struct {
	RunID      string
	ObjectType string
	Scenario   string
	Steps      []Step

	mu         sync.RWMutex
	nodes      []*Node
	children   map[NodeID][]NodeID
	maxNodes   int
	truncated  bool
	stopReason string
}

func newTree(maxNodes int) *Tree {
	return &Tree{
		children: make(map[NodeID][]NodeID),
		maxNodes: maxNodes,
	}
}

// insert appends n, assigning its ID. It returns false without inserting
// when the node budget is exhausted, and marks the tree truncated.
func (t *Tree) insert(n Node) (NodeID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.maxNodes > 0 && len(t.nodes) >= t.maxNodes {
		t.stopLocked(fmt.Sprintf("node budget of %d exhausted", t.maxNodes))
		return 0, false
	}
	n.ID = NodeID(len(t.nodes))
	t.nodes = append(t.nodes, &n)
	if n.Parent != NoParent {
		t.children[n.Parent] = append(t.children[n.Parent], n.ID)
	}
	return n.ID, true
}

func (t *Tree) stop(reason string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stopLocked(reason)
}

func (t *Tree) stopLocked(reason string) {
	if !t.truncated {
		t.truncated = true
		t.stopReason = reason
	}
}

// Truncated reports whether the run stopped before every step was applied
// to every frontier node.
func (t *Tree) Truncated() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.truncated
}

// StopReason explains a truncation.
func (t *Tree) StopReason() string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.stopReason
}

// Len returns the number of nodes.
func (t *Tree) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.nodes)
}

// Root returns the root node, or nil for an empty tree.
func (t *Tree) Root() *Node {
	n, _ := t.Node(0)
	return n
}

// Node returns the node with the given id.
func (t *Tree) Node(id NodeID) (*Node, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if id < 0 || int(id) >= len(t.nodes) {
		return nil, false
	}
	return t.nodes[id], true
}

// Children returns the ids of id's children in insertion order.
func (t *Tree) Children(id NodeID) []NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]NodeID(nil), t.children[id]...)
}

// Nodes returns every node in id order.
func (t *Tree) Nodes() []*Node {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*Node(nil), t.nodes...)
}

// Frontier returns the ok nodes without children: the worlds still open for
// further actions.
func (t *Tree) Frontier() []NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var out []NodeID
	for _, n := range t.nodes {
		if n.Status == transition.StatusOK && len(t.children[n.ID]) == 0 {
			out = append(out, n.ID)
		}
	}
	return out
}

// Ancestry returns the ids from the root down to id.
func (t *Tree) Ancestry(id NodeID) []NodeID {
	t.mu.RLock()
	defer t.mu.RUnlock()
	var path []NodeID
	for id >= 0 && int(id) < len(t.nodes) {
		path = append(path, id)
		id = t.nodes[id].Parent
	}
	for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
		path[i], path[j] = path[j], path[i]
	}
	return path
}

// CountByStatus tallies nodes per status.
func (t *Tree) CountByStatus() map[transition.Status]int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make(map[transition.Status]int)
	for _, n := range t.nodes {
		out[n.Status]++
	}
	return out
}
