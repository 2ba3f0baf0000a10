// Package export converts simulation trees into a self-contained document
// and encodes it as JSON or YAML. Documents are what the run store keeps
// and what the renderers read.
package export

import (
	"time"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/constants"
	"github.com/nvandessel/qualsim/internal/constraint"
	"github.com/nvandessel/qualsim/internal/simulation"
	"github.com/nvandessel/qualsim/internal/transition"
)

// Document is the serialized form of a finished tree.
type Document struct {
	Version    int               `json:"version" yaml:"version"`
	RunID      string            `json:"run_id" yaml:"run_id"`
	ObjectType string            `json:"object_type" yaml:"object_type"`
	Scenario   string            `json:"scenario,omitempty" yaml:"scenario,omitempty"`
	CreatedAt  time.Time         `json:"created_at" yaml:"created_at"`
	Steps      []simulation.Step `json:"steps" yaml:"steps"`
	Truncated  bool              `json:"truncated" yaml:"truncated"`
	StopReason string            `json:"stop_reason,omitempty" yaml:"stop_reason,omitempty"`
	Nodes      []NodeDoc         `json:"nodes" yaml:"nodes"`
}

// NodeDoc is one tree node. ParentID is nil for the root.
type NodeDoc struct {
	ID         int                    `json:"id" yaml:"id"`
	ParentID   *int                   `json:"parent_id" yaml:"parent_id"`
	Step       int                    `json:"step" yaml:"step"`
	Action     string                 `json:"action,omitempty" yaml:"action,omitempty"`
	Status     string                 `json:"status" yaml:"status"`
	Branch     *BranchDoc             `json:"branch,omitempty" yaml:"branch,omitempty"`
	Reason     string                 `json:"reason,omitempty" yaml:"reason,omitempty"`
	Attributes []AttributeDoc         `json:"attributes" yaml:"attributes"`
	Diff       []ChangeDoc            `json:"diff,omitempty" yaml:"diff,omitempty"`
	Violations []constraint.Violation `json:"violations,omitempty" yaml:"violations,omitempty"`
}

// BranchDoc is the assumption a branch child was created under.
type BranchDoc struct {
	Path      string `json:"path" yaml:"path"`
	Operator  string `json:"operator" yaml:"operator"`
	Value     string `json:"value" yaml:"value"`
	Source    string `json:"source" yaml:"source"`
	Satisfies bool   `json:"satisfies" yaml:"satisfies"`
}

// AttributeDoc is the state of one attribute at a node. Before is the value
// at the parent node.
type AttributeDoc struct {
	Path      string           `json:"path" yaml:"path"`
	Before    *attribute.Value `json:"before,omitempty" yaml:"before,omitempty"`
	After     attribute.Value  `json:"after" yaml:"after"`
	Trend     string           `json:"trend" yaml:"trend"`
	LastKnown string           `json:"last_known,omitempty" yaml:"last_known,omitempty"`
	LastTrend string           `json:"last_trend,omitempty" yaml:"last_trend,omitempty"`
}

// ChangeDoc is one diff entry.
type ChangeDoc struct {
	Attribute   string          `json:"attribute" yaml:"attribute"`
	Kind        string          `json:"kind" yaml:"kind"`
	Before      attribute.Value `json:"before" yaml:"before"`
	After       attribute.Value `json:"after" yaml:"after"`
	BeforeTrend string          `json:"before_trend" yaml:"before_trend"`
	AfterTrend  string          `json:"after_trend" yaml:"after_trend"`
	Note        string          `json:"note,omitempty" yaml:"note,omitempty"`
}

// FromTree builds a document from a finished tree. Nodes keep their ids
// and insertion order.
func FromTree(tree *simulation.Tree) *Document {
	doc := &Document{
		Version:    constants.DocumentVersion,
		RunID:      tree.RunID,
		ObjectType: tree.ObjectType,
		Scenario:   tree.Scenario,
		CreatedAt:  time.Now().UTC(),
		Steps:      append([]simulation.Step(nil), tree.Steps...),
		Truncated:  tree.Truncated(),
		StopReason: tree.StopReason(),
	}

	nodes := tree.Nodes()
	byID := make(map[simulation.NodeID]*simulation.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	doc.Nodes = make([]NodeDoc, 0, len(nodes))
	for _, n := range nodes {
		nd := NodeDoc{
			ID:         int(n.ID),
			Step:       n.Step,
			Action:     n.Action,
			Status:     string(n.Status),
			Reason:     n.Reason,
			Violations: n.Violations,
		}
		var parent *simulation.Node
		if n.Parent != simulation.NoParent {
			pid := int(n.Parent)
			nd.ParentID = &pid
			parent = byID[n.Parent]
		}
		if n.Branch != nil {
			nd.Branch = &BranchDoc{
				Path:      n.Branch.Path.String(),
				Operator:  n.Branch.Operator.Symbol(),
				Value:     n.Branch.Value,
				Source:    string(n.Branch.Source),
				Satisfies: n.Branch.Satisfies,
			}
		}
		for _, p := range n.Snapshot.Paths() {
			st, _ := n.Snapshot.State(p)
			ad := AttributeDoc{
				Path:      p.String(),
				After:     st.Value,
				Trend:     string(st.Trend),
				LastKnown: st.LastKnown,
				LastTrend: string(st.LastTrend),
			}
			if parent != nil {
				before := parent.Snapshot.Value(p)
				ad.Before = &before
			}
			nd.Attributes = append(nd.Attributes, ad)
		}
		nd.Diff = changeDocs(n.Diff)
		doc.Nodes = append(doc.Nodes, nd)
	}
	return doc
}

func changeDocs(changes []transition.Change) []ChangeDoc {
	if len(changes) == 0 {
		return nil
	}
	out := make([]ChangeDoc, len(changes))
	for i, c := range changes {
		out[i] = ChangeDoc{
			Attribute:   c.Attribute.String(),
			Kind:        string(c.Kind),
			Before:      c.Before,
			After:       c.After,
			BeforeTrend: string(c.BeforeTrend),
			AfterTrend:  string(c.AfterTrend),
			Note:        c.Note,
		}
	}
	return out
}

// Node returns the node with the given id.
func (d *Document) Node(id int) (*NodeDoc, bool) {
	if id >= 0 && id < len(d.Nodes) && d.Nodes[id].ID == id {
		return &d.Nodes[id], true
	}
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}

// Children returns the ids of the children of id in insertion order.
func (d *Document) Children(id int) []int {
	var out []int
	for _, n := range d.Nodes {
		if n.ParentID != nil && *n.ParentID == id {
			out = append(out, n.ID)
		}
	}
	return out
}

// Summary counts a document's nodes.
type Summary struct {
	Nodes    int `json:"nodes"`
	OK       int `json:"ok"`
	Rejected int `json:"rejected"`
	Pending  int `json:"pending"`
	// Leaves are ok nodes of the last step: the possible final worlds.
	Leaves int `json:"leaves"`
}

// Summarize counts nodes by status.
func (d *Document) Summarize() Summary {
	s := Summary{Nodes: len(d.Nodes)}
	hasChild := make(map[int]bool, len(d.Nodes))
	for _, n := range d.Nodes {
		if n.ParentID != nil {
			hasChild[*n.ParentID] = true
		}
	}
	last := len(d.Steps)
	for _, n := range d.Nodes {
		switch transition.Status(n.Status) {
		case transition.StatusOK:
			s.OK++
			if n.Step == last && !hasChild[n.ID] {
				s.Leaves++
			}
		case transition.StatusRejected:
			s.Rejected++
		case transition.StatusPending:
			s.Pending++
		}
	}
	return s
}
