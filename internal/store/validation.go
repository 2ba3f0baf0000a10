package store

import (
	"fmt"

	"github.com/nvandessel/qualsim/internal/export"
	"github.com/nvandessel/qualsim/internal/transition"
)

// ValidationError describes a structural problem of a tree document.
type ValidationError struct {
	NodeID int    `json:"node_id"`
	Field  string `json:"field"` // "id", "parent_id", "step", "status"
	Issue  string `json:"issue"` // "duplicate", "dangling", "forward-reference", ...
}

// String returns a human-readable description of the validation error.
func (e ValidationError) String() string {
	return fmt.Sprintf("%s: node %d %s", e.Issue, e.NodeID, e.Field)
}

// ValidateDocument checks that a document describes a well-formed tree:
// exactly one root, unique ids, parents inserted before their children,
// steps that never decrease along an edge, and known statuses.
func ValidateDocument(doc *export.Document) []ValidationError {
	var errs []ValidationError

	seen := make(map[int]*export.NodeDoc, len(doc.Nodes))
	roots := 0
	for i := range doc.Nodes {
		n := &doc.Nodes[i]
		if _, dup := seen[n.ID]; dup {
			errs = append(errs, ValidationError{NodeID: n.ID, Field: "id", Issue: "duplicate"})
			continue
		}

		switch transition.Status(n.Status) {
		case transition.StatusOK, transition.StatusRejected, transition.StatusPending:
		default:
			errs = append(errs, ValidationError{NodeID: n.ID, Field: "status", Issue: "unknown"})
		}

		if n.ParentID == nil {
			roots++
			if roots > 1 {
				errs = append(errs, ValidationError{NodeID: n.ID, Field: "parent_id", Issue: "multiple-roots"})
			}
		} else if *n.ParentID == n.ID {
			errs = append(errs, ValidationError{NodeID: n.ID, Field: "parent_id", Issue: "self-reference"})
		} else if parent, ok := seen[*n.ParentID]; !ok {
			// Parents are always inserted first, so an unseen parent is
			// either dangling or a forward reference.
			issue := "dangling"
			for j := i + 1; j < len(doc.Nodes); j++ {
				if doc.Nodes[j].ID == *n.ParentID {
					issue = "forward-reference"
					break
				}
			}
			errs = append(errs, ValidationError{NodeID: n.ID, Field: "parent_id", Issue: issue})
		} else if n.Step < parent.Step {
			errs = append(errs, ValidationError{NodeID: n.ID, Field: "step", Issue: "before-parent"})
		}
		seen[n.ID] = n
	}

	if len(doc.Nodes) > 0 && roots == 0 {
		errs = append(errs, ValidationError{NodeID: doc.Nodes[0].ID, Field: "parent_id", Issue: "missing-root"})
	}
	return errs
}

// checkDocument turns validation errors into a single error.
func checkDocument(doc *export.Document) error {
	if doc == nil {
		return fmt.Errorf("document is nil")
	}
	if doc.RunID == "" {
		return fmt.Errorf("document has no run id")
	}
	if len(doc.Nodes) == 0 {
		return fmt.Errorf("run %s has no nodes", doc.RunID)
	}
	errs := ValidateDocument(doc)
	switch len(errs) {
	case 0:
		return nil
	case 1:
		return fmt.Errorf("run %s is not a well-formed tree: %s", doc.RunID, errs[0])
	default:
		return fmt.Errorf("run %s is not a well-formed tree: %s (and %d more)", doc.RunID, errs[0], len(errs)-1)
	}
}
