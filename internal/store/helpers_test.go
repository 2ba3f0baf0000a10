package store

import (
	"time"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/constants"
	"github.com/nvandessel/qualsim/internal/export"
	"github.com/nvandessel/qualsim/internal/simulation"
)

func intPtr(i int) *int { return &i }

// testDoc is a one-step tree: a root, an ok child created by a branch and a
// rejected sibling.
func testDoc(id, objectType string, created time.Time) *export.Document {
	before := attribute.Set("low", "high")
	return &export.Document{
		Version:    constants.DocumentVersion,
		RunID:      id,
		ObjectType: objectType,
		Scenario:   "drain",
		CreatedAt:  created,
		Steps:      []simulation.Step{{Action: "turn_on"}},
		Nodes: []export.NodeDoc{
			{
				ID:     0,
				Status: "ok",
				Attributes: []export.AttributeDoc{
					{Path: "battery.level", After: before, Trend: "none"},
				},
			},
			{
				ID:       1,
				ParentID: intPtr(0),
				Step:     1,
				Action:   "turn_on",
				Status:   "ok",
				Branch:   &export.BranchDoc{Path: "battery.level", Operator: "==", Value: "high", Source: "precondition", Satisfies: true},
				Attributes: []export.AttributeDoc{
					{Path: "battery.level", Before: &before, After: attribute.Unknown(), Trend: "down", LastKnown: "high", LastTrend: "down"},
				},
				Diff: []export.ChangeDoc{
					{Attribute: "battery.level", Kind: "narrowing", Before: before, After: attribute.Concrete("high"), BeforeTrend: "none", AfterTrend: "none"},
					{Attribute: "battery.level", Kind: "value", Before: attribute.Concrete("high"), After: attribute.Unknown(), BeforeTrend: "none", AfterTrend: "down"},
				},
			},
			{
				ID:       2,
				ParentID: intPtr(0),
				Step:     1,
				Action:   "turn_on",
				Status:   "rejected",
				Reason:   "precondition failed: battery.level != empty (actual: empty)",
				Branch:   &export.BranchDoc{Path: "battery.level", Operator: "==", Value: "low", Source: "precondition"},
				Attributes: []export.AttributeDoc{
					{Path: "battery.level", Before: &before, After: attribute.Concrete("low"), Trend: "none"},
				},
				Diff: []export.ChangeDoc{
					{Attribute: "battery.level", Kind: "narrowing", Before: before, After: attribute.Concrete("low"), BeforeTrend: "none", AfterTrend: "none"},
				},
			},
		},
	}
}
