package visualization

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/export"
)

func intPtr(i int) *int { return &i }

// testDocument is a root with an uncertain battery and two turn_on children:
// one assumes a high battery, the other an empty battery and is rejected.
func testDocument() *export.Document {
	high := attribute.Concrete("high")
	off := attribute.Concrete("off")
	return &export.Document{
		Version:    1,
		RunID:      "run-1",
		ObjectType: "flashlight@1",
		Scenario:   "uncertain",
		Nodes: []export.NodeDoc{
			{
				ID:     0,
				Status: "ok",
				Attributes: []export.AttributeDoc{
					{Path: "battery.level", After: attribute.Set("empty", "high"), Trend: "none"},
					{Path: "switch.state", After: off, Trend: "none"},
				},
			},
			{
				ID:       1,
				ParentID: intPtr(0),
				Step:     1,
				Action:   "turn_on",
				Status:   "ok",
				Branch:   &export.BranchDoc{Path: "battery.level", Operator: "!=", Value: "high", Source: "precondition", Satisfies: true},
				Attributes: []export.AttributeDoc{
					{Path: "battery.level", After: high, Trend: "down"},
					{Path: "switch.state", After: attribute.Concrete("on"), Trend: "none"},
				},
				Diff: []export.ChangeDoc{
					{Attribute: "battery.level", Kind: "narrowing", Before: attribute.Set("empty", "high"), After: high, BeforeTrend: "none", AfterTrend: "none"},
					{Attribute: "switch.state", Kind: "value", Before: off, After: attribute.Concrete("on"), BeforeTrend: "none", AfterTrend: "none"},
					{Attribute: "battery.level", Kind: "trend", Before: high, After: high, BeforeTrend: "none", AfterTrend: "down"},
				},
			},
			{
				ID:       2,
				ParentID: intPtr(0),
				Step:     1,
				Action:   "turn_on",
				Status:   "rejected",
				Branch:   &export.BranchDoc{Path: "battery.level", Operator: "!=", Value: "empty", Source: "unknown-resolution"},
				Reason:   "precondition failed",
			},
		},
	}
}

func TestRenderDOT(t *testing.T) {
	dot := RenderDOT(testDocument(), Options{})

	for _, want := range []string{
		"digraph qualsim {",
		`label="flashlight@1 / uncertain"`,
		`"n0" [label="#0 step 0\nbattery.level = {empty, high}\nswitch.state = off", fillcolor="#a3d9a5"]`,
		`"n2" [label="#2 step 1 rejected\nprecondition failed", fillcolor="#f4a3a3"]`,
		`"n0" -> "n1" [label="turn_on\nbattery.level != high", style=solid]`,
		`"n0" -> "n2" [label="turn_on\nbattery.level != empty", style=dotted]`,
		`switch.state: off -> on`,
		`battery.level: high -> high (none -> down) [trend]`,
	} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT missing %s\n%s", want, dot)
		}
	}
	if !strings.HasSuffix(strings.TrimSpace(dot), "}") {
		t.Error("expected closing brace")
	}
}

func TestRenderDOT_TruncatedTitle(t *testing.T) {
	doc := testDocument()
	doc.Scenario = ""
	doc.Truncated = true
	doc.Nodes = doc.Nodes[:1]

	dot := RenderDOT(doc, Options{})
	if !strings.Contains(dot, `label="flashlight@1 (truncated)"`) {
		t.Errorf("title not marked truncated:\n%s", dot)
	}
	if strings.Contains(dot, "->") {
		t.Error("single-node tree should have no edges")
	}
}

func TestRenderDOT_AllAttributes(t *testing.T) {
	dot := RenderDOT(testDocument(), Options{Attributes: true})
	if !strings.Contains(dot, `"n1" [label="#1 step 1\nbattery.level = high down\nswitch.state = on"`) {
		t.Errorf("full attribute label missing:\n%s", dot)
	}
}

func TestRenderText(t *testing.T) {
	var buf bytes.Buffer
	if err := RenderText(&buf, testDocument(), Options{}); err != nil {
		t.Fatalf("RenderText() error = %v", err)
	}
	want := strings.Join([]string{
		"#0 [ok] step 0",
		"    battery.level = {empty, high}",
		"    switch.state = off",
		"  #1 [ok] step 1 turn_on (battery.level != high)",
		"      battery.level: {empty, high} -> high [narrowing]",
		"      switch.state: off -> on",
		"      battery.level: high -> high (none -> down) [trend]",
		"  #2 [rejected] step 1 turn_on (battery.level != empty): precondition failed",
		"",
	}, "\n")
	if got := buf.String(); got != want {
		t.Errorf("RenderText() =\n%s\nwant\n%s", got, want)
	}
}

func TestRenderText_NoRoot(t *testing.T) {
	doc := testDocument()
	doc.Nodes = doc.Nodes[1:]
	if err := RenderText(&bytes.Buffer{}, doc, Options{}); err == nil {
		t.Error("RenderText() without a root should fail")
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		name   string
		input  string
		maxLen int
		want   string
	}{
		{"short string", "hello", 10, "hello"},
		{"exact length", "hello", 5, "hello"},
		{"truncated", "hello world", 8, "hello..."},
		{"tiny limit", "hello", 2, "he"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := truncate(tt.input, tt.maxLen)
			if got != tt.want {
				t.Errorf("truncate(%q, %d) = %q, want %q", tt.input, tt.maxLen, got, tt.want)
			}
		})
	}
}
