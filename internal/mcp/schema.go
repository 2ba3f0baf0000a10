package mcp

import (
	"github.com/nvandessel/qualsim/internal/export"
	"github.com/nvandessel/qualsim/internal/store"
)

// SimulateInput defines the input for qualsim_simulate tool.
type SimulateInput struct {
	Scenario string `json:"scenario" jsonschema:"Name of a scenario in the knowledge base"`
	KBPath   string `json:"kb_path,omitempty" jsonschema:"Knowledge base file or directory to load instead of the .qualsim/kb directories"`
	MaxNodes int    `json:"max_nodes,omitempty" jsonschema:"Cap on tree size (default from config)"`
	Save     *bool  `json:"save,omitempty" jsonschema:"Store the finished run (default from config)"`
	Format   string `json:"format,omitempty" jsonschema:"Tree rendering: json (document), yaml, dot or text. Default: json"`
}

// SimulateOutput defines the output for qualsim_simulate tool.
type SimulateOutput struct {
	RunID      string         `json:"run_id" jsonschema:"Id of the run"`
	ObjectType string         `json:"object_type" jsonschema:"Object type the scenario instantiates"`
	Scenario   string         `json:"scenario"`
	Summary    export.Summary `json:"summary" jsonschema:"Node counts by status"`
	Truncated  bool           `json:"truncated" jsonschema:"Whether a node cap or timeout stopped the run"`
	StopReason string         `json:"stop_reason,omitempty"`
	Saved      bool           `json:"saved" jsonschema:"Whether the run was stored"`
	Format     string         `json:"format"`
	Tree       any            `json:"tree" jsonschema:"The tree document (json) or its rendering"`
	Message    string         `json:"message"`
}

// ValidateInput defines the input for qualsim_validate tool.
type ValidateInput struct {
	KBPath string `json:"kb_path,omitempty" jsonschema:"Knowledge base file or directory to validate instead of the .qualsim/kb directories"`
	RunID  string `json:"run_id,omitempty" jsonschema:"Also check the structure of this stored run"`
}

// LoadErrorOutput describes why a knowledge base failed to load.
type LoadErrorOutput struct {
	File    string `json:"file,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Name    string `json:"name,omitempty"`
	Message string `json:"message"`
}

// RunIssueOutput is one structural problem of a stored run.
type RunIssueOutput struct {
	NodeID int    `json:"node_id"`
	Field  string `json:"field"`
	Issue  string `json:"issue"`
}

// ValidateOutput defines the output for qualsim_validate tool.
type ValidateOutput struct {
	Valid       bool             `json:"valid"`
	Files       []string         `json:"files,omitempty" jsonschema:"Files the knowledge base was read from"`
	Spaces      int              `json:"spaces"`
	ObjectTypes int              `json:"object_types"`
	Actions     int              `json:"actions"`
	Scenarios   int              `json:"scenarios"`
	Error       *LoadErrorOutput `json:"error,omitempty"`
	RunIssues   []RunIssueOutput `json:"run_issues,omitempty"`
	Message     string           `json:"message"`
}

// LevelsInput defines the input for qualsim_levels tool.
type LevelsInput struct {
	ObjectType string `json:"object_type" jsonschema:"Object type name or name@version"`
	Path       string `json:"path" jsonschema:"Attribute path, e.g. battery.level"`
	LastKnown  string `json:"last_known,omitempty" jsonschema:"Last level observed before the value became unknown"`
	Trend      string `json:"trend,omitempty" jsonschema:"Direction of the last trend: up, down or none"`
	KBPath     string `json:"kb_path,omitempty"`
}

// LevelsOutput defines the output for qualsim_levels tool.
type LevelsOutput struct {
	Space   string   `json:"space"`
	Levels  []string `json:"levels" jsonschema:"Every level of the space, lowest first"`
	Allowed []string `json:"allowed" jsonschema:"Levels the unknown value may hold"`
	Mutable bool     `json:"mutable"`
	Message string   `json:"message"`
}

// RunsInput defines the input for qualsim_runs tool.
type RunsInput struct {
	ObjectType string `json:"object_type,omitempty"`
	Scenario   string `json:"scenario,omitempty"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum runs to return (default 20)"`
}

// RunsOutput defines the output for qualsim_runs tool.
type RunsOutput struct {
	Runs  []store.RunSummary `json:"runs"`
	Count int                `json:"count"`
}

// GraphInput defines the input for qualsim_graph tool.
type GraphInput struct {
	RunID      string `json:"run_id" jsonschema:"Stored run to render"`
	Format     string `json:"format,omitempty" jsonschema:"dot (Graphviz), text or json. Default: dot"`
	Attributes bool   `json:"attributes,omitempty" jsonschema:"Show every attribute per node instead of the diff"`
}

// GraphOutput defines the output for qualsim_graph tool.
type GraphOutput struct {
	RunID     string `json:"run_id"`
	Format    string `json:"format"`
	Graph     any    `json:"graph"`
	NodeCount int    `json:"node_count"`
}
