package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/qualsim/internal/attribute"
	"github.com/nvandessel/qualsim/internal/constants"
	"github.com/nvandessel/qualsim/internal/export"
	"github.com/nvandessel/qualsim/internal/kb"
	"github.com/nvandessel/qualsim/internal/pathutil"
	"github.com/nvandessel/qualsim/internal/quantity"
	"github.com/nvandessel/qualsim/internal/ratelimit"
	"github.com/nvandessel/qualsim/internal/sanitize"
	"github.com/nvandessel/qualsim/internal/simulation"
	"github.com/nvandessel/qualsim/internal/store"
	"github.com/nvandessel/qualsim/internal/visualization"
)

const (
	kbResourceURI     = "qualsim://kb"
	runResourcePrefix = "qualsim://runs/"
	defaultRunsLimit  = 20
)

// registerTools registers all qualsim MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "qualsim_simulate",
		Description: "Run a knowledge-base scenario and return the tree of possible worlds",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "qualsim_validate",
		Description: "Load and check the knowledge base, and optionally the structure of a stored run",
	}, s.handleValidate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "qualsim_levels",
		Description: "List the levels an unknown attribute may hold given its last-known level and trend",
	}, s.handleLevels)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "qualsim_runs",
		Description: "List stored runs, newest first",
	}, s.handleRuns)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "qualsim_graph",
		Description: "Render a stored run as DOT (Graphviz), an indented text outline, or the JSON document",
	}, s.handleGraph)
}

// registerResources registers MCP resources for loading into context.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         kbResourceURI,
		Name:        "qualsim-knowledge-base",
		Description: "Quantity spaces, object types, actions and scenarios of the project's knowledge base.",
		MIMEType:    "text/markdown",
	}, s.handleKBResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: runResourcePrefix + "{id}",
		Name:        "qualsim-run",
		Description: "The full tree document of a stored run.",
		MIMEType:    "application/json",
	}, s.handleRunResource)
}

// loadKB reads kbPath when given, otherwise the kb directories of the user
// and project data directories.
func (s *Server) loadKB(kbPath string) (*kb.KnowledgeBase, error) {
	if kbPath == "" {
		dirs, err := pathutil.DataDirs(s.root, constants.ScopeBoth)
		if err != nil {
			return nil, err
		}
		return kb.LoadDirs(dirs)
	}

	if !filepath.IsAbs(kbPath) {
		kbPath = filepath.Join(s.root, kbPath)
	}
	allowedDirs, err := pathutil.DefaultAllowedOutputDirs(s.root)
	if err != nil {
		return nil, fmt.Errorf("failed to determine allowed directories: %w", err)
	}
	if err := pathutil.ValidatePath(kbPath, allowedDirs); err != nil {
		return nil, fmt.Errorf("knowledge base path rejected: %w", err)
	}
	return kb.Load(kbPath)
}

func (s *Server) simulationOptions() simulation.Options {
	return simulation.Options{
		MaxNodes:       s.settings.Simulation.MaxNodes,
		MaxBranchDepth: s.settings.Simulation.MaxBranchDepth,
		Parallelism:    s.settings.Simulation.Parallelism,
		Logger:         s.logger,
		Decisions:      s.decisions,
		Metrics:        s.metrics,
	}
}

// handleSimulate implements the qualsim_simulate tool.
func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, _ SimulateOutput, retErr error) {
	start := time.Now()
	save := s.settings.Store.Enabled
	if args.Save != nil {
		save = *args.Save
	}
	defer func() {
		s.auditTool("qualsim_simulate", start, retErr, sanitizeToolParams(map[string]any{
			"scenario":  args.Scenario,
			"kb_path":   args.KBPath,
			"max_nodes": args.MaxNodes,
			"save":      save,
			"format":    args.Format,
		}), "local")
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "qualsim_simulate"); err != nil {
		return nil, SimulateOutput{}, err
	}

	if args.Scenario == "" {
		return nil, SimulateOutput{}, fmt.Errorf("scenario is required")
	}
	format := args.Format
	if format == "" {
		format = constants.FormatJSON
	}
	if !constants.ValidFormats[format] {
		return nil, SimulateOutput{}, fmt.Errorf("unsupported format %q (use 'json', 'yaml', 'dot', or 'text')", format)
	}

	knowledge, err := s.loadKB(args.KBPath)
	if err != nil {
		return nil, SimulateOutput{}, err
	}
	sc, err := knowledge.Scenario(args.Scenario)
	if err != nil {
		return nil, SimulateOutput{}, err
	}

	opts := s.simulationOptions()
	if args.MaxNodes > 0 {
		opts.MaxNodes = args.MaxNodes
	}
	runCtx := ctx
	if s.settings.Simulation.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, s.settings.Simulation.Timeout)
		defer cancel()
	}

	tree, err := simulation.NewRunner(knowledge, opts).Run(runCtx, sc)
	if err != nil {
		return nil, SimulateOutput{}, fmt.Errorf("simulating %s: %w", args.Scenario, err)
	}
	doc := export.FromTree(tree)

	if save {
		if err := s.runs.SaveRun(ctx, doc); err != nil {
			return nil, SimulateOutput{}, fmt.Errorf("saving run: %w", err)
		}
	}

	rendered, err := renderTree(doc, format, false)
	if err != nil {
		return nil, SimulateOutput{}, err
	}

	summary := doc.Summarize()
	message := fmt.Sprintf("Run %s: %d nodes (%d ok, %d rejected, %d pending), %d possible final worlds",
		doc.RunID, summary.Nodes, summary.OK, summary.Rejected, summary.Pending, summary.Leaves)
	if doc.Truncated {
		message += fmt.Sprintf(" (truncated: %s)", doc.StopReason)
	}

	return nil, SimulateOutput{
		RunID:      doc.RunID,
		ObjectType: doc.ObjectType,
		Scenario:   doc.Scenario,
		Summary:    summary,
		Truncated:  doc.Truncated,
		StopReason: doc.StopReason,
		Saved:      save,
		Format:     format,
		Tree:       rendered,
		Message:    message,
	}, nil
}

// renderTree returns the document itself for json and a string otherwise.
func renderTree(doc *export.Document, format string, attributes bool) (any, error) {
	switch format {
	case constants.FormatJSON:
		return doc, nil
	case constants.FormatYAML:
		var buf bytes.Buffer
		if err := export.Encode(&buf, doc, constants.FormatYAML); err != nil {
			return nil, err
		}
		return buf.String(), nil
	case constants.FormatDOT:
		return visualization.RenderDOT(doc, visualization.Options{Attributes: attributes}), nil
	case constants.FormatText:
		var buf bytes.Buffer
		if err := visualization.RenderText(&buf, doc, visualization.Options{Attributes: attributes}); err != nil {
			return nil, err
		}
		return buf.String(), nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

// handleValidate implements the qualsim_validate tool. A knowledge base
// that fails to load is reported in the output, not as a tool error.
func (s *Server) handleValidate(ctx context.Context, req *sdk.CallToolRequest, args ValidateInput) (_ *sdk.CallToolResult, _ ValidateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("qualsim_validate", start, retErr, sanitizeToolParams(map[string]any{
			"kb_path": args.KBPath,
			"run_id":  args.RunID,
		}), "local")
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "qualsim_validate"); err != nil {
		return nil, ValidateOutput{}, err
	}

	out := ValidateOutput{Valid: true}
	var parts []string

	knowledge, err := s.loadKB(args.KBPath)
	if err != nil {
		out.Valid = false
		out.Error = &LoadErrorOutput{Message: sanitize.Text(err.Error())}
		var le *kb.LoadError
		if errors.As(err, &le) {
			out.Error.File = pathutil.RedactPath(le.File)
			out.Error.Kind = string(le.Kind)
			out.Error.Name = sanitize.Identifier(le.Name)
		}
		parts = append(parts, "knowledge base failed to load")
	} else {
		for _, f := range knowledge.Files() {
			out.Files = append(out.Files, pathutil.RedactPath(f))
		}
		out.Spaces = len(knowledge.Spaces())
		for _, t := range knowledge.ObjectTypes() {
			out.ObjectTypes++
			out.Actions += len(knowledge.Actions(t.Name))
		}
		out.Scenarios = len(knowledge.ScenarioSpecs())
		parts = append(parts, fmt.Sprintf("knowledge base is valid: %d spaces, %d object types, %d actions, %d scenarios",
			out.Spaces, out.ObjectTypes, out.Actions, out.Scenarios))
	}

	if args.RunID != "" {
		doc, err := s.runs.GetRun(ctx, args.RunID)
		if err != nil {
			return nil, ValidateOutput{}, fmt.Errorf("loading run %s: %w", args.RunID, err)
		}
		for _, ve := range store.ValidateDocument(doc) {
			out.RunIssues = append(out.RunIssues, RunIssueOutput{NodeID: ve.NodeID, Field: ve.Field, Issue: ve.Issue})
		}
		if len(out.RunIssues) > 0 {
			out.Valid = false
			parts = append(parts, fmt.Sprintf("run %s has %d issue(s)", args.RunID, len(out.RunIssues)))
		} else {
			parts = append(parts, fmt.Sprintf("run %s is well formed", args.RunID))
		}
	}

	out.Message = strings.Join(parts, "; ")
	return nil, out, nil
}

// handleLevels implements the qualsim_levels tool.
func (s *Server) handleLevels(ctx context.Context, req *sdk.CallToolRequest, args LevelsInput) (_ *sdk.CallToolResult, _ LevelsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("qualsim_levels", start, retErr, sanitizeToolParams(map[string]any{
			"object_type": args.ObjectType,
			"path":        args.Path,
			"last_known":  args.LastKnown,
			"trend":       args.Trend,
			"kb_path":     args.KBPath,
		}), "local")
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "qualsim_levels"); err != nil {
		return nil, LevelsOutput{}, err
	}

	if args.ObjectType == "" || args.Path == "" {
		return nil, LevelsOutput{}, fmt.Errorf("object_type and path are required")
	}
	path, err := attribute.ParsePath(args.Path)
	if err != nil {
		return nil, LevelsOutput{}, err
	}
	trend, err := quantity.ParseDirection(args.Trend)
	if err != nil {
		return nil, LevelsOutput{}, err
	}

	knowledge, err := s.loadKB(args.KBPath)
	if err != nil {
		return nil, LevelsOutput{}, err
	}
	typ, err := knowledge.ObjectType(args.ObjectType)
	if err != nil {
		return nil, LevelsOutput{}, err
	}
	spec, err := typ.Spec(path)
	if err != nil {
		return nil, LevelsOutput{}, err
	}
	if args.LastKnown != "" && !spec.Space.Contains(args.LastKnown) {
		return nil, LevelsOutput{}, fmt.Errorf("level %q is not in space %s", args.LastKnown, spec.Space.Name)
	}

	allowed := attribute.BoundedLevels(spec.Space, args.LastKnown, trend)
	message := fmt.Sprintf("%s may be any of %s", path, strings.Join(allowed, ", "))
	if args.LastKnown != "" && trend != quantity.DirectionNone {
		message = fmt.Sprintf("%s was last %s trending %s: %s", path, args.LastKnown, trend, strings.Join(allowed, ", "))
	}

	return nil, LevelsOutput{
		Space:   spec.Space.Name,
		Levels:  append([]string(nil), spec.Space.Levels...),
		Allowed: allowed,
		Mutable: spec.Mutable,
		Message: message,
	}, nil
}

// handleRuns implements the qualsim_runs tool.
func (s *Server) handleRuns(ctx context.Context, req *sdk.CallToolRequest, args RunsInput) (_ *sdk.CallToolResult, _ RunsOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("qualsim_runs", start, retErr, sanitizeToolParams(map[string]any{
			"object_type": args.ObjectType,
			"scenario":    args.Scenario,
			"limit":       args.Limit,
		}), "local")
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "qualsim_runs"); err != nil {
		return nil, RunsOutput{}, err
	}

	limit := args.Limit
	if limit <= 0 {
		limit = defaultRunsLimit
	}
	runs, err := s.runs.ListRuns(ctx, store.ListFilter{
		ObjectType: args.ObjectType,
		Scenario:   args.Scenario,
		Limit:      limit,
	})
	if err != nil {
		return nil, RunsOutput{}, fmt.Errorf("listing runs: %w", err)
	}
	if runs == nil {
		runs = []store.RunSummary{}
	}

	return nil, RunsOutput{Runs: runs, Count: len(runs)}, nil
}

// handleGraph implements the qualsim_graph tool.
func (s *Server) handleGraph(ctx context.Context, req *sdk.CallToolRequest, args GraphInput) (_ *sdk.CallToolResult, _ GraphOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("qualsim_graph", start, retErr, sanitizeToolParams(map[string]any{
			"run_id":     args.RunID,
			"format":     args.Format,
			"attributes": args.Attributes,
		}), "local")
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "qualsim_graph"); err != nil {
		return nil, GraphOutput{}, err
	}

	if args.RunID == "" {
		return nil, GraphOutput{}, fmt.Errorf("run_id is required")
	}
	format := args.Format
	if format == "" {
		format = constants.FormatDOT
	}
	if format == constants.FormatYAML || !constants.ValidFormats[format] {
		return nil, GraphOutput{}, fmt.Errorf("unsupported format %q (use 'dot', 'text', or 'json')", format)
	}

	doc, err := s.runs.GetRun(ctx, args.RunID)
	if err != nil {
		return nil, GraphOutput{}, fmt.Errorf("loading run %s: %w", args.RunID, err)
	}
	graph, err := renderTree(doc, format, args.Attributes)
	if err != nil {
		return nil, GraphOutput{}, err
	}

	return nil, GraphOutput{
		RunID:     doc.RunID,
		Format:    format,
		Graph:     graph,
		NodeCount: len(doc.Nodes),
	}, nil
}

// handleKBResource renders the knowledge base overview as markdown. Every
// name comes from user-authored YAML and is sanitized.
func (s *Server) handleKBResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	var sb strings.Builder
	sb.WriteString("# Knowledge Base\n\n")

	knowledge, err := s.loadKB("")
	if err != nil {
		sb.WriteString("The knowledge base could not be loaded: ")
		sb.WriteString(sanitize.Text(err.Error()))
		sb.WriteString("\n")
		return markdownResult(kbResourceURI, sb.String()), nil
	}

	sb.WriteString("## Quantity spaces\n\n")
	for _, sp := range knowledge.Spaces() {
		levels := make([]string, len(sp.Levels))
		for i, l := range sp.Levels {
			levels[i] = sanitize.Identifier(l)
		}
		fmt.Fprintf(&sb, "- `%s`: %s\n", sanitize.Identifier(sp.Name), strings.Join(levels, " < "))
	}

	sb.WriteString("\n## Object types\n\n")
	for _, t := range knowledge.ObjectTypes() {
		fmt.Fprintf(&sb, "### %s\n\n", sanitize.Identifier(t.Key()))
		for _, p := range t.Paths() {
			spec, err := t.Spec(p)
			if err != nil {
				continue
			}
			mutable := ""
			if !spec.Mutable {
				mutable = " (immutable)"
			}
			fmt.Fprintf(&sb, "- `%s`: %s%s\n", sanitize.Identifier(p.String()), sanitize.Identifier(spec.Space.Name), mutable)
		}
		if actions := knowledge.Actions(t.Name); len(actions) > 0 {
			names := make([]string, len(actions))
			for i, a := range actions {
				names[i] = "`" + sanitize.Identifier(a.Name) + "`"
			}
			fmt.Fprintf(&sb, "\nActions: %s\n", strings.Join(names, ", "))
		}
		sb.WriteString("\n")
	}

	if specs := knowledge.ScenarioSpecs(); len(specs) > 0 {
		sb.WriteString("## Scenarios\n\n")
		for _, sc := range specs {
			steps := make([]string, len(sc.Steps))
			for i, st := range sc.Steps {
				steps[i] = sanitize.Identifier(st.Action)
			}
			fmt.Fprintf(&sb, "- `%s` (%s): %s\n", sanitize.Identifier(sc.Name), sanitize.Identifier(sc.ObjectType), strings.Join(steps, " -> "))
		}
	}

	return markdownResult(kbResourceURI, sb.String()), nil
}

// handleRunResource returns a stored run document.
// URI format: qualsim://runs/{id}
func (s *Server) handleRunResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	if !strings.HasPrefix(uri, runResourcePrefix) {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}
	runID := strings.TrimPrefix(uri, runResourcePrefix)
	if runID == "" {
		return nil, fmt.Errorf("run ID is required")
	}

	doc, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		if errors.Is(err, store.ErrRunNotFound) {
			return nil, sdk.ResourceNotFoundError(uri)
		}
		return nil, fmt.Errorf("loading run %s: %w", runID, err)
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encoding run %s: %w", runID, err)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "application/json",
				Text:     string(data),
			},
		},
	}, nil
}

func markdownResult(uri, text string) *sdk.ReadResourceResult {
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{
				URI:      uri,
				MIMEType: "text/markdown",
				Text:     text,
			},
		},
	}
}
