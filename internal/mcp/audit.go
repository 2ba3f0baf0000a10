package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/nvandessel/qualsim/internal/constants"
)

// AuditEntry records one MCP tool invocation. Params carry sanitized
// metadata only.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	Scope      string            `json:"scope"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // success | error
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"`
}

// AuditLogger appends entries to .qualsim/audit.jsonl in the project or in
// the home directory, chosen by the entry's scope. Methods are safe for
// concurrent use and are no-ops on a nil receiver.
type AuditLogger struct {
	mu    sync.Mutex
	files map[constants.Scope]*os.File
}

// NewAuditLogger opens the project log under localDir and the user log
// under globalDir. A log that cannot be opened is skipped with a warning on
// stderr; nil is returned when neither can.
func NewAuditLogger(localDir, globalDir string) *AuditLogger {
	files := make(map[constants.Scope]*os.File, 2)
	for scope, dir := range map[constants.Scope]string{
		constants.ScopeLocal:  localDir,
		constants.ScopeGlobal: globalDir,
	} {
		if dir == "" {
			continue
		}
		f, err := openAuditFile(filepath.Join(dir, constants.DataDirName))
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: %s audit log disabled: %v\n", scope, err)
			continue
		}
		files[scope] = f
	}
	if len(files) == 0 {
		return nil
	}
	return &AuditLogger{files: files}
}

func openAuditFile(dataDir string) (*os.File, error) {
	if err := os.MkdirAll(dataDir, 0700); err != nil {
		return nil, err
	}
	return os.OpenFile(filepath.Join(dataDir, constants.AuditFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}

// Log appends entry to the global log when its scope is "global", to the
// project log otherwise.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}
	line, err := json.Marshal(entry)
	if err != nil {
		return
	}
	scope := constants.ScopeLocal
	if constants.Scope(entry.Scope) == constants.ScopeGlobal {
		scope = constants.ScopeGlobal
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if f := a.files[scope]; f != nil {
		_, _ = f.Write(append(line, '\n'))
	}
}

// Close closes every open log. Calling it again is a no-op.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	var errs []error
	for scope, f := range a.files {
		errs = append(errs, f.Close())
		delete(a.files, scope)
	}
	return errors.Join(errs...)
}

type paramPolicy int

const (
	// logValue records the parameter value as given.
	logValue paramPolicy = iota + 1
	// logPresence records only that the parameter was set. Paths and ids
	// may reveal project layout.
	logPresence
)

var toolParamPolicy = map[string]paramPolicy{
	"scenario":    logValue,
	"object_type": logValue,
	"format":      logValue,
	"max_nodes":   logValue,
	"save":        logValue,
	"limit":       logValue,
	"attributes":  logValue,
	"trend":       logValue,
	"kb_path":     logPresence,
	"run_id":      logPresence,
	"path":        logPresence,
	"last_known":  logPresence,
}

// sanitizeToolParams reduces tool arguments to audit metadata. Unknown
// parameters are dropped; "_param_count" counts every non-empty argument.
func sanitizeToolParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}
	out := make(map[string]string)
	count := 0
	for key, val := range params {
		if isEmptyParam(val) {
			continue
		}
		count++
		switch toolParamPolicy[key] {
		case logValue:
			out[key] = fmt.Sprint(val)
		case logPresence:
			out[key] = "(set)"
		}
	}
	out["_param_count"] = strconv.Itoa(count)
	return out
}

func isEmptyParam(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case int:
		return x == 0
	case bool:
		return !x
	case *bool:
		return x == nil
	}
	return false
}

// auditTool records a finished tool call. An empty scope means local.
func (s *Server) auditTool(toolName string, start time.Time, err error, params map[string]string, scope string) {
	entry := AuditEntry{
		Timestamp:  start,
		Tool:       toolName,
		Scope:      scope,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     "success",
		Params:     params,
	}
	if entry.Scope == "" {
		entry.Scope = string(constants.ScopeLocal)
	}
	if err != nil {
		entry.Status = "error"
		entry.Error = err.Error()
	}
	s.auditLogger.Log(entry)
}
