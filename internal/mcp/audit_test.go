package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/nvandessel/qualsim/internal/constants"
)

func auditPath(dir string) string {
	return filepath.Join(dir, constants.DataDirName, constants.AuditFileName)
}

func readAuditEntries(t *testing.T, path string) []AuditEntry {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("open audit log: %v", err)
	}
	defer f.Close()

	var entries []AuditEntry
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var e AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			t.Fatalf("parsing audit entry %q: %v", sc.Text(), err)
		}
		entries = append(entries, e)
	}
	return entries
}

func TestAuditLogger_NilSafety(t *testing.T) {
	var logger *AuditLogger
	logger.Log(AuditEntry{Tool: "test"})
	if err := logger.Close(); err != nil {
		t.Errorf("Close() on nil logger returned error: %v", err)
	}
}

func TestAuditLogger_RoutesByScope(t *testing.T) {
	localDir := t.TempDir()
	globalDir := t.TempDir()
	logger := NewAuditLogger(localDir, globalDir)
	if logger == nil {
		t.Fatal("expected non-nil logger")
	}
	defer logger.Close()

	now := time.Now().UTC().Truncate(time.Millisecond)
	logger.Log(AuditEntry{Timestamp: now, Tool: "qualsim_simulate", Scope: "local", DurationMs: 42, Status: "success"})
	logger.Log(AuditEntry{Timestamp: now, Tool: "qualsim_runs", Status: "success"})
	logger.Log(AuditEntry{Timestamp: now, Tool: "qualsim_levels", Scope: "global", Status: "error", Error: "boom"})

	local := readAuditEntries(t, auditPath(localDir))
	if len(local) != 2 || local[0].Tool != "qualsim_simulate" || local[1].Tool != "qualsim_runs" {
		t.Fatalf("local entries = %+v", local)
	}
	if local[0].DurationMs != 42 || !local[0].Timestamp.Equal(now) {
		t.Errorf("local[0] = %+v", local[0])
	}

	global := readAuditEntries(t, auditPath(globalDir))
	if len(global) != 1 || global[0].Tool != "qualsim_levels" || global[0].Error != "boom" {
		t.Errorf("global entries = %+v", global)
	}
}

func TestAuditLogger_FilePermissions(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("file modes are not enforced on windows")
	}
	localDir := t.TempDir()
	logger := NewAuditLogger(localDir, "")
	defer logger.Close()
	logger.Log(AuditEntry{Tool: "qualsim_graph"})

	info, err := os.Stat(auditPath(localDir))
	if err != nil {
		t.Fatalf("stat audit log: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("audit log mode = %o, want 600", perm)
	}
}

func TestAuditLogger_ConcurrentWrites(t *testing.T) {
	localDir := t.TempDir()
	logger := NewAuditLogger(localDir, "")
	defer logger.Close()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			logger.Log(AuditEntry{Tool: "qualsim_runs", Status: "success"})
		}()
	}
	wg.Wait()

	if entries := readAuditEntries(t, auditPath(localDir)); len(entries) != 20 {
		t.Errorf("entries = %d, want 20", len(entries))
	}
}

func TestAuditLogger_BadPaths(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	if err := os.WriteFile(blocker, []byte("x"), 0600); err != nil {
		t.Fatalf("write blocker: %v", err)
	}

	good := t.TempDir()
	logger := NewAuditLogger(blocker, good)
	if logger == nil {
		t.Fatal("one usable directory should still give a logger")
	}
	logger.Log(AuditEntry{Tool: "qualsim_runs", Scope: "local"})
	logger.Log(AuditEntry{Tool: "qualsim_runs", Scope: "global"})
	logger.Close()

	if entries := readAuditEntries(t, auditPath(good)); len(entries) != 1 {
		t.Errorf("global entries = %d, want 1", len(entries))
	}

	if logger := NewAuditLogger(blocker, ""); logger != nil {
		logger.Close()
		t.Error("expected nil logger when no path is usable")
	}
}

func TestSanitizeToolParams(t *testing.T) {
	t.Run("safe values are included", func(t *testing.T) {
		result := sanitizeToolParams(map[string]any{
			"scenario":  "on_off",
			"format":    "dot",
			"max_nodes": 50,
			"save":      true,
		})
		want := map[string]string{"scenario": "on_off", "format": "dot", "max_nodes": "50", "save": "true", "_param_count": "4"}
		for k, v := range want {
			if result[k] != v {
				t.Errorf("%s = %q, want %q", k, result[k], v)
			}
		}
	})

	t.Run("paths and ids are redacted", func(t *testing.T) {
		result := sanitizeToolParams(map[string]any{
			"kb_path":    "/home/user/secret/kb.yaml",
			"run_id":     "abc",
			"path":       "battery.level",
			"last_known": "low",
		})
		for _, k := range []string{"kb_path", "run_id", "path", "last_known"} {
			if result[k] != "(set)" {
				t.Errorf("%s = %q, want (set)", k, result[k])
			}
		}
	})

	t.Run("unknown params are excluded but counted", func(t *testing.T) {
		result := sanitizeToolParams(map[string]any{"malicious_param": "should not appear"})
		if _, ok := result["malicious_param"]; ok {
			t.Error("unknown param should not be included")
		}
		if result["_param_count"] != "1" {
			t.Errorf("_param_count = %q, want 1", result["_param_count"])
		}
	})

	t.Run("empty values are skipped", func(t *testing.T) {
		result := sanitizeToolParams(map[string]any{"scenario": "", "max_nodes": 0, "save": false, "kb_path": ""})
		if len(result) != 1 || result["_param_count"] != "0" {
			t.Errorf("result = %v, want only _param_count=0", result)
		}
	})

	t.Run("nil params returns nil", func(t *testing.T) {
		if result := sanitizeToolParams(nil); result != nil {
			t.Errorf("expected nil, got %v", result)
		}
	})
}

func TestAuditTool_RecordsHandlerCalls(t *testing.T) {
	server, tmpDir := setupTestServer(t)
	ctx := context.Background()

	if _, _, err := server.handleSimulate(ctx, &sdk.CallToolRequest{}, SimulateInput{Scenario: "on_off", KBPath: "/outside/kb.yaml"}); err == nil {
		t.Fatal("expected rejected kb path")
	}
	if _, _, err := server.handleRuns(ctx, &sdk.CallToolRequest{}, RunsInput{Limit: 5}); err != nil {
		t.Fatalf("handleRuns failed: %v", err)
	}

	entries := readAuditEntries(t, auditPath(tmpDir))
	if len(entries) != 2 {
		t.Fatalf("entries = %+v, want 2", entries)
	}
	sim := entries[0]
	if sim.Tool != "qualsim_simulate" || sim.Status != "error" || sim.Error == "" {
		t.Errorf("simulate entry = %+v", sim)
	}
	if sim.Params["kb_path"] != "(set)" || sim.Params["scenario"] != "on_off" {
		t.Errorf("simulate params = %v", sim.Params)
	}
	if runs := entries[1]; runs.Tool != "qualsim_runs" || runs.Status != "success" || runs.Params["limit"] != "5" {
		t.Errorf("runs entry = %+v", runs)
	}
}

func TestAuditTool_GlobalScope(t *testing.T) {
	server, tmpDir := setupTestServer(t)

	server.auditTool("qualsim_runs", time.Now(), errors.New("nope"), nil, "global")

	homeDir := os.Getenv("HOME")
	entries := readAuditEntries(t, auditPath(homeDir))
	if len(entries) != 1 || entries[0].Scope != "global" || entries[0].Status != "error" {
		t.Errorf("global entries = %+v", entries)
	}

	if data, err := os.ReadFile(auditPath(tmpDir)); err == nil && len(data) > 0 {
		t.Error("expected no data in local audit log for a global-scoped call")
	}
}
