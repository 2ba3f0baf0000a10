package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"github.com/nvandessel/qualsim/internal/constants"
	"github.com/nvandessel/qualsim/internal/export"
	"github.com/nvandessel/qualsim/internal/pathutil"
)

// timeLayout is fixed width so that created_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteRunStore implements RunStore using SQLite for persistence.
// Thread-safe for concurrent access.
type SQLiteRunStore struct {
	mu     sync.RWMutex
	db     *sql.DB
	dbPath string
}

// NewSQLiteRunStore opens (creating if needed) the run database in dataDir,
// normally a .qualsim directory.
func NewSQLiteRunStore(dataDir string) (*SQLiteRunStore, error) {
	if err := pathutil.EnsureDir(dataDir); err != nil {
		return nil, err
	}
	dbPath := filepath.Join(dataDir, constants.RunsDBName)

	// Open database
	db, err := sql.Open("sqlite", dbPath+"?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite works best with single writer

	if err := InitSchema(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteRunStore{db: db, dbPath: dbPath}, nil
}

// DBPath returns the database file.
func (s *SQLiteRunStore) DBPath() string {
	return s.dbPath
}

// SaveRun stores a document together with its nodes and diff entries in one
// transaction.
func (s *SQLiteRunStore) SaveRun(ctx context.Context, doc *export.Document) error {
	if err := checkDocument(doc); err != nil {
		return err
	}
	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}
	sum := summarize(doc)

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM runs WHERE id = ?`, doc.RunID).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check run: %w", err)
	}
	if exists > 0 {
		return fmt.Errorf("%s: %w", doc.RunID, ErrRunExists)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (
			id, object_type, scenario, created_at, steps, truncated, stop_reason,
			node_count, ok_count, rejected_count, pending_count, leaf_count, document
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		doc.RunID, doc.ObjectType, nullString(doc.Scenario), doc.CreatedAt.UTC().Format(timeLayout),
		sum.Steps, boolToInt(doc.Truncated), nullString(doc.StopReason),
		sum.Nodes, sum.OK, sum.Rejected, sum.Pending, sum.Leaves, string(payload))
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	nodeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tree_nodes (
			run_id, node_id, parent_id, step, action, status, reason,
			branch_path, branch_value, branch_source
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare node insert: %w", err)
	}
	defer nodeStmt.Close()

	changeStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO node_changes (
			run_id, node_id, seq, attribute, kind, before_value, after_value, note
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare change insert: %w", err)
	}
	defer changeStmt.Close()

	for _, n := range doc.Nodes {
		var parent sql.NullInt64
		if n.ParentID != nil {
			parent = sql.NullInt64{Int64: int64(*n.ParentID), Valid: true}
		}
		var bPath, bValue, bSource sql.NullString
		if n.Branch != nil {
			bPath = nullString(n.Branch.Path)
			bValue = nullString(n.Branch.Value)
			bSource = nullString(n.Branch.Source)
		}
		if _, err := nodeStmt.ExecContext(ctx, doc.RunID, n.ID, parent, n.Step,
			nullString(n.Action), n.Status, nullString(n.Reason), bPath, bValue, bSource); err != nil {
			return fmt.Errorf("failed to insert node %d: %w", n.ID, err)
		}

		for seq, c := range n.Diff {
			before, err := json.Marshal(c.Before)
			if err != nil {
				return fmt.Errorf("failed to marshal change: %w", err)
			}
			after, err := json.Marshal(c.After)
			if err != nil {
				return fmt.Errorf("failed to marshal change: %w", err)
			}
			if _, err := changeStmt.ExecContext(ctx, doc.RunID, n.ID, seq, c.Attribute, c.Kind,
				string(before), string(after), nullString(c.Note)); err != nil {
				return fmt.Errorf("failed to insert change of node %d: %w", n.ID, err)
			}
		}
	}

	return tx.Commit()
}

// GetRun returns the stored document of a run.
func (s *SQLiteRunStore) GetRun(ctx context.Context, id string) (*export.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM runs WHERE id = ?`, id).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query run: %w", err)
	}

	var doc export.Document
	if err := json.Unmarshal([]byte(payload), &doc); err != nil {
		return nil, fmt.Errorf("failed to decode run %s: %w", id, err)
	}
	return &doc, nil
}

// ListRuns returns matching runs, newest first.
func (s *SQLiteRunStore) ListRuns(ctx context.Context, filter ListFilter) ([]RunSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var where []string
	var args []any
	if filter.ObjectType != "" {
		where = append(where, "object_type = ?")
		args = append(args, filter.ObjectType)
	}
	if filter.Scenario != "" {
		where = append(where, "scenario = ?")
		args = append(args, filter.Scenario)
	}
	query := `SELECT id, object_type, scenario, created_at, steps, truncated,
		node_count, ok_count, rejected_count, pending_count, leaf_count FROM runs`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY created_at DESC, id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		var r RunSummary
		var scenario sql.NullString
		var created string
		var truncated int
		if err := rows.Scan(&r.ID, &r.ObjectType, &scenario, &created, &r.Steps, &truncated,
			&r.Nodes, &r.OK, &r.Rejected, &r.Pending, &r.Leaves); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		r.Scenario = scenario.String
		r.Truncated = truncated != 0
		if r.CreatedAt, err = time.Parse(timeLayout, created); err != nil {
			return nil, fmt.Errorf("run %s: invalid created_at %q: %w", r.ID, created, err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// NodeRef locates one node of a stored run.
type NodeRef struct {
	NodeID int    `json:"node_id"`
	Step   int    `json:"step"`
	Action string `json:"action,omitempty"`
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// NodesByStatus returns the nodes of a run with the given status in id
// order.
func (s *SQLiteRunStore) NodesByStatus(ctx context.Context, runID, status string) ([]NodeRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, step, action, status, reason FROM tree_nodes
		WHERE run_id = ? AND status = ? ORDER BY node_id`, runID, status)
	if err != nil {
		return nil, fmt.Errorf("failed to query nodes: %w", err)
	}
	defer rows.Close()

	var out []NodeRef
	for rows.Next() {
		var n NodeRef
		var action, reason sql.NullString
		if err := rows.Scan(&n.NodeID, &n.Step, &action, &n.Status, &reason); err != nil {
			return nil, fmt.Errorf("failed to scan node: %w", err)
		}
		n.Action = action.String
		n.Reason = reason.String
		out = append(out, n)
	}
	return out, rows.Err()
}

// ChangeRef is a stored diff entry.
type ChangeRef struct {
	NodeID int             `json:"node_id"`
	Kind   string          `json:"kind"`
	Before json.RawMessage `json:"before"`
	After  json.RawMessage `json:"after"`
	Note   string          `json:"note,omitempty"`
}

// AttributeChanges returns every diff entry of a run that touches attribute,
// in node order.
func (s *SQLiteRunStore) AttributeChanges(ctx context.Context, runID, attribute string) ([]ChangeRef, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT node_id, kind, before_value, after_value, note FROM node_changes
		WHERE run_id = ? AND attribute = ? ORDER BY node_id, seq`, runID, attribute)
	if err != nil {
		return nil, fmt.Errorf("failed to query changes: %w", err)
	}
	defer rows.Close()

	var out []ChangeRef
	for rows.Next() {
		var c ChangeRef
		var before, after string
		var note sql.NullString
		if err := rows.Scan(&c.NodeID, &c.Kind, &before, &after, &note); err != nil {
			return nil, fmt.Errorf("failed to scan change: %w", err)
		}
		c.Before = json.RawMessage(before)
		c.After = json.RawMessage(after)
		c.Note = note.String
		out = append(out, c)
	}
	return out, rows.Err()
}

// DeleteRun removes a run with its nodes and changes.
func (s *SQLiteRunStore) DeleteRun(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx, `DELETE FROM runs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to delete run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrRunNotFound)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteRunStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
