package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
)

// migration moves the run database from version-1 to version.
type migration struct {
	version int
	stmts   string
}

// migrations are applied in order. Append new ones; never edit applied ones.
var migrations = []migration{
	{version: 1, stmts: `
-- Finished runs. The full document is kept verbatim; the other columns
-- serve listings without decoding it.
CREATE TABLE runs (
    id TEXT PRIMARY KEY,
    object_type TEXT NOT NULL,
    scenario TEXT,
    created_at TEXT NOT NULL,
    steps INTEGER NOT NULL,
    truncated INTEGER NOT NULL DEFAULT 0,
    stop_reason TEXT,
    node_count INTEGER NOT NULL,
    ok_count INTEGER NOT NULL,
    rejected_count INTEGER NOT NULL,
    pending_count INTEGER NOT NULL,
    leaf_count INTEGER NOT NULL,
    document TEXT NOT NULL
);
CREATE INDEX idx_runs_object_type ON runs(object_type);
CREATE INDEX idx_runs_created_at ON runs(created_at);

CREATE TABLE tree_nodes (
    run_id TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
    node_id INTEGER NOT NULL,
    parent_id INTEGER,
    step INTEGER NOT NULL,
    action TEXT,
    status TEXT NOT NULL,        -- ok | rejected | pending
    reason TEXT,
    branch_path TEXT,
    branch_value TEXT,
    branch_source TEXT,          -- precondition | postcondition | unknown-resolution
    PRIMARY KEY (run_id, node_id)
);
CREATE INDEX idx_tree_nodes_status ON tree_nodes(run_id, status);

CREATE TABLE node_changes (
    run_id TEXT NOT NULL,
    node_id INTEGER NOT NULL,
    seq INTEGER NOT NULL,
    attribute TEXT NOT NULL,
    kind TEXT NOT NULL,          -- value | trend | narrowing | constraint
    before_value TEXT,
    after_value TEXT,
    note TEXT,
    PRIMARY KEY (run_id, node_id, seq),
    FOREIGN KEY (run_id, node_id) REFERENCES tree_nodes(run_id, node_id) ON DELETE CASCADE
);
CREATE INDEX idx_node_changes_attribute ON node_changes(run_id, attribute);
`},
	{version: 2, stmts: `
CREATE INDEX idx_runs_scenario ON runs(object_type, scenario, created_at);
`},
}

// SchemaVersion is the version a fully migrated run database reports.
var SchemaVersion = migrations[len(migrations)-1].version

// InitSchema brings db up to SchemaVersion. An existing database is
// integrity-checked first; one written by a newer qualsim is refused.
func InitSchema(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_version (
    version INTEGER PRIMARY KEY,
    applied_at TEXT NOT NULL
)`); err != nil {
		return fmt.Errorf("failed to create schema_version table: %w", err)
	}

	current, err := getSchemaVersion(ctx, db)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if current > SchemaVersion {
		return fmt.Errorf("database schema version %d is newer than supported version %d", current, SchemaVersion)
	}
	if current > 0 {
		if err := ValidateIntegrity(ctx, db); err != nil {
			return fmt.Errorf("database integrity check failed: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= current {
			continue
		}
		if err := applyMigration(ctx, db, m); err != nil {
			return fmt.Errorf("failed to migrate schema to version %d: %w", m.version, err)
		}
	}
	return nil
}

// getSchemaVersion returns the highest applied version, 0 for a new database.
func getSchemaVersion(ctx context.Context, db *sql.DB) (int, error) {
	var version sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(version) FROM schema_version`).Scan(&version); err != nil {
		return 0, err
	}
	return int(version.Int64), nil
}

func applyMigration(ctx context.Context, db *sql.DB, m migration) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, m.stmts); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_version (version, applied_at) VALUES (?, datetime('now'))`, m.version); err != nil {
		return err
	}
	return tx.Commit()
}

// ValidateIntegrity runs PRAGMA integrity_check and PRAGMA foreign_key_check
// and reports every problem they find.
func ValidateIntegrity(ctx context.Context, db *sql.DB) error {
	var problems []string

	rows, err := db.QueryContext(ctx, `PRAGMA integrity_check`)
	if err != nil {
		return fmt.Errorf("failed to run integrity_check: %w", err)
	}
	for rows.Next() {
		var result string
		if err := rows.Scan(&result); err != nil {
			rows.Close()
			return fmt.Errorf("failed to scan integrity_check result: %w", err)
		}
		if result != "ok" {
			problems = append(problems, result)
		}
	}
	rows.Close()

	rows, err = db.QueryContext(ctx, `PRAGMA foreign_key_check`)
	if err != nil {
		return fmt.Errorf("failed to run foreign_key_check: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var table, parent string
		var rowid, fkid sql.NullInt64
		if err := rows.Scan(&table, &rowid, &parent, &fkid); err != nil {
			return fmt.Errorf("failed to scan foreign_key_check result: %w", err)
		}
		problems = append(problems, fmt.Sprintf("%s row %d references missing %s", table, rowid.Int64, parent))
	}
	if err := rows.Err(); err != nil {
		return err
	}

	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}
