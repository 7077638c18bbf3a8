package journal

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/tursodatabase/libsql-client-go/libsql"
	_ "modernc.org/sqlite"
)

// LibSQL implements the Journal interface using libsql
type LibSQL struct {
	db *sql.DB
}

// NewLibSQL creates a new LibSQL journal
func NewLibSQL(url string) (*LibSQL, error) {
	db, err := sql.Open("libsql", url)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &LibSQL{db: db}, nil
}

// Initialize creates the database schema
func (j *LibSQL) Initialize(ctx context.Context) error {
	_, err := j.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			started_at DATETIME NOT NULL,
			factorio_version TEXT NOT NULL,
			planned INTEGER NOT NULL,
			succeeded INTEGER NOT NULL,
			failed INTEGER NOT NULL,
			packs_updated INTEGER NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create runs table: %w", err)
	}

	_, err = j.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS run_mods (
			run_id TEXT NOT NULL REFERENCES runs(id),
			pack TEXT NOT NULL,
			mod TEXT NOT NULL,
			old_version TEXT NOT NULL,
			new_version TEXT NOT NULL,
			succeeded BOOLEAN NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create run_mods table: %w", err)
	}

	return nil
}

// RecordRun records a run and its per-mod outcomes in one transaction
func (j *LibSQL) RecordRun(ctx context.Context, run *Run, results []ModResult) error {
	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (id, started_at, factorio_version, planned, succeeded, failed, packs_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID, run.StartedAt, run.FactorioVersion,
		run.Planned, run.Succeeded, run.Failed, run.PacksUpdated,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}

	for _, res := range results {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO run_mods (run_id, pack, mod, old_version, new_version, succeeded)
			VALUES (?, ?, ?, ?, ?, ?)
		`,
			run.ID, res.Pack, res.Mod, res.OldVersion, res.NewVersion, res.Succeeded,
		)
		if err != nil {
			return fmt.Errorf("failed to insert run result: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit run record: %w", err)
	}

	return nil
}

// ListRuns lists the most recent runs, newest first
func (j *LibSQL) ListRuns(ctx context.Context, limit int) ([]*Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, started_at, factorio_version, planned, succeeded, failed, packs_updated
		FROM runs
		ORDER BY started_at DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []*Run
	for rows.Next() {
		run := &Run{}
		err := rows.Scan(
			&run.ID, &run.StartedAt, &run.FactorioVersion,
			&run.Planned, &run.Succeeded, &run.Failed, &run.PacksUpdated,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate runs: %w", err)
	}

	return runs, nil
}

// ListResults lists the per-mod outcomes of a run
func (j *LibSQL) ListResults(ctx context.Context, runID string) ([]*ModResult, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT run_id, pack, mod, old_version, new_version, succeeded
		FROM run_mods
		WHERE run_id = ?
		ORDER BY pack, mod
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to list run results: %w", err)
	}
	defer rows.Close()

	var results []*ModResult
	for rows.Next() {
		res := &ModResult{}
		err := rows.Scan(
			&res.RunID, &res.Pack, &res.Mod,
			&res.OldVersion, &res.NewVersion, &res.Succeeded,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run result: %w", err)
		}
		results = append(results, res)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate run results: %w", err)
	}

	return results, nil
}

// Close closes the database connection
func (j *LibSQL) Close() error {
	return j.db.Close()
}
