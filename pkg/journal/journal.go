package journal

import (
	"context"
	"time"
)

// Run represents one recorded update run
type Run struct {
	ID              string    // Run identifier (UUID)
	StartedAt       time.Time // When the run started
	FactorioVersion string    // major.minor version the run targeted
	Planned         int       // Number of planned updates
	Succeeded       int       // Updates whose download and commit succeeded
	Failed          int       // Updates excluded by a failed download
	PacksUpdated    int       // Packs that had at least one entry rewritten
}

// ModResult represents the outcome of one planned update within a run
type ModResult struct {
	RunID      string
	Pack       string
	Mod        string
	OldVersion string
	NewVersion string
	Succeeded  bool
}

// Journal defines the interface for the run history journal. The journal is
// observability only; pipeline state never depends on it.
type Journal interface {
	// Initialize initializes the journal (e.g., creates tables)
	Initialize(ctx context.Context) error

	// RecordRun records a run and its per-mod outcomes
	RecordRun(ctx context.Context, run *Run, results []ModResult) error

	// ListRuns lists the most recent runs, newest first
	ListRuns(ctx context.Context, limit int) ([]*Run, error)

	// ListResults lists the per-mod outcomes of a run
	ListResults(ctx context.Context, runID string) ([]*ModResult, error)

	// Close closes the journal
	Close() error
}
