package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestJournal(t *testing.T) *LibSQL {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	jnl, err := NewLibSQL("file:" + dbPath)
	if err != nil {
		t.Fatalf("Failed to create journal: %v", err)
	}
	t.Cleanup(func() { jnl.Close() })

	if err := jnl.Initialize(context.Background()); err != nil {
		t.Fatalf("Failed to initialize journal: %v", err)
	}

	return jnl
}

func TestRecordAndListRuns(t *testing.T) {
	jnl := newTestJournal(t)
	ctx := context.Background()

	first := &Run{
		ID:              uuid.NewString(),
		StartedAt:       time.Now().Add(-time.Hour),
		FactorioVersion: "1.1",
		Planned:         3,
		Succeeded:       2,
		Failed:          1,
		PacksUpdated:    1,
	}
	second := &Run{
		ID:              uuid.NewString(),
		StartedAt:       time.Now(),
		FactorioVersion: "1.1",
		Planned:         1,
		Succeeded:       1,
		PacksUpdated:    1,
	}

	results := []ModResult{
		{Pack: "Default", Mod: "bigger-cars", OldVersion: "1.2.0", NewVersion: "1.3.0", Succeeded: true},
		{Pack: "Default", Mod: "broken-mod", OldVersion: "0.1.0", NewVersion: "0.2.0", Succeeded: false},
		{Pack: "Side", Mod: "bigger-cars", OldVersion: "1.2.0", NewVersion: "1.3.0", Succeeded: true},
	}

	if err := jnl.RecordRun(ctx, first, results); err != nil {
		t.Fatalf("Failed to record first run: %v", err)
	}
	if err := jnl.RecordRun(ctx, second, nil); err != nil {
		t.Fatalf("Failed to record second run: %v", err)
	}

	runs, err := jnl.ListRuns(ctx, 10)
	if err != nil {
		t.Fatalf("Failed to list runs: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("Got %d runs, want 2", len(runs))
	}
	if runs[0].ID != second.ID {
		t.Errorf("Expected newest run first, got %s", runs[0].ID)
	}
	if runs[1].Planned != 3 || runs[1].Succeeded != 2 || runs[1].Failed != 1 {
		t.Errorf("Run counts not round-tripped: %+v", runs[1])
	}

	runs, err = jnl.ListRuns(ctx, 1)
	if err != nil {
		t.Fatalf("Failed to list runs with limit: %v", err)
	}
	if len(runs) != 1 {
		t.Errorf("Got %d runs with limit 1, want 1", len(runs))
	}
}

func TestListResults(t *testing.T) {
	jnl := newTestJournal(t)
	ctx := context.Background()

	run := &Run{
		ID:              uuid.NewString(),
		StartedAt:       time.Now(),
		FactorioVersion: "1.1",
		Planned:         2,
		Succeeded:       1,
		Failed:          1,
	}
	results := []ModResult{
		{Pack: "Default", Mod: "zz-last", OldVersion: "1.0", NewVersion: "2.0", Succeeded: true},
		{Pack: "Default", Mod: "aa-first", OldVersion: "1.0", NewVersion: "2.0", Succeeded: false},
	}

	if err := jnl.RecordRun(ctx, run, results); err != nil {
		t.Fatalf("Failed to record run: %v", err)
	}

	got, err := jnl.ListResults(ctx, run.ID)
	if err != nil {
		t.Fatalf("Failed to list results: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Got %d results, want 2", len(got))
	}
	if got[0].Mod != "aa-first" || got[1].Mod != "zz-last" {
		t.Errorf("Expected results ordered by mod name, got %s, %s", got[0].Mod, got[1].Mod)
	}
	if got[0].Succeeded || !got[1].Succeeded {
		t.Error("Succeeded flags not round-tripped")
	}

	if res, err := jnl.ListResults(ctx, "unknown-run"); err != nil || len(res) != 0 {
		t.Errorf("Expected no results for unknown run, got %d (err: %v)", len(res), err)
	}
}

func TestRecordRunDuplicateID(t *testing.T) {
	jnl := newTestJournal(t)
	ctx := context.Background()

	run := &Run{ID: uuid.NewString(), StartedAt: time.Now(), FactorioVersion: "1.1"}
	if err := jnl.RecordRun(ctx, run, nil); err != nil {
		t.Fatalf("Failed to record run: %v", err)
	}
	if err := jnl.RecordRun(ctx, run, nil); err == nil {
		t.Error("Expected error for duplicate run ID, got nil")
	}
}
