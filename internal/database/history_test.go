package database

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nao1215/boxhunt/internal/model"
)

// setupTestDB creates a temporary database for testing.
func setupTestDB(t *testing.T) *DB {
	t.Helper()

	db, err := Open(t.TempDir(), DefaultOptions())
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() }) //nolint:errcheck
	return db
}

func testSummary(runID string, start time.Time, downloaded int) *model.RunSummary {
	s := model.NewRunSummary(runID, model.RunModeCrawl, []string{"box", "纸箱"}, start)
	s.FinishedAt = start.Add(time.Minute)
	s.IndexSize = downloaded
	src := s.Source("pexels")
	src.Candidates = downloaded + 1
	for range downloaded {
		src.Add(model.StatusDownloaded)
	}
	src.AddRejection(model.RejectBelowMinDimensions)
	src.Bytes = int64(downloaded) * 1000
	s.Pairs = []model.PairSummary{{Keyword: "box", SourceID: "pexels", Domain: "default", Status: model.PairCompleted}}
	return s
}

// TestOpen tests database opening and creation.
func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates database in new directory", func(t *testing.T) {
		t.Parallel()

		dbDir := filepath.Join(t.TempDir(), "newdir", "subdir")
		db, err := Open(dbDir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		defer db.Close()

		if _, err := os.Stat(filepath.Join(dbDir, Filename)); err != nil {
			t.Errorf("database file was not created: %v", err)
		}
		if db.Path() != filepath.Join(dbDir, Filename) {
			t.Errorf("unexpected path %s", db.Path())
		}
	})

	t.Run("CreateIfNotExists=false requires an existing database", func(t *testing.T) {
		t.Parallel()

		if _, err := Open(t.TempDir(), Options{CreateIfNotExists: false}); err == nil {
			t.Error("expected error for a missing database")
		}
	})

	t.Run("reopens an existing database", func(t *testing.T) {
		t.Parallel()

		dir := t.TempDir()
		db, err := Open(dir, DefaultOptions())
		if err != nil {
			t.Fatalf("failed to open database: %v", err)
		}
		if _, err := db.SaveRun(t.Context(), testSummary("run-1", time.Now(), 1)); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		_ = db.Close() //nolint:errcheck

		db, err = Open(dir, Options{CreateIfNotExists: false})
		if err != nil {
			t.Fatalf("failed to reopen database: %v", err)
		}
		defer db.Close()
		runs, err := db.ListRuns(t.Context(), 0)
		if err != nil || len(runs) != 1 {
			t.Errorf("expected the saved run, got %d runs, %v", len(runs), err)
		}
	})
}

// TestDefaultOptions tests the default options.
func TestDefaultOptions(t *testing.T) {
	t.Parallel()

	opts := DefaultOptions()
	if !opts.CreateIfNotExists || !opts.EnableWAL {
		t.Errorf("unexpected defaults %+v", opts)
	}
}

// TestSaveAndGetRun tests the round trip of a run summary.
func TestSaveAndGetRun(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	start := time.Date(2026, 3, 4, 5, 6, 7, 0, time.UTC)
	s := testSummary("run-1", start, 2)
	s.Warnings = []string{"unsplash: no access key"}

	id, err := db.SaveRun(t.Context(), s)
	if err != nil {
		t.Fatalf("failed to save run: %v", err)
	}
	if id <= 0 {
		t.Fatalf("expected a positive id, got %d", id)
	}

	got, err := db.GetRun(t.Context(), id)
	if err != nil {
		t.Fatalf("failed to get run: %v", err)
	}
	if got.RunID != "run-1" || got.Mode != model.RunModeCrawl || !got.StartedAt.Equal(start) {
		t.Errorf("unexpected summary %+v", got)
	}
	if got.Source("pexels").Downloaded != 2 || got.Totals().RejectReasons[model.RejectBelowMinDimensions] != 1 {
		t.Errorf("unexpected source summary %+v", got.Sources["pexels"])
	}
	if len(got.Pairs) != 1 || len(got.Warnings) != 1 {
		t.Errorf("expected pairs and warnings to survive, got %+v", got)
	}

	t.Run("missing run", func(t *testing.T) {
		if _, err := db.GetRun(t.Context(), id+100); !errors.Is(err, ErrRunNotFound) {
			t.Errorf("expected ErrRunNotFound, got %v", err)
		}
	})

	t.Run("saving the same run replaces it", func(t *testing.T) {
		s.Aborted = true
		s.AbortReason = "interrupted"
		if _, err := db.SaveRun(t.Context(), s); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
		runs, err := db.ListRuns(t.Context(), 0)
		if err != nil {
			t.Fatalf("failed to list runs: %v", err)
		}
		if len(runs) != 1 || !runs[0].Aborted || runs[0].AbortReason != "interrupted" {
			t.Errorf("expected one replaced run, got %+v", runs)
		}
		totals, err := db.SourceTotals(t.Context())
		if err != nil || len(totals) != 1 || totals[0].Runs != 1 {
			t.Errorf("expected source rows to be replaced, got %+v, %v", totals, err)
		}
	})
}

// TestListRuns tests ordering, limits and metadata.
func TestListRuns(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := range 3 {
		if _, err := db.SaveRun(t.Context(), testSummary("run-"+string(rune('a'+i)), start.Add(time.Duration(i)*time.Hour), i+1)); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
	}

	runs, err := db.ListRuns(t.Context(), 0)
	if err != nil {
		t.Fatalf("failed to list runs: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(runs))
	}
	if runs[0].RunID != "run-c" || runs[2].RunID != "run-a" {
		t.Errorf("expected newest first, got %s..%s", runs[0].RunID, runs[2].RunID)
	}
	first := runs[0]
	if first.Downloaded != 3 || first.Rejected != 1 || first.IndexSize != 3 {
		t.Errorf("unexpected totals %+v", first)
	}
	if len(first.Keywords) != 2 || first.Keywords[1] != "纸箱" {
		t.Errorf("unexpected keywords %q", first.Keywords)
	}
	if !first.StartedAt.Equal(start.Add(2*time.Hour)) || first.FinishedAt.Sub(first.StartedAt) != time.Minute {
		t.Errorf("unexpected timestamps %s %s", first.StartedAt, first.FinishedAt)
	}

	limited, err := db.ListRuns(t.Context(), 2)
	if err != nil || len(limited) != 2 {
		t.Errorf("expected 2 runs, got %d, %v", len(limited), err)
	}
}

// TestSourceTotals tests aggregation over runs.
func TestSourceTotals(t *testing.T) {
	t.Parallel()

	db := setupTestDB(t)
	now := time.Now()
	for i, n := range []int{2, 3} {
		s := testSummary("run-"+string(rune('a'+i)), now, n)
		s.Source("unsplash").Candidates = 4
		if _, err := db.SaveRun(t.Context(), s); err != nil {
			t.Fatalf("failed to save run: %v", err)
		}
	}

	totals, err := db.SourceTotals(t.Context())
	if err != nil {
		t.Fatalf("failed to sum sources: %v", err)
	}
	if len(totals) != 2 || totals[0].Source != "pexels" || totals[1].Source != "unsplash" {
		t.Fatalf("unexpected totals %+v", totals)
	}
	pexels := totals[0]
	if pexels.Runs != 2 || pexels.Downloaded != 5 || pexels.Rejected != 2 || pexels.Bytes != 5000 {
		t.Errorf("unexpected pexels totals %+v", pexels)
	}
	if totals[1].Candidates != 8 {
		t.Errorf("unexpected unsplash totals %+v", totals[1])
	}
}

// TestParseTimestamp tests timestamp parsing with the supported formats.
func TestParseTimestamp(t *testing.T) {
	t.Parallel()

	tests := []struct {
		input string
		want  time.Time
	}{
		{"2026-01-02T03:04:05.123456789Z", time.Date(2026, 1, 2, 3, 4, 5, 123456789, time.UTC)},
		{"2026-01-02T03:04:05Z", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"2026-01-02 03:04:05", time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)},
		{"", time.Time{}},
		{"not a time", time.Time{}},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			t.Parallel()

			if got := parseTimestamp(tt.input); !got.Equal(tt.want) {
				t.Errorf("parseTimestamp(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
	if formatTimestamp(time.Time{}) != "" {
		t.Error("zero time should format as empty")
	}
}
