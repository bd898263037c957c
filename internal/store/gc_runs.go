package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"cosensync/internal/gc"
	"cosensync/internal/models"
)

const (
	DefaultRunsLimit = 20
	MaxRunsLimit     = 500

	// timeLayout is fixed width so stored timestamps sort lexically.
	timeLayout = "2006-01-02T15:04:05.000000000Z07:00"
)

var _ gc.Recorder = (*Store)(nil)

// RecordRun appends one collector result to the journal.
func (s *Store) RecordRun(ctx context.Context, result gc.Result) error {
	failed := make([]string, 0, len(result.Failed))
	for _, f := range result.Failed {
		failed = append(failed, f.ID)
	}
	deleted := result.Deleted
	if deleted == nil {
		deleted = []string{}
	}
	deletedJSON, err := json.Marshal(deleted)
	if err != nil {
		return err
	}
	failedJSON, err := json.Marshal(failed)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO gc_runs (started_at, finished_at, dry_run, referenced_count, stored_count, orphaned_count, deleted_files, failed_files)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		formatTime(result.StartedAt),
		formatTime(result.FinishedAt),
		boolToInt(result.DryRun),
		result.ReferencedCount,
		result.StoredCount,
		len(result.Orphans),
		string(deletedJSON),
		string(failedJSON),
	)
	if err != nil {
		return fmt.Errorf("insert gc run: %w", err)
	}
	return nil
}

// ListRuns returns the most recent runs, newest first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.GCRun, error) {
	if limit <= 0 {
		limit = DefaultRunsLimit
	}
	if limit > MaxRunsLimit {
		limit = MaxRunsLimit
	}

	rows, err := s.db.QueryContext(ctx, `
SELECT id, started_at, finished_at, dry_run, referenced_count, stored_count, orphaned_count, deleted_files, failed_files
FROM gc_runs
ORDER BY started_at DESC, id DESC
LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []models.GCRun{}
	for rows.Next() {
		var (
			run                     models.GCRun
			startedAt, finishedAt   string
			dryRun                  int
			deletedJSON, failedJSON string
		)
		if err := rows.Scan(&run.ID, &startedAt, &finishedAt, &dryRun, &run.ReferencedCount, &run.StoredCount, &run.OrphanedCount, &deletedJSON, &failedJSON); err != nil {
			return nil, err
		}
		if run.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if run.FinishedAt, err = parseTime(finishedAt); err != nil {
			return nil, err
		}
		run.DryRun = dryRun != 0
		if err := json.Unmarshal([]byte(deletedJSON), &run.DeletedFiles); err != nil {
			return nil, fmt.Errorf("decode deleted files for run %d: %w", run.ID, err)
		}
		if err := json.Unmarshal([]byte(failedJSON), &run.FailedFiles); err != nil {
			return nil, fmt.Errorf("decode failed files for run %d: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(value string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, value)
}

func boolToInt(v bool) int {
	if v {
		return 1
	}
	return 0
}
