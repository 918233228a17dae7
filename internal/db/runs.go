package db

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/yabodle/sitescan/internal/models"
)

// InsertRun creates the scan_runs row for a run that just started.
func (s *Store) InsertRun(ctx context.Context, run *models.ScanRun) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO scan_runs (id, status, started_at) VALUES ($1, $2, $3)",
		run.ID, run.Status, run.StartedAt)
	if err != nil {
		return fmt.Errorf("insert scan run failed: %w", err)
	}
	return nil
}

// FinalizeRun records the terminal status and per-source counters for a run.
func (s *Store) FinalizeRun(ctx context.Context, run *models.ScanRun) error {
	_, err := s.pool.Exec(ctx,
		"UPDATE scan_runs SET status = $1, completed_at = $2 WHERE id = $3",
		run.Status, run.CompletedAt, run.ID)
	if err != nil {
		return fmt.Errorf("finalize scan run failed: %w", err)
	}

	for _, src := range run.Sources {
		_, err := s.pool.Exec(ctx, `
			INSERT INTO scan_run_sources (run_id, source_id, fetched, new_count, updated_count, unchanged_count, skipped_count, error)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (run_id, source_id) DO UPDATE SET
				fetched = EXCLUDED.fetched,
				new_count = EXCLUDED.new_count,
				updated_count = EXCLUDED.updated_count,
				unchanged_count = EXCLUDED.unchanged_count,
				skipped_count = EXCLUDED.skipped_count,
				error = EXCLUDED.error
		`, run.ID, src.SourceID, src.Fetched, src.New, src.Updated, src.Unchanged, src.Skipped, nilIfEmpty(src.Error))
		if err != nil {
			return fmt.Errorf("record source result for %s failed: %w", src.SourceID, err)
		}
	}

	return nil
}

// ListRuns returns scan history, newest first.
func (s *Store) ListRuns(ctx context.Context, limit, offset int) ([]models.ScanRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	rows, err := s.pool.Query(ctx, `
		SELECT id, status, started_at, completed_at
		FROM scan_runs
		ORDER BY started_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list scan runs failed: %w", err)
	}
	defer rows.Close()

	var runs []models.ScanRun
	ids := make(map[uuid.UUID]int)
	for rows.Next() {
		var run models.ScanRun
		if err := rows.Scan(&run.ID, &run.Status, &run.StartedAt, &run.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan run row failed: %w", err)
		}
		ids[run.ID] = len(runs)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scan runs iteration failed: %w", err)
	}
	rows.Close()

	if len(runs) == 0 {
		return []models.ScanRun{}, nil
	}

	idList := make([]uuid.UUID, 0, len(runs))
	for _, run := range runs {
		idList = append(idList, run.ID)
	}

	srcRows, err := s.pool.Query(ctx, `
		SELECT run_id, source_id, fetched, new_count, updated_count, unchanged_count, skipped_count, COALESCE(error, '')
		FROM scan_run_sources
		WHERE run_id = ANY($1)
		ORDER BY source_id
	`, idList)
	if err != nil {
		return nil, fmt.Errorf("list run sources failed: %w", err)
	}
	defer srcRows.Close()

	for srcRows.Next() {
		var runID uuid.UUID
		var result models.SourceResult
		if err := srcRows.Scan(&runID, &result.SourceID, &result.Fetched, &result.New,
			&result.Updated, &result.Unchanged, &result.Skipped, &result.Error); err != nil {
			return nil, fmt.Errorf("scan run source row failed: %w", err)
		}
		if idx, ok := ids[runID]; ok {
			runs[idx].Sources = append(runs[idx].Sources, result)
		}
	}
	if err := srcRows.Err(); err != nil {
		return nil, fmt.Errorf("run sources iteration failed: %w", err)
	}

	return runs, nil
}
