package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/david/product-scout/internal/models"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const runCols = `id, trigger, stage, status, discovered, persisted, analyzed, analysis_failed,
	indexed, deindexed, sync_failed, COALESCE(error, ''), started_at, finished_at`

func scanRun(scan func(dest ...any) error) (models.PipelineRun, error) {
	var r models.PipelineRun
	c := &r.Counts
	err := scan(&r.ID, &r.Trigger, &r.Stage, &r.Status,
		&c.Discovered, &c.Persisted, &c.Analyzed, &c.AnalysisFailed,
		&c.Indexed, &c.Deindexed, &c.SyncFailed, &r.Error, &r.StartedAt, &r.FinishedAt)
	return r, err
}

// CreateRun records a run in the running state.
func (s *Store) CreateRun(ctx context.Context, trigger string, stage models.Stage) (models.PipelineRun, error) {
	run := models.PipelineRun{
		ID:        uuid.New(),
		Trigger:   trigger,
		Stage:     stage,
		Status:    models.RunRunning,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO pipeline_runs (id, trigger, stage, status, started_at) VALUES ($1, $2, $3, $4, $5)`,
		run.ID, run.Trigger, run.Stage, run.Status, run.StartedAt)
	if err != nil {
		return models.PipelineRun{}, fmt.Errorf("insert pipeline run: %w", err)
	}
	return run, nil
}

// FinishRun stores the final status, counts and error of a run.
func (s *Store) FinishRun(ctx context.Context, run models.PipelineRun) error {
	finished := time.Now().UTC()
	if run.FinishedAt != nil {
		finished = *run.FinishedAt
	}
	var errText *string
	if run.Error != "" {
		errText = &run.Error
	}
	c := run.Counts
	tag, err := s.pool.Exec(ctx, `
		UPDATE pipeline_runs
		SET status = $2, discovered = $3, persisted = $4, analyzed = $5, analysis_failed = $6,
			indexed = $7, deindexed = $8, sync_failed = $9, error = $10, finished_at = $11
		WHERE id = $1`,
		run.ID, run.Status, c.Discovered, c.Persisted, c.Analyzed, c.AnalysisFailed,
		c.Indexed, c.Deindexed, c.SyncFailed, errText, finished)
	if err != nil {
		return fmt.Errorf("update pipeline run %s: %w", run.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrRunNotFound
	}
	return nil
}

// ListRuns returns the most recent runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]models.PipelineRun, error) {
	if limit <= 0 {
		limit = defaultPageLimit
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+runCols+` FROM pipeline_runs ORDER BY started_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pipeline runs: %w", err)
	}
	defer rows.Close()

	runs := []models.PipelineRun{}
	for rows.Next() {
		r, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

func (s *Store) GetRun(ctx context.Context, id uuid.UUID) (models.PipelineRun, error) {
	r, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+runCols+` FROM pipeline_runs WHERE id = $1`, id).Scan)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.PipelineRun{}, ErrRunNotFound
	}
	return r, err
}
