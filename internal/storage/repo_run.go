package storage

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// RunRecord is one workflow invocation's audit row. It travels over
// JetStream as JSON before landing in Postgres, hence the tags.
type RunRecord struct {
	ID            uuid.UUID `json:"id"`
	Timestamp     time.Time `json:"ts"`
	Query         string    `json:"query"`
	Status        string    `json:"status"`
	Success       bool      `json:"success"`
	WorkflowRunID string    `json:"workflow_run_id"`
	TaskID        string    `json:"task_id"`
	ErrorMessage  string    `json:"error_message"`
	DurationMs    int       `json:"duration_ms"`
	Records       int       `json:"records"`
}

func InsertRunJob(r *RunRecord) WriteJob {
	return WriteJobFunc(func(ctx context.Context, pool *pgxpool.Pool) error {
		_, err := pool.Exec(ctx, `
			INSERT INTO workflow_runs (
				id, ts, query, status, success, workflow_run_id, task_id,
				error_message, duration_ms, records
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
			ON CONFLICT (id) DO NOTHING`,
			r.ID, r.Timestamp, nilIfEmpty(r.Query), r.Status, r.Success,
			nilIfEmpty(r.WorkflowRunID), nilIfEmpty(r.TaskID),
			nilIfEmpty(r.ErrorMessage), r.DurationMs, r.Records,
		)
		return err
	})
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
