package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"exp-orchestrator/core/experiment"
)

// SubmissionRepository handles database operations for submitted batches
type SubmissionRepository struct {
	db *DB
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db *DB) *SubmissionRepository {
	return &SubmissionRepository{db: db}
}

// RecordSubmission writes one batch and its tasks in a single transaction
func (r *SubmissionRepository) RecordSubmission(ctx context.Context, job string, tasks []experiment.JobParams, handleIDs []string) error {
	if len(tasks) != len(handleIDs) {
		return fmt.Errorf("got %d tasks but %d handles", len(tasks), len(handleIDs))
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	submissionID := uuid.New()
	_, err = tx.ExecContext(ctx,
		`INSERT INTO submissions (id, job, task_count, submitted_at) VALUES ($1, $2, $3, $4)`,
		submissionID, job, len(tasks), time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert submission: %w", err)
	}

	for i, task := range tasks {
		paramsJSON, err := json.Marshal(task)
		if err != nil {
			return fmt.Errorf("failed to encode task: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO submission_tasks (id, submission_id, experiment_prefix, handle_id, params_json)
			 VALUES ($1, $2, $3, $4, $5)`,
			uuid.New(), submissionID, task.Prefix(), handleIDs[i], string(paramsJSON),
		)
		if err != nil {
			return fmt.Errorf("failed to insert task: %w", err)
		}
	}

	return tx.Commit()
}

// SubmissionRecord is one batch row as read back from the ledger
type SubmissionRecord struct {
	ID          string
	Job         string
	TaskCount   int
	SubmittedAt time.Time
}

// ListSubmissions returns the most recent batches, newest first
func (r *SubmissionRepository) ListSubmissions(ctx context.Context, limit int) ([]SubmissionRecord, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, job, task_count, submitted_at FROM submissions ORDER BY submitted_at DESC LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var out []SubmissionRecord
	for rows.Next() {
		var rec SubmissionRecord
		if err := rows.Scan(&rec.ID, &rec.Job, &rec.TaskCount, &rec.SubmittedAt); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
