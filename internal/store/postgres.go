package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pipewatch/pipewatch/internal/models"
)

// PGStore keeps execution records in a single Postgres table with the nested
// commit/approval/failures columns stored as JSON.
//
// Schema:
//
//	CREATE TABLE pipeline_executions (
//	    execution_id  TEXT PRIMARY KEY,
//	    pipeline_name TEXT NOT NULL DEFAULT '',
//	    commit_data   JSONB NOT NULL DEFAULT '{}',
//	    approval_data JSONB NOT NULL DEFAULT '{}',
//	    failures      JSONB NOT NULL DEFAULT '[]',
//	    is_notified   BOOLEAN NOT NULL DEFAULT FALSE
//	);
type PGStore struct {
	db *sql.DB
}

func NewPGStore(db *sql.DB) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Get(ctx context.Context, executionID string) (models.ExecutionRecord, error) {
	const query = `
		SELECT pipeline_name, commit_data, approval_data, failures, is_notified
		FROM pipeline_executions
		WHERE execution_id = $1
	`
	rec := models.ExecutionRecord{ExecutionID: executionID}
	var commitData, approvalData, failures []byte
	err := s.db.QueryRowContext(ctx, query, executionID).Scan(
		&rec.PipelineName, &commitData, &approvalData, &failures, &rec.IsNotified)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return models.ExecutionRecord{}, ErrNotFound
		}
		return models.ExecutionRecord{}, fmt.Errorf("get execution %s: %w", executionID, err)
	}
	if err := json.Unmarshal(commitData, &rec.Commit); err != nil {
		return models.ExecutionRecord{}, fmt.Errorf("decode commit for %s: %w", executionID, err)
	}
	if err := json.Unmarshal(approvalData, &rec.Approval); err != nil {
		return models.ExecutionRecord{}, fmt.Errorf("decode approval for %s: %w", executionID, err)
	}
	if err := json.Unmarshal(failures, &rec.Failures); err != nil {
		return models.ExecutionRecord{}, fmt.Errorf("decode failures for %s: %w", executionID, err)
	}
	return rec, nil
}

func (s *PGStore) Put(ctx context.Context, rec models.ExecutionRecord) error {
	commitData, err := json.Marshal(rec.Commit)
	if err != nil {
		return fmt.Errorf("encode commit for %s: %w", rec.ExecutionID, err)
	}
	approvalData, err := json.Marshal(rec.Approval)
	if err != nil {
		return fmt.Errorf("encode approval for %s: %w", rec.ExecutionID, err)
	}
	failures := rec.Failures
	if failures == nil {
		failures = []models.FailureEntry{}
	}
	failureData, err := json.Marshal(failures)
	if err != nil {
		return fmt.Errorf("encode failures for %s: %w", rec.ExecutionID, err)
	}
	const query = `
		INSERT INTO pipeline_executions (execution_id, pipeline_name, commit_data, approval_data, failures, is_notified)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (execution_id)
		DO UPDATE SET pipeline_name = EXCLUDED.pipeline_name,
			commit_data = EXCLUDED.commit_data,
			approval_data = EXCLUDED.approval_data,
			failures = EXCLUDED.failures,
			is_notified = EXCLUDED.is_notified
	`
	if _, err := s.db.ExecContext(ctx, query,
		rec.ExecutionID, rec.PipelineName, commitData, approvalData, failureData, rec.IsNotified); err != nil {
		return fmt.Errorf("put execution %s: %w", rec.ExecutionID, err)
	}
	return nil
}

func (s *PGStore) MarkNotified(ctx context.Context, executionID string) error {
	const query = `
		UPDATE pipeline_executions
		SET is_notified = TRUE
		WHERE execution_id = $1 AND is_notified = FALSE
	`
	res, err := s.db.ExecContext(ctx, query, executionID)
	if err != nil {
		return fmt.Errorf("mark notified %s: %w", executionID, err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		var notified bool
		err := s.db.QueryRowContext(ctx,
			`SELECT is_notified FROM pipeline_executions WHERE execution_id = $1`, executionID).Scan(&notified)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("mark notified %s: %w", executionID, err)
		}
		return ErrAlreadyNotified
	}
	return nil
}

func (s *PGStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("db ping: %w", err)
	}
	return nil
}
