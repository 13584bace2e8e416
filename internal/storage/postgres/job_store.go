// Package postgres provides Postgres-backed persistence implementations.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/userpulse/insight-miner/internal/miner"
)

// Schema expected by JobStore:
//
//	CREATE TABLE mining_jobs (
//		id          TEXT PRIMARY KEY,
//		input       JSONB NOT NULL DEFAULT '{}',
//		status      TEXT NOT NULL,
//		progress    INT NOT NULL DEFAULT 0,
//		logs        JSONB NOT NULL DEFAULT '[]',
//		error_text  TEXT NOT NULL DEFAULT '',
//		result      JSONB,
//		records     JSONB,
//		updated_at  TIMESTAMPTZ NOT NULL
//	);

// JobStoreConfig controls the Postgres connection pool.
type JobStoreConfig struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// JobStore is the durable miner.JobStore implementation. Patch serializes
// concurrent writers with a row lock instead of a process mutex, so jobs
// survive restarts and multiple replicas can share the store.
type JobStore struct {
	pool  pgxPool
	clock miner.Clock
}

// NewJobStore creates a Postgres-backed JobStore using the provided config.
func NewJobStore(ctx context.Context, cfg JobStoreConfig, clock miner.Clock) (*JobStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &JobStore{pool: pool, clock: clock}, nil
}

// NewJobStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewJobStoreWithPool(pool pgxPool, clock miner.Clock) (*JobStore, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &JobStore{pool: pool, clock: clock}, nil
}

// Close releases the underlying pool resources.
func (s *JobStore) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Create inserts a new job row. Fails with miner.ErrJobExists on id collision.
func (s *JobStore) Create(ctx context.Context, job miner.Job) error {
	logsJSON, err := json.Marshal(job.Logs)
	if err != nil {
		return fmt.Errorf("marshal logs: %w", err)
	}
	inputJSON, err := json.Marshal(job.Input)
	if err != nil {
		return fmt.Errorf("marshal input: %w", err)
	}
	tag, err := s.pool.Exec(ctx, `
INSERT INTO mining_jobs (id, input, status, progress, logs, error_text, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO NOTHING`,
		job.ID, inputJSON, string(job.Status), job.Progress, logsJSON, job.Error, s.clock.Now(),
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return miner.ErrJobExists
	}
	return nil
}

// Get fetches a job snapshot by id.
func (s *JobStore) Get(ctx context.Context, id string) (miner.Job, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, input, status, progress, logs, error_text, result, records, updated_at
FROM mining_jobs WHERE id = $1`, id)
	return scanJob(row)
}

// Patch merges fields into the job row under a row lock and refreshes
// updated_at. Monotonicity is enforced by miner.ApplyPatch, identically to
// the in-memory store.
func (s *JobStore) Patch(ctx context.Context, id string, patch miner.JobPatch) (miner.Job, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return miner.Job{}, fmt.Errorf("begin patch tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	row := tx.QueryRow(ctx, `
SELECT id, input, status, progress, logs, error_text, result, records, updated_at
FROM mining_jobs WHERE id = $1 FOR UPDATE`, id)
	job, err := scanJob(row)
	if err != nil {
		return miner.Job{}, err
	}

	job = miner.ApplyPatch(job, patch)
	job.UpdatedAt = s.clock.Now()

	logsJSON, err := json.Marshal(job.Logs)
	if err != nil {
		return miner.Job{}, fmt.Errorf("marshal logs: %w", err)
	}
	var resultJSON, recordsJSON []byte
	if job.Result != nil {
		if resultJSON, err = json.Marshal(job.Result); err != nil {
			return miner.Job{}, fmt.Errorf("marshal result: %w", err)
		}
	}
	if job.Records != nil {
		if recordsJSON, err = json.Marshal(job.Records); err != nil {
			return miner.Job{}, fmt.Errorf("marshal records: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
UPDATE mining_jobs
SET status = $2, progress = $3, logs = $4, error_text = $5, result = $6, records = $7, updated_at = $8
WHERE id = $1`,
		job.ID, string(job.Status), job.Progress, logsJSON, job.Error, resultJSON, recordsJSON, job.UpdatedAt,
	); err != nil {
		return miner.Job{}, fmt.Errorf("update job: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return miner.Job{}, fmt.Errorf("commit patch tx: %w", err)
	}
	return job, nil
}

// Complete marks the job completed with its result.
func (s *JobStore) Complete(ctx context.Context, id string, result miner.Result) error {
	status := miner.JobStatusCompleted
	progress := 100
	_, err := s.Patch(ctx, id, miner.JobPatch{
		Status:     &status,
		Progress:   &progress,
		Result:     &result,
		AppendLogs: []string{"[System] Job completed"},
	})
	return err
}

// Fail marks the job failed with a short human-readable message.
func (s *JobStore) Fail(ctx context.Context, id string, message string) error {
	status := miner.JobStatusFailed
	progress := 100
	_, err := s.Patch(ctx, id, miner.JobPatch{
		Status:     &status,
		Progress:   &progress,
		Error:      &message,
		AppendLogs: []string{"[System] Error: " + message},
	})
	return err
}

func scanJob(row pgx.Row) (miner.Job, error) {
	var (
		job         miner.Job
		status      string
		inputJSON   []byte
		logsJSON    []byte
		resultJSON  []byte
		recordsJSON []byte
	)
	err := row.Scan(&job.ID, &inputJSON, &status, &job.Progress, &logsJSON, &job.Error, &resultJSON, &recordsJSON, &job.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return miner.Job{}, miner.ErrJobNotFound
	}
	if err != nil {
		return miner.Job{}, fmt.Errorf("scan job: %w", err)
	}
	job.Status = miner.JobStatus(status)
	if len(inputJSON) > 0 {
		if err := json.Unmarshal(inputJSON, &job.Input); err != nil {
			return miner.Job{}, fmt.Errorf("unmarshal input: %w", err)
		}
	}
	if len(logsJSON) > 0 {
		if err := json.Unmarshal(logsJSON, &job.Logs); err != nil {
			return miner.Job{}, fmt.Errorf("unmarshal logs: %w", err)
		}
	}
	if len(resultJSON) > 0 {
		var result miner.Result
		if err := json.Unmarshal(resultJSON, &result); err != nil {
			return miner.Job{}, fmt.Errorf("unmarshal result: %w", err)
		}
		job.Result = &result
	}
	if len(recordsJSON) > 0 {
		if err := json.Unmarshal(recordsJSON, &job.Records); err != nil {
			return miner.Job{}, fmt.Errorf("unmarshal records: %w", err)
		}
	}
	return job, nil
}
