package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/userpulse/insight-miner/internal/miner"
)

type fakeClock struct{ now time.Time }

func (c *fakeClock) Now() time.Time { return c.now }

func TestNewJobStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewJobStoreWithPool(nil, &fakeClock{})
	require.Error(t, err)
}

func TestCreateInsertsRow(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Unix(1700000000, 0).UTC()
	store, err := NewJobStoreWithPool(mock, &fakeClock{now: now})
	require.NoError(t, err)

	job := miner.Job{
		ID:     "job-1",
		Input:  miner.MiningInput{Entity: "Acme", Competitors: []string{"Globex"}, Days: 30},
		Status: miner.JobStatusQueued,
		Logs:   []string{"[System] Job queued"},
	}

	mock.ExpectExec("INSERT INTO mining_jobs").
		WithArgs(job.ID, pgxmock.AnyArg(), "queued", 0, []byte(`["[System] Job queued"]`), "", now).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.Create(context.Background(), job))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateDuplicateReturnsErrJobExists(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock, &fakeClock{now: time.Unix(1700000000, 0).UTC()})
	require.NoError(t, err)

	mock.ExpectExec("INSERT INTO mining_jobs").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	err = store.Create(context.Background(), miner.Job{ID: "job-dup", Status: miner.JobStatusQueued})
	require.ErrorIs(t, err, miner.ErrJobExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGetUnknownJob(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewJobStoreWithPool(mock, &fakeClock{now: time.Unix(1700000000, 0).UTC()})
	require.NoError(t, err)

	mock.ExpectQuery("SELECT id, input, status, progress, logs, error_text, result, records, updated_at").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	_, err = store.Get(context.Background(), "missing")
	require.ErrorIs(t, err, miner.ErrJobNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestPatchLocksRowAndWrites(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	now := time.Unix(1700000000, 0).UTC()
	store, err := NewJobStoreWithPool(mock, &fakeClock{now: now})
	require.NoError(t, err)

	rows := pgxmock.NewRows([]string{
		"id", "input", "status", "progress", "logs", "error_text", "result", "records", "updated_at",
	}).AddRow("job-1", []byte(`{"entity":"Acme"}`), "running", 30, []byte(`["a"]`), "", []byte(nil), []byte(nil), now)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT id, input, status, progress, logs, error_text, result, records, updated_at").
		WithArgs("job-1").
		WillReturnRows(rows)
	mock.ExpectExec("UPDATE mining_jobs").
		WithArgs("job-1", "running", 60, []byte(`["a","b"]`), "", pgxmock.AnyArg(), pgxmock.AnyArg(), now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()
	mock.ExpectRollback()

	progress := 60
	job, err := store.Patch(context.Background(), "job-1", miner.JobPatch{
		Progress:   &progress,
		AppendLogs: []string{"b"},
	})
	require.NoError(t, err)
	require.Equal(t, 60, job.Progress)
	require.Equal(t, []string{"a", "b"}, job.Logs)
	require.NoError(t, mock.ExpectationsWereMet())
}
