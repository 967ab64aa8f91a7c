package jobs

import (
	"context"
	"testing"
	"time"

	"facility-alerting/internal/db"
	"facility-alerting/internal/db/dbtest"
	"facility-alerting/internal/logging"
	"facility-alerting/internal/models"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreCreatesMissingTable(t *testing.T) {
	fake := dbtest.New()
	store := NewStore(fake, logging.Discard())

	require.NoError(t, store.EnsureTable(context.Background()))
	assert.True(t, store.TableReady())
	assert.Len(t, fake.CallsMatching("CREATE TABLE IF NOT EXISTS background_jobs"), 1)
	assert.Len(t, fake.CallsMatching("CREATE INDEX IF NOT EXISTS"), 1)

	require.NoError(t, store.EnsureTable(context.Background()))
	assert.Len(t, fake.CallsMatching("CREATE TABLE"), 1)
}

func TestStoreSkipsDDLWhenTableExists(t *testing.T) {
	fake := dbtest.New()
	fake.SetTable("background_jobs", true)
	store := NewStore(fake, logging.Discard())

	_, err := store.Insert(context.Background(), models.BackgroundJob{JobType: models.JobTypeAlertMonitoring, Status: models.JobStatusPending})
	require.NoError(t, err)
	assert.Empty(t, fake.CallsMatching("CREATE TABLE"))
}

func TestStoreHealsUndefinedTable(t *testing.T) {
	fake := dbtest.New()
	fake.SetTable("background_jobs", true)
	attempts := 0
	fake.OnInsert("INSERT INTO background_jobs", func(args []any) (int64, error) {
		attempts++
		if attempts == 1 {
			return 0, &pgconn.PgError{Code: "42P01", Message: `relation "background_jobs" does not exist`}
		}
		return 12, nil
	})
	store := NewStore(fake, logging.Discard())

	id, err := store.Insert(context.Background(), models.BackgroundJob{
		JobType:    models.JobTypeForecastGeneration,
		Status:     models.JobStatusPending,
		Parameters: models.JobParams{"building_id": 1, "forecast_days": 7},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(12), id)
	assert.Equal(t, 2, attempts)
	assert.Len(t, fake.CallsMatching("CREATE TABLE IF NOT EXISTS background_jobs"), 1)
	assert.True(t, store.TableReady())
}

func TestStoreClaimIsConditional(t *testing.T) {
	fake := dbtest.New()
	fake.OnExecute("SET status = 'running'", func(args []any) (int64, error) { return 0, nil })
	store := NewStore(fake, logging.Discard())

	ok, err := store.Claim(context.Background(), 4, time.Now())
	require.NoError(t, err)
	assert.False(t, ok)

	call := fake.CallsMatching("SET status = 'running'")[0]
	assert.Contains(t, call.SQL, "WHERE id = $2 AND status = 'pending'")
	assert.Equal(t, int64(4), call.Args[1])
}

func TestStoreProgressNeverDecreases(t *testing.T) {
	fake := dbtest.New()
	store := NewStore(fake, logging.Discard())

	require.NoError(t, store.UpdateProgress(context.Background(), 4, 140, time.Now()))
	call := fake.CallsMatching("progress_percentage = GREATEST")[0]
	assert.Equal(t, 100, call.Args[0])
	assert.Contains(t, call.SQL, "status = 'running'")
}

func TestStoreTerminalWritesRespectCancellation(t *testing.T) {
	fake := dbtest.New()
	store := NewStore(fake, logging.Discard())

	_, err := store.Complete(context.Background(), 1, nil, time.Now())
	require.NoError(t, err)
	_, err = store.Fail(context.Background(), 1, "boom", time.Now())
	require.NoError(t, err)

	complete := fake.CallsMatching("SET status = 'completed'")[0]
	assert.Contains(t, complete.SQL, "AND status = 'running'")
	assert.Equal(t, map[string]any{}, complete.Args[0])

	fail := fake.CallsMatching("SET status = 'failed'")[0]
	assert.Contains(t, fail.SQL, "status IN ('pending', 'running')")
	assert.Equal(t, "boom", fail.Args[0])
}

func TestStoreFetchPendingOrdersOldestFirst(t *testing.T) {
	fake := dbtest.New()
	created := time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC)
	fake.OnQuery("WHERE status = 'pending'", func(args []any) ([]db.Row, error) {
		return []db.Row{{
			"id":                  int64(1),
			"job_type":            models.JobTypeComplianceCheck,
			"status":              models.JobStatusPending,
			"building_id":         int64(5),
			"job_parameters":      []byte(`{"building_id":5,"standard":"EN50160"}`),
			"progress_percentage": int32(0),
			"created_at":          created,
			"updated_at":          created,
		}}, nil
	})
	store := NewStore(fake, logging.Discard())

	jobs, err := store.FetchPending(context.Background(), 2)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "EN50160", jobs[0].Parameters.String("standard"))
	assert.Equal(t, int64(5), *jobs[0].BuildingID)

	call := fake.CallsMatching("WHERE status = 'pending'")[0]
	assert.Contains(t, call.SQL, "ORDER BY created_at ASC, id ASC")
	assert.Equal(t, []any{2}, call.Args)
}

func TestStoreStats(t *testing.T) {
	fake := dbtest.New()
	fake.OnQuery("GROUP BY status", func([]any) ([]db.Row, error) {
		return []db.Row{
			{"status": "completed", "count": int64(4)},
			{"status": "failed", "count": int64(1)},
		}, nil
	})
	fake.OnQuery("AVG(EXTRACT", func([]any) ([]db.Row, error) {
		return []db.Row{{"avg_seconds": 12.5}}, nil
	})
	store := NewStore(fake, logging.Discard())

	stats, err := store.Stats(context.Background(), 10)
	require.NoError(t, err)
	assert.Equal(t, 4, stats.CountsByStatus["completed"])
	assert.Equal(t, 1, stats.CountsByStatus["failed"])
	assert.Equal(t, 0, stats.CountsByStatus["pending"])
	assert.Equal(t, 12.5, stats.AverageProcessingSec)
	assert.Empty(t, stats.RecentJobs)
}
