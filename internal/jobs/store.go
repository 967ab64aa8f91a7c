package jobs

import (
	"context"
	"sync"
	"time"

	"facility-alerting/internal/db"
	"facility-alerting/internal/errs"
	"facility-alerting/internal/logging"
	"facility-alerting/internal/models"
)

const jobsTable = "background_jobs"

const createJobsTableSQL = `
	CREATE TABLE IF NOT EXISTS background_jobs (
		id BIGSERIAL PRIMARY KEY,
		job_type VARCHAR(64) NOT NULL,
		status VARCHAR(16) NOT NULL DEFAULT 'pending',
		building_id BIGINT,
		equipment_id BIGINT,
		job_parameters JSONB NOT NULL DEFAULT '{}'::jsonb,
		progress_percentage INTEGER NOT NULL DEFAULT 0 CHECK (progress_percentage BETWEEN 0 AND 100),
		result_data JSONB,
		error_message TEXT,
		started_at TIMESTAMPTZ,
		completed_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`

const createJobsIndexSQL = `
	CREATE INDEX IF NOT EXISTS idx_background_jobs_status_created
	ON background_jobs (status, created_at)`

const jobColumns = `id, job_type, status, building_id, equipment_id, job_parameters,
	progress_percentage, result_data, error_message, started_at, completed_at, created_at, updated_at`

// JobStore persists background jobs.
type JobStore interface {
	EnsureTable(ctx context.Context) error
	TableReady() bool
	Insert(ctx context.Context, job models.BackgroundJob) (int64, error)
	// Get returns nil when the job does not exist.
	Get(ctx context.Context, id int64) (*models.BackgroundJob, error)
	// FetchPending returns up to limit pending jobs, oldest first.
	FetchPending(ctx context.Context, limit int) ([]models.BackgroundJob, error)
	// Claim moves a pending job to running; false when another worker or an
	// administrator got there first.
	Claim(ctx context.Context, id int64, now time.Time) (bool, error)
	// UpdateProgress never lowers the stored percentage.
	UpdateProgress(ctx context.Context, id int64, percent int, now time.Time) error
	Complete(ctx context.Context, id int64, result map[string]any, now time.Time) (bool, error)
	Fail(ctx context.Context, id int64, message string, now time.Time) (bool, error)
	Cancel(ctx context.Context, id int64, now time.Time) (bool, error)
	Stats(ctx context.Context, recent int) (models.JobStats, error)
}

// Store keeps jobs in the background_jobs table and recreates the table
// when it goes missing.
type Store struct {
	db     db.DataAccess
	logger *logging.Logger

	mu    sync.Mutex
	ready bool
}

var _ JobStore = (*Store)(nil)

func NewStore(da db.DataAccess, logger *logging.Logger) *Store {
	return &Store{db: da, logger: logger}
}

func (s *Store) TableReady() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ready
}

// EnsureTable creates background_jobs when it does not exist yet.
func (s *Store) EnsureTable(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ready {
		return nil
	}

	exists, err := s.db.TableExists(ctx, jobsTable)
	if err != nil {
		return errs.Store("failed to check background_jobs table", err)
	}
	if !exists {
		s.logger.Warnf("Table %s is missing, creating it", jobsTable)
		if err := s.create(ctx); err != nil {
			return err
		}
	}
	s.ready = true
	return nil
}

func (s *Store) create(ctx context.Context) error {
	if _, err := s.db.Execute(ctx, createJobsTableSQL); err != nil {
		return errs.Store("failed to create background_jobs table", err)
	}
	if _, err := s.db.Execute(ctx, createJobsIndexSQL); err != nil {
		return errs.Store("failed to create background_jobs index", err)
	}
	return nil
}

// recreate runs the DDL unconditionally after the table vanished under a
// live process.
func (s *Store) recreate(ctx context.Context, op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ready = false
	s.logger.Warnf("Table %s disappeared during %s, recreating it", jobsTable, op)
	if err := s.create(ctx); err != nil {
		return err
	}
	s.ready = true
	return nil
}

// withTable runs fn with the table in place, retrying once after an
// undefined-table error.
func (s *Store) withTable(ctx context.Context, op string, fn func() error) error {
	if err := s.EnsureTable(ctx); err != nil {
		return err
	}
	err := fn()
	if err != nil && db.IsUndefinedTable(err) {
		if herr := s.recreate(ctx, op); herr != nil {
			return herr
		}
		err = fn()
	}
	return errs.Store(op, err)
}

func (s *Store) Insert(ctx context.Context, job models.BackgroundJob) (int64, error) {
	query := `
	INSERT INTO background_jobs (
		job_type, status, building_id, equipment_id, job_parameters, progress_percentage, created_at, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	RETURNING id`

	params := job.Parameters
	if params == nil {
		params = models.JobParams{}
	}

	var id int64
	err := s.withTable(ctx, "failed to insert job", func() error {
		var err error
		id, err = s.db.Insert(ctx, query,
			job.JobType,
			job.Status,
			job.BuildingID,
			job.EquipmentID,
			map[string]any(params),
			job.ProgressPercentage,
			job.CreatedAt.UTC(),
			job.UpdatedAt.UTC(),
		)
		return err
	})
	return id, err
}

func (s *Store) Get(ctx context.Context, id int64) (*models.BackgroundJob, error) {
	var row db.Row
	err := s.withTable(ctx, "failed to get job", func() error {
		var err error
		row, err = s.db.QueryOne(ctx, `SELECT `+jobColumns+` FROM background_jobs WHERE id = $1`, id)
		return err
	})
	if err != nil || row == nil {
		return nil, err
	}
	job := jobFromRow(row)
	return &job, nil
}

func (s *Store) FetchPending(ctx context.Context, limit int) ([]models.BackgroundJob, error) {
	query := `
	SELECT ` + jobColumns + `
	FROM background_jobs
	WHERE status = 'pending'
	ORDER BY created_at ASC, id ASC
	LIMIT $1`

	var rows []db.Row
	err := s.withTable(ctx, "failed to fetch pending jobs", func() error {
		var err error
		rows, err = s.db.Query(ctx, query, limit)
		return err
	})
	if err != nil {
		return nil, err
	}

	list := make([]models.BackgroundJob, 0, len(rows))
	for _, r := range rows {
		list = append(list, jobFromRow(r))
	}
	return list, nil
}

func (s *Store) Claim(ctx context.Context, id int64, now time.Time) (bool, error) {
	query := `
	UPDATE background_jobs
	SET status = 'running', started_at = $1, progress_percentage = 0, updated_at = $1
	WHERE id = $2 AND status = 'pending'`

	return s.transition(ctx, "failed to claim job", query, now.UTC(), id)
}

func (s *Store) UpdateProgress(ctx context.Context, id int64, percent int, now time.Time) error {
	query := `
	UPDATE background_jobs
	SET progress_percentage = GREATEST(progress_percentage, $1), updated_at = $2
	WHERE id = $3 AND status = 'running'`

	_, err := s.transition(ctx, "failed to update job progress", query, clampPercent(percent), now.UTC(), id)
	return err
}

func (s *Store) Complete(ctx context.Context, id int64, result map[string]any, now time.Time) (bool, error) {
	query := `
	UPDATE background_jobs
	SET status = 'completed', result_data = $1, progress_percentage = 100, completed_at = $2, updated_at = $2
	WHERE id = $3 AND status = 'running'`

	if result == nil {
		result = map[string]any{}
	}
	return s.transition(ctx, "failed to complete job", query, result, now.UTC(), id)
}

func (s *Store) Fail(ctx context.Context, id int64, message string, now time.Time) (bool, error) {
	query := `
	UPDATE background_jobs
	SET status = 'failed', error_message = $1, completed_at = $2, updated_at = $2
	WHERE id = $3 AND status IN ('pending', 'running')`

	return s.transition(ctx, "failed to mark job failed", query, message, now.UTC(), id)
}

func (s *Store) Cancel(ctx context.Context, id int64, now time.Time) (bool, error) {
	query := `
	UPDATE background_jobs
	SET status = 'cancelled', completed_at = $1, updated_at = $1
	WHERE id = $2 AND status IN ('pending', 'running')`

	return s.transition(ctx, "failed to cancel job", query, now.UTC(), id)
}

func (s *Store) transition(ctx context.Context, op, query string, args ...any) (bool, error) {
	var n int64
	err := s.withTable(ctx, op, func() error {
		var err error
		n, err = s.db.Execute(ctx, query, args...)
		return err
	})
	return n == 1, err
}

// Stats summarises the table: counts by status, the most recent jobs and the
// mean processing time of completed jobs.
func (s *Store) Stats(ctx context.Context, recent int) (models.JobStats, error) {
	stats := models.JobStats{CountsByStatus: make(map[string]int, len(models.JobStatuses))}
	for _, status := range models.JobStatuses {
		stats.CountsByStatus[status] = 0
	}

	var counts, latest []db.Row
	var avg db.Row
	err := s.withTable(ctx, "failed to load job stats", func() error {
		var err error
		counts, err = s.db.Query(ctx, `SELECT status, COUNT(*) AS count FROM background_jobs GROUP BY status`)
		if err != nil {
			return err
		}
		latest, err = s.db.Query(ctx, `SELECT `+jobColumns+` FROM background_jobs ORDER BY created_at DESC, id DESC LIMIT $1`, recent)
		if err != nil {
			return err
		}
		avg, err = s.db.QueryOne(ctx, `
		SELECT AVG(EXTRACT(EPOCH FROM (completed_at - started_at))) AS avg_seconds
		FROM background_jobs
		WHERE status = 'completed' AND started_at IS NOT NULL AND completed_at IS NOT NULL`)
		return err
	})
	if err != nil {
		return models.JobStats{}, err
	}

	for _, r := range counts {
		stats.CountsByStatus[r.String("status")] = r.Int("count")
	}
	stats.RecentJobs = make([]models.BackgroundJob, 0, len(latest))
	for _, r := range latest {
		stats.RecentJobs = append(stats.RecentJobs, jobFromRow(r))
	}
	if avg != nil {
		stats.AverageProcessingSec = avg.Float64("avg_seconds")
	}
	return stats, nil
}

func jobFromRow(r db.Row) models.BackgroundJob {
	return models.BackgroundJob{
		ID:                 r.Int64("id"),
		JobType:            r.String("job_type"),
		Status:             r.String("status"),
		BuildingID:         r.NullInt64("building_id"),
		EquipmentID:        r.NullInt64("equipment_id"),
		Parameters:         models.JobParams(r.Map("job_parameters")),
		ProgressPercentage: r.Int("progress_percentage"),
		ResultData:         r.Map("result_data"),
		ErrorMessage:       r.NullString("error_message"),
		StartedAt:          r.NullTime("started_at"),
		CompletedAt:        r.NullTime("completed_at"),
		CreatedAt:          r.Time("created_at"),
		UpdatedAt:          r.Time("updated_at"),
	}
}

func clampPercent(p int) int {
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}
