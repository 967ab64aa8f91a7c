// Package jobs runs persisted background jobs with bounded concurrency.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"facility-alerting/internal/cache"
	"facility-alerting/internal/errs"
	"facility-alerting/internal/logging"
	"facility-alerting/internal/metrics"
	"facility-alerting/internal/models"
	"facility-alerting/internal/realtime"
)

const (
	DefaultPollInterval   = 10 * time.Second
	DefaultMaxConcurrency = 3
	DefaultCacheTTL       = 5 * time.Minute

	recentJobs     = 10
	terminalWrite  = 10 * time.Second
	cacheKeyPrefix = "job:"
)

// ProgressFunc reports completion percentage. Values are clamped to 0..100
// and never lower the stored progress.
type ProgressFunc func(percent int)

// Processor performs one job type. It should check ctx between units of
// work and return ctx.Err() once cancelled.
type Processor interface {
	Process(ctx context.Context, job models.BackgroundJob, progress ProgressFunc) (map[string]any, error)
}

type ProcessorFunc func(ctx context.Context, job models.BackgroundJob, progress ProgressFunc) (map[string]any, error)

func (f ProcessorFunc) Process(ctx context.Context, job models.BackgroundJob, progress ProgressFunc) (map[string]any, error) {
	return f(ctx, job, progress)
}

type Options struct {
	PollInterval   time.Duration
	MaxConcurrency int
	CacheTTL       time.Duration
	Cache          cache.Cache
	Publisher      realtime.Publisher
}

// Queue polls the store for pending jobs and runs at most MaxConcurrency of
// them at once.
type Queue struct {
	store      JobStore
	cache      cache.Cache
	publisher  realtime.Publisher
	logger     *logging.Logger
	processors map[string]Processor

	pollInterval   time.Duration
	maxConcurrency int
	cacheTTL       time.Duration

	mu       sync.Mutex
	inFlight map[int64]context.CancelFunc
	wg       sync.WaitGroup

	baseCtx   context.Context
	cancelAll context.CancelFunc
	stop      chan struct{}
	stopOnce  sync.Once
	loopDone  chan struct{}
	started   bool

	now func() time.Time
}

func New(store JobStore, logger *logging.Logger, opts Options) (*Queue, error) {
	if opts.MaxConcurrency < 0 {
		return nil, fmt.Errorf("max concurrency must be a positive integer, got %d", opts.MaxConcurrency)
	}
	if opts.MaxConcurrency == 0 {
		opts.MaxConcurrency = DefaultMaxConcurrency
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	if opts.CacheTTL <= 0 {
		opts.CacheTTL = DefaultCacheTTL
	}
	if opts.Cache == nil {
		opts.Cache = cache.Noop{}
	}
	if opts.Publisher == nil {
		opts.Publisher = realtime.Noop{}
	}

	baseCtx, cancelAll := context.WithCancel(context.Background())
	return &Queue{
		store:          store,
		cache:          opts.Cache,
		publisher:      opts.Publisher,
		logger:         logger,
		processors:     make(map[string]Processor),
		pollInterval:   opts.PollInterval,
		maxConcurrency: opts.MaxConcurrency,
		cacheTTL:       opts.CacheTTL,
		inFlight:       make(map[int64]context.CancelFunc),
		baseCtx:        baseCtx,
		cancelAll:      cancelAll,
		stop:           make(chan struct{}),
		now:            time.Now,
	}, nil
}

// Register installs the processor for a job type. Call before Start.
func (q *Queue) Register(jobType string, p Processor) {
	q.processors[jobType] = p
}

// CreateJob validates and stores a pending job. Building and equipment ids
// given here override the same keys in params.
func (q *Queue) CreateJob(ctx context.Context, jobType string, buildingID, equipmentID *int64, params models.JobParams) (int64, error) {
	if params == nil {
		params = models.JobParams{}
	} else {
		params = params.Clone()
	}
	if buildingID != nil {
		params["building_id"] = *buildingID
	}
	if equipmentID != nil {
		params["equipment_id"] = *equipmentID
	}

	if res := Validate(jobType, params); !res.Valid {
		return 0, res.Err()
	}

	now := q.now()
	job := models.BackgroundJob{
		JobType:    jobType,
		Status:     models.JobStatusPending,
		Parameters: params,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if id, ok := params.Int64("building_id"); ok {
		job.BuildingID = &id
	}
	if id, ok := params.Int64("equipment_id"); ok {
		job.EquipmentID = &id
	}

	id, err := q.store.Insert(ctx, job)
	if err != nil {
		return 0, fmt.Errorf("failed to create %s job: %w", jobType, err)
	}
	job.ID = id

	q.cacheJob(ctx, job)
	q.logger.WithFields(map[string]interface{}{"job_id": id, "job_type": jobType}).Infof("Queued background job")
	return id, nil
}

// GetJobStatus reads through the cache to the store.
func (q *Queue) GetJobStatus(ctx context.Context, id int64) (*models.BackgroundJob, error) {
	if data, err := q.cache.Get(ctx, cacheKey(id)); err == nil {
		var job models.BackgroundJob
		if err := json.Unmarshal(data, &job); err == nil {
			return &job, nil
		}
	} else if !errors.Is(err, cache.ErrCacheMiss) {
		q.logger.Debugf("Cache read for job %d failed: %v", id, err)
	}

	job, err := q.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, errs.NotFound("job", id)
	}
	q.cacheJob(ctx, *job)
	return job, nil
}

// CancelJob marks a pending or running job cancelled and interrupts it if
// it is running in this process.
func (q *Queue) CancelJob(ctx context.Context, id int64) error {
	ok, err := q.store.Cancel(ctx, id, q.now())
	if err != nil {
		return err
	}
	if !ok {
		job, err := q.store.Get(ctx, id)
		if err != nil {
			return err
		}
		if job == nil {
			return errs.NotFound("job", id)
		}
		return errs.NewValidation(fmt.Sprintf("job %d is already %s", id, job.Status))
	}

	q.mu.Lock()
	cancel, running := q.inFlight[id]
	q.mu.Unlock()
	if running {
		cancel()
	}

	q.logger.WithField("job_id", id).Infof("Job cancelled (running=%t)", running)
	q.refresh(ctx, id)
	return nil
}

// Start runs the polling loop until Stop is called or ctx is done.
func (q *Queue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.started {
		q.mu.Unlock()
		return
	}
	q.started = true
	q.loopDone = make(chan struct{})
	q.mu.Unlock()

	q.logger.Infof("Job queue started (poll every %s, max concurrency %d)", q.pollInterval, q.maxConcurrency)

	go func() {
		defer close(q.loopDone)
		ticker := time.NewTicker(q.pollInterval)
		defer ticker.Stop()

		q.runTick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-q.stop:
				return
			case <-ticker.C:
				q.runTick(ctx)
			}
		}
	}()
}

// Stop ends polling and waits for in-flight jobs. When ctx expires first
// the remaining jobs are interrupted.
func (q *Queue) Stop(ctx context.Context) error {
	q.stopOnce.Do(func() { close(q.stop) })

	q.mu.Lock()
	loopDone := q.loopDone
	q.mu.Unlock()
	if loopDone != nil {
		<-loopDone
	}

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		q.logger.Infof("Job queue stopped")
		return nil
	case <-ctx.Done():
		q.cancelAll()
		q.logger.Warnf("Job queue stop timed out, interrupting %d job(s)", q.InFlight())
		return ctx.Err()
	}
}

func (q *Queue) runTick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Errorf("Job queue tick panicked: %v", r)
		}
	}()
	if _, err := q.tick(ctx); err != nil {
		q.logger.Errorf("Job queue tick failed: %v", err)
	}
}

// tick admits as many of the oldest pending jobs as there are free slots
// and returns how many were dispatched.
func (q *Queue) tick(ctx context.Context) (int, error) {
	free := q.maxConcurrency - q.InFlight()
	if free <= 0 {
		return 0, nil
	}

	pending, err := q.store.FetchPending(ctx, free)
	if err != nil {
		return 0, err
	}

	dispatched := 0
	for _, job := range pending {
		now := q.now()
		claimed, err := q.store.Claim(ctx, job.ID, now)
		if err != nil {
			q.logger.WithField("job_id", job.ID).Errorf("Failed to claim job: %v", err)
			continue
		}
		if !claimed {
			continue
		}
		job.Status = models.JobStatusRunning
		job.StartedAt = &now
		job.ProgressPercentage = 0
		job.UpdatedAt = now

		jobCtx, cancel := context.WithCancel(q.baseCtx)
		q.mu.Lock()
		q.inFlight[job.ID] = cancel
		n := len(q.inFlight)
		q.mu.Unlock()
		metrics.SetJobsInFlight(n)

		q.wg.Add(1)
		go func(job models.BackgroundJob) {
			defer q.wg.Done()
			defer q.release(job.ID, cancel)
			q.processJob(jobCtx, job)
		}(job)
		dispatched++
	}
	return dispatched, nil
}

func (q *Queue) release(id int64, cancel context.CancelFunc) {
	cancel()
	q.mu.Lock()
	delete(q.inFlight, id)
	n := len(q.inFlight)
	q.mu.Unlock()
	metrics.SetJobsInFlight(n)
}

// processJob always drives a claimed job to a terminal status.
func (q *Queue) processJob(ctx context.Context, job models.BackgroundJob) {
	start := q.now()
	log := q.logger.WithFields(map[string]interface{}{"job_id": job.ID, "job_type": job.JobType})
	q.cacheJob(ctx, job)

	processor, ok := q.processors[job.JobType]
	if !ok {
		err := &errs.ProcessorMissingError{JobType: job.JobType}
		log.Errorf("Job failed: %v", err)
		q.finish(ctx, job, nil, err, start)
		return
	}

	if res := Validate(job.JobType, job.Parameters); !res.Valid {
		err := res.Err()
		log.Errorf("Job failed parameter validation: %v", err)
		q.finish(ctx, job, nil, err, start)
		return
	}

	log.Infof("Job started")
	result, err := q.invoke(ctx, processor, job)
	q.finish(ctx, job, result, err, start)
}

func (q *Queue) invoke(ctx context.Context, p Processor, job models.BackgroundJob) (result map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("processor panicked: %v", r)
		}
	}()
	return p.Process(ctx, job, q.progressReporter(ctx, job))
}

func (q *Queue) progressReporter(ctx context.Context, job models.BackgroundJob) ProgressFunc {
	var mu sync.Mutex
	current := 0
	return func(percent int) {
		mu.Lock()
		defer mu.Unlock()

		percent = clampPercent(percent)
		if percent <= current {
			return
		}
		current = percent

		if err := q.store.UpdateProgress(ctx, job.ID, percent, q.now()); err != nil {
			q.logger.WithField("job_id", job.ID).Warnf("Failed to record progress: %v", err)
			return
		}
		job.ProgressPercentage = percent
		q.cacheJob(ctx, job)
	}
}

// finish writes the terminal status. The write uses a detached context so a
// cancelled job still records its outcome; a job cancelled by CancelJob
// keeps its cancelled status because the store only finishes running jobs.
func (q *Queue) finish(ctx context.Context, job models.BackgroundJob, result map[string]any, procErr error, start time.Time) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), terminalWrite)
	defer cancel()

	log := q.logger.WithFields(map[string]interface{}{"job_id": job.ID, "job_type": job.JobType})
	now := q.now()
	outcome := metrics.OutcomeCompleted

	var (
		applied bool
		err     error
	)
	if procErr == nil {
		applied, err = q.store.Complete(writeCtx, job.ID, result, now)
	} else {
		outcome = metrics.OutcomeFailed
		applied, err = q.store.Fail(writeCtx, job.ID, procErr.Error(), now)
	}

	switch {
	case err != nil:
		log.Errorf("Failed to record job outcome: %v", err)
	case !applied:
		outcome = metrics.OutcomeCancelled
		log.Infof("Job was cancelled before it finished")
	case procErr != nil:
		log.Errorf("Job failed after %s: %v", now.Sub(start), procErr)
	default:
		log.Infof("Job completed in %s", now.Sub(start))
	}

	metrics.ObserveJob(job.JobType, outcome, now.Sub(start))
	q.refresh(writeCtx, job.ID)
}

// refresh re-reads a job from the store into the cache and notifies
// subscribers of its building.
func (q *Queue) refresh(ctx context.Context, id int64) {
	job, err := q.store.Get(ctx, id)
	if err != nil || job == nil {
		if err != nil {
			q.logger.WithField("job_id", id).Warnf("Failed to reload job: %v", err)
		}
		_ = q.cache.Delete(ctx, cacheKey(id))
		return
	}
	q.cacheJob(ctx, *job)
	q.publisher.EmitToBuilding(ctx, realtime.ChannelFor(job.BuildingID), realtime.EventJobUpdated, job)
}

// cacheJob is best-effort; failures are logged and ignored.
func (q *Queue) cacheJob(ctx context.Context, job models.BackgroundJob) {
	data, err := json.Marshal(job)
	if err != nil {
		return
	}
	if err := q.cache.Set(ctx, cacheKey(job.ID), data, q.cacheTTL); err != nil {
		q.logger.WithField("job_id", job.ID).Debugf("Cache write failed: %v", err)
	}
}

func (q *Queue) InFlight() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.inFlight)
}

// Stats reports store-wide job statistics plus the local in-flight count.
func (q *Queue) Stats(ctx context.Context) (models.JobStats, error) {
	stats, err := q.store.Stats(ctx, recentJobs)
	if err != nil {
		return models.JobStats{}, err
	}
	stats.InFlight = q.InFlight()
	return stats, nil
}

type Health struct {
	Healthy        bool     `json:"healthy"`
	TableReady     bool     `json:"table_ready"`
	InFlight       int      `json:"in_flight"`
	MaxConcurrency int      `json:"max_concurrency"`
	PollInterval   string   `json:"poll_interval"`
	Processors     []string `json:"processors"`
	Error          string   `json:"error,omitempty"`
}

// HealthCheck makes sure the job table exists and reports queue limits.
func (q *Queue) HealthCheck(ctx context.Context) Health {
	h := Health{
		InFlight:       q.InFlight(),
		MaxConcurrency: q.maxConcurrency,
		PollInterval:   q.pollInterval.String(),
	}
	for jobType := range q.processors {
		h.Processors = append(h.Processors, jobType)
	}
	sort.Strings(h.Processors)

	if err := q.store.EnsureTable(ctx); err != nil {
		h.Error = err.Error()
		return h
	}
	h.TableReady = q.store.TableReady()
	h.Healthy = h.TableReady
	return h
}

func cacheKey(id int64) string {
	return fmt.Sprintf("%s%d", cacheKeyPrefix, id)
}
