package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"property-scraper/config"
	"property-scraper/models"
	"property-scraper/queue"
	"property-scraper/services"
	"property-scraper/storage"
	"property-scraper/utils"

	"github.com/ternarybob/arbor"
)

// Runner produces the raw listings for a search.
type Runner interface {
	Run(ctx context.Context, criteria models.SearchCriteria, mode services.Mode) []models.Listing
}

// JobRepository is the slice of the job store the pool drives.
type JobRepository interface {
	MarkProcessing(ctx context.Context, id string) (models.ScrapeJob, error)
	MarkCompleted(ctx context.Context, id string, listingIDs []string) (models.ScrapeJob, error)
	MarkFailed(ctx context.Context, id string, message string) (models.ScrapeJob, error)
}

// Notifier delivers a digest once a job with an email address completes.
type Notifier interface {
	Notify(ctx context.Context, email string, listings []models.Listing, criteria models.SearchCriteria) error
}

type Recorder interface {
	JobStarted()
	JobFinished(status models.JobStatus, elapsed time.Duration)
}

type Deps struct {
	Jobs     JobRepository
	Queue    queue.Queue
	Runner   Runner
	Pipeline *services.Pipeline
	Listings storage.ListingStore
	Notifier Notifier
	Recorder Recorder
	Logger   arbor.ILogger
}

// Pool polls the queue and processes up to MaxConcurrent jobs at once.
// Jobs are never cancelled mid-run; Stop waits for in-flight jobs.
type Pool struct {
	cfg  config.WorkerConfig
	deps Deps
	mode services.Mode

	mu     sync.Mutex
	active int

	connected atomic.Bool
	cancel    context.CancelFunc
	loops     sync.WaitGroup
	jobs      sync.WaitGroup
}

func NewPool(cfg config.WorkerConfig, deps Deps) (*Pool, error) {
	if deps.Jobs == nil || deps.Queue == nil || deps.Runner == nil || deps.Listings == nil {
		return nil, errors.New("worker pool needs jobs, queue, runner and listings")
	}
	mode, err := services.ParseMode(cfg.Mode)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.PollInterval.Std() <= 0 {
		cfg.PollInterval = config.Duration(5 * time.Second)
	}
	if cfg.ReconnectDelay.Std() <= 0 {
		cfg.ReconnectDelay = config.Duration(5 * time.Second)
	}
	if deps.Pipeline == nil {
		deps.Pipeline = services.NewPipeline(services.DefaultMaxResults)
	}
	if deps.Recorder == nil {
		deps.Recorder = noopRecorder{}
	}
	return &Pool{cfg: cfg, deps: deps, mode: mode}, nil
}

func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	logger := p.deps.Logger

	if err := p.deps.Queue.Connect(ctx); err != nil {
		logger.Warn().Err(err).Msg("Queue unavailable at start")
		p.reconnect(ctx)
	} else {
		p.connected.Store(true)
	}

	logger.Info().
		Int("max_concurrent", p.cfg.MaxConcurrent).
		Str("poll_interval", p.cfg.PollInterval.String()).
		Str("mode", string(p.mode)).
		Msg("Worker pool started")

	p.loops.Add(1)
	go func() {
		defer p.loops.Done()
		ticker := time.NewTicker(p.cfg.PollInterval.Std())
		defer ticker.Stop()

		p.tick(ctx)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				p.tick(ctx)
			}
		}
	}()
}

// Stop stops polling and waits for in-flight jobs to reach a terminal state.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
	p.loops.Wait()
	p.jobs.Wait()
	p.deps.Logger.Info().Msg("Worker pool stopped")
}

func (p *Pool) Active() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

func (p *Pool) Connected() bool {
	return p.connected.Load()
}

// tick pops at most one job id when there is spare capacity.
func (p *Pool) tick(ctx context.Context) {
	if !p.connected.Load() || !p.acquire() {
		return
	}

	id, err := p.deps.Queue.Pop(ctx)
	if err != nil {
		p.release()
		var connErr *models.QueueConnectionError
		switch {
		case errors.Is(err, queue.ErrEmpty), ctx.Err() != nil:
		case errors.As(err, &connErr):
			p.deps.Logger.Warn().Err(err).Msg("Queue connection lost")
			p.connected.Store(false)
			p.reconnect(ctx)
		default:
			p.deps.Logger.Error().Err(err).Msg("Queue pop failed")
		}
		return
	}

	p.jobs.Add(1)
	go func() {
		defer p.jobs.Done()
		defer p.release()
		p.process(context.WithoutCancel(ctx), id)
	}()
}

// reconnect retries Connect every ReconnectDelay until it succeeds or the
// pool stops.
func (p *Pool) reconnect(ctx context.Context) {
	p.loops.Add(1)
	go func() {
		defer p.loops.Done()
		for attempt := 1; ; attempt++ {
			if err := utils.Sleep(ctx, p.cfg.ReconnectDelay.Std()); err != nil {
				return
			}
			if err := p.deps.Queue.Connect(ctx); err != nil {
				p.deps.Logger.Warn().Int("attempt", attempt).Err(err).Msg("Queue reconnect failed")
				continue
			}
			p.connected.Store(true)
			p.deps.Logger.Info().Int("attempt", attempt).Msg("Queue reconnected")
			return
		}
	}()
}

func (p *Pool) acquire() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active >= p.cfg.MaxConcurrent {
		return false
	}
	p.active++
	return true
}

func (p *Pool) release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active--
}

func (p *Pool) process(ctx context.Context, jobID string) {
	logger := p.deps.Logger.WithCorrelationId(jobID)

	job, err := p.deps.Jobs.MarkProcessing(ctx, jobID)
	if err != nil {
		logger.Warn().Err(err).Msg("Skipping job")
		return
	}

	start := time.Now()
	status := models.JobStatusFailed
	p.deps.Recorder.JobStarted()
	defer func() { p.deps.Recorder.JobFinished(status, time.Since(start)) }()

	logger.Info().Str("criteria", job.Criteria.String()).Msg("Processing job")

	listings, err := p.execute(ctx, logger, job)
	if err != nil {
		p.fail(ctx, logger, &models.JobFailure{JobID: jobID, Err: err})
		return
	}

	ids := make([]string, len(listings))
	for i, l := range listings {
		ids[i] = l.ID
	}
	if _, err := p.deps.Jobs.MarkCompleted(ctx, jobID, ids); err != nil {
		p.fail(ctx, logger, &models.JobFailure{JobID: jobID, Err: fmt.Errorf("mark completed: %w", err)})
		return
	}
	status = models.JobStatusCompleted
	logger.Info().Int("listings", len(ids)).Str("elapsed", time.Since(start).Round(time.Millisecond).String()).Msg("Job completed")

	if job.Criteria.Email != "" && p.deps.Notifier != nil {
		if err := p.deps.Notifier.Notify(ctx, job.Criteria.Email, listings, job.Criteria); err != nil {
			logger.Warn().Err(err).Msg("Notification failed")
		}
	}
}

// execute runs the search, post-processes it and persists every record.
// Individual upsert failures are skipped; losing all of them fails the job.
func (p *Pool) execute(ctx context.Context, logger arbor.ILogger, job models.ScrapeJob) (persisted []models.Listing, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()

	raw := p.deps.Runner.Run(ctx, job.Criteria, p.mode)
	results := p.deps.Pipeline.Apply(raw, job.Criteria)
	logger.Debug().Int("raw", len(raw)).Int("filtered", len(results)).Msg("Post-processing finished")

	persisted = make([]models.Listing, 0, len(results))
	var lastErr error
	for _, l := range results {
		saved, err := p.deps.Listings.Upsert(ctx, l)
		if err != nil {
			lastErr = err
			logger.Warn().Str("listing_id", l.ID).Err(err).Msg("Failed to persist listing")
			continue
		}
		persisted = append(persisted, saved)
	}
	if len(results) > 0 && len(persisted) == 0 {
		return nil, fmt.Errorf("persist listings: %w", lastErr)
	}
	return persisted, nil
}

func (p *Pool) fail(ctx context.Context, logger arbor.ILogger, failure *models.JobFailure) {
	logger.Error().Err(failure).Msg("Job failed")
	if _, err := p.deps.Jobs.MarkFailed(ctx, failure.JobID, failure.Err.Error()); err != nil {
		logger.Error().Err(err).Msg("Could not mark job failed")
	}
}

type noopRecorder struct{}

func (noopRecorder) JobStarted()                                {}
func (noopRecorder) JobFinished(models.JobStatus, time.Duration) {}
