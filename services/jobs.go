package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"property-scraper/models"
	"property-scraper/queue"
	"property-scraper/storage"

	"github.com/ternarybob/arbor"
)

var ErrQueueUnavailable = errors.New("job queue unavailable")

// JobView is a job as returned to clients. Listings is only filled once the
// job completed.
type JobView struct {
	models.ScrapeJob
	Listings []models.Listing `json:"listings,omitempty"`
}

// JobService is the entry point for submitting and inspecting scrape jobs.
type JobService struct {
	jobs     *storage.JobStore
	queue    queue.Queue
	listings storage.ListingStore
	logger   arbor.ILogger
	now      func() time.Time
}

func NewJobService(jobs *storage.JobStore, q queue.Queue, listings storage.ListingStore, logger arbor.ILogger) *JobService {
	return &JobService{
		jobs:     jobs,
		queue:    q,
		listings: listings,
		logger:   logger,
		now:      time.Now,
	}
}

// Submit validates criteria, records a pending job and enqueues it. When the
// queue rejects the id the job is failed so it never sits pending forever.
func (s *JobService) Submit(ctx context.Context, criteria models.SearchCriteria) (models.ScrapeJob, error) {
	if err := criteria.Validate(); err != nil {
		return models.ScrapeJob{}, err
	}

	job, err := s.jobs.Submit(ctx, criteria)
	if err != nil {
		return models.ScrapeJob{}, err
	}

	if err := s.queue.Push(ctx, job.ID); err != nil {
		s.logger.Error().Str("job_id", job.ID).Err(err).Msg("Failed to enqueue job")
		s.abandon(ctx, job.ID, err)
		return models.ScrapeJob{}, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	s.logger.Info().Str("job_id", job.ID).Strs("areas", criteria.Areas).Msg("Job submitted")
	return job, nil
}

func (s *JobService) abandon(ctx context.Context, id string, cause error) {
	if _, err := s.jobs.MarkProcessing(ctx, id); err != nil {
		s.logger.Warn().Str("job_id", id).Err(err).Msg("Could not abandon job")
		return
	}
	if _, err := s.jobs.MarkFailed(ctx, id, "enqueue failed: "+cause.Error()); err != nil {
		s.logger.Warn().Str("job_id", id).Err(err).Msg("Could not abandon job")
	}
}

func (s *JobService) Status(ctx context.Context, id string) (models.ScrapeJob, error) {
	return s.jobs.Get(ctx, id)
}

// View returns the job together with its listings when it completed.
func (s *JobService) View(ctx context.Context, id string) (JobView, error) {
	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return JobView{}, err
	}

	view := JobView{ScrapeJob: job}
	if job.Status == models.JobStatusCompleted && job.Result != nil {
		listings, err := s.listings.GetByIDs(ctx, job.Result.ListingIDs)
		if err != nil {
			return JobView{}, err
		}
		view.Listings = listings
	}
	return view, nil
}

// Wait blocks until the job reaches a terminal state or ctx ends.
func (s *JobService) Wait(ctx context.Context, id string) (models.ScrapeJob, error) {
	select {
	case job, ok := <-s.jobs.Watch(id):
		if !ok {
			return models.ScrapeJob{}, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
		}
		return job, nil
	case <-ctx.Done():
		return models.ScrapeJob{}, ctx.Err()
	}
}

// Listings queries stored listings with the same filters a job would apply.
func (s *JobService) Listings(ctx context.Context, criteria models.SearchCriteria, limit int) ([]models.Listing, error) {
	filter := storage.FilterFromCriteria(criteria, s.now())
	if limit > 0 {
		filter.Limit = limit
	}
	return s.listings.QueryByFilters(ctx, filter)
}

func (s *JobService) QueueDepth(ctx context.Context) (int64, error) {
	return s.queue.Len(ctx)
}
