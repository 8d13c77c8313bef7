package storage

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"property-scraper/models"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"
)

const maxConflictRetries = 3

// JobStore tracks scrape jobs through their lifecycle. Every transition is
// a read-check-write inside one badger transaction.
type JobStore struct {
	db     *BadgerDB
	logger arbor.ILogger
	now    func() time.Time

	mu       sync.Mutex
	watchers map[string][]chan models.ScrapeJob
}

func NewJobStore(db *BadgerDB, logger arbor.ILogger) *JobStore {
	return &JobStore{
		db:       db,
		logger:   logger,
		now:      time.Now,
		watchers: make(map[string][]chan models.ScrapeJob),
	}
}

// Submit records a new pending job.
func (s *JobStore) Submit(ctx context.Context, criteria models.SearchCriteria) (models.ScrapeJob, error) {
	job := models.NewScrapeJob(uuid.NewString(), criteria, s.now().UTC())
	if err := s.db.Store().Insert(job.ID, job); err != nil {
		return models.ScrapeJob{}, fmt.Errorf("failed to save job: %w", err)
	}
	s.logger.Debug().Str("job_id", job.ID).Str("criteria", criteria.String()).Msg("Job submitted")
	return job, nil
}

func (s *JobStore) MarkProcessing(ctx context.Context, id string) (models.ScrapeJob, error) {
	return s.transition(id, func(j *models.ScrapeJob, now time.Time) error {
		return j.Start(now)
	})
}

func (s *JobStore) MarkCompleted(ctx context.Context, id string, listingIDs []string) (models.ScrapeJob, error) {
	return s.transition(id, func(j *models.ScrapeJob, now time.Time) error {
		return j.Complete(listingIDs, now)
	})
}

func (s *JobStore) MarkFailed(ctx context.Context, id string, message string) (models.ScrapeJob, error) {
	return s.transition(id, func(j *models.ScrapeJob, now time.Time) error {
		return j.Fail(message, now)
	})
}

func (s *JobStore) Get(ctx context.Context, id string) (models.ScrapeJob, error) {
	var job models.ScrapeJob
	if err := s.db.Store().Get(id, &job); err != nil {
		if errors.Is(err, badgerhold.ErrNotFound) {
			return models.ScrapeJob{}, fmt.Errorf("job %s: %w", id, models.ErrNotFound)
		}
		return models.ScrapeJob{}, fmt.Errorf("failed to get job: %w", err)
	}
	return job, nil
}

// ListByStatus returns jobs in the given status, oldest first.
func (s *JobStore) ListByStatus(ctx context.Context, status models.JobStatus) ([]models.ScrapeJob, error) {
	var jobs []models.ScrapeJob
	if err := s.db.Store().Find(&jobs, badgerhold.Where("Status").Eq(status)); err != nil {
		return nil, fmt.Errorf("failed to list jobs: %w", err)
	}
	sort.SliceStable(jobs, func(i, j int) bool { return jobs[i].SubmittedAt.Before(jobs[j].SubmittedAt) })
	return jobs, nil
}

// Watch returns a channel that receives the job once it is completed or
// failed, then closes. It closes without a value for unknown ids.
func (s *JobStore) Watch(id string) <-chan models.ScrapeJob {
	ch := make(chan models.ScrapeJob, 1)

	s.mu.Lock()
	s.watchers[id] = append(s.watchers[id], ch)
	s.mu.Unlock()

	job, err := s.Get(context.Background(), id)
	switch {
	case errors.Is(err, models.ErrNotFound):
		s.drop(id, ch)
	case err == nil && job.Status.Terminal():
		s.deliver(job)
	}
	return ch
}

func (s *JobStore) transition(id string, apply func(*models.ScrapeJob, time.Time) error) (models.ScrapeJob, error) {
	var (
		job models.ScrapeJob
		err error
	)
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		err = s.db.Store().Badger().Update(func(tx *badger.Txn) error {
			job = models.ScrapeJob{}
			if err := s.db.Store().TxGet(tx, id, &job); err != nil {
				if errors.Is(err, badgerhold.ErrNotFound) {
					return fmt.Errorf("job %s: %w", id, models.ErrNotFound)
				}
				return err
			}
			if err := apply(&job, s.now().UTC()); err != nil {
				return err
			}
			return s.db.Store().TxUpdate(tx, id, job)
		})
		if !errors.Is(err, badger.ErrConflict) {
			break
		}
	}
	if err != nil {
		return models.ScrapeJob{}, err
	}

	s.logger.Debug().Str("job_id", id).Str("status", string(job.Status)).Msg("Job transitioned")
	if job.Status.Terminal() {
		s.deliver(job)
	}
	return job, nil
}

func (s *JobStore) deliver(job models.ScrapeJob) {
	s.mu.Lock()
	chans := s.watchers[job.ID]
	delete(s.watchers, job.ID)
	s.mu.Unlock()

	for _, ch := range chans {
		ch <- job
		close(ch)
	}
}

func (s *JobStore) drop(id string, ch chan models.ScrapeJob) {
	s.mu.Lock()
	defer s.mu.Unlock()

	chans := s.watchers[id]
	for i, c := range chans {
		if c == ch {
			chans = append(chans[:i], chans[i+1:]...)
			break
		}
	}
	if len(chans) == 0 {
		delete(s.watchers, id)
	} else {
		s.watchers[id] = chans
	}
	close(ch)
}
