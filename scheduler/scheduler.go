package scheduler

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	_ "time/tzdata"

	"property-scraper/models"

	"github.com/google/uuid"
	"github.com/robfig/cron/v3"
	"github.com/ternarybob/arbor"
)

// Submitter creates a scrape job. services.JobService satisfies it.
type Submitter interface {
	Submit(ctx context.Context, criteria models.SearchCriteria) (models.ScrapeJob, error)
}

// Schedule is a saved search that runs once a day at Time (HH:MM).
type Schedule struct {
	ID        string                `json:"id"`
	Time      string                `json:"time"`
	Criteria  models.SearchCriteria `json:"criteria"`
	CreatedAt time.Time             `json:"created_at"`
	LastRun   *time.Time            `json:"last_run,omitempty"`
	LastJobID string                `json:"last_job_id,omitempty"`
	LastError string                `json:"last_error,omitempty"`
	NextRun   *time.Time            `json:"next_run,omitempty"`
}

type entry struct {
	schedule Schedule
	cronID   cron.EntryID
}

// Scheduler registers daily cron entries that submit scrape jobs.
// Schedules live in memory.
type Scheduler struct {
	cron      *cron.Cron
	submitter Submitter
	logger    arbor.ILogger
	loc       *time.Location

	mu      sync.Mutex
	entries map[string]*entry
	running bool
}

func New(submitter Submitter, timezone string, logger arbor.ILogger) (*Scheduler, error) {
	loc := time.Local
	if timezone != "" {
		l, err := time.LoadLocation(timezone)
		if err != nil {
			return nil, fmt.Errorf("invalid scheduler timezone %q: %w", timezone, err)
		}
		loc = l
	}

	return &Scheduler{
		cron:      cron.New(cron.WithLocation(loc)),
		submitter: submitter,
		logger:    logger,
		loc:       loc,
		entries:   make(map[string]*entry),
	}, nil
}

func (s *Scheduler) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.cron.Start()
	s.running = true
	s.logger.Info().Str("timezone", s.loc.String()).Int("schedules", len(s.entries)).Msg("Scheduler started")
}

// Stop halts the cron and waits for running submissions until ctx ends.
func (s *Scheduler) Stop(ctx context.Context) {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	select {
	case <-s.cron.Stop().Done():
	case <-ctx.Done():
		s.logger.Warn().Msg("Scheduler stop timed out")
	}
	s.logger.Info().Msg("Scheduler stopped")
}

// Add validates and registers a daily search.
func (s *Scheduler) Add(at string, criteria models.SearchCriteria) (Schedule, error) {
	spec, err := cronSpec(at)
	if err != nil {
		return Schedule{}, err
	}
	if err := criteria.Validate(); err != nil {
		return Schedule{}, err
	}

	sched := Schedule{
		ID:        uuid.NewString(),
		Time:      strings.TrimSpace(at),
		Criteria:  criteria,
		CreatedAt: time.Now().In(s.loc),
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := sched.ID
	cronID, err := s.cron.AddFunc(spec, func() { s.run(id) })
	if err != nil {
		return Schedule{}, fmt.Errorf("failed to register schedule: %w", err)
	}
	s.entries[id] = &entry{schedule: sched, cronID: cronID}

	s.logger.Info().
		Str("schedule_id", id).
		Str("time", sched.Time).
		Strs("areas", criteria.Areas).
		Msg("Schedule added")
	return s.snapshot(s.entries[id]), nil
}

func (s *Scheduler) Remove(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return fmt.Errorf("schedule %s: %w", id, models.ErrNotFound)
	}
	s.cron.Remove(e.cronID)
	delete(s.entries, id)
	s.logger.Info().Str("schedule_id", id).Msg("Schedule removed")
	return nil
}

func (s *Scheduler) Get(id string) (Schedule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.entries[id]
	if !ok {
		return Schedule{}, fmt.Errorf("schedule %s: %w", id, models.ErrNotFound)
	}
	return s.snapshot(e), nil
}

// List returns every schedule ordered by time of day.
func (s *Scheduler) List() []Schedule {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]Schedule, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, s.snapshot(e))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Time == out[j].Time {
			return out[i].ID < out[j].ID
		}
		return out[i].Time < out[j].Time
	})
	return out
}

func (s *Scheduler) snapshot(e *entry) Schedule {
	sched := e.schedule
	if next := s.cron.Entry(e.cronID).Next; !next.IsZero() {
		sched.NextRun = &next
	}
	return sched
}

func (s *Scheduler) run(id string) {
	s.mu.Lock()
	e, ok := s.entries[id]
	if !ok {
		s.mu.Unlock()
		return
	}
	criteria := e.schedule.Criteria
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	job, err := s.submitter.Submit(ctx, criteria)
	now := time.Now().In(s.loc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok = s.entries[id]; !ok {
		return
	}
	e.schedule.LastRun = &now
	if err != nil {
		e.schedule.LastError = err.Error()
		s.logger.Error().Str("schedule_id", id).Err(err).Msg("Scheduled search failed to submit")
		return
	}
	e.schedule.LastError = ""
	e.schedule.LastJobID = job.ID
	s.logger.Info().Str("schedule_id", id).Str("job_id", job.ID).Msg("Scheduled search submitted")
}

// cronSpec turns "HH:MM" into a daily five-field cron expression.
func cronSpec(at string) (string, error) {
	t, err := time.Parse("15:04", strings.TrimSpace(at))
	if err != nil {
		return "", &models.ValidationError{Field: "time", Message: "must be HH:MM"}
	}
	return fmt.Sprintf("%d %d * * *", t.Minute(), t.Hour()), nil
}
