package models

import (
	"fmt"
	"time"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusFailed     JobStatus = "failed"
)

func (s JobStatus) Terminal() bool {
	return s == JobStatusCompleted || s == JobStatusFailed
}

// JobResult is set if and only if the job completed.
type JobResult struct {
	ListingIDs []string `json:"listing_ids"`
}

// ScrapeJob is the request envelope tracked through
// pending -> processing -> completed|failed.
type ScrapeJob struct {
	ID          string         `json:"id"`
	Criteria    SearchCriteria `json:"criteria"`
	Status      JobStatus      `json:"status"`
	Result      *JobResult     `json:"result,omitempty"`
	Error       string         `json:"error,omitempty"`
	SubmittedAt time.Time      `json:"submitted_at"`
	StartedAt   *time.Time     `json:"started_at,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

func NewScrapeJob(id string, criteria SearchCriteria, now time.Time) ScrapeJob {
	return ScrapeJob{
		ID:          id,
		Criteria:    criteria,
		Status:      JobStatusPending,
		SubmittedAt: now,
	}
}

func (j *ScrapeJob) Start(now time.Time) error {
	if j.Status != JobStatusPending {
		return j.invalid(JobStatusProcessing)
	}
	j.Status = JobStatusProcessing
	j.StartedAt = &now
	return nil
}

func (j *ScrapeJob) Complete(listingIDs []string, now time.Time) error {
	if j.Status != JobStatusProcessing {
		return j.invalid(JobStatusCompleted)
	}
	ids := make([]string, len(listingIDs))
	copy(ids, listingIDs)

	j.Status = JobStatusCompleted
	j.Result = &JobResult{ListingIDs: ids}
	j.Error = ""
	j.CompletedAt = &now
	return nil
}

func (j *ScrapeJob) Fail(message string, now time.Time) error {
	if j.Status != JobStatusProcessing {
		return j.invalid(JobStatusFailed)
	}
	if message == "" {
		message = "job failed"
	}
	j.Status = JobStatusFailed
	j.Result = nil
	j.Error = message
	j.CompletedAt = &now
	return nil
}

func (j *ScrapeJob) invalid(to JobStatus) error {
	return fmt.Errorf("job %s: %s -> %s: %w", j.ID, j.Status, to, ErrInvalidTransition)
}
