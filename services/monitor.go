package services

import (
	"sort"
	"sync"
	"time"

	"property-scraper/models"
)

const maxMonitorErrors = 50

type SourceStats struct {
	Source      models.Source `json:"source"`
	Requests    int           `json:"requests"`
	Successes   int           `json:"successes"`
	Failures    int           `json:"failures"`
	Listings    int           `json:"listings"`
	LastSuccess *time.Time    `json:"last_success,omitempty"`
	LastError   string        `json:"last_error,omitempty"`
}

type MonitorError struct {
	Source  models.Source `json:"source"`
	Message string        `json:"message"`
	At      time.Time     `json:"at"`
}

type MonitorSnapshot struct {
	Sources []SourceStats  `json:"sources"`
	Errors  []MonitorError `json:"errors"`
}

// Monitor keeps per-source scraping counters and the most recent errors.
type Monitor struct {
	mu     sync.Mutex
	stats  map[models.Source]*SourceStats
	errors []MonitorError
	now    func() time.Time
}

func NewMonitor() *Monitor {
	return &Monitor{
		stats: make(map[models.Source]*SourceStats),
		now:   time.Now,
	}
}

func (m *Monitor) RecordSuccess(source models.Source, listings int) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.source(source)
	now := m.now()
	s.Requests++
	s.Successes++
	s.Listings += listings
	s.LastSuccess = &now
}

func (m *Monitor) RecordFailure(source models.Source, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	s := m.source(source)
	s.Requests++
	s.Failures++
	s.LastError = msg

	m.errors = append(m.errors, MonitorError{Source: source, Message: msg, At: m.now()})
	if len(m.errors) > maxMonitorErrors {
		m.errors = append([]MonitorError(nil), m.errors[len(m.errors)-maxMonitorErrors:]...)
	}
}

// Snapshot returns a copy, sources sorted by name and errors newest first.
func (m *Monitor) Snapshot() MonitorSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := MonitorSnapshot{
		Sources: make([]SourceStats, 0, len(m.stats)),
		Errors:  make([]MonitorError, 0, len(m.errors)),
	}
	for _, s := range m.stats {
		snap.Sources = append(snap.Sources, *s)
	}
	sort.Slice(snap.Sources, func(i, j int) bool { return snap.Sources[i].Source < snap.Sources[j].Source })
	for i := len(m.errors) - 1; i >= 0; i-- {
		snap.Errors = append(snap.Errors, m.errors[i])
	}
	return snap
}

func (m *Monitor) source(source models.Source) *SourceStats {
	s, ok := m.stats[source]
	if !ok {
		s = &SourceStats{Source: source}
		m.stats[source] = s
	}
	return s
}
