package proxy

import (
	"sync"

	"property-scraper/models"
)

// Rotator hands out proxy endpoints. The primary endpoint is preferred while
// it is healthy; otherwise healthy endpoints are used round-robin. Once every
// endpoint has failed the failed set is cleared so rotation never starves.
type Rotator struct {
	mu         sync.Mutex
	endpoints  []models.ProxyEndpoint
	primaryKey string
	failed     map[string]bool
	next       int
}

func NewRotator(endpoints []models.ProxyEndpoint, primaryKey string) *Rotator {
	eps := make([]models.ProxyEndpoint, len(endpoints))
	copy(eps, endpoints)
	return &Rotator{
		endpoints:  eps,
		primaryKey: primaryKey,
		failed:     make(map[string]bool),
	}
}

// Next returns the endpoint to use for the next attempt. ok is false when no
// endpoints are configured, meaning connections go out directly.
func (r *Rotator) Next() (models.ProxyEndpoint, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.endpoints) == 0 {
		return models.ProxyEndpoint{}, false
	}

	if r.primaryKey != "" && !r.failed[r.primaryKey] {
		for _, ep := range r.endpoints {
			if ep.Key() == r.primaryKey {
				return ep, true
			}
		}
	}

	available := make([]models.ProxyEndpoint, 0, len(r.endpoints))
	for _, ep := range r.endpoints {
		if !r.failed[ep.Key()] {
			available = append(available, ep)
		}
	}

	if len(available) == 0 {
		r.failed = make(map[string]bool)
		r.next = 0
		return r.endpoints[0], true
	}

	ep := available[r.next%len(available)]
	r.next++
	return ep, true
}

func (r *Rotator) MarkFailed(ep models.ProxyEndpoint) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed[ep.Key()] = true
}

func (r *Rotator) IsFailed(ep models.ProxyEndpoint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failed[ep.Key()]
}

func (r *Rotator) FailedCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.failed)
}

func (r *Rotator) Endpoints() []models.ProxyEndpoint {
	r.mu.Lock()
	defer r.mu.Unlock()
	eps := make([]models.ProxyEndpoint, len(r.endpoints))
	copy(eps, r.endpoints)
	return eps
}
