package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"property-scraper/browser"
	"property-scraper/models"
	"property-scraper/proxy"
	"property-scraper/utils"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"
)

// NavigationPolicy bounds one navigation.
type NavigationPolicy struct {
	MaxAttempts int
	Timeout     time.Duration
	BackoffBase time.Duration
}

// AttemptRecorder receives one call per navigation attempt.
type AttemptRecorder interface {
	NavigationAttempt(source models.Source, outcome string)
}

// Navigator loads pages with bounded retries, linear backoff, per-host rate
// limiting and proxy failover.
type Navigator struct {
	rotator  *proxy.Rotator
	markers  []string
	perHost  time.Duration
	logger   arbor.ILogger
	recorder AttemptRecorder

	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

func NewNavigator(rotator *proxy.Rotator, blockMarkers []string, perHost time.Duration, logger arbor.ILogger) *Navigator {
	markers := make([]string, 0, len(blockMarkers))
	for _, m := range blockMarkers {
		if m = strings.ToLower(strings.TrimSpace(m)); m != "" {
			markers = append(markers, m)
		}
	}
	return &Navigator{
		rotator:  rotator,
		markers:  markers,
		perHost:  perHost,
		logger:   logger,
		limiters: make(map[string]*rate.Limiter),
	}
}

func (n *Navigator) WithRecorder(r AttemptRecorder) *Navigator {
	n.recorder = r
	return n
}

type failureKind string

const (
	failureTransport failureKind = "transport"
	failureTimeout   failureKind = "timeout"
	failureStatus    failureKind = "http_status"
	failureBlocked   failureKind = "blocked"
)

type attemptError struct {
	kind   failureKind
	status int
	title  string
	err    error
}

func (e *attemptError) Error() string {
	switch e.kind {
	case failureStatus:
		return fmt.Sprintf("http status %d", e.status)
	case failureBlocked:
		return fmt.Sprintf("blocked page %q", e.title)
	default:
		return fmt.Sprintf("%s: %v", e.kind, e.err)
	}
}

func (e *attemptError) Unwrap() error {
	return e.err
}

// proxyFault reports whether the proxy is the apparent cause.
func (e *attemptError) proxyFault() bool {
	switch e.kind {
	case failureBlocked:
		return true
	case failureStatus:
		return e.status == http.StatusProxyAuthRequired
	case failureTransport:
		return browser.IsProxyError(e.err)
	}
	return false
}

// Navigate loads url in session. It returns *models.NavigationError once
// every attempt has failed.
func (n *Navigator) Navigate(ctx context.Context, session browser.Session, source models.Source, target string, policy NavigationPolicy) (browser.PageStatus, error) {
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 3
	}
	if policy.Timeout <= 0 {
		policy.Timeout = 30 * time.Second
	}

	var (
		status  browser.PageStatus
		lastErr *attemptError
	)
	err := utils.Retry(ctx, policy.MaxAttempts, utils.Linear(policy.BackoffBase), func(attempt int) error {
		if attempt > 1 {
			n.failover(ctx, session, source, lastErr)
		}
		if err := n.wait(ctx, target); err != nil {
			return fmt.Errorf("rate limit wait: %v: %w", err, utils.ErrPermanent)
		}

		n.logger.Debug().Str("source", string(source)).Str("url", target).Int("attempt", attempt).Msg("Navigating")

		var aerr *attemptError
		status, aerr = n.attempt(ctx, session, target, policy.Timeout)
		if aerr == nil {
			n.record(source, "success")
			return nil
		}

		lastErr = aerr
		n.record(source, string(aerr.kind))
		n.logger.Warn().
			Str("source", string(source)).
			Int("attempt", attempt).
			Int("max_attempts", policy.MaxAttempts).
			Err(aerr).
			Msg("Navigation attempt failed")
		if ctx.Err() != nil {
			return fmt.Errorf("%v: %w", aerr, utils.ErrPermanent)
		}
		return aerr
	})
	if err != nil {
		cause := err
		if lastErr != nil {
			cause = lastErr
		}
		if ctx.Err() != nil {
			cause = ctx.Err()
		}
		return status, &models.NavigationError{URL: target, Attempts: policy.MaxAttempts, Err: cause}
	}
	return status, nil
}

func (n *Navigator) attempt(ctx context.Context, session browser.Session, target string, timeout time.Duration) (browser.PageStatus, *attemptError) {
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	status, err := session.Navigate(attemptCtx, target)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return status, &attemptError{kind: failureTimeout, err: err}
		}
		if status.StatusCode >= 400 {
			return status, &attemptError{kind: failureStatus, status: status.StatusCode, err: err}
		}
		return status, &attemptError{kind: failureTransport, err: err}
	}
	if status.StatusCode >= 400 {
		return status, &attemptError{kind: failureStatus, status: status.StatusCode}
	}
	if n.blocked(status.Title) {
		return status, &attemptError{kind: failureBlocked, title: status.Title}
	}
	return status, nil
}

func (n *Navigator) blocked(title string) bool {
	title = strings.ToLower(title)
	for _, marker := range n.markers {
		if strings.Contains(title, marker) {
			return true
		}
	}
	return false
}

// failover marks the current proxy failed when it caused the last failure
// and moves the session to the rotator's next endpoint.
func (n *Navigator) failover(ctx context.Context, session browser.Session, source models.Source, last *attemptError) {
	if n.rotator == nil {
		return
	}

	current, hasCurrent := session.Proxy()
	if hasCurrent && last != nil && last.proxyFault() {
		n.rotator.MarkFailed(current)
		n.logger.Warn().Str("source", string(source)).Str("proxy", current.Key()).Msg("Proxy marked failed")
	}

	next, ok := n.rotator.Next()
	if !ok || (hasCurrent && next.Key() == current.Key()) {
		return
	}
	if err := session.UseProxy(ctx, next); err != nil {
		n.logger.Warn().Str("source", string(source)).Str("proxy", next.Key()).Err(err).Msg("Proxy switch failed")
	}
}

func (n *Navigator) wait(ctx context.Context, target string) error {
	if n.perHost <= 0 {
		return nil
	}
	return n.limiter(hostOf(target)).Wait(ctx)
}

func (n *Navigator) limiter(host string) *rate.Limiter {
	n.mu.Lock()
	defer n.mu.Unlock()
	l, ok := n.limiters[host]
	if !ok {
		l = rate.NewLimiter(rate.Every(n.perHost), 1)
		n.limiters[host] = l
	}
	return l
}

func (n *Navigator) record(source models.Source, outcome string) {
	if n.recorder != nil {
		n.recorder.NavigationAttempt(source, outcome)
	}
}

func hostOf(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Hostname() == "" {
		return "default"
	}
	return strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
}
