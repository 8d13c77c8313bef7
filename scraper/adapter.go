package scraper

import (
	"context"
	"fmt"
	"time"

	"property-scraper/browser"
	"property-scraper/models"
	"property-scraper/utils"

	"github.com/ternarybob/arbor"
)

// Adapter extracts listings from one source. Element-level problems are
// logged and skipped; an error means the whole source failed.
type Adapter interface {
	Source() models.Source
	Extract(ctx context.Context, criteria models.SearchCriteria) ([]models.Listing, error)
}

// SessionProvider hands out shared browser sessions.
type SessionProvider interface {
	Acquire(ctx context.Context) (browser.Session, error)
	Release(browser.Session)
}

type AdapterOptions struct {
	Sessions          SessionProvider
	Navigator         *Navigator
	Static            *StaticFetcher
	MaxAttempts       int
	NavigationTimeout time.Duration
	ReadyTimeout      time.Duration
	Scroll            browser.ScrollOptions
	Logger            arbor.ILogger
	Now               func() time.Time
}

// BrowserAdapter runs a Definition against a live browser session, falling
// back to a plain HTTP fetch when the browser path fails.
type BrowserAdapter struct {
	def  Definition
	opts AdapterOptions
}

func NewBrowserAdapter(def Definition, opts AdapterOptions) *BrowserAdapter {
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = 15 * time.Second
	}
	if opts.Scroll.Step <= 0 {
		opts.Scroll = browser.DefaultScrollOptions()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &BrowserAdapter{def: def, opts: opts}
}

func (a *BrowserAdapter) Source() models.Source {
	return a.def.Source
}

func (a *BrowserAdapter) Definition() Definition {
	return a.def
}

func (a *BrowserAdapter) Extract(ctx context.Context, criteria models.SearchCriteria) ([]models.Listing, error) {
	logger := a.opts.Logger
	target := a.def.SearchURL(criteria)
	logger.Info().Str("source", string(a.def.Source)).Str("url", target).Msg("Extracting listings")

	html, err := a.fetchLive(ctx, target)
	if err != nil {
		if a.opts.Static == nil {
			return nil, err
		}
		logger.Warn().Str("source", string(a.def.Source)).Err(err).Msg("Browser fetch failed, trying static fetch")
		var staticErr error
		html, staticErr = a.opts.Static.Fetch(ctx, target)
		if staticErr != nil {
			return nil, fmt.Errorf("browser: %v; static: %w", err, staticErr)
		}
	}

	result, err := ParseListings(html, a.def, criteria, a.opts.Now())
	if err != nil {
		return nil, err
	}
	for _, skipped := range result.Skipped {
		logger.Debug().Str("source", string(a.def.Source)).Err(skipped).Msg("Skipped listing element")
	}
	logger.Info().
		Str("source", string(a.def.Source)).
		Str("strategy", result.Strategy).
		Int("listings", len(result.Listings)).
		Int("skipped", len(result.Skipped)).
		Msg("Extraction finished")

	// A cancelled settle still returns what was read.
	_ = utils.RandomDelay(ctx, a.def.SettleMin, a.def.SettleMax)
	return result.Listings, nil
}

func (a *BrowserAdapter) fetchLive(ctx context.Context, target string) (string, error) {
	if a.opts.Sessions == nil || a.opts.Navigator == nil {
		return "", fmt.Errorf("no browser configured")
	}

	session, err := a.opts.Sessions.Acquire(ctx)
	if err != nil {
		return "", fmt.Errorf("acquire session: %w", err)
	}
	defer a.opts.Sessions.Release(session)

	policy := NavigationPolicy{
		MaxAttempts: a.opts.MaxAttempts,
		Timeout:     a.opts.NavigationTimeout,
		BackoffBase: a.def.BackoffBase,
	}
	if _, err := a.opts.Navigator.Navigate(ctx, session, a.def.Source, target, policy); err != nil {
		return "", err
	}

	if a.def.ReadySelector != "" {
		readyCtx, cancel := context.WithTimeout(ctx, a.opts.ReadyTimeout)
		err := session.WaitReady(readyCtx, a.def.ReadySelector)
		cancel()
		if err != nil {
			a.opts.Logger.Warn().Str("source", string(a.def.Source)).Err(err).Msg("Ready selector not found, parsing anyway")
		}
	}

	if err := session.AutoScroll(ctx, a.opts.Scroll); err != nil {
		a.opts.Logger.Debug().Str("source", string(a.def.Source)).Err(err).Msg("Auto-scroll failed")
	}

	return session.HTML(ctx)
}
