package browser

import (
	"context"
	"time"

	"property-scraper/models"
	"property-scraper/utils"
)

// PageStatus is what a navigation reports back.
type PageStatus struct {
	URL        string
	StatusCode int
	Title      string
}

type ScrollOptions struct {
	Step          int
	MaxDistance   int
	MaxIterations int
	Interval      time.Duration
}

func DefaultScrollOptions() ScrollOptions {
	return ScrollOptions{
		Step:          100,
		MaxDistance:   3000,
		MaxIterations: 40,
		Interval:      100 * time.Millisecond,
	}
}

// Session is one automation tab. Sessions are shared between adapters, so
// callers must only read page state they navigated to themselves.
type Session interface {
	ID() string
	Proxy() (models.ProxyEndpoint, bool)
	UseProxy(ctx context.Context, ep models.ProxyEndpoint) error
	Navigate(ctx context.Context, url string) (PageStatus, error)
	WaitReady(ctx context.Context, selector string) error
	AutoScroll(ctx context.Context, opts ScrollOptions) error
	HTML(ctx context.Context) (string, error)
	Close() error
}

// Browser owns the sessions created on one launched browser process.
type Browser interface {
	NewSession(ctx context.Context, identity utils.Identity) (Session, error)
	Close() error
}

// Launcher starts a browser, optionally routed through a proxy.
type Launcher interface {
	Launch(ctx context.Context, proxy *models.ProxyEndpoint) (Browser, error)
}
