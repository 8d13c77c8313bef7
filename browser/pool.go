package browser

import (
	"context"
	"fmt"
	"math/rand"
	"sync"

	"property-scraper/config"
	"property-scraper/models"
	"property-scraper/proxy"
	"property-scraper/utils"

	"github.com/ternarybob/arbor"
)

// Pool owns a bounded set of shared browser sessions on a single browser.
// Initialization is lazy and shared: concurrent first callers wait on the
// same launch instead of starting duplicate browsers.
type Pool struct {
	cfg      config.BrowserConfig
	launcher Launcher
	rotator  *proxy.Rotator
	logger   arbor.ILogger

	mu          sync.Mutex
	browser     Browser
	sessions    []Session
	activeProxy *models.ProxyEndpoint
	initDone    chan struct{}
	initErr     error
}

type PoolStats struct {
	Initialized bool   `json:"initialized"`
	Sessions    int    `json:"sessions"`
	MaxSessions int    `json:"max_sessions"`
	ActiveProxy string `json:"active_proxy,omitempty"`
}

func NewPool(cfg config.BrowserConfig, launcher Launcher, rotator *proxy.Rotator, logger arbor.ILogger) *Pool {
	if cfg.MaxSessions < 1 {
		cfg.MaxSessions = 3
	}
	return &Pool{
		cfg:      cfg,
		launcher: launcher,
		rotator:  rotator,
		logger:   logger,
	}
}

// Init launches the browser if it is not running yet.
func (p *Pool) Init(ctx context.Context) error {
	_, err := p.ensureBrowser(ctx)
	return err
}

func (p *Pool) ensureBrowser(ctx context.Context) (Browser, error) {
	p.mu.Lock()
	if p.browser != nil {
		b := p.browser
		p.mu.Unlock()
		return b, nil
	}

	wait := p.initDone
	if wait == nil {
		wait = make(chan struct{})
		p.initDone = wait
		p.mu.Unlock()
		p.launch(wait)
	} else {
		p.mu.Unlock()
	}

	select {
	case <-wait:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.browser == nil {
		if p.initErr != nil {
			return nil, p.initErr
		}
		return nil, fmt.Errorf("browser pool shut down during init")
	}
	return p.browser, nil
}

// launch runs on a background context: a caller giving up must not kill a
// browser other callers are waiting for.
func (p *Pool) launch(done chan struct{}) {
	var ep *models.ProxyEndpoint
	if p.rotator != nil {
		if next, ok := p.rotator.Next(); ok {
			ep = &next
		}
	}

	if ep != nil {
		p.logger.Info().Str("proxy", ep.Key()).Bool("auth", ep.HasCredentials()).Msg("Launching browser through proxy")
	} else {
		p.logger.Info().Msg("Launching browser without proxy")
	}

	b, err := p.launcher.Launch(context.Background(), ep)

	p.mu.Lock()
	if err != nil {
		p.initErr = fmt.Errorf("launch browser: %w", err)
		p.initDone = nil
		if ep != nil && p.rotator != nil {
			p.rotator.MarkFailed(*ep)
		}
		p.logger.Error().Err(err).Msg("Browser launch failed")
	} else {
		p.browser = b
		p.initErr = nil
		p.activeProxy = ep
		p.logger.Info().Int("max_sessions", p.cfg.MaxSessions).Msg("Browser pool ready")
	}
	p.mu.Unlock()
	close(done)
}

// Acquire returns a new session while the pool has capacity, otherwise a
// uniformly random existing one.
func (p *Pool) Acquire(ctx context.Context) (Session, error) {
	b, err := p.ensureBrowser(ctx)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.browser != b {
		return nil, fmt.Errorf("browser pool shut down")
	}

	if len(p.sessions) < p.cfg.MaxSessions {
		identity := utils.RandomIdentity(p.cfg.AcceptLanguage)
		s, err := b.NewSession(ctx, identity)
		if err != nil {
			return nil, fmt.Errorf("create session: %w", err)
		}
		p.sessions = append(p.sessions, s)
		p.logger.Debug().
			Str("session", s.ID()).
			Int("sessions", len(p.sessions)).
			Msgf("Session created (%dx%d)", identity.Viewport.Width, identity.Viewport.Height)
		return s, nil
	}

	return p.sessions[rand.Intn(len(p.sessions))], nil
}

// Release is a no-op: sessions stay in the pool for reuse.
func (p *Pool) Release(Session) {}

// Shutdown closes every session and the browser and clears the pool. A later
// Acquire starts a fresh browser.
func (p *Pool) Shutdown() {
	p.mu.Lock()
	sessions := p.sessions
	b := p.browser
	p.sessions = nil
	p.browser = nil
	p.activeProxy = nil
	p.initDone = nil
	p.initErr = nil
	p.mu.Unlock()

	for _, s := range sessions {
		if err := s.Close(); err != nil {
			p.logger.Warn().Err(err).Str("session", s.ID()).Msg("Failed to close session")
		}
	}
	if b != nil {
		if err := b.Close(); err != nil {
			p.logger.Warn().Err(err).Msg("Failed to close browser")
		}
		p.logger.Info().Int("sessions", len(sessions)).Msg("Browser pool shut down")
	}
}

func (p *Pool) ActiveProxy() (models.ProxyEndpoint, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.activeProxy == nil {
		return models.ProxyEndpoint{}, false
	}
	return *p.activeProxy, true
}

func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	stats := PoolStats{
		Initialized: p.browser != nil,
		Sessions:    len(p.sessions),
		MaxSessions: p.cfg.MaxSessions,
	}
	if p.activeProxy != nil {
		stats.ActiveProxy = p.activeProxy.Key()
	}
	return stats
}
