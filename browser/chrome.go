package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"property-scraper/config"
	"property-scraper/models"
	"property-scraper/utils"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/fetch"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
)

// ChromeLauncher starts headless Chrome through chromedp.
type ChromeLauncher struct {
	cfg    config.BrowserConfig
	logger arbor.ILogger
}

func NewChromeLauncher(cfg config.BrowserConfig, logger arbor.ILogger) *ChromeLauncher {
	return &ChromeLauncher{cfg: cfg, logger: logger}
}

func (l *ChromeLauncher) Launch(ctx context.Context, ep *models.ProxyEndpoint) (Browser, error) {
	proxyServer := ""
	if ep != nil {
		proxyServer = ep.ServerURL()
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), utils.StealthOpts(l.cfg.Headless, proxyServer)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// The first Run allocates the browser; it must use the long-lived context.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("start chrome: %w", err)
	}

	b := &chromeBrowser{
		cfg:           l.cfg,
		logger:        l.logger,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
	}
	if ep != nil {
		launched := *ep
		b.proxy = &launched
	}
	return b, nil
}

type chromeBrowser struct {
	cfg           config.BrowserConfig
	logger        arbor.ILogger
	proxy         *models.ProxyEndpoint
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

func (b *chromeBrowser) NewSession(ctx context.Context, identity utils.Identity) (Session, error) {
	s := &chromeSession{
		id:       uuid.NewString()[:8],
		browser:  b,
		identity: identity,
		logger:   b.logger,
	}
	if b.proxy != nil {
		ep := *b.proxy
		s.proxy = &ep
	}

	tabCtx, cancel := chromedp.NewContext(b.browserCtx)
	if err := s.configure(tabCtx); err != nil {
		cancel()
		return nil, err
	}
	s.tabCtx, s.tabCancel = tabCtx, cancel
	return s, nil
}

func (b *chromeBrowser) Close() error {
	b.browserCancel()
	b.allocCancel()
	return nil
}

type chromeSession struct {
	id       string
	browser  *chromeBrowser
	identity utils.Identity
	logger   arbor.ILogger

	mu               sync.Mutex
	tabCtx           context.Context
	tabCancel        context.CancelFunc
	proxy            *models.ProxyEndpoint
	browserContextID cdp.BrowserContextID
}

func (s *chromeSession) ID() string {
	return s.id
}

func (s *chromeSession) Proxy() (models.ProxyEndpoint, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.proxy == nil {
		return models.ProxyEndpoint{}, false
	}
	return *s.proxy, true
}

// configure applies identity, headers and request interception to a tab.
func (s *chromeSession) configure(tabCtx context.Context) error {
	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *fetch.EventRequestPaused:
			go s.handlePaused(tabCtx, e)
		case *fetch.EventAuthRequired:
			go s.handleAuth(tabCtx, e)
		}
	})

	actions := []chromedp.Action{
		network.Enable(),
		network.SetExtraHTTPHeaders(network.Headers(s.identity.Headers)),
		emulation.SetUserAgentOverride(s.identity.UserAgent).WithAcceptLanguage(s.identity.AcceptLanguage),
		chromedp.EmulateViewport(s.identity.Viewport.Width, s.identity.Viewport.Height),
		utils.HideWebDriver(),
	}
	if s.browser.cfg.BlockResources || s.hasCredentials() {
		actions = append(actions, fetch.Enable().
			WithPatterns([]*fetch.RequestPattern{{URLPattern: "*"}}).
			WithHandleAuthRequests(true))
	}

	if err := chromedp.Run(tabCtx, actions...); err != nil {
		return fmt.Errorf("configure session: %w", err)
	}
	return nil
}

func (s *chromeSession) hasCredentials() bool {
	ep, ok := s.Proxy()
	return ok && ep.HasCredentials()
}

func blockedResource(t network.ResourceType) bool {
	switch t {
	case network.ResourceTypeImage, network.ResourceTypeStylesheet, network.ResourceTypeFont, network.ResourceTypeMedia:
		return true
	}
	return false
}

func (s *chromeSession) handlePaused(tabCtx context.Context, e *fetch.EventRequestPaused) {
	c := chromedp.FromContext(tabCtx)
	if c == nil || c.Target == nil {
		return
	}
	exec := cdp.WithExecutor(tabCtx, c.Target)

	if s.browser.cfg.BlockResources && blockedResource(e.ResourceType) {
		_ = fetch.FailRequest(e.RequestID, network.ErrorReasonBlockedByClient).Do(exec)
		return
	}
	_ = fetch.ContinueRequest(e.RequestID).Do(exec)
}

func (s *chromeSession) handleAuth(tabCtx context.Context, e *fetch.EventAuthRequired) {
	c := chromedp.FromContext(tabCtx)
	if c == nil || c.Target == nil {
		return
	}
	exec := cdp.WithExecutor(tabCtx, c.Target)

	resp := &fetch.AuthChallengeResponse{Response: fetch.AuthChallengeResponseResponseDefault}
	if ep, ok := s.Proxy(); ok && ep.HasCredentials() {
		resp = &fetch.AuthChallengeResponse{
			Response: fetch.AuthChallengeResponseResponseProvideCredentials,
			Username: ep.Username,
			Password: ep.Password,
		}
	}
	if err := fetch.ContinueWithAuth(e.RequestID, resp).Do(exec); err != nil {
		s.logger.Warn().Err(err).Str("session", s.id).Msg("Proxy auth response failed")
	}
}

// UseProxy moves the session into a fresh browser context routed through ep.
func (s *chromeSession) UseProxy(ctx context.Context, ep models.ProxyEndpoint) error {
	if current, ok := s.Proxy(); ok && current.Key() == ep.Key() {
		return nil
	}

	var (
		contextID cdp.BrowserContextID
		targetID  target.ID
	)
	err := chromedp.Run(s.browser.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		exec := cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser)
		var err error
		contextID, err = target.CreateBrowserContext().WithProxyServer(ep.ServerURL()).Do(exec)
		if err != nil {
			return err
		}
		targetID, err = target.CreateTarget("about:blank").WithBrowserContextID(contextID).Do(exec)
		return err
	}))
	if err != nil {
		return fmt.Errorf("switch proxy to %s: %w", ep.Key(), err)
	}

	s.mu.Lock()
	previousProxy := s.proxy
	endpoint := ep
	s.proxy = &endpoint
	s.mu.Unlock()

	tabCtx, cancel := chromedp.NewContext(s.browser.browserCtx, chromedp.WithTargetID(targetID))
	if err := s.configure(tabCtx); err != nil {
		cancel()
		s.mu.Lock()
		s.proxy = previousProxy
		s.mu.Unlock()
		s.disposeContext(contextID)
		return err
	}

	s.mu.Lock()
	oldCancel, oldContextID := s.tabCancel, s.browserContextID
	s.tabCtx, s.tabCancel, s.browserContextID = tabCtx, cancel, contextID
	s.mu.Unlock()

	if oldCancel != nil {
		oldCancel()
	}
	if oldContextID != "" {
		s.disposeContext(oldContextID)
	}
	s.logger.Info().Str("session", s.id).Str("proxy", ep.Key()).Msg("Session switched proxy")
	return nil
}

func (s *chromeSession) disposeContext(id cdp.BrowserContextID) {
	_ = chromedp.Run(s.browser.browserCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		return target.DisposeBrowserContext(id).Do(cdp.WithExecutor(ctx, chromedp.FromContext(ctx).Browser))
	}))
}

// bind derives a context from the current tab that also ends when ctx does.
func (s *chromeSession) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	s.mu.Lock()
	tab := s.tabCtx
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(tab)
	if deadline, ok := ctx.Deadline(); ok {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithDeadline(runCtx, deadline)
		parentCancel := cancel
		cancel = func() {
			cancelDeadline()
			parentCancel()
		}
	}
	stop := context.AfterFunc(ctx, cancel)
	return runCtx, func() {
		stop()
		cancel()
	}
}

func (s *chromeSession) Navigate(ctx context.Context, url string) (PageStatus, error) {
	runCtx, cancel := s.bind(ctx)
	defer cancel()

	status := PageStatus{URL: url}
	resp, err := chromedp.RunResponse(runCtx, chromedp.Navigate(url))
	if resp != nil {
		status.StatusCode = int(resp.Status)
	}
	if err != nil {
		return status, err
	}

	if err := chromedp.Run(runCtx, chromedp.Title(&status.Title)); err != nil {
		return status, fmt.Errorf("read title: %w", err)
	}
	return status, nil
}

func (s *chromeSession) WaitReady(ctx context.Context, selector string) error {
	runCtx, cancel := s.bind(ctx)
	defer cancel()
	return chromedp.Run(runCtx, chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (s *chromeSession) AutoScroll(ctx context.Context, opts ScrollOptions) error {
	runCtx, cancel := s.bind(ctx)
	defer cancel()

	script := fmt.Sprintf(`(async () => {
		await new Promise((resolve) => {
			let total = 0;
			let iterations = 0;
			const timer = setInterval(() => {
				window.scrollBy(0, %d);
				total += %d;
				iterations++;
				if (total >= document.body.scrollHeight || total >= %d || iterations >= %d) {
					clearInterval(timer);
					resolve();
				}
			}, %d);
		});
		return true;
	})()`, opts.Step, opts.Step, opts.MaxDistance, opts.MaxIterations, opts.Interval.Milliseconds())

	var done bool
	return chromedp.Run(runCtx,
		chromedp.Evaluate(script, &done, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
		chromedp.Sleep(time.Second),
	)
}

func (s *chromeSession) HTML(ctx context.Context) (string, error) {
	runCtx, cancel := s.bind(ctx)
	defer cancel()

	var html string
	if err := chromedp.Run(runCtx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", err
	}
	return html, nil
}

func (s *chromeSession) Close() error {
	s.mu.Lock()
	cancel, contextID := s.tabCancel, s.browserContextID
	s.tabCancel, s.browserContextID = nil, ""
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if contextID != "" {
		s.disposeContext(contextID)
	}
	return nil
}

// IsProxyError reports whether a navigation error points at the proxy.
func IsProxyError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range []string{"ERR_PROXY", "ERR_TUNNEL", "ERR_NO_SUPPORTED_PROXIES", "ERR_SOCKS"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
