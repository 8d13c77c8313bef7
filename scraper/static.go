package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"property-scraper/models"
	"property-scraper/proxy"
	"property-scraper/utils"

	"github.com/gocolly/colly/v2"
)

// FetchError is a failed plain-HTTP fetch.
type FetchError struct {
	Status int
	Err    error
}

func (e *FetchError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("fetch error (status %d)", e.Status)
	}
	return fmt.Sprintf("fetch error (status %d): %v", e.Status, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// StaticFetcher downloads result pages without a browser. Adapters use it
// when the browser path is unavailable; pages that render listings
// client-side will parse to zero records, which is acceptable.
type StaticFetcher struct {
	timeout        time.Duration
	acceptLanguage string
	rotator        *proxy.Rotator
}

func NewStaticFetcher(timeout time.Duration, acceptLanguage string, rotator *proxy.Rotator) *StaticFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &StaticFetcher{timeout: timeout, acceptLanguage: acceptLanguage, rotator: rotator}
}

func (f *StaticFetcher) Fetch(ctx context.Context, target string) (string, error) {
	c := colly.NewCollector(colly.UserAgent(utils.RandomUserAgent()))
	c.SetRequestTimeout(f.timeout)

	if f.rotator != nil {
		if ep, ok := f.rotator.Next(); ok {
			if err := c.SetProxy(proxyURL(ep)); err != nil {
				return "", fmt.Errorf("set proxy %s: %w", ep.Key(), err)
			}
		}
	}

	var (
		body   []byte
		status int
		reqErr error
	)
	c.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		if f.acceptLanguage != "" {
			r.Headers.Set("Accept-Language", f.acceptLanguage)
		}
		r.Headers.Set("Accept", "text/html,application/xhtml+xml")
	})
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte(nil), r.Body...)
	})
	c.OnError(func(r *colly.Response, err error) {
		if r != nil {
			status = r.StatusCode
		}
		reqErr = err
	})

	if err := c.Visit(target); err != nil && reqErr == nil {
		reqErr = err
	}
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	if reqErr != nil {
		return "", &FetchError{Status: status, Err: reqErr}
	}
	if status >= http.StatusBadRequest {
		return "", &FetchError{Status: status}
	}
	return string(body), nil
}

func proxyURL(ep models.ProxyEndpoint) string {
	u := url.URL{
		Scheme: ep.Protocol,
		Host:   ep.Host + ":" + strconv.Itoa(ep.Port),
	}
	if u.Scheme == "" {
		u.Scheme = "http"
	}
	if ep.HasCredentials() {
		u.User = url.UserPassword(ep.Username, ep.Password)
	}
	return u.String()
}
