package bulletin

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/net/html/charset"
	"golang.org/x/time/rate"

	"github.com/DeafMist/boletin-radar/internal/models"
)

// DefaultUserAgent is the client identifier sent with every search.
const DefaultUserAgent = "insomnia/2023.5.8"

// Fetcher posts search payloads to the bulletin endpoint and parses the
// results page.
type Fetcher struct {
	client    *http.Client
	searchURL string
	userAgent string
	limiter   *rate.Limiter
}

// Option customizes a Fetcher.
type Option func(*Fetcher)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *Fetcher) {
		if c != nil {
			f.client = c
		}
	}
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) Option {
	return func(f *Fetcher) {
		if ua != "" {
			f.userAgent = ua
		}
	}
}

// WithRateLimit spaces requests to at most rps per second. rps <= 0
// disables throttling.
func WithRateLimit(rps float64) Option {
	return func(f *Fetcher) {
		if rps > 0 {
			f.limiter = rate.NewLimiter(rate.Limit(rps), 1)
		} else {
			f.limiter = nil
		}
	}
}

// NewFetcher builds a Fetcher for searchURL.
func NewFetcher(searchURL string, opts ...Option) *Fetcher {
	f := &Fetcher{
		client:    &http.Client{Timeout: 30 * time.Second},
		searchURL: searchURL,
		userAgent: DefaultUserAgent,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch posts payload and returns the parsed results table. Network and
// HTTP failures come back as *TransportError; a page without a table comes
// back as ErrNoTable. Nothing is retried.
func (f *Fetcher) Fetch(ctx context.Context, payload string) (*models.Document, error) {
	if f.limiter != nil {
		if err := f.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("wait for fetch slot: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.searchURL, strings.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build bulletin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", f.userAgent)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, &TransportError{URL: f.searchURL, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return nil, &TransportError{URL: f.searchURL, StatusCode: resp.StatusCode}
	}

	body, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, &TransportError{URL: f.searchURL, Err: fmt.Errorf("decode body: %w", err)}
	}

	return Parse(body)
}
