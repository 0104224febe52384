// Package fetchers retrieves issuer certificates named by the caIssuers
// access descriptions of the authorityInfoAccess extension.
package fetchers

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// Common errors
var (
	ErrFetchFailed      = errors.New("fetch failed")
	ErrResponseTooLarge = errors.New("response too large")
	ErrCertParseFailed  = errors.New("certificate parse failed")
	ErrNoIssuersFetched = errors.New("no issuers found via AIA")
)

// StatusError is a non-200 answer from an issuer URL.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %s: HTTP %d", ErrFetchFailed, e.URL, e.StatusCode)
}

func (e *StatusError) Unwrap() error {
	return ErrFetchFailed
}

// Temporary reports whether the status may change on a later attempt.
func (e *StatusError) Temporary() bool {
	switch {
	case e.StatusCode >= 500:
		return true
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	default:
		return false
	}
}

// FetcherConfig configures the fetcher behavior.
type FetcherConfig struct {
	// Timeout bounds each HTTP request, retries excluded.
	Timeout time.Duration
	// MaxResponseSize in bytes. Larger responses fail with ErrResponseTooLarge.
	MaxResponseSize int64
	UserAgent       string
	UseCache        bool
	CacheTTL        time.Duration

	// Parallelism limits concurrent downloads in FetchIssuers.
	Parallelism int

	// RetryConfig controls retries with exponential backoff. If nil,
	// DefaultRetryConfig is used.
	RetryConfig *RetryConfig

	// HTTPClient allows using a custom HTTP client, e.g. for a proxy.
	// If nil, a client with Timeout is created.
	HTTPClient *http.Client
}

// DefaultConfig returns the default fetcher configuration.
func DefaultConfig() *FetcherConfig {
	return &FetcherConfig{
		Timeout:         15 * time.Second,
		MaxResponseSize: 1 << 20,
		UserAgent:       "x509constraints/1.0",
		UseCache:        true,
		CacheTTL:        time.Hour,
		Parallelism:     4,
	}
}

// Fetcher downloads issuer certificates over HTTP. It is safe for
// concurrent use; simultaneous requests for one URL share a download.
type Fetcher struct {
	config   *FetcherConfig
	client   *http.Client
	cache    *responseCache
	inflight singleflight.Group
}

// NewFetcher creates a new fetcher.
func NewFetcher(config *FetcherConfig) *Fetcher {
	if config == nil {
		config = DefaultConfig()
	}

	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: config.Timeout}
	}

	return &Fetcher{
		config: config,
		client: client,
		cache:  newResponseCache(config.CacheTTL),
	}
}

// responseCache holds response bodies by URL until they expire.
type responseCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	now     func() time.Time
	entries map[string]cacheEntry
}

type cacheEntry struct {
	body    []byte
	expires time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	return &responseCache{
		ttl:     ttl,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

func (c *responseCache) get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if !c.now().Before(entry.expires) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.body, true
}

func (c *responseCache) set(key string, body []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cacheEntry{body: body, expires: c.now().Add(c.ttl)}
}

func (c *responseCache) clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	clear(c.entries)
}

// Fetch returns the body published at an http or https URL, retrying
// transient failures.
func (f *Fetcher) Fetch(ctx context.Context, urlStr string) ([]byte, error) {
	if f.config.UseCache {
		if body, ok := f.cache.get(urlStr); ok {
			return body, nil
		}
	}

	u, err := url.Parse(urlStr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URL: %v", ErrFetchFailed, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme: %s", ErrFetchFailed, u.Scheme)
	}

	// The shared download ignores cancellation of ctx; each caller stops
	// waiting when its own ctx ends.
	flight := f.inflight.DoChan(urlStr, func() (any, error) {
		body, err := Retry(context.WithoutCancel(ctx), f.config.RetryConfig, func(ctx context.Context) ([]byte, error) {
			return f.get(ctx, urlStr)
		})
		if err == nil && f.config.UseCache {
			f.cache.set(urlStr, body)
		}
		return body, err
	})

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, urlStr, ctx.Err())
	case res := <-flight:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (f *Fetcher) get(ctx context.Context, urlStr string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, urlStr, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	req.Header.Set("User-Agent", f.config.UserAgent)
	req.Header.Set("Accept", "application/pkix-cert, application/x-x509-ca-cert, application/x-pem-file")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, &StatusError{URL: urlStr, StatusCode: resp.StatusCode}
	}

	limit := f.config.MaxResponseSize
	body, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFetchFailed, err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", ErrResponseTooLarge, urlStr, limit)
	}
	return body, nil
}

// FetchCertificates fetches the certificates published at urlStr. A DER
// certificate and a PEM bundle are both accepted.
func (f *Fetcher) FetchCertificates(ctx context.Context, urlStr string) ([]*x509.Certificate, error) {
	body, err := f.Fetch(ctx, urlStr)
	if err != nil {
		return nil, err
	}

	if cert, err := x509.ParseCertificate(body); err == nil {
		return []*x509.Certificate{cert}, nil
	}
	certs, err := parseCertificatePEM(body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCertParseFailed, urlStr, err)
	}
	return certs, nil
}

// FetchIssuers fetches every certificate published at urls, keeping the
// order of urls. URLs that fail are skipped; an error is returned only if
// nothing could be fetched.
func (f *Fetcher) FetchIssuers(ctx context.Context, urls []string) ([]*x509.Certificate, error) {
	results := make([][]*x509.Certificate, len(urls))
	errs := make([]error, len(urls))

	var g errgroup.Group
	g.SetLimit(max(f.config.Parallelism, 1))
	for i, u := range urls {
		g.Go(func() error {
			results[i], errs[i] = f.FetchCertificates(ctx, u)
			return nil
		})
	}
	g.Wait()

	var issuers []*x509.Certificate
	for _, certs := range results {
		issuers = append(issuers, certs...)
	}
	if len(issuers) == 0 {
		return nil, errors.Join(append([]error{ErrNoIssuersFetched}, errs...)...)
	}
	return issuers, nil
}

// ClearCache drops every cached response.
func (f *Fetcher) ClearCache() {
	f.cache.clear()
}

// parseCertificatePEM parses the CERTIFICATE blocks of a PEM bundle.
func parseCertificatePEM(data []byte) ([]*x509.Certificate, error) {
	var certs []*x509.Certificate
	for block, rest := pem.Decode(data); block != nil; block, rest = pem.Decode(rest) {
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, err
		}
		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, errors.New("no certificates found")
	}
	return certs, nil
}
