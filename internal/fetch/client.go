// Package fetch retrieves STAC documents over HTTP and keeps recently used
// documents in an expiring LRU cache.
package fetch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/rkm/stac-layer/internal/metrics"
)

const (
	DefaultTimeout   = 10 * time.Second
	DefaultCacheSize = 256
	DefaultCacheTTL  = 5 * time.Minute
	DefaultMaxBytes  = 16 << 20
)

var (
	// ErrInvalidURL is returned for URLs that are not absolute http(s) URLs.
	ErrInvalidURL = errors.New("invalid document url")
	// ErrUpstream wraps every failure of the remote server.
	ErrUpstream = errors.New("upstream request failed")
	// ErrTooLarge is returned when a document exceeds the size limit.
	ErrTooLarge = errors.New("document too large")
)

// Config holds the fetcher settings. Zero values select the defaults.
type Config struct {
	Timeout   time.Duration
	CacheSize int
	CacheTTL  time.Duration
	UserAgent string
	MaxBytes  int64
}

// Client fetches STAC documents.
type Client struct {
	httpClient *http.Client
	cache      *expirable.LRU[string, []byte]
	userAgent  string
	maxBytes   int64
	metrics    *metrics.Engine
	logger     *slog.Logger
}

// NewClient creates a document client. A negative cache size disables
// caching.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.CacheSize == 0 {
		cfg.CacheSize = DefaultCacheSize
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = DefaultCacheTTL
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "stac-layer/1.0"
	}

	c := &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 100,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		userAgent: cfg.UserAgent,
		maxBytes:  cfg.MaxBytes,
		logger:    slog.Default(),
	}
	if cfg.CacheSize > 0 {
		c.cache = expirable.NewLRU[string, []byte](cfg.CacheSize, nil, cfg.CacheTTL)
	}
	return c
}

// WithLogger sets a custom logger for the client
func (c *Client) WithLogger(logger *slog.Logger) *Client {
	c.logger = logger
	return c
}

// WithMetrics records cache hits and misses.
func (c *Client) WithMetrics(m *metrics.Engine) *Client {
	c.metrics = m
	return c
}

// Fetch returns the document at rawURL, from the cache when possible.
func (c *Client) Fetch(ctx context.Context, rawURL string) ([]byte, error) {
	u, err := url.Parse(rawURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrInvalidURL, rawURL)
	}
	key := u.String()

	if c.cache != nil {
		if body, ok := c.cache.Get(key); ok {
			c.metrics.IncCacheHit()
			c.logger.DebugContext(ctx, "document served from cache", slog.String("url", key))
			return body, nil
		}
		c.metrics.IncCacheMiss()
	}

	body, err := c.get(ctx, key)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		c.cache.Add(key, body)
	}
	return body, nil
}

// Purge drops every cached document.
func (c *Client) Purge() {
	if c.cache != nil {
		c.cache.Purge()
	}
}

func (c *Client) get(ctx context.Context, docURL string) ([]byte, error) {
	c.logger.DebugContext(ctx, "fetching document", slog.String("url", docURL))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, docURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json, application/geo+json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.ErrorContext(ctx, "document request failed",
			slog.String("error", err.Error()),
			slog.String("url", docURL),
		)
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		c.logger.ErrorContext(ctx, "document server returned non-200 status",
			slog.Int("status_code", resp.StatusCode),
			slog.String("response_body", string(body)),
		)
		return nil, fmt.Errorf("%w: status %d: %s", ErrUpstream, resp.StatusCode, string(body))
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read body: %w", ErrUpstream, err)
	}
	if int64(len(body)) > c.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, c.maxBytes)
	}

	c.logger.DebugContext(ctx, "document fetched",
		slog.String("url", docURL),
		slog.Int("bytes", len(body)),
	)
	return body, nil
}
