// Package builder turns asset URLs into verified map layers: image overlays,
// tile layers and GeoTIFF raster layers. Every network-touching step is bounded
// by a timeout.
package builder

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// DefaultTimeout bounds image loads, tile checks and raster opens.
const DefaultTimeout = 5 * time.Second

// DefaultUserAgent is sent with every request.
const DefaultUserAgent = "stac-layer/1.0"

var (
	// ErrTimeout is returned when an operation exceeds its timeout.
	ErrTimeout = errors.New("timed out")
	// ErrNoTileTemplate is returned when a tile layer is requested without
	// a template.
	ErrNoTileTemplate = errors.New("no tile url template configured")
)

// Config holds settings shared by the builders.
type Config struct {
	Timeout       time.Duration
	UserAgent     string
	MaxImageBytes int64
}

func (c Config) timeout() time.Duration {
	if c.Timeout <= 0 {
		return DefaultTimeout
	}
	return c.Timeout
}

func (c Config) userAgent() string {
	if c.UserAgent == "" {
		return DefaultUserAgent
	}
	return c.UserAgent
}

// NewHTTPClient creates the client used by the builders.
func NewHTTPClient(timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout: timeout,
		Transport: &http.Transport{
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

type releaser interface {
	Release()
}

// WithTimeout runs fn with a context bounded by d and returns ErrTimeout if
// fn has not finished in time. A result arriving late is discarded and
// released when it holds resources.
func WithTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)

	type result struct {
		v   T
		err error
	}
	done := make(chan result, 1)
	go func() {
		defer cancel()
		v, err := fn(ctx)
		done <- result{v, err}
	}()

	select {
	case r := <-done:
		if r.err != nil && errors.Is(r.err, context.DeadlineExceeded) {
			return r.v, ErrTimeout
		}
		return r.v, r.err
	case <-ctx.Done():
		go func() {
			r := <-done
			if rel, ok := any(r.v).(releaser); ok && r.err == nil {
				rel.Release()
			}
		}()
		var zero T
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return zero, ErrTimeout
		}
		return zero, ctx.Err()
	}
}
