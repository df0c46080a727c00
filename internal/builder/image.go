package builder

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"

	_ "golang.org/x/image/webp"

	"github.com/rkm/stac-layer/internal/bounds"
	"github.com/rkm/stac-layer/internal/layer"
)

// ImageBuilder loads images and wraps them into overlays.
type ImageBuilder struct {
	client *http.Client
	cfg    Config
	logger *slog.Logger
}

// NewImageBuilder creates an image builder.
func NewImageBuilder(client *http.Client, cfg Config, logger *slog.Logger) *ImageBuilder {
	if client == nil {
		client = NewHTTPClient(cfg.timeout())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ImageBuilder{client: client, cfg: cfg, logger: logger}
}

// BuildImageOverlay loads the image at url and returns an overlay bound to b.
// It returns nil when the image cannot be loaded or decoded in time; a
// broken image is routine, not an error.
func (ib *ImageBuilder) BuildImageOverlay(ctx context.Context, url string, b bounds.LatLngBounds, crossOrigin string) *layer.ImageOverlay {
	info, err := WithTimeout(ctx, ib.cfg.timeout(), func(ctx context.Context) (imageInfo, error) {
		return ib.load(ctx, url)
	})
	if err != nil {
		ib.logger.InfoContext(ctx, "image layer could not be loaded",
			slog.String("url", url),
			slog.String("error", err.Error()))
		return nil
	}

	l := layer.NewImageOverlay(url, b, crossOrigin)
	l.Width, l.Height = info.width, info.height
	l.Format = info.format
	l.Load()
	return l
}

type imageInfo struct {
	width, height int
	format        string
}

func (ib *ImageBuilder) load(ctx context.Context, url string) (imageInfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return imageInfo{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "image/*")
	req.Header.Set("User-Agent", ib.cfg.userAgent())

	resp, err := ib.client.Do(req)
	if err != nil {
		return imageInfo{}, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return imageInfo{}, fmt.Errorf("image request returned status %d", resp.StatusCode)
	}

	var body io.Reader = resp.Body
	if ib.cfg.MaxImageBytes > 0 {
		body = io.LimitReader(resp.Body, ib.cfg.MaxImageBytes)
	}
	cfg, format, err := image.DecodeConfig(body)
	if err != nil {
		return imageInfo{}, fmt.Errorf("failed to decode image: %w", err)
	}
	return imageInfo{width: cfg.Width, height: cfg.Height, format: format}, nil
}
