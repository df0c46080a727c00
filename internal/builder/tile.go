package builder

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"
	"net/http"
	"regexp"
	"strconv"

	"github.com/paulmach/orb/maptile"

	"github.com/rkm/stac-layer/internal/bounds"
	"github.com/rkm/stac-layer/internal/layer"
)

// CheckZoom is the zoom level of the tile requested to verify a tile layer.
const CheckZoom maptile.Zoom = 10

var placeholder = regexp.MustCompile(`\{ *([\w\-]+) *\}`)

// ExpandTemplate replaces {name} placeholders with values. A placeholder
// without a value is an error.
func ExpandTemplate(template string, values map[string]string) (string, error) {
	var missing string
	out := placeholder.ReplaceAllStringFunc(template, func(m string) string {
		key := placeholder.FindStringSubmatch(m)[1]
		v, ok := values[key]
		if !ok && missing == "" {
			missing = key
		}
		return v
	})
	if missing != "" {
		return "", fmt.Errorf("no value provided for tile template variable %q", missing)
	}
	return out, nil
}

// TileOptions configures a tile layer.
type TileOptions struct {
	Params     map[string]string
	Subdomains []string
}

// TileBuilder creates tile layers and verifies them with a single tile request.
type TileBuilder struct {
	client *http.Client
	cfg    Config
	logger *slog.Logger
}

// NewTileBuilder creates a tile builder.
func NewTileBuilder(client *http.Client, cfg Config, logger *slog.Logger) *TileBuilder {
	if client == nil {
		client = NewHTTPClient(cfg.timeout())
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &TileBuilder{client: client, cfg: cfg, logger: logger}
}

// BuildTileLayer creates a tile layer for template. With known bounds, the
// tile covering their center at CheckZoom is requested first and any failure
// is returned.
func (tb *TileBuilder) BuildTileLayer(ctx context.Context, template string, b *bounds.LatLngBounds, opts TileOptions) (*layer.TileLayer, error) {
	if template == "" {
		return nil, ErrNoTileTemplate
	}

	l := layer.NewTileLayer(template, b, opts.Params)
	l.Subdomains = opts.Subdomains
	if b == nil {
		return l, nil
	}

	tile := maptile.At(b.Center(), CheckZoom)
	values := map[string]string{
		"x": strconv.FormatUint(uint64(tile.X), 10),
		"y": strconv.FormatUint(uint64(tile.Y), 10),
		"z": strconv.FormatUint(uint64(tile.Z), 10),
		"s": "",
	}
	if len(opts.Subdomains) > 0 {
		values["s"] = opts.Subdomains[0]
	}
	for k, v := range opts.Params {
		values[k] = v
	}

	tileURL, err := ExpandTemplate(template, values)
	if err != nil {
		return nil, err
	}

	tb.logger.DebugContext(ctx, "checking tile layer", slog.String("url", tileURL))
	if _, err := WithTimeout(ctx, tb.cfg.timeout(), func(ctx context.Context) (struct{}, error) {
		return struct{}{}, tb.fetchTile(ctx, tileURL)
	}); err != nil {
		return nil, fmt.Errorf("tile check %s failed: %w", tileURL, err)
	}

	l.Load()
	return l, nil
}

func (tb *TileBuilder) fetchTile(ctx context.Context, tileURL string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tileURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "image/*")
	req.Header.Set("User-Agent", tb.cfg.userAgent())

	resp, err := tb.client.Do(req)
	if err != nil {
		return fmt.Errorf("tile request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("tile request returned status %d: %s", resp.StatusCode, string(body))
	}
	if _, _, err := image.DecodeConfig(resp.Body); err != nil {
		return fmt.Errorf("failed to decode tile: %w", err)
	}
	return nil
}
