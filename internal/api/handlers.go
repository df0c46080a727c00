package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/paulmach/orb"

	"github.com/rkm/stac-layer/internal/config"
	"github.com/rkm/stac-layer/internal/engine"
	"github.com/rkm/stac-layer/internal/layer"
	"github.com/rkm/stac-layer/internal/stac"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 16 << 20

// Visualizer builds composites from STAC input.
type Visualizer interface {
	Visualize(ctx context.Context, input any, opts engine.Options) (*layer.Composite, error)
}

// DocumentFetcher retrieves remote STAC documents.
type DocumentFetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// Handlers contains all HTTP handlers of the service.
type Handlers struct {
	engine   Visualizer
	fetcher  DocumentFetcher
	presets  *config.PresetRegistry
	defaults config.TilerConfig
	logger   *slog.Logger
}

// NewHandlers creates a new Handlers instance with the given dependencies.
// tiler supplies the tile options used when a request sets none.
func NewHandlers(
	v Visualizer,
	fetcher DocumentFetcher,
	presets *config.PresetRegistry,
	tiler config.TilerConfig,
	logger *slog.Logger,
) *Handlers {
	if presets == nil {
		presets = config.NewPresetRegistry()
	}
	return &Handlers{
		engine:   v,
		fetcher:  fetcher,
		presets:  presets,
		defaults: tiler,
		logger:   logger,
	}
}

// VisualizeRequest is the body of POST /visualize.
type VisualizeRequest struct {
	Data    json.RawMessage `json:"data"`
	Options json.RawMessage `json:"options,omitempty"`
	Preset  string          `json:"preset,omitempty"`
}

// ClickRequest is the body of POST /visualize/click. Point is [lon, lat].
type ClickRequest struct {
	VisualizeRequest
	Point []float64 `json:"point"`
}

// ClickResponse describes the data under a clicked point.
type ClickResponse struct {
	Kind     layer.DataKind  `json:"kind"`
	Data     *layer.PlanData `json:"data,omitempty"`
	Children []string        `json:"children,omitempty"`
	Layer    string          `json:"layer"`
}

// Health returns the health status of the service.
// GET /health
func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Presets lists the configured option presets.
// GET /presets
func (h *Handlers) Presets(w http.ResponseWriter, r *http.Request) {
	out := make([]*config.Preset, 0, h.presets.Count())
	for _, id := range h.presets.IDs() {
		out = append(out, h.presets.Get(id))
	}
	WriteJSON(w, http.StatusOK, map[string]any{"presets": out})
}

// Visualize renders the layer plan of the posted data.
// POST /visualize
func (h *Handlers) Visualize(w http.ResponseWriter, r *http.Request) {
	var req VisualizeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	opts, err := h.options(req.Preset, req.Options)
	if err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	comp, err := h.engine.Visualize(r.Context(), []byte(req.Data), opts)
	if err != nil {
		h.logger.InfoContext(r.Context(), "visualization rejected", slog.String("error", err.Error()))
		WriteVisualizeError(w, err)
		return
	}
	defer comp.Release()

	WriteJSON(w, http.StatusOK, layer.BuildPlan(comp))
}

// VisualizeURL fetches a remote STAC document and renders its layer plan.
// Options come from the query string.
// GET /visualize?url=...
func (h *Handlers) VisualizeURL(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	docURL := q.Get("url")
	if docURL == "" {
		WriteInvalidParameter(w, "url parameter is required")
		return
	}

	opts, err := h.options(q.Get("preset"), nil)
	if err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}
	if err := applyQuery(&opts, q); err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}
	if opts.BaseURL == "" {
		opts.BaseURL = docURL
	}

	doc, err := h.fetcher.Fetch(r.Context(), docURL)
	if err != nil {
		WriteVisualizeError(w, err)
		return
	}

	comp, err := h.engine.Visualize(r.Context(), doc, opts)
	if err != nil {
		h.logger.InfoContext(r.Context(), "visualization rejected",
			slog.String("url", docURL),
			slog.String("error", err.Error()))
		WriteVisualizeError(w, err)
		return
	}
	defer comp.Release()

	body, err := json.Marshal(layer.BuildPlan(comp))
	if err != nil {
		WriteInternalError(w, "failed to encode layer plan")
		return
	}
	etag := fmt.Sprintf(`"%016x"`, xxhash.Sum64(body))
	w.Header().Set("ETag", etag)
	if match := r.Header.Get("If-None-Match"); match != "" && match == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(append(body, '\n'))
}

// Click visualizes the posted data, attaches it to an in-memory scene and
// reports the data a click at the given point resolves to.
// POST /visualize/click
func (h *Handlers) Click(w http.ResponseWriter, r *http.Request) {
	var req ClickRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if len(req.Point) != 2 {
		WriteInvalidParameter(w, "point must be [lon, lat]")
		return
	}

	opts, err := h.options(req.Preset, req.Options)
	if err != nil {
		WriteInvalidParameter(w, err.Error())
		return
	}

	comp, err := h.engine.Visualize(r.Context(), []byte(req.Data), opts)
	if err != nil {
		WriteVisualizeError(w, err)
		return
	}
	defer comp.Release()

	var clicked *layer.ClickEvent
	comp.OnClick(func(ev layer.ClickEvent) { clicked = &ev })
	scene := layer.NewScene()
	comp.AddTo(scene)

	if !scene.Click(orb.Point{req.Point[0], req.Point[1]}) || clicked == nil {
		WriteNotFound(w, "nothing at the given point")
		return
	}

	resp := ClickResponse{
		Kind: clicked.Kind,
		Data: layer.DescribeData(clicked.Data),
	}
	if clicked.Layer != nil {
		resp.Layer = clicked.Layer.ID()
	}
	if ic, ok := clicked.Data.(*stac.ItemCollection); ok {
		for _, child := range ic.Children {
			resp.Children = append(resp.Children, child.ID())
		}
	}
	WriteJSON(w, http.StatusOK, resp)
}

// options layers the request options over the preset over the server
// defaults.
func (h *Handlers) options(preset string, raw json.RawMessage) (engine.Options, error) {
	opts := engine.DefaultOptions()
	opts.TileURLTemplate = h.defaults.URLTemplate
	opts.TiTilerURL = h.defaults.TiTilerURL
	opts.UseTileLayerAsFallback = h.defaults.UseAsFallback

	if preset != "" {
		p := h.presets.Get(preset)
		if p == nil {
			return opts, fmt.Errorf("unknown preset %q", preset)
		}
		if err := json.Unmarshal(p.Options, &opts); err != nil {
			return opts, fmt.Errorf("invalid preset %q: %w", preset, err)
		}
	}

	if raw = bytes.TrimSpace(raw); len(raw) > 0 {
		if err := json.Unmarshal(raw, &opts); err != nil {
			return opts, fmt.Errorf("invalid options: %w", err)
		}
	}
	return opts, nil
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes+1))
	if err != nil {
		WriteBadRequest(w, "failed to read request body")
		return false
	}
	if len(body) > maxBodyBytes {
		WriteError(w, http.StatusRequestEntityTooLarge, ErrCodeBadRequest, "request body too large")
		return false
	}
	if err := json.Unmarshal(body, v); err != nil {
		WriteBadRequest(w, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

// applyQuery reads visualization options from query parameters. Lists are
// comma separated.
func applyQuery(opts *engine.Options, q map[string][]string) error {
	get := func(key string) (string, bool) {
		v, ok := q[key]
		if !ok || len(v) == 0 {
			return "", false
		}
		return v[0], true
	}

	for key, dst := range map[string]*bool{
		"displayGeoTiffByDefault": &opts.DisplayGeoTiffByDefault,
		"displayPreview":          &opts.DisplayPreview,
		"displayOverview":         &opts.DisplayOverview,
		"useTileLayerAsFallback":  &opts.UseTileLayerAsFallback,
	} {
		if v, ok := get(key); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%s must be a boolean, got %q", key, v)
			}
			*dst = b
		}
	}

	for key, dst := range map[string]*int{
		"resolution": &opts.Resolution,
		"debugLevel": &opts.DebugLevel,
	} {
		if v, ok := get(key); ok {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("%s must be an integer, got %q", key, v)
			}
			*dst = n
		}
	}

	for key, dst := range map[string]*string{
		"tileUrlTemplate": &opts.TileURLTemplate,
		"titilerUrl":      &opts.TiTilerURL,
		"baseUrl":         &opts.BaseURL,
		"crossOrigin":     &opts.CrossOrigin,
	} {
		if v, ok := get(key); ok {
			*dst = v
		}
	}

	if v, ok := get("bands"); ok {
		bands, err := parseInts(v)
		if err != nil {
			return fmt.Errorf("bands: %w", err)
		}
		opts.Bands = bands
	}
	if v, ok := get("bbox"); ok {
		bbox, err := parseFloats(v)
		if err != nil {
			return fmt.Errorf("bbox: %w", err)
		}
		opts.BBox = bbox
	}
	if v, ok := get("assets"); ok && v != "" {
		opts.Assets = engine.AssetKeys(strings.Split(v, ",")...)
	}
	return nil
}

func parseInts(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		n, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", part)
		}
		out = append(out, n)
	}
	return out, nil
}

func parseFloats(s string) ([]float64, error) {
	var out []float64
	for _, part := range strings.Split(s, ",") {
		f, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", part)
		}
		out = append(out, f)
	}
	return out, nil
}
