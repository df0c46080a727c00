package engine

import (
	"log/slog"
	"time"

	"github.com/rkm/stac-layer/internal/bounds"
	"github.com/rkm/stac-layer/internal/layer"
	"github.com/rkm/stac-layer/internal/stac"
)

// addImages tries the candidates in order and keeps the first image that
// loads. An exhausted list yields nil. typ is reported with the
// imageLayerAdded event.
func (r *run) addImages(candidates []*stac.Asset, typ string) layer.Layer {
	for i, asset := range candidates {
		b := bounds.Resolve(asset, r.opts.boundsOptions())
		if b == nil {
			r.log.Info("can't visualize an asset without a location", slog.String("href", asset.Href))
			continue
		}

		r.log.Debug("add image", slog.String("href", asset.Href), slog.Int("candidate", i))
		img := r.engine.builders.Image.BuildImageOverlay(r.ctx, asset.Href, *b, r.opts.CrossOrigin)
		if img == nil {
			r.log.Info("image layer is null", slog.String("href", asset.Href))
			continue
		}
		if !r.add(img, asset) {
			return nil
		}

		if err := r.awaitSignal(img); err != nil {
			r.log.Info("image layer errored",
				slog.String("href", asset.Href),
				slog.String("error", err.Error()))
			r.comp.Remove(img)
			img.Release()
			continue
		}
		r.comp.NotifyImageLayerAdded(layer.ImageLayerAddedEvent{
			Type:  typ,
			Layer: img,
			Asset: asset,
		})
		return img
	}
	return nil
}

// awaitSignal waits for the first load or error signal of l. A layer that
// stays silent past the attempt timeout counts as loaded.
func (r *run) awaitSignal(l layer.Layer) error {
	done := make(chan error, 1)
	signal := func(err error) {
		select {
		case done <- err:
		default:
		}
	}
	l.OnError(signal)
	l.OnLoad(func() { signal(nil) })

	timer := time.NewTimer(r.engine.timeout)
	defer timer.Stop()
	select {
	case err := <-done:
		return err
	case <-timer.C:
		return nil
	}
}
