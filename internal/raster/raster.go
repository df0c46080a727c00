// Package raster models georeferenced raster files: the handle produced by
// opening one, the sample metadata used for colorization and the reprojection
// of its native extent.
package raster

import (
	"context"
	"errors"
)

// Projection codes with special meaning in GeoTIFF keys.
const (
	EPSGUnknown     = 0
	EPSGUserDefined = 32767
)

var (
	// ErrNotTIFF is returned for resources that are not TIFF files.
	ErrNotTIFF = errors.New("not a TIFF file")
	// ErrNotGeoreferenced is returned for TIFF files without model tags.
	ErrNotGeoreferenced = errors.New("TIFF file is not georeferenced")
	// ErrInvalidSamples is returned for a sample count outside
	// 1..MaxSamplesPerPixel.
	ErrInvalidSamples = errors.New("invalid samples per pixel")
	// ErrUnsupportedProjection is returned when an extent cannot be
	// reprojected to WGS84.
	ErrUnsupportedProjection = errors.New("unsupported projection")
)

// Raster is an opened raster resource.
type Raster struct {
	URL    string
	Width  int
	Height int

	BitsPerSample []int
	SampleFormat  []int
	// ExtraSamples is the number of trailing auxiliary (alpha) samples.
	ExtraSamples int

	// Projection is the EPSG code of the native coordinate system.
	Projection int
	// Citation holds the GeoTIFF citation strings, used to recover an
	// unknown projection.
	Citation string

	XMin, YMin, XMax, YMax float64

	NoData *float64
	// Mins and Maxs are per-band statistics from file metadata, or nil.
	Mins []float64
	Maxs []float64
}

// Bands returns the number of samples per pixel.
func (r *Raster) Bands() int {
	return len(r.BitsPerSample)
}

// HasStats reports whether complete per-band statistics are known.
func (r *Raster) HasStats() bool {
	return len(r.Mins) > 0 && len(r.Mins) == len(r.Maxs)
}

// Stats returns the statistics with ranges filled in.
func (r *Raster) Stats() Stats {
	return NewStats(r.Mins, r.Maxs)
}

// BBox returns the native extent as [xmin, ymin, xmax, ymax].
func (r *Raster) BBox() []float64 {
	return []float64{r.XMin, r.YMin, r.XMax, r.YMax}
}

// ProjectionUnknown reports whether the projection must be recovered from
// other metadata.
func (r *Raster) ProjectionUnknown() bool {
	return r.Projection == EPSGUnknown || r.Projection == EPSGUserDefined
}

// Opener opens raster resources by URL.
type Opener interface {
	Open(ctx context.Context, url string) (*Raster, error)
}

// OpenerFunc adapts a function to the Opener interface.
type OpenerFunc func(ctx context.Context, url string) (*Raster, error)

func (f OpenerFunc) Open(ctx context.Context, url string) (*Raster, error) {
	return f(ctx, url)
}
