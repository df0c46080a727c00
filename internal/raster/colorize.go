package raster

import (
	"fmt"
	"math"
	"strconv"
)

// Stats holds per-band statistics.
type Stats struct {
	Mins   []float64 `json:"mins"`
	Maxs   []float64 `json:"maxs"`
	Ranges []float64 `json:"ranges"`
}

// NewStats builds statistics with ranges computed from mins and maxs.
func NewStats(mins, maxs []float64) Stats {
	n := min(len(mins), len(maxs))
	s := Stats{
		Mins:   append([]float64(nil), mins[:n]...),
		Maxs:   append([]float64(nil), maxs[:n]...),
		Ranges: make([]float64, n),
	}
	for i := range n {
		s.Ranges[i] = maxs[i] - mins[i]
	}
	return s
}

// ExpandBands maps 1 to 4 band indices to RGB or RGBA channels: one index is
// grayscale, two are grayscale plus alpha, three and four are used as is.
func ExpandBands(bands []int) ([]int, error) {
	switch len(bands) {
	case 1:
		g := bands[0]
		return []int{g, g, g}, nil
	case 2:
		g, a := bands[0], bands[1]
		return []int{g, g, g, a}, nil
	case 3, 4:
		return append([]int(nil), bands...), nil
	}
	return nil, fmt.Errorf("expected 1 to 4 bands, got %d", len(bands))
}

// ColorFn maps the band values of one pixel to a CSS color.
type ColorFn func(values []float64) string

// NewColorFn returns a color function for the expanded channel mapping. stats
// is called on every pixel so that statistics computed by the renderer after
// construction are picked up.
func NewColorFn(channels []int, stats func() Stats, alphas map[int]Alpha) ColorFn {
	return func(values []float64) string {
		return ComputeColor(values, channels, stats(), alphas)
	}
}

// ComputeColor scales the band values of one pixel to 0-255 and maps the
// channels to an rgba() string. Alpha defaults to opaque for three channels.
func ComputeColor(values []float64, channels []int, stats Stats, alphas map[int]Alpha) string {
	fitted := make([]float64, len(values))
	for i, v := range values {
		fitted[i] = fit(i, v, stats, alphas)
	}

	rgba := [4]float64{0, 0, 0, 255}
	for i, band := range channels {
		if i > 3 {
			break
		}
		if band >= 0 && band < len(fitted) {
			rgba[i] = fitted[band]
		} else {
			rgba[i] = 0
		}
	}

	return "rgba(" +
		strconv.Itoa(int(rgba[0])) + "," +
		strconv.Itoa(int(rgba[1])) + "," +
		strconv.Itoa(int(rgba[2])) + "," +
		strconv.FormatFloat(rgba[3]/255, 'f', -1, 64) + ")"
}

func fit(i int, v float64, stats Stats, alphas map[int]Alpha) float64 {
	lo, hi, rng := statAt(stats, i)

	if a, ok := alphas[i]; ok {
		if a.Int {
			return scale(v-a.Min, a.Range)
		}
		curMin := math.Min(v, lo)
		curMax := math.Max(v, hi)
		switch {
		case curMin >= 0 && curMax <= 1:
			return round(255 * v)
		case curMin >= 0 && curMax <= 100:
			return round(255 * v / 100)
		case curMin >= 0 && curMax <= 255:
			return round(v)
		case curMin == curMax:
			return 255
		}
		return scale(v-math.Min(v, lo), rng)
	}

	return scale(v-math.Min(v, lo), rng)
}

func statAt(s Stats, i int) (lo, hi, rng float64) {
	if i < len(s.Mins) {
		lo = s.Mins[i]
	}
	if i < len(s.Maxs) {
		hi = s.Maxs[i]
	}
	if i < len(s.Ranges) {
		rng = s.Ranges[i]
	} else {
		rng = hi - lo
	}
	return lo, hi, rng
}

// scale maps offset within rng onto 0-255. A zero range maps to 0.
func scale(offset, rng float64) float64 {
	if rng == 0 || math.IsNaN(rng) {
		return 0
	}
	return clamp(round(255 * offset / rng))
}

func round(v float64) float64 {
	return math.Floor(v + 0.5)
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(255, v))
}
