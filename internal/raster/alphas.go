package raster

import "math"

// TIFF SampleFormat values.
const (
	SampleFormatUint      = 1
	SampleFormatInt       = 2
	SampleFormatFloat     = 3
	SampleFormatUndefined = 4
)

// Alpha describes an auxiliary sample. Integer samples carry the nominal
// range derived from their bit depth.
type Alpha struct {
	Int   bool
	Min   float64
	Range float64
}

// ParseAlphas returns the descriptors of the trailing extra samples, keyed by
// band index. A missing sample format defaults to unsigned integer.
func ParseAlphas(bitsPerSample, sampleFormat []int, extraSamples int) map[int]Alpha {
	n := len(bitsPerSample)
	all := make([]Alpha, n)
	for i, bits := range bitsPerSample {
		format := SampleFormatUint
		if i < len(sampleFormat) {
			format = sampleFormat[i]
		}

		switch format {
		case SampleFormatUint:
			all[i] = Alpha{Int: true, Min: 0, Range: math.Pow(2, float64(bits)) - 1}
		case SampleFormatInt:
			lo := -math.Pow(2, float64(bits-1))
			hi := math.Pow(2, float64(bits-1)) - 1
			all[i] = Alpha{Int: true, Min: lo, Range: hi - lo}
		}
	}

	extraSamples = min(max(extraSamples, 0), n)
	out := make(map[int]Alpha, extraSamples)
	for i := n - extraSamples; i < n; i++ {
		out[i] = all[i]
	}
	return out
}

// Alphas returns the alpha descriptors of the raster.
func (r *Raster) Alphas() map[int]Alpha {
	return ParseAlphas(r.BitsPerSample, r.SampleFormat, r.ExtraSamples)
}
