package raster

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/xml"
	"fmt"
	"io"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"strings"
)

// TIFF tags read from the first image file directory.
const (
	tagImageWidth      = 256
	tagImageLength     = 257
	tagBitsPerSample   = 258
	tagSamplesPerPixel = 277
	tagExtraSamples    = 338
	tagSampleFormat    = 339
	tagModelPixelScale = 33550
	tagModelTiepoint   = 33922
	tagGeoKeyDirectory = 34735
	tagGeoASCIIParams  = 34737
	tagGDALMetadata    = 42112
	tagGDALNoData      = 42113
)

// GeoKey IDs.
const (
	gkGTCitation      = 1026
	gkGeographicType  = 2048
	gkGeogCitation    = 2049
	gkProjectedCSType = 3072
	gkPCSCitation     = 3073
)

// TIFF field types and their sizes in bytes.
var typeSizes = map[uint16]int{
	1: 1, 2: 1, 3: 2, 4: 4, 5: 8, 6: 1, 7: 1, 8: 2, 9: 4, 10: 8, 11: 4, 12: 8, 16: 8, 17: 8, 18: 8,
}

// HeaderBytes is the size of the first range request. COG layouts put the
// first IFD and its tag data at the start of the file.
const HeaderBytes = 64 << 10

// MaxSamplesPerPixel bounds the per-sample tables built from a header.
const MaxSamplesPerPixel = 4096

// HTTPOpener reads the GeoTIFF header of remote files with range requests.
type HTTPOpener struct {
	Client    *http.Client
	UserAgent string
	Logger    *slog.Logger
}

// NewHTTPOpener creates an opener using client.
func NewHTTPOpener(client *http.Client, userAgent string, logger *slog.Logger) *HTTPOpener {
	if client == nil {
		client = http.DefaultClient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPOpener{Client: client, UserAgent: userAgent, Logger: logger}
}

// Open fetches and parses the header of the GeoTIFF at url.
func (o *HTTPOpener) Open(ctx context.Context, url string) (*Raster, error) {
	rd := &rangeReader{ctx: ctx, opener: o, url: url}
	r, err := Decode(rd)
	if err != nil {
		return nil, err
	}
	r.URL = url
	return r, nil
}

// rangeReader implements io.ReaderAt over HTTP range requests, keeping the
// first block in memory.
type rangeReader struct {
	ctx    context.Context
	opener *HTTPOpener
	url    string
	head   []byte
	done   bool
}

func (r *rangeReader) ReadAt(p []byte, off int64) (int, error) {
	if !r.done {
		head, err := r.fetch(0, HeaderBytes)
		if err != nil {
			return 0, err
		}
		r.head, r.done = head, true
	}

	end := off + int64(len(p))
	if end <= int64(len(r.head)) {
		return copy(p, r.head[off:end]), nil
	}
	if len(r.head) < HeaderBytes {
		// The whole file was smaller than the first block.
		if off >= int64(len(r.head)) {
			return 0, io.EOF
		}
		n := copy(p, r.head[off:])
		return n, io.EOF
	}

	data, err := r.fetch(off, len(p))
	if err != nil {
		return 0, err
	}
	n := copy(p, data)
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (r *rangeReader) fetch(off int64, n int) ([]byte, error) {
	req, err := http.NewRequestWithContext(r.ctx, http.MethodGet, r.url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+int64(n)-1))
	if r.opener.UserAgent != "" {
		req.Header.Set("User-Agent", r.opener.UserAgent)
	}

	r.opener.Logger.DebugContext(r.ctx, "raster range request",
		slog.String("url", r.url),
		slog.Int64("offset", off),
		slog.Int("length", n))

	resp, err := r.opener.Client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		return io.ReadAll(io.LimitReader(resp.Body, int64(n)))
	case http.StatusOK:
		// Server ignored the range; skip to the offset.
		if _, err := io.CopyN(io.Discard, resp.Body, off); err != nil {
			return nil, fmt.Errorf("failed to skip to offset %d: %w", off, err)
		}
		return io.ReadAll(io.LimitReader(resp.Body, int64(n)))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
}

type entry struct {
	typ   uint16
	count uint64
	data  []byte
}

type decoder struct {
	r       io.ReaderAt
	order   binary.ByteOrder
	bigTIFF bool
}

// Decode parses the first image file directory of a GeoTIFF.
func Decode(r io.ReaderAt) (*Raster, error) {
	d := &decoder{r: r}

	hdr := make([]byte, 16)
	n, err := r.ReadAt(hdr, 0)
	if n < 8 {
		if err == nil {
			err = io.ErrUnexpectedEOF
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	switch string(hdr[:2]) {
	case "II":
		d.order = binary.LittleEndian
	case "MM":
		d.order = binary.BigEndian
	default:
		return nil, ErrNotTIFF
	}

	var ifdOffset uint64
	switch d.order.Uint16(hdr[2:4]) {
	case 42:
		ifdOffset = uint64(d.order.Uint32(hdr[4:8]))
	case 43:
		if n < 16 {
			return nil, fmt.Errorf("failed to read BigTIFF header: %w", io.ErrUnexpectedEOF)
		}
		d.bigTIFF = true
		ifdOffset = d.order.Uint64(hdr[8:16])
	default:
		return nil, ErrNotTIFF
	}

	entries, err := d.readIFD(ifdOffset)
	if err != nil {
		return nil, err
	}
	return d.raster(entries)
}

func (d *decoder) readIFD(offset uint64) (map[uint16]entry, error) {
	countSize, entrySize, inline := 2, 12, 4
	if d.bigTIFF {
		countSize, entrySize, inline = 8, 20, 8
	}

	buf := make([]byte, countSize)
	if _, err := d.r.ReadAt(buf, int64(offset)); err != nil {
		return nil, fmt.Errorf("failed to read IFD: %w", err)
	}
	var count uint64
	if d.bigTIFF {
		count = d.order.Uint64(buf)
	} else {
		count = uint64(d.order.Uint16(buf))
	}
	if count == 0 || count > 4096 {
		return nil, fmt.Errorf("invalid IFD entry count %d", count)
	}

	raw := make([]byte, int(count)*entrySize)
	if _, err := d.r.ReadAt(raw, int64(offset)+int64(countSize)); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to read IFD entries: %w", err)
	}

	entries := make(map[uint16]entry, count)
	for i := 0; i < int(count); i++ {
		e := raw[i*entrySize : (i+1)*entrySize]
		tag := d.order.Uint16(e[0:2])
		typ := d.order.Uint16(e[2:4])

		size, ok := typeSizes[typ]
		if !ok {
			continue
		}

		var n uint64
		var value []byte
		if d.bigTIFF {
			n = d.order.Uint64(e[4:12])
			value = e[12:20]
		} else {
			n = uint64(d.order.Uint32(e[4:8]))
			value = e[8:12]
		}

		length := n * uint64(size)
		if length > 16<<20 {
			return nil, fmt.Errorf("tag %d too large: %d bytes", tag, length)
		}

		var data []byte
		if length <= uint64(inline) {
			data = append([]byte(nil), value[:length]...)
		} else {
			var off uint64
			if d.bigTIFF {
				off = d.order.Uint64(value)
			} else {
				off = uint64(d.order.Uint32(value))
			}
			data = make([]byte, length)
			if _, err := d.r.ReadAt(data, int64(off)); err != nil && err != io.EOF {
				return nil, fmt.Errorf("failed to read tag %d: %w", tag, err)
			}
		}
		entries[tag] = entry{typ: typ, count: n, data: data}
	}
	return entries, nil
}

// values returns how many complete values of the entry's type were read.
func (e entry) values() int {
	return min(int(e.count), len(e.data)/typeSizes[e.typ])
}

func (d *decoder) ints(e entry) []int {
	size := typeSizes[e.typ]
	out := make([]int, 0, e.values())
	for i := 0; i < e.values(); i++ {
		b := e.data[i*size:]
		switch e.typ {
		case 1, 7:
			out = append(out, int(b[0]))
		case 3:
			out = append(out, int(d.order.Uint16(b)))
		case 4:
			out = append(out, int(d.order.Uint32(b)))
		case 16:
			out = append(out, int(d.order.Uint64(b)))
		}
	}
	return out
}

func (d *decoder) floats(e entry) []float64 {
	size := typeSizes[e.typ]
	out := make([]float64, 0, e.values())
	for i := 0; i < e.values(); i++ {
		b := e.data[i*size:]
		switch e.typ {
		case 12:
			out = append(out, math.Float64frombits(d.order.Uint64(b)))
		case 11:
			out = append(out, float64(math.Float32frombits(d.order.Uint32(b))))
		case 3:
			out = append(out, float64(d.order.Uint16(b)))
		case 4:
			out = append(out, float64(d.order.Uint32(b)))
		}
	}
	return out
}

func (d *decoder) shorts(e entry) []uint16 {
	out := make([]uint16, 0, e.values())
	if e.typ != 3 {
		return out
	}
	for i := 0; i < e.values(); i++ {
		out = append(out, d.order.Uint16(e.data[i*2:]))
	}
	return out
}

func ascii(e entry) string {
	return strings.TrimRight(string(e.data), "\x00 ")
}

func (d *decoder) raster(entries map[uint16]entry) (*Raster, error) {
	r := &Raster{}

	if e, ok := entries[tagImageWidth]; ok {
		if v := d.ints(e); len(v) > 0 {
			r.Width = v[0]
		}
	}
	if e, ok := entries[tagImageLength]; ok {
		if v := d.ints(e); len(v) > 0 {
			r.Height = v[0]
		}
	}

	samples := 1
	if e, ok := entries[tagSamplesPerPixel]; ok {
		if v := d.ints(e); len(v) > 0 {
			samples = v[0]
		}
	}
	if samples <= 0 || samples > MaxSamplesPerPixel {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSamples, samples)
	}
	r.BitsPerSample = expand(entries, tagBitsPerSample, d, samples, 1)
	r.SampleFormat = expand(entries, tagSampleFormat, d, samples, SampleFormatUint)
	if e, ok := entries[tagExtraSamples]; ok {
		r.ExtraSamples = int(e.count)
	}

	scale, okScale := entries[tagModelPixelScale]
	tie, okTie := entries[tagModelTiepoint]
	if !okScale || !okTie {
		return nil, ErrNotGeoreferenced
	}
	s := d.floats(scale)
	tp := d.floats(tie)
	if len(s) < 2 || len(tp) < 6 {
		return nil, ErrNotGeoreferenced
	}
	r.XMin = tp[3] - tp[0]*s[0]
	r.YMax = tp[4] + tp[1]*s[1]
	r.XMax = r.XMin + float64(r.Width)*s[0]
	r.YMin = r.YMax - float64(r.Height)*s[1]

	var asciiParams string
	if e, ok := entries[tagGeoASCIIParams]; ok {
		asciiParams = ascii(e)
	}
	if e, ok := entries[tagGeoKeyDirectory]; ok {
		r.Projection, r.Citation = parseGeoKeys(d.shorts(e), asciiParams)
	}

	if e, ok := entries[tagGDALNoData]; ok {
		if v, err := strconv.ParseFloat(strings.TrimSpace(ascii(e)), 64); err == nil {
			r.NoData = &v
		}
	}
	if e, ok := entries[tagGDALMetadata]; ok {
		r.Mins, r.Maxs = parseGDALStatistics(ascii(e), samples)
	}

	return r, nil
}

// expand reads a per-sample tag, repeating a single value for every sample.
func expand(entries map[uint16]entry, tag uint16, d *decoder, samples, def int) []int {
	out := make([]int, samples)
	var values []int
	if e, ok := entries[tag]; ok {
		values = d.ints(e)
	}
	for i := range out {
		switch {
		case i < len(values):
			out[i] = values[i]
		case len(values) > 0:
			out[i] = values[0]
		default:
			out[i] = def
		}
	}
	return out
}

// parseGeoKeys extracts the EPSG code and the citation strings from the
// GeoKey directory.
func parseGeoKeys(keys []uint16, asciiParams string) (int, string) {
	if len(keys) < 4 {
		return EPSGUnknown, ""
	}

	var (
		projected, geographic int
		citations             []string
	)
	numKeys := int(keys[3])
	for i := 0; i < numKeys; i++ {
		base := 4 + i*4
		if base+3 >= len(keys) {
			break
		}
		id, location, count, value := keys[base], keys[base+1], int(keys[base+2]), int(keys[base+3])

		switch id {
		case gkProjectedCSType:
			projected = value
		case gkGeographicType:
			geographic = value
		case gkGTCitation, gkGeogCitation, gkPCSCitation:
			if location == tagGeoASCIIParams && value+count <= len(asciiParams) {
				citations = append(citations, strings.TrimRight(asciiParams[value:value+count], "|\x00"))
			}
		}
	}

	citation := strings.Join(citations, "|")
	if projected != 0 && projected != EPSGUserDefined {
		return projected, citation
	}
	if geographic != 0 && geographic != EPSGUserDefined {
		return geographic, citation
	}
	if projected == EPSGUserDefined || geographic == EPSGUserDefined {
		return EPSGUserDefined, citation
	}
	return EPSGUnknown, citation
}

type gdalMetadata struct {
	Items []struct {
		Name   string `xml:"name,attr"`
		Sample *int   `xml:"sample,attr"`
		Value  string `xml:",chardata"`
	} `xml:"Item"`
}

// parseGDALStatistics reads STATISTICS_MINIMUM and STATISTICS_MAXIMUM from
// the GDAL metadata XML. It returns nil unless every band has both.
func parseGDALStatistics(doc string, samples int) ([]float64, []float64) {
	var md gdalMetadata
	if err := xml.NewDecoder(bytes.NewReader([]byte(doc))).Decode(&md); err != nil {
		return nil, nil
	}

	mins := make([]*float64, samples)
	maxs := make([]*float64, samples)
	for _, it := range md.Items {
		if it.Sample == nil || *it.Sample < 0 || *it.Sample >= samples {
			continue
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(it.Value), 64)
		if err != nil {
			continue
		}
		switch it.Name {
		case "STATISTICS_MINIMUM":
			mins[*it.Sample] = &v
		case "STATISTICS_MAXIMUM":
			maxs[*it.Sample] = &v
		}
	}

	outMin := make([]float64, samples)
	outMax := make([]float64, samples)
	for i := range samples {
		if mins[i] == nil || maxs[i] == nil {
			return nil, nil
		}
		outMin[i], outMax[i] = *mins[i], *maxs[i]
	}
	return outMin, outMax
}
