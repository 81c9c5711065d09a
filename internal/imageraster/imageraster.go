// Package imageraster adapts a decoded raster image into a
// rasterio.Reader, for manual bring-up and testing of the encoder
// pipeline without a real CUPS raster stream. It does one-shot
// brightness thresholding, not halftoning/dithering.
package imageraster

import (
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"

	"github.com/ptouchraster/rastertoptch/internal/rasterio"
)

// DefaultThreshold is the lightness cutoff above which a pixel is
// treated as background (unprinted), matching the luminance weights
// the source tool used for its own preview renderer.
const DefaultThreshold = 0.5

// Options controls how a decoded image is turned into a single-page
// raster source.
type Options struct {
	ResolutionX, ResolutionY int

	// TargetWidthPx, if non-zero, resizes the image (preserving aspect
	// ratio) to this pixel width before thresholding.
	TargetWidthPx int

	// Threshold overrides DefaultThreshold when non-zero.
	Threshold float64

	// NegativePrint marks the produced page header so XOR inversion
	// happens downstream in the row transform, rather than inverting
	// bits here.
	NegativePrint bool
}

// Reader is a rasterio.Reader over a single page built from a decoded
// image.
type Reader struct {
	header rasterio.PageHeader
	rows   [][]byte
	rowIdx int
	done   bool
}

// Decode reads an image in any format imaging.Decode recognizes (such as
// PNG), grayscale-thresholds it into 1bpp packed rows,
// and wraps the result as a one-page rasterio.Reader.
func Decode(r io.Reader, opts Options) (*Reader, error) {
	img, err := imaging.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("imageraster: decode: %w", err)
	}
	return fromImage(img, opts)
}

func fromImage(img image.Image, opts Options) (*Reader, error) {
	if opts.TargetWidthPx > 0 && img.Bounds().Dx() != opts.TargetWidthPx {
		img = imaging.Resize(img, opts.TargetWidthPx, 0, imaging.Lanczos)
	}

	threshold := opts.Threshold
	if threshold == 0 {
		threshold = DefaultThreshold
	}

	resX, resY := opts.ResolutionX, opts.ResolutionY
	if resX == 0 {
		resX = 180
	}
	if resY == 0 {
		resY = 180
	}

	size := img.Bounds().Size()
	bytesWidth := size.X / 8
	if size.X%8 != 0 {
		bytesWidth++
	}

	rows := make([][]byte, size.Y)
	for y := 0; y < size.Y; y++ {
		row := make([]byte, bytesWidth)
		for x := 0; x < size.X; x++ {
			cr, cg, cb, _ := img.At(x, y).RGBA()
			lightness := float64(55*cr+182*cg+18*cb) / float64(0xffff*(55+182+18))
			dark := lightness <= threshold
			if dark {
				row[x/8] |= 0x80 >> uint(x%8)
			}
		}
		rows[y] = row
	}

	header := rasterio.PageHeader{
		ResolutionX:   resX,
		ResolutionY:   resY,
		PageWidth:     float64(size.X) * 72.0 / float64(resX),
		PageHeight:    float64(size.Y) * 72.0 / float64(resY),
		ImagingBBox:   [4]float64{0, 0, float64(size.X) * 72.0 / float64(resX), float64(size.Y) * 72.0 / float64(resY)},
		RowByteCount:  bytesWidth,
		RowPixelCount: size.X,
		RowCount:      size.Y,
		NegativePrint: opts.NegativePrint,
	}

	return &Reader{header: header, rows: rows}, nil
}

// ReadPageHeader implements rasterio.Reader. It yields exactly one page.
func (r *Reader) ReadPageHeader() (rasterio.PageHeader, bool, error) {
	if r.done {
		return rasterio.PageHeader{}, false, nil
	}
	r.done = true
	return r.header, true, nil
}

// ReadRow implements rasterio.Reader.
func (r *Reader) ReadRow(buf []byte) (int, error) {
	if r.rowIdx >= len(r.rows) {
		r.done = true
		return 0, nil
	}
	row := r.rows[r.rowIdx]
	if len(buf) < len(row) {
		return 0, fmt.Errorf("%w: need %d bytes, have %d", rasterio.ErrShortRowBuffer, len(row), len(buf))
	}
	copy(buf, row)
	r.rowIdx++
	return 1, nil
}
