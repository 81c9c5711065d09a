package imageraster_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptouchraster/rastertoptch/internal/imageraster"
)

func encodePNG(t *testing.T, img image.Image) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return &buf
}

func TestDecodeThresholdsHalfBlackHalfWhiteRow(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 16, 1))
	for x := 0; x < 8; x++ {
		img.SetGray(x, 0, color.Gray{Y: 0})
	}
	for x := 8; x < 16; x++ {
		img.SetGray(x, 0, color.Gray{Y: 255})
	}

	r, err := imageraster.Decode(encodePNG(t, img), imageraster.Options{ResolutionX: 180, ResolutionY: 180})
	require.NoError(t, err)

	header, ok, err := r.ReadPageHeader()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 16, header.RowPixelCount)
	assert.Equal(t, 2, header.RowByteCount)
	assert.Equal(t, 1, header.RowCount)

	row := make([]byte, header.RowByteCount)
	n, err := r.ReadRow(row)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []byte{0xff, 0x00}, row)

	n, err = r.ReadRow(row)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	_, ok, err = r.ReadPageHeader()
	require.NoError(t, err)
	assert.False(t, ok)
}

// NegativePrint only marks the page header; the XOR inversion itself is
// left to the row transform, so the thresholded rows are not inverted.
func TestDecodeNegativePrintMarksHeaderWithoutInvertingRows(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 8, 1))
	for x := 0; x < 8; x++ {
		img.SetGray(x, 0, color.Gray{Y: 0})
	}

	r, err := imageraster.Decode(encodePNG(t, img), imageraster.Options{
		ResolutionX: 180, ResolutionY: 180, NegativePrint: true,
	})
	require.NoError(t, err)

	header, ok, err := r.ReadPageHeader()
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, header.NegativePrint)

	row := make([]byte, 1)
	n, err := r.ReadRow(row)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	assert.Equal(t, byte(0xff), row[0])
}

func TestDecodeResizesToTargetWidth(t *testing.T) {
	img := image.NewGray(image.Rect(0, 0, 64, 64))
	r, err := imageraster.Decode(encodePNG(t, img), imageraster.Options{
		ResolutionX: 180, ResolutionY: 180, TargetWidthPx: 32,
	})
	require.NoError(t, err)

	header, ok, err := r.ReadPageHeader()
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 32, header.RowPixelCount)
}
