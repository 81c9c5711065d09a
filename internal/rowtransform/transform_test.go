package rowtransform

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMirrorNoShiftNoPadding(t *testing.T) {
	input := []byte{0x80, 0x40, 0x20}
	output := make([]byte, 3)
	nonzero := TransformRow(input, output, 3, 0, 0, true, 0)
	require.True(t, nonzero)
	assert.Equal(t, []byte{0x80, 0x40, 0x20}, output)
}

func TestNoMirrorNoShiftReversesBytes(t *testing.T) {
	input := []byte{0x80, 0x40, 0x20}
	output := make([]byte, 3)
	nonzero := TransformRow(input, output, 3, 0, 0, false, 0)
	require.True(t, nonzero)
	// Right-to-left device order, byte-reversed.
	assert.Equal(t, []byte{0x04, 0x02, 0x01}, output)
}

func TestZeroWidthRowIsBackground(t *testing.T) {
	output := make([]byte, 4)
	for i := range output {
		output[i] = 0xCC
	}
	nonzero := TransformRow(nil, output, 4, 0, 0, false, 0)
	assert.False(t, nonzero)
	assert.Equal(t, []byte{0, 0, 0, 0}, output)
}

func TestXorMaskInvertsPadding(t *testing.T) {
	output := make([]byte, 4)
	nonzero := TransformRow([]byte{0xff}, output, 4, 1, 0, false, 0xff)
	assert.True(t, nonzero)
	// right padding byte and left padding bytes are xorMask; the data byte
	// 0xff reversed is 0xff, XORed with 0xff becomes 0x00.
	assert.Equal(t, []byte{0xff, 0x00, 0xff, 0xff}, output)
}

func TestBytesPerLineOneNarrowRowShiftEdge(t *testing.T) {
	// bytes_per_line=1, a single input byte shifted left by a few bits
	// exercises the padded 1-byte carry box.
	output := make([]byte, 1)
	nonzero := TransformRow([]byte{0x01}, output, 1, 0, -1, false, 0)
	require.True(t, nonzero)
	assert.NotEqual(t, byte(0), output[0])
}

func TestAllZeroInputIsBackground(t *testing.T) {
	output := make([]byte, 2)
	nonzero := TransformRow([]byte{0x00, 0x00}, output, 2, 0, 0, false, 0)
	assert.False(t, nonzero)
}

func TestNegativePrintAllSetPixelsIsNotBackground(t *testing.T) {
	// All pixels on, xorMask=0xff: the *input* is nonzero so this must not
	// be mistaken for a background row even though the XORed output may be
	// all zero.
	output := make([]byte, 2)
	nonzero := TransformRow([]byte{0xff, 0xff}, output, 2, 0, 0, false, 0xff)
	assert.True(t, nonzero)
	assert.Equal(t, []byte{0x00, 0x00}, output)
}
