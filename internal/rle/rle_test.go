package rle_test

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptouchraster/rastertoptch/internal/rle"
)

func roundTrip(t *testing.T, input []byte) []byte {
	t.Helper()
	scratch := make([]byte, rle.Bound(len(input)))
	w := bytewriter.New(scratch)
	n, _, err := rle.EncodeLine(w, input)
	require.NoError(t, err)
	require.LessOrEqual(t, n, rle.Bound(len(input)))

	out := make([]byte, len(input))
	decoded, err := rle.DecodeLine(out, scratch[:n])
	require.NoError(t, err)
	require.Equal(t, len(input), decoded)
	return out
}

func TestRoundTripHomogeneous(t *testing.T) {
	input := bytes.Repeat([]byte{0x42}, 9174)
	out := roundTrip(t, input)
	assert.Equal(t, input, out)
}

func TestRoundTripHeterogeneous(t *testing.T) {
	input := make([]byte, 513)
	rand.New(rand.NewSource(1)).Read(input)
	out := roundTrip(t, input)
	assert.Equal(t, input, out)
}

func TestRoundTripEmpty(t *testing.T) {
	scratch := make([]byte, rle.Bound(0))
	w := bytewriter.New(scratch)
	n, nonzero, err := rle.EncodeLine(w, nil)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.False(t, nonzero)
}

func TestEncodeLineReportsNonzero(t *testing.T) {
	scratch := make([]byte, rle.Bound(4))
	w := bytewriter.New(scratch)
	_, nonzero, err := rle.EncodeLine(w, []byte{0, 0, 0, 0})
	require.NoError(t, err)
	assert.False(t, nonzero)

	w2 := bytewriter.New(scratch)
	_, nonzero, err = rle.EncodeLine(w2, []byte{0, 0, 1, 0})
	require.NoError(t, err)
	assert.True(t, nonzero)
}

// A run of exactly 129 identical bytes is the longest a single
// repeated-byte run can represent; 130 identical bytes must split into
// two runs.
func TestRepeatedRunBoundaryAt129(t *testing.T) {
	input := bytes.Repeat([]byte{0x07}, 129)
	out := roundTrip(t, input)
	assert.Equal(t, input, out)

	input130 := bytes.Repeat([]byte{0x07}, 130)
	out130 := roundTrip(t, input130)
	assert.Equal(t, input130, out130)
}

// A mixed run longer than 128 bytes must split; this is the one case
// (along with a terminating mixed run) where the encoding can grow past
// the input length.
func TestMixedRunBoundaryAt128(t *testing.T) {
	input := make([]byte, 200)
	for i := range input {
		input[i] = byte(i) // no byte repeats, forcing one long mixed run
	}
	out := roundTrip(t, input)
	assert.Equal(t, input, out)
}

func TestBoundHoldsForRandomSizes(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for _, n := range []int{0, 1, 2, 3, 127, 128, 129, 256, 1000, 4097} {
		input := make([]byte, n)
		r.Read(input)
		scratch := make([]byte, rle.Bound(n))
		w := bytewriter.New(scratch)
		written, _, err := rle.EncodeLine(w, input)
		require.NoError(t, err)
		assert.LessOrEqualf(t, written, rle.Bound(n), "n=%d", n)
	}
}

func TestDecodeLineTruncatedMixedRun(t *testing.T) {
	dst := make([]byte, 10)
	_, err := rle.DecodeLine(dst, []byte{3, 1, 2}) // promises 4 bytes, has 2
	assert.ErrorIs(t, err, rle.ErrTruncatedRun)
}

func TestDecodeLineTruncatedRepeatedRun(t *testing.T) {
	dst := make([]byte, 10)
	_, err := rle.DecodeLine(dst, []byte{0xff}) // negative count byte, no value byte
	assert.ErrorIs(t, err, rle.ErrTruncatedRun)
}

func TestDecodeLineShortBuffer(t *testing.T) {
	dst := make([]byte, 1)
	_, err := rle.DecodeLine(dst, []byte{1, 0xaa, 0xbb}) // a 2-byte mixed run
	assert.ErrorIs(t, err, rle.ErrShortBuffer)
}
