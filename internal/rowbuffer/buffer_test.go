package rowbuffer_test

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptouchraster/rastertoptch/internal/ptcommand"
	"github.com/ptouchraster/rastertoptch/internal/rle"
	"github.com/ptouchraster/rastertoptch/internal/rowbuffer"
)

func TestStoreRowAllBackgroundEmitsZ(t *testing.T) {
	var sink bytes.Buffer
	buf := rowbuffer.New(&sink, ptcommand.SeriesPT, ptcommand.XferRunLength, 10)
	require.NoError(t, buf.StoreRow(nil, true))
	require.Equal(t, 1, buf.LinesWaiting())
	require.NoError(t, buf.Flush())
	assert.Equal(t, []byte{'Z'}, sink.Bytes())
}

func TestStoreRowEncodesTagAndLengthPerSeries(t *testing.T) {
	var sinkPT, sinkQL bytes.Buffer
	body := []byte{0x01, 0x02, 0x03}

	bufPT := rowbuffer.New(&sinkPT, ptcommand.SeriesPT, ptcommand.XferRunLength, 10)
	require.NoError(t, bufPT.StoreRow(body, false))
	require.NoError(t, bufPT.Flush())
	assert.Equal(t, append([]byte{'G', 0x03, 0x00}, body...), sinkPT.Bytes())

	bufQL := rowbuffer.New(&sinkQL, ptcommand.SeriesQL, ptcommand.XferRunLength, 10)
	require.NoError(t, bufQL.StoreRow(body, false))
	require.NoError(t, bufQL.Flush())
	assert.Equal(t, append([]byte{'g', 0x00, 0x03}, body...), sinkQL.Bytes())
}

func TestFlushIsNoopWhenEmpty(t *testing.T) {
	var sink bytes.Buffer
	buf := rowbuffer.New(&sink, ptcommand.SeriesPT, ptcommand.XferRunLength, 10)
	require.NoError(t, buf.Flush())
	assert.Equal(t, 0, sink.Len())
}

func TestStoreEmptyRowsZeroMaskUsesZTokens(t *testing.T) {
	var sink bytes.Buffer
	buf := rowbuffer.New(&sink, ptcommand.SeriesPT, ptcommand.XferRunLength, 10)
	require.NoError(t, buf.StoreEmptyRows(5, 0))
	require.NoError(t, buf.Flush())
	assert.Equal(t, bytes.Repeat([]byte{'Z'}, 5), sink.Bytes())
}

// Under negative print, 'Z' cannot be used (it always means background =
// zero) so each empty row must be synthesized as a full RLE row decoding
// back to bytesPerLine copies of xorMask.
func TestStoreEmptyRowsNegativePrintSynthesizesRuns(t *testing.T) {
	var sink bytes.Buffer
	const bpl = 300 // forces more than one 129-byte repeat chunk
	buf := rowbuffer.New(&sink, ptcommand.SeriesQL, ptcommand.XferRunLength, bpl)
	require.NoError(t, buf.StoreEmptyRows(2, 0xff))
	require.NoError(t, buf.Flush())

	p := sink.Bytes()
	for row := 0; row < 2; row++ {
		require.Equal(t, byte('g'), p[0])
		bodyLen := int(p[1])<<8 | int(p[2])
		body := p[3 : 3+bodyLen]
		p = p[3+bodyLen:]

		decoded := make([]byte, bpl)
		n, err := rle.DecodeLine(decoded, body)
		require.NoError(t, err)
		require.Equal(t, bpl, n)
		assert.Equal(t, bytes.Repeat([]byte{0xff}, bpl), decoded)
	}
	assert.Empty(t, p)
}

func TestFlushEmitsLabelPreamblePrintInfoFirst(t *testing.T) {
	var sink bytes.Buffer
	buf := rowbuffer.New(&sink, ptcommand.SeriesPT, ptcommand.XferRunLength, 4)
	buf.LabelPreamble = true
	var seenLines uint32
	buf.PrintInfo = func(w io.Writer, lines uint32) error {
		seenLines = lines
		_, err := w.Write([]byte{0xAA})
		return err
	}
	require.NoError(t, buf.StoreRow(nil, true))
	require.NoError(t, buf.StoreRow(nil, true))
	require.NoError(t, buf.Flush())

	assert.EqualValues(t, 2, seenLines)
	assert.Equal(t, []byte{0xAA, 'Z', 'Z'}, sink.Bytes())
}

func TestMaxLinesWaitingForcesFlush(t *testing.T) {
	var sink bytes.Buffer
	buf := rowbuffer.New(&sink, ptcommand.SeriesPT, ptcommand.XferRunLength, 4)
	buf.MaxLinesWaiting = 2

	require.NoError(t, buf.StoreRow(nil, true))
	assert.Equal(t, 1, buf.LinesWaiting())
	require.NoError(t, buf.StoreRow(nil, true))
	// The second StoreRow crossed MaxLinesWaiting and triggered a flush.
	assert.Equal(t, 0, buf.LinesWaiting())
	assert.Equal(t, []byte{'Z', 'Z'}, sink.Bytes())
}

func TestUncompressedExpansionFramesEachRow(t *testing.T) {
	var sink bytes.Buffer
	const bpl = 3
	buf := rowbuffer.New(&sink, ptcommand.SeriesPT, ptcommand.XferUncompressedLine, bpl)
	require.NoError(t, buf.StoreRow(nil, true)) // background row
	require.NoError(t, buf.Flush())
	assert.Equal(t, []byte{'g', 0x00, bpl, 0x00, 0x00, 0x00}, sink.Bytes())
}
