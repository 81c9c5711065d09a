package decoder_test

import (
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/noxer/bytewriter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ptouchraster/rastertoptch/internal/decoder"
	"github.com/ptouchraster/rastertoptch/internal/options"
	"github.com/ptouchraster/rastertoptch/internal/ptcommand"
	"github.com/ptouchraster/rastertoptch/internal/rasterio"
	"github.com/ptouchraster/rastertoptch/internal/rle"
	"github.com/ptouchraster/rastertoptch/internal/sequencer"
)

func TestDecodeResetThenInitialize(t *testing.T) {
	d := decoder.New(bytes.NewReader([]byte{0, 0, 0, ptcommand.ESC, '@'}))

	ev, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, decoder.EventReset, ev.Kind)
	assert.Equal(t, 3, ev.ResetCount)

	ev, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, decoder.EventInitialize, ev.Kind)

	_, err = d.Next()
	assert.Equal(t, io.EOF, err)
}

func TestDecodeVariousAndAdvancedMode(t *testing.T) {
	input := []byte{
		ptcommand.ESC, '@',
		ptcommand.ESC, 'i', ptcommand.SubVariousMode, 0xc0,
		ptcommand.ESC, 'i', ptcommand.SubAdvancedMode, 0x41,
	}
	d := decoder.New(bytes.NewReader(input))

	_, err := d.Next()
	require.NoError(t, err)

	ev, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, decoder.EventVariousMode, ev.Kind)
	assert.Equal(t, byte(0xc0), ev.Flags)

	ev, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, decoder.EventAdvancedMode, ev.Kind)
	assert.Equal(t, byte(0x41), ev.Flags)
}

func TestDecodePrintInformation(t *testing.T) {
	input := []byte{
		ptcommand.ESC, '@',
		ptcommand.ESC, 'i', ptcommand.SubPrintInformation,
		0x86, 0x0a, 24, 0, 7, 0, 0, 0, 0, 0x00,
	}
	d := decoder.New(bytes.NewReader(input))
	_, err := d.Next()
	require.NoError(t, err)

	ev, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, decoder.EventPrintInformation, ev.Kind)
	assert.Equal(t, byte(0x86), ev.PrintInfo.Valid)
	assert.Equal(t, byte(0x0a), ev.PrintInfo.Kind)
	assert.Equal(t, byte(24), ev.PrintInfo.Width)
	assert.Equal(t, uint32(7), ev.PrintInfo.Lines)
	assert.Equal(t, decoder.PageFirst, ev.PrintInfo.WhichPage)
}

func TestDecodeRasterLineTIFFRoundTrip(t *testing.T) {
	row := []byte{0xaa, 0xaa, 0xaa, 0xff, 0x00, 0x00, 0x00, 0x00}
	scratch := make([]byte, rle.Bound(len(row)))
	w := bytewriter.New(scratch)
	written, _, err := rle.EncodeLine(w, row)
	require.NoError(t, err)

	var input bytes.Buffer
	input.Write([]byte{ptcommand.ESC, '@'})
	input.Write([]byte{ptcommand.CompressSelect, ptcommand.CompressTIFF})
	input.Write([]byte{'G', byte(written), byte(written >> 8)})
	input.Write(scratch[:written])

	d := decoder.New(&input)
	_, err = d.Next()
	require.NoError(t, err)
	ev, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, decoder.EventSelectCompression, ev.Kind)
	assert.Equal(t, decoder.CompressionTIFF, ev.Compression)

	ev, err = d.Next()
	require.NoError(t, err)
	require.Equal(t, decoder.EventRasterLine, ev.Kind)
	assert.NoError(t, ev.DecodeError)
	assert.Equal(t, row, ev.RasterBytes)
}

func TestDecodeZeroRasterLineOutsideTIFFIsDecodeError(t *testing.T) {
	input := []byte{
		ptcommand.ESC, '@',
		ptcommand.CompressSelect, ptcommand.CompressNone,
		ptcommand.LineEmpty,
	}
	d := decoder.New(bytes.NewReader(input))
	_, err := d.Next()
	require.NoError(t, err)
	_, err = d.Next()
	require.NoError(t, err)

	ev, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, decoder.EventZeroRasterLine, ev.Kind)
	assert.ErrorIs(t, ev.DecodeError, decoder.ErrCompressionMismatch)
}

func TestDecodeUndocumentedCommands(t *testing.T) {
	input := []byte{ptcommand.ESC, '@',
		ptcommand.ESC, 'i', ptcommand.SubUndocumentedU}
	input = append(input, make([]byte, 15)...)
	input = append(input, ptcommand.ESC, 'i', ptcommand.SubUndocumentedK, 1, 2, 3)

	d := decoder.New(bytes.NewReader(input))
	_, err := d.Next()
	require.NoError(t, err)

	ev, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, decoder.EventUndocumentedCommand, ev.Kind)
	assert.Len(t, ev.Undocumented, 15)

	ev, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, decoder.EventUndocumentedCommand, ev.Kind)
	assert.Equal(t, []byte{1, 2, 3}, ev.Undocumented)
}

func TestDecodeUnknownCommandIsNonFatalAndContinues(t *testing.T) {
	input := []byte{ptcommand.ESC, '@', 0xfe, ptcommand.FormFeed}
	d := decoder.New(bytes.NewReader(input))

	_, err := d.Next()
	require.NoError(t, err)

	ev, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, decoder.EventDecodeError, ev.Kind)
	assert.ErrorIs(t, ev.DecodeError, decoder.ErrUnknownCommand)

	ev, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, decoder.EventPrint, ev.Kind)
}

func TestDecodeRoundTripsSequencerOutput(t *testing.T) {
	o, err := options.Parse("pt-series")
	require.NoError(t, err)
	o.BytesPerLine = 2

	reader := rasterio.NewMemoryReader([]rasterio.MemoryPage{
		{
			Header: rasterio.PageHeader{
				ResolutionX: 72, ResolutionY: 72,
				PageWidth: 16, PageHeight: 3,
				ImagingBBox:   [4]float64{0, 0, 16, 3},
				RowByteCount:  2,
				RowPixelCount: 16,
				RowCount:      3,
			},
			Rows: [][]byte{{0x00, 0x00}, {0xff, 0x0f}, {0x00, 0x00}},
		},
	})

	var sink bytes.Buffer
	seq := &sequencer.Sequencer{Options: o}
	require.NoError(t, seq.Run(context.Background(), reader, &sink))

	d := decoder.New(&sink)
	var sawInitialize, sawEndOfJob int
	for {
		ev, err := d.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		switch ev.Kind {
		case decoder.EventInitialize:
			sawInitialize++
		case decoder.EventEndOfJob:
			sawEndOfJob++
		case decoder.EventDecodeError:
			t.Fatalf("unexpected decode error: %v", ev.DecodeError)
		}
	}
	assert.Equal(t, 1, sawInitialize)
	assert.Equal(t, 1, sawEndOfJob)
}
