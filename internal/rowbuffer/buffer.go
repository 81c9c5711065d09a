// Package rowbuffer accumulates encoded raster rows for one page, growing
// its backing arena geometrically, and flushes them to a sink either on
// size pressure or at the caller's request (normally page end).
package rowbuffer

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ptouchraster/rastertoptch/internal/ptcommand"
	"github.com/ptouchraster/rastertoptch/internal/rle"
)

// ErrOutOfBuffer is returned by Ensure when the arena cannot grow enough
// to hold a pending write, even after flushing to the sink.
var ErrOutOfBuffer = errors.New("rowbuffer: out of buffer space")

// HardCap is the largest the arena is ever allowed to grow to.
const HardCap = 1_000_000

// PrintInfoFunc writes a page's print-information command (ESC i z) to w,
// reporting lines as the line count field. It is invoked by Flush
// immediately before the buffered row data when LabelPreamble is set.
type PrintInfoFunc func(w io.Writer, lines uint32) error

// Buffer is a per-page row arena. The zero value is not usable; construct
// one with New.
type Buffer struct {
	Series        ptcommand.Series
	Xfer          ptcommand.PixelXfer
	BytesPerLine  int
	LabelPreamble bool
	PrintInfo     PrintInfoFunc

	// MaxLinesWaiting forces a flush once this many lines have
	// accumulated; it exists to let tests force mid-page flushes. The
	// default is effectively unbounded.
	MaxLinesWaiting int

	sink         io.Writer
	arena        []byte
	linesWaiting int
}

// New constructs a Buffer that flushes completed pages to sink.
func New(sink io.Writer, series ptcommand.Series, xfer ptcommand.PixelXfer, bytesPerLine int) *Buffer {
	return &Buffer{
		Series:          series,
		Xfer:            xfer,
		BytesPerLine:    bytesPerLine,
		MaxLinesWaiting: math.MaxInt32,
		sink:            sink,
	}
}

// LinesWaiting reports the number of rows currently buffered.
func (b *Buffer) LinesWaiting() int {
	return b.linesWaiting
}

// Ensure grows the arena so that n more bytes can be appended without
// reallocating, flushing to the sink first if growth would exceed
// HardCap.
func (b *Buffer) Ensure(n int) error {
	if len(b.arena)+n <= cap(b.arena) {
		return nil
	}
	target := cap(b.arena)*2 + 0x4000
	if target < len(b.arena)+n {
		target = len(b.arena) + n
	}
	if target <= HardCap {
		grown := make([]byte, len(b.arena), target)
		copy(grown, b.arena)
		b.arena = grown
		return nil
	}
	if err := b.Flush(); err != nil {
		return err
	}
	if n > HardCap {
		return fmt.Errorf("%w: requested %d bytes exceeds hard cap of %d", ErrOutOfBuffer, n, HardCap)
	}
	if cap(b.arena) < n {
		b.arena = make([]byte, 0, HardCap)
	}
	return nil
}

// StoreRow appends one encoded row: a bare 'Z' token if allBackground,
// otherwise a tagged packet carrying body with a length prefix in this
// buffer's series byte order.
func (b *Buffer) StoreRow(body []byte, allBackground bool) error {
	if allBackground {
		if err := b.Ensure(1); err != nil {
			return err
		}
		b.arena = append(b.arena, ptcommand.LineEmpty)
	} else {
		if err := b.Ensure(3 + len(body)); err != nil {
			return err
		}
		b.arena = append(b.arena, b.Series.LineTag())
		var lenBuf [2]byte
		b.Series.PutLength(lenBuf[:], uint16(len(body)))
		b.arena = append(b.arena, lenBuf[:]...)
		b.arena = append(b.arena, body...)
	}
	b.linesWaiting++
	if b.linesWaiting >= b.MaxLinesWaiting {
		return b.Flush()
	}
	return nil
}

// StoreEmptyRows appends n synthetic background rows. When xorMask is
// zero, background is the all-zero row and the cheap 'Z' shortcut
// applies. Under negative print (xorMask != 0) the device has no
// "repeat the inverted background" shortcut, so n full rows of
// BytesPerLine repeats of xorMask are synthesized instead, each split
// into repeat runs of at most 129 bytes.
func (b *Buffer) StoreEmptyRows(n int, xorMask byte) error {
	if n <= 0 {
		return nil
	}
	if xorMask == 0 {
		if err := b.Ensure(n); err != nil {
			return err
		}
		for i := 0; i < n; i++ {
			b.arena = append(b.arena, ptcommand.LineEmpty)
		}
		b.linesWaiting += n
		return nil
	}

	blocks := (b.BytesPerLine + 127) / 128
	if err := b.Ensure(n * (3 + blocks*2)); err != nil {
		return err
	}
	for i := 0; i < n; i++ {
		start := len(b.arena)
		b.arena = append(b.arena, 0, 0, 0) // tag + length placeholder
		for remaining := b.BytesPerLine; remaining > 0; {
			chunk := remaining
			if chunk > 129 {
				chunk = 129
			}
			b.arena = append(b.arena, byte(int8(1-chunk)), xorMask)
			remaining -= chunk
		}
		rleLen := len(b.arena) - start - 3
		b.arena[start] = b.Series.LineTag()
		b.Series.PutLength(b.arena[start+1:start+3], uint16(rleLen))
	}
	b.linesWaiting += n
	return nil
}

// Flush writes any buffered rows to the sink and resets the buffer for
// the next run of rows. It is a no-op if nothing is buffered.
func (b *Buffer) Flush() error {
	if b.linesWaiting == 0 {
		return nil
	}
	if b.LabelPreamble && b.PrintInfo != nil {
		if err := b.PrintInfo(b.sink, uint32(b.linesWaiting)); err != nil {
			return err
		}
	}

	switch b.Xfer {
	case ptcommand.XferRunLength:
		if _, err := b.sink.Write(b.arena); err != nil {
			return err
		}
	case ptcommand.XferUncompressedLine, ptcommand.XferBitImage:
		if err := b.flushExpanded(); err != nil {
			return err
		}
	default:
		return fmt.Errorf("rowbuffer: unknown pixel transfer mode %v", b.Xfer)
	}

	b.arena = b.arena[:0]
	b.linesWaiting = 0
	return nil
}

// flushExpanded decodes every buffered packet back to bytesPerLine raw
// bytes and writes it in uncompressed or bit-image framing. Uncompressed
// lines each get their own "g 0 bpl" header; bit-image lines rely on the
// page-level line count the sequencer already emitted and carry no
// per-row framing.
func (b *Buffer) flushExpanded() error {
	scratch := make([]byte, b.BytesPerLine)
	p := 0
	for p < len(b.arena) {
		tag := b.arena[p]
		p++

		var n int
		if tag == ptcommand.LineEmpty {
			n = 0
		} else {
			lenBuf := b.arena[p : p+2]
			p += 2
			bodyLen := int(b.Series.Length(lenBuf))
			body := b.arena[p : p+bodyLen]
			p += bodyLen
			var err error
			n, err = rle.DecodeLine(scratch, body)
			if err != nil {
				return err
			}
		}
		for i := n; i < b.BytesPerLine; i++ {
			scratch[i] = 0
		}

		if b.Xfer == ptcommand.XferUncompressedLine {
			if _, err := b.sink.Write([]byte{'g', 0x00, byte(b.BytesPerLine)}); err != nil {
				return err
			}
		}
		if _, err := b.sink.Write(scratch); err != nil {
			return err
		}
	}
	return nil
}
