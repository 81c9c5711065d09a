// Package decoder implements a pull parser over the Brother P-touch/QL
// device byte stream: the wire-format oracle used to round-trip test the
// encoder and to drive the ptexplain diagnostic tool. Unlike the original
// C tool, a malformed byte produces a DecodeError event rather than
// aborting the process — a diagnostic tool that stops at the first bad
// byte is less useful than one that reports and resumes.
package decoder

import (
	"bufio"
	"errors"
	"fmt"
	"io"

	"github.com/ptouchraster/rastertoptch/internal/ptcommand"
	"github.com/ptouchraster/rastertoptch/internal/rle"
)

// EventKind discriminates the typed event union Decoder.Next returns.
type EventKind int

const (
	EventReset EventKind = iota
	EventInitialize
	EventSwitchStatusNotification
	EventStatusRequest
	EventSwitchMode
	EventPrintInformation
	EventVariousMode
	EventAdvancedMode
	EventMargin
	EventCutEvery
	EventLegacyGeometry
	EventUndocumentedCommand
	EventSelectCompression
	EventRasterLine
	EventZeroRasterLine
	EventPrint
	EventEndOfJob
	EventDecodeError
)

func (k EventKind) String() string {
	switch k {
	case EventReset:
		return "Reset"
	case EventInitialize:
		return "Initialize"
	case EventSwitchStatusNotification:
		return "SwitchStatusNotification"
	case EventStatusRequest:
		return "StatusRequest"
	case EventSwitchMode:
		return "SwitchMode"
	case EventPrintInformation:
		return "PrintInformation"
	case EventVariousMode:
		return "VariousMode"
	case EventAdvancedMode:
		return "AdvancedMode"
	case EventMargin:
		return "Margin"
	case EventCutEvery:
		return "CutEvery"
	case EventLegacyGeometry:
		return "LegacyGeometry"
	case EventUndocumentedCommand:
		return "UndocumentedCommand"
	case EventSelectCompression:
		return "SelectCompression"
	case EventRasterLine:
		return "RasterLine"
	case EventZeroRasterLine:
		return "ZeroRasterLine"
	case EventPrint:
		return "Print"
	case EventEndOfJob:
		return "EndOfJob"
	case EventDecodeError:
		return "DecodeError"
	default:
		return "Unknown"
	}
}

// Mode is the transfer mode named by ESC i R / ESC i a.
type Mode int

const (
	ModeUnknown Mode = iota
	ModeESCP
	ModeRaster
	ModePTemplate
)

func (m Mode) String() string {
	switch m {
	case ModeESCP:
		return "ESC/P"
	case ModeRaster:
		return "raster"
	case ModePTemplate:
		return "P-touch Template"
	default:
		return "unknown"
	}
}

// Compression is the selection made by the top-level 'M' command.
type Compression int

const (
	CompressionUnspecified Compression = iota
	CompressionNone
	CompressionTIFF
	CompressionInvalid
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionTIFF:
		return "TIFF"
	case CompressionInvalid:
		return "invalid"
	default:
		return "unspecified"
	}
}

// WhichPage is the page-position byte carried by ESC i z.
type WhichPage int

const (
	PageFirst WhichPage = iota
	PageNonFirst
	PageLast
)

func (p WhichPage) String() string {
	switch p {
	case PageFirst:
		return "first"
	case PageLast:
		return "last"
	default:
		return "middle"
	}
}

// PrintInformation is the decoded payload of ESC i z.
type PrintInformation struct {
	Valid     byte
	Kind      byte
	Width     byte
	Length    byte
	Lines     uint32
	WhichPage WhichPage
}

// Event is one decoded command. Only the fields relevant to Kind are
// populated; the rest are zero.
type Event struct {
	Kind   EventKind
	Offset int64

	ResetCount int
	Legacy     bool
	NotifyOn   bool
	Mode       Mode

	PrintInfo PrintInformation

	Flags byte

	MarginLines int
	CutEveryN   int

	LegacyGeometry []byte
	Undocumented   []byte

	Compression Compression

	RasterBytes        []byte
	RasterCompression  Compression
	RasterDecodedWidth int

	DecodeError error
}

// ErrTruncated marks a DecodeError event produced because the stream
// ended in the middle of a multi-byte command.
var ErrTruncated = errors.New("decoder: truncated command")

// ErrUnknownCommand marks a DecodeError event produced by an
// unrecognized control byte or escape sub-command.
var ErrUnknownCommand = errors.New("decoder: unknown command")

// ErrCompressionMismatch marks a DecodeError event produced by a 'Z'
// token outside TIFF compression mode, or a malformed 'g'/'G' length
// prefix.
var ErrCompressionMismatch = errors.New("decoder: compression mismatch")

// Decoder is a pull parser over one or more concatenated device byte
// streams.
type Decoder struct {
	r           *bufio.Reader
	offset      int64
	initialized bool
	compression Compression
}

// New wraps r for decoding.
func New(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

func (d *Decoder) readByte() (byte, error) {
	b, err := d.r.ReadByte()
	if err != nil {
		return 0, err
	}
	d.offset++
	return b, nil
}

func (d *Decoder) readN(n int) ([]byte, error) {
	buf := make([]byte, n)
	got, err := io.ReadFull(d.r, buf)
	d.offset += int64(got)
	return buf[:got], err
}

func (d *Decoder) truncated(offset int64) Event {
	return Event{Kind: EventDecodeError, Offset: offset, DecodeError: ErrTruncated}
}

// Next decodes and returns the next event. It returns io.EOF (with a
// zero Event) once the stream is exhausted at a command boundary.
func (d *Decoder) Next() (Event, error) {
	startOffset := d.offset
	c, err := d.readByte()
	if err != nil {
		return Event{}, io.EOF
	}

	if c == 0 {
		n := 1
		for {
			next, err := d.readByte()
			if err != nil {
				return Event{Kind: EventReset, Offset: startOffset, ResetCount: n}, nil
			}
			if next != 0 {
				if err := d.r.UnreadByte(); err != nil {
					return Event{}, err
				}
				d.offset--
				break
			}
			n++
		}
		d.initialized = false
		return Event{Kind: EventReset, Offset: startOffset, ResetCount: n}, nil
	}

	if c != ptcommand.ESC && !d.initialized {
		d.initialized = true
		return Event{Kind: EventDecodeError, Offset: startOffset, DecodeError: fmt.Errorf("%w: initialize command missing", ErrUnknownCommand)}, nil
	}

	switch c {
	case ptcommand.ESC:
		return d.decodeEscape(startOffset)

	case ptcommand.CompressSelect:
		b, err := d.readByte()
		if err != nil {
			return d.truncated(startOffset), nil
		}
		switch b {
		case ptcommand.CompressNone:
			d.compression = CompressionNone
			return Event{Kind: EventSelectCompression, Offset: startOffset, Compression: CompressionNone}, nil
		case ptcommand.CompressTIFF:
			d.compression = CompressionTIFF
			return Event{Kind: EventSelectCompression, Offset: startOffset, Compression: CompressionTIFF}, nil
		default:
			return Event{Kind: EventSelectCompression, Offset: startOffset, Compression: CompressionInvalid,
				DecodeError: fmt.Errorf("%w: unrecognized compression mode byte 0x%02x", ErrCompressionMismatch, b)}, nil
		}

	case 'g', 'G':
		return d.decodeRasterLine(startOffset, c)

	case ptcommand.LineEmpty:
		d.checkCompressionSpecified()
		var decodeErr error
		if d.compression != CompressionTIFF {
			decodeErr = fmt.Errorf("%w: 'Z' is only valid under TIFF compression", ErrCompressionMismatch)
		}
		return Event{Kind: EventZeroRasterLine, Offset: startOffset, DecodeError: decodeErr}, nil

	case ptcommand.FormFeed:
		return Event{Kind: EventPrint, Offset: startOffset}, nil

	case ptcommand.Eject:
		d.initialized = false
		return Event{Kind: EventEndOfJob, Offset: startOffset}, nil

	default:
		d.initialized = true
		return Event{Kind: EventDecodeError, Offset: startOffset, DecodeError: fmt.Errorf("%w: byte 0x%02x", ErrUnknownCommand, c)}, nil
	}
}

func (d *Decoder) checkCompressionSpecified() {
	if d.compression == CompressionUnspecified {
		d.compression = CompressionNone
	}
}

func (d *Decoder) decodeEscape(startOffset int64) (Event, error) {
	c, err := d.readByte()
	if err != nil {
		return d.truncated(startOffset), nil
	}

	if c != '@' && !d.initialized {
		d.initialized = true
	}

	switch c {
	case '@':
		d.initialized = true
		return Event{Kind: EventInitialize, Offset: startOffset}, nil

	case 'i':
		return d.decodeEscI(startOffset)

	default:
		return Event{Kind: EventDecodeError, Offset: startOffset, DecodeError: fmt.Errorf("%w: ESC 0x%02x", ErrUnknownCommand, c)}, nil
	}
}

func (d *Decoder) decodeEscI(startOffset int64) (Event, error) {
	sub, err := d.readByte()
	if err != nil {
		return d.truncated(startOffset), nil
	}

	switch sub {
	case ptcommand.SubStatusNotification:
		b, err := d.readByte()
		if err != nil {
			return d.truncated(startOffset), nil
		}
		return Event{Kind: EventSwitchStatusNotification, Offset: startOffset, NotifyOn: b == 0}, nil

	case 'S':
		return Event{Kind: EventStatusRequest, Offset: startOffset}, nil

	case ptcommand.SubLegacyTransferMode, ptcommand.SubTransferMode:
		legacy := sub == ptcommand.SubLegacyTransferMode
		b, err := d.readByte()
		if err != nil {
			return d.truncated(startOffset), nil
		}
		ev := Event{Kind: EventSwitchMode, Offset: startOffset, Legacy: legacy}
		switch b {
		case 0:
			ev.Mode = ModeESCP
		case 1:
			ev.Mode = ModeRaster
		case 3:
			ev.Mode = ModePTemplate
		default:
			ev.Mode = ModeUnknown
			ev.DecodeError = fmt.Errorf("%w: unknown transfer mode byte 0x%02x", ErrUnknownCommand, b)
		}
		return ev, nil

	case ptcommand.SubPrintInformation:
		data, err := d.readN(10)
		if err != nil {
			return d.truncated(startOffset), nil
		}
		lines := uint32(data[4]) | uint32(data[5])<<8 | uint32(data[6])<<16 | uint32(data[7])<<24
		return Event{Kind: EventPrintInformation, Offset: startOffset, PrintInfo: PrintInformation{
			Valid:     data[0],
			Kind:      data[1],
			Width:     data[2],
			Length:    data[3],
			Lines:     lines,
			WhichPage: WhichPage(data[8]),
		}}, nil

	case ptcommand.SubVariousMode:
		b, err := d.readByte()
		if err != nil {
			return d.truncated(startOffset), nil
		}
		return Event{Kind: EventVariousMode, Offset: startOffset, Flags: b}, nil

	case ptcommand.SubAdvancedMode:
		b, err := d.readByte()
		if err != nil {
			return d.truncated(startOffset), nil
		}
		return Event{Kind: EventAdvancedMode, Offset: startOffset, Flags: b}, nil

	case ptcommand.SubMargin:
		data, err := d.readN(2)
		if err != nil {
			return d.truncated(startOffset), nil
		}
		return Event{Kind: EventMargin, Offset: startOffset, MarginLines: int(data[0]) + int(data[1])<<8}, nil

	case ptcommand.SubUndocumentedU:
		data, err := d.readN(15)
		if err != nil {
			return d.truncated(startOffset), nil
		}
		return Event{Kind: EventUndocumentedCommand, Offset: startOffset, Undocumented: data}, nil

	case ptcommand.SubCutEvery:
		b, err := d.readByte()
		if err != nil {
			return d.truncated(startOffset), nil
		}
		return Event{Kind: EventCutEvery, Offset: startOffset, CutEveryN: int(b)}, nil

	case ptcommand.SubUndocumentedK:
		data, err := d.readN(3)
		if err != nil {
			return d.truncated(startOffset), nil
		}
		return Event{Kind: EventUndocumentedCommand, Offset: startOffset, Undocumented: data}, nil

	case ptcommand.SubLegacyGeometry:
		data, err := d.readN(5)
		if err != nil {
			return d.truncated(startOffset), nil
		}
		return Event{Kind: EventLegacyGeometry, Offset: startOffset, LegacyGeometry: data}, nil

	default:
		return Event{Kind: EventDecodeError, Offset: startOffset, DecodeError: fmt.Errorf("%w: ESC i 0x%02x", ErrUnknownCommand, sub)}, nil
	}
}

func (d *Decoder) decodeRasterLine(startOffset int64, tag byte) (Event, error) {
	data, err := d.readN(2)
	if err != nil {
		return d.truncated(startOffset), nil
	}

	var n int
	if tag == 'g' {
		if data[0] != 0 && d.compression != CompressionTIFF {
			return Event{Kind: EventDecodeError, Offset: startOffset,
				DecodeError: fmt.Errorf("%w: uncompressed raster length high byte must be 0", ErrCompressionMismatch)}, nil
		}
		n = int(data[0])<<8 | int(data[1])
	} else {
		n = int(data[0]) + int(data[1])<<8
	}

	d.checkCompressionSpecified()

	body, err := d.readN(n)
	if err != nil {
		return d.truncated(startOffset), nil
	}

	ev := Event{Kind: EventRasterLine, Offset: startOffset, RasterCompression: d.compression}
	if d.compression == CompressionTIFF {
		// A 2-byte repeat run can expand to 129 output bytes; this is the
		// worst case, not a typical one, but decode has no prior notion of
		// the row's true width to size against.
		decoded := make([]byte, n*129)
		width, decErr := rle.DecodeLine(decoded, body)
		if decErr != nil {
			ev.DecodeError = fmt.Errorf("%w: %v", ErrCompressionMismatch, decErr)
			ev.RasterBytes = body
			return ev, nil
		}
		ev.RasterBytes = decoded[:width]
		ev.RasterDecodedWidth = width
	} else {
		ev.RasterBytes = body
		ev.RasterDecodedWidth = n
	}
	return ev, nil
}
