// Package ptcommand holds the wire-format byte constants shared by the
// command sequencer (which emits them) and the decoder (which recognizes
// them). Keeping them in one place means the two halves of the protocol
// can't silently drift apart.
package ptcommand

// Single-byte, unprefixed tokens.
const (
	FormFeed byte = 0x0c // print, no eject
	Eject    byte = 0x1a // print and eject; ends a job
)

// Escape introducer and the bit-image page header's second byte.
const (
	ESC     byte = 0x1b
	BitImg  byte = '*' // ESC '*' ''' <lo> <hi>
	BitImg2 byte = 0x27
)

// Letter 'i' always follows ESC for the commands below; Sub* names the
// third byte, which selects the sub-command.
const (
	SubLegacyTransferMode byte = 'R'
	SubTransferMode       byte = 'a'
	SubStatusNotification byte = '!'
	SubDensity            byte = 'D'
	SubLegacyGeometry     byte = 'c'
	SubVariousMode        byte = 'M'
	SubAdvancedMode       byte = 'K'
	SubCutEvery           byte = 'A'
	SubMargin             byte = 'd'
	SubPrintInformation   byte = 'z'
	SubUndocumentedU      byte = 'U'
	SubUndocumentedK      byte = 'k'
)

// ESC i M (various mode) flag bits.
const (
	VariousModeAutoCut byte = 0x40
	VariousModeMirror  byte = 0x80
)

// ESC i K (advanced mode) flag bits.
const (
	AdvancedModeDraft      byte = 0x01
	AdvancedModeHalfCut    byte = 0x04
	AdvancedModeNoChain    byte = 0x08
	AdvancedModeSpecial    byte = 0x10
	AdvancedModeHiRes      byte = 0x40
	AdvancedModeNoClearing byte = 0x80
)

// ESC i z (print information) valid-mask bits.
const (
	PrintInfoValidKind    byte = 0x02
	PrintInfoValidWidth   byte = 0x04
	PrintInfoValidLength  byte = 0x08
	PrintInfoValidQuality byte = 0x40
	PrintInfoValidRecover byte = 0x80
)

// Media-type byte carried by ESC i z when PrintInfoValidKind is set.
const (
	MediaTypeContinuousTape byte = 0x0a
	MediaTypeDieCutLabels   byte = 0x0b
	MediaTypePTLegacyHiRes  byte = 0x09
)

// Which-page byte carried by ESC i z.
const (
	WhichPageFirst  byte = 0
	WhichPageMiddle byte = 1
	WhichPageLast   byte = 2
)

// Top-level (unprefixed) compression-select command and its modes.
const (
	CompressSelect byte = 'M'
	CompressNone   byte = 0x00
	CompressTIFF   byte = 0x02
)

// PixelXfer is the job-level pixel transfer mode: how row data is framed
// on the wire.
type PixelXfer int

const (
	XferRunLength PixelXfer = iota
	XferUncompressedLine
	XferBitImage
)

// Raster line tags.
const (
	LineLittleEndian byte = 'G' // pt-series compressed line, little-endian length
	LineBigEndian    byte = 'g' // ql-series compressed line (big-endian length) or uncompressed line
	LineEmpty        byte = 'Z'
)

// RecoveryPadLength is the number of zero bytes emitted at job start to
// flush any unterminated command left in the device's input buffer.
const RecoveryPadLength = 350

// LegacyGeometryHeader360x360a/b and LegacyGeometryHeader360x720a/b are the
// first two bytes of the 5-byte payload following ESC i c at the two
// resolutions legacy-hires mode supports; the caller appends the tape-width
// byte and the remaining two bytes.
const (
	LegacyGeometryHeader360x360a byte = 0x84
	LegacyGeometryHeader360x360b byte = 0x00
	LegacyGeometryHeader360x720a byte = 0x86
	LegacyGeometryHeader360x720b byte = 0x09
)

// Series collapses the source's two independent pt-series/ql-series
// booleans into the single enum the design notes call for: the only
// things that vary with series are the compressed-line tag byte and the
// endianness of its length prefix.
type Series int

const (
	SeriesPT Series = iota
	SeriesQL
)

// LineTag returns the tag byte a compressed raster line uses for this
// series.
func (s Series) LineTag() byte {
	if s == SeriesQL {
		return LineBigEndian
	}
	return LineLittleEndian
}

// PutLength writes the 2-byte length prefix for a compressed raster line
// in this series' byte order.
func (s Series) PutLength(buf []byte, n uint16) {
	if s == SeriesQL {
		buf[0] = byte(n >> 8)
		buf[1] = byte(n)
		return
	}
	buf[0] = byte(n)
	buf[1] = byte(n >> 8)
}

// Length reads back a 2-byte length prefix written by PutLength.
func (s Series) Length(buf []byte) uint16 {
	if s == SeriesQL {
		return uint16(buf[0])<<8 | uint16(buf[1])
	}
	return uint16(buf[1])<<8 | uint16(buf[0])
}
