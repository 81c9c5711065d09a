// Package sequencer implements the per-job, per-page state machine that
// turns a page-by-page raster stream into a Brother P-touch/QL device byte
// stream: job initialization, per-page mode commands, the row loop
// (transform, RLE-encode, buffer), and page-close (flush, form-feed or
// eject).
package sequencer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"

	"github.com/noxer/bytewriter"

	"github.com/ptouchraster/rastertoptch/internal/options"
	"github.com/ptouchraster/rastertoptch/internal/ptcommand"
	"github.com/ptouchraster/rastertoptch/internal/rasterio"
	"github.com/ptouchraster/rastertoptch/internal/rle"
	"github.com/ptouchraster/rastertoptch/internal/rowbuffer"
	"github.com/ptouchraster/rastertoptch/internal/rowtransform"
)

// ErrReader wraps any error returned by the raster reader adapter.
var ErrReader = errors.New("sequencer: reader error")

// mmPerPt converts points to millimeters: 25.4 / 72.
const mmPerPt = 25.4 / 72.0

// ProgressFunc is invoked after each row of a page is processed.
type ProgressFunc func(page, height, completed int)

// PageAccountingFunc is invoked once a page has been fully flushed; it
// recovers the CUPS filter's "PAGE: n 1" spooler accounting line.
type PageAccountingFunc func(pageNumber int)

// Sequencer drives one job from a raster reader to an output sink.
type Sequencer struct {
	Options *options.JobOptions

	Logger             *slog.Logger
	ProgressFunc       ProgressFunc
	PageAccountingFunc PageAccountingFunc
}

func (s *Sequencer) logger() *slog.Logger {
	if s.Logger != nil {
		return s.Logger
	}
	return slog.Default()
}

// Run pulls pages and rows from reader and writes the device command stream
// to sink until the reader is exhausted or ctx is canceled. On cancellation
// it writes a single eject byte, discards whatever rows are buffered, and
// returns ctx.Err().
func (s *Sequencer) Run(ctx context.Context, reader rasterio.Reader, sink io.Writer) error {
	o := s.Options
	logger := s.logger()

	header, ok, err := reader.ReadPageHeader()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrReader, err)
	}
	if !ok {
		return nil
	}

	if err := s.emitJobInit(sink); err != nil {
		return err
	}

	series := o.Series()
	pageNum := 1
	emptyLines := 0

	for ok {
		if err := ctx.Err(); err != nil {
			_, _ = sink.Write([]byte{ptcommand.Eject})
			return err
		}

		xorMask := byte(0)
		if header.NegativePrint {
			xorMask = 0xff
		}

		logger.Debug("page geometry",
			"page", pageNum,
			"page_width_pt", header.PageWidth,
			"page_height_pt", header.PageHeight,
			"bbox_left", header.ImagingBBox[0],
			"bbox_bottom", header.ImagingBBox[1],
			"bbox_right", header.ImagingBBox[2],
			"bbox_top", header.ImagingBBox[3],
			"resolution_x", header.ResolutionX,
			"resolution_y", header.ResolutionY,
			"row_pixel_count", header.RowPixelCount,
			"row_count", header.RowCount,
			"negative_print", header.NegativePrint,
		)

		if err := s.emitPageOpenCommands(sink, header); err != nil {
			return err
		}

		geo := computeRowGeometry(o, header, pageNum)

		buf := rowbuffer.New(sink, series, o.PixelXfer, o.BytesPerLine)
		buf.LabelPreamble = o.LabelPreamble
		pageHeader := header
		pn := pageNum
		pageIsLast := false
		buf.PrintInfo = func(w io.Writer, lines uint32) error {
			return s.emitPrintInformation(w, pageHeader, lines, pn, pageIsLast)
		}

		if !o.ConcatPages || pageNum == 1 {
			emptyLines += geo.topEmptyLines
		}

		rawRow := make([]byte, header.RowByteCount)
		transformed := make([]byte, o.BytesPerLine)
		scratch := make([]byte, rle.Bound(o.BytesPerLine))

		for y := 0; y < header.RowCount; y++ {
			if err := ctx.Err(); err != nil {
				_, _ = sink.Write([]byte{ptcommand.Eject})
				return err
			}

			n, err := reader.ReadRow(rawRow)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrReader, err)
			}
			if n == 0 {
				break
			}

			if y < geo.topSkip || y+geo.botSkip >= header.RowCount {
				if s.ProgressFunc != nil {
					s.ProgressFunc(pageNum, header.RowCount, y+1)
				}
				continue
			}

			nonzero := rowtransform.TransformRow(rawRow[:geo.buflen], transformed, o.BytesPerLine, geo.rightPaddingBytes, geo.shift, geo.mirror, xorMask)
			if nonzero {
				if emptyLines > 0 {
					if err := buf.StoreEmptyRows(emptyLines, xorMask); err != nil {
						return err
					}
					emptyLines = 0
				}
				w := bytewriter.New(scratch)
				written, _, err := rle.EncodeLine(w, transformed)
				if err != nil {
					return err
				}
				if err := buf.StoreRow(scratch[:written], false); err != nil {
					return err
				}
			} else {
				emptyLines++
			}

			if s.ProgressFunc != nil {
				s.ProgressFunc(pageNum, header.RowCount, y+1)
			}
		}

		if !o.ConcatPages {
			emptyLines += geo.botEmptyLines
		}

		nextHeader, nextOK, err := reader.ReadPageHeader()
		if err != nil {
			return fmt.Errorf("%w: %v", ErrReader, err)
		}
		isLastPage := !nextOK
		pageIsLast = isLastPage

		if !o.ConcatPages || isLastPage {
			if isLastPage && o.ConcatPages {
				pt2pxY := float64(header.ResolutionY) / 72.0
				emptyLines = int(math.Round(header.ImagingBBox[1] * pt2pxY))
			}
			if err := buf.StoreEmptyRows(emptyLines, xorMask); err != nil {
				return err
			}
			emptyLines = 0
		}

		if err := buf.Flush(); err != nil {
			return err
		}

		switch {
		case isLastPage:
			if _, err := sink.Write([]byte{ptcommand.Eject}); err != nil {
				return err
			}
		case !o.ConcatPages:
			if _, err := sink.Write([]byte{ptcommand.FormFeed}); err != nil {
				return err
			}
		}

		if s.PageAccountingFunc != nil {
			s.PageAccountingFunc(pageNum)
		}

		header = nextHeader
		ok = nextOK
		pageNum++
	}

	return nil
}

func (s *Sequencer) emitJobInit(sink io.Writer) error {
	pad := make([]byte, ptcommand.RecoveryPadLength)
	if _, err := sink.Write(pad); err != nil {
		return err
	}
	if _, err := sink.Write([]byte{ptcommand.ESC, '@'}); err != nil {
		return err
	}

	o := s.Options
	if o.LegacyXferMode >= 0 {
		if _, err := sink.Write([]byte{ptcommand.ESC, 'i', ptcommand.SubLegacyTransferMode, byte(o.LegacyXferMode)}); err != nil {
			return err
		}
	}
	if o.XferMode >= 0 {
		if _, err := sink.Write([]byte{ptcommand.ESC, 'i', ptcommand.SubTransferMode, byte(o.XferMode)}); err != nil {
			return err
		}
	}
	if o.StatusNotification >= 0 {
		if _, err := sink.Write([]byte{ptcommand.ESC, 'i', ptcommand.SubStatusNotification, byte(o.StatusNotification)}); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sequencer) emitPageOpenCommands(sink io.Writer, h rasterio.PageHeader) error {
	o := s.Options
	logger := s.logger()

	if o.PrintDensity >= 1 && o.PrintDensity <= 5 {
		if _, err := sink.Write([]byte{ptcommand.ESC, 'i', ptcommand.SubDensity, byte(o.PrintDensity)}); err != nil {
			return err
		}
	}

	if o.LegacyHiRes && h.ResolutionX == 360 && (h.ResolutionY == 360 || h.ResolutionY == 720) {
		tapeWidthMM := int(math.Round(h.PageWidth * mmPerPt))
		if tapeWidthMM > 0xff {
			logger.Warn("tape width exceeds 255mm, clamping", "width_mm", tapeWidthMM)
			tapeWidthMM = 0xff
		}
		var payload []byte
		if h.ResolutionY == 360 {
			payload = []byte{ptcommand.ESC, 'i', ptcommand.SubLegacyGeometry,
				ptcommand.LegacyGeometryHeader360x360a, ptcommand.LegacyGeometryHeader360x360b,
				byte(tapeWidthMM), 0x00, 0x00}
		} else {
			payload = []byte{ptcommand.ESC, 'i', ptcommand.SubLegacyGeometry,
				ptcommand.LegacyGeometryHeader360x720a, ptcommand.LegacyGeometryHeader360x720b,
				byte(tapeWidthMM), 0x00, 0x01}
		}
		if _, err := sink.Write(payload); err != nil {
			return err
		}
	}

	var variousMode byte
	if o.AutoCut || o.CutMark {
		variousMode |= ptcommand.VariousModeAutoCut
	}
	if o.MirrorPrint && !o.SoftwareMirror {
		variousMode |= ptcommand.VariousModeMirror
	}
	if _, err := sink.Write([]byte{ptcommand.ESC, 'i', ptcommand.SubVariousMode, variousMode}); err != nil {
		return err
	}

	var advancedMode byte
	if !o.LegacyHiRes {
		if h.ResolutionX == 360 {
			if h.ResolutionY == 180 {
				advancedMode |= ptcommand.AdvancedModeDraft
			}
			if h.ResolutionY == 720 {
				advancedMode |= ptcommand.AdvancedModeHiRes
			}
		}
		if h.ResolutionX == 300 && h.ResolutionY == 600 {
			advancedMode |= ptcommand.AdvancedModeHiRes
		}
	}
	if o.HalfCut {
		advancedMode |= ptcommand.AdvancedModeHalfCut
	}
	if !o.ChainPrinting {
		advancedMode |= ptcommand.AdvancedModeNoChain
	}
	if _, err := sink.Write([]byte{ptcommand.ESC, 'i', ptcommand.SubAdvancedMode, advancedMode}); err != nil {
		return err
	}

	if o.CutLabel != -1 {
		if _, err := sink.Write([]byte{ptcommand.ESC, 'i', ptcommand.SubCutEvery, byte(o.CutLabel)}); err != nil {
			return err
		}
	}

	margin := 0.0
	if o.Media != options.MediaDieCutLabels {
		margin = o.MinMargin + o.Margin
	}
	pt2pxY := float64(h.ResolutionY) / 72.0
	feed := int(math.Round(margin * pt2pxY))
	if _, err := sink.Write([]byte{ptcommand.ESC, 'i', ptcommand.SubMargin, byte(feed & 0xff), byte((feed >> 8) & 0xff)}); err != nil {
		return err
	}

	switch o.PixelXfer {
	case ptcommand.XferRunLength:
		if _, err := sink.Write([]byte{ptcommand.CompressSelect, ptcommand.CompressTIFF}); err != nil {
			return err
		}
	case ptcommand.XferBitImage:
		imageHeightPx := int(math.Round(h.PageHeight * pt2pxY))
		if _, err := sink.Write([]byte{ptcommand.ESC, ptcommand.BitImg, ptcommand.BitImg2, byte(imageHeightPx & 0xff), byte((imageHeightPx >> 8) & 0xff)}); err != nil {
			return err
		}
	}

	return nil
}

func (s *Sequencer) emitPrintInformation(sink io.Writer, h rasterio.PageHeader, lines uint32, pageNum int, isLastPage bool) error {
	o := s.Options
	logger := s.logger()

	valid := ptcommand.PrintInfoValidWidth
	if o.LabelRecovery {
		valid |= ptcommand.PrintInfoValidRecover
	}

	var mediaKind byte
	switch {
	case o.QLSeries:
		if o.Quality == options.QualityHigh {
			valid |= ptcommand.PrintInfoValidQuality
		}
		valid |= ptcommand.PrintInfoValidKind
		switch o.Media {
		case options.MediaDieCutLabels:
			mediaKind = ptcommand.MediaTypeDieCutLabels
			valid |= ptcommand.PrintInfoValidLength
		default:
			mediaKind = ptcommand.MediaTypeContinuousTape
		}
	case o.PTSeries && h.ResolutionX == 360 && (h.ResolutionY == 180 || h.ResolutionY == 720):
		// PT-series hi-res/draft page: the printer needs media_type 0x09
		// to accept the resolution, but only at this specific setting.
		valid |= ptcommand.PrintInfoValidKind
		mediaKind = ptcommand.MediaTypePTLegacyHiRes
	}

	tapeWidthMM := int(math.Round(h.PageWidth * mmPerPt))
	if tapeWidthMM > 0xff {
		logger.Warn("tape width exceeds 255mm, clamping", "width_mm", tapeWidthMM)
		tapeWidthMM = 0xff
	}
	tapeLengthMM := 0
	if valid&ptcommand.PrintInfoValidLength != 0 {
		tapeLengthMM = int(math.Round(h.PageHeight * mmPerPt))
		if tapeLengthMM > 0xff {
			logger.Warn("tape length exceeds 255mm, clamping", "length_mm", tapeLengthMM)
			tapeLengthMM = 0xff
		}
	}

	whichPage := ptcommand.WhichPageFirst
	if pageNum > 1 {
		whichPage = ptcommand.WhichPageMiddle
	}
	if o.LastPageFlag && isLastPage {
		whichPage = ptcommand.WhichPageLast
	}

	payload := []byte{
		ptcommand.ESC, 'i', ptcommand.SubPrintInformation,
		valid,
		mediaKind,
		byte(tapeWidthMM),
		byte(tapeLengthMM),
		byte(lines),
		byte(lines >> 8),
		byte(lines >> 16),
		byte(lines >> 24),
		whichPage,
		0x00,
	}
	_, err := sink.Write(payload)
	return err
}

type rowGeometry struct {
	buflen            int
	rightPaddingBytes int
	shift             int
	mirror            bool
	topSkip           int
	botSkip           int
	topEmptyLines     int
	botEmptyLines     int
}

func computeRowGeometry(o *options.JobOptions, h rasterio.PageHeader, pageNum int) rowGeometry {
	mirror := o.SoftwareMirror && o.MirrorPrint
	bytesPerLine := o.BytesPerLine

	buflen := h.RowByteCount
	if buflen > 0xff {
		buflen = 0xff
	}
	if buflen > bytesPerLine {
		buflen = bytesPerLine
	}

	ptToPxX := float64(h.ResolutionX) / 72.0
	ptToPxY := float64(h.ResolutionY) / 72.0

	rightSpacingPx := 0.0
	if h.ImagingBBox[2] < h.PageWidth {
		rightSpacingPx = (h.PageWidth - h.ImagingBBox[2]) * ptToPxX
	}

	var rightPaddingBits int
	if o.Align == options.AlignCenter {
		leftSpacingPx := h.ImagingBBox[0] * ptToPxX
		totalBits := float64(bytesPerLine*8) - (leftSpacingPx + float64(h.RowPixelCount) + rightSpacingPx)
		rightPaddingBits = int(math.Round(totalBits))/2 + int(math.Round(rightSpacingPx))
		if rightPaddingBits < 0 {
			rightPaddingBits = 0
		}
	} else {
		rightPaddingBits = int(math.Round(rightSpacingPx))
	}

	rightPaddingBytes := rightPaddingBits / 8
	shift := rightPaddingBits % 8
	if !mirror {
		shift -= (8 - h.RowPixelCount%8) % 8
	}
	shiftPositive := 0
	if shift > 0 {
		shiftPositive = 1
	}
	if buflen+rightPaddingBytes+shiftPositive > bytesPerLine {
		if rightPaddingBytes+shiftPositive > bytesPerLine {
			rightPaddingBytes = bytesPerLine - shiftPositive
			if rightPaddingBytes < 0 {
				rightPaddingBytes = 0
			}
		}
		buflen = bytesPerLine - rightPaddingBytes - shiftPositive
		if buflen < 0 {
			buflen = 0
		}
	}

	var topEmptyLines int
	if h.ImagingBBox[3] != 0 && (!o.ConcatPages || pageNum == 1) {
		topDistancePt := h.PageHeight - h.ImagingBBox[3]
		topEmptyLines = int(math.Round(topDistancePt * ptToPxY))
	}

	imageHeightPx := int(math.Round(h.PageHeight * ptToPxY))
	var botEmptyLines int
	if imageHeightPx >= topEmptyLines+h.RowCount {
		botEmptyLines = imageHeightPx - topEmptyLines - h.RowCount
	}

	minFeed := int(math.Round(o.MinMargin * ptToPxY))

	var topSkip int
	switch {
	case o.Media == options.MediaDieCutLabels && topEmptyLines > 0:
		topEmptyLines = 0
	case topEmptyLines >= minFeed:
		topEmptyLines -= minFeed
	default:
		topSkip = minFeed - topEmptyLines
		topEmptyLines = 0
	}

	var botSkip int
	switch {
	case o.Media == options.MediaDieCutLabels && botEmptyLines > 0:
		botEmptyLines = 0
	case botEmptyLines >= minFeed:
		botEmptyLines -= minFeed
	default:
		botSkip = minFeed - botEmptyLines
		botEmptyLines = 0
	}

	return rowGeometry{
		buflen:            buflen,
		rightPaddingBytes: rightPaddingBytes,
		shift:             shift,
		mirror:            mirror,
		topSkip:           topSkip,
		botSkip:           botSkip,
		topEmptyLines:     topEmptyLines,
		botEmptyLines:     botEmptyLines,
	}
}
