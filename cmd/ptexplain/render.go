package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/ptouchraster/rastertoptch/internal/decoder"
)

// colorClass mirrors ptexplain.c's enum data_type, used to pick an ANSI
// color for a rendered line.
type colorClass int

const (
	classInfo colorClass = iota
	classControl
	classData
	classRaster
	classRunLength
	classFlagSet
	classFlagCleared
	classError
)

// ansiColor holds the on/off escape pair for one class, lifted from
// ptexplain.c's colors[] table.
type ansiColor struct{ on, off string }

var ansiColors = map[colorClass]ansiColor{
	classInfo:        {"", ""},
	classControl:     {"\x1b[34m", "\x1b[0m"},
	classData:        {"\x1b[32m", "\x1b[0m"},
	classRaster:      {"\x1b[33m", "\x1b[0m"},
	classRunLength:   {"\x1b[33;1m", "\x1b[0m"},
	classFlagSet:     {"\x1b[33;1m", "\x1b[0m"},
	classFlagCleared: {"\x1b[33m", "\x1b[0m"},
	classError:       {"\x1b[31;1m", "\x1b[0m"},
}

func eventClass(ev decoder.Event) colorClass {
	switch ev.Kind {
	case decoder.EventDecodeError:
		return classError
	case decoder.EventRasterLine, decoder.EventZeroRasterLine:
		return classRaster
	case decoder.EventReset, decoder.EventInitialize, decoder.EventEndOfJob, decoder.EventPrint:
		return classControl
	case decoder.EventPrintInformation, decoder.EventMargin, decoder.EventCutEvery, decoder.EventLegacyGeometry:
		return classData
	default:
		return classInfo
	}
}

// renderer formats decoded events as one line each, optionally
// colorized, honoring silent/verbose filtering the way ptexplain.c's
// print_message/print_command pair did.
type renderer struct {
	w       io.Writer
	color   bool
	silent  bool
	verbose bool

	hiddenRun int
}

func newRenderer(w io.Writer, color, silent, verbose bool) *renderer {
	return &renderer{w: w, color: color, silent: silent, verbose: verbose}
}

func (r *renderer) flushHidden() {
	if r.hiddenRun > 0 {
		fmt.Fprintf(r.w, "(%d commands hidden)\n", r.hiddenRun)
		r.hiddenRun = 0
	}
}

func (r *renderer) Render(ev decoder.Event) {
	if r.silent && isNoisy(ev) {
		r.hiddenRun++
		return
	}
	r.flushHidden()

	line := describe(ev, r.verbose)
	class := eventClass(ev)
	if r.color {
		c := ansiColors[class]
		fmt.Fprintf(r.w, "%s%s%s\n", c.on, line, c.off)
	} else {
		fmt.Fprintln(r.w, line)
	}
}

// isNoisy mirrors ptexplain.c's silent-mode filter: raster row data is
// the high-volume, low-information event stream.
func isNoisy(ev decoder.Event) bool {
	switch ev.Kind {
	case decoder.EventRasterLine, decoder.EventZeroRasterLine:
		return true
	default:
		return false
	}
}

func describe(ev decoder.Event, verbose bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%6d] %s", ev.Offset, ev.Kind)

	switch ev.Kind {
	case decoder.EventReset:
		fmt.Fprintf(&b, " (%d)", ev.ResetCount)
	case decoder.EventSwitchStatusNotification:
		fmt.Fprintf(&b, ": notify=%v", ev.NotifyOn)
	case decoder.EventSwitchMode:
		fmt.Fprintf(&b, ": mode=%v legacy=%v", ev.Mode, ev.Legacy)
	case decoder.EventPrintInformation:
		fmt.Fprintf(&b, ": valid=0x%02x kind=0x%02x width=%d length=%d lines=%d page=%v",
			ev.PrintInfo.Valid, ev.PrintInfo.Kind, ev.PrintInfo.Width, ev.PrintInfo.Length,
			ev.PrintInfo.Lines, ev.PrintInfo.WhichPage)
	case decoder.EventVariousMode, decoder.EventAdvancedMode:
		fmt.Fprintf(&b, ": flags=0x%02x", ev.Flags)
	case decoder.EventMargin:
		fmt.Fprintf(&b, ": lines=%d", ev.MarginLines)
	case decoder.EventCutEvery:
		fmt.Fprintf(&b, ": every=%d", ev.CutEveryN)
	case decoder.EventLegacyGeometry:
		fmt.Fprintf(&b, ": % x", ev.LegacyGeometry)
	case decoder.EventUndocumentedCommand:
		fmt.Fprintf(&b, ": %d bytes", len(ev.Undocumented))
		if verbose {
			fmt.Fprintf(&b, " % x", ev.Undocumented)
		}
	case decoder.EventSelectCompression:
		fmt.Fprintf(&b, ": %v", ev.Compression)
	case decoder.EventRasterLine:
		fmt.Fprintf(&b, ": %d bytes (%v)", len(ev.RasterBytes), ev.RasterCompression)
		if verbose {
			fmt.Fprintf(&b, " % x", ev.RasterBytes)
		}
	}

	if ev.DecodeError != nil {
		fmt.Fprintf(&b, ": error: %v", ev.DecodeError)
	}

	return b.String()
}
