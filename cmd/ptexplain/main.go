// Command ptexplain renders a Brother P-touch/QL device byte stream as
// human-readable events, optionally dumping decoded raster pages as PNGs.
package main

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log/slog"
	"os"

	"github.com/urfave/cli/v2"
	"golang.org/x/term"

	"github.com/ptouchraster/rastertoptch/internal/decoder"
	"github.com/ptouchraster/rastertoptch/internal/ptlog"
)

func main() {
	app := &cli.App{
		Name:  "ptexplain",
		Usage: "Decode and explain a Brother P-touch/QL raster byte stream",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "input", Aliases: []string{"i"}, Usage: "input file (default: stdin)"},
			&cli.StringFlag{Name: "write", Aliases: []string{"w"}, Usage: "write decoded raster pages as PREFIX-NNN.png"},
			&cli.BoolFlag{Name: "silent", Aliases: []string{"s"}, Usage: "suppress per-raster-line output, summarizing runs"},
			&cli.BoolFlag{Name: "verbose", Aliases: []string{"v"}, Usage: "include raw bytes in data-carrying events"},
			&cli.StringFlag{Name: "color", Value: "auto", Usage: "colorize output: always, auto, never"},
			&cli.StringFlag{Name: "log-level", Value: "INFO"},
			&cli.StringFlag{Name: "log-file", Usage: "route logs to a rotated file instead of stderr"},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "ptexplain:", err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	logger := ptlog.New(ptlog.Config{LevelName: c.String("log-level"), LogFile: c.String("log-file")})
	slog.SetDefault(logger)

	var in io.Reader = os.Stdin
	if path := c.String("input"); path != "" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	color, err := resolveColor(c.String("color"))
	if err != nil {
		return cli.Exit(err, 2)
	}

	r := newRenderer(os.Stdout, color, c.Bool("silent"), c.Bool("verbose"))

	var dumper *pageDumper
	if prefix := c.String("write"); prefix != "" {
		dumper = newPageDumper(prefix)
	}

	d := decoder.New(in)
	for {
		ev, err := d.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return err
		}
		r.Render(ev)
		if dumper != nil {
			dumper.Feed(ev)
		}
	}
	r.flushHidden()
	if dumper != nil {
		return dumper.Close()
	}
	return nil
}

func resolveColor(mode string) (bool, error) {
	switch mode {
	case "always":
		return true, nil
	case "never":
		return false, nil
	case "auto":
		return term.IsTerminal(int(os.Stdout.Fd())), nil
	default:
		return false, fmt.Errorf("invalid --color value %q, want always/auto/never", mode)
	}
}

// pageDumper accumulates decoded raster lines into a grayscale image,
// emitting one PNG per print cycle (a form-feed or end-of-job event).
type pageDumper struct {
	prefix string
	page   int
	rows   [][]byte
	width  int
}

func newPageDumper(prefix string) *pageDumper {
	return &pageDumper{prefix: prefix}
}

func (p *pageDumper) Feed(ev decoder.Event) {
	switch ev.Kind {
	case decoder.EventRasterLine:
		if len(ev.RasterBytes) > p.width {
			p.width = len(ev.RasterBytes)
		}
		row := make([]byte, len(ev.RasterBytes))
		copy(row, ev.RasterBytes)
		p.rows = append(p.rows, row)
	case decoder.EventZeroRasterLine:
		p.rows = append(p.rows, make([]byte, p.width))
	case decoder.EventPrint, decoder.EventEndOfJob:
		p.flushPage()
	}
}

func (p *pageDumper) flushPage() {
	if len(p.rows) == 0 {
		return
	}
	p.page++
	img := image.NewGray(image.Rect(0, 0, p.width*8, len(p.rows)))
	for y, row := range p.rows {
		for x := 0; x < p.width*8; x++ {
			byteIdx := x / 8
			var bit byte
			if byteIdx < len(row) {
				bit = row[byteIdx] & (0x80 >> uint(x%8))
			}
			v := color.Gray{Y: 255}
			if bit != 0 {
				v = color.Gray{Y: 0}
			}
			img.SetGray(x, y, v)
		}
	}
	p.rows = nil
	p.width = 0

	name := fmt.Sprintf("%s-%03d.png", p.prefix, p.page)
	f, err := os.Create(name)
	if err != nil {
		slog.Error("write page png", "file", name, "error", err)
		return
	}
	defer f.Close()
	if err := png.Encode(f, img); err != nil {
		slog.Error("encode page png", "file", name, "error", err)
	}
}

func (p *pageDumper) Close() error {
	p.flushPage()
	return nil
}
