// Command rastertoptch turns a raster image into a Brother P-touch/QL
// device byte stream, driven by a flat option string positional argument.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ptouchraster/rastertoptch/internal/imageraster"
	"github.com/ptouchraster/rastertoptch/internal/options"
	"github.com/ptouchraster/rastertoptch/internal/ptlog"
	"github.com/ptouchraster/rastertoptch/internal/sequencer"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		var exitErr *exitCodeError
		if asExitCodeError(err, &exitErr) {
			fmt.Fprintln(os.Stderr, exitErr.err)
			os.Exit(exitErr.code)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// exitCodeError lets the command layer pick a non-default process exit
// code (2 for malformed options/missing arguments, 1 otherwise).
type exitCodeError struct {
	err  error
	code int
}

func (e *exitCodeError) Error() string { return e.err.Error() }
func (e *exitCodeError) Unwrap() error { return e.err }

func asExitCodeError(err error, target **exitCodeError) bool {
	ec, ok := err.(*exitCodeError)
	if ok {
		*target = ec
	}
	return ok
}

func newRootCmd() *cobra.Command {
	var inputPath, outputPath, logLevel, logFile string
	var resolutionDPI int
	var targetWidthPx int
	var negative bool

	cmd := &cobra.Command{
		Use:   "rastertoptch OPTION-STRING",
		Short: "Convert a raster image into a Brother P-touch/QL device byte stream",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 1 {
				return &exitCodeError{err: fmt.Errorf("expected exactly one OPTION-STRING argument, got %d", len(args)), code: 2}
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := ptlog.New(ptlog.Config{LevelName: logLevel, LogFile: logFile})
			slog.SetDefault(logger)

			o, err := options.Parse(args[0])
			if err != nil {
				return &exitCodeError{err: fmt.Errorf("parsing options: %w", err), code: 2}
			}

			var in io.Reader = os.Stdin
			if inputPath != "" {
				f, err := os.Open(inputPath)
				if err != nil {
					return &exitCodeError{err: err, code: 1}
				}
				defer f.Close()
				in = f
			}

			var out io.Writer = os.Stdout
			if outputPath != "" {
				f, err := os.Create(outputPath)
				if err != nil {
					return &exitCodeError{err: err, code: 1}
				}
				defer f.Close()
				out = f
			}

			reader, err := imageraster.Decode(in, imageraster.Options{
				ResolutionX:   resolutionDPI,
				ResolutionY:   resolutionDPI,
				TargetWidthPx: targetWidthPx,
				NegativePrint: negative,
			})
			if err != nil {
				return &exitCodeError{err: fmt.Errorf("decoding input image: %w", err), code: 1}
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			seq := &sequencer.Sequencer{
				Options: o,
				Logger:  logger,
				PageAccountingFunc: func(page int) {
					fmt.Fprintf(os.Stderr, "PAGE: %d 1\n", page)
				},
			}

			if err := seq.Run(ctx, reader, out); err != nil {
				return &exitCodeError{err: fmt.Errorf("encoding raster stream: %w", err), code: 1}
			}
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&inputPath, "input", "", "input image path (default: stdin)")
	flags.StringVar(&outputPath, "output", "", "output device-stream path (default: stdout)")
	flags.StringVar(&logLevel, "log-level", "INFO", "log level (DEBUG, INFO, WARN, ERROR)")
	flags.StringVar(&logFile, "log-file", "", "route logs through a rotated file instead of stderr")
	flags.IntVar(&resolutionDPI, "resolution", 180, "printer resolution in DPI, applied to both axes")
	flags.IntVar(&targetWidthPx, "width-px", 0, "resize input image to this pixel width before thresholding (0 = no resize)")
	flags.BoolVar(&negative, "negative", false, "invert the thresholded image")

	return cmd
}
