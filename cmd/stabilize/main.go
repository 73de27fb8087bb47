// Command stabilize runs the real-time fisheye stabilisation pipeline over
// a single input video file.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"

	"go.viam.com/rdk/logging"
	"go.viam.com/utils/trace"

	"github.com/hedgepigdaniel/stabilize/camera"
	"github.com/hedgepigdaniel/stabilize/collab"
	"github.com/hedgepigdaniel/stabilize/pipeline"
	"github.com/hedgepigdaniel/stabilize/smooth"
)

// exit codes per spec §6.
const (
	exitSuccess       = 0
	exitUsage         = 1
	exitNoHardwareAcc = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	logger := logging.NewLogger("stabilize")
	enableTracing(logger)

	fs := flag.NewFlagSet("stabilize", flag.ContinueOnError)
	preset := fs.String("preset", "H4B_Wide43_Published", "camera preset name")
	halfWidth := fs.Int("half-width", 30, "Savitzky-Golay smoothing half-width R")
	zoom := fs.Float64("zoom", 1.0, "output zoom factor, >= 1")
	cropBorders := fs.Bool("crop-borders", false, "fit the output viewport to undistorted edge midpoints only")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: stabilize [flags] <input-video>")
		return exitUsage
	}
	inputPath := fs.Arg(0)

	presetValue, err := parsePreset(*preset)
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuration: %v\n", err)
		return exitUsage
	}

	ctx, span := trace.StartSpan(context.Background(), "stabilize::run")
	defer span.End()

	decoder, err := newDecoder(ctx, inputPath, logger)
	if err != nil {
		printDiagnostic(err)
		logger.Errorf("decoder: %v", err)
		return exitCodeFor(err)
	}

	cfg := smooth.Config{
		Preset:      presetValue,
		HalfWidth:   *halfWidth,
		Zoom:        *zoom,
		CropBorders: *cropBorders,
	}

	stabiliser, err := smooth.NewStabiliser(ctx, decoder, cfg, nil)
	if err != nil {
		reportAndExit(logger, err)
	}

	chain := pipeline.NewChain(
		logger,
		pipeline.DecodedFrameSource(decoder),
		pipeline.StabiliserStage("stabilise", pipeline.NewProfile("stabilise", stabiliser, logger), nil),
	)
	defer func() {
		if closeErr := chain.Close(); closeErr != nil {
			logger.Warnf("teardown: %v", closeErr)
		}
	}()

	frameCount := 0
	for {
		frame, err := chain.Pull(ctx)
		if err == collab.ErrEndOfStream {
			break
		}
		if err != nil {
			reportAndExit(logger, err)
		}
		frameCount++
		if err := frame.Release(); err != nil {
			logger.Warnf("release frame %d: %v", frameCount, err)
		}
	}

	logger.Infof("stabilised %d frames from %s", frameCount, inputPath)
	return exitSuccess
}

// printDiagnostic prints a one-line diagnostic to stderr: for a
// collab.Error it names the stage, the kind and (when set) the underlying
// code before the cause; any other error is printed bare.
func printDiagnostic(err error) {
	if collabErr, ok := err.(*collab.Error); ok {
		fmt.Fprintln(os.Stderr, collabErr.Error())
		return
	}
	fmt.Fprintf(os.Stderr, "%v\n", err)
}

// reportAndExit prints a stage/kind diagnostic and terminates the process
// non-zero, per spec §7's propagation policy.
func reportAndExit(logger logging.Logger, err error) {
	printDiagnostic(err)
	logger.Errorf("fatal: %v", err)
	os.Exit(exitCodeFor(err))
}

// exitCodeFor selects the process exit code for a fatal error per spec §6's
// exit-code table. Usage errors are already handled earlier in run() and
// never reach here; every collab.Kind that can still surface at this point
// is an unrecoverable runtime failure, which the table assigns code 2. The
// switch is kept explicit per kind, rather than a single default, so a
// future kind that needs its own code is a one-line change here instead of
// a silent fallthrough.
func exitCodeFor(err error) int {
	collabErr, ok := err.(*collab.Error)
	if !ok {
		return exitNoHardwareAcc
	}
	switch collabErr.Kind {
	case collab.GPURuntime, collab.Configuration:
		return exitNoHardwareAcc
	case collab.UpstreamIO, collab.TransientEstimator:
		return exitNoHardwareAcc
	default:
		return exitNoHardwareAcc
	}
}

func parsePreset(name string) (camera.Preset, error) {
	switch name {
	case "H4B_Wide43_Published":
		return camera.H4BWide43Published, nil
	case "H4B_Wide43_Measured":
		return camera.H4BWide43Measured, nil
	case "H4B_Wide43_Measured_Stabilised":
		return camera.H4BWide43MeasuredStabilised, nil
	case "H4B_Wide169_Published":
		return camera.H4BWide169Published, nil
	case "H4B_Wide169_Measured":
		return camera.H4BWide169Measured, nil
	case "H4B_Wide169_Measured_Stabilised":
		return camera.H4BWide169MeasuredStabilised, nil
	default:
		return 0, fmt.Errorf("unknown preset %q", name)
	}
}

// enableTracing bootstraps the OTLP exporter when OTEL_SERVICE_NAME is set,
// exactly as the teacher's enableTracing gated the same export on the same
// environment variable.
func enableTracing(logger logging.Logger) {
	if os.Getenv("OTEL_SERVICE_NAME") == "" {
		logger.Debugf("no OTEL_SERVICE_NAME, not enabling tracing")
		return
	}
	exporter, err := otlptracegrpc.New(context.Background())
	if err != nil {
		logger.Warnf("can't enable tracing: %v", err)
		return
	}
	if err := trace.SetProvider(context.Background()); err != nil {
		logger.Warnf("error setting new trace provider: %v", err)
		return
	}
	trace.AddExporters(exporter)
}
