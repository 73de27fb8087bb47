// Package collab defines the Go interface contracts for the external
// collaborators named in spec §6 (decoder, surface-mapper, colorplane
// source) and the error-kind taxonomy of spec §7. None of these
// collaborators are implemented here — only the shapes the rest of the
// pipeline programs against.
package collab

import (
	"context"
	"errors"
	"fmt"

	"gocv.io/x/gocv"

	"github.com/hedgepigdaniel/stabilize/gpu"
)

// PixelLayout names a Frame's memory layout.
type PixelLayout int

const (
	LayoutYUV420Planar PixelLayout = iota
	LayoutBGR
)

// Frame is the opaque handle referencing a (nominally GPU-resident) image
// that flows through the pipeline. The pipeline never takes ownership of
// pixel bytes for its own sake; Mat is exposed only because the image
// library (gocv) needs a transparent CPU-visible mapping to operate on, per
// spec §6's "inputs are GPU-backed but with a transparent mapping" note.
type Frame interface {
	Width() int
	Height() int
	Layout() PixelLayout
	// Full returns the full-resolution frame data (BGR after colour
	// conversion, or the original YUV4:2:0 planar layout upstream of it).
	Full() gocv.Mat
	// Gray returns a single-channel view of the luma plane, required for
	// corner detection and optical flow (spec §6's colorplane collaborator).
	Gray() gocv.Mat
	// Release returns the frame's resources once the current holder is
	// done with it; exactly one live holder exists at any moment (spec §5).
	Release() error
}

// ErrEndOfStream is the sentinel a Source returns from Pull/Peek once
// upstream is exhausted; it is an expected condition, not an error (spec
// §7).
var ErrEndOfStream = errors.New("collab: end of stream")

// Source is the pull/peek capability shared by every frame-source stage
// (spec §2): pull advances and returns the next frame, peek returns the
// next frame without advancing.
type Source interface {
	Pull(ctx context.Context) (Frame, error)
	Peek(ctx context.Context) (Frame, error)
}

// Decoder is the hardware-accelerated decoder bridge collaborator: demux,
// hardware decode, and GPU surface allocation. It additionally exposes the
// shared GPU device context so downstream stages build on the same device.
type Decoder interface {
	Source
	DeviceContext() gpu.DeviceContext
}

// SurfaceMapper makes a decoder frame's pixel memory accessible to the GPU
// compute runtime (same physical memory where possible, otherwise a copy).
type SurfaceMapper interface {
	Source
}

// ColorplaneSource exposes the NV12 luma plane as a colour-plane view
// sharing memory with the full frame.
type ColorplaneSource interface {
	Source
}

// Kind enumerates the five failure categories of spec §7.
type Kind int

const (
	// EndOfStream is not a true failure kind for Error — ErrEndOfStream is
	// used directly — but is listed here for completeness of the taxonomy.
	EndOfStream Kind = iota
	TransientEstimator
	UpstreamIO
	GPURuntime
	Configuration
)

func (k Kind) String() string {
	switch k {
	case EndOfStream:
		return "end-of-stream"
	case TransientEstimator:
		return "transient-estimator"
	case UpstreamIO:
		return "upstream-io"
	case GPURuntime:
		return "gpu-runtime"
	case Configuration:
		return "configuration"
	default:
		return "unknown"
	}
}

// Error is the tagged result the pipeline surfaces for every unrecoverable
// failure: which stage produced it, what kind of failure it was, an
// underlying implementation-specific code, and the wrapped cause.
type Error struct {
	Kind  Kind
	Stage string
	Code  string
	Err   error
}

func (e *Error) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("%s: %s (%s): %v", e.Stage, e.Kind, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// NewError constructs a stage-tagged Error.
func NewError(stage string, kind Kind, code string, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Code: code, Err: err}
}
