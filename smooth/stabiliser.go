package smooth

import (
	"context"
	"fmt"
	"math/rand/v2"

	"gocv.io/x/gocv"

	"github.com/hedgepigdaniel/stabilize/camera"
	"github.com/hedgepigdaniel/stabilize/collab"
	"github.com/hedgepigdaniel/stabilize/gpu"
	"github.com/hedgepigdaniel/stabilize/motion"
	"github.com/hedgepigdaniel/stabilize/reproject"
	"github.com/hedgepigdaniel/stabilize/rotation"
	"github.com/hedgepigdaniel/stabilize/track"
)

const savitzkyGolayOrder = 2

// Config configures a Stabiliser: which preset to resolve the input camera
// from, the smoothing half-width R, and the output camera's zoom/crop
// parameters (spec §4.1/§4.5).
type Config struct {
	Preset      camera.Preset
	HalfWidth   int
	Zoom        float64
	CropBorders bool
}

// Validate reports a configuration error — a non-positive half-width or a
// zoom below 1 — before it would otherwise only surface deep inside
// construction.
func (c Config) Validate() error {
	if c.HalfWidth <= 0 {
		return fmt.Errorf("smooth: half-width R must be positive, got %d", c.HalfWidth)
	}
	if c.Zoom < 1 {
		return fmt.Errorf("smooth: zoom must be >= 1, got %v", c.Zoom)
	}
	return nil
}

// bufferEntry is one pending (frame, accumulated rotation) pair held in the
// PipelineState's frame_buffer/rotation_buffer FIFOs.
type bufferEntry struct {
	frame    collab.Frame
	measured rotation.Matrix
}

// Stabiliser is the frame source implementing the emission protocol of
// spec §4.5: it draws upstream frames, estimates and accumulates rotation,
// smooths it over a look-ahead window, and emits each buffered frame warped
// by the smoothed correction. Its fields are exactly the data model's
// PipelineState (spec §3).
type Stabiliser struct {
	upstream collab.Source
	cfg      Config

	inputCamera  camera.Camera
	outputCamera camera.Camera
	mapBuilder   *reproject.MapBuilder

	tracker   *track.Tracker
	estimator *motion.Estimator
	filter    *RotationFilter

	frameIndex            int
	lastInputGray         gocv.Mat
	haveLastInput         bool
	accumulatedRotation   rotation.Matrix
	lastFrameRotation     rotation.Matrix
	haveLastFrameRotation bool

	frameBuffer []bufferEntry
	ready       bool // true once fillToSteadyState has run for the current front entry

	draining      bool
	drainRotation rotation.Matrix
}

// NewStabiliser constructs a Stabiliser on top of upstream. It peeks the
// first frame to resolve the preset against the frame's actual size, and
// synthesises the output camera from it (spec §4.1), optionally dispatching
// the per-pixel remap kernel through rt when non-nil.
func NewStabiliser(ctx context.Context, upstream collab.Source, cfg Config, rt gpu.ComputeRuntime) (*Stabiliser, error) {
	if err := cfg.Validate(); err != nil {
		return nil, collab.NewError("stabiliser", collab.Configuration, "", err)
	}

	first, err := upstream.Peek(ctx)
	if err != nil {
		return nil, err
	}

	inputCamera, err := camera.ResolvePreset(cfg.Preset, camera.Size{Width: first.Gray().Cols(), Height: first.Gray().Rows()})
	if err != nil {
		return nil, collab.NewError("stabiliser", collab.Configuration, "", err)
	}

	outputCamera, err := camera.SynthesizeOutputCamera(inputCamera, 1.0, cfg.Zoom, cfg.CropBorders)
	if err != nil {
		return nil, collab.NewError("stabiliser", collab.Configuration, "", err)
	}

	filter, err := NewRotationFilter(cfg.HalfWidth, savitzkyGolayOrder)
	if err != nil {
		return nil, collab.NewError("stabiliser", collab.Configuration, "", err)
	}

	return &Stabiliser{
		upstream:            upstream,
		cfg:                 cfg,
		inputCamera:         inputCamera,
		outputCamera:        outputCamera,
		mapBuilder:          reproject.NewMapBuilder(inputCamera, outputCamera, rt),
		tracker:             track.NewTracker(),
		estimator:           motion.NewEstimator(inputCamera, outputCamera, rand.New(rand.NewPCG(1, 2))),
		filter:              filter,
		accumulatedRotation: rotation.Identity(),
		lastFrameRotation:   rotation.Identity(),
	}, nil
}

// fillToSteadyState ensures the buffer is ready for one more emission step,
// and is idempotent for the current front entry (tracked by s.ready) so
// that a Peek followed by a Pull with no intervening pop performs the fill
// only once. Before end-of-stream, "ready" means pulling upstream frames
// until the buffer holds more than R entries (spec §4.5's steady-state
// fill). Once upstream is exhausted, it switches to draining: the filter
// receives exactly R pushes of the last accumulated rotation in total
// (spec §4.5's drain case). One repeat is pushed per remaining emission, so
// in steady state the window stays centred on the frame being emitted and
// the last real frame sees R real samples on one side and R repeats on the
// other. When fewer than R frames were buffered at end-of-stream, the
// missing repeats are pushed the instant end-of-stream is first observed.
func (s *Stabiliser) fillToSteadyState(ctx context.Context) error {
	if s.ready {
		return nil
	}
	if s.draining {
		if len(s.frameBuffer) > 0 {
			s.filter.Push(s.drainRotation)
		}
		s.ready = true
		return nil
	}
	for len(s.frameBuffer) <= s.cfg.HalfWidth {
		if err := s.fillOne(ctx); err != nil {
			if err == collab.ErrEndOfStream {
				s.draining = true
				s.drainRotation = s.accumulatedRotation
				for i := len(s.frameBuffer); i < s.cfg.HalfWidth; i++ {
					s.filter.Push(s.drainRotation)
				}
				if len(s.frameBuffer) > 0 {
					s.filter.Push(s.drainRotation)
				}
				break
			}
			return err
		}
	}
	s.ready = true
	return nil
}

// Pull implements spec §4.5's emission protocol: fill the buffer to
// steady-state, then pop, smooth, correct and emit the oldest pending
// frame.
func (s *Stabiliser) Pull(ctx context.Context) (collab.Frame, error) {
	if err := s.fillToSteadyState(ctx); err != nil {
		return nil, err
	}
	if len(s.frameBuffer) == 0 {
		return nil, collab.ErrEndOfStream
	}
	entry := s.frameBuffer[0]
	s.frameBuffer = s.frameBuffer[1:]
	s.ready = false
	return s.warp(entry, true)
}

// Peek returns the frame the next Pull would emit, without consuming it —
// required so the next pipeline stage can learn dimensions at construction
// time. It runs the same steady-state fill as Pull but leaves the buffer
// (and the upstream frame's ownership) untouched.
func (s *Stabiliser) Peek(ctx context.Context) (collab.Frame, error) {
	if err := s.fillToSteadyState(ctx); err != nil {
		return nil, err
	}
	if len(s.frameBuffer) == 0 {
		return nil, collab.ErrEndOfStream
	}
	return s.warp(s.frameBuffer[0], false)
}

// fillOne draws one upstream frame, tracks it against the previous one,
// estimates the inter-frame rotation, updates the accumulated rotation, and
// pushes the (frame, accumulated rotation) pair into both the filter and
// the frame buffer, per spec §4.5 step (i)-(iii).
func (s *Stabiliser) fillOne(ctx context.Context) error {
	frame, err := s.upstream.Pull(ctx)
	if err != nil {
		return err
	}

	if s.haveLastInput {
		corr, err := s.tracker.Update(s.lastInputGray, frame.Gray(), s.frameIndex)
		if err != nil {
			return collab.NewError("stabiliser", collab.TransientEstimator, "", err)
		}
		result, err := s.estimator.Estimate(corr)
		if err != nil {
			return collab.NewError("stabiliser", collab.TransientEstimator, "", err)
		}
		s.lastFrameRotation = result.Rotation
		s.haveLastFrameRotation = true
		s.accumulatedRotation = result.Rotation.Mul(s.accumulatedRotation)
	}
	// First frame: no previous frame exists; accumulated_rotation stays I
	// (spec §4.5 edge case).

	s.lastInputGray = frame.Gray()
	s.haveLastInput = true
	s.frameIndex++

	s.filter.Push(s.accumulatedRotation)
	s.frameBuffer = append(s.frameBuffer, bufferEntry{frame: frame, measured: s.accumulatedRotation})
	return nil
}

// warp computes C = R_smoothed * R_measured^-1 and invokes the pixel remap
// kernel with C^-1 to produce the output frame (spec §4.5). release is true
// only when entry has just been popped by Pull: Peek must leave the
// upstream frame's ownership untouched since it hasn't actually been
// consumed yet.
func (s *Stabiliser) warp(entry bufferEntry, release bool) (collab.Frame, error) {
	smoothed, err := s.filter.Smoothed()
	if err != nil {
		return nil, collab.NewError("stabiliser", collab.TransientEstimator, "", err)
	}
	correction := smoothed.Mul(entry.measured.Inverse())

	maps, err := s.mapBuilder.BuildMaps(correction.Inverse())
	if err != nil {
		return nil, collab.NewError("stabiliser", collab.GPURuntime, "", err)
	}

	warped, err := reproject.Remap(entry.frame.Full(), maps)
	if err != nil {
		return nil, collab.NewError("stabiliser", collab.GPURuntime, "", err)
	}

	gray := gocv.NewMat()
	gocv.CvtColor(warped, &gray, gocv.ColorBGRToGray)

	// The input frame's reference is released only once actually consumed
	// by Pull: the tracker only ever needed its luma plane for the single
	// pairwise Update call made back when it was pulled, and
	// s.lastInputGray has long since moved on to a newer frame by the time
	// it reaches the front of the buffer.
	if release {
		if err := entry.frame.Release(); err != nil {
			return nil, collab.NewError("stabiliser", collab.UpstreamIO, "", err)
		}
	}

	return collab.NewFrame(warped, gray, collab.LayoutBGR), nil
}
