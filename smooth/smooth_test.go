package smooth

import (
	"context"
	"testing"

	"gocv.io/x/gocv"

	"github.com/hedgepigdaniel/stabilize/camera"
	"github.com/hedgepigdaniel/stabilize/collab"
	"github.com/hedgepigdaniel/stabilize/rotation"
)

// fakeSource serves a fixed slice of frames in order; Peek never advances,
// Pull always does. It mimics the capability contract collab.Source
// promises without needing a real decoder.
type fakeSource struct {
	frames []collab.Frame
	pos    int
}

func (s *fakeSource) Peek(ctx context.Context) (collab.Frame, error) {
	if s.pos >= len(s.frames) {
		return nil, collab.ErrEndOfStream
	}
	return s.frames[s.pos], nil
}

func (s *fakeSource) Pull(ctx context.Context) (collab.Frame, error) {
	f, err := s.Peek(ctx)
	if err != nil {
		return nil, err
	}
	s.pos++
	return f, nil
}

// syntheticFrame builds a textured BGR/gray frame pair so corner detection
// has gradients to find; seed only varies the checkerboard phase so distinct
// frames are distinguishable while still frames (same seed) are pixel
// identical.
func syntheticFrame(width, height, seed int) collab.Frame {
	full := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC3)
	gray := gocv.NewMatWithSize(height, width, gocv.MatTypeCV8UC1)
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			v := byte(0)
			if ((x+seed)/8+(y/8))%2 == 0 {
				v = 255
			}
			full.SetUCharAt3(y, x, 0, v)
			full.SetUCharAt3(y, x, 1, v)
			full.SetUCharAt3(y, x, 2, v)
			gray.SetUCharAt(y, x, v)
		}
	}
	return collab.NewFrame(full, gray, collab.LayoutBGR)
}

func testConfig() Config {
	return Config{
		Preset:      camera.H4BWide43Published,
		HalfWidth:   2,
		Zoom:        1,
		CropBorders: false,
	}
}

// TestStillFramesProduceIdentityRotations grounds the still-camera scenario
// (S1/invariant 2): every frame identical to the last means every
// correspondence tracks zero displacement, so the accumulated rotation
// never leaves identity and the smoothed correction collapses to identity
// too.
func TestStillFramesProduceIdentityRotations(t *testing.T) {
	const width, height = 128, 96
	var frames []collab.Frame
	for i := 0; i < 12; i++ {
		frames = append(frames, syntheticFrame(width, height, 0))
	}
	src := &fakeSource{frames: frames}

	stab, err := NewStabiliser(context.Background(), src, testConfig(), nil)
	if err != nil {
		t.Fatalf("NewStabiliser: %v", err)
	}

	ctx := context.Background()
	count := 0
	for {
		out, err := stab.Pull(ctx)
		if err == collab.ErrEndOfStream {
			break
		}
		if err != nil {
			t.Fatalf("Pull: %v", err)
		}
		count++
		if err := out.Release(); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}
	if count != len(frames) {
		t.Fatalf("got %d output frames, want %d (pipeline must preserve frame count)", count, len(frames))
	}
	ident := rotation.Identity()
	if stab.accumulatedRotation != ident {
		t.Errorf("accumulated rotation drifted from identity on a still sequence: %+v", stab.accumulatedRotation)
	}
}

// TestPullCountMatchesInputCount grounds S3/S6: N input frames must produce
// exactly N output frames, including the end-of-stream drain once upstream
// is exhausted.
func TestPullCountMatchesInputCount(t *testing.T) {
	const width, height = 128, 96
	const n = 9
	var frames []collab.Frame
	for i := 0; i < n; i++ {
		frames = append(frames, syntheticFrame(width, height, i))
	}
	src := &fakeSource{frames: frames}

	stab, err := NewStabiliser(context.Background(), src, testConfig(), nil)
	if err != nil {
		t.Fatalf("NewStabiliser: %v", err)
	}

	ctx := context.Background()
	count := 0
	for {
		out, err := stab.Pull(ctx)
		if err == collab.ErrEndOfStream {
			break
		}
		if err != nil {
			t.Fatalf("Pull at count %d: %v", count, err)
		}
		count++
		if err := out.Release(); err != nil {
			t.Fatalf("Release: %v", err)
		}
	}
	if count != n {
		t.Fatalf("got %d output frames, want %d", count, n)
	}
}

// TestPeekIsIdempotentWithoutPull exercises the ready-flag guard: calling
// Peek twice in a row, with no intervening Pull, must return frames that
// agree and must not double-advance the filter or upstream state.
func TestPeekIsIdempotentWithoutPull(t *testing.T) {
	const width, height = 128, 96
	var frames []collab.Frame
	for i := 0; i < 8; i++ {
		frames = append(frames, syntheticFrame(width, height, i))
	}
	src := &fakeSource{frames: frames}

	stab, err := NewStabiliser(context.Background(), src, testConfig(), nil)
	if err != nil {
		t.Fatalf("NewStabiliser: %v", err)
	}

	ctx := context.Background()
	first, err := stab.Peek(ctx)
	if err != nil {
		t.Fatalf("first Peek: %v", err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}
	bufLenAfterFirst := len(stab.frameBuffer)
	filterLenAfterFirst := stab.filter.Len()

	second, err := stab.Peek(ctx)
	if err != nil {
		t.Fatalf("second Peek: %v", err)
	}
	if err := second.Release(); err != nil {
		t.Fatalf("Release: %v", err)
	}

	if len(stab.frameBuffer) != bufLenAfterFirst {
		t.Errorf("buffer length changed across repeated Peek: %d -> %d", bufLenAfterFirst, len(stab.frameBuffer))
	}
	if stab.filter.Len() != filterLenAfterFirst {
		t.Errorf("filter length changed across repeated Peek: %d -> %d", filterLenAfterFirst, stab.filter.Len())
	}
}

// TestSavitzkyGolayCoefficientsSumToOne checks the basic sanity property of
// any Savitzky-Golay smoothing kernel: applied to a constant signal it must
// reproduce that constant exactly, which requires the weights to sum to 1.
func TestSavitzkyGolayCoefficientsSumToOne(t *testing.T) {
	coeffs, err := savitzkyGolayCoefficients(5, 2)
	if err != nil {
		t.Fatalf("savitzkyGolayCoefficients: %v", err)
	}
	sum := 0.0
	for _, c := range coeffs {
		sum += c
	}
	if sum < 0.999999 || sum > 1.000001 {
		t.Errorf("coefficients sum to %v, want 1", sum)
	}
}
