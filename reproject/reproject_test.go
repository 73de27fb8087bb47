package reproject

import (
	"math"
	"testing"

	"github.com/hedgepigdaniel/stabilize/camera"
	"github.com/hedgepigdaniel/stabilize/rotation"
)

// TestBuildMapsCPUIdentityRoundTrip grounds invariant 6: for a rectilinear
// camera with no distortion and R = I, the pixel map must be the identity
// to within 0.5px on every pixel.
func TestBuildMapsCPUIdentityRoundTrip(t *testing.T) {
	cam := camera.Camera{
		Model:  camera.Rectilinear,
		Matrix: camera.Matrix{Fx: 500, Fy: 500, Cx: 320, Cy: 240},
		Size:   camera.Size{Width: 640, Height: 480},
	}

	maps, err := BuildMapsCPU(cam, cam, rotation.Identity())
	if err != nil {
		t.Fatalf("BuildMapsCPU: %v", err)
	}

	for v := 0; v < cam.Size.Height; v += 37 {
		for u := 0; u < cam.Size.Width; u += 41 {
			idx := v*cam.Size.Width + u
			dx := math.Abs(float64(maps.MapX[idx]) - float64(u))
			dy := math.Abs(float64(maps.MapY[idx]) - float64(v))
			if dx > 0.5 || dy > 0.5 {
				t.Errorf("pixel (%d,%d) maps to (%v,%v), want within 0.5px of itself", u, v, maps.MapX[idx], maps.MapY[idx])
			}
		}
	}
}

// TestBuildMapsCPURejectsInvalidOutputSize checks the construction-time
// configuration-failure path for a degenerate output camera.
func TestBuildMapsCPURejectsInvalidOutputSize(t *testing.T) {
	input := camera.Camera{Model: camera.Fisheye, Matrix: camera.Matrix{Fx: 900, Fy: 900, Cx: 960, Cy: 720}, Size: camera.Size{Width: 1920, Height: 1440}}
	output := input
	output.Size = camera.Size{Width: 0, Height: 0}

	if _, err := BuildMapsCPU(input, output, rotation.Identity()); err == nil {
		t.Fatalf("expected error for zero-sized output camera")
	}
}

// TestSampleCoordinateIsContinuousUnderSmallRotation exercises the rotate
// step: a small rotation should perturb the sampled coordinate smoothly
// rather than discontinuously, since both ends of the pipeline agree at
// R = I.
func TestSampleCoordinateIsContinuousUnderSmallRotation(t *testing.T) {
	cam := camera.Camera{
		Model:  camera.Rectilinear,
		Matrix: camera.Matrix{Fx: 500, Fy: 500, Cx: 320, Cy: 240},
		Size:   camera.Size{Width: 640, Height: 480},
	}

	x0, y0 := sampleCoordinate(cam, cam, rotation.Identity(), 320, 240)

	small, err := rotation.Exp(rotation.Identity(), rotation.AxisAngle{X: 0, Y: 0.001, Z: 0})
	if err != nil {
		t.Fatalf("Exp: %v", err)
	}
	x1, y1 := sampleCoordinate(cam, cam, small, 320, 240)

	if math.Hypot(x1-x0, y1-y0) > 5 {
		t.Errorf("small rotation produced large coordinate jump: (%v,%v) -> (%v,%v)", x0, y0, x1, y1)
	}
}
