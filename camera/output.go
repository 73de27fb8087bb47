package camera

import (
	"fmt"
	"math"

	"github.com/golang/geo/r3"
)

// point2 is a plain 2-D point, used only for the eight reference points of
// output camera synthesis.
type point2 struct {
	X, Y float64
}

// referencePoints returns the four corners and four edge midpoints of size,
// in that order, matching original_source/opencv/FrameSourceWarp.cpp's
// get_output_camera reference point list.
func referencePoints(size Size) [8]point2 {
	w, h := float64(size.Width), float64(size.Height)
	return [8]point2{
		{0, 0},
		{0, h},
		{w, 0},
		{w, h},
		{w / 2, 0},
		{w, h / 2},
		{w / 2, h},
		{0, h / 2},
	}
}

// undistortToIdentity maps an input-image pixel to normalised identity-
// camera coordinates through the fisheye equidistant model: invert the
// intrinsic matrix, then invert the radial mapping r = theta.
func undistortToIdentity(cam Camera, p point2) (point2, error) {
	if cam.Matrix.Fx == 0 || cam.Matrix.Fy == 0 {
		return point2{}, fmt.Errorf("camera: degenerate intrinsics")
	}
	xd := (p.X - cam.Matrix.Cx) / cam.Matrix.Fx
	yd := (p.Y - cam.Matrix.Cy) / cam.Matrix.Fy

	if cam.Model == Rectilinear {
		return point2{X: xd, Y: yd}, nil
	}

	r := math.Hypot(xd, yd)
	if r < 1e-12 {
		return point2{X: 0, Y: 0}, nil
	}
	theta := r
	for _, coeff := range cam.Distortion {
		_ = coeff // equidistant model here carries no higher-order terms in use
	}
	// Equidistant fisheye: r == theta, so the incidence angle is known
	// directly; build the unit 3-D ray it points along (azimuth from
	// (xd, yd), polar angle theta from the optical axis) and project it
	// onto the identity camera's z=1 plane, rather than folding the
	// azimuth/polar decomposition into a single scalar scale factor.
	azimuthX, azimuthY := xd/r, yd/r
	ray := r3.Vector{X: math.Sin(theta) * azimuthX, Y: math.Sin(theta) * azimuthY, Z: math.Cos(theta)}
	if ray.Z < 1e-12 {
		return point2{}, fmt.Errorf("camera: ray at incidence angle %v has no forward component", theta)
	}
	return point2{X: ray.X / ray.Z, Y: ray.Y / ray.Z}, nil
}

// SynthesizeOutputCamera implements the five-step algorithm: undistort the
// reference points, optionally restrict to midpoints only, take their
// bounds, scale to match the input's diagonal, and divide by zoom.
func SynthesizeOutputCamera(input Camera, scale float64, zoom float64, cropBorders bool) (Camera, error) {
	if scale <= 0 {
		return Camera{}, fmt.Errorf("camera: scale must be positive, got %v", scale)
	}
	if zoom < 1 {
		return Camera{}, fmt.Errorf("camera: zoom must be >= 1, got %v", zoom)
	}

	refs := referencePoints(input.Size)
	undistorted := make([]point2, 0, 8)
	start := 0
	if cropBorders {
		start = 4 // skip the four corners, keep only the edge midpoints
	}
	for _, p := range refs[start:] {
		u, err := undistortToIdentity(input, p)
		if err != nil {
			return Camera{}, err
		}
		undistorted = append(undistorted, u)
	}

	minX, maxX := undistorted[0].X, undistorted[0].X
	minY, maxY := undistorted[0].Y, undistorted[0].Y
	for _, p := range undistorted[1:] {
		minX = math.Min(minX, p.X)
		maxX = math.Max(maxX, p.X)
		minY = math.Min(minY, p.Y)
		maxY = math.Max(maxY, p.Y)
	}

	inputDiagonal := math.Hypot(float64(input.Size.Width), float64(input.Size.Height))
	boundsDiagonal := math.Hypot(maxX-minX, maxY-minY)
	if boundsDiagonal < 1e-12 {
		return Camera{}, fmt.Errorf("camera: degenerate output bounds")
	}
	// Step 4: choose the output focal length so the output diagonal matches
	// the input diagonal times the caller's scale factor.
	outputScale := (inputDiagonal * scale) / boundsDiagonal

	outWidth := outputScale * (maxX - minX) / zoom
	outHeight := outputScale * (maxY - minY) / zoom

	out := Camera{
		Model: Rectilinear,
		Matrix: Matrix{
			Fx: outputScale / zoom,
			Fy: outputScale / zoom,
			Cx: outputScale * (-minX) / zoom,
			Cy: outputScale * (-minY) / zoom,
		},
		Size: Size{Width: int(math.Round(outWidth)), Height: int(math.Round(outHeight))},
	}
	if err := out.Validate(); err != nil {
		return Camera{}, fmt.Errorf("camera: synthesised output camera invalid: %w", err)
	}
	return out, nil
}
