// Package camera represents the pinhole/fisheye intrinsic model and resolves
// the named GoPro Hero 4 Black presets against a concrete frame size.
package camera

import (
	"fmt"
	"math"
)

// Model names the projection the intrinsics belong to.
type Model int

const (
	Rectilinear Model = iota
	Fisheye
)

func (m Model) String() string {
	switch m {
	case Rectilinear:
		return "rectilinear"
	case Fisheye:
		return "fisheye"
	default:
		return "unknown"
	}
}

// Matrix is the 3x3 pinhole intrinsic matrix, represented as its four
// meaningful entries rather than a dense matrix, since the other five are
// always 0/0/1 for this model.
type Matrix struct {
	Fx, Fy float64
	Cx, Cy float64
}

// Size is the pixel dimensions of an image plane.
type Size struct {
	Width, Height int
}

// Camera is a pinhole-like model: a projection variant, its intrinsics, its
// distortion coefficients and the image size they were resolved for.
type Camera struct {
	Model      Model
	Matrix     Matrix
	Distortion [4]float64
	Size       Size
}

// Validate checks the data-model invariants: positive focal lengths,
// principal point inside the image, and (trivially, by construction) a
// 4-length distortion vector.
func (c Camera) Validate() error {
	if c.Matrix.Fx <= 0 || c.Matrix.Fy <= 0 {
		return fmt.Errorf("camera: focal lengths must be positive, got fx=%v fy=%v", c.Matrix.Fx, c.Matrix.Fy)
	}
	if c.Matrix.Cx < 0 || c.Matrix.Cx >= float64(c.Size.Width) {
		return fmt.Errorf("camera: principal point cx=%v out of [0, %d)", c.Matrix.Cx, c.Size.Width)
	}
	if c.Matrix.Cy < 0 || c.Matrix.Cy >= float64(c.Size.Height) {
		return fmt.Errorf("camera: principal point cy=%v out of [0, %d)", c.Matrix.Cy, c.Size.Height)
	}
	return nil
}

// Preset names a canonical GoPro Hero 4 Black intrinsic configuration,
// measured or published for a reference frame size.
type Preset int

const (
	H4BWide43Published Preset = iota
	H4BWide43Measured
	H4BWide43MeasuredStabilised
	H4BWide169Published
	H4BWide169Measured
	H4BWide169MeasuredStabilised
)

func (p Preset) String() string {
	switch p {
	case H4BWide43Published:
		return "H4B_Wide43_Published"
	case H4BWide43Measured:
		return "H4B_Wide43_Measured"
	case H4BWide43MeasuredStabilised:
		return "H4B_Wide43_Measured_Stabilised"
	case H4BWide169Published:
		return "H4B_Wide169_Published"
	case H4BWide169Measured:
		return "H4B_Wide169_Measured"
	case H4BWide169MeasuredStabilised:
		return "H4B_Wide169_Measured_Stabilised"
	default:
		return "unknown preset"
	}
}

// referenceIntrinsics is the preset's intrinsic matrix at its reference
// size, plus the reference size itself so ResolvePreset can scale linearly.
type referenceIntrinsics struct {
	ref    Size
	matrix Matrix
}

// Published full horizontal/vertical fields of view, in degrees, for the
// unstabilised 4:3 mode, per
// https://community.gopro.com/t5/en/HERO4-Field-of-View-FOV-Information/ta-p/390285
const (
	gopro43FOVHDeg = 122.6
	gopro43FOVVDeg = 94.4
)

func presetReference(preset Preset, refSize Size) (referenceIntrinsics, error) {
	w, h := float64(refSize.Width), float64(refSize.Height)
	switch preset {
	case H4BWide43Published:
		return referenceIntrinsics{
			ref: refSize,
			matrix: Matrix{
				Fx: w / (gopro43FOVHDeg * math.Pi / 180),
				Fy: h / (gopro43FOVVDeg * math.Pi / 180),
				Cx: (w - 1) / 2,
				Cy: (h - 1) / 2,
			},
		}, nil
	case H4BWide43Measured:
		return referenceIntrinsics{
			ref: refSize,
			matrix: Matrix{Fx: 942.96, Fy: 942.53, Cx: 967.37, Cy: 711.07},
		}, nil
	case H4BWide43MeasuredStabilised:
		return referenceIntrinsics{
			ref: refSize,
			matrix: Matrix{Fx: 1045.58, Fy: 1045.64, Cx: 965.90, Cy: 712.94},
		}, nil
	case H4BWide169Published:
		// The original source has no published 16:9 case; it falls back to
		// the 16:9 measured constants scaled from the same reference frame.
		// Here it is a published preset of its own, derived from the same
		// published 4:3 field-of-view constants as H4BWide43Published.
		return referenceIntrinsics{
			ref: refSize,
			matrix: Matrix{
				Fx: w / (gopro43FOVHDeg * math.Pi / 180),
				Fy: h / (gopro43FOVVDeg * math.Pi / 180),
				Cx: (w - 1) / 2,
				Cy: (h - 1) / 2,
			},
		}, nil
	case H4BWide169Measured:
		return referenceIntrinsics{
			ref: refSize,
			matrix: Matrix{Fx: 1392.49, Fy: 1383.47, Cx: 1361.80, Cy: 745.19},
		}, nil
	case H4BWide169MeasuredStabilised:
		return referenceIntrinsics{
			ref: refSize,
			matrix: Matrix{Fx: 1626.67, Fy: 1619.46, Cx: 1357.49, Cy: 736.74},
		}, nil
	default:
		return referenceIntrinsics{}, fmt.Errorf("camera: unresolvable preset %v", preset)
	}
}

// presetReferenceSizes holds each measured preset's canonical calibration
// frame size, matching original_source/opencv/FrameSourceWarp.cpp's
// hard-coded scale denominators.
var presetReferenceSizes = map[Preset]Size{
	H4BWide43Measured:            {Width: 1920, Height: 1440},
	H4BWide43MeasuredStabilised:  {Width: 1920, Height: 1440},
	H4BWide169Published:          {Width: 2704, Height: 1520},
	H4BWide169Measured:           {Width: 2704, Height: 1520},
	H4BWide169MeasuredStabilised: {Width: 2704, Height: 1520},
}

// ResolvePreset produces a Camera by scaling preset's reference intrinsics
// linearly (independently in x and y) to targetSize. Published presets
// derive their reference intrinsics directly at targetSize, since their
// formula is already parameterised by size; measured presets are scaled
// from their fixed calibration frame.
func ResolvePreset(preset Preset, targetSize Size) (Camera, error) {
	if targetSize.Width <= 0 || targetSize.Height <= 0 {
		return Camera{}, fmt.Errorf("camera: invalid target size %+v", targetSize)
	}

	switch preset {
	case H4BWide43Published, H4BWide169Published:
		ref, err := presetReference(preset, targetSize)
		if err != nil {
			return Camera{}, err
		}
		cam := Camera{
			Model:  Fisheye,
			Matrix: ref.matrix,
			Size:   targetSize,
		}
		if err := cam.Validate(); err != nil {
			return Camera{}, fmt.Errorf("camera: resolved preset %v invalid: %w", preset, err)
		}
		return cam, nil
	default:
		refSize, ok := presetReferenceSizes[preset]
		if !ok {
			return Camera{}, fmt.Errorf("camera: unresolvable preset %v", preset)
		}
		ref, err := presetReference(preset, refSize)
		if err != nil {
			return Camera{}, err
		}
		scaleX := float64(targetSize.Width) / float64(refSize.Width)
		scaleY := float64(targetSize.Height) / float64(refSize.Height)
		cam := Camera{
			Model: Fisheye,
			Matrix: Matrix{
				Fx: ref.matrix.Fx * scaleX,
				Fy: ref.matrix.Fy * scaleY,
				Cx: ref.matrix.Cx * scaleX,
				Cy: ref.matrix.Cy * scaleY,
			},
			Size: targetSize,
		}
		if err := cam.Validate(); err != nil {
			return Camera{}, fmt.Errorf("camera: resolved preset %v invalid: %w", preset, err)
		}
		return cam, nil
	}
}
