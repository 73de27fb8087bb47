// Package motion recovers the inter-frame 3-D camera rotation from a point
// correspondence using a PnP+RANSAC solve with a random-depth trick to
// suppress translation degeneracy (spec §4.4).
package motion

import (
	"math"
	"math/rand/v2"

	"gocv.io/x/gocv"

	"github.com/hedgepigdaniel/stabilize/camera"
	"github.com/hedgepigdaniel/stabilize/rotation"
	"github.com/hedgepigdaniel/stabilize/track"
)

const (
	ransacIterations = 100
	ransacThreshold  = 8.0
	ransacConfidence = 0.99
	minInliers       = 40
)

// Estimator holds the input/output camera pair and the fallback state used
// when the solver fails or produces too few inliers.
type Estimator struct {
	input  camera.Camera
	output camera.Camera
	rng    *rand.Rand

	havePrevious     bool
	previousRotation rotation.Matrix
}

// NewEstimator constructs an Estimator for the given input/output camera
// pair. rng supplies the per-point random depths used to break PnP's
// translation degeneracy; pass rand.New(rand.NewPCG(seed, seed)) for
// deterministic tests.
func NewEstimator(input, output camera.Camera, rng *rand.Rand) *Estimator {
	if rng == nil {
		rng = rand.New(rand.NewPCG(1, 2))
	}
	return &Estimator{input: input, output: output, rng: rng, previousRotation: rotation.Identity()}
}

// Result is the outcome of one Estimate call.
type Result struct {
	Rotation rotation.Matrix
	Inliers  int
	Fallback bool
}

// Estimate recovers the rotation R such that rays through corr.Current in
// the output camera equal R applied to rays through corr.Previous in the
// identity camera, per spec §4.4's five-step algorithm. On solver failure
// or inlier count below 40 it falls back to the previous inter-frame
// rotation (or identity if none has been recorded yet).
func (e *Estimator) Estimate(corr track.Correspondence) (Result, error) {
	n := len(corr.Previous)
	if n == 0 {
		return e.fallback(0), nil
	}

	// Step 1: undistort P_c through the input camera into the output
	// camera's image plane (calibrated rays).
	currOutput, err := undistortFisheye(e.input, corr.Current, &e.output)
	if err != nil {
		return e.fallback(0), nil
	}

	// Step 2: undistort P_p through the input camera to identity-camera
	// (unit-focal) coordinates.
	prevIdentity, err := undistortFisheye(e.input, corr.Previous, nil)
	if err != nil {
		return e.fallback(0), nil
	}

	// Step 3: assign each previous-frame point a random depth in (0, 1].
	objectPoints := gocv.NewMatWithSize(n, 1, gocv.MatTypeCV64FC3)
	defer objectPoints.Close()
	for i := 0; i < n; i++ {
		depth := e.rng.Float64()
		if depth == 0 {
			depth = 1e-9
		}
		objectPoints.SetDoubleAt3(i, 0, 0, prevIdentity[i].X*depth)
		objectPoints.SetDoubleAt3(i, 0, 1, prevIdentity[i].Y*depth)
		objectPoints.SetDoubleAt3(i, 0, 2, depth)
	}

	imagePoints := gocv.NewMatWithSize(n, 1, gocv.MatTypeCV64FC2)
	defer imagePoints.Close()
	for i := 0; i < n; i++ {
		imagePoints.SetDoubleAt3(i, 0, 0, float64(currOutput[i].X))
		imagePoints.SetDoubleAt3(i, 0, 1, float64(currOutput[i].Y))
	}

	cameraMatrix := intrinsicMat(e.output)
	defer cameraMatrix.Close()
	distCoeffs := gocv.NewMatWithSize(4, 1, gocv.MatTypeCV64F)
	defer distCoeffs.Close()

	rvec := gocv.NewMat()
	defer rvec.Close()
	tvec := gocv.NewMat()
	defer tvec.Close()

	success := gocv.SolvePnPRansac(
		objectPoints, imagePoints, cameraMatrix, distCoeffs,
		&rvec, &tvec,
	)
	if !success {
		return e.fallback(0), nil
	}

	rotMat := gocv.NewMat()
	defer rotMat.Close()
	if err := gocv.Rodrigues(rvec, &rotMat); err != nil {
		return e.fallback(0), nil
	}
	r := matToRotation(rotMat)

	// gocv's SolvePnPRansac binding does not surface OpenCV's inlier mask,
	// so the 100-iteration/0.99-confidence RANSAC call above runs with
	// OpenCV's own defaults; we recover an inlier count in the spirit of
	// spec §4.4 step 5 by reprojecting every object point with the solved
	// pose and counting those within the 8px threshold.
	inlierCount := countReprojectionInliers(r, objectPoints, imagePoints, e.output, ransacThreshold)

	if inlierCount < minInliers {
		return e.fallback(inlierCount), nil
	}

	if err := r.Validate(); err != nil {
		return e.fallback(inlierCount), nil
	}

	e.havePrevious = true
	e.previousRotation = r
	return Result{Rotation: r, Inliers: inlierCount}, nil
}

func (e *Estimator) fallback(inliers int) Result {
	r := rotation.Identity()
	if e.havePrevious {
		r = e.previousRotation
	}
	return Result{Rotation: r, Inliers: inliers, Fallback: true}
}

// point2 is a plain undistorted point in calibrated coordinates.
type point2 struct{ X, Y float32 }

// undistortFisheye maps points from input-image pixel coordinates through
// the fisheye equidistant model into either the identity camera (target ==
// nil) or target's image plane.
func undistortFisheye(input camera.Camera, points []track.Point, target *camera.Camera) ([]point2, error) {
	out := make([]point2, len(points))
	for i, p := range points {
		xd := (float64(p.X) - input.Matrix.Cx) / input.Matrix.Fx
		yd := (float64(p.Y) - input.Matrix.Cy) / input.Matrix.Fy
		r := math.Hypot(xd, yd)
		scale := 1.0
		if r > 1e-12 {
			// Equidistant fisheye: r == theta, so undo the radial mapping by
			// converting back to the tangent of the incidence angle.
			scale = math.Tan(r) / r
		}
		ux, uy := xd*scale, yd*scale
		if target == nil {
			out[i] = point2{X: float32(ux), Y: float32(uy)}
			continue
		}
		out[i] = point2{
			X: float32(target.Matrix.Cx + target.Matrix.Fx*ux),
			Y: float32(target.Matrix.Cy + target.Matrix.Fy*uy),
		}
	}
	return out, nil
}

func intrinsicMat(c camera.Camera) gocv.Mat {
	m := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	m.SetDoubleAt(0, 0, c.Matrix.Fx)
	m.SetDoubleAt(1, 1, c.Matrix.Fy)
	m.SetDoubleAt(0, 2, c.Matrix.Cx)
	m.SetDoubleAt(1, 2, c.Matrix.Cy)
	m.SetDoubleAt(2, 2, 1)
	return m
}

// countReprojectionInliers reprojects each object point through rot using
// output's intrinsics (translation-free, since depth noise already absorbs
// the fitted translation) and counts how many land within thresholdPx of
// their observed image point.
func countReprojectionInliers(rot rotation.Matrix, objectPoints, imagePoints gocv.Mat, output camera.Camera, thresholdPx float64) int {
	n := objectPoints.Rows()
	count := 0
	for i := 0; i < n; i++ {
		x := objectPoints.GetDoubleAt3(i, 0, 0)
		y := objectPoints.GetDoubleAt3(i, 0, 1)
		z := objectPoints.GetDoubleAt3(i, 0, 2)

		rx := rot[0][0]*x + rot[0][1]*y + rot[0][2]*z
		ry := rot[1][0]*x + rot[1][1]*y + rot[1][2]*z
		rz := rot[2][0]*x + rot[2][1]*y + rot[2][2]*z
		if rz == 0 {
			continue
		}
		u := output.Matrix.Cx + output.Matrix.Fx*rx/rz
		v := output.Matrix.Cy + output.Matrix.Fy*ry/rz

		obsU := imagePoints.GetDoubleAt3(i, 0, 0)
		obsV := imagePoints.GetDoubleAt3(i, 0, 1)

		d := math.Hypot(u-obsU, v-obsV)
		if d <= thresholdPx {
			count++
		}
	}
	return count
}

func matToRotation(m gocv.Mat) rotation.Matrix {
	var out rotation.Matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = m.GetDoubleAt(i, j)
		}
	}
	return out
}
