// Package track maintains a rolling set of trackable corner points across
// frames, detecting fresh corners on a key-frame policy and following them
// with sparse pyramidal Lucas-Kanade optical flow (spec §4.3).
package track

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

const (
	maxCorners      = 200
	qualityLevel    = 0.01
	minDistance     = 30
	keyframeMaxAge  = 20
	keyframeMinSize = 150
)

// Point is a 2-D image-coordinate point, single precision per the data
// model's PointSet.
type Point struct {
	X, Y float32
}

// Correspondence is a pair of aligned point sequences between a previous and
// a current frame: same length, index i refers to the same physical
// feature in both.
type Correspondence struct {
	Previous []Point
	Current  []Point
}

// Tracker holds the carried corner set and the frame index it was last
// refreshed at.
type Tracker struct {
	lastCorners       []Point
	lastKeyframeIndex int
	haveKeyframe      bool
}

// NewTracker returns an empty tracker; the first call to Update always
// triggers a fresh detection since no corners are carried yet.
func NewTracker() *Tracker {
	return &Tracker{}
}

// NeedsRefresh reports whether the key-frame policy (spec §4.3) requires a
// fresh detection at frameIndex: carried age exceeds 20 frames, or the
// carried set has fewer than 150 points.
func (t *Tracker) NeedsRefresh(frameIndex int) bool {
	if !t.haveKeyframe {
		return true
	}
	if frameIndex-t.lastKeyframeIndex > keyframeMaxAge {
		return true
	}
	if len(t.lastCorners) < keyframeMinSize {
		return true
	}
	return false
}

// Update tracks the carried corner set from previousGray to currentGray,
// refreshing the carried set first (by detecting fresh corners on
// previousGray) if the key-frame policy requires it at frameIndex. It
// returns the point correspondence between previousGray and currentGray.
func (t *Tracker) Update(previousGray, currentGray gocv.Mat, frameIndex int) (Correspondence, error) {
	if t.NeedsRefresh(frameIndex) {
		corners, err := DetectCorners(previousGray)
		if err != nil {
			return Correspondence{}, fmt.Errorf("track: refresh corners: %w", err)
		}
		t.lastCorners = corners
		t.lastKeyframeIndex = frameIndex
		t.haveKeyframe = true
	}

	if len(t.lastCorners) == 0 {
		return Correspondence{}, nil
	}

	prev, curr, err := FollowCorners(previousGray, currentGray, t.lastCorners)
	if err != nil {
		return Correspondence{}, fmt.Errorf("track: follow corners: %w", err)
	}
	t.lastCorners = curr
	return Correspondence{Previous: prev, Current: curr}, nil
}

// DetectCorners runs Shi-Tomasi corner detection on gray, capped at 200
// corners with minimum quality 0.01 and minimum separation 30px, per spec
// §4.3.
func DetectCorners(gray gocv.Mat) ([]Point, error) {
	corners := gocv.NewMat()
	defer corners.Close()

	gocv.GoodFeaturesToTrack(gray, &corners, maxCorners, qualityLevel, minDistance)

	out := make([]Point, corners.Rows())
	for i := 0; i < corners.Rows(); i++ {
		v := corners.GetVecfAt(i, 0)
		out[i] = Point{X: v[0], Y: v[1]}
	}
	return out, nil
}

// FollowCorners runs sparse pyramidal Lucas-Kanade optical flow from
// previousGray to currentGray for the given previous corner set, and
// returns only the correspondences whose per-point status byte reports
// success (spec §4.3).
func FollowCorners(previousGray, currentGray gocv.Mat, corners []Point) (prev, curr []Point, err error) {
	if len(corners) == 0 {
		return nil, nil, nil
	}

	prevMat, err := pointsToMat(corners)
	if err != nil {
		return nil, nil, err
	}
	defer prevMat.Close()

	currMat := gocv.NewMat()
	defer currMat.Close()
	status := gocv.NewMat()
	defer status.Close()
	errMat := gocv.NewMat()
	defer errMat.Close()

	gocv.CalcOpticalFlowPyrLK(previousGray, currentGray, prevMat, currMat, &status, &errMat)

	for i := 0; i < status.Rows(); i++ {
		if status.GetUCharAt(i, 0) == 0 {
			continue
		}
		v := currMat.GetVecfAt(i, 0)
		prev = append(prev, corners[i])
		curr = append(curr, Point{X: v[0], Y: v[1]})
	}
	return prev, curr, nil
}

func pointsToMat(points []Point) (gocv.Mat, error) {
	data := make([]float32, len(points)*2)
	for i, p := range points {
		data[i*2] = p.X
		data[i*2+1] = p.Y
	}
	return gocv.NewMatFromBytes(len(points), 1, gocv.MatTypeCV32FC2, float32sToBytes(data))
}

func float32sToBytes(data []float32) []byte {
	out := make([]byte, len(data)*4)
	for i, v := range data {
		bits := math.Float32bits(v)
		out[i*4] = byte(bits)
		out[i*4+1] = byte(bits >> 8)
		out[i*4+2] = byte(bits >> 16)
		out[i*4+3] = byte(bits >> 24)
	}
	return out
}
