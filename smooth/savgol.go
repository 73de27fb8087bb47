// Package smooth implements the look-ahead Savitzky-Golay smoothing filter
// over SO(3) rotations and the stabiliser frame source built on top of it
// (spec §4.5).
package smooth

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/hedgepigdaniel/stabilize/rotation"
)

// RotationFilter is a Savitzky-Golay low-pass filter over rotations, of
// half-width R (default 30) and polynomial order 2, operating in the Lie
// algebra of SO(3): it holds 2R+1 accumulated rotations and produces one
// smoothed rotation per step by convolving their tangent-space
// coordinates relative to the window's centre rotation.
type RotationFilter struct {
	halfWidth int
	order     int
	coeffs    []float64 // convolution weights, length 2*halfWidth+1

	window []rotation.Matrix // up to 2*halfWidth+1 accumulated rotations, oldest first
}

// NewRotationFilter constructs a filter of half-width r and polynomial
// order, precomputing its Savitzky-Golay convolution coefficients via a
// Vandermonde least-squares solve.
func NewRotationFilter(r, order int) (*RotationFilter, error) {
	if r < 1 {
		return nil, fmt.Errorf("smooth: half-width must be >= 1, got %d", r)
	}
	coeffs, err := savitzkyGolayCoefficients(r, order)
	if err != nil {
		return nil, fmt.Errorf("smooth: compute coefficients: %w", err)
	}
	return &RotationFilter{halfWidth: r, order: order, coeffs: coeffs}, nil
}

// HalfWidth returns the filter's half-width R.
func (f *RotationFilter) HalfWidth() int {
	return f.halfWidth
}

// windowSize is 2R+1.
func (f *RotationFilter) windowSize() int {
	return 2*f.halfWidth + 1
}

// Push appends an accumulated rotation to the window, discarding the oldest
// entry once the window exceeds 2R+1 entries.
func (f *RotationFilter) Push(r rotation.Matrix) {
	f.window = append(f.window, r)
	if len(f.window) > f.windowSize() {
		f.window = f.window[len(f.window)-f.windowSize():]
	}
}

// Len reports how many rotations are currently held.
func (f *RotationFilter) Len() int {
	return len(f.window)
}

// Smoothed returns the filter's current output: the polynomial fit to the
// window evaluated at its centre, computed in the Lie algebra around the
// window's centre rotation. With fewer than 2R+1 entries held (Stabiliser
// first calls it once R+1 rotations have been pushed), it smooths the
// partial window instead: an even-length window drops its oldest entry so
// that it has a centre sample.
func (f *RotationFilter) Smoothed() (rotation.Matrix, error) {
	if len(f.window) == 0 {
		return rotation.Matrix{}, fmt.Errorf("smooth: empty window")
	}
	window := f.window
	if len(window)%2 == 0 {
		window = window[1:]
	}
	n := len(window)
	reference := window[n/2]

	coeffs := f.coeffs
	if n != f.windowSize() {
		// A partial window (can happen only before the very first full
		// window is reached) still needs valid coefficients; recompute for
		// the partial width rather than indexing past the precomputed set,
		// lowering the polynomial order when the window is too narrow for it.
		order := f.order
		if order > n-1 {
			order = n - 1
		}
		recomputed, err := savitzkyGolayCoefficients((n-1)/2, order)
		if err != nil {
			return rotation.Matrix{}, err
		}
		coeffs = recomputed
	}

	var tangent rotation.AxisAngle
	for i, r := range window {
		t, err := rotation.Log(reference, r)
		if err != nil {
			return rotation.Matrix{}, fmt.Errorf("smooth: log at window index %d: %w", i, err)
		}
		tangent = tangent.Add(t.Scale(coeffs[i]))
	}
	return rotation.Exp(reference, tangent)
}

// savitzkyGolayCoefficients computes the central Savitzky-Golay convolution
// weights for half-width r and polynomial order via the standard
// Vandermonde least-squares construction: fit a degree-`order` polynomial
// to samples at integer offsets -r..r, then read off the weights that
// produce the fitted value at offset 0.
func savitzkyGolayCoefficients(r, order int) ([]float64, error) {
	width := 2*r + 1
	if order >= width {
		return nil, fmt.Errorf("smooth: polynomial order %d too high for half-width %d", order, r)
	}

	// Vandermonde design matrix J: J[i][j] = offset_i^j.
	j := mat.NewDense(width, order+1, nil)
	for i := 0; i < width; i++ {
		offset := float64(i - r)
		power := 1.0
		for p := 0; p <= order; p++ {
			j.Set(i, p, power)
			power *= offset
		}
	}

	// Weights satisfy C = (J^T J)^-1 J^T, and the central-point row of C
	// (evaluating the fitted polynomial at offset 0) gives the convolution
	// coefficients directly, since only the constant term contributes at
	// offset 0.
	var jt, jtj mat.Dense
	jt.CloneFrom(j.T())
	jtj.Mul(&jt, j)

	var jtjInv mat.Dense
	if err := jtjInv.Inverse(&jtj); err != nil {
		return nil, fmt.Errorf("smooth: (J^T J) not invertible: %w", err)
	}

	var c mat.Dense
	c.Mul(&jtjInv, &jt)

	coeffs := make([]float64, width)
	for i := 0; i < width; i++ {
		coeffs[i] = c.At(0, i)
	}
	return coeffs, nil
}
