// Package rotation implements the dense SO(3) representation shared by the
// motion estimator, the smoothing filter and the pipeline.
package rotation

import (
	"fmt"
	"math"

	"gocv.io/x/gocv"
)

// Matrix is a 3x3 rotation matrix stored row-major, matching the data model's
// "dense 3x3 of doubles" requirement.
type Matrix [3][3]float64

// Identity returns the identity rotation.
func Identity() Matrix {
	return Matrix{
		{1, 0, 0},
		{0, 1, 0},
		{0, 0, 1},
	}
}

// Mul returns m*other, composing other's rotation followed by m's.
func (m Matrix) Mul(other Matrix) Matrix {
	var out Matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += m[i][k] * other[k][j]
			}
			out[i][j] = sum
		}
	}
	return out
}

// Transpose returns the transpose of m, which for a valid rotation is also
// its inverse.
func (m Matrix) Transpose() Matrix {
	var out Matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[j][i] = m[i][j]
		}
	}
	return out
}

// Inverse returns the inverse rotation. For SO(3) this is the transpose;
// callers that pass an invalid matrix get garbage back, not an error, since
// Validate is the place to check that.
func (m Matrix) Inverse() Matrix {
	return m.Transpose()
}

// Det returns the determinant of m.
func (m Matrix) Det() float64 {
	return m[0][0]*(m[1][1]*m[2][2]-m[1][2]*m[2][1]) -
		m[0][1]*(m[1][0]*m[2][2]-m[1][2]*m[2][0]) +
		m[0][2]*(m[1][0]*m[2][1]-m[1][1]*m[2][0])
}

// Validate checks invariant 1: ||R^T R - I||_F < 1e-5 and det(R) in
// [1-1e-5, 1+1e-5].
func (m Matrix) Validate() error {
	const tol = 1e-5
	if d := m.Det(); d < 1-tol || d > 1+tol {
		return fmt.Errorf("rotation: determinant %v out of [1-%v, 1+%v]", d, tol, tol)
	}
	prod := m.Transpose().Mul(m)
	var frob float64
	ident := Identity()
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			diff := prod[i][j] - ident[i][j]
			frob += diff * diff
		}
	}
	frob = math.Sqrt(frob)
	if frob >= tol {
		return fmt.Errorf("rotation: ||R^T R - I||_F = %v >= %v", frob, tol)
	}
	return nil
}

func (m Matrix) toGocv() gocv.Mat {
	mat := gocv.NewMatWithSize(3, 3, gocv.MatTypeCV64F)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			mat.SetDoubleAt(i, j, m[i][j])
		}
	}
	return mat
}

func fromGocv(mat gocv.Mat) Matrix {
	var out Matrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out[i][j] = mat.GetDoubleAt(i, j)
		}
	}
	return out
}

// ToAxisAngle converts m to its Rodrigues axis-angle representation via
// gocv.Rodrigues.
func (m Matrix) ToAxisAngle() (AxisAngle, error) {
	src := m.toGocv()
	defer src.Close()
	dst := gocv.NewMat()
	defer dst.Close()
	if err := gocv.Rodrigues(src, &dst); err != nil {
		return AxisAngle{}, fmt.Errorf("rotation: rodrigues matrix->axis-angle: %w", err)
	}
	return AxisAngle{
		X: dst.GetDoubleAt(0, 0),
		Y: dst.GetDoubleAt(1, 0),
		Z: dst.GetDoubleAt(2, 0),
	}, nil
}

// AxisAngle is a Rodrigues axis-angle 3-vector: direction is the rotation
// axis, magnitude is the rotation angle in radians.
type AxisAngle struct {
	X, Y, Z float64
}

// Scale multiplies the axis-angle vector by s, used by the Lie-algebra
// smoothing filter to scale tangent-space samples.
func (a AxisAngle) Scale(s float64) AxisAngle {
	return AxisAngle{X: a.X * s, Y: a.Y * s, Z: a.Z * s}
}

// Add sums two axis-angle vectors componentwise. This is only valid in the
// tangent space around a shared reference rotation, not as a general
// rotation composition.
func (a AxisAngle) Add(b AxisAngle) AxisAngle {
	return AxisAngle{X: a.X + b.X, Y: a.Y + b.Y, Z: a.Z + b.Z}
}

// ToMatrix converts an axis-angle vector back to a rotation matrix via
// gocv.Rodrigues.
func (a AxisAngle) ToMatrix() (Matrix, error) {
	src := gocv.NewMatWithSize(3, 1, gocv.MatTypeCV64F)
	defer src.Close()
	src.SetDoubleAt(0, 0, a.X)
	src.SetDoubleAt(1, 0, a.Y)
	src.SetDoubleAt(2, 0, a.Z)
	dst := gocv.NewMat()
	defer dst.Close()
	if err := gocv.Rodrigues(src, &dst); err != nil {
		return Matrix{}, fmt.Errorf("rotation: rodrigues axis-angle->matrix: %w", err)
	}
	return fromGocv(dst), nil
}

// Log maps m into the tangent space at the identity (the Lie algebra so(3)),
// expressed as an axis-angle vector. It is the relative log used by the
// smoothing filter: Log(reference^-1 * m).
func Log(reference, m Matrix) (AxisAngle, error) {
	relative := reference.Transpose().Mul(m)
	return relative.ToAxisAngle()
}

// Exp is the inverse of Log: given a reference rotation and a tangent
// vector expressed relative to it, reconstruct the absolute rotation.
func Exp(reference Matrix, tangent AxisAngle) (Matrix, error) {
	relative, err := tangent.ToMatrix()
	if err != nil {
		return Matrix{}, err
	}
	return reference.Mul(relative), nil
}
