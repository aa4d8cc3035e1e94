// Package spatialmath holds the homogeneous-transform algebra used by the controller: rotation
// matrices, poses, axis-angle decomposition and the 6-D Cartesian pose error.
package spatialmath

import (
	"fmt"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"go.viam.com/armctl/utils"
)

// RotationMatrix is a 3x3 rotation stored in row-major order.
type RotationMatrix struct {
	mat [9]float64
}

// NewRotationMatrix creates a rotation matrix from nine row-major values.
func NewRotationMatrix(m []float64) (RotationMatrix, error) {
	if len(m) != 9 {
		return RotationMatrix{}, errors.Errorf("input slice has %d elements, need exactly 9", len(m))
	}
	var rm RotationMatrix
	copy(rm.mat[:], m)
	return rm, nil
}

// NewRotationMatrixFromRows builds a rotation matrix from its three rows.
func NewRotationMatrixFromRows(r0, r1, r2 r3.Vector) RotationMatrix {
	return RotationMatrix{[9]float64{
		r0.X, r0.Y, r0.Z,
		r1.X, r1.Y, r1.Z,
		r2.X, r2.Y, r2.Z,
	}}
}

// IdentityRotation returns the identity rotation.
func IdentityRotation() RotationMatrix {
	return RotationMatrix{[9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// At returns the element at row, col.
func (rm RotationMatrix) At(row, col int) float64 {
	return rm.mat[row*3+col]
}

// Row returns the row at index i as a vector.
func (rm RotationMatrix) Row(i int) r3.Vector {
	return r3.Vector{X: rm.mat[i*3], Y: rm.mat[i*3+1], Z: rm.mat[i*3+2]}
}

// Col returns the column at index j as a vector.
func (rm RotationMatrix) Col(j int) r3.Vector {
	return r3.Vector{X: rm.mat[j], Y: rm.mat[j+3], Z: rm.mat[j+6]}
}

// Trace returns the sum of the diagonal.
func (rm RotationMatrix) Trace() float64 {
	return rm.mat[0] + rm.mat[4] + rm.mat[8]
}

// Mul returns rm * other.
func (rm RotationMatrix) Mul(other RotationMatrix) RotationMatrix {
	var out RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			var sum float64
			for k := 0; k < 3; k++ {
				sum += rm.At(i, k) * other.At(k, j)
			}
			out.mat[i*3+j] = sum
		}
	}
	return out
}

// MulVec rotates v by rm.
func (rm RotationMatrix) MulVec(v r3.Vector) r3.Vector {
	return r3.Vector{X: rm.Row(0).Dot(v), Y: rm.Row(1).Dot(v), Z: rm.Row(2).Dot(v)}
}

// Transpose returns the transpose, which is the inverse of an orthonormal rotation.
func (rm RotationMatrix) Transpose() RotationMatrix {
	return RotationMatrix{[9]float64{
		rm.mat[0], rm.mat[3], rm.mat[6],
		rm.mat[1], rm.mat[4], rm.mat[7],
		rm.mat[2], rm.mat[5], rm.mat[8],
	}}
}

// Inverse computes a general matrix inverse with an LU factorization. For the rotations produced
// by forward kinematics this agrees with Transpose up to floating point drift; it is kept general
// because drift away from orthonormality is never renormalized.
func (rm RotationMatrix) Inverse() (RotationMatrix, error) {
	var inv mat.Dense
	if err := inv.Inverse(rm.Dense()); err != nil {
		return RotationMatrix{}, errors.Wrap(err, "cannot invert rotation block")
	}
	var out RotationMatrix
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out.mat[i*3+j] = inv.At(i, j)
		}
	}
	return out, nil
}

// IsIdentity reports whether rm is exactly the identity matrix, with no tolerance.
func (rm RotationMatrix) IsIdentity() bool {
	return rm == IdentityRotation()
}

// Dense returns a gonum copy of the matrix.
func (rm RotationMatrix) Dense() *mat.Dense {
	data := make([]float64, 9)
	copy(data, rm.mat[:])
	return mat.NewDense(3, 3, data)
}

// AlmostEqual compares element-wise within epsilon.
func (rm RotationMatrix) AlmostEqual(other RotationMatrix, epsilon float64) bool {
	for i := range rm.mat {
		if !utils.Float64AlmostEqual(rm.mat[i], other.mat[i], epsilon) {
			return false
		}
	}
	return true
}

func (rm RotationMatrix) String() string {
	return fmt.Sprintf("[%.4f %.4f %.4f; %.4f %.4f %.4f; %.4f %.4f %.4f]",
		rm.mat[0], rm.mat[1], rm.mat[2], rm.mat[3], rm.mat[4], rm.mat[5], rm.mat[6], rm.mat[7], rm.mat[8])
}
