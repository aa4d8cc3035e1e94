package kinematics

import (
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

const machineEpsilon = 2.220446049250313e-16

// PseudoInverse returns the Moore-Penrose pseudo-inverse computed from a thin SVD. Singular
// values below max(rows, cols) * eps * largest are treated as zero.
func PseudoInverse(m mat.Matrix) (*mat.Dense, error) {
	rows, cols := m.Dims()
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDThin); !ok {
		return nil, errors.New("SVD factorization failed")
	}
	values := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	tol := 0.
	if len(values) > 0 {
		tol = float64(max(rows, cols)) * values[0] * machineEpsilon
	}
	inv := make([]float64, len(values))
	for i, s := range values {
		if s > tol {
			inv[i] = 1 / s
		}
	}

	// pinv = V * diag(1/s) * U^T
	var vs mat.Dense
	vs.Mul(&v, mat.NewDiagDense(len(inv), inv))
	out := mat.NewDense(cols, rows, nil)
	out.Mul(&vs, u.T())
	return out, nil
}

// Determinant returns the determinant of a square Jacobian.
func Determinant(m mat.Matrix) (float64, error) {
	r, c := m.Dims()
	if r != c {
		return 0, errors.Errorf("determinant needs a square matrix, got %dx%d", r, c)
	}
	return mat.Det(m), nil
}

// MulVec returns m * v.
func MulVec(m mat.Matrix, v []float64) ([]float64, error) {
	_, c := m.Dims()
	if c != len(v) {
		return nil, errors.Errorf("matrix has %d columns but vector has %d entries", c, len(v))
	}
	var out mat.VecDense
	out.MulVec(m, mat.NewVecDense(len(v), append([]float64(nil), v...)))
	return out.RawVector().Data, nil
}
