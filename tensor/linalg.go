package tensor

import (
	"math"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// QR returns the thin QR decomposition a = q @ r, where q is m×k with orthonormal columns, r is k×n upper trapezoidal, and k = min(m, n).
// The diagonal of r is non-negative, which makes the decomposition unique for full rank a,
// and makes QR(q) return q itself.
func QR(a *mat.Dense) (q, r *mat.Dense, err error) {
	if !isFinite(a) {
		return nil, nil, errors.Wrap(ErrNumerical, "QR of non-finite matrix")
	}
	m, n := a.Dims()
	k := min(m, n)

	var full mat.Dense
	switch {
	case m >= n:
		var f mat.QR
		f.Factorize(a)
		var qf, rf mat.Dense
		f.QTo(&qf)
		f.RTo(&rf)
		q = mat.DenseCopyOf(qf.Slice(0, m, 0, k))
		r = mat.DenseCopyOf(rf.Slice(0, k, 0, n))
	default:
		// gonum only factorizes tall matrices.
		// Factorize the leading square block, whose q is already the full orthogonal factor, and recover r = q^T a.
		var f mat.QR
		f.Factorize(a.Slice(0, m, 0, m))
		q = mat.NewDense(m, m, nil)
		f.QTo(q)
		full.Mul(q.T(), a)
		r = mat.DenseCopyOf(&full)
		// Entries below the diagonal are zero up to rounding.
		for i := 1; i < m; i++ {
			for j := 0; j < min(i, n); j++ {
				r.Set(i, j, 0)
			}
		}
	}

	// Flip signs so that the diagonal of r is non-negative.
	for i := range k {
		if r.At(i, i) >= 0 {
			continue
		}
		for j := range n {
			r.Set(i, j, -r.At(i, j))
		}
		for j := range m {
			q.Set(j, i, -q.At(j, i))
		}
	}
	return q, r, nil
}

// LQ returns the thin LQ decomposition a = l @ q, where q is k×n with orthonormal rows.
// The diagonal of l is non-negative.
func LQ(a *mat.Dense) (l, q *mat.Dense, err error) {
	qt, rt, err := QR(mat.DenseCopyOf(a.T()))
	if err != nil {
		return nil, nil, errors.Wrap(err, "")
	}
	return mat.DenseCopyOf(rt.T()), mat.DenseCopyOf(qt.T()), nil
}

// SVD returns the thin singular value decomposition a = u @ diag(s) @ vt, with s in descending order.
func SVD(a *mat.Dense) (u *mat.Dense, s []float64, vt *mat.Dense, err error) {
	if !isFinite(a) {
		return nil, nil, nil, errors.Wrap(ErrNumerical, "SVD of non-finite matrix")
	}
	var f mat.SVD
	if ok := f.Factorize(a, mat.SVDThin); !ok {
		r, c := a.Dims()
		return nil, nil, nil, errors.Wrapf(ErrNumerical, "SVD of %dx%d matrix did not converge", r, c)
	}
	s = f.Values(nil)
	u, v := &mat.Dense{}, &mat.Dense{}
	f.UTo(u)
	f.VTo(v)
	return u, s, mat.DenseCopyOf(v.T()), nil
}

func isFinite(a mat.Matrix) bool {
	r, c := a.Dims()
	for i := range r {
		for j := range c {
			v := a.At(i, j)
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
