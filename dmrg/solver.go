package dmrg

import (
	"math"

	"github.com/fumin/mpopt/mps"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// LinearOperator is a real symmetric linear map.
type LinearOperator interface {
	// Dim returns the dimension of the vector space.
	Dim() int
	// Apply stores the image of x in dst.
	Apply(dst, x []float64)
}

// Solver finds an extremal eigenpair of a symmetric operator.
// The returned eigenvector has unit norm and its largest magnitude component is positive.
type Solver interface {
	Solve(op LinearOperator, guess []float64, which Which) (float64, []float64, error)
}

// DenseSolver builds the operator as a dense matrix and diagonalizes it with gonum's EigenSym.
// Among degenerate eigenvalues it returns the eigenvector of the lowest column in EigenSym's ascending order.
type DenseSolver struct{}

// Solve implements Solver.
func (DenseSolver) Solve(op LinearOperator, guess []float64, which Which) (float64, []float64, error) {
	n := op.Dim()
	a := mat.NewSymDense(n, nil)
	x := make([]float64, n)
	col := make([]float64, n)
	for j := range n {
		clear(x)
		x[j] = 1
		op.Apply(col, x)
		// Entries above the diagonal hold the transposed element from an earlier column.
		for i := range j {
			a.SetSym(i, j, (col[i]+a.At(i, j))/2)
		}
		a.SetSym(j, j, col[j])
		for i := j + 1; i < n; i++ {
			a.SetSym(i, j, col[i])
		}
	}
	return denseEigen(a, which)
}

func denseEigen(a *mat.SymDense, which Which) (float64, []float64, error) {
	n := a.SymmetricDim()
	if !isFiniteSym(a) {
		return 0, nil, errors.Wrap(mps.ErrNumerical, "local operator is not finite")
	}
	var eig mat.EigenSym
	if ok := eig.Factorize(a, true); !ok {
		return 0, nil, errors.Wrapf(mps.ErrNumerical, "EigenSym of dimension %d did not converge", n)
	}
	vals := eig.Values(nil)
	var vecs mat.Dense
	eig.VectorsTo(&vecs)

	best := 0
	for i, v := range vals {
		if which.better(v, vals[best]) {
			best = i
		}
	}
	vec := mat.Col(nil, best, &vecs)
	fixSign(vec)
	return vals[best], vec, nil
}

// Lanczos is a restarted Lanczos solver with full reorthogonalization.
// Every restart begins from the current Ritz vector, so the Krylov spaces contain only the components of guess.
// Within a degenerate eigenspace it therefore returns the normalized projection of guess onto that space.
// If no Ritz pair meets Tol within Restarts, Solve returns the pair of smallest residual.
type Lanczos struct {
	// Krylov is the maximum dimension of a Krylov space, 64 if zero.
	Krylov int
	// Restarts is the maximum number of restarts, 64 if zero.
	Restarts int
	// Tol is the residual norm relative to the eigenvalue at which the solver stops, 1e-10 if zero.
	Tol float64
}

func (l Lanczos) withDefaults() Lanczos {
	if l.Krylov <= 0 {
		l.Krylov = 64
	}
	if l.Restarts <= 0 {
		l.Restarts = 64
	}
	if l.Tol <= 0 {
		l.Tol = 1e-10
	}
	return l
}

// Solve implements Solver.
func (l Lanczos) Solve(op LinearOperator, guess []float64, which Which) (float64, []float64, error) {
	l = l.withDefaults()
	n := op.Dim()
	if len(guess) != n {
		return 0, nil, errors.Wrapf(mps.ErrShape, "guess of length %d for dimension %d", len(guess), n)
	}
	v := make([]float64, n)
	copy(v, guess)
	if !floats.HasNaN(v) && floats.Norm(v, 2) == 0 {
		for i := range v {
			v[i] = 1
		}
	}

	ax := make([]float64, n)
	bestTheta, bestRes := 0.0, math.Inf(1)
	var best []float64
	for range l.Restarts + 1 {
		theta, x, exhausted, err := l.iterate(op, v, which)
		if err != nil {
			return 0, nil, errors.Wrap(err, "")
		}
		op.Apply(ax, x)
		floats.AddScaled(ax, -theta, x)
		res := floats.Norm(ax, 2)
		if exhausted || res <= l.Tol*max(1, math.Abs(theta)) {
			fixSign(x)
			return theta, x, nil
		}
		if res < bestRes {
			bestTheta, bestRes, best = theta, res, x
		}
		v = x
	}
	if best == nil {
		return 0, nil, errors.Wrapf(mps.ErrNumerical, "Lanczos residual is not finite after %d restarts", l.Restarts)
	}
	fixSign(best)
	return bestTheta, best, nil
}

// iterate builds a Krylov space from v and returns the selected Ritz pair.
// exhausted reports whether the Krylov space is invariant, in which case the Ritz pair is exact.
func (l Lanczos) iterate(op LinearOperator, v0 []float64, which Which) (float64, []float64, bool, error) {
	n := op.Dim()
	m := min(n, l.Krylov)
	norm := floats.Norm(v0, 2)
	if !(norm > 0) || math.IsInf(norm, 0) {
		return 0, nil, false, errors.Wrapf(mps.ErrNumerical, "starting vector norm %g", norm)
	}

	basis := make([][]float64, 0, m)
	alpha := make([]float64, 0, m)
	beta := make([]float64, 0, m)
	v := make([]float64, n)
	floats.ScaleTo(v, 1/norm, v0)
	exhausted := false
	var scale float64
	for j := range m {
		basis = append(basis, v)
		w := make([]float64, n)
		op.Apply(w, v)
		a := floats.Dot(v, w)
		if math.IsNaN(a) || math.IsInf(a, 0) {
			return 0, nil, false, errors.Wrap(mps.ErrNumerical, "local operator is not finite")
		}
		alpha = append(alpha, a)
		// Full reorthogonalization, twice is enough.
		for range 2 {
			for _, u := range basis {
				floats.AddScaled(w, -floats.Dot(u, w), u)
			}
		}
		b := floats.Norm(w, 2)
		scale = max(scale, math.Abs(a), b)
		if j == n-1 || b <= 1e-13*scale {
			exhausted = true
			break
		}
		if j == m-1 {
			break
		}
		beta = append(beta, b)
		v = make([]float64, n)
		floats.ScaleTo(v, 1/b, w)
	}

	k := len(alpha)
	t := mat.NewSymDense(k, nil)
	for i, a := range alpha {
		t.SetSym(i, i, a)
	}
	for i, b := range beta[:k-1] {
		t.SetSym(i, i+1, b)
	}
	theta, y, err := denseEigen(t, which)
	if err != nil {
		return 0, nil, false, errors.Wrap(err, "")
	}

	x := make([]float64, n)
	for i, u := range basis {
		floats.AddScaled(x, y[i], u)
	}
	floats.Scale(1/floats.Norm(x, 2), x)
	return theta, x, exhausted, nil
}

// AutoSolver uses DenseSolver for small operators and Lanczos otherwise.
type AutoSolver struct {
	// DenseMaxDim is the largest dimension solved densely, 64 if zero.
	DenseMaxDim int
	Lanczos     Lanczos
}

// Solve implements Solver.
func (s AutoSolver) Solve(op LinearOperator, guess []float64, which Which) (float64, []float64, error) {
	limit := s.DenseMaxDim
	if limit <= 0 {
		limit = 64
	}
	if op.Dim() <= limit {
		return DenseSolver{}.Solve(op, guess, which)
	}
	return s.Lanczos.Solve(op, guess, which)
}

// fixSign flips v so that its first largest magnitude component is positive.
func fixSign(v []float64) {
	var largest int
	for i, x := range v {
		if math.Abs(x) > math.Abs(v[largest]) {
			largest = i
		}
	}
	if v[largest] < 0 {
		floats.Scale(-1, v)
	}
}

func isFiniteSym(a *mat.SymDense) bool {
	n := a.SymmetricDim()
	for i := range n {
		for j := i; j < n; j++ {
			if v := a.At(i, j); math.IsNaN(v) || math.IsInf(v, 0) {
				return false
			}
		}
	}
	return true
}
