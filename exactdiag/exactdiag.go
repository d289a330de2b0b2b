// Package exactdiag computes reference spectra by exact diagonalization of full Hamiltonian matrices.
package exactdiag

import (
	"math"

	"github.com/fumin/mpopt/dmrg"
	"github.com/fumin/mpopt/exactdiag/mat"
	"github.com/fumin/mpopt/mps"
	"github.com/pkg/errors"
)

// DenseMaxDim is the largest dimension diagonalized densely by GroundState.
const DenseMaxDim = 1 << 10

var (
	identity = mat.Identity(2)
	pauliX   = mat.M([][]float64{{0, 1}, {1, 0}})
	pauliZ   = mat.M([][]float64{{1, 0}, {0, -1}})
)

// TransverseFieldIsing returns H = -j sum <Z_a Z_b> - h sum X_a on a lattice of n[0] rows and n[1] columns,
// where <a, b> runs over nearest neighbours with open boundaries.
// Spin (y, x) is the factor y*n[1]+x of the tensor product, counting from the most significant one.
func TransverseFieldIsing(n [2]int, j, h float64) *mat.COO {
	numSpins := n[0] * n[1]
	hamiltonian := mat.Zeros(1<<numSpins, 1<<numSpins)
	for y := range n[0] {
		for x := range n[1] {
			if up := y - 1; up >= 0 {
				hamiltonian.Add(-j, product(n, map[[2]int]*mat.COO{{up, x}: pauliZ, {y, x}: pauliZ}))
			}
			if left := x - 1; left >= 0 {
				hamiltonian.Add(-j, product(n, map[[2]int]*mat.COO{{y, left}: pauliZ, {y, x}: pauliZ}))
			}
			hamiltonian.Add(-h, product(n, map[[2]int]*mat.COO{{y, x}: pauliX}))
		}
	}
	return hamiltonian
}

// product returns the tensor product of ops, with the identity on the remaining spins.
func product(n [2]int, ops map[[2]int]*mat.COO) *mat.COO {
	system := mat.Zeros(1, 1)
	system.Scalar(1)
	for y := range n[0] {
		for x := range n[1] {
			op, ok := ops[[2]int{y, x}]
			if !ok {
				op = identity
			}
			system.Kron(op)
		}
	}
	return system
}

// Hamiltonian returns the full matrix of an MPO.
func Hamiltonian(o *mps.MPO) *mat.COO {
	return mat.FromDense(o.Matrix())
}

// GroundState returns the lowest eigenpair of h.
// Matrices up to DenseMaxDim are diagonalized densely, larger ones with Lanczos iterations.
func GroundState(h *mat.COO) (mat.ValVec, error) {
	if h.Rows() != h.Cols() {
		return mat.ValVec{}, errors.Wrapf(mps.ErrShape, "%dx%d", h.Rows(), h.Cols())
	}
	if h.Rows() <= DenseMaxDim {
		vvs, err := h.Eigen()
		if err != nil {
			return mat.ValVec{}, errors.Wrap(err, "")
		}
		return vvs[0], nil
	}

	guess := make([]float64, h.Rows())
	for i := range guess {
		guess[i] = 1 + math.Sin(float64(i))/2
	}
	val, vec, err := dmrg.Lanczos{Krylov: 64, Restarts: 256}.Solve(h, guess, dmrg.SmallestAlgebraic)
	if err != nil {
		return mat.ValVec{}, errors.Wrap(err, "")
	}
	return mat.ValVec{Val: val, Vec: vec}, nil
}

// GroundEnergy returns the lowest eigenvalue of an MPO by exact diagonalization.
func GroundEnergy(o *mps.MPO) (float64, error) {
	vv, err := GroundState(Hamiltonian(o))
	if err != nil {
		return math.NaN(), errors.Wrap(err, "")
	}
	return vv.Val, nil
}

// Statistics are observables of the ground state of a spin 1/2 lattice.
type Statistics struct {
	EigenValue []float64
	// Magnetization is <|M|>/N, where M is the sum of the z spins.
	Magnetization float64
	// BinderCumulant is 1 - <M^4>/(3 <M^2>^2).
	BinderCumulant float64
}

// GetStatistics returns the statistics of the eigenpairs vvs, ordered by eigenvalue, on a lattice of size n.
func GetStatistics(n [2]int, vvs []mat.ValVec) (Statistics, error) {
	if len(vvs) == 0 {
		return Statistics{}, errors.Errorf("no eigenpairs")
	}
	var stats Statistics
	for _, vv := range vvs {
		stats.EigenValue = append(stats.EigenValue, vv.Val)
	}
	ground := vvs[0]
	numSpins := n[0] * n[1]
	if len(ground.Vec) != 1<<numSpins {
		return Statistics{}, errors.Wrapf(mps.ErrShape, "%d %d", len(ground.Vec), 1<<numSpins)
	}

	var totalProb, m2, m4 float64
	for i, state := range bits(numSpins) {
		probability := ground.Vec[i] * ground.Vec[i]
		// Bit 0 is the +1 eigenstate of Z.
		var basisM float64
		for _, b := range state {
			basisM += float64(1 - 2*int(b))
		}
		basisM = math.Abs(basisM)

		totalProb += probability
		stats.Magnetization += probability * basisM
		m2 += probability * basisM * basisM
		m4 += probability * math.Pow(basisM, 4)
	}
	if math.Abs(totalProb-1) > 1e-3 {
		return Statistics{}, errors.Wrapf(mps.ErrNumerical, "total probability %f", totalProb)
	}

	stats.Magnetization /= float64(numSpins)
	stats.BinderCumulant = 1 - m4/(3*m2*m2)
	return stats, nil
}

// bits iterates the basis states of n spins in the order of their index, the first spin being the most significant bit.
func bits(n int) func(yield func(int, []byte) bool) {
	state := make([]byte, n)
	return func(yield func(int, []byte) bool) {
		for i := range 1 << n {
			for k := range n {
				state[k] = byte((i >> (n - 1 - k)) & 1)
			}
			if !yield(i, state) {
				return
			}
		}
	}
}
