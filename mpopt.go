// Package mpopt optimizes matrix product states against matrix product operators.
//
// It is a thin entry point over the packages doing the work:
// mps for the states, operators and their contractions, dmrg for the variational optimizer,
// and models for common Hamiltonians.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock
package mpopt

import (
	"math/rand/v2"

	"github.com/fumin/mpopt/dmrg"
	"github.com/fumin/mpopt/mps"
	"github.com/pkg/errors"
)

// BuildMPS returns a state of the given physical dimensions.
// InitRandom draws the site tensors from a generator seeded by seed, with internal bonds of bondDim where possible.
// InitProduct returns the normalized uniform superposition with every bond of dimension 1.
func BuildMPS(physDims []int, bondDim int, init mps.Init, seed uint64) (*mps.MPS, error) {
	m, err := mps.Build(physDims, bondDim, init, rand.New(rand.NewPCG(seed, seed)))
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return m, nil
}

// BuildMPO returns the operator whose i-th site is siteOperators[i][left][in][out][right].
func BuildMPO(siteOperators [][][][][]float64) (*mps.MPO, error) {
	o, err := mps.FromArrays(siteOperators)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return o, nil
}

// Run searches the ground state of h with two site DMRG starting from init, which is not modified.
// Running out of sweeps is not an error, it is reported by converged being false.
func Run(h *mps.MPO, init *mps.MPS, maxBondDim int, cutoff float64, maxSweeps int, tol float64) (optimized *mps.MPS, energy float64, converged bool, err error) {
	opt, err := dmrg.New(dmrg.NewOptions().MaxBondDim(maxBondDim).Cutoff(cutoff).MaxSweeps(maxSweeps).Tol(tol))
	if err != nil {
		return nil, 0, false, errors.Wrap(err, "")
	}
	res, err := opt.Run(h, init)
	if err != nil {
		return res.MPS, res.Energy, false, errors.Wrap(err, "")
	}
	return res.MPS, res.Energy, res.Converged, nil
}

// Overlap returns <a|b>.
func Overlap(a, b *mps.MPS) (float64, error) {
	return mps.Overlap(a, b)
}

// Expectation returns <m|o|m> / <m|m>.
func Expectation(m *mps.MPS, o *mps.MPO) (float64, error) {
	return mps.Expectation(m, o)
}

// BondDimensions returns the N-1 internal bond dimensions of m.
func BondDimensions(m *mps.MPS) []int {
	return m.BondDimensions()
}
