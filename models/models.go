// Package models builds the matrix product operators of common spin chain Hamiltonians.
//
// Every operator is generated from a bulk W matrix of local operators in the lower triangular convention,
// see Section 6.1 Construction of MPO, Ulrich Schollwock.
// The first site is the last row of W and the last site is the first column of W.
package models

import (
	"fmt"

	"github.com/fumin/mpopt/mps"
	"github.com/fumin/mpopt/tensor"
	ftensor "github.com/fumin/tensor"
	"github.com/pkg/errors"
)

var (
	// PauliX is the Pauli X matrix.
	PauliX = [][]float64{
		{0, 1},
		{1, 0},
	}
	// PauliZ is the Pauli Z matrix.
	PauliZ = [][]float64{
		{1, 0},
		{0, -1},
	}
	// SpinZ is the z component of a spin one half.
	SpinZ = [][]float64{
		{0.5, 0},
		{0, -0.5},
	}
	// SpinPlus raises a spin one half.
	SpinPlus = [][]float64{
		{0, 1},
		{0, 0},
	}
	// SpinMinus lowers a spin one half.
	SpinMinus = [][]float64{
		{0, 0},
		{1, 0},
	}

	identity = Identity(2)
	zero     = scale(0, identity)
)

// Identity returns the d×d identity matrix.
func Identity(d int) [][]float64 {
	id := make([][]float64, d)
	for i := range id {
		id[i] = make([]float64, d)
		id[i][i] = 1
	}
	return id
}

// Ising returns H = -j sum Z_i Z_{i+1} - h sum X_i on n spins.
func Ising(n int, j, h float64) (*mps.MPO, error) {
	w := [][][][]float64{
		{identity, zero, zero},
		{PauliZ, zero, zero},
		{scale(-h, PauliX), scale(-j, PauliZ), identity},
	}
	return fromBulk(w, n)
}

// Heisenberg returns the XXZ chain H = j/2 sum (S+_i S-_{i+1} + S-_i S+_{i+1}) + jz sum Sz_i Sz_{i+1} - h sum Sz_i,
// equation 182, Ulrich Schollwock.
func Heisenberg(n int, j, jz, h float64) (*mps.MPO, error) {
	w := [][][][]float64{
		{identity, zero, zero, zero, zero},
		{SpinPlus, zero, zero, zero, zero},
		{SpinMinus, zero, zero, zero, zero},
		{SpinZ, zero, zero, zero, zero},
		{scale(-h, SpinZ), scale(j/2, SpinMinus), scale(j/2, SpinPlus), scale(jz, SpinZ), identity},
	}
	return fromBulk(w, n)
}

// MagnetizationZ returns sum Z_i on n spins.
func MagnetizationZ(n int) (*mps.MPO, error) {
	w := [][][][]float64{
		{identity, zero},
		{PauliZ, identity},
	}
	return fromBulk(w, n)
}

// Local returns the operator op acting on site i of a chain of n sites of the same physical dimension.
func Local(n, i int, op [][]float64) (*mps.MPO, error) {
	if i < 0 || i >= n {
		return nil, errors.Wrapf(mps.ErrConfiguration, "site %d of %d", i, n)
	}
	if len(op) == 0 {
		return nil, errors.Wrap(mps.ErrShape, "empty operator")
	}
	for _, row := range op {
		if len(row) != len(op) {
			return nil, errors.Wrapf(mps.ErrShape, "operator %#v is not square", op)
		}
	}
	ops := make([][][][][]float64, 0, n)
	for k := range n {
		o := Identity(len(op))
		if k == i {
			o = op
		}
		ops = append(ops, siteArray([][][][]float64{{o}}))
	}
	return mps.FromArrays(ops)
}

// fromBulk returns the MPO of n sites generated by the bulk matrix w, where w[row][col] is a local operator.
func fromBulk(w [][][][]float64, n int) (*mps.MPO, error) {
	if n <= 0 {
		return nil, errors.Wrapf(mps.ErrConfiguration, "%d sites", n)
	}
	last := len(w) - 1
	ops := make([][][][][]float64, 0, n)
	for i := range n {
		sub := w
		if i == 0 {
			sub = sub[last:]
		}
		if i == n-1 {
			sub = firstColumn(sub)
		}
		ops = append(ops, siteArray(sub))
	}
	mpo, err := mps.FromArrays(ops)
	if err != nil {
		return nil, errors.Wrap(err, fmt.Sprintf("%d sites", n))
	}
	return mpo, nil
}

// FromComplexBulk returns the MPO of n sites generated by a complex64 bulk matrix of github.com/fumin/tensor.
// w has axes (row, col, out, in), and w[row][col] is a local operator that must be real up to single precision.
func FromComplexBulk(w *ftensor.Dense, n int) (*mps.MPO, error) {
	t, err := tensor.FromComplex(w, "row", "col", mps.LegOut, mps.LegIn)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	shape := t.Shape()
	if shape[2] != shape[3] {
		return nil, errors.Wrapf(mps.ErrShape, "bulk shape %#v", shape)
	}
	bulk := make([][][][]float64, shape[0])
	for row := range bulk {
		bulk[row] = make([][][]float64, shape[1])
		for col := range bulk[row] {
			op := make([][]float64, shape[2])
			for out := range op {
				op[out] = make([]float64, shape[3])
				for in := range op[out] {
					op[out][in] = t.At(row, col, out, in)
				}
			}
			bulk[row][col] = op
		}
	}
	return fromBulk(bulk, n)
}

func firstColumn(w [][][][]float64) [][][][]float64 {
	c := make([][][][]float64, 0, len(w))
	for _, row := range w {
		c = append(c, row[:1])
	}
	return c
}

// siteArray converts a grid of operators w[left][right][out][in] into the site layout [left][in][out][right].
func siteArray(w [][][][]float64) [][][][]float64 {
	d := len(w[0][0])
	a := make([][][][]float64, len(w))
	for l, row := range w {
		a[l] = make([][][]float64, d)
		for in := range d {
			a[l][in] = make([][]float64, d)
			for out := range d {
				a[l][in][out] = make([]float64, len(row))
				for r, op := range row {
					a[l][in][out][r] = op[out][in]
				}
			}
		}
	}
	return a
}

func scale(s float64, a [][]float64) [][]float64 {
	b := make([][]float64, len(a))
	for i, row := range a {
		b[i] = make([]float64, len(row))
		for j, v := range row {
			b[i][j] = s * v
		}
	}
	return b
}
