package mps

import (
	"fmt"
	"slices"

	"github.com/fumin/mpopt/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// MPO is a matrix product operator.
// Each site has legs (left, in, out, right), see Figure 35, Ulrich Schollwock.
// The in leg contracts with kets and the out leg with bras.
type MPO struct {
	sites []*tensor.Dense
}

// NewMPO returns an MPO holding copies of sites.
// Every site must map its physical space onto itself, that is the in and out legs have equal dimensions.
func NewMPO(sites []*tensor.Dense) (*MPO, error) {
	if err := checkChain(sites, 4); err != nil {
		return nil, errors.Wrap(err, "")
	}
	o := &MPO{sites: make([]*tensor.Dense, 0, len(sites))}
	for i, s := range sites {
		if in, out := s.Leg(mpoInAxis).Dim, s.Leg(mpoOutAxis).Dim; in != out {
			return nil, errors.Wrapf(ErrShape, "site %d maps dimension %d to %d", i, in, out)
		}
		o.sites = append(o.sites, s.WithNames(LegLeft, LegIn, LegOut, LegRight))
	}
	return o, nil
}

// FromArrays returns an MPO from nested arrays, ops[i][left][in][out][right] being the i-th site.
func FromArrays(ops [][][][][]float64) (*MPO, error) {
	if len(ops) == 0 {
		return nil, errors.Wrap(ErrShape, "empty chain")
	}
	sites := make([]*tensor.Dense, 0, len(ops))
	for i, w := range ops {
		s, err := NewOperatorSite(w)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("site %d", i))
		}
		sites = append(sites, s)
	}
	return NewMPO(sites)
}

// Identity returns the identity operator with bond dimension 1.
func Identity(physDims []int) (*MPO, error) {
	sites := make([]*tensor.Dense, 0, len(physDims))
	for i, d := range physDims {
		if d <= 0 {
			return nil, errors.Wrapf(ErrShape, "site %d physical dimension %d", i, d)
		}
		s := tensor.Zeros(operatorLegs(1, d, d, 1)...)
		for j := range d {
			s.SetAt(1, 0, j, j, 0)
		}
		sites = append(sites, s)
	}
	return NewMPO(sites)
}

// Len returns the number of sites.
func (o *MPO) Len() int { return len(o.sites) }

// Site returns a copy of the i-th site.
func (o *MPO) Site(i int) *tensor.Dense { return o.sites[i].Clone() }

// PhysicalDims returns the physical dimension of every site.
func (o *MPO) PhysicalDims() []int {
	dims := make([]int, 0, len(o.sites))
	for _, s := range o.sites {
		dims = append(dims, s.Leg(mpoInAxis).Dim)
	}
	return dims
}

// BondDimensions returns the dimensions of the N-1 internal bonds.
func (o *MPO) BondDimensions() []int {
	dims := make([]int, 0, len(o.sites)-1)
	for _, s := range o.sites[:len(o.sites)-1] {
		dims = append(dims, s.Leg(mpoRightAxis).Dim)
	}
	return dims
}

// Matrix contracts o into a dense matrix, whose rows index the out legs and whose columns the in legs.
// Site 0 is the most significant digit of both indices, matching the ordering of (*MPS).Dense.
func (o *MPO) Matrix() *mat.Dense {
	b := tensor.DefaultBackend()
	p := o.sites[0]
	for _, s := range o.sites[1:] {
		p = tensor.Product(b, p, s, [][2]int{{p.Rank() - 1, mpoLeftAxis}})
	}
	// p has legs (left, in0, out0, in1, out1, ..., right).
	n := len(o.sites)
	perm := make([]int, 0, 2*n+2)
	perm = append(perm, 0)
	for i := range n {
		perm = append(perm, 2+2*i)
	}
	for i := range n {
		perm = append(perm, 1+2*i)
	}
	perm = append(perm, 2*n+1)
	return p.Transpose(perm...).Matrix(n + 1)
}

// Compatible checks that o acts on the physical spaces of m.
func (o *MPO) Compatible(m *MPS) error {
	if o.Len() != m.Len() {
		return errors.Wrapf(ErrShape, "MPO of length %d, MPS of length %d", o.Len(), m.Len())
	}
	if od, md := o.PhysicalDims(), m.PhysicalDims(); !slices.Equal(od, md) {
		return errors.Wrapf(ErrShape, "MPO physical dims %#v, MPS physical dims %#v", od, md)
	}
	return nil
}
