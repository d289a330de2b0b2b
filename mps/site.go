package mps

import (
	"fmt"

	"github.com/fumin/mpopt/tensor"
	"github.com/pkg/errors"
)

// Leg names of MPS and MPO site tensors.
const (
	LegLeft  = "left"
	LegPhys  = "phys"
	LegRight = "right"
	LegIn    = "in"
	LegOut   = "out"
)

const (
	// mpsLeftAxis is the axis of a_{l-1} in Figure 6, Ulrich Schollwock.
	mpsLeftAxis  = 0
	mpsPhysAxis  = 1
	mpsRightAxis = 2
	// mpoLeftAxis is the axis of b_{l-1} in Figure 35, Ulrich Schollwock.
	// The in axis contracts with the ket, the out axis with the bra.
	mpoLeftAxis  = 0
	mpoInAxis    = 1
	mpoOutAxis   = 2
	mpoRightAxis = 3
)

// Error taxonomy, see package tensor.
var (
	ErrShape             = tensor.ErrShape
	ErrDimensionMismatch = tensor.ErrDimensionMismatch
	ErrNumerical         = tensor.ErrNumerical
	ErrConfiguration     = tensor.ErrConfiguration
)

// NewSite returns an MPS site tensor with legs (left, phys, right) backed by data.
func NewSite(left, phys, right int, data []float64) (*tensor.Dense, error) {
	t, err := tensor.New(siteLegs(left, phys, right), data)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return t, nil
}

// NewOperatorSite returns an MPO site tensor from w[left][in][out][right].
// The nested slices must be rectangular.
func NewOperatorSite(w [][][][]float64) (*tensor.Dense, error) {
	if len(w) == 0 || len(w[0]) == 0 || len(w[0][0]) == 0 || len(w[0][0][0]) == 0 {
		return nil, errors.Wrap(ErrShape, "empty operator site")
	}
	dl, din, dout, dr := len(w), len(w[0]), len(w[0][0]), len(w[0][0][0])
	data := make([]float64, 0, dl*din*dout*dr)
	for l, wl := range w {
		if len(wl) != din {
			return nil, errors.Wrapf(ErrShape, "w[%d] has %d in indices, expected %d", l, len(wl), din)
		}
		for i, wi := range wl {
			if len(wi) != dout {
				return nil, errors.Wrapf(ErrShape, "w[%d][%d] has %d out indices, expected %d", l, i, len(wi), dout)
			}
			for o, wo := range wi {
				if len(wo) != dr {
					return nil, errors.Wrapf(ErrShape, "w[%d][%d][%d] has %d right indices, expected %d", l, i, o, len(wo), dr)
				}
				data = append(data, wo...)
			}
		}
	}
	return tensor.New(operatorLegs(dl, din, dout, dr), data)
}

func siteLegs(left, phys, right int) []tensor.Leg {
	return []tensor.Leg{{Name: LegLeft, Dim: left}, {Name: LegPhys, Dim: phys}, {Name: LegRight, Dim: right}}
}

func operatorLegs(left, in, out, right int) []tensor.Leg {
	return []tensor.Leg{{Name: LegLeft, Dim: left}, {Name: LegIn, Dim: in}, {Name: LegOut, Dim: out}, {Name: LegRight, Dim: right}}
}

// asSite renames the legs of a three leg tensor to those of an MPS site.
func asSite(t *tensor.Dense) *tensor.Dense {
	if t.Rank() != 3 {
		panic(fmt.Sprintf("%s", t))
	}
	return t.WithNames(LegLeft, LegPhys, LegRight)
}

// checkChain validates the legs and bond dimensions of a chain of sites with the given rank.
func checkChain(sites []*tensor.Dense, rank int) error {
	if len(sites) == 0 {
		return errors.Wrap(ErrShape, "empty chain")
	}
	leftAxis, rightAxis := 0, rank-1
	for i, s := range sites {
		if s == nil {
			return errors.Wrapf(ErrShape, "site %d is nil", i)
		}
		if s.Rank() != rank {
			return errors.Wrapf(ErrShape, "site %d has %d legs, expected %d", i, s.Rank(), rank)
		}
		if i == 0 && s.Leg(leftAxis).Dim != 1 {
			return errors.Wrapf(ErrShape, "open left end has bond dimension %d", s.Leg(leftAxis).Dim)
		}
		if i == len(sites)-1 && s.Leg(rightAxis).Dim != 1 {
			return errors.Wrapf(ErrShape, "open right end has bond dimension %d", s.Leg(rightAxis).Dim)
		}
		if i > 0 {
			prev := sites[i-1].Leg(rightAxis).Dim
			if cur := s.Leg(leftAxis).Dim; cur != prev {
				return errors.Wrapf(ErrShape, "site %d left bond %d, site %d right bond %d", i, cur, i-1, prev)
			}
		}
		if !s.IsFinite() {
			return errors.Wrapf(ErrNumerical, "site %d is not finite", i)
		}
	}
	return nil
}
