package mps

import (
	"fmt"

	"github.com/fumin/mpopt/tensor"
	ftensor "github.com/fumin/tensor"
	"github.com/pkg/errors"
)

// FromComplexSites returns an MPO from complex64 sites of github.com/fumin/tensor.
// Each site has axes (left, right, out, in), where out is the bra side of the operator.
// Imaginary parts must vanish up to single precision rounding.
func FromComplexSites(ws []*ftensor.Dense) (*MPO, error) {
	sites := make([]*tensor.Dense, 0, len(ws))
	for i, w := range ws {
		t, err := tensor.FromComplex(w, LegLeft, LegRight, LegOut, LegIn)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("site %d", i))
		}
		t, err = t.TransposeLegs(LegLeft, LegIn, LegOut, LegRight)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("site %d", i))
		}
		sites = append(sites, t)
	}
	o, err := NewMPO(sites)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return o, nil
}

// ComplexSites returns the sites of o as complex64 tensors with axes (left, right, out, in).
func (o *MPO) ComplexSites() []*ftensor.Dense {
	ws := make([]*ftensor.Dense, 0, len(o.sites))
	for _, s := range o.sites {
		t := s.Transpose(mpoLeftAxis, mpoRightAxis, mpoOutAxis, mpoInAxis)
		ws = append(ws, t.Complex())
	}
	return ws
}
