package mps

import (
	"fmt"
	"math"
	"slices"

	"github.com/fumin/mpopt/tensor"
	"github.com/pkg/errors"
)

// Apply returns the MPS o|m>, see equation 187 in section 5.1, Ulrich Schollwock.
// The bond dimensions of the result are the products of those of o and m, no truncation is done.
func Apply(b tensor.Backend, o *MPO, m *MPS) (*MPS, error) {
	if err := o.Compatible(m); err != nil {
		return nil, errors.Wrap(err, "")
	}
	res := &MPS{sites: make([]*tensor.Dense, 0, len(m.sites))}
	for i, a := range m.sites {
		w := o.sites[i]
		// wa has legs (wLeft, out, wRight, left, right).
		wa := tensor.Product(b, w, a, [][2]int{{mpoInAxis, mpsPhysAxis}})
		wa = wa.Transpose(3, 0, 1, 4, 2)
		l, wl := a.Leg(mpsLeftAxis).Dim, w.Leg(mpoLeftAxis).Dim
		r, wr := a.Leg(mpsRightAxis).Dim, w.Leg(mpoRightAxis).Dim
		site, err := wa.Reshape(siteLegs(l*wl, w.Leg(mpoOutAxis).Dim, r*wr)...)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("site %d", i))
		}
		res.sites = append(res.sites, site)
	}
	return res, nil
}

// Overlap returns <x|y>, contracting the two chains from left to right.
func Overlap(x, y *MPS) (float64, error) {
	if err := sameSpace(x, y); err != nil {
		return 0, errors.Wrap(err, "")
	}
	b := tensor.DefaultBackend()
	// f has legs (x, y).
	f := tensor.Zeros(tensor.Leg{Name: "x", Dim: 1}, tensor.Leg{Name: "y", Dim: 1})
	f.SetAt(1, 0, 0)
	for i := range x.sites {
		fy := tensor.Product(b, f, y.sites[i], [][2]int{{1, mpsLeftAxis}})
		f = tensor.Product(b, x.sites[i], fy, [][2]int{{mpsLeftAxis, 0}, {mpsPhysAxis, 1}})
	}
	return f.At(0, 0), nil
}

// Sandwich returns <x|o|y>.
func Sandwich(x *MPS, o *MPO, y *MPS) (float64, error) {
	if err := sameSpace(x, y); err != nil {
		return 0, errors.Wrap(err, "")
	}
	if err := o.Compatible(y); err != nil {
		return 0, errors.Wrap(err, "")
	}
	b := tensor.DefaultBackend()
	f := ones3()
	for i := range x.sites {
		f = LeftEnvironment(b, f, x.sites[i], o.sites[i], y.sites[i])
	}
	return f.At(0, 0, 0), nil
}

// LeftEnvironment extends the left environment f, with legs (bra, mpo, ket), by one site, see equation 192, Ulrich Schollwock.
// bra and ket are MPS sites and w is an MPO site.
func LeftEnvironment(b tensor.Backend, f, bra, w, ket *tensor.Dense) *tensor.Dense {
	// fk has legs (bra, mpo, phys, ket).
	fk := tensor.Product(b, f, ket, [][2]int{{2, mpsLeftAxis}})
	// wfk has legs (out, mpoRight, bra, ket).
	wfk := tensor.Product(b, w, fk, [][2]int{{mpoInAxis, 2}, {mpoLeftAxis, 1}})
	return tensor.Product(b, bra, wfk, [][2]int{{mpsLeftAxis, 2}, {mpsPhysAxis, 0}}).WithNames(envLegs...)
}

// RightEnvironment extends the right environment f, with legs (bra, mpo, ket), by one site, see equation 193, Ulrich Schollwock.
func RightEnvironment(b tensor.Backend, f, bra, w, ket *tensor.Dense) *tensor.Dense {
	// fk has legs (bra, mpo, left, phys).
	fk := tensor.Product(b, f, ket, [][2]int{{2, mpsRightAxis}})
	// wfk has legs (mpoLeft, out, bra, ket).
	wfk := tensor.Product(b, w, fk, [][2]int{{mpoInAxis, 3}, {mpoRightAxis, 1}})
	return tensor.Product(b, bra, wfk, [][2]int{{mpsRightAxis, 2}, {mpsPhysAxis, 1}}).WithNames(envLegs...)
}

var envLegs = []string{"bra", "mpo", "ket"}

// ones3 returns the trivial boundary environment.
func ones3() *tensor.Dense {
	t := tensor.Zeros(tensor.Leg{Name: envLegs[0], Dim: 1}, tensor.Leg{Name: envLegs[1], Dim: 1}, tensor.Leg{Name: envLegs[2], Dim: 1})
	t.SetAt(1, 0, 0, 0)
	return t
}

// BoundaryEnvironment returns the environment at either open end of a chain.
func BoundaryEnvironment() *tensor.Dense { return ones3() }

// Expectation returns <m|o|m> / <m|m>.
func Expectation(m *MPS, o *MPO) (float64, error) {
	n2, err := Overlap(m, m)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	if !(n2 > 0) || math.IsInf(n2, 0) {
		return 0, errors.Wrapf(ErrNumerical, "norm squared %g", n2)
	}
	v, err := Sandwich(m, o, m)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	return v / n2, nil
}

// ExpectationSquared returns <m|o o|m> / <m|m>, see equation 198, Ulrich Schollwock.
// Together with Expectation it gives the variance of o, which vanishes for eigenstates.
func ExpectationSquared(m *MPS, o *MPO) (float64, error) {
	n2, err := Overlap(m, m)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	if !(n2 > 0) || math.IsInf(n2, 0) {
		return 0, errors.Wrapf(ErrNumerical, "norm squared %g", n2)
	}
	om, err := Apply(tensor.DefaultBackend(), o, m)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	v, err := Sandwich(m, o, om)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	return v / n2, nil
}

// Norm returns sqrt(<m|m>).
func Norm(m *MPS) float64 {
	n2, err := Overlap(m, m)
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	return math.Sqrt(max(n2, 0))
}

// Normalize scales m to unit norm and returns the norm before scaling.
// The scale is applied to the orthogonality center so that the canonical form is kept.
// A zero state is left unchanged.
func Normalize(m *MPS) float64 {
	n := Norm(m)
	if n == 0 {
		return 0
	}
	c := 0
	if m.form != FormNone {
		c = m.center
	}
	m.sites[c].Scale(1 / n)
	return n
}

func sameSpace(x, y *MPS) error {
	if x.Len() != y.Len() {
		return errors.Wrapf(ErrDimensionMismatch, "lengths %d and %d", x.Len(), y.Len())
	}
	if xd, yd := x.PhysicalDims(), y.PhysicalDims(); !slices.Equal(xd, yd) {
		return errors.Wrapf(ErrDimensionMismatch, "physical dims %#v and %#v", xd, yd)
	}
	return nil
}
