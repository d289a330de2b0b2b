package mps

import (
	"fmt"
	"slices"

	"github.com/fumin/mpopt/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// explicitCutoff drops Schmidt values that are too small to be inverted.
const explicitCutoff = 1e-14

// Explicit is a state in the Vidal form, which stores the Schmidt values of every bond next to the sites,
// see Figure 4b, Hauschild and Pollmann, Efficient numerical simulations with tensor networks.
//
//	Λ[0]  Γ[0]  Λ[1]  Γ[1]  Λ[2]
//	 o----[ ]----o----[ ]----o
//	       |           |
type Explicit struct {
	// Gammas has one tensor per site with legs (left, phys, right).
	Gammas []*tensor.Dense
	// Lambdas[i] are the Schmidt values of the bond left of site i, in descending order.
	// Lambdas[0] and Lambdas[N] are the trivial boundaries {1}.
	Lambdas [][]float64
}

// ToExplicit returns the explicit form of m normalized, which is not modified.
// Schmidt values smaller than 1e-14 times the largest of their bond are dropped.
func ToExplicit(m *MPS) (*Explicit, error) {
	c := m.Clone()
	if err := Canonicalize(c, Right); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if Normalize(c) == 0 {
		return nil, errors.Wrap(ErrNumerical, "zero state")
	}

	b := tensor.DefaultBackend()
	n := len(c.sites)
	e := &Explicit{Gammas: make([]*tensor.Dense, 0, n), Lambdas: [][]float64{{1}}}
	// center is the orthogonality center moving from left to right.
	center := c.sites[0]
	for i := range n - 1 {
		l, p, r := center.Leg(0).Dim, center.Leg(1).Dim, center.Leg(2).Dim
		u, s, vt, err := tensor.SVD(center.Matrix(2))
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("bond %d", i+1))
		}
		k := keep(s, len(s), explicitCutoff)

		a, err := tensor.FromMatrix(u.Slice(0, l*p, 0, k), siteLegs(l, p, k)...)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		e.Gammas = append(e.Gammas, scaleBonds(a, inverse(e.Lambdas[i]), nil))
		e.Lambdas = append(e.Lambdas, slices.Clone(s[:k]))

		sv := mat.DenseCopyOf(vt.Slice(0, k, 0, r))
		for j := range k {
			row := sv.RawRowView(j)
			for x := range row {
				row[x] *= s[j]
			}
		}
		bond, err := tensor.FromMatrix(sv, tensor.Leg{Name: LegLeft, Dim: k}, tensor.Leg{Name: LegRight, Dim: r})
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		center = tensor.Product(b, bond, c.sites[i+1], [][2]int{{1, mpsLeftAxis}})
	}
	e.Gammas = append(e.Gammas, scaleBonds(center, inverse(e.Lambdas[n-1]), nil))
	e.Lambdas = append(e.Lambdas, []float64{1})
	return e, nil
}

// Len returns the number of sites.
func (e *Explicit) Len() int { return len(e.Gammas) }

// check validates the chain of e.
func (e *Explicit) check() error {
	if err := checkChain(e.Gammas, 3); err != nil {
		return errors.Wrap(err, "")
	}
	if len(e.Lambdas) != len(e.Gammas)+1 {
		return errors.Wrapf(ErrShape, "%d bonds for %d sites", len(e.Lambdas), len(e.Gammas))
	}
	for i, g := range e.Gammas {
		if d := g.Leg(mpsLeftAxis).Dim; len(e.Lambdas[i]) != d {
			return errors.Wrapf(ErrDimensionMismatch, "bond %d has %d values for dimension %d", i, len(e.Lambdas[i]), d)
		}
		if d := g.Leg(mpsRightAxis).Dim; len(e.Lambdas[i+1]) != d {
			return errors.Wrapf(ErrDimensionMismatch, "bond %d has %d values for dimension %d", i+1, len(e.Lambdas[i+1]), d)
		}
	}
	return nil
}

// Canonical returns e as an MPS in the mixed canonical form with orthogonality center c, see equation 19,
// Hauschild and Pollmann. Sites left of c are Λ Γ, sites right of c are Γ Λ, and the center is Λ Γ Λ.
func (e *Explicit) Canonical(c int) (*MPS, error) {
	if err := e.check(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	if c < 0 || c >= len(e.Gammas) {
		return nil, errors.Wrapf(ErrConfiguration, "center %d of %d sites", c, len(e.Gammas))
	}
	sites := make([]*tensor.Dense, 0, len(e.Gammas))
	for i, g := range e.Gammas {
		var left, right []float64
		if i <= c {
			left = e.Lambdas[i]
		}
		if i >= c {
			right = e.Lambdas[i+1]
		}
		sites = append(sites, scaleBonds(g, left, right))
	}
	m, err := New(sites)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	m.setCenter(c)
	return m, nil
}

// EntanglementEntropy returns the von Neumann entropy of every internal bond.
func (e *Explicit) EntanglementEntropy() []float64 {
	entropies := make([]float64, 0, len(e.Gammas)-1)
	for _, s := range e.Lambdas[1 : len(e.Lambdas)-1] {
		entropies = append(entropies, vonNeumann(s))
	}
	return entropies
}

// Reverse returns e with the order of its sites reversed.
func (e *Explicit) Reverse() *Explicit {
	r := &Explicit{Gammas: make([]*tensor.Dense, 0, len(e.Gammas)), Lambdas: make([][]float64, 0, len(e.Lambdas))}
	for _, g := range slices.Backward(e.Gammas) {
		r.Gammas = append(r.Gammas, flip(g))
	}
	for _, s := range slices.Backward(e.Lambdas) {
		r.Lambdas = append(r.Lambdas, slices.Clone(s))
	}
	return r
}

// Conjugate returns the complex conjugate of e, which is a copy since amplitudes are real.
func (e *Explicit) Conjugate() *Explicit {
	c := &Explicit{Gammas: make([]*tensor.Dense, 0, len(e.Gammas)), Lambdas: make([][]float64, 0, len(e.Lambdas))}
	for _, g := range e.Gammas {
		c.Gammas = append(c.Gammas, g.Clone())
	}
	for _, s := range e.Lambdas {
		c.Lambdas = append(c.Lambdas, slices.Clone(s))
	}
	return c
}

// Reverse returns m with the order of its sites reversed, which turns left isometries into right isometries.
func Reverse(m *MPS) *MPS {
	n := len(m.sites)
	r := &MPS{sites: make([]*tensor.Dense, 0, n)}
	for _, s := range slices.Backward(m.sites) {
		r.sites = append(r.sites, flip(s))
	}
	if m.form != FormNone {
		r.setCenter(n - 1 - m.center)
	}
	return r
}

// Conjugate returns the complex conjugate of m, which is a copy since amplitudes are real.
func Conjugate(m *MPS) *MPS { return m.Clone() }

// DensityMPO returns the density operator |m><m| as an MPO.
// The bond dimensions are the squares of those of m.
func DensityMPO(m *MPS) (*MPO, error) {
	b := tensor.DefaultBackend()
	sites := make([]*tensor.Dense, 0, len(m.sites))
	for _, s := range m.sites {
		l, d, r := s.Leg(0).Dim, s.Leg(1).Dim, s.Leg(2).Dim
		// The outer product has legs (left, out, right, left', in, right').
		outer := tensor.Product(b, s, s, nil)
		w, err := outer.Transpose(0, 3, 4, 1, 2, 5).Reshape(operatorLegs(l*l, d, d, r*r)...)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		sites = append(sites, w)
	}
	return NewMPO(sites)
}

// flip swaps the left and right legs of a site.
func flip(s *tensor.Dense) *tensor.Dense {
	return s.Transpose(mpsRightAxis, mpsPhysAxis, mpsLeftAxis).WithNames(LegLeft, LegPhys, LegRight)
}

// scaleBonds returns a copy of the site s with element (a, σ, b) multiplied by left[a] and right[b].
// A nil slice scales by one.
func scaleBonds(s *tensor.Dense, left, right []float64) *tensor.Dense {
	c := s.Clone()
	p, r := s.Leg(mpsPhysAxis).Dim, s.Leg(mpsRightAxis).Dim
	data := c.Data()
	for i := range data {
		if left != nil {
			data[i] *= left[i/(p*r)]
		}
		if right != nil {
			data[i] *= right[i%r]
		}
	}
	return c
}

func inverse(s []float64) []float64 {
	inv := make([]float64, len(s))
	for i, v := range s {
		inv[i] = 1 / v
	}
	return inv
}
