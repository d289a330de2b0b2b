// Package mps implements Matrix Product States and Matrix Product Operators on open chains,
// together with their canonical forms, SVD truncation and contractions.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock
package mps

import (
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/fumin/mpopt/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Form is the canonical form of an MPS.
type Form int

const (
	// FormNone means nothing is known about the isometry of the sites.
	FormNone Form = iota
	// FormLeft means sites 0..N-2 are left isometries.
	FormLeft
	// FormRight means sites 1..N-1 are right isometries.
	FormRight
	// FormMixed means sites left of the center are left isometries and sites right of it are right isometries.
	FormMixed
)

func (f Form) String() string {
	switch f {
	case FormNone:
		return "none"
	case FormLeft:
		return "left"
	case FormRight:
		return "right"
	case FormMixed:
		return "mixed"
	default:
		return fmt.Sprintf("Form(%d)", int(f))
	}
}

// MPS is a matrix product state.
// Each site has legs (left, phys, right), see Figure 6, Ulrich Schollwock.
type MPS struct {
	sites []*tensor.Dense

	form Form
	// center is the orthogonality center, meaningful when form is not FormNone.
	center int
}

// New returns an MPS holding copies of sites.
func New(sites []*tensor.Dense) (*MPS, error) {
	if err := checkChain(sites, 3); err != nil {
		return nil, errors.Wrap(err, "")
	}
	m := &MPS{sites: make([]*tensor.Dense, 0, len(sites))}
	for _, s := range sites {
		m.sites = append(m.sites, asSite(s))
	}
	return m, nil
}

// Len returns the number of sites.
func (m *MPS) Len() int { return len(m.sites) }

// Site returns a copy of the i-th site.
func (m *MPS) Site(i int) *tensor.Dense { return m.sites[i].Clone() }

// SetSite replaces the i-th site with a copy of s.
// The bond dimensions of s must agree with the neighbours of site i.
func (m *MPS) SetSite(i int, s *tensor.Dense) error {
	sites := slices.Clone(m.sites)
	sites[i] = s
	if err := checkChain(sites, 3); err != nil {
		return errors.Wrap(err, fmt.Sprintf("site %d", i))
	}
	m.sites[i] = asSite(s)
	m.form = FormNone
	return nil
}

// SetPair replaces the sites i and i+1 together, which allows the bond between them to change.
// center is the new orthogonality center, it must be i or i+1, and the caller is responsible for
// the isometry of the other site.
func (m *MPS) SetPair(i int, left, right *tensor.Dense, center int) error {
	if center != i && center != i+1 {
		return errors.Wrapf(ErrConfiguration, "center %d for pair %d", center, i)
	}
	sites := slices.Clone(m.sites)
	sites[i], sites[i+1] = left, right
	if err := checkChain(sites, 3); err != nil {
		return errors.Wrap(err, fmt.Sprintf("pair %d", i))
	}
	m.sites[i], m.sites[i+1] = asSite(left), asSite(right)
	if m.form == FormNone {
		return nil
	}
	m.setCenter(center)
	return nil
}

// Form returns the canonical form and the orthogonality center.
func (m *MPS) Form() (Form, int) { return m.form, m.center }

// setCenter records that the sites left of c are left isometries and the sites right of c are right isometries.
func (m *MPS) setCenter(c int) {
	m.center = c
	switch c {
	case len(m.sites) - 1:
		m.form = FormLeft
	case 0:
		m.form = FormRight
	default:
		m.form = FormMixed
	}
}

// Clone returns a deep copy of m.
func (m *MPS) Clone() *MPS {
	c := &MPS{sites: make([]*tensor.Dense, 0, len(m.sites)), form: m.form, center: m.center}
	for _, s := range m.sites {
		c.sites = append(c.sites, s.Clone())
	}
	return c
}

// PhysicalDims returns the physical dimension of every site.
func (m *MPS) PhysicalDims() []int {
	dims := make([]int, 0, len(m.sites))
	for _, s := range m.sites {
		dims = append(dims, s.Leg(mpsPhysAxis).Dim)
	}
	return dims
}

// BondDimensions returns the dimensions of the N-1 internal bonds.
func (m *MPS) BondDimensions() []int {
	dims := make([]int, 0, len(m.sites)-1)
	for _, s := range m.sites[:len(m.sites)-1] {
		dims = append(dims, s.Leg(mpsRightAxis).Dim)
	}
	return dims
}

// MaxBondDimension returns the largest internal bond dimension, or 1 for a single site.
func (m *MPS) MaxBondDimension() int {
	d := 1
	for _, b := range m.BondDimensions() {
		d = max(d, b)
	}
	return d
}

// Dense contracts m into the full state, with one leg per site named "phys<i>".
// The size is the product of the physical dimensions, so this is only feasible for short chains.
func (m *MPS) Dense() *tensor.Dense {
	b := tensor.DefaultBackend()
	p := m.sites[0]
	for _, s := range m.sites[1:] {
		p = tensor.Product(b, p, s, [][2]int{{p.Rank() - 1, mpsLeftAxis}})
	}
	legs := make([]tensor.Leg, 0, len(m.sites))
	for i, d := range m.PhysicalDims() {
		legs = append(legs, tensor.Leg{Name: fmt.Sprintf("%s%d", LegPhys, i), Dim: d})
	}
	// Drop the two boundary legs of dimension 1.
	d, err := p.Reshape(legs...)
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	return d
}

// Init is the initial state of Build.
type Init int

const (
	// InitRandom fills every site with uniform random numbers in [-1, 1).
	InitRandom Init = iota
	// InitProduct is the normalized product of uniform superpositions over each physical basis.
	InitProduct
)

func (i Init) String() string {
	switch i {
	case InitRandom:
		return "random"
	case InitProduct:
		return "product"
	default:
		return fmt.Sprintf("Init(%d)", int(i))
	}
}

// ParseInit parses the String form of an Init.
func ParseInit(s string) (Init, error) {
	for _, i := range []Init{InitRandom, InitProduct} {
		if i.String() == s {
			return i, nil
		}
	}
	return 0, errors.Wrapf(ErrConfiguration, "init %q", s)
}

// Build returns an MPS with the given physical dimensions.
// For InitRandom the internal bonds are bondDim, lowered where the smaller side of a cut cannot support it.
// For InitProduct every bond is 1.
func Build(physDims []int, bondDim int, init Init, rng *rand.Rand) (*MPS, error) {
	if bondDim <= 0 {
		return nil, errors.Wrapf(ErrConfiguration, "bond dimension %d", bondDim)
	}
	switch init {
	case InitRandom:
		return Random(physDims, bondDim, rng)
	case InitProduct:
		vecs := make([][]float64, 0, len(physDims))
		for _, d := range physDims {
			v := make([]float64, max(d, 0))
			for i := range v {
				v[i] = 1
			}
			vecs = append(vecs, v)
		}
		m, err := Product(vecs)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		Normalize(m)
		return m, nil
	default:
		return nil, errors.Wrapf(ErrConfiguration, "init %d", init)
	}
}

// Random creates a random matrix product state.
// maxD is the maximum bond dimension, which is D in the discussion below equation 71 in section 4.1.4, Ulrich Schollwock.
// A nil rng uses a randomly seeded source.
func Random(physDims []int, maxD int, rng *rand.Rand) (*MPS, error) {
	if len(physDims) == 0 {
		return nil, errors.Wrap(ErrShape, "empty chain")
	}
	if maxD <= 0 {
		return nil, errors.Wrapf(ErrConfiguration, "bond dimension %d", maxD)
	}
	for i, d := range physDims {
		if d <= 0 {
			return nil, errors.Wrapf(ErrShape, "site %d physical dimension %d", i, d)
		}
	}
	if rng == nil {
		rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}

	// bonds[i] is the bond left of site i.
	bonds := make([]int, len(physDims)+1)
	bonds[0], bonds[len(physDims)] = 1, 1
	for i := 1; i < len(physDims); i++ {
		bonds[i] = min(cappedProduct(physDims[:i], maxD), cappedProduct(physDims[i:], maxD))
	}

	m := &MPS{sites: make([]*tensor.Dense, 0, len(physDims))}
	for i, d := range physDims {
		m.sites = append(m.sites, randSite(rng, bonds[i], d, bonds[i+1]))
	}
	return m, nil
}

// Product returns the product state of the given local vectors, with every bond of dimension 1.
func Product(vecs [][]float64) (*MPS, error) {
	if len(vecs) == 0 {
		return nil, errors.Wrap(ErrShape, "empty chain")
	}
	m := &MPS{sites: make([]*tensor.Dense, 0, len(vecs))}
	for i, v := range vecs {
		if len(v) == 0 {
			return nil, errors.Wrapf(ErrShape, "site %d has an empty vector", i)
		}
		s, err := NewSite(1, len(v), 1, slices.Clone(v))
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("site %d", i))
		}
		m.sites = append(m.sites, s)
	}
	if err := checkChain(m.sites, 3); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return m, nil
}

// Basis returns the product state where site i is in basis state states[i].
func Basis(physDims, states []int) (*MPS, error) {
	if len(physDims) != len(states) {
		return nil, errors.Wrapf(ErrShape, "%d dims %d states", len(physDims), len(states))
	}
	vecs := make([][]float64, 0, len(states))
	for i, s := range states {
		if physDims[i] <= 0 || s < 0 || s >= physDims[i] {
			return nil, errors.Wrapf(ErrShape, "site %d state %d, dimension %d", i, s, physDims[i])
		}
		v := make([]float64, physDims[i])
		v[s] = 1
		vecs = append(vecs, v)
	}
	m, err := Product(vecs)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	m.setCenter(0)
	return m, nil
}

// FromDense creates an exact matrix product representation of a general state by successive QR decompositions.
// See Section 4.1.3 Decomposition of arbitrary quantum states into MPS, Ulrich Schollwock.
// The result is in left canonical form.
func FromDense(state []float64, physDims []int) (*MPS, error) {
	n := 1
	for i, d := range physDims {
		if d <= 0 {
			return nil, errors.Wrapf(ErrShape, "site %d physical dimension %d", i, d)
		}
		n *= d
	}
	if len(physDims) == 0 || len(state) != n {
		return nil, errors.Wrapf(ErrShape, "%d amplitudes for physical dims %#v", len(state), physDims)
	}

	m := &MPS{sites: make([]*tensor.Dense, 0, len(physDims))}
	rest := mat.NewDense(1, n, slices.Clone(state))
	leftD, remaining := 1, n
	for i, physD := range physDims[:len(physDims)-1] {
		remaining /= physD
		a := reshape(rest, leftD*physD, remaining)
		q, r, err := tensor.QR(a)
		if err != nil {
			return nil, errors.Wrap(err, fmt.Sprintf("site %d", i))
		}
		_, k := q.Dims()
		site, err := tensor.FromMatrix(q, siteLegs(leftD, physD, k)...)
		if err != nil {
			return nil, errors.Wrap(err, "")
		}
		m.sites = append(m.sites, site)
		rest, leftD = r, k
	}
	last, err := tensor.FromMatrix(rest, siteLegs(leftD, physDims[len(physDims)-1], 1)...)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	m.sites = append(m.sites, last)
	m.setCenter(len(m.sites) - 1)
	return m, nil
}

// reshape returns the elements of a in row-major order as an r×c matrix.
func reshape(a *mat.Dense, r, c int) *mat.Dense {
	ar, ac := a.Dims()
	if ar*ac != r*c {
		panic(fmt.Sprintf("%#v", []int{ar, ac, r, c}))
	}
	data := make([]float64, 0, r*c)
	for i := range ar {
		data = append(data, a.RawRowView(i)...)
	}
	return mat.NewDense(r, c, data)
}

// cappedProduct returns the product of dims, or limit if the product exceeds it.
func cappedProduct(dims []int, limit int) int {
	p := 1
	for _, d := range dims {
		p *= d
		if p >= limit {
			return limit
		}
	}
	return p
}

func randSite(rng *rand.Rand, left, phys, right int) *tensor.Dense {
	t := tensor.Zeros(siteLegs(left, phys, right)...)
	data := t.Data()
	for i := range data {
		data[i] = rng.Float64()*2 - 1
	}
	return t
}
