package mps

import (
	"fmt"

	"github.com/fumin/mpopt/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Direction is the direction of a sweep.
type Direction int

const (
	// Left produces left isometries, sweeping from site 0 towards site N-1.
	Left Direction = iota
	// Right produces right isometries, sweeping from site N-1 towards site 0.
	Right
)

func (d Direction) String() string {
	switch d {
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

// Canonicalize brings m into left or right canonical form.
// Left canonicalization QR decomposes sites 0..N-2, keeping Q and multiplying R into the next site,
// see Section 4.4.1 Generation of a left-canonical MPS, Ulrich Schollwock.
// Right canonicalization mirrors it with LQ decompositions of sites N-1..1.
// Because the diagonal of R is non-negative, canonicalizing an already canonical MPS leaves it unchanged.
func Canonicalize(m *MPS, d Direction) error {
	if err := checkChain(m.sites, 3); err != nil {
		return errors.Wrap(err, "")
	}
	switch d {
	case Left:
		for i := range len(m.sites) - 1 {
			if err := leftNormalize(m, i); err != nil {
				return errors.Wrap(err, "")
			}
		}
		m.setCenter(len(m.sites) - 1)
	case Right:
		for i := len(m.sites) - 1; i > 0; i-- {
			if err := rightNormalize(m, i); err != nil {
				return errors.Wrap(err, "")
			}
		}
		m.setCenter(0)
	default:
		return errors.Wrapf(ErrConfiguration, "direction %d", d)
	}
	return nil
}

// MoveCenter brings m into mixed canonical form with orthogonality center k.
// When the form of m is known only the sites between the old and new centers are decomposed.
func MoveCenter(m *MPS, k int) error {
	if err := checkChain(m.sites, 3); err != nil {
		return errors.Wrap(err, "")
	}
	if k < 0 || k >= len(m.sites) {
		return errors.Wrapf(ErrConfiguration, "center %d of %d sites", k, len(m.sites))
	}

	from, to := 0, len(m.sites)-1
	if m.form != FormNone {
		from, to = m.center, m.center
	}
	for i := from; i < k; i++ {
		if err := leftNormalize(m, i); err != nil {
			return errors.Wrap(err, "")
		}
	}
	for i := to; i > k; i-- {
		if err := rightNormalize(m, i); err != nil {
			return errors.Wrap(err, "")
		}
	}
	m.setCenter(k)
	return nil
}

// leftNormalize makes site i a left isometry and multiplies the remainder into site i+1.
func leftNormalize(m *MPS, i int) error {
	a := m.sites[i]
	l, p := a.Leg(mpsLeftAxis).Dim, a.Leg(mpsPhysAxis).Dim
	q, rf, err := tensor.QR(a.Matrix(2))
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("site %d", i))
	}
	_, k := q.Dims()

	next := m.sites[i+1]
	np, nr := next.Leg(mpsPhysAxis).Dim, next.Leg(mpsRightAxis).Dim
	var rn mat.Dense
	tensor.DefaultBackend().Mul(&rn, rf, next.Matrix(1))

	if m.sites[i], err = tensor.FromMatrix(q, siteLegs(l, p, k)...); err != nil {
		return errors.Wrap(err, "")
	}
	if m.sites[i+1], err = tensor.FromMatrix(&rn, siteLegs(k, np, nr)...); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// rightNormalize makes site i a right isometry and multiplies the remainder into site i-1.
func rightNormalize(m *MPS, i int) error {
	a := m.sites[i]
	p, r := a.Leg(mpsPhysAxis).Dim, a.Leg(mpsRightAxis).Dim
	lf, q, err := tensor.LQ(a.Matrix(1))
	if err != nil {
		return errors.Wrap(err, fmt.Sprintf("site %d", i))
	}
	k, _ := q.Dims()

	prev := m.sites[i-1]
	pl, pp := prev.Leg(mpsLeftAxis).Dim, prev.Leg(mpsPhysAxis).Dim
	var pl2 mat.Dense
	tensor.DefaultBackend().Mul(&pl2, prev.Matrix(2), lf)

	if m.sites[i], err = tensor.FromMatrix(q, siteLegs(k, p, r)...); err != nil {
		return errors.Wrap(err, "")
	}
	if m.sites[i-1], err = tensor.FromMatrix(&pl2, siteLegs(pl, pp, k)...); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

// IsLeftIsometry reports whether contracting site with itself over the left and phys legs gives the identity,
// equation 38 in section 4.1.3, Ulrich Schollwock.
func IsLeftIsometry(site *tensor.Dense, tol float64) bool {
	a := site.Matrix(2)
	_, c := a.Dims()
	var ata mat.Dense
	ata.Mul(a.T(), a)
	return isIdentity(&ata, c, tol)
}

// IsRightIsometry reports whether contracting site with itself over the phys and right legs gives the identity.
func IsRightIsometry(site *tensor.Dense, tol float64) bool {
	a := site.Matrix(1)
	r, _ := a.Dims()
	var aat mat.Dense
	aat.Mul(a, a.T())
	return isIdentity(&aat, r, tol)
}

func isIdentity(a *mat.Dense, n int, tol float64) bool {
	for i := range n {
		for j := range n {
			var want float64
			if i == j {
				want = 1
			}
			if d := a.At(i, j) - want; d > tol || d < -tol {
				return false
			}
		}
	}
	return true
}

// OrthogonalityCenters returns the sites k such that every site left of k is a left isometry and
// every site right of k is a right isometry, in ascending order.
// Unlike Form, it inspects the site tensors.
func OrthogonalityCenters(m *MPS, tol float64) []int {
	n := len(m.sites)
	// leftOK[k] means sites 0..k-1 are left isometries.
	leftOK := make([]bool, n)
	leftOK[0] = true
	for k := 1; k < n; k++ {
		leftOK[k] = leftOK[k-1] && IsLeftIsometry(m.sites[k-1], tol)
	}
	rightOK := make([]bool, n)
	rightOK[n-1] = true
	for k := n - 2; k >= 0; k-- {
		rightOK[k] = rightOK[k+1] && IsRightIsometry(m.sites[k+1], tol)
	}

	var centers []int
	for k := range n {
		if leftOK[k] && rightOK[k] {
			centers = append(centers, k)
		}
	}
	return centers
}

// IsCanonical reports whether m has at least one orthogonality center.
func IsCanonical(m *MPS, tol float64) bool {
	return len(OrthogonalityCenters(m, tol)) > 0
}
