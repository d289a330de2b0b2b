package mps

import (
	"fmt"

	"github.com/fumin/mpopt/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// Absorb selects the factor that receives the singular values of a truncation.
type Absorb int

const (
	// AbsorbRight multiplies the singular values into the right factor, leaving the left factor a left isometry.
	AbsorbRight Absorb = iota
	// AbsorbLeft multiplies the singular values into the left factor, leaving the right factor a right isometry.
	AbsorbLeft
)

// TruncationResult is the outcome of splitting a two site tensor.
type TruncationResult struct {
	// Left has legs (left, phys, right) and Right has legs (left, phys, right), sharing the kept bond.
	Left, Right *tensor.Dense
	// Values are the kept singular values in descending order.
	Values []float64
	// DiscardedWeight is the sum of squares of the discarded singular values.
	DiscardedWeight float64
}

// Truncate splits theta, with legs (left, phys1, phys2, right), into two sites by a truncated SVD.
// The number of kept singular values is min(maxBondDim, number of values greater than cutoff times the largest), and at least 1.
// The singular values are absorbed into the right site, no renormalization is done.
func Truncate(theta *tensor.Dense, maxBondDim int, cutoff float64) (TruncationResult, error) {
	return TruncateAbsorb(theta, maxBondDim, cutoff, AbsorbRight)
}

// TruncateAbsorb is Truncate with a choice of the site receiving the singular values.
func TruncateAbsorb(theta *tensor.Dense, maxBondDim int, cutoff float64, absorb Absorb) (TruncationResult, error) {
	if err := checkTruncation(maxBondDim, cutoff); err != nil {
		return TruncationResult{}, errors.Wrap(err, "")
	}
	if theta.Rank() != 4 {
		return TruncationResult{}, errors.Wrapf(ErrShape, "two site tensor %s", theta)
	}
	if !theta.IsFinite() {
		return TruncationResult{}, errors.Wrap(ErrNumerical, "two site tensor is not finite")
	}
	l, p1, p2, r := theta.Leg(0).Dim, theta.Leg(1).Dim, theta.Leg(2).Dim, theta.Leg(3).Dim

	u, s, vt, err := tensor.SVD(theta.Matrix(2))
	if err != nil {
		return TruncationResult{}, errors.Wrap(err, "")
	}
	k := keep(s, maxBondDim, cutoff)
	var discarded float64
	for _, v := range s[k:] {
		discarded += v * v
	}

	uk := mat.DenseCopyOf(u.Slice(0, l*p1, 0, k))
	vk := mat.DenseCopyOf(vt.Slice(0, k, 0, p2*r))
	switch absorb {
	case AbsorbRight:
		for i := range k {
			row := vk.RawRowView(i)
			for j := range row {
				row[j] *= s[i]
			}
		}
	case AbsorbLeft:
		for i := range l * p1 {
			row := uk.RawRowView(i)
			for j := range k {
				row[j] *= s[j]
			}
		}
	default:
		return TruncationResult{}, errors.Wrapf(ErrConfiguration, "absorb %d", absorb)
	}

	res := TruncationResult{Values: s[:k:k], DiscardedWeight: discarded}
	if res.Left, err = tensor.FromMatrix(uk, siteLegs(l, p1, k)...); err != nil {
		return TruncationResult{}, errors.Wrap(err, "")
	}
	if res.Right, err = tensor.FromMatrix(vk, siteLegs(k, p2, r)...); err != nil {
		return TruncationResult{}, errors.Wrap(err, "")
	}
	return res, nil
}

// keep returns the number of singular values to keep.
func keep(s []float64, maxBondDim int, cutoff float64) int {
	var k int
	for _, v := range s {
		if v > cutoff*s[0] {
			k++
		}
	}
	return max(1, min(k, maxBondDim))
}

func checkTruncation(maxBondDim int, cutoff float64) error {
	if maxBondDim <= 0 {
		return errors.Wrapf(ErrConfiguration, "max bond dimension %d", maxBondDim)
	}
	if !(cutoff >= 0) {
		return errors.Wrapf(ErrConfiguration, "cutoff %g", cutoff)
	}
	return nil
}

// Merge contracts the bond between two adjacent sites, returning a tensor with legs (left, phys, phys, right).
func Merge(b tensor.Backend, x, y *tensor.Dense) *tensor.Dense {
	return tensor.Product(b, x, y, [][2]int{{mpsRightAxis, mpsLeftAxis}})
}

// Compress lowers the bond dimensions of m in place.
// It right canonicalizes m and then sweeps from left to right, truncating every merged pair of sites.
// The result is left canonical, and the returned value is the total discarded weight.
func Compress(m *MPS, maxBondDim int, cutoff float64) (float64, error) {
	if err := checkTruncation(maxBondDim, cutoff); err != nil {
		return 0, errors.Wrap(err, "")
	}
	if err := Canonicalize(m, Right); err != nil {
		return 0, errors.Wrap(err, "")
	}
	b := tensor.DefaultBackend()
	var total float64
	for i := range len(m.sites) - 1 {
		theta := Merge(b, m.sites[i], m.sites[i+1])
		res, err := Truncate(theta, maxBondDim, cutoff)
		if err != nil {
			return total, errors.Wrap(err, fmt.Sprintf("bond %d", i))
		}
		m.sites[i], m.sites[i+1] = res.Left, res.Right
		total += res.DiscardedWeight
	}
	m.setCenter(len(m.sites) - 1)
	return total, nil
}
