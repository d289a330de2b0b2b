package mps

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func TestToExplicit(t *testing.T) {
	t.Parallel()
	tests := []struct {
		physDims []int
		bond     int
	}{
		{physDims: []int{2}, bond: 1},
		{physDims: []int{2, 2}, bond: 2},
		{physDims: []int{2, 3, 2, 2}, bond: 3},
		{physDims: []int{2, 2, 2, 2, 2, 2}, bond: 4},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("%v", test.physDims), func(t *testing.T) {
			t.Parallel()
			m, err := Random(test.physDims, test.bond, rand.New(rand.NewPCG(uint64(i), 7)))
			if err != nil {
				t.Fatalf("%+v", err)
			}
			e, err := ToExplicit(m)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if e.Len() != m.Len() || len(e.Lambdas) != m.Len()+1 {
				t.Fatalf("%d %d", e.Len(), len(e.Lambdas))
			}
			for b, s := range e.Lambdas {
				if math.Abs(floats.Norm(s, 2)-1) > 1e-12 {
					t.Fatalf("bond %d %v", b, s)
				}
			}

			entropies, err := EntanglementEntropy(m)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if !floatsEqual(e.EntanglementEntropy(), entropies, 1e-10) {
				t.Fatalf("%v, expected %v", e.EntanglementEntropy(), entropies)
			}

			for c := range m.Len() {
				back, err := e.Canonical(c)
				if err != nil {
					t.Fatalf("%+v", err)
				}
				if _, center := back.Form(); center != c {
					t.Fatalf("%d, expected %d", center, c)
				}
				if !IsCanonical(back, 1e-10) {
					t.Fatalf("%d %v", c, OrthogonalityCenters(back, 1e-10))
				}
				overlap, err := Overlap(back, m)
				if err != nil {
					t.Fatalf("%+v", err)
				}
				if math.Abs(overlap/Norm(m)-1) > 1e-10 {
					t.Fatalf("%d %v", c, overlap/Norm(m))
				}
			}
		})
	}
}

func TestExplicitErrors(t *testing.T) {
	t.Parallel()
	zero, err := Product([][]float64{{0, 0}, {0, 0}})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := ToExplicit(zero); !errors.Is(err, ErrNumerical) {
		t.Fatalf("%+v", err)
	}

	m, err := Random([]int{2, 2, 2}, 2, rand.New(rand.NewPCG(1, 1)))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	e, err := ToExplicit(m)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if _, err := e.Canonical(3); !errors.Is(err, ErrConfiguration) {
		t.Fatalf("%+v", err)
	}
	e.Lambdas[1] = e.Lambdas[1][:1]
	if _, err := e.Canonical(0); !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("%+v", err)
	}
}

func TestReverse(t *testing.T) {
	t.Parallel()
	m, err := Random([]int{2, 3, 2}, 4, rand.New(rand.NewPCG(5, 6)))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if err := Canonicalize(m, Left); err != nil {
		t.Fatalf("%+v", err)
	}
	r := Reverse(m)
	if form, center := r.Form(); form != FormRight || center != 0 {
		t.Fatalf("%v %d", form, center)
	}
	if !IsCanonical(r, 1e-10) {
		t.Fatalf("%v", OrthogonalityCenters(r, 1e-10))
	}
	dm, dr := m.Dense(), r.Dense()
	for i := range 2 {
		for j := range 3 {
			for k := range 2 {
				if math.Abs(dm.At(i, j, k)-dr.At(k, j, i)) > 1e-14 {
					t.Fatalf("(%d, %d, %d) %v, expected %v", i, j, k, dr.At(k, j, i), dm.At(i, j, k))
				}
			}
		}
	}

	// Reversing the explicit form agrees with reversing the state.
	e, err := ToExplicit(m)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	re, err := e.Reverse().Canonical(0)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	overlap, err := Overlap(re, r)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if math.Abs(overlap/Norm(r)-1) > 1e-10 {
		t.Fatalf("%v", overlap/Norm(r))
	}
	if !floatsEqual(e.Reverse().Lambdas[1], e.Lambdas[2], 0) {
		t.Fatalf("%v, expected %v", e.Reverse().Lambdas[1], e.Lambdas[2])
	}

	c := Conjugate(m)
	for i := range m.Len() {
		if !relEqual(c.Site(i), m.Site(i), 0) {
			t.Fatalf("%d %s, expected %s", i, c.Site(i), m.Site(i))
		}
	}
	if ec := e.Conjugate(); !relEqual(ec.Gammas[1], e.Gammas[1], 0) {
		t.Fatalf("%s, expected %s", ec.Gammas[1], e.Gammas[1])
	}
}

func TestDensityMPO(t *testing.T) {
	t.Parallel()
	rng := rand.New(rand.NewPCG(3, 3))
	m, err := Random([]int{2, 2, 2}, 2, rng)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	rho, err := DensityMPO(m)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if got := rho.BondDimensions(); fmt.Sprint(got) != fmt.Sprint([]int{4, 4}) {
		t.Fatalf("%v", got)
	}

	norm2, err := Overlap(m, m)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if tr := mat.Trace(rho.Matrix()); !relClose(tr, norm2, 1e-12) {
		t.Fatalf("%v, expected %v", tr, norm2)
	}

	// <φ|m><m|φ> for a state φ unrelated to m.
	phi, err := Random([]int{2, 2, 2}, 2, rng)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	got, err := Sandwich(phi, rho, phi)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	overlap, err := Overlap(phi, m)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if !relClose(got, overlap*overlap, 1e-12) {
		t.Fatalf("%v, expected %v", got, overlap*overlap)
	}
}
