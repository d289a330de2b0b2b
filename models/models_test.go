package models

import (
	"fmt"
	"testing"

	"github.com/fumin/mpopt/mps"
	"github.com/fumin/mpopt/tensor"
	ftensor "github.com/fumin/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

func TestMPO(t *testing.T) {
	t.Parallel()
	must := func(o *mps.MPO, err error) *mps.MPO {
		if err != nil {
			t.Fatalf("%+v", err)
		}
		return o
	}
	tests := []struct {
		name string
		mpo  *mps.MPO
		want [][]float64
	}{
		{
			name: "ising1",
			mpo:  must(Ising(1, 1, 0.5)),
			want: [][]float64{
				{0, -0.5},
				{-0.5, 0},
			},
		},
		{
			name: "ising2",
			mpo:  must(Ising(2, 2, 0.5)),
			want: [][]float64{
				{-2, -0.5, -0.5, 0},
				{-0.5, 2, 0, -0.5},
				{-0.5, 0, 2, -0.5},
				{0, -0.5, -0.5, -2},
			},
		},
		{
			name: "heisenberg2",
			mpo:  must(Heisenberg(2, 1, 1, 0)),
			want: [][]float64{
				{0.25, 0, 0, 0},
				{0, -0.25, 0.5, 0},
				{0, 0.5, -0.25, 0},
				{0, 0, 0, 0.25},
			},
		},
		{
			name: "heisenberg field",
			mpo:  must(Heisenberg(2, 0, 0, 1)),
			want: [][]float64{
				{-1, 0, 0, 0},
				{0, 0, 0, 0},
				{0, 0, 0, 0},
				{0, 0, 0, 1},
			},
		},
		{
			name: "magnetization",
			mpo:  must(MagnetizationZ(2)),
			want: [][]float64{
				{2, 0, 0, 0},
				{0, 0, 0, 0},
				{0, 0, 0, 0},
				{0, 0, 0, -2},
			},
		},
		{
			name: "local",
			mpo:  must(Local(2, 1, PauliX)),
			want: [][]float64{
				{0, 1, 0, 0},
				{1, 0, 0, 0},
				{0, 0, 0, 1},
				{0, 0, 1, 0},
			},
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()
			got := test.mpo.Matrix()
			want := mat.NewDense(len(test.want), len(test.want), nil)
			for i, row := range test.want {
				want.SetRow(i, row)
			}
			if !mat.EqualApprox(got, want, 1e-15) {
				t.Fatalf("%v, expected %v", mat.Formatted(got), mat.Formatted(want))
			}
		})
	}
}

func TestBondDimensions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n    int
		want []int
	}{
		{n: 1, want: []int{}},
		{n: 2, want: []int{5}},
		{n: 4, want: []int{5, 5, 5}},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%d", test.n), func(t *testing.T) {
			t.Parallel()
			o, err := Heisenberg(test.n, 1, 1, 0)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if got := o.BondDimensions(); fmt.Sprint(got) != fmt.Sprint(test.want) {
				t.Fatalf("%v, expected %v", got, test.want)
			}
		})
	}
}

// complexIsing returns the bulk matrix of -sum Z_i Z_{i+1} - h sum X_i with axes (row, col, out, in).
func complexIsing(h complex64) *ftensor.Dense {
	w := ftensor.Zeros(3, 3, 2, 2)
	set := func(row, col int, c complex64, op [][]float64) {
		for out := range op {
			for in, v := range op[out] {
				w.SetAt([]int{row, col, out, in}, c*complex(float32(v), 0))
			}
		}
	}
	set(0, 0, 1, identity)
	set(1, 0, 1, PauliZ)
	set(2, 0, -h, PauliX)
	set(2, 1, -1, PauliZ)
	set(2, 2, 1, identity)
	return w
}

func TestFromComplexBulk(t *testing.T) {
	t.Parallel()
	for _, n := range []int{1, 2, 3, 6} {
		t.Run(fmt.Sprintf("%d", n), func(t *testing.T) {
			t.Parallel()
			got, err := FromComplexBulk(complexIsing(0.5), n)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			want, err := Ising(n, 1, 0.5)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if fmt.Sprint(got.BondDimensions()) != fmt.Sprint(want.BondDimensions()) {
				t.Fatalf("%v, expected %v", got.BondDimensions(), want.BondDimensions())
			}
			for i := range n {
				if !tensor.EqualApprox(got.Site(i), want.Site(i), 1e-12) {
					t.Fatalf("site %d %s, expected %s", i, got.Site(i), want.Site(i))
				}
			}

			// The sites of the chain convert back and forth.
			back, err := mps.FromComplexSites(want.ComplexSites())
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if !mat.EqualApprox(back.Matrix(), want.Matrix(), 1e-12) {
				t.Fatalf("%v, expected %v", mat.Formatted(back.Matrix()), mat.Formatted(want.Matrix()))
			}
		})
	}

	if _, err := FromComplexBulk(complexIsing(complex(0.5, 0.5)), 3); !errors.Is(err, mps.ErrNumerical) {
		t.Fatalf("%+v", err)
	}
	if _, err := FromComplexBulk(ftensor.Zeros(3, 3, 2, 3), 3); !errors.Is(err, mps.ErrShape) {
		t.Fatalf("%+v", err)
	}
}

func TestErrors(t *testing.T) {
	t.Parallel()
	if _, err := Ising(0, 1, 1); !errors.Is(err, mps.ErrConfiguration) {
		t.Fatalf("%+v", err)
	}
	if _, err := Local(3, 3, PauliX); !errors.Is(err, mps.ErrConfiguration) {
		t.Fatalf("%+v", err)
	}
	if _, err := Local(3, 0, [][]float64{{1, 0}}); !errors.Is(err, mps.ErrShape) {
		t.Fatalf("%+v", err)
	}
}
