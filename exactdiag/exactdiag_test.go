package exactdiag

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/fumin/mpopt/dmrg"
	"github.com/fumin/mpopt/exactdiag/mat"
	"github.com/fumin/mpopt/models"
	"github.com/fumin/mpopt/mps"
	"gonum.org/v1/gonum/floats"
	gmat "gonum.org/v1/gonum/mat"
)

func TestTransverseFieldIsing(t *testing.T) {
	t.Parallel()
	type matrixSlice struct {
		y [2]int
		x [2]int
		s *mat.COO
	}
	tests := []struct {
		n                [2]int
		h                float64
		hamiltonianShape [2]int
		hamiltonian      []matrixSlice
	}{
		{
			n:                [2]int{4, 1},
			h:                1,
			hamiltonianShape: [2]int{16, 16},
			hamiltonian: []matrixSlice{
				{
					y: [2]int{0, 16},
					x: [2]int{0, 16},
					s: mat.M([][]float64{
						{-3, -1, -1, 0, -1, 0, 0, 0, -1, 0, 0, 0, 0, 0, 0, 0},
						{-1, -1, 0, -1, 0, -1, 0, 0, 0, -1, 0, 0, 0, 0, 0, 0},
						{-1, 0, 1, -1, 0, 0, -1, 0, 0, 0, -1, 0, 0, 0, 0, 0},
						{0, -1, -1, -1, 0, 0, 0, -1, 0, 0, 0, -1, 0, 0, 0, 0},
						{-1, 0, 0, 0, 1, -1, -1, 0, 0, 0, 0, 0, -1, 0, 0, 0},
						{0, -1, 0, 0, -1, 3, 0, -1, 0, 0, 0, 0, 0, -1, 0, 0},
						{0, 0, -1, 0, -1, 0, 1, -1, 0, 0, 0, 0, 0, 0, -1, 0},
						{0, 0, 0, -1, 0, -1, -1, -1, 0, 0, 0, 0, 0, 0, 0, -1},
						{-1, 0, 0, 0, 0, 0, 0, 0, -1, -1, -1, 0, -1, 0, 0, 0},
						{0, -1, 0, 0, 0, 0, 0, 0, -1, 1, 0, -1, 0, -1, 0, 0},
						{0, 0, -1, 0, 0, 0, 0, 0, -1, 0, 3, -1, 0, 0, -1, 0},
						{0, 0, 0, -1, 0, 0, 0, 0, 0, -1, -1, 1, 0, 0, 0, -1},
						{0, 0, 0, 0, -1, 0, 0, 0, -1, 0, 0, 0, -1, -1, -1, 0},
						{0, 0, 0, 0, 0, -1, 0, 0, 0, -1, 0, 0, -1, 1, 0, -1},
						{0, 0, 0, 0, 0, 0, -1, 0, 0, 0, -1, 0, -1, 0, -1, -1},
						{0, 0, 0, 0, 0, 0, 0, -1, 0, 0, 0, -1, 0, -1, -1, -3},
					}),
				},
			},
		},
		{
			n:                [2]int{8, 1},
			h:                1,
			hamiltonianShape: [2]int{256, 256},
			hamiltonian: []matrixSlice{
				{
					y: [2]int{0, 10},
					x: [2]int{0, 9},
					s: mat.M([][]float64{
						{-7, -1, -1, 0, -1, 0, 0, 0, -1},
						{-1, -5, 0, -1, 0, -1, 0, 0, 0},
						{-1, 0, -3, -1, 0, 0, -1, 0, 0},
						{0, -1, -1, -5, 0, 0, 0, -1, 0},
						{-1, 0, 0, 0, -3, -1, -1, 0, 0},
						{0, -1, 0, 0, -1, -1, 0, -1, 0},
						{0, 0, -1, 0, -1, 0, -3, -1, 0},
						{0, 0, 0, -1, 0, -1, -1, -5, 0},
						{-1, 0, 0, 0, 0, 0, 0, 0, -3},
						{0, -1, 0, 0, 0, 0, 0, 0, -1},
					}),
				},
				{
					y: [2]int{0, 10},
					x: [2]int{-9, 256},
					s: mat.Zeros(10, 9),
				},
				{
					y: [2]int{-10, 256},
					x: [2]int{0, 9},
					s: mat.Zeros(10, 9),
				},
				{
					y: [2]int{-9, 256},
					x: [2]int{-9, 256},
					s: mat.M([][]float64{
						{-3, 0, 0, 0, 0, 0, 0, 0, -1},
						{0, -5, -1, -1, 0, -1, 0, 0, 0},
						{0, -1, -3, 0, -1, 0, -1, 0, 0},
						{0, -1, 0, -1, -1, 0, 0, -1, 0},
						{0, 0, -1, -1, -3, 0, 0, 0, -1},
						{0, -1, 0, 0, 0, -5, -1, -1, 0},
						{0, 0, -1, 0, 0, -1, -3, 0, -1},
						{0, 0, 0, -1, 0, -1, 0, -5, -1},
						{-1, 0, 0, 0, -1, 0, -1, -1, -7},
					}),
				},
			},
		},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#v %#v", test.n, test.h), func(t *testing.T) {
			t.Parallel()
			hamiltonian := TransverseFieldIsing(test.n, 1, test.h)
			if !(hamiltonian.Rows() == test.hamiltonianShape[0] && hamiltonian.Cols() == test.hamiltonianShape[1]) {
				t.Fatalf("%d %d, expected %v", hamiltonian.Rows(), hamiltonian.Cols(), test.hamiltonianShape)
			}
			for _, th := range test.hamiltonian {
				s := hamiltonian.Slice(th.y, th.x)
				if !s.Equal(th.s) {
					t.Fatalf("%s, expected %s", s, th.s)
				}
			}
		})
	}
}

func TestHamiltonian(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n    int
		j, h float64
	}{
		{n: 1, j: 1, h: 1},
		{n: 2, j: 1, h: 0.5},
		{n: 4, j: 1, h: 1},
		{n: 5, j: 0.7, h: 1.3},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#v", test), func(t *testing.T) {
			t.Parallel()
			o, err := models.Ising(test.n, test.j, test.h)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			got := Hamiltonian(o).Dense()
			expected := TransverseFieldIsing([2]int{1, test.n}, test.j, test.h).Dense()
			if !gmat.EqualApprox(got, expected, 1e-12) {
				t.Fatalf("%v, expected %v", gmat.Formatted(got), gmat.Formatted(expected))
			}
		})
	}
}

func TestEigen(t *testing.T) {
	t.Parallel()
	h := TransverseFieldIsing([2]int{8, 1}, 1, 1)
	vvs, err := h.Eigen()
	if err != nil {
		t.Fatalf("%+v", err)
	}

	// Check eigenvalues.
	// Values are from https://juliaphysics.github.io/PhysicsTutorials.jl/tutorials/general/quantum_ising/quantum_ising.html
	vals := []float64{-9.837951447459426, -9.46887800960621, -8.7432994871710, -8.374226049317867, -8.054998024353266, -7.685924586500063, -7.427412901942416, -7.058339464089192, -6.960346064064927, -6.881915778576785}
	for i, v := range vvs[0:10] {
		if math.Abs(v.Val-vals[i]) > 1e-6 {
			t.Fatalf("%d %v %f", i, v.Val, vals[i])
		}
	}
	vals = []float64{6.960346064064934, 7.0583394640891886, 7.427412901942393, 7.685924586500062, 8.054998024353269, 8.374226049317883, 8.74329948717109, 9.468878009606211, 9.83795144745942}
	for i, v := range vvs[len(vvs)-9:] {
		if math.Abs(v.Val-vals[i]) > 1e-6 {
			t.Fatalf("%d %v %f", i, v.Val, vals[i])
		}
	}

	// Check eigenvectors.
	var probSum float64
	for _, v := range vvs[0].Vec {
		probSum += v * v
	}
	if math.Abs(probSum-1) > 1e-6 {
		t.Fatalf("%f", probSum)
	}
	vec := []float64{0.11623105759942885, 0.030073150814502212, 0.0119388989548912, 0.01836268922781065, 0.010306563749646199, 0.0036432311839576883, 0.005695810419718821, 0.014593393364127294, 0.009913022568277332, 0.002835013679521494}
	for i, v := range vvs[0].Vec[:10] {
		if prob := v * v; math.Abs(prob-vec[i]) > 1e-6 {
			t.Fatalf("%d %v %f %f", i, v, prob, vec[i])
		}
	}
	vec = []float64{0.009913022568277134, 0.014593393364126966, 0.005695810419718817, 0.003643231183957665, 0.010306563749646001, 0.018362689227810196, 0.01193889895489093, 0.030073150814501577, 0.11623105759942208}
	for i, v := range vvs[0].Vec[len(vvs[0].Vec)-9:] {
		if prob := v * v; math.Abs(prob-vec[i]) > 1e-6 {
			t.Fatalf("%d %v %f %f", i, v, prob, vec[i])
		}
	}
}

func TestGroundEnergy(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n      int
		h      float64
		energy float64
	}{
		{n: 2, h: 1, energy: -2.236067977500},
		{n: 3, h: 1, energy: -3.493959207435},
		{n: 4, h: 1, energy: -4.758770483144},
		{n: 4, h: 0.5, energy: -3.427034088908},
		{n: 6, h: 1, energy: -7.296229810559},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%#v", test), func(t *testing.T) {
			t.Parallel()
			o, err := models.Ising(test.n, 1, test.h)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			e, err := GroundEnergy(o)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if math.Abs(e-test.energy) > 1e-9 {
				t.Fatalf("%v, expected %v", e, test.energy)
			}
		})
	}
}

func TestGroundStateLanczos(t *testing.T) {
	t.Parallel()
	n := [2]int{11, 1}
	h := TransverseFieldIsing(n, 1, 1)
	if h.Rows() <= DenseMaxDim {
		t.Fatalf("%d", h.Rows())
	}
	vv, err := GroundState(h)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	// The critical open chain of N spins has E = 1 - 1/sin(pi/(2(2N+1))), Pfeuty 1970.
	expected := 1 - 1/math.Sin(math.Pi/float64(2*(2*n[0]+1)))
	if math.Abs(vv.Val-expected) > 1e-8 {
		t.Fatalf("%v, expected %v", vv.Val, expected)
	}
	residual := make([]float64, h.Rows())
	h.Apply(residual, vv.Vec)
	floats.AddScaled(residual, -vv.Val, vv.Vec)
	if r := floats.Norm(residual, 2); r > 1e-6 {
		t.Fatalf("residual %v", r)
	}
}

func TestDMRG(t *testing.T) {
	t.Parallel()
	o, err := models.Ising(8, 1, 1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	init, err := mps.Random(o.PhysicalDims(), 4, rand.New(rand.NewPCG(8, 1)))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	opt, err := dmrg.New(dmrg.NewOptions().MaxBondDim(16))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	res, err := opt.Run(o, init)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	expected, err := GroundEnergy(o)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if math.Abs(res.Energy-expected) > 1e-6 {
		t.Fatalf("%v, expected %v", res.Energy, expected)
	}
}

func TestGetStatistics(t *testing.T) {
	t.Parallel()
	tests := []struct {
		n              [2]int
		h              float64
		magnetization  float64
		binderCumulant float64
	}{
		// Ordered phase, the ground state approaches the GHZ state.
		{n: [2]int{4, 1}, h: 0.031623, magnetization: 1, binderCumulant: 2. / 3},
		// Disordered phase, the ground state approaches |++++>.
		{n: [2]int{4, 1}, h: 1000, magnetization: 0.375, binderCumulant: 1. / 6},
		{n: [2]int{2, 2}, h: 0.031623, magnetization: 1, binderCumulant: 2. / 3},
	}
	for _, test := range tests {
		t.Run(fmt.Sprintf("%v %v", test.n, test.h), func(t *testing.T) {
			t.Parallel()
			vvs, err := TransverseFieldIsing(test.n, 1, test.h).Eigen()
			if err != nil {
				t.Fatalf("%+v", err)
			}
			stats, err := GetStatistics(test.n, vvs)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if len(stats.EigenValue) != 16 || stats.EigenValue[0] != vvs[0].Val {
				t.Fatalf("%v", stats.EigenValue)
			}
			if math.Abs(stats.Magnetization-test.magnetization) > 1e-2 {
				t.Fatalf("%v, expected %v", stats.Magnetization, test.magnetization)
			}
			if math.Abs(stats.BinderCumulant-test.binderCumulant) > 1e-2 {
				t.Fatalf("%v, expected %v", stats.BinderCumulant, test.binderCumulant)
			}
		})
	}
}
