package dmrg

import (
	"fmt"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/fumin/mpopt/models"
	"github.com/fumin/mpopt/mps"
	"github.com/fumin/mpopt/tensor"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/floats"
)

func TestRun(t *testing.T) {
	t.Parallel()
	ising := func(n int, j, h float64) func() (*mps.MPO, error) {
		return func() (*mps.MPO, error) { return models.Ising(n, j, h) }
	}
	heisenberg := func(n int, j, jz, h float64) func() (*mps.MPO, error) {
		return func() (*mps.MPO, error) { return models.Heisenberg(n, j, jz, h) }
	}
	tests := []struct {
		name   string
		mpo    func() (*mps.MPO, error)
		n      int
		solver Solver
		which  Which
		energy float64
	}{
		{name: "ising2", mpo: ising(2, 1, 1), n: 2, energy: -2.236067977500},
		{name: "ising3", mpo: ising(3, 1, 1), n: 3, energy: -3.493959207435},
		{name: "ising4", mpo: ising(4, 1, 1), n: 4, energy: -4.758770483144},
		{name: "ising4h0.5", mpo: ising(4, 1, 0.5), n: 4, energy: -3.427034088908},
		{name: "ising4dense", mpo: ising(4, 1, 1), n: 4, solver: DenseSolver{}, energy: -4.758770483144},
		{name: "ising6lanczos", mpo: ising(6, 1, 1), n: 6, solver: Lanczos{}, energy: -7.296229810559},
		{name: "ising2largest", mpo: ising(2, 1, 1), n: 2, which: LargestAlgebraic, energy: 2.236067977500},
		{name: "heisenberg4", mpo: heisenberg(4, 1, 1, 0), n: 4, energy: -(3 + 2*math.Sqrt(3)) / 4},
		// The ferromagnetic multiplet of nine degenerate states.
		{name: "heisenberg8largest", mpo: heisenberg(8, 1, 1, 0), n: 8, which: LargestAlgebraic, energy: 1.75},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("%d_%s", i, test.name), func(t *testing.T) {
			t.Parallel()
			h, err := test.mpo()
			if err != nil {
				t.Fatalf("%+v", err)
			}
			rng := rand.New(rand.NewPCG(uint64(i), 0))
			init, err := mps.Random(h.PhysicalDims(), 4, rng)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			before := init.Site(0)

			opts := NewOptions().MaxBondDim(16).Which(test.which)
			if test.solver != nil {
				opts = opts.Solver(test.solver)
			}
			opt, err := New(opts)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			res, err := opt.Run(h, init)
			if err != nil {
				t.Fatalf("%+v", err)
			}

			if !res.Converged || res.State != Converged {
				t.Fatalf("%v %v", res.Converged, res.State)
			}
			if res.Sweeps > 50 || res.Sweeps != len(res.History) {
				t.Fatalf("%d %d", res.Sweeps, len(res.History))
			}
			if math.Abs(res.Energy-test.energy) > 1e-6 {
				t.Fatalf("%v, expected %v", res.Energy, test.energy)
			}
			if math.Abs(res.Variance) > 1e-6 {
				t.Fatalf("variance %v", res.Variance)
			}
			if n := mps.Norm(res.MPS); math.Abs(n-1) > 1e-8 {
				t.Fatalf("norm %v", n)
			}
			e, err := mps.Expectation(res.MPS, h)
			if err != nil {
				t.Fatalf("%+v", err)
			}
			if math.Abs(e-res.Energy) > 1e-10 {
				t.Fatalf("%v, expected %v", e, res.Energy)
			}
			if !mps.IsCanonical(res.MPS, 1e-8) {
				t.Fatalf("%v", mps.OrthogonalityCenters(res.MPS, 1e-8))
			}
			for _, d := range res.MPS.BondDimensions() {
				if d > 16 {
					t.Fatalf("%v", res.MPS.BondDimensions())
				}
			}

			// The initial state is not modified.
			if !tensor.EqualApprox(before, init.Site(0), 0) {
				t.Fatalf("%v, expected %v", init.Site(0), before)
			}
		})
	}
}

func TestRunSingleSite(t *testing.T) {
	t.Parallel()
	h, err := models.Ising(1, 1, 0.7)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	init, err := mps.Product([][]float64{{1, 0}})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	opt, err := New(NewOptions())
	if err != nil {
		t.Fatalf("%+v", err)
	}
	res, err := opt.Run(h, init)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if res.State != Converged || res.Sweeps != 0 {
		t.Fatalf("%v %d", res.State, res.Sweeps)
	}
	if math.Abs(res.Energy+0.7) > 1e-12 {
		t.Fatalf("%v", res.Energy)
	}
	// The ground state of -0.7 X is |+>.
	got := res.MPS.Site(0).Data()
	expected := []float64{1 / math.Sqrt2, 1 / math.Sqrt2}
	if !floats.EqualApprox(got, expected, 1e-12) {
		t.Fatalf("%v, expected %v", got, expected)
	}
}

func TestRunIterationLimit(t *testing.T) {
	t.Parallel()
	h, err := models.Ising(4, 1, 1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	init, err := mps.Build(h.PhysicalDims(), 1, mps.InitProduct, nil)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	obs := &recorder{}
	opt, err := New(NewOptions().MaxSweeps(1).Tol(0).Observer(obs))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	res, err := opt.Run(h, init)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if res.Converged || res.State != IterationLimitReached || res.Sweeps != 1 {
		t.Fatalf("%v %v %d", res.Converged, res.State, res.Sweeps)
	}
	if len(obs.sweeps) != 1 || obs.sweeps[0].Direction != mps.Left || obs.sweeps[0].Energy != res.Energy {
		t.Fatalf("%#v", obs.sweeps)
	}
	if len(obs.results) != 1 || obs.results[0].State != IterationLimitReached {
		t.Fatalf("%#v", obs.results)
	}
}

func TestRunObserver(t *testing.T) {
	t.Parallel()
	h, err := models.Ising(4, 1, 1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	init, err := mps.Random(h.PhysicalDims(), 2, rand.New(rand.NewPCG(1, 2)))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	obs := &recorder{}
	opt, err := New(NewOptions().Observer(obs))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	res, err := opt.Run(h, init)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if len(obs.sweeps) != res.Sweeps {
		t.Fatalf("%d, expected %d", len(obs.sweeps), res.Sweeps)
	}
	for i, info := range obs.sweeps {
		if info.Sweep != i+1 {
			t.Fatalf("%d %#v", i, info)
		}
		dir := mps.Left
		if i%2 == 1 {
			dir = mps.Right
		}
		if info.Direction != dir {
			t.Fatalf("%d %v, expected %v", i, info.Direction, dir)
		}
	}
	if last := obs.sweeps[len(obs.sweeps)-1]; last.Delta >= 1e-10 {
		t.Fatalf("%#v", last)
	}
}

func TestRunErrors(t *testing.T) {
	t.Parallel()
	h, err := models.Ising(4, 1, 1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	short, err := mps.Random([]int{2, 2, 2}, 2, rand.New(rand.NewPCG(0, 0)))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	zero, err := mps.Product([][]float64{{0, 0}, {0, 0}, {0, 0}, {0, 0}})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	tests := []struct {
		init  *mps.MPS
		err   error
		state State
	}{
		{init: short, err: mps.ErrShape, state: Idle},
		{init: zero, err: mps.ErrNumerical, state: Failed},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			t.Parallel()
			opt, err := New(NewOptions())
			if err != nil {
				t.Fatalf("%+v", err)
			}
			res, err := opt.Run(h, test.init)
			if !errors.Is(err, test.err) {
				t.Fatalf("%+v, expected %v", err, test.err)
			}
			if res.State != test.state {
				t.Fatalf("%v, expected %v", res.State, test.state)
			}
		})
	}
}

// failingSolver fails on its call numbered fail, counting from 1.
type failingSolver struct {
	Solver
	fail  int
	calls int
}

func (s *failingSolver) Solve(op LinearOperator, guess []float64, which Which) (float64, []float64, error) {
	s.calls++
	if s.calls == s.fail {
		return 0, nil, errors.Wrap(mps.ErrNumerical, "local solve")
	}
	return s.Solver.Solve(op, guess, which)
}

func TestRunFailedMidSweep(t *testing.T) {
	t.Parallel()
	h, err := models.Ising(4, 1, 1)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	init, err := mps.Random(h.PhysicalDims(), 2, rand.New(rand.NewPCG(3, 4)))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	first, err := New(NewOptions().Solver(DenseSolver{}).MaxSweeps(1).Tol(0))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	expected, err := first.Run(h, init)
	if err != nil {
		t.Fatalf("%+v", err)
	}

	// A sweep of four sites solves three bonds, so the fifth solve is in the middle of the second sweep.
	solver := &failingSolver{Solver: DenseSolver{}, fail: 5}
	obs := &recorder{}
	opt, err := New(NewOptions().Solver(solver).Observer(obs))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	res, err := opt.Run(h, init)
	if !errors.Is(err, mps.ErrNumerical) {
		t.Fatalf("%+v", err)
	}
	if solver.calls != 5 {
		t.Fatalf("%d", solver.calls)
	}
	if res.State != Failed || res.Converged || res.Sweeps != 1 || len(res.History) != 1 {
		t.Fatalf("%v %v %d %d", res.State, res.Converged, res.Sweeps, len(res.History))
	}
	if res.Energy != expected.Energy || res.Energy != obs.sweeps[0].Energy {
		t.Fatalf("%v, expected %v", res.Energy, expected.Energy)
	}
	e, err := mps.Expectation(res.MPS, h)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if math.Abs(e-res.Energy) > 1e-12 {
		t.Fatalf("%v, expected %v", e, res.Energy)
	}
	// The state is that of the first sweep, untouched by the bonds solved in the second.
	for i := range h.Len() {
		if !tensor.EqualApprox(res.MPS.Site(i), expected.MPS.Site(i), 1e-12) {
			t.Fatalf("site %d %v, expected %v", i, res.MPS.Site(i), expected.MPS.Site(i))
		}
	}
	if len(obs.results) != 1 || obs.results[0].State != Failed {
		t.Fatalf("%#v", obs.results)
	}
}

func TestRunVarianceOverflow(t *testing.T) {
	t.Parallel()
	// <H^2> of a field of 1e160 overflows while <H> does not.
	h, err := models.Ising(2, 1, 1e160)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	init, err := mps.Product([][]float64{{1, 0}, {1, 0}})
	if err != nil {
		t.Fatalf("%+v", err)
	}
	opt, err := New(NewOptions().Tol(1e150))
	if err != nil {
		t.Fatalf("%+v", err)
	}
	res, err := opt.Run(h, init)
	if err != nil {
		t.Fatalf("%+v", err)
	}
	if res.State != Converged || !res.Converged {
		t.Fatalf("%v %v", res.State, res.Converged)
	}
	if !math.IsNaN(res.Variance) {
		t.Fatalf("%v", res.Variance)
	}
	if math.Abs(res.Energy/2e160+1) > 1e-12 {
		t.Fatalf("%v", res.Energy)
	}
}

func TestOptions(t *testing.T) {
	t.Parallel()
	tests := []struct {
		opts Options
		err  error
	}{
		{opts: NewOptions()},
		{opts: NewOptions().MaxBondDim(0), err: mps.ErrConfiguration},
		{opts: NewOptions().Cutoff(-1), err: mps.ErrConfiguration},
		{opts: NewOptions().Cutoff(math.NaN()), err: mps.ErrConfiguration},
		{opts: NewOptions().MaxSweeps(0), err: mps.ErrConfiguration},
		{opts: NewOptions().Tol(-1), err: mps.ErrConfiguration},
		{opts: NewOptions().Which(Which(9)), err: mps.ErrConfiguration},
		{opts: NewOptions().Solver(nil), err: mps.ErrConfiguration},
		{opts: NewOptions().Logger(nil)},
	}
	for i, test := range tests {
		t.Run(fmt.Sprintf("%d", i), func(t *testing.T) {
			t.Parallel()
			_, err := New(test.opts)
			if test.err == nil {
				if err != nil {
					t.Fatalf("%+v", err)
				}
				return
			}
			if !errors.Is(err, test.err) {
				t.Fatalf("%+v, expected %v", err, test.err)
			}
		})
	}
}

func TestParseWhich(t *testing.T) {
	t.Parallel()
	for _, w := range []Which{SmallestAlgebraic, LargestAlgebraic, SmallestMagnitude, LargestMagnitude} {
		got, err := ParseWhich(w.String())
		if err != nil {
			t.Fatalf("%+v", err)
		}
		if got != w {
			t.Fatalf("%v, expected %v", got, w)
		}
	}
	if _, err := ParseWhich("XX"); !errors.Is(err, mps.ErrConfiguration) {
		t.Fatalf("%+v", err)
	}
}

type recorder struct {
	sweeps  []SweepInfo
	results []Result
}

func (r *recorder) ObserveSweep(info SweepInfo) { r.sweeps = append(r.sweeps, info) }
func (r *recorder) ObserveResult(res Result)    { r.results = append(r.results, res) }
