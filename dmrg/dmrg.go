// Package dmrg implements the two site density matrix renormalization group,
// a variational search for extremal eigenstates of matrix product operators.
//
// References:
//   - The density-matrix renormalization group in the age of matrix product states, Ulrich Schollwock, Section 6.3 and 6.4
package dmrg

import (
	"fmt"
	"math"
	"time"

	"github.com/fumin/mpopt/internal/throttle"
	"github.com/fumin/mpopt/mps"
	"github.com/fumin/mpopt/tensor"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// State is the state of an optimization.
type State int

const (
	Idle State = iota
	Sweeping
	Converged
	IterationLimitReached
	// Failed means a numerical error aborted the run.
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Sweeping:
		return "sweeping"
	case Converged:
		return "converged"
	case IterationLimitReached:
		return "iteration limit reached"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// SweepInfo summarizes one sweep.
type SweepInfo struct {
	// Sweep counts from 1.
	Sweep int
	// Direction is mps.Left for sweeps moving from site 0 to site N-1, which leave left isometries behind.
	Direction mps.Direction
	Energy    float64
	// Delta is the absolute change of energy from the previous sweep.
	Delta float64
	// DiscardedWeight is the largest discarded weight among the truncations of the sweep.
	DiscardedWeight float64
	MaxBondDim      int
	Duration        time.Duration
}

// Result is the outcome of a run.
type Result struct {
	MPS       *mps.MPS
	Energy    float64
	Converged bool
	State     State
	Sweeps    int
	// DiscardedWeight is the largest discarded weight of the last sweep.
	DiscardedWeight float64
	// Variance is <H^2> - <H>^2, which vanishes for exact eigenstates.
	// It is NaN if <H^2> cannot be evaluated, which does not change State.
	Variance float64
	History  []SweepInfo
}

// Observer is notified during a run.
type Observer interface {
	ObserveSweep(SweepInfo)
	ObserveResult(Result)
}

// Optimizer runs two site DMRG.
// An Optimizer holds only configuration, so it can be shared by concurrent runs.
type Optimizer struct {
	opts Options
}

// New returns an Optimizer, failing with mps.ErrConfiguration for invalid options.
func New(opts Options) (*Optimizer, error) {
	if err := opts.validate(); err != nil {
		return nil, errors.Wrap(err, "")
	}
	return &Optimizer{opts: opts}, nil
}

// Run searches the eigenstate of h selected by the Which option, starting from init, which is not modified.
// Reaching the sweep budget without convergence is reported in the result and is not an error.
// When a numerical error aborts the run, the returned result holds the state of the last completed sweep.
func (o *Optimizer) Run(h *mps.MPO, init *mps.MPS) (Result, error) {
	if err := h.Compatible(init); err != nil {
		return Result{State: Idle}, errors.Wrap(err, "")
	}
	r := &run{
		opts:     o.opts,
		h:        h,
		m:        init.Clone(),
		ws:       make([]*tensor.Dense, 0, h.Len()),
		throttle: throttle.NewSkipThrottler(time.Second),
	}
	for i := range h.Len() {
		r.ws = append(r.ws, h.Site(i))
	}

	var res Result
	var err error
	switch h.Len() {
	case 1:
		res, err = r.single()
	default:
		res, err = r.sweeps()
	}
	if err != nil {
		r.logger().WithError(err).Warn("run failed")
	} else {
		r.logger().WithFields(logrus.Fields{"energy": res.Energy, "state": res.State, "sweeps": res.Sweeps}).Info("run done")
	}
	for _, obs := range o.opts.observers {
		obs.ObserveResult(res)
	}
	return res, err
}

type run struct {
	opts     Options
	h        *mps.MPO
	ws       []*tensor.Dense
	m        *mps.MPS
	envs     *arena
	state    State
	throttle *throttle.SkipThrottler
}

func (r *run) logger() logrus.FieldLogger {
	return r.opts.logger.WithField("sites", len(r.ws))
}

// single solves a chain of one site exactly.
func (r *run) single() (Result, error) {
	site := r.m.Site(0)
	op := newEffective(r.opts.backend, mps.BoundaryEnvironment(), r.ws[0], identityOperator(), mps.BoundaryEnvironment(), singleLegs(site))
	e, vec, err := DenseSolver{}.Solve(op, site.Data(), r.opts.which)
	if err != nil {
		return Result{MPS: r.m, State: Failed}, errors.Wrap(err, "")
	}
	s, err := mps.NewSite(1, len(vec), 1, vec)
	if err != nil {
		return Result{MPS: r.m, State: Failed}, errors.Wrap(err, "")
	}
	if err := r.m.SetSite(0, s); err != nil {
		return Result{MPS: r.m, State: Failed}, errors.Wrap(err, "")
	}
	if err := mps.Canonicalize(r.m, mps.Left); err != nil {
		return Result{MPS: r.m, State: Failed}, errors.Wrap(err, "")
	}
	return Result{MPS: r.m, Energy: e, Converged: true, State: Converged, Variance: r.variance(e)}, nil
}

func (r *run) sweeps() (Result, error) {
	r.state = Sweeping
	if err := mps.Canonicalize(r.m, mps.Right); err != nil {
		return r.fail(r.m, 0, nil, err)
	}
	if mps.Normalize(r.m) == 0 {
		return r.fail(r.m, 0, nil, errors.Wrap(mps.ErrNumerical, "initial state is zero"))
	}
	energy, err := mps.Expectation(r.m, r.h)
	if err != nil {
		return r.fail(r.m, 0, nil, err)
	}

	n := len(r.ws)
	r.envs = newArena(n)
	for b := n - 1; b >= 1; b-- {
		r.buildRight(b)
	}

	// best is the state after the last completed sweep.
	best := r.m.Clone()
	history := make([]SweepInfo, 0)
	for sweep := 1; sweep <= r.opts.maxSweeps; sweep++ {
		start := time.Now()
		dir := mps.Left
		if sweep%2 == 0 {
			dir = mps.Right
		}
		discarded, err := r.sweep(dir)
		if err != nil {
			return r.fail(best, energy, history, err)
		}
		e, err := mps.Expectation(r.m, r.h)
		if err != nil {
			return r.fail(best, energy, history, err)
		}
		if math.IsNaN(e) || math.IsInf(e, 0) {
			return r.fail(best, energy, history, errors.Wrapf(mps.ErrNumerical, "energy %g", e))
		}

		info := SweepInfo{
			Sweep:           sweep,
			Direction:       dir,
			Energy:          e,
			Delta:           math.Abs(e - energy),
			DiscardedWeight: discarded,
			MaxBondDim:      r.m.MaxBondDimension(),
			Duration:        time.Since(start),
		}
		history = append(history, info)
		for _, obs := range r.opts.observers {
			obs.ObserveSweep(info)
		}
		r.logger().WithFields(logrus.Fields{
			"sweep":     sweep,
			"energy":    e,
			"delta":     info.Delta,
			"discarded": discarded,
			"bond":      info.MaxBondDim,
		}).Debug("sweep")

		energy = e
		best = r.m.Clone()
		if info.Delta < r.opts.tol {
			r.state = Converged
			break
		}
	}
	if r.state != Converged {
		r.state = IterationLimitReached
	}

	last := history[len(history)-1]
	res := Result{
		MPS:             best,
		Energy:          energy,
		Converged:       r.state == Converged,
		State:           r.state,
		Sweeps:          len(history),
		DiscardedWeight: last.DiscardedWeight,
		History:         history,
		Variance:        r.variance(energy),
	}
	return res, nil
}

// sweep optimizes every pair of neighbouring sites once in the given direction, returning the largest discarded weight.
func (r *run) sweep(dir mps.Direction) (float64, error) {
	n := len(r.ws)
	var discarded float64
	switch dir {
	case mps.Left:
		for i := 0; i <= n-2; i++ {
			w, err := r.step(i, dir)
			if err != nil {
				return 0, errors.Wrap(err, fmt.Sprintf("bond %d", i))
			}
			discarded = max(discarded, w)
			r.envs.setLeft(i+1, mps.LeftEnvironment(r.opts.backend, r.envs.getLeft(i), r.m.Site(i), r.ws[i], r.m.Site(i)))
		}
	default:
		for i := n - 2; i >= 0; i-- {
			w, err := r.step(i, dir)
			if err != nil {
				return 0, errors.Wrap(err, fmt.Sprintf("bond %d", i))
			}
			discarded = max(discarded, w)
			r.buildRight(i + 1)
		}
	}
	return discarded, nil
}

// step optimizes the sites i and i+1, moving the orthogonality center in the direction of the sweep.
func (r *run) step(i int, dir mps.Direction) (float64, error) {
	b := r.opts.backend
	theta := mps.Merge(b, r.m.Site(i), r.m.Site(i+1))
	op := newEffective(b, r.envs.getLeft(i), r.ws[i], r.ws[i+1], r.envs.getRight(i+2), theta.Legs())
	e, vec, err := r.opts.solver.Solve(op, theta.Data(), r.opts.which)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	theta, err = tensor.New(theta.Legs(), vec)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}

	absorb, center := mps.AbsorbRight, i+1
	if dir == mps.Right {
		absorb, center = mps.AbsorbLeft, i
	}
	res, err := mps.TruncateAbsorb(theta, r.opts.maxBondDim, r.opts.cutoff, absorb)
	if err != nil {
		return 0, errors.Wrap(err, "")
	}
	// Renormalize the center after truncation.
	c := res.Right
	if absorb == mps.AbsorbLeft {
		c = res.Left
	}
	if norm := c.Norm(); norm > 0 {
		c.Scale(1 / norm)
	}
	if err := r.m.SetPair(i, res.Left, res.Right, center); err != nil {
		return 0, errors.Wrap(err, "")
	}

	if r.throttle.Ok() {
		r.logger().WithFields(logrus.Fields{"bond": i, "direction": dir, "energy": e, "discarded": res.DiscardedWeight}).Debug("step")
	}
	return res.DiscardedWeight, nil
}

func (r *run) buildRight(b int) {
	r.envs.setRight(b, mps.RightEnvironment(r.opts.backend, r.envs.getRight(b+1), r.m.Site(b), r.ws[b], r.m.Site(b)))
}

// variance returns <H^2> - e^2 for the current state, or NaN if <H^2> is not finite.
func (r *run) variance(e float64) float64 {
	e2, err := mps.ExpectationSquared(r.m, r.h)
	if err == nil && (math.IsNaN(e2) || math.IsInf(e2, 0)) {
		err = errors.Wrapf(mps.ErrNumerical, "<H^2> %g", e2)
	}
	if err != nil {
		r.logger().WithError(err).WithField("energy", e).Warn("variance")
		return math.NaN()
	}
	return e2 - e*e
}

func (r *run) fail(best *mps.MPS, energy float64, history []SweepInfo, err error) (Result, error) {
	r.state = Failed
	res := Result{MPS: best, Energy: energy, State: Failed, Sweeps: len(history), History: history}
	return res, errors.Wrap(err, "")
}

// identityOperator is the trivial MPO site of physical dimension 1.
func identityOperator() *tensor.Dense {
	id, err := mps.NewOperatorSite([][][][]float64{{{{1}}}})
	if err != nil {
		panic(fmt.Sprintf("%+v", err))
	}
	return id
}

// singleLegs returns the legs of a single site padded by a trivial second site.
func singleLegs(site *tensor.Dense) []tensor.Leg {
	return []tensor.Leg{site.Leg(0), site.Leg(1), {Name: mps.LegPhys, Dim: 1}, site.Leg(2)}
}
