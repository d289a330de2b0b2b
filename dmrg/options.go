package dmrg

import (
	"fmt"
	"io"
	"math"
	"os"

	"github.com/fumin/mpopt/mps"
	"github.com/fumin/mpopt/tensor"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Which selects the eigenvalue targeted by the local solver.
type Which int

const (
	// SmallestAlgebraic targets the ground state.
	SmallestAlgebraic Which = iota
	LargestAlgebraic
	SmallestMagnitude
	LargestMagnitude
)

var whichNames = map[Which]string{
	SmallestAlgebraic: "SA",
	LargestAlgebraic:  "LA",
	SmallestMagnitude: "SM",
	LargestMagnitude:  "LM",
}

func (w Which) String() string {
	if s, ok := whichNames[w]; ok {
		return s
	}
	return fmt.Sprintf("Which(%d)", int(w))
}

// ParseWhich parses the two letter names SA, LA, SM and LM.
func ParseWhich(s string) (Which, error) {
	for w, name := range whichNames {
		if name == s {
			return w, nil
		}
	}
	return 0, errors.Wrapf(mps.ErrConfiguration, "which %q", s)
}

// better reports whether the eigenvalue a is preferred over b.
func (w Which) better(a, b float64) bool {
	switch w {
	case LargestAlgebraic:
		return a > b
	case SmallestMagnitude:
		return math.Abs(a) < math.Abs(b)
	case LargestMagnitude:
		return math.Abs(a) > math.Abs(b)
	default:
		return a < b
	}
}

// Options configures an Optimizer.
type Options struct {
	maxBondDim int
	cutoff     float64
	maxSweeps  int
	tol        float64
	which      Which
	solver     Solver
	backend    tensor.Backend
	logger     logrus.FieldLogger
	observers  []Observer
}

// NewOptions returns the default options.
func NewOptions() Options {
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(logrus.WarnLevel)
	return Options{
		maxBondDim: 16,
		cutoff:     1e-12,
		maxSweeps:  50,
		tol:        1e-10,
		which:      SmallestAlgebraic,
		solver:     AutoSolver{},
		backend:    tensor.DefaultBackend(),
		logger:     logger,
	}
}

// MaxBondDim sets the largest bond dimension kept by truncations.
func (opt Options) MaxBondDim(d int) Options {
	opt.maxBondDim = d
	return opt
}

// Cutoff sets the relative singular value cutoff of truncations.
func (opt Options) Cutoff(c float64) Options {
	opt.cutoff = c
	return opt
}

// MaxSweeps sets the sweep budget.
func (opt Options) MaxSweeps(n int) Options {
	opt.maxSweeps = n
	return opt
}

// Tol sets the energy change below which a run is converged.
func (opt Options) Tol(tol float64) Options {
	opt.tol = tol
	return opt
}

// Which sets the targeted eigenvalue.
func (opt Options) Which(w Which) Options {
	opt.which = w
	return opt
}

// Solver sets the local eigensolver.
func (opt Options) Solver(s Solver) Options {
	opt.solver = s
	return opt
}

// Backend sets the linear algebra backend of tensor contractions.
func (opt Options) Backend(b tensor.Backend) Options {
	opt.backend = b
	return opt
}

// Logger sets the logger. A nil logger discards everything.
func (opt Options) Logger(l logrus.FieldLogger) Options {
	if l == nil {
		discard := logrus.New()
		discard.SetOutput(io.Discard)
		l = discard
	}
	opt.logger = l
	return opt
}

// Observer adds an observer notified after every sweep.
func (opt Options) Observer(o Observer) Options {
	opt.observers = append(opt.observers[:len(opt.observers):len(opt.observers)], o)
	return opt
}

func (opt Options) validate() error {
	if opt.maxBondDim <= 0 {
		return errors.Wrapf(mps.ErrConfiguration, "max bond dimension %d", opt.maxBondDim)
	}
	if !(opt.cutoff >= 0) {
		return errors.Wrapf(mps.ErrConfiguration, "cutoff %g", opt.cutoff)
	}
	if opt.maxSweeps <= 0 {
		return errors.Wrapf(mps.ErrConfiguration, "max sweeps %d", opt.maxSweeps)
	}
	if !(opt.tol >= 0) {
		return errors.Wrapf(mps.ErrConfiguration, "tolerance %g", opt.tol)
	}
	if _, ok := whichNames[opt.which]; !ok {
		return errors.Wrapf(mps.ErrConfiguration, "which %d", opt.which)
	}
	if opt.solver == nil {
		return errors.Wrap(mps.ErrConfiguration, "nil solver")
	}
	if opt.logger == nil {
		return errors.Wrap(mps.ErrConfiguration, "nil logger")
	}
	return nil
}
