package main

import (
	"math/rand/v2"
	"strings"

	"github.com/fumin/mpopt/dmrg"
	"github.com/fumin/mpopt/models"
	"github.com/fumin/mpopt/mps"
	"github.com/fumin/mpopt/tensor"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "MPOPT"

// Config is the configuration of a command, read from flags, MPOPT_ environment variables and an optional yaml file,
// in decreasing order of precedence.
type Config struct {
	Model ModelConfig `mapstructure:"model" yaml:"model"`
	DMRG  DMRGConfig  `mapstructure:"dmrg" yaml:"dmrg"`
	Scan  ScanConfig  `mapstructure:"scan" yaml:"scan"`
	// Store is the path of the sqlite database, results are not saved if empty.
	Store string `mapstructure:"store" yaml:"store"`
	// Metrics is the path of a prometheus text file written when a command finishes.
	Metrics  string `mapstructure:"metrics" yaml:"metrics"`
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`
}

type ModelConfig struct {
	// Name is ising or heisenberg.
	Name  string  `mapstructure:"name" yaml:"name"`
	Sites int     `mapstructure:"sites" yaml:"sites"`
	J     float64 `mapstructure:"j" yaml:"j"`
	Jz    float64 `mapstructure:"jz" yaml:"jz"`
	H     float64 `mapstructure:"h" yaml:"h"`
}

type DMRGConfig struct {
	MaxBondDim int     `mapstructure:"max_bond_dim" yaml:"max_bond_dim"`
	Cutoff     float64 `mapstructure:"cutoff" yaml:"cutoff"`
	MaxSweeps  int     `mapstructure:"max_sweeps" yaml:"max_sweeps"`
	Tol        float64 `mapstructure:"tol" yaml:"tol"`
	Which      string  `mapstructure:"which" yaml:"which"`
	// Solver is auto, dense or lanczos.
	Solver      string `mapstructure:"solver" yaml:"solver"`
	Init        string `mapstructure:"init" yaml:"init"`
	InitBondDim int    `mapstructure:"init_bond_dim" yaml:"init_bond_dim"`
	Seed        uint64 `mapstructure:"seed" yaml:"seed"`
	Parallel    bool   `mapstructure:"parallel" yaml:"parallel"`
}

type ScanConfig struct {
	// H are the transverse fields of a scan.
	H       []float64 `mapstructure:"h" yaml:"h"`
	Workers int       `mapstructure:"workers" yaml:"workers"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("model.name", "ising")
	v.SetDefault("model.sites", 8)
	v.SetDefault("model.j", 1.0)
	v.SetDefault("model.jz", 1.0)
	v.SetDefault("model.h", 1.0)
	v.SetDefault("dmrg.max_bond_dim", 16)
	v.SetDefault("dmrg.cutoff", 1e-12)
	v.SetDefault("dmrg.max_sweeps", 50)
	v.SetDefault("dmrg.tol", 1e-10)
	v.SetDefault("dmrg.which", dmrg.SmallestAlgebraic.String())
	v.SetDefault("dmrg.solver", "auto")
	v.SetDefault("dmrg.init", mps.InitRandom.String())
	v.SetDefault("dmrg.init_bond_dim", 4)
	v.SetDefault("dmrg.seed", 0)
	v.SetDefault("dmrg.parallel", false)
	v.SetDefault("scan.h", []float64{0.1, 0.5, 1, 1.5, 2})
	v.SetDefault("scan.workers", 0)
	v.SetDefault("store", "")
	v.SetDefault("metrics", "")
	v.SetDefault("log_level", logrus.InfoLevel.String())
}

// flagKeys maps command line flags to configuration keys.
var flagKeys = map[string]string{
	"model":     "model.name",
	"sites":     "model.sites",
	"j":         "model.j",
	"jz":        "model.jz",
	"field":     "model.h",
	"bond":      "dmrg.max_bond_dim",
	"cutoff":    "dmrg.cutoff",
	"sweeps":    "dmrg.max_sweeps",
	"tol":       "dmrg.tol",
	"which":     "dmrg.which",
	"solver":    "dmrg.solver",
	"init":      "dmrg.init",
	"init-bond": "dmrg.init_bond_dim",
	"seed":      "dmrg.seed",
	"parallel":  "dmrg.parallel",
	"fields":    "scan.h",
	"workers":   "scan.workers",
	"store":     "store",
	"metrics":   "metrics",
	"log-level": "log_level",
}

// loadConfig reads the configuration, file being an optional yaml file.
func loadConfig(file string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, errors.Wrap(err, file)
		}
	}
	if flags != nil {
		var err error
		flags.VisitAll(func(f *pflag.Flag) {
			key, ok := flagKeys[f.Name]
			if !ok || err != nil {
				return
			}
			err = v.BindPFlag(key, f)
		})
		if err != nil {
			return Config{}, errors.Wrap(err, "")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, errors.Wrap(err, "")
	}
	return cfg, nil
}

// mpo builds the Hamiltonian of the model with field h, transverse for ising and longitudinal for heisenberg.
func (m ModelConfig) mpo(h float64) (*mps.MPO, error) {
	switch m.Name {
	case "ising":
		return models.Ising(m.Sites, m.J, h)
	case "heisenberg":
		return models.Heisenberg(m.Sites, m.J, m.Jz, h)
	default:
		return nil, errors.Wrapf(mps.ErrConfiguration, "unknown model %q", m.Name)
	}
}

// options returns the optimizer options, reporting to logger and observers.
func (c DMRGConfig) options(logger logrus.FieldLogger, observers ...dmrg.Observer) (dmrg.Options, error) {
	which, err := dmrg.ParseWhich(c.Which)
	if err != nil {
		return dmrg.Options{}, errors.Wrap(err, "")
	}
	var solver dmrg.Solver
	switch c.Solver {
	case "auto":
		solver = dmrg.AutoSolver{}
	case "dense":
		solver = dmrg.DenseSolver{}
	case "lanczos":
		solver = dmrg.Lanczos{}
	default:
		return dmrg.Options{}, errors.Wrapf(mps.ErrConfiguration, "unknown solver %q", c.Solver)
	}

	opts := dmrg.NewOptions().
		MaxBondDim(c.MaxBondDim).
		Cutoff(c.Cutoff).
		MaxSweeps(c.MaxSweeps).
		Tol(c.Tol).
		Which(which).
		Solver(solver).
		Logger(logger)
	if c.Parallel {
		opts = opts.Backend(tensor.ParallelBackend())
	}
	for _, o := range observers {
		opts = opts.Observer(o)
	}
	return opts, nil
}

// initial builds the initial state of a chain.
func (c DMRGConfig) initial(physDims []int) (*mps.MPS, error) {
	init, err := mps.ParseInit(c.Init)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	rng := rand.New(rand.NewPCG(c.Seed, 0))
	m, err := mps.Build(physDims, c.InitBondDim, init, rng)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	return m, nil
}

func newLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	logger.SetLevel(lvl)
	return logger, nil
}
