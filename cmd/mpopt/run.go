package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/fumin/mpopt/batch"
	"github.com/fumin/mpopt/dmrg"
	"github.com/fumin/mpopt/metrics"
	"github.com/fumin/mpopt/mps"
	"github.com/fumin/mpopt/store"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newRunCmd(defaults *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Search the ground state of a model",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := commandConfig(cmd)
			if err != nil {
				return errors.Wrap(err, "")
			}
			return runModel(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
	addDMRGFlags(cmd, defaults)
	return cmd
}

func newScanCmd(defaults *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Search ground states over a range of fields in parallel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := commandConfig(cmd)
			if err != nil {
				return errors.Wrap(err, "")
			}
			return scan(cmd.Context(), cmd.OutOrStdout(), cfg)
		},
	}
	addDMRGFlags(cmd, defaults)
	cmd.Flags().StringSlice("fields", nil, "comma separated fields")
	cmd.Flags().Int("workers", defaults.GetInt("scan.workers"), "parallel runs, the number of CPUs if not positive")
	return cmd
}

// session holds what a command shares among its runs.
type session struct {
	cfg       Config
	logger    *logrus.Logger
	registry  *prometheus.Registry
	collector *metrics.Collector
	store     *store.Store
}

func newSession(cfg Config) (*session, error) {
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return nil, errors.Wrap(err, "")
	}
	s := &session{cfg: cfg, logger: logger, registry: prometheus.NewRegistry()}
	s.collector = metrics.New(s.registry)
	if cfg.Store != "" {
		if s.store, err = store.Open(cfg.Store); err != nil {
			return nil, errors.Wrap(err, "")
		}
	}
	return s, nil
}

func (s *session) Close() error {
	if s.cfg.Metrics != "" {
		if err := prometheus.WriteToTextfile(s.cfg.Metrics, s.registry); err != nil {
			return errors.Wrap(err, "")
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			return errors.Wrap(err, "")
		}
	}
	return nil
}

// job prepares the optimization of the model with field h.
func (s *session) job(h float64) (batch.Job, error) {
	o, err := s.cfg.Model.mpo(h)
	if err != nil {
		return batch.Job{}, errors.Wrap(err, "")
	}
	init, err := s.cfg.DMRG.initial(o.PhysicalDims())
	if err != nil {
		return batch.Job{}, errors.Wrap(err, "")
	}
	name := modelName(s.cfg.Model, h)
	opts, err := s.cfg.DMRG.options(s.logger.WithField("model", name), s.collector)
	if err != nil {
		return batch.Job{}, errors.Wrap(err, "")
	}
	return batch.Job{Name: name, MPO: o, Init: init, Options: opts}, nil
}

// save records an optimized state and its Hamiltonian under the model name.
func (s *session) save(ctx context.Context, job batch.Job, res dmrg.Result) (store.Run, error) {
	if s.store == nil {
		return store.Run{}, nil
	}
	if err := s.store.SaveMPS(ctx, job.Name, res.MPS); err != nil {
		return store.Run{}, errors.Wrap(err, "")
	}
	if err := s.store.SaveMPO(ctx, hamiltonianName(job.Name), job.MPO); err != nil {
		return store.Run{}, errors.Wrap(err, "")
	}
	r, err := s.store.SaveRun(ctx, store.Run{Model: job.Name, Energy: res.Energy, Converged: res.Converged, Sweeps: res.Sweeps})
	if err != nil {
		return store.Run{}, errors.Wrap(err, "")
	}
	return r, nil
}

func runModel(ctx context.Context, w io.Writer, cfg Config) (err error) {
	s, err := newSession(cfg)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	job, err := s.job(cfg.Model.H)
	if err != nil {
		return errors.Wrap(err, "")
	}
	opt, err := dmrg.New(job.Options)
	if err != nil {
		return errors.Wrap(err, "")
	}
	res, err := opt.Run(job.MPO, job.Init)
	if err != nil {
		return errors.Wrap(err, job.Name)
	}
	r, err := s.save(ctx, job, res)
	if err != nil {
		return errors.Wrap(err, "")
	}

	entropies, err := mps.EntanglementEntropy(res.MPS)
	if err != nil {
		return errors.Wrap(err, "")
	}
	fmt.Fprintf(w, "model %s\n", job.Name)
	fmt.Fprintf(w, "energy %.12f\n", res.Energy)
	fmt.Fprintf(w, "state %v after %d sweeps\n", res.State, res.Sweeps)
	fmt.Fprintf(w, "variance %g\n", res.Variance)
	fmt.Fprintf(w, "discarded weight %g\n", res.DiscardedWeight)
	fmt.Fprintf(w, "bond dimensions %v\n", res.MPS.BondDimensions())
	fmt.Fprintf(w, "entanglement entropy %.6f\n", entropies)
	if s.store != nil {
		fmt.Fprintf(w, "saved run %s\n", r.ID)
	}
	return nil
}

func scan(ctx context.Context, w io.Writer, cfg Config) (err error) {
	s, err := newSession(cfg)
	if err != nil {
		return errors.Wrap(err, "")
	}
	defer func() {
		if cerr := s.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	jobs := make([]batch.Job, 0, len(cfg.Scan.H))
	for _, h := range cfg.Scan.H {
		job, err := s.job(h)
		if err != nil {
			return errors.Wrap(err, "")
		}
		jobs = append(jobs, job)
	}
	outcomes, err := batch.Run(ctx, jobs, cfg.Scan.Workers)
	if err != nil {
		return errors.Wrap(err, "")
	}

	fmt.Fprintf(w, "h,energy,state,sweeps,bond\n")
	for i, o := range outcomes {
		h := cfg.Scan.H[i]
		if o.Err != nil {
			s.logger.WithError(o.Err).WithField("model", o.Name).Error("run failed")
			fmt.Fprintf(w, "%g,NaN,%v,%d,0\n", h, o.Result.State, o.Result.Sweeps)
			continue
		}
		if _, err := s.save(ctx, jobs[i], o.Result); err != nil {
			return errors.Wrap(err, "")
		}
		fmt.Fprintf(w, "%g,%.12f,%v,%d,%d\n", h, o.Result.Energy, o.Result.State, o.Result.Sweeps, o.Result.MPS.MaxBondDimension())
	}
	return nil
}

// hamiltonianName names the saved Hamiltonian of the state saved under name.
func hamiltonianName(name string) string {
	return name + "/hamiltonian"
}

// modelName names a model instance, such as ising_16_1.
func modelName(m ModelConfig, h float64) string {
	return fmt.Sprintf("%s_%d_%s", m.Name, m.Sites, strconv.FormatFloat(h, 'g', -1, 64))
}
