package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"text/tabwriter"

	"github.com/fumin/mpopt/exactdiag"
	"github.com/fumin/mpopt/exactdiag/mat"
	"github.com/fumin/mpopt/mps"
	"github.com/fumin/mpopt/store"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newExactCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "exact",
		Short: "Diagonalize a model exactly",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := commandConfig(cmd)
			if err != nil {
				return errors.Wrap(err, "")
			}
			var opts exactOptions
			if opts.cooOut, err = cmd.Flags().GetString("coo"); err != nil {
				return errors.Wrap(err, "")
			}
			if opts.cooIn, err = cmd.Flags().GetString("from-coo"); err != nil {
				return errors.Wrap(err, "")
			}
			lattice, err := cmd.Flags().GetString("lattice")
			if err != nil {
				return errors.Wrap(err, "")
			}
			if lattice != "" {
				if opts.lattice, err = parseLattice(lattice); err != nil {
					return errors.Wrap(err, "")
				}
			}
			return exact(cmd.OutOrStdout(), cfg, opts)
		},
	}
	cmd.Flags().String("coo", "", "directory to write the Hamiltonian as COO csv")
	cmd.Flags().String("from-coo", "", "directory of a COO csv Hamiltonian to diagonalize instead of the model")
	cmd.Flags().String("lattice", "", "rows x columns of a two dimensional transverse field ising model, such as 3x2")
	return cmd
}

type exactOptions struct {
	cooOut  string
	cooIn   string
	lattice [2]int
}

func parseLattice(s string) ([2]int, error) {
	var n [2]int
	if _, err := fmt.Sscanf(s, "%dx%d", &n[0], &n[1]); err != nil {
		return [2]int{}, errors.Wrapf(mps.ErrConfiguration, "lattice %q: %v", s, err)
	}
	if n[0] <= 0 || n[1] <= 0 {
		return [2]int{}, errors.Wrapf(mps.ErrConfiguration, "lattice %q", s)
	}
	return n, nil
}

func exact(w io.Writer, cfg Config, opts exactOptions) error {
	var h *mat.COO
	name := modelName(cfg.Model, cfg.Model.H)
	// lattice is the spin lattice of h, unknown for matrices read from files.
	lattice := [2]int{cfg.Model.Sites, 1}
	switch {
	case opts.cooIn != "":
		var err error
		if h, err = mat.ReadCOO(opts.cooIn); err != nil {
			return errors.Wrap(err, "")
		}
		name, lattice = opts.cooIn, [2]int{}
	case opts.lattice != [2]int{}:
		if cfg.Model.Name != "ising" {
			return errors.Wrapf(mps.ErrConfiguration, "lattice of model %q", cfg.Model.Name)
		}
		h = exactdiag.TransverseFieldIsing(opts.lattice, cfg.Model.J, cfg.Model.H)
		name = fmt.Sprintf("ising_%dx%d_%s", opts.lattice[0], opts.lattice[1], strconv.FormatFloat(cfg.Model.H, 'g', -1, 64))
		lattice = opts.lattice
	default:
		o, err := cfg.Model.mpo(cfg.Model.H)
		if err != nil {
			return errors.Wrap(err, "")
		}
		h = exactdiag.Hamiltonian(o)
	}
	if opts.cooOut != "" {
		if err := h.WriteCOO(opts.cooOut); err != nil {
			return errors.Wrap(err, "")
		}
	}
	vv, err := exactdiag.GroundState(h)
	if err != nil {
		return errors.Wrap(err, "")
	}
	fmt.Fprintf(w, "model %s\n", name)
	fmt.Fprintf(w, "dimension %d\n", h.Rows())
	fmt.Fprintf(w, "energy %.12f\n", vv.Val)

	if cfg.Model.Name != "ising" || lattice == [2]int{} {
		return nil
	}
	stats, err := exactdiag.GetStatistics(lattice, []mat.ValVec{vv})
	if err != nil {
		return errors.Wrap(err, "")
	}
	fmt.Fprintf(w, "magnetization %.6f\n", stats.Magnetization)
	fmt.Fprintf(w, "binder cumulant %.6f\n", stats.BinderCumulant)
	return nil
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect [name]",
		Short: "Show a saved state, or the saved runs if no name is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := commandConfig(cmd)
			if err != nil {
				return errors.Wrap(err, "")
			}
			if cfg.Store == "" {
				return errors.Wrap(mps.ErrConfiguration, "no store")
			}
			s, err := store.Open(cfg.Store)
			if err != nil {
				return errors.Wrap(err, "")
			}
			defer s.Close()

			if len(args) == 0 {
				return listRuns(cmd.Context(), cmd.OutOrStdout(), s)
			}
			return inspect(cmd.Context(), cmd.OutOrStdout(), s, cfg, args[0])
		},
	}
}

func listRuns(ctx context.Context, w io.Writer, s *store.Store) error {
	runs, err := s.Runs(ctx, "")
	if err != nil {
		return errors.Wrap(err, "")
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID\tMODEL\tENERGY\tCONVERGED\tSWEEPS\tCREATED\n")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%.12f\t%t\t%d\t%s\n", r.ID, r.Model, r.Energy, r.Converged, r.Sweeps, r.Created.Format("2006-01-02 15:04:05"))
	}
	return errors.Wrap(tw.Flush(), "")
}

// inspect prints a saved state. Its energy is evaluated against the Hamiltonian saved with it,
// or the configured model if there is none.
func inspect(ctx context.Context, w io.Writer, s *store.Store, cfg Config, name string) error {
	m, err := s.LoadMPS(ctx, name)
	if err != nil {
		return errors.Wrap(err, "")
	}
	entropies, err := mps.EntanglementEntropy(m)
	if err != nil {
		return errors.Wrap(err, "")
	}
	fmt.Fprintf(w, "name %s\n", name)
	fmt.Fprintf(w, "sites %d\n", m.Len())
	fmt.Fprintf(w, "norm %.12f\n", mps.Norm(m))
	fmt.Fprintf(w, "bond dimensions %v\n", m.BondDimensions())
	fmt.Fprintf(w, "entanglement entropy %.6f\n", entropies)

	o, err := s.LoadMPO(ctx, hamiltonianName(name))
	model := name
	switch {
	case errors.Is(err, store.ErrNotFound):
		model = modelName(cfg.Model, cfg.Model.H)
		if o, err = cfg.Model.mpo(cfg.Model.H); err != nil {
			return errors.Wrap(err, "")
		}
	case err != nil:
		return errors.Wrap(err, "")
	}
	if o.Compatible(m) != nil {
		return nil
	}
	e, err := mps.Expectation(m, o)
	if err != nil {
		return errors.Wrap(err, "")
	}
	fmt.Fprintf(w, "energy of %s %.12f\n", model, e)
	return nil
}

func newConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := commandConfig(cmd)
			if err != nil {
				return errors.Wrap(err, "")
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return errors.Wrap(err, "")
			}
			return errors.Wrap(enc.Close(), "")
		},
	}
}
