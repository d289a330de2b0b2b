// Command mpopt searches ground states of spin chains with DMRG.
//
// Usage:
//
//	mpopt run --sites 16 --field 1 --bond 32
//	mpopt scan --fields 0.5,1,1.5 --store runs.db
//	mpopt exact --sites 10
//	mpopt exact --lattice 3x3 --field 3 --coo h3x3
//	mpopt exact --from-coo h3x3
//	mpopt inspect --store runs.db ising_16_1
//	mpopt config --config mpopt.yaml
package main

import (
	"context"
	"log"
	"os"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	log.SetFlags(log.Lmicroseconds | log.Llongfile | log.LstdFlags)

	if err := mainWithErr(context.Background(), os.Args[1:]); err != nil {
		log.Fatalf("%+v", err)
	}
}

func mainWithErr(ctx context.Context, args []string) error {
	// Variables in .env do not override those already in the environment.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "")
	}

	root := newRootCmd()
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		return errors.Wrap(err, "")
	}
	return nil
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "mpopt",
		Short:         "Variational ground states of matrix product operators",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "yaml configuration file")

	defaults := viper.New()
	setDefaults(defaults)
	f := root.PersistentFlags()
	f.String("model", defaults.GetString("model.name"), "model, ising or heisenberg")
	f.Int("sites", defaults.GetInt("model.sites"), "number of sites")
	f.Float64("j", defaults.GetFloat64("model.j"), "coupling")
	f.Float64("jz", defaults.GetFloat64("model.jz"), "z coupling of heisenberg")
	f.Float64("field", defaults.GetFloat64("model.h"), "magnetic field")
	f.String("store", defaults.GetString("store"), "sqlite database of states and runs")
	f.String("metrics", defaults.GetString("metrics"), "prometheus text file written on exit")
	f.String("log-level", defaults.GetString("log_level"), "log level")

	root.AddCommand(newRunCmd(defaults), newScanCmd(defaults), newExactCmd(), newInspectCmd(), newConfigCmd())
	return root
}

// addDMRGFlags adds the optimizer flags of commands running DMRG.
func addDMRGFlags(cmd *cobra.Command, defaults *viper.Viper) {
	f := cmd.Flags()
	f.Int("bond", defaults.GetInt("dmrg.max_bond_dim"), "maximum bond dimension")
	f.Float64("cutoff", defaults.GetFloat64("dmrg.cutoff"), "discarded weight cutoff")
	f.Int("sweeps", defaults.GetInt("dmrg.max_sweeps"), "maximum number of sweeps")
	f.Float64("tol", defaults.GetFloat64("dmrg.tol"), "energy tolerance between sweeps")
	f.String("which", defaults.GetString("dmrg.which"), "eigenvalue to target, SA LA SM or LM")
	f.String("solver", defaults.GetString("dmrg.solver"), "local eigensolver, auto dense or lanczos")
	f.String("init", defaults.GetString("dmrg.init"), "initial state, random or product")
	f.Int("init-bond", defaults.GetInt("dmrg.init_bond_dim"), "bond dimension of a random initial state")
	f.Uint64("seed", defaults.GetUint64("dmrg.seed"), "seed of a random initial state")
	f.Bool("parallel", defaults.GetBool("dmrg.parallel"), "parallel tensor products")
}

// commandConfig loads the configuration of a running command.
func commandConfig(cmd *cobra.Command) (Config, error) {
	file, err := cmd.Flags().GetString("config")
	if err != nil {
		return Config{}, errors.Wrap(err, "")
	}
	cfg, err := loadConfig(file, cmd.Flags())
	if err != nil {
		return Config{}, errors.Wrap(err, "")
	}
	return cfg, nil
}
