package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/AaronLay10/DefusalEngine/internal/config"
	"github.com/AaronLay10/DefusalEngine/internal/modules"
	"github.com/AaronLay10/DefusalEngine/internal/solver"
	"github.com/AaronLay10/DefusalEngine/internal/version"
)

// rootOptions holds global flags for all commands.
type rootOptions struct {
	ConfigPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "defusalctl",
		Short:         "Solve bomb modules from the command line",
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "engine.yaml for solver tuning (optional)")

	cmd.AddCommand(newSolveCommand(opts))
	cmd.AddCommand(newTypesCommand(opts))
	return cmd
}

// registry builds the solver registry, tuned by --config when given.
func (o *rootOptions) registry() (*solver.Registry, error) {
	opts := modules.DefaultOptions()
	if o.ConfigPath != "" {
		cfg, err := config.LoadEngineConfig(o.ConfigPath)
		if err != nil {
			return nil, err
		}
		opts.Morse = cfg.MorseConfig()
	}
	reg, err := modules.NewRegistry(solver.NewCodec(), opts)
	if err != nil {
		return nil, fmt.Errorf("failed to build registry: %w", err)
	}
	return reg, nil
}
