package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the config and build the strategy without running it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			strategy, err := buildStrategy(cfg)
			if err != nil {
				return exitError(ExitConfig, "strategy: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "config ok: strategy %s (%s), provider %s, store %s\n",
				strategy.Name(), cfg.Agent.Strategy, cfg.Model.Provider, cfg.Store.Driver)
			for _, n := range strategy.Nodes() {
				fmt.Fprintf(out, "  node %s\n", n)
			}
			return nil
		},
	}
}
