// Package cli implements the agentgraph command line.
package cli

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dshills/agentgraph-go/internal/config"
)

// NewRootCmd builds the command tree.
func NewRootCmd(version string) *cobra.Command {
	root := &cobra.Command{
		Use:          "agentgraph",
		Short:        "Run tool-using LLM agents described by a YAML file",
		SilenceUsage: true,
		Version:      version,
	}
	root.PersistentFlags().StringP("config", "c", "", "config file (default ./"+config.DefaultFile+")")
	root.PersistentFlags().Bool("verbose", false, "log at debug level")
	root.SetVersionTemplate(fmt.Sprintf("agentgraph version %s\n", version))

	root.AddCommand(newRunCmd(), newValidateCmd(), newToolsCmd())
	return root
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, exitError(ExitConfig, "%w", err)
	}
	if verbose, _ := cmd.Flags().GetBool("verbose"); verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}

func newLogger(w io.Writer, c config.Log) *slog.Logger {
	var level slog.Level
	_ = level.UnmarshalText([]byte(strings.ToUpper(c.Level)))
	opts := &slog.HandlerOptions{Level: level}
	if c.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
