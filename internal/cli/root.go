// Package cli implements the crates-mcp command tree.
package cli

import (
	"fmt"

	"github.com/ippclub/crates-mcp/internal/config"
	"github.com/ippclub/crates-mcp/internal/logger"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// Exit codes returned through ExitError.
const (
	ExitFailure = 1
	ExitUsage   = 2
)

type app struct {
	version string
}

// NewRootCmd builds the command tree. Running the root command without a
// subcommand serves MCP over stdio.
func NewRootCmd(version string) *cobra.Command {
	a := &app{version: version}

	root := &cobra.Command{
		Use:   "crates-mcp",
		Short: "MCP server for crates.io and docs.rs metadata",
		Long:  "crates-mcp answers Model Context Protocol tool calls about Rust crates using crates.io, docs.rs and the local crates.io git index.",
		// SilenceUsage prevents printing usage on every error
		SilenceUsage: true,
		RunE:         a.runServe,
	}
	root.PersistentFlags().String("config", "", "Path to a YAML or TOML config file (default: $"+config.EnvConfigPath+")")

	root.Version = version
	root.SetVersionTemplate(fmt.Sprintf("crates-mcp version %s\n", version))

	root.AddCommand(a.newServeCmd())
	root.AddCommand(a.newIndexCmd())
	return root
}

// setup loads the configuration and builds the logger.
func (a *app) setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	path, _ := cmd.Flags().GetString("config")

	var (
		cfg *config.Config
		err error
	)
	if path != "" {
		cfg, err = config.LoadFromFile(path)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, nil, exitError(ExitUsage, "failed to load config: %v", err)
	}
	if a.version != "" && a.version != "dev" {
		cfg.Server.Version = a.version
	}

	log, err := logger.InitLogger(cfg)
	if err != nil {
		return nil, nil, exitError(ExitFailure, "failed to initialize logger: %v", err)
	}
	return cfg, log, nil
}
