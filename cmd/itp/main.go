package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"itp/internal/cli"
	"itp/internal/cli/commands"
	"itp/internal/config"
	"itp/internal/logger"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "itp",
		Short:         "Incremental pytest test processor",
		Long:          `Runs only the pytest tests affected by source changes since the last run, keeping merged results, coverage and a history of snapshots.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Create initial config with defaults
	cfg := config.New()

	// Create flags struct (will be populated by command flags)
	var flags cli.Flags

	log := logger.New(os.Stderr, false)
	cmds := commands.NewCommands(cfg, os.Stdout, log)
	cmds.Register(rootCmd, &flags, cfg)

	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, commands.ErrTestsFailed) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}
