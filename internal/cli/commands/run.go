package commands

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"itp/internal/config"
	"itp/internal/domain"
	"itp/internal/logger"
	"itp/internal/session"
	"itp/internal/ui"
)

// RunCommand handles the run command
type RunCommand struct {
	config    *config.Config
	open      Opener
	formatter *ui.Formatter
	viewer    ui.Viewer
	log       logger.Logger
}

// NewRunCommand creates a new RunCommand
func NewRunCommand(
	cfg *config.Config,
	open Opener,
	formatter *ui.Formatter,
	viewer ui.Viewer,
	log logger.Logger,
) *RunCommand {
	return &RunCommand{
		config:    cfg,
		open:      open,
		formatter: formatter,
		viewer:    viewer,
		log:       log,
	}
}

// Execute runs the command
func (rc *RunCommand) Execute(cmd *cobra.Command, args []string) error {
	if err := rc.config.Validate(); err != nil {
		return err
	}

	ws, err := rc.open()
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reporter := ui.NewReporter(os.Stderr, rc.log)
	report, err := ws.Session.Run(ctx, session.RunOptions{
		Full:       rc.config.Flags.Full,
		OnlyFailed: rc.config.Flags.OnlyFailed,
		Filter:     rc.config.Flags.NameFilter,
		Reporter:   reporter,
	})
	reporter.Finish()
	if err != nil {
		return err
	}

	rc.formatter.PrintRunSummary(report)
	if report.Cancelled || report.State == nil {
		return nil
	}

	failures := domain.Failures(report.State.Results)
	if len(failures) == 0 {
		return nil
	}
	if rc.config.Flags.OpenFailures {
		if err := rc.viewer.View(failures); err != nil {
			return err
		}
	}
	return ErrTestsFailed
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
