package commands

import (
	"github.com/spf13/cobra"

	"itp/internal/config"
	"itp/internal/discovery"
	"itp/internal/domain"
	"itp/internal/session"
	"itp/internal/ui"
)

// ListCommand handles the list command
type ListCommand struct {
	config    *config.Config
	open      Opener
	formatter *ui.Formatter
}

// NewListCommand creates a new ListCommand
func NewListCommand(cfg *config.Config, open Opener, formatter *ui.Formatter) *ListCommand {
	return &ListCommand{
		config:    cfg,
		open:      open,
		formatter: formatter,
	}
}

// Execute runs the command
func (lc *ListCommand) Execute(cmd *cobra.Command, args []string) error {
	ws, err := lc.open()
	if err != nil {
		return err
	}
	defer ws.Close()

	plan, err := ws.Session.Plan(commandContext(cmd), session.RunOptions{
		Full:   lc.config.Flags.Full,
		Filter: lc.config.Flags.NameFilter,
	})
	if err != nil {
		return err
	}

	if lc.config.Flags.Changed {
		lc.formatter.PrintPlan(plan)
		return nil
	}

	var recorded domain.ResultTable
	if plan.Prior != nil {
		recorded = plan.Prior.Results
	}
	tests := discovery.NewFilter().FilterTests(plan.Fingerprint.Tests(), lc.config.Flags.NameFilter)
	lc.formatter.PrintTestList(tests, recorded)
	return nil
}
