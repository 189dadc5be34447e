package commands

import (
	"github.com/spf13/cobra"

	"itp/internal/domain"
	"itp/internal/ui"
)

// CoverageCommand handles the coverage command
type CoverageCommand struct {
	open      Opener
	formatter *ui.Formatter
}

// NewCoverageCommand creates a new CoverageCommand
func NewCoverageCommand(open Opener, formatter *ui.Formatter) *CoverageCommand {
	return &CoverageCommand{open: open, formatter: formatter}
}

// Execute runs the command
func (cc *CoverageCommand) Execute(cmd *cobra.Command, args []string) error {
	ws, err := cc.open()
	if err != nil {
		return err
	}
	defer ws.Close()

	state, err := ws.Session.State(commandContext(cmd))
	if err != nil {
		return err
	}
	var report *domain.CoverageReport
	if state != nil {
		report = state.Coverage
	}
	cc.formatter.PrintCoverage(report)
	return nil
}
