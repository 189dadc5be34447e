package commands

import (
	"github.com/spf13/cobra"

	"itp/internal/domain"
	"itp/internal/ui"
)

// FailuresCommand handles the failures command
type FailuresCommand struct {
	open   Opener
	viewer ui.Viewer
}

// NewFailuresCommand creates a new FailuresCommand
func NewFailuresCommand(open Opener, viewer ui.Viewer) *FailuresCommand {
	return &FailuresCommand{
		open:   open,
		viewer: viewer,
	}
}

// Execute runs the command
func (fc *FailuresCommand) Execute(cmd *cobra.Command, args []string) error {
	ws, err := fc.open()
	if err != nil {
		return err
	}
	defer ws.Close()

	state, err := ws.Session.State(commandContext(cmd))
	if err != nil {
		return err
	}
	var table domain.ResultTable
	if state != nil {
		table = state.Results
	}
	return fc.viewer.View(domain.Failures(table))
}
