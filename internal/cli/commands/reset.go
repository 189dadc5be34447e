package commands

import (
	"github.com/spf13/cobra"

	"itp/internal/logger"
)

// ResetCommand handles the reset command
type ResetCommand struct {
	open Opener
	log  logger.Logger
}

// NewResetCommand creates a new ResetCommand
func NewResetCommand(open Opener, log logger.Logger) *ResetCommand {
	return &ResetCommand{open: open, log: log}
}

// Execute runs the command
func (rc *ResetCommand) Execute(cmd *cobra.Command, args []string) error {
	ws, err := rc.open()
	if err != nil {
		return err
	}
	defer ws.Close()

	if err := ws.Session.Reset(commandContext(cmd)); err != nil {
		return err
	}
	rc.log.Info("stored results cleared, the next run is a full run")
	return nil
}
