package commands

import (
	"github.com/spf13/cobra"

	"itp/internal/history"
	"itp/internal/ui"
)

// SnapshotCommand handles the snapshot command
type SnapshotCommand struct {
	open      Opener
	formatter *ui.Formatter
	processor *history.Processor
}

// NewSnapshotCommand creates a new SnapshotCommand
func NewSnapshotCommand(open Opener, formatter *ui.Formatter, processor *history.Processor) *SnapshotCommand {
	return &SnapshotCommand{open: open, formatter: formatter, processor: processor}
}

// Execute runs the command
func (sc *SnapshotCommand) Execute(cmd *cobra.Command, args []string) error {
	ws, err := sc.open()
	if err != nil {
		return err
	}
	defer ws.Close()

	snap, err := ws.Session.SaveSnapshot(commandContext(cmd))
	if err != nil {
		return err
	}
	sc.formatter.PrintSnapshot(sc.processor.Summarize(snap))
	return nil
}
