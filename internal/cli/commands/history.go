package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"itp/internal/config"
	"itp/internal/domain"
	"itp/internal/history"
	"itp/internal/ui"
)

// HistoryCommand handles the history command and its clear subcommand
type HistoryCommand struct {
	config    *config.Config
	open      Opener
	formatter *ui.Formatter
	processor *history.Processor
	now       func() time.Time
}

// NewHistoryCommand creates a new HistoryCommand
func NewHistoryCommand(cfg *config.Config, open Opener, formatter *ui.Formatter, processor *history.Processor) *HistoryCommand {
	return &HistoryCommand{
		config:    cfg,
		open:      open,
		formatter: formatter,
		processor: processor,
		now:       time.Now,
	}
}

// Execute prints the trend of the selected snapshots
func (hc *HistoryCommand) Execute(cmd *cobra.Command, args []string) error {
	ws, err := hc.open()
	if err != nil {
		return err
	}
	defer ws.Close()

	ctx := commandContext(cmd)
	flags := hc.config.Flags

	var snaps []domain.Snapshot
	if flags.Since != "" || flags.Until != "" {
		start, end, err := dateRange(flags.Since, flags.Until, hc.now())
		if err != nil {
			return err
		}
		snaps, err = ws.Session.SnapshotsByDate(ctx, start, end)
		if err != nil {
			return err
		}
		if flags.Last > 0 && len(snaps) > flags.Last {
			snaps = snaps[len(snaps)-flags.Last:]
		}
	} else {
		snaps, err = ws.Session.Snapshots(ctx, flags.Last)
		if err != nil {
			return err
		}
	}

	hc.formatter.PrintTrend(hc.processor.Trend(snaps))
	return nil
}

// Clear deletes every snapshot
func (hc *HistoryCommand) Clear(cmd *cobra.Command, args []string) error {
	ws, err := hc.open()
	if err != nil {
		return err
	}
	defer ws.Close()

	return ws.Session.ClearHistory(commandContext(cmd))
}

// dateRange resolves --since/--until. A bare date as the upper bound covers
// that whole day.
func dateRange(since, until string, now time.Time) (time.Time, time.Time, error) {
	start := time.Time{}
	end := now
	if since != "" {
		t, _, err := parseDate(since)
		if err != nil {
			return start, end, fmt.Errorf("invalid --since: %w", err)
		}
		start = t
	}
	if until != "" {
		t, dayOnly, err := parseDate(until)
		if err != nil {
			return start, end, fmt.Errorf("invalid --until: %w", err)
		}
		if dayOnly {
			t = t.AddDate(0, 0, 1).Add(-time.Nanosecond)
		}
		end = t
	}
	if end.Before(start) {
		return start, end, fmt.Errorf("--until is before --since")
	}
	return start, end, nil
}

func parseDate(s string) (time.Time, bool, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, false, nil
	}
	t, err := time.ParseInLocation("2006-01-02", s, time.Local)
	if err != nil {
		return time.Time{}, false, err
	}
	return t, true, nil
}
