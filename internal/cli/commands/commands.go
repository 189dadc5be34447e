package commands

import (
	"errors"
	"io"

	"github.com/spf13/cobra"

	"itp/internal/cli"
	"itp/internal/config"
	"itp/internal/history"
	"itp/internal/logger"
	"itp/internal/ui"
)

// ErrTestsFailed is returned by run when the run recorded failing tests
var ErrTestsFailed = errors.New("tests failed")

// Opener opens the workspace of the loaded configuration
type Opener func() (*Workspace, error)

// Commands holds all CLI commands
type Commands struct {
	Run      *RunCommand
	List     *ListCommand
	Failures *FailuresCommand
	Coverage *CoverageCommand
	Snapshot *SnapshotCommand
	History  *HistoryCommand
	Reset    *ResetCommand

	log *logger.DefaultLogger
}

// NewCommands creates all commands with dependencies. The workspace itself
// is opened per command, after flags and project files are loaded.
func NewCommands(cfg *config.Config, out io.Writer, log *logger.DefaultLogger) *Commands {
	formatter := ui.NewFormatter(out)
	viewer := ui.NewErrorViewer()
	processor := history.NewProcessor()
	open := func() (*Workspace, error) {
		return OpenWorkspace(cfg, log)
	}

	return &Commands{
		Run:      NewRunCommand(cfg, open, formatter, viewer, log),
		List:     NewListCommand(cfg, open, formatter),
		Failures: NewFailuresCommand(open, viewer),
		Coverage: NewCoverageCommand(open, formatter),
		Snapshot: NewSnapshotCommand(open, formatter, processor),
		History:  NewHistoryCommand(cfg, open, formatter, processor),
		Reset:    NewResetCommand(open, log),
		log:      log,
	}
}

// Register registers all commands with cobra
func (c *Commands) Register(rootCmd *cobra.Command, flags *cli.Flags, cfg *config.Config) {
	rootCmd.PersistentFlags().StringVarP(&flags.Path, "path", "C", config.DefaultProjectPath, "Workspace root")
	rootCmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "Print debug logs")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		cfg.ProjectPath = flags.Path
		if err := cfg.LoadProject(); err != nil {
			return err
		}
		// flags win over project files and the environment
		cfg.ApplyFlags(flags.ToConfigFlags())
		c.log.SetVerbose(cfg.Verbose)
		return nil
	}

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the tests affected by changes since the last run",
		Long:  "Hash the workspace, select the tests whose code changed, run them with pytest and merge the results into the stored state",
		RunE:  c.Run.Execute,
	}
	runCmd.Flags().IntVarP(&flags.Processors, "processors", "p", 0, "Number of workers used to hash sources")
	runCmd.Flags().BoolVar(&flags.Full, "full", false, "Run every test and rewrite the stored results")
	runCmd.Flags().BoolVar(&flags.OnlyFailed, "failed", false, "Run only tests currently recorded as failing")
	runCmd.Flags().StringVarP(&flags.NameFilter, "filter", "f", "", "Restrict the selection by pattern (substring, '*login*' or 'tests/api/**')")
	runCmd.Flags().BoolVar(&flags.NoMemory, "no-memory", false, "Disable memory profiling for this run")
	runCmd.Flags().BoolVar(&flags.OpenFailures, "open-failures", false, "Open the failures viewer when the run finishes with failures")
	rootCmd.AddCommand(runCmd)

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List discovered tests",
		Long:  "List tests found in the workspace, or with --changed the tests the next run would execute",
		RunE:  c.List.Execute,
	}
	listCmd.Flags().StringVarP(&flags.NameFilter, "filter", "f", "", "Filter tests by pattern")
	listCmd.Flags().BoolVar(&flags.Changed, "changed", false, "Show the changes and the selection of the next run")
	listCmd.Flags().BoolVar(&flags.Full, "full", false, "Plan a full run")
	rootCmd.AddCommand(listCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "failures",
		Short: "View test failures interactively",
		Long:  "Display the tests currently recorded as failing in an interactive viewer",
		RunE:  c.Failures.Execute,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "coverage",
		Short: "Print the accumulated coverage",
		RunE:  c.Coverage.Execute,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "snapshot",
		Short: "Save the current results and coverage to the history",
		RunE:  c.Snapshot.Execute,
	})

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show the snapshot history as a trend",
		RunE:  c.History.Execute,
	}
	historyCmd.Flags().IntVarP(&flags.Last, "last", "n", 0, "Show only the last N snapshots")
	historyCmd.Flags().StringVar(&flags.Since, "since", "", "Show snapshots taken at or after this date (YYYY-MM-DD or RFC 3339)")
	historyCmd.Flags().StringVar(&flags.Until, "until", "", "Show snapshots taken at or before this date (YYYY-MM-DD or RFC 3339)")
	historyCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Delete every snapshot",
		RunE:  c.History.Clear,
	})
	rootCmd.AddCommand(historyCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "reset",
		Short: "Forget stored results so the next run is a full run",
		RunE:  c.Reset.Execute,
	})
}
