package config

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"itp/internal/domain"
)

// Config holds all configuration for the application
type Config struct {
	// Workspace settings
	ProjectPath string
	StateDir    string

	// Runner settings
	RunnerPath      string
	RunnerArgs      []string
	MemoryProfiling bool

	// Hashing settings
	Processors       int
	SourceExtensions []string
	PathsToIgnore    []string
	IgnoreGlobs      []string
	TestFilePatterns []string

	// Selective runs re-execute only affected tests once prior state exists
	Selective bool

	History HistoryConfig

	Verbose bool

	// Command flags
	Flags Flags
}

// HistoryConfig selects where snapshots are stored
type HistoryConfig struct {
	Backend string // "json" or "sql"
	Driver  string // "sqlite" or "mysql" for the sql backend
	DSN     string
}

// Flags holds command-line flags
type Flags struct {
	Processors   int
	Full         bool
	OnlyFailed   bool
	NameFilter   string
	NoMemory     bool
	OpenFailures bool
	Changed      bool
	Last         int
	Since        string
	Until        string
	Verbose      bool
}

// New creates a new Config with defaults
func New() *Config {
	cfg := &Config{
		ProjectPath: DefaultProjectPath,
		StateDir:    DefaultStateDir,
		Processors:  DefaultProcessors,
		Selective:   true,
		History: HistoryConfig{
			Backend: DefaultHistoryBackend,
			Driver:  DefaultHistoryDriver,
		},
		Flags: Flags{Processors: DefaultProcessors},
	}
	cfg.PathsToIgnore = append([]string(nil), DefaultPathsToIgnore...)
	cfg.SourceExtensions = append([]string(nil), DefaultSourceExtensions...)
	cfg.TestFilePatterns = append([]string(nil), DefaultTestFilePatterns...)
	return cfg
}

// ApplyFlags copies flag overrides into the config
func (c *Config) ApplyFlags(flags Flags) {
	c.Flags = flags
	if flags.Processors > 0 {
		c.Processors = flags.Processors
	}
	if flags.NoMemory {
		c.MemoryProfiling = false
	}
	if flags.Verbose {
		c.Verbose = true
	}
}

// SelectiveEnabled reports whether this invocation may run a selective run
func (c *Config) SelectiveEnabled() bool {
	return c.Selective && !c.Flags.Full
}

// Root returns the absolute workspace root
func (c *Config) Root() (string, error) {
	root, err := filepath.Abs(c.ProjectPath)
	if err != nil {
		return "", &domain.ConfigurationError{Reason: "resolving workspace root", Err: err}
	}
	info, err := os.Stat(root)
	if err != nil {
		return "", &domain.ConfigurationError{Reason: "workspace root does not exist: " + root, Err: err}
	}
	if !info.IsDir() {
		return "", &domain.ConfigurationError{Reason: "workspace root is not a directory: " + root}
	}
	return root, nil
}

// GetStateDir returns the absolute directory holding state, cache and reports
func (c *Config) GetStateDir() string {
	if filepath.IsAbs(c.StateDir) {
		return c.StateDir
	}
	root, err := filepath.Abs(c.ProjectPath)
	if err != nil {
		root = c.ProjectPath
	}
	return filepath.Join(root, c.StateDir)
}

// GetStatePath returns the path of the session state database
func (c *Config) GetStatePath() string {
	return filepath.Join(c.GetStateDir(), stateDBFile)
}

// GetCacheDir returns the directory of the fingerprint cache
func (c *Config) GetCacheDir() string {
	return filepath.Join(c.GetStateDir(), cacheDir)
}

// GetHistoryPath returns the history log location of the json backend
func (c *Config) GetHistoryPath() string {
	return filepath.Join(c.GetStateDir(), historyFile)
}

// GetHistoryDSN returns the DSN of the sql backend, defaulting to a SQLite
// file next to the other state
func (c *Config) GetHistoryDSN() string {
	if c.History.DSN != "" {
		return c.History.DSN
	}
	if c.History.Driver == "sqlite" {
		return filepath.Join(c.GetStateDir(), historyDBFile)
	}
	return ""
}

// GetReportPath returns where the runner writes the structured report
func (c *Config) GetReportPath() string {
	return filepath.Join(c.GetStateDir(), reportsDir, reportFile)
}

// GetMemoryReportPath returns where the memory profiler writes its report
func (c *Config) GetMemoryReportPath() string {
	return filepath.Join(c.GetStateDir(), reportsDir, memoryReportFile)
}

// GetCoveragePath returns where coverage writes its JSON report
func (c *Config) GetCoveragePath() string {
	return filepath.Join(c.GetStateDir(), reportsDir, coverageReportFile)
}

// GetRunnerPath resolves the test runner executable. An explicit runner is
// used as given (looked up on PATH when it has no separator); otherwise a
// virtualenv runner under the root is preferred over PATH.
func (c *Config) GetRunnerPath() (string, error) {
	if c.RunnerPath != "" {
		return lookRunner(c.RunnerPath, c.ProjectPath)
	}
	for _, venv := range []string{".venv", "venv"} {
		candidate := filepath.Join(c.ProjectPath, venv, "bin", DefaultRunner)
		if isExecutable(candidate) {
			return filepath.Abs(candidate)
		}
	}
	return lookRunner(DefaultRunner, c.ProjectPath)
}

// Validate checks that a pipeline can start: the root resolves and a runner
// executable exists.
func (c *Config) Validate() error {
	if _, err := c.Root(); err != nil {
		return err
	}
	if _, err := c.GetRunnerPath(); err != nil {
		return err
	}
	switch c.History.Backend {
	case "json", "sql":
	default:
		return &domain.ConfigurationError{Reason: fmt.Sprintf("unknown history backend %q", c.History.Backend)}
	}
	return nil
}

func lookRunner(runner, projectPath string) (string, error) {
	if strings.ContainsRune(runner, filepath.Separator) {
		if !filepath.IsAbs(runner) {
			runner = filepath.Join(projectPath, runner)
		}
		if !isExecutable(runner) {
			return "", &domain.ConfigurationError{Reason: "test runner is not executable: " + runner}
		}
		return filepath.Abs(runner)
	}
	path, err := exec.LookPath(runner)
	if err != nil {
		return "", &domain.ConfigurationError{Reason: "test runner not found: " + runner, Err: err}
	}
	return path, nil
}

func isExecutable(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir() && info.Mode()&0o111 != 0
}
