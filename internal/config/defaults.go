package config

const (
	// DefaultProjectPath is the default workspace root
	DefaultProjectPath = "."
	// DefaultStateDir holds state, cache, reports and history, relative to the root
	DefaultStateDir = ".itp"
	// DefaultProcessors is the default number of hashing workers
	DefaultProcessors = 4
	// DefaultRunner is the test runner looked up on PATH when no virtualenv runner exists
	DefaultRunner = "pytest"
	// DefaultHistoryBackend stores snapshots in a JSON file
	DefaultHistoryBackend = "json"
	// DefaultHistoryDriver is the database/sql driver of the sql history backend
	DefaultHistoryDriver = "sqlite"

	// ProjectConfigFile is the optional YAML config in the workspace root
	ProjectConfigFile = ".itp.yaml"
	// PyprojectFile is read for [tool.itp] and pytest's python_files
	PyprojectFile = "pyproject.toml"
	// EnvFile is loaded into the environment before ITP_* variables are read
	EnvFile = ".env"

	stateDBFile        = "state.db"
	historyFile        = "history.json"
	historyDBFile      = "history.db"
	cacheDir           = "cache"
	reportsDir         = "reports"
	reportFile         = "report.json"
	memoryReportFile   = "memory.json"
	coverageReportFile = "coverage.json"
)

// DefaultPathsToIgnore are directory names never descended into while hashing
var DefaultPathsToIgnore = []string{
	".venv",
	"venv",
	"env",
	".tox",
	".nox",
	"__pycache__",
	"site-packages",
	"node_modules",
	"build",
	"dist",
	DefaultStateDir,
}

// DefaultSourceExtensions are the file extensions that are fingerprinted
var DefaultSourceExtensions = []string{".py"}

// DefaultTestFilePatterns mirror pytest's default python_files
var DefaultTestFilePatterns = []string{"test_*.py", "*_test.py"}

// VirtualEnvMarker marks a directory as a virtual environment
const VirtualEnvMarker = "pyvenv.cfg"
