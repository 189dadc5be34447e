package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"itp/internal/domain"
)

// fileConfig is the shape shared by .itp.yaml and pyproject's [tool.itp].
// Pointers distinguish an absent key from a zero value.
type fileConfig struct {
	Runner          *string        `yaml:"runner" toml:"runner"`
	RunnerArgs      []string       `yaml:"runner_args" toml:"runner_args"`
	Processors      *int           `yaml:"processors" toml:"processors"`
	StateDir        *string        `yaml:"state_dir" toml:"state_dir"`
	Ignore          []string       `yaml:"ignore" toml:"ignore"`
	IgnoreDirs      []string       `yaml:"ignore_dirs" toml:"ignore_dirs"`
	TestFiles       []string       `yaml:"test_files" toml:"test_files"`
	Selective       *bool          `yaml:"selective" toml:"selective"`
	MemoryProfiling *bool          `yaml:"memory_profiling" toml:"memory_profiling"`
	History         *historyConfig `yaml:"history" toml:"history"`
}

type historyConfig struct {
	Backend *string `yaml:"backend" toml:"backend"`
	Driver  *string `yaml:"driver" toml:"driver"`
	DSN     *string `yaml:"dsn" toml:"dsn"`
}

type pyproject struct {
	Tool struct {
		ITP    fileConfig `toml:"itp"`
		Pytest struct {
			IniOptions struct {
				PythonFiles interface{} `toml:"python_files"`
			} `toml:"ini_options"`
		} `toml:"pytest"`
	} `toml:"tool"`
}

// LoadProject layers pyproject.toml, .itp.yaml, .env and ITP_* variables
// over the current values, in that order. Missing files are skipped.
func (c *Config) LoadProject() error {
	if err := c.loadPyproject(filepath.Join(c.ProjectPath, PyprojectFile)); err != nil {
		return err
	}
	if err := c.loadYAML(filepath.Join(c.ProjectPath, ProjectConfigFile)); err != nil {
		return err
	}
	return c.loadEnv(filepath.Join(c.ProjectPath, EnvFile))
}

func (c *Config) loadPyproject(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &domain.ConfigurationError{Reason: "reading " + PyprojectFile, Err: err}
	}

	var doc pyproject
	if _, err := toml.Decode(string(data), &doc); err != nil {
		return &domain.ConfigurationError{Reason: "parsing " + PyprojectFile, Err: err}
	}

	if patterns := pythonFiles(doc.Tool.Pytest.IniOptions.PythonFiles); len(patterns) > 0 {
		c.TestFilePatterns = patterns
	}
	c.apply(doc.Tool.ITP)
	return nil
}

// pythonFiles accepts pytest's python_files as either a whitespace separated
// string or an array of strings.
func pythonFiles(v interface{}) []string {
	switch val := v.(type) {
	case string:
		return strings.Fields(val)
	case []interface{}:
		var out []string
		for _, item := range val {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return &domain.ConfigurationError{Reason: "reading " + ProjectConfigFile, Err: err}
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return &domain.ConfigurationError{Reason: "parsing " + ProjectConfigFile, Err: err}
	}
	c.apply(fc)
	return nil
}

func (c *Config) apply(fc fileConfig) {
	if fc.Runner != nil {
		c.RunnerPath = *fc.Runner
	}
	if fc.RunnerArgs != nil {
		c.RunnerArgs = fc.RunnerArgs
	}
	if fc.Processors != nil && *fc.Processors > 0 {
		c.Processors = *fc.Processors
	}
	if fc.StateDir != nil && *fc.StateDir != "" {
		c.StateDir = *fc.StateDir
	}
	c.IgnoreGlobs = append(c.IgnoreGlobs, fc.Ignore...)
	c.PathsToIgnore = append(c.PathsToIgnore, fc.IgnoreDirs...)
	if len(fc.TestFiles) > 0 {
		c.TestFilePatterns = fc.TestFiles
	}
	if fc.Selective != nil {
		c.Selective = *fc.Selective
	}
	if fc.MemoryProfiling != nil {
		c.MemoryProfiling = *fc.MemoryProfiling
	}
	if h := fc.History; h != nil {
		if h.Backend != nil {
			c.History.Backend = *h.Backend
		}
		if h.Driver != nil {
			c.History.Driver = *h.Driver
		}
		if h.DSN != nil {
			c.History.DSN = *h.DSN
		}
	}
}

// loadEnv reads the .env file without overriding variables already set in the
// process, then applies ITP_* variables.
func (c *Config) loadEnv(path string) error {
	if _, err := os.Stat(path); err == nil {
		if err := godotenv.Load(path); err != nil {
			return &domain.ConfigurationError{Reason: "loading " + EnvFile, Err: err}
		}
	}

	if v := os.Getenv("ITP_RUNNER"); v != "" {
		c.RunnerPath = v
	}
	if v := os.Getenv("ITP_RUNNER_ARGS"); v != "" {
		c.RunnerArgs = strings.Fields(v)
	}
	if v := os.Getenv("ITP_PROCESSORS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return &domain.ConfigurationError{Reason: fmt.Sprintf("ITP_PROCESSORS must be a positive integer, got %q", v)}
		}
		c.Processors = n
	}
	for name, dst := range map[string]*bool{
		"ITP_SELECTIVE": &c.Selective,
		"ITP_MEMORY":    &c.MemoryProfiling,
		"ITP_VERBOSE":   &c.Verbose,
	} {
		v := os.Getenv(name)
		if v == "" {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return &domain.ConfigurationError{Reason: fmt.Sprintf("%s must be a boolean, got %q", name, v), Err: err}
		}
		*dst = b
	}
	if v := os.Getenv("ITP_HISTORY_BACKEND"); v != "" {
		c.History.Backend = v
	}
	if v := os.Getenv("ITP_HISTORY_DRIVER"); v != "" {
		c.History.Driver = v
	}
	if v := os.Getenv("ITP_HISTORY_DSN"); v != "" {
		c.History.DSN = v
	}
	return nil
}
