package commands

import (
	"errors"
	"fmt"

	"itp/internal/analyzer"
	"itp/internal/cache"
	"itp/internal/config"
	"itp/internal/discovery"
	"itp/internal/execution"
	"itp/internal/fingerprint"
	"itp/internal/history"
	"itp/internal/logger"
	"itp/internal/parser"
	"itp/internal/session"
	"itp/internal/storage"
)

// Workspace is the session of the configured project together with the
// resources it owns.
type Workspace struct {
	Session *session.Session
	cache   *cache.FileCache
}

// OpenWorkspace builds the pipeline for cfg. The caller must Close it.
func OpenWorkspace(cfg *config.Config, log logger.Logger) (*Workspace, error) {
	root, err := cfg.Root()
	if err != nil {
		return nil, err
	}

	scanner := discovery.NewScanner(discovery.Options{
		SkipDirs:     cfg.PathsToIgnore,
		IgnoreGlobs:  cfg.IgnoreGlobs,
		Extensions:   cfg.SourceExtensions,
		TestPatterns: cfg.TestFilePatterns,
		VenvMarker:   config.VirtualEnvMarker,
	})

	fileCache, err := cache.Open(cfg.GetCacheDir())
	if err != nil {
		log.Warn("fingerprint cache unavailable, hashing every file", "error", err)
		fileCache = nil
	}
	hasher := fingerprint.NewHasher(scanner, analyzer.NewPythonAnalyzer(), fileCache, cfg.Processors, log)

	repo, err := storage.Open(cfg.GetStatePath(), root)
	if err != nil {
		closeCache(fileCache)
		return nil, fmt.Errorf("opening state: %w", err)
	}

	store, err := history.Open(cfg)
	if err != nil {
		repo.Close()
		closeCache(fileCache)
		return nil, fmt.Errorf("opening history: %w", err)
	}

	runner := execution.NewRunner(cfg, log)
	s := session.New(cfg, hasher, repo, runner, parser.NewResultParser(log), store, log)
	return &Workspace{Session: s, cache: fileCache}, nil
}

// Close releases the session and the fingerprint cache
func (w *Workspace) Close() error {
	var cacheErr error
	if w.cache != nil {
		cacheErr = w.cache.Close()
	}
	return errors.Join(w.Session.Close(), cacheErr)
}

func closeCache(c *cache.FileCache) {
	if c != nil {
		c.Close()
	}
}
