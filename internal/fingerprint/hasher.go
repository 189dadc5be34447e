// Package fingerprint computes workspace content fingerprints and the
// function-level difference between two of them.
package fingerprint

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"lukechampine.com/blake3"

	"itp/internal/analyzer"
	"itp/internal/cache"
	"itp/internal/discovery"
	"itp/internal/domain"
	"itp/internal/logger"
)

// Hasher fingerprints every source file of a workspace in parallel
type Hasher struct {
	scanner  *discovery.Scanner
	analyzer analyzer.Analyzer
	cache    *cache.FileCache
	workers  int
	log      logger.Logger
}

// NewHasher creates a new Hasher. fileCache may be nil.
func NewHasher(scanner *discovery.Scanner, a analyzer.Analyzer, fileCache *cache.FileCache, workers int, log logger.Logger) *Hasher {
	if workers <= 0 {
		workers = 1
	}
	return &Hasher{
		scanner:  scanner,
		analyzer: a,
		cache:    fileCache,
		workers:  workers,
		log:      log,
	}
}

type hashResult struct {
	fp  domain.FileFingerprint
	ok  bool
	err error
}

// Hash walks root and returns the fingerprint of every source file. The
// result does not depend on the number of workers.
func (h *Hasher) Hash(ctx context.Context, root string) (domain.WorkspaceFingerprint, error) {
	files, err := h.scanner.Scan(root)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	queue := make(chan string, len(files))
	results := make(chan hashResult, len(files))
	for _, file := range files {
		queue <- file
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < h.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rel := range queue {
				if ctx.Err() != nil {
					return
				}
				fp, ok, err := h.hashFile(root, rel)
				results <- hashResult{fp: fp, ok: ok, err: err}
			}
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()

	out := make(domain.WorkspaceFingerprint, len(files))
	var firstErr error
	for res := range results {
		if res.err != nil {
			if firstErr == nil {
				firstErr = res.err
				cancel()
			}
			continue
		}
		if res.ok {
			out[res.fp.Path] = res.fp
		}
	}
	if firstErr != nil {
		return nil, firstErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	h.pruneCache(out)
	h.log.Debug("hashed workspace", "files", len(out), "functions", out.FunctionCount())
	return out, nil
}

// hashFile returns ok=false for files that vanished after the scan.
func (h *Hasher) hashFile(root, rel string) (domain.FileFingerprint, bool, error) {
	full := filepath.Join(root, filepath.FromSlash(rel))
	isTest := h.scanner.IsTestFile(rel)

	info, err := os.Stat(full)
	if errors.Is(err, os.ErrNotExist) {
		return domain.FileFingerprint{}, false, nil
	}
	if err != nil {
		return domain.FileFingerprint{}, false, fmt.Errorf("stat %s: %w", rel, err)
	}

	if h.cache != nil {
		fp, hit, err := h.cache.Get(rel, info)
		if err != nil {
			h.log.Warn("fingerprint cache read failed", "path", rel, "error", err)
		} else if hit {
			fp.IsTestFile = isTest
			return fp, true, nil
		}
	}

	content, err := os.ReadFile(full)
	if errors.Is(err, os.ErrNotExist) {
		return domain.FileFingerprint{}, false, nil
	}
	if err != nil {
		return domain.FileFingerprint{}, false, fmt.Errorf("reading %s: %w", rel, err)
	}

	fp := h.fingerprint(rel, content)
	fp.IsTestFile = isTest

	if h.cache != nil {
		if err := h.cache.Put(rel, info, fp); err != nil {
			h.log.Warn("fingerprint cache write failed", "path", rel, "error", err)
		}
	}
	return fp, true, nil
}

func (h *Hasher) fingerprint(rel string, content []byte) domain.FileFingerprint {
	sum := blake3.Sum256(content)
	fp := domain.FileFingerprint{
		Path:      rel,
		Digest:    hex.EncodeToString(sum[:]),
		Functions: map[string]string{},
		Calls:     map[string][]string{},
	}

	analysis, err := h.analyzer.Analyze(rel, content)
	if err != nil {
		h.log.Warn("analyzer failed, file has no functions this run", "path", rel, "error", err)
		return fp
	}
	fp.Functions = analysis.Functions
	fp.Calls = analysis.Calls
	return fp
}

func (h *Hasher) pruneCache(fp domain.WorkspaceFingerprint) {
	if h.cache == nil {
		return
	}
	keep := make(map[string]bool, len(fp))
	for path := range fp {
		keep[path] = true
	}
	removed, err := h.cache.Prune(keep)
	if err != nil {
		h.log.Warn("fingerprint cache prune failed", "error", err)
		return
	}
	if removed > 0 {
		h.log.Debug("pruned fingerprint cache", "removed", removed)
	}
}
