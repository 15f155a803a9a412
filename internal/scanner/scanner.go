// Package scanner implements the scan orchestrator: directory discovery,
// hash-based change detection, a bounded worker pool fanning out the
// ingestion pipeline, bulk catalog insertion, and phase-by-phase progress
// events. The worker-pool and progress-channel shape follows the bounded
// goroutine pool / single progress channel pattern used throughout the
// teacher's scanner package.
package scanner

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mantonx/liveset-cataloger/internal/catalog"
	"github.com/mantonx/liveset-cataloger/internal/events"
	"github.com/mantonx/liveset-cataloger/internal/ingest"
	"github.com/mantonx/liveset-cataloger/internal/logger"
)

// Config tunes the orchestrator. WorkerCount defaults to 4 when zero or
// negative.
type Config struct {
	Roots            []string
	WorkerCount      int
	PluginDBDir      string
	AdaptiveThrottle bool
}

// FileOutcome is the per-file result collected during the Parsing phase.
type FileOutcome struct {
	Path  string
	Error error
}

// Orchestrator owns one scan run's lifecycle: discovery, preprocessing,
// parsing, insertion. It is not reused across runs.
type Orchestrator struct {
	store     *catalog.Store
	bus       *events.Bus
	cfg       Config
	cancel    atomic.Bool
	throttler *throttler
}

func New(store *catalog.Store, bus *events.Bus, cfg Config) *Orchestrator {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = 4
	}
	return &Orchestrator{store: store, bus: bus, cfg: cfg, throttler: newThrottler(cfg.AdaptiveThrottle)}
}

// Cancel requests cooperative cancellation; observed between files, never
// mid-parse.
func (o *Orchestrator) Cancel() { o.cancel.Store(true) }

func (o *Orchestrator) cancelled() bool { return o.cancel.Load() }

// Run executes all six phases and returns the file outcomes from Parsing.
func (o *Orchestrator) Run(ctx context.Context) ([]FileOutcome, error) {
	o.emit(events.PhaseStarting, 0, 0, "starting scan")

	candidates := o.discover()
	o.emit(events.PhaseDiscovering, 0, int64(len(candidates)), "discovery complete")

	if o.cancelled() {
		return nil, nil
	}

	changed, unchanged := o.preprocess(candidates)
	o.emit(events.PhasePreprocessing, int64(len(unchanged)), int64(len(candidates)),
		"preprocessing complete")

	pluginDB, err := ingest.OpenPluginDB(o.cfg.PluginDBDir)
	if err != nil {
		logger.Warn("plugin database unavailable, plugins will be marked not-installed", "error", err)
		pluginDB = nil
	}
	defer pluginDB.Close()

	outcomes := o.parse(ctx, changed, pluginDB, int64(len(candidates)))

	o.store.ResetPluginCache()
	o.emit(events.PhaseInserting, int64(len(candidates)), int64(len(candidates)), "inserting results")

	var errMsgs []string
	for _, oc := range outcomes {
		if oc.Error != nil {
			errMsgs = append(errMsgs, oc.Path+": "+oc.Error.Error())
		}
	}

	o.bus.PublishScanProgress(events.ScanProgress{
		Completed: int64(len(candidates)),
		Total:     int64(len(candidates)),
		Fraction:  1.0,
		Message:   "scan complete",
		Phase:     events.PhaseCompleted,
		Errors:    errMsgs,
	})

	return outcomes, nil
}

// discover walks all configured roots collecting candidate project files,
// skipping backup files.
func (o *Orchestrator) discover() []string {
	var candidates []string
	for _, root := range o.cfg.Roots {
		_ = filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
			if err != nil || info.IsDir() {
				return nil
			}
			if filepath.Ext(path) != ingest.ProjectExtension {
				return nil
			}
			if ingest.IsBackupFile(filepath.Base(path)) {
				return nil
			}
			candidates = append(candidates, path)
			return nil
		})
	}
	return candidates
}

type candidateFile struct {
	path string
	hash string
}

// preprocess computes hashes and partitions into changed (needs parsing)
// vs unchanged (hash matches what the catalog already has).
func (o *Orchestrator) preprocess(paths []string) (changed []candidateFile, unchanged []string) {
	for _, p := range paths {
		hash, err := ingest.FileHash(p)
		if err != nil {
			continue
		}
		if o.store.HashUnchanged(p, hash) {
			unchanged = append(unchanged, p)
			continue
		}
		changed = append(changed, candidateFile{path: p, hash: hash})
	}
	return changed, unchanged
}

// parse fans candidateFiles out across a bounded worker pool running the
// full ingestion pipeline, then bulk-upserts successes under the catalog's
// single-writer transaction per file.
func (o *Orchestrator) parse(ctx context.Context, files []candidateFile, pluginDB *ingest.PluginDBReader, total int64) []FileOutcome {
	work := make(chan candidateFile)
	results := make(chan FileOutcome)

	var wg sync.WaitGroup
	for i := 0; i < o.cfg.WorkerCount; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for cf := range work {
				if o.cancelled() {
					return
				}
				results <- o.parseOne(cf, pluginDB)
			}
		}()
	}

	throttleCh := o.throttler.watch(ctx, 5*time.Second)

	go func() {
		defer close(work)
		for _, cf := range files {
			if o.cancelled() {
				return
			}
			select {
			case pause := <-throttleCh:
				if pause {
					logger.Warn("memory pressure detected, pausing dispatch briefly")
					time.Sleep(2 * time.Second)
				}
			default:
			}
			select {
			case work <- cf:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var outcomes []FileOutcome
	var completed int64
	for oc := range results {
		outcomes = append(outcomes, oc)
		completed++
		o.bus.PublishScanProgress(events.ScanProgress{
			Completed: completed,
			Total:     total,
			Fraction:  float64(completed) / float64(max64(total, 1)),
			Message:   oc.Path,
			Phase:     events.PhaseParsing,
		})
	}
	return outcomes
}

func (o *Orchestrator) parseOne(cf candidateFile, pluginDB *ingest.PluginDBReader) FileOutcome {
	finalized, version, err := ingest.IngestFile(cf.path, pluginDB)
	if err != nil {
		return FileOutcome{Path: cf.path, Error: err}
	}

	info, statErr := os.Stat(cf.path)
	var mtime time.Time
	if statErr == nil {
		mtime = info.ModTime()
	}

	_, err = o.store.UpsertProject(catalog.UpsertProjectInput{
		Path:       cf.path,
		Hash:       cf.hash,
		Name:       filepath.Base(cf.path),
		CreatedAt:  mtime,
		ModifiedAt: mtime,
		Project:    finalized,
		Version:    version,
	})
	if err != nil {
		return FileOutcome{Path: cf.path, Error: err}
	}
	return FileOutcome{Path: cf.path}
}

func (o *Orchestrator) emit(phase events.ScanPhase, completed, total int64, message string) {
	fraction := 0.0
	if total > 0 {
		fraction = float64(completed) / float64(total)
	}
	o.bus.PublishScanProgress(events.ScanProgress{
		Completed: completed,
		Total:     total,
		Fraction:  fraction,
		Message:   message,
		Phase:     phase,
	})
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
