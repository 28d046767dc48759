// Package syncer reconciles a preset source against the record store.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync/atomic"
	"time"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/metrics"
	"github.com/starford/dagaz/internal/preset"
	"github.com/starford/dagaz/internal/source"
	"github.com/starford/dagaz/internal/store"
)

// Phases reported through the Notifier while a pass runs.
const (
	PhaseList  = "list"
	PhaseDiff  = "diff"
	PhaseApply = "apply"
)

// Summary reports what one sync pass did.
type Summary struct {
	Synced    int // files fetched and re-flattened
	Deleted   int // files removed from the store
	Unchanged int // files left untouched (marker match)
	Failed    int // files skipped after fetch or parse errors
	Files     int // files in the store after the pass
	Records   int // records in the store after the pass
	Took      time.Duration
}

// Coordinator runs List → Diff → Apply passes, one at a time.
type Coordinator struct {
	source   source.Source
	store    store.RecordStore
	logger   *slog.Logger
	notifier Notifier
	metrics  *metrics.Metrics
	running  atomic.Bool
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithNotifier wires an observer for sync progress.
func WithNotifier(n Notifier) Option {
	return func(c *Coordinator) {
		if n != nil {
			c.notifier = n
		}
	}
}

// WithMetrics wires sync instrumentation.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Coordinator) { c.metrics = m }
}

// New creates a Coordinator over the given source and store.
func New(src source.Source, st store.RecordStore, logger *slog.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{source: src, store: st, logger: logger, notifier: nopNotifier{}}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Running reports whether a pass is currently in flight.
func (c *Coordinator) Running() bool { return c.running.Load() }

// Sync runs one reconciliation pass. Only one pass runs at a time: a
// call made while another is in flight fails with apperr.ErrSyncRunning.
// With full set the per-file diff is skipped and the whole record set is
// rebuilt and swapped in atomically.
func (c *Coordinator) Sync(ctx context.Context, full bool) (Summary, error) {
	if !c.running.CompareAndSwap(false, true) {
		return Summary{}, apperr.ErrSyncRunning
	}
	defer c.running.Store(false)

	start := time.Now()
	c.notifier.SyncStarted(full)

	sum, err := c.run(ctx, full)
	sum.Took = time.Since(start)
	if err != nil {
		c.metrics.RecordSyncRun("error", sum.Took)
		c.notifier.SyncFailed(err.Error())
		return sum, err
	}

	if st, stErr := c.store.Status(); stErr == nil {
		sum.Files = st.Files
		sum.Records = st.Records
		c.metrics.UpdateStoreStats(st.Files, st.Records)
	}
	c.metrics.RecordSyncRun("success", sum.Took)
	c.notifier.SyncCompleted(sum.Files, sum.Records)
	if full || sum.Synced > 0 || sum.Deleted > 0 {
		c.notifier.DataRefreshed()
	}
	c.logger.Info("sync: completed",
		slog.Bool("full", full),
		slog.Int("synced", sum.Synced),
		slog.Int("deleted", sum.Deleted),
		slog.Int("unchanged", sum.Unchanged),
		slog.Int("failed", sum.Failed),
		slog.Int("files", sum.Files),
		slog.Int("records", sum.Records),
		slog.Duration("took", sum.Took))
	return sum, nil
}

func (c *Coordinator) run(ctx context.Context, full bool) (Summary, error) {
	c.notifier.SyncPhase(PhaseList, "listing preset files")
	listing, err := c.source.List(ctx)
	if err != nil {
		// A bad listing aborts the pass before the store is touched.
		return Summary{}, fmt.Errorf("syncer: list source: %w", err)
	}

	if full {
		return c.rebuild(ctx, listing)
	}

	c.notifier.SyncPhase(PhaseDiff, "comparing against stored markers")
	metas, err := c.store.FileMetas()
	if err != nil {
		return Summary{}, fmt.Errorf("syncer: load file metas: %w", err)
	}
	pl := diff(listing, metas)
	c.logger.Debug("sync: plan",
		slog.Int("to_sync", len(pl.toSync)),
		slog.Int("to_delete", len(pl.toDelete)),
		slog.Int("unchanged", pl.unchanged))
	return c.apply(ctx, pl)
}

// plan is the outcome of comparing a source listing against stored
// per-file markers.
type plan struct {
	toSync    []source.FileInfo
	toDelete  []string
	unchanged int
}

// diff decides per file: new files and files whose marker changed sync,
// stored files missing from the listing are deleted, marker matches are
// left untouched.
func diff(listing []source.FileInfo, metas map[string]store.FileMeta) plan {
	var pl plan
	seen := make(map[string]struct{}, len(listing))
	for _, fi := range listing {
		seen[fi.Name] = struct{}{}
		if meta, ok := metas[fi.Name]; ok && meta.ChangeMarker == fi.Marker {
			pl.unchanged++
			continue
		}
		pl.toSync = append(pl.toSync, fi)
	}
	for name := range metas {
		if _, ok := seen[name]; !ok {
			pl.toDelete = append(pl.toDelete, name)
		}
	}
	sort.Strings(pl.toDelete)
	return pl
}

func (c *Coordinator) apply(ctx context.Context, pl plan) (Summary, error) {
	c.notifier.SyncPhase(PhaseApply, fmt.Sprintf("syncing %d files, deleting %d", len(pl.toSync), len(pl.toDelete)))
	sum := Summary{Unchanged: pl.unchanged}

	for _, name := range pl.toDelete {
		if err := c.store.DeleteFile(name); err != nil {
			return sum, fmt.Errorf("syncer: delete %s: %w", name, err)
		}
		sum.Deleted++
		c.logger.Debug("sync: removed stale file", slog.String("file", name))
	}

	total := len(pl.toSync)
	for i, fi := range pl.toSync {
		records, err := c.loadFile(ctx, fi.Name)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			// The file is skipped; whatever was stored for it before
			// stays in place.
			sum.Failed++
			c.metrics.RecordFileSkipped()
			c.logSkipped(fi.Name, err)
			continue
		}
		meta := store.FileMeta{
			FileName:     fi.Name,
			ChangeMarker: fi.Marker,
			RecordCount:  len(records),
			SyncedAt:     time.Now(),
		}
		if err := c.store.ReplaceFile(meta, records); err != nil {
			return sum, fmt.Errorf("syncer: store %s: %w", fi.Name, err)
		}
		sum.Synced++
		c.notifier.SyncProgress(PhaseApply, i+1, total)
	}

	if err := c.finishPass(); err != nil {
		return sum, err
	}
	return sum, nil
}

// rebuild fetches every listed file and swaps the whole record set in
// one atomic replace. Files that fail to fetch or parse are dropped from
// the new set.
func (c *Coordinator) rebuild(ctx context.Context, listing []source.FileInfo) (Summary, error) {
	c.notifier.SyncPhase(PhaseApply, fmt.Sprintf("rebuilding %d files", len(listing)))
	var sum Summary
	now := time.Now()
	files := make([]store.FileRecords, 0, len(listing))
	total := len(listing)

	for i, fi := range listing {
		records, err := c.loadFile(ctx, fi.Name)
		if err != nil {
			if ctx.Err() != nil {
				return sum, ctx.Err()
			}
			sum.Failed++
			c.metrics.RecordFileSkipped()
			c.logSkipped(fi.Name, err)
			continue
		}
		files = append(files, store.FileRecords{
			Meta: store.FileMeta{
				FileName:     fi.Name,
				ChangeMarker: fi.Marker,
				RecordCount:  len(records),
				SyncedAt:     now,
			},
			Records: records,
		})
		sum.Synced++
		c.notifier.SyncProgress(PhaseApply, i+1, total)
	}

	if err := c.store.ReplaceAll(files, time.Now()); err != nil {
		return sum, fmt.Errorf("syncer: replace all: %w", err)
	}
	return sum, nil
}

// loadFile fetches and flattens one preset file.
func (c *Coordinator) loadFile(ctx context.Context, name string) ([]preset.Record, error) {
	data, err := c.source.Fetch(ctx, name)
	if err != nil {
		return nil, err
	}
	return preset.FlattenJSON(data, name)
}

// logSkipped records a per-file failure. A file can legitimately vanish
// between the listing and its fetch; the next pass deletes it through
// the diff, so that case is logged apart from real read errors.
func (c *Coordinator) logSkipped(name string, err error) {
	if errors.Is(err, apperr.ErrNotFound) {
		c.logger.Warn("sync: file vanished since listing", slog.String("file", name))
		return
	}
	c.logger.Warn("sync: file skipped", slog.String("file", name), slog.String("error", err.Error()))
}

// finishPass overwrites the sync summary row, which also flips an empty
// store to ready on its first completed pass.
func (c *Coordinator) finishPass() error {
	st, err := c.store.Status()
	if err != nil {
		return fmt.Errorf("syncer: read store status: %w", err)
	}
	meta := store.SyncMeta{FileCount: st.Files, RecordCount: st.Records, SyncedAt: time.Now()}
	if err := c.store.SetSyncMeta(meta); err != nil {
		return fmt.Errorf("syncer: save sync meta: %w", err)
	}
	return nil
}
