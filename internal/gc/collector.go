// Package gc deletes stored blobs that a document export no longer
// references.
//
// The live set comes only from the export the caller supplies. An export
// that omits pages still in use makes their blobs look orphaned; callers must
// pass a complete export. A blob uploaded after List but not yet mentioned in
// the export can also be collected; a blob is only protected once the export
// that references it is passed in, which happens strictly after its upload.
package gc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"cosensync/internal/blobstore"
	"cosensync/internal/extract"
)

// Recorder persists the outcome of each run.
type Recorder interface {
	RecordRun(ctx context.Context, result Result) error
}

// Options configures a Collector.
type Options struct {
	Logger   *slog.Logger
	Recorder Recorder
}

// Collector reconciles a blob store against a document export.
//
// Thread Safety: Safe for concurrent use; it holds no mutable state.
type Collector struct {
	store    blobstore.BlobStore
	logger   *slog.Logger
	recorder Recorder
}

// Failure is one orphan that could not be deleted.
type Failure struct {
	ID  string
	Err error
}

// Result reports one run.
type Result struct {
	StartedAt       time.Time
	FinishedAt      time.Time
	DryRun          bool
	ReferencedCount int
	StoredCount     int
	// Orphans are stored identifiers absent from the export, sorted.
	Orphans []string
	// Deleted holds only identifiers whose deletion succeeded.
	Deleted []string
	Failed  []Failure
}

// DeletedCount returns len(Deleted).
func (r Result) DeletedCount() int {
	return len(r.Deleted)
}

// Duration returns the run duration.
func (r Result) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return time.Since(r.StartedAt)
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Summary returns a one-line description of the run.
func (r Result) Summary() string {
	return fmt.Sprintf("referenced=%d stored=%d orphaned=%d deleted=%d failed=%d dry_run=%t duration=%s",
		r.ReferencedCount, r.StoredCount, len(r.Orphans), len(r.Deleted), len(r.Failed), r.DryRun, r.Duration())
}

// New creates a Collector over store.
func New(store blobstore.BlobStore, opts Options) *Collector {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Collector{store: store, logger: logger, recorder: opts.Recorder}
}

// Collect deletes every stored blob not referenced by doc.
func (c *Collector) Collect(ctx context.Context, doc extract.Document) (Result, error) {
	return c.run(ctx, doc, true)
}

// DryRun reports what Collect would delete without deleting anything.
func (c *Collector) DryRun(ctx context.Context, doc extract.Document) (Result, error) {
	return c.run(ctx, doc, false)
}

// CollectPayload parses payload and collects against it. A payload that is
// not JSON returns an *extract.ParseError and leaves the store untouched.
func (c *Collector) CollectPayload(ctx context.Context, payload []byte, dryRun bool) (Result, error) {
	doc, err := extract.Parse(payload)
	if err != nil {
		return Result{DryRun: dryRun}, err
	}
	return c.run(ctx, doc, !dryRun)
}

func (c *Collector) run(ctx context.Context, doc extract.Document, apply bool) (Result, error) {
	result := Result{
		StartedAt: time.Now().UTC(),
		DryRun:    !apply,
		Orphans:   []string{},
		Deleted:   []string{},
	}
	if c == nil || c.store == nil {
		return result, fmt.Errorf("gc: blob store is not configured")
	}

	live := extract.Extract(doc)
	result.ReferencedCount = live.Len()

	stored, err := c.store.List(ctx)
	if err != nil {
		return result, fmt.Errorf("gc: list blobs: %w", err)
	}
	result.StoredCount = len(stored)
	result.Orphans = orphans(stored, live)

	c.logger.Info("gc scan complete",
		"referenced", result.ReferencedCount,
		"stored", result.StoredCount,
		"orphaned", len(result.Orphans),
		"dry_run", result.DryRun,
	)

	if apply {
		if err := c.deleteAll(ctx, &result); err != nil {
			result.FinishedAt = time.Now().UTC()
			return result, err
		}
	}

	result.FinishedAt = time.Now().UTC()
	c.logger.Info("gc complete", "summary", result.Summary())

	if c.recorder != nil {
		if err := c.recorder.RecordRun(ctx, result); err != nil {
			c.logger.Warn("gc record run", "error", err)
		}
	}
	return result, nil
}

// deleteAll attempts every orphan independently. Per-item failures are
// collected; only cancellation stops the loop.
func (c *Collector) deleteAll(ctx context.Context, result *Result) error {
	for _, id := range result.Orphans {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := c.store.Delete(ctx, id); err != nil {
			result.Failed = append(result.Failed, Failure{ID: id, Err: err})
			if errors.Is(err, blobstore.ErrNotFound) {
				c.logger.Debug("gc orphan already gone", "id", id)
				continue
			}
			c.logger.Warn("gc delete failed", "id", id, "error", err)
			continue
		}
		result.Deleted = append(result.Deleted, id)
		c.logger.Debug("gc deleted", "id", id)
	}
	return nil
}

// orphans returns stored \ live, sorted.
func orphans(stored []string, live extract.ReferenceSet) []string {
	out := make([]string, 0, len(stored))
	seen := make(map[string]struct{}, len(stored))
	for _, id := range stored {
		if live.Has(id) {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
