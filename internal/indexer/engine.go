// Package indexer owns the write path of the search index: tokenizing
// documents, replacing their postings in the store, and full rebuilds.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/tokenizer"
	apperrors "github.com/Adithya-Monish-Kumar-K/note-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/tracing"
)

const lockStripes = 64

// rebuildLeaseTTL bounds how long a crashed process can block rebuilds
// elsewhere; a live holder renews its lease.
const rebuildLeaseTTL = 30 * time.Second

// RebuildStats summarises one full rebuild.
type RebuildStats struct {
	Indexed    int64         `json:"indexed"`
	Skipped    int64         `json:"skipped"`
	Failed     int64         `json:"failed"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration"`
	Successful bool          `json:"successful"`
}

type Engine struct {
	store     index.Store
	tokenizer *tokenizer.Tokenizer
	metrics   *metrics.Metrics
	workers   int
	logger    *slog.Logger

	locks      [lockStripes]sync.Mutex
	rebuilding atomic.Bool

	lastMu      sync.RWMutex
	lastRebuild *RebuildStats
}

func NewEngine(store index.Store, tok *tokenizer.Tokenizer, m *metrics.Metrics, workers int) *Engine {
	if workers < 1 {
		workers = 1
	}
	return &Engine{
		store:     store,
		tokenizer: tok,
		metrics:   m,
		workers:   workers,
		logger:    slog.Default().With("component", "indexer"),
	}
}

// IndexDocument replaces the postings of id with the terms of text. A text
// with no indexable terms still drops any previous postings and then
// reports ErrInvalidDocument.
func (e *Engine) IndexDocument(ctx context.Context, id int64, text string) error {
	freqs := e.tokenizer.Frequencies(text)

	mu := e.lockFor(id)
	mu.Lock()
	err := e.store.Replace(ctx, id, freqs)
	mu.Unlock()

	if err != nil {
		e.metrics.DocsIndexedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("indexing document %d: %w", id, err)
	}
	if len(freqs) == 0 {
		e.metrics.DocsIndexedTotal.WithLabelValues("invalid").Inc()
		return fmt.Errorf("%w: document %d has no indexable terms", apperrors.ErrInvalidDocument, id)
	}
	e.metrics.DocsIndexedTotal.WithLabelValues("ok").Inc()
	e.logger.Debug("document indexed", "doc_id", id, "terms", len(freqs))
	return nil
}

// RemoveDocument drops every posting of id. Removing an unknown id succeeds.
func (e *Engine) RemoveDocument(ctx context.Context, id int64) error {
	mu := e.lockFor(id)
	mu.Lock()
	err := e.store.Replace(ctx, id, nil)
	mu.Unlock()

	if err != nil {
		e.metrics.DocsRemovedTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("removing document %d: %w", id, err)
	}
	e.metrics.DocsRemovedTotal.WithLabelValues("ok").Inc()
	e.logger.Debug("document removed", "doc_id", id)
	return nil
}

// Rebuild clears the index and re-indexes every document from src. Only
// one rebuild runs at a time across every process sharing the store; a
// concurrent call gets ErrRebuildInProgress.
func (e *Engine) Rebuild(ctx context.Context, src DocumentSource) (RebuildStats, error) {
	lease, err := e.beginRebuild(ctx)
	if err != nil {
		return RebuildStats{}, err
	}
	defer e.endRebuild(ctx, lease)
	return e.rebuild(ctx, src)
}

// RebuildAsync starts a rebuild in the background and calls done, if set,
// when it finishes. It returns ErrRebuildInProgress synchronously.
func (e *Engine) RebuildAsync(ctx context.Context, src DocumentSource, done func(RebuildStats, error)) error {
	lease, err := e.beginRebuild(ctx)
	if err != nil {
		return err
	}
	go func() {
		defer e.endRebuild(ctx, lease)
		stats, err := e.rebuild(ctx, src)
		if done != nil {
			done(stats, err)
		}
	}()
	return nil
}

// beginRebuild claims the in-process flag and then the store's lease.
func (e *Engine) beginRebuild(ctx context.Context) (index.Lease, error) {
	if !e.rebuilding.CompareAndSwap(false, true) {
		e.metrics.RebuildsTotal.WithLabelValues("rejected").Inc()
		return nil, apperrors.ErrRebuildInProgress
	}
	lease, err := e.store.AcquireRebuildLease(ctx, rebuildLeaseTTL)
	if err != nil {
		e.rebuilding.Store(false)
		if errors.Is(err, apperrors.ErrRebuildInProgress) {
			e.metrics.RebuildsTotal.WithLabelValues("rejected").Inc()
			e.logger.Info("rebuild rejected, another process holds the lease")
			return nil, err
		}
		return nil, fmt.Errorf("acquiring rebuild lease: %w", err)
	}
	return lease, nil
}

func (e *Engine) endRebuild(ctx context.Context, lease index.Lease) {
	if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
		e.logger.Warn("failed to release rebuild lease", "error", err)
	}
	e.rebuilding.Store(false)
}

// Rebuilding reports whether a rebuild is in flight.
func (e *Engine) Rebuilding() bool {
	return e.rebuilding.Load()
}

// LastRebuild returns the stats of the most recent finished rebuild.
func (e *Engine) LastRebuild() (RebuildStats, bool) {
	e.lastMu.RLock()
	defer e.lastMu.RUnlock()
	if e.lastRebuild == nil {
		return RebuildStats{}, false
	}
	return *e.lastRebuild, true
}

func (e *Engine) rebuild(ctx context.Context, src DocumentSource) (stats RebuildStats, err error) {
	ctx, span := tracing.Start(ctx, "rebuild", "")
	stats.StartedAt = time.Now()
	e.logger.Info("rebuild started", "workers", e.workers)

	defer func() {
		stats.Duration = time.Since(stats.StartedAt)
		stats.Successful = err == nil && stats.Failed == 0
		status := "ok"
		switch {
		case err != nil:
			status = "failed"
		case stats.Failed > 0:
			status = "partial"
		}
		e.metrics.RebuildsTotal.WithLabelValues(status).Inc()
		e.metrics.RebuildDuration.Observe(stats.Duration.Seconds())
		if n, cerr := e.store.DocumentCount(context.WithoutCancel(ctx)); cerr == nil {
			e.metrics.IndexedDocuments.Set(float64(n))
		}

		span.SetAttr("indexed", stats.Indexed)
		span.SetAttr("skipped", stats.Skipped)
		span.SetAttr("failed", stats.Failed)
		span.RecordError(err)
		span.End()

		e.lastMu.Lock()
		last := stats
		e.lastRebuild = &last
		e.lastMu.Unlock()

		e.logger.Info("rebuild finished",
			"status", status,
			"indexed", stats.Indexed,
			"skipped", stats.Skipped,
			"failed", stats.Failed,
			"duration", stats.Duration,
		)
	}()

	if err := e.store.Clear(ctx); err != nil {
		return stats, fmt.Errorf("clearing index: %w", err)
	}

	var indexed, skipped, failed atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)

	scanErr := src.Scan(gctx, func(doc Document) error {
		if err := gctx.Err(); err != nil {
			return err
		}
		g.Go(func() error {
			err := e.IndexDocument(gctx, doc.ID, doc.Text)
			switch {
			case err == nil:
				indexed.Add(1)
			case errors.Is(err, apperrors.ErrInvalidDocument):
				skipped.Add(1)
				e.logger.Warn("skipping invalid document", "doc_id", doc.ID)
			default:
				failed.Add(1)
				e.logger.Error("failed to index document during rebuild",
					"doc_id", doc.ID,
					"error", err,
				)
			}
			return nil
		})
		return nil
	})
	_ = g.Wait()

	stats.Indexed = indexed.Load()
	stats.Skipped = skipped.Load()
	stats.Failed = failed.Load()

	if scanErr != nil {
		return stats, fmt.Errorf("scanning documents: %w", scanErr)
	}
	return stats, nil
}

// StartRebuildLoop runs a rebuild from src every interval until ctx is
// cancelled, calling done, if set, after each rebuild that ran.
func (e *Engine) StartRebuildLoop(ctx context.Context, src DocumentSource, interval time.Duration, done func(RebuildStats, error)) {
	if interval <= 0 {
		e.logger.Info("periodic rebuild disabled")
		return
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				e.logger.Info("rebuild loop stopping")
				return
			case <-ticker.C:
				stats, err := e.Rebuild(ctx, src)
				if errors.Is(err, apperrors.ErrRebuildInProgress) {
					e.logger.Info("periodic rebuild skipped, another rebuild is running")
					continue
				}
				if err != nil {
					e.logger.Error("periodic rebuild failed", "error", err)
				}
				if done != nil {
					done(stats, err)
				}
			}
		}
	}()
}

func (e *Engine) lockFor(id int64) *sync.Mutex {
	return &e.locks[uint64(id)%lockStripes]
}
