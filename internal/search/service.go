// Package search is the entry point other subsystems use for full-text
// search: it indexes and removes notes, rebuilds the whole index, answers
// paginated queries and highlights matched terms in rendered HTML.
package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/Adithya-Monish-Kumar-K/note-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/highlight"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/tokenizer"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/searcher/ranker"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/config"
	apperrors "github.com/Adithya-Monish-Kumar-K/note-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/resilience"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/tracing"
)

// Options bounds query execution.
type Options struct {
	DefaultLimit   int
	MaxResults     int
	QueryTimeout   time.Duration
	RebuildWorkers int
	HighlightTag   string
}

// OptionsFromConfig reads Options from the search, index and highlight
// sections.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DefaultLimit:   cfg.Search.DefaultLimit,
		MaxResults:     cfg.Search.MaxResults,
		QueryTimeout:   cfg.Search.QueryTimeout,
		RebuildWorkers: cfg.Index.RebuildWorkers,
		HighlightTag:   cfg.Highlight.Tag,
	}
}

// Result is one page of ranked document ids. NextCursor is ranker.EndCursor
// when there are no more pages.
type Result struct {
	Query       string    `json:"query"`
	Terms       []string  `json:"terms"`
	DocumentIDs []int64   `json:"document_ids"`
	Scores      []float64 `json:"scores"`
	TotalHits   int       `json:"total_hits"`
	NextCursor  string    `json:"next_cursor"`
	CacheHit    bool      `json:"cache_hit"`
}

// Stats describes the index for operators.
type Stats struct {
	Index       index.Stats           `json:"index"`
	Rebuilding  bool                  `json:"rebuilding"`
	LastRebuild *indexer.RebuildStats `json:"last_rebuild,omitempty"`
	CacheHits   int64                 `json:"cache_hits"`
	CacheMisses int64                 `json:"cache_misses"`
}

type Service struct {
	store       index.Store
	tokenizer   *tokenizer.Tokenizer
	engine      *indexer.Engine
	executor    *executor.Executor
	highlighter *highlight.Highlighter
	cache       *cache.QueryCache
	collector   *analytics.Collector
	metrics     *metrics.Metrics
	opts        Options
	logger      *slog.Logger
}

func New(store index.Store, tok *tokenizer.Tokenizer, m *metrics.Metrics, opts Options) *Service {
	if opts.DefaultLimit <= 0 {
		opts.DefaultLimit = 10
	}
	if opts.MaxResults <= 0 {
		opts.MaxResults = 100
	}
	return &Service{
		store:       store,
		tokenizer:   tok,
		engine:      indexer.NewEngine(store, tok, m, opts.RebuildWorkers),
		executor:    executor.New(store),
		highlighter: highlight.New(opts.HighlightTag),
		metrics:     m,
		opts:        opts,
		logger:      slog.Default().With("component", "search-service"),
	}
}

// WithCache enables the ranked-list cache.
func (s *Service) WithCache(c *cache.QueryCache) *Service {
	s.cache = c
	return s
}

// WithCollector enables analytics events.
func (s *Service) WithCollector(c *analytics.Collector) *Service {
	s.collector = c
	return s
}

// Cache returns the query cache, or nil when caching is disabled.
func (s *Service) Cache() *cache.QueryCache {
	return s.cache
}

// IndexDocument indexes text under id, replacing any previous version.
func (s *Service) IndexDocument(ctx context.Context, id int64, text string) error {
	start := time.Now()
	err := s.engine.IndexDocument(ctx, id, text)
	s.trackWrite(analytics.EventIndexDocument, id, start, err)
	return err
}

// RemoveDocument drops id from the index.
func (s *Service) RemoveDocument(ctx context.Context, id int64) error {
	start := time.Now()
	err := s.engine.RemoveDocument(ctx, id)
	s.trackWrite(analytics.EventRemoveDocument, id, start, err)
	return err
}

// RebuildAll clears the index and re-indexes every document from src,
// skipping documents that fail. It returns ErrRebuildInProgress when
// another rebuild is running.
func (s *Service) RebuildAll(ctx context.Context, src indexer.DocumentSource) (indexer.RebuildStats, error) {
	stats, err := s.engine.Rebuild(ctx, src)
	if !errors.Is(err, apperrors.ErrRebuildInProgress) {
		s.trackRebuild(stats, err)
	}
	return stats, err
}

// StartRebuild is RebuildAll in the background. The rebuild outlives ctx's
// cancellation but keeps its values.
func (s *Service) StartRebuild(ctx context.Context, src indexer.DocumentSource) error {
	return s.engine.RebuildAsync(context.WithoutCancel(ctx), src, s.trackRebuild)
}

// StartRebuildLoop rebuilds from src every interval until ctx is done. Each
// rebuild is tracked like one started through RebuildAll.
func (s *Service) StartRebuildLoop(ctx context.Context, src indexer.DocumentSource, interval time.Duration) {
	s.engine.StartRebuildLoop(ctx, src, interval, s.trackRebuild)
}

// Search tokenizes query and returns the page of ranked ids that starts at
// cursor. An empty cursor is the first page; limit <= 0 means the default
// and is capped at the configured maximum.
func (s *Service) Search(ctx context.Context, query string, limit int, cursor string) (*Result, error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, "search", middleware.GetRequestID(ctx))
	defer span.End()
	log := logger.FromContext(ctx)

	cur, err := ranker.ParseCursor(cursor)
	if err != nil {
		span.RecordError(err)
		s.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if limit <= 0 {
		limit = s.opts.DefaultLimit
	}
	limit = min(limit, s.opts.MaxResults)

	terms := ranker.UniqueTerms(s.tokenizer.Terms(query))
	span.SetAttr("terms", len(terms))
	result := &Result{
		Query:       query,
		Terms:       terms,
		DocumentIDs: []int64{},
		Scores:      []float64{},
		NextCursor:  ranker.EndCursor,
	}
	if len(terms) == 0 {
		s.metrics.SearchQueriesTotal.WithLabelValues("empty_query").Inc()
		return result, nil
	}
	if cur.IsEnd() {
		return result, nil
	}

	docs, generation, cacheHit, err := s.rank(ctx, terms, cur.Generation)
	if err != nil {
		span.RecordError(err)
		s.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		log.Error("search failed", "query", query, "error", err)
		return nil, fmt.Errorf("searching %q: %w", query, err)
	}

	page, next := ranker.Paginate(docs, limit, cur.Offset)
	for _, d := range page {
		result.DocumentIDs = append(result.DocumentIDs, d.DocID)
		result.Scores = append(result.Scores, d.Score)
	}
	result.TotalHits = len(docs)
	result.CacheHit = cacheHit
	result.NextCursor = ranker.Cursor{Offset: next, Generation: generation}.String()

	latency := time.Since(start)
	s.observeSearch(result, cacheHit, latency)
	span.SetAttr("hits", result.TotalHits)
	span.SetAttr("cache_hit", cacheHit)

	log.Info("search completed",
		"query", query,
		"total_hits", result.TotalHits,
		"returned", len(page),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	if s.collector != nil {
		eventType := analytics.EventSearch
		if result.TotalHits == 0 {
			eventType = analytics.EventZeroResult
		}
		s.collector.Track(analytics.SearchEvent{
			Type:      eventType,
			Query:     query,
			Terms:     terms,
			TotalHits: result.TotalHits,
			Returned:  len(page),
			LatencyMs: latency.Milliseconds(),
			CacheHit:  cacheHit,
			Page:      cur.Offset > 0,
			Timestamp: time.Now().UTC(),
			RequestID: middleware.GetRequestID(ctx),
		})
	}
	return result, nil
}

// rank returns the full ranked list for terms. With a cache, a list pinned
// to an earlier generation by a cursor is served while it is still cached,
// so later pages stay consistent with the first one.
func (s *Service) rank(ctx context.Context, terms []string, pinned int64) ([]ranker.ScoredDoc, int64, bool, error) {
	compute := func() ([]ranker.ScoredDoc, error) {
		execCtx, span := tracing.Start(ctx, "execute", "")
		defer span.End()
		docs, err := resilience.Call(execCtx, s.opts.QueryTimeout, "search", func(ctx context.Context) ([]ranker.ScoredDoc, error) {
			return s.executor.Execute(ctx, terms)
		})
		span.RecordError(err)
		return docs, err
	}
	if s.cache == nil {
		docs, err := compute()
		return docs, 0, false, err
	}

	generation, err := s.store.Generation(ctx)
	if err != nil {
		return nil, 0, false, err
	}
	if pinned > 0 && pinned != generation {
		if docs, ok := s.cache.Get(ctx, terms, pinned); ok {
			return docs, pinned, true, nil
		}
	}
	docs, hit, err := s.cache.GetOrCompute(ctx, terms, generation, compute)
	return docs, generation, hit, err
}

// Highlight wraps tokens in fragment with the configured tag. A malformed
// fragment is returned unchanged.
func (s *Service) Highlight(fragment string, tokens []string) string {
	return s.highlighter.Highlight(fragment, tokens)
}

// Stats reports index counters and rebuild state.
func (s *Service) Stats(ctx context.Context) (*Stats, error) {
	st, err := s.store.Stats(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading index stats: %w", err)
	}
	s.metrics.IndexedDocuments.Set(float64(st.DocumentCount))
	out := &Stats{Index: st, Rebuilding: s.engine.Rebuilding()}
	if last, ok := s.engine.LastRebuild(); ok {
		out.LastRebuild = &last
	}
	if s.cache != nil {
		out.CacheHits, out.CacheMisses = s.cache.Stats()
	}
	return out, nil
}

// Ping checks that the index store is reachable.
func (s *Service) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *Service) observeSearch(r *Result, cacheHit bool, latency time.Duration) {
	resultType := "hit"
	if r.TotalHits == 0 {
		resultType = "zero_result"
	}
	cacheStatus := "none"
	if s.cache != nil {
		cacheStatus = "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
	}
	s.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	s.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	s.metrics.SearchResultsCount.Observe(float64(r.TotalHits))
}

func (s *Service) trackWrite(eventType analytics.EventType, id int64, start time.Time, err error) {
	if s.collector == nil {
		return
	}
	status := "ok"
	switch {
	case errors.Is(err, apperrors.ErrInvalidDocument):
		status = "invalid"
	case err != nil:
		status = "error"
	}
	s.collector.Track(analytics.IndexEvent{
		Type:       eventType,
		DocumentID: id,
		Status:     status,
		LatencyMs:  time.Since(start).Milliseconds(),
		Timestamp:  time.Now().UTC(),
	})
}

func (s *Service) trackRebuild(stats indexer.RebuildStats, err error) {
	if s.collector == nil {
		return
	}
	ev := analytics.RebuildEvent{
		Type:       analytics.EventRebuild,
		Indexed:    stats.Indexed,
		Skipped:    stats.Skipped,
		Failed:     stats.Failed,
		DurationMs: stats.Duration.Milliseconds(),
		Timestamp:  time.Now().UTC(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.collector.Track(ev)
}
