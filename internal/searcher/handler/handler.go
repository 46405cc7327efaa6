// Package handler exposes the search service over HTTP: querying,
// highlighting, document writes, index maintenance and cache/analytics
// introspection.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/Adithya-Monish-Kumar-K/note-search/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/search"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/searcher/cache"
	apperrors "github.com/Adithya-Monish-Kumar-K/note-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/note-search/pkg/logger"
)

const maxBodyBytes = 1 << 20

// SearchService is the part of search.Service the handler calls.
type SearchService interface {
	Search(ctx context.Context, query string, limit int, cursor string) (*search.Result, error)
	IndexDocument(ctx context.Context, id int64, text string) error
	RemoveDocument(ctx context.Context, id int64) error
	StartRebuild(ctx context.Context, src indexer.DocumentSource) error
	Highlight(fragment string, tokens []string) string
	Stats(ctx context.Context) (*search.Stats, error)
}

type Handler struct {
	service    SearchService
	cache      *cache.QueryCache
	aggregator *analytics.Aggregator
	source     indexer.DocumentSource
	logger     *slog.Logger
}

// New builds a Handler. queryCache, aggregator and source may be nil; the
// endpoints that need them then report that the feature is disabled.
func New(svc SearchService, queryCache *cache.QueryCache, aggregator *analytics.Aggregator, source indexer.DocumentSource) *Handler {
	return &Handler{
		service:    svc,
		cache:      queryCache,
		aggregator: aggregator,
		source:     source,
		logger:     slog.Default().With("component", "search-handler"),
	}
}

// Register mounts every route on mux.
func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/search", h.Search)
	mux.HandleFunc("POST /api/v1/highlight", h.Highlight)
	mux.HandleFunc("PUT /api/v1/documents/{id}", h.PutDocument)
	mux.HandleFunc("DELETE /api/v1/documents/{id}", h.DeleteDocument)
	mux.HandleFunc("POST /api/v1/index/rebuild", h.Rebuild)
	mux.HandleFunc("GET /api/v1/index/stats", h.IndexStats)
	mux.HandleFunc("GET /api/v1/cache/stats", h.CacheStats)
	mux.HandleFunc("POST /api/v1/cache/invalidate", h.CacheInvalidate)
	mux.HandleFunc("GET /api/v1/analytics", h.Analytics)
}

func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := q.Get("q")
	if query == "" {
		h.writeError(w, http.StatusBadRequest, "query parameter 'q' is required")
		return
	}

	limit := 0
	if limitStr := q.Get("limit"); limitStr != "" {
		parsed, err := strconv.Atoi(limitStr)
		if err != nil || parsed < 1 {
			h.writeServiceError(w, r, "", apperrors.New(apperrors.ErrInvalidInput, http.StatusBadRequest, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}

	result, err := h.service.Search(r.Context(), query, limit, q.Get("cursor"))
	if err != nil {
		h.writeServiceError(w, r, "search failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, result)
}

type highlightRequest struct {
	Fragment string   `json:"fragment"`
	Tokens   []string `json:"tokens"`
}

func (h *Handler) Highlight(w http.ResponseWriter, r *http.Request) {
	var req highlightRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{
		"fragment": h.service.Highlight(req.Fragment, req.Tokens),
	})
}

type documentRequest struct {
	Content *string `json:"content"`
}

func (h *Handler) PutDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	var req documentRequest
	if err := h.decode(w, r, &req); err != nil {
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Content == nil {
		h.writeError(w, http.StatusBadRequest, "field 'content' is required")
		return
	}
	if err := h.service.IndexDocument(r.Context(), id, *req.Content); err != nil {
		h.writeServiceError(w, r, "indexing failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]any{"id": id, "status": "indexed"})
}

func (h *Handler) DeleteDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := h.documentID(w, r)
	if !ok {
		return
	}
	if err := h.service.RemoveDocument(r.Context(), id); err != nil {
		h.writeServiceError(w, r, "removal failed", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	if h.source == nil {
		h.writeError(w, http.StatusServiceUnavailable, "no document source configured")
		return
	}
	if err := h.service.StartRebuild(r.Context(), h.source); err != nil {
		h.writeServiceError(w, r, "rebuild failed", err)
		return
	}
	logger.FromContext(r.Context()).Info("index rebuild started")
	h.writeJSON(w, http.StatusAccepted, map[string]string{"status": "started"})
}

func (h *Handler) IndexStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.service.Stats(r.Context())
	if err != nil {
		h.writeServiceError(w, r, "reading stats failed", err)
		return
	}
	h.writeJSON(w, http.StatusOK, stats)
}

func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}

	hits, misses := h.cache.Stats()
	total := hits + misses
	var hitRate float64
	if total > 0 {
		hitRate = float64(hits) / float64(total) * 100
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hits":     hits,
		"misses":   misses,
		"total":    total,
		"hit_rate": fmt.Sprintf("%.1f%%", hitRate),
	})
}

func (h *Handler) CacheInvalidate(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		h.writeError(w, http.StatusServiceUnavailable, "caching is disabled")
		return
	}

	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.logger.Error("cache invalidation failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "cache invalidation failed")
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]string{"status": "invalidated"})
}

func (h *Handler) Analytics(w http.ResponseWriter, r *http.Request) {
	if h.aggregator == nil {
		h.writeJSON(w, http.StatusOK, map[string]string{"status": "disabled"})
		return
	}
	h.writeJSON(w, http.StatusOK, h.aggregator.Stats())
}

func (h *Handler) documentID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		h.writeServiceError(w, r, "", apperrors.Newf(apperrors.ErrInvalidInput, http.StatusBadRequest, "document id %q is not an integer", raw))
		return 0, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeServiceError maps err to a status code. Client errors echo the
// error text; server errors are logged and reported generically.
func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := apperrors.HTTPStatusCode(err)
	if status < http.StatusInternalServerError {
		h.writeError(w, status, err.Error())
		return
	}
	logger.FromContext(r.Context()).Error(msg, "error", err)
	if errors.Is(err, apperrors.ErrStoreUnavailable) || errors.Is(err, apperrors.ErrTimeout) {
		w.Header().Set("Retry-After", "1")
	}
	h.writeError(w, status, msg)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
