// Package server exposes the engine to the application layer over
// HTTP: the search endpoint plus cache management. The UI renders the
// results; this layer only parses filters, delegates, and serialises.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/deskwise/kbsearch/internal/analytics"
	"github.com/deskwise/kbsearch/internal/cache"
	"github.com/deskwise/kbsearch/internal/kb"
	pkgerrors "github.com/deskwise/kbsearch/pkg/errors"
	"github.com/deskwise/kbsearch/pkg/logger"
	"github.com/deskwise/kbsearch/pkg/metrics"
	"github.com/deskwise/kbsearch/pkg/middleware"
)

// Searcher is the engine surface the handler depends on.
type Searcher interface {
	Search(ctx context.Context, filters kb.SearchFilters, page, pageSize int) (*kb.PaginatedResponse[kb.SearchResult], error)
}

// Handler serves the search API.
type Handler struct {
	searcher  Searcher
	cache     *cache.QueryCache
	collector *analytics.Collector
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// New creates a Handler; cache, collector, and metrics may be nil.
func New(searcher Searcher, queryCache *cache.QueryCache, collector *analytics.Collector, m *metrics.Metrics) *Handler {
	return &Handler{
		searcher:  searcher,
		cache:     queryCache,
		collector: collector,
		metrics:   m,
		logger:    slog.Default().With("component", "search-handler"),
	}
}

// Search handles GET /api/v1/search.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()
	log := logger.FromContext(ctx)

	q := r.URL.Query()
	filters := kb.SearchFilters{
		Query:      q.Get("q"),
		Type:       q.Get("type"),
		CategoryID: q.Get("category"),
		Status:     q.Get("status"),
	}
	if tags := q.Get("tags"); tags != "" {
		filters.TagIDs = strings.Split(tags, ",")
	}
	page, err := positiveIntParam(q.Get("page"), 1)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "page must be a positive integer")
		return
	}
	pageSize, err := positiveIntParam(q.Get("page_size"), 0)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "page_size must be a positive integer")
		return
	}

	var resp *cache.Response
	cacheHit := false
	if h.cache != nil {
		resp, cacheHit, err = h.cache.GetOrCompute(ctx, filters, page, pageSize, func() (*cache.Response, error) {
			return h.searcher.Search(ctx, filters, page, pageSize)
		})
	} else {
		resp, err = h.searcher.Search(ctx, filters, page, pageSize)
	}
	if err != nil {
		status := pkgerrors.HTTPStatusCode(err)
		if status >= http.StatusInternalServerError {
			log.Error("search execution failed", "filters", fmt.Sprintf("%+v", filters), "error", err)
			h.writeError(w, status, "search failed")
		} else {
			h.writeError(w, status, err.Error())
		}
		h.track(ctx, filters, nil, page, start, false, analytics.EventMalformed)
		return
	}

	latency := time.Since(start)
	if h.metrics != nil {
		cacheStatus := "miss"
		if cacheHit {
			cacheStatus = "hit"
		}
		if cacheHit {
			h.metrics.CacheHitsTotal.Inc()
		} else {
			h.metrics.CacheMissesTotal.Inc()
		}
		h.metrics.SearchLatency.WithLabelValues(cacheStatus).Observe(latency.Seconds())
	}
	log.Info("search completed",
		"query", filters.Query,
		"total", resp.Total,
		"returned", len(resp.Items),
		"cache_hit", cacheHit,
		"latency_ms", latency.Milliseconds(),
	)
	eventType := analytics.EventSearch
	if resp.Total == 0 {
		eventType = analytics.EventZeroResult
	}
	h.track(ctx, filters, resp, page, start, cacheHit, eventType)

	h.writeJSON(w, http.StatusOK, resp)
}

// CacheStats handles GET /api/v1/cache/stats.
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

// CacheInvalidate handles POST /api/v1/cache/invalidate.
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

func (h *Handler) track(ctx context.Context, filters kb.SearchFilters, resp *cache.Response, page int, start time.Time, cacheHit bool, eventType analytics.EventType) {
	if h.collector == nil {
		return
	}
	ev := analytics.SearchEvent{
		Type:      eventType,
		Query:     filters.Query,
		Facets:    facetSummary(filters),
		Page:      page,
		LatencyMs: time.Since(start).Milliseconds(),
		CacheHit:  cacheHit,
		Timestamp: time.Now().UTC(),
		RequestID: middleware.GetRequestID(ctx),
	}
	if resp != nil {
		ev.TotalHits = resp.Total
		ev.Returned = len(resp.Items)
	}
	h.collector.Track(ev)
}

func facetSummary(filters kb.SearchFilters) []string {
	var facets []string
	if filters.Type != "" {
		facets = append(facets, "type="+filters.Type)
	}
	if filters.CategoryID != "" {
		facets = append(facets, "category="+filters.CategoryID)
	}
	for _, tag := range filters.TagIDs {
		facets = append(facets, "tag="+tag)
	}
	if filters.Status != "" {
		facets = append(facets, "status="+filters.Status)
	}
	return facets
}

func positiveIntParam(raw string, def int) (int, error) {
	if raw == "" {
		return def, nil
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed < 1 {
		return 0, fmt.Errorf("invalid positive integer %q", raw)
	}
	return parsed, nil
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
