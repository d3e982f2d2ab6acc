// Package engine assembles the search core: analyzer, inverted index,
// single-writer event pipeline, query planner, and ranker, behind one
// explicitly-lifetimed component. The engine is built at startup,
// replays the content store into an empty index, consumes mutation
// events while running, and is torn down on shutdown.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/deskwise/kbsearch/internal/analyzer"
	"github.com/deskwise/kbsearch/internal/index"
	"github.com/deskwise/kbsearch/internal/kb"
	"github.com/deskwise/kbsearch/internal/query"
	"github.com/deskwise/kbsearch/internal/rank"
	"github.com/deskwise/kbsearch/pkg/config"
	"github.com/deskwise/kbsearch/pkg/metrics"
	"github.com/deskwise/kbsearch/pkg/resilience"
)

// ContentStore is the narrow interface the engine consumes from the
// source-of-truth document store: a full scan for cold-start replay and
// a point read for forced reindexing.
type ContentStore interface {
	ListAllPublished(ctx context.Context) ([]kb.Document, error)
	Get(ctx context.Context, docID string) (kb.Document, error)
}

// Options configures a new Engine. Store and Metrics may be nil.
type Options struct {
	Index     config.IndexConfig
	Search    config.SearchConfig
	Store     ContentStore
	Metrics   *metrics.Metrics
	StopWords []string
}

// Engine is the sole query entry point and the owner of all index
// state. Search may be called concurrently; writes flow through the
// single-writer queue.
type Engine struct {
	an       *analyzer.Analyzer
	idx      *index.Index
	writer   *index.Writer
	planner  *query.Planner
	ranker   *rank.Ranker
	store    ContentStore
	search   config.SearchConfig
	indexCfg config.IndexConfig
	metrics  *metrics.Metrics
	logger   *slog.Logger
}

// New builds an Engine from options; the index starts empty until
// Replay or events fill it.
func New(opts Options) *Engine {
	an := analyzer.New(opts.StopWords)
	idx := index.New(an)
	var fetcher index.DocumentFetcher
	if opts.Store != nil {
		fetcher = opts.Store
	}
	search := opts.Search
	if search.DefaultPageSize <= 0 {
		search.DefaultPageSize = 10
	}
	if search.MaxPageSize <= 0 {
		search.MaxPageSize = 100
	}
	return &Engine{
		an:       an,
		idx:      idx,
		writer:   index.NewWriter(idx, opts.Index.WriteQueueSize, fetcher, opts.Metrics),
		planner:  query.New(an),
		ranker:   rank.New(an, opts.Index.SnippetRadius, search.TopKThreshold),
		store:    opts.Store,
		search:   search,
		indexCfg: opts.Index,
		metrics:  opts.Metrics,
		logger:   slog.Default().With("component", "search-engine"),
	}
}

// Replay rebuilds the index from a full content store scan. It must run
// before Start so replayed documents are applied in order, ahead of any
// queued events.
func (e *Engine) Replay(ctx context.Context) error {
	if e.store == nil {
		e.logger.Info("no content store configured, skipping replay")
		return nil
	}
	start := time.Now()
	var docs []kb.Document
	err := resilience.WithTimeout(ctx, e.replayTimeout(), "content store replay", func(ctx context.Context) error {
		var lerr error
		docs, lerr = e.store.ListAllPublished(ctx)
		return lerr
	})
	if err != nil {
		return fmt.Errorf("listing documents for replay: %w", err)
	}
	indexed := 0
	for _, doc := range docs {
		if err := e.idx.Apply(kb.DocumentEvent{Type: kb.EventCreated, Document: doc}); err != nil {
			e.logger.Error("replay skipped document", "doc_id", doc.ID, "error", err)
			continue
		}
		indexed++
	}
	snap := e.idx.Snapshot()
	if e.metrics != nil {
		e.metrics.IndexDocCount.Set(float64(snap.DocCount()))
		e.metrics.IndexTermCount.Set(float64(snap.TermCount()))
	}
	e.logger.Info("replay complete",
		"documents", indexed,
		"terms", snap.TermCount(),
		"elapsed", time.Since(start).Round(time.Millisecond),
	)
	return nil
}

func (e *Engine) replayTimeout() time.Duration {
	if e.indexCfg.ReplayTimeout > 0 {
		return e.indexCfg.ReplayTimeout
	}
	return 2 * time.Minute
}

// OnApplied registers a callback invoked after an event's effects are
// visible to Search. Used to invalidate caches built on the previous
// index state. Must be called before Start.
func (e *Engine) OnApplied(fn func(context.Context, kb.DocumentEvent)) {
	e.writer.OnApplied(fn)
}

// Start launches the index writer loop; it runs until ctx is cancelled.
func (e *Engine) Start(ctx context.Context) {
	e.writer.Start(ctx)
}

// Close waits for the writer loop to drain and exit.
func (e *Engine) Close(ctx context.Context) error {
	select {
	case <-e.writer.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for index writer shutdown: %w", ctx.Err())
	}
}

// Apply enqueues a content store event, blocking while the queue is
// full.
func (e *Engine) Apply(ctx context.Context, ev kb.DocumentEvent) error {
	return e.writer.Apply(ctx, ev)
}

// TryApply enqueues without blocking; a full queue returns
// ErrWriteQueueOverflow.
func (e *Engine) TryApply(ev kb.DocumentEvent) error {
	return e.writer.TryApply(ev)
}

// QueueDepth reports pending, not-yet-applied events.
func (e *Engine) QueueDepth() int {
	return e.writer.QueueDepth()
}

// DocCount reports indexed documents in the current snapshot.
func (e *Engine) DocCount() int {
	return e.idx.Snapshot().DocCount()
}

// Search executes one faceted query against the current snapshot and
// returns a page of ranked results. Pagination happens after full
// ranking; highlights are computed for the returned page only, which
// cannot change ordering.
func (e *Engine) Search(ctx context.Context, filters kb.SearchFilters, page, pageSize int) (*kb.PaginatedResponse[kb.SearchResult], error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = e.search.DefaultPageSize
	}
	if pageSize > e.search.MaxPageSize {
		pageSize = e.search.MaxPageSize
	}

	plan, err := e.planner.Plan(filters)
	if err != nil {
		e.observeQuery("malformed")
		return nil, err
	}

	if e.search.QueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.search.QueryTimeout)
		defer cancel()
	}

	snap := e.idx.Snapshot()
	facetSet, restricted := snap.FilterFacets(plan.Facets)
	limit := page * pageSize

	var scored []rank.ScoredDoc
	var total int
	if plan.FacetOnly() {
		scored, total, err = e.ranker.RankRecency(ctx, snap, facetSet, restricted, limit)
	} else {
		candidates := textCandidates(snap, plan.Terms, facetSet, restricted)
		scored, total, err = e.ranker.RankText(ctx, snap, plan.Terms, candidates, limit)
	}
	if err != nil {
		e.observeQuery("error")
		return nil, err
	}

	offset := (page - 1) * pageSize
	if offset > len(scored) {
		offset = len(scored)
	}
	end := offset + pageSize
	if end > len(scored) {
		end = len(scored)
	}
	pageDocs := scored[offset:end]

	items := make([]kb.SearchResult, 0, len(pageDocs))
	for _, sd := range pageDocs {
		result := kb.SearchResult{DocumentID: sd.DocID, Score: sd.Score}
		if entry, ok := snap.Entry(sd.DocID); ok {
			result.Highlights = e.ranker.Highlights(entry, plan.Terms)
		}
		items = append(items, result)
	}

	if total == 0 {
		e.observeQuery("zero_result")
	} else {
		e.observeQuery("hit")
	}
	if e.metrics != nil {
		e.metrics.SearchResultsCount.Observe(float64(len(items)))
	}
	return &kb.PaginatedResponse[kb.SearchResult]{
		Items:    items,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}, nil
}

// textCandidates merge-joins the query terms' posting lists (every
// term must match) and intersects with the facet set when one applies.
// A term with no postings anywhere yields an empty candidate set.
func textCandidates(snap *index.Snapshot, terms []string, facetSet map[string]struct{}, restricted bool) map[string]struct{} {
	seen := make(map[string]struct{}, len(terms))
	lists := make([]index.PostingList, 0, len(terms))
	for _, term := range terms {
		if _, dup := seen[term]; dup {
			continue
		}
		seen[term] = struct{}{}
		lists = append(lists, snap.Postings(term))
	}
	candidates := make(map[string]struct{})
	for _, id := range index.Intersect(lists) {
		if restricted {
			if _, ok := facetSet[id]; !ok {
				continue
			}
		}
		candidates[id] = struct{}{}
	}
	return candidates
}

func (e *Engine) observeQuery(resultType string) {
	if e.metrics != nil {
		e.metrics.SearchQueriesTotal.WithLabelValues(resultType).Inc()
	}
}
