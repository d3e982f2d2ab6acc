package index

import (
	"context"
	"errors"
	"log/slog"

	"github.com/deskwise/kbsearch/internal/kb"
	pkgerrors "github.com/deskwise/kbsearch/pkg/errors"
	"github.com/deskwise/kbsearch/pkg/metrics"
	"github.com/deskwise/kbsearch/pkg/resilience"
)

// DocumentFetcher reads a single fresh document from the content store.
// It backs the forced-reindex recovery path; a nil fetcher disables
// recovery and inconsistent documents are evicted instead.
type DocumentFetcher interface {
	Get(ctx context.Context, docID string) (kb.Document, error)
}

// Writer serializes all index mutations: events enter a bounded queue
// and a single goroutine applies them in arrival order, which enforces
// per-document ordering without any cross-document guarantees. A full
// queue parks blocking callers (backpressure to the event source);
// events are never dropped.
type Writer struct {
	idx       *Index
	queue     chan kb.DocumentEvent
	fetcher   DocumentFetcher
	onApplied func(context.Context, kb.DocumentEvent)
	metrics   *metrics.Metrics
	logger    *slog.Logger
	done      chan struct{}
}

// NewWriter creates a Writer with the given queue capacity.
func NewWriter(idx *Index, queueSize int, fetcher DocumentFetcher, m *metrics.Metrics) *Writer {
	if queueSize <= 0 {
		queueSize = 1024
	}
	return &Writer{
		idx:     idx,
		queue:   make(chan kb.DocumentEvent, queueSize),
		fetcher: fetcher,
		metrics: m,
		logger:  slog.Default().With("component", "index-writer"),
		done:    make(chan struct{}),
	}
}

// OnApplied registers a callback invoked on the writer goroutine after
// an event's effects are visible in the published snapshot, including
// the eviction and forced-reindex recovery paths. Must be called before
// Start.
func (w *Writer) OnApplied(fn func(context.Context, kb.DocumentEvent)) {
	w.onApplied = fn
}

// Start launches the apply loop. It returns immediately; the loop runs
// until ctx is cancelled, draining events already queued.
func (w *Writer) Start(ctx context.Context) {
	go func() {
		defer close(w.done)
		w.logger.Info("index writer started", "queue_capacity", cap(w.queue))
		for {
			select {
			case ev := <-w.queue:
				w.handle(ctx, ev)
			case <-ctx.Done():
				for {
					select {
					case ev := <-w.queue:
						w.handle(context.Background(), ev)
					default:
						w.logger.Info("index writer stopped", "reason", ctx.Err())
						return
					}
				}
			}
		}
	}()
}

// Done is closed once the apply loop has exited.
func (w *Writer) Done() <-chan struct{} {
	return w.done
}

// Apply enqueues an event, blocking while the queue is full. This is
// the backpressure path used by the Kafka consumer: parking here delays
// the commit of the consumed message rather than dropping it.
func (w *Writer) Apply(ctx context.Context, ev kb.DocumentEvent) error {
	select {
	case w.queue <- ev:
		w.observeDepth()
		return nil
	case <-ctx.Done():
		return pkgerrors.Newf(pkgerrors.ErrTimeout, 503,
			"enqueue of %s event for document %s: %v", ev.Type, ev.Document.ID, ctx.Err())
	}
}

// TryApply enqueues an event without blocking. A full queue returns
// ErrWriteQueueOverflow as a retry-later signal to the caller.
func (w *Writer) TryApply(ev kb.DocumentEvent) error {
	select {
	case w.queue <- ev:
		w.observeDepth()
		return nil
	default:
		return pkgerrors.Newf(pkgerrors.ErrWriteQueueOverflow, 429,
			"queue full (%d events), retry later", cap(w.queue))
	}
}

// QueueDepth reports the number of queued, not-yet-applied events.
func (w *Writer) QueueDepth() int {
	return len(w.queue)
}

// handle applies one event. Failures are contained to the single
// document: an ErrIndexInconsistency triggers a forced reindex from the
// content store, and any other error is logged without touching other
// documents' postings.
func (w *Writer) handle(ctx context.Context, ev kb.DocumentEvent) {
	err := w.idx.Apply(ev)
	w.observeDepth()
	if err == nil {
		if w.metrics != nil {
			w.metrics.IndexEventsTotal.WithLabelValues(string(ev.Type), "ok").Inc()
			if ev.Type != kb.EventDeleted {
				w.metrics.DocsIndexedTotal.Inc()
			}
			snap := w.idx.Snapshot()
			w.metrics.IndexDocCount.Set(float64(snap.DocCount()))
			w.metrics.IndexTermCount.Set(float64(snap.TermCount()))
		}
		w.logger.Debug("event applied", "event_type", ev.Type, "doc_id", ev.Document.ID)
		if w.onApplied != nil {
			w.onApplied(ctx, ev)
		}
		return
	}
	if w.metrics != nil {
		w.metrics.IndexEventsTotal.WithLabelValues(string(ev.Type), "error").Inc()
	}
	if errors.Is(err, pkgerrors.ErrIndexInconsistency) {
		w.logger.Error("index inconsistency detected, forcing reindex",
			"doc_id", ev.Document.ID,
			"event_type", ev.Type,
			"error", err,
		)
		w.reindex(ctx, ev.Document.ID)
		if w.onApplied != nil {
			w.onApplied(ctx, ev)
		}
		return
	}
	w.logger.Error("failed to apply event",
		"event_type", ev.Type,
		"doc_id", ev.Document.ID,
		"error", err,
	)
}

// reindex fetches a fresh copy of the document and reapplies it as
// Created, scrubbing whatever inconsistent state was left behind. A
// document missing from the store is evicted outright.
func (w *Writer) reindex(ctx context.Context, docID string) {
	if w.fetcher == nil {
		w.logger.Warn("no content store fetcher configured, evicting document", "doc_id", docID)
		w.idx.Evict(docID)
		return
	}
	var doc kb.Document
	err := resilience.Retry(ctx, "reindex-fetch", resilience.RetryConfig{MaxAttempts: 3}, func() error {
		var ferr error
		doc, ferr = w.fetcher.Get(ctx, docID)
		if ferr != nil && errors.Is(ferr, pkgerrors.ErrDocumentNotFound) {
			// Not retryable: the document is gone.
			return nil
		}
		return ferr
	})
	if err != nil {
		w.logger.Error("reindex fetch failed, evicting document", "doc_id", docID, "error", err)
		w.idx.Evict(docID)
		return
	}
	if doc.ID == "" {
		w.logger.Info("document no longer in content store, evicting", "doc_id", docID)
		w.idx.Evict(docID)
		return
	}
	if err := w.idx.Reindex(doc); err != nil {
		w.logger.Error("forced reindex failed", "doc_id", docID, "error", err)
		return
	}
	if w.metrics != nil {
		w.metrics.ForcedReindexesTotal.Inc()
	}
	w.logger.Info("document reindexed after inconsistency", "doc_id", docID)
}

func (w *Writer) observeDepth() {
	if w.metrics != nil {
		w.metrics.WriteQueueDepth.Set(float64(len(w.queue)))
	}
}
