package index

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/deskwise/kbsearch/internal/analyzer"
	"github.com/deskwise/kbsearch/internal/kb"
	pkgerrors "github.com/deskwise/kbsearch/pkg/errors"
)

type fakeFetcher struct {
	docs map[string]kb.Document
}

func (f *fakeFetcher) Get(_ context.Context, docID string) (kb.Document, error) {
	doc, ok := f.docs[docID]
	if !ok {
		return kb.Document{}, pkgerrors.Newf(pkgerrors.ErrDocumentNotFound, 404, "document %s not found", docID)
	}
	return doc, nil
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached before deadline")
}

func TestWriterAppliesInOrder(t *testing.T) {
	idx := New(analyzer.New(nil))
	w := NewWriter(idx, 16, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	events := []kb.DocumentEvent{
		created(testDoc("doc-1", "Printer offline", "")),
		created(testDoc("doc-2", "Printer jam", "")),
		{Type: kb.EventUpdated, Document: testDoc("doc-1", "Monitor flicker", "")},
		deleted("doc-2"),
	}
	for _, ev := range events {
		if err := w.Apply(ctx, ev); err != nil {
			t.Fatalf("Apply: %v", err)
		}
	}

	waitFor(t, func() bool {
		snap := idx.Snapshot()
		_, hasOne := snap.Entry("doc-1")
		_, hasTwo := snap.Entry("doc-2")
		return hasOne && !hasTwo && snap.Postings("monitor").Contains("doc-1")
	})
	snap := idx.Snapshot()
	if snap.Postings("printer").Contains("doc-1") {
		t.Error("update applied out of order: stale term present")
	}
	if snap.DocCount() != 1 {
		t.Errorf("DocCount = %d", snap.DocCount())
	}
}

func TestTryApplyOverflow(t *testing.T) {
	idx := New(analyzer.New(nil))
	w := NewWriter(idx, 1, nil, nil)
	// Not started: the queued event stays put.

	if err := w.TryApply(created(testDoc("doc-1", "Printer offline", ""))); err != nil {
		t.Fatalf("first TryApply: %v", err)
	}
	err := w.TryApply(created(testDoc("doc-2", "Printer jam", "")))
	if !errors.Is(err, pkgerrors.ErrWriteQueueOverflow) {
		t.Fatalf("expected ErrWriteQueueOverflow, got %v", err)
	}
	if w.QueueDepth() != 1 {
		t.Errorf("QueueDepth = %d", w.QueueDepth())
	}
}

func TestApplyBlocksUntilContextDone(t *testing.T) {
	idx := New(analyzer.New(nil))
	w := NewWriter(idx, 1, nil, nil)
	if err := w.TryApply(created(testDoc("doc-1", "Printer offline", ""))); err != nil {
		t.Fatalf("fill queue: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	err := w.Apply(ctx, created(testDoc("doc-2", "Printer jam", "")))
	if !errors.Is(err, pkgerrors.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestWriterDrainsOnShutdown(t *testing.T) {
	idx := New(analyzer.New(nil))
	w := NewWriter(idx, 16, nil, nil)

	for i := 0; i < 5; i++ {
		id := string(rune('a' + i))
		if err := w.TryApply(created(testDoc("doc-"+id, "Printer offline", ""))); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	w.Start(ctx)
	cancel()
	select {
	case <-w.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("writer did not stop")
	}
	if got := idx.Snapshot().DocCount(); got != 5 {
		t.Errorf("DocCount after drain = %d, want 5", got)
	}
}

func TestOnAppliedFiresAfterSnapshotVisible(t *testing.T) {
	idx := New(analyzer.New(nil))
	w := NewWriter(idx, 16, nil, nil)

	type seen struct {
		docID    string
		docCount int
		indexed  bool
	}
	observed := make(chan seen, 16)
	w.OnApplied(func(_ context.Context, ev kb.DocumentEvent) {
		// Runs on the writer goroutine: the snapshot read here must
		// already contain the event just applied.
		snap := idx.Snapshot()
		_, ok := snap.Entry(ev.Document.ID)
		observed <- seen{docID: ev.Document.ID, docCount: snap.DocCount(), indexed: ok}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	if err := w.Apply(ctx, created(testDoc("doc-1", "Printer offline", ""))); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	if err := w.Apply(ctx, created(testDoc("doc-2", "Printer jam", ""))); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	for i, want := range []seen{
		{docID: "doc-1", docCount: 1, indexed: true},
		{docID: "doc-2", docCount: 2, indexed: true},
	} {
		select {
		case got := <-observed:
			if got != want {
				t.Errorf("callback %d = %+v, want %+v", i, got, want)
			}
		case <-time.After(2 * time.Second):
			t.Fatalf("callback %d not invoked", i)
		}
	}
}

func TestOnAppliedFiresAfterRecovery(t *testing.T) {
	idx := New(analyzer.New(nil))
	doc := testDoc("doc-1", "Printer offline", "")
	mustApply(t, idx, created(doc))

	corrupt := idx.cur.Load().clone()
	delete(corrupt.postings, "printer")
	idx.cur.Store(corrupt)

	fetcher := &fakeFetcher{docs: map[string]kb.Document{"doc-1": doc}}
	w := NewWriter(idx, 4, fetcher, nil)
	repaired := make(chan bool, 1)
	w.OnApplied(func(_ context.Context, _ kb.DocumentEvent) {
		repaired <- idx.Snapshot().Postings("printer").Contains("doc-1")
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	if err := w.Apply(ctx, kb.DocumentEvent{Type: kb.EventUpdated, Document: doc}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	select {
	case ok := <-repaired:
		if !ok {
			t.Error("callback observed pre-reindex snapshot")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("callback not invoked after reindex")
	}
}

func TestWriterForcesReindexOnInconsistency(t *testing.T) {
	idx := New(analyzer.New(nil))
	doc := testDoc("doc-1", "Printer offline", "")
	mustApply(t, idx, created(doc))

	corrupt := idx.cur.Load().clone()
	delete(corrupt.postings, "printer")
	idx.cur.Store(corrupt)

	fetcher := &fakeFetcher{docs: map[string]kb.Document{"doc-1": doc}}
	w := NewWriter(idx, 4, fetcher, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	if err := w.Apply(ctx, kb.DocumentEvent{Type: kb.EventUpdated, Document: doc}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	waitFor(t, func() bool {
		return idx.Snapshot().Postings("printer").Contains("doc-1")
	})
	if err := idx.Snapshot().checkDocConsistency("doc-1"); err != nil {
		t.Errorf("document still inconsistent after reindex: %v", err)
	}
}

func TestWriterEvictsWhenDocumentGone(t *testing.T) {
	idx := New(analyzer.New(nil))
	doc := testDoc("doc-1", "Printer offline", "")
	mustApply(t, idx, created(doc))

	corrupt := idx.cur.Load().clone()
	delete(corrupt.postings, "printer")
	idx.cur.Store(corrupt)

	fetcher := &fakeFetcher{docs: map[string]kb.Document{}}
	w := NewWriter(idx, 4, fetcher, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)

	if err := w.Apply(ctx, kb.DocumentEvent{Type: kb.EventUpdated, Document: doc}); err != nil {
		t.Fatalf("Apply: %v", err)
	}
	waitFor(t, func() bool {
		return idx.Snapshot().DocCount() == 0
	})
}
