package index

import (
	"log/slog"
	"sync/atomic"

	"github.com/deskwise/kbsearch/internal/analyzer"
	"github.com/deskwise/kbsearch/internal/kb"
	pkgerrors "github.com/deskwise/kbsearch/pkg/errors"
)

// Index owns the current Snapshot and the single mutation path that
// replaces it. Reads are lock-free: Snapshot loads an atomic pointer
// and the returned value never changes. All mutating methods must be
// called from a single goroutine (the Writer's loop); each builds the
// next version off to the side and publishes it with one pointer swap,
// so a concurrent query sees either the fully-pre-write or the
// fully-post-write state.
type Index struct {
	an     *analyzer.Analyzer
	cur    atomic.Pointer[Snapshot]
	logger *slog.Logger
}

// New creates an empty Index using the given analyzer for all document
// text. The same analyzer must be used for query text.
func New(an *analyzer.Analyzer) *Index {
	idx := &Index{
		an:     an,
		logger: slog.Default().With("component", "index"),
	}
	idx.cur.Store(emptySnapshot())
	return idx
}

// Snapshot returns the current immutable index version.
func (idx *Index) Snapshot() *Snapshot {
	return idx.cur.Load()
}

// Analyzer returns the analyzer shared between indexing and queries.
func (idx *Index) Analyzer() *analyzer.Analyzer {
	return idx.an
}

// Apply applies one content store event. Created and Updated are
// interchangeable: any prior state for the document is removed first,
// so replaying an event is idempotent and an Updated for a never-seen
// document indexes it as if Created. A postings/reverse-index mismatch
// aborts the mutation with ErrIndexInconsistency and leaves the
// published snapshot untouched.
func (idx *Index) Apply(ev kb.DocumentEvent) error {
	if ev.Document.ID == "" {
		return pkgerrors.New(pkgerrors.ErrInvalidInput, 400, "event document has no ID")
	}
	switch ev.Type {
	case kb.EventCreated, kb.EventUpdated:
		return idx.upsert(ev.Document, true)
	case kb.EventDeleted:
		return idx.remove(ev.Document.ID)
	default:
		return pkgerrors.Newf(pkgerrors.ErrInvalidInput, 400, "unknown event type %q", ev.Type)
	}
}

// Reindex rebuilds a single document from a fresh content store copy,
// tolerating an inconsistent prior state. It is the recovery path after
// Apply fails with ErrIndexInconsistency.
func (idx *Index) Reindex(doc kb.Document) error {
	if doc.ID == "" {
		return pkgerrors.New(pkgerrors.ErrInvalidInput, 400, "document has no ID")
	}
	return idx.upsert(doc, false)
}

// Evict removes whatever trace of docID remains, tolerating
// inconsistency. Used during recovery when the content store no longer
// has the document.
func (idx *Index) Evict(docID string) {
	next := idx.cur.Load().clone()
	if removed, _ := next.removeDocument(docID, false); removed {
		idx.cur.Store(next)
	}
}

func (idx *Index) upsert(doc kb.Document, strict bool) error {
	entry, termPostings := idx.project(doc)
	next := idx.cur.Load().clone()
	if _, err := next.removeDocument(doc.ID, strict); err != nil {
		return err
	}
	next.insertDocument(entry, termPostings)
	idx.cur.Store(next)
	return nil
}

func (idx *Index) remove(docID string) error {
	next := idx.cur.Load().clone()
	removed, err := next.removeDocument(docID, true)
	if err != nil {
		return err
	}
	if removed {
		idx.cur.Store(next)
	}
	return nil
}

// project analyzes the document's fields and builds its index entry and
// per-term postings. Positions run over the concatenated
// title/summary/body token stream so they stay strictly increasing.
func (idx *Index) project(doc kb.Document) (*Entry, map[string]Posting) {
	title := idx.an.Analyze(doc.Title)
	summary := idx.an.Analyze(doc.Summary)
	body := idx.an.Analyze(doc.BodyText)

	termPostings := make(map[string]Posting, len(title)+len(summary)+len(body))
	offset := 0
	for _, field := range [][]analyzer.Token{title, summary, body} {
		for _, tok := range field {
			p := termPostings[tok.Term]
			p.DocID = doc.ID
			p.Frequency++
			p.Positions = append(p.Positions, offset+tok.Position)
			termPostings[tok.Term] = p
		}
		offset += len(field)
	}

	entry := &Entry{
		DocID:       doc.ID,
		Type:        doc.Type,
		CategoryID:  doc.CategoryID,
		TagIDs:      append([]string(nil), doc.TagIDs...),
		Status:      doc.Status,
		PublishedAt: doc.PublishedAt,
		FieldLengths: FieldLengths{
			Title:   len(title),
			Summary: len(summary),
			Body:    len(body),
		},
		Fields: StoredFields{
			Title:   doc.Title,
			Summary: doc.Summary,
			Body:    doc.BodyText,
		},
	}
	return entry, termPostings
}
