// Package store adapts the PostgreSQL content store to the narrow
// read interface the engine consumes. The content store owns document
// identity and all writes; the search engine only replays and fetches.
//
// Expected schema:
//
//	CREATE TABLE kb_documents (
//	    id           TEXT PRIMARY KEY,
//	    doc_type     TEXT NOT NULL,
//	    title        TEXT NOT NULL DEFAULT '',
//	    summary      TEXT NOT NULL DEFAULT '',
//	    category_id  TEXT,
//	    tag_ids      TEXT[] NOT NULL DEFAULT '{}',
//	    status       TEXT NOT NULL,
//	    body_text    TEXT NOT NULL DEFAULT '',
//	    published_at TIMESTAMPTZ
//	);
package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"github.com/deskwise/kbsearch/internal/kb"
	pkgerrors "github.com/deskwise/kbsearch/pkg/errors"
)

const selectColumns = `id, doc_type, title, summary, COALESCE(category_id, ''), tag_ids, status, body_text, published_at`

// PostgresStore reads knowledge base documents from PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgres wraps an open database handle.
func NewPostgres(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:     db,
		logger: slog.Default().With("component", "content-store"),
	}
}

// ListAllPublished returns every published document for cold-start
// replay, ordered by ID for deterministic rebuilds.
func (s *PostgresStore) ListAllPublished(ctx context.Context) ([]kb.Document, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM kb_documents WHERE status = $1 ORDER BY id`,
		string(kb.StatusPublished),
	)
	if err != nil {
		return nil, fmt.Errorf("querying published documents: %w", err)
	}
	defer rows.Close()

	var docs []kb.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating published documents: %w", err)
	}
	s.logger.Info("content store scan complete", "documents", len(docs))
	return docs, nil
}

// Get fetches one document by ID. A missing row returns
// ErrDocumentNotFound so the writer's recovery path can distinguish
// deletion from transient failure.
func (s *PostgresStore) Get(ctx context.Context, docID string) (kb.Document, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+selectColumns+` FROM kb_documents WHERE id = $1`,
		docID,
	)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return kb.Document{}, pkgerrors.Newf(pkgerrors.ErrDocumentNotFound, 404, "document %s", docID)
	}
	if err != nil {
		return kb.Document{}, err
	}
	return doc, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (kb.Document, error) {
	var doc kb.Document
	var tags pq.StringArray
	var publishedAt sql.NullTime
	err := row.Scan(
		&doc.ID,
		&doc.Type,
		&doc.Title,
		&doc.Summary,
		&doc.CategoryID,
		&tags,
		&doc.Status,
		&doc.BodyText,
		&publishedAt,
	)
	if err == sql.ErrNoRows {
		return kb.Document{}, err
	}
	if err != nil {
		return kb.Document{}, fmt.Errorf("scanning document row: %w", err)
	}
	doc.TagIDs = []string(tags)
	if publishedAt.Valid {
		t := publishedAt.Time
		doc.PublishedAt = &t
	}
	return doc, nil
}
