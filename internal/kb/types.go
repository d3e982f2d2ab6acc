// Package kb defines the shared data contracts of the knowledge base
// search engine: documents as published by the content store, search
// filters accepted from the application layer, and the result types
// returned by the engine.
package kb

import "time"

// DocType classifies a knowledge base document.
type DocType string

const (
	TypeArticle  DocType = "article"
	TypeVideo    DocType = "video"
	TypeDocument DocType = "document"
)

// Valid reports whether t is a known document type.
func (t DocType) Valid() bool {
	switch t {
	case TypeArticle, TypeVideo, TypeDocument:
		return true
	}
	return false
}

// DocStatus is the publication state of a document.
type DocStatus string

const (
	StatusDraft     DocStatus = "draft"
	StatusPublished DocStatus = "published"
)

// Valid reports whether s is a known document status.
func (s DocStatus) Valid() bool {
	return s == StatusDraft || s == StatusPublished
}

// Document is the content store's view of a knowledge base entry. The
// index holds a denormalized, eventually-consistent projection of it.
type Document struct {
	ID          string     `json:"id"`
	Type        DocType    `json:"type"`
	Title       string     `json:"title"`
	Summary     string     `json:"summary"`
	CategoryID  string     `json:"category_id,omitempty"`
	TagIDs      []string   `json:"tag_ids,omitempty"`
	Status      DocStatus  `json:"status"`
	BodyText    string     `json:"body_text"`
	PublishedAt *time.Time `json:"published_at,omitempty"`
}

// SearchFilters is the faceted query accepted by the engine. Zero-value
// fields impose no constraint; an empty Query makes the search
// facet-only, ranked by recency.
type SearchFilters struct {
	Query      string   `json:"query,omitempty"`
	Type       string   `json:"type,omitempty"`
	CategoryID string   `json:"category_id,omitempty"`
	TagIDs     []string `json:"tag_ids,omitempty"`
	Status     string   `json:"status,omitempty"`
}

// Highlight is a snippet extracted around the first query term match in
// one document field.
type Highlight struct {
	Field   string `json:"field"`
	Snippet string `json:"snippet"`
}

// SearchResult is one ranked hit. Score is non-negative; Highlights is
// empty for facet-only queries.
type SearchResult struct {
	DocumentID string      `json:"document_id"`
	Score      float64     `json:"score"`
	Highlights []Highlight `json:"highlights,omitempty"`
}

// PaginatedResponse wraps one page of results together with the total
// number of matches before pagination.
type PaginatedResponse[T any] struct {
	Items    []T `json:"items"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
	Total    int `json:"total"`
}
