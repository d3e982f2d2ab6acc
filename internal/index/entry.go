package index

import (
	"time"

	"github.com/deskwise/kbsearch/internal/kb"
)

// FieldLengths holds the token count of each analyzed document field.
type FieldLengths struct {
	Title   int
	Summary int
	Body    int
}

// Total is the document length used for BM25 normalization.
func (f FieldLengths) Total() int {
	return f.Title + f.Summary + f.Body
}

// StoredFields keeps the raw field text needed for snippet extraction
// without a round trip to the content store.
type StoredFields struct {
	Title   string
	Summary string
	Body    string
}

// Entry is the index-side projection of a document: the metadata needed
// for facet filtering and length-normalized ranking. It must stay in
// sync with the postings referencing the same DocID.
type Entry struct {
	DocID        string
	Type         kb.DocType
	CategoryID   string
	TagIDs       []string
	Status       kb.DocStatus
	PublishedAt  *time.Time
	FieldLengths FieldLengths
	Fields       StoredFields
}

// FacetKind enumerates the filterable document attributes.
type FacetKind int

const (
	FacetType FacetKind = iota
	FacetCategory
	FacetTag
	FacetStatus
)

// String returns the facet kind name used in logs and errors.
func (k FacetKind) String() string {
	switch k {
	case FacetType:
		return "type"
	case FacetCategory:
		return "category"
	case FacetTag:
		return "tag"
	case FacetStatus:
		return "status"
	}
	return "unknown"
}

// FacetFilter is one facet constraint of a query plan: the document
// must carry Value for the given facet kind. Multiple filters combine
// with AND semantics.
type FacetFilter struct {
	Kind  FacetKind
	Value string
}
