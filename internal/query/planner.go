// Package query turns SearchFilters into a structured, validated query
// plan: the analyzed free-text terms plus a tagged facet clause per
// constrained attribute.
package query

import (
	"strings"

	"github.com/deskwise/kbsearch/internal/analyzer"
	"github.com/deskwise/kbsearch/internal/index"
	"github.com/deskwise/kbsearch/internal/kb"
	pkgerrors "github.com/deskwise/kbsearch/pkg/errors"
)

// Plan is the ephemeral execution plan for one search request. Terms
// and Facets both combine conjunctively: a candidate document must
// contain every term and satisfy every facet.
type Plan struct {
	Terms  []string
	Facets []index.FacetFilter
	Raw    kb.SearchFilters
}

// FacetOnly reports whether the plan has no free-text clause, in which
// case ranking falls back to recency.
func (p *Plan) FacetOnly() bool {
	return len(p.Terms) == 0
}

// Planner validates filters and analyzes query text with the same
// analyzer used at index time, so a term produced while indexing is
// always reachable by a query using the same literal text.
type Planner struct {
	an *analyzer.Analyzer
}

// New creates a Planner sharing the index's analyzer.
func New(an *analyzer.Analyzer) *Planner {
	return &Planner{an: an}
}

// Plan validates the filters and builds the query plan. An unknown type
// or status value is a malformed query: the error is surfaced and no
// partial plan is returned. Absent facet fields impose no constraint.
func (p *Planner) Plan(filters kb.SearchFilters) (*Plan, error) {
	plan := &Plan{Raw: filters}

	if filters.Type != "" {
		if !kb.DocType(filters.Type).Valid() {
			return nil, pkgerrors.Newf(pkgerrors.ErrMalformedQuery, 400,
				"unknown document type %q", filters.Type)
		}
		plan.Facets = append(plan.Facets, index.FacetFilter{Kind: index.FacetType, Value: filters.Type})
	}
	if filters.Status != "" {
		if !kb.DocStatus(filters.Status).Valid() {
			return nil, pkgerrors.Newf(pkgerrors.ErrMalformedQuery, 400,
				"unknown document status %q", filters.Status)
		}
		plan.Facets = append(plan.Facets, index.FacetFilter{Kind: index.FacetStatus, Value: filters.Status})
	}
	if filters.CategoryID != "" {
		plan.Facets = append(plan.Facets, index.FacetFilter{Kind: index.FacetCategory, Value: filters.CategoryID})
	}
	for _, tag := range filters.TagIDs {
		tag = strings.TrimSpace(tag)
		if tag == "" {
			return nil, pkgerrors.New(pkgerrors.ErrMalformedQuery, 400, "empty tag ID in filter")
		}
		plan.Facets = append(plan.Facets, index.FacetFilter{Kind: index.FacetTag, Value: tag})
	}

	for _, tok := range p.an.Analyze(filters.Query) {
		plan.Terms = append(plan.Terms, tok.Term)
	}
	return plan, nil
}
