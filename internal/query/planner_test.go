package query

import (
	"errors"
	"reflect"
	"testing"

	"github.com/deskwise/kbsearch/internal/analyzer"
	"github.com/deskwise/kbsearch/internal/index"
	"github.com/deskwise/kbsearch/internal/kb"
	pkgerrors "github.com/deskwise/kbsearch/pkg/errors"
)

func TestPlanText(t *testing.T) {
	p := New(analyzer.New(nil))
	plan, err := p.Plan(kb.SearchFilters{Query: "The printers are offline"})
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"printer", "offlin"}; !reflect.DeepEqual(plan.Terms, want) {
		t.Errorf("Terms = %v, want %v", plan.Terms, want)
	}
	if len(plan.Facets) != 0 {
		t.Errorf("unexpected facets: %v", plan.Facets)
	}
	if plan.FacetOnly() {
		t.Error("text plan reported facet-only")
	}
}

func TestPlanFacets(t *testing.T) {
	p := New(analyzer.New(nil))
	plan, err := p.Plan(kb.SearchFilters{
		Type:       "article",
		Status:     "published",
		CategoryID: "cat-hw",
		TagIDs:     []string{"tag-a", "tag-b"},
	})
	if err != nil {
		t.Fatal(err)
	}
	if !plan.FacetOnly() {
		t.Error("facet plan not reported facet-only")
	}
	want := []index.FacetFilter{
		{Kind: index.FacetType, Value: "article"},
		{Kind: index.FacetStatus, Value: "published"},
		{Kind: index.FacetCategory, Value: "cat-hw"},
		{Kind: index.FacetTag, Value: "tag-a"},
		{Kind: index.FacetTag, Value: "tag-b"},
	}
	if !reflect.DeepEqual(plan.Facets, want) {
		t.Errorf("Facets = %v, want %v", plan.Facets, want)
	}
}

func TestPlanMalformed(t *testing.T) {
	p := New(analyzer.New(nil))
	tests := []struct {
		name    string
		filters kb.SearchFilters
	}{
		{"unknown type", kb.SearchFilters{Type: "podcast"}},
		{"unknown status", kb.SearchFilters{Status: "archived"}},
		{"empty tag", kb.SearchFilters{TagIDs: []string{"tag-a", " "}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := p.Plan(tt.filters)
			if !errors.Is(err, pkgerrors.ErrMalformedQuery) {
				t.Fatalf("err = %v", err)
			}
			if pkgerrors.HTTPStatusCode(err) != 400 {
				t.Errorf("status = %d", pkgerrors.HTTPStatusCode(err))
			}
			if plan != nil {
				t.Error("partial plan returned on error")
			}
		})
	}
}

func TestPlanEmptyFiltersIsFacetOnly(t *testing.T) {
	p := New(analyzer.New(nil))
	plan, err := p.Plan(kb.SearchFilters{})
	if err != nil {
		t.Fatal(err)
	}
	if !plan.FacetOnly() || len(plan.Facets) != 0 {
		t.Errorf("empty filters: terms=%v facets=%v", plan.Terms, plan.Facets)
	}
}

func TestPlanQueryUsesIndexAnalyzer(t *testing.T) {
	an := analyzer.New(nil)
	p := New(an)
	plan, err := p.Plan(kb.SearchFilters{Query: "Troubleshooting printers"})
	if err != nil {
		t.Fatal(err)
	}
	if want := an.Terms("Troubleshooting printers"); !reflect.DeepEqual(plan.Terms, want) {
		t.Errorf("plan terms %v differ from analyzer terms %v", plan.Terms, want)
	}
}
