package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/deskwise/kbsearch/internal/kb"
	pkgerrors "github.com/deskwise/kbsearch/pkg/errors"
)

type fakeSearcher struct {
	lastFilters  kb.SearchFilters
	lastPage     int
	lastPageSize int
	resp         *kb.PaginatedResponse[kb.SearchResult]
	err          error
}

func (f *fakeSearcher) Search(_ context.Context, filters kb.SearchFilters, page, pageSize int) (*kb.PaginatedResponse[kb.SearchResult], error) {
	f.lastFilters = filters
	f.lastPage = page
	f.lastPageSize = pageSize
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func doSearch(t *testing.T, h *Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h.Search(rec, req)
	return rec
}

func TestSearchParsesParams(t *testing.T) {
	searcher := &fakeSearcher{resp: &kb.PaginatedResponse[kb.SearchResult]{
		Items:    []kb.SearchResult{{DocumentID: "doc-1", Score: 1.5}},
		Page:     2,
		PageSize: 5,
		Total:    11,
	}}
	h := New(searcher, nil, nil, nil)

	rec := doSearch(t, h, "/api/v1/search?q=printer+offline&type=article&category=cat-hw&tags=tag-a,tag-b&status=published&page=2&page_size=5")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d body = %s", rec.Code, rec.Body.String())
	}

	want := kb.SearchFilters{
		Query:      "printer offline",
		Type:       "article",
		CategoryID: "cat-hw",
		TagIDs:     []string{"tag-a", "tag-b"},
		Status:     "published",
	}
	got := searcher.lastFilters
	if got.Query != want.Query || got.Type != want.Type || got.CategoryID != want.CategoryID ||
		got.Status != want.Status || len(got.TagIDs) != 2 {
		t.Errorf("filters = %+v, want %+v", got, want)
	}
	if searcher.lastPage != 2 || searcher.lastPageSize != 5 {
		t.Errorf("page=%d size=%d", searcher.lastPage, searcher.lastPageSize)
	}

	var resp kb.PaginatedResponse[kb.SearchResult]
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatal(err)
	}
	if resp.Total != 11 || len(resp.Items) != 1 || resp.Items[0].DocumentID != "doc-1" {
		t.Errorf("response = %+v", resp)
	}
}

func TestSearchDefaultsPagination(t *testing.T) {
	searcher := &fakeSearcher{resp: &kb.PaginatedResponse[kb.SearchResult]{}}
	h := New(searcher, nil, nil, nil)

	rec := doSearch(t, h, "/api/v1/search?q=printer")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if searcher.lastPage != 1 || searcher.lastPageSize != 0 {
		t.Errorf("defaults: page=%d size=%d", searcher.lastPage, searcher.lastPageSize)
	}
}

func TestSearchRejectsBadPagination(t *testing.T) {
	h := New(&fakeSearcher{}, nil, nil, nil)
	for _, target := range []string{
		"/api/v1/search?page=0",
		"/api/v1/search?page=abc",
		"/api/v1/search?page_size=-3",
	} {
		rec := doSearch(t, h, target)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s: status = %d", target, rec.Code)
		}
	}
}

func TestSearchMapsEngineErrors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		hideDetail bool
	}{
		{"malformed", pkgerrors.New(pkgerrors.ErrMalformedQuery, 400, "unknown document type"), 400, false},
		{"timeout", pkgerrors.New(pkgerrors.ErrTimeout, 503, "ranking aborted"), 503, true},
		{"internal", pkgerrors.New(pkgerrors.ErrInternal, 500, "sensitive detail"), 500, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := New(&fakeSearcher{err: tt.err}, nil, nil, nil)
			rec := doSearch(t, h, "/api/v1/search?q=printer")
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
				t.Fatal(err)
			}
			if tt.hideDetail && body["error"] != "search failed" {
				t.Errorf("5xx leaked detail: %q", body["error"])
			}
			if !tt.hideDetail && body["error"] == "search failed" {
				t.Errorf("4xx hid detail: %q", body["error"])
			}
		})
	}
}

func TestCacheEndpointsWithoutRedis(t *testing.T) {
	h := New(&fakeSearcher{}, nil, nil, nil)

	rec := httptest.NewRecorder()
	h.CacheStats(rec, httptest.NewRequest(http.MethodGet, "/api/v1/cache/stats", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("stats status = %d", rec.Code)
	}
	var stats map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &stats); err != nil {
		t.Fatal(err)
	}
	if stats["status"] != "disabled" {
		t.Errorf("stats = %v", stats)
	}

	rec = httptest.NewRecorder()
	h.CacheInvalidate(rec, httptest.NewRequest(http.MethodPost, "/api/v1/cache/invalidate", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("invalidate status = %d", rec.Code)
	}
}
