package rank

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/deskwise/kbsearch/internal/analyzer"
	"github.com/deskwise/kbsearch/internal/index"
)

func testEntry(title, summary, body string) *index.Entry {
	return &index.Entry{
		DocID:  "doc-1",
		Fields: index.StoredFields{Title: title, Summary: summary, Body: body},
	}
}

func TestHighlightsPerField(t *testing.T) {
	an := analyzer.New(nil)
	r := New(an, 60, 0)
	entry := testEntry(
		"Printer offline after update",
		"What to do when the office printer stops responding.",
		"No mention of the device here.",
	)
	got := r.Highlights(entry, []string{"printer"})
	if len(got) != 2 {
		t.Fatalf("highlights = %v", got)
	}
	if got[0].Field != "title" || got[1].Field != "summary" {
		t.Errorf("field order = %v", got)
	}
	if !strings.Contains(strings.ToLower(got[0].Snippet), "printer") {
		t.Errorf("title snippet misses term: %q", got[0].Snippet)
	}
}

func TestHighlightsWindow(t *testing.T) {
	an := analyzer.New(nil)
	r := New(an, 10, 0)
	body := strings.Repeat("x ", 40) + "printer" + strings.Repeat(" y", 40)
	got := r.Highlights(testEntry("", "", body), []string{"printer"})
	if len(got) != 1 {
		t.Fatalf("highlights = %v", got)
	}
	snippet := got[0].Snippet
	if !strings.Contains(snippet, "printer") {
		t.Fatalf("snippet misses match: %q", snippet)
	}
	// Window is the match plus at most 10 bytes on each side, trimmed.
	if len(snippet) > len("printer")+20 {
		t.Errorf("snippet too wide (%d bytes): %q", len(snippet), snippet)
	}
	if snippet != strings.TrimSpace(snippet) {
		t.Errorf("snippet not trimmed: %q", snippet)
	}
}

func TestHighlightsStemmedMatch(t *testing.T) {
	an := analyzer.New(nil)
	r := New(an, 60, 0)
	// Query term is the stem; the stored text has the inflected form.
	got := r.Highlights(testEntry("Replacing printers", "", ""), []string{"printer"})
	if len(got) != 1 {
		t.Fatalf("stemmed form not matched: %v", got)
	}
	if !strings.Contains(got[0].Snippet, "printers") {
		t.Errorf("snippet = %q", got[0].Snippet)
	}
}

func TestHighlightsRuneBoundaries(t *testing.T) {
	an := analyzer.New(nil)
	r := New(an, 3, 0)
	body := "héllo wörld printer dönè ökay"
	got := r.Highlights(testEntry("", "", body), []string{"printer"})
	if len(got) != 1 {
		t.Fatalf("highlights = %v", got)
	}
	if !utf8.ValidString(got[0].Snippet) {
		t.Errorf("snippet sliced through a rune: %q", got[0].Snippet)
	}
}

func TestHighlightsFacetOnly(t *testing.T) {
	an := analyzer.New(nil)
	r := New(an, 60, 0)
	if got := r.Highlights(testEntry("Printer offline", "", ""), nil); got != nil {
		t.Errorf("facet-only query produced highlights: %v", got)
	}
}

func TestHighlightsNoMatch(t *testing.T) {
	an := analyzer.New(nil)
	r := New(an, 60, 0)
	if got := r.Highlights(testEntry("Monitor flicker", "", ""), []string{"printer"}); got != nil {
		t.Errorf("unmatched term produced highlights: %v", got)
	}
}
