package rank

import (
	"strings"
	"unicode/utf8"

	"github.com/deskwise/kbsearch/internal/index"
	"github.com/deskwise/kbsearch/internal/kb"
)

// highlight fields are tried in this order; each matched field yields
// at most one snippet.
var highlightFields = []string{"title", "summary", "body"}

// Highlights extracts one snippet per matched field: a window of
// snippetRadius bytes on each side of the field's first query term
// occurrence, snapped to rune boundaries. Facet-only queries (no
// terms) produce no highlights.
func (r *Ranker) Highlights(entry *index.Entry, terms []string) []kb.Highlight {
	if len(terms) == 0 {
		return nil
	}
	termSet := make(map[string]struct{}, len(terms))
	for _, t := range terms {
		termSet[t] = struct{}{}
	}
	var highlights []kb.Highlight
	for _, field := range highlightFields {
		text := entry.Fields.Title
		switch field {
		case "summary":
			text = entry.Fields.Summary
		case "body":
			text = entry.Fields.Body
		}
		if text == "" {
			continue
		}
		snippet, ok := r.snippet(text, termSet)
		if !ok {
			continue
		}
		highlights = append(highlights, kb.Highlight{Field: field, Snippet: snippet})
	}
	return highlights
}

// snippet re-analyzes the stored field text, which is deterministic and
// identical to the index-time analysis, and cuts a window around the
// first token whose term matches the query.
func (r *Ranker) snippet(text string, termSet map[string]struct{}) (string, bool) {
	for _, tok := range r.an.Analyze(text) {
		if _, ok := termSet[tok.Term]; !ok {
			continue
		}
		start := tok.Start - r.snippetRadius
		if start < 0 {
			start = 0
		}
		end := tok.End + r.snippetRadius
		if end > len(text) {
			end = len(text)
		}
		for start > 0 && !utf8.RuneStart(text[start]) {
			start--
		}
		for end < len(text) && !utf8.RuneStart(text[end]) {
			end++
		}
		return strings.TrimSpace(text[start:end]), true
	}
	return "", false
}
