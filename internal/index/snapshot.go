package index

import (
	"sort"

	pkgerrors "github.com/deskwise/kbsearch/pkg/errors"
)

// Snapshot is one immutable version of the index. Readers obtain a
// Snapshot from Index.Snapshot and may use it concurrently without
// locking; every value reachable from it is frozen. Writers derive the
// next version through withDocument/withoutDocument, which copy map
// headers and any touched values but share everything else with the
// previous version.
type Snapshot struct {
	postings map[string]PostingList
	docTerms map[string][]string
	docs     map[string]*Entry

	byType     map[string]map[string]struct{}
	byCategory map[string]map[string]struct{}
	byTag      map[string]map[string]struct{}
	byStatus   map[string]map[string]struct{}

	totalTokens int64
}

func emptySnapshot() *Snapshot {
	return &Snapshot{
		postings:   make(map[string]PostingList),
		docTerms:   make(map[string][]string),
		docs:       make(map[string]*Entry),
		byType:     make(map[string]map[string]struct{}),
		byCategory: make(map[string]map[string]struct{}),
		byTag:      make(map[string]map[string]struct{}),
		byStatus:   make(map[string]map[string]struct{}),
	}
}

// Postings returns the term's posting list. Unknown terms yield an
// empty list, not an error.
func (s *Snapshot) Postings(term string) PostingList {
	return s.postings[term]
}

// DocFreq returns the number of documents containing term.
func (s *Snapshot) DocFreq(term string) int {
	return len(s.postings[term])
}

// Entry returns the metadata entry for docID, if indexed.
func (s *Snapshot) Entry(docID string) (*Entry, bool) {
	e, ok := s.docs[docID]
	return e, ok
}

// DocCount returns the number of indexed documents.
func (s *Snapshot) DocCount() int {
	return len(s.docs)
}

// TermCount returns the number of distinct terms in the index.
func (s *Snapshot) TermCount() int {
	return len(s.postings)
}

// AvgDocLength returns the mean token count per document.
func (s *Snapshot) AvgDocLength() float64 {
	if len(s.docs) == 0 {
		return 0
	}
	return float64(s.totalTokens) / float64(len(s.docs))
}

// EachEntry calls fn for every indexed document until fn returns false.
// Iteration order is unspecified.
func (s *Snapshot) EachEntry(fn func(*Entry) bool) {
	for _, e := range s.docs {
		if !fn(e) {
			return
		}
	}
}

// facetSet returns the ID set for one facet value; nil when no document
// carries that value.
func (s *Snapshot) facetSet(f FacetFilter) map[string]struct{} {
	switch f.Kind {
	case FacetType:
		return s.byType[f.Value]
	case FacetCategory:
		return s.byCategory[f.Value]
	case FacetTag:
		return s.byTag[f.Value]
	case FacetStatus:
		return s.byStatus[f.Value]
	}
	return nil
}

// FilterFacets intersects the ID sets of all facet constraints,
// smallest set first. The second return value is false when no filters
// were given, meaning the result does not constrain candidates.
func (s *Snapshot) FilterFacets(filters []FacetFilter) (map[string]struct{}, bool) {
	if len(filters) == 0 {
		return nil, false
	}
	sets := make([]map[string]struct{}, 0, len(filters))
	for _, f := range filters {
		set := s.facetSet(f)
		if len(set) == 0 {
			return map[string]struct{}{}, true
		}
		sets = append(sets, set)
	}
	sort.Slice(sets, func(i, j int) bool { return len(sets[i]) < len(sets[j]) })

	result := make(map[string]struct{}, len(sets[0]))
	for id := range sets[0] {
		result[id] = struct{}{}
	}
	for _, set := range sets[1:] {
		for id := range result {
			if _, ok := set[id]; !ok {
				delete(result, id)
			}
		}
		if len(result) == 0 {
			break
		}
	}
	return result, true
}

// clone copies every map header so the new version can diverge without
// touching the receiver. Posting lists, term slices, entries, and facet
// inner sets stay shared until individually replaced.
func (s *Snapshot) clone() *Snapshot {
	next := &Snapshot{
		postings:    make(map[string]PostingList, len(s.postings)),
		docTerms:    make(map[string][]string, len(s.docTerms)),
		docs:        make(map[string]*Entry, len(s.docs)),
		byType:      make(map[string]map[string]struct{}, len(s.byType)),
		byCategory:  make(map[string]map[string]struct{}, len(s.byCategory)),
		byTag:       make(map[string]map[string]struct{}, len(s.byTag)),
		byStatus:    make(map[string]map[string]struct{}, len(s.byStatus)),
		totalTokens: s.totalTokens,
	}
	for term, pl := range s.postings {
		next.postings[term] = pl
	}
	for id, terms := range s.docTerms {
		next.docTerms[id] = terms
	}
	for id, e := range s.docs {
		next.docs[id] = e
	}
	for v, set := range s.byType {
		next.byType[v] = set
	}
	for v, set := range s.byCategory {
		next.byCategory[v] = set
	}
	for v, set := range s.byTag {
		next.byTag[v] = set
	}
	for v, set := range s.byStatus {
		next.byStatus[v] = set
	}
	return next
}

// checkDocConsistency verifies that every reverse-index term for docID
// actually holds a posting for it. A mismatch is a programming
// invariant violation; callers must abort the mutation.
func (s *Snapshot) checkDocConsistency(docID string) error {
	terms, ok := s.docTerms[docID]
	if !ok {
		return nil
	}
	if _, ok := s.docs[docID]; !ok {
		return pkgerrors.Newf(pkgerrors.ErrIndexInconsistency, 500,
			"document %s has reverse-index terms but no metadata entry", docID)
	}
	for _, term := range terms {
		if !s.postings[term].Contains(docID) {
			return pkgerrors.Newf(pkgerrors.ErrIndexInconsistency, 500,
				"document %s listed under term %q but posting is missing", docID, term)
		}
	}
	return nil
}

// removeDocument strips all traces of docID from the (already cloned)
// snapshot: postings via the reverse index, metadata, and facet sets.
// Terms whose posting list becomes empty are deleted so that a full
// add/remove cycle restores the exact prior term set. When strict is
// true, any postings/reverse-index mismatch aborts with
// ErrIndexInconsistency before anything is modified.
func (next *Snapshot) removeDocument(docID string, strict bool) (bool, error) {
	if strict {
		if err := next.checkDocConsistency(docID); err != nil {
			return false, err
		}
	}
	entry, hadEntry := next.docs[docID]
	terms, hadTerms := next.docTerms[docID]
	if !hadEntry && !hadTerms {
		return false, nil
	}
	for _, term := range terms {
		pl, removed := next.postings[term].without(docID)
		if !removed {
			continue
		}
		if len(pl) == 0 {
			delete(next.postings, term)
		} else {
			next.postings[term] = pl
		}
	}
	delete(next.docTerms, docID)
	if hadEntry {
		delete(next.docs, docID)
		next.totalTokens -= int64(entry.FieldLengths.Total())
		next.dropFacets(entry)
	}
	return true, nil
}

// insertDocument adds the entry and its postings to the (already
// cloned) snapshot. Any prior state for the DocID must have been
// removed first.
func (next *Snapshot) insertDocument(entry *Entry, termPostings map[string]Posting) {
	terms := make([]string, 0, len(termPostings))
	for term, p := range termPostings {
		next.postings[term] = next.postings[term].with(p)
		terms = append(terms, term)
	}
	sort.Strings(terms)
	if len(terms) > 0 {
		next.docTerms[entry.DocID] = terms
	}
	next.docs[entry.DocID] = entry
	next.totalTokens += int64(entry.FieldLengths.Total())
	next.addFacets(entry)
}

func (next *Snapshot) addFacets(e *Entry) {
	addFacet(next.byType, string(e.Type), e.DocID)
	addFacet(next.byStatus, string(e.Status), e.DocID)
	if e.CategoryID != "" {
		addFacet(next.byCategory, e.CategoryID, e.DocID)
	}
	for _, tag := range e.TagIDs {
		addFacet(next.byTag, tag, e.DocID)
	}
}

func (next *Snapshot) dropFacets(e *Entry) {
	dropFacet(next.byType, string(e.Type), e.DocID)
	dropFacet(next.byStatus, string(e.Status), e.DocID)
	if e.CategoryID != "" {
		dropFacet(next.byCategory, e.CategoryID, e.DocID)
	}
	for _, tag := range e.TagIDs {
		dropFacet(next.byTag, tag, e.DocID)
	}
}

// addFacet inserts docID into the value's set, copying the set first so
// prior snapshots stay frozen.
func addFacet(m map[string]map[string]struct{}, value, docID string) {
	prev := m[value]
	set := make(map[string]struct{}, len(prev)+1)
	for id := range prev {
		set[id] = struct{}{}
	}
	set[docID] = struct{}{}
	m[value] = set
}

// dropFacet removes docID from the value's set, deleting the value key
// entirely when the set empties.
func dropFacet(m map[string]map[string]struct{}, value, docID string) {
	prev, ok := m[value]
	if !ok {
		return
	}
	if _, ok := prev[docID]; !ok {
		return
	}
	if len(prev) == 1 {
		delete(m, value)
		return
	}
	set := make(map[string]struct{}, len(prev)-1)
	for id := range prev {
		if id != docID {
			set[id] = struct{}{}
		}
	}
	m[value] = set
}
