// Package index implements the in-process inverted index for knowledge
// base documents: postings keyed by term, a reverse index from document
// to terms, per-facet secondary sets, and a single-writer mutation path
// that publishes immutable snapshots for lock-free reads.
package index

import "sort"

// Posting records one term's occurrences in one document. Positions are
// token positions over the document's concatenated field text, strictly
// increasing, with len(Positions) == Frequency.
type Posting struct {
	DocID     string
	Frequency int
	Positions []int
}

// PostingList holds the postings of a single term, ordered by DocID
// with no duplicates.
type PostingList []Posting

// find returns the index of docID in pl and whether it is present.
func (pl PostingList) find(docID string) (int, bool) {
	i := sort.Search(len(pl), func(i int) bool { return pl[i].DocID >= docID })
	return i, i < len(pl) && pl[i].DocID == docID
}

// Contains reports whether the list holds a posting for docID.
func (pl PostingList) Contains(docID string) bool {
	_, ok := pl.find(docID)
	return ok
}

// Get returns the posting for docID, if present.
func (pl PostingList) Get(docID string) (Posting, bool) {
	i, ok := pl.find(docID)
	if !ok {
		return Posting{}, false
	}
	return pl[i], true
}

// with returns a new list with p inserted or replaced, preserving DocID
// order. The receiver is never mutated.
func (pl PostingList) with(p Posting) PostingList {
	i, ok := pl.find(p.DocID)
	next := make(PostingList, 0, len(pl)+1)
	next = append(next, pl[:i]...)
	next = append(next, p)
	if ok {
		next = append(next, pl[i+1:]...)
	} else {
		next = append(next, pl[i:]...)
	}
	return next
}

// without returns a new list with docID's posting removed, and whether
// a posting was actually present. The receiver is never mutated.
func (pl PostingList) without(docID string) (PostingList, bool) {
	i, ok := pl.find(docID)
	if !ok {
		return pl, false
	}
	next := make(PostingList, 0, len(pl)-1)
	next = append(next, pl[:i]...)
	next = append(next, pl[i+1:]...)
	return next, true
}

// DocIDs returns the ordered document IDs of the list.
func (pl PostingList) DocIDs() []string {
	ids := make([]string, len(pl))
	for i, p := range pl {
		ids[i] = p.DocID
	}
	return ids
}

// Intersect merge-joins the given lists and returns the DocIDs present
// in every one of them, in ascending order. Cost is linear in the sum
// of the list lengths.
func Intersect(lists []PostingList) []string {
	if len(lists) == 0 {
		return nil
	}
	for _, l := range lists {
		if len(l) == 0 {
			return nil
		}
	}
	result := make([]string, 0, len(lists[0]))
	cursors := make([]int, len(lists))
outer:
	for cursors[0] < len(lists[0]) {
		candidate := lists[0][cursors[0]].DocID
		for li := 1; li < len(lists); li++ {
			for cursors[li] < len(lists[li]) && lists[li][cursors[li]].DocID < candidate {
				cursors[li]++
			}
			if cursors[li] == len(lists[li]) {
				break outer
			}
			if lists[li][cursors[li]].DocID != candidate {
				cursors[0]++
				continue outer
			}
		}
		result = append(result, candidate)
		cursors[0]++
	}
	return result
}

// Union returns the distinct DocIDs present in any of the lists, in
// ascending order.
func Union(lists []PostingList) []string {
	seen := make(map[string]struct{})
	for _, l := range lists {
		for _, p := range l {
			seen[p.DocID] = struct{}{}
		}
	}
	result := make([]string, 0, len(seen))
	for id := range seen {
		result = append(result, id)
	}
	sort.Strings(result)
	return result
}
