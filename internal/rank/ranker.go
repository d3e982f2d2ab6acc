// Package rank scores candidate documents and produces ordered,
// highlighted results: BM25 over the analyzed text clause, recency for
// facet-only queries.
package rank

import (
	"context"
	"math"
	"sort"

	"github.com/deskwise/kbsearch/internal/analyzer"
	"github.com/deskwise/kbsearch/internal/index"
	pkgerrors "github.com/deskwise/kbsearch/pkg/errors"
)

// BM25 constants.
const (
	k1 = 1.2
	b  = 0.75
)

// ctxCheckInterval bounds how often the scoring loops poll the context
// deadline on pathological candidate sets.
const ctxCheckInterval = 4096

// ScoredDoc is one ranked candidate.
type ScoredDoc struct {
	DocID string  `json:"doc_id"`
	Score float64 `json:"score"`
}

// Ranker scores candidates against a frozen index snapshot.
type Ranker struct {
	an            *analyzer.Analyzer
	snippetRadius int
	topKThreshold int
}

// New creates a Ranker. snippetRadius is the highlight window in bytes
// on each side of the first match; topKThreshold switches ranking to a
// bounded heap when the candidate count exceeds it (0 disables).
func New(an *analyzer.Analyzer, snippetRadius, topKThreshold int) *Ranker {
	if snippetRadius <= 0 {
		snippetRadius = 60
	}
	return &Ranker{
		an:            an,
		snippetRadius: snippetRadius,
		topKThreshold: topKThreshold,
	}
}

// RankText scores every candidate with BM25 over the query terms: a
// term contributes IDF-weighted, length-normalized term frequency for
// each candidate containing it and zero otherwise. The result is
// ordered by score descending, DocID ascending, a total order for
// reproducible pagination. limit bounds the returned slice only when
// the top-k heap engages; the second return value is always the full
// candidate count.
func (r *Ranker) RankText(
	ctx context.Context,
	snap *index.Snapshot,
	terms []string,
	candidates map[string]struct{},
	limit int,
) ([]ScoredDoc, int, error) {
	n := snap.DocCount()
	avgLen := snap.AvgDocLength()
	scores := make(map[string]float64, len(candidates))

	steps := 0
	for _, term := range terms {
		postings := snap.Postings(term)
		df := len(postings)
		if df == 0 {
			continue
		}
		idf := computeIDF(n, df)
		for _, p := range postings {
			if steps++; steps%ctxCheckInterval == 0 {
				if err := ctx.Err(); err != nil {
					return nil, 0, pkgerrors.Newf(pkgerrors.ErrTimeout, 503, "ranking aborted: %v", err)
				}
			}
			if _, ok := candidates[p.DocID]; !ok {
				continue
			}
			entry, ok := snap.Entry(p.DocID)
			if !ok {
				continue
			}
			scores[p.DocID] += idf * computeTFNorm(
				float64(p.Frequency),
				float64(entry.FieldLengths.Total()),
				avgLen,
			)
		}
	}

	return r.order(scores, limit), len(scores), nil
}

// RankRecency scores candidates by publication time for facet-only
// queries: score is the publishedAt unix timestamp, unpublished
// documents score zero, ties break by DocID ascending.
func (r *Ranker) RankRecency(
	ctx context.Context,
	snap *index.Snapshot,
	candidates map[string]struct{},
	restricted bool,
	limit int,
) ([]ScoredDoc, int, error) {
	scores := make(map[string]float64)
	steps := 0
	score := func(e *index.Entry) bool {
		if steps++; steps%ctxCheckInterval == 0 {
			if ctx.Err() != nil {
				return false
			}
		}
		var s float64
		if e.PublishedAt != nil {
			if unix := e.PublishedAt.Unix(); unix > 0 {
				s = float64(unix)
			}
		}
		scores[e.DocID] = s
		return true
	}
	if restricted {
		for id := range candidates {
			if e, ok := snap.Entry(id); ok {
				if !score(e) {
					break
				}
			}
		}
	} else {
		snap.EachEntry(score)
	}
	if err := ctx.Err(); err != nil {
		return nil, 0, pkgerrors.Newf(pkgerrors.ErrTimeout, 503, "ranking aborted: %v", err)
	}
	return r.order(scores, limit), len(scores), nil
}

// order sorts the score map into the total order, using the bounded
// heap when the candidate count crosses the configured threshold.
func (r *Ranker) order(scores map[string]float64, limit int) []ScoredDoc {
	if r.topKThreshold > 0 && limit > 0 && len(scores) > r.topKThreshold {
		return topK(scores, limit)
	}
	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		result = append(result, ScoredDoc{DocID: docID, Score: score})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocID < result[j].DocID
	})
	return result
}

func computeIDF(totalDocs, docFreq int) float64 {
	numerator := float64(totalDocs) - float64(docFreq) + 0.5
	denominator := float64(docFreq) + 0.5
	return math.Log(1 + numerator/denominator)
}

func computeTFNorm(termFreq, docLength, avgDocLength float64) float64 {
	if avgDocLength == 0 {
		return 0
	}
	lengthRatio := docLength / avgDocLength
	denominator := termFreq + k1*(1-b+b*lengthRatio)
	return (termFreq * (k1 + 1)) / denominator
}
