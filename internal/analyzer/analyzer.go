// Package analyzer turns raw document text into normalized terms. It
// lower-cases input, splits on Unicode word boundaries, removes stop
// words and short tokens, and stems with the snowball algorithm. The
// same analyzer instance is used for indexing and for queries so that
// a term produced at index time is always reachable at query time.
package analyzer

import (
	"strings"
	"unicode"

	"github.com/kljensen/snowball"
)

const minTokenLen = 2

// Token is a single normalized term together with its token position
// and the byte range it was extracted from in the original text.
type Token struct {
	Term     string
	Position int
	Start    int
	End      int
}

// Analyzer is a deterministic, side-effect-free text analyzer.
type Analyzer struct {
	stop map[string]struct{}
}

// New creates an Analyzer. If stopWords is nil the default English stop
// word set is used; passing an empty slice disables stop word removal.
func New(stopWords []string) *Analyzer {
	stop := defaultStopWords
	if stopWords != nil {
		stop = make(map[string]struct{}, len(stopWords))
		for _, w := range stopWords {
			stop[strings.ToLower(w)] = struct{}{}
		}
	}
	return &Analyzer{stop: stop}
}

// Analyze breaks text into a slice of stemmed, lowercased Tokens with
// stop words removed. Token positions are contiguous starting at 0;
// Start/End are byte offsets into the input.
func (a *Analyzer) Analyze(text string) []Token {
	tokens := make([]Token, 0, len(text)/8)
	pos := 0
	start := -1
	flush := func(end int) {
		if start < 0 {
			return
		}
		word := strings.ToLower(text[start:end])
		wordStart := start
		start = -1
		if len([]rune(word)) < minTokenLen {
			return
		}
		if _, isStop := a.stop[word]; isStop {
			return
		}
		stemmed, err := snowball.Stem(word, "english", true)
		if err != nil || stemmed == "" {
			stemmed = word
		}
		tokens = append(tokens, Token{
			Term:     stemmed,
			Position: pos,
			Start:    wordStart,
			End:      end,
		})
		pos++
	}
	for i, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if start < 0 {
				start = i
			}
			continue
		}
		flush(i)
	}
	flush(len(text))
	return tokens
}

// Terms returns just the normalized terms of Analyze, in order.
func (a *Analyzer) Terms(text string) []string {
	tokens := a.Analyze(text)
	terms := make([]string, len(tokens))
	for i, t := range tokens {
		terms[i] = t.Term
	}
	return terms
}
