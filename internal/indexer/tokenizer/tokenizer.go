// Package tokenizer provides text tokenisation for the search engine.
// Latin-script runs are case-folded and split on non-alphanumeric
// boundaries; CJK runs are handed to a dictionary segmenter. Stop-words and
// too-short terms are dropped.
package tokenizer

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const minLatinRunes = 2

var stopWords = map[string]struct{}{
	"a": {}, "an": {}, "and": {}, "are": {}, "as": {}, "at": {},
	"be": {}, "by": {}, "for": {}, "from": {}, "has": {}, "he": {},
	"in": {}, "is": {}, "it": {}, "its": {}, "of": {}, "on": {},
	"or": {}, "that": {}, "the": {}, "to": {}, "was": {}, "were": {},
	"will": {}, "with": {}, "this": {}, "but": {}, "they": {},
	"have": {}, "had": {}, "what": {}, "when": {}, "where": {},
	"who": {}, "which": {}, "their": {}, "if": {}, "each": {},
	"do": {}, "not": {}, "no": {}, "so": {}, "can": {},
	// CJK function words.
	"的": {}, "了": {}, "是": {}, "在": {}, "和": {}, "也": {},
	"就": {}, "都": {}, "而": {}, "及": {}, "与": {}, "着": {},
	"之": {}, "或": {}, "の": {}, "は": {}, "が": {}, "を": {},
}

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Segmenter splits a run of CJK text into words.
type Segmenter interface {
	Segment(text string) []string
}

// Tokenizer turns text into normalised terms. It is safe for concurrent use
// as long as its Segmenter is.
type Tokenizer struct {
	seg Segmenter
}

// New returns a Tokenizer that segments CJK runs with seg. A nil seg
// yields one term per CJK character.
func New(seg Segmenter) *Tokenizer {
	return &Tokenizer{seg: seg}
}

// Tokenize breaks text into a slice of normalised Tokens with stop-words
// removed. Identical input always yields an identical sequence.
func (t *Tokenizer) Tokenize(text string) []Token {
	text = norm.NFKC.String(text)
	tokens := make([]Token, 0, len(text)/6)
	pos := 0
	emit := func(term string) {
		if term == "" {
			return
		}
		if _, isStop := stopWords[term]; isStop {
			return
		}
		tokens = append(tokens, Token{Term: term, Position: pos})
		pos++
	}

	// A Caser is not safe for concurrent use.
	folder := cases.Fold()
	start := -1
	runCJK := false
	flush := func(end int) {
		if start < 0 {
			return
		}
		run := text[start:end]
		start = -1
		if runCJK {
			for _, word := range t.segment(run) {
				emit(word)
			}
			return
		}
		if utf8.RuneCountInString(run) < minLatinRunes {
			return
		}
		emit(folder.String(run))
	}

	for i, r := range text {
		switch {
		case IsCJK(r):
			if start >= 0 && !runCJK {
				flush(i)
			}
			if start < 0 {
				start, runCJK = i, true
			}
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if start >= 0 && runCJK {
				flush(i)
			}
			if start < 0 {
				start, runCJK = i, false
			}
		default:
			flush(i)
		}
	}
	flush(len(text))
	return tokens
}

// Terms returns just the term strings of Tokenize.
func (t *Tokenizer) Terms(text string) []string {
	tokens := t.Tokenize(text)
	terms := make([]string, len(tokens))
	for i, tok := range tokens {
		terms[i] = tok.Term
	}
	return terms
}

// Frequencies counts how often each distinct term occurs in text.
func (t *Tokenizer) Frequencies(text string) map[string]int {
	freqs := make(map[string]int)
	for _, tok := range t.Tokenize(text) {
		freqs[tok.Term]++
	}
	return freqs
}

func (t *Tokenizer) segment(run string) []string {
	if t.seg == nil {
		return splitRunes(run)
	}
	words := t.seg.Segment(run)
	out := make([]string, 0, len(words))
	for _, w := range words {
		w = strings.TrimSpace(w)
		if w == "" || !allCJK(w) {
			continue
		}
		out = append(out, w)
	}
	if len(out) == 0 {
		return splitRunes(run)
	}
	return out
}

// IsCJK reports whether r belongs to a script that is written without
// spaces between words.
func IsCJK(r rune) bool {
	return unicode.In(r, unicode.Han, unicode.Hiragana, unicode.Katakana, unicode.Hangul)
}

func allCJK(s string) bool {
	for _, r := range s {
		if !IsCJK(r) {
			return false
		}
	}
	return true
}

func splitRunes(s string) []string {
	out := make([]string, 0, utf8.RuneCountInString(s))
	for _, r := range s {
		out = append(out, string(r))
	}
	return out
}
