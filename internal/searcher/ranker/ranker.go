// Package ranker scores candidate documents with TF-IDF and pages through the
// ranked list.
package ranker

import (
	"math"
	"sort"

	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/index"
)

type ScoredDoc struct {
	DocID int64   `json:"doc_id"`
	Score float64 `json:"score"`
}

// TermPostings is everything the ranker needs about one query term.
type TermPostings struct {
	Term     string
	DocFreq  int64
	Postings index.PostingList
}

// Rank scores every document that matches at least one term with
// sum(tf * ln(totalDocs / df)) and orders them by score descending, then by
// document id descending. Repeated terms are counted once.
func Rank(terms []TermPostings, totalDocs int64) []ScoredDoc {
	if totalDocs <= 0 || len(terms) == 0 {
		return []ScoredDoc{}
	}
	seen := make(map[string]struct{}, len(terms))
	scores := make(map[int64]float64)
	for _, tp := range terms {
		if _, dup := seen[tp.Term]; dup {
			continue
		}
		seen[tp.Term] = struct{}{}
		idf := computeIDF(totalDocs, tp.DocFreq)
		for _, p := range tp.Postings {
			scores[p.DocID] += float64(p.Frequency) * idf
		}
	}

	result := make([]ScoredDoc, 0, len(scores))
	for docID, score := range scores {
		result = append(result, ScoredDoc{
			DocID: docID,
			Score: math.Round(score*10000) / 10000,
		})
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Score != result[j].Score {
			return result[i].Score > result[j].Score
		}
		return result[i].DocID > result[j].DocID
	})
	return result
}

// UniqueTerms drops repeated terms, keeping first occurrences in order.
func UniqueTerms(terms []string) []string {
	seen := make(map[string]struct{}, len(terms))
	out := make([]string, 0, len(terms))
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// computeIDF is ln(N/df), 0 for an unknown term, and never negative when a
// stale df exceeds N.
func computeIDF(totalDocs, docFreq int64) float64 {
	if docFreq <= 0 || totalDocs <= 0 {
		return 0
	}
	return math.Max(0, math.Log(float64(totalDocs)/float64(docFreq)))
}
