// Package executor runs a tokenized query against the index store: it
// fetches the postings and document frequency of every query term in
// parallel and hands them to the ranker.
package executor

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/note-search/internal/indexer/index"
	"github.com/Adithya-Monish-Kumar-K/note-search/internal/searcher/ranker"
)

const maxParallelFetches = 8

type Executor struct {
	store  index.Store
	logger *slog.Logger
}

func New(store index.Store) *Executor {
	return &Executor{
		store:  store,
		logger: slog.Default().With("component", "query-executor"),
	}
}

// Execute returns every document matching any of terms, fully ranked.
// Terms absent from the index contribute nothing; an empty index or an
// empty term list yields an empty result.
func (e *Executor) Execute(ctx context.Context, terms []string) ([]ranker.ScoredDoc, error) {
	terms = ranker.UniqueTerms(terms)
	if len(terms) == 0 {
		return []ranker.ScoredDoc{}, nil
	}

	totalDocs, err := e.store.DocumentCount(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading document count: %w", err)
	}
	if totalDocs == 0 {
		return []ranker.ScoredDoc{}, nil
	}

	perTerm := make([]ranker.TermPostings, len(terms))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelFetches)
	for i, term := range terms {
		g.Go(func() error {
			postings, err := e.store.Postings(gctx, term)
			if err != nil {
				return fmt.Errorf("fetching postings for %q: %w", term, err)
			}
			perTerm[i] = ranker.TermPostings{Term: term, Postings: postings}
			if len(postings) == 0 {
				return nil
			}
			df, err := e.store.DocumentFrequency(gctx, term)
			if err != nil {
				return fmt.Errorf("fetching document frequency for %q: %w", term, err)
			}
			perTerm[i].DocFreq = df
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ranked := ranker.Rank(perTerm, totalDocs)
	e.logger.Debug("query executed",
		"terms", terms,
		"total_docs", totalDocs,
		"candidates", len(ranked),
	)
	return ranked, nil
}
