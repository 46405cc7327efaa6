// Package index persists the inverted index: term posting lists, the
// per-document reverse mapping, and the corpus statistics needed for
// inverse document frequency.
package index

import (
	"context"
	"time"
)

// Store is the inverted index backend.
//
// Replace is the only mutation besides Clear. It drops every posting the
// document currently has and then writes freqs; an empty freqs therefore
// removes the document. Implementations keep these invariants after every
// call:
//   - a term has a posting list iff its document frequency is > 0
//   - document frequency equals the number of postings for the term
//   - a document id is counted once in the document count while it has postings
type Store interface {
	Replace(ctx context.Context, docID int64, freqs map[string]int) error
	Clear(ctx context.Context) error
	Postings(ctx context.Context, term string) (PostingList, error)
	DocumentCount(ctx context.Context) (int64, error)
	DocumentFrequency(ctx context.Context, term string) (int64, error)
	// Generation changes whenever the index is mutated.
	Generation(ctx context.Context) (int64, error)
	Stats(ctx context.Context) (Stats, error)
	Ping(ctx context.Context) error
	// AcquireRebuildLease claims the index for one full rebuild across every
	// process sharing it. It fails with ErrRebuildInProgress while another
	// holder has the lease.
	AcquireRebuildLease(ctx context.Context, ttl time.Duration) (Lease, error)
}
