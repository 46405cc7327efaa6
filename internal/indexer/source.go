package indexer

import "context"

// Document is one (id, content) pair supplied by the content store.
type Document struct {
	ID   int64
	Text string
}

// DocumentSource enumerates every live document for a rebuild. Scan stops
// and returns the first error fn returns.
type DocumentSource interface {
	Scan(ctx context.Context, fn func(Document) error) error
}

// SliceSource serves documents from memory.
type SliceSource []Document

func (s SliceSource) Scan(ctx context.Context, fn func(Document) error) error {
	for _, doc := range s {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(doc); err != nil {
			return err
		}
	}
	return nil
}
