package index

import "sort"

// Posting links a term to one document and how often it occurs there.
type Posting struct {
	DocID     int64 `json:"doc_id"`
	Frequency int   `json:"frequency"`
}

type PostingList []Posting

// SortByDocID orders the list by ascending document id.
func (pl PostingList) SortByDocID() {
	sort.Slice(pl, func(i, j int) bool {
		return pl[i].DocID < pl[j].DocID
	})
}

// Stats is a snapshot of corpus-level counters.
type Stats struct {
	DocumentCount int64 `json:"document_count"`
	TermCount     int64 `json:"term_count"`
	Generation    int64 `json:"generation"`
}
