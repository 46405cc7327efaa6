package index

import (
	"context"
	"sync"
)

// MemoryStore is a process-local Store. It backs the "memory" index backend
// and tests.
type MemoryStore struct {
	mu         sync.RWMutex
	postings   map[string]map[int64]int
	docTerms   map[int64][]string
	generation int64
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		postings: make(map[string]map[int64]int),
		docTerms: make(map[int64][]string),
	}
}

func (m *MemoryStore) Replace(_ context.Context, docID int64, freqs map[string]int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, term := range m.docTerms[docID] {
		docs := m.postings[term]
		delete(docs, docID)
		if len(docs) == 0 {
			delete(m.postings, term)
		}
	}
	delete(m.docTerms, docID)

	terms := make([]string, 0, len(freqs))
	for term, tf := range freqs {
		if tf <= 0 {
			continue
		}
		docs, exists := m.postings[term]
		if !exists {
			docs = make(map[int64]int)
			m.postings[term] = docs
		}
		docs[docID] = tf
		terms = append(terms, term)
	}
	if len(terms) > 0 {
		m.docTerms[docID] = terms
	}
	m.generation++
	return nil
}

func (m *MemoryStore) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.postings = make(map[string]map[int64]int)
	m.docTerms = make(map[int64][]string)
	m.generation++
	return nil
}

func (m *MemoryStore) Postings(_ context.Context, term string) (PostingList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	docs, exists := m.postings[term]
	if !exists {
		return nil, nil
	}
	result := make(PostingList, 0, len(docs))
	for docID, tf := range docs {
		result = append(result, Posting{DocID: docID, Frequency: tf})
	}
	result.SortByDocID()
	return result, nil
}

func (m *MemoryStore) DocumentCount(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.docTerms)), nil
}

func (m *MemoryStore) DocumentFrequency(_ context.Context, term string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.postings[term])), nil
}

func (m *MemoryStore) Generation(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.generation, nil
}

func (m *MemoryStore) Stats(_ context.Context) (Stats, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return Stats{
		DocumentCount: int64(len(m.docTerms)),
		TermCount:     int64(len(m.postings)),
		Generation:    m.generation,
	}, nil
}

func (m *MemoryStore) Ping(_ context.Context) error {
	return nil
}
