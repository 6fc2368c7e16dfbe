// Package corpus provides the retrieval corpus: document chunks that the
// Retrieve stage searches, plus the readers used to ingest uploaded documents.
package corpus

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/google/uuid"
)

// Document is one indexed chunk.
type Document struct {
	ID         string `json:"id"`
	Source     string `json:"source"`
	ChunkIndex int    `json:"chunk_index"`
	Text       string `json:"text"`
}

// SearchResult is a scored match.
type SearchResult struct {
	Document Document `json:"document"`
	Score    float64  `json:"score"`
}

// Stats is the corpus-presence signal.
type Stats struct {
	TotalDocuments int `json:"total_documents"`
	Sources        int `json:"sources"`
}

// Store is the corpus contract used by the engine and the retriever.
type Store interface {
	AddDocument(ctx context.Context, source, text string) (int, error)
	Search(ctx context.Context, query string, limit int) ([]SearchResult, error)
	Stats(ctx context.Context) (Stats, error)
}

// MemoryStore is an in-process corpus scored by term overlap.
type MemoryStore struct {
	docs      []Document
	terms     []map[string]int
	chunkSize int
	overlap   int
	mu        sync.RWMutex
}

// NewMemoryStore creates an empty store. Non-positive sizes use the defaults.
func NewMemoryStore(chunkSize, overlap int) *MemoryStore {
	if chunkSize <= 0 {
		chunkSize = DefaultChunkSize
	}
	if overlap < 0 {
		overlap = DefaultChunkOverlap
	}
	return &MemoryStore{chunkSize: chunkSize, overlap: overlap}
}

// AddDocument chunks text and indexes every chunk. Returns the number of chunks added.
func (s *MemoryStore) AddDocument(ctx context.Context, source, text string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	chunks := ChunkText(text, s.chunkSize, s.overlap)
	if len(chunks) == 0 {
		return 0, fmt.Errorf("document %s has no text", source)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for i, chunk := range chunks {
		s.docs = append(s.docs, Document{
			ID:         uuid.NewString(),
			Source:     source,
			ChunkIndex: i,
			Text:       chunk,
		})
		s.terms = append(s.terms, termFrequencies(chunk))
	}
	return len(chunks), nil
}

// Search returns up to limit chunks sharing terms with query, best first.
func (s *MemoryStore) Search(ctx context.Context, query string, limit int) ([]SearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 5
	}
	queryTerms := termFrequencies(query)
	if len(queryTerms) == 0 {
		return []SearchResult{}, nil
	}

	s.mu.RLock()
	results := make([]SearchResult, 0)
	for i, terms := range s.terms {
		matched := 0
		for term := range queryTerms {
			if terms[term] > 0 {
				matched++
			}
		}
		if matched == 0 {
			continue
		}
		results = append(results, SearchResult{
			Document: s.docs[i],
			Score:    float64(matched) / float64(len(queryTerms)),
		})
	}
	s.mu.RUnlock()

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Stats reports how many chunks and sources are indexed.
func (s *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	sources := make(map[string]struct{})
	for _, d := range s.docs {
		sources[d.Source] = struct{}{}
	}
	return Stats{TotalDocuments: len(s.docs), Sources: len(sources)}, nil
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "are": {}, "was": {}, "with": {}, "this": {},
	"that": {}, "what": {}, "how": {}, "from": {}, "into": {}, "about": {},
}

func termFrequencies(text string) map[string]int {
	freq := make(map[string]int)
	for _, word := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	}) {
		if len(word) < 3 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		freq[word]++
	}
	return freq
}
