package retrieval

import (
	"context"
	"sort"
	"strings"
	"sync"
	"unicode"
)

// MemoryStore is a word-overlap Gateway for offline runs and tests. Scores
// are the fraction of query words present in the document, so they land in
// [0,1] like cosine similarity.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string][]memDoc
}

type memDoc struct {
	id      string
	content string
	words   map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: map[string][]memDoc{}}
}

// Add indexes one chunk of content under the collection.
func (s *MemoryStore) Add(collection, id, content string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.collections[collection] = append(s.collections[collection], memDoc{
		id:      id,
		content: content,
		words:   tokenize(content),
	})
}

// Search implements Gateway.
func (s *MemoryStore) Search(ctx context.Context, query, collection string, topK int, threshold float64) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	queryWords := tokenize(query)
	if len(queryWords) == 0 {
		return nil, nil
	}

	s.mu.RLock()
	docs := s.collections[collection]
	s.mu.RUnlock()

	chunks := make([]Chunk, 0, len(docs))
	for _, d := range docs {
		hits := 0
		for w := range queryWords {
			if _, ok := d.words[w]; ok {
				hits++
			}
		}
		score := float64(hits) / float64(len(queryWords))
		if score < threshold || hits == 0 {
			continue
		}
		chunks = append(chunks, Chunk{ID: d.id, Content: d.content, Similarity: score})
	}
	sort.SliceStable(chunks, func(i, j int) bool { return chunks[i].Similarity > chunks[j].Similarity })
	if topK > 0 && len(chunks) > topK {
		chunks = chunks[:topK]
	}
	return chunks, nil
}

func (s *MemoryStore) Close() error { return nil }

// tokenize keeps ident-like lowercase words; numbers and symbols are
// delimiters.
func tokenize(text string) map[string]struct{} {
	words := map[string]struct{}{}
	var b strings.Builder
	flush := func() {
		if b.Len() > 0 {
			words[strings.ToLower(b.String())] = struct{}{}
			b.Reset()
		}
	}
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return words
}
