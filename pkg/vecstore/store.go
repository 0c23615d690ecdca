package vecstore

import (
	"encoding/gob"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Document is a text entry with its embedding vector.
type Document struct {
	ID        string
	Text      string
	Metadata  map[string]string
	Embedding []float32
	UpdatedAt time.Time
}

// Result is a search hit with cosine similarity score.
type Result struct {
	Document
	Score float32
}

// Collection is an in-memory vector collection with gob persistence.
type Collection struct {
	path string
	docs []Document
	mu   sync.RWMutex
}

// Store groups named collections persisted under one directory.
type Store struct {
	dir         string
	mu          sync.Mutex
	collections map[string]*Collection
}

func NewStore(dir string) *Store {
	return &Store{
		dir:         dir,
		collections: make(map[string]*Collection),
	}
}

// Collection returns (creating and loading if needed) the named collection.
func (s *Store) Collection(name string) *Collection {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[name]
	if !ok {
		var path string
		if s.dir != "" {
			path = filepath.Join(s.dir, name+".gob")
		}
		c = &Collection{path: path}
		c.Load()
		s.collections[name] = c
	}
	return c
}

// Save persists every collection.
func (s *Store) Save() error {
	s.mu.Lock()
	collections := make([]*Collection, 0, len(s.collections))
	for _, c := range s.collections {
		collections = append(collections, c)
	}
	s.mu.Unlock()

	for _, c := range collections {
		if err := c.Save(); err != nil {
			return err
		}
	}
	return nil
}

// Load reads the collection from disk. A missing or corrupt file starts the
// collection empty.
func (c *Collection) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.path == "" {
		return nil
	}
	f, err := os.Open(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			c.docs = nil
			return nil
		}
		return err
	}
	defer f.Close()

	var docs []Document
	if err := gob.NewDecoder(f).Decode(&docs); err != nil {
		c.docs = nil
		return nil
	}
	c.docs = docs
	return nil
}

// Save writes the collection to disk.
func (c *Collection) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(c.path), 0o755); err != nil {
		return fmt.Errorf("failed to create vector store dir: %w", err)
	}
	f, err := os.Create(c.path)
	if err != nil {
		return fmt.Errorf("failed to create vector store file: %w", err)
	}
	defer f.Close()

	return gob.NewEncoder(f).Encode(c.docs)
}

// Upsert adds or replaces documents by ID.
func (c *Collection) Upsert(docs ...Document) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx := make(map[string]int, len(c.docs))
	for i, d := range c.docs {
		idx[d.ID] = i
	}
	for _, d := range docs {
		if i, ok := idx[d.ID]; ok {
			c.docs[i] = d
		} else {
			idx[d.ID] = len(c.docs)
			c.docs = append(c.docs, d)
		}
	}
}

// Delete removes documents by ID.
func (c *Collection) Delete(ids ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	drop := make(map[string]bool, len(ids))
	for _, id := range ids {
		drop[id] = true
	}
	filtered := c.docs[:0]
	for _, d := range c.docs {
		if !drop[d.ID] {
			filtered = append(filtered, d)
		}
	}
	c.docs = filtered
}

// Search returns the top-K documents most similar to the query embedding,
// keeping only hits with score >= minScore.
func (c *Collection) Search(query []float32, topK int, minScore float32) []Result {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if len(c.docs) == 0 {
		return nil
	}

	results := make([]Result, 0, len(c.docs))
	for _, d := range c.docs {
		if len(d.Embedding) == 0 {
			continue
		}
		score := Cosine(query, d.Embedding)
		if score < minScore {
			continue
		}
		results = append(results, Result{Document: d, Score: score})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if topK > 0 && topK < len(results) {
		results = results[:topK]
	}
	return results
}

// Len returns the number of documents in the collection.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.docs)
}

// Cosine computes cosine similarity between two vectors.
func Cosine(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	denom := math.Sqrt(normA) * math.Sqrt(normB)
	if denom == 0 {
		return 0
	}
	return float32(dot / denom)
}
