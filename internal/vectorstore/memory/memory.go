// Package memory is a mutex-guarded in-memory vector store using
// brute-force cosine similarity. It backs tests and the
// persistence-off configuration.
package memory

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"clinrag/internal/domain"
	"clinrag/internal/filters"
)

type record struct {
	fragment domain.Fragment
	vector   []float64
}

// Store keeps fragments keyed by id so re-upserting the same id
// replaces instead of duplicating.
type Store struct {
	mu        sync.RWMutex
	dimension int
	records   map[string]record
}

// New creates an empty store. The vector dimension is pinned by the
// first upserted batch.
func New() *Store {
	return &Store{records: make(map[string]record)}
}

// Upsert stores each fragment with its vector, replacing any existing
// entry with the same id. The batch is validated before any write so a
// failed call leaves the store untouched.
func (s *Store) Upsert(fragments []domain.Fragment, vectors [][]float64) error {
	if len(fragments) != len(vectors) {
		return errors.New("fragments and vectors length mismatch")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	dimension := s.dimension
	for _, v := range vectors {
		if dimension == 0 {
			dimension = len(v)
		}
		if len(v) != dimension {
			return fmt.Errorf("vector dimension %d, store has %d", len(v), dimension)
		}
	}
	s.dimension = dimension
	for i, f := range fragments {
		s.records[f.ID] = record{fragment: f, vector: vectors[i]}
	}
	return nil
}

// Query scores every fragment matching pred against the query vector
// (dot product; vectors are unit-normalized) and returns the topK best.
func (s *Store) Query(vector []float64, pred filters.Predicate, topK int) ([]domain.ScoredFragment, error) {
	if topK <= 0 {
		return nil, nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	hits := make([]domain.ScoredFragment, 0, len(s.records))
	for _, rec := range s.records {
		if pred != nil && !filters.Matches(pred, rec.fragment.Metadata.AsMap()) {
			continue
		}
		hits = append(hits, domain.ScoredFragment{Fragment: rec.fragment, Score: dot(rec.vector, vector)})
	}
	sort.Slice(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Fragment.ID < hits[j].Fragment.ID
	})
	if topK < len(hits) {
		hits = hits[:topK]
	}
	return hits, nil
}

// Count returns the number of stored fragments.
func (s *Store) Count() (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

// Reset drops all fragments.
func (s *Store) Reset() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = make(map[string]record)
	s.dimension = 0
	return nil
}

func dot(a, b []float64) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		sum += a[i] * b[i]
	}
	return sum
}
