// Package service wires the segmenter, embedding provider and vector
// store into the two pipelines of the engine: indexing a transcript and
// retrieving grounding context for a question.
package service

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"clinrag/internal/domain"
	"clinrag/internal/filters"
	"clinrag/internal/logger"
	"clinrag/internal/segmenter"
)

// DefaultTopK is the retrieval result bound when the caller passes none.
const DefaultTopK = 6

// Service runs the indexing and retrieval pipelines against shared
// embedder and store singletons. Both pipelines are synchronous; the
// shared resources handle their own locking, so concurrent requests
// may run Service methods in parallel.
type Service struct {
	segmenter *segmenter.Segmenter
	embedder  domain.Embedder
	store     domain.VectorStore
}

// New assembles a service from its collaborators.
func New(seg *segmenter.Segmenter, embedder domain.Embedder, store domain.VectorStore) *Service {
	return &Service{segmenter: seg, embedder: embedder, store: store}
}

// IndexRequest is one transcript with its optional structured fields.
// Nil optional fields are stored as absent; an empty SourceID gets a
// fresh random identifier.
type IndexRequest struct {
	Text        string
	PatientName *string
	Date        *string // YYYY-MM-DD, defaults to today (UTC)
	Age         *int
	SourceID    string
}

// IndexResult reports what one Index call produced.
type IndexResult struct {
	SourceID      string
	ChunksIndexed int
}

// Index segments the transcript, embeds every fragment and upserts the
// whole batch under deterministic ids, so re-indexing the same source
// overwrites instead of duplicating. Text that normalizes to empty is
// not an error: zero fragments are indexed.
//
// Re-indexing a source with fewer fragments than before leaves the
// stale trailing fragments in place; there is no per-source delete.
func (s *Service) Index(req IndexRequest) (IndexResult, error) {
	defer logger.Span("index")()

	sourceID := req.SourceID
	if sourceID == "" {
		sourceID = uuid.NewString()
	}
	date := req.Date
	if date == nil || *date == "" {
		today := time.Now().UTC().Format("2006-01-02")
		date = &today
	}

	chunks := s.segmenter.Segment(req.Text)
	logger.Info("index: source=%s chunks=%d total_chars=%d", sourceID, len(chunks), len(req.Text))
	if len(chunks) == 0 {
		return IndexResult{SourceID: sourceID, ChunksIndexed: 0}, nil
	}

	fragments := make([]domain.Fragment, len(chunks))
	for i, chunk := range chunks {
		fragments[i] = domain.Fragment{
			ID:   fmt.Sprintf("%s::chunk%d", sourceID, i),
			Text: chunk,
			Metadata: domain.Metadata{
				SourceID:    sourceID,
				PatientName: req.PatientName,
				Date:        date,
				Age:         req.Age,
				Kind:        domain.KindTranscriptChunk,
				ChunkIdx:    i,
			},
		}
	}

	vectors, err := s.embedder.Embed(chunks)
	if err != nil {
		return IndexResult{}, fmt.Errorf("index: embed fragments: %w", err)
	}
	if err := s.store.Upsert(fragments, vectors); err != nil {
		return IndexResult{}, fmt.Errorf("index: upsert fragments: %w", err)
	}
	return IndexResult{SourceID: sourceID, ChunksIndexed: len(fragments)}, nil
}

// Hit is one retrieved fragment, shaped for the answer-generation
// consumer.
type Hit struct {
	Text     string
	SourceID string
	Metadata domain.Metadata
	Score    float64
}

// Retrieve embeds the question, normalizes the raw filters into a
// predicate (malformed fields are dropped, never an error) and returns
// the k most similar fragments. k defaults to DefaultTopK.
func (s *Service) Retrieve(query string, rawFilters map[string]any, k int) ([]Hit, error) {
	defer logger.Span("retrieve")()

	if k <= 0 {
		k = DefaultTopK
	}
	pred := filters.Normalize(rawFilters)

	vectors, err := s.embedder.Embed([]string{query})
	if err != nil {
		return nil, fmt.Errorf("retrieve: embed query: %w", err)
	}
	scored, err := s.store.Query(vectors[0], pred, k)
	if err != nil {
		return nil, fmt.Errorf("retrieve: query store: %w", err)
	}
	logger.Info("retrieve: hits=%d filtered=%v", len(scored), pred != nil)

	hits := make([]Hit, len(scored))
	for i, sf := range scored {
		hits[i] = Hit{
			Text:     sf.Fragment.Text,
			SourceID: sf.Fragment.Metadata.SourceID,
			Metadata: sf.Fragment.Metadata,
			Score:    sf.Score,
		}
	}
	return hits, nil
}

// Warmup forces encoder construction with a probe encode and pings the
// store. A failing count probe is a warning, not an error.
func (s *Service) Warmup() error {
	defer logger.Span("warmup")()
	if _, err := s.embedder.Embed([]string{"warmup"}); err != nil {
		return fmt.Errorf("warmup: embed probe: %w", err)
	}
	if n, err := s.store.Count(); err != nil {
		logger.Warn("warmup: store count probe failed: %v", err)
	} else {
		logger.Info("warmup: store has %d fragments", n)
	}
	return nil
}

// Reset destroys everything in the store.
func (s *Service) Reset() error {
	return s.store.Reset()
}
