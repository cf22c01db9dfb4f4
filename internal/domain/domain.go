package domain

import "clinrag/internal/filters"

// KindTranscriptChunk is the only fragment kind produced by the indexer.
const KindTranscriptChunk = "transcript_chunk"

// Metadata carries the structured fields stored next to each fragment.
// Optional fields are pointers so "absent" survives a round trip through
// the store unchanged.
type Metadata struct {
	SourceID    string
	PatientName *string
	Date        *string // YYYY-MM-DD
	Age         *int
	Kind        string
	ChunkIdx    int
}

// AsMap flattens metadata into the generic form used by predicate
// evaluation and by store payloads. Absent optional fields are omitted.
func (m Metadata) AsMap() map[string]any {
	out := map[string]any{
		"source_id": m.SourceID,
		"kind":      m.Kind,
		"chunk_idx": m.ChunkIdx,
	}
	if m.PatientName != nil {
		out["patient_name"] = *m.PatientName
	}
	if m.Date != nil {
		out["date"] = *m.Date
	}
	if m.Age != nil {
		out["age"] = *m.Age
	}
	return out
}

// MetadataFromMap rebuilds Metadata from a store payload. Numeric fields
// tolerate float64 because JSON decoding produces it.
func MetadataFromMap(raw map[string]any) Metadata {
	var m Metadata
	if v, ok := raw["source_id"].(string); ok {
		m.SourceID = v
	}
	if v, ok := raw["kind"].(string); ok {
		m.Kind = v
	}
	if v, ok := toInt(raw["chunk_idx"]); ok {
		m.ChunkIdx = v
	}
	if v, ok := raw["patient_name"].(string); ok {
		m.PatientName = &v
	}
	if v, ok := raw["date"].(string); ok {
		m.Date = &v
	}
	if v, ok := toInt(raw["age"]); ok {
		m.Age = &v
	}
	return m
}

func toInt(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	}
	return 0, false
}

// Fragment is the atomic unit stored in the vector index: one bounded
// slice of a source document plus its metadata. The ID is
// "{source_id}::chunk{index}", so re-indexing the same source overwrites
// instead of duplicating.
type Fragment struct {
	ID       string
	Text     string
	Metadata Metadata
}

// ScoredFragment is a query hit with its cosine similarity.
type ScoredFragment struct {
	Fragment Fragment
	Score    float64
}

// Embedder converts a batch of texts into unit-normalized vectors, one
// per input, in input order.
type Embedder interface {
	Name() string
	Dimension() int
	Embed(texts []string) ([][]float64, error)
}

// VectorStore persists fragments with their vectors and answers
// filtered similarity queries.
type VectorStore interface {
	// Upsert replaces any existing fragment with the same ID. The batch
	// is visible as a whole or not at all.
	Upsert(fragments []Fragment, vectors [][]float64) error
	// Query returns up to topK fragments matching pred, ordered by
	// descending cosine similarity. A nil pred searches everything.
	Query(vector []float64, pred filters.Predicate, topK int) ([]ScoredFragment, error)
	// Count is a liveness probe; callers treat failures as warnings.
	Count() (int, error)
	// Reset destroys all persisted fragments. Safe when empty.
	Reset() error
}

// Summarizer produces a brief extractive summary of the provided text.
type Summarizer interface {
	Summarize(text string, maxSentences int) (string, error)
}
