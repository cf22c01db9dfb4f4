// Package qdrant is a minimal REST adapter to a remote Qdrant
// collection. It creates the collection on first upsert (cosine
// distance) and translates predicates into Qdrant's filter DSL.
package qdrant

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"clinrag/internal/domain"
	"clinrag/internal/filters"
)

// Store talks to one Qdrant collection.
type Store struct {
	url        string
	apiKey     string
	collection string
	client     *http.Client

	mu      sync.Mutex
	created bool
}

// Config contains connection details for the Qdrant server.
type Config struct {
	URL        string
	APIKey     string
	Collection string
	Timeout    time.Duration
}

// New creates a store. No network traffic happens until first use.
func New(cfg Config) *Store {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	collection := cfg.Collection
	if collection == "" {
		collection = "elsol_conversations"
	}
	return &Store{
		url:        cfg.URL,
		apiKey:     cfg.APIKey,
		collection: collection,
		client:     &http.Client{Timeout: timeout},
	}
}

// ensureCollection creates the collection with cosine distance if this
// store instance has not done so yet. Qdrant answers OK when it already
// exists with the same schema.
func (s *Store) ensureCollection(dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.created {
		return nil
	}
	if dimension <= 0 {
		return errors.New("invalid vector dimension")
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     dimension,
			"distance": "Cosine",
		},
	}
	if err := s.putJSON(fmt.Sprintf("%s/collections/%s", s.url, s.collection), body); err != nil {
		return err
	}
	s.created = true
	return nil
}

// Upsert writes the batch in one request. Point ids are UUIDv5 digests
// of the fragment ids, so the same fragment always lands on the same
// point.
func (s *Store) Upsert(fragments []domain.Fragment, vectors [][]float64) error {
	if len(fragments) != len(vectors) {
		return errors.New("fragments and vectors length mismatch")
	}
	if len(fragments) == 0 {
		return nil
	}
	if err := s.ensureCollection(len(vectors[0])); err != nil {
		return err
	}
	points := make([]map[string]any, len(fragments))
	for i, f := range fragments {
		payload := f.Metadata.AsMap()
		payload["id"] = f.ID
		payload["text"] = f.Text
		points[i] = map[string]any{
			"id":      uuid.NewSHA1(uuid.NameSpaceOID, []byte(f.ID)).String(),
			"vector":  vectors[i],
			"payload": payload,
		}
	}
	body := map[string]any{"points": points}
	return s.putJSON(fmt.Sprintf("%s/collections/%s/points?wait=true", s.url, s.collection), body)
}

// Query runs a filtered similarity search.
func (s *Store) Query(vector []float64, pred filters.Predicate, topK int) ([]domain.ScoredFragment, error) {
	if topK <= 0 {
		return nil, nil
	}
	req := map[string]any{
		"vector":       vector,
		"limit":        topK,
		"with_payload": true,
	}
	if f := translate(pred); f != nil {
		req["filter"] = f
	}
	var resp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	if err := s.postJSON(fmt.Sprintf("%s/collections/%s/points/search", s.url, s.collection), req, &resp); err != nil {
		return nil, err
	}
	hits := make([]domain.ScoredFragment, 0, len(resp.Result))
	for _, r := range resp.Result {
		frag := domain.Fragment{Metadata: domain.MetadataFromMap(r.Payload)}
		if v, ok := r.Payload["id"].(string); ok {
			frag.ID = v
		}
		if v, ok := r.Payload["text"].(string); ok {
			frag.Text = v
		}
		hits = append(hits, domain.ScoredFragment{Fragment: frag, Score: r.Score})
	}
	return hits, nil
}

// Count asks the collection info endpoint for the point count.
func (s *Store) Count() (int, error) {
	var resp struct {
		Result struct {
			PointsCount int `json:"points_count"`
		} `json:"result"`
	}
	req, err := http.NewRequest(http.MethodGet, fmt.Sprintf("%s/collections/%s", s.url, s.collection), nil)
	if err != nil {
		return 0, err
	}
	if err := s.do(req, &resp); err != nil {
		return 0, err
	}
	return resp.Result.PointsCount, nil
}

// Reset drops the collection. The next upsert recreates it.
func (s *Store) Reset() error {
	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/collections/%s", s.url, s.collection), nil)
	if err != nil {
		return err
	}
	if err := s.do(req, nil); err != nil {
		return err
	}
	s.mu.Lock()
	s.created = false
	s.mu.Unlock()
	return nil
}

// translate maps a predicate onto Qdrant's filter DSL. Range operators
// are passed through as-is; Qdrant applies them to numeric (and
// datetime-indexed) payload fields.
func translate(pred filters.Predicate) map[string]any {
	if len(pred) == 0 {
		return nil
	}
	var must, mustNot []map[string]any
	for field, cond := range pred {
		ranges := map[string]any{}
		for op, val := range cond {
			switch op {
			case filters.OpEq:
				must = append(must, map[string]any{"key": field, "match": map[string]any{"value": val}})
			case filters.OpNe:
				mustNot = append(mustNot, map[string]any{"key": field, "match": map[string]any{"value": val}})
			case filters.OpGt, filters.OpGte, filters.OpLt, filters.OpLte:
				ranges[string(op)] = val
			case filters.OpIn:
				must = append(must, map[string]any{"key": field, "match": map[string]any{"any": val}})
			case filters.OpNin:
				mustNot = append(mustNot, map[string]any{"key": field, "match": map[string]any{"any": val}})
			case filters.OpContains:
				must = append(must, map[string]any{"key": field, "match": map[string]any{"text": val}})
			}
		}
		if len(ranges) > 0 {
			must = append(must, map[string]any{"key": field, "range": ranges})
		}
	}
	out := map[string]any{}
	if len(must) > 0 {
		out["must"] = must
	}
	if len(mustNot) > 0 {
		out["must_not"] = mustNot
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func (s *Store) putJSON(url string, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, nil)
}

func (s *Store) postJSON(url string, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return s.do(req, out)
}

func (s *Store) do(req *http.Request, out any) error {
	if s.apiKey != "" {
		req.Header.Set("api-key", s.apiKey)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("qdrant %s %s failed: %s", req.Method, req.URL.Path, resp.Status)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
