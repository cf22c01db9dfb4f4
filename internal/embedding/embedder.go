// Package embedding provides the shared embedding provider: a
// lazily-constructed encoder behind a batching, order-preserving
// Embed call.
package embedding

import (
	"fmt"
	"math"
	"sync"
)

// DefaultBatchSize bounds how many texts are encoded per model call.
const DefaultBatchSize = 32

// Encoder is the model-facing half of the provider: it encodes one
// bounded batch of texts into vectors of a fixed dimension.
type Encoder interface {
	Name() string
	Dimension() int
	EncodeBatch(texts []string) ([][]float64, error)
}

// Factory constructs an encoder. It runs at most once per Provider,
// on first use.
type Factory func() (Encoder, error)

// Provider implements domain.Embedder. The underlying encoder is built
// exactly once, even under concurrent first calls; inputs are encoded
// in sequential fixed-size slices so peak memory stays bounded, and the
// output order always matches the input order.
type Provider struct {
	name      string
	batchSize int
	factory   Factory

	once sync.Once
	enc  Encoder
	err  error
}

// NewProvider wraps factory with batching and once-only construction.
// Non-positive batchSize falls back to DefaultBatchSize.
func NewProvider(name string, batchSize int, factory Factory) *Provider {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return &Provider{name: name, batchSize: batchSize, factory: factory}
}

func (p *Provider) encoder() (Encoder, error) {
	p.once.Do(func() {
		p.enc, p.err = p.factory()
	})
	return p.enc, p.err
}

// Name returns the provider identifier without forcing construction.
func (p *Provider) Name() string { return p.name }

// Dimension reports the encoder's vector dimensionality, constructing
// the encoder if needed. Returns 0 when construction failed.
func (p *Provider) Dimension() int {
	enc, err := p.encoder()
	if err != nil {
		return 0
	}
	return enc.Dimension()
}

// Embed encodes texts into unit-normalized vectors, one per input, in
// input order. Internal batching is invisible to the caller.
func (p *Provider) Embed(texts []string) ([][]float64, error) {
	enc, err := p.encoder()
	if err != nil {
		return nil, fmt.Errorf("embedding: init %s encoder: %w", p.name, err)
	}
	out := make([][]float64, 0, len(texts))
	for start := 0; start < len(texts); start += p.batchSize {
		end := start + p.batchSize
		if end > len(texts) {
			end = len(texts)
		}
		vecs, err := enc.EncodeBatch(texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("embedding: encode batch %d-%d: %w", start, end-1, err)
		}
		if len(vecs) != end-start {
			return nil, fmt.Errorf("embedding: encoder returned %d vectors for %d texts", len(vecs), end-start)
		}
		for _, v := range vecs {
			Normalize(v)
		}
		out = append(out, vecs...)
	}
	return out, nil
}

// Normalize scales vec to unit length in place. Zero vectors are left
// untouched.
func Normalize(vec []float64) {
	sum := 0.0
	for _, x := range vec {
		sum += x * x
	}
	if sum == 0 {
		return
	}
	inv := 1 / math.Sqrt(sum)
	for i := range vec {
		vec[i] *= inv
	}
}
