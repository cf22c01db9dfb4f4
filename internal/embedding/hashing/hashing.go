// Package hashing implements a local, deterministic feature-hashing
// encoder. Unlike vocabulary-based vectorizers it needs no preparation
// pass over a corpus, so fragments can be indexed incrementally while
// identical text always maps to the identical vector.
//
// Texts with no usable tokens (empty, or stopwords only) encode to the
// zero vector, which normalization leaves at norm zero. Such fragments
// score zero against every query instead of failing the pipeline.
package hashing

import (
	"hash/fnv"
	"regexp"
	"strings"
)

// DefaultDimension is the vector size used when none is configured.
const DefaultDimension = 384

// Encoder hashes unicode word tokens into a fixed-width signed vector.
type Encoder struct {
	dimension    int
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// New creates an encoder with the given dimensionality. Non-positive
// values fall back to DefaultDimension.
func New(dimension int) *Encoder {
	if dimension <= 0 {
		dimension = DefaultDimension
	}
	return &Encoder{
		dimension:    dimension,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`),
		stopwords:    defaultStopwords(),
	}
}

// Name returns the identifier of this encoder implementation.
func (e *Encoder) Name() string { return "hashing" }

// Dimension returns the dimensionality of the produced vectors.
func (e *Encoder) Dimension() int { return e.dimension }

// EncodeBatch encodes each text independently. Texts with no usable
// tokens produce the zero vector.
func (e *Encoder) EncodeBatch(texts []string) ([][]float64, error) {
	out := make([][]float64, len(texts))
	for i, text := range texts {
		out[i] = e.encode(text)
	}
	return out, nil
}

// encode applies the signed hashing trick: each token is folded into a
// bucket chosen by its FNV-1a hash, with the hash's top bit picking the
// sign so collisions tend to cancel rather than pile up.
func (e *Encoder) encode(text string) []float64 {
	vec := make([]float64, e.dimension)
	for _, tok := range e.tokenize(text) {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		idx := int(sum % uint64(e.dimension))
		if sum&(1<<63) != 0 {
			vec[idx]--
		} else {
			vec[idx]++
		}
	}
	return vec
}

func (e *Encoder) tokenize(text string) []string {
	raw := e.tokenPattern.FindAllString(strings.ToLower(text), -1)
	if len(raw) == 0 {
		return nil
	}
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := e.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
