// Package summarizer gives quick ingest feedback: a short extractive
// summary of the transcript that was just indexed. No LLM involved.
package summarizer

import (
	"math"
	"regexp"
	"sort"
	"strings"
)

var (
	sentenceRe = regexp.MustCompile(`(?m)(?U)([^.!?]+[.!?])`)
	wordRe     = regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*`)
)

// Frequency ranks sentences by normalized token frequency and keeps
// the best ones in their original order.
type Frequency struct {
	stopwords map[string]struct{}
}

// NewFrequency creates a frequency-based summarizer.
func NewFrequency() *Frequency {
	return &Frequency{stopwords: defaultStopwords()}
}

// Summarize picks up to maxSentences sentences. Text without sentence
// punctuation is returned trimmed as-is.
func (f *Frequency) Summarize(text string, maxSentences int) (string, error) {
	if maxSentences <= 0 {
		maxSentences = 3
	}
	sentences := sentenceRe.FindAllString(text, -1)
	if len(sentences) == 0 {
		return strings.TrimSpace(text), nil
	}

	tokens := make([][]string, len(sentences))
	freq := map[string]float64{}
	for i, sent := range sentences {
		tokens[i] = f.tokens(sent)
		for _, tok := range tokens[i] {
			freq[tok]++
		}
	}
	maxF := 0.0
	for _, v := range freq {
		if v > maxF {
			maxF = v
		}
	}

	type ranked struct {
		idx   int
		score float64
	}
	scores := make([]ranked, len(sentences))
	for i := range sentences {
		score := 0.0
		for _, tok := range tokens[i] {
			score += freq[tok] / maxF
		}
		// dampen long sentences so length alone does not win
		if n := float64(len(tokens[i])); n > 0 {
			score /= math.Sqrt(n)
		}
		scores[i] = ranked{idx: i, score: score}
	}
	sort.Slice(scores, func(i, j int) bool { return scores[i].score > scores[j].score })
	if maxSentences > len(scores) {
		maxSentences = len(scores)
	}

	keep := make([]int, maxSentences)
	for i := range keep {
		keep[i] = scores[i].idx
	}
	sort.Ints(keep)
	parts := make([]string, len(keep))
	for i, idx := range keep {
		parts[i] = strings.TrimSpace(sentences[idx])
	}
	return strings.Join(parts, " "), nil
}

func (f *Frequency) tokens(text string) []string {
	raw := wordRe.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, ok := f.stopwords[t]; ok {
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
