// Package segmenter splits raw transcript text into overlapping
// fixed-length fragments with deterministic boundaries.
package segmenter

import "strings"

// Default window parameters used by the indexing service.
const (
	DefaultMaxChars     = 900
	DefaultOverlapChars = 120
)

// Segmenter walks a fixed-width window over whitespace-normalized text.
type Segmenter struct {
	maxChars int
	overlap  int
}

// New creates a segmenter. Non-positive maxChars falls back to the
// default; overlap is clamped into [0, maxChars-1] so every step makes
// forward progress.
func New(maxChars, overlap int) *Segmenter {
	if maxChars <= 0 {
		maxChars = DefaultMaxChars
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= maxChars {
		overlap = maxChars - 1
	}
	return &Segmenter{maxChars: maxChars, overlap: overlap}
}

// Segment collapses whitespace runs to single spaces, trims, and emits
// windows of up to maxChars characters. Consecutive windows share
// overlap characters; when the overlap would stall the walk the start
// advances by one character instead. Empty normalized text yields nil.
func (s *Segmenter) Segment(text string) []string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) == 0 {
		return nil
	}

	var out []string
	start := 0
	for start < len(runes) {
		end := start + s.maxChars
		if end > len(runes) {
			end = len(runes)
		}
		out = append(out, string(runes[start:end]))
		if end == len(runes) {
			break
		}

		next := end - s.overlap
		if next <= start {
			next = start + 1
		}
		start = next
	}
	return out
}
