package stt

import (
	"math"
	"strings"
)

// DefaultChunkWords is the chunk size used when timestamps must be synthesized.
const DefaultChunkWords = 12

// secondsPerWord approximates speech rate when the duration is unknown.
const secondsPerWord = 0.4

// NormalizeSegments enforces the segment invariant on provider output.
// Empty texts are dropped, negative starts clamped, inverted ranges widened,
// and a missing or out of range confidence replaced by defaultConfidence.
// Confidence lives in (0, 1]. Zero is the unset value for providers that do
// not report one, so it counts as missing.
func NormalizeSegments(raw []Segment, defaultConfidence float64) []Segment {
	out := make([]Segment, 0, len(raw))
	for _, s := range raw {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" {
			continue
		}
		if s.Start < 0 || math.IsNaN(s.Start) {
			s.Start = 0
		}
		if s.End <= s.Start || math.IsNaN(s.End) {
			s.End = s.Start + 0.01
		}
		if s.Confidence <= 0 || s.Confidence > 1 || math.IsNaN(s.Confidence) {
			s.Confidence = defaultConfidence
		}
		s.Speaker = strings.TrimSpace(s.Speaker)
		out = append(out, s)
	}
	return out
}

// SynthesizeSegments splits text into chunks of chunkWords words and spreads
// them evenly over duration. It is a lossy fallback for providers that return
// plain text only.
func SynthesizeSegments(text string, duration float64, chunkWords int, confidence float64) []Segment {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if chunkWords <= 0 {
		chunkWords = DefaultChunkWords
	}
	if duration <= 0 {
		duration = float64(len(words)) * secondsPerWord
	}

	chunks := (len(words) + chunkWords - 1) / chunkWords
	step := duration / float64(chunks)
	segments := make([]Segment, 0, chunks)
	for i := 0; i < chunks; i++ {
		lo := i * chunkWords
		hi := min(lo+chunkWords, len(words))
		end := float64(i+1) * step
		if i == chunks-1 {
			end = duration
		}
		segments = append(segments, Segment{
			Start:      float64(i) * step,
			End:        end,
			Text:       strings.Join(words[lo:hi], " "),
			Confidence: confidence,
		})
	}
	return segments
}
