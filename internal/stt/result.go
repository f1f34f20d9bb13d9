package stt

import "strings"

// Segment is one timestamped utterance.
type Segment struct {
	Start      float64 `json:"start"`
	End        float64 `json:"end"`
	Text       string  `json:"text"`
	Speaker    string  `json:"speaker"`
	Confidence float64 `json:"confidence"`
}

// Transcript represents the normalized result of one provider call
type Transcript struct {
	Segments []Segment
	Language string
	Engine   string
}

// Text joins segment texts with single spaces.
func (t *Transcript) Text() string {
	if t == nil {
		return ""
	}
	parts := make([]string, 0, len(t.Segments))
	for _, s := range t.Segments {
		parts = append(parts, s.Text)
	}
	return strings.Join(parts, " ")
}

// Duration returns the end of the last segment.
func (t *Transcript) Duration() float64 {
	if t == nil || len(t.Segments) == 0 {
		return 0
	}
	return t.Segments[len(t.Segments)-1].End
}
