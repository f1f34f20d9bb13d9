package pipeline

import (
	"fmt"

	"scribeflow/internal/stt"
)

// speakerGapSeconds is the silence that switches speakers when the provider
// reported none.
const speakerGapSeconds = 1.5

// AssignSpeakers returns a copy of segments with every speaker label set.
// Partial labels are forward filled; a transcript with no labels at all
// alternates two speakers on long silences.
func AssignSpeakers(segments []stt.Segment) []stt.Segment {
	out := make([]stt.Segment, len(segments))
	copy(out, segments)
	if len(out) == 0 {
		return out
	}

	first := ""
	for _, s := range out {
		if s.Speaker != "" {
			first = s.Speaker
			break
		}
	}

	if first == "" {
		speaker := 1
		for i := range out {
			if i > 0 && out[i].Start-out[i-1].End > speakerGapSeconds {
				speaker = 3 - speaker
			}
			out[i].Speaker = speakerName(speaker)
		}
		return out
	}

	current := first
	for i := range out {
		if out[i].Speaker == "" {
			out[i].Speaker = current
		}
		current = out[i].Speaker
	}
	return out
}

func speakerName(i int) string {
	return fmt.Sprintf("Speaker %d", i)
}
