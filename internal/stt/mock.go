package stt

import "context"

// mockBaselineSeconds is the length the mock script is written for.
const mockBaselineSeconds = 30.0

var mockScript = []Segment{
	{Start: 0.0, End: 5.5, Speaker: "Speaker 1", Text: "Good morning everyone, thanks for joining the call today."},
	{Start: 5.5, End: 12.0, Speaker: "Speaker 2", Text: "Happy to be here. I have a quick update on the release schedule."},
	{Start: 12.0, End: 18.5, Speaker: "Speaker 3", Text: "Before that, can we confirm the budget numbers from last week?"},
	{Start: 18.5, End: 24.0, Speaker: "Speaker 1", Text: "Yes, finance signed off on them yesterday afternoon."},
	{Start: 24.0, End: 30.0, Speaker: "Speaker 2", Text: "Great, then the release stays on track for the end of the month."},
}

// MockTranscriber returns a fixed three-speaker script rescaled to the probed
// duration. It never fails and makes no external calls.
type MockTranscriber struct{}

func (MockTranscriber) Name() string { return EngineMock }

func (MockTranscriber) Transcribe(ctx context.Context, req Request) (*Transcript, error) {
	scale := 1.0
	if req.Audio.DurationSeconds > 0 {
		scale = req.Audio.DurationSeconds / mockBaselineSeconds
	}

	segments := make([]Segment, len(mockScript))
	for i, s := range mockScript {
		s.Start *= scale
		s.End *= scale
		segments[i] = s
	}
	if req.Audio.DurationSeconds > 0 {
		segments[len(segments)-1].End = req.Audio.DurationSeconds
	}

	return &Transcript{Segments: segments, Language: "en", Engine: EngineMock}, nil
}
