package stt

import (
	"context"
	"math"
	"strings"
	"testing"

	"scribeflow/internal/media"
)

// TestNormalizeSegmentsRepairsProviderOutput verifies the invariant is enforced.
func TestNormalizeSegmentsRepairsProviderOutput(t *testing.T) {
	raw := []Segment{
		{Start: -1, End: 2, Text: "  hello  ", Confidence: 0.9},
		{Start: 2, End: 2, Text: "world"},
		{Start: 3, End: 4, Text: "   "},
		{Start: 4, End: 5, Text: "again", Confidence: 1.7},
		{Start: 5, End: 6, Text: "nan", Confidence: math.NaN()},
	}
	got := NormalizeSegments(raw, 0.8)
	if len(got) != 4 {
		t.Fatalf("len = %d, want 4", len(got))
	}
	assertSegmentInvariant(t, got)
	if got[0].Start != 0 || got[0].Text != "hello" || got[0].Confidence != 0.9 {
		t.Fatalf("first segment = %+v", got[0])
	}
	if got[1].End <= got[1].Start {
		t.Fatalf("second segment range not repaired: %+v", got[1])
	}
	if got[1].Confidence != 0.8 || got[2].Confidence != 0.8 || got[3].Confidence != 0.8 {
		t.Fatalf("default confidence not applied: %+v", got)
	}
}

// TestNormalizeSegmentsConfidenceRange verifies zero counts as unreported
// while any positive score up to 1 is kept.
func TestNormalizeSegmentsConfidenceRange(t *testing.T) {
	raw := []Segment{
		{Start: 0, End: 1, Text: "unset"},
		{Start: 1, End: 2, Text: "low", Confidence: 0.001},
		{Start: 2, End: 3, Text: "certain", Confidence: 1},
		{Start: 3, End: 4, Text: "negative", Confidence: -0.2},
	}
	got := NormalizeSegments(raw, 0.8)
	want := []float64{0.8, 0.001, 1, 0.8}
	for i, w := range want {
		if got[i].Confidence != w {
			t.Fatalf("segment %d confidence = %v, want %v", i, got[i].Confidence, w)
		}
	}
}

// TestSynthesizeSegmentsSpreadsChunksEvenly verifies the timestamp fallback.
func TestSynthesizeSegmentsSpreadsChunksEvenly(t *testing.T) {
	text := strings.TrimSpace(strings.Repeat("word ", 30))
	got := SynthesizeSegments(text, 60, DefaultChunkWords, 0.8)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	assertSegmentInvariant(t, got)
	if got[0].Start != 0 || got[0].End != 20 || got[1].Start != 20 {
		t.Fatalf("chunks not evenly spread: %+v", got)
	}
	if got[2].End != 60 {
		t.Fatalf("last end = %v, want 60", got[2].End)
	}
	if n := len(strings.Fields(got[2].Text)); n != 6 {
		t.Fatalf("last chunk words = %d, want 6", n)
	}
}

// TestSynthesizeSegmentsEstimatesUnknownDuration verifies the words-per-second fallback.
func TestSynthesizeSegmentsEstimatesUnknownDuration(t *testing.T) {
	got := SynthesizeSegments("one two three four five", 0, DefaultChunkWords, 0.5)
	if len(got) != 1 {
		t.Fatalf("len = %d, want 1", len(got))
	}
	if math.Abs(got[0].End-2.0) > 1e-9 {
		t.Fatalf("end = %v, want 2.0", got[0].End)
	}
	if SynthesizeSegments("   ", 10, DefaultChunkWords, 0.5) != nil {
		t.Fatal("blank text should produce no segments")
	}
}

// TestMockTranscriberScalesToDuration verifies the mock script is rescaled.
func TestMockTranscriberScalesToDuration(t *testing.T) {
	tr, err := MockTranscriber{}.Transcribe(context.Background(), Request{
		Audio: media.AudioInfo{DurationSeconds: 120},
	})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if tr.Engine != EngineMock {
		t.Fatalf("engine = %q, want mock", tr.Engine)
	}
	assertSegmentInvariant(t, tr.Segments)
	last := tr.Segments[len(tr.Segments)-1]
	if math.Abs(last.End-120) > 1.2 {
		t.Fatalf("last end = %v, want ~120", last.End)
	}
	if tr.Segments[1].Start != 5.5*4 {
		t.Fatalf("second start = %v, want %v", tr.Segments[1].Start, 5.5*4)
	}
	speakers := map[string]bool{}
	for _, s := range tr.Segments {
		speakers[s.Speaker] = true
	}
	if len(speakers) < 2 {
		t.Fatalf("mock should be multi-speaker, got %v", speakers)
	}
}

// TestMockTranscriberKeepsBaselineWithoutDuration verifies unknown duration is unscaled.
func TestMockTranscriberKeepsBaselineWithoutDuration(t *testing.T) {
	tr, _ := MockTranscriber{}.Transcribe(context.Background(), Request{})
	if got := tr.Duration(); got != mockBaselineSeconds {
		t.Fatalf("duration = %v, want %v", got, mockBaselineSeconds)
	}
}

// TestRegistryLookup verifies registration and listing.
func TestRegistryLookup(t *testing.T) {
	reg := NewRegistry(MockTranscriber{})
	if _, ok := reg.Lookup(EngineMock); !ok {
		t.Fatal("mock should be registered")
	}
	if _, ok := reg.Lookup(EngineGoogle); ok {
		t.Fatal("google should not be registered")
	}
	if got := reg.Configured(); len(got) != 1 || got[0] != EngineMock {
		t.Fatalf("configured = %v", got)
	}
	if IsKnownEngine(EngineMock) || !IsKnownEngine(EngineFPT) || IsKnownEngine("azure") {
		t.Fatal("IsKnownEngine mismatch")
	}
}
