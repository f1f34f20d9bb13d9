package stt

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"scribeflow/internal/media"
)

// TestFPTProviderSynthesizesSegments verifies plain text is spread over the duration.
func TestFPTProviderSynthesizesSegments(t *testing.T) {
	utterance := strings.TrimSpace(strings.Repeat("xin chao ", 12))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("api-key") != "fpt-key" {
			t.Errorf("api-key header = %q", r.Header.Get("api-key"))
		}
		_, _ = io.WriteString(w, `{"status":0,"hypotheses":[{"utterance":"`+utterance+`","confidence":0.93}]}`)
	}))
	defer srv.Close()

	p := NewFPTProvider("fpt-key", srv.URL, 0.8, srv.Client(), nil)
	tr, err := p.Transcribe(context.Background(), Request{
		Path:  writeAudio(t, "a.mp3", 4096),
		Audio: media.AudioInfo{DurationSeconds: 40},
	})
	if err != nil {
		t.Fatalf("Transcribe() error = %v", err)
	}
	if len(tr.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(tr.Segments))
	}
	assertSegmentInvariant(t, tr.Segments)
	if tr.Segments[1].End != 40 || tr.Segments[0].Confidence != 0.93 {
		t.Fatalf("segments = %+v", tr.Segments)
	}
}

// TestFPTProviderRejectsTinyFiles verifies the size guard runs before any request.
func TestFPTProviderRejectsTinyFiles(t *testing.T) {
	p := NewFPTProvider("fpt-key", "http://127.0.0.1:1", 0.8, nil, nil)
	_, err := p.Transcribe(context.Background(), Request{Path: writeAudio(t, "a.mp3", 10)})
	if got := KindOf(err); got != KindInput {
		t.Fatalf("kind = %s, want %s", got, KindInput)
	}
}

// TestFPTProviderMapsStatus verifies HTTP failures use the shared mapping.
func TestFPTProviderMapsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"message":"invalid api key"}`)
	}))
	defer srv.Close()

	p := NewFPTProvider("bad", srv.URL, 0.8, srv.Client(), nil)
	_, err := p.Transcribe(context.Background(), Request{Path: writeAudio(t, "a.mp3", 4096)})
	if got := KindOf(err); got != KindAuth {
		t.Fatalf("kind = %s, want %s", got, KindAuth)
	}
}

// TestFPTProviderEmptyHypothesesIsUnavailable verifies silence lets the chain continue.
func TestFPTProviderEmptyHypothesesIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":0,"hypotheses":[]}`)
	}))
	defer srv.Close()

	p := NewFPTProvider("k", srv.URL, 0.8, srv.Client(), nil)
	_, err := p.Transcribe(context.Background(), Request{Path: writeAudio(t, "a.mp3", 4096)})
	if got := KindOf(err); got != KindUnavailable {
		t.Fatalf("kind = %s, want %s", got, KindUnavailable)
	}
}
