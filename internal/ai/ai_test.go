package ai

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func chatServer(t *testing.T, content string, gotBody *map[string]any) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/chat/completions" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if gotBody != nil {
			raw, _ := io.ReadAll(r.Body)
			_ = json.Unmarshal(raw, gotBody)
		}
		resp := map[string]any{
			"id":      "chatcmpl-1",
			"object":  "chat.completion",
			"choices": []any{map[string]any{"index": 0, "message": map[string]any{"role": "assistant", "content": content}, "finish_reason": "stop"}},
			"usage":   map[string]any{"prompt_tokens": 10, "completion_tokens": 5, "total_tokens": 15},
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(resp)
	}))
}

// TestAnalyzerParsesJSONAndFillsDefaults verifies parsing and derived fields.
func TestAnalyzerParsesJSONAndFillsDefaults(t *testing.T) {
	var body map[string]any
	srv := chatServer(t, `{"summary":["The team agreed to ship the release on Friday after review","Budget is approved"]}`, &body)
	defer srv.Close()

	a := NewAnalyzer("sk-test", srv.URL+"/v1", "gpt-4o-mini", nil)
	got, err := a.Analyze(context.Background(), "Our team meeting: the release deadline is Friday and the budget is approved.")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got.Context != ContextMeeting {
		t.Fatalf("context = %q, want meeting", got.Context)
	}
	if got.Title != "The team agreed to ship the release on Friday after" {
		t.Fatalf("title = %q", got.Title)
	}
	if len(got.KeyPoints) != 2 || got.ActionItems == nil {
		t.Fatalf("analysis = %+v", got)
	}
	if body["model"] != "gpt-4o-mini" {
		t.Fatalf("model = %v", body["model"])
	}
}

// TestAnalyzerAcceptsMarkdownFencedJSON verifies code fences are stripped.
func TestAnalyzerAcceptsMarkdownFencedJSON(t *testing.T) {
	srv := chatServer(t, "```json\n{\"context\":\"lecture\",\"title\":\"Graphs\",\"summary\":[\"BFS\"]}\n```", nil)
	defer srv.Close()

	got, err := NewAnalyzer("sk-test", srv.URL+"/v1", "", nil).Analyze(context.Background(), "today's lecture covers graphs")
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if got.Context != "lecture" || got.Title != "Graphs" {
		t.Fatalf("analysis = %+v", got)
	}
}

// TestAnalyzerRejectsEmptyTranscript verifies no request is made for blank input.
func TestAnalyzerRejectsEmptyTranscript(t *testing.T) {
	a := NewAnalyzer("sk-test", "http://127.0.0.1:1/v1", "", nil)
	if _, err := a.Analyze(context.Background(), "   "); !errors.Is(err, ErrEmptyTranscript) {
		t.Fatalf("error = %v, want ErrEmptyTranscript", err)
	}
}

// TestAnalyzerRejectsGarbage verifies unparseable replies are errors.
func TestAnalyzerRejectsGarbage(t *testing.T) {
	srv := chatServer(t, "not json at all", nil)
	defer srv.Close()

	_, err := NewAnalyzer("sk-test", srv.URL+"/v1", "", nil).Analyze(context.Background(), "hello")
	if err == nil || !strings.Contains(err.Error(), "parse") {
		t.Fatalf("error = %v, want parse error", err)
	}
}

// TestDetectContext verifies keyword classification.
func TestDetectContext(t *testing.T) {
	cases := map[string]string{
		"Let's review the project deadline with the client": ContextMeeting,
		"In this lecture we define the concept of entropy":  ContextLecture,
		"I keep wondering what to cook tonight":             ContextThinking,
		"Cuộc họp dự án hôm nay":                            ContextMeeting,
	}
	for text, want := range cases {
		if got := DetectContext(text); got != want {
			t.Fatalf("DetectContext(%q) = %q, want %q", text, got, want)
		}
	}
}
