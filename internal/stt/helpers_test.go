package stt

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"scribeflow/internal/media"
)

// fakeConverter writes a placeholder file per call and records requested formats.
type fakeConverter struct {
	t       *testing.T
	dir     string
	content []byte
	err     error

	mu      sync.Mutex
	formats []media.Format
	outputs []string
}

func newFakeConverter(t *testing.T, content []byte) *fakeConverter {
	t.Helper()
	return &fakeConverter{t: t, dir: t.TempDir(), content: content}
}

func (c *fakeConverter) Convert(ctx context.Context, inputPath string, format media.Format) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.formats = append(c.formats, format)
	if c.err != nil {
		return "", c.err
	}
	out := filepath.Join(c.dir, "converted-"+string(rune('a'+len(c.outputs)))+"."+string(format))
	if err := os.WriteFile(out, c.content, 0o644); err != nil {
		c.t.Fatalf("write converted file: %v", err)
	}
	c.outputs = append(c.outputs, out)
	return out, nil
}

// assertRemoved fails when any converted output still exists.
func (c *fakeConverter) assertRemoved(t *testing.T) {
	t.Helper()
	for _, out := range c.outputs {
		if _, err := os.Stat(out); !os.IsNotExist(err) {
			t.Fatalf("temporary file %s was not removed", out)
		}
	}
}

// writeAudio creates an input file of the given size in a temp dir.
func writeAudio(t *testing.T, name string, size int) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(strings.Repeat("a", size)), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	return path
}

// assertSegmentInvariant checks ordering, bounds and text of every segment.
func assertSegmentInvariant(t *testing.T, segments []Segment) {
	t.Helper()
	for i, s := range segments {
		if s.Start < 0 || s.End <= s.Start {
			t.Fatalf("segment %d has bad range [%v, %v]", i, s.Start, s.End)
		}
		if strings.TrimSpace(s.Text) == "" {
			t.Fatalf("segment %d has empty text", i)
		}
		if s.Confidence < 0 || s.Confidence > 1 {
			t.Fatalf("segment %d confidence = %v", i, s.Confidence)
		}
	}
}
