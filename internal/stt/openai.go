package stt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"

	"scribeflow/internal/media"
)

// openAIUploadLimit is the largest file the transcription endpoint accepts.
const openAIUploadLimit = 25 << 20

var openAIFormats = map[string]bool{
	".flac": true, ".m4a": true, ".mp3": true, ".mp4": true, ".mpeg": true,
	".mpga": true, ".oga": true, ".ogg": true, ".wav": true, ".webm": true,
}

// OpenAIProvider transcribes through the OpenAI audio transcription API.
type OpenAIProvider struct {
	client            *openai.Client
	model             string
	defaultConfidence float64
	converter         media.Converter
	logger            *slog.Logger

	stat   func(name string) (os.FileInfo, error)
	remove func(name string) error
}

// NewOpenAIProvider creates a Whisper API provider. baseURL may be empty.
func NewOpenAIProvider(apiKey, baseURL, model string, defaultConfidence float64, converter media.Converter, logger *slog.Logger) *OpenAIProvider {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	cfg.HTTPClient = retryHintDoer{base: cfg.HTTPClient}
	if model == "" {
		model = openai.Whisper1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIProvider{
		client:            openai.NewClientWithConfig(cfg),
		model:             model,
		defaultConfidence: defaultConfidence,
		converter:         converter,
		logger:            logger.With("provider", EngineOpenAI),
		stat:              os.Stat,
		remove:            os.Remove,
	}
}

func (p *OpenAIProvider) Name() string {
	return EngineOpenAI
}

func (p *OpenAIProvider) Transcribe(ctx context.Context, req Request) (*Transcript, error) {
	startTime := time.Now()

	uploadPath := req.Path
	if p.needsConversion(req) {
		mp3Path, err := p.converter.Convert(ctx, req.Path, media.FormatMP3)
		if err != nil {
			return nil, FromConversion(EngineOpenAI, err)
		}
		defer func() { _ = p.remove(mp3Path) }()
		uploadPath = mp3Path
	}

	hint := &retryHint{}
	ctx = context.WithValue(ctx, retryHintKey{}, hint)

	resp, err := p.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:                  p.model,
		FilePath:               uploadPath,
		Language:               normalizeLanguage(req.Language),
		Format:                 openai.AudioResponseFormatVerboseJSON,
		TimestampGranularities: []openai.TranscriptionTimestampGranularity{openai.TranscriptionTimestampGranularitySegment},
	})
	if err != nil {
		return nil, mapOpenAIError(err, hint.header)
	}

	raw := make([]Segment, 0, len(resp.Segments))
	for _, s := range resp.Segments {
		raw = append(raw, Segment{
			Start:      s.Start,
			End:        s.End,
			Text:       s.Text,
			Confidence: math.Exp(s.AvgLogprob),
		})
	}
	segments := NormalizeSegments(raw, p.defaultConfidence)
	if len(segments) == 0 && strings.TrimSpace(resp.Text) != "" {
		duration := resp.Duration
		if duration <= 0 {
			duration = req.Audio.DurationSeconds
		}
		segments = SynthesizeSegments(resp.Text, duration, DefaultChunkWords, p.defaultConfidence)
	}
	if len(segments) == 0 {
		return nil, noSpeech(EngineOpenAI)
	}

	p.logger.Info("transcription successful", "segments", len(segments), "duration", time.Since(startTime))
	return &Transcript{Segments: segments, Language: resp.Language, Engine: EngineOpenAI}, nil
}

func (p *OpenAIProvider) needsConversion(req Request) bool {
	if !openAIFormats[strings.ToLower(filepath.Ext(req.Path))] {
		return true
	}
	size := req.Audio.SizeBytes
	if size <= 0 {
		if info, err := p.stat(req.Path); err == nil {
			size = info.Size()
		}
	}
	return size > openAIUploadLimit
}

// retryHint receives the headers of a 429 response. The SDK error types do
// not carry response headers, so the HTTP doer records them per call.
type retryHint struct {
	header http.Header
}

type retryHintKey struct{}

type retryHintDoer struct {
	base openai.HTTPDoer
}

func (d retryHintDoer) Do(req *http.Request) (*http.Response, error) {
	resp, err := d.base.Do(req)
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		if hint, ok := req.Context().Value(retryHintKey{}).(*retryHint); ok {
			hint.header = resp.Header.Clone()
		}
	}
	return resp, err
}

func mapOpenAIError(err error, header http.Header) error {
	if header == nil {
		header = http.Header{}
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		e := FromHTTPStatus(EngineOpenAI, apiErr.HTTPStatusCode, header, apiErr.Message)
		if code, _ := apiErr.Code.(string); code == "insufficient_quota" || apiErr.Type == "insufficient_quota" {
			e.Kind = KindQuota
		}
		if code, _ := apiErr.Code.(string); code == "invalid_api_key" {
			e.Kind = KindAuth
		}
		e.Err = err
		return e
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		e := FromHTTPStatus(EngineOpenAI, reqErr.HTTPStatusCode, header, string(reqErr.Body))
		e.Err = err
		return e
	}

	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return &Error{Provider: EngineOpenAI, Kind: KindInput, Message: fmt.Sprintf("cannot open %s", pathErr.Path), Err: err}
	}

	return FromTransport(EngineOpenAI, err)
}
