package stt

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// fptMinAudioBytes rejects files that are almost certainly empty or corrupted.
const fptMinAudioBytes = 1000

// FPTProvider implements STT using FPT.AI Speech-to-Text API
type FPTProvider struct {
	apiKey            string
	url               string
	defaultConfidence float64
	httpClient        *http.Client
	logger            *slog.Logger
}

// NewFPTProvider creates a new FPT STT provider
func NewFPTProvider(apiKey, url string, defaultConfidence float64, httpClient *http.Client, logger *slog.Logger) *FPTProvider {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &FPTProvider{
		apiKey:            apiKey,
		url:               url,
		defaultConfidence: defaultConfidence,
		httpClient:        httpClient,
		logger:            logger.With("provider", EngineFPT),
	}
}

// Name returns the provider name
func (p *FPTProvider) Name() string {
	return EngineFPT
}

// fptResponse represents FPT.AI STT API response
type fptResponse struct {
	Hypotheses []struct {
		Utterance  string  `json:"utterance"`
		Confidence float64 `json:"confidence"`
	} `json:"hypotheses"`
	Status    int    `json:"status"`
	ErrorCode int    `json:"errorCode,omitempty"`
	Message   string `json:"message,omitempty"`
}

// Transcribe sends the audio bytes to FPT.AI. The API returns plain text, so
// segments are synthesized across the probed duration.
func (p *FPTProvider) Transcribe(ctx context.Context, req Request) (*Transcript, error) {
	startTime := time.Now()

	audioBytes, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, &Error{Provider: EngineFPT, Kind: KindInput, Message: "failed to read audio file", Err: err}
	}

	p.logger.Debug("processing audio file", "path", req.Path, "size", len(audioBytes), "ext", filepath.Ext(req.Path))

	if len(audioBytes) < fptMinAudioBytes {
		return nil, NewError(EngineFPT, KindInput, "audio file too small (%d bytes), may be empty or corrupted", len(audioBytes))
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.url, bytes.NewReader(audioBytes))
	if err != nil {
		return nil, &Error{Provider: EngineFPT, Kind: KindUnavailable, Message: "failed to create request", Err: err}
	}
	httpReq.Header.Set("api-key", p.apiKey)
	httpReq.Header.Set("Content-Type", "text/plain")

	resp, err := p.httpClient.Do(httpReq)
	if err != nil {
		return nil, FromTransport(EngineFPT, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, FromTransport(EngineFPT, err)
	}

	if resp.StatusCode != http.StatusOK {
		p.logger.Warn("api error", "status", resp.StatusCode, "body", preview(string(body)))
		return nil, FromHTTPStatus(EngineFPT, resp.StatusCode, resp.Header, string(body))
	}

	var sttResp fptResponse
	if err := json.Unmarshal(body, &sttResp); err != nil {
		return nil, &Error{Provider: EngineFPT, Kind: KindUnavailable, Message: "failed to parse response", Err: err}
	}
	if sttResp.ErrorCode != 0 {
		return nil, NewError(EngineFPT, KindUnavailable, "api error %d: %s", sttResp.ErrorCode, sttResp.Message)
	}
	if len(sttResp.Hypotheses) == 0 {
		return nil, noSpeech(EngineFPT)
	}

	// The first hypothesis is the best one.
	hyp := sttResp.Hypotheses[0]
	transcript := strings.TrimSpace(hyp.Utterance)
	if transcript == "" {
		return nil, noSpeech(EngineFPT)
	}

	confidence := hyp.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = p.defaultConfidence
	}
	segments := SynthesizeSegments(transcript, req.Audio.DurationSeconds, DefaultChunkWords, confidence)

	p.logger.Info("transcription successful", "confidence", confidence, "segments", len(segments), "duration", time.Since(startTime))

	return &Transcript{Segments: segments, Language: "vi", Engine: EngineFPT}, nil
}
