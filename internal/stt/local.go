package stt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"scribeflow/internal/media"
)

// LocalProvider runs whisper.cpp on the host against a 16 kHz mono WAV.
type LocalProvider struct {
	whisperBin        string
	modelPath         string
	defaultConfidence float64
	converter         media.Converter
	runner            media.Runner
	logger            *slog.Logger

	stat     func(name string) (os.FileInfo, error)
	readDir  func(name string) ([]os.DirEntry, error)
	readFile func(name string) ([]byte, error)
	remove   func(name string) error
}

// NewLocalProvider creates a whisper.cpp provider. modelPath may point at a
// model file or at a directory holding .bin/.gguf models.
func NewLocalProvider(whisperBin, modelPath string, defaultConfidence float64, converter media.Converter, runner media.Runner, logger *slog.Logger) *LocalProvider {
	if runner == nil {
		runner = media.ExecRunner{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalProvider{
		whisperBin:        whisperBin,
		modelPath:         modelPath,
		defaultConfidence: defaultConfidence,
		converter:         converter,
		runner:            runner,
		logger:            logger.With("provider", EngineLocal),
		stat:              os.Stat,
		readDir:           os.ReadDir,
		readFile:          os.ReadFile,
		remove:            os.Remove,
	}
}

func (p *LocalProvider) Name() string {
	return EngineLocal
}

type whisperOutput struct {
	Result struct {
		Language string `json:"language"`
	} `json:"result"`
	Transcription []struct {
		Offsets struct {
			From int64 `json:"from"`
			To   int64 `json:"to"`
		} `json:"offsets"`
		Text string `json:"text"`
	} `json:"transcription"`
}

func (p *LocalProvider) Transcribe(ctx context.Context, req Request) (*Transcript, error) {
	startTime := time.Now()

	modelPath, err := p.resolveModelPath()
	if err != nil {
		return nil, &Error{Provider: EngineLocal, Kind: KindUnavailable, Message: "whisper model not available", Err: err}
	}

	wavPath, err := p.converter.Convert(ctx, req.Path, media.FormatWAV)
	if err != nil {
		return nil, FromConversion(EngineLocal, err)
	}
	defer func() { _ = p.remove(wavPath) }()

	outBase := strings.TrimSuffix(wavPath, filepath.Ext(wavPath))
	jsonPath := outBase + ".json"
	defer func() { _ = p.remove(jsonPath) }()

	args := buildWhisperArgs(modelPath, wavPath, outBase, req.Language)
	p.logger.Debug("running whisper.cpp", "model", modelPath, "input", wavPath)

	res, runErr := p.runner.Run(ctx, p.whisperBin, args...)
	if runErr != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, FromTransport(EngineLocal, ctxErr)
		}
		if media.IsMissingBinary(runErr) {
			return nil, &Error{Provider: EngineLocal, Kind: KindUnavailable, Message: "whisper.cpp binary not found", Err: runErr}
		}
		return nil, &Error{
			Provider: EngineLocal,
			Kind:     KindUnavailable,
			Message:  fmt.Sprintf("whisper.cpp exited with code %d: %s", res.ExitCode, preview(res.Stderr)),
			Err:      runErr,
		}
	}

	data, err := p.readFile(jsonPath)
	if err != nil {
		return nil, &Error{Provider: EngineLocal, Kind: KindUnavailable, Message: "whisper.cpp produced no JSON output", Err: err}
	}

	var out whisperOutput
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &Error{Provider: EngineLocal, Kind: KindUnavailable, Message: "failed to parse whisper.cpp output", Err: err}
	}

	raw := make([]Segment, 0, len(out.Transcription))
	for _, t := range out.Transcription {
		raw = append(raw, Segment{
			Start: float64(t.Offsets.From) / 1000,
			End:   float64(t.Offsets.To) / 1000,
			Text:  t.Text,
		})
	}
	segments := NormalizeSegments(raw, p.defaultConfidence)
	if len(segments) == 0 {
		return nil, noSpeech(EngineLocal)
	}

	p.logger.Info("transcription successful", "segments", len(segments), "duration", time.Since(startTime))

	return &Transcript{
		Segments: segments,
		Language: out.Result.Language,
		Engine:   EngineLocal,
	}, nil
}

// resolveModelPath returns the model file from a file or directory setting.
func (p *LocalProvider) resolveModelPath() (string, error) {
	modelPath := strings.TrimSpace(p.modelPath)
	if modelPath == "" {
		return "", fmt.Errorf("model path is required")
	}

	info, err := p.stat(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot access model path: %s", modelPath)
	}
	if !info.IsDir() {
		return modelPath, nil
	}

	entries, err := p.readDir(modelPath)
	if err != nil {
		return "", fmt.Errorf("cannot read model directory: %s", modelPath)
	}

	modelNames := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext == ".bin" || ext == ".gguf" {
			modelNames = append(modelNames, entry.Name())
		}
	}
	if len(modelNames) == 0 {
		return "", fmt.Errorf("no .bin or .gguf model files found in: %s", modelPath)
	}

	sort.Strings(modelNames)
	return filepath.Join(modelPath, modelNames[0]), nil
}

// normalizeLanguage maps "auto" and empty language to no override.
func normalizeLanguage(raw string) string {
	lang := strings.TrimSpace(raw)
	if lang == "" || strings.EqualFold(lang, "auto") {
		return ""
	}
	return lang
}

func buildWhisperArgs(modelPath, audioPath, outBase, language string) []string {
	args := []string{
		"-m", modelPath,
		"-f", audioPath,
		"-of", outBase,
		"-oj",
	}
	if lang := normalizeLanguage(language); lang != "" {
		args = append(args, "-l", lang)
	}
	return args
}
