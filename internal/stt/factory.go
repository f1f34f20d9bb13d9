package stt

import (
	"context"
	"log/slog"
	"strings"

	"scribeflow/internal/config"
	"scribeflow/internal/media"
)

// BuildRegistry registers every provider the configuration enables. A
// provider that fails to initialize is logged and left out, so the rest of
// the deployment keeps working.
func BuildRegistry(ctx context.Context, cfg *config.Config, converter media.Converter, runner media.Runner, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "stt_factory")
	reg := NewRegistry()

	if strings.TrimSpace(cfg.WhisperBin) != "" {
		reg.Register(NewLocalProvider(cfg.WhisperBin, cfg.WhisperModelPath, cfg.DefaultConfidence, converter, runner, logger))
		logger.Info("registered provider", "engine", EngineLocal, "model_path", cfg.WhisperModelPath)
	}

	if googleConfigured(cfg) {
		p, err := NewGoogleProvider(ctx, GoogleOptions{
			ProjectID:         cfg.GoogleProjectID,
			KeyData:           cfg.GoogleKeyFile,
			Language:          cfg.GoogleLanguage,
			DefaultConfidence: cfg.DefaultConfidence,
		}, converter, logger)
		if err != nil {
			logger.Warn("google provider disabled", "error", err)
		} else {
			reg.Register(p)
			logger.Info("registered provider", "engine", EngineGoogle)
		}
	} else {
		logger.Debug("google provider not configured", "hint", "set GOOGLE_STT_KEY_FILE or GOOGLE_STT_PROJECT_ID")
	}

	if cfg.OpenAIKey != "" {
		reg.Register(NewOpenAIProvider(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAISTTModel, cfg.DefaultConfidence, converter, logger))
		logger.Info("registered provider", "engine", EngineOpenAI, "model", cfg.OpenAISTTModel)
	}

	if cfg.FPTApiKey != "" {
		reg.Register(NewFPTProvider(cfg.FPTApiKey, cfg.FPTSTTURL, cfg.DefaultConfidence, nil, logger))
		logger.Info("registered provider", "engine", EngineFPT, "url", cfg.FPTSTTURL)
	}

	return reg
}

// googleConfigured reports whether Google credentials were supplied. The
// project ID alone enables application default credentials.
func googleConfigured(cfg *config.Config) bool {
	return strings.TrimSpace(cfg.GoogleKeyFile) != "" || strings.TrimSpace(cfg.GoogleProjectID) != ""
}
