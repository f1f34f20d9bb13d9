// Package bootstrap wires configuration into a running service for both
// entrypoints.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"golang.org/x/sync/errgroup"

	"scribeflow/internal/ai"
	"scribeflow/internal/api"
	"scribeflow/internal/config"
	"scribeflow/internal/jobs"
	"scribeflow/internal/media"
	"scribeflow/internal/pipeline"
	"scribeflow/internal/storage"
	"scribeflow/internal/stt"
)

const shutdownTimeout = 15 * time.Second

// NewLogger builds the process logger. Unknown levels fall back to info.
func NewLogger(level string, w io.Writer) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// BuildService creates the pipeline with every provider the configuration
// enables.
func BuildService(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pipeline.Service, error) {
	runner := media.ExecRunner{}
	converter := media.NewFFmpeg(cfg.FFmpegBin, runner)
	registry := stt.BuildRegistry(ctx, cfg, converter, runner, logger)

	var analyzer pipeline.Analyzer
	if cfg.AnalysisEnabled && cfg.OpenAIKey != "" {
		analyzer = ai.NewAnalyzer(cfg.OpenAIKey, cfg.OpenAIBaseURL, cfg.OpenAIAnalysisModel, logger)
	} else {
		logger.Info("transcript analysis disabled")
	}

	svc, err := pipeline.NewService(pipeline.Options{
		Registry:       registry,
		DefaultChain:   cfg.DefaultChain,
		Prober:         media.NewFFProbe(cfg.FFprobeBin, runner),
		Analyzer:       analyzer,
		Store:          jobs.NewMemoryStore(),
		AdapterTimeout: cfg.AdapterTimeout,
		RealtimeFactor: cfg.RealtimeFactor,
		Language:       cfg.Language,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}

	chain := svc.DefaultChain()
	if len(chain) == 0 {
		logger.Warn("no transcription engine configured, every job will return a synthetic transcript")
	} else {
		logger.Info("default engine chain", "engines", chain)
	}
	return svc, nil
}

// NewRouter builds the gin engine serving svc.
func NewRouter(cfg *config.Config, svc api.JobService, logger *slog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if gin.Mode() == gin.DebugMode {
		r.Use(gin.Logger())
	}
	r.MaxMultipartMemory = 32 << 20
	r.Use(api.CORSMiddleware())

	uploads := storage.NewUploads(cfg.UploadDir, cfg.MaxUploadBytes())
	api.NewHandler(svc, uploads, cfg.SubmitRatePerMin, logger).RegisterRoutes(r)
	return r
}

// Serve runs the HTTP server until ctx is cancelled, then drains the server
// and cancels in-flight jobs.
func Serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	svc, err := BuildService(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("build service: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           NewRouter(cfg, svc, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("scribeflow listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return errors.Join(srv.Shutdown(shutdownCtx), svc.Shutdown(shutdownCtx))
	})
	return g.Wait()
}
