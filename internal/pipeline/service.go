// Package pipeline runs transcription jobs: it picks the engine chain,
// applies the fallback policy and drives the progress tracker.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"scribeflow/internal/ai"
	"scribeflow/internal/jobs"
	"scribeflow/internal/media"
	"scribeflow/internal/progress"
	"scribeflow/internal/stt"
)

// Analyzer produces the optional post-transcription analysis.
type Analyzer interface {
	Analyze(ctx context.Context, transcript string) (*ai.Analysis, error)
}

// Options wires a Service. Registry, Prober and Store are required.
type Options struct {
	Registry     *stt.Registry
	DefaultChain []string
	Prober       media.Prober
	Analyzer     Analyzer
	Store        jobs.Store
	Stages       *progress.Table

	AdapterTimeout    time.Duration
	RealtimeFactor    float64
	HeartbeatInterval time.Duration
	Language          string

	Logger *slog.Logger
	Now    func() time.Time
	NewID  func() string
}

// EngineInfo describes one known engine for listings.
type EngineInfo struct {
	Name           string `json:"name"`
	Configured     bool   `json:"configured"`
	InDefaultChain bool   `json:"in_default_chain"`
}

// Service is the engine orchestrator. Each job runs in its own goroutine and
// is the only writer of its record in the store.
type Service struct {
	opts   Options
	logger *slog.Logger
	mock   stt.Provider

	baseCtx context.Context
	stop    context.CancelFunc

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

func NewService(opts Options) (*Service, error) {
	if opts.Registry == nil || opts.Prober == nil || opts.Store == nil {
		return nil, errors.New("pipeline: registry, prober and store are required")
	}
	if opts.Stages == nil {
		opts.Stages = progress.Default
	}
	if opts.AdapterTimeout <= 0 {
		opts.AdapterTimeout = 10 * time.Minute
	}
	if opts.RealtimeFactor <= 0 {
		opts.RealtimeFactor = 0.5
	}
	if opts.HeartbeatInterval <= 0 {
		opts.HeartbeatInterval = time.Second
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.NewID == nil {
		opts.NewID = func() string { return uuid.NewString() }
	}

	ctx, stop := context.WithCancel(context.Background())
	return &Service{
		opts:    opts,
		logger:  opts.Logger.With("component", "pipeline"),
		mock:    stt.MockTranscriber{},
		baseCtx: ctx,
		stop:    stop,
		cancels: make(map[string]context.CancelFunc),
	}, nil
}

// Submit validates the request, records a pending job and starts it in the
// background. Validation failures are returned as *InputError.
func (s *Service) Submit(path, engineHint string) (string, error) {
	hint := strings.ToLower(strings.TrimSpace(engineHint))
	if hint != "" {
		if !stt.IsKnownEngine(hint) {
			return "", &InputError{Reason: fmt.Sprintf("engine %q is not one of %s", engineHint, strings.Join(stt.KnownEngines, ", ")), Err: ErrUnknownEngine}
		}
		if _, ok := s.opts.Registry.Lookup(hint); !ok {
			return "", &InputError{Reason: fmt.Sprintf("engine %q is not configured in this deployment", hint), Err: ErrEngineNotConfigured}
		}
	}
	if err := validateFile(path); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return "", ErrShuttingDown
	}

	id := s.opts.NewID()
	ctx, cancel := context.WithCancel(s.baseCtx)
	s.cancels[id] = cancel

	tracker := jobs.NewTracker(s.opts.Store, s.opts.Stages, jobs.Snapshot{
		ID:         id,
		FileName:   filepath.Base(path),
		EngineHint: hint,
		Status:     jobs.StatusPending,
		CreatedAt:  s.opts.Now(),
	}, s.opts.Now)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.forget(id)
		s.run(ctx, tracker, path, hint)
	}()

	s.logger.Info("job submitted", "job_id", id, "file", filepath.Base(path), "engine_hint", hint)
	return id, nil
}

// Status returns the latest snapshot or jobs.ErrJobNotFound.
func (s *Service) Status(id string) (jobs.Snapshot, error) {
	return s.opts.Store.Get(id)
}

// Cancel aborts a running job. Cancelling a finished job is a no-op.
func (s *Service) Cancel(id string) error {
	if _, err := s.opts.Store.Get(id); err != nil {
		return err
	}
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if ok {
		cancel()
		s.logger.Info("job cancel requested", "job_id", id)
	}
	return nil
}

// Evict removes a finished job from the store.
func (s *Service) Evict(id string) error {
	return s.opts.Store.Delete(id)
}

// List returns every retained job.
func (s *Service) List() []jobs.Snapshot {
	return s.opts.Store.List()
}

// Engines lists every known engine with its deployment state.
func (s *Service) Engines() []EngineInfo {
	inChain := make(map[string]bool)
	for _, name := range s.DefaultChain() {
		inChain[name] = true
	}
	out := make([]EngineInfo, 0, len(stt.KnownEngines))
	for _, name := range stt.KnownEngines {
		_, ok := s.opts.Registry.Lookup(name)
		out = append(out, EngineInfo{Name: name, Configured: ok, InDefaultChain: inChain[name]})
	}
	return out
}

// DefaultChain returns the configured default order restricted to
// registered engines.
func (s *Service) DefaultChain() []string {
	out := make([]string, 0, len(s.opts.DefaultChain))
	seen := make(map[string]bool)
	for _, name := range s.opts.DefaultChain {
		if seen[name] {
			continue
		}
		if _, ok := s.opts.Registry.Lookup(name); ok {
			out = append(out, name)
			seen[name] = true
		}
	}
	return out
}

// Shutdown cancels all running jobs and waits for them to finish.
func (s *Service) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.stop()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Service) forget(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if cancel, ok := s.cancels[id]; ok {
		cancel()
		delete(s.cancels, id)
	}
}

func validateFile(path string) error {
	if strings.TrimSpace(path) == "" {
		return &InputError{Reason: "file path is required", Err: ErrInvalidFile}
	}
	info, err := os.Stat(path)
	if err != nil {
		return &InputError{Reason: fmt.Sprintf("cannot access %s", path), Err: errors.Join(ErrInvalidFile, err)}
	}
	if !info.Mode().IsRegular() {
		return &InputError{Reason: fmt.Sprintf("%s is not a regular file", path), Err: ErrInvalidFile}
	}
	return nil
}
