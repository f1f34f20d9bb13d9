package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"scribeflow/internal/ai"
	"scribeflow/internal/jobs"
	"scribeflow/internal/media"
	"scribeflow/internal/stt"
	"scribeflow/internal/stt/sttmock"
)

type fakeProber struct {
	info  media.AudioInfo
	err   error
	calls atomic.Int32
}

func (p *fakeProber) Probe(ctx context.Context, path string) (media.AudioInfo, error) {
	p.calls.Add(1)
	return p.info, p.err
}

type fakeAnalyzer struct {
	analysis *ai.Analysis
	err      error
	calls    atomic.Int32
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, transcript string) (*ai.Analysis, error) {
	a.calls.Add(1)
	return a.analysis, a.err
}

// recordingStore keeps every published snapshot next to the live store.
type recordingStore struct {
	*jobs.MemoryStore
	mu    sync.Mutex
	snaps []jobs.Snapshot
}

func (r *recordingStore) Put(s jobs.Snapshot) {
	r.mu.Lock()
	r.snaps = append(r.snaps, s)
	r.mu.Unlock()
	r.MemoryStore.Put(s)
}

func (r *recordingStore) history(id string) []jobs.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []jobs.Snapshot
	for _, s := range r.snaps {
		if s.ID == id {
			out = append(out, s)
		}
	}
	return out
}

type testEnv struct {
	svc      *Service
	store    *recordingStore
	prober   *fakeProber
	analyzer *fakeAnalyzer
	file     string
}

func newProvider(ctrl *gomock.Controller, name string) *sttmock.MockProvider {
	p := sttmock.NewMockProvider(ctrl)
	p.EXPECT().Name().Return(name).AnyTimes()
	return p
}

func newTestEnv(t *testing.T, duration float64, providers []stt.Provider, mutate func(*Options)) *testEnv {
	t.Helper()

	file := filepath.Join(t.TempDir(), "meeting.mp3")
	if err := os.WriteFile(file, []byte("ID3 fake audio payload"), 0o644); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	env := &testEnv{
		store:    &recordingStore{MemoryStore: jobs.NewMemoryStore()},
		prober:   &fakeProber{info: media.AudioInfo{DurationSeconds: duration, FormatName: "mp3"}},
		analyzer: &fakeAnalyzer{analysis: &ai.Analysis{Context: ai.ContextMeeting, Title: "Weekly sync"}},
		file:     file,
	}

	var chain []string
	for _, p := range providers {
		chain = append(chain, p.Name())
	}
	opts := Options{
		Registry:          stt.NewRegistry(providers...),
		DefaultChain:      chain,
		Prober:            env.prober,
		Analyzer:          env.analyzer,
		Store:             env.store,
		AdapterTimeout:    5 * time.Second,
		HeartbeatInterval: 10 * time.Millisecond,
		Logger:            slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	if mutate != nil {
		mutate(&opts)
	}

	svc, err := NewService(opts)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = svc.Shutdown(ctx)
	})
	env.svc = svc
	return env
}

func waitTerminal(t *testing.T, svc *Service, id string) jobs.Snapshot {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		snap, err := svc.Status(id)
		if err != nil {
			t.Fatalf("Status(%s): %v", id, err)
		}
		if snap.Status.Terminal() {
			return snap
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("job %s did not finish in time", id)
	return jobs.Snapshot{}
}

func transient(provider string) error {
	return stt.NewError(provider, stt.KindTransient, "503 service unavailable")
}

func assertSegmentsValid(t *testing.T, segments []stt.Segment) {
	t.Helper()
	for i, s := range segments {
		if s.Start < 0 || s.End <= s.Start {
			t.Fatalf("segment %d has invalid bounds [%v, %v]", i, s.Start, s.End)
		}
		if strings.TrimSpace(s.Text) == "" {
			t.Fatalf("segment %d has empty text", i)
		}
		if s.Speaker == "" {
			t.Fatalf("segment %d has no speaker", i)
		}
	}
}

// TestPinnedEngineNeverFallsBack verifies a hinted engine failure ends the job.
func TestPinnedEngineNeverFallsBack(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := newProvider(ctrl, stt.EngineLocal)
	google := newProvider(ctrl, stt.EngineGoogle)
	openai := newProvider(ctrl, stt.EngineOpenAI)

	google.EXPECT().Transcribe(gomock.Any(), gomock.Any()).Return(nil, transient("google")).Times(1)
	local.EXPECT().Transcribe(gomock.Any(), gomock.Any()).Times(0)
	openai.EXPECT().Transcribe(gomock.Any(), gomock.Any()).Times(0)

	env := newTestEnv(t, 60, []stt.Provider{local, google, openai}, nil)
	id, err := env.svc.Submit(env.file, "Google")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := waitTerminal(t, env.svc, id)

	if snap.Status != jobs.StatusFailed {
		t.Fatalf("status = %s, want %s", snap.Status, jobs.StatusFailed)
	}
	if snap.Result != nil {
		t.Fatal("failed job must not carry a result")
	}
	if snap.Error == nil || !snap.Error.Pinned || snap.Error.Engine != stt.EngineGoogle {
		t.Fatalf("error = %+v, want pinned google failure", snap.Error)
	}
	if snap.Error.Kind != stt.KindTransient {
		t.Fatalf("error kind = %s, want %s", snap.Error.Kind, stt.KindTransient)
	}
	if !strings.Contains(snap.Error.Message, "failed (retryable); no fallback was attempted") {
		t.Fatalf("error message = %q", snap.Error.Message)
	}
	if len(snap.Attempts) != 1 || snap.Attempts[0].Engine != stt.EngineGoogle {
		t.Fatalf("attempts = %+v, want only google", snap.Attempts)
	}
}

// TestFatalErrorStopsDefaultChain verifies auth errors are not retried elsewhere.
func TestFatalErrorStopsDefaultChain(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := newProvider(ctrl, stt.EngineLocal)
	google := newProvider(ctrl, stt.EngineGoogle)

	local.EXPECT().Transcribe(gomock.Any(), gomock.Any()).
		Return(nil, stt.NewError("local", stt.KindAuth, "invalid credentials")).Times(1)
	google.EXPECT().Transcribe(gomock.Any(), gomock.Any()).Times(0)

	env := newTestEnv(t, 30, []stt.Provider{local, google}, nil)
	id, err := env.svc.Submit(env.file, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := waitTerminal(t, env.svc, id)

	if snap.Status != jobs.StatusFailed || snap.Error == nil {
		t.Fatalf("snapshot = %+v, want failed", snap)
	}
	if snap.Error.Kind != stt.KindAuth || snap.Error.Pinned {
		t.Fatalf("error = %+v, want unpinned auth failure", snap.Error)
	}
	if snap.Attempts[0].Verdict != string(VerdictFatal) {
		t.Fatalf("verdict = %q, want %q", snap.Attempts[0].Verdict, VerdictFatal)
	}
}

// TestSilentResultMovesToNextEngine verifies an engine that hears no speech
// does not end the default chain.
func TestSilentResultMovesToNextEngine(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := newProvider(ctrl, stt.EngineLocal)
	google := newProvider(ctrl, stt.EngineGoogle)

	local.EXPECT().Transcribe(gomock.Any(), gomock.Any()).
		Return(nil, stt.NewError("local", stt.KindUnavailable, "no speech detected in audio"))
	google.EXPECT().Transcribe(gomock.Any(), gomock.Any()).Return(&stt.Transcript{
		Segments: []stt.Segment{{Start: 0, End: 4, Text: "quiet voice"}},
	}, nil)

	env := newTestEnv(t, 4, []stt.Provider{local, google}, nil)
	id, err := env.svc.Submit(env.file, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := waitTerminal(t, env.svc, id)

	if snap.Status != jobs.StatusCompleted || snap.Result.EngineUsed != stt.EngineGoogle {
		t.Fatalf("snapshot = %+v, want completed by google", snap)
	}
	if snap.Attempts[0].Verdict != string(VerdictUnavailable) {
		t.Fatalf("first attempt = %+v, want unavailable", snap.Attempts[0])
	}
}

// TestPinnedUnavailableMessage verifies the failure text for a pinned
// engine that is unavailable.
func TestPinnedUnavailableMessage(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := newProvider(ctrl, stt.EngineLocal)
	local.EXPECT().Transcribe(gomock.Any(), gomock.Any()).
		Return(nil, stt.NewError("local", stt.KindUnavailable, "whisper binary not found"))

	env := newTestEnv(t, 4, []stt.Provider{local}, nil)
	id, err := env.svc.Submit(env.file, "local")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := waitTerminal(t, env.svc, id)

	want := `engine "local" was explicitly selected and failed (unavailable); no fallback was attempted: whisper binary not found`
	if snap.Error == nil || snap.Error.Message != want {
		t.Fatalf("error = %+v, want message %q", snap.Error, want)
	}
}

// TestExhaustedChainReturnsMarkedMock verifies the synthetic fallback and its
// markers.
func TestExhaustedChainReturnsMarkedMock(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := newProvider(ctrl, stt.EngineLocal)
	google := newProvider(ctrl, stt.EngineGoogle)
	openai := newProvider(ctrl, stt.EngineOpenAI)

	gomock.InOrder(
		local.EXPECT().Transcribe(gomock.Any(), gomock.Any()).
			Return(nil, stt.NewError("local", stt.KindUnavailable, "whisper binary not found")),
		google.EXPECT().Transcribe(gomock.Any(), gomock.Any()).Return(nil, transient("google")),
		openai.EXPECT().Transcribe(gomock.Any(), gomock.Any()).
			Return(nil, stt.NewError("openai", stt.KindRateLimited, "slow down")),
	)

	env := newTestEnv(t, 45, []stt.Provider{local, google, openai}, nil)
	id, err := env.svc.Submit(env.file, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := waitTerminal(t, env.svc, id)

	if snap.Status != jobs.StatusCompleted || snap.Result == nil {
		t.Fatalf("snapshot = %+v, want completed", snap)
	}
	if !snap.Result.IsMock || snap.Result.EngineUsed != stt.EngineMock {
		t.Fatalf("result = %+v, want mock marked result", snap.Result)
	}
	want := []string{stt.EngineLocal, stt.EngineGoogle, stt.EngineOpenAI, stt.EngineMock}
	if len(snap.Attempts) != len(want) {
		t.Fatalf("attempts = %+v, want %v", snap.Attempts, want)
	}
	for i, name := range want {
		if snap.Attempts[i].Engine != name {
			t.Fatalf("attempt %d engine = %q, want %q", i, snap.Attempts[i].Engine, name)
		}
	}
	if env.analyzer.calls.Load() != 0 {
		t.Fatal("mock transcripts must not be analyzed")
	}
	if snap.Result.Analysis != nil {
		t.Fatal("mock result must not carry analysis")
	}
}

// TestLongFileRoundTripThroughFallback verifies a 120s file that every real
// engine rejects still produces a valid transcript covering the duration.
func TestLongFileRoundTripThroughFallback(t *testing.T) {
	ctrl := gomock.NewController(t)
	var providers []stt.Provider
	for _, name := range []string{stt.EngineLocal, stt.EngineGoogle, stt.EngineOpenAI} {
		p := newProvider(ctrl, name)
		p.EXPECT().Transcribe(gomock.Any(), gomock.Any()).Return(nil, transient(name)).Times(1)
		providers = append(providers, p)
	}

	env := newTestEnv(t, 120, providers, nil)
	id, err := env.svc.Submit(env.file, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := waitTerminal(t, env.svc, id)

	if snap.Status != jobs.StatusCompleted || snap.OverallProgress != 100 {
		t.Fatalf("status = %s progress = %d, want completed at 100", snap.Status, snap.OverallProgress)
	}
	segments := snap.Result.Segments
	if len(segments) == 0 {
		t.Fatal("expected segments")
	}
	assertSegmentsValid(t, segments)
	last := segments[len(segments)-1].End
	if math.Abs(last-120)/120 > 0.01 {
		t.Fatalf("last segment end = %v, want within 1%% of 120", last)
	}
	if snap.EstimatedRemainingSeconds == nil || *snap.EstimatedRemainingSeconds != 0 {
		t.Fatalf("estimated remaining = %v, want 0", snap.EstimatedRemainingSeconds)
	}
}

// TestSuccessfulJobProgressAndAnalysis verifies the happy path: speakers are
// assigned, analysis is attached and progress only moves forward.
func TestSuccessfulJobProgressAndAnalysis(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := newProvider(ctrl, stt.EngineLocal)
	local.EXPECT().Transcribe(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req stt.Request) (*stt.Transcript, error) {
			if req.Audio.DurationSeconds != 20 || req.Path == "" {
				t.Errorf("request = %+v", req)
			}
			time.Sleep(30 * time.Millisecond)
			return &stt.Transcript{
				Language: "en",
				Segments: []stt.Segment{
					{Start: 0, End: 4, Text: "Let's start with the roadmap."},
					{Start: 7, End: 12, Text: "Sure, the beta ships next week."},
				},
			}, nil
		})

	env := newTestEnv(t, 20, []stt.Provider{local}, nil)
	id, err := env.svc.Submit(env.file, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := waitTerminal(t, env.svc, id)

	if snap.Status != jobs.StatusCompleted {
		t.Fatalf("status = %s, want completed (error %+v)", snap.Status, snap.Error)
	}
	if snap.Result.IsMock || snap.Result.EngineUsed != stt.EngineLocal {
		t.Fatalf("result = %+v, want local engine", snap.Result)
	}
	assertSegmentsValid(t, snap.Result.Segments)
	if snap.Result.Segments[0].Speaker == snap.Result.Segments[1].Speaker {
		t.Fatal("speakers should alternate across the long pause")
	}
	if snap.Result.Analysis == nil || snap.Result.Analysis.Title != "Weekly sync" {
		t.Fatalf("analysis = %+v", snap.Result.Analysis)
	}
	if snap.Audio == nil || snap.Audio.DurationSeconds != 20 {
		t.Fatalf("audio = %+v", snap.Audio)
	}

	history := env.store.history(id)
	if history[0].Status != jobs.StatusPending {
		t.Fatalf("first status = %s, want pending", history[0].Status)
	}
	prev := -1
	sawRunning := false
	for _, s := range history {
		if s.OverallProgress < prev {
			t.Fatalf("overall progress went backwards: %d -> %d", prev, s.OverallProgress)
		}
		prev = s.OverallProgress
		if s.Status == jobs.StatusRunning {
			sawRunning = true
		}
	}
	if !sawRunning {
		t.Fatal("job never reported running")
	}
}

// TestAnalysisFailureKeepsTranscript verifies analysis is best effort.
func TestAnalysisFailureKeepsTranscript(t *testing.T) {
	ctrl := gomock.NewController(t)
	openai := newProvider(ctrl, stt.EngineOpenAI)
	openai.EXPECT().Transcribe(gomock.Any(), gomock.Any()).Return(&stt.Transcript{
		Segments: []stt.Segment{{Start: 0, End: 2, Text: "hello", Speaker: "Speaker 1"}},
	}, nil)

	env := newTestEnv(t, 2, []stt.Provider{openai}, nil)
	env.analyzer.err = errors.New("model overloaded")

	id, err := env.svc.Submit(env.file, "openai")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := waitTerminal(t, env.svc, id)

	if snap.Status != jobs.StatusCompleted {
		t.Fatalf("status = %s, want completed", snap.Status)
	}
	if snap.Result.Analysis != nil {
		t.Fatal("failed analysis should be omitted")
	}
	if snap.Result.EngineUsed != stt.EngineOpenAI {
		t.Fatalf("engine used = %q, want openai", snap.Result.EngineUsed)
	}
}

// TestTimeoutFallsBackToNextEngine verifies the per-call timeout is retryable.
func TestTimeoutFallsBackToNextEngine(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := newProvider(ctrl, stt.EngineLocal)
	google := newProvider(ctrl, stt.EngineGoogle)

	local.EXPECT().Transcribe(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req stt.Request) (*stt.Transcript, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		})
	google.EXPECT().Transcribe(gomock.Any(), gomock.Any()).Return(&stt.Transcript{
		Segments: []stt.Segment{{Start: 0, End: 3, Text: "fallback worked"}},
	}, nil)

	env := newTestEnv(t, 3, []stt.Provider{local, google}, func(o *Options) {
		o.AdapterTimeout = 50 * time.Millisecond
	})
	id, err := env.svc.Submit(env.file, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := waitTerminal(t, env.svc, id)

	if snap.Status != jobs.StatusCompleted || snap.Result.EngineUsed != stt.EngineGoogle {
		t.Fatalf("snapshot = %+v, want completed by google", snap)
	}
	first := snap.Attempts[0]
	if first.Verdict != string(VerdictRetryable) || first.Kind != stt.KindTransient {
		t.Fatalf("first attempt = %+v, want retryable transient", first)
	}
}

// TestCancelStopsRunningJob verifies cancellation reaches the provider call.
func TestCancelStopsRunningJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := newProvider(ctrl, stt.EngineLocal)
	google := newProvider(ctrl, stt.EngineGoogle)

	started := make(chan struct{})
	local.EXPECT().Transcribe(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req stt.Request) (*stt.Transcript, error) {
			close(started)
			<-ctx.Done()
			return nil, stt.FromTransport("local", ctx.Err())
		})
	google.EXPECT().Transcribe(gomock.Any(), gomock.Any()).Times(0)

	env := newTestEnv(t, 30, []stt.Provider{local, google}, nil)
	id, err := env.svc.Submit(env.file, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}

	select {
	case <-started:
	case <-time.After(5 * time.Second):
		t.Fatal("provider was never called")
	}
	if err := env.svc.Cancel(id); err != nil {
		t.Fatalf("Cancel: %v", err)
	}
	snap := waitTerminal(t, env.svc, id)

	if snap.Status != jobs.StatusFailed || snap.Error.Kind != stt.KindCancelled {
		t.Fatalf("snapshot = %+v, want cancelled failure", snap)
	}
	if err := env.svc.Cancel(id); err != nil {
		t.Fatalf("second Cancel should be a no-op, got %v", err)
	}
	if err := env.svc.Cancel("missing"); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Fatalf("Cancel(missing) = %v, want %v", err, jobs.ErrJobNotFound)
	}
}

// TestProbeFailureFailsJob verifies unreadable audio never reaches a provider.
func TestProbeFailureFailsJob(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := newProvider(ctrl, stt.EngineLocal)
	local.EXPECT().Transcribe(gomock.Any(), gomock.Any()).Times(0)

	env := newTestEnv(t, 0, []stt.Provider{local}, nil)
	env.prober.err = media.ErrNoAudioStream

	id, err := env.svc.Submit(env.file, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	snap := waitTerminal(t, env.svc, id)

	if snap.Status != jobs.StatusFailed || snap.Error.Kind != stt.KindInput {
		t.Fatalf("snapshot = %+v, want input failure", snap)
	}
	for _, s := range env.store.history(id) {
		if s.Status == jobs.StatusRunning {
			t.Fatal("job must not run when probing fails")
		}
	}
}

// TestSubmitRejectsInvalidRequests verifies synchronous validation creates no job.
func TestSubmitRejectsInvalidRequests(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := newProvider(ctrl, stt.EngineLocal)
	local.EXPECT().Transcribe(gomock.Any(), gomock.Any()).Times(0)

	env := newTestEnv(t, 10, []stt.Provider{local}, nil)

	cases := []struct {
		name string
		path string
		hint string
		want error
	}{
		{"unknown engine", env.file, "deepgram", ErrUnknownEngine},
		{"mock is not selectable", env.file, "mock", ErrUnknownEngine},
		{"engine not configured", env.file, "fpt", ErrEngineNotConfigured},
		{"missing file", filepath.Join(t.TempDir(), "nope.wav"), "", ErrInvalidFile},
		{"empty path", "", "", ErrInvalidFile},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			id, err := env.svc.Submit(tc.path, tc.hint)
			var inputErr *InputError
			if !errors.As(err, &inputErr) {
				t.Fatalf("Submit error = %v, want *InputError", err)
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("Submit error = %v, want %v", err, tc.want)
			}
			if id != "" {
				t.Fatalf("id = %q, want empty", id)
			}
		})
	}

	if n := len(env.svc.List()); n != 0 {
		t.Fatalf("List() has %d jobs, want 0", n)
	}
	if env.prober.calls.Load() != 0 {
		t.Fatal("rejected submissions must not probe")
	}
}

// TestEnginesAndDefaultChain verifies the deployment listing.
func TestEnginesAndDefaultChain(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := newProvider(ctrl, stt.EngineLocal)
	openai := newProvider(ctrl, stt.EngineOpenAI)

	env := newTestEnv(t, 10, []stt.Provider{local, openai}, func(o *Options) {
		o.DefaultChain = []string{stt.EngineOpenAI, stt.EngineGoogle, stt.EngineOpenAI, stt.EngineLocal}
	})

	chain := env.svc.DefaultChain()
	if strings.Join(chain, ",") != "openai,local" {
		t.Fatalf("DefaultChain() = %v, want [openai local]", chain)
	}

	engines := env.svc.Engines()
	if len(engines) != len(stt.KnownEngines) {
		t.Fatalf("Engines() returned %d entries", len(engines))
	}
	for _, e := range engines {
		wantConfigured := e.Name == stt.EngineLocal || e.Name == stt.EngineOpenAI
		if e.Configured != wantConfigured || e.InDefaultChain != wantConfigured {
			t.Fatalf("engine %+v, want configured=%v", e, wantConfigured)
		}
		if e.Name == stt.EngineMock {
			t.Fatal("mock must not be listed as an engine")
		}
	}
}

// TestEvictRules verifies running jobs stay and finished jobs can be removed.
func TestEvictRules(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := newProvider(ctrl, stt.EngineLocal)
	local.EXPECT().Transcribe(gomock.Any(), gomock.Any()).Return(&stt.Transcript{
		Segments: []stt.Segment{{Start: 0, End: 1, Text: "done"}},
	}, nil)

	env := newTestEnv(t, 1, []stt.Provider{local}, nil)
	id, err := env.svc.Submit(env.file, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	waitTerminal(t, env.svc, id)

	if err := env.svc.Evict(id); err != nil {
		t.Fatalf("Evict: %v", err)
	}
	if _, err := env.svc.Status(id); !errors.Is(err, jobs.ErrJobNotFound) {
		t.Fatalf("Status after evict = %v, want %v", err, jobs.ErrJobNotFound)
	}
}

// TestShutdownCancelsAndRejects verifies shutdown drains jobs and refuses new work.
func TestShutdownCancelsAndRejects(t *testing.T) {
	ctrl := gomock.NewController(t)
	local := newProvider(ctrl, stt.EngineLocal)

	started := make(chan struct{})
	local.EXPECT().Transcribe(gomock.Any(), gomock.Any()).
		DoAndReturn(func(ctx context.Context, req stt.Request) (*stt.Transcript, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		})

	env := newTestEnv(t, 10, []stt.Provider{local}, nil)
	id, err := env.svc.Submit(env.file, "")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	<-started

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := env.svc.Shutdown(ctx); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}

	snap, err := env.svc.Status(id)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if snap.Status != jobs.StatusFailed || snap.Error.Kind != stt.KindCancelled {
		t.Fatalf("snapshot = %+v, want cancelled", snap)
	}
	if _, err := env.svc.Submit(env.file, ""); !errors.Is(err, ErrShuttingDown) {
		t.Fatalf("Submit after shutdown = %v, want %v", err, ErrShuttingDown)
	}
}
