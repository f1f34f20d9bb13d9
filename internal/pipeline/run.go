package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"scribeflow/internal/ai"
	"scribeflow/internal/jobs"
	"scribeflow/internal/progress"
	"scribeflow/internal/stt"
)

// maxHeartbeatPercent keeps the estimated transcription progress below 100
// until the provider actually returns.
const maxHeartbeatPercent = 95

// run drives one job from initialization to a terminal state.
func (s *Service) run(ctx context.Context, tr *jobs.Tracker, path, hint string) {
	snap := tr.Snapshot()
	log := s.logger.With("job_id", snap.ID)

	s.enter(tr, log, progress.StageInitialization)
	tr.ReportStageProgress(100)

	s.enter(tr, log, progress.StageEngineReadiness)
	ch, err := s.selectChain(hint)
	if err != nil {
		tr.Fail(jobs.Failure{Kind: stt.KindInput, Message: err.Error(), Engine: hint, Pinned: hint != ""})
		return
	}
	log.Debug("engine chain selected", "engines", ch.names(), "pinned", ch.pinned)
	tr.ReportStageProgress(100)

	s.enter(tr, log, progress.StageAudioAnalysis)
	info, err := s.opts.Prober.Probe(ctx, path)
	if err != nil {
		if ctx.Err() != nil {
			s.failCancelled(tr, log, "")
			return
		}
		log.Warn("audio probe failed", "error", err)
		tr.Fail(jobs.Failure{Kind: stt.KindInput, Message: fmt.Sprintf("audio probe failed: %v", err)})
		return
	}
	tr.SetAudio(info)
	tr.ReportStageProgress(100)
	tr.SetRunning()

	s.enter(tr, log, progress.StageTranscription)
	req := stt.Request{Path: path, Audio: info, Language: s.opts.Language}
	transcript, ok := s.transcribe(ctx, tr, log, ch, req)
	if !ok {
		return
	}
	tr.ReportStageProgress(100)
	isMock := transcript.Engine == stt.EngineMock

	s.enter(tr, log, progress.StageSpeakerAssignment)
	segments := AssignSpeakers(transcript.Segments)
	tr.ReportStageProgress(100)

	s.enter(tr, log, progress.StagePostAnalysis)
	analysis := s.analyze(ctx, log, transcript, isMock)
	if ctx.Err() != nil {
		s.failCancelled(tr, log, "")
		return
	}
	tr.ReportStageProgress(100)

	s.enter(tr, log, progress.StageFinalization)
	tr.Complete(jobs.Result{
		Segments:        segments,
		DurationSeconds: info.DurationSeconds,
		Language:        transcript.Language,
		EngineUsed:      transcript.Engine,
		IsMock:          isMock,
		Analysis:        analysis,
	})
	log.Info("job completed", "engine", transcript.Engine, "segments", len(segments), "is_mock", isMock)
}

// transcribe walks the chain strictly in order. ok is false when the job
// has already been failed.
func (s *Service) transcribe(ctx context.Context, tr *jobs.Tracker, log *slog.Logger, ch chain, req stt.Request) (*stt.Transcript, bool) {
	for i, p := range ch.providers {
		name := p.Name()
		if ctx.Err() != nil {
			s.failCancelled(tr, log, name)
			return nil, false
		}

		started := s.opts.Now()
		transcript, err := s.attempt(ctx, tr, p, req)
		elapsed := s.opts.Now().Sub(started).Seconds()

		if err == nil {
			tr.RecordAttempt(jobs.Attempt{Engine: name, Succeeded: true, DurationSeconds: elapsed})
			return transcript, true
		}

		if ctx.Err() != nil {
			tr.RecordAttempt(jobs.Attempt{Engine: name, Kind: stt.KindCancelled, Message: "cancelled", DurationSeconds: elapsed})
			s.failCancelled(tr, log, name)
			return nil, false
		}

		c := Classify(name, err)
		tr.RecordAttempt(jobs.Attempt{
			Engine:          name,
			Verdict:         string(c.Verdict),
			Kind:            c.Kind,
			Message:         c.Message,
			DurationSeconds: elapsed,
		})

		switch c.Verdict {
		case VerdictFatal:
			log.Error("engine failed fatally", "engine", name, "kind", c.Kind, "error", err)
			tr.Fail(jobs.Failure{
				Kind:    c.Kind,
				Message: fmt.Sprintf("engine %q failed with a fatal %s: %s", name, c.Kind, c.Message),
				Engine:  name,
				Pinned:  ch.pinned,
			})
			return nil, false
		case VerdictRetryable:
			log.Info("engine failed with a retryable error", "engine", name, "kind", c.Kind, "error", err)
		default:
			log.Warn("engine unavailable", "engine", name, "kind", c.Kind, "error", err)
		}

		if ch.pinned {
			tr.Fail(jobs.Failure{
				Kind: c.Kind,
				Message: fmt.Sprintf("engine %q was explicitly selected and failed (%s); no fallback was attempted: %s",
					name, c.Verdict, c.Message),
				Engine: name,
				Pinned: true,
			})
			return nil, false
		}
		if i < len(ch.providers)-1 {
			log.Info("falling back to next engine", "failed", name, "next", ch.providers[i+1].Name())
		}
	}

	log.Warn("all engines exhausted, returning synthetic transcript", "tried", ch.names())
	transcript, err := s.mock.Transcribe(ctx, req)
	if err != nil {
		tr.Fail(jobs.Failure{Kind: stt.KindUnavailable, Message: err.Error(), Engine: stt.EngineMock})
		return nil, false
	}
	tr.RecordAttempt(jobs.Attempt{Engine: stt.EngineMock, Succeeded: true})
	return transcript, true
}

// attempt runs one provider call under the per-call timeout while a
// heartbeat advances the transcription stage.
func (s *Service) attempt(ctx context.Context, tr *jobs.Tracker, p stt.Provider, req stt.Request) (*stt.Transcript, error) {
	callCtx, cancel := context.WithTimeout(ctx, s.opts.AdapterTimeout)
	defer cancel()

	stopHeartbeat := s.heartbeat(callCtx, tr, req.Audio.DurationSeconds)
	defer stopHeartbeat()

	transcript, err := p.Transcribe(callCtx, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && stt.KindOf(err) != stt.KindTransient {
			return nil, &stt.Error{
				Provider: p.Name(),
				Kind:     stt.KindTransient,
				Message:  fmt.Sprintf("timed out after %s", s.opts.AdapterTimeout),
				Err:      err,
			}
		}
		return nil, err
	}
	if transcript == nil || len(transcript.Segments) == 0 {
		return nil, stt.NewError(p.Name(), stt.KindUnavailable, "provider returned an empty transcript")
	}
	if transcript.Engine == "" {
		transcript.Engine = p.Name()
	}
	return transcript, nil
}

// heartbeat reports elapsed/(duration*realtime factor) as stage progress,
// capped below completion. The returned func stops it and waits.
func (s *Service) heartbeat(ctx context.Context, tr *jobs.Tracker, durationSeconds float64) func() {
	expected := durationSeconds * s.opts.RealtimeFactor
	if expected <= 0 {
		expected = 30
	}

	started := time.Now()
	done := make(chan struct{})
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		ticker := time.NewTicker(s.opts.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-done:
				return
			case <-ticker.C:
				pct := int(time.Since(started).Seconds() / expected * 100)
				tr.ReportStageProgress(min(pct, maxHeartbeatPercent))
			}
		}
	}()

	return func() {
		close(done)
		<-finished
	}
}

func (s *Service) analyze(ctx context.Context, log *slog.Logger, transcript *stt.Transcript, isMock bool) *ai.Analysis {
	if s.opts.Analyzer == nil || isMock {
		return nil
	}
	analysis, err := s.opts.Analyzer.Analyze(ctx, transcript.Text())
	if err != nil {
		if ctx.Err() == nil {
			log.Warn("analysis failed, continuing without it", "error", err)
		}
		return nil
	}
	return analysis
}

func (s *Service) enter(tr *jobs.Tracker, log *slog.Logger, stage progress.Stage) {
	if err := tr.EnterStage(stage); err != nil && !errors.Is(err, jobs.ErrJobTerminal) {
		log.Error("stage transition rejected", "stage", stage, "error", err)
	}
}

func (s *Service) failCancelled(tr *jobs.Tracker, log *slog.Logger, engine string) {
	log.Info("job cancelled", "engine", engine)
	tr.Fail(jobs.Failure{Kind: stt.KindCancelled, Message: "job was cancelled", Engine: engine})
}
