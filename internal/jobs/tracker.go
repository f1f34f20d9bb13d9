package jobs

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"scribeflow/internal/media"
	"scribeflow/internal/progress"
)

var (
	ErrStageRegression = errors.New("stage transition goes backwards")
	ErrJobTerminal     = errors.New("job already finished")
)

// Tracker is the single writer for one job's snapshots. Every mutation
// publishes a complete snapshot to the store while holding the lock.
type Tracker struct {
	mu       sync.Mutex
	store    Store
	table    *progress.Table
	now      func() time.Time
	started  time.Time
	stageIdx int
	snap     Snapshot
}

// NewTracker publishes initial as the job's first snapshot.
func NewTracker(store Store, table *progress.Table, initial Snapshot, now func() time.Time) *Tracker {
	if now == nil {
		now = time.Now
	}
	if table == nil {
		table = progress.Default
	}
	t := &Tracker{
		store:    store,
		table:    table,
		now:      now,
		started:  now(),
		stageIdx: -1,
		snap:     initial,
	}
	if t.snap.Status == "" {
		t.snap.Status = StatusPending
	}
	if t.snap.CreatedAt.IsZero() {
		t.snap.CreatedAt = t.started
	}
	t.snap.Attempts = append([]Attempt(nil), initial.Attempts...)

	t.mu.Lock()
	t.publishLocked()
	t.mu.Unlock()
	return t
}

// EnterStage moves the job to stage. Moving back to an earlier stage is
// rejected; re-entering the current stage is a no-op.
func (t *Tracker) EnterStage(stage progress.Stage) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.snap.Status.Terminal() {
		return ErrJobTerminal
	}
	idx := t.table.Order(stage)
	if idx < 0 {
		return fmt.Errorf("unknown stage %q", stage)
	}
	if idx < t.stageIdx {
		return fmt.Errorf("%w: %s -> %s", ErrStageRegression, t.snap.Stage, stage)
	}
	if idx == t.stageIdx {
		return nil
	}

	def, _ := t.table.Lookup(stage)
	t.stageIdx = idx
	t.snap.Stage = stage
	t.snap.StageProgress = 0
	t.snap.OverallProgress = max(t.snap.OverallProgress, def.RangeStart)
	t.publishLocked()
	return nil
}

// ReportStageProgress records progress within the current stage. Neither the
// stage nor the overall percentage ever decreases.
func (t *Tracker) ReportStageProgress(percent int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.snap.Status.Terminal() || t.stageIdx < 0 {
		return
	}
	p := max(progress.Clamp(percent), t.snap.StageProgress)
	overall, err := t.table.Overall(t.snap.Stage, p)
	if err != nil {
		return
	}
	t.snap.StageProgress = p
	t.snap.OverallProgress = max(t.snap.OverallProgress, overall)
	t.publishLocked()
}

// SetRunning marks the job as running.
func (t *Tracker) SetRunning() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Status.Terminal() {
		return
	}
	t.snap.Status = StatusRunning
	t.publishLocked()
}

func (t *Tracker) SetAudio(info media.AudioInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Status.Terminal() {
		return
	}
	t.snap.Audio = &info
	t.publishLocked()
}

// RecordAttempt appends to the attempt log. The slice is copied so earlier
// snapshots stay unchanged.
func (t *Tracker) RecordAttempt(a Attempt) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Status.Terminal() {
		return
	}
	attempts := make([]Attempt, len(t.snap.Attempts), len(t.snap.Attempts)+1)
	copy(attempts, t.snap.Attempts)
	t.snap.Attempts = append(attempts, a)
	t.publishLocked()
}

// Complete finalizes the job successfully at 100%.
func (t *Tracker) Complete(result Result) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Status.Terminal() {
		return
	}
	t.stageIdx = t.table.Order(t.table.Last())
	t.snap.Stage = t.table.Last()
	t.snap.StageProgress = 100
	t.snap.OverallProgress = 100
	t.snap.Status = StatusCompleted
	t.snap.Result = &result
	t.publishLocked()
}

// Fail finalizes the job with failure, leaving progress where it stopped.
func (t *Tracker) Fail(f Failure) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.snap.Status.Terminal() {
		return
	}
	t.snap.Status = StatusFailed
	t.snap.Error = &f
	t.publishLocked()
}

// Snapshot returns the tracker's current view.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snap
}

func (t *Tracker) publishLocked() {
	now := t.now()
	elapsed := now.Sub(t.started).Seconds()
	t.snap.ElapsedSeconds = math.Round(elapsed*100) / 100
	t.snap.UpdatedAt = now

	switch {
	case t.snap.Status == StatusCompleted:
		zero := 0.0
		t.snap.EstimatedRemainingSeconds = &zero
	case t.snap.Status == StatusFailed:
		t.snap.EstimatedRemainingSeconds = nil
	default:
		if rem, ok := progress.EstimateRemaining(elapsed, t.snap.OverallProgress); ok {
			rem = math.Round(rem*100) / 100
			t.snap.EstimatedRemainingSeconds = &rem
		} else {
			t.snap.EstimatedRemainingSeconds = nil
		}
	}
	t.store.Put(t.snap)
}
