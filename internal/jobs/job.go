package jobs

import (
	"time"

	"scribeflow/internal/ai"
	"scribeflow/internal/media"
	"scribeflow/internal/progress"
	"scribeflow/internal/stt"
)

// Status is the lifecycle state of a job.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Result is populated only on successful completion.
type Result struct {
	Segments        []stt.Segment `json:"segments"`
	DurationSeconds float64       `json:"duration_seconds"`
	Language        string        `json:"language"`
	EngineUsed      string        `json:"engine_used"`
	IsMock          bool          `json:"is_mock"`
	Analysis        *ai.Analysis  `json:"analysis,omitempty"`
}

// Failure is populated only on terminal failure.
type Failure struct {
	Kind    stt.Kind `json:"kind"`
	Message string   `json:"message"`
	Engine  string   `json:"engine,omitempty"`
	// Pinned is set when the failing engine was explicitly requested.
	Pinned bool `json:"pinned"`
}

// Attempt records one provider invocation.
type Attempt struct {
	Engine          string   `json:"engine"`
	Succeeded       bool     `json:"succeeded"`
	Verdict         string   `json:"verdict,omitempty"`
	Kind            stt.Kind `json:"kind,omitempty"`
	Message         string   `json:"message,omitempty"`
	DurationSeconds float64  `json:"duration_seconds"`
}

// Snapshot is one self-consistent view of a job. Snapshots are values; the
// store never hands out a pointer to its own copy.
type Snapshot struct {
	ID                        string           `json:"job_id"`
	FileName                  string           `json:"file_name"`
	EngineHint                string           `json:"engine_hint,omitempty"`
	Status                    Status           `json:"status"`
	Stage                     progress.Stage   `json:"stage,omitempty"`
	OverallProgress           int              `json:"overall_progress"`
	StageProgress             int              `json:"stage_progress"`
	ElapsedSeconds            float64          `json:"elapsed_seconds"`
	EstimatedRemainingSeconds *float64         `json:"estimated_remaining_seconds"`
	Audio                     *media.AudioInfo `json:"audio,omitempty"`
	Attempts                  []Attempt        `json:"attempts"`
	Result                    *Result          `json:"result,omitempty"`
	Error                     *Failure         `json:"error,omitempty"`
	CreatedAt                 time.Time        `json:"created_at"`
	UpdatedAt                 time.Time        `json:"updated_at"`
}
