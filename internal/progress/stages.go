// Package progress holds the weighted stage table that maps per-stage
// progress onto one overall percentage.
package progress

import (
	"fmt"
	"math"
)

// Stage names a pipeline phase.
type Stage string

const (
	StageInitialization    Stage = "initialization"
	StageEngineReadiness   Stage = "engine_readiness"
	StageAudioAnalysis     Stage = "audio_analysis"
	StageTranscription     Stage = "transcription"
	StageSpeakerAssignment Stage = "speaker_assignment"
	StagePostAnalysis      Stage = "post_analysis"
	StageFinalization      Stage = "finalization"
)

// Definition is one row of the stage table.
type Definition struct {
	Name       Stage `json:"name"`
	Weight     int   `json:"weight"`
	RangeStart int   `json:"range_start"`
	RangeEnd   int   `json:"range_end"`
}

// Table is an ordered, immutable stage table.
type Table struct {
	defs  []Definition
	index map[Stage]int
}

// Default is the table shared by every job.
var Default = MustTable([]Definition{
	{Name: StageInitialization, Weight: 5},
	{Name: StageEngineReadiness, Weight: 10},
	{Name: StageAudioAnalysis, Weight: 5},
	{Name: StageTranscription, Weight: 45},
	{Name: StageSpeakerAssignment, Weight: 10},
	{Name: StagePostAnalysis, Weight: 20},
	{Name: StageFinalization, Weight: 5},
})

// NewTable derives the cumulative ranges from the weights. Weights must be
// positive, names unique, and the total exactly 100.
func NewTable(rows []Definition) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("stage table is empty")
	}
	t := &Table{
		defs:  make([]Definition, len(rows)),
		index: make(map[Stage]int, len(rows)),
	}
	cursor := 0
	for i, row := range rows {
		if row.Weight <= 0 {
			return nil, fmt.Errorf("stage %q has non-positive weight %d", row.Name, row.Weight)
		}
		if _, dup := t.index[row.Name]; dup {
			return nil, fmt.Errorf("stage %q listed twice", row.Name)
		}
		row.RangeStart = cursor
		cursor += row.Weight
		row.RangeEnd = cursor
		t.defs[i] = row
		t.index[row.Name] = i
	}
	if cursor != 100 {
		return nil, fmt.Errorf("stage weights sum to %d, want 100", cursor)
	}
	return t, nil
}

func MustTable(rows []Definition) *Table {
	t, err := NewTable(rows)
	if err != nil {
		panic(err)
	}
	return t
}

// Stages returns a copy of the table rows in order.
func (t *Table) Stages() []Definition {
	out := make([]Definition, len(t.defs))
	copy(out, t.defs)
	return out
}

func (t *Table) Lookup(stage Stage) (Definition, bool) {
	i, ok := t.index[stage]
	if !ok {
		return Definition{}, false
	}
	return t.defs[i], true
}

// Order returns the position of stage in the table, or -1.
func (t *Table) Order(stage Stage) int {
	i, ok := t.index[stage]
	if !ok {
		return -1
	}
	return i
}

// First returns the first stage.
func (t *Table) First() Stage { return t.defs[0].Name }

// Last returns the final stage.
func (t *Table) Last() Stage { return t.defs[len(t.defs)-1].Name }

// Overall maps a stage-local percentage onto the whole job, rounded to the
// nearest integer.
func (t *Table) Overall(stage Stage, stagePercent int) (int, error) {
	def, ok := t.Lookup(stage)
	if !ok {
		return 0, fmt.Errorf("unknown stage %q", stage)
	}
	p := Clamp(stagePercent)
	return int(math.Round(float64(def.RangeStart) + float64(p)/100*float64(def.Weight))), nil
}

// Clamp bounds a percentage to [0, 100].
func Clamp(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}

// EstimateRemaining projects the time left from a linear rate. ok is false
// when nothing has been completed yet.
func EstimateRemaining(elapsedSeconds float64, overall int) (remaining float64, ok bool) {
	if overall <= 0 {
		return 0, false
	}
	if overall >= 100 {
		return 0, true
	}
	return elapsedSeconds * float64(100-overall) / float64(overall), true
}
