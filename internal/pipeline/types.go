package pipeline

import (
	"time"

	"github.com/keagan/reelforge/internal/assembly"
	"github.com/keagan/reelforge/internal/clips"
	"github.com/keagan/reelforge/internal/selector"
	"github.com/keagan/reelforge/internal/signals"
	"github.com/keagan/reelforge/internal/timeline"
)

// Status is the outcome of a run that did not fail
type Status string

const (
	StatusOK                 Status = "ok"
	StatusNoViableCandidates Status = "no_viable_candidates"
	// StatusPlanned marks a dry run that stopped before assembly.
	StatusPlanned Status = "planned"
)

// Result is everything a run produced
type Result struct {
	RunID  string
	Status Status
	Source string
	// SourceDuration is the probed source length in seconds.
	SourceDuration float64
	Target         float64

	Candidates []clips.Candidate
	Plan       selector.Plan
	CutPlan    timeline.CutPlan
	// Artifact is nil unless Status is StatusOK.
	Artifact *assembly.Artifact

	// Warnings lists recovered problems, such as a detector timing out.
	Warnings []string
	Stats    Stats
}

// Stats summarizes a run
type Stats struct {
	Intervals  map[signals.Source]int
	Detectors  map[signals.Source]time.Duration
	Candidates int
	Selected   int
	Elapsed    time.Duration
}

// Event is an advisory progress notification
type Event struct {
	Stage string
	Done  int
	Total int
}

// Progress stage names
const (
	EventSignalsFused     = "signals-fused"
	EventCandidatesBuilt  = "candidates-built"
	EventPlanSelected     = "plan-selected"
	EventAssemblyProgress = "assembly-progress"
)

// ProgressFunc receives progress events. It must not block. Assembly
// progress is reported from the extraction workers, so the function may be
// called concurrently and must be safe for that; counts can arrive out of
// order.
type ProgressFunc func(Event)
