package signals

import "fmt"

// Source identifies the detector that produced a signal
type Source string

const (
	SourceScene  Source = "scene"
	SourceAudio  Source = "audio"
	SourceAction Source = "action"
)

// Priority is the tie-break order used when intervals share a start time.
var Priority = []Source{SourceScene, SourceAudio, SourceAction}

// Rank returns the position of s in Priority; unknown sources sort last.
func Rank(s Source) int {
	for i, p := range Priority {
		if p == s {
			return i
		}
	}
	return len(Priority)
}

// IsKnown reports whether s is one of the built-in detector sources.
func (s Source) IsKnown() bool {
	return Rank(s) < len(Priority)
}

// Interval is one scored region of a raw detector timeline, in seconds.
type Interval struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Score float64 `json:"score"`
}

// Duration returns End-Start.
func (iv Interval) Duration() float64 {
	return iv.End - iv.Start
}

// TimeSignal is the output of a single detector run. A detector that found
// nothing returns a TimeSignal with no intervals.
type TimeSignal struct {
	Source    Source     `json:"source"`
	Threshold float64    `json:"threshold"`
	Intervals []Interval `json:"intervals"`
}

// Empty reports whether the signal carries no intervals.
func (s TimeSignal) Empty() bool {
	return len(s.Intervals) == 0
}

// Validate checks 0 <= start < end <= duration for every interval. A
// non-positive duration disables the upper bound check.
func (s TimeSignal) Validate(duration float64) error {
	for i, iv := range s.Intervals {
		if iv.Start < 0 || iv.End <= iv.Start {
			return fmt.Errorf("%s interval %d: invalid bounds [%.3f, %.3f)", s.Source, i, iv.Start, iv.End)
		}
		if duration > 0 && iv.End > duration {
			return fmt.Errorf("%s interval %d: end %.3f beyond source duration %.3f", s.Source, i, iv.End, duration)
		}
	}
	return nil
}

// NormalizedInterval is a TimeSignal entry with its score rescaled to [0,1].
type NormalizedInterval struct {
	Start  float64
	End    float64
	Score  float64
	Source Source
}

// Duration returns End-Start.
func (n NormalizedInterval) Duration() float64 {
	return n.End - n.Start
}
