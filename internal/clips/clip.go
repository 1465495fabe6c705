package clips

import (
	"fmt"
	"strings"

	"github.com/keagan/reelforge/internal/signals"
)

// Candidate is a merged, multi-source scored region of the source timeline
type Candidate struct {
	Start   float64
	End     float64
	Score   float64
	Sources []signals.Source
}

// Duration returns the candidate length in seconds
func (c Candidate) Duration() float64 {
	return c.End - c.Start
}

// Value is the score mass the selector maximizes: Score per second of footage
// times the footage kept.
func (c Candidate) Value() float64 {
	return c.Score * c.Duration()
}

// Overlaps reports whether the half-open ranges [Start,End) intersect
func (c Candidate) Overlaps(o Candidate) bool {
	return c.Start < o.End && o.Start < c.End
}

// HasSource reports whether s contributed to the candidate
func (c Candidate) HasSource(s signals.Source) bool {
	for _, src := range c.Sources {
		if src == s {
			return true
		}
	}
	return false
}

func (c Candidate) String() string {
	names := make([]string, len(c.Sources))
	for i, s := range c.Sources {
		names[i] = string(s)
	}
	return fmt.Sprintf("[%.2f-%.2f] score=%.3f sources=%s", c.Start, c.End, c.Score, strings.Join(names, "+"))
}
