// Package timeline turns a selection plan into an ordered cut plan for the
// stitcher. It never touches segment boundaries.
package timeline

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/keagan/reelforge/internal/selector"
	"github.com/keagan/reelforge/internal/signals"
)

// Transition describes how two adjacent parts are joined
type Transition string

const (
	TransitionNone      Transition = "none"
	TransitionCrossfade Transition = "crossfade"
	TransitionCut       Transition = "cut"
)

// DefaultTransitionSeconds is the crossfade length when none is configured
const DefaultTransitionSeconds = 0.5

// ParseTransition accepts none, crossfade or cut; empty means none
func ParseTransition(s string) (Transition, error) {
	switch t := Transition(strings.ToLower(strings.TrimSpace(s))); t {
	case "", TransitionNone:
		return TransitionNone, nil
	case TransitionCrossfade, TransitionCut:
		return t, nil
	default:
		return "", fmt.Errorf("unknown transition %q", s)
	}
}

// Resolution is an output frame size. The zero value keeps the source size.
type Resolution struct {
	Width  int
	Height int
}

// Original reports whether the source resolution is kept
func (r Resolution) Original() bool {
	return r.Width == 0 && r.Height == 0
}

func (r Resolution) String() string {
	if r.Original() {
		return "original"
	}
	return fmt.Sprintf("%dx%d", r.Width, r.Height)
}

// ParseResolution accepts "original" (or empty) and "WxH"
func ParseResolution(s string) (Resolution, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "original" {
		return Resolution{}, nil
	}

	w, h, ok := strings.Cut(s, "x")
	if !ok {
		return Resolution{}, fmt.Errorf("invalid resolution %q: want WxH or original", s)
	}
	width, err := strconv.Atoi(w)
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution width %q: %w", w, err)
	}
	height, err := strconv.Atoi(h)
	if err != nil {
		return Resolution{}, fmt.Errorf("invalid resolution height %q: %w", h, err)
	}
	if width <= 0 || height <= 0 {
		return Resolution{}, fmt.Errorf("invalid resolution %q: dimensions must be positive", s)
	}
	// libx264 with yuv420p rejects odd dimensions
	if width%2 != 0 || height%2 != 0 {
		return Resolution{}, fmt.Errorf("invalid resolution %q: dimensions must be even", s)
	}
	return Resolution{Width: width, Height: height}, nil
}

// Entry is one source range in output order
type Entry struct {
	Index            int
	SourceStart      float64
	SourceEnd        float64
	TransitionBefore Transition
	Score            float64
	Sources          []signals.Source
}

// Duration returns the entry length in seconds
func (e Entry) Duration() float64 {
	return e.SourceEnd - e.SourceStart
}

// IntroRef points at a clip played before the first entry
type IntroRef struct {
	Path string
	// Duration is 0 when not yet probed.
	Duration float64
}

// CutPlan is the ordered list of source ranges to extract and join
type CutPlan struct {
	Source            string
	Entries           []Entry
	Intro             *IntroRef
	Transition        Transition
	TransitionSeconds float64
	Resolution        Resolution
	// FPS of 0 keeps the source frame rate.
	FPS float64
}

// Empty reports whether the plan has no source entries
func (p CutPlan) Empty() bool {
	return len(p.Entries) == 0
}

// NormalizesOutput reports whether resolution or frame rate are forced
func (p CutPlan) NormalizesOutput() bool {
	return !p.Resolution.Original() || p.FPS > 0
}

// PartDurations lists the intro (when present) and every entry in output order
func (p CutPlan) PartDurations() []float64 {
	parts := make([]float64, 0, len(p.Entries)+1)
	if p.Intro != nil {
		parts = append(parts, p.Intro.Duration)
	}
	for _, e := range p.Entries {
		parts = append(parts, e.Duration())
	}
	return parts
}

// ExpectedDuration is the output length implied by the plan. Crossfades
// overlap adjacent parts, so each blend shortens the output by its length.
func (p CutPlan) ExpectedDuration() float64 {
	parts := p.PartDurations()
	var total float64
	for _, d := range parts {
		total += d
	}
	if p.Transition == TransitionCrossfade && len(parts) > 1 {
		total -= float64(len(parts)-1) * BlendSeconds(p.TransitionSeconds, parts)
	}
	return total
}

// BlendSeconds clamps a requested crossfade length to half the shortest part
func BlendSeconds(requested float64, parts []float64) float64 {
	if requested <= 0 {
		requested = DefaultTransitionSeconds
	}
	shortest := math.Inf(1)
	for _, d := range parts {
		if d > 0 && d < shortest {
			shortest = d
		}
	}
	if math.IsInf(shortest, 1) {
		return 0
	}
	return math.Min(requested, shortest/2)
}

// Options configures Assemble
type Options struct {
	Transition        Transition
	TransitionSeconds float64
	Intro             *IntroRef
	Resolution        Resolution
	FPS               float64
}

// Assemble converts a selection plan into a cut plan. Boundaries are copied
// unchanged; every entry that follows another part is tagged with the
// configured transition.
func Assemble(source string, plan selector.Plan, opts Options) CutPlan {
	transition := opts.Transition
	if transition == "" {
		transition = TransitionNone
	}
	seconds := opts.TransitionSeconds
	if transition == TransitionCrossfade && seconds <= 0 {
		seconds = DefaultTransitionSeconds
	}
	if transition != TransitionCrossfade {
		seconds = 0
	}

	cut := CutPlan{
		Source:            source,
		Transition:        transition,
		TransitionSeconds: seconds,
		Resolution:        opts.Resolution,
		FPS:               opts.FPS,
	}
	if opts.Intro != nil {
		intro := *opts.Intro
		cut.Intro = &intro
	}

	cut.Entries = make([]Entry, 0, len(plan.Segments))
	for i, seg := range plan.Segments {
		before := TransitionNone
		if i > 0 || cut.Intro != nil {
			before = transition
		}
		sources := make([]signals.Source, len(seg.Sources))
		copy(sources, seg.Sources)

		cut.Entries = append(cut.Entries, Entry{
			Index:            i,
			SourceStart:      seg.Start,
			SourceEnd:        seg.End,
			TransitionBefore: before,
			Score:            seg.Score,
			Sources:          sources,
		})
	}
	return cut
}
