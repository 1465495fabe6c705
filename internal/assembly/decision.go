package assembly

import (
	"math"

	"github.com/keagan/reelforge/internal/timeline"
)

// Mode is how one segment was cut from the source
type Mode string

const (
	ModeCopy     Mode = "copy"
	ModeReencode Mode = "reencode"
)

// Strategy is how the parts were joined
type Strategy string

const (
	// StrategyCopy joins with the concat demuxer and stream copy.
	StrategyCopy Strategy = "copy-concat"
	// StrategyFilter re-encodes every part to one format with the concat filter.
	StrategyFilter Strategy = "filter-concat"
	// StrategyCrossfade re-encodes with xfade/acrossfade blends.
	StrategyCrossfade Strategy = "crossfade"
)

// Decision is the extraction plan for one segment
type Decision struct {
	Mode Mode
	// Start is where the cut begins; for copies it is the keyframe.
	Start float64
}

// Decide stream-copies when the keyframe nearest start lies within
// tolerance seconds of it, snapping the start to that keyframe. Otherwise
// the segment is re-encoded from the exact start.
func Decide(keyframes []float64, start, tolerance float64) Decision {
	best := math.Inf(1)
	var at float64
	for _, k := range keyframes {
		if d := math.Abs(k - start); d < best {
			best, at = d, k
		}
	}
	if best <= tolerance+1e-6 {
		return Decision{Mode: ModeCopy, Start: math.Max(0, at)}
	}
	return Decision{Mode: ModeReencode, Start: start}
}

// chooseStrategy picks the cheapest join that honours the plan. Stream copy
// needs every segment copied with identical stream parameters, no intro, no
// forced transition and no output normalization.
func chooseStrategy(plan timeline.CutPlan, parts []part, hasIntro bool) Strategy {
	total := len(parts)
	if hasIntro {
		total++
	}
	if plan.Transition == timeline.TransitionCrossfade && total > 1 {
		return StrategyCrossfade
	}
	if hasIntro || plan.Transition == timeline.TransitionCut || plan.NormalizesOutput() {
		return StrategyFilter
	}

	for i, p := range parts {
		if p.mode != ModeCopy || p.info == nil {
			return StrategyFilter
		}
		if i > 0 && p.info.Signature() != parts[0].info.Signature() {
			return StrategyFilter
		}
	}
	return StrategyCopy
}
