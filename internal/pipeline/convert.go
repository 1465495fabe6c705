package pipeline

import (
	"math"
	"time"

	"github.com/keagan/reelforge/internal/clips"
	"github.com/keagan/reelforge/internal/config"
	"github.com/keagan/reelforge/internal/selector"
	"github.com/keagan/reelforge/internal/signals"
	"github.com/keagan/reelforge/internal/timeline"
	"github.com/keagan/reelforge/pkg/util"
)

// Default target bounds
const (
	MaxDefaultTarget   = 60.0
	DefaultTargetRatio = 0.3
)

// DefaultTarget is min(60, 0.3 × duration), or 60 when the duration is unknown
func DefaultTarget(duration float64) float64 {
	if duration <= 0 {
		return MaxDefaultTarget
	}
	return math.Min(MaxDefaultTarget, duration*DefaultTargetRatio)
}

// OutputName builds a collision-free output file name
func OutputName(now time.Time, source, runID string) string {
	id := runID
	if len(id) > 8 {
		id = id[:8]
	}
	return "highlights_" + now.Format("20060102_150405") + "_" + util.SafeName(util.Stem(source)) + "_" + id + ".mp4"
}

func builderConfig(hl config.Highlight, duration float64) clips.BuilderConfig {
	weights := make(map[signals.Source]float64, len(hl.SourceWeights))
	for name, w := range hl.SourceWeights {
		weights[signals.Source(name)] = w
	}
	return clips.BuilderConfig{
		ClusterGap:     hl.ClusterGapSeconds,
		MinLength:      hl.MinSegmentLength,
		MaxLength:      hl.MaxSegmentLength,
		MaxExtension:   hl.MaxExtensionSeconds,
		Weights:        weights,
		AgreementBonus: hl.AgreementBonus,
		SourceDuration: duration,
	}
}

func selectorConfig(hl config.Highlight, target float64) selector.Config {
	return selector.Config{
		Target:        target,
		BucketSeconds: hl.BucketSeconds,
		Tolerance:     hl.BudgetTolerance,
		MinFillRatio:  hl.MinFillRatio,
		MinLength:     hl.MinSegmentLength,
		MaxLength:     hl.MaxSegmentLength,
	}
}

// timelineOptions parses the transition and resolution of a validated
// Highlight
func timelineOptions(hl config.Highlight) (timeline.Options, error) {
	transition, err := timeline.ParseTransition(hl.Transition)
	if err != nil {
		return timeline.Options{}, err
	}
	res, err := timeline.ParseResolution(hl.OutputResolution)
	if err != nil {
		return timeline.Options{}, err
	}
	return timeline.Options{
		Transition:        transition,
		TransitionSeconds: hl.TransitionSeconds,
		Resolution:        res,
		FPS:               hl.OutputFPS,
	}, nil
}
