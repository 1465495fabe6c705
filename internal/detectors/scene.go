package detectors

import (
	"context"
	"fmt"
	"math"

	"github.com/keagan/reelforge/internal/signals"
	"github.com/rs/zerolog"
)

// SceneConfig configures scene-cut detection
type SceneConfig struct {
	// Threshold is the ffmpeg scene score a cut must exceed, in (0,1].
	Threshold float64
	// PreRoll and PostRoll widen each cut into a window around it.
	PreRoll  float64
	PostRoll float64
}

// DefaultSceneConfig returns the scene detector defaults
func DefaultSceneConfig() SceneConfig {
	return SceneConfig{
		Threshold: 0.4,
		PreRoll:   2.0,
		PostRoll:  3.0,
	}
}

// SceneDetector turns hard cuts into scored windows around each cut
type SceneDetector struct {
	logger zerolog.Logger
	media  SceneProber
	config SceneConfig
}

// NewSceneDetector creates a scene detector
func NewSceneDetector(logger zerolog.Logger, media SceneProber, cfg SceneConfig) *SceneDetector {
	return &SceneDetector{
		logger: logger.With().Str("component", "scene-detector").Logger(),
		media:  media,
		config: cfg,
	}
}

func (d *SceneDetector) Source() signals.Source {
	return signals.SourceScene
}

// Detect scores the window [t-PreRoll, t+PostRoll] around every cut with the
// cut's scene score
func (d *SceneDetector) Detect(ctx context.Context, input string, duration float64) (signals.TimeSignal, error) {
	sig := signals.TimeSignal{Source: signals.SourceScene, Threshold: d.config.Threshold}

	changes, err := d.media.DetectScenes(ctx, input, d.config.Threshold)
	if err != nil {
		return sig, fmt.Errorf("scene detection: %w", err)
	}

	for _, c := range changes {
		start := math.Max(0, c.Time-d.config.PreRoll)
		end := clampEnd(c.Time+d.config.PostRoll, duration)
		if end <= start {
			continue
		}
		sig.Intervals = append(sig.Intervals, signals.Interval{Start: start, End: end, Score: c.Score})
	}

	d.logger.Info().
		Int("cuts", len(changes)).
		Int("intervals", len(sig.Intervals)).
		Msg("scene detection complete")

	return sig, nil
}

func (d *SceneDetector) Close() error {
	return nil
}
