package detectors

import (
	"context"
	"fmt"
	"math"
	"os"

	"github.com/keagan/reelforge/internal/signals"
	"github.com/rs/zerolog"
)

// Frames are sampled at this size before scoring; scorers resize further.
const (
	sampleWidth  = 320
	sampleHeight = 180
)

// ActionConfig configures action detection
type ActionConfig struct {
	// Confidence is the per-frame score a frame must reach, in [0,1].
	Confidence float64
	// SampleFPS is the frame sampling rate.
	SampleFPS float64
	// TempDir holds sampled frames; empty uses the system temp dir.
	TempDir string
}

// DefaultActionConfig returns the action detector defaults
func DefaultActionConfig() ActionConfig {
	return ActionConfig{
		Confidence: 0.5,
		SampleFPS:  2.0,
	}
}

// ActionDetector samples frames and keeps the stretches a FrameScorer rates
// as confident action
type ActionDetector struct {
	logger zerolog.Logger
	media  FrameSampler
	scorer FrameScorer
	config ActionConfig
}

// NewActionDetector creates an action detector. The detector owns scorer and
// closes it on Close.
func NewActionDetector(logger zerolog.Logger, media FrameSampler, scorer FrameScorer, cfg ActionConfig) *ActionDetector {
	if cfg.SampleFPS <= 0 {
		cfg.SampleFPS = DefaultActionConfig().SampleFPS
	}
	return &ActionDetector{
		logger: logger.With().Str("component", "action-detector").Logger(),
		media:  media,
		scorer: scorer,
		config: cfg,
	}
}

func (d *ActionDetector) Source() signals.Source {
	return signals.SourceAction
}

// Detect samples frames into a scratch directory, scores them and returns
// the runs of frames at or above the confidence threshold
func (d *ActionDetector) Detect(ctx context.Context, input string, duration float64) (signals.TimeSignal, error) {
	sig := signals.TimeSignal{Source: signals.SourceAction, Threshold: d.config.Confidence}

	dir, err := os.MkdirTemp(d.config.TempDir, "reelforge-frames-*")
	if err != nil {
		return sig, fmt.Errorf("create frame dir: %w", err)
	}
	defer os.RemoveAll(dir)

	frames, err := d.media.ExtractFrames(ctx, input, dir, d.config.SampleFPS, sampleWidth, sampleHeight)
	if err != nil {
		return sig, fmt.Errorf("frame sampling: %w", err)
	}

	conf, err := d.scorer.Score(ctx, frames)
	if err != nil {
		return sig, fmt.Errorf("frame scoring: %w", err)
	}
	if len(conf) != len(frames) {
		return sig, fmt.Errorf("scorer returned %d scores for %d frames", len(conf), len(frames))
	}

	sig.Intervals = confidentIntervals(conf, d.config.SampleFPS, d.config.Confidence, duration)

	d.logger.Info().
		Int("frames", len(frames)).
		Int("intervals", len(sig.Intervals)).
		Msg("action detection complete")

	return sig, nil
}

// Close releases the frame scorer
func (d *ActionDetector) Close() error {
	if d.scorer == nil {
		return nil
	}
	return d.scorer.Close()
}

// confidentIntervals maps frame i, taken at i/fps, to the half-period on
// either side of it and merges consecutive frames at or above minConf. Each
// run scores its peak confidence.
func confidentIntervals(conf []float64, fps, minConf, duration float64) []signals.Interval {
	half := 0.5 / fps

	var out []signals.Interval
	open := false
	for i, c := range conf {
		if math.IsNaN(c) || c < minConf || c <= 0 {
			open = false
			continue
		}
		t := float64(i) / fps
		start := math.Max(0, t-half)
		end := clampEnd(t+half, duration)
		if end <= start {
			open = false
			continue
		}

		if open {
			last := &out[len(out)-1]
			last.End = end
			last.Score = math.Max(last.Score, c)
			continue
		}
		out = append(out, signals.Interval{Start: start, End: end, Score: c})
		open = true
	}
	return out
}
