package detectors

import (
	"context"
	"fmt"
	"math"

	"github.com/keagan/reelforge/internal/ffmpeg"
	"github.com/keagan/reelforge/internal/signals"
	"github.com/rs/zerolog"
)

// AudioConfig configures audio excitement detection
type AudioConfig struct {
	// Sensitivity in [0,1]; higher flags quieter peaks.
	Sensitivity float64
	// Window is the loudness measurement window in seconds.
	Window float64
}

// DefaultAudioConfig returns the audio detector defaults
func DefaultAudioConfig() AudioConfig {
	return AudioConfig{
		Sensitivity: 0.5,
		Window:      1.0,
	}
}

// AudioDetector flags windows that are loud relative to the rest of the
// soundtrack
type AudioDetector struct {
	logger zerolog.Logger
	media  LoudnessMeter
	config AudioConfig
}

// NewAudioDetector creates an audio detector
func NewAudioDetector(logger zerolog.Logger, media LoudnessMeter, cfg AudioConfig) *AudioDetector {
	if cfg.Window <= 0 {
		cfg.Window = DefaultAudioConfig().Window
	}
	return &AudioDetector{
		logger: logger.With().Str("component", "audio-detector").Logger(),
		media:  media,
		config: cfg,
	}
}

func (d *AudioDetector) Source() signals.Source {
	return signals.SourceAudio
}

// Detect measures windowed RMS loudness and keeps the windows above
// mean + k·stddev of the non-silent windows, k = 2·(1-sensitivity).
// Adjacent loud windows are merged; the score is the peak excess in dB.
func (d *AudioDetector) Detect(ctx context.Context, input string, duration float64) (signals.TimeSignal, error) {
	sig := signals.TimeSignal{Source: signals.SourceAudio}

	samples, err := d.media.LoudnessWindows(ctx, input, d.config.Window)
	if err != nil {
		return sig, fmt.Errorf("loudness analysis: %w", err)
	}

	sig.Intervals, sig.Threshold = loudIntervals(samples, d.config.Sensitivity, duration)

	d.logger.Info().
		Int("windows", len(samples)).
		Float64("threshold_db", sig.Threshold).
		Int("intervals", len(sig.Intervals)).
		Msg("audio analysis complete")

	return sig, nil
}

func (d *AudioDetector) Close() error {
	return nil
}

// loudIntervals returns the merged loud regions and the dB threshold used
func loudIntervals(samples []ffmpeg.LoudnessSample, sensitivity, duration float64) ([]signals.Interval, float64) {
	var sum, sumSq float64
	n := 0
	for _, s := range samples {
		if s.RMS <= ffmpeg.SilenceFloor {
			continue
		}
		sum += s.RMS
		sumSq += s.RMS * s.RMS
		n++
	}
	if n < 2 {
		return nil, 0
	}

	mean := sum / float64(n)
	std := math.Sqrt(math.Max(0, sumSq/float64(n)-mean*mean))
	k := 2 * (1 - math.Max(0, math.Min(1, sensitivity)))
	threshold := mean + k*std

	var out []signals.Interval
	for _, s := range samples {
		if s.RMS <= ffmpeg.SilenceFloor || s.RMS <= threshold {
			continue
		}
		start := math.Max(0, s.Start)
		end := clampEnd(s.End, duration)
		if end <= start {
			continue
		}
		excess := s.RMS - threshold

		if last := len(out) - 1; last >= 0 && start <= out[last].End+1e-6 {
			out[last].End = math.Max(out[last].End, end)
			out[last].Score = math.Max(out[last].Score, excess)
			continue
		}
		out = append(out, signals.Interval{Start: start, End: end, Score: excess})
	}

	return out, threshold
}
