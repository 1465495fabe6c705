// Package detectors produces the raw time signals the highlight pipeline
// fuses: scene cuts, audio excitement and on-screen action.
package detectors

import (
	"context"
	"fmt"

	"github.com/keagan/reelforge/internal/config"
	"github.com/keagan/reelforge/internal/ffmpeg"
	"github.com/keagan/reelforge/internal/signals"
	"github.com/rs/zerolog"
)

// Detector analyzes a source video and returns one TimeSignal. duration is
// the probed source length used to clamp intervals; 0 means unknown.
type Detector interface {
	Source() signals.Source
	Detect(ctx context.Context, input string, duration float64) (signals.TimeSignal, error)
	Close() error
}

// SceneProber is the media capability the scene detector needs
type SceneProber interface {
	DetectScenes(ctx context.Context, input string, threshold float64) ([]ffmpeg.SceneChange, error)
}

// LoudnessMeter is the media capability the audio detector needs
type LoudnessMeter interface {
	LoudnessWindows(ctx context.Context, input string, window float64) ([]ffmpeg.LoudnessSample, error)
}

// FrameSampler is the media capability the action detector needs
type FrameSampler interface {
	ExtractFrames(ctx context.Context, input, dir string, fps float64, width, height int) ([]string, error)
}

// FromConfig builds the enabled detectors in their configured order.
// Duplicate entries are ignored. The caller owns the returned detectors and
// must Close them.
func FromConfig(logger zerolog.Logger, exec *ffmpeg.Executor, cfg config.DetectorsConfig, tempDir string) ([]Detector, error) {
	var (
		dets []Detector
		seen = make(map[signals.Source]bool)
	)

	for _, name := range cfg.Enabled {
		src := signals.Source(name)
		if seen[src] {
			continue
		}
		seen[src] = true

		switch src {
		case signals.SourceScene:
			dets = append(dets, NewSceneDetector(logger, exec, SceneConfig{
				Threshold: cfg.SceneThreshold,
				PreRoll:   cfg.ScenePreRoll,
				PostRoll:  cfg.ScenePostRoll,
			}))
		case signals.SourceAudio:
			dets = append(dets, NewAudioDetector(logger, exec, AudioConfig{
				Sensitivity: cfg.AudioSensitivity,
				Window:      cfg.AudioWindow,
			}))
		case signals.SourceAction:
			var scorer FrameScorer = NewMotionScorer(logger)
			if cfg.ActionModelPath != "" {
				model, err := NewModelScorer(logger, cfg.ActionModelPath)
				if err != nil {
					closeAll(dets)
					return nil, fmt.Errorf("action model: %w", err)
				}
				scorer = model
			}
			dets = append(dets, NewActionDetector(logger, exec, scorer, ActionConfig{
				Confidence: cfg.ActionConfidence,
				SampleFPS:  cfg.ActionSampleFPS,
				TempDir:    tempDir,
			}))
		default:
			closeAll(dets)
			return nil, fmt.Errorf("unknown detector %q", name)
		}
	}

	return dets, nil
}

// CloseAll releases every detector, returning the first error
func CloseAll(dets []Detector) error {
	return closeAll(dets)
}

func closeAll(dets []Detector) error {
	var first error
	for _, d := range dets {
		if err := d.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// clampEnd bounds end to duration when the duration is known
func clampEnd(end, duration float64) float64 {
	if duration > 0 && end > duration {
		return duration
	}
	return end
}
