package config

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type contextKey string

const configKey contextKey = "config"

// Config holds all application configuration
type Config struct {
	// Core settings
	OutputDir   string `yaml:"output_dir" toml:"output_dir" validate:"required"`
	TempDir     string `yaml:"temp_dir" toml:"temp_dir"`
	Concurrency int    `yaml:"concurrency" toml:"concurrency" validate:"gte=0"`
	MetricsFile string `yaml:"metrics_file" toml:"metrics_file"`

	// DetectorTimeoutSeconds bounds each detector run; 0 disables the timeout.
	DetectorTimeoutSeconds float64 `yaml:"detector_timeout_seconds" toml:"detector_timeout_seconds" validate:"gte=0"`

	Highlight Highlight       `yaml:"highlight" toml:"highlight"`
	Detectors DetectorsConfig `yaml:"detectors" toml:"detectors"`
	FFmpeg    FFmpegConfig    `yaml:"ffmpeg" toml:"ffmpeg"`
	Intro     IntroConfig     `yaml:"intro" toml:"intro"`
	Analysis  AnalysisConfig  `yaml:"analysis" toml:"analysis"`
}

// Highlight holds the per-request selection and assembly options
type Highlight struct {
	ClusterGapSeconds   float64            `yaml:"cluster_gap_seconds" toml:"cluster_gap_seconds" validate:"gte=0"`
	MinSegmentLength    float64            `yaml:"min_segment_length" toml:"min_segment_length" validate:"gt=0"`
	MaxSegmentLength    float64            `yaml:"max_segment_length" toml:"max_segment_length" validate:"gtefield=MinSegmentLength"`
	MaxExtensionSeconds float64            `yaml:"max_extension_seconds" toml:"max_extension_seconds" validate:"gte=0"`
	SourceWeights       map[string]float64 `yaml:"source_weights" toml:"source_weights" validate:"dive,keys,oneof=scene audio action,endkeys,gte=0"`
	AgreementBonus      float64            `yaml:"agreement_bonus" toml:"agreement_bonus" validate:"gte=0"`

	Transition              string  `yaml:"transition" toml:"transition" validate:"oneof=none crossfade cut"`
	TransitionSeconds       float64 `yaml:"transition_seconds" toml:"transition_seconds" validate:"gte=0"`
	OutputResolution        string  `yaml:"output_resolution" toml:"output_resolution" validate:"resolution"`
	OutputFPS               float64 `yaml:"output_fps" toml:"output_fps" validate:"gte=0,lte=240"`
	AddIntro                bool    `yaml:"add_intro" toml:"add_intro"`
	KeyframeToleranceFrames int     `yaml:"keyframe_tolerance_frames" toml:"keyframe_tolerance_frames" validate:"gte=0"`

	MinFillRatio    float64 `yaml:"min_fill_ratio" toml:"min_fill_ratio" validate:"gte=0,lte=1"`
	BudgetTolerance float64 `yaml:"budget_tolerance" toml:"budget_tolerance" validate:"gte=0,lte=1"`
	BucketSeconds   float64 `yaml:"bucket_seconds" toml:"bucket_seconds" validate:"gte=0.01"`
}

// DetectorsConfig holds detector sensitivities
type DetectorsConfig struct {
	Enabled []string `yaml:"enabled" toml:"enabled" validate:"dive,oneof=scene audio action"`

	// SceneThreshold is the ffmpeg scene-change score a cut must exceed.
	SceneThreshold   float64 `yaml:"scene_threshold" toml:"scene_threshold" validate:"gt=0,lte=1"`
	ScenePreRoll     float64 `yaml:"scene_pre_roll" toml:"scene_pre_roll" validate:"gte=0"`
	ScenePostRoll    float64 `yaml:"scene_post_roll" toml:"scene_post_roll" validate:"gte=0"`
	AudioSensitivity float64 `yaml:"audio_sensitivity" toml:"audio_sensitivity" validate:"gte=0,lte=1"`
	AudioWindow      float64 `yaml:"audio_window_seconds" toml:"audio_window_seconds" validate:"gt=0"`
	ActionConfidence float64 `yaml:"action_confidence" toml:"action_confidence" validate:"gte=0,lte=1"`
	ActionSampleFPS  float64 `yaml:"action_sample_fps" toml:"action_sample_fps" validate:"gt=0,lte=30"`
	// ActionModelPath points at an ONNX action model; empty uses motion energy.
	ActionModelPath string `yaml:"action_model_path" toml:"action_model_path"`
}

type FFmpegConfig struct {
	Threads    int    `yaml:"threads" toml:"threads" validate:"gte=0"`
	Preset     string `yaml:"preset" toml:"preset" validate:"required"`
	CRF        int    `yaml:"crf" toml:"crf" validate:"gte=0,lte=51"`
	VideoCodec string `yaml:"video_codec" toml:"video_codec" validate:"required"`
	AudioCodec string `yaml:"audio_codec" toml:"audio_codec" validate:"required"`
}

// IntroConfig selects the intro clip. An empty Path generates a title card.
type IntroConfig struct {
	Path     string  `yaml:"path" toml:"path"`
	Text     string  `yaml:"text" toml:"text"`
	Seconds  float64 `yaml:"seconds" toml:"seconds" validate:"gt=0"`
	FontSize int     `yaml:"font_size" toml:"font_size" validate:"gt=0"`
}

// AnalysisConfig controls the downscaled proxy detectors run on
type AnalysisConfig struct {
	Downscale bool `yaml:"downscale" toml:"downscale"`
	Width     int  `yaml:"width" toml:"width" validate:"gte=0"`
	Height    int  `yaml:"height" toml:"height" validate:"gte=0"`
}

// Load reads configuration from file or returns defaults
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = findConfigFile()
	}

	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}

	if err := decode(path, data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if isTOML(path) {
		return toml.NewDecoder(bytes.NewReader(data)).Decode(cfg)
	}
	return yaml.Unmarshal(data, cfg)
}

// Save writes configuration to file
func (c *Config) Save(path string) error {
	var (
		data []byte
		err  error
	)
	if isTOML(path) {
		data, err = toml.Marshal(c)
	} else {
		data, err = yaml.Marshal(c)
	}
	if err != nil {
		return err
	}

	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, data, 0644)
}

func isTOML(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".toml")
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		OutputDir:              "./output",
		TempDir:                "",
		Concurrency:            4,
		DetectorTimeoutSeconds: 600,
		Highlight:              DefaultHighlight(),
		Detectors: DetectorsConfig{
			Enabled:          []string{"scene", "audio", "action"},
			SceneThreshold:   0.4,
			ScenePreRoll:     2,
			ScenePostRoll:    3,
			AudioSensitivity: 0.5,
			AudioWindow:      1,
			ActionConfidence: 0.5,
			ActionSampleFPS:  2,
		},
		FFmpeg: FFmpegConfig{
			Threads:    0,
			Preset:     "medium",
			CRF:        23,
			VideoCodec: "libx264",
			AudioCodec: "aac",
		},
		Intro: IntroConfig{
			Text:     "HIGHLIGHTS",
			Seconds:  2,
			FontSize: 96,
		},
		Analysis: AnalysisConfig{
			Downscale: false,
			Width:     640,
			Height:    360,
		},
	}
}

// DefaultHighlight returns the default request options
func DefaultHighlight() Highlight {
	return Highlight{
		ClusterGapSeconds:       1.0,
		MinSegmentLength:        2.0,
		MaxSegmentLength:        15.0,
		MaxExtensionSeconds:     2.0,
		SourceWeights:           map[string]float64{"scene": 1, "audio": 1, "action": 1},
		AgreementBonus:          0.25,
		Transition:              "none",
		TransitionSeconds:       0.5,
		OutputResolution:        "original",
		KeyframeToleranceFrames: 1,
		MinFillRatio:            0.9,
		BudgetTolerance:         0.05,
		BucketSeconds:           1.0,
	}
}

// ConfigFileNames lists the files searched, in order, when no path is given
func ConfigFileNames() []string {
	return []string{
		"./reelforge.yaml",
		"./reelforge.yml",
		"./reelforge.toml",
		filepath.Join(os.Getenv("HOME"), ".reelforge", "config.yaml"),
	}
}

func findConfigFile() string {
	for _, path := range ConfigFileNames() {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// WithConfig stores config in context
func WithConfig(ctx context.Context, cfg *Config) context.Context {
	return context.WithValue(ctx, configKey, cfg)
}

// FromContext retrieves config from context
func FromContext(ctx context.Context) *Config {
	if cfg, ok := ctx.Value(configKey).(*Config); ok {
		return cfg
	}
	return Default()
}
