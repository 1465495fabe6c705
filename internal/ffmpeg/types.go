package ffmpeg

import (
	"fmt"
	"math"
	"time"
)

// VideoInfo contains metadata about a video file
type VideoInfo struct {
	FilePath     string
	Duration     time.Duration
	Width        int
	Height       int
	FPS          float64
	Bitrate      int64
	VideoCodec   string
	PixelFormat  string
	HasVideo     bool
	HasAudio     bool
	AudioCodec   string
	AudioBitrate int64
	SampleRate   int
	Channels     int
}

// Seconds returns the container duration in seconds
func (v *VideoInfo) Seconds() float64 {
	return v.Duration.Seconds()
}

// Signature returns the parameters that must match for a stream-copy concat
func (v *VideoInfo) Signature() StreamSignature {
	return StreamSignature{
		VideoCodec:  v.VideoCodec,
		Width:       v.Width,
		Height:      v.Height,
		PixelFormat: v.PixelFormat,
		FPS:         math.Round(v.FPS*1000) / 1000,
		HasAudio:    v.HasAudio,
		AudioCodec:  v.AudioCodec,
		SampleRate:  v.SampleRate,
		Channels:    v.Channels,
	}
}

// StreamSignature identifies the codec parameters of a file's streams
type StreamSignature struct {
	VideoCodec  string
	Width       int
	Height      int
	PixelFormat string
	FPS         float64
	HasAudio    bool
	AudioCodec  string
	SampleRate  int
	Channels    int
}

func (s StreamSignature) String() string {
	audio := "none"
	if s.HasAudio {
		audio = fmt.Sprintf("%s/%dHz/%dch", s.AudioCodec, s.SampleRate, s.Channels)
	}
	return fmt.Sprintf("%s %dx%d %s %.3gfps audio=%s", s.VideoCodec, s.Width, s.Height, s.PixelFormat, s.FPS, audio)
}

// Progress represents ffmpeg progress data
type Progress struct {
	Frame      int
	FPS        float64
	Bitrate    string
	Time       string
	Speed      string
	Percentage float64
}

// RunOptions configures ffmpeg execution
type RunOptions struct {
	Args            []string
	ProgressHandler func(*Progress)
	LogHandler      func(line string)
}

// Default encoding settings
const (
	DefaultCRF        = 23
	DefaultPreset     = "medium"
	DefaultVideoCodec = "libx264"
	DefaultAudioCodec = "aac"
	DefaultPixFmt     = "yuv420p"
	DefaultSampleRate = 48000
)

// Encoding holds the settings used whenever a stream is re-encoded
type Encoding struct {
	VideoCodec string
	AudioCodec string
	CRF        int
	Preset     string
}

// withDefaults fills unset fields
func (enc Encoding) withDefaults() Encoding {
	if enc.VideoCodec == "" {
		enc.VideoCodec = DefaultVideoCodec
	}
	if enc.AudioCodec == "" {
		enc.AudioCodec = DefaultAudioCodec
	}
	if enc.CRF == 0 {
		enc.CRF = DefaultCRF
	}
	if enc.Preset == "" {
		enc.Preset = DefaultPreset
	}
	return enc
}

// videoArgs returns the video encoder arguments
func (enc Encoding) videoArgs() []string {
	enc = enc.withDefaults()
	return []string{
		"-c:v", enc.VideoCodec,
		"-preset", enc.Preset,
		"-crf", fmt.Sprintf("%d", enc.CRF),
		"-pix_fmt", DefaultPixFmt,
	}
}

// audioArgs returns the audio encoder arguments
func (enc Encoding) audioArgs() []string {
	enc = enc.withDefaults()
	return []string{"-c:a", enc.AudioCodec, "-ar", fmt.Sprintf("%d", DefaultSampleRate)}
}

// ProgressFunc is a callback for progress updates during ffmpeg operations.
// Called periodically with progress information as the operation executes.
type ProgressFunc func(*Progress)

// MinOutputBytes is the size a rendered file must exceed to count as valid
const MinOutputBytes int64 = 1000

// SceneChange is one frame whose scene score exceeded the threshold
type SceneChange struct {
	Time  float64
	Score float64
}

// LoudnessSample is the RMS level of one fixed-length audio window
type LoudnessSample struct {
	Start float64
	End   float64
	// RMS is in dBFS; silent windows are clamped to SilenceFloor.
	RMS float64
}

// SilenceFloor is the level reported for digitally silent windows
const SilenceFloor = -120.0
