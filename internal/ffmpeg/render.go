package ffmpeg

import (
	"context"
	"fmt"
)

// IntroOptions configures a generated title card
type IntroOptions struct {
	Output   string
	Text     string
	Seconds  float64
	FontSize int
	Width    int
	Height   int
	FPS      float64
	// WithAudio adds a silent stereo track so the card joins audio sources.
	WithAudio bool
}

// GenerateIntro renders text centred on a black background
func (e *Executor) GenerateIntro(ctx context.Context, opts IntroOptions) error {
	if opts.Output == "" {
		return fmt.Errorf("output path is required")
	}
	if opts.Seconds <= 0 {
		return fmt.Errorf("intro duration must be positive")
	}
	if opts.Width <= 0 || opts.Height <= 0 {
		opts.Width, opts.Height = 1280, 720
	}
	if opts.FPS <= 0 {
		opts.FPS = 30
	}
	if opts.FontSize <= 0 {
		opts.FontSize = 96
	}

	e.logger.Info().
		Str("output", opts.Output).
		Str("text", opts.Text).
		Float64("seconds", opts.Seconds).
		Msg("generating intro card")

	duration := fmt.Sprintf("%.3f", opts.Seconds)
	args := []string{
		"-f", "lavfi",
		"-i", fmt.Sprintf("color=c=black:s=%dx%d:r=%s:d=%s", opts.Width, opts.Height, trimFloat(opts.FPS), duration),
	}
	if opts.WithAudio {
		args = append(args,
			"-f", "lavfi",
			"-t", duration,
			"-i", fmt.Sprintf("anullsrc=r=%d:cl=stereo", DefaultSampleRate))
	}

	filter := NewFilterBuilder().
		DrawText(opts.Text, opts.FontSize, "white").
		Format(DefaultPixFmt).
		Build()
	if filter != "" {
		args = append(args, "-vf", filter)
	}

	args = append(args, e.encoding.videoArgs()...)
	if opts.WithAudio {
		args = append(args, e.encoding.audioArgs()...)
		args = append(args, "-shortest")
	}
	args = append(args, "-t", duration, "-movflags", "+faststart", opts.Output)

	runOpts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("intro render")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("intro render failed: %w", err)
	}
	return nil
}

// Downscale writes a smaller copy of input for analysis. Audio is copied.
func (e *Executor) Downscale(ctx context.Context, input, output string, width, height int) error {
	if input == "" {
		return fmt.Errorf("input path is required")
	}
	if output == "" {
		return fmt.Errorf("output path is required")
	}
	if width <= 0 || height <= 0 {
		return fmt.Errorf("invalid analysis size %dx%d", width, height)
	}

	e.logger.Info().
		Str("input", input).
		Str("output", output).
		Int("width", width).
		Int("height", height).
		Msg("creating analysis proxy")

	args := []string{
		"-i", input,
		"-map", "0:v:0",
		"-map", "0:a:0?",
		"-vf", NewFilterBuilder().Scale(width, height).Build(),
		"-c:v", DefaultVideoCodec,
		"-preset", "veryfast",
		"-crf", "28",
		"-c:a", "copy",
		output,
	}

	runOpts := RunOptions{
		Args: args,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("downscale")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("downscale failed: %w", err)
	}
	return nil
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.3f", f)
	for len(s) > 1 && s[len(s)-1] == '0' {
		s = s[:len(s)-1]
	}
	if s[len(s)-1] == '.' {
		s = s[:len(s)-1]
	}
	return s
}
