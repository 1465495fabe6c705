package ffmpeg

import (
	"context"
	"fmt"
	"time"

	"github.com/keagan/reelforge/pkg/util"
)

// ClipOptions defines clip extraction parameters
type ClipOptions struct {
	Start  time.Duration
	End    time.Duration
	Output string
	// CopyCodec stream-copies both streams. The start must sit on a keyframe
	// or the cut snaps to the previous one.
	CopyCodec    bool
	ProgressFunc ProgressFunc
}

// ExtractClip cuts [Start, End) from a video. Seeking happens on the input
// side; when re-encoding this is frame accurate.
func (e *Executor) ExtractClip(ctx context.Context, input string, opts ClipOptions) error {
	duration := opts.End - opts.Start
	if duration <= 0 {
		return fmt.Errorf("invalid clip duration: end must be after start")
	}
	if opts.Output == "" {
		return fmt.Errorf("output path is required")
	}

	e.logger.Debug().
		Str("input", input).
		Str("output", opts.Output).
		Dur("start", opts.Start).
		Dur("duration", duration).
		Bool("copy_codec", opts.CopyCodec).
		Msg("extracting clip")

	args := []string{
		"-ss", util.FormatDuration(opts.Start),
		"-i", input,
		"-t", util.FormatDuration(duration),
		"-map", "0:v:0?",
		"-map", "0:a:0?",
	}

	if opts.CopyCodec {
		args = append(args, "-c", "copy", "-avoid_negative_ts", "make_zero")
	} else {
		args = append(args, e.encoding.videoArgs()...)
		args = append(args, e.encoding.audioArgs()...)
	}

	args = append(args, "-movflags", "+faststart", opts.Output)

	runOpts := RunOptions{
		Args:            args,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("clip extraction")
		},
	}

	if err := e.Run(ctx, runOpts); err != nil {
		return fmt.Errorf("clip extraction failed: %w", err)
	}

	return nil
}
