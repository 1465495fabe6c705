package ffmpeg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ConcatOptions defines stream-copy concatenation parameters
type ConcatOptions struct {
	Inputs       []string
	Output       string
	ProgressFunc ProgressFunc
}

// Concat joins files with identical stream parameters using the concat
// demuxer and stream copy. Nothing is re-encoded.
func (e *Executor) Concat(ctx context.Context, opts ConcatOptions) error {
	if len(opts.Inputs) == 0 {
		return fmt.Errorf("no input files provided")
	}
	if opts.Output == "" {
		return fmt.Errorf("output path is required")
	}

	e.logger.Info().
		Int("inputs", len(opts.Inputs)).
		Str("output", opts.Output).
		Msg("concatenating videos (stream copy)")

	// Create temporary concat file list
	concatFile, err := e.createConcatFile(filepath.Dir(opts.Output), opts.Inputs)
	if err != nil {
		return fmt.Errorf("failed to create concat file: %w", err)
	}
	defer os.Remove(concatFile)

	args := []string{
		"-f", "concat",
		"-safe", "0",
		"-i", concatFile,
		"-map", "0",
		"-c", "copy",
		"-movflags", "+faststart",
		opts.Output,
	}

	runOpts := RunOptions{
		Args:            args,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("concatenating")
		},
	}

	return e.Run(ctx, runOpts)
}

// createConcatFile generates a file list for the concat demuxer in dir
func (e *Executor) createConcatFile(dir string, inputs []string) (string, error) {
	tmpFile, err := os.CreateTemp(dir, "concat-*.txt")
	if err != nil {
		return "", err
	}
	defer tmpFile.Close()

	for _, input := range inputs {
		absPath, err := filepath.Abs(input)
		if err != nil {
			return "", err
		}
		if _, err := fmt.Fprintf(tmpFile, "file '%s'\n", escapeConcatPath(absPath)); err != nil {
			return "", err
		}
	}

	return tmpFile.Name(), nil
}

// escapeConcatPath escapes single quotes for the concat demuxer list syntax
func escapeConcatPath(path string) string {
	return strings.ReplaceAll(path, "'", `'\''`)
}

// ConcatPart is one input of a filter-graph concatenation
type ConcatPart struct {
	Path string
	// Duration in seconds; every part is trimmed or padded to it.
	Duration float64
	HasAudio bool
}

// FilterConcatOptions configures a re-encoding concatenation
type FilterConcatOptions struct {
	Parts  []ConcatPart
	Output string

	// Width, Height and FPS are the uniform output parameters.
	Width  int
	Height int
	FPS    float64

	// Crossfade blends adjacent parts for this many seconds; 0 joins directly.
	Crossfade float64

	ProgressFunc ProgressFunc
}

// ConcatFilter re-encodes every part to one resolution, frame rate and
// audio layout and joins them with the concat filter, or with xfade and
// acrossfade when a crossfade is requested.
func (e *Executor) ConcatFilter(ctx context.Context, opts FilterConcatOptions) error {
	if len(opts.Parts) == 0 {
		return fmt.Errorf("no input files provided")
	}
	if opts.Output == "" {
		return fmt.Errorf("output path is required")
	}
	if opts.Width <= 0 || opts.Height <= 0 || opts.FPS <= 0 {
		return fmt.Errorf("output size and frame rate are required for filter concat")
	}

	graph, err := buildConcatGraph(opts)
	if err != nil {
		return err
	}

	e.logger.Info().
		Int("inputs", len(opts.Parts)).
		Str("output", opts.Output).
		Int("width", opts.Width).
		Int("height", opts.Height).
		Float64("fps", opts.FPS).
		Float64("crossfade", opts.Crossfade).
		Msg("concatenating videos (re-encode)")

	args := append([]string{}, graph.inputs...)
	args = append(args, "-filter_complex", graph.filter, "-map", graph.videoOut)
	if graph.audioOut != "" {
		args = append(args, "-map", graph.audioOut)
	}
	args = append(args, e.encoding.videoArgs()...)
	if graph.audioOut != "" {
		args = append(args, e.encoding.audioArgs()...)
	}
	args = append(args, "-movflags", "+faststart", opts.Output)

	runOpts := RunOptions{
		Args:            args,
		ProgressHandler: opts.ProgressFunc,
		LogHandler: func(line string) {
			e.logger.Trace().Str("ffmpeg", line).Msg("concatenating")
		},
	}

	return e.Run(ctx, runOpts)
}

type concatGraph struct {
	inputs   []string
	filter   string
	videoOut string
	audioOut string
}

// buildConcatGraph produces the input arguments and filter_complex script.
// Parts without audio get a silent lavfi input when any part has audio, so
// audio stays aligned with video across the joins.
func buildConcatGraph(opts FilterConcatOptions) (concatGraph, error) {
	var g concatGraph

	anyAudio := false
	for _, p := range opts.Parts {
		if p.Duration <= 0 {
			return g, fmt.Errorf("part %s has no duration", p.Path)
		}
		anyAudio = anyAudio || p.HasAudio
	}

	n := len(opts.Parts)
	fade := opts.Crossfade
	if n < 2 {
		fade = 0
	}

	var chains []string
	next := 0
	for i, p := range opts.Parts {
		g.inputs = append(g.inputs, "-i", p.Path)
		videoIn := next
		audioIn := next
		next++

		if anyAudio && !p.HasAudio {
			g.inputs = append(g.inputs,
				"-f", "lavfi",
				"-t", fmt.Sprintf("%.6f", p.Duration),
				"-i", fmt.Sprintf("anullsrc=r=%d:cl=stereo", DefaultSampleRate))
			audioIn = next
			next++
		}

		video := NewFilterBuilder().
			Custom(fmt.Sprintf("trim=duration=%.6f", p.Duration)).
			Custom("setpts=PTS-STARTPTS").
			ScaleFit(opts.Width, opts.Height).
			Custom("setsar=1").
			FPS(opts.FPS).
			Format(DefaultPixFmt).
			Custom("settb=AVTB").
			Build()
		chains = append(chains, fmt.Sprintf("[%d:v:0]%s[v%d]", videoIn, video, i))

		if anyAudio {
			audio := NewFilterBuilder().
				Custom(fmt.Sprintf("aresample=%d", DefaultSampleRate)).
				Custom("aformat=sample_fmts=fltp:channel_layouts=stereo").
				Custom("apad").
				Custom(fmt.Sprintf("atrim=duration=%.6f", p.Duration)).
				Custom("asetpts=PTS-STARTPTS").
				Build()
			chains = append(chains, fmt.Sprintf("[%d:a:0]%s[a%d]", audioIn, audio, i))
		}
	}

	if fade > 0 {
		chains = append(chains, crossfadeChains(opts.Parts, fade, anyAudio)...)
	} else {
		var labels strings.Builder
		for i := range opts.Parts {
			fmt.Fprintf(&labels, "[v%d]", i)
			if anyAudio {
				fmt.Fprintf(&labels, "[a%d]", i)
			}
		}
		a := 0
		outs := "[vout]"
		if anyAudio {
			a = 1
			outs = "[vout][aout]"
		}
		chains = append(chains, fmt.Sprintf("%sconcat=n=%d:v=1:a=%d%s", labels.String(), n, a, outs))
	}

	g.filter = strings.Join(chains, ";")
	g.videoOut = "[vout]"
	if anyAudio {
		g.audioOut = "[aout]"
	}
	return g, nil
}

// crossfadeChains folds the parts left to right. The k-th blend starts at
// the running output length minus the blend length.
func crossfadeChains(parts []ConcatPart, fade float64, withAudio bool) []string {
	var chains []string
	prevV, prevA := "[v0]", "[a0]"
	length := parts[0].Duration

	for k := 1; k < len(parts); k++ {
		offset := length - fade
		outV, outA := fmt.Sprintf("[vx%d]", k), fmt.Sprintf("[ax%d]", k)
		if k == len(parts)-1 {
			outV, outA = "[vout]", "[aout]"
		}

		chains = append(chains, fmt.Sprintf("%s[v%d]xfade=transition=fade:duration=%.6f:offset=%.6f%s",
			prevV, k, fade, offset, outV))
		if withAudio {
			chains = append(chains, fmt.Sprintf("%s[a%d]acrossfade=d=%.6f:c1=tri:c2=tri%s",
				prevA, k, fade, outA))
		}

		prevV, prevA = outV, outA
		length = offset + parts[k].Duration
	}
	return chains
}
