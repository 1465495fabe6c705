// Package assembly cuts a CutPlan out of the source video and joins the
// parts into the final highlight file.
package assembly

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/keagan/reelforge/internal/faults"
	"github.com/keagan/reelforge/internal/ffmpeg"
	"github.com/keagan/reelforge/internal/timeline"
	"github.com/keagan/reelforge/pkg/util"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// fallbackFPS is used for keyframe tolerance when the source reports no rate
const fallbackFPS = 30.0

// Media is the ffmpeg surface the stitcher drives
type Media interface {
	ProbeVideo(ctx context.Context, path string) (*ffmpeg.VideoInfo, error)
	Keyframes(ctx context.Context, path string, from, to float64) ([]float64, error)
	ExtractClip(ctx context.Context, input string, opts ffmpeg.ClipOptions) error
	Concat(ctx context.Context, opts ffmpeg.ConcatOptions) error
	ConcatFilter(ctx context.Context, opts ffmpeg.FilterConcatOptions) error
}

// Config tunes extraction
type Config struct {
	// Concurrency bounds parallel segment extraction; <= 0 means 1.
	Concurrency int
	// KeyframeToleranceFrames is how far, in source frames, a keyframe may
	// sit from a segment start for the segment to be stream-copied.
	KeyframeToleranceFrames int
	// WorkDir is the parent of the per-run scratch directory; empty uses the
	// system temp dir.
	WorkDir string
}

// DefaultConfig returns the stitcher defaults
func DefaultConfig() Config {
	return Config{
		Concurrency:             4,
		KeyframeToleranceFrames: 1,
	}
}

// ProgressFunc receives the number of extracted segments out of total. It is
// called from the extraction workers and may run concurrently.
type ProgressFunc func(done, total int)

// Stitcher turns cut plans into output files
type Stitcher struct {
	logger zerolog.Logger
	media  Media
	config Config
}

// New creates a stitcher
func New(logger zerolog.Logger, media Media, cfg Config) *Stitcher {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if cfg.KeyframeToleranceFrames < 0 {
		cfg.KeyframeToleranceFrames = 0
	}
	return &Stitcher{
		logger: logger.With().Str("component", "stitcher").Logger(),
		media:  media,
		config: cfg,
	}
}

// part is one file joined into the output
type part struct {
	path     string
	mode     Mode
	start    float64
	duration float64
	info     *ffmpeg.VideoInfo
	retried  bool
}

// Stitch extracts every entry of plan and writes the joined result to output.
// Scratch files are removed on every exit path; output only appears once it
// has been validated.
func (s *Stitcher) Stitch(ctx context.Context, plan timeline.CutPlan, output string, progress ProgressFunc) (*Artifact, error) {
	if plan.Empty() {
		return nil, faults.New(faults.KindNoViableCandidates, faults.StageAssemble, "cut plan has no entries", nil)
	}
	if output == "" {
		return nil, fmt.Errorf("output path is required")
	}

	source, err := s.media.ProbeVideo(ctx, plan.Source)
	if err != nil {
		return nil, faults.New(faults.KindSourceUnreadable, faults.StageAssemble, plan.Source, err)
	}
	if !source.HasVideo {
		return nil, faults.New(faults.KindSourceUnreadable, faults.StageAssemble, "source has no video stream", nil)
	}

	workDir, err := os.MkdirTemp(s.config.WorkDir, "reelforge-*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	log := s.logger.With().Str("source", plan.Source).Int("segments", len(plan.Entries)).Logger()
	log.Info().Str("work_dir", workDir).Msg("assembling highlights")

	parts, err := s.extractAll(ctx, plan, source, workDir, progress)
	if err != nil {
		return nil, err
	}

	var intro *part
	var warnings []string
	if plan.Intro != nil {
		intro, err = s.introPart(ctx, plan.Intro)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Str("intro", plan.Intro.Path).Msg("intro unusable, continuing without it")
			warnings = append(warnings, fmt.Sprintf("intro skipped: %v", err))
		}
	}

	ordered := parts
	if intro != nil {
		ordered = append([]part{*intro}, parts...)
	}

	strategy := chooseStrategy(plan, parts, intro != nil)
	log.Info().Str("strategy", string(strategy)).Int("parts", len(ordered)).Msg("concat strategy chosen")

	partial := partialPath(output)
	defer util.CleanupFiles(partial)

	if err := s.join(ctx, plan, source, ordered, strategy, partial); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, s.concatFailure(output, parts, "concatenation failed", err)
	}

	info, err := s.validate(ctx, partial)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, s.concatFailure(output, parts, "output rejected", err)
	}

	if err := os.Rename(partial, output); err != nil {
		return nil, s.concatFailure(output, parts, "finalize output", err)
	}

	artifact := &Artifact{
		Path:     output,
		Duration: info.Seconds(),
		Segments: len(parts),
		Strategy: strategy,
		Modes:    make([]Mode, len(parts)),
		HasIntro: intro != nil,
		Warnings: warnings,
	}
	for i, p := range parts {
		artifact.Modes[i] = p.mode
		if p.retried {
			artifact.Retried = append(artifact.Retried, i)
		}
	}

	log.Info().
		Str("output", output).
		Float64("duration", artifact.Duration).
		Float64("expected", expectedDuration(plan, ordered, strategy)).
		Msg("highlights assembled")

	return artifact, nil
}

// extractAll cuts every entry on a bounded pool. Parts are stored by index
// so their order never depends on completion order.
func (s *Stitcher) extractAll(ctx context.Context, plan timeline.CutPlan, source *ffmpeg.VideoInfo, workDir string, progress ProgressFunc) ([]part, error) {
	fps := source.FPS
	if fps <= 0 {
		fps = fallbackFPS
	}
	tolerance := float64(s.config.KeyframeToleranceFrames) / fps

	parts := make([]part, len(plan.Entries))
	var done atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.config.Concurrency)
	for i, entry := range plan.Entries {
		i, entry := i, entry
		g.Go(func() error {
			path := filepath.Join(workDir, fmt.Sprintf("segment_%03d.mp4", i))
			p, err := s.extractSegment(gctx, plan.Source, entry, tolerance, path)
			if err != nil {
				return err
			}
			parts[i] = p
			if progress != nil {
				progress(int(done.Add(1)), len(plan.Entries))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, err
	}
	return parts, nil
}

// extractSegment tries the keyframe decision first and falls back to one
// precise re-encode
func (s *Stitcher) extractSegment(ctx context.Context, source string, e timeline.Entry, tolerance float64, path string) (part, error) {
	log := s.logger.With().Int("segment", e.Index).Logger()

	decision := Decision{Mode: ModeReencode, Start: e.SourceStart}
	window := math.Max(tolerance, 1e-3)
	keyframes, err := s.media.Keyframes(ctx, source, math.Max(0, e.SourceStart-window), e.SourceStart+window)
	if err != nil {
		if ctx.Err() != nil {
			return part{}, ctx.Err()
		}
		log.Warn().Err(err).Msg("keyframe lookup failed, re-encoding")
	} else {
		decision = Decide(keyframes, e.SourceStart, tolerance)
	}

	log.Debug().
		Str("mode", string(decision.Mode)).
		Float64("start", e.SourceStart).
		Float64("cut_start", decision.Start).
		Float64("end", e.SourceEnd).
		Msg("extraction decision")

	p, err := s.cut(ctx, source, decision, e.SourceEnd, path)
	if err == nil {
		return p, nil
	}
	if ctx.Err() != nil {
		return part{}, ctx.Err()
	}

	log.Warn().Err(err).Str("mode", string(decision.Mode)).Msg("extraction failed, retrying with re-encode")
	util.CleanupFiles(path)

	p, retryErr := s.cut(ctx, source, Decision{Mode: ModeReencode, Start: e.SourceStart}, e.SourceEnd, path)
	if retryErr != nil {
		if ctx.Err() != nil {
			return part{}, ctx.Err()
		}
		fe := faults.New(faults.KindExtractionFailure, faults.StageAssemble, "re-encode retry failed", errors.Join(err, retryErr))
		fe.Segment = e.Index
		return part{}, fe
	}
	p.retried = true
	return p, nil
}

func (s *Stitcher) cut(ctx context.Context, source string, d Decision, end float64, path string) (part, error) {
	err := s.media.ExtractClip(ctx, source, ffmpeg.ClipOptions{
		Start:     util.Seconds(d.Start),
		End:       util.Seconds(end),
		Output:    path,
		CopyCodec: d.Mode == ModeCopy,
	})
	if err != nil {
		return part{}, err
	}

	info, err := s.media.ProbeVideo(ctx, path)
	if err != nil {
		return part{}, fmt.Errorf("probe segment: %w", err)
	}
	if info.Seconds() <= 0 {
		return part{}, fmt.Errorf("segment %s has no duration", filepath.Base(path))
	}

	return part{path: path, mode: d.Mode, start: d.Start, duration: info.Seconds(), info: info}, nil
}

func (s *Stitcher) introPart(ctx context.Context, ref *timeline.IntroRef) (*part, error) {
	if size := util.FileSize(ref.Path); size <= ffmpeg.MinOutputBytes {
		return nil, fmt.Errorf("intro %s is missing or too small (%d bytes)", ref.Path, size)
	}
	info, err := s.media.ProbeVideo(ctx, ref.Path)
	if err != nil {
		return nil, err
	}
	duration := info.Seconds()
	if duration <= 0 {
		duration = ref.Duration
	}
	if duration <= 0 {
		return nil, fmt.Errorf("intro %s has no duration", ref.Path)
	}
	return &part{path: ref.Path, mode: ModeReencode, duration: duration, info: info}, nil
}

func (s *Stitcher) join(ctx context.Context, plan timeline.CutPlan, source *ffmpeg.VideoInfo, parts []part, strategy Strategy, output string) error {
	if strategy == StrategyCopy {
		inputs := make([]string, len(parts))
		for i, p := range parts {
			inputs[i] = p.path
		}
		return s.media.Concat(ctx, ffmpeg.ConcatOptions{Inputs: inputs, Output: output})
	}

	width, height := plan.Resolution.Width, plan.Resolution.Height
	if plan.Resolution.Original() {
		width, height = evenDown(source.Width), evenDown(source.Height)
	}
	fps := plan.FPS
	if fps <= 0 {
		fps = source.FPS
	}
	if fps <= 0 {
		fps = fallbackFPS
	}

	opts := ffmpeg.FilterConcatOptions{
		Parts:  make([]ffmpeg.ConcatPart, len(parts)),
		Output: output,
		Width:  width,
		Height: height,
		FPS:    fps,
	}
	durations := make([]float64, len(parts))
	for i, p := range parts {
		opts.Parts[i] = ffmpeg.ConcatPart{Path: p.path, Duration: p.duration, HasAudio: p.info != nil && p.info.HasAudio}
		durations[i] = p.duration
	}
	if strategy == StrategyCrossfade {
		opts.Crossfade = timeline.BlendSeconds(plan.TransitionSeconds, durations)
	}

	return s.media.ConcatFilter(ctx, opts)
}

// validate accepts output only when it is larger than MinOutputBytes and
// probes to a positive duration
func (s *Stitcher) validate(ctx context.Context, path string) (*ffmpeg.VideoInfo, error) {
	if size := util.FileSize(path); size <= ffmpeg.MinOutputBytes {
		return nil, fmt.Errorf("output is %d bytes", size)
	}
	info, err := s.media.ProbeVideo(ctx, path)
	if err != nil {
		return nil, err
	}
	if info.Seconds() <= 0 {
		return nil, fmt.Errorf("output has no duration")
	}
	return info, nil
}

// concatFailure moves the extracted segments next to output before the work
// dir is removed and reports where they went
func (s *Stitcher) concatFailure(output string, parts []part, detail string, cause error) error {
	fe := faults.New(faults.KindConcatenationFailure, faults.StageAssemble, detail, cause)

	keep := strings.TrimSuffix(output, filepath.Ext(output)) + "_segments"
	if err := util.EnsureDir(keep); err != nil {
		s.logger.Warn().Err(err).Msg("cannot keep extracted segments")
		return fe
	}
	for _, p := range parts {
		dst := filepath.Join(keep, filepath.Base(p.path))
		if err := os.Rename(p.path, dst); err != nil {
			s.logger.Warn().Err(err).Str("segment", p.path).Msg("cannot keep extracted segment")
			continue
		}
		fe.Succeeded = append(fe.Succeeded, dst)
	}
	s.logger.Error().Err(cause).Str("kept", keep).Int("segments", len(fe.Succeeded)).Msg("concatenation failed")
	return fe
}

// partialPath keeps the container extension so ffmpeg can infer the muxer
func partialPath(output string) string {
	ext := filepath.Ext(output)
	return strings.TrimSuffix(output, ext) + ".partial" + ext
}

func evenDown(v int) int {
	if v%2 != 0 {
		return v - 1
	}
	return v
}

func expectedDuration(plan timeline.CutPlan, parts []part, strategy Strategy) float64 {
	durations := make([]float64, len(parts))
	var total float64
	for i, p := range parts {
		durations[i] = p.duration
		total += p.duration
	}
	if strategy == StrategyCrossfade && len(parts) > 1 {
		total -= float64(len(parts)-1) * timeline.BlendSeconds(plan.TransitionSeconds, durations)
	}
	return total
}
