package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/keagan/reelforge/internal/assembly"
	"github.com/keagan/reelforge/internal/clips"
	"github.com/keagan/reelforge/internal/config"
	"github.com/keagan/reelforge/internal/detectors"
	"github.com/keagan/reelforge/internal/faults"
	"github.com/keagan/reelforge/internal/ffmpeg"
	"github.com/keagan/reelforge/internal/intro"
	"github.com/keagan/reelforge/internal/logging"
	"github.com/keagan/reelforge/internal/metrics"
	"github.com/keagan/reelforge/internal/selector"
	"github.com/keagan/reelforge/internal/signals"
	"github.com/keagan/reelforge/internal/timeline"
	"github.com/keagan/reelforge/pkg/util"
	"github.com/rs/zerolog"
)

// Downscaler creates the low-resolution analysis proxy
type Downscaler interface {
	Downscale(ctx context.Context, input, output string, width, height int) error
}

// IntroResolver supplies the intro clip for a run
type IntroResolver interface {
	Resolve(ctx context.Context, spec intro.Spec) (*timeline.IntroRef, error)
}

// Deps are the collaborators a pipeline drives. New wires the ffmpeg-backed
// ones; tests substitute fakes.
type Deps struct {
	Media      assembly.Media
	Downscaler Downscaler
	Detectors  []detectors.Detector
	Intro      IntroResolver
	Metrics    *metrics.Recorder
}

// Pipeline orchestrates the highlight workflow: detect, fuse, select,
// assemble
type Pipeline struct {
	logger    zerolog.Logger
	config    *config.Config
	media     assembly.Media
	downscale Downscaler
	detectors []detectors.Detector
	intro     IntroResolver
	metrics   *metrics.Recorder
	progress  ProgressFunc
	now       func() time.Time
}

// New creates a pipeline backed by ffmpeg
func New(logger zerolog.Logger, cfg *config.Config) (*Pipeline, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	exec, err := ffmpeg.New(logger, cfg.FFmpeg.Threads)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize ffmpeg: %w", err)
	}
	exec.SetEncoding(ffmpeg.Encoding{
		VideoCodec: cfg.FFmpeg.VideoCodec,
		AudioCodec: cfg.FFmpeg.AudioCodec,
		CRF:        cfg.FFmpeg.CRF,
		Preset:     cfg.FFmpeg.Preset,
	})

	dets, err := detectors.FromConfig(logger, exec, cfg.Detectors, cfg.TempDir)
	if err != nil {
		return nil, faults.New(faults.KindInvalidConfig, faults.StageConfig, "detectors", err)
	}

	return NewWithDeps(logger, cfg, Deps{
		Media:      exec,
		Downscaler: exec,
		Detectors:  dets,
		Intro:      intro.New(logger, exec, cfg.Intro, cfg.OutputDir),
		Metrics:    metrics.New(),
	}), nil
}

// NewWithDeps creates a pipeline around the given collaborators
func NewWithDeps(logger zerolog.Logger, cfg *config.Config, deps Deps) *Pipeline {
	if cfg == nil {
		cfg = config.Default()
	}
	return &Pipeline{
		logger:    logger.With().Str("component", "pipeline").Logger(),
		config:    cfg,
		media:     deps.Media,
		downscale: deps.Downscaler,
		detectors: deps.Detectors,
		intro:     deps.Intro,
		metrics:   deps.Metrics,
		now:       time.Now,
	}
}

// SetProgress installs a progress callback
func (p *Pipeline) SetProgress(fn ProgressFunc) {
	p.progress = fn
}

// Metrics returns the recorder, which may be nil
func (p *Pipeline) Metrics() *metrics.Recorder {
	return p.metrics
}

// Close releases detector resources
func (p *Pipeline) Close() error {
	return detectors.CloseAll(p.detectors)
}

// Probe reads the source metadata without running any stage
func (p *Pipeline) Probe(ctx context.Context, source string) (*ffmpeg.VideoInfo, error) {
	info, err := p.media.ProbeVideo(ctx, source)
	if err != nil {
		return nil, faults.New(faults.KindSourceUnreadable, faults.StageDetect, source, err)
	}
	return info, nil
}

// GenerateHighlights runs every stage and writes the highlight video into the
// configured output directory. A run that finds nothing worth keeping returns
// StatusNoViableCandidates and a nil error.
func (p *Pipeline) GenerateHighlights(ctx context.Context, source string, targetSeconds float64, hl config.Highlight) (*Result, error) {
	start := time.Now()
	res, err := p.run(ctx, source, targetSeconds, hl, true)
	p.finish(res, err, start)
	return res, err
}

// Plan runs detection, fusion and selection and returns the cut plan without
// writing any media
func (p *Pipeline) Plan(ctx context.Context, source string, targetSeconds float64, hl config.Highlight) (*Result, error) {
	start := time.Now()
	res, err := p.run(ctx, source, targetSeconds, hl, false)
	p.finish(res, err, start)
	return res, err
}

func (p *Pipeline) run(ctx context.Context, source string, target float64, hl config.Highlight, render bool) (*Result, error) {
	runID := uuid.New().String()
	log := logging.WithRun(p.logger, runID)

	res := &Result{
		RunID:  runID,
		Source: source,
		Target: target,
		Stats: Stats{
			Intervals: make(map[signals.Source]int),
			Detectors: make(map[signals.Source]time.Duration),
		},
	}

	if source == "" {
		return res, faults.New(faults.KindSourceUnreadable, faults.StageDetect, "input path cannot be empty", nil)
	}
	if err := hl.Validate(); err != nil {
		return res, err
	}
	opts, err := timelineOptions(hl)
	if err != nil {
		return res, faults.New(faults.KindInvalidConfig, faults.StageConfig, "highlight options", err)
	}

	log.Info().
		Str("source", source).
		Float64("target", target).
		Bool("render", render).
		Msg("starting highlight pipeline")

	// Stage 1: probe and detect
	stageStart := time.Now()
	info, err := p.media.ProbeVideo(ctx, source)
	if err != nil {
		return res, faults.New(faults.KindSourceUnreadable, faults.StageDetect, source, err)
	}
	res.SourceDuration = info.Seconds()

	log.Info().
		Float64("duration", res.SourceDuration).
		Int("width", info.Width).
		Int("height", info.Height).
		Float64("fps", info.FPS).
		Msg("video metadata extracted")

	sigs, err := p.detect(ctx, log, source, res)
	if err != nil {
		return res, err
	}
	p.metrics.RecordStage(string(faults.StageDetect), time.Since(stageStart))

	// Stage 2: normalize
	stageStart = time.Now()
	normalized := signals.Normalize(sigs...)
	p.emit(Event{Stage: EventSignalsFused, Done: len(normalized), Total: len(normalized)})
	p.metrics.RecordStage(string(faults.StageNormalize), time.Since(stageStart))

	// Stage 3: candidates
	stageStart = time.Now()
	res.Candidates = clips.Build(normalized, builderConfig(hl, res.SourceDuration))
	res.Stats.Candidates = len(res.Candidates)
	p.emit(Event{Stage: EventCandidatesBuilt, Done: len(res.Candidates), Total: len(res.Candidates)})
	p.metrics.RecordStage(string(faults.StageCandidates), time.Since(stageStart))

	log.Info().
		Int("intervals", len(normalized)).
		Int("candidates", len(res.Candidates)).
		Msg("candidates built")

	// Stage 4: select
	stageStart = time.Now()
	res.Plan = selector.Select(res.Candidates, selectorConfig(hl, target))
	res.Stats.Selected = len(res.Plan.Segments)
	p.emit(Event{Stage: EventPlanSelected, Done: len(res.Plan.Segments), Total: len(res.Candidates)})
	p.metrics.RecordStage(string(faults.StageSelect), time.Since(stageStart))
	p.metrics.RecordPlan(res.Plan.Duration, target)

	if res.Plan.Empty() {
		log.Warn().Int("candidates", len(res.Candidates)).Msg("no viable candidates")
		res.Status = StatusNoViableCandidates
		return res, nil
	}

	log.Info().
		Int("segments", len(res.Plan.Segments)).
		Float64("duration", res.Plan.Duration).
		Float64("score", res.Plan.Score).
		Bool("full_set", res.Plan.FullSet).
		Bool("underfilled", res.Plan.Underfilled).
		Msg("plan selected")
	if res.Plan.Underfilled {
		res.Warnings = append(res.Warnings, fmt.Sprintf("plan underfilled: %.1fs of %.1fs target", res.Plan.Duration, target))
	}

	// Stage 5: timeline
	if hl.AddIntro {
		opts.Intro = p.resolveIntro(ctx, log, info, opts, render, res)
	}
	res.CutPlan = timeline.Assemble(source, res.Plan, opts)

	if !render {
		res.Status = StatusPlanned
		return res, nil
	}

	// Stage 6: assemble
	stageStart = time.Now()
	artifact, err := p.assemble(ctx, res, hl)
	if err != nil {
		return res, err
	}
	p.metrics.RecordStage(string(faults.StageAssemble), time.Since(stageStart))

	res.Artifact = artifact
	res.Warnings = append(res.Warnings, artifact.Warnings...)
	res.Status = StatusOK

	modes := make([]string, len(artifact.Modes))
	for i, m := range artifact.Modes {
		modes[i] = string(m)
	}
	p.metrics.RecordAssembly(modes, len(artifact.Retried), string(artifact.Strategy), artifact.Duration)

	log.Info().
		Str("output", artifact.Path).
		Float64("duration", artifact.Duration).
		Str("strategy", string(artifact.Strategy)).
		Msg("highlight pipeline complete")

	return res, nil
}

// detect runs the detectors, on the analysis proxy when configured, and
// records per-detector outcomes on res
func (p *Pipeline) detect(ctx context.Context, log zerolog.Logger, source string, res *Result) ([]signals.TimeSignal, error) {
	input := source
	if p.config.Analysis.Downscale && p.downscale != nil {
		proxy, cleanup, err := p.analysisProxy(ctx, source)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn().Err(err).Msg("analysis proxy failed, analyzing the source")
			res.Warnings = append(res.Warnings, fmt.Sprintf("analysis proxy skipped: %v", err))
		} else {
			defer cleanup()
			input = proxy
		}
	}

	timeout := time.Duration(p.config.DetectorTimeoutSeconds * float64(time.Second))
	outcome, err := detectors.RunAll(ctx, p.logger, p.detectors, input, res.SourceDuration, timeout)

	for src, d := range outcome.Elapsed {
		res.Stats.Detectors[src] = d
		kind := ""
		for _, f := range outcome.Failures {
			if f.Source == string(src) {
				kind = string(f.Kind)
			}
		}
		p.metrics.RecordDetector(string(src), kind, d)
	}
	res.Warnings = append(res.Warnings, outcome.Warnings()...)
	for _, sig := range outcome.Signals {
		res.Stats.Intervals[sig.Source] = len(sig.Intervals)
	}

	if err != nil {
		return nil, err
	}
	return outcome.Signals, nil
}

func (p *Pipeline) analysisProxy(ctx context.Context, source string) (string, func(), error) {
	dir, err := os.MkdirTemp(p.config.TempDir, "reelforge-proxy-*")
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { os.RemoveAll(dir) }

	proxy := filepath.Join(dir, "proxy.mp4")
	if err := p.downscale.Downscale(ctx, source, proxy, p.config.Analysis.Width, p.config.Analysis.Height); err != nil {
		cleanup()
		return "", nil, err
	}
	return proxy, cleanup, nil
}

// resolveIntro returns nil, with a warning, when no intro can be produced.
// Dry runs never render: a generated card is reported with an empty path.
func (p *Pipeline) resolveIntro(ctx context.Context, log zerolog.Logger, info *ffmpeg.VideoInfo, opts timeline.Options, render bool, res *Result) *timeline.IntroRef {
	if !render && p.config.Intro.Path == "" {
		return &timeline.IntroRef{Duration: p.config.Intro.Seconds}
	}
	if p.intro == nil {
		res.Warnings = append(res.Warnings, "intro requested but no intro provider configured")
		return nil
	}

	spec := intro.Spec{
		Width:     opts.Resolution.Width,
		Height:    opts.Resolution.Height,
		FPS:       opts.FPS,
		WithAudio: info.HasAudio,
	}
	if opts.Resolution.Original() {
		spec.Width, spec.Height = info.Width-info.Width%2, info.Height-info.Height%2
	}
	if spec.FPS <= 0 {
		spec.FPS = info.FPS
	}

	ref, err := p.intro.Resolve(ctx, spec)
	if err != nil {
		log.Warn().Err(err).Msg("intro unavailable, continuing without it")
		res.Warnings = append(res.Warnings, fmt.Sprintf("intro skipped: %v", err))
		return nil
	}
	return ref
}

func (p *Pipeline) assemble(ctx context.Context, res *Result, hl config.Highlight) (*assembly.Artifact, error) {
	if err := util.EnsureDir(p.config.OutputDir); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	output := filepath.Join(p.config.OutputDir, OutputName(p.now(), res.Source, uuidHex(res.RunID)))

	stitcher := assembly.New(p.logger, p.media, assembly.Config{
		Concurrency:             p.config.Concurrency,
		KeyframeToleranceFrames: hl.KeyframeToleranceFrames,
		WorkDir:                 p.config.TempDir,
	})

	return stitcher.Stitch(ctx, res.CutPlan, output, func(done, total int) {
		p.emit(Event{Stage: EventAssemblyProgress, Done: done, Total: total})
	})
}

// finish records run metrics and writes the textfile when configured
func (p *Pipeline) finish(res *Result, err error, start time.Time) {
	if res != nil {
		res.Stats.Elapsed = time.Since(start)
	}

	switch {
	case err != nil:
		kind, stage := string(faults.KindOf(err)), string(faults.StageOf(err))
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			kind = "cancelled"
		}
		if kind == "" {
			kind = "internal"
		}
		p.metrics.RecordError(stage, kind)
		p.metrics.RecordRun("error")
	case res != nil:
		p.metrics.RecordRun(string(res.Status))
	}

	if p.config.MetricsFile == "" {
		return
	}
	if werr := p.metrics.WriteTextfile(p.config.MetricsFile); werr != nil {
		p.logger.Warn().Err(werr).Str("path", p.config.MetricsFile).Msg("failed to write metrics")
	}
}

func (p *Pipeline) emit(ev Event) {
	if p.progress != nil {
		p.progress(ev)
	}
}

// uuidHex strips the dashes so the name suffix is plain hex
func uuidHex(id string) string {
	if u, err := uuid.Parse(id); err == nil {
		return fmt.Sprintf("%x", u[:4])
	}
	return id
}
