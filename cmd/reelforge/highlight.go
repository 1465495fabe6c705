package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/keagan/reelforge/internal/config"
	"github.com/keagan/reelforge/internal/pipeline"
	"github.com/keagan/reelforge/pkg/util"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// highlightFlags are the per-run overrides shared by generate and plan
type highlightFlags struct {
	target            string
	outputDir         string
	metricsFile       string
	concurrency       int
	detectors         []string
	detectorTimeout   float64
	downscale         bool
	clusterGap        float64
	minLength         float64
	maxLength         float64
	maxExtension      float64
	weights           map[string]string
	agreementBonus    float64
	transition        string
	transitionSeconds float64
	resolution        string
	fps               float64
	intro             bool
	introPath         string
	keyframeTolerance int
}

func (f *highlightFlags) register(fs *pflag.FlagSet) {
	d := config.DefaultHighlight()
	fs.StringVarP(&f.target, "target", "t", "0", "target duration as seconds, MM:SS or HH:MM:SS (0: min(60s, 30% of the source))")
	fs.StringVarP(&f.outputDir, "output-dir", "o", "", "output directory")
	fs.StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics to this textfile")
	fs.IntVar(&f.concurrency, "concurrency", 0, "parallel segment extractions")
	fs.StringSliceVar(&f.detectors, "detectors", nil, "detectors to run (scene,audio,action)")
	fs.Float64Var(&f.detectorTimeout, "detector-timeout", 0, "per-detector timeout in seconds")
	fs.BoolVar(&f.downscale, "downscale", false, "analyze a downscaled proxy of the source")
	fs.Float64Var(&f.clusterGap, "cluster-gap", d.ClusterGapSeconds, "merge intervals closer than this many seconds")
	fs.Float64Var(&f.minLength, "min-length", d.MinSegmentLength, "minimum segment length in seconds")
	fs.Float64Var(&f.maxLength, "max-length", d.MaxSegmentLength, "maximum segment length in seconds")
	fs.Float64Var(&f.maxExtension, "max-extension", d.MaxExtensionSeconds, "how far short segments may be extended")
	fs.StringToStringVar(&f.weights, "weight", nil, "per-source weight, e.g. --weight audio=1.5")
	fs.Float64Var(&f.agreementBonus, "agreement-bonus", d.AgreementBonus, "bonus per additional agreeing detector")
	fs.StringVar(&f.transition, "transition", d.Transition, "transition between segments: none, crossfade or cut")
	fs.Float64Var(&f.transitionSeconds, "transition-seconds", d.TransitionSeconds, "crossfade length in seconds")
	fs.StringVar(&f.resolution, "resolution", d.OutputResolution, "output resolution: original or WxH")
	fs.Float64Var(&f.fps, "fps", d.OutputFPS, "output frame rate (0 keeps the source rate)")
	fs.BoolVar(&f.intro, "intro", d.AddIntro, "prepend an intro clip")
	fs.StringVar(&f.introPath, "intro-file", "", "intro clip to use instead of a generated title card")
	fs.IntVar(&f.keyframeTolerance, "keyframe-tolerance", d.KeyframeToleranceFrames, "frames a keyframe may be off for stream copy")
}

// targetSeconds parses --target; 0 asks for the default target
func (f *highlightFlags) targetSeconds() (float64, error) {
	d, err := util.ParseTimestamp(f.target)
	if err != nil {
		return 0, fmt.Errorf("invalid --target: %w", err)
	}
	return d.Seconds(), nil
}

// apply overrides cfg with every flag the user set
func (f *highlightFlags) apply(fs *pflag.FlagSet, cfg *config.Config) error {
	set := fs.Changed
	hl := &cfg.Highlight

	if set("output-dir") {
		cfg.OutputDir = f.outputDir
	}
	if set("metrics-file") {
		cfg.MetricsFile = f.metricsFile
	}
	if set("concurrency") {
		cfg.Concurrency = f.concurrency
	}
	if set("detectors") {
		cfg.Detectors.Enabled = f.detectors
	}
	if set("detector-timeout") {
		cfg.DetectorTimeoutSeconds = f.detectorTimeout
	}
	if set("downscale") {
		cfg.Analysis.Downscale = f.downscale
	}
	if set("intro-file") {
		cfg.Intro.Path = f.introPath
		hl.AddIntro = true
	}
	if set("cluster-gap") {
		hl.ClusterGapSeconds = f.clusterGap
	}
	if set("min-length") {
		hl.MinSegmentLength = f.minLength
	}
	if set("max-length") {
		hl.MaxSegmentLength = f.maxLength
	}
	if set("max-extension") {
		hl.MaxExtensionSeconds = f.maxExtension
	}
	if set("weight") {
		weights := make(map[string]float64, len(hl.SourceWeights)+len(f.weights))
		for k, v := range hl.SourceWeights {
			weights[k] = v
		}
		for k, v := range f.weights {
			w, err := strconv.ParseFloat(v, 64)
			if err != nil {
				return fmt.Errorf("invalid weight for %s: %w", k, err)
			}
			weights[k] = w
		}
		hl.SourceWeights = weights
	}
	if set("agreement-bonus") {
		hl.AgreementBonus = f.agreementBonus
	}
	if set("transition") {
		hl.Transition = f.transition
	}
	if set("transition-seconds") {
		hl.TransitionSeconds = f.transitionSeconds
	}
	if set("resolution") {
		hl.OutputResolution = f.resolution
	}
	if set("fps") {
		hl.OutputFPS = f.fps
	}
	if set("intro") {
		hl.AddIntro = f.intro
	}
	if set("keyframe-tolerance") {
		hl.KeyframeToleranceFrames = f.keyframeTolerance
	}

	return cfg.Validate()
}

func newGenerateCmd() *cobra.Command {
	flags := &highlightFlags{}
	cmd := &cobra.Command{
		Use:   "generate [input video]",
		Short: "Detect highlights and render the highlight video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHighlights(cmd, flags, args[0], true)
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func newPlanCmd() *cobra.Command {
	flags := &highlightFlags{}
	cmd := &cobra.Command{
		Use:   "plan [input video]",
		Short: "Show which segments would be cut without rendering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHighlights(cmd, flags, args[0], false)
		},
	}
	flags.register(cmd.Flags())
	return cmd
}

func runHighlights(cmd *cobra.Command, flags *highlightFlags, input string, render bool) error {
	ctx := cmd.Context()
	cfg := config.FromContext(ctx)
	if err := flags.apply(cmd.Flags(), cfg); err != nil {
		return err
	}
	target, err := flags.targetSeconds()
	if err != nil {
		return err
	}

	pipe, err := pipeline.New(log.Logger, cfg)
	if err != nil {
		return err
	}
	defer pipe.Close()

	if !verbose {
		pipe.SetProgress(newProgressPrinter(os.Stderr).handle)
	}

	if target <= 0 {
		info, err := pipe.Probe(ctx, input)
		if err != nil {
			return err
		}
		target = pipeline.DefaultTarget(info.Seconds())
		log.Info().Float64("target", target).Msg("using default target duration")
	}

	run := pipe.GenerateHighlights
	if !render {
		run = pipe.Plan
	}
	res, err := run(ctx, input, target, cfg.Highlight)
	if err != nil {
		return err
	}

	fmt.Print(renderResult(res))
	return nil
}
