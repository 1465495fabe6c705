package assembly

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/keagan/reelforge/internal/faults"
	"github.com/keagan/reelforge/internal/ffmpeg"
	"github.com/keagan/reelforge/internal/timeline"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sourcePath = "/videos/match.mp4"

type fakeMedia struct {
	mu sync.Mutex

	keyframes []float64
	durations map[string]float64
	// failures maps a segment file name to how many attempts fail
	failures map[string]int
	// delay slows extraction of earlier segments to scramble completion order
	delay bool

	concatErr  error
	outputSize int

	extracts   map[string][]bool
	copyInputs []string
	filter     *ffmpeg.FilterConcatOptions
}

func newFakeMedia() *fakeMedia {
	kf := make([]float64, 0, 61)
	for i := 0; i <= 60; i++ {
		kf = append(kf, float64(i))
	}
	return &fakeMedia{
		keyframes:  kf,
		durations:  make(map[string]float64),
		failures:   make(map[string]int),
		extracts:   make(map[string][]bool),
		outputSize: 5000,
	}
}

func (f *fakeMedia) info(path string, seconds float64) *ffmpeg.VideoInfo {
	return &ffmpeg.VideoInfo{
		FilePath:    path,
		Duration:    time.Duration(seconds * float64(time.Second)),
		Width:       1280,
		Height:      720,
		FPS:         30,
		VideoCodec:  "h264",
		PixelFormat: "yuv420p",
		HasVideo:    true,
		HasAudio:    true,
		AudioCodec:  "aac",
		SampleRate:  48000,
		Channels:    2,
	}
}

func (f *fakeMedia) ProbeVideo(_ context.Context, path string) (*ffmpeg.VideoInfo, error) {
	if path == sourcePath {
		return f.info(path, 60), nil
	}
	f.mu.Lock()
	d, ok := f.durations[path]
	f.mu.Unlock()
	if !ok {
		return nil, errors.New("no such file")
	}
	return f.info(path, d), nil
}

func (f *fakeMedia) Keyframes(_ context.Context, _ string, from, to float64) ([]float64, error) {
	var out []float64
	for _, k := range f.keyframes {
		if k >= from && k <= to {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeMedia) ExtractClip(ctx context.Context, _ string, opts ffmpeg.ClipOptions) error {
	name := filepath.Base(opts.Output)
	if f.delay {
		// segment_000 finishes last
		wait := 5 * time.Millisecond
		if strings.HasSuffix(name, "000.mp4") {
			wait = 30 * time.Millisecond
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.extracts[name] = append(f.extracts[name], opts.CopyCodec)
	if f.failures[name] > 0 {
		f.failures[name]--
		return errors.New("exit status 1: Invalid data found")
	}
	if err := os.WriteFile(opts.Output, make([]byte, 2000), 0644); err != nil {
		return err
	}
	f.durations[opts.Output] = (opts.End - opts.Start).Seconds()
	return nil
}

func (f *fakeMedia) writeOutput(path string, seconds float64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.concatErr != nil {
		return f.concatErr
	}
	f.durations[path] = seconds
	return os.WriteFile(path, make([]byte, f.outputSize), 0644)
}

func (f *fakeMedia) Concat(_ context.Context, opts ffmpeg.ConcatOptions) error {
	var total float64
	f.mu.Lock()
	f.copyInputs = append([]string(nil), opts.Inputs...)
	for _, in := range opts.Inputs {
		total += f.durations[in]
	}
	f.mu.Unlock()
	return f.writeOutput(opts.Output, total)
}

func (f *fakeMedia) ConcatFilter(_ context.Context, opts ffmpeg.FilterConcatOptions) error {
	var total float64
	for _, p := range opts.Parts {
		total += p.Duration
	}
	total -= float64(len(opts.Parts)-1) * opts.Crossfade
	f.mu.Lock()
	f.filter = &opts
	f.mu.Unlock()
	return f.writeOutput(opts.Output, total)
}

func cutPlan(ranges ...[2]float64) timeline.CutPlan {
	plan := timeline.CutPlan{Source: sourcePath, Transition: timeline.TransitionNone}
	for i, r := range ranges {
		plan.Entries = append(plan.Entries, timeline.Entry{Index: i, SourceStart: r[0], SourceEnd: r[1], TransitionBefore: timeline.TransitionNone})
	}
	return plan
}

func newStitcher(t *testing.T, media Media) (*Stitcher, string) {
	t.Helper()
	work := t.TempDir()
	cfg := DefaultConfig()
	cfg.WorkDir = work
	return New(zerolog.Nop(), media, cfg), work
}

func assertWorkDirClean(t *testing.T, work string) {
	t.Helper()
	left, err := filepath.Glob(filepath.Join(work, "reelforge-*"))
	require.NoError(t, err)
	assert.Empty(t, left, "scratch directory should be removed")
}

func TestDecide(t *testing.T) {
	tol := 1.0 / 30
	cases := []struct {
		name      string
		keyframes []float64
		start     float64
		want      Decision
	}{
		{"exact keyframe", []float64{9, 10, 11}, 10, Decision{ModeCopy, 10}},
		{"within one frame after", []float64{10}, 10.02, Decision{ModeCopy, 10}},
		{"within one frame before", []float64{10.03}, 10, Decision{ModeCopy, 10.03}},
		{"two frames off", []float64{10}, 10 + 2.0/30, Decision{ModeReencode, 10 + 2.0/30}},
		{"no keyframes", nil, 4, Decision{ModeReencode, 4}},
		{"nearest wins", []float64{4.98, 5.01}, 5, Decision{ModeCopy, 5.01}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Decide(tc.keyframes, tc.start, tol)
			assert.Equal(t, tc.want.Mode, got.Mode)
			assert.InDelta(t, tc.want.Start, got.Start, 1e-9)
		})
	}
}

func TestStitchFastPathWhenAllCopied(t *testing.T) {
	media := newFakeMedia()
	s, work := newStitcher(t, media)
	out := filepath.Join(t.TempDir(), "highlights.mp4")

	var progress []int
	var mu sync.Mutex
	art, err := s.Stitch(context.Background(), cutPlan([2]float64{2, 5}, [2]float64{10, 14}, [2]float64{20, 23}), out,
		func(done, total int) {
			mu.Lock()
			progress = append(progress, done)
			mu.Unlock()
			assert.Equal(t, 3, total)
		})
	require.NoError(t, err)

	assert.Equal(t, StrategyCopy, art.Strategy)
	assert.Equal(t, []Mode{ModeCopy, ModeCopy, ModeCopy}, art.Modes)
	assert.Equal(t, 3, art.CopiedSegments())
	assert.InDelta(t, 10.0, art.Duration, 1e-9)
	assert.Nil(t, media.filter)
	assert.ElementsMatch(t, []int{1, 2, 3}, progress)

	assert.FileExists(t, out)
	assert.NoFileExists(t, partialPath(out))
	assertWorkDirClean(t, work)
}

func TestStitchOffKeyframeFallsBackToReencode(t *testing.T) {
	media := newFakeMedia()
	s, _ := newStitcher(t, media)
	out := filepath.Join(t.TempDir(), "highlights.mp4")

	art, err := s.Stitch(context.Background(), cutPlan([2]float64{2, 5}, [2]float64{10 + 2.0/30, 14}, [2]float64{20, 23}), out, nil)
	require.NoError(t, err)

	assert.Equal(t, []Mode{ModeCopy, ModeReencode, ModeCopy}, art.Modes)
	assert.Equal(t, StrategyFilter, art.Strategy)
	require.NotNil(t, media.filter)
	assert.Equal(t, 1280, media.filter.Width)
	assert.Equal(t, 720, media.filter.Height)
	assert.Equal(t, 30.0, media.filter.FPS)
	assert.Zero(t, media.filter.Crossfade)
	assert.Equal(t, []bool{false}, media.extracts["segment_001.mp4"])
}

func TestStitchKeepsChronologicalOrder(t *testing.T) {
	media := newFakeMedia()
	media.delay = true
	s, _ := newStitcher(t, media)
	out := filepath.Join(t.TempDir(), "highlights.mp4")

	_, err := s.Stitch(context.Background(), cutPlan([2]float64{1, 3}, [2]float64{5, 7}, [2]float64{9, 11}, [2]float64{13, 15}), out, nil)
	require.NoError(t, err)

	require.Len(t, media.copyInputs, 4)
	for i, in := range media.copyInputs {
		assert.True(t, strings.HasSuffix(in, []string{"000", "001", "002", "003"}[i]+".mp4"), in)
	}
}

func TestStitchRetriesWithReencode(t *testing.T) {
	media := newFakeMedia()
	media.failures["segment_001.mp4"] = 1
	s, _ := newStitcher(t, media)
	out := filepath.Join(t.TempDir(), "highlights.mp4")

	art, err := s.Stitch(context.Background(), cutPlan([2]float64{2, 5}, [2]float64{10, 14}), out, nil)
	require.NoError(t, err)

	assert.Equal(t, []bool{true, false}, media.extracts["segment_001.mp4"])
	assert.Equal(t, []int{1}, art.Retried)
	assert.Equal(t, []Mode{ModeCopy, ModeReencode}, art.Modes)
	assert.Equal(t, StrategyFilter, art.Strategy)
}

func TestStitchExtractionFailure(t *testing.T) {
	media := newFakeMedia()
	media.failures["segment_001.mp4"] = 2
	s, work := newStitcher(t, media)
	out := filepath.Join(t.TempDir(), "highlights.mp4")

	_, err := s.Stitch(context.Background(), cutPlan([2]float64{2, 5}, [2]float64{10, 14}), out, nil)
	require.Error(t, err)

	assert.True(t, errors.Is(err, faults.ErrExtractionFailure))
	var fe *faults.Error
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 1, fe.Segment)
	assert.Equal(t, faults.StageAssemble, fe.Stage)
	assert.NoFileExists(t, out)
	assertWorkDirClean(t, work)
}

func TestStitchConcatenationFailureKeepsSegments(t *testing.T) {
	media := newFakeMedia()
	media.concatErr = errors.New("muxer error")
	s, work := newStitcher(t, media)
	out := filepath.Join(t.TempDir(), "highlights.mp4")

	_, err := s.Stitch(context.Background(), cutPlan([2]float64{2, 5}, [2]float64{10, 14}), out, nil)
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrConcatenationFailure))

	var fe *faults.Error
	require.True(t, errors.As(err, &fe))
	require.Len(t, fe.Succeeded, 2)
	for _, p := range fe.Succeeded {
		assert.FileExists(t, p)
	}
	assert.NoFileExists(t, out)
	assert.NoFileExists(t, partialPath(out))
	assertWorkDirClean(t, work)
}

func TestStitchRejectsTinyOutput(t *testing.T) {
	media := newFakeMedia()
	media.outputSize = 500
	s, _ := newStitcher(t, media)
	out := filepath.Join(t.TempDir(), "highlights.mp4")

	_, err := s.Stitch(context.Background(), cutPlan([2]float64{2, 5}), out, nil)
	assert.True(t, errors.Is(err, faults.ErrConcatenationFailure))
	assert.NoFileExists(t, out)
}

func TestStitchCrossfadeClampsBlend(t *testing.T) {
	media := newFakeMedia()
	s, _ := newStitcher(t, media)
	out := filepath.Join(t.TempDir(), "highlights.mp4")

	plan := cutPlan([2]float64{2, 5}, [2]float64{10, 10.6})
	plan.Transition = timeline.TransitionCrossfade
	plan.TransitionSeconds = 0.5

	art, err := s.Stitch(context.Background(), plan, out, nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyCrossfade, art.Strategy)
	require.NotNil(t, media.filter)
	assert.InDelta(t, 0.3, media.filter.Crossfade, 1e-9)
	assert.InDelta(t, 3.3, art.Duration, 1e-9)
}

func TestStitchWithIntro(t *testing.T) {
	media := newFakeMedia()
	s, _ := newStitcher(t, media)
	dir := t.TempDir()
	intro := filepath.Join(dir, "intro.mp4")
	require.NoError(t, os.WriteFile(intro, make([]byte, 2048), 0644))
	media.durations[intro] = 2

	plan := cutPlan([2]float64{2, 5})
	plan.Intro = &timeline.IntroRef{Path: intro, Duration: 2}

	art, err := s.Stitch(context.Background(), plan, filepath.Join(dir, "out.mp4"), nil)
	require.NoError(t, err)
	assert.True(t, art.HasIntro)
	assert.Equal(t, StrategyFilter, art.Strategy)
	require.Len(t, media.filter.Parts, 2)
	assert.Equal(t, intro, media.filter.Parts[0].Path)
	assert.InDelta(t, 5.0, art.Duration, 1e-9)
}

func TestStitchSkipsBrokenIntro(t *testing.T) {
	media := newFakeMedia()
	s, _ := newStitcher(t, media)
	dir := t.TempDir()

	plan := cutPlan([2]float64{2, 5})
	plan.Intro = &timeline.IntroRef{Path: filepath.Join(dir, "missing.mp4")}

	art, err := s.Stitch(context.Background(), plan, filepath.Join(dir, "out.mp4"), nil)
	require.NoError(t, err)
	assert.False(t, art.HasIntro)
	assert.Len(t, art.Warnings, 1)
	assert.Equal(t, StrategyCopy, art.Strategy)
}

func TestStitchNormalizedOutputUsesFilter(t *testing.T) {
	media := newFakeMedia()
	s, _ := newStitcher(t, media)

	plan := cutPlan([2]float64{2, 5}, [2]float64{10, 14})
	plan.Resolution = timeline.Resolution{Width: 640, Height: 360}

	art, err := s.Stitch(context.Background(), plan, filepath.Join(t.TempDir(), "out.mp4"), nil)
	require.NoError(t, err)
	assert.Equal(t, StrategyFilter, art.Strategy)
	assert.Equal(t, 640, media.filter.Width)
	assert.Equal(t, 360, media.filter.Height)
}

func TestStitchSourceUnreadable(t *testing.T) {
	s, _ := newStitcher(t, newFakeMedia())
	plan := cutPlan([2]float64{2, 5})
	plan.Source = "/videos/missing.mp4"

	_, err := s.Stitch(context.Background(), plan, filepath.Join(t.TempDir(), "out.mp4"), nil)
	assert.True(t, errors.Is(err, faults.ErrSourceUnreadable))
}

func TestStitchCancelled(t *testing.T) {
	media := newFakeMedia()
	media.delay = true
	s, work := newStitcher(t, media)
	out := filepath.Join(t.TempDir(), "out.mp4")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Stitch(ctx, cutPlan([2]float64{2, 5}, [2]float64{10, 14}), out, nil)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, out)
	assertWorkDirClean(t, work)
}

func TestChooseStrategySignatureMismatch(t *testing.T) {
	media := newFakeMedia()
	a := media.info("a.mp4", 3)
	b := media.info("b.mp4", 3)
	b.Width = 1920

	plan := cutPlan([2]float64{0, 3}, [2]float64{5, 8})
	parts := []part{{mode: ModeCopy, info: a}, {mode: ModeCopy, info: b}}
	assert.Equal(t, StrategyFilter, chooseStrategy(plan, parts, false))

	parts[1].info = media.info("b.mp4", 3)
	assert.Equal(t, StrategyCopy, chooseStrategy(plan, parts, false))

	plan.Transition = timeline.TransitionCut
	assert.Equal(t, StrategyFilter, chooseStrategy(plan, parts, false))
}

func TestPartialPath(t *testing.T) {
	assert.Equal(t, "/out/h.partial.mp4", partialPath("/out/h.mp4"))
}
