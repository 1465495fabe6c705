package detectors

import (
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/keagan/reelforge/internal/config"
	"github.com/keagan/reelforge/internal/faults"
	"github.com/keagan/reelforge/internal/ffmpeg"
	"github.com/keagan/reelforge/internal/signals"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeScenes struct {
	changes []ffmpeg.SceneChange
	err     error
	gotThr  float64
}

func (f *fakeScenes) DetectScenes(_ context.Context, _ string, threshold float64) ([]ffmpeg.SceneChange, error) {
	f.gotThr = threshold
	return f.changes, f.err
}

type fakeLoudness struct {
	samples []ffmpeg.LoudnessSample
	err     error
}

func (f *fakeLoudness) LoudnessWindows(context.Context, string, float64) ([]ffmpeg.LoudnessSample, error) {
	return f.samples, f.err
}

// fakeFrames writes one flat grey JPEG per entry in levels
type fakeFrames struct {
	levels []uint8
	dir    string
}

func (f *fakeFrames) ExtractFrames(_ context.Context, _ string, dir string, _ float64, w, h int) ([]string, error) {
	f.dir = dir
	var paths []string
	for i, lvl := range f.levels {
		img := image.NewGray(image.Rect(0, 0, w, h))
		for p := range img.Pix {
			img.Pix[p] = lvl
		}
		path := filepath.Join(dir, fmt.Sprintf("frame_%06d.jpg", i+1))
		file, err := os.Create(path)
		if err != nil {
			return nil, err
		}
		err = jpeg.Encode(file, img, &jpeg.Options{Quality: 100})
		file.Close()
		if err != nil {
			return nil, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

type fakeDetector struct {
	src    signals.Source
	sig    signals.TimeSignal
	err    error
	block  bool
	closed bool
}

func (f *fakeDetector) Source() signals.Source { return f.src }

func (f *fakeDetector) Detect(ctx context.Context, _ string, _ float64) (signals.TimeSignal, error) {
	if f.block {
		<-ctx.Done()
		return signals.TimeSignal{}, ctx.Err()
	}
	return f.sig, f.err
}

func (f *fakeDetector) Close() error {
	f.closed = true
	return nil
}

func TestSceneDetectorWindowsClampToSource(t *testing.T) {
	media := &fakeScenes{changes: []ffmpeg.SceneChange{
		{Time: 1, Score: 0.9},
		{Time: 10, Score: 0.5},
		{Time: 19, Score: 0.7},
	}}
	d := NewSceneDetector(zerolog.Nop(), media, DefaultSceneConfig())

	sig, err := d.Detect(context.Background(), "in.mp4", 20)
	require.NoError(t, err)

	assert.Equal(t, 0.4, media.gotThr)
	assert.Equal(t, signals.SourceScene, sig.Source)
	assert.Equal(t, []signals.Interval{
		{Start: 0, End: 4, Score: 0.9},
		{Start: 8, End: 13, Score: 0.5},
		{Start: 17, End: 20, Score: 0.7},
	}, sig.Intervals)
	assert.NoError(t, sig.Validate(20))
}

func TestSceneDetectorError(t *testing.T) {
	d := NewSceneDetector(zerolog.Nop(), &fakeScenes{err: errors.New("boom")}, DefaultSceneConfig())
	_, err := d.Detect(context.Background(), "in.mp4", 0)
	assert.ErrorContains(t, err, "boom")
}

func TestLoudIntervalsMergesAdjacentPeaks(t *testing.T) {
	rms := []float64{-30, -30, -10, -8, -30, -30, ffmpeg.SilenceFloor, -9, -30, -30}
	samples := make([]ffmpeg.LoudnessSample, len(rms))
	for i, v := range rms {
		samples[i] = ffmpeg.LoudnessSample{Start: float64(i), End: float64(i + 1), RMS: v}
	}

	ivs, thr := loudIntervals(samples, 0.5, 9.5)

	require.Len(t, ivs, 2)
	assert.Equal(t, 2.0, ivs[0].Start)
	assert.Equal(t, 4.0, ivs[0].End)
	assert.InDelta(t, -8-thr, ivs[0].Score, 1e-9)
	assert.Equal(t, 7.0, ivs[1].Start)
	assert.Equal(t, 8.0, ivs[1].End)
	assert.Greater(t, thr, -30.0)
	assert.Less(t, thr, -10.0)
}

func TestLoudIntervalsFlatOrSilent(t *testing.T) {
	flat := []ffmpeg.LoudnessSample{{Start: 0, End: 1, RMS: -20}, {Start: 1, End: 2, RMS: -20}, {Start: 2, End: 3, RMS: -20}}
	ivs, _ := loudIntervals(flat, 1, 0)
	assert.Empty(t, ivs)

	silent := []ffmpeg.LoudnessSample{{Start: 0, End: 1, RMS: ffmpeg.SilenceFloor}, {Start: 1, End: 2, RMS: ffmpeg.SilenceFloor}}
	ivs, thr := loudIntervals(silent, 0.5, 0)
	assert.Empty(t, ivs)
	assert.Zero(t, thr)
}

func TestLoudIntervalsSensitivity(t *testing.T) {
	rms := []float64{-30, -25, -20, -15, -10}
	samples := make([]ffmpeg.LoudnessSample, len(rms))
	for i, v := range rms {
		samples[i] = ffmpeg.LoudnessSample{Start: float64(i), End: float64(i + 1), RMS: v}
	}

	strict, _ := loudIntervals(samples, 0, 0)
	loose, _ := loudIntervals(samples, 1, 0)

	var strictLen, looseLen float64
	for _, iv := range strict {
		strictLen += iv.Duration()
	}
	for _, iv := range loose {
		looseLen += iv.Duration()
	}
	assert.Less(t, strictLen, looseLen)
}

func TestAudioDetector(t *testing.T) {
	media := &fakeLoudness{samples: []ffmpeg.LoudnessSample{
		{Start: 0, End: 1, RMS: -40}, {Start: 1, End: 2, RMS: -40}, {Start: 2, End: 3, RMS: -5}, {Start: 3, End: 4, RMS: -40},
	}}
	d := NewAudioDetector(zerolog.Nop(), media, DefaultAudioConfig())

	sig, err := d.Detect(context.Background(), "in.mp4", 4)
	require.NoError(t, err)
	assert.Equal(t, signals.SourceAudio, sig.Source)
	require.Len(t, sig.Intervals, 1)
	assert.Equal(t, 2.0, sig.Intervals[0].Start)
}

func TestConfidentIntervals(t *testing.T) {
	conf := []float64{0, 0.2, 0.8, 0.9, 0.1, 0.6, 1.0}
	ivs := confidentIntervals(conf, 2, 0.5, 3.1)

	require.Len(t, ivs, 2)
	assert.Equal(t, signals.Interval{Start: 0.75, End: 1.75, Score: 0.9}, ivs[0])
	assert.Equal(t, 2.25, ivs[1].Start)
	assert.Equal(t, 3.1, ivs[1].End)
	assert.Equal(t, 1.0, ivs[1].Score)
}

func TestMotionScorerFlagsBrightnessJump(t *testing.T) {
	media := &fakeFrames{levels: []uint8{20, 20, 20, 230, 230, 20}}
	d := NewActionDetector(zerolog.Nop(), media, NewMotionScorer(zerolog.Nop()), ActionConfig{
		Confidence: 0.5,
		SampleFPS:  1,
		TempDir:    t.TempDir(),
	})

	sig, err := d.Detect(context.Background(), "in.mp4", 6)
	require.NoError(t, err)
	assert.Equal(t, signals.SourceAction, sig.Source)

	// frames 3 and 5 change brightness, frame 4 repeats frame 3
	require.Len(t, sig.Intervals, 2)
	assert.Equal(t, 2.5, sig.Intervals[0].Start)
	assert.Equal(t, 3.5, sig.Intervals[0].End)
	assert.Equal(t, 4.5, sig.Intervals[1].Start)
	assert.Equal(t, 5.5, sig.Intervals[1].End)

	_, err = os.Stat(media.dir)
	assert.True(t, os.IsNotExist(err), "frame dir should be removed")
	assert.NoError(t, d.Close())
}

func TestMotionScorerCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewMotionScorer(zerolog.Nop()).Score(ctx, []string{"a.jpg"})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestModelScorerMissingModel(t *testing.T) {
	_, err := NewModelScorer(zerolog.Nop(), filepath.Join(t.TempDir(), "missing.onnx"))
	assert.ErrorContains(t, err, "model file not found")
}

func TestRunAllOneTimeoutIsWarning(t *testing.T) {
	scene := &fakeDetector{src: signals.SourceScene, sig: signals.TimeSignal{
		Intervals: []signals.Interval{{Start: 1, End: 3, Score: 0.8}},
	}}
	audio := &fakeDetector{src: signals.SourceAudio, sig: signals.TimeSignal{
		Intervals: []signals.Interval{{Start: 2, End: 4, Score: 5}},
	}}
	action := &fakeDetector{src: signals.SourceAction, block: true}

	out, err := RunAll(context.Background(), zerolog.Nop(), []Detector{scene, audio, action}, "in.mp4", 10, 50*time.Millisecond)
	require.NoError(t, err)

	require.Len(t, out.Signals, 2)
	assert.Equal(t, signals.SourceScene, out.Signals[0].Source)
	assert.Equal(t, signals.SourceAudio, out.Signals[1].Source)

	require.Len(t, out.Failures, 1)
	assert.True(t, errors.Is(out.Failures[0], faults.ErrDetectorTimeout))
	assert.Equal(t, "action", out.Failures[0].Source)
	assert.Len(t, out.Warnings(), 1)
	assert.Len(t, out.Elapsed, 3)
}

func TestRunAllAllFail(t *testing.T) {
	dets := []Detector{
		&fakeDetector{src: signals.SourceScene, err: errors.New("no video")},
		&fakeDetector{src: signals.SourceAudio, block: true},
	}
	out, err := RunAll(context.Background(), zerolog.Nop(), dets, "in.mp4", 10, 20*time.Millisecond)
	require.Error(t, err)
	assert.True(t, errors.Is(err, faults.ErrDetectorFailure))
	assert.Equal(t, faults.StageDetect, faults.StageOf(err))
	assert.Len(t, out.Failures, 2)
}

func TestRunAllAllTimeouts(t *testing.T) {
	dets := []Detector{&fakeDetector{src: signals.SourceScene, block: true}}
	_, err := RunAll(context.Background(), zerolog.Nop(), dets, "in.mp4", 10, 10*time.Millisecond)
	assert.Equal(t, faults.KindDetectorTimeout, faults.KindOf(err))
}

func TestRunAllRejectsInvalidSignal(t *testing.T) {
	dets := []Detector{
		&fakeDetector{src: signals.SourceScene, sig: signals.TimeSignal{
			Intervals: []signals.Interval{{Start: 5, End: 15, Score: 1}},
		}},
		&fakeDetector{src: signals.SourceAudio},
	}
	out, err := RunAll(context.Background(), zerolog.Nop(), dets, "in.mp4", 10, 0)
	require.NoError(t, err)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, faults.KindDetectorFailure, out.Failures[0].Kind)
	require.Len(t, out.Signals, 1)
	assert.True(t, out.Signals[0].Empty())
}

func TestRunAllParentCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	dets := []Detector{&fakeDetector{src: signals.SourceScene, block: true}}
	_, err := RunAll(ctx, zerolog.Nop(), dets, "in.mp4", 10, time.Second)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRunAllNoDetectors(t *testing.T) {
	_, err := RunAll(context.Background(), zerolog.Nop(), nil, "in.mp4", 10, 0)
	assert.True(t, errors.Is(err, faults.ErrDetectorFailure))
}

func TestFromConfig(t *testing.T) {
	cfg := config.Default().Detectors
	cfg.Enabled = []string{"audio", "scene", "audio"}

	dets, err := FromConfig(zerolog.Nop(), nil, cfg, "")
	require.NoError(t, err)
	require.Len(t, dets, 2)
	assert.Equal(t, signals.SourceAudio, dets[0].Source())
	assert.Equal(t, signals.SourceScene, dets[1].Source())
	assert.NoError(t, CloseAll(dets))

	cfg.Enabled = []string{"scene", "smell"}
	_, err = FromConfig(zerolog.Nop(), nil, cfg, "")
	assert.ErrorContains(t, err, "smell")
}
