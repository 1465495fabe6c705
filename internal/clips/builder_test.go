package clips

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/keagan/reelforge/internal/signals"
)

func ni(start, end, score float64, src signals.Source) signals.NormalizedInterval {
	return signals.NormalizedInterval{Start: start, End: end, Score: score, Source: src}
}

func testConfig() BuilderConfig {
	cfg := DefaultBuilderConfig()
	cfg.MinLength = 2
	cfg.MaxLength = 20
	cfg.MaxExtension = 2
	return cfg
}

func TestBuildMergesWithinClusterGap(t *testing.T) {
	cfg := testConfig()
	out := Build([]signals.NormalizedInterval{
		ni(0, 3, 0.5, signals.SourceAudio),
		ni(3.5, 6, 0.5, signals.SourceAudio),
		ni(10, 13, 0.5, signals.SourceAudio),
	}, cfg)

	require.Len(t, out, 2)
	assert.Equal(t, 0.0, out[0].Start)
	assert.Equal(t, 6.0, out[0].End)
	assert.InDelta(t, 1.0, out[0].Score, 1e-9)
	assert.Equal(t, 10.0, out[1].Start)
}

func TestBuildAgreementBonusOutranksSingleSource(t *testing.T) {
	cfg := testConfig()
	cfg.ClusterGap = 0.5

	out := Build([]signals.NormalizedInterval{
		ni(0, 4, 0.6, signals.SourceScene),
		ni(0, 4, 0.6, signals.SourceAudio),
		ni(10, 14, 0.6, signals.SourceScene),
	}, cfg)

	require.Len(t, out, 2)
	multi, single := out[0], out[1]
	assert.Equal(t, []signals.Source{signals.SourceScene, signals.SourceAudio}, multi.Sources)
	assert.Equal(t, []signals.Source{signals.SourceScene}, single.Sources)
	assert.InDelta(t, (0.6+0.6)*1.25, multi.Score, 1e-9)
	assert.Greater(t, multi.Score, single.Score)
	assert.Greater(t, multi.Value(), single.Value())
}

func TestBuildAgreementBonusWithoutExtraMass(t *testing.T) {
	// One source flagging the same region twice must not beat two sources
	// flagging it once each.
	cfg := testConfig()
	out := Build([]signals.NormalizedInterval{
		ni(0, 4, 0.5, signals.SourceAudio),
		ni(0, 4, 0.5, signals.SourceAction),
		ni(20, 24, 0.5, signals.SourceAudio),
		ni(20, 24, 0.5, signals.SourceAudio),
	}, cfg)
	require.Len(t, out, 2)
	assert.Greater(t, out[0].Score, out[1].Score)
}

func TestBuildSourceWeights(t *testing.T) {
	cfg := testConfig()
	cfg.Weights = map[signals.Source]float64{signals.SourceAction: 2, signals.SourceScene: 0.5}

	out := Build([]signals.NormalizedInterval{
		ni(0, 3, 1, signals.SourceScene),
		ni(10, 13, 1, signals.SourceAction),
		ni(20, 23, 1, signals.SourceAudio),
	}, cfg)
	require.Len(t, out, 3)
	assert.InDelta(t, 0.5, out[0].Score, 1e-9)
	assert.InDelta(t, 2.0, out[1].Score, 1e-9)
	assert.InDelta(t, 1.0, out[2].Score, 1e-9)
}

func TestBuildNoPartialOverlapsSurvive(t *testing.T) {
	cfg := testConfig()
	cfg.ClusterGap = 0

	out := Build([]signals.NormalizedInterval{
		ni(0, 5, 0.3, signals.SourceAudio),
		ni(4, 9, 0.3, signals.SourceScene),
		ni(9, 12, 0.3, signals.SourceAction),
	}, cfg)

	require.Len(t, out, 2)
	assert.Equal(t, 0.0, out[0].Start)
	assert.Equal(t, 9.0, out[0].End)
	assert.Equal(t, 9.0, out[1].Start)
	for i := 1; i < len(out); i++ {
		assert.False(t, out[i-1].Overlaps(out[i]))
	}
}

func TestBuildExtendsShortCandidates(t *testing.T) {
	cfg := testConfig()
	cfg.MinLength = 4
	cfg.MaxExtension = 2
	cfg.SourceDuration = 30

	out := Build([]signals.NormalizedInterval{
		ni(10, 12.5, 0.8, signals.SourceAudio),
	}, cfg)
	require.Len(t, out, 1)
	assert.InDelta(t, 9.25, out[0].Start, 1e-9)
	assert.InDelta(t, 13.25, out[0].End, 1e-9)

	// clamped at the start of the source
	out = Build([]signals.NormalizedInterval{ni(0, 3, 0.8, signals.SourceAudio)}, cfg)
	require.Len(t, out, 1)
	assert.Equal(t, 0.0, out[0].Start)
	assert.InDelta(t, 4.0, out[0].End, 1e-9)

	// clamped at the end of the source
	out = Build([]signals.NormalizedInterval{ni(27.5, 30, 0.8, signals.SourceAudio)}, cfg)
	require.Len(t, out, 1)
	assert.InDelta(t, 26.0, out[0].Start, 1e-9)
	assert.Equal(t, 30.0, out[0].End)
}

func TestBuildDropsShortCandidates(t *testing.T) {
	cfg := testConfig()
	cfg.MinLength = 4
	cfg.MaxExtension = 1

	// needs 3s of extension, cap is 1s
	out := Build([]signals.NormalizedInterval{ni(10, 11, 1, signals.SourceScene)}, cfg)
	assert.Empty(t, out)

	// extension would overlap the neighbour
	cfg.MaxExtension = 2
	cfg.ClusterGap = 0.5
	out = Build([]signals.NormalizedInterval{
		ni(0, 6, 0.5, signals.SourceAudio),
		ni(6.6, 9, 0.5, signals.SourceScene),
		ni(9.6, 16, 0.5, signals.SourceAction),
	}, cfg)
	require.Len(t, out, 2)
	assert.Equal(t, 0.0, out[0].Start)
	assert.Equal(t, 9.6, out[1].Start)
}

func TestBuildSplitsLongClusters(t *testing.T) {
	cfg := testConfig()
	cfg.MaxLength = 10

	out := Build([]signals.NormalizedInterval{
		ni(0, 12, 0.5, signals.SourceAudio),
		ni(12, 25, 0.5, signals.SourceScene),
	}, cfg)

	require.Len(t, out, 3)
	for _, c := range out {
		assert.LessOrEqual(t, c.Duration(), 10.0+1e-9)
		assert.GreaterOrEqual(t, c.Duration(), cfg.MinLength)
	}
	assert.Equal(t, []signals.Source{signals.SourceAudio}, out[0].Sources)
	assert.Equal(t, []signals.Source{signals.SourceScene, signals.SourceAudio}, out[1].Sources)
	assert.InDelta(t, 25.0, out[2].End, 1e-9)
}

func TestBuildDeterministic(t *testing.T) {
	cfg := testConfig()
	in := []signals.NormalizedInterval{
		ni(5, 8, 0.2, signals.SourceAction),
		ni(5, 7, 0.9, signals.SourceScene),
		ni(30, 33, 0.4, signals.SourceAudio),
		ni(5, 6, 0.1, signals.SourceAudio),
	}
	first := Build(in, cfg)
	second := Build(in, cfg)
	assert.Equal(t, first, second)
	require.Len(t, first, 2)
	assert.Equal(t, []signals.Source{signals.SourceScene, signals.SourceAudio, signals.SourceAction}, first[0].Sources)
}

func TestBuildEmpty(t *testing.T) {
	assert.Empty(t, Build(nil, DefaultBuilderConfig()))
}
