package signals

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeMinMaxPerSignal(t *testing.T) {
	audio := TimeSignal{Source: SourceAudio, Intervals: []Interval{
		{Start: 0, End: 2, Score: -30},
		{Start: 5, End: 6, Score: -10},
		{Start: 8, End: 9, Score: -20},
	}}
	scene := TimeSignal{Source: SourceScene, Intervals: []Interval{
		{Start: 1, End: 3, Score: 0.4},
		{Start: 4, End: 5, Score: 0.8},
	}}

	out := Normalize(audio, scene)
	require.Len(t, out, 5)

	assert.Equal(t, 0.0, out[0].Score)
	assert.Equal(t, 1.0, out[1].Score)
	assert.InDelta(t, 0.5, out[2].Score, 1e-9)
	assert.Equal(t, SourceAudio, out[2].Source)

	assert.Equal(t, 0.0, out[3].Score)
	assert.Equal(t, 1.0, out[4].Score)
	assert.Equal(t, SourceScene, out[4].Source)
}

func TestNormalizeEqualScoresMapToOne(t *testing.T) {
	sig := TimeSignal{Source: SourceAction, Intervals: []Interval{
		{Start: 0, End: 1, Score: 7},
		{Start: 3, End: 4, Score: 7},
	}}
	out := Normalize(sig)
	require.Len(t, out, 2)
	for _, n := range out {
		assert.Equal(t, 1.0, n.Score)
	}
}

func TestNormalizeEmptyAndMalformed(t *testing.T) {
	assert.Empty(t, Normalize())
	assert.Empty(t, Normalize(TimeSignal{Source: SourceAudio}))

	sig := TimeSignal{Source: SourceScene, Intervals: []Interval{
		{Start: 4, End: 4, Score: 1},
		{Start: 5, End: 3, Score: 1},
		{Start: 1, End: 2, Score: math.NaN()},
		{Start: 6, End: 8, Score: 0.2},
	}}
	out := Normalize(sig)
	require.Len(t, out, 1)
	assert.Equal(t, 6.0, out[0].Start)
	assert.Equal(t, 1.0, out[0].Score)
}

func TestTimeSignalValidate(t *testing.T) {
	ok := TimeSignal{Source: SourceAudio, Intervals: []Interval{{Start: 0, End: 10, Score: 1}}}
	assert.NoError(t, ok.Validate(10))
	assert.Error(t, ok.Validate(9))
	assert.NoError(t, ok.Validate(0))

	bad := TimeSignal{Source: SourceAudio, Intervals: []Interval{{Start: 3, End: 3}}}
	assert.Error(t, bad.Validate(10))
}

func TestRank(t *testing.T) {
	assert.Less(t, Rank(SourceScene), Rank(SourceAudio))
	assert.Less(t, Rank(SourceAudio), Rank(SourceAction))
	assert.Equal(t, len(Priority), Rank(Source("crowd")))
	assert.False(t, Source("crowd").IsKnown())
}
