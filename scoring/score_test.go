package scoring

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScore(t *testing.T) {
	tests := []struct {
		name     string
		target   []float64
		response []float64
		want     float64
	}{
		{"exact rendition", []float64{60, 64}, []float64{60, 64}, 2},
		{"one wrong note", []float64{60, 64}, []float64{60, 65}, 0.5},
		{"only a wrong note floors at zero", []float64{60, 64}, []float64{61}, 0},
		{"one of two notes", []float64{60, 64}, []float64{60}, 1},
		{"same note twice", []float64{60, 64}, []float64{60, 60}, 0.5},
		{"nothing sung", []float64{60}, nil, 0},
		{"within tolerance plus an outlier", []float64{60, 64, 67}, []float64{60.4, 64.1, 100}, 1.5},
		{"exact half semitone above is a miss", []float64{60, 64}, []float64{60, 64.5}, 0.5},
		{"exact half semitone below is a miss", []float64{60, 64}, []float64{59.5, 64}, 0.5},
		{"just inside tolerance", []float64{60}, []float64{60.49}, 1},
		{"order of singing does not matter for distinct notes", []float64{60, 64, 67}, []float64{67, 60, 64}, 3},
		{"fractional roved chord", []float64{60.3, 63.8}, []float64{60.1, 64.2}, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Score(tt.target, tt.response)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFirstFoundNotNearest(t *testing.T) {
	// 60.3 is within tolerance of both 60 and 60.4; the first in list order is claimed.
	chord := MustChord(60, 60.4)
	b, err := Evaluate(chord, []float64{60.3, 60.6})
	require.NoError(t, err)

	assert.Equal(t, 0, b.Matches[0].TargetIndex)
	assert.Equal(t, 1, b.Matches[1].TargetIndex)
	assert.Equal(t, 2.0, b.Score)

	// With the remaining order swapped the first sung pitch claims 60.4 and
	// the second (60.6) can no longer reach 60.
	swapped := MustChord(60.4, 60)
	b, err = Evaluate(swapped, []float64{60.3, 60.6})
	require.NoError(t, err)
	assert.Equal(t, 0, b.Matches[0].TargetIndex)
	assert.False(t, b.Matches[1].Matched())
	assert.Equal(t, 0.5, b.Score)
}

func TestEvaluateBreakdown(t *testing.T) {
	chord := MustChord(60, 64, 67)
	b, err := Evaluate(chord, []float64{64.2, 70, 64.1})
	require.NoError(t, err)

	assert.Equal(t, 1, b.Hits)
	assert.Equal(t, 2, b.Misses)
	assert.Equal(t, 0.0, b.Raw)
	assert.Equal(t, 0.0, b.Score)
	assert.Equal(t, []int{0, 2}, b.Unclaimed)
	assert.Equal(t, 3, b.MaxScore)

	require.Len(t, b.Matches, 3)
	assert.Equal(t, 1, b.Matches[0].TargetIndex)
	assert.Equal(t, 64.0, b.Matches[0].Target)
	assert.Equal(t, 1.0, b.Matches[0].Running)
	assert.Equal(t, 0.5, b.Matches[1].Running)
	assert.Equal(t, 0.0, b.Matches[2].Running)
}

func TestRawCanGoNegative(t *testing.T) {
	b, err := Evaluate(MustChord(60), []float64{70, 71, 72})
	require.NoError(t, err)
	assert.Equal(t, -1.5, b.Raw)
	assert.Equal(t, 0.0, b.Score)
}

func TestInvalidInputs(t *testing.T) {
	_, err := Score(nil, []float64{60})
	assert.ErrorIs(t, err, ErrEmptyChord)

	_, err = ScoreResponse(Chord{}, []float64{60})
	assert.ErrorIs(t, err, ErrEmptyChord)

	_, err = Score([]float64{60, math.NaN()}, []float64{60})
	assert.ErrorIs(t, err, ErrInvalidPitch)
	assert.Contains(t, err.Error(), "target[1]")

	_, err = Score([]float64{60}, []float64{math.Inf(1)})
	assert.ErrorIs(t, err, ErrInvalidPitch)
	assert.Contains(t, err.Error(), "response[0]")
}

func TestChordIsNotMutated(t *testing.T) {
	pitches := []float64{60, 64, 67}
	chord, err := NewChord(pitches)
	require.NoError(t, err)

	pitches[0] = 0
	_, err = ScoreResponse(chord, []float64{60, 64, 67})
	require.NoError(t, err)

	assert.Equal(t, []float64{60, 64, 67}, chord.Pitches())
}

func TestTranspose(t *testing.T) {
	chord := MustChord(60, 64, 67)
	roved, err := chord.Transpose(-2.5)
	require.NoError(t, err)
	assert.Equal(t, []float64{57.5, 61.5, 64.5}, roved.Pitches())

	_, err = chord.Transpose(math.NaN())
	assert.ErrorIs(t, err, ErrInvalidPitch)
}

func TestInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		n := 1 + rng.Intn(5)
		target := make([]float64, n)
		for j := range target {
			target[j] = 48 + rng.Float64()*24
		}
		response := make([]float64, rng.Intn(8))
		for j := range response {
			response[j] = 48 + rng.Float64()*24
		}

		chord := MustChord(target...)
		got, err := ScoreResponse(chord, response)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, got, 0.0)
		assert.LessOrEqual(t, got, float64(n))

		again, err := ScoreResponse(chord, response)
		require.NoError(t, err)
		assert.Equal(t, got, again, "scoring must be idempotent")

		empty, err := ScoreResponse(chord, nil)
		require.NoError(t, err)
		assert.Equal(t, 0.0, empty)
	}
}

func TestExactRenditionScoresFullMarks(t *testing.T) {
	rng := rand.New(rand.NewSource(11))

	for i := 0; i < 200; i++ {
		// pitches on a 0.5 semitone grid with distinct values are pairwise >= 0.5 apart
		perm := rng.Perm(48)
		n := 1 + rng.Intn(6)
		target := make([]float64, n)
		for j := range target {
			target[j] = 48 + float64(perm[j])*0.5
		}

		got, err := Score(target, target)
		require.NoError(t, err)
		assert.Equal(t, float64(n), got)

		// target order does not matter for well-separated chords
		reversed := make([]float64, n)
		for j := range target {
			reversed[n-1-j] = target[j]
		}
		got, err = Score(reversed, target)
		require.NoError(t, err)
		assert.Equal(t, float64(n), got)
	}
}

func TestEachTargetClaimedAtMostOnce(t *testing.T) {
	// both sung pitches are near the single target; only one can claim it
	got, err := Score([]float64{60}, []float64{60.1, 59.9})
	require.NoError(t, err)
	assert.Equal(t, 0.5, got)
}
