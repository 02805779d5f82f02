// Package scoring grades a sung response against a target chord.
//
// Each sung pitch, taken in the order it was sung, is compared with the
// target pitches not yet claimed. The first unclaimed target closer than
// MatchTolerance is claimed and earns MatchReward; a sung pitch that claims
// nothing costs MissPenalty. The total is floored at zero, so a score always
// lies in [0, chord size].
//
// The search takes the first qualifying target in the working list's order,
// not the nearest one. Changing that would shift historical score
// distributions.
package scoring

import "math"

const (
	// MatchTolerance is the exclusive bound, in semitones, for a sung pitch to count as a target pitch.
	MatchTolerance = 0.5
	// MatchReward is earned once per claimed target pitch.
	MatchReward = 1.0
	// MissPenalty is charged for each sung pitch that claims no target.
	MissPenalty = 0.5
)

// Match records the outcome for one sung pitch.
type Match struct {
	Sung float64 `json:"sung"`
	// TargetIndex is the claimed pitch's index in the original chord, or -1 on a miss.
	TargetIndex int     `json:"target_index"`
	Target      float64 `json:"target,omitempty"`
	Delta       float64 `json:"delta"`
	Running     float64 `json:"running"`
}

// Matched reports whether the sung pitch claimed a target.
func (m Match) Matched() bool {
	return m.TargetIndex >= 0
}

// Breakdown is the full trace of a scoring pass.
type Breakdown struct {
	Score float64 `json:"score"`
	// Raw is the accumulated total before the zero floor.
	Raw     float64 `json:"raw"`
	Matches []Match `json:"matches"`
	// Unclaimed lists indices of target pitches no sung pitch claimed.
	Unclaimed []int `json:"unclaimed"`
	Hits      int   `json:"hits"`
	Misses    int   `json:"misses"`
	MaxScore  int   `json:"max_score"`
}

// Evaluate scores response against target and returns the full trace.
func Evaluate(target Chord, response []float64) (Breakdown, error) {
	if target.IsZero() {
		return Breakdown{}, ErrEmptyChord
	}
	if err := validatePitches("response", response); err != nil {
		return Breakdown{}, err
	}

	// remaining holds indices into target.pitches; claiming deletes one entry
	remaining := make([]int, target.Len())
	for i := range remaining {
		remaining[i] = i
	}

	b := Breakdown{
		Matches:  make([]Match, 0, len(response)),
		MaxScore: target.Len(),
	}

	total := 0.0
	for _, sung := range response {
		m := Match{Sung: sung, TargetIndex: -1}

		for pos, idx := range remaining {
			if math.Abs(sung-target.pitches[idx]) < MatchTolerance {
				m.TargetIndex = idx
				m.Target = target.pitches[idx]
				remaining = append(remaining[:pos], remaining[pos+1:]...)
				break
			}
		}

		if m.Matched() {
			m.Delta = MatchReward
			b.Hits++
		} else {
			m.Delta = -MissPenalty
			b.Misses++
		}
		total += m.Delta
		m.Running = total
		b.Matches = append(b.Matches, m)
	}

	b.Raw = total
	b.Score = math.Max(0, total)
	b.Unclaimed = remaining
	return b, nil
}

// ScoreResponse returns the bounded score for response against target.
func ScoreResponse(target Chord, response []float64) (float64, error) {
	b, err := Evaluate(target, response)
	if err != nil {
		return 0, err
	}
	return b.Score, nil
}

// Score builds a chord from raw target pitches and scores response against it.
func Score(target, response []float64) (float64, error) {
	chord, err := NewChord(target)
	if err != nil {
		return 0, err
	}
	return ScoreResponse(chord, response)
}
