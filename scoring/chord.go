package scoring

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

var (
	// ErrEmptyChord is returned when a target chord has no pitches.
	ErrEmptyChord = errors.New("target chord has no pitches")
	// ErrInvalidPitch is returned for NaN or infinite pitch values.
	ErrInvalidPitch = errors.New("invalid pitch value")
)

// Chord is an immutable multiset of target pitches on the MIDI semitone scale.
// Fractional values are allowed (roved/transposed chords). Insertion order is
// kept but carries no meaning for matching.
type Chord struct {
	pitches []float64
}

// NewChord validates and copies pitches into a Chord.
func NewChord(pitches []float64) (Chord, error) {
	if len(pitches) == 0 {
		return Chord{}, ErrEmptyChord
	}
	if err := validatePitches("target", pitches); err != nil {
		return Chord{}, err
	}
	return Chord{pitches: slices.Clone(pitches)}, nil
}

// MustChord is NewChord that panics on invalid input. Intended for fixtures.
func MustChord(pitches ...float64) Chord {
	c, err := NewChord(pitches)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the chord's cardinality, which is also the maximum score.
func (c Chord) Len() int {
	return len(c.pitches)
}

// Pitches returns a copy of the chord's pitches in insertion order.
func (c Chord) Pitches() []float64 {
	return slices.Clone(c.pitches)
}

// Transpose returns a new chord shifted by offset semitones (roving).
func (c Chord) Transpose(offset float64) (Chord, error) {
	if math.IsNaN(offset) || math.IsInf(offset, 0) {
		return Chord{}, fmt.Errorf("%w: transposition offset %v", ErrInvalidPitch, offset)
	}
	shifted := make([]float64, len(c.pitches))
	for i, p := range c.pitches {
		shifted[i] = p + offset
	}
	return NewChord(shifted)
}

// IsZero reports whether c was never initialised through NewChord.
func (c Chord) IsZero() bool {
	return len(c.pitches) == 0
}

func validatePitches(input string, pitches []float64) error {
	for i, p := range pitches {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return fmt.Errorf("%w: %s[%d] = %v", ErrInvalidPitch, input, i, p)
		}
	}
	return nil
}
