// Package notation renders pitch sequences for participant feedback and
// offline listening checks.
package notation

import (
	"fmt"
	"math"
	"strings"
)

// DefaultDuration is the ABC note length used for feedback strings.
const DefaultDuration = 4

// spelling maps a pitch class to its accidental and letter. Flats are used
// for E, A and B; sharps for C and F. Naturals are always explicit.
var spelling = [12]string{
	"=C", "^C", "=D", "_E", "=E", "=F", "^F", "=G", "_A", "=A", "_B", "=B",
}

// ToABC renders pitches (fractional MIDI numbers, rounded to the nearest
// semitone) as space-separated ABC notes of the given length. Octave marks
// are relative to the octave of middle C. An empty sequence renders as a
// rest.
func ToABC(pitches []float64, duration int) string {
	if len(pitches) == 0 {
		return fmt.Sprintf("z%d", duration)
	}

	notes := make([]string, 0, len(pitches))
	for _, p := range pitches {
		notes = append(notes, abcNote(p, duration))
	}
	return strings.Join(notes, " ")
}

func abcNote(pitch float64, duration int) string {
	if math.IsNaN(pitch) || math.IsInf(pitch, 0) {
		return fmt.Sprintf("z%d", duration)
	}

	midi := int(math.Round(pitch))
	class := ((midi % 12) + 12) % 12
	// MIDI 60 is C4
	octave := floorDiv(midi, 12) - 1 - 4

	var b strings.Builder
	b.WriteString(spelling[class])
	switch {
	case octave > 0:
		b.WriteString(strings.Repeat("'", octave))
	case octave < 0:
		b.WriteString(strings.Repeat(",", -octave))
	}
	fmt.Fprintf(&b, "%d", duration)
	return b.String()
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
