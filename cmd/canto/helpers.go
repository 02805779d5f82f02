package main

import (
	"fmt"
	"strconv"
	"strings"
)

// parsePitches reads a comma or space separated list of MIDI pitches.
func parsePitches(raw string) ([]float64, error) {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	pitches := make([]float64, 0, len(fields))
	for _, f := range fields {
		p, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid pitch %q: %w", f, err)
		}
		pitches = append(pitches, p)
	}
	return pitches, nil
}

func formatPitches(pitches []float64) string {
	if len(pitches) == 0 {
		return "-"
	}
	parts := make([]string, len(pitches))
	for i, p := range pitches {
		parts[i] = strconv.FormatFloat(p, 'f', 2, 64)
	}
	return strings.Join(parts, " ")
}

func formatScore(v float64) string {
	return strconv.FormatFloat(v, 'f', 1, 64)
}
