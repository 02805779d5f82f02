// Package extraction turns a sung recording into an ordered sequence of
// note pitches in fractional MIDI numbers, plus a JSON diagnostic record
// and a diagnostic image.
package extraction

import (
	"context"
)

// PitchExtractor converts one recording into sung pitches. Implementations
// hold no cross-call state and are safe for concurrent use.
type PitchExtractor interface {
	Extract(ctx context.Context, audioPath, plotPath string) (*Result, error)
}

// Result is the outcome of one extraction. Pitches[i] is the median pitch
// of the i-th accepted note in temporal order; it is empty, never nil, when
// nothing was sung.
type Result struct {
	Pitches []float64  `json:"pitches"`
	Raw     Diagnostic `json:"raw"`
}

// Status values recorded in Diagnostic.Status.
const (
	StatusOK       = "ok"
	StatusTooShort = "too_short"
	StatusSilent   = "silent"
	StatusNoNotes  = "no_notes"
)

// Rejection reasons recorded in Note.Rejection.
const (
	RejectTooShort   = "too_short"
	RejectUnvoiced   = "unvoiced"
	RejectUnstable   = "unstable"
	RejectOutOfRange = "out_of_range"
)

// Diagnostic mirrors the analyser's full output. Every field is a plain
// JSON number, string, bool or array.
type Diagnostic struct {
	ConfigVersion     string `json:"config_version"`
	ConfigFingerprint string `json:"config_fingerprint"`

	Status     string  `json:"status"`
	Decoder    string  `json:"decoder,omitempty"`
	SampleRate int     `json:"sample_rate"`
	DurationMs float64 `json:"duration_ms"`

	Segments int    `json:"segments"`
	Notes    []Note `json:"notes"`
	Rejected []Note `json:"rejected"`

	PlotPath string `json:"plot_path,omitempty"`
}

// Note is one detected syllable.
type Note struct {
	OnsetMs         float64 `json:"onset_ms"`
	OffsetMs        float64 `json:"offset_ms"`
	ExtendedOnsetMs float64 `json:"extended_onset_ms"`
	PeakMs          float64 `json:"peak_ms"`

	MedianPitch float64 `json:"median_pitch"` // MIDI
	MedianHz    float64 `json:"median_hz"`
	PitchStdDev float64 `json:"pitch_std"`
	Confidence  float64 `json:"confidence"` // mean normalised autocorrelation

	VoicedFrames        int       `json:"voiced_frames"`
	FluctuatingFraction float64   `json:"fluctuating_fraction"`
	FramePitches        []float64 `json:"frame_pitches"`

	Rejection string `json:"rejection,omitempty"`
}

// Accepted reports whether the note contributes a pitch.
func (n Note) Accepted() bool {
	return n.Rejection == ""
}
