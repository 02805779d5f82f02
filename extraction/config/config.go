// Package config holds the versioned parameter bundle for singing analysis.
//
// The bundle is loaded once and never varied per call. Every diagnostic
// record carries the bundle's Version and Fingerprint so a parameter change
// is visible in stored trial data.
package config

import (
	"bytes"
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sing4me_2022.toml
var defaultBundle []byte

// AnalysisConfig is the full, fixed parameter set of the singing analyser.
// Durations are in milliseconds, levels in dB, pitches in MIDI semitones.
type AnalysisConfig struct {
	Version     string `toml:"version" json:"version"`
	Description string `toml:"description" json:"description,omitempty"`

	SampleRate int `toml:"sample_rate" json:"sample_rate"`

	// Envelope peak picking
	PeakTimeDifferenceMs float64 `toml:"peak_time_difference" json:"peak_time_difference"`
	MinimumPeakHeight    float64 `toml:"minimum_peak_height" json:"minimum_peak_height"`

	// Segmentation
	DBThreshold              float64 `toml:"db_threshold" json:"db_threshold"`
	DBEndThresholdRelative   float64 `toml:"db_end_threshold_realtive_2note_start" json:"db_end_threshold_realtive_2note_start"`
	MsecSilence              float64 `toml:"msec_silence" json:"msec_silence"`
	SilenceBeginningMs       float64 `toml:"silence_beginning_ms" json:"silence_beginning_ms"`
	CutPreMs                 float64 `toml:"cut_pre" json:"cut_pre"`
	CutPostMs                float64 `toml:"cut_post" json:"cut_post"`
	MinimalSegmentDurationMs float64 `toml:"minimal_segment_duration" json:"minimal_segment_duration"`

	// Onset extension
	ExtendPitchThresholdSemitones   float64 `toml:"extend_pitch_threshold_semitones" json:"extend_pitch_threshold_semitones"`
	PraatExtendProximityThresholdMs float64 `toml:"praat_extend_proximity_threshold_ms" json:"praat_extend_proximity_threshold_ms"`

	PitchRangeAllowed     [2]float64 `toml:"pitch_range_allowed" json:"pitch_range_allowed"`
	SingingBandpassRange  [2]float64 `toml:"singing_bandpass_range" json:"singing_bandpass_range"`
	SyllableBandpassRange [2]float64 `toml:"singing_bandpass_range_praat_syllable" json:"singing_bandpass_range_praat_syllable"`

	SmoothingEnvWindowMs float64 `toml:"smoothing_env_window_ms" json:"smoothing_env_window_ms"`
	CompressionPower     float64 `toml:"compresssion_power" json:"compresssion_power"`

	// Note rejection
	AllowedPitchFluctuation float64 `toml:"allowed_pitch_flactuations_witin_one_tone" json:"allowed_pitch_flactuations_witin_one_tone"`
	PercentFluctuating      float64 `toml:"percent_of_flcatuating_within_one_tone" json:"percent_of_flcatuating_within_one_tone"`

	// Pitch tracker
	PraatOctaveJumpCost     float64 `toml:"praat_octave_jump_cost" json:"praat_octave_jump_cost"`
	PraatOctaveCost         float64 `toml:"praat_high_frequncy_favoring_octave_cost" json:"praat_high_frequncy_favoring_octave_cost"`
	PraatSilenceThreshold   float64 `toml:"praat_silence_threshold" json:"praat_silence_threshold"`
	PraatVoicingThreshold   float64 `toml:"praat_voicing_threshold" json:"praat_voicing_threshold"`
	PraatVoicedUnvoicedCost float64 `toml:"praat_voiced_unvoiced_cost" json:"praat_voiced_unvoiced_cost"`
	PraatTimeStepMs         float64 `toml:"praat_time_step_ms" json:"praat_time_step_ms"`
	PraatPeriodsPerWindow   float64 `toml:"praat_periods_per_window" json:"praat_periods_per_window"`
	PraatMaxCandidates      int     `toml:"praat_max_candidates" json:"praat_max_candidates"`
}

// Default returns the embedded sing4me bundle.
func Default() *AnalysisConfig {
	cfg, err := Parse(bytes.NewReader(defaultBundle))
	if err != nil {
		// the embedded bundle is part of the build
		panic(fmt.Sprintf("embedded analysis bundle is invalid: %v", err))
	}
	return cfg
}

// DefaultBundle returns the raw embedded TOML, comments included.
func DefaultBundle() []byte {
	return bytes.Clone(defaultBundle)
}

// Load reads and validates a bundle from path.
func Load(path string) (*AnalysisConfig, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open analysis bundle: %w", err)
	}
	defer f.Close()

	cfg, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("analysis bundle %s: %w", path, err)
	}
	return cfg, nil
}

// Parse decodes a complete bundle. Unknown keys are rejected so a typo in a
// parameter name cannot silently fall back to zero.
func Parse(r io.Reader) (*AnalysisConfig, error) {
	var cfg AnalysisConfig
	if err := toml.NewDecoder(r).DisallowUnknownFields().Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode analysis bundle: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks internal consistency of the bundle.
func (c *AnalysisConfig) Validate() error {
	if strings.TrimSpace(c.Version) == "" {
		return errors.New("version must be set")
	}
	if c.SampleRate <= 0 {
		return errors.New("sample_rate must be positive")
	}
	if c.PitchRangeAllowed[0] >= c.PitchRangeAllowed[1] {
		return errors.New("pitch_range_allowed must be [low, high] with low < high")
	}
	nyquist := float64(c.SampleRate) / 2
	for name, r := range map[string][2]float64{
		"singing_bandpass_range":                c.SingingBandpassRange,
		"singing_bandpass_range_praat_syllable": c.SyllableBandpassRange,
	} {
		if r[0] <= 0 || r[0] >= r[1] {
			return fmt.Errorf("%s must be [low, high] Hz with 0 < low < high", name)
		}
		if r[1] >= nyquist {
			return fmt.Errorf("%s upper edge %.0f Hz must be below Nyquist (%.0f Hz)", name, r[1], nyquist)
		}
	}
	if c.DBThreshold >= 0 {
		return errors.New("db_threshold must be negative (relative to recording peak)")
	}
	if c.DBEndThresholdRelative >= 0 {
		return errors.New("db_end_threshold_realtive_2note_start must be negative")
	}
	if c.CompressionPower <= 0 {
		return errors.New("compresssion_power must be positive")
	}
	if c.PercentFluctuating < 0 || c.PercentFluctuating > 100 {
		return errors.New("percent_of_flcatuating_within_one_tone must be between 0 and 100")
	}
	if c.PraatTimeStepMs <= 0 {
		return errors.New("praat_time_step_ms must be positive")
	}
	if c.PraatPeriodsPerWindow < 1 {
		return errors.New("praat_periods_per_window must be at least 1")
	}
	if c.PraatMaxCandidates < 2 {
		return errors.New("praat_max_candidates must be at least 2")
	}
	for name, v := range map[string]float64{
		"msec_silence":             c.MsecSilence,
		"silence_beginning_ms":     c.SilenceBeginningMs,
		"cut_pre":                  c.CutPreMs,
		"cut_post":                 c.CutPostMs,
		"minimal_segment_duration": c.MinimalSegmentDurationMs,
		"smoothing_env_window_ms":  c.SmoothingEnvWindowMs,
		"peak_time_difference":     c.PeakTimeDifferenceMs,
	} {
		if v < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	return nil
}

// MinimumRecordingMs is the shortest recording that can yield a note at all.
func (c *AnalysisConfig) MinimumRecordingMs() float64 {
	return c.SilenceBeginningMs + c.CutPreMs + c.CutPostMs + c.MinimalSegmentDurationMs
}

// Canonical renders the bundle as TOML without comments, in field order.
func (c *AnalysisConfig) Canonical() ([]byte, error) {
	return toml.Marshal(c)
}

// Fingerprint is a short SHA-256 digest of the canonical bundle. Two bundles
// with the same fingerprint produce identical analyses.
func (c *AnalysisConfig) Fingerprint() string {
	data, err := c.Canonical()
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:8])
}

// Clone returns an independent copy.
func (c *AnalysisConfig) Clone() *AnalysisConfig {
	cp := *c
	return &cp
}
