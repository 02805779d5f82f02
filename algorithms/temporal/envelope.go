package temporal

import (
	"math"

	"github.com/RyanBlaney/sonido-canto/algorithms/common"
)

// silenceFloorDB bounds the dB envelope so digital silence stays finite.
const silenceFloorDB = -120.0

// EnvelopeConfig controls syllable envelope extraction.
type EnvelopeConfig struct {
	HopMs            float64 `json:"hop_ms"`            // frame hop
	CompressionPower float64 `json:"compression_power"` // 1 means no compression
	SmoothingMs      float64 `json:"smoothing_ms"`      // moving average length
}

// DefaultEnvelopeConfig returns a 1 ms hop with no compression or smoothing.
func DefaultEnvelopeConfig() EnvelopeConfig {
	return EnvelopeConfig{
		HopMs:            1.0,
		CompressionPower: 1.0,
	}
}

// Envelope is a frame-rate amplitude envelope normalised to its own peak.
type Envelope struct {
	Linear    []float64 `json:"-"` // 0..1
	DB        []float64 `json:"-"` // relative to peak, <= 0
	FrameRate float64   `json:"frame_rate"`
	Peak      float64   `json:"peak"` // compressed level before normalisation
}

// Len returns the number of frames.
func (e *Envelope) Len() int {
	return len(e.Linear)
}

// FrameToMs converts a frame index to milliseconds.
func (e *Envelope) FrameToMs(frame int) float64 {
	return float64(frame) * 1000 / e.FrameRate
}

// MsToFrames converts a duration in milliseconds to frames, rounding.
func (e *Envelope) MsToFrames(ms float64) int {
	return int(math.Round(ms * e.FrameRate / 1000))
}

// EnvelopeExtractor computes compressed, smoothed amplitude envelopes.
type EnvelopeExtractor struct {
	config EnvelopeConfig
}

// NewEnvelopeExtractor creates a new envelope extractor
func NewEnvelopeExtractor(config EnvelopeConfig) *EnvelopeExtractor {
	if config.HopMs <= 0 {
		config.HopMs = 1.0
	}
	if config.CompressionPower <= 0 {
		config.CompressionPower = 1.0
	}
	return &EnvelopeExtractor{config: config}
}

// Compute rectifies signal, compresses it with |x|^power, averages each hop,
// smooths and normalises. An all-zero signal yields a flat envelope at the
// dB floor.
func (e *EnvelopeExtractor) Compute(signal []float64, sampleRate int) *Envelope {
	hop := max(1, common.MsToSamples(e.config.HopMs, sampleRate))
	env := &Envelope{FrameRate: float64(sampleRate) / float64(hop)}

	numFrames := len(signal) / hop
	if numFrames == 0 {
		env.Linear = []float64{}
		env.DB = []float64{}
		return env
	}

	frames := make([]float64, numFrames)
	for i := range numFrames {
		sum := 0.0
		for _, x := range signal[i*hop : (i+1)*hop] {
			sum += math.Pow(math.Abs(x), e.config.CompressionPower)
		}
		frames[i] = sum / float64(hop)
	}

	smoothFrames := max(1, env.MsToFrames(e.config.SmoothingMs))
	env.Linear = common.CenteredMovingAverage(frames, smoothFrames)
	env.Peak = common.Max(env.Linear)

	env.DB = make([]float64, numFrames)
	if env.Peak <= 0 {
		for i := range env.DB {
			env.DB[i] = silenceFloorDB
		}
		return env
	}

	for i, v := range env.Linear {
		env.Linear[i] = v / env.Peak
		env.DB[i] = common.AmplitudeToDB(env.Linear[i], silenceFloorDB)
	}

	return env
}
