package filters

import (
	"fmt"
	"math"
)

// Biquad is a second-order IIR section.
//
// Coefficients follow Robert Bristow-Johnson's
// "Cookbook formulae for audio EQ biquad filter coefficients"
// Reference: https://webaudio.github.io/Audio-EQ-Cookbook/audio-eq-cookbook.html
type Biquad struct {
	// Normalised coefficients (a0 == 1)
	b0, b1, b2 float64
	a1, a2     float64

	// Direct form II state
	w1, w2 float64
}

// butterworthQ gives a maximally flat second-order section.
const butterworthQ = 1 / math.Sqrt2

// NewHighpass creates a Butterworth highpass section at cutoff Hz.
func NewHighpass(sampleRate int, cutoff float64) *Biquad {
	_, cosW0, alpha := prewarp(sampleRate, cutoff, butterworthQ)
	return newBiquad(
		(1+cosW0)/2, -(1 + cosW0), (1+cosW0)/2,
		1+alpha, -2*cosW0, 1-alpha,
	)
}

// NewLowpass creates a Butterworth lowpass section at cutoff Hz.
func NewLowpass(sampleRate int, cutoff float64) *Biquad {
	_, cosW0, alpha := prewarp(sampleRate, cutoff, butterworthQ)
	return newBiquad(
		(1-cosW0)/2, 1-cosW0, (1-cosW0)/2,
		1+alpha, -2*cosW0, 1-alpha,
	)
}

// NewResonator creates a constant 0 dB peak gain bandpass section around
// centerFreq with the given bandwidth in Hz.
func NewResonator(sampleRate int, centerFreq, bandwidth float64) *Biquad {
	_, cosW0, alpha := prewarp(sampleRate, centerFreq, centerFreq/bandwidth)
	return newBiquad(
		alpha, 0, -alpha,
		1+alpha, -2*cosW0, 1-alpha,
	)
}

func prewarp(sampleRate int, freq, q float64) (w0, cosW0, alpha float64) {
	w0 = 2.0 * math.Pi * freq / float64(sampleRate)

	// Prevent numerical issues at Nyquist
	if w0 >= math.Pi {
		w0 = math.Pi * 0.99
	}

	return w0, math.Cos(w0), math.Sin(w0) / (2.0 * q)
}

func newBiquad(b0, b1, b2, a0, a1, a2 float64) *Biquad {
	return &Biquad{
		b0: b0 / a0,
		b1: b1 / a0,
		b2: b2 / a0,
		a1: a1 / a0,
		a2: a2 / a0,
	}
}

// Process applies the section to a single sample.
//
// The difference equation is:
// y[n] = b0*x[n] + b1*x[n-1] + b2*x[n-2] - a1*y[n-1] - a2*y[n-2]
func (bq *Biquad) Process(input float64) float64 {
	w := input - bq.a1*bq.w1 - bq.a2*bq.w2
	output := bq.b0*w + bq.b1*bq.w1 + bq.b2*bq.w2

	bq.w2 = bq.w1
	bq.w1 = w

	return output
}

// Reset clears the delay line.
func (bq *Biquad) Reset() {
	bq.w1, bq.w2 = 0.0, 0.0
}

// Magnitude returns the linear gain of the section at frequency Hz.
func (bq *Biquad) Magnitude(sampleRate int, frequency float64) float64 {
	w := 2.0 * math.Pi * frequency / float64(sampleRate)

	cosW := math.Cos(w)
	sinW := math.Sin(w)
	cos2W := math.Cos(2 * w)
	sin2W := math.Sin(2 * w)

	numReal := bq.b0 + bq.b1*cosW + bq.b2*cos2W
	numImag := -bq.b1*sinW - bq.b2*sin2W
	denReal := 1 + bq.a1*cosW + bq.a2*cos2W
	denImag := -bq.a1*sinW - bq.a2*sin2W

	return math.Sqrt((numReal*numReal + numImag*numImag) / (denReal*denReal + denImag*denImag))
}

// BandpassFilter passes [Low, High] Hz using a highpass and a lowpass
// Butterworth section in cascade.
type BandpassFilter struct {
	sampleRate int
	low, high  float64
	sections   []*Biquad
}

// NewBandpassFilter creates a band filter between low and high Hz.
func NewBandpassFilter(sampleRate int, low, high float64) (*BandpassFilter, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive: %d", sampleRate)
	}
	if low <= 0 || high <= low {
		return nil, fmt.Errorf("band edges must satisfy 0 < low < high, got [%g, %g]", low, high)
	}
	if high >= float64(sampleRate)/2 {
		return nil, fmt.Errorf("upper band edge %g Hz must be below the Nyquist frequency (%d Hz)", high, sampleRate/2)
	}

	return &BandpassFilter{
		sampleRate: sampleRate,
		low:        low,
		high:       high,
		sections: []*Biquad{
			NewHighpass(sampleRate, low),
			NewLowpass(sampleRate, high),
		},
	}, nil
}

// Process applies the cascade to a single sample.
func (bf *BandpassFilter) Process(input float64) float64 {
	out := input
	for _, s := range bf.sections {
		out = s.Process(out)
	}
	return out
}

// ProcessBuffer filters a buffer forwards, carrying state between calls.
func (bf *BandpassFilter) ProcessBuffer(input []float64) []float64 {
	output := make([]float64, len(input))
	for i, sample := range input {
		output[i] = bf.Process(sample)
	}
	return output
}

// FiltFilt filters input forwards then backwards, cancelling the phase
// shift so envelope and onset timing are not delayed. State is reset
// before each pass.
func (bf *BandpassFilter) FiltFilt(input []float64) []float64 {
	bf.Reset()
	forward := bf.ProcessBuffer(input)

	bf.Reset()
	output := make([]float64, len(forward))
	for i := len(forward) - 1; i >= 0; i-- {
		output[i] = bf.Process(forward[i])
	}
	bf.Reset()

	return output
}

// Reset clears the filter's internal state.
// Call this when processing discontinuous audio segments.
func (bf *BandpassFilter) Reset() {
	for _, s := range bf.sections {
		s.Reset()
	}
}

// Magnitude returns the single-pass linear gain at frequency Hz.
func (bf *BandpassFilter) Magnitude(frequency float64) float64 {
	gain := 1.0
	for _, s := range bf.sections {
		gain *= s.Magnitude(bf.sampleRate, frequency)
	}
	return gain
}

// Band returns the filter edges in Hz.
func (bf *BandpassFilter) Band() (low, high float64) {
	return bf.low, bf.high
}
