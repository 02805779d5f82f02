package tonal

import (
	"fmt"
	"math"
	"sort"

	"github.com/RyanBlaney/sonido-canto/algorithms/common"
	"github.com/RyanBlaney/sonido-canto/algorithms/spectral"
	"github.com/RyanBlaney/sonido-canto/algorithms/windowing"
)

// TrackerParams configures the autocorrelation pitch tracker. The cost
// parameters follow Praat's "To Pitch (ac)" command.
type TrackerParams struct {
	SampleRate int `json:"sample_rate"`

	MinFreq float64 `json:"min_freq"` // pitch floor (Hz)
	MaxFreq float64 `json:"max_freq"` // pitch ceiling (Hz)

	TimeStep         float64 `json:"time_step"`          // seconds between frames
	PeriodsPerWindow float64 `json:"periods_per_window"` // window length in floor periods
	MaxCandidates    int     `json:"max_candidates"`     // per frame, unvoiced included

	SilenceThreshold   float64 `json:"silence_threshold"`    // relative to global peak
	VoicingThreshold   float64 `json:"voicing_threshold"`    // normalised autocorrelation
	OctaveCost         float64 `json:"octave_cost"`          // per octave, favours high candidates
	OctaveJumpCost     float64 `json:"octave_jump_cost"`     // per octave between frames
	VoicedUnvoicedCost float64 `json:"voiced_unvoiced_cost"` // per voicing transition
}

// DefaultTrackerParams returns Praat's defaults for a 75-600 Hz range.
func DefaultTrackerParams(sampleRate int) TrackerParams {
	return TrackerParams{
		SampleRate:         sampleRate,
		MinFreq:            75,
		MaxFreq:            600,
		TimeStep:           0.01,
		PeriodsPerWindow:   3,
		MaxCandidates:      15,
		SilenceThreshold:   0.03,
		VoicingThreshold:   0.45,
		OctaveCost:         0.01,
		OctaveJumpCost:     0.35,
		VoicedUnvoicedCost: 0.14,
	}
}

// PitchCandidate is one hypothesis for a frame. Frequency 0 is the
// unvoiced candidate.
type PitchCandidate struct {
	Frequency   float64 `json:"frequency"`
	Correlation float64 `json:"correlation"` // normalised autocorrelation at the lag
	Strength    float64 `json:"strength"`    // correlation after octave cost
}

// PitchFrame is the chosen candidate at one analysis time.
type PitchFrame struct {
	Time        float64 `json:"time"`      // seconds, window centre
	Frequency   float64 `json:"frequency"` // Hz, 0 when unvoiced
	Correlation float64 `json:"correlation"`

	candidates []PitchCandidate
}

// Voiced reports whether a pitch was found in this frame.
func (f PitchFrame) Voiced() bool {
	return f.Frequency > 0
}

// MIDI returns the frame pitch in fractional MIDI numbers, NaN when unvoiced.
func (f PitchFrame) MIDI() float64 {
	if !f.Voiced() {
		return math.NaN()
	}
	return common.HzToMIDI(f.Frequency)
}

// PitchTrack is the Viterbi path through all frames.
type PitchTrack struct {
	TimeStep float64      `json:"time_step"`
	Frames   []PitchFrame `json:"frames"`
}

// FramesBetween returns frames whose centre lies in [startSec, endSec).
func (pt *PitchTrack) FramesBetween(startSec, endSec float64) []PitchFrame {
	lo := sort.Search(len(pt.Frames), func(i int) bool { return pt.Frames[i].Time >= startSec })
	hi := sort.Search(len(pt.Frames), func(i int) bool { return pt.Frames[i].Time >= endSec })
	if hi < lo {
		return nil
	}
	return pt.Frames[lo:hi]
}

// PitchTracker estimates a pitch contour with windowed autocorrelation and
// a dynamic-programming path search.
type PitchTracker struct {
	params TrackerParams

	windowSize int
	hop        int
	fftSize    int
	minLag     int
	maxLag     int

	window     *windowing.Hann
	windowNorm []float64 // normalised autocorrelation of the window itself
	fft        *spectral.FFT
}

// NewPitchTracker validates params and precomputes the analysis window.
func NewPitchTracker(params TrackerParams) (*PitchTracker, error) {
	switch {
	case params.SampleRate <= 0:
		return nil, fmt.Errorf("sample rate must be positive: %d", params.SampleRate)
	case params.MinFreq <= 0 || params.MaxFreq <= params.MinFreq:
		return nil, fmt.Errorf("pitch range must satisfy 0 < floor < ceiling, got [%g, %g]", params.MinFreq, params.MaxFreq)
	case params.MaxFreq >= float64(params.SampleRate)/2:
		return nil, fmt.Errorf("pitch ceiling %g Hz must be below the Nyquist frequency", params.MaxFreq)
	case params.TimeStep <= 0:
		return nil, fmt.Errorf("time step must be positive: %g", params.TimeStep)
	case params.PeriodsPerWindow < 1:
		return nil, fmt.Errorf("periods per window must be at least 1: %g", params.PeriodsPerWindow)
	case params.MaxCandidates < 2:
		return nil, fmt.Errorf("max candidates must be at least 2: %d", params.MaxCandidates)
	}

	sr := float64(params.SampleRate)
	pt := &PitchTracker{
		params:     params,
		windowSize: int(math.Round(params.PeriodsPerWindow * sr / params.MinFreq)),
		hop:        max(1, int(math.Round(params.TimeStep*sr))),
		minLag:     max(2, int(math.Floor(sr/params.MaxFreq))),
		fft:        spectral.NewFFT(),
	}
	pt.maxLag = min(int(math.Ceil(sr/params.MinFreq)), pt.windowSize/2)
	pt.fftSize = common.NextPowerOfTwo(2 * pt.windowSize)
	pt.window = windowing.NewHann(pt.windowSize, true)

	rw := pt.fft.Autocorrelation(pt.window.Coefficients(), pt.fftSize)
	pt.windowNorm = make([]float64, len(rw))
	for i := range rw {
		pt.windowNorm[i] = rw[i] / rw[0]
	}

	return pt, nil
}

// WindowDuration returns the analysis window length in seconds.
func (pt *PitchTracker) WindowDuration() float64 {
	return float64(pt.windowSize) / float64(pt.params.SampleRate)
}

// Track analyses the whole signal. Signals shorter than one window yield an
// empty track.
func (pt *PitchTracker) Track(signal []float64) *PitchTrack {
	track := &PitchTrack{TimeStep: float64(pt.hop) / float64(pt.params.SampleRate)}
	if len(signal) < pt.windowSize {
		track.Frames = []PitchFrame{}
		return track
	}

	globalMean := common.Mean(signal)
	globalPeak := 0.0
	for _, x := range signal {
		globalPeak = math.Max(globalPeak, math.Abs(x-globalMean))
	}

	numFrames := (len(signal)-pt.windowSize)/pt.hop + 1
	track.Frames = make([]PitchFrame, numFrames)

	frame := make([]float64, pt.windowSize)
	for i := range numFrames {
		start := i * pt.hop
		copy(frame, signal[start:start+pt.windowSize])

		track.Frames[i] = PitchFrame{
			Time:       (float64(start) + float64(pt.windowSize)/2) / float64(pt.params.SampleRate),
			candidates: pt.frameCandidates(frame, globalPeak),
		}
	}

	pt.viterbi(track.Frames)
	return track
}

// frameCandidates returns the unvoiced candidate first, then voiced
// candidates by decreasing strength. frame is modified.
func (pt *PitchTracker) frameCandidates(frame []float64, globalPeak float64) []PitchCandidate {
	mean := common.Mean(frame)
	localPeak := 0.0
	for i := range frame {
		frame[i] -= mean
		localPeak = math.Max(localPeak, math.Abs(frame[i]))
	}

	unvoiced := PitchCandidate{Strength: pt.params.VoicingThreshold}
	if globalPeak > 0 {
		silence := pt.params.SilenceThreshold / (1 + pt.params.VoicingThreshold)
		unvoiced.Strength += math.Max(0, 2-(localPeak/globalPeak)/silence)
	} else {
		unvoiced.Strength += 2
	}
	candidates := []PitchCandidate{unvoiced}

	if localPeak == 0 {
		return candidates
	}

	pt.window.Apply(frame)
	r := pt.fft.Autocorrelation(frame, pt.fftSize)
	if r[0] <= 0 {
		return candidates
	}

	norm := make([]float64, pt.maxLag+2)
	for lag := range norm {
		if pt.windowNorm[lag] <= 0 {
			break
		}
		norm[lag] = r[lag] / r[0] / pt.windowNorm[lag]
	}

	sr := float64(pt.params.SampleRate)
	var voiced []PitchCandidate
	for lag := pt.minLag; lag <= pt.maxLag; lag++ {
		if norm[lag] <= norm[lag-1] || norm[lag] < norm[lag+1] {
			continue
		}
		if norm[lag] < 0.5*pt.params.VoicingThreshold {
			continue
		}

		exactLag, height := common.ParabolicPeak(norm, lag)
		height = math.Min(height, 1)
		freq := sr / exactLag
		if freq < pt.params.MinFreq || freq > pt.params.MaxFreq {
			continue
		}

		voiced = append(voiced, PitchCandidate{
			Frequency:   freq,
			Correlation: height,
			Strength:    height - pt.params.OctaveCost*math.Log2(pt.params.MinFreq/freq),
		})
	}

	sort.SliceStable(voiced, func(a, b int) bool {
		return voiced[a].Strength > voiced[b].Strength
	})
	if len(voiced) > pt.params.MaxCandidates-1 {
		voiced = voiced[:pt.params.MaxCandidates-1]
	}

	return append(candidates, voiced...)
}

// viterbi picks one candidate per frame maximising total strength minus
// transition costs, and stores the choice in each frame.
func (pt *PitchTracker) viterbi(frames []PitchFrame) {
	if len(frames) == 0 {
		return
	}

	// costs are specified per 10 ms
	correction := 0.01 / (float64(pt.hop) / float64(pt.params.SampleRate))
	jumpCost := pt.params.OctaveJumpCost * correction
	voicingCost := pt.params.VoicedUnvoicedCost * correction

	transition := func(a, b PitchCandidate) float64 {
		switch {
		case a.Frequency == 0 && b.Frequency == 0:
			return 0
		case a.Frequency == 0 || b.Frequency == 0:
			return voicingCost
		default:
			return jumpCost * math.Abs(math.Log2(a.Frequency/b.Frequency))
		}
	}

	score := make([][]float64, len(frames))
	back := make([][]int, len(frames))

	score[0] = make([]float64, len(frames[0].candidates))
	for j, c := range frames[0].candidates {
		score[0][j] = c.Strength
	}

	for i := 1; i < len(frames); i++ {
		prev := frames[i-1].candidates
		cur := frames[i].candidates
		score[i] = make([]float64, len(cur))
		back[i] = make([]int, len(cur))

		for j, c := range cur {
			best := math.Inf(-1)
			for k, p := range prev {
				if s := score[i-1][k] - transition(p, c); s > best {
					best = s
					back[i][j] = k
				}
			}
			score[i][j] = best + c.Strength
		}
	}

	last := len(frames) - 1
	choice := 0
	for j, s := range score[last] {
		if s > score[last][choice] {
			choice = j
		}
	}

	for i := last; i >= 0; i-- {
		c := frames[i].candidates[choice]
		frames[i].Frequency = c.Frequency
		frames[i].Correlation = c.Correlation
		if i > 0 {
			choice = back[i][choice]
		}
	}
}
