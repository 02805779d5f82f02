package tonal

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sine(freq float64, seconds float64, sampleRate int) []float64 {
	out := make([]float64, int(seconds*float64(sampleRate)))
	for i := range out {
		out[i] = 0.5 * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return out
}

func singingParams() TrackerParams {
	params := DefaultTrackerParams(44100)
	params.MinFreq = 65.41
	params.MaxFreq = 622.25
	params.OctaveCost = 0.03
	params.OctaveJumpCost = 0.55
	return params
}

func TestTrackSteadyTones(t *testing.T) {
	pt, err := NewPitchTracker(singingParams())
	require.NoError(t, err)

	for _, freq := range []float64{110, 220, 261.63, 440} {
		track := pt.Track(sine(freq, 0.5, 44100))
		require.NotEmpty(t, track.Frames)

		for _, f := range track.Frames {
			require.True(t, f.Voiced(), "frame at %.3fs unvoiced for %.1f Hz", f.Time, freq)
			assert.InDelta(t, 0, f.MIDI()-69-12*math.Log2(freq/440), 0.1, "%.1f Hz at %.3fs", freq, f.Time)
			assert.Greater(t, f.Correlation, 0.9)
		}
	}
}

func TestTrackSilenceIsUnvoiced(t *testing.T) {
	pt, err := NewPitchTracker(singingParams())
	require.NoError(t, err)

	track := pt.Track(make([]float64, 22050))
	require.NotEmpty(t, track.Frames)
	for _, f := range track.Frames {
		assert.False(t, f.Voiced())
		assert.True(t, math.IsNaN(f.MIDI()))
	}
}

func TestTrackToneThenSilence(t *testing.T) {
	pt, err := NewPitchTracker(singingParams())
	require.NoError(t, err)

	signal := append(sine(196, 0.4, 44100), make([]float64, 44100*4/10)...)
	track := pt.Track(signal)

	voiced := track.FramesBetween(0.05, 0.35)
	require.NotEmpty(t, voiced)
	for _, f := range voiced {
		assert.True(t, f.Voiced())
	}

	silent := track.FramesBetween(0.5, 0.75)
	require.NotEmpty(t, silent)
	for _, f := range silent {
		assert.False(t, f.Voiced())
	}
}

func TestTrackShortSignal(t *testing.T) {
	pt, err := NewPitchTracker(singingParams())
	require.NoError(t, err)

	track := pt.Track(make([]float64, 100))
	assert.Empty(t, track.Frames)
	assert.InDelta(t, 0.01, track.TimeStep, 1e-4)
}

func TestTrackerFrameTiming(t *testing.T) {
	pt, err := NewPitchTracker(singingParams())
	require.NoError(t, err)

	track := pt.Track(sine(220, 1, 44100))
	require.Greater(t, len(track.Frames), 2)

	assert.InDelta(t, pt.WindowDuration()/2, track.Frames[0].Time, 1e-3)
	assert.InDelta(t, track.TimeStep, track.Frames[1].Time-track.Frames[0].Time, 1e-9)
	assert.Empty(t, track.FramesBetween(2, 3))
}

func TestNewPitchTrackerValidation(t *testing.T) {
	cases := map[string]func(*TrackerParams){
		"sample rate":    func(p *TrackerParams) { p.SampleRate = 0 },
		"inverted range": func(p *TrackerParams) { p.MinFreq, p.MaxFreq = 500, 100 },
		"above nyquist":  func(p *TrackerParams) { p.MaxFreq = 30000 },
		"time step":      func(p *TrackerParams) { p.TimeStep = 0 },
		"window":         func(p *TrackerParams) { p.PeriodsPerWindow = 0.5 },
		"candidates":     func(p *TrackerParams) { p.MaxCandidates = 1 },
	}

	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			params := singingParams()
			mutate(&params)
			_, err := NewPitchTracker(params)
			assert.Error(t, err)
		})
	}
}
