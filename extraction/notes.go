package extraction

import (
	"math"

	"github.com/RyanBlaney/sonido-canto/algorithms/common"
	"github.com/RyanBlaney/sonido-canto/algorithms/temporal"
	"github.com/RyanBlaney/sonido-canto/algorithms/tonal"
	"github.com/RyanBlaney/sonido-canto/extraction/config"
)

// noteBuilder applies the per-segment rules of the bundle to a pitch track.
type noteBuilder struct {
	cfg   *config.AnalysisConfig
	env   *temporal.Envelope
	track *tonal.PitchTrack
}

func (nb *noteBuilder) build(seg temporal.Segment) Note {
	note := Note{
		OnsetMs:      nb.env.FrameToMs(seg.Start),
		OffsetMs:     nb.env.FrameToMs(seg.End),
		PeakMs:       nb.env.FrameToMs(seg.Peak),
		FramePitches: []float64{},
	}

	lo := note.OnsetMs + nb.cfg.CutPreMs
	hi := note.OffsetMs - nb.cfg.CutPostMs
	note.ExtendedOnsetMs = lo
	if hi-lo < nb.cfg.MinimalSegmentDurationMs {
		note.Rejection = RejectTooShort
		return note
	}

	var pitches, correlations []float64
	for _, f := range nb.track.FramesBetween(lo/1000, hi/1000) {
		if f.Voiced() {
			pitches = append(pitches, f.MIDI())
			correlations = append(correlations, f.Correlation)
		}
	}
	if len(pitches) == 0 {
		note.Rejection = RejectUnvoiced
		return note
	}

	median := common.Median(pitches)

	// pull in voiced frames just before the cut that already sit on the note
	earlier := nb.track.FramesBetween((lo-nb.cfg.PraatExtendProximityThresholdMs)/1000, lo/1000)
	for i := len(earlier) - 1; i >= 0; i-- {
		f := earlier[i]
		if !f.Voiced() || math.Abs(f.MIDI()-median) > nb.cfg.ExtendPitchThresholdSemitones {
			break
		}
		pitches = append([]float64{f.MIDI()}, pitches...)
		correlations = append(correlations, f.Correlation)
		note.ExtendedOnsetMs = f.Time * 1000
	}

	median = common.Median(pitches)
	fluctuating := 0
	for _, p := range pitches {
		if math.Abs(p-median) > nb.cfg.AllowedPitchFluctuation {
			fluctuating++
		}
	}

	note.MedianPitch = median
	note.MedianHz = common.MIDIToHz(median)
	note.PitchStdDev = common.StandardDeviation(pitches)
	note.Confidence = common.Mean(correlations)
	note.VoicedFrames = len(pitches)
	note.FluctuatingFraction = float64(fluctuating) / float64(len(pitches))
	note.FramePitches = pitches

	switch {
	case note.FluctuatingFraction*100 > nb.cfg.PercentFluctuating:
		note.Rejection = RejectUnstable
	case median < nb.cfg.PitchRangeAllowed[0] || median > nb.cfg.PitchRangeAllowed[1]:
		note.Rejection = RejectOutOfRange
	}

	return note
}
