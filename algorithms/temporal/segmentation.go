package temporal

import (
	"github.com/RyanBlaney/sonido-canto/algorithms/common"
)

// Segment is a run of envelope frames holding one sung syllable.
// Frame indices are half-open: [Start, End).
type Segment struct {
	Start int `json:"start"`
	End   int `json:"end"`
	Peak  int `json:"peak"` // onset peak frame
}

// Len returns the segment length in frames.
func (s Segment) Len() int {
	return s.End - s.Start
}

// SegmentationConfig holds the level thresholds for syllable detection.
type SegmentationConfig struct {
	ThresholdDB     float64 `json:"threshold_db"`      // onset level relative to recording peak
	EndRelativeDB   float64 `json:"end_relative_db"`   // end level relative to the onset peak
	MinSilenceMs    float64 `json:"min_silence_ms"`    // shorter gaps are bridged
	SkipBeginningMs float64 `json:"skip_beginning_ms"` // ignored lead-in
	PeakMinHeight   float64 `json:"peak_min_height"`   // on the normalised envelope
	PeakSpacingMs   float64 `json:"peak_spacing_ms"`
}

// SegmentDetector splits an envelope into syllable segments.
type SegmentDetector struct {
	config SegmentationConfig
}

// NewSegmentDetector creates a new segment detector
func NewSegmentDetector(config SegmentationConfig) *SegmentDetector {
	return &SegmentDetector{config: config}
}

// Detect returns segments in temporal order. A segment starts where the
// envelope rises above ThresholdDB and must contain an envelope peak; it
// ends when the level drops EndRelativeDB below that peak or the run of
// loud frames ends. Within one run a later peak opens another segment only
// if it re-attacks by at least the same drop.
func (sd *SegmentDetector) Detect(env *Envelope) []Segment {
	if env == nil || env.Len() == 0 {
		return []Segment{}
	}

	peaks := common.FindPeaks(env.Linear, sd.config.PeakMinHeight, max(1, env.MsToFrames(sd.config.PeakSpacingMs)))
	minGap := env.MsToFrames(sd.config.MinSilenceMs)

	var segments []Segment
	for _, run := range sd.loudRuns(env) {
		cursor := run[0]
		for cursor < run[1] {
			peak := firstPeakIn(peaks, cursor, run[1])
			if peak < 0 {
				break
			}
			if cursor > run[0] && !sd.isReattack(env, cursor, peak) {
				// decay ripple, not a new note
				cursor = peak + 1
				continue
			}

			end := run[1]
			floor := env.DB[peak] + sd.config.EndRelativeDB
			for i := peak + 1; i < run[1]; i++ {
				if env.DB[i] >= floor {
					continue
				}
				// dips shorter than a bridged gap do not end the note
				j := i
				for j < run[1] && j-i < minGap && env.DB[j] < floor {
					j++
				}
				if j == run[1] || j-i >= minGap {
					end = i
					break
				}
				i = j
			}

			segments = append(segments, Segment{Start: cursor, End: end, Peak: peak})
			cursor = end
		}
	}

	if segments == nil {
		return []Segment{}
	}
	return segments
}

// loudRuns groups frames above the threshold into [start, end) runs,
// bridging short gaps.
func (sd *SegmentDetector) loudRuns(env *Envelope) [][2]int {
	skip := env.MsToFrames(sd.config.SkipBeginningMs)
	minGap := env.MsToFrames(sd.config.MinSilenceMs)

	var runs [][2]int
	currentStart := -1

	for i := skip; i < env.Len(); i++ {
		loud := env.DB[i] > sd.config.ThresholdDB
		if loud && currentStart == -1 {
			currentStart = i
		} else if !loud && currentStart != -1 {
			runs = append(runs, [2]int{currentStart, i})
			currentStart = -1
		}
	}

	// Handle run that extends to end
	if currentStart != -1 {
		runs = append(runs, [2]int{currentStart, env.Len()})
	}

	if len(runs) < 2 {
		return runs
	}

	merged := [][2]int{runs[0]}
	for _, r := range runs[1:] {
		last := &merged[len(merged)-1]
		if r[0]-last[1] < minGap {
			last[1] = r[1]
			continue
		}
		merged = append(merged, r)
	}
	return merged
}

// isReattack reports whether the level rises from its minimum in
// [from, peak] by at least the end drop.
func (sd *SegmentDetector) isReattack(env *Envelope, from, peak int) bool {
	trough := env.DB[peak]
	for i := from; i < peak; i++ {
		trough = min(trough, env.DB[i])
	}
	return env.DB[peak]-trough >= -sd.config.EndRelativeDB
}

func firstPeakIn(peaks []int, start, end int) int {
	for _, p := range peaks {
		if p >= end {
			break
		}
		if p >= start {
			return p
		}
	}
	return -1
}
