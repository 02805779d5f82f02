package common

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Basic statistical functions used across algorithms using gonum for robustness

// Mean calculates the arithmetic mean of a slice using gonum
func Mean(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return stat.Mean(data, nil)
}

// StandardDeviation calculates the sample standard deviation
func StandardDeviation(data []float64) float64 {
	if len(data) < 2 {
		return 0.0
	}
	return stat.StdDev(data, nil)
}

// Median returns the middle value, averaging the two central values for even lengths.
func Median(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 0 {
		return (sorted[mid-1] + sorted[mid]) / 2
	}
	return sorted[mid]
}

// Percentile calculates the p-th percentile (p between 0 and 1)
func Percentile(data []float64, p float64) float64 {
	if len(data) == 0 || p < 0 || p > 1 {
		return 0.0
	}

	sorted := make([]float64, len(data))
	copy(sorted, data)
	sort.Float64s(sorted)

	return stat.Quantile(p, stat.Empirical, sorted, nil)
}

// Max returns the largest value, or 0 for empty input.
func Max(data []float64) float64 {
	if len(data) == 0 {
		return 0.0
	}
	return floats.Max(data)
}

// MaxAbs returns the largest absolute value.
func MaxAbs(data []float64) float64 {
	peak := 0.0
	for _, v := range data {
		if a := math.Abs(v); a > peak {
			peak = a
		}
	}
	return peak
}

// HzToMIDI converts a frequency to fractional MIDI note numbers (A4 = 440 Hz = 69).
func HzToMIDI(hz float64) float64 {
	if hz <= 0 {
		return math.NaN()
	}
	return 69 + 12*math.Log2(hz/440)
}

// MIDIToHz converts fractional MIDI note numbers to Hz.
func MIDIToHz(midi float64) float64 {
	return 440 * math.Pow(2, (midi-69)/12)
}

// AmplitudeToDB converts a linear amplitude ratio to dB, flooring at floorDB.
func AmplitudeToDB(ratio, floorDB float64) float64 {
	if ratio <= 0 {
		return floorDB
	}
	return math.Max(20*math.Log10(ratio), floorDB)
}

// MsToSamples converts milliseconds to a whole number of samples.
func MsToSamples(ms float64, sampleRate int) int {
	return int(math.Round(ms * float64(sampleRate) / 1000))
}

// CenteredMovingAverage smooths data with a window centred on each sample.
// The window shrinks at the edges rather than padding.
func CenteredMovingAverage(data []float64, windowSize int) []float64 {
	if len(data) == 0 || windowSize <= 1 {
		out := make([]float64, len(data))
		copy(out, data)
		return out
	}

	prefix := make([]float64, len(data)+1)
	for i, v := range data {
		prefix[i+1] = prefix[i] + v
	}

	half := windowSize / 2
	out := make([]float64, len(data))
	for i := range data {
		lo := max(0, i-half)
		hi := min(len(data), i+half+1)
		out[i] = (prefix[hi] - prefix[lo]) / float64(hi-lo)
	}
	return out
}

// FindPeaks finds local maxima at least minHeight high and minDistance indices apart.
// When two peaks are too close the higher one wins.
func FindPeaks(data []float64, minHeight float64, minDistance int) []int {
	if len(data) < 3 {
		return []int{}
	}

	var candidates []int
	for i := 1; i < len(data)-1; i++ {
		// plateaus count once, at their left edge
		if data[i] > data[i-1] && data[i] >= data[i+1] && data[i] >= minHeight {
			candidates = append(candidates, i)
		}
	}

	// strongest first, then suppress neighbours
	sort.SliceStable(candidates, func(a, b int) bool {
		return data[candidates[a]] > data[candidates[b]]
	})

	var peaks []int
	for _, c := range candidates {
		ok := true
		for _, p := range peaks {
			if abs(c-p) < minDistance {
				ok = false
				break
			}
		}
		if ok {
			peaks = append(peaks, c)
		}
	}

	sort.Ints(peaks)
	if peaks == nil {
		return []int{}
	}
	return peaks
}

// ParabolicPeak refines a peak index using the neighbouring values. It
// returns the fractional index and the interpolated height.
func ParabolicPeak(data []float64, peakIdx int) (float64, float64) {
	if peakIdx <= 0 || peakIdx >= len(data)-1 {
		return float64(peakIdx), data[peakIdx]
	}

	y1 := data[peakIdx-1]
	y2 := data[peakIdx]
	y3 := data[peakIdx+1]

	a := (y1 - 2*y2 + y3) / 2
	b := (y3 - y1) / 2

	if a == 0 {
		return float64(peakIdx), y2
	}

	offset := -b / (2 * a)
	if offset < -1 || offset > 1 {
		return float64(peakIdx), y2
	}
	return float64(peakIdx) + offset, y2 - b*b/(4*a)
}

// NextPowerOfTwo finds the next power of 2 >= n
func NextPowerOfTwo(n int) int {
	if n <= 0 {
		return 1
	}

	power := 1
	for power < n {
		power <<= 1
	}
	return power
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
