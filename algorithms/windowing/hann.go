package windowing

import (
	"github.com/mjibson/go-dsp/window"
)

// Hann represents a Hann window function
type Hann struct {
	size         int
	symmetric    bool
	coefficients []float64
}

// NewHann creates a new Hann window. A symmetric window ends on zero at
// both sides; a periodic one drops the closing zero of a size+1 window.
func NewHann(size int, symmetric bool) *Hann {
	h := &Hann{
		size:      size,
		symmetric: symmetric,
	}
	h.generate()
	return h
}

func (h *Hann) generate() {
	switch {
	case h.size <= 0:
		h.coefficients = []float64{}
	case h.symmetric || h.size == 1:
		h.coefficients = window.Hann(h.size)
	default:
		h.coefficients = window.Hann(h.size + 1)[:h.size]
	}
}

// Apply multiplies x by the window in place. Only the first
// min(len(x), Size()) samples are touched.
func (h *Hann) Apply(x []float64) {
	n := min(len(x), h.size)
	for i := range n {
		x[i] *= h.coefficients[i]
	}
}

// Coefficients returns a copy of the window coefficients
func (h *Hann) Coefficients() []float64 {
	coeffs := make([]float64, len(h.coefficients))
	copy(coeffs, h.coefficients)
	return coeffs
}

// Size returns the window size
func (h *Hann) Size() int {
	return h.size
}
