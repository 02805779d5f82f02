package spectral

import (
	"github.com/mjibson/go-dsp/fft"
)

// FFT provides Fast Fourier Transform functionality
type FFT struct{}

// NewFFT creates a new FFT calculator
func NewFFT() *FFT {
	return &FFT{}
}

// Compute computes the forward transform of a real signal.
func (f *FFT) Compute(x []float64) []complex128 {
	if len(x) == 0 {
		return []complex128{}
	}

	return fft.FFTReal(x)
}

// Autocorrelation returns the linear autocorrelation of x for lags
// 0..len(x)-1, computed through a zero-padded transform of size
// nfft (which must be at least 2*len(x) to avoid circular wrap-around).
func (f *FFT) Autocorrelation(x []float64, nfft int) []float64 {
	if len(x) == 0 {
		return []float64{}
	}
	if nfft < 2*len(x) {
		nfft = 2 * len(x)
	}

	padded := make([]float64, nfft)
	copy(padded, x)

	spectrum := fft.FFTReal(padded)
	for i, c := range spectrum {
		re, im := real(c), imag(c)
		spectrum[i] = complex(re*re+im*im, 0)
	}

	inverse := fft.IFFT(spectrum)
	r := make([]float64, len(x))
	for i := range r {
		r[i] = real(inverse[i])
	}

	return r
}
