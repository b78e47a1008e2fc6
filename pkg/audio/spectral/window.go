package spectral

import (
	"fmt"
	"math"
)

// HannWindow represents a Hann window function
type HannWindow struct {
	size         int
	symmetric    bool
	coefficients []float64
}

// NewHannWindow creates a Hann window of the given size. The periodic form
// (symmetric=false) is the one meant for spectral analysis; it satisfies the
// overlap-add constraint at the hop sizes the pipeline uses.
func NewHannWindow(size int, symmetric bool) *HannWindow {
	h := &HannWindow{
		size:      size,
		symmetric: symmetric,
	}
	h.generate()
	return h
}

// generate creates Hann window coefficients
func (h *HannWindow) generate() {
	h.coefficients = make([]float64, h.size)

	denominator := float64(h.size)
	if h.symmetric {
		denominator = float64(h.size - 1)
	}

	for i := range h.size {
		h.coefficients[i] = 0.5 * (1.0 - math.Cos(2*math.Pi*float64(i)/denominator))
	}
}

// ApplyInPlace multiplies the signal by the window coefficients in-place
func (h *HannWindow) ApplyInPlace(signal []float64) error {
	if len(signal) != h.size {
		return fmt.Errorf("signal length (%d) doesn't match window size (%d)", len(signal), h.size)
	}

	for i := range signal {
		signal[i] *= h.coefficients[i]
	}

	return nil
}

// Coefficients returns a copy of the window coefficients
func (h *HannWindow) Coefficients() []float64 {
	coeffs := make([]float64, len(h.coefficients))
	copy(coeffs, h.coefficients)
	return coeffs
}

// Size returns the window size
func (h *HannWindow) Size() int {
	return h.size
}
