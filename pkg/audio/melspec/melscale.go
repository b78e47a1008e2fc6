package melspec

import "math"

// hzToMel converts frequency in Hz to mel scale
func hzToMel(hz float64) float64 {
	return 2595.0 * math.Log10(1.0+hz/700.0)
}

// melToHz converts mel scale to frequency in Hz
func melToHz(mel float64) float64 {
	return 700.0 * (math.Pow(10.0, mel/2595.0) - 1.0)
}

// melFilterBank is a bank of triangular filters over FFT bins with centers
// equally spaced on the mel scale
type melFilterBank struct {
	filters  [][]float64
	numBands int
	freqBins int
}

// newMelFilterBank builds the filter bank for the given analysis geometry.
// Filter edges are snapped to FFT bins and capped at Nyquist.
func newMelFilterBank(numBands, fftSize, sampleRate int, lowFreq, highFreq float64) *melFilterBank {
	lowMel := hzToMel(lowFreq)
	highMel := hzToMel(highFreq)

	// Equally spaced points on the mel axis, one per band edge
	melPoints := make([]float64, numBands+2)
	melStep := (highMel - lowMel) / float64(numBands+1)
	for i := range melPoints {
		melPoints[i] = lowMel + float64(i)*melStep
	}

	binPoints := make([]int, len(melPoints))
	for i, mel := range melPoints {
		hz := melToHz(mel)
		binPoints[i] = int(math.Floor((float64(fftSize)+1.0)*hz/float64(sampleRate) + 0.5))
		binPoints[i] = min(binPoints[i], fftSize/2)
	}

	freqBins := fftSize/2 + 1
	filters := make([][]float64, numBands)
	for i := range filters {
		filters[i] = make([]float64, freqBins)
	}

	for m := 1; m <= numBands; m++ {
		leftBin := binPoints[m-1]
		centerBin := binPoints[m]
		rightBin := binPoints[m+1]

		// Rising edge
		for k := leftBin; k < centerBin && k < freqBins; k++ {
			if centerBin != leftBin {
				filters[m-1][k] = float64(k-leftBin) / float64(centerBin-leftBin)
			}
		}

		// Falling edge
		for k := centerBin; k < rightBin && k < freqBins; k++ {
			if rightBin != centerBin {
				filters[m-1][k] = float64(rightBin-k) / float64(rightBin-centerBin)
			}
		}
	}

	return &melFilterBank{
		filters:  filters,
		numBands: numBands,
		freqBins: freqBins,
	}
}

// apply projects one power spectrum frame onto the mel bands
func (b *melFilterBank) apply(powerSpectrum []float64) []float64 {
	melSpectrum := make([]float64, b.numBands)

	for i, filter := range b.filters {
		sum := 0.0
		for j := 0; j < len(filter) && j < len(powerSpectrum); j++ {
			sum += powerSpectrum[j] * filter[j]
		}
		melSpectrum[i] = sum
	}

	return melSpectrum
}
