package spectral

import (
	"fmt"
	"math/cmplx"
	"runtime"
	"sync"

	"github.com/mjibson/go-dsp/fft"

	"github.com/respiralab/coughdx/pkg/audio"
)

// normEpsilon guards the overlap-add division against window positions
// that received no energy
const normEpsilon = 1e-15

// Spectrum holds the complex short-time spectrum of a signal.
// Frames is time-major: Frames[t][f] is frequency bin f of frame t,
// covering DC through Nyquist.
type Spectrum struct {
	Frames       [][]complex128 `json:"-"`
	WindowSize   int            `json:"window_size"`
	HopLength    int            `json:"hop_length"`
	SignalLength int            `json:"signal_length"`
	SampleRate   int            `json:"sample_rate"`
}

// TimeFrames returns the number of analysis frames
func (s *Spectrum) TimeFrames() int {
	return len(s.Frames)
}

// FreqBins returns the number of frequency bins per frame
func (s *Spectrum) FreqBins() int {
	if len(s.Frames) == 0 {
		return 0
	}
	return len(s.Frames[0])
}

// FreqResolution returns the bin spacing in Hz
func (s *Spectrum) FreqResolution() float64 {
	return float64(s.SampleRate) / float64(s.WindowSize)
}

// TimeResolution returns the frame spacing in seconds
func (s *Spectrum) TimeResolution() float64 {
	return float64(s.HopLength) / float64(s.SampleRate)
}

// Magnitude returns the time x frequency magnitude matrix
func (s *Spectrum) Magnitude() [][]float64 {
	magnitude := make([][]float64, len(s.Frames))
	for t, frame := range s.Frames {
		magnitude[t] = make([]float64, len(frame))
		for f, bin := range frame {
			magnitude[t][f] = cmplx.Abs(bin)
		}
	}
	return magnitude
}

// Phase returns the time x frequency phase matrix in radians
func (s *Spectrum) Phase() [][]float64 {
	phase := make([][]float64, len(s.Frames))
	for t, frame := range s.Frames {
		phase[t] = make([]float64, len(frame))
		for f, bin := range frame {
			phase[t][f] = cmplx.Phase(bin)
		}
	}
	return phase
}

// Power returns the time x frequency squared-magnitude matrix
func (s *Spectrum) Power() [][]float64 {
	power := make([][]float64, len(s.Frames))
	for t, frame := range s.Frames {
		power[t] = make([]float64, len(frame))
		for f, bin := range frame {
			re, im := real(bin), imag(bin)
			power[t][f] = re*re + im*im
		}
	}
	return power
}

// Transform computes forward and inverse short-time Fourier transforms with
// a periodic Hann window and centered frames. Frames are centered by reflect
// padding half a window on both ends, so frame t is centered on sample
// t*hopLength and a round trip reproduces the input length exactly.
type Transform struct {
	windowSize int
	hopLength  int
	window     *HannWindow
}

// NewTransform creates a Transform with the given analysis parameters
func NewTransform(windowSize, hopLength int) (*Transform, error) {
	if windowSize <= 0 {
		return nil, audio.NewPipelineError(audio.StageSpectral, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("window size must be positive, got %d", windowSize), nil)
	}
	if hopLength <= 0 {
		return nil, audio.NewPipelineError(audio.StageSpectral, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("hop length must be positive, got %d", hopLength), nil)
	}
	if hopLength > windowSize {
		return nil, audio.NewPipelineError(audio.StageSpectral, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("hop length (%d) must not exceed window size (%d)", hopLength, windowSize), nil)
	}

	return &Transform{
		windowSize: windowSize,
		hopLength:  hopLength,
		window:     NewHannWindow(windowSize, false),
	}, nil
}

// WindowSize returns the analysis window size in samples
func (t *Transform) WindowSize() int {
	return t.windowSize
}

// HopLength returns the hop between adjacent frames in samples
func (t *Transform) HopLength() int {
	return t.hopLength
}

// STFT computes the short-time Fourier transform of a mono signal
func (t *Transform) STFT(signal []float64, sampleRate int) (*Spectrum, error) {
	if len(signal) == 0 {
		return nil, audio.NewPipelineError(audio.StageSpectral, audio.ErrCodeInvalidParameter,
			"empty signal", nil)
	}

	pad := t.windowSize / 2
	padded := reflectPad(signal, pad)

	numFrames := (len(padded)-t.windowSize)/t.hopLength + 1
	freqBins := t.windowSize/2 + 1

	frames := make([][]complex128, numFrames)
	for i := range numFrames {
		frames[i] = make([]complex128, freqBins)
	}

	// Each frame is independent, so fan the FFTs out over a worker pool.
	// Workers write to disjoint frame indices and need no locking.
	type frameJob struct {
		frameIdx int
		startIdx int
	}

	numWorkers := workerCount(numFrames)
	jobs := make(chan frameJob, numFrames)

	var wg sync.WaitGroup
	for range numWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()

			frameBuffer := make([]float64, t.windowSize)

			for job := range jobs {
				copy(frameBuffer, padded[job.startIdx:job.startIdx+t.windowSize])

				if err := t.window.ApplyInPlace(frameBuffer); err != nil {
					continue
				}

				fftResult := fft.FFTReal(frameBuffer)
				copy(frames[job.frameIdx], fftResult[:freqBins])
			}
		}()
	}

	for frameIdx := range numFrames {
		jobs <- frameJob{
			frameIdx: frameIdx,
			startIdx: frameIdx * t.hopLength,
		}
	}
	close(jobs)

	wg.Wait()

	return &Spectrum{
		Frames:       frames,
		WindowSize:   t.windowSize,
		HopLength:    t.hopLength,
		SignalLength: len(signal),
		SampleRate:   sampleRate,
	}, nil
}

// ISTFT reconstructs the time-domain signal from a spectrum produced by STFT.
// Reconstruction applies the synthesis window, overlap-adds the frames, and
// normalizes by the summed squared window before trimming the center padding.
func (t *Transform) ISTFT(spec *Spectrum) ([]float64, error) {
	if spec == nil || len(spec.Frames) == 0 {
		return nil, audio.NewPipelineError(audio.StageSpectral, audio.ErrCodeInvalidParameter,
			"empty spectrum", nil)
	}
	if spec.WindowSize != t.windowSize || spec.HopLength != t.hopLength {
		return nil, audio.NewPipelineError(audio.StageSpectral, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("spectrum parameters (%d/%d) don't match transform (%d/%d)",
				spec.WindowSize, spec.HopLength, t.windowSize, t.hopLength), nil)
	}

	freqBins := t.windowSize/2 + 1
	for idx, frame := range spec.Frames {
		if len(frame) != freqBins {
			return nil, audio.NewPipelineError(audio.StageSpectral, audio.ErrCodeInvalidParameter,
				fmt.Sprintf("frame %d has %d bins, expected %d", idx, len(frame), freqBins), nil)
		}
	}

	numFrames := len(spec.Frames)
	coeffs := t.window.Coefficients()

	outputLen := (numFrames-1)*t.hopLength + t.windowSize
	output := make([]float64, outputLen)
	norm := make([]float64, outputLen)

	fullSpectrum := make([]complex128, t.windowSize)

	for frameIdx, frame := range spec.Frames {
		// Rebuild the negative frequencies from conjugate symmetry; the
		// forward transform only keeps DC through Nyquist.
		copy(fullSpectrum[:freqBins], frame)
		for i := 1; i <= t.windowSize-freqBins; i++ {
			fullSpectrum[t.windowSize-i] = cmplx.Conj(frame[i])
		}

		timeFrame := fft.IFFT(fullSpectrum)

		start := frameIdx * t.hopLength
		for i := range t.windowSize {
			output[start+i] += real(timeFrame[i]) * coeffs[i]
			norm[start+i] += coeffs[i] * coeffs[i]
		}
	}

	for i := range output {
		if norm[i] > normEpsilon {
			output[i] /= norm[i]
		}
	}

	// Drop the reflect padding added by STFT
	pad := t.windowSize / 2
	result := make([]float64, spec.SignalLength)
	copy(result, output[pad:])

	return result, nil
}

// reflectPad extends the signal by pad samples on each side, mirroring
// around the endpoints without repeating them
func reflectPad(signal []float64, pad int) []float64 {
	n := len(signal)
	padded := make([]float64, n+2*pad)

	for i := range padded {
		padded[i] = signal[reflectIndex(i-pad, n)]
	}

	return padded
}

// reflectIndex maps any integer onto [0, n) by mirroring around the
// endpoints, matching reflect-mode array padding
func reflectIndex(i, n int) int {
	if n == 1 {
		return 0
	}

	period := 2 * (n - 1)
	i = ((i % period) + period) % period
	if i >= n {
		i = period - i
	}
	return i
}

// workerCount sizes the STFT worker pool to the workload
func workerCount(numFrames int) int {
	numCPU := runtime.NumCPU()

	if numFrames < 100 {
		return max(1, min(numCPU/2, numFrames))
	}
	return numCPU
}
