package melspec

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/respiralab/coughdx/pkg/audio"
	"github.com/respiralab/coughdx/pkg/audio/spectral"
	"github.com/respiralab/coughdx/pkg/logging"
)

// aminPower floors power values before the log so silence doesn't
// produce -Inf
const aminPower = 1e-10

// Config holds configuration for mel spectrogram feature extraction
type Config struct {
	// MelBands is the number of mel filter bank bands
	MelBands int `json:"mel_bands"`

	// WindowSize and HopLength are the underlying STFT parameters
	WindowSize int `json:"window_size"`
	HopLength  int `json:"hop_length"`

	// LowFreq and HighFreq bound the filter bank in Hz. A zero HighFreq
	// means Nyquist for whatever sample rate arrives.
	LowFreq  float64 `json:"low_freq"`
	HighFreq float64 `json:"high_freq"`

	// TopDB caps the dynamic range below the peak before normalization
	TopDB float64 `json:"top_db"`

	// NormLow and NormHigh bound the normalized output values
	NormLow  float64 `json:"norm_low"`
	NormHigh float64 `json:"norm_high"`
}

// DefaultConfig returns the featurization parameters used by the pipeline
func DefaultConfig() *Config {
	return &Config{
		MelBands:   128,
		WindowSize: 2048,
		HopLength:  512,
		LowFreq:    0,
		HighFreq:   0,
		TopDB:      80,
		NormLow:    0,
		NormHigh:   1,
	}
}

// Validate checks config values
func (c *Config) Validate() error {
	if c.MelBands <= 0 {
		return audio.NewPipelineError(audio.StageFeatures, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("mel bands must be positive, got %d", c.MelBands), nil)
	}
	if c.WindowSize <= 0 {
		return audio.NewPipelineError(audio.StageFeatures, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("window size must be positive, got %d", c.WindowSize), nil)
	}
	if c.HopLength <= 0 {
		return audio.NewPipelineError(audio.StageFeatures, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("hop length must be positive, got %d", c.HopLength), nil)
	}
	if c.LowFreq < 0 {
		return audio.NewPipelineError(audio.StageFeatures, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("low frequency must not be negative, got %v", c.LowFreq), nil)
	}
	if c.HighFreq != 0 && c.HighFreq <= c.LowFreq {
		return audio.NewPipelineError(audio.StageFeatures, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("high frequency (%v) must exceed low frequency (%v)", c.HighFreq, c.LowFreq), nil)
	}
	if c.TopDB <= 0 {
		return audio.NewPipelineError(audio.StageFeatures, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("top dB must be positive, got %v", c.TopDB), nil)
	}
	if c.NormHigh <= c.NormLow {
		return audio.NewPipelineError(audio.StageFeatures, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("normalization range [%v, %v] is empty", c.NormLow, c.NormHigh), nil)
	}
	return nil
}

// FeatureTensor is a normalized mel spectrogram laid out as the model
// expects: Values[band][step] within the configured normalization range.
type FeatureTensor struct {
	Values    [][]float64 `json:"-"`
	MelBands  int         `json:"mel_bands"`
	TimeSteps int         `json:"time_steps"`

	// Low and High record the dB range before normalization
	Low  float64 `json:"low"`
	High float64 `json:"high"`

	// Degenerate is set when the input had no dynamic range and the
	// tensor was filled with the midpoint value instead
	Degenerate bool `json:"degenerate"`
}

// Shape returns the tensor dimensions as batch x channel x bands x steps
func (t *FeatureTensor) Shape() []int64 {
	return []int64{1, 1, int64(t.MelBands), int64(t.TimeSteps)}
}

// Flatten returns the values row-major as float32 for model input
func (t *FeatureTensor) Flatten() []float32 {
	flat := make([]float32, 0, t.MelBands*t.TimeSteps)
	for _, row := range t.Values {
		for _, v := range row {
			flat = append(flat, float32(v))
		}
	}
	return flat
}

// Featurizer converts audio segments into normalized mel spectrogram
// tensors. The power spectrogram passes through a mel filter bank and dB
// scaling referenced to the peak, then min-max normalization into the
// configured range.
type Featurizer struct {
	config    *Config
	transform *spectral.Transform
	logger    logging.Logger
}

// NewFeaturizer creates a Featurizer with the given config. A nil config
// uses DefaultConfig.
func NewFeaturizer(config *Config, logger logging.Logger) (*Featurizer, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	transform, err := spectral.NewTransform(config.WindowSize, config.HopLength)
	if err != nil {
		return nil, err
	}

	return &Featurizer{
		config:    config,
		transform: transform,
		logger:    logger,
	}, nil
}

// Compute extracts the normalized mel spectrogram tensor from a signal
func (f *Featurizer) Compute(signal *audio.Signal) (*FeatureTensor, error) {
	if signal == nil || len(signal.PCM) == 0 {
		return nil, audio.NewPipelineError(audio.StageFeatures, audio.ErrCodeInvalidParameter,
			"empty signal", nil)
	}

	highFreq := f.config.HighFreq
	nyquist := float64(signal.SampleRate) / 2.0
	if highFreq == 0 || highFreq > nyquist {
		highFreq = nyquist
	}
	if highFreq <= f.config.LowFreq {
		return nil, audio.NewPipelineError(audio.StageFeatures, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("frequency range [%v, %v] is empty at sample rate %d",
				f.config.LowFreq, highFreq, signal.SampleRate), nil)
	}

	spec, err := f.transform.STFT(signal.PCM, signal.SampleRate)
	if err != nil {
		return nil, err
	}

	power := spec.Power()
	bank := newMelFilterBank(f.config.MelBands, f.config.WindowSize, signal.SampleRate,
		f.config.LowFreq, highFreq)

	// Band-major layout: values[band][step]
	timeSteps := len(power)
	values := make([][]float64, f.config.MelBands)
	for b := range values {
		values[b] = make([]float64, timeSteps)
	}

	for t, frame := range power {
		melFrame := bank.apply(frame)
		for b, v := range melFrame {
			values[b][t] = v
		}
	}

	// Power to dB referenced to the peak, with the dynamic range capped
	// TopDB below it
	ref := aminPower
	for _, row := range values {
		if m := floats.Max(row); m > ref {
			ref = m
		}
	}
	refDB := 10.0 * math.Log10(ref)

	for _, row := range values {
		for i, v := range row {
			row[i] = 10.0*math.Log10(math.Max(aminPower, v)) - refDB
		}
	}

	floor := -f.config.TopDB
	for _, row := range values {
		for i, v := range row {
			if v < floor {
				row[i] = floor
			}
		}
	}

	low := math.Inf(1)
	high := math.Inf(-1)
	for _, row := range values {
		if m := floats.Min(row); m < low {
			low = m
		}
		if m := floats.Max(row); m > high {
			high = m
		}
	}

	tensor := &FeatureTensor{
		Values:    values,
		MelBands:  f.config.MelBands,
		TimeSteps: timeSteps,
		Low:       low,
		High:      high,
	}

	// Min-max normalize into the configured range. A flat spectrogram has
	// no range to stretch, so it maps to the midpoint instead of dividing
	// by zero.
	normLow := f.config.NormLow
	normHigh := f.config.NormHigh
	if high > low {
		scale := (normHigh - normLow) / (high - low)
		for _, row := range values {
			for i, v := range row {
				row[i] = (v-low)*scale + normLow
			}
		}
	} else {
		tensor.Degenerate = true
		midpoint := (normLow + normHigh) / 2
		for _, row := range values {
			for i := range row {
				row[i] = midpoint
			}
		}
		f.logger.Warn("Flat mel spectrogram, filling tensor with midpoint", logging.Fields{
			"mel_bands":  f.config.MelBands,
			"time_steps": timeSteps,
			"midpoint":   midpoint,
		})
	}

	f.logger.Debug("Computed mel spectrogram tensor", logging.Fields{
		"mel_bands":  f.config.MelBands,
		"time_steps": timeSteps,
		"low_db":     low,
		"high_db":    high,
		"degenerate": tensor.Degenerate,
	})

	return tensor, nil
}
