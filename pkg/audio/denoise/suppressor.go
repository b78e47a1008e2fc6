package denoise

import (
	"fmt"
	"math/cmplx"
	"time"

	"github.com/respiralab/coughdx/pkg/audio"
	"github.com/respiralab/coughdx/pkg/audio/spectral"
	"github.com/respiralab/coughdx/pkg/logging"
)

// Config holds configuration for spectral gate noise suppression
type Config struct {
	// WindowSize and HopLength are the STFT parameters shared by noise
	// estimation and suppression
	WindowSize int `json:"window_size"`
	HopLength  int `json:"hop_length"`

	// ReferenceDuration is how much leading audio is treated as
	// representative background noise
	ReferenceDuration time.Duration `json:"reference_duration"`

	// Level scales the noise profile before it is subtracted; higher
	// values gate more aggressively
	Level float64 `json:"level"`
}

// DefaultConfig returns the suppression parameters used by the pipeline
func DefaultConfig() *Config {
	return &Config{
		WindowSize:        2048,
		HopLength:         512,
		ReferenceDuration: 500 * time.Millisecond,
		Level:             1.5,
	}
}

// Validate checks config values
func (c *Config) Validate() error {
	if c.WindowSize <= 0 {
		return audio.NewPipelineError(audio.StageDenoise, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("window size must be positive, got %d", c.WindowSize), nil)
	}
	if c.HopLength <= 0 {
		return audio.NewPipelineError(audio.StageDenoise, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("hop length must be positive, got %d", c.HopLength), nil)
	}
	if c.ReferenceDuration <= 0 {
		return audio.NewPipelineError(audio.StageDenoise, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("reference duration must be positive, got %v", c.ReferenceDuration), nil)
	}
	if c.Level <= 0 {
		return audio.NewPipelineError(audio.StageDenoise, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("suppression level must be positive, got %v", c.Level), nil)
	}
	return nil
}

// NoiseProfile is the per-bin mean power of the background noise estimate
type NoiseProfile struct {
	Power      []float64 `json:"power"`
	WindowSize int       `json:"window_size"`
}

// Suppressor removes stationary background noise by spectral gating: the
// magnitude spectrum is reduced by a scaled noise profile and the result is
// resynthesized with the original phase.
type Suppressor struct {
	config    *Config
	transform *spectral.Transform
	logger    logging.Logger
}

// NewSuppressor creates a Suppressor with the given config. A nil config
// uses DefaultConfig.
func NewSuppressor(config *Config, logger logging.Logger) (*Suppressor, error) {
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

	return &Suppressor{
		config:    config,
		transform: transform,
		logger:    logger,
	}, nil
}

// EstimateNoise builds a noise profile from the leading reference window of
// the signal. Signals shorter than the reference window are used whole.
func (s *Suppressor) EstimateNoise(signal *audio.Signal) (*NoiseProfile, error) {
	if signal == nil || len(signal.PCM) == 0 {
		return nil, audio.NewPipelineError(audio.StageDenoise, audio.ErrCodeInvalidParameter,
			"empty signal", nil)
	}

	refSamples := int(s.config.ReferenceDuration.Seconds() * float64(signal.SampleRate))
	if refSamples > len(signal.PCM) {
		refSamples = len(signal.PCM)
	}
	if refSamples == 0 {
		refSamples = len(signal.PCM)
	}

	spec, err := s.transform.STFT(signal.PCM[:refSamples], signal.SampleRate)
	if err != nil {
		return nil, err
	}

	power := spec.Power()
	numFrames := len(power)
	freqBins := spec.FreqBins()

	profile := make([]float64, freqBins)
	for f := range freqBins {
		sum := 0.0
		for t := range numFrames {
			sum += power[t][f]
		}
		profile[f] = sum / float64(numFrames)
	}

	s.logger.Debug("Estimated noise profile", logging.Fields{
		"reference_samples": refSamples,
		"reference_frames":  numFrames,
		"freq_bins":         freqBins,
	})

	return &NoiseProfile{
		Power:      profile,
		WindowSize: s.config.WindowSize,
	}, nil
}

// Suppress gates the signal's spectrum against the noise profile and returns
// the resynthesized signal. Output magnitudes never go below zero, the phase
// is carried over unchanged, and the output has the same length as the input.
func (s *Suppressor) Suppress(signal *audio.Signal, profile *NoiseProfile) (*audio.Signal, error) {
	if signal == nil || len(signal.PCM) == 0 {
		return nil, audio.NewPipelineError(audio.StageDenoise, audio.ErrCodeInvalidParameter,
			"empty signal", nil)
	}
	if profile == nil || len(profile.Power) == 0 {
		return nil, audio.NewPipelineError(audio.StageDenoise, audio.ErrCodeInvalidParameter,
			"empty noise profile", nil)
	}
	if profile.WindowSize != s.config.WindowSize {
		return nil, audio.NewPipelineError(audio.StageDenoise, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("profile window size (%d) doesn't match suppressor (%d)",
				profile.WindowSize, s.config.WindowSize), nil)
	}

	spec, err := s.transform.STFT(signal.PCM, signal.SampleRate)
	if err != nil {
		return nil, err
	}

	if len(profile.Power) != spec.FreqBins() {
		return nil, audio.NewPipelineError(audio.StageDenoise, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("profile has %d bins, spectrum has %d", len(profile.Power), spec.FreqBins()), nil)
	}

	gated := 0
	total := 0

	for _, frame := range spec.Frames {
		for f, bin := range frame {
			magnitude := cmplx.Abs(bin)
			phase := cmplx.Phase(bin)

			reduced := magnitude - s.config.Level*profile.Power[f]
			if reduced < 0 {
				reduced = 0
				gated++
			}
			total++

			frame[f] = cmplx.Rect(reduced, phase)
		}
	}

	reconstructed, err := s.transform.ISTFT(spec)
	if err != nil {
		return nil, err
	}

	s.logger.Debug("Applied spectral gate", logging.Fields{
		"time_frames": spec.TimeFrames(),
		"freq_bins":   spec.FreqBins(),
		"gated_bins":  gated,
		"total_bins":  total,
		"level":       s.config.Level,
	})

	out := audio.NewSignal(reconstructed, signal.SampleRate)
	out.Channels = signal.Channels
	return out, nil
}

// Process estimates the noise profile from the signal's leading reference
// window and suppresses it in one step
func (s *Suppressor) Process(signal *audio.Signal) (*audio.Signal, error) {
	profile, err := s.EstimateNoise(signal)
	if err != nil {
		return nil, err
	}
	return s.Suppress(signal, profile)
}
