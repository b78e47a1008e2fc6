package segment

import (
	"fmt"
	"math"
	"time"

	"github.com/respiralab/coughdx/pkg/audio"
	"github.com/respiralab/coughdx/pkg/logging"
)

// Config holds configuration for amplitude-based cough segmentation
type Config struct {
	// AmplitudeThreshold is the absolute sample value a cough burst must
	// strictly exceed to count as activity
	AmplitudeThreshold float64 `json:"amplitude_threshold"`

	// SegmentDuration is the length of the extracted window
	SegmentDuration time.Duration `json:"segment_duration"`

	// PreRoll is how much audio before the onset to keep, so the
	// inhalation leading into the cough is preserved
	PreRoll time.Duration `json:"pre_roll"`
}

// DefaultConfig returns the segmentation parameters used by the pipeline
func DefaultConfig() *Config {
	return &Config{
		AmplitudeThreshold: 0.05,
		SegmentDuration:    time.Second,
		PreRoll:            500 * time.Millisecond,
	}
}

// Validate checks config values
func (c *Config) Validate() error {
	if c.AmplitudeThreshold <= 0 || c.AmplitudeThreshold >= 1 {
		return audio.NewPipelineError(audio.StageSegment, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("amplitude threshold must be in (0, 1), got %v", c.AmplitudeThreshold), nil)
	}
	if c.SegmentDuration <= 0 {
		return audio.NewPipelineError(audio.StageSegment, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("segment duration must be positive, got %v", c.SegmentDuration), nil)
	}
	if c.PreRoll < 0 {
		return audio.NewPipelineError(audio.StageSegment, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("pre-roll must not be negative, got %v", c.PreRoll), nil)
	}
	if c.PreRoll > c.SegmentDuration {
		return audio.NewPipelineError(audio.StageSegment, audio.ErrCodeInvalidParameter,
			fmt.Sprintf("pre-roll (%v) must not exceed segment duration (%v)", c.PreRoll, c.SegmentDuration), nil)
	}
	return nil
}

// Segment is an extracted window around the first detected cough burst
type Segment struct {
	Signal     *audio.Signal `json:"-"`
	Start      int           `json:"start"`
	End        int           `json:"end"`
	OnsetIndex int           `json:"onset_index"`
}

// Segmenter locates the first cough burst by amplitude threshold and cuts a
// fixed-duration window around it
type Segmenter struct {
	config *Config
	logger logging.Logger
}

// NewSegmenter creates a Segmenter with the given config. A nil config uses
// DefaultConfig.
func NewSegmenter(config *Config, logger logging.Logger) (*Segmenter, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &Segmenter{
		config: config,
		logger: logger,
	}, nil
}

// ExtractSegment finds the first sample whose absolute value strictly
// exceeds the amplitude threshold and returns the window starting PreRoll
// before it. The window is clamped to the signal bounds, so it may be
// shorter than SegmentDuration near the end of the recording.
func (s *Segmenter) ExtractSegment(signal *audio.Signal) (*Segment, error) {
	if signal == nil || len(signal.PCM) == 0 {
		return nil, audio.NewPipelineError(audio.StageSegment, audio.ErrCodeInvalidParameter,
			"empty signal", nil)
	}

	onset := -1
	for i, sample := range signal.PCM {
		if math.Abs(sample) > s.config.AmplitudeThreshold {
			onset = i
			break
		}
	}

	if onset < 0 {
		return nil, audio.NewPipelineError(audio.StageSegment, audio.ErrCodeNoActivity,
			fmt.Sprintf("no cough activity detected above amplitude threshold %v", s.config.AmplitudeThreshold), nil)
	}

	preRollSamples := int(s.config.PreRoll.Seconds() * float64(signal.SampleRate))
	segmentSamples := int(s.config.SegmentDuration.Seconds() * float64(signal.SampleRate))

	start := onset - preRollSamples
	if start < 0 {
		start = 0
	}

	end := start + segmentSamples
	if end > len(signal.PCM) {
		end = len(signal.PCM)
	}

	s.logger.Debug("Extracted cough segment", logging.Fields{
		"onset_index":     onset,
		"onset_seconds":   float64(onset) / float64(signal.SampleRate),
		"start":           start,
		"end":             end,
		"segment_samples": end - start,
	})

	return &Segment{
		Signal:     signal.Slice(start, end),
		Start:      start,
		End:        end,
		OnsetIndex: onset,
	}, nil
}
