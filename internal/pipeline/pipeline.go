package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/respiralab/coughdx/pkg/audio"
	"github.com/respiralab/coughdx/pkg/audio/denoise"
	"github.com/respiralab/coughdx/pkg/audio/melspec"
	"github.com/respiralab/coughdx/pkg/audio/segment"
	"github.com/respiralab/coughdx/pkg/inference"
	"github.com/respiralab/coughdx/pkg/logging"
)

// Config holds pipeline-level settings
type Config struct {
	// MinDenoiseDuration gates the cleanup stages: recordings strictly
	// longer than this get denoised and segmented, shorter ones are
	// featurized as-is
	MinDenoiseDuration time.Duration `json:"min_denoise_duration"`

	// DumpDir, when set, receives the denoised signal and extracted
	// segment as WAV files for debugging
	DumpDir string `json:"dump_dir"`
}

// DefaultConfig returns sensible default pipeline configuration
func DefaultConfig() *Config {
	return &Config{
		MinDenoiseDuration: time.Second,
	}
}

// Validate checks the configuration
func (c *Config) Validate() error {
	if c.MinDenoiseDuration < 0 {
		return audio.NewPipelineError(audio.StageSegment, audio.ErrCodeInvalidParameter,
			"min denoise duration must not be negative", nil)
	}
	return nil
}

// Options carries everything needed to assemble a pipeline
type Options struct {
	Config   *Config
	Denoise  *denoise.Config
	Segment  *segment.Config
	Features *melspec.Config
	Engine   *inference.Engine
	Logger   logging.Logger
}

// Pipeline sequences the classification stages over one recording:
// noise suppression, cough segmentation, mel featurization, inference
type Pipeline struct {
	config     *Config
	suppressor *denoise.Suppressor
	segmenter  *segment.Segmenter
	featurizer *melspec.Featurizer
	engine     *inference.Engine
	logger     logging.Logger
}

// New creates a pipeline from the given options. The engine is required;
// nil stage configs fall back to their defaults.
func New(opts *Options) (*Pipeline, error) {
	if opts == nil || opts.Engine == nil {
		return nil, audio.NewPipelineError(audio.StageClassify, audio.ErrCodeInvalidParameter,
			"classification engine is required", nil)
	}

	logger := opts.Logger
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	config := opts.Config
	if config == nil {
		config = DefaultConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	suppressor, err := denoise.NewSuppressor(opts.Denoise, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create noise suppressor: %w", err)
	}

	segmenter, err := segment.NewSegmenter(opts.Segment, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create segmenter: %w", err)
	}

	featurizer, err := melspec.NewFeaturizer(opts.Features, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create featurizer: %w", err)
	}

	return &Pipeline{
		config:     config,
		suppressor: suppressor,
		segmenter:  segmenter,
		featurizer: featurizer,
		engine:     opts.Engine,
		logger:     logger,
	}, nil
}

// Process runs the full classification sequence over one recording and
// returns the model's verdict. Recordings at or below the denoise gate skip
// cleanup and are featurized directly.
func (p *Pipeline) Process(ctx context.Context, signal *audio.Signal) (*inference.Result, error) {
	if signal == nil || len(signal.PCM) == 0 {
		return nil, audio.NewPipelineError(audio.StageDecode, audio.ErrCodeInvalidParameter,
			"signal must not be empty", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	startTime := time.Now()

	p.logger.Debug("Starting classification pipeline", logging.Fields{
		"samples":      len(signal.PCM),
		"sample_rate":  signal.SampleRate,
		"duration_sec": signal.Seconds(),
	})

	prepared, err := p.prepare(signal)
	if err != nil {
		return nil, err
	}

	tensor, err := p.featurizer.Compute(prepared)
	if err != nil {
		return nil, err
	}

	result, err := p.engine.Classify(ctx, tensor)
	if err != nil {
		return nil, err
	}

	p.logger.Debug("Classification pipeline complete", logging.Fields{
		"prediction": result.Label,
		"elapsed_ms": time.Since(startTime).Milliseconds(),
	})

	return result, nil
}

// prepare applies the denoise gate: long recordings are cleaned up and
// reduced to the cough segment, short ones pass through untouched
func (p *Pipeline) prepare(signal *audio.Signal) (*audio.Signal, error) {
	if signal.Duration <= p.config.MinDenoiseDuration {
		p.logger.Debug("Recording at or below denoise gate, skipping cleanup", logging.Fields{
			"duration_sec": signal.Seconds(),
			"gate_sec":     p.config.MinDenoiseDuration.Seconds(),
		})
		return signal, nil
	}

	denoised, err := p.suppressor.Process(signal)
	if err != nil {
		return nil, err
	}
	p.dumpSignal("denoised.wav", denoised)

	seg, err := p.segmenter.ExtractSegment(denoised)
	if err != nil {
		return nil, err
	}
	p.dumpSignal("segment.wav", seg.Signal)

	return seg.Signal, nil
}

// dumpSignal writes a debug WAV when a dump directory is configured.
// Failures are logged and never interrupt the pipeline.
func (p *Pipeline) dumpSignal(name string, signal *audio.Signal) {
	if p.config.DumpDir == "" {
		return
	}

	path := filepath.Join(p.config.DumpDir, name)
	if err := audio.EncodeWAVFile(path, signal); err != nil {
		p.logger.Warn("Failed to write debug audio dump", logging.Fields{
			"path":  path,
			"error": err.Error(),
		})
		return
	}

	p.logger.Debug("Wrote debug audio dump", logging.Fields{
		"path": path,
	})
}
