package app

import (
	"fmt"

	"github.com/respiralab/coughdx/configs"
	"github.com/respiralab/coughdx/internal/pipeline"
	"github.com/respiralab/coughdx/pkg/audio/denoise"
	"github.com/respiralab/coughdx/pkg/audio/melspec"
	"github.com/respiralab/coughdx/pkg/audio/segment"
	"github.com/respiralab/coughdx/pkg/inference"
	"github.com/respiralab/coughdx/pkg/logging"
	"github.com/respiralab/coughdx/pkg/storage"
)

// loadAndMergeConfig loads the resolved configuration and applies CLI
// flag overrides
func loadAndMergeConfig(ctx *Context) (*configs.Config, error) {
	config, err := configs.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load base configuration: %w", err)
	}

	mergeContext(config, ctx)

	if err := configs.ValidateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// mergeContext overrides configuration values with CLI flags
func mergeContext(config *configs.Config, ctx *Context) {
	if ctx.OutputFormat != "" {
		config.OutputFormat = ctx.OutputFormat
	}
	if ctx.Timeout > 0 {
		config.Pipeline.Timeout = ctx.Timeout
	}
	if ctx.ModelPath != "" {
		config.Model.Path = ctx.ModelPath
	}
	if ctx.Device != "" {
		config.Model.Device = ctx.Device
	}
	if ctx.DumpDir != "" {
		config.Pipeline.DumpDir = ctx.DumpDir
	}
	if ctx.SessionID != "" {
		config.Storage.S3.SessionID = ctx.SessionID
	}
	if ctx.Verbose {
		config.Verbose = true
		config.LogLevel = "debug"
	}
}

// denoiseConfig maps the app configuration onto the suppressor settings
func denoiseConfig(config *configs.Config) *denoise.Config {
	return &denoise.Config{
		WindowSize:        config.Denoise.WindowSize,
		HopLength:         config.Denoise.HopLength,
		ReferenceDuration: config.Denoise.ReferenceDuration,
		Level:             config.Denoise.Level,
	}
}

// segmentConfig maps the app configuration onto the segmenter settings
func segmentConfig(config *configs.Config) *segment.Config {
	return &segment.Config{
		AmplitudeThreshold: config.Segment.AmplitudeThreshold,
		SegmentDuration:    config.Segment.SegmentDuration,
		PreRoll:            config.Segment.PreRoll,
	}
}

// featuresConfig maps the app configuration onto the featurizer settings
func featuresConfig(config *configs.Config) *melspec.Config {
	return &melspec.Config{
		MelBands:   config.Features.MelBands,
		WindowSize: config.Features.WindowSize,
		HopLength:  config.Features.HopLength,
		LowFreq:    config.Features.LowFreq,
		HighFreq:   config.Features.HighFreq,
		TopDB:      config.Features.TopDB,
		NormLow:    config.Features.NormLow,
		NormHigh:   config.Features.NormHigh,
	}
}

// onnxConfig maps the app configuration onto the model runtime settings
func onnxConfig(config *configs.Config) *inference.ONNXConfig {
	return &inference.ONNXConfig{
		ModelPath:      config.Model.ResolvePath(),
		Device:         config.Model.Device,
		IntraOpThreads: config.Model.IntraOpThreads,
		LibraryPath:    config.Model.LibraryPath,
	}
}

// storageConfig maps the app configuration onto the exchange settings
func storageConfig(config *configs.Config) *storage.Config {
	return &storage.Config{
		Mode:          config.Storage.Mode,
		InputDir:      config.Storage.InputDir,
		AudioFilename: config.Storage.AudioFilename,
		OutputDir:     config.Storage.OutputDir,
		S3: storage.S3Config{
			Endpoint:  config.Storage.S3.Endpoint,
			Region:    config.Storage.S3.Region,
			Bucket:    config.Storage.S3.Bucket,
			AccessKey: config.Storage.S3.AccessKey,
			SecretKey: config.Storage.S3.SecretKey,
			UseSSL:    config.Storage.S3.UseSSL,
			SessionID: config.Storage.S3.SessionID,
		},
	}
}

// pipelineOptions assembles the stage options for the configured pipeline
func pipelineOptions(config *configs.Config, engine *inference.Engine, logger logging.Logger) *pipeline.Options {
	return &pipeline.Options{
		Config: &pipeline.Config{
			MinDenoiseDuration: config.Pipeline.MinDenoiseDuration,
			DumpDir:            config.Pipeline.DumpDir,
		},
		Denoise:  denoiseConfig(config),
		Segment:  segmentConfig(config),
		Features: featuresConfig(config),
		Engine:   engine,
		Logger:   logger,
	}
}
