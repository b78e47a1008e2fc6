package app

import (
	"context"
	"testing"
	"time"

	"github.com/respiralab/coughdx/configs"
	"github.com/respiralab/coughdx/pkg/audio/melspec"
	"github.com/respiralab/coughdx/pkg/inference"
	"github.com/respiralab/coughdx/pkg/logging"
)

type stubModel struct{}

func (m *stubModel) Predict(ctx context.Context, tensor *melspec.FeatureTensor) ([]float64, error) {
	return []float64{1, 0, 0}, nil
}

func (m *stubModel) Close() error { return nil }

// TestMergeContext checks CLI flags override loaded configuration and
// unset flags leave it untouched
func TestMergeContext(t *testing.T) {
	config := configs.GetDefaultConfig()

	mergeContext(config, &Context{})

	if config.OutputFormat != "text" {
		t.Errorf("mergeContext(empty): output format changed to %s", config.OutputFormat)
	}
	if config.Model.Device != "cpu" {
		t.Errorf("mergeContext(empty): device changed to %s", config.Model.Device)
	}

	config = configs.GetDefaultConfig()
	mergeContext(config, &Context{
		OutputFormat: "json",
		Timeout:      30 * time.Second,
		ModelPath:    "/tmp/custom.onnx",
		Device:       "cuda",
		SessionID:    "run-42",
		DumpDir:      "/tmp/dumps",
		Verbose:      true,
	})

	if config.OutputFormat != "json" {
		t.Errorf("mergeContext: want output format json, got %s", config.OutputFormat)
	}
	if config.Pipeline.Timeout != 30*time.Second {
		t.Errorf("mergeContext: want timeout 30s, got %s", config.Pipeline.Timeout)
	}
	if config.Model.ResolvePath() != "/tmp/custom.onnx" {
		t.Errorf("mergeContext: want model path /tmp/custom.onnx, got %s", config.Model.ResolvePath())
	}
	if config.Model.Device != "cuda" {
		t.Errorf("mergeContext: want device cuda, got %s", config.Model.Device)
	}
	if config.Storage.S3.SessionID != "run-42" {
		t.Errorf("mergeContext: want session run-42, got %s", config.Storage.S3.SessionID)
	}
	if config.Pipeline.DumpDir != "/tmp/dumps" {
		t.Errorf("mergeContext: want dump dir /tmp/dumps, got %s", config.Pipeline.DumpDir)
	}
	if !config.Verbose || config.LogLevel != "debug" {
		t.Errorf("mergeContext: verbose should force debug logging, got verbose=%v level=%s",
			config.Verbose, config.LogLevel)
	}
}

// TestStageConfigMapping checks the app configuration reaches every stage
func TestStageConfigMapping(t *testing.T) {
	config := configs.GetDefaultConfig()
	config.Denoise.WindowSize = 1024
	config.Denoise.Level = 2.0
	config.Segment.AmplitudeThreshold = 0.1
	config.Features.MelBands = 64
	config.Features.NormHigh = 2
	config.Model.Path = "/models/cough.onnx"
	config.Model.IntraOpThreads = 2
	config.Pipeline.MinDenoiseDuration = 3 * time.Second
	config.Storage.S3.Bucket = "recordings"

	if got := denoiseConfig(config); got.WindowSize != 1024 || got.Level != 2.0 {
		t.Errorf("denoiseConfig: got window=%d level=%v", got.WindowSize, got.Level)
	}
	if got := segmentConfig(config); got.AmplitudeThreshold != 0.1 {
		t.Errorf("segmentConfig: got threshold=%v", got.AmplitudeThreshold)
	}
	if got := featuresConfig(config); got.MelBands != 64 || got.NormHigh != 2 {
		t.Errorf("featuresConfig: got mel bands=%d norm high=%v", got.MelBands, got.NormHigh)
	}
	if got := onnxConfig(config); got.ModelPath != "/models/cough.onnx" || got.IntraOpThreads != 2 {
		t.Errorf("onnxConfig: got path=%s threads=%d", got.ModelPath, got.IntraOpThreads)
	}
	if got := storageConfig(config); got.S3.Bucket != "recordings" {
		t.Errorf("storageConfig: got bucket=%s", got.S3.Bucket)
	}

	engine, err := inference.NewEngine(&stubModel{}, config.Model.Classes, &logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	opts := pipelineOptions(config, engine, &logging.NoOpLogger{})
	if opts.Config.MinDenoiseDuration != 3*time.Second {
		t.Errorf("pipelineOptions: got gate=%s", opts.Config.MinDenoiseDuration)
	}
	if opts.Engine != engine {
		t.Error("pipelineOptions: engine not carried through")
	}
	if opts.Denoise.WindowSize != 1024 || opts.Features.MelBands != 64 {
		t.Errorf("pipelineOptions: stage configs not carried through")
	}
}
