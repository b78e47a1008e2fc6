package app

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/respiralab/coughdx/configs"
	"github.com/respiralab/coughdx/internal/pipeline"
	"github.com/respiralab/coughdx/internal/report"
	"github.com/respiralab/coughdx/pkg/audio"
	"github.com/respiralab/coughdx/pkg/inference"
	"github.com/respiralab/coughdx/pkg/logging"
	"github.com/respiralab/coughdx/pkg/storage"
)

// Context holds the application context and configuration
type Context struct {
	// CLI arguments
	ConfigFile   string
	InputFile    string // recording path, bypasses the configured store
	OutputFile   string // report path, bypasses the configured store
	OutputFormat string
	ModelPath    string
	Device       string
	SessionID    string
	DumpDir      string
	Timeout      time.Duration
	Verbose      bool

	// Runtime context
	Logger logging.Logger
	Config *configs.Config
}

// App handles the classification application lifecycle
type App struct {
	ctx    *Context
	config *configs.Config
	logger logging.Logger
	runID  string
}

// NewApp creates a new classification application
func NewApp(ctx *Context) (*App, error) {
	logger := setupLogging(ctx)
	ctx.Logger = logger

	config, err := loadAndMergeConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	ctx.Config = config

	if level, err := logging.ParseLevel(config.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	runID := uuid.NewString()
	runLogger := logger.WithFields(logging.Fields{"run_id": runID})
	ctx.Logger = runLogger

	runLogger.Debug("Classifier application initialized", logging.Fields{
		"config_file":   ctx.ConfigFile,
		"output_format": config.OutputFormat,
		"model_path":    config.Model.ResolvePath(),
		"device":        config.Model.Device,
		"timeout_sec":   config.Pipeline.Timeout.Seconds(),
	})

	return &App{
		ctx:    ctx,
		config: config,
		logger: runLogger,
		runID:  runID,
	}, nil
}

// Run executes one classification: fetch the recording, run the pipeline,
// deliver the report
func (app *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithTimeout(ctx, app.config.Pipeline.Timeout)
	defer cancel()

	store, err := storage.NewStore(storageConfig(app.config), app.logger)
	if err != nil {
		return fmt.Errorf("failed to create store: %w", err)
	}

	name, signal, err := app.fetchSignal(runCtx, store)
	if err != nil {
		return fmt.Errorf("failed to load recording: %w", err)
	}

	app.logger.Debug("Recording loaded", logging.Fields{
		"recording":    name,
		"sample_rate":  signal.SampleRate,
		"duration_sec": signal.Seconds(),
	})

	model, err := inference.NewONNXModel(onnxConfig(app.config), app.logger)
	if err != nil {
		return fmt.Errorf("failed to load model: %w", err)
	}
	defer model.Close()

	engine, err := inference.NewEngine(model, app.config.Model.Classes, app.logger)
	if err != nil {
		return fmt.Errorf("failed to create classification engine: %w", err)
	}

	p, err := pipeline.New(pipelineOptions(app.config, engine, app.logger))
	if err != nil {
		return fmt.Errorf("failed to create pipeline: %w", err)
	}

	result, err := p.Process(runCtx, signal)
	if err != nil {
		return fmt.Errorf("classification failed: %w", err)
	}

	formatter := report.ForFormat(app.config.OutputFormat)
	data, err := formatter.Format(result)
	if err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}

	destination, err := app.deliverReport(runCtx, store, formatter.Filename(), data)
	if err != nil {
		return fmt.Errorf("failed to deliver report: %w", err)
	}

	app.logger.Info("Prediction written", logging.Fields{
		"prediction":  result.Label,
		"destination": destination,
	})

	return nil
}

// fetchSignal loads and decodes the recording, either from the explicit
// CLI path or through the configured store
func (app *App) fetchSignal(ctx context.Context, store storage.Store) (string, *audio.Signal, error) {
	if app.ctx.InputFile != "" {
		signal, err := audio.DecodeWAVFile(app.ctx.InputFile)
		if err != nil {
			return "", nil, err
		}
		return filepath.Base(app.ctx.InputFile), signal, nil
	}

	name, reader, err := store.FetchInput(ctx)
	if err != nil {
		return "", nil, err
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return "", nil, audio.NewPipelineError(audio.StageStorage, audio.ErrCodeStorage,
			fmt.Sprintf("failed to read recording %s", name), err)
	}

	signal, err := audio.DecodeWAV(bytes.NewReader(data))
	if err != nil {
		return "", nil, err
	}

	return name, signal, nil
}

// deliverReport writes the report to the explicit CLI path or through the
// configured store. Without an explicit path the report is also echoed to
// stdout so interactive runs see the verdict.
func (app *App) deliverReport(ctx context.Context, store storage.Store, name string, data []byte) (string, error) {
	if app.ctx.OutputFile != "" {
		if err := os.WriteFile(app.ctx.OutputFile, data, 0644); err != nil {
			return "", fmt.Errorf("failed to write report to %s: %w", app.ctx.OutputFile, err)
		}
		return app.ctx.OutputFile, nil
	}

	destination, err := store.StoreReport(ctx, name, data)
	if err != nil {
		return "", err
	}

	if _, err := os.Stdout.Write(data); err != nil {
		return "", err
	}

	return destination, nil
}

// setupLogging configures logging based on context
func setupLogging(ctx *Context) logging.Logger {
	logger := logging.NewDefaultLogger()
	if ctx.Verbose {
		logger.SetLevel(logging.DebugLevel)
	}
	return logger
}
