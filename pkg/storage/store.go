package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/respiralab/coughdx/pkg/audio"
	"github.com/respiralab/coughdx/pkg/logging"
)

// Mode selects where recordings come from and reports go to
type Mode string

const (
	ModeAuto  Mode = "auto"
	ModeLocal Mode = "local"
	ModeS3    Mode = "s3"
)

// Store abstracts the exchange directory the pipeline runs against: one
// input recording in, one report out
type Store interface {
	// FetchInput returns the recording name and a reader for its bytes.
	// The caller owns closing the reader.
	FetchInput(ctx context.Context) (string, io.ReadCloser, error)

	// StoreReport persists the report under the given name and returns
	// the destination it was written to
	StoreReport(ctx context.Context, name string, data []byte) (string, error)
}

// Config holds configuration for input and report storage
type Config struct {
	// Mode is local, s3, or auto. Auto picks s3 when a bucket is
	// configured and falls back to the local directories otherwise.
	Mode string `json:"mode"`

	// Local exchange layout
	InputDir      string `json:"input_dir"`
	AudioFilename string `json:"audio_filename"`
	OutputDir     string `json:"output_dir"`

	S3 S3Config `json:"s3"`
}

// S3Config holds the object storage settings for s3 mode
type S3Config struct {
	Endpoint  string `json:"endpoint"`
	Region    string `json:"region"`
	Bucket    string `json:"bucket"`
	AccessKey string `json:"access_key"`
	SecretKey string `json:"secret_key"`
	UseSSL    bool   `json:"use_ssl"`

	// SessionID namespaces one exchange: input under
	// {session_id}/input/, the report at {session_id}/{name}
	SessionID string `json:"session_id"`
}

// DefaultConfig returns the container exchange layout used by deployments
func DefaultConfig() *Config {
	return &Config{
		Mode:          string(ModeAuto),
		InputDir:      "/data/input",
		AudioFilename: "audio.wav",
		OutputDir:     "/data/output",
		S3: S3Config{
			Endpoint: "s3.amazonaws.com",
			UseSSL:   true,
		},
	}
}

// DetectMode resolves the effective mode from the config
func DetectMode(config *Config) Mode {
	switch Mode(strings.ToLower(config.Mode)) {
	case ModeLocal:
		return ModeLocal
	case ModeS3:
		return ModeS3
	default:
		if config.S3.Bucket != "" {
			return ModeS3
		}
		return ModeLocal
	}
}

// NewStore creates the store for the configured mode
func NewStore(config *Config, logger logging.Logger) (Store, error) {
	if config == nil {
		config = DefaultConfig()
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}

	switch DetectMode(config) {
	case ModeS3:
		return NewS3Store(config, logger)
	default:
		return NewLocalStore(config, logger)
	}
}

// LocalStore exchanges files through local directories
type LocalStore struct {
	inputDir      string
	audioFilename string
	outputDir     string
	logger        logging.Logger
}

// NewLocalStore creates a store over the configured local directories
func NewLocalStore(config *Config, logger logging.Logger) (*LocalStore, error) {
	if config.InputDir == "" {
		return nil, audio.NewPipelineError(audio.StageStorage, audio.ErrCodeInvalidParameter,
			"input directory must not be empty", nil)
	}
	if config.AudioFilename == "" {
		return nil, audio.NewPipelineError(audio.StageStorage, audio.ErrCodeInvalidParameter,
			"audio filename must not be empty", nil)
	}
	if config.OutputDir == "" {
		return nil, audio.NewPipelineError(audio.StageStorage, audio.ErrCodeInvalidParameter,
			"output directory must not be empty", nil)
	}

	return &LocalStore{
		inputDir:      config.InputDir,
		audioFilename: config.AudioFilename,
		outputDir:     config.OutputDir,
		logger:        logger,
	}, nil
}

// FetchInput opens the configured recording file
func (s *LocalStore) FetchInput(ctx context.Context) (string, io.ReadCloser, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	path := filepath.Join(s.inputDir, s.audioFilename)

	f, err := os.Open(path)
	if err != nil {
		return "", nil, audio.NewPipelineError(audio.StageStorage, audio.ErrCodeStorage,
			fmt.Sprintf("failed to open input recording %s", path), err)
	}

	s.logger.Debug("Opened local input recording", logging.Fields{
		"path": path,
	})

	return s.audioFilename, f, nil
}

// StoreReport writes the report into the output directory
func (s *LocalStore) StoreReport(ctx context.Context, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	if err := os.MkdirAll(s.outputDir, 0755); err != nil {
		return "", audio.NewPipelineError(audio.StageStorage, audio.ErrCodeStorage,
			fmt.Sprintf("failed to create output directory %s", s.outputDir), err)
	}

	path := filepath.Join(s.outputDir, name)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", audio.NewPipelineError(audio.StageStorage, audio.ErrCodeStorage,
			fmt.Sprintf("failed to write report %s", path), err)
	}

	s.logger.Debug("Wrote local report", logging.Fields{
		"path":  path,
		"bytes": len(data),
	})

	return path, nil
}
