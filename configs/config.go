package configs

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	// Application settings
	Verbose      bool   `mapstructure:"verbose"`
	LogLevel     string `mapstructure:"log_level"`
	OutputFormat string `mapstructure:"output_format"`

	// Noise suppression settings
	Denoise DenoiseConfig `mapstructure:"denoise"`

	// Cough segmentation settings
	Segment SegmentConfig `mapstructure:"segment"`

	// Mel featurization settings
	Features FeaturesConfig `mapstructure:"features"`

	// Classifier model settings
	Model ModelConfig `mapstructure:"model"`

	// Pipeline sequencing settings
	Pipeline PipelineConfig `mapstructure:"pipeline"`

	// Recording input and report output exchange
	Storage StorageConfig `mapstructure:"storage"`
}

// DenoiseConfig contains spectral gating settings
type DenoiseConfig struct {
	WindowSize        int           `mapstructure:"window_size"`
	HopLength         int           `mapstructure:"hop_length"`
	ReferenceDuration time.Duration `mapstructure:"reference_duration"`
	Level             float64       `mapstructure:"level"`
}

// SegmentConfig contains cough extraction settings
type SegmentConfig struct {
	AmplitudeThreshold float64       `mapstructure:"amplitude_threshold"`
	SegmentDuration    time.Duration `mapstructure:"segment_duration"`
	PreRoll            time.Duration `mapstructure:"pre_roll"`
}

// FeaturesConfig contains mel spectrogram settings
type FeaturesConfig struct {
	MelBands   int     `mapstructure:"mel_bands"`
	WindowSize int     `mapstructure:"window_size"`
	HopLength  int     `mapstructure:"hop_length"`
	LowFreq    float64 `mapstructure:"low_freq"`
	HighFreq   float64 `mapstructure:"high_freq"`
	TopDB      float64 `mapstructure:"top_db"`
	NormLow    float64 `mapstructure:"norm_low"`
	NormHigh   float64 `mapstructure:"norm_high"`
}

// ModelConfig contains classifier model settings
type ModelConfig struct {
	// Path overrides Dir+Filename when set
	Path           string   `mapstructure:"path"`
	Dir            string   `mapstructure:"dir"`
	Filename       string   `mapstructure:"filename"`
	Classes        []string `mapstructure:"classes"`
	Device         string   `mapstructure:"device"`
	IntraOpThreads int      `mapstructure:"intra_op_threads"`
	LibraryPath    string   `mapstructure:"library_path"`
}

// ResolvePath returns the model file location, preferring the explicit path
func (c ModelConfig) ResolvePath() string {
	if c.Path != "" {
		return c.Path
	}
	if c.Dir == "" && c.Filename == "" {
		return ""
	}
	return filepath.Join(c.Dir, c.Filename)
}

// PipelineConfig contains stage sequencing settings
type PipelineConfig struct {
	MinDenoiseDuration time.Duration `mapstructure:"min_denoise_duration"`
	DumpDir            string        `mapstructure:"dump_dir"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

// StorageConfig contains recording and report exchange settings
type StorageConfig struct {
	Mode          string   `mapstructure:"mode"`
	InputDir      string   `mapstructure:"input_dir"`
	AudioFilename string   `mapstructure:"audio_filename"`
	OutputDir     string   `mapstructure:"output_dir"`
	S3            S3Config `mapstructure:"s3"`
}

// S3Config contains object storage settings
type S3Config struct {
	Endpoint  string `mapstructure:"endpoint"`
	Region    string `mapstructure:"region"`
	Bucket    string `mapstructure:"bucket"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	SessionID string `mapstructure:"session_id"`
}

// LoadConfig loads configuration from viper
func LoadConfig() (*Config, error) {
	config := &Config{}

	if err := viper.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("unable to decode configuration: %w", err)
	}

	return config, nil
}

// ValidateConfig validates the configuration
func ValidateConfig(config *Config) error {
	switch config.OutputFormat {
	case "text", "json", "yaml":
	default:
		return fmt.Errorf("output format must be text, json, or yaml")
	}

	if config.Denoise.WindowSize <= 0 {
		return fmt.Errorf("denoise window size must be positive")
	}
	if config.Denoise.HopLength <= 0 || config.Denoise.HopLength > config.Denoise.WindowSize {
		return fmt.Errorf("denoise hop length must be positive and at most the window size")
	}
	if config.Denoise.ReferenceDuration <= 0 {
		return fmt.Errorf("denoise reference duration must be positive")
	}
	if config.Denoise.Level <= 0 {
		return fmt.Errorf("denoise level must be positive")
	}

	if config.Segment.AmplitudeThreshold <= 0 || config.Segment.AmplitudeThreshold >= 1 {
		return fmt.Errorf("segment amplitude threshold must be between 0 and 1")
	}
	if config.Segment.SegmentDuration <= 0 {
		return fmt.Errorf("segment duration must be positive")
	}
	if config.Segment.PreRoll < 0 || config.Segment.PreRoll > config.Segment.SegmentDuration {
		return fmt.Errorf("segment pre-roll must be between 0 and the segment duration")
	}

	if config.Features.MelBands <= 0 {
		return fmt.Errorf("features mel bands must be positive")
	}
	if config.Features.WindowSize <= 0 {
		return fmt.Errorf("features window size must be positive")
	}
	if config.Features.HopLength <= 0 || config.Features.HopLength > config.Features.WindowSize {
		return fmt.Errorf("features hop length must be positive and at most the window size")
	}
	if config.Features.TopDB <= 0 {
		return fmt.Errorf("features top db must be positive")
	}
	if config.Features.NormHigh <= config.Features.NormLow {
		return fmt.Errorf("features normalization range must not be empty")
	}

	if config.Model.ResolvePath() == "" {
		return fmt.Errorf("model path must be set")
	}
	if len(config.Model.Classes) == 0 {
		return fmt.Errorf("model classes must not be empty")
	}
	switch config.Model.Device {
	case "", "cpu", "cuda", "coreml":
	default:
		return fmt.Errorf("model device must be cpu, cuda, or coreml")
	}
	if config.Model.IntraOpThreads < 0 {
		return fmt.Errorf("model intra-op threads cannot be negative")
	}

	if config.Pipeline.MinDenoiseDuration < 0 {
		return fmt.Errorf("pipeline min denoise duration cannot be negative")
	}
	if config.Pipeline.Timeout <= 0 {
		return fmt.Errorf("pipeline timeout must be positive")
	}

	switch config.Storage.Mode {
	case "", "auto", "local", "s3":
	default:
		return fmt.Errorf("storage mode must be auto, local, or s3")
	}

	return nil
}
