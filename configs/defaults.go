package configs

import (
	"time"

	"github.com/spf13/viper"
)

// SetDefaults registers default configuration values for all components.
// Registering every key also makes environment-only values visible to
// Unmarshal.
func SetDefaults(v *viper.Viper) {
	// Application defaults
	v.SetDefault("verbose", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("output_format", "text")

	// Noise suppression defaults
	v.SetDefault("denoise.window_size", 2048)
	v.SetDefault("denoise.hop_length", 512)
	v.SetDefault("denoise.reference_duration", 500*time.Millisecond)
	v.SetDefault("denoise.level", 1.5)

	// Cough segmentation defaults
	v.SetDefault("segment.amplitude_threshold", 0.05)
	v.SetDefault("segment.segment_duration", 1*time.Second)
	v.SetDefault("segment.pre_roll", 500*time.Millisecond)

	// Mel featurization defaults
	v.SetDefault("features.mel_bands", 128)
	v.SetDefault("features.window_size", 2048)
	v.SetDefault("features.hop_length", 512)
	v.SetDefault("features.low_freq", 0.0)
	v.SetDefault("features.high_freq", 0.0)
	v.SetDefault("features.top_db", 80.0)
	v.SetDefault("features.norm_low", 0.0)
	v.SetDefault("features.norm_high", 1.0)

	// Model defaults
	v.SetDefault("model.path", "")
	v.SetDefault("model.dir", "/app")
	v.SetDefault("model.filename", "model.onnx")
	v.SetDefault("model.classes", []string{"neither", "viral", "bacterial"})
	v.SetDefault("model.device", "cpu")
	v.SetDefault("model.intra_op_threads", 0)
	v.SetDefault("model.library_path", "")

	// Pipeline defaults
	v.SetDefault("pipeline.min_denoise_duration", 1*time.Second)
	v.SetDefault("pipeline.dump_dir", "")
	v.SetDefault("pipeline.timeout", 2*time.Minute)

	// Storage defaults
	v.SetDefault("storage.mode", "auto")
	v.SetDefault("storage.input_dir", "/data/input")
	v.SetDefault("storage.audio_filename", "audio.wav")
	v.SetDefault("storage.output_dir", "/data/output")
	v.SetDefault("storage.s3.endpoint", "s3.amazonaws.com")
	v.SetDefault("storage.s3.region", "")
	v.SetDefault("storage.s3.bucket", "")
	v.SetDefault("storage.s3.access_key", "")
	v.SetDefault("storage.s3.secret_key", "")
	v.SetDefault("storage.s3.use_ssl", true)
	v.SetDefault("storage.s3.session_id", "")
}

// BindLegacyEnv maps the container environment variables older deployments
// export onto their config keys. The prefixed names stay authoritative when
// both are set.
func BindLegacyEnv(v *viper.Viper) {
	legacy := map[string][]string{
		"storage.mode":           {"COUGHDX_STORAGE_MODE", "INPUT_MODE"},
		"storage.input_dir":      {"COUGHDX_STORAGE_INPUT_DIR", "INPUT_DIR"},
		"storage.audio_filename": {"COUGHDX_STORAGE_AUDIO_FILENAME", "AUDIO_FILENAME"},
		"storage.output_dir":     {"COUGHDX_STORAGE_OUTPUT_DIR", "OUTPUT_DIR"},
		"storage.s3.bucket":      {"COUGHDX_STORAGE_S3_BUCKET", "S3_BUCKET"},
		"storage.s3.session_id":  {"COUGHDX_STORAGE_S3_SESSION_ID", "SESSION_ID"},
		"model.filename":         {"COUGHDX_MODEL_FILENAME", "MODEL_FILENAME"},
	}

	for key, names := range legacy {
		input := append([]string{key}, names...)
		// BindEnv never fails with a non-empty key
		_ = v.BindEnv(input...)
	}
}

// GetDefaultConfig returns a Config struct with all default values set
func GetDefaultConfig() *Config {
	return &Config{
		// Application settings defaults
		Verbose:      false,
		LogLevel:     "info",
		OutputFormat: "text",

		// Noise suppression defaults
		Denoise: GetDefaultDenoiseConfig(),

		// Cough segmentation defaults
		Segment: GetDefaultSegmentConfig(),

		// Mel featurization defaults
		Features: GetDefaultFeaturesConfig(),

		// Classifier model defaults
		Model: GetDefaultModelConfig(),

		// Pipeline sequencing defaults
		Pipeline: GetDefaultPipelineConfig(),

		// Exchange defaults
		Storage: GetDefaultStorageConfig(),
	}
}

// GetDefaultDenoiseConfig returns default spectral gating settings
func GetDefaultDenoiseConfig() DenoiseConfig {
	return DenoiseConfig{
		WindowSize:        2048,
		HopLength:         512,
		ReferenceDuration: 500 * time.Millisecond,
		Level:             1.5,
	}
}

// GetDefaultSegmentConfig returns default cough extraction settings
func GetDefaultSegmentConfig() SegmentConfig {
	return SegmentConfig{
		AmplitudeThreshold: 0.05,
		SegmentDuration:    1 * time.Second,
		PreRoll:            500 * time.Millisecond,
	}
}

// GetDefaultFeaturesConfig returns default mel spectrogram settings
func GetDefaultFeaturesConfig() FeaturesConfig {
	return FeaturesConfig{
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

// GetDefaultModelConfig returns default classifier model settings
func GetDefaultModelConfig() ModelConfig {
	return ModelConfig{
		Dir:            "/app",
		Filename:       "model.onnx",
		Classes:        []string{"neither", "viral", "bacterial"},
		Device:         "cpu",
		IntraOpThreads: 0,
	}
}

// GetDefaultPipelineConfig returns default stage sequencing settings
func GetDefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		MinDenoiseDuration: 1 * time.Second,
		Timeout:            2 * time.Minute,
	}
}

// GetDefaultStorageConfig returns the container exchange layout defaults
func GetDefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Mode:          "auto",
		InputDir:      "/data/input",
		AudioFilename: "audio.wav",
		OutputDir:     "/data/output",
		S3: S3Config{
			Endpoint: "s3.amazonaws.com",
			UseSSL:   true,
		},
	}
}
