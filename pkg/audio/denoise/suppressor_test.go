package denoise

import (
	"math"
	"testing"
	"time"

	"github.com/respiralab/coughdx/pkg/audio"
	"github.com/respiralab/coughdx/pkg/logging"
)

// testConfig keeps the windows small so tests stay fast
func testConfig() *Config {
	return &Config{
		WindowSize:        1024,
		HopLength:         256,
		ReferenceDuration: 500 * time.Millisecond,
		Level:             1.5,
	}
}

func makeSineSignal(freq, amplitude float64, sampleRate int, duration time.Duration) *audio.Signal {
	length := int(duration.Seconds() * float64(sampleRate))
	pcm := make([]float64, length)
	for i := range pcm {
		pcm[i] = amplitude * math.Sin(2*math.Pi*freq*float64(i)/float64(sampleRate))
	}
	return audio.NewSignal(pcm, sampleRate)
}

func rms(samples []float64) float64 {
	if len(samples) == 0 {
		return 0
	}
	sum := 0.0
	for _, s := range samples {
		sum += s * s
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// TestConfigValidate checks rejection of invalid suppression parameters.
func TestConfigValidate(t *testing.T) {
	type test struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}

	tests := []test{
		{"default", func(c *Config) {}, false},
		{"zero window", func(c *Config) { c.WindowSize = 0 }, true},
		{"zero hop", func(c *Config) { c.HopLength = 0 }, true},
		{"negative reference", func(c *Config) { c.ReferenceDuration = -time.Second }, true},
		{"zero level", func(c *Config) { c.Level = 0 }, true},
		{"negative level", func(c *Config) { c.Level = -1.5 }, true},
	}

	for _, tt := range tests {
		cfg := DefaultConfig()
		tt.mutate(cfg)

		err := cfg.Validate()
		if (err != nil) != tt.wantErr {
			t.Errorf("Validate(%s): want error %v, got %v", tt.name, tt.wantErr, err)
		}
	}
}

// TestEstimateNoise checks the profile shape and non-negativity.
func TestEstimateNoise(t *testing.T) {
	suppressor, err := NewSuppressor(testConfig(), &logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewSuppressor: unexpected error: %v", err)
	}

	signal := makeSineSignal(440, 0.5, 8000, 2*time.Second)

	profile, err := suppressor.EstimateNoise(signal)
	if err != nil {
		t.Fatalf("EstimateNoise: unexpected error: %v", err)
	}

	wantBins := 1024/2 + 1
	if len(profile.Power) != wantBins {
		t.Errorf("EstimateNoise: want %d bins, got %d", wantBins, len(profile.Power))
	}
	if profile.WindowSize != 1024 {
		t.Errorf("EstimateNoise: want window size 1024, got %d", profile.WindowSize)
	}

	for f, p := range profile.Power {
		if p < 0 {
			t.Errorf("EstimateNoise: bin %d has negative power %v", f, p)
		}
	}
}

// TestEstimateNoiseShortSignal checks that signals shorter than the
// reference window fall back to using the whole signal.
func TestEstimateNoiseShortSignal(t *testing.T) {
	suppressor, err := NewSuppressor(testConfig(), &logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewSuppressor: unexpected error: %v", err)
	}

	// 100ms signal, well under the 500ms reference window
	signal := makeSineSignal(440, 0.5, 8000, 100*time.Millisecond)

	profile, err := suppressor.EstimateNoise(signal)
	if err != nil {
		t.Fatalf("EstimateNoise(short): unexpected error: %v", err)
	}
	if len(profile.Power) != 513 {
		t.Errorf("EstimateNoise(short): want 513 bins, got %d", len(profile.Power))
	}
}

// TestSuppressStationaryTone checks that a tone present in the reference
// window is gated out of the rest of the signal.
func TestSuppressStationaryTone(t *testing.T) {
	suppressor, err := NewSuppressor(testConfig(), &logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewSuppressor: unexpected error: %v", err)
	}

	signal := makeSineSignal(440, 0.5, 8000, 2*time.Second)
	inputRMS := rms(signal.PCM)

	out, err := suppressor.Process(signal)
	if err != nil {
		t.Fatalf("Process: unexpected error: %v", err)
	}

	if len(out.PCM) != len(signal.PCM) {
		t.Fatalf("Process: want output length %d, got %d", len(signal.PCM), len(out.PCM))
	}
	if out.SampleRate != signal.SampleRate {
		t.Errorf("Process: want sample rate %d, got %d", signal.SampleRate, out.SampleRate)
	}

	outputRMS := rms(out.PCM)
	if outputRMS > 0.05*inputRMS {
		t.Errorf("Process: stationary tone not suppressed, input RMS %v, output RMS %v", inputRMS, outputRMS)
	}
}

// TestSuppressOverestimatedProfile checks the spectral floor: a profile far
// louder than the signal gates the audible bins to zero instead of swinging
// the magnitude negative and injecting energy, leaving near-silence.
func TestSuppressOverestimatedProfile(t *testing.T) {
	suppressor, err := NewSuppressor(testConfig(), &logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewSuppressor: unexpected error: %v", err)
	}

	signal := makeSineSignal(440, 0.5, 8000, time.Second)

	profile, err := suppressor.EstimateNoise(signal)
	if err != nil {
		t.Fatalf("EstimateNoise: unexpected error: %v", err)
	}
	for i := range profile.Power {
		profile.Power[i] *= 100
	}

	out, err := suppressor.Suppress(signal, profile)
	if err != nil {
		t.Fatalf("Suppress: unexpected error: %v", err)
	}

	if outputRMS := rms(out.PCM); outputRMS > 0.01*rms(signal.PCM) {
		t.Errorf("Suppress: overestimated profile should leave near-silence, got RMS %v", outputRMS)
	}
}

// TestSuppressSilence checks that silence passes through as silence.
func TestSuppressSilence(t *testing.T) {
	suppressor, err := NewSuppressor(testConfig(), &logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewSuppressor: unexpected error: %v", err)
	}

	signal := audio.NewSignal(make([]float64, 16000), 8000)

	out, err := suppressor.Process(signal)
	if err != nil {
		t.Fatalf("Process(silence): unexpected error: %v", err)
	}

	if len(out.PCM) != len(signal.PCM) {
		t.Fatalf("Process(silence): want length %d, got %d", len(signal.PCM), len(out.PCM))
	}
	if peak := rms(out.PCM); peak > 1e-9 {
		t.Errorf("Process(silence): want silent output, got RMS %v", peak)
	}
}

// TestSuppressValidation checks argument validation on the suppression path.
func TestSuppressValidation(t *testing.T) {
	suppressor, err := NewSuppressor(testConfig(), &logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewSuppressor: unexpected error: %v", err)
	}

	signal := makeSineSignal(440, 0.5, 8000, time.Second)

	if _, err := suppressor.EstimateNoise(nil); err == nil {
		t.Error("EstimateNoise(nil): want error, got nil")
	}

	if _, err := suppressor.Suppress(nil, &NoiseProfile{Power: []float64{0}, WindowSize: 1024}); err == nil {
		t.Error("Suppress(nil signal): want error, got nil")
	}

	if _, err := suppressor.Suppress(signal, nil); err == nil {
		t.Error("Suppress(nil profile): want error, got nil")
	}

	wrongWindow := &NoiseProfile{Power: make([]float64, 513), WindowSize: 2048}
	if _, err := suppressor.Suppress(signal, wrongWindow); err == nil {
		t.Error("Suppress(mismatched window): want error, got nil")
	}

	wrongBins := &NoiseProfile{Power: make([]float64, 100), WindowSize: 1024}
	if _, err := suppressor.Suppress(signal, wrongBins); err == nil {
		t.Error("Suppress(mismatched bins): want error, got nil")
	}
}

// TestNewSuppressorDefaults checks nil config and logger fallbacks.
func TestNewSuppressorDefaults(t *testing.T) {
	suppressor, err := NewSuppressor(nil, nil)
	if err != nil {
		t.Fatalf("NewSuppressor(nil, nil): unexpected error: %v", err)
	}
	if suppressor.config.WindowSize != 2048 || suppressor.config.HopLength != 512 {
		t.Errorf("NewSuppressor(nil, nil): want default 2048/512, got %d/%d",
			suppressor.config.WindowSize, suppressor.config.HopLength)
	}
	if suppressor.config.Level != 1.5 {
		t.Errorf("NewSuppressor(nil, nil): want default level 1.5, got %v", suppressor.config.Level)
	}
}
