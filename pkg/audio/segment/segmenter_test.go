package segment

import (
	"testing"
	"time"

	"github.com/respiralab/coughdx/pkg/audio"
	"github.com/respiralab/coughdx/pkg/logging"
)

const testSampleRate = 8000

// makeRecording builds a quiet signal with a burst of the given amplitude
// written at burstIndex
func makeRecording(length, burstIndex int, amplitude float64) *audio.Signal {
	pcm := make([]float64, length)
	for i := range pcm {
		pcm[i] = 0.01
	}
	for i := burstIndex; i < burstIndex+40 && i < length; i++ {
		pcm[i] = amplitude
	}
	return audio.NewSignal(pcm, testSampleRate)
}

// TestConfigValidate checks rejection of invalid segmentation parameters.
func TestConfigValidate(t *testing.T) {
	type test struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}

	tests := []test{
		{"default", func(c *Config) {}, false},
		{"zero threshold", func(c *Config) { c.AmplitudeThreshold = 0 }, true},
		{"threshold too high", func(c *Config) { c.AmplitudeThreshold = 1.0 }, true},
		{"negative threshold", func(c *Config) { c.AmplitudeThreshold = -0.05 }, true},
		{"zero duration", func(c *Config) { c.SegmentDuration = 0 }, true},
		{"negative pre-roll", func(c *Config) { c.PreRoll = -time.Second }, true},
		{"pre-roll exceeds duration", func(c *Config) { c.PreRoll = 2 * time.Second }, true},
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

// TestExtractSegmentCentered checks the window around a mid-recording burst:
// a burst at 2.0s in a 3s recording yields the window [1.5s, 2.5s).
func TestExtractSegmentCentered(t *testing.T) {
	segmenter, err := NewSegmenter(nil, &logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewSegmenter: unexpected error: %v", err)
	}

	signal := makeRecording(3*testSampleRate, 2*testSampleRate, 0.8)

	seg, err := segmenter.ExtractSegment(signal)
	if err != nil {
		t.Fatalf("ExtractSegment: unexpected error: %v", err)
	}

	wantStart := 2*testSampleRate - testSampleRate/2
	wantEnd := wantStart + testSampleRate

	if seg.OnsetIndex != 2*testSampleRate {
		t.Errorf("ExtractSegment: want onset %d, got %d", 2*testSampleRate, seg.OnsetIndex)
	}
	if seg.Start != wantStart {
		t.Errorf("ExtractSegment: want start %d, got %d", wantStart, seg.Start)
	}
	if seg.End != wantEnd {
		t.Errorf("ExtractSegment: want end %d, got %d", wantEnd, seg.End)
	}
	if len(seg.Signal.PCM) != testSampleRate {
		t.Errorf("ExtractSegment: want %d samples, got %d", testSampleRate, len(seg.Signal.PCM))
	}
	if seg.Signal.Duration != time.Second {
		t.Errorf("ExtractSegment: want 1s duration, got %v", seg.Signal.Duration)
	}
}

// TestExtractSegmentBounds checks window clamping near the recording edges.
func TestExtractSegmentBounds(t *testing.T) {
	type test struct {
		name        string
		length      int
		burstIndex  int
		wantStart   int
		wantEnd     int
		wantSamples int
	}

	tests := []test{
		{
			name:        "burst near start",
			length:      3 * testSampleRate,
			burstIndex:  800, // 0.1s, inside the pre-roll
			wantStart:   0,
			wantEnd:     testSampleRate,
			wantSamples: testSampleRate,
		},
		{
			name:        "burst near end",
			length:      3 * testSampleRate,
			burstIndex:  int(2.9 * testSampleRate), // window clamps at the end
			wantStart:   int(2.4 * testSampleRate),
			wantEnd:     3 * testSampleRate,
			wantSamples: int(0.6 * testSampleRate),
		},
		{
			name:        "burst at sample zero",
			length:      2 * testSampleRate,
			burstIndex:  0,
			wantStart:   0,
			wantEnd:     testSampleRate,
			wantSamples: testSampleRate,
		},
	}

	segmenter, err := NewSegmenter(nil, &logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewSegmenter: unexpected error: %v", err)
	}

	for _, tt := range tests {
		signal := makeRecording(tt.length, tt.burstIndex, 0.8)

		seg, err := segmenter.ExtractSegment(signal)
		if err != nil {
			t.Fatalf("ExtractSegment(%s): unexpected error: %v", tt.name, err)
		}

		if seg.Start != tt.wantStart {
			t.Errorf("ExtractSegment(%s): want start %d, got %d", tt.name, tt.wantStart, seg.Start)
		}
		if seg.End != tt.wantEnd {
			t.Errorf("ExtractSegment(%s): want end %d, got %d", tt.name, tt.wantEnd, seg.End)
		}
		if len(seg.Signal.PCM) != tt.wantSamples {
			t.Errorf("ExtractSegment(%s): want %d samples, got %d", tt.name, tt.wantSamples, len(seg.Signal.PCM))
		}

		if seg.Start < 0 || seg.End > tt.length || seg.Start > seg.OnsetIndex {
			t.Errorf("ExtractSegment(%s): window [%d, %d) violates bounds for onset %d",
				tt.name, seg.Start, seg.End, seg.OnsetIndex)
		}
	}
}

// TestExtractSegmentImpulse checks a single impulse exactly one pre-roll
// into the recording: start lands exactly at zero and the window covers the
// first second.
func TestExtractSegmentImpulse(t *testing.T) {
	const sampleRate = 44100

	segmenter, err := NewSegmenter(nil, &logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewSegmenter: unexpected error: %v", err)
	}

	pcm := make([]float64, 2*sampleRate)
	pcm[sampleRate/2] = 0.3
	signal := audio.NewSignal(pcm, sampleRate)

	seg, err := segmenter.ExtractSegment(signal)
	if err != nil {
		t.Fatalf("ExtractSegment: unexpected error: %v", err)
	}

	if seg.OnsetIndex != sampleRate/2 {
		t.Errorf("ExtractSegment: want onset %d, got %d", sampleRate/2, seg.OnsetIndex)
	}
	if seg.Start != 0 {
		t.Errorf("ExtractSegment: want start 0, got %d", seg.Start)
	}
	if seg.End != sampleRate {
		t.Errorf("ExtractSegment: want end %d, got %d", sampleRate, seg.End)
	}
	if len(seg.Signal.PCM) != sampleRate {
		t.Errorf("ExtractSegment: want %d samples, got %d", sampleRate, len(seg.Signal.PCM))
	}
}

// TestExtractSegmentNoActivity checks the explicit error when nothing
// crosses the threshold, including the exact-threshold boundary.
func TestExtractSegmentNoActivity(t *testing.T) {
	segmenter, err := NewSegmenter(nil, &logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewSegmenter: unexpected error: %v", err)
	}

	type test struct {
		name      string
		amplitude float64
	}

	tests := []test{
		{"quiet recording", 0.04},
		{"exactly at threshold", 0.05},
	}

	for _, tt := range tests {
		signal := makeRecording(2*testSampleRate, testSampleRate, tt.amplitude)

		_, err := segmenter.ExtractSegment(signal)
		if err == nil {
			t.Errorf("ExtractSegment(%s): want error, got nil", tt.name)
			continue
		}
		if !audio.IsNoActivity(err) {
			t.Errorf("ExtractSegment(%s): want NO_ACTIVITY error, got %v", tt.name, err)
		}
	}
}

// TestExtractSegmentEmptySignal checks rejection of empty input.
func TestExtractSegmentEmptySignal(t *testing.T) {
	segmenter, err := NewSegmenter(nil, &logging.NoOpLogger{})
	if err != nil {
		t.Fatalf("NewSegmenter: unexpected error: %v", err)
	}

	if _, err := segmenter.ExtractSegment(nil); err == nil {
		t.Error("ExtractSegment(nil): want error, got nil")
	}
	if _, err := segmenter.ExtractSegment(audio.NewSignal(nil, testSampleRate)); err == nil {
		t.Error("ExtractSegment(empty): want error, got nil")
	}
}
