package audio

import "time"

// Signal holds mono PCM samples in [-1.0, 1.0] along with the source format.
// Channels records the channel count of the source before downmixing; PCM is
// always a single channel.
type Signal struct {
	PCM        []float64     `json:"-"`
	SampleRate int           `json:"sample_rate"`
	Channels   int           `json:"channels"`
	Duration   time.Duration `json:"duration"`
}

// NewSignal wraps mono samples with their sample rate and computes the duration
func NewSignal(pcm []float64, sampleRate int) *Signal {
	return &Signal{
		PCM:        pcm,
		SampleRate: sampleRate,
		Channels:   1,
		Duration:   DurationForSamples(len(pcm), sampleRate),
	}
}

// DurationForSamples converts a mono sample count to wall-clock duration
func DurationForSamples(count, sampleRate int) time.Duration {
	if sampleRate <= 0 {
		return 0
	}
	return time.Duration(float64(count) / float64(sampleRate) * float64(time.Second))
}

// Seconds returns the signal length in seconds
func (s *Signal) Seconds() float64 {
	return s.Duration.Seconds()
}

// Clone returns a deep copy so stages can transform samples without
// mutating the caller's signal
func (s *Signal) Clone() *Signal {
	pcm := make([]float64, len(s.PCM))
	copy(pcm, s.PCM)

	return &Signal{
		PCM:        pcm,
		SampleRate: s.SampleRate,
		Channels:   s.Channels,
		Duration:   s.Duration,
	}
}

// Slice returns a view over samples [start, end) as a new signal header.
// The PCM backing array is shared with the receiver.
func (s *Signal) Slice(start, end int) *Signal {
	if start < 0 {
		start = 0
	}
	if end > len(s.PCM) {
		end = len(s.PCM)
	}
	if start > end {
		start = end
	}

	return &Signal{
		PCM:        s.PCM[start:end],
		SampleRate: s.SampleRate,
		Channels:   s.Channels,
		Duration:   DurationForSamples(end-start, s.SampleRate),
	}
}
