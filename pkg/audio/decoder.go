package audio

import (
	"fmt"
	"io"
	"os"

	"github.com/go-audio/wav"
)

// DecodeWAVFile reads a WAV file from disk and returns its mono signal
func DecodeWAVFile(path string) (*Signal, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, NewPipelineError(StageDecode, ErrCodeDecodeFailed,
			fmt.Sprintf("failed to open audio file %s", path), err)
	}
	defer f.Close()

	return DecodeWAV(f)
}

// DecodeWAV decodes WAV data into a mono Signal. Multi-channel sources are
// downmixed by averaging, sample values are scaled to [-1.0, 1.0], and the
// source sample rate is preserved.
func DecodeWAV(r io.ReadSeeker) (*Signal, error) {
	decoder := wav.NewDecoder(r)
	if !decoder.IsValidFile() {
		return nil, NewPipelineError(StageDecode, ErrCodeDecodeFailed,
			"not a valid WAV file", nil)
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, NewPipelineError(StageDecode, ErrCodeDecodeFailed,
			"failed to read PCM data", err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, NewPipelineError(StageDecode, ErrCodeDecodeFailed,
			"audio file contains no samples", nil)
	}

	sampleRate := buf.Format.SampleRate
	channels := buf.Format.NumChannels
	if sampleRate <= 0 || channels <= 0 {
		return nil, NewPipelineError(StageDecode, ErrCodeDecodeFailed,
			fmt.Sprintf("invalid format: sample rate %d, channels %d", sampleRate, channels), nil)
	}

	bitDepth := int(decoder.BitDepth)
	if bitDepth == 0 {
		bitDepth = buf.SourceBitDepth
	}

	samples, err := convertPCMToFloat64(buf.Data, bitDepth)
	if err != nil {
		return nil, NewPipelineError(StageDecode, ErrCodeDecodeFailed,
			"failed to convert samples", err)
	}

	if channels > 1 {
		samples = downmixInterleaved(samples, channels)
	}

	signal := NewSignal(samples, sampleRate)
	signal.Channels = channels
	return signal, nil
}

// convertPCMToFloat64 scales integer PCM to float64 [-1.0, 1.0].
// 8-bit WAV is unsigned and centered at 128; wider depths are signed.
func convertPCMToFloat64(data []int, bitDepth int) ([]float64, error) {
	samples := make([]float64, len(data))

	switch bitDepth {
	case 8:
		for i := range data {
			samples[i] = (float64(data[i]) - 128.0) / 128.0
		}
	case 16, 0:
		for i := range data {
			samples[i] = float64(data[i]) / 32768.0
		}
	case 24:
		for i := range data {
			samples[i] = float64(data[i]) / 8388608.0
		}
	case 32:
		for i := range data {
			samples[i] = float64(data[i]) / 2147483648.0
		}
	default:
		return nil, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}

	return samples, nil
}

// downmixInterleaved averages interleaved channel frames into a mono track
func downmixInterleaved(samples []float64, channels int) []float64 {
	frames := len(samples) / channels
	mono := make([]float64, frames)

	for frame := range frames {
		sum := 0.0
		for ch := range channels {
			sum += samples[frame*channels+ch]
		}
		mono[frame] = sum / float64(channels)
	}

	return mono
}
