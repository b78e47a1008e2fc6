package audio

import (
	"fmt"
	"math"
	"os"
	"path/filepath"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

// EncodeWAVFile writes a signal to disk as 16-bit mono PCM WAV. Used by the
// debug commands to dump intermediate pipeline stages for listening.
func EncodeWAVFile(path string, signal *Signal) error {
	if signal == nil || len(signal.PCM) == 0 {
		return NewPipelineError(StageDecode, ErrCodeInvalidParameter,
			"cannot encode empty signal", nil)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return NewPipelineError(StageDecode, ErrCodeStorage,
				fmt.Sprintf("failed to create directory %s", dir), err)
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return NewPipelineError(StageDecode, ErrCodeStorage,
			fmt.Sprintf("failed to create output file %s", path), err)
	}
	defer f.Close()

	encoder := wav.NewEncoder(f, signal.SampleRate, 16, 1, 1)

	buf := &goaudio.IntBuffer{
		Format: &goaudio.Format{
			NumChannels: 1,
			SampleRate:  signal.SampleRate,
		},
		SourceBitDepth: 16,
		Data:           make([]int, len(signal.PCM)),
	}

	for i, sample := range signal.PCM {
		// Clamp before scaling so denoised overshoot cannot wrap around
		if sample > 1.0 {
			sample = 1.0
		} else if sample < -1.0 {
			sample = -1.0
		}
		buf.Data[i] = int(math.Round(sample * 32767.0))
	}

	if err := encoder.Write(buf); err != nil {
		return NewPipelineError(StageDecode, ErrCodeStorage,
			"failed to write PCM data", err)
	}

	return encoder.Close()
}
