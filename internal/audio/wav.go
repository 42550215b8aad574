package audio

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
)

// ErrInvalidAudio marks unusable input files: empty, wrong rate, or a
// format the decoder rejects.
var ErrInvalidAudio = errors.New("invalid audio data")

// LoadWAV reads a WAV file and returns mono float32 samples in [-1, 1]
// plus the file's sample rate. Multi-channel audio is downmixed by
// averaging; resampling is the caller's problem and files that do not
// match the expected rate should be rejected there.
func LoadWAV(path string) ([]float32, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("audio: opening %s: %w", path, err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return nil, 0, fmt.Errorf("audio: %s is not a valid WAV file: %w", path, ErrInvalidAudio)
	}

	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, fmt.Errorf("audio: decoding %s: %w", path, err)
	}
	if buf == nil || len(buf.Data) == 0 {
		return nil, 0, fmt.Errorf("audio: %s contains no samples: %w", path, ErrInvalidAudio)
	}

	channels := buf.Format.NumChannels
	if channels <= 0 {
		channels = 1
	}
	rate := buf.Format.SampleRate

	// Normalize to [-1, 1] from the container's integer range.
	scale := float32(int(1) << (dec.BitDepth - 1))
	if dec.BitDepth == 0 {
		scale = 1 << 15
	}

	frames := len(buf.Data) / channels
	samples := make([]float32, frames)
	for i := 0; i < frames; i++ {
		var sum float32
		for c := 0; c < channels; c++ {
			sum += float32(buf.Data[i*channels+c]) / scale
		}
		samples[i] = sum / float32(channels)
	}

	return samples, rate, nil
}
