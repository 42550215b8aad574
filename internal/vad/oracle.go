package vad

import "errors"

// Error kinds surfaced by the VAD oracles and state machines.
var (
	// ErrNotInitialized means no oracle is available.
	ErrNotInitialized = errors.New("vad model not initialized")

	// ErrInvalidAudio means a chunk of the wrong size or rate was passed.
	ErrInvalidAudio = errors.New("invalid audio data")

	// ErrUnsupportedPlatform means the selected model runtime is not
	// compiled into this build.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)

// State carries the recurrent model state between fixed-size chunks. A
// zero State is a fresh stream; call Reset between independent streams
// when reusing a value.
type State struct {
	// Hidden is the flattened recurrent state ([2, 1, 128] for Silero v5).
	// The Silero v5 graph folds its trailing audio context into this
	// state, so no samples carry over between chunks on the Go side.
	Hidden []float32
}

// Reset clears the state for a new independent stream.
func (s *State) Reset() {
	for i := range s.Hidden {
		s.Hidden[i] = 0
	}
}

// Oracle scores fixed 256 ms chunks for speech. Implementations carry no
// hidden stream state of their own; everything lives in State so a single
// oracle can serve many streams.
type Oracle interface {
	// ProcessChunk consumes exactly ChunkSamples mono 16 kHz samples and
	// returns the speech probability in [0,1] plus the advanced state.
	ProcessChunk(chunk []float32, st State) (float32, State, error)
}
