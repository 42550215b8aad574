package tdt

import "errors"

// Error kinds surfaced by the decode core. Call sites wrap these with
// fmt.Errorf("tdt: ...: %w", ...) so errors.Is works across layers.
var (
	// ErrNotInitialized means the model oracle is missing or closed.
	ErrNotInitialized = errors.New("model not initialized")

	// ErrInvalidAudio means the input audio is empty or too short to
	// produce even a single decode step.
	ErrInvalidAudio = errors.New("invalid audio data")

	// ErrProcessingFailed means the oracle returned something the decode
	// loop cannot use: a malformed tensor shape, an out-of-range duration
	// bin, or a stride/bounds violation.
	ErrProcessingFailed = errors.New("processing failed")

	// ErrUnsupportedPlatform means the selected model runtime is not
	// available in this build.
	ErrUnsupportedPlatform = errors.New("unsupported platform")
)
