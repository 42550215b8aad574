//go:build !onnx

package vad

import "fmt"

// SileroAvailable reports that no neural VAD backend is compiled in.
func SileroAvailable() bool { return false }

// NewModelOracle fails when built without the onnx tag; callers fall
// back to the energy oracle.
func NewModelOracle(modelPath string) (Oracle, error) {
	return nil, fmt.Errorf("vad: silero backend not compiled in (build with -tags onnx): %w", ErrUnsupportedPlatform)
}
