//go:build !onnx

package tdt

import "fmt"

// ParakeetAvailable reports that no ONNX acoustic backend is compiled in.
func ParakeetAvailable() bool { return false }

// NewAcousticModel fails when built without the onnx tag.
func NewAcousticModel(modelDir string, cfg *ModelConfig) (Model, func() error, error) {
	return nil, nil, fmt.Errorf("tdt: acoustic backend not compiled in (build with -tags onnx): %w", ErrUnsupportedPlatform)
}
