package vad

import (
	"fmt"
	"math"
)

// defaultEnergyReference is the full-scale RMS that maps to probability
// 1.0 for float32 audio in [-1, 1]. Normal speech sits around 0.03-0.1.
const defaultEnergyReference = 0.1

// EnergyOracle is a dependency-free oracle scoring chunks by RMS energy.
// It is far cruder than a neural model but runs anywhere, which makes it
// the fallback for builds without ONNX Runtime and the workhorse for
// tests. It keeps no recurrent state.
type EnergyOracle struct {
	// Reference is the RMS level mapped to probability 1.0; zero uses the
	// package default.
	Reference float32
}

// ProcessChunk scores one chunk by normalized RMS energy.
func (o *EnergyOracle) ProcessChunk(chunk []float32, st State) (float32, State, error) {
	if len(chunk) != ChunkSamples {
		return 0, st, fmt.Errorf("vad: chunk has %d samples, want %d: %w", len(chunk), ChunkSamples, ErrInvalidAudio)
	}

	ref := o.Reference
	if ref <= 0 {
		ref = defaultEnergyReference
	}

	var energy float64
	for _, s := range chunk {
		energy += float64(s) * float64(s)
	}
	rms := math.Sqrt(energy / float64(len(chunk)))

	prob := float32(rms) / ref
	if prob > 1 {
		prob = 1
	}
	return prob, st, nil
}
