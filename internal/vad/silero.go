//go:build onnx

package vad

import (
	"fmt"
	"os"
	"sync"

	ortenv "github.com/chaz8081/gostt-engine/internal/ort"
	ort "github.com/yalue/onnxruntime_go"
)

const (
	// sileroWindowSize is the number of samples per inference call.
	// Silero VAD v5 at 16 kHz requires exactly 512 samples (32 ms); one
	// 256 ms chunk runs eight windows.
	sileroWindowSize = 512

	// sileroStateSize is the hidden state dimension per layer. The model
	// uses a combined state tensor of shape [2, 1, 128].
	sileroStateSize = 128

	sileroStateLen = 2 * 1 * sileroStateSize
)

// SileroOracle scores chunks with Silero VAD v5 via ONNX Runtime. The
// recurrent state lives in the caller's State, so one oracle serves any
// number of streams.
type SileroOracle struct {
	mu      sync.Mutex
	session *ort.AdvancedSession

	// Tensors are reused between calls; the session binds them once.
	inputTensor  *ort.Tensor[float32] // [1, 512]
	stateTensor  *ort.Tensor[float32] // [2, 1, 128]
	srTensor     *ort.Tensor[int64]   // scalar
	outputTensor *ort.Tensor[float32] // [1, 1]
	stateNTensor *ort.Tensor[float32] // [2, 1, 128]
}

// NewSileroOracle loads the Silero VAD ONNX model from modelPath and
// prepares a reusable inference session. Call Close when done.
func NewSileroOracle(modelPath string) (*SileroOracle, error) {
	modelData, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("vad: silero: reading model: %w", err)
	}

	if err := ortenv.EnsureInitialized(); err != nil {
		return nil, fmt.Errorf("vad: silero: %w", err)
	}

	inputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, sileroWindowSize))
	if err != nil {
		return nil, fmt.Errorf("vad: silero: create input tensor: %w", err)
	}
	stateTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		return nil, fmt.Errorf("vad: silero: create state tensor: %w", err)
	}
	srTensor, err := ort.NewTensor(ort.NewShape(1), []int64{int64(SampleRate)})
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		return nil, fmt.Errorf("vad: silero: create sr tensor: %w", err)
	}
	outputTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(1, 1))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		return nil, fmt.Errorf("vad: silero: create output tensor: %w", err)
	}
	stateNTensor, err := ort.NewEmptyTensor[float32](ort.NewShape(2, 1, sileroStateSize))
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		return nil, fmt.Errorf("vad: silero: create stateN tensor: %w", err)
	}

	session, err := ort.NewAdvancedSessionWithONNXData(
		modelData,
		[]string{"input", "state", "sr"},
		[]string{"output", "stateN"},
		[]ort.Value{inputTensor, stateTensor, srTensor},
		[]ort.Value{outputTensor, stateNTensor},
		nil,
	)
	if err != nil {
		inputTensor.Destroy()
		stateTensor.Destroy()
		srTensor.Destroy()
		outputTensor.Destroy()
		stateNTensor.Destroy()
		return nil, fmt.Errorf("vad: silero: create session: %w", err)
	}

	return &SileroOracle{
		session:      session,
		inputTensor:  inputTensor,
		stateTensor:  stateTensor,
		srTensor:     srTensor,
		outputTensor: outputTensor,
		stateNTensor: stateNTensor,
	}, nil
}

// ProcessChunk runs the eight 512-sample windows of one chunk through the
// model and returns the maximum window probability. The recurrent state is
// loaded from st before the first window and stored back afterwards.
func (o *SileroOracle) ProcessChunk(chunk []float32, st State) (float32, State, error) {
	if len(chunk) != ChunkSamples {
		return 0, st, fmt.Errorf("vad: chunk has %d samples, want %d: %w", len(chunk), ChunkSamples, ErrInvalidAudio)
	}
	if len(st.Hidden) == 0 {
		st.Hidden = make([]float32, sileroStateLen)
	} else if len(st.Hidden) != sileroStateLen {
		return 0, st, fmt.Errorf("vad: state has %d elements, want %d: %w", len(st.Hidden), sileroStateLen, ErrInvalidAudio)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session == nil {
		return 0, st, fmt.Errorf("vad: silero: %w", ErrNotInitialized)
	}

	copy(o.stateTensor.GetData(), st.Hidden)

	var max float32
	for w := 0; w+sileroWindowSize <= len(chunk); w += sileroWindowSize {
		copy(o.inputTensor.GetData(), chunk[w:w+sileroWindowSize])
		if err := o.session.Run(); err != nil {
			return 0, st, fmt.Errorf("vad: silero: inference: %w", err)
		}
		if p := o.outputTensor.GetData()[0]; p > max {
			max = p
		}
		// Carry the hidden state forward window to window.
		copy(o.stateTensor.GetData(), o.stateNTensor.GetData())
	}

	out := st
	out.Hidden = make([]float32, sileroStateLen)
	copy(out.Hidden, o.stateTensor.GetData())
	return max, out, nil
}

// Close releases ONNX Runtime resources. Safe to call more than once.
func (o *SileroOracle) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.session != nil {
		o.session.Destroy()
		o.session = nil
	}
	for _, t := range []*ort.Tensor[float32]{o.inputTensor, o.stateTensor, o.outputTensor, o.stateNTensor} {
		if t != nil {
			t.Destroy()
		}
	}
	if o.srTensor != nil {
		o.srTensor.Destroy()
	}
	o.inputTensor, o.stateTensor, o.outputTensor, o.stateNTensor, o.srTensor = nil, nil, nil, nil, nil
	return nil
}

// SileroAvailable reports that the Silero backend is compiled in.
func SileroAvailable() bool { return true }

// NewModelOracle creates the Silero oracle for this build.
func NewModelOracle(modelPath string) (Oracle, error) {
	return NewSileroOracle(modelPath)
}
