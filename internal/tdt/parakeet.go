//go:build onnx

package tdt

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	ortenv "github.com/chaz8081/gostt-engine/internal/ort"
	ort "github.com/yalue/onnxruntime_go"
)

// Model bundle filenames under the model directory.
const (
	parakeetPreprocessorFile = "parakeet_preprocessor.onnx"
	parakeetEncoderFile      = "parakeet_encoder.onnx"
	parakeetDecoderFile      = "parakeet_decoder.onnx"
	parakeetJointFile        = "parakeet_joint.onnx"
)

// ParakeetModel runs the Parakeet TDT acoustic model via ONNX Runtime.
// The bundle splits the network into four graphs matching the decode
// contract: preprocessor (audio to mel features), encoder, LSTM decoder
// step and joint decision step.
type ParakeetModel struct {
	mu  sync.Mutex
	cfg *ModelConfig

	preprocessor *ort.DynamicAdvancedSession
	encoder      *ort.DynamicAdvancedSession
	decoder      *ort.DynamicAdvancedSession
	joint        *ort.DynamicAdvancedSession
}

// NewParakeetModel loads the four ONNX graphs from modelDir and prepares
// dynamic inference sessions. Call Close when done.
func NewParakeetModel(modelDir string, cfg *ModelConfig) (*ParakeetModel, error) {
	if cfg == nil {
		cfg = ParakeetConfig(nil)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := ortenv.EnsureInitialized(); err != nil {
		return nil, fmt.Errorf("tdt: parakeet: %w", err)
	}

	m := &ParakeetModel{cfg: cfg}
	sessions := []struct {
		file    string
		inputs  []string
		outputs []string
		dst     **ort.DynamicAdvancedSession
	}{
		{parakeetPreprocessorFile, []string{"audio_signal", "audio_length"}, []string{"features", "features_length"}, &m.preprocessor},
		{parakeetEncoderFile, []string{"features", "features_length"}, []string{"encoder", "encoder_length"}, &m.encoder},
		{parakeetDecoderFile, []string{"targets", "target_length", "h_in", "c_in"}, []string{"decoder", "h_out", "c_out"}, &m.decoder},
		{parakeetJointFile, []string{"encoder_step", "decoder_step"}, []string{"logits"}, &m.joint},
	}
	for _, s := range sessions {
		data, err := os.ReadFile(filepath.Join(modelDir, s.file))
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("tdt: parakeet: reading %s: %w", s.file, err)
		}
		sess, err := ort.NewDynamicAdvancedSessionWithONNXData(data, s.inputs, s.outputs, nil)
		if err != nil {
			m.Close()
			return nil, fmt.Errorf("tdt: parakeet: load %s: %w", s.file, err)
		}
		*s.dst = sess
	}
	return m, nil
}

// Config returns the decode constants this bundle was loaded with.
func (m *ParakeetModel) Config() *ModelConfig { return m.cfg }

// Close releases all ONNX sessions. Safe to call more than once.
func (m *ParakeetModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range []**ort.DynamicAdvancedSession{&m.preprocessor, &m.encoder, &m.decoder, &m.joint} {
		if *s != nil {
			(*s).Destroy()
			*s = nil
		}
	}
	return nil
}

// RunEncoder runs the preprocessor and encoder over the samples and
// returns a view over the [H, T] encoder output plus the valid frame
// count.
func (m *ParakeetModel) RunEncoder(samples []float32, validLength int) (FrameView, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.encoder == nil {
		return FrameView{}, 0, fmt.Errorf("tdt: parakeet: %w", ErrNotInitialized)
	}
	if len(samples) == 0 {
		return FrameView{}, 0, fmt.Errorf("tdt: parakeet: empty audio: %w", ErrInvalidAudio)
	}
	if validLength <= 0 || validLength > len(samples) {
		validLength = len(samples)
	}

	audioTensor, err := ort.NewTensor(ort.NewShape(1, int64(len(samples))), samples)
	if err != nil {
		return FrameView{}, 0, fmt.Errorf("tdt: parakeet: audio tensor: %w", err)
	}
	defer audioTensor.Destroy()
	audioLen, err := ort.NewTensor(ort.NewShape(1), []int32{int32(validLength)})
	if err != nil {
		return FrameView{}, 0, fmt.Errorf("tdt: parakeet: audio length tensor: %w", err)
	}
	defer audioLen.Destroy()

	prepOut := make([]ort.Value, 2)
	if err := m.preprocessor.Run([]ort.Value{audioTensor, audioLen}, prepOut); err != nil {
		return FrameView{}, 0, fmt.Errorf("tdt: parakeet: preprocessor: %w", err)
	}
	defer destroyValues(prepOut)

	encOut := make([]ort.Value, 2)
	if err := m.encoder.Run(prepOut, encOut); err != nil {
		return FrameView{}, 0, fmt.Errorf("tdt: parakeet: encoder: %w", err)
	}
	defer destroyValues(encOut)

	frames, err := floatTensor(encOut[0], "encoder")
	if err != nil {
		return FrameView{}, 0, err
	}
	shape := frames.GetShape()
	if len(shape) != 3 {
		return FrameView{}, 0, fmt.Errorf("tdt: parakeet: encoder output rank %d, want 3: %w", len(shape), ErrProcessingFailed)
	}
	// Output layout is [1, H, T]: transposed relative to the decode loop.
	hidden, total := int(shape[1]), int(shape[2])

	valid := total
	if lenT, err := intTensor(encOut[1], "encoder_length"); err == nil {
		valid = int(lenT.GetData()[0])
	}
	if valid > total {
		valid = total
	}

	data := make([]float32, hidden*total)
	copy(data, frames.GetData())
	view, err := NewTransposedFrameView(data, total, hidden)
	if err != nil {
		return FrameView{}, 0, err
	}
	return view, valid, nil
}

// RunDecoder feeds one token through the LSTM decoder graph.
func (m *ParakeetModel) RunDecoder(tokenID int32, hIn, cIn []float32) (projection, hOut, cOut []float32, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.decoder == nil {
		return nil, nil, nil, fmt.Errorf("tdt: parakeet: %w", ErrNotInitialized)
	}

	targets, err := ort.NewTensor(ort.NewShape(1, 1), []int32{tokenID})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tdt: parakeet: targets tensor: %w", err)
	}
	defer targets.Destroy()
	targetLen, err := ort.NewTensor(ort.NewShape(1), []int32{1})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tdt: parakeet: target length tensor: %w", err)
	}
	defer targetLen.Destroy()
	hTensor, err := ort.NewTensor(ort.NewShape(parakeetLSTMLayers, 1, parakeetDecoderHidden), hIn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tdt: parakeet: h_in tensor: %w", err)
	}
	defer hTensor.Destroy()
	cTensor, err := ort.NewTensor(ort.NewShape(parakeetLSTMLayers, 1, parakeetDecoderHidden), cIn)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("tdt: parakeet: c_in tensor: %w", err)
	}
	defer cTensor.Destroy()

	out := make([]ort.Value, 3)
	if err := m.decoder.Run([]ort.Value{targets, targetLen, hTensor, cTensor}, out); err != nil {
		return nil, nil, nil, fmt.Errorf("tdt: parakeet: decoder: %w", err)
	}
	defer destroyValues(out)

	projection, err = copyFloats(out[0], "decoder", parakeetDecoderHidden)
	if err != nil {
		return nil, nil, nil, err
	}
	hOut, err = copyFloats(out[1], "h_out", m.cfg.StateSize)
	if err != nil {
		return nil, nil, nil, err
	}
	cOut, err = copyFloats(out[2], "c_out", m.cfg.StateSize)
	if err != nil {
		return nil, nil, nil, err
	}
	return projection, hOut, cOut, nil
}

// RunJoint combines one encoder frame with one decoder projection. The
// joint graph emits raw logits: vocabulary plus blank first, then the
// duration bins. Token probability is the softmax over the token part.
func (m *ParakeetModel) RunJoint(encoderFrame, decoderProjection []float32) (tokenID int32, probability float32, durationBin int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.joint == nil {
		return 0, 0, 0, fmt.Errorf("tdt: parakeet: %w", ErrNotInitialized)
	}

	encTensor, err := ort.NewTensor(ort.NewShape(1, parakeetEncoderHidden, 1), encoderFrame)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("tdt: parakeet: encoder step tensor: %w", err)
	}
	defer encTensor.Destroy()
	decTensor, err := ort.NewTensor(ort.NewShape(1, parakeetDecoderHidden, 1), decoderProjection)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("tdt: parakeet: decoder step tensor: %w", err)
	}
	defer decTensor.Destroy()

	out := make([]ort.Value, 1)
	if err := m.joint.Run([]ort.Value{encTensor, decTensor}, out); err != nil {
		return 0, 0, 0, fmt.Errorf("tdt: parakeet: joint: %w", err)
	}
	defer destroyValues(out)

	logitsTensor, err := floatTensor(out[0], "logits")
	if err != nil {
		return 0, 0, 0, err
	}
	logits := logitsTensor.GetData()
	nDur := len(m.cfg.DurationBins)
	nTok := len(logits) - nDur
	if nTok < 2 {
		return 0, 0, 0, fmt.Errorf("tdt: parakeet: joint emitted %d logits for %d duration bins: %w",
			len(logits), nDur, ErrProcessingFailed)
	}

	tokenIdx, prob := softmaxArgmax(logits[:nTok])
	durIdx, _ := softmaxArgmax(logits[nTok:])
	return int32(tokenIdx), prob, durIdx, nil
}

// softmaxArgmax returns the argmax index of the logits and its softmax
// probability.
func softmaxArgmax(logits []float32) (int, float32) {
	best := 0
	for i, v := range logits {
		if v > logits[best] {
			best = i
		}
	}
	var sum float64
	for _, v := range logits {
		sum += math.Exp(float64(v - logits[best]))
	}
	return best, float32(1 / sum)
}

func destroyValues(vals []ort.Value) {
	for _, v := range vals {
		if v != nil {
			v.Destroy()
		}
	}
}

// floatTensor asserts an output value is a float32 tensor.
func floatTensor(v ort.Value, name string) (*ort.Tensor[float32], error) {
	t, ok := v.(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("tdt: parakeet: output %s is not float32: %w", name, ErrProcessingFailed)
	}
	return t, nil
}

// intTensor asserts an output value is an int32 tensor.
func intTensor(v ort.Value, name string) (*ort.Tensor[int32], error) {
	t, ok := v.(*ort.Tensor[int32])
	if !ok {
		return nil, fmt.Errorf("tdt: parakeet: output %s is not int32: %w", name, ErrProcessingFailed)
	}
	return t, nil
}

// copyFloats copies exactly n float32 values out of an output tensor.
func copyFloats(v ort.Value, name string, n int) ([]float32, error) {
	t, err := floatTensor(v, name)
	if err != nil {
		return nil, err
	}
	data := t.GetData()
	if len(data) < n {
		return nil, fmt.Errorf("tdt: parakeet: output %s has %d values, want %d: %w", name, len(data), n, ErrProcessingFailed)
	}
	out := make([]float32, n)
	copy(out, data[:n])
	return out, nil
}

// ParakeetAvailable reports that the ONNX acoustic backend is compiled in.
func ParakeetAvailable() bool { return true }

// NewAcousticModel creates the Parakeet model for this build.
func NewAcousticModel(modelDir string, cfg *ModelConfig) (Model, func() error, error) {
	m, err := NewParakeetModel(modelDir, cfg)
	if err != nil {
		return nil, nil, err
	}
	return m, m.Close, nil
}
