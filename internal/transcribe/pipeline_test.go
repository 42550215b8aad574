package transcribe

import (
	"errors"
	"fmt"
	"testing"

	"github.com/chaz8081/gostt-engine/internal/tdt"
	"github.com/chaz8081/gostt-engine/internal/vad"
)

// scriptedModel decodes one token per encoder frame: the frame carries
// its index and the joint emits 100+frame once, then blank on repeats.
type scriptedModel struct {
	seen map[int]bool
}

func newScriptedModel() *scriptedModel {
	return &scriptedModel{seen: make(map[int]bool)}
}

func (m *scriptedModel) RunEncoder(samples []float32, validLength int) (tdt.FrameView, int, error) {
	frames := len(samples) / 1280
	base := int(samples[0]) / 1280
	data := make([]float32, frames*2)
	for t := 0; t < frames; t++ {
		data[t*2] = float32(base + t)
	}
	fv, err := tdt.NewFrameView(data, frames, 2)
	return fv, frames, err
}

func (m *scriptedModel) RunDecoder(tokenID int32, hIn, cIn []float32) ([]float32, []float32, []float32, error) {
	return []float32{0, 0}, make([]float32, 4), make([]float32, 4), nil
}

func (m *scriptedModel) RunJoint(encoderFrame, decoderProjection []float32) (int32, float32, int, error) {
	frame := int(encoderFrame[0])
	if m.seen[frame] {
		return 99, 0.9, 1, nil
	}
	m.seen[frame] = true
	return 100 + int32(frame), 0.8, 1, nil
}

// constOracle returns the same probability for every chunk.
type constOracle struct {
	prob float32
}

func (o *constOracle) ProcessChunk(chunk []float32, st vad.State) (float32, vad.State, error) {
	return o.prob, st, nil
}

// watchObserver records telemetry calls.
type watchObserver struct {
	chunks   int
	segments int
	decodes  int
}

func (o *watchObserver) ChunkDecoded(frames, tokens int) { o.chunks++ }
func (o *watchObserver) MergeStrategy(s string)          {}
func (o *watchObserver) SegmentDetected(seconds float64) { o.segments++ }
func (o *watchObserver) DecodeDuration(seconds float64)  { o.decodes++ }

func testModelConfig() *tdt.ModelConfig {
	return &tdt.ModelConfig{
		BlankID:       99,
		DurationBins:  []int32{0, 1, 2, 3, 4},
		EncoderHidden: 2,
		DecoderHidden: 2,
		StateSize:     4,
		FrameDuration: 0.08,
	}
}

func testVocab() []string {
	vocab := make([]string, 108)
	words := []string{"▁the", "▁cat", "▁sat", "▁on", "▁a", "▁mat", "▁and", "▁slept"}
	for i, w := range words {
		vocab[100+i] = w
	}
	return vocab
}

// rampSamples fills audio with its own sample index so the scripted
// encoder can recover frame positions.
func rampSamples(n int) []float32 {
	samples := make([]float32, n)
	for i := range samples {
		samples[i] = float32(i)
	}
	return samples
}

func testPipeline(t *testing.T, oracle vad.Oracle) *Pipeline {
	t.Helper()
	chunk := tdt.ChunkConfig{WindowSamples: 12800, OverlapSamples: 2560, SampleRate: 16000, MergeTolerance: 2}
	proc, err := tdt.NewChunkProcessor(newScriptedModel(), testModelConfig(), chunk, tdt.DecodeOptions{})
	if err != nil {
		t.Fatalf("NewChunkProcessor: %v", err)
	}
	p, err := NewPipeline(proc, oracle, vad.DefaultConfig(), testVocab())
	if err != nil {
		t.Fatalf("NewPipeline: %v", err)
	}
	return p
}

func TestPipelineProcessWithoutOracle(t *testing.T) {
	p := testPipeline(t, nil)

	// 8 frames decode to the whole test vocabulary.
	text, err := p.Process(rampSamples(8 * 1280))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := "the cat sat on a mat and slept"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
}

func TestPipelineProcessWithOracle(t *testing.T) {
	p := testPipeline(t, &constOracle{prob: 0.9})
	obs := &watchObserver{}
	p.Observer = obs

	text, err := p.Process(rampSamples(8 * 1280))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	want := "the cat sat on a mat and slept"
	if text != want {
		t.Errorf("text = %q, want %q", text, want)
	}
	if obs.segments != 1 {
		t.Errorf("observer saw %d segments, want 1", obs.segments)
	}
	if obs.decodes != 1 {
		t.Errorf("observer saw %d decodes, want 1", obs.decodes)
	}
}

func TestPipelineSilenceYieldsEmptyText(t *testing.T) {
	p := testPipeline(t, &constOracle{prob: 0.1})

	text, err := p.Process(rampSamples(8 * 1280))
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if text != "" {
		t.Errorf("text = %q, want empty for silence", text)
	}
}

func TestPipelineSegmentsWithoutOracle(t *testing.T) {
	p := testPipeline(t, nil)

	segments, err := p.Segments(make([]float32, 32000))
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("got %d segments, want 1", len(segments))
	}
	if segments[0].Start != 0 || segments[0].End != 2.0 {
		t.Errorf("segment = [%v, %v], want [0, 2]", segments[0].Start, segments[0].End)
	}
}

func TestPipelineEmptyAudio(t *testing.T) {
	p := testPipeline(t, nil)
	if _, err := p.Process(nil); !errors.Is(err, tdt.ErrInvalidAudio) {
		t.Errorf("err = %v, want ErrInvalidAudio", err)
	}
}

func TestNewPipelineNilProcessor(t *testing.T) {
	if _, err := NewPipeline(nil, nil, vad.DefaultConfig(), nil); !errors.Is(err, tdt.ErrNotInitialized) {
		t.Errorf("err = %v, want ErrNotInitialized", err)
	}
}

func TestNewPipelineInvalidVADConfig(t *testing.T) {
	chunk := tdt.ChunkConfig{WindowSamples: 12800, OverlapSamples: 2560, SampleRate: 16000, MergeTolerance: 2}
	proc, err := tdt.NewChunkProcessor(newScriptedModel(), testModelConfig(), chunk, tdt.DecodeOptions{})
	if err != nil {
		t.Fatal(err)
	}

	bad := vad.DefaultConfig()
	bad.Threshold = 2
	if _, err := NewPipeline(proc, &constOracle{prob: 0.5}, bad, nil); err == nil {
		t.Error("expected error for invalid segmentation config")
	}

	// Without an oracle the segmentation config is unused and unchecked.
	if _, err := NewPipeline(proc, nil, bad, nil); err != nil {
		t.Errorf("nil oracle should skip config validation: %v", err)
	}
}

func TestPipelineClose(t *testing.T) {
	p := testPipeline(t, nil)

	calls := 0
	p.AddCloser(func() error { calls++; return nil })
	p.AddCloser(func() error { calls++; return fmt.Errorf("release failed") })

	if err := p.Close(); err == nil {
		t.Error("Close() should surface the closer error")
	}
	if calls != 2 {
		t.Errorf("closers ran %d times, want 2", calls)
	}
	// Closers run once.
	if err := p.Close(); err != nil {
		t.Errorf("second Close() error = %v", err)
	}
}
