package tdt

import (
	"testing"
)

// tw is shorthand for building token windows in merge tests.
func tw(token int32, ts int) TokenWindow {
	return TokenWindow{Token: token, Timestamp: ts, Confidence: 0.5}
}

func mergeProcessor(t *testing.T) *ChunkProcessor {
	t.Helper()
	return &ChunkProcessor{
		cfg:   testConfig(),
		chunk: ChunkConfig{WindowSamples: 100, OverlapSamples: 10, SampleRate: 16000, MergeTolerance: 2},
	}
}

func tokens(ws []TokenWindow) []int32 {
	out := make([]int32, len(ws))
	for i, w := range ws {
		out[i] = w.Token
	}
	return out
}

func equalTokens(a []int32, b ...int32) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestMergeWindowsConcat(t *testing.T) {
	p := mergeProcessor(t)
	left := []TokenWindow{tw(1, 0), tw(2, 3)}
	right := []TokenWindow{tw(3, 5), tw(4, 7)}

	got := p.mergeWindows(left, right, 4, 6)
	if !equalTokens(tokens(got), 1, 2, 3, 4) {
		t.Errorf("merged = %v, want plain concatenation", tokens(got))
	}
}

func TestMergeWindowsContiguousRun(t *testing.T) {
	p := mergeProcessor(t)
	// Both windows decoded tokens 5,6 inside the overlap [8,12]; the run
	// covers the whole left overlap subset, so it splices exactly once.
	left := []TokenWindow{tw(1, 2), tw(2, 5), tw(5, 8), tw(6, 10)}
	right := []TokenWindow{tw(5, 9), tw(6, 10), tw(7, 13), tw(8, 15)}

	got := p.mergeWindows(left, right, 8, 12)
	if !equalTokens(tokens(got), 1, 2, 5, 6, 7, 8) {
		t.Errorf("merged = %v, want [1 2 5 6 7 8]", tokens(got))
	}
}

func TestMergeWindowsLCS(t *testing.T) {
	p := mergeProcessor(t)
	// The overlap decodes disagree on an inserted token, so no contiguous
	// run covers half the left subset; the LCS alignment still pairs the
	// common tokens and keeps the longer gap reading.
	left := []TokenWindow{tw(1, 2), tw(5, 8), tw(9, 9), tw(6, 11)}
	right := []TokenWindow{tw(5, 8), tw(3, 9), tw(4, 10), tw(6, 11), tw(7, 14)}

	got := p.mergeWindows(left, right, 8, 12)
	want := []int32{1, 5, 3, 4, 6, 7}
	if !equalTokens(tokens(got), want...) {
		t.Errorf("merged = %v, want %v", tokens(got), want)
	}
}

func TestMergeWindowsMidpoint(t *testing.T) {
	p := mergeProcessor(t)
	// Nothing matches inside the overlap: cut both sides at the midpoint.
	left := []TokenWindow{tw(1, 2), tw(2, 9), tw(3, 11)}
	right := []TokenWindow{tw(8, 9), tw(9, 12)}

	got := p.mergeWindows(left, right, 8, 12)
	// Midpoint is frame 10: keep left <= 10, right > 10.
	if !equalTokens(tokens(got), 1, 2, 9) {
		t.Errorf("merged = %v, want [1 2 9]", tokens(got))
	}
}

func TestMergeWindowsEmptySides(t *testing.T) {
	p := mergeProcessor(t)
	right := []TokenWindow{tw(1, 0)}
	if got := p.mergeWindows(nil, right, 0, 2); !equalTokens(tokens(got), 1) {
		t.Errorf("empty left: %v", tokens(got))
	}
	left := []TokenWindow{tw(2, 0)}
	if got := p.mergeWindows(left, nil, 0, 2); !equalTokens(tokens(got), 2) {
		t.Errorf("empty right: %v", tokens(got))
	}
}

func TestLongestContiguousRun(t *testing.T) {
	leftOv := []TokenWindow{tw(1, 0), tw(2, 1), tw(3, 2), tw(4, 3)}
	rightOv := []TokenWindow{tw(9, 0), tw(2, 1), tw(3, 2), tw(4, 3)}

	i, j, run := longestContiguousRun(leftOv, rightOv, 2)
	if run != 3 || i != 1 || j != 1 {
		t.Errorf("run = (%d,%d,%d), want (1,1,3)", i, j, run)
	}
}

func TestSameEmissionTolerance(t *testing.T) {
	if !sameEmission(tw(5, 10), tw(5, 12), 2) {
		t.Error("same token within tolerance should match")
	}
	if sameEmission(tw(5, 10), tw(5, 13), 2) {
		t.Error("same token outside tolerance should not match")
	}
	if sameEmission(tw(5, 10), tw(6, 10), 2) {
		t.Error("different tokens should never match")
	}
}

// windowModel scripts a deterministic full-model decode for end-to-end
// chunk tests. Each encoder frame carries its global frame index and the
// window origin; the joint emits token 100+frame once per frame and
// blank on every repeat probe.
type windowModel struct {
	seen map[[2]int]bool
}

func newWindowModel() *windowModel {
	return &windowModel{seen: make(map[[2]int]bool)}
}

// windowModelConfig matches the scripted geometry: 2 features per frame,
// 1280 samples per frame at 16 kHz.
func windowModelConfig() *ModelConfig {
	return &ModelConfig{
		BlankID:       99,
		DurationBins:  []int32{0, 1, 2, 3, 4},
		EncoderHidden: 2,
		DecoderHidden: 2,
		StateSize:     4,
		FrameDuration: 0.08,
	}
}

func (m *windowModel) RunEncoder(samples []float32, validLength int) (FrameView, int, error) {
	frames := len(samples) / 1280
	base := int(samples[0]) / 1280
	data := make([]float32, frames*2)
	for t := 0; t < frames; t++ {
		data[t*2] = float32(base + t)
		data[t*2+1] = float32(base)
	}
	fv, err := NewFrameView(data, frames, 2)
	return fv, frames, err
}

func (m *windowModel) RunDecoder(tokenID int32, hIn, cIn []float32) ([]float32, []float32, []float32, error) {
	return []float32{0, 0}, make([]float32, 4), make([]float32, 4), nil
}

func (m *windowModel) RunJoint(encoderFrame, decoderProjection []float32) (int32, float32, int, error) {
	key := [2]int{int(encoderFrame[1]), int(encoderFrame[0])}
	if m.seen[key] {
		return 99, 0.9, 1, nil
	}
	m.seen[key] = true
	return 100 + int32(encoderFrame[0]), 0.8, 1, nil
}

// countObserver records decode telemetry for assertions.
type countObserver struct {
	windows    int
	strategies []string
}

func (o *countObserver) ChunkDecoded(frames, tokens int) { o.windows++ }
func (o *countObserver) MergeStrategy(s string)          { o.strategies = append(o.strategies, s) }

func TestChunkProcessorSingleWindow(t *testing.T) {
	cfg := windowModelConfig()
	chunk := ChunkConfig{WindowSamples: 12800, OverlapSamples: 2560, SampleRate: 16000, MergeTolerance: 2}
	p, err := NewChunkProcessor(newWindowModel(), cfg, chunk, DecodeOptions{})
	if err != nil {
		t.Fatalf("NewChunkProcessor: %v", err)
	}

	// 8 frames of audio fits one window.
	samples := make([]float32, 8*1280)
	for i := range samples {
		samples[i] = float32(i)
	}
	tr, err := p.Process(samples)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	if len(tr.Tokens) != 8 {
		t.Fatalf("got %d tokens, want 8", len(tr.Tokens))
	}
	for i, tok := range tr.Tokens {
		if tok != 100+int32(i) || tr.Timestamps[i] != i {
			t.Fatalf("token %d = (%d,%d), want (%d,%d)", i, tok, tr.Timestamps[i], 100+i, i)
		}
	}
}

func TestChunkProcessorOverlapMerge(t *testing.T) {
	cfg := windowModelConfig()
	// 10 frame window, 2 frame overlap: 18 frames of audio decode as
	// windows [0,10) and [8,18).
	chunk := ChunkConfig{WindowSamples: 12800, OverlapSamples: 2560, SampleRate: 16000, MergeTolerance: 2}
	p, err := NewChunkProcessor(newWindowModel(), cfg, chunk, DecodeOptions{})
	if err != nil {
		t.Fatalf("NewChunkProcessor: %v", err)
	}
	obs := &countObserver{}
	p.Observer = obs

	samples := make([]float32, 18*1280)
	for i := range samples {
		samples[i] = float32(i)
	}
	tr, err := p.Process(samples)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}

	// Every global frame token exactly once, in timestamp order.
	if len(tr.Tokens) != 18 {
		t.Fatalf("got %d tokens, want 18: %v", len(tr.Tokens), tr.Tokens)
	}
	for i, tok := range tr.Tokens {
		if tok != 100+int32(i) || tr.Timestamps[i] != i {
			t.Fatalf("token %d = (%d,%d), want (%d,%d)", i, tok, tr.Timestamps[i], 100+i, i)
		}
	}
	if obs.windows != 2 {
		t.Errorf("observer saw %d windows, want 2", obs.windows)
	}
	if len(obs.strategies) != 1 || obs.strategies[0] != "contiguous" {
		t.Errorf("merge strategies = %v, want [contiguous]", obs.strategies)
	}
}

func TestChunkProcessorEmptyAudio(t *testing.T) {
	p, err := NewChunkProcessor(newWindowModel(), windowModelConfig(), DefaultChunkConfig(), DecodeOptions{})
	if err != nil {
		t.Fatalf("NewChunkProcessor: %v", err)
	}
	if _, err := p.Process(nil); err == nil {
		t.Fatal("expected error for empty audio")
	}
}

func TestChunkConfigValidate(t *testing.T) {
	cfg := DefaultChunkConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config invalid: %v", err)
	}

	bad := cfg
	bad.OverlapSamples = bad.WindowSamples
	if err := bad.Validate(); err == nil {
		t.Error("overlap >= window should fail validation")
	}
	bad = cfg
	bad.WindowSamples = 0
	if err := bad.Validate(); err == nil {
		t.Error("zero window should fail validation")
	}
}

func TestNewChunkProcessorNilModel(t *testing.T) {
	if _, err := NewChunkProcessor(nil, windowModelConfig(), DefaultChunkConfig(), DecodeOptions{}); err == nil {
		t.Fatal("expected error for nil model")
	}
}
