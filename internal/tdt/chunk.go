package tdt

import (
	"fmt"
	"log/slog"
	"sort"
)

// Chunking defaults: the model window is 15 s at 16 kHz (the encoder's
// hard ceiling); the 2 s overlap exists purely to give the decoder slack
// at merge boundaries.
const (
	defaultWindowSamples  = 240000
	defaultOverlapSamples = 32000
	defaultSampleRate     = 16000
	defaultMergeTolerance = 2 // frames
)

// ChunkConfig controls how long audio is split into decode windows.
type ChunkConfig struct {
	WindowSamples  int
	OverlapSamples int
	SampleRate     int
	// MergeTolerance is the timestamp slack, in encoder frames, under
	// which two tokens from adjacent windows count as the same emission.
	MergeTolerance int
}

// DefaultChunkConfig returns the chunking constants for the 15 s model window.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		WindowSamples:  defaultWindowSamples,
		OverlapSamples: defaultOverlapSamples,
		SampleRate:     defaultSampleRate,
		MergeTolerance: defaultMergeTolerance,
	}
}

// Validate checks the chunking geometry.
func (c *ChunkConfig) Validate() error {
	if c.WindowSamples <= 0 {
		return fmt.Errorf("tdt: window samples must be > 0, got %d", c.WindowSamples)
	}
	if c.OverlapSamples < 0 || c.OverlapSamples >= c.WindowSamples {
		return fmt.Errorf("tdt: overlap %d must be in [0,%d)", c.OverlapSamples, c.WindowSamples)
	}
	if c.SampleRate <= 0 {
		return fmt.Errorf("tdt: sample rate must be > 0, got %d", c.SampleRate)
	}
	return nil
}

// TokenWindow is one emitted token with its absolute frame timestamp,
// used while reconciling adjacent decode windows.
type TokenWindow struct {
	Token      int32
	Timestamp  int
	Confidence float32
}

// Transcription is the merged result of a chunked decode.
type Transcription struct {
	Tokens      []int32
	Timestamps  []int
	Confidences []float32
}

// Observer receives decode telemetry. Implementations must be cheap; the
// chunk processor calls them inline.
type Observer interface {
	ChunkDecoded(frames, tokens int)
	MergeStrategy(strategy string)
}

// ChunkProcessor transcribes audio longer than the model window by decoding
// fixed-length overlapping windows independently and reconciling their
// token sequences. Windows never share decoder state: only their output is
// merged.
type ChunkProcessor struct {
	model Model
	cfg   *ModelConfig
	chunk ChunkConfig
	opts  DecodeOptions

	// Observer is optional telemetry (e.g. Prometheus counters).
	Observer Observer
}

// NewChunkProcessor validates the configuration and returns a processor.
func NewChunkProcessor(model Model, cfg *ModelConfig, chunk ChunkConfig, opts DecodeOptions) (*ChunkProcessor, error) {
	if model == nil {
		return nil, fmt.Errorf("tdt: chunk processor: %w", ErrNotInitialized)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := chunk.Validate(); err != nil {
		return nil, err
	}
	return &ChunkProcessor{model: model, cfg: cfg, chunk: chunk, opts: opts.withDefaults()}, nil
}

// samplesPerFrame returns the audio samples one encoder frame spans.
func (p *ChunkProcessor) samplesPerFrame() int {
	return int(p.cfg.FrameDuration * float64(p.chunk.SampleRate))
}

// Process transcribes mono 16 kHz samples of any length. Audio within one
// window decodes directly; longer audio is windowed, decoded and merged.
func (p *ChunkProcessor) Process(samples []float32) (Transcription, error) {
	if len(samples) == 0 {
		return Transcription{}, fmt.Errorf("tdt: empty audio: %w", ErrInvalidAudio)
	}

	step := p.chunk.WindowSamples - p.chunk.OverlapSamples
	spf := p.samplesPerFrame()
	if spf <= 0 {
		return Transcription{}, fmt.Errorf("tdt: frame duration %f at %d Hz spans no samples: %w",
			p.cfg.FrameDuration, p.chunk.SampleRate, ErrProcessingFailed)
	}

	var merged []TokenWindow
	for start, index := 0, 0; ; start, index = start+step, index+1 {
		end := start + p.chunk.WindowSamples
		last := end >= len(samples)
		if last {
			end = len(samples)
		}

		tw, err := p.decodeWindow(samples[start:end], start/spf, last)
		if err != nil {
			return Transcription{}, fmt.Errorf("tdt: window %d: %w", index, err)
		}

		if index == 0 {
			merged = tw
		} else {
			ovStart := start / spf
			ovEnd := (start + p.chunk.OverlapSamples) / spf
			merged = p.mergeWindows(merged, tw, ovStart, ovEnd)
		}
		if last {
			break
		}
	}

	// Merging can interleave out of order right at the seams.
	sort.SliceStable(merged, func(i, j int) bool { return merged[i].Timestamp < merged[j].Timestamp })

	out := Transcription{
		Tokens:      make([]int32, len(merged)),
		Timestamps:  make([]int, len(merged)),
		Confidences: make([]float32, len(merged)),
	}
	for i, t := range merged {
		out.Tokens[i] = t.Token
		out.Timestamps[i] = t.Timestamp
		out.Confidences[i] = t.Confidence
	}
	return out, nil
}

// decodeWindow decodes one window with a fresh decoder state.
func (p *ChunkProcessor) decodeWindow(samples []float32, frameOffset int, last bool) ([]TokenWindow, error) {
	frames, validFrames, err := p.model.RunEncoder(samples, len(samples))
	if err != nil {
		return nil, fmt.Errorf("encoder: %w", err)
	}

	st := NewDecoderState(p.cfg)
	opts := p.opts
	opts.GlobalFrameOffset = frameOffset
	opts.IsLastChunk = last
	opts.ContextFrameAdjustment = 0

	hyp, _, err := Decode(frames, validFrames, p.model, p.model, p.cfg, st, opts)
	if err != nil {
		return nil, err
	}
	if p.Observer != nil {
		p.Observer.ChunkDecoded(validFrames, len(hyp.Tokens))
	}

	tw := make([]TokenWindow, len(hyp.Tokens))
	for i := range hyp.Tokens {
		tw[i] = TokenWindow{Token: hyp.Tokens[i], Timestamp: hyp.Timestamps[i], Confidence: hyp.Confidences[i]}
	}
	return tw, nil
}

// mergeWindows reconciles two adjacent windows whose decodes overlap in
// [ovStart, ovEnd] frames. Strategy order: direct concat when there is no
// time overlap, contiguous-run splice, LCS-alignment splice, midpoint cut.
func (p *ChunkProcessor) mergeWindows(left, right []TokenWindow, ovStart, ovEnd int) []TokenWindow {
	if len(left) == 0 {
		return right
	}
	if len(right) == 0 {
		return left
	}
	if left[len(left)-1].Timestamp <= right[0].Timestamp {
		p.observeMerge("concat")
		return append(append([]TokenWindow{}, left...), right...)
	}

	// Restrict attention to the overlap band on each side.
	li := len(left)
	for li > 0 && left[li-1].Timestamp >= ovStart {
		li--
	}
	ri := 0
	for ri < len(right) && right[ri].Timestamp <= ovEnd {
		ri++
	}
	leftOv, rightOv := left[li:], right[:ri]
	tol := p.chunk.MergeTolerance

	if len(leftOv) >= 2 && len(rightOv) >= 2 {
		if i, j, run := longestContiguousRun(leftOv, rightOv, tol); run*2 >= len(leftOv) && run >= 2 {
			pairs := make([][2]int, run)
			for m := 0; m < run; m++ {
				pairs[m] = [2]int{i + m, j + m}
			}
			p.observeMerge("contiguous")
			return spliceAligned(left, right, li, leftOv, rightOv, pairs)
		}
		if pairs := lcsAlign(leftOv, rightOv, tol); len(pairs) >= 2 {
			p.observeMerge("lcs")
			return spliceAligned(left, right, li, leftOv, rightOv, pairs)
		}
	}

	// Naive fallback: cut both sides at the overlap midpoint.
	p.observeMerge("midpoint")
	slog.Debug("chunk merge fell back to midpoint split", "overlapStart", ovStart, "overlapEnd", ovEnd,
		"leftOverlap", len(leftOv), "rightOverlap", len(rightOv))
	mid := (ovStart + ovEnd) / 2
	var out []TokenWindow
	for _, t := range left {
		if t.Timestamp <= mid {
			out = append(out, t)
		}
	}
	for _, t := range right {
		if t.Timestamp > mid {
			out = append(out, t)
		}
	}
	return out
}

func (p *ChunkProcessor) observeMerge(strategy string) {
	if p.Observer != nil {
		p.Observer.MergeStrategy(strategy)
	}
}

// sameEmission reports whether two tokens from adjacent windows look like
// one emission: identical id within the timestamp tolerance.
func sameEmission(a, b TokenWindow, tol int) bool {
	if a.Token != b.Token {
		return false
	}
	d := a.Timestamp - b.Timestamp
	if d < 0 {
		d = -d
	}
	return d <= tol
}

// longestContiguousRun finds the longest run leftOv[i..i+k) matching
// rightOv[j..j+k) element-wise. Returns start indices and run length.
func longestContiguousRun(leftOv, rightOv []TokenWindow, tol int) (bi, bj, best int) {
	for i := range leftOv {
		for j := range rightOv {
			k := 0
			for i+k < len(leftOv) && j+k < len(rightOv) && sameEmission(leftOv[i+k], rightOv[j+k], tol) {
				k++
			}
			if k > best {
				bi, bj, best = i, j, k
			}
		}
	}
	return bi, bj, best
}

// lcsAlign computes the longest common subsequence of the two overlap
// subsets under sameEmission, returning matched (left, right) index pairs
// in increasing order.
func lcsAlign(leftOv, rightOv []TokenWindow, tol int) [][2]int {
	n, m := len(leftOv), len(rightOv)
	d := make([][]int, n+1)
	for i := range d {
		d[i] = make([]int, m+1)
	}
	for i := 1; i <= n; i++ {
		for j := 1; j <= m; j++ {
			if sameEmission(leftOv[i-1], rightOv[j-1], tol) {
				d[i][j] = d[i-1][j-1] + 1
			} else if d[i-1][j] >= d[i][j-1] {
				d[i][j] = d[i-1][j]
			} else {
				d[i][j] = d[i][j-1]
			}
		}
	}

	pairs := make([][2]int, 0, d[n][m])
	for i, j := n, m; i > 0 && j > 0; {
		switch {
		case sameEmission(leftOv[i-1], rightOv[j-1], tol):
			pairs = append(pairs, [2]int{i - 1, j - 1})
			i--
			j--
		case d[i-1][j] >= d[i][j-1]:
			i--
		default:
			j--
		}
	}
	// Backtrace produced them last-to-first.
	for a, b := 0, len(pairs)-1; a < b; a, b = a+1, b-1 {
		pairs[a], pairs[b] = pairs[b], pairs[a]
	}
	return pairs
}

// spliceAligned builds the merged sequence from an alignment: left up to
// the first match, each matched token once, the longer side of every
// inter-match gap, then right after the last match.
func spliceAligned(left, right []TokenWindow, leftOvStart int, leftOv, rightOv []TokenWindow, pairs [][2]int) []TokenWindow {
	out := append([]TokenWindow{}, left[:leftOvStart+pairs[0][0]]...)
	for p := range pairs {
		out = append(out, leftOv[pairs[p][0]])
		if p+1 < len(pairs) {
			lgap := leftOv[pairs[p][0]+1 : pairs[p+1][0]]
			rgap := rightOv[pairs[p][1]+1 : pairs[p+1][1]]
			if len(lgap) >= len(rgap) {
				out = append(out, lgap...)
			} else {
				out = append(out, rgap...)
			}
		}
	}
	last := pairs[len(pairs)-1][1]
	out = append(out, rightOv[last+1:]...)
	out = append(out, right[len(rightOv):]...)
	return out
}
