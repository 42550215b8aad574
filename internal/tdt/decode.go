package tdt

import "fmt"

// Decode option defaults. MaxSymbolsPerStep matches the model
// conversion; the others are safety bounds, not tuning knobs.
const (
	defaultMaxSymbolsPerStep     = 10
	defaultMaxTokensPerChunk     = 512
	defaultConsecutiveBlankLimit = 2
)

// DecodeOptions are the per-invocation flags of the decode loop.
type DecodeOptions struct {
	// ContextFrameAdjustment shifts the start cursor on the first chunk of
	// a streaming continuation (e.g. to skip left-context frames).
	ContextFrameAdjustment int

	// IsLastChunk enables the boundary finalization pass and clears the
	// time jump afterwards.
	IsLastChunk bool

	// GlobalFrameOffset is added to every emitted timestamp so chunked
	// results carry absolute frame positions.
	GlobalFrameOffset int

	// MaxSymbolsPerStep bounds emissions at a single timestamp before the
	// cursor is forced forward. MaxTokensPerChunk aborts a runaway decode.
	// ConsecutiveBlankLimit stops the finalization pass. Zero values take
	// the package defaults. Hitting any of these truncates silently; it is
	// never an error.
	MaxSymbolsPerStep     int
	MaxTokensPerChunk     int
	ConsecutiveBlankLimit int
}

func (o DecodeOptions) withDefaults() DecodeOptions {
	if o.MaxSymbolsPerStep <= 0 {
		o.MaxSymbolsPerStep = defaultMaxSymbolsPerStep
	}
	if o.MaxTokensPerChunk <= 0 {
		o.MaxTokensPerChunk = defaultMaxTokensPerChunk
	}
	if o.ConsecutiveBlankLimit <= 0 {
		o.ConsecutiveBlankLimit = defaultConsecutiveBlankLimit
	}
	return o
}

// Hypothesis is the accumulated result of one decode invocation. Tokens,
// Timestamps and Confidences are parallel; timestamps are absolute encoder
// frame indices. A returned hypothesis is never mutated again.
type Hypothesis struct {
	Tokens       []int32
	Timestamps   []int
	Confidences  []float32
	Score        float64
	LastToken    int32
	HasLastToken bool
}

func (h *Hypothesis) emit(token int32, timestamp int, confidence float32) {
	h.Tokens = append(h.Tokens, token)
	h.Timestamps = append(h.Timestamps, timestamp)
	h.Confidences = append(h.Confidences, confidence)
	h.Score += float64(confidence)
	h.LastToken = token
	h.HasLastToken = true
}

// Decode runs the TDT greedy decode over one contiguous block of encoder
// frames. seqLen is the number of frames backed by real audio; anything
// past it is padding and never read. The state is consumed and the updated
// state returned alongside the hypothesis.
//
// The frame cursor strictly increases every outer iteration (a blank with
// duration 0 is coerced to 1), so the loop terminates within
// seqLen + maxSymbolsPerStep steps.
func Decode(
	frames FrameView,
	seqLen int,
	dec DecoderStepper,
	joint JointStepper,
	cfg *ModelConfig,
	st DecoderState,
	opts DecodeOptions,
) (Hypothesis, DecoderState, error) {
	var hyp Hypothesis
	if dec == nil || joint == nil {
		return hyp, st, fmt.Errorf("tdt: decode: %w", ErrNotInitialized)
	}
	opts = opts.withDefaults()

	effLen := seqLen
	if frames.Count() < effLen {
		effLen = frames.Count()
	}
	// Too little signal for even one real step: not an error, just nothing.
	if effLen < 2 {
		return hyp, st, nil
	}

	frame := make([]float32, cfg.EncoderHidden)

	// ensureProjection refreshes the memoized decoder projection when a
	// real token invalidated it; blanks keep reusing the cached one.
	ensureProjection := func(pos int) error {
		if st.projection != nil {
			return nil
		}
		in := cfg.BlankID
		if st.HasLastToken {
			in = st.LastToken
		}
		proj, h, c, err := dec.RunDecoder(in, st.Hidden, st.Cell)
		if err != nil {
			return fmt.Errorf("tdt: decoder at frame %d: %w", pos, err)
		}
		st.projection, st.Hidden, st.Cell = proj, h, c
		return nil
	}

	// query runs one joint step at pos with the cached projection and
	// resolves the duration bin. An out-of-range bin is a hard error, not
	// a clamp: it means the model conversion and the bin table disagree.
	query := func(pos int) (tok int32, prob float32, dur int, err error) {
		if err = frames.CopyFrame(pos, frame); err != nil {
			return 0, 0, 0, err
		}
		tok, prob, bin, err := joint.RunJoint(frame, st.projection)
		if err != nil {
			return 0, 0, 0, fmt.Errorf("tdt: joint at frame %d: %w", pos, err)
		}
		if bin < 0 || bin >= len(cfg.DurationBins) {
			return 0, 0, 0, fmt.Errorf("tdt: duration bin %d out of range [0,%d): %w", bin, len(cfg.DurationBins), ErrProcessingFailed)
		}
		return tok, prob, int(cfg.DurationBins[bin]), nil
	}

	// Cursor start: previous chunk's overflow wins, then the streaming
	// context adjustment on a first chunk.
	t := 0
	switch {
	case st.HasTimeJump:
		t = st.TimeJump
	case opts.ContextFrameAdjustment != 0:
		t = opts.ContextFrameAdjustment
	}
	if t < 0 {
		t = 0
	}
	st.TimeJump = 0
	st.HasTimeJump = false

	symbolsAtStep := 0

outer:
	for t < effLen && len(hyp.Tokens) < opts.MaxTokensPerChunk {
		if err := ensureProjection(t); err != nil {
			return hyp, st, err
		}

		tok, prob, dur, err := query(t)
		if err != nil {
			return hyp, st, err
		}

		// Silence fast path: advance and re-probe with the same unmodified
		// projection. Blanks never touch the decoder state: only real
		// tokens shape the linguistic context.
		for tok == cfg.BlankID {
			if dur == 0 {
				dur = 1 // forward progress
			}
			t += dur
			symbolsAtStep = 0
			if t >= effLen {
				continue outer
			}
			tok, prob, dur, err = query(t)
			if err != nil {
				return hyp, st, err
			}
		}

		hyp.emit(tok, opts.GlobalFrameOffset+t, prob)

		proj, h, c, err := dec.RunDecoder(tok, st.Hidden, st.Cell)
		if err != nil {
			return hyp, st, fmt.Errorf("tdt: decoder at frame %d: %w", t, err)
		}
		st.projection, st.Hidden, st.Cell = proj, h, c
		st.LastToken, st.HasLastToken = tok, true

		if dur > 0 {
			t += dur
			symbolsAtStep = 0
			continue
		}
		symbolsAtStep++
		if symbolsAtStep >= opts.MaxSymbolsPerStep {
			// Deadlock valve: the joint refuses to move, so we do.
			t++
			symbolsAtStep = 0
		}
	}

	if opts.IsLastChunk && len(hyp.Tokens) < opts.MaxTokensPerChunk {
		var err error
		hyp, st, err = finalizeTail(frames, effLen, dec, joint, cfg, hyp, st, opts)
		if err != nil {
			return hyp, st, err
		}
	}

	if opts.IsLastChunk {
		st.TimeJump = 0
		st.HasTimeJump = false
	} else {
		st.TimeJump = t - effLen
		st.HasTimeJump = true
	}

	// A chunk ending on sentence-final punctuation drops the cached
	// projection so the next chunk cannot re-emit it at the seam; the
	// last token itself stays for linguistic continuity.
	if hyp.HasLastToken && cfg.isSentenceEnd(hyp.LastToken) {
		st.projection = nil
	}

	return hyp, st, nil
}

// finalizeTail probes the last frame positions of the signal for tokens
// the main loop's advance skipped past. Bounded by maxSymbolsPerStep total
// steps and consecutiveBlankLimit blanks in a row.
func finalizeTail(
	frames FrameView,
	effLen int,
	dec DecoderStepper,
	joint JointStepper,
	cfg *ModelConfig,
	hyp Hypothesis,
	st DecoderState,
	opts DecodeOptions,
) (Hypothesis, DecoderState, error) {
	probes := []int{effLen - 2, effLen - 1}

	frame := make([]float32, cfg.EncoderHidden)
	blanks := 0
	for step := 0; step < opts.MaxSymbolsPerStep && blanks < opts.ConsecutiveBlankLimit; step++ {
		if len(hyp.Tokens) >= opts.MaxTokensPerChunk {
			break
		}
		pos := probes[step%len(probes)]

		if st.projection == nil {
			in := cfg.BlankID
			if st.HasLastToken {
				in = st.LastToken
			}
			proj, h, c, err := dec.RunDecoder(in, st.Hidden, st.Cell)
			if err != nil {
				return hyp, st, fmt.Errorf("tdt: finalize decoder: %w", err)
			}
			st.projection, st.Hidden, st.Cell = proj, h, c
		}

		if err := frames.CopyFrame(pos, frame); err != nil {
			return hyp, st, err
		}
		tok, prob, bin, err := joint.RunJoint(frame, st.projection)
		if err != nil {
			return hyp, st, fmt.Errorf("tdt: finalize joint at frame %d: %w", pos, err)
		}
		if bin < 0 || bin >= len(cfg.DurationBins) {
			return hyp, st, fmt.Errorf("tdt: duration bin %d out of range [0,%d): %w", bin, len(cfg.DurationBins), ErrProcessingFailed)
		}

		if tok == cfg.BlankID {
			blanks++
			continue
		}
		blanks = 0
		hyp.emit(tok, opts.GlobalFrameOffset+pos, prob)

		proj, h, c, err := dec.RunDecoder(tok, st.Hidden, st.Cell)
		if err != nil {
			return hyp, st, fmt.Errorf("tdt: finalize decoder: %w", err)
		}
		st.projection, st.Hidden, st.Cell = proj, h, c
		st.LastToken, st.HasLastToken = tok, true
	}
	return hyp, st, nil
}
