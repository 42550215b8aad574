package tdt

// DecoderState is the per-utterance recurrent state plus the continuity
// bookkeeping the decode loop carries between chunks. Values are passed in
// and returned explicitly; callers must not share one state between
// concurrent decodes.
type DecoderState struct {
	// Hidden and Cell are the flattened LSTM state vectors, ModelConfig
	// StateSize elements each.
	Hidden []float32
	Cell   []float32

	// LastToken is the most recent non-blank token, used as decoder input
	// on the next step. HasLastToken distinguishes it from token 0.
	LastToken    int32
	HasLastToken bool

	// projection is the memoized decoder output reused while skipping
	// silence: blanks never update the language-model state.
	projection []float32

	// TimeJump is the signed overflow of the decode cursor past the end
	// of the previous chunk, used to align the next chunk's start in
	// continuous mode.
	TimeJump    int
	HasTimeJump bool
}

// NewDecoderState returns a zeroed state sized for cfg.
func NewDecoderState(cfg *ModelConfig) DecoderState {
	return DecoderState{
		Hidden: make([]float32, cfg.StateSize),
		Cell:   make([]float32, cfg.StateSize),
	}
}

// Reset zeroes the recurrent state and clears the cached projection and
// time jump. When preserveLastToken is set the linguistic context token
// survives, so a new chunk continues the previous word flow.
func (s *DecoderState) Reset(preserveLastToken bool) {
	for i := range s.Hidden {
		s.Hidden[i] = 0
	}
	for i := range s.Cell {
		s.Cell[i] = 0
	}
	s.projection = nil
	s.TimeJump = 0
	s.HasTimeJump = false
	if !preserveLastToken {
		s.LastToken = 0
		s.HasLastToken = false
	}
}

// CachedProjection exposes whether a decoder projection is memoized.
// Used by tests; the decode loop accesses the field directly.
func (s *DecoderState) CachedProjection() bool { return s.projection != nil }
