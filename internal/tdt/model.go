// Package tdt implements greedy Token-and-Duration Transducer decoding:
// a per-chunk decode loop with timestamps and confidences, chunked
// processing of long audio with overlap merging, and deduplication of
// token runs at streaming continuation boundaries.
//
// The neural network itself is injected: the package only drives the
// encoder/decoder/joint steps and never touches model weights.
package tdt

import "fmt"

// Encoder turns raw audio samples into a block of encoder frames.
type Encoder interface {
	// RunEncoder encodes mono 16kHz float32 samples. validLength is the
	// number of real (non-padding) samples. It returns the flattened
	// frame tensor wrapped in a view plus the number of valid frames.
	RunEncoder(samples []float32, validLength int) (FrameView, int, error)
}

// DecoderStepper runs the prediction network for one step.
type DecoderStepper interface {
	// RunDecoder feeds one token through the LSTM decoder, returning the
	// decoder projection and the updated hidden/cell state.
	RunDecoder(tokenID int32, hIn, cIn []float32) (projection, hOut, cOut []float32, err error)
}

// JointStepper runs the joint decision network for one step.
type JointStepper interface {
	// RunJoint combines one encoder frame with one decoder projection and
	// returns the argmax token, its probability and the duration bin index.
	RunJoint(encoderFrame, decoderProjection []float32) (tokenID int32, probability float32, durationBin int, err error)
}

// Model is the full acoustic model oracle the decode loop drives.
type Model interface {
	Encoder
	DecoderStepper
	JointStepper
}

// ModelConfig carries the constants a model conversion fixes. The same
// decode loop serves every model variant; only these values differ.
type ModelConfig struct {
	// BlankID is the reserved token meaning "no output at this frame".
	// It also acts as the start-of-sequence token on a fresh state.
	BlankID int32

	// DurationBins maps the joint's duration bin index to a frame advance.
	DurationBins []int32

	// EncoderHidden and DecoderHidden are the feature vector sizes.
	EncoderHidden int
	DecoderHidden int

	// StateSize is the length of the flattened hidden/cell state vectors
	// (LSTM layers × decoder hidden size).
	StateSize int

	// FrameDuration is the audio span of one encoder frame in seconds.
	FrameDuration float64

	// SentenceEndIDs are token ids for sentence-final punctuation. A
	// chunk ending on one of these drops its cached projection so the
	// next chunk cannot re-emit the punctuation at the seam.
	SentenceEndIDs []int32
}

// Validate checks the config for values the decode loop cannot work with.
func (c *ModelConfig) Validate() error {
	if len(c.DurationBins) == 0 {
		return fmt.Errorf("tdt: duration bin table must not be empty")
	}
	if c.EncoderHidden <= 0 || c.DecoderHidden <= 0 {
		return fmt.Errorf("tdt: hidden sizes must be > 0, got encoder=%d decoder=%d", c.EncoderHidden, c.DecoderHidden)
	}
	if c.StateSize <= 0 {
		return fmt.Errorf("tdt: state size must be > 0, got %d", c.StateSize)
	}
	if c.FrameDuration <= 0 {
		return fmt.Errorf("tdt: frame duration must be > 0, got %f", c.FrameDuration)
	}
	return nil
}

// isSentenceEnd reports whether id is a sentence-final punctuation token.
func (c *ModelConfig) isSentenceEnd(id int32) bool {
	for _, p := range c.SentenceEndIDs {
		if p == id {
			return true
		}
	}
	return false
}
