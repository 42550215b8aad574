package tdt

// Parakeet TDT 0.6B v2 decode constants, fixed by the ONNX conversion.
const (
	parakeetBlankID       = 1024
	parakeetEncoderHidden = 1024
	parakeetDecoderHidden = 640
	parakeetLSTMLayers    = 2
	parakeetFrameDuration = 0.08
)

var parakeetDurationBins = []int32{0, 1, 2, 3, 4}

// ParakeetConfig returns the decode constants for the Parakeet TDT 0.6B
// v2 conversion. sentenceEnds marks the vocabulary's sentence-final
// punctuation tokens; pass nil to disable the cache-clear behavior.
func ParakeetConfig(sentenceEnds []int32) *ModelConfig {
	return &ModelConfig{
		BlankID:        parakeetBlankID,
		DurationBins:   parakeetDurationBins,
		EncoderHidden:  parakeetEncoderHidden,
		DecoderHidden:  parakeetDecoderHidden,
		StateSize:      parakeetLSTMLayers * 1 * parakeetDecoderHidden,
		FrameDuration:  parakeetFrameDuration,
		SentenceEndIDs: sentenceEnds,
	}
}
