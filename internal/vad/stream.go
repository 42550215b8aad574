package vad

import "fmt"

// EventType distinguishes stream boundary events.
type EventType int

const (
	// SpeechStart marks the beginning of a speech region.
	SpeechStart EventType = iota
	// SpeechEnd marks the end of a speech region.
	SpeechEnd
)

func (t EventType) String() string {
	switch t {
	case SpeechStart:
		return "speech_start"
	case SpeechEnd:
		return "speech_end"
	default:
		return fmt.Sprintf("event(%d)", int(t))
	}
}

// Event is a committed stream boundary at an absolute sample offset.
type Event struct {
	Type   EventType
	Sample int
}

// StreamState is the full state of the causal segmentation machine. A zero
// value is a fresh stream. Callers own exactly one StreamState per stream
// and must not share it between concurrent calls.
type StreamState struct {
	// Model is the oracle's recurrent state.
	Model State

	// Triggered means the machine is inside a speech region. TempEnd is a
	// candidate silence start awaiting confirmation. Processed counts
	// samples consumed so far.
	Triggered  bool
	TempEnd    int
	HasTempEnd bool
	Processed  int
}

// ProcessStreamingChunk feeds one fixed-size chunk through the oracle and
// advances the causal hysteresis machine. It emits at most one event:
// SpeechStart when the probability crosses the entry threshold from
// outside a region, SpeechEnd once silence below the exit threshold has
// lasted MinSilenceDuration. Probabilities inside the hysteresis band
// change nothing. Unlike the offline engine, boundaries are committed
// immediately and never revisited.
func ProcessStreamingChunk(chunk []float32, oracle Oracle, st StreamState, cfg Config) (StreamState, *Event, float32, error) {
	if oracle == nil {
		return st, nil, 0, fmt.Errorf("vad: stream: %w", ErrNotInitialized)
	}
	if len(chunk) != ChunkSamples {
		return st, nil, 0, fmt.Errorf("vad: chunk has %d samples, want %d: %w", len(chunk), ChunkSamples, ErrInvalidAudio)
	}

	prob, model, err := oracle.ProcessChunk(chunk, st.Model)
	if err != nil {
		return st, nil, 0, fmt.Errorf("vad: stream: %w", err)
	}
	st.Model = model

	pad := samplesOf(cfg.SpeechPadding)
	minSilence := samplesOf(cfg.MinSilenceDuration)
	neg := cfg.negative()

	var ev *Event
	switch {
	case prob >= cfg.Threshold:
		// Speech returning cancels any pending silence.
		st.HasTempEnd = false
		st.TempEnd = 0
		if !st.Triggered {
			st.Triggered = true
			start := st.Processed - pad - ChunkSamples
			if start < 0 {
				start = 0
			}
			ev = &Event{Type: SpeechStart, Sample: start}
		}

	case prob < neg && st.Triggered:
		if !st.HasTempEnd {
			st.TempEnd = st.Processed
			st.HasTempEnd = true
		}
		if st.Processed-st.TempEnd >= minSilence {
			st.Triggered = false
			end := st.TempEnd + pad - ChunkSamples
			if end < 0 {
				end = 0
			}
			ev = &Event{Type: SpeechEnd, Sample: end}
			st.HasTempEnd = false
			st.TempEnd = 0
		}
	}

	st.Processed += len(chunk)
	return st, ev, prob, nil
}
