package vad

import (
	"errors"
	"fmt"
	"testing"
	"time"
)

// scriptOracle replays a fixed probability sequence.
type scriptOracle struct {
	probs []float32
	calls int
	err   error
}

func (o *scriptOracle) ProcessChunk(chunk []float32, st State) (float32, State, error) {
	if o.err != nil {
		return 0, st, o.err
	}
	p := o.probs[o.calls%len(o.probs)]
	o.calls++
	return p, st, nil
}

func streamConfig() Config {
	cfg := DefaultConfig()
	cfg.SpeechPadding = 100 * time.Millisecond // 1600 samples
	return cfg
}

func feed(t *testing.T, oracle Oracle, st StreamState, cfg Config, n int) (StreamState, []Event) {
	t.Helper()
	chunk := make([]float32, ChunkSamples)
	var events []Event
	for i := 0; i < n; i++ {
		next, ev, _, err := ProcessStreamingChunk(chunk, oracle, st, cfg)
		if err != nil {
			t.Fatalf("chunk %d: %v", i, err)
		}
		st = next
		if ev != nil {
			events = append(events, *ev)
		}
	}
	return st, events
}

func TestStreamSpeechStartEvent(t *testing.T) {
	// Five silent chunks, then speech: exactly one start event, padded
	// back from the already processed samples plus the current chunk.
	oracle := &scriptOracle{probs: []float32{0.1, 0.1, 0.1, 0.1, 0.1, 0.9}}

	st, events := feed(t, oracle, StreamState{}, streamConfig(), 6)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	if events[0].Type != SpeechStart {
		t.Fatalf("event = %v, want SpeechStart", events[0].Type)
	}
	want := 5*ChunkSamples - 1600 - ChunkSamples
	if events[0].Sample != want {
		t.Errorf("start sample = %d, want %d", events[0].Sample, want)
	}
	if !st.Triggered {
		t.Error("machine should be inside a speech region")
	}
}

func TestStreamStartClampedToZero(t *testing.T) {
	oracle := &scriptOracle{probs: []float32{0.9}}

	_, events := feed(t, oracle, StreamState{}, streamConfig(), 1)
	if len(events) != 1 || events[0].Sample != 0 {
		t.Fatalf("events = %v, want one start at sample 0", events)
	}
}

func TestStreamSpeechEndEvent(t *testing.T) {
	// Speech, then sustained silence: the end commits once the silence
	// has lasted MinSilenceDuration past the candidate.
	oracle := &scriptOracle{probs: []float32{0.9, 0.9, 0.1, 0.1}}
	cfg := streamConfig()

	st, events := feed(t, oracle, StreamState{}, cfg, 4)
	if len(events) != 2 {
		t.Fatalf("got %d events, want start and end: %v", len(events), events)
	}
	if events[1].Type != SpeechEnd {
		t.Fatalf("second event = %v, want SpeechEnd", events[1].Type)
	}
	// Candidate at 2 chunks processed, padded forward, minus one chunk.
	want := 2*ChunkSamples + 1600 - ChunkSamples
	if events[1].Sample != want {
		t.Errorf("end sample = %d, want %d", events[1].Sample, want)
	}
	if st.Triggered {
		t.Error("machine should be outside a speech region")
	}
}

func TestStreamSpeechCancelsPendingEnd(t *testing.T) {
	// A dip shorter than MinSilenceDuration is cancelled by returning
	// speech; no end event is emitted.
	cfg := streamConfig()
	cfg.MinSilenceDuration = 500 * time.Millisecond
	oracle := &scriptOracle{probs: []float32{0.9, 0.1, 0.9, 0.9}}

	st, events := feed(t, oracle, StreamState{}, cfg, 4)
	if len(events) != 1 {
		t.Fatalf("got %d events, want only the start: %v", len(events), events)
	}
	if !st.Triggered || st.HasTempEnd {
		t.Errorf("state = %+v, want triggered with no pending end", st)
	}
}

func TestStreamHysteresisBandInert(t *testing.T) {
	// Probabilities between thresholds change nothing in either direction.
	cfg := streamConfig()

	oracle := &scriptOracle{probs: []float32{0.4}}
	st, events := feed(t, oracle, StreamState{}, cfg, 3)
	if len(events) != 0 || st.Triggered {
		t.Errorf("band probabilities triggered: events=%v state=%+v", events, st)
	}

	// Inside a region the band keeps it open without starting a silence.
	oracle = &scriptOracle{probs: []float32{0.9, 0.4, 0.4, 0.4}}
	st, events = feed(t, oracle, StreamState{}, cfg, 4)
	if len(events) != 1 || !st.Triggered || st.HasTempEnd {
		t.Errorf("band ended a region: events=%v state=%+v", events, st)
	}
}

func TestStreamProcessedAdvances(t *testing.T) {
	oracle := &scriptOracle{probs: []float32{0.1}}
	st, _ := feed(t, oracle, StreamState{}, streamConfig(), 3)
	if st.Processed != 3*ChunkSamples {
		t.Errorf("processed = %d, want %d", st.Processed, 3*ChunkSamples)
	}
}

func TestStreamErrors(t *testing.T) {
	cfg := streamConfig()

	if _, _, _, err := ProcessStreamingChunk(make([]float32, ChunkSamples), nil, StreamState{}, cfg); !errors.Is(err, ErrNotInitialized) {
		t.Errorf("nil oracle: err = %v, want ErrNotInitialized", err)
	}

	oracle := &scriptOracle{probs: []float32{0.5}}
	if _, _, _, err := ProcessStreamingChunk(make([]float32, 100), oracle, StreamState{}, cfg); !errors.Is(err, ErrInvalidAudio) {
		t.Errorf("short chunk: err = %v, want ErrInvalidAudio", err)
	}

	failing := &scriptOracle{err: fmt.Errorf("model exploded")}
	st := StreamState{Processed: 123}
	got, _, _, err := ProcessStreamingChunk(make([]float32, ChunkSamples), failing, st, cfg)
	if err == nil {
		t.Fatal("expected oracle error")
	}
	if got.Processed != 123 {
		t.Errorf("state advanced on error: %+v", got)
	}
}

func TestEventTypeString(t *testing.T) {
	if SpeechStart.String() != "speech_start" || SpeechEnd.String() != "speech_end" {
		t.Errorf("strings = %q, %q", SpeechStart.String(), SpeechEnd.String())
	}
}
