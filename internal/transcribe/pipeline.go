// Package transcribe turns raw audio into text by combining voice
// activity segmentation with the chunked TDT decode.
package transcribe

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/chaz8081/gostt-engine/internal/tdt"
	"github.com/chaz8081/gostt-engine/internal/vad"
)

// Transcriber converts audio samples to text.
type Transcriber interface {
	// Process transcribes mono 16kHz float32 audio samples to text.
	Process(samples []float32) (string, error)
	// Close releases backend resources.
	Close() error
}

// Observer receives pipeline telemetry. The Prometheus metrics type
// implements it; a nil Observer disables telemetry.
type Observer interface {
	tdt.Observer
	SegmentDetected(seconds float64)
	DecodeDuration(seconds float64)
}

// Pipeline runs speech detection and decoding end to end: segment the
// audio with the VAD oracle, decode each speech region through the chunk
// processor, deduplicate across region boundaries and render text.
//
// The VAD oracle is optional: without one the whole input decodes as a
// single region.
type Pipeline struct {
	proc   *tdt.ChunkProcessor
	oracle vad.Oracle
	vadCfg vad.Config
	vocab  []string
	dedup  tdt.DedupConfig

	// Observer is optional telemetry.
	Observer Observer

	closers []func() error
}

// NewPipeline builds a pipeline around an already constructed chunk
// processor. oracle may be nil to disable segmentation.
func NewPipeline(proc *tdt.ChunkProcessor, oracle vad.Oracle, vadCfg vad.Config, vocab []string) (*Pipeline, error) {
	if proc == nil {
		return nil, fmt.Errorf("transcribe: nil chunk processor: %w", tdt.ErrNotInitialized)
	}
	if oracle != nil {
		if err := vadCfg.Validate(); err != nil {
			return nil, fmt.Errorf("transcribe: %w", err)
		}
	}
	return &Pipeline{proc: proc, oracle: oracle, vadCfg: vadCfg, vocab: vocab}, nil
}

// SetDedupConfig overrides the continuation deduplication bounds. The
// zero value keeps the defaults.
func (p *Pipeline) SetDedupConfig(cfg tdt.DedupConfig) {
	p.dedup = cfg
}

// AddCloser registers a resource released by Close, typically the
// backing model sessions.
func (p *Pipeline) AddCloser(fn func() error) {
	p.closers = append(p.closers, fn)
}

// Close releases all registered resources, returning the first error.
func (p *Pipeline) Close() error {
	var first error
	for _, fn := range p.closers {
		if err := fn(); err != nil && first == nil {
			first = err
		}
	}
	p.closers = nil
	return first
}

// Process transcribes mono 16kHz float32 audio samples to text.
func (p *Pipeline) Process(samples []float32) (string, error) {
	if len(samples) == 0 {
		return "", fmt.Errorf("transcribe: empty audio: %w", tdt.ErrInvalidAudio)
	}

	segments, err := p.Segments(samples)
	if err != nil {
		return "", err
	}

	var tokens []int32
	for _, seg := range segments {
		start := int(seg.Start * vad.SampleRate)
		end := int(seg.End * vad.SampleRate)
		if start < 0 {
			start = 0
		}
		if end > len(samples) {
			end = len(samples)
		}
		if end <= start {
			continue
		}

		began := time.Now()
		tr, err := p.proc.Process(samples[start:end])
		if err != nil {
			return "", fmt.Errorf("transcribe: segment [%0.2f,%0.2f]: %w", seg.Start, seg.End, err)
		}
		if p.Observer != nil {
			p.Observer.DecodeDuration(time.Since(began).Seconds())
		}

		next, removed := tdt.Deduplicate(tokens, tr.Tokens, p.dedup)
		if removed > 0 {
			slog.Debug("deduplicated continuation boundary", "removed", removed,
				"segmentStart", seg.Start, "segmentEnd", seg.End)
		}
		tokens = append(tokens, next...)
	}

	return tdt.TokensToText(tokens, p.vocab), nil
}

// Segments runs the VAD oracle over the audio and returns the detected
// speech regions. Without an oracle the whole input is one region.
func (p *Pipeline) Segments(samples []float32) ([]vad.Segment, error) {
	if p.oracle == nil {
		return []vad.Segment{{Start: 0, End: float64(len(samples)) / vad.SampleRate}}, nil
	}

	probs, err := p.chunkProbs(samples)
	if err != nil {
		return nil, err
	}

	segments, err := vad.SegmentSpeech(probs, len(samples), p.vadCfg)
	if err != nil {
		return nil, fmt.Errorf("transcribe: segmentation: %w", err)
	}
	if p.Observer != nil {
		for _, seg := range segments {
			p.Observer.SegmentDetected(seg.End - seg.Start)
		}
	}
	slog.Debug("speech segmentation", "chunks", len(probs), "segments", len(segments))
	return segments, nil
}

// chunkProbs scores the audio chunk by chunk, threading the oracle
// state through. The final partial chunk is zero padded.
func (p *Pipeline) chunkProbs(samples []float32) ([]float32, error) {
	var st vad.State
	n := (len(samples) + vad.ChunkSamples - 1) / vad.ChunkSamples
	probs := make([]float32, 0, n)

	chunk := make([]float32, vad.ChunkSamples)
	for pos := 0; pos < len(samples); pos += vad.ChunkSamples {
		end := pos + vad.ChunkSamples
		if end > len(samples) {
			end = len(samples)
		}
		copied := copy(chunk, samples[pos:end])
		for i := copied; i < vad.ChunkSamples; i++ {
			chunk[i] = 0
		}

		prob, next, err := p.oracle.ProcessChunk(chunk, st)
		if err != nil {
			return nil, fmt.Errorf("transcribe: vad chunk at %d: %w", pos, err)
		}
		st = next
		probs = append(probs, prob)
	}
	return probs, nil
}
