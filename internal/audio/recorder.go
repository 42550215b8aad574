// Package audio handles sample ingress: WAV file decoding, PCM
// conversion and live microphone capture.
package audio

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gen2brain/malgo"
)

// ChunkFunc receives fixed-size sample chunks during live capture. It is
// called on the capture callback goroutine and must not block.
type ChunkFunc func(chunk []float32)

// Recorder captures audio from the default microphone. Samples accumulate
// in an internal buffer; when a chunk size and callback are set, complete
// fixed-size chunks are additionally delivered as they fill, which is how
// the streaming VAD consumes live audio.
type Recorder struct {
	ctx        *malgo.AllocatedContext
	device     *malgo.Device
	sampleRate uint32
	channels   uint32

	mu        sync.Mutex
	buf       []float32
	pending   []float32
	chunkSize int
	onChunk   ChunkFunc
	recording bool
}

// NewRecorder creates a new audio recorder. Call Close() when done.
func NewRecorder(sampleRate, channels uint32) (*Recorder, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("audio: initializing context: %w", err)
	}

	return &Recorder{
		ctx:        ctx,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// StreamChunks enables chunked delivery: every chunkSize captured samples
// are passed to fn. Must be called before Start.
func (r *Recorder) StreamChunks(chunkSize int, fn ChunkFunc) {
	r.mu.Lock()
	r.chunkSize = chunkSize
	r.onChunk = fn
	r.mu.Unlock()
}

// Start begins capturing audio from the default microphone.
func (r *Recorder) Start() error {
	r.mu.Lock()
	if r.recording {
		r.mu.Unlock()
		return fmt.Errorf("audio: already recording")
	}
	r.buf = r.buf[:0]
	r.pending = r.pending[:0]
	r.recording = true
	r.mu.Unlock()

	deviceCfg := malgo.DefaultDeviceConfig(malgo.Capture)
	deviceCfg.Capture.Format = malgo.FormatF32
	deviceCfg.Capture.Channels = r.channels
	deviceCfg.SampleRate = r.sampleRate

	callbacks := malgo.DeviceCallbacks{
		Data: r.onData,
	}

	device, err := malgo.InitDevice(r.ctx.Context, deviceCfg, callbacks)
	if err != nil {
		r.mu.Lock()
		r.recording = false
		r.mu.Unlock()
		return fmt.Errorf("audio: initializing capture device: %w", err)
	}

	if err := device.Start(); err != nil {
		device.Uninit()
		r.mu.Lock()
		r.recording = false
		r.mu.Unlock()
		return fmt.Errorf("audio: starting capture device: %w", err)
	}

	r.mu.Lock()
	r.device = device
	r.mu.Unlock()

	return nil
}

// Stop ends the capture and returns everything recorded as float32.
func (r *Recorder) Stop() []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.recording {
		return nil
	}

	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
	r.recording = false

	result := make([]float32, len(r.buf))
	copy(result, r.buf)
	return result
}

// Captured returns a copy of the samples in [start, end) from the
// running capture buffer, clamped to what has been recorded so far.
func (r *Recorder) Captured(start, end int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if start < 0 {
		start = 0
	}
	if end > len(r.buf) {
		end = len(r.buf)
	}
	if end <= start {
		return nil
	}
	out := make([]float32, end-start)
	copy(out, r.buf[start:end])
	return out
}

// IsRecording returns whether the recorder is currently capturing audio.
func (r *Recorder) IsRecording() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.recording
}

// Close releases all audio resources.
func (r *Recorder) Close() error {
	r.mu.Lock()
	if r.device != nil {
		r.device.Uninit()
		r.device = nil
	}
	r.recording = false
	r.mu.Unlock()

	if r.ctx != nil {
		if err := r.ctx.Uninit(); err != nil {
			return fmt.Errorf("audio: uninitializing context: %w", err)
		}
		r.ctx.Free()
	}
	return nil
}

// onData is the malgo callback invoked when captured audio is available.
func (r *Recorder) onData(_, pSample []byte, frameCount uint32) {
	sampleCount := frameCount * r.channels
	samples := bytesToFloat32(pSample, sampleCount)

	r.mu.Lock()
	r.buf = append(r.buf, samples...)

	if r.chunkSize > 0 && r.onChunk != nil {
		r.pending = append(r.pending, samples...)
		var chunks [][]float32
		for len(r.pending) >= r.chunkSize {
			chunk := make([]float32, r.chunkSize)
			copy(chunk, r.pending[:r.chunkSize])
			r.pending = r.pending[r.chunkSize:]
			chunks = append(chunks, chunk)
		}
		fn := r.onChunk
		r.mu.Unlock()
		for _, c := range chunks {
			fn(c)
		}
		return
	}
	r.mu.Unlock()
}

// bytesToFloat32 converts raw little-endian float32 bytes to samples.
func bytesToFloat32(data []byte, sampleCount uint32) []float32 {
	samples := make([]float32, 0, sampleCount)
	for i := uint32(0); i < sampleCount; i++ {
		offset := i * 4
		if offset+4 > uint32(len(data)) {
			break
		}
		bits := binary.LittleEndian.Uint32(data[offset : offset+4])
		samples = append(samples, math.Float32frombits(bits))
	}
	return samples
}
