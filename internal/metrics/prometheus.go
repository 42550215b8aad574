// Package metrics exposes Prometheus instrumentation for the decode and
// segmentation pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics contains all Prometheus metrics for the engine.
type Metrics struct {
	// Decode metrics
	WindowsDecoded prometheus.Counter
	TokensEmitted  prometheus.Counter
	FramesDecoded  prometheus.Counter
	DecodeSeconds  prometheus.Histogram

	// Chunk merge metrics
	MergeOutcomes *prometheus.CounterVec

	// VAD metrics
	SegmentsDetected prometheus.Counter
	SpeechSeconds    prometheus.Counter
	StreamEvents     *prometheus.CounterVec
}

// New registers and returns the engine metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		WindowsDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gostt_windows_decoded_total",
			Help: "Number of decode windows processed",
		}),
		TokensEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gostt_tokens_emitted_total",
			Help: "Number of non-blank tokens emitted by the decode loop",
		}),
		FramesDecoded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gostt_encoder_frames_total",
			Help: "Number of encoder frames consumed",
		}),
		DecodeSeconds: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "gostt_decode_duration_seconds",
			Help:    "Wall time of one full transcription",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		MergeOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gostt_chunk_merge_total",
			Help: "Chunk merges by strategy (concat, contiguous, lcs, midpoint)",
		}, []string{"strategy"}),
		SegmentsDetected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gostt_vad_segments_total",
			Help: "Number of speech segments detected",
		}),
		SpeechSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Name: "gostt_vad_speech_seconds_total",
			Help: "Total seconds of detected speech",
		}),
		StreamEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "gostt_vad_stream_events_total",
			Help: "Streaming VAD events by type",
		}, []string{"type"}),
	}
}

// ChunkDecoded implements the decode observer contract.
func (m *Metrics) ChunkDecoded(frames, tokens int) {
	m.WindowsDecoded.Inc()
	m.FramesDecoded.Add(float64(frames))
	m.TokensEmitted.Add(float64(tokens))
}

// MergeStrategy implements the decode observer contract.
func (m *Metrics) MergeStrategy(strategy string) {
	m.MergeOutcomes.WithLabelValues(strategy).Inc()
}

// DecodeDuration records one segment's decode wall time in seconds.
func (m *Metrics) DecodeDuration(seconds float64) {
	m.DecodeSeconds.Observe(seconds)
}

// SegmentDetected records one VAD segment and its duration in seconds.
func (m *Metrics) SegmentDetected(seconds float64) {
	m.SegmentsDetected.Inc()
	m.SpeechSeconds.Add(seconds)
}

// StreamEvent records one streaming boundary event.
func (m *Metrics) StreamEvent(eventType string) {
	m.StreamEvents.WithLabelValues(eventType).Inc()
}

// Handler returns the HTTP handler serving the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
