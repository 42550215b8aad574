// Package vad turns per-chunk speech probabilities into speech/silence
// boundaries. It contains an offline hysteresis segmentation engine over a
// full probability sequence and a causal streaming state machine that
// commits to boundaries chunk by chunk, plus the model oracles producing
// the probabilities.
package vad

import (
	"fmt"
	"time"
)

const (
	// SampleRate is the only audio rate the VAD models accept.
	SampleRate = 16000

	// ChunkSamples is the fixed oracle chunk: 4096 samples, 256 ms.
	ChunkSamples = 4096

	// defaultNegativeOffset derives the exit threshold from the entry
	// threshold when no explicit value is configured.
	defaultNegativeOffset = 0.15
)

// Config holds the segmentation parameters shared by the offline engine
// and the streaming state machine.
type Config struct {
	// Threshold is the entry probability: at or above it a chunk counts as
	// speech. NegativeThreshold is the exit probability; zero derives it
	// as Threshold - 0.15. Probabilities between the two never change
	// state (hysteresis band).
	Threshold         float32 `yaml:"threshold"`
	NegativeThreshold float32 `yaml:"negative_threshold"`

	// MinSpeechDuration drops regions shorter than this.
	// MinSilenceDuration is how long probabilities must stay below the
	// exit threshold before a region closes.
	MinSpeechDuration  time.Duration `yaml:"min_speech_duration"`
	MinSilenceDuration time.Duration `yaml:"min_silence_duration"`

	// MaxSpeechDuration force-splits a region at its best candidate
	// silence once exceeded; zero means unlimited.
	MaxSpeechDuration time.Duration `yaml:"max_speech_duration"`

	// SpeechPadding widens each emitted region on both sides; gaps
	// narrower than twice the padding are split evenly instead.
	SpeechPadding time.Duration `yaml:"speech_padding"`

	// MinSilenceAtMaxSpeech discards split candidates shorter than this.
	// SilenceThresholdForSplit prefers candidates whose minimum
	// probability dropped at least this low.
	MinSilenceAtMaxSpeech    time.Duration `yaml:"min_silence_at_max_speech"`
	SilenceThresholdForSplit float32       `yaml:"silence_threshold_for_split"`
}

// DefaultConfig returns the segmentation defaults.
func DefaultConfig() Config {
	return Config{
		Threshold:                0.5,
		MinSpeechDuration:        250 * time.Millisecond,
		MinSilenceDuration:       100 * time.Millisecond,
		MaxSpeechDuration:        30 * time.Second,
		SpeechPadding:            30 * time.Millisecond,
		MinSilenceAtMaxSpeech:    98 * time.Millisecond,
		SilenceThresholdForSplit: 0.15,
	}
}

// Validate checks the configuration for unusable values.
func (c *Config) Validate() error {
	if c.Threshold <= 0 || c.Threshold > 1 {
		return fmt.Errorf("vad: threshold must be in (0,1], got %f", c.Threshold)
	}
	if c.NegativeThreshold < 0 {
		return fmt.Errorf("vad: negative_threshold must be >= 0, got %f", c.NegativeThreshold)
	}
	if c.NegativeThreshold != 0 && c.NegativeThreshold >= c.Threshold {
		return fmt.Errorf("vad: negative_threshold %f must be below threshold %f", c.NegativeThreshold, c.Threshold)
	}
	if c.MinSpeechDuration < 0 || c.MinSilenceDuration < 0 || c.MaxSpeechDuration < 0 {
		return fmt.Errorf("vad: durations must not be negative")
	}
	if c.SpeechPadding < 0 || c.MinSilenceAtMaxSpeech < 0 {
		return fmt.Errorf("vad: padding durations must not be negative")
	}
	return nil
}

// negative resolves the effective exit threshold.
func (c *Config) negative() float32 {
	if c.NegativeThreshold > 0 {
		return c.NegativeThreshold
	}
	n := c.Threshold - defaultNegativeOffset
	if n < 0.01 {
		n = 0.01
	}
	return n
}

// samplesOf converts a duration to samples at the fixed model rate.
func samplesOf(d time.Duration) int {
	return int(d.Seconds() * SampleRate)
}
