package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config holds all engine configuration.
type Config struct {
	VocabPath string        `yaml:"vocab_path"`
	VADModel  string        `yaml:"vad_model_path"`
	Audio     AudioConfig   `yaml:"audio"`
	Decode    DecodeConfig  `yaml:"decode"`
	Chunk     ChunkConfig   `yaml:"chunk"`
	VAD       VADConfig     `yaml:"vad"`
	Metrics   MetricsConfig `yaml:"metrics"`
	LogLevel  string        `yaml:"log_level"`
}

// AudioConfig holds audio input settings.
type AudioConfig struct {
	SampleRate uint32 `yaml:"sample_rate"`
	Channels   uint32 `yaml:"channels"`
}

// DecodeConfig holds the decode loop safety bounds.
type DecodeConfig struct {
	MaxSymbolsPerStep     int `yaml:"max_symbols_per_step"`
	MaxTokensPerChunk     int `yaml:"max_tokens_per_chunk"`
	ConsecutiveBlankLimit int `yaml:"consecutive_blank_limit"`
}

// ChunkConfig holds the long-audio windowing geometry.
type ChunkConfig struct {
	WindowSeconds  float64 `yaml:"window_seconds"`
	OverlapSeconds float64 `yaml:"overlap_seconds"`
}

// VADConfig holds segmentation settings. Durations are in milliseconds
// unless the field name says otherwise.
type VADConfig struct {
	Threshold                float32 `yaml:"threshold"`
	NegativeThreshold        float32 `yaml:"negative_threshold"`
	MinSpeechMs              int     `yaml:"min_speech_ms"`
	MinSilenceMs             int     `yaml:"min_silence_ms"`
	MaxSpeechSec             int     `yaml:"max_speech_sec"`
	SpeechPadMs              int     `yaml:"speech_pad_ms"`
	MinSilenceAtMaxSpeechMs  int     `yaml:"min_silence_at_max_speech_ms"`
	SilenceThresholdForSplit float32 `yaml:"silence_threshold_for_split"`
}

// MetricsConfig holds the optional Prometheus endpoint address.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // empty disables the endpoint
}

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "gostt-engine")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// DefaultModelsDir returns the directory model artifacts install into.
func DefaultModelsDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".local", "share", "gostt-engine", "models")
}

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		VocabPath: filepath.Join(DefaultModelsDir(), "parakeet_vocab.json"),
		VADModel:  filepath.Join(DefaultModelsDir(), "silero_vad.onnx"),
		Audio: AudioConfig{
			SampleRate: 16000,
			Channels:   1,
		},
		Decode: DecodeConfig{
			MaxSymbolsPerStep:     10,
			MaxTokensPerChunk:     512,
			ConsecutiveBlankLimit: 2,
		},
		Chunk: ChunkConfig{
			WindowSeconds:  15,
			OverlapSeconds: 2,
		},
		VAD: VADConfig{
			Threshold:                0.5,
			MinSpeechMs:              250,
			MinSilenceMs:             100,
			MaxSpeechSec:             30,
			SpeechPadMs:              30,
			MinSilenceAtMaxSpeechMs:  98,
			SilenceThresholdForSplit: 0.15,
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults. Tilde (~) in paths is expanded to the home directory.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.VocabPath = expandTilde(cfg.VocabPath)
	cfg.VADModel = expandTilde(cfg.VADModel)

	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Audio.SampleRate == 0 {
		return fmt.Errorf("audio.sample_rate must be > 0")
	}
	if c.Audio.Channels == 0 {
		return fmt.Errorf("audio.channels must be > 0")
	}

	if c.Chunk.WindowSeconds <= 0 {
		return fmt.Errorf("chunk.window_seconds must be > 0")
	}
	if c.Chunk.OverlapSeconds < 0 || c.Chunk.OverlapSeconds >= c.Chunk.WindowSeconds {
		return fmt.Errorf("chunk.overlap_seconds must be in [0, window_seconds)")
	}

	if c.VAD.Threshold <= 0 || c.VAD.Threshold > 1 {
		return fmt.Errorf("vad.threshold must be in (0, 1], got %f", c.VAD.Threshold)
	}
	if c.VAD.NegativeThreshold < 0 {
		return fmt.Errorf("vad.negative_threshold must be >= 0")
	}
	if c.VAD.NegativeThreshold != 0 && c.VAD.NegativeThreshold >= c.VAD.Threshold {
		return fmt.Errorf("vad.negative_threshold must be 0 (derived) or below vad.threshold")
	}
	if c.VAD.MinSpeechMs < 0 || c.VAD.MinSilenceMs < 0 || c.VAD.MaxSpeechSec < 0 || c.VAD.SpeechPadMs < 0 {
		return fmt.Errorf("vad durations must not be negative")
	}

	if c.Decode.MaxSymbolsPerStep < 0 || c.Decode.MaxTokensPerChunk < 0 || c.Decode.ConsecutiveBlankLimit < 0 {
		return fmt.Errorf("decode limits must not be negative")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// expandTilde replaces a leading ~ with the user's home directory.
func expandTilde(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
