package main

import (
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chaz8081/gostt-engine/internal/audio"
	"github.com/chaz8081/gostt-engine/internal/config"
	"github.com/chaz8081/gostt-engine/internal/metrics"
	"github.com/chaz8081/gostt-engine/internal/models"
	"github.com/chaz8081/gostt-engine/internal/tdt"
	"github.com/chaz8081/gostt-engine/internal/transcribe"
	"github.com/chaz8081/gostt-engine/internal/vad"
)

func main() {
	// CLI flags
	configPath := flag.String("config", "", "path to config file (default: ~/.config/gostt-engine/config.yaml)")
	wavPath := flag.String("wav", "", "transcribe this WAV file")
	segmentPath := flag.String("segment", "", "print detected speech segments for this WAV file")
	listen := flag.Bool("listen", false, "stream the microphone through the live voice detector")
	download := flag.Bool("download-models", false, "download model files and exit")
	parakeetURL := flag.String("parakeet-url", "", "base URL of the Parakeet ONNX bundle (used with -download-models)")
	metricsAddr := flag.String("metrics-addr", "", "serve Prometheus metrics on this address (e.g. :9090)")
	vadMode := flag.String("vad", "auto", "voice detector backend: auto, silero, energy, off")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("config validation: %v", err)
	}
	setupLogging(cfg.LogLevel)

	if *download {
		if err := models.DownloadSileroVAD(); err != nil {
			log.Fatalf("download: %v", err)
		}
		if *parakeetURL != "" {
			if err := models.DownloadParakeet(*parakeetURL); err != nil {
				log.Fatalf("download: %v", err)
			}
		}
		return
	}

	var m *metrics.Metrics
	if *metricsAddr != "" {
		m = metrics.New()
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			log.Printf("Metrics listening on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
				log.Printf("ERROR: metrics server: %v", err)
			}
		}()
	}

	switch {
	case *segmentPath != "":
		err = runSegment(cfg, *segmentPath, *vadMode, m)
	case *wavPath != "":
		err = runTranscribe(cfg, *wavPath, *vadMode, m)
	case *listen:
		err = runListen(cfg, *vadMode, m)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatalf("ERROR: %v", err)
	}
}

// runTranscribe decodes a WAV file end to end and prints the text.
func runTranscribe(cfg *config.Config, path, vadMode string, m *metrics.Metrics) error {
	samples, rate, err := audio.LoadWAV(path)
	if err != nil {
		return err
	}
	if rate != vad.SampleRate {
		return fmt.Errorf("%s is %d Hz, the models need %d Hz", path, rate, vad.SampleRate)
	}
	log.Printf("Loaded %.1fs of audio from %s", float64(len(samples))/vad.SampleRate, path)

	pipeline, err := buildPipeline(cfg, vadMode, m)
	if err != nil {
		return err
	}
	defer pipeline.Close()

	start := time.Now()
	text, err := pipeline.Process(samples)
	if err != nil {
		return err
	}
	elapsed := time.Since(start).Round(time.Millisecond)

	if text == "" {
		log.Printf("No speech detected (%s)", elapsed)
		return nil
	}
	log.Printf("Transcribed in %s", elapsed)
	fmt.Println(text)
	return nil
}

// runSegment prints the detected speech regions of a WAV file.
func runSegment(cfg *config.Config, path, vadMode string, m *metrics.Metrics) error {
	samples, rate, err := audio.LoadWAV(path)
	if err != nil {
		return err
	}
	if rate != vad.SampleRate {
		return fmt.Errorf("%s is %d Hz, the models need %d Hz", path, rate, vad.SampleRate)
	}

	oracle, closeOracle, err := buildOracle(cfg, vadMode)
	if err != nil {
		return err
	}
	if closeOracle != nil {
		defer closeOracle()
	}
	if oracle == nil {
		return fmt.Errorf("segmentation needs a voice detector (-vad=%s)", vadMode)
	}

	probs, err := chunkProbabilities(samples, oracle)
	if err != nil {
		return err
	}
	segments, err := vad.SegmentSpeech(probs, len(samples), vadConfigFrom(cfg))
	if err != nil {
		return err
	}

	for _, seg := range segments {
		fmt.Printf("%8.2f  %8.2f  %6.2fs\n", seg.Start, seg.End, seg.End-seg.Start)
		if m != nil {
			m.SegmentDetected(seg.End - seg.Start)
		}
	}
	log.Printf("%d speech segments in %.1fs of audio", len(segments), float64(len(samples))/vad.SampleRate)
	return nil
}

// runListen streams the microphone through the causal voice detector,
// logging boundary events until interrupted. With an acoustic model
// compiled in, each completed region is transcribed.
func runListen(cfg *config.Config, vadMode string, m *metrics.Metrics) error {
	oracle, closeOracle, err := buildOracle(cfg, vadMode)
	if err != nil {
		return err
	}
	if closeOracle != nil {
		defer closeOracle()
	}
	if oracle == nil {
		return fmt.Errorf("listening needs a voice detector (-vad=%s)", vadMode)
	}

	var pipeline *transcribe.Pipeline
	if tdt.ParakeetAvailable() {
		pipeline, err = buildPipeline(cfg, "off", m)
		if err != nil {
			return err
		}
		defer pipeline.Close()
	} else {
		log.Println("No acoustic model compiled in; logging voice events only")
	}

	recorder, err := audio.NewRecorder(cfg.Audio.SampleRate, cfg.Audio.Channels)
	if err != nil {
		return err
	}
	defer recorder.Close()

	vadCfg := vadConfigFrom(cfg)
	st := vad.StreamState{}
	chunks := make(chan []float32, 16)
	recorder.StreamChunks(vad.ChunkSamples, func(chunk []float32) {
		select {
		case chunks <- chunk:
		default:
			slog.Warn("dropping capture chunk, detector is behind")
		}
	})
	if err := recorder.Start(); err != nil {
		return err
	}
	log.Println("Listening... Ctrl+C to quit.")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var speechStart int
	inSpeech := false
	for {
		select {
		case chunk := <-chunks:
			next, ev, prob, err := vad.ProcessStreamingChunk(chunk, oracle, st, vadCfg)
			if err != nil {
				return err
			}
			st = next
			slog.Debug("stream chunk", "prob", prob, "processed", st.Processed)
			if ev == nil {
				continue
			}
			if m != nil {
				m.StreamEvent(ev.Type.String())
			}
			log.Printf("%s at %.2fs", ev.Type, float64(ev.Sample)/vad.SampleRate)
			switch ev.Type {
			case vad.SpeechStart:
				speechStart = ev.Sample
				inSpeech = true
			case vad.SpeechEnd:
				if inSpeech && pipeline != nil {
					transcribeRegion(recorder, pipeline, speechStart, ev.Sample)
				}
				inSpeech = false
			}

		case sig := <-sigCh:
			log.Printf("Received %s, shutting down...", sig)
			recorder.Stop()
			return nil
		}
	}
}

// transcribeRegion decodes one completed speech region out of the
// recorder's running capture buffer.
func transcribeRegion(recorder *audio.Recorder, pipeline *transcribe.Pipeline, start, end int) {
	samples := recorder.Captured(start, end)
	if len(samples) == 0 {
		return
	}
	go func() {
		text, err := pipeline.Process(samples)
		if err != nil {
			log.Printf("ERROR: transcription failed: %v", err)
			return
		}
		if text != "" {
			log.Printf("Transcribed: %q", text)
		}
	}()
}

// buildPipeline assembles the full transcription pipeline: acoustic
// model, chunk processor, voice detector and vocabulary.
func buildPipeline(cfg *config.Config, vadMode string, m *metrics.Metrics) (*transcribe.Pipeline, error) {
	vocab, err := tdt.LoadVocabulary(cfg.VocabPath)
	if err != nil {
		return nil, err
	}
	modelCfg := tdt.ParakeetConfig(tdt.SentenceEndTokenIDs(vocab))

	log.Println("Loading acoustic model...")
	modelStart := time.Now()
	model, closeModel, err := tdt.NewAcousticModel(models.ParakeetModelDir(), modelCfg)
	if err != nil {
		return nil, err
	}
	log.Printf("Model loaded in %s", time.Since(modelStart).Round(time.Millisecond))

	chunkCfg := tdt.DefaultChunkConfig()
	chunkCfg.WindowSamples = int(cfg.Chunk.WindowSeconds * float64(vad.SampleRate))
	chunkCfg.OverlapSamples = int(cfg.Chunk.OverlapSeconds * float64(vad.SampleRate))
	opts := tdt.DecodeOptions{
		MaxSymbolsPerStep:     cfg.Decode.MaxSymbolsPerStep,
		MaxTokensPerChunk:     cfg.Decode.MaxTokensPerChunk,
		ConsecutiveBlankLimit: cfg.Decode.ConsecutiveBlankLimit,
	}
	proc, err := tdt.NewChunkProcessor(model, modelCfg, chunkCfg, opts)
	if err != nil {
		closeModel()
		return nil, err
	}
	if m != nil {
		proc.Observer = m
	}

	oracle, closeOracle, err := buildOracle(cfg, vadMode)
	if err != nil {
		closeModel()
		return nil, err
	}

	pipeline, err := transcribe.NewPipeline(proc, oracle, vadConfigFrom(cfg), vocab)
	if err != nil {
		closeModel()
		if closeOracle != nil {
			closeOracle()
		}
		return nil, err
	}
	pipeline.SetDedupConfig(tdt.DedupConfig{TerminalIDs: modelCfg.SentenceEndIDs})
	if m != nil {
		pipeline.Observer = m
	}
	pipeline.AddCloser(closeModel)
	if closeOracle != nil {
		pipeline.AddCloser(closeOracle)
	}
	return pipeline, nil
}

// buildOracle selects the voice detector backend. "auto" prefers the
// Silero model and falls back to the energy detector.
func buildOracle(cfg *config.Config, mode string) (vad.Oracle, func() error, error) {
	switch mode {
	case "off":
		return nil, nil, nil
	case "energy":
		return &vad.EnergyOracle{}, nil, nil
	case "silero":
		oracle, err := vad.NewModelOracle(cfg.VADModel)
		if err != nil {
			return nil, nil, err
		}
		return oracle, oracleCloser(oracle), nil
	case "auto", "":
		if vad.SileroAvailable() {
			oracle, err := vad.NewModelOracle(cfg.VADModel)
			if err == nil {
				return oracle, oracleCloser(oracle), nil
			}
			log.Printf("Silero model unavailable (%v), using energy detector", err)
		}
		return &vad.EnergyOracle{}, nil, nil
	default:
		return nil, nil, fmt.Errorf("unknown vad backend %q (supported: auto, silero, energy, off)", mode)
	}
}

// oracleCloser returns the oracle's Close method when it has one.
func oracleCloser(oracle vad.Oracle) func() error {
	if c, ok := oracle.(interface{ Close() error }); ok {
		return c.Close
	}
	return nil
}

// chunkProbabilities scores the audio chunk by chunk with a fresh
// detector state, zero padding the final partial chunk.
func chunkProbabilities(samples []float32, oracle vad.Oracle) ([]float32, error) {
	chunks, _ := audio.SplitChunks(samples, vad.ChunkSamples)
	probs := make([]float32, 0, len(chunks))
	var st vad.State
	for i, chunk := range chunks {
		prob, next, err := oracle.ProcessChunk(chunk, st)
		if err != nil {
			return nil, fmt.Errorf("vad chunk %d: %w", i, err)
		}
		st = next
		probs = append(probs, prob)
	}
	return probs, nil
}

// vadConfigFrom maps the file config onto the detector's parameters.
func vadConfigFrom(cfg *config.Config) vad.Config {
	return vad.Config{
		Threshold:                cfg.VAD.Threshold,
		NegativeThreshold:        cfg.VAD.NegativeThreshold,
		MinSpeechDuration:        time.Duration(cfg.VAD.MinSpeechMs) * time.Millisecond,
		MinSilenceDuration:       time.Duration(cfg.VAD.MinSilenceMs) * time.Millisecond,
		MaxSpeechDuration:        time.Duration(cfg.VAD.MaxSpeechSec) * time.Second,
		SpeechPadding:            time.Duration(cfg.VAD.SpeechPadMs) * time.Millisecond,
		MinSilenceAtMaxSpeech:    time.Duration(cfg.VAD.MinSilenceAtMaxSpeechMs) * time.Millisecond,
		SilenceThresholdForSplit: cfg.VAD.SilenceThresholdForSplit,
	}
}

// setupLogging configures the slog default level.
func setupLogging(level string) {
	var l slog.Level
	switch level {
	case "debug":
		l = slog.LevelDebug
	case "warn":
		l = slog.LevelWarn
	case "error":
		l = slog.LevelError
	default:
		l = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: l})))
}

// loadConfig loads the config from the specified path, or falls back to
// the default config path, or uses built-in defaults.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.Load(path)
	}

	defaultPath := config.DefaultConfigPath()
	if _, err := os.Stat(defaultPath); err == nil {
		cfg, err := config.Load(defaultPath)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", defaultPath, err)
		}
		log.Printf("Config loaded from %s", defaultPath)
		return cfg, nil
	}

	log.Println("No config file found, using defaults")
	return config.Default(), nil
}
