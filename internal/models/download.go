// Package models fetches the model artifacts the engine loads at runtime.
package models

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/chaz8081/gostt-engine/internal/config"
)

const (
	sileroModelURL  = "https://huggingface.co/onnx-community/silero-vad/resolve/main/onnx/model.onnx"
	sileroModelName = "silero_vad.onnx"
)

// parakeetFiles are the artifacts of the Parakeet TDT ONNX bundle.
var parakeetFiles = []string{
	"parakeet_preprocessor.onnx",
	"parakeet_encoder.onnx",
	"parakeet_decoder.onnx",
	"parakeet_joint.onnx",
	"parakeet_vocab.json",
}

// SileroModelPath returns the installed path of the Silero VAD model.
func SileroModelPath() string {
	return filepath.Join(config.DefaultModelsDir(), sileroModelName)
}

// ParakeetModelDir returns the directory the Parakeet bundle installs into.
func ParakeetModelDir() string {
	return config.DefaultModelsDir()
}

// DownloadSileroVAD downloads the Silero VAD ONNX model to the default
// models directory. It shows download progress to stdout.
func DownloadSileroVAD() error {
	modelsDir := config.DefaultModelsDir()
	if err := os.MkdirAll(modelsDir, 0755); err != nil {
		return fmt.Errorf("creating models dir: %w", err)
	}
	return downloadFile(sileroModelURL, filepath.Join(modelsDir, sileroModelName), sileroModelName)
}

// DownloadParakeet downloads the Parakeet TDT ONNX bundle from baseURL,
// which must serve the four graph files plus the vocabulary by name.
func DownloadParakeet(baseURL string) error {
	if baseURL == "" {
		return fmt.Errorf("models: parakeet bundle URL not set")
	}
	modelsDir := config.DefaultModelsDir()
	if err := os.MkdirAll(modelsDir, 0755); err != nil {
		return fmt.Errorf("creating models dir: %w", err)
	}
	base := strings.TrimSuffix(baseURL, "/")
	for _, name := range parakeetFiles {
		if err := downloadFile(base+"/"+name, filepath.Join(modelsDir, name), name); err != nil {
			return err
		}
	}
	return nil
}

// downloadFile fetches url into destPath via a temp file and rename.
// Existing non-empty files are kept.
func downloadFile(url, destPath, label string) error {
	if info, err := os.Stat(destPath); err == nil && info.Size() > 0 {
		fmt.Printf("  %s already exists: %s (%.1f MB)\n", label, destPath, float64(info.Size())/(1024*1024))
		return nil
	}

	fmt.Printf("  Downloading %s...\n", label)
	fmt.Printf("  URL: %s\n", url)
	fmt.Printf("  Destination: %s\n", destPath)

	resp, err := http.Get(url) //nolint:gosec // URLs come from constants or an operator flag
	if err != nil {
		return fmt.Errorf("downloading %s: %w", label, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("download %s failed: HTTP %d", label, resp.StatusCode)
	}

	// Write to temp file first, then rename (atomic)
	tmpPath := destPath + ".tmp"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}

	pr := &progressWriter{
		writer: f,
		total:  resp.ContentLength,
		label:  label,
	}

	written, err := io.Copy(pr, resp.Body)
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("writing %s: %w", label, err)
	}

	fmt.Printf("\n  Downloaded %.1f MB\n", float64(written)/(1024*1024))

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("moving %s into place: %w", label, err)
	}

	return nil
}

// progressWriter prints incremental download progress to stdout.
type progressWriter struct {
	writer  io.Writer
	total   int64
	written int64
	label   string
	lastPct int
}

func (p *progressWriter) Write(b []byte) (int, error) {
	n, err := p.writer.Write(b)
	if err != nil {
		return n, err
	}
	p.written += int64(n)

	if p.total > 0 {
		pct := int(float64(p.written) / float64(p.total) * 100)
		if pct != p.lastPct && pct%5 == 0 {
			fmt.Printf("\r  %s: %d%% (%.1f/%.1f MB)", p.label, pct,
				float64(p.written)/(1024*1024), float64(p.total)/(1024*1024))
			p.lastPct = pct
		}
	}
	return n, nil
}
