package models

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestDownloadFile(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("model bytes"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "model.onnx")
	if err := downloadFile(srv.URL, dest, "model.onnx"); err != nil {
		t.Fatalf("downloadFile() error = %v", err)
	}

	data, err := os.ReadFile(dest)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "model bytes" {
		t.Errorf("downloaded content = %q", data)
	}
	if _, err := os.Stat(dest + ".tmp"); !os.IsNotExist(err) {
		t.Error("temp file left behind")
	}
}

func TestDownloadFileSkipsExisting(t *testing.T) {
	hits := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits++
		w.Write([]byte("fresh"))
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "model.onnx")
	if err := os.WriteFile(dest, []byte("already here"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := downloadFile(srv.URL, dest, "model.onnx"); err != nil {
		t.Fatalf("downloadFile() error = %v", err)
	}
	if hits != 0 {
		t.Errorf("server hit %d times for an existing file", hits)
	}
	data, _ := os.ReadFile(dest)
	if string(data) != "already here" {
		t.Errorf("existing file overwritten: %q", data)
	}
}

func TestDownloadFileHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	dest := filepath.Join(t.TempDir(), "model.onnx")
	err := downloadFile(srv.URL, dest, "model.onnx")
	if err == nil {
		t.Fatal("expected error for HTTP 404")
	}
	if !strings.Contains(err.Error(), "404") {
		t.Errorf("error does not mention status: %v", err)
	}
	if _, statErr := os.Stat(dest); !os.IsNotExist(statErr) {
		t.Error("destination created despite failed download")
	}
}

func TestDownloadParakeetRequiresURL(t *testing.T) {
	if err := DownloadParakeet(""); err == nil {
		t.Fatal("expected error for empty bundle URL")
	}
}

func TestProgressWriter(t *testing.T) {
	var buf bytes.Buffer
	pw := &progressWriter{writer: &buf, total: 100, label: "x"}

	for i := 0; i < 4; i++ {
		n, err := pw.Write(make([]byte, 25))
		if err != nil || n != 25 {
			t.Fatalf("Write() = %d, %v", n, err)
		}
	}
	if pw.written != 100 {
		t.Errorf("written = %d, want 100", pw.written)
	}
	if buf.Len() != 100 {
		t.Errorf("underlying writer got %d bytes, want 100", buf.Len())
	}
}

func TestParakeetBundleFiles(t *testing.T) {
	want := map[string]bool{
		"parakeet_preprocessor.onnx": true,
		"parakeet_encoder.onnx":      true,
		"parakeet_decoder.onnx":      true,
		"parakeet_joint.onnx":        true,
		"parakeet_vocab.json":        true,
	}
	if len(parakeetFiles) != len(want) {
		t.Fatalf("bundle has %d files, want %d", len(parakeetFiles), len(want))
	}
	for _, name := range parakeetFiles {
		if !want[name] {
			t.Errorf("unexpected bundle file %q", name)
		}
	}
}
