//go:build onnx

// Package ort owns the process-wide ONNX Runtime environment shared by
// every model session in the engine.
package ort

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
)

var (
	initOnce sync.Once
	initErr  error
)

// EnsureInitialized sets the shared library path and initializes the
// ONNX Runtime environment exactly once. The error is sticky: later
// callers see the original failure instead of running against a dead
// environment.
func EnsureInitialized() error {
	initOnce.Do(func() {
		libPath, err := resolveLibPath()
		if err != nil {
			initErr = fmt.Errorf("ort: %w", err)
			return
		}
		ort.SetSharedLibraryPath(libPath)
		initErr = ort.InitializeEnvironment()
	})
	return initErr
}

// resolveLibPath returns the path to the ONNX Runtime shared library.
// Search order:
//  1. GOSTT_ORT_LIB_PATH environment variable (explicit override)
//  2. lib/<goos>-<goarch>/ relative to the executable
//  3. ../lib/<goos>-<goarch>/ relative to the executable (bin/ layout)
//
// The working directory is never searched.
func resolveLibPath() (string, error) {
	if envPath := os.Getenv("GOSTT_ORT_LIB_PATH"); envPath != "" {
		info, err := os.Stat(envPath)
		if err != nil {
			return "", fmt.Errorf("GOSTT_ORT_LIB_PATH=%q does not exist", envPath)
		}
		if info.IsDir() {
			return "", fmt.Errorf("GOSTT_ORT_LIB_PATH=%q is a directory, expected a file", envPath)
		}
		return envPath, nil
	}

	filename := libFilename()
	rels := []string{
		filepath.Join("lib", runtime.GOOS+"-"+runtime.GOARCH, filename),
		filepath.Join("..", "lib", runtime.GOOS+"-"+runtime.GOARCH, filename),
	}

	if exePath, err := os.Executable(); err == nil {
		exeDir := filepath.Dir(exePath)
		for _, rel := range rels {
			path := filepath.Join(exeDir, rel)
			if _, err := os.Stat(path); err == nil {
				return path, nil
			}
		}
	}

	return "", fmt.Errorf("shared library not found; searched lib/<os>-<arch>/%s relative to executable (set GOSTT_ORT_LIB_PATH to override)", filename)
}

// libFilename returns the platform-specific ONNX Runtime library name.
func libFilename() string {
	switch runtime.GOOS {
	case "darwin":
		return "libonnxruntime.dylib"
	case "windows":
		return "onnxruntime.dll"
	default:
		return "libonnxruntime.so"
	}
}
