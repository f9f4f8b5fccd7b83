package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/example/go-supertonic-tts/internal/config"
)

// EnvORTLib names the ORT library for this process. Bootstrap sets it so
// later runners and child tools agree on one library.
const EnvORTLib = "SUPERTONIC_ORT_LIB"

// ErrRuntimeNotFound is returned when no ORT library can be located.
var ErrRuntimeNotFound = errors.New("unable to detect ONNX Runtime library path")

// RuntimeInfo describes the located ORT shared library.
type RuntimeInfo struct {
	LibraryPath string
	Version     string
	Initialized bool
}

// versionSuffix matches "1.23.2" in names like libonnxruntime.so.1.23.2.
var versionSuffix = regexp.MustCompile(`([0-9]+\.[0-9]+\.[0-9]+)`)

// wellKnownLibraries are probed after config and environment.
var wellKnownLibraries = []string{
	"/usr/lib/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.so",
	"/usr/lib/x86_64-linux-gnu/libonnxruntime.so",
	"/opt/homebrew/lib/libonnxruntime.dylib",
	"/usr/local/lib/libonnxruntime.dylib",
	"C:/onnxruntime/lib/onnxruntime.dll",
}

var boot struct {
	once sync.Once
	mu   sync.Mutex
	info RuntimeInfo
	err  error
}

// Bootstrap locates the ORT library on the first call and returns that
// result on every later call, whatever cfg says.
func Bootstrap(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	boot.once.Do(func() {
		info, err := DetectRuntime(cfg)
		if err == nil {
			err = os.Setenv(EnvORTLib, info.LibraryPath)
		}

		boot.mu.Lock()
		defer boot.mu.Unlock()

		if err != nil {
			boot.err = err
			return
		}

		info.Initialized = true
		boot.info = info
	})

	boot.mu.Lock()
	defer boot.mu.Unlock()

	if boot.err != nil {
		return RuntimeInfo{}, boot.err
	}

	return boot.info, nil
}

// Shutdown marks the bootstrapped runtime as released. Runners own their
// ORT handles, so there is nothing else to free. Repeated calls are no-ops.
func Shutdown() error {
	boot.mu.Lock()
	defer boot.mu.Unlock()

	boot.info.Initialized = false

	return nil
}

// DetectRuntime resolves the ORT library from, in order: cfg, EnvORTLib,
// ORT_LIBRARY_PATH and the well-known install locations. The version comes
// from cfg, ORT_VERSION or the library file name.
func DetectRuntime(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	path := firstNonEmpty(cfg.ORTLibraryPath, os.Getenv(EnvORTLib), os.Getenv("ORT_LIBRARY_PATH"), probeWellKnown())
	if path == "" {
		return RuntimeInfo{LibraryPath: "not found", Version: "unknown"}, ErrRuntimeNotFound
	}

	if _, err := os.Stat(path); err != nil {
		return RuntimeInfo{LibraryPath: path, Version: "unknown"}, fmt.Errorf("onnx runtime library %s: %w", path, err)
	}

	version := firstNonEmpty(cfg.ORTVersion, os.Getenv("ORT_VERSION"), inferVersionFromPath(path), "unknown")

	return RuntimeInfo{LibraryPath: path, Version: version}, nil
}

func probeWellKnown() string {
	for _, c := range wellKnownLibraries {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}

	return ""
}

func inferVersionFromPath(path string) string {
	if m := versionSuffix.FindStringSubmatch(filepath.Base(path)); len(m) == 2 {
		return m[1]
	}

	return ""
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}

	return ""
}
