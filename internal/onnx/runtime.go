package onnx

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
	"sync/atomic"

	"github.com/example/go-supertonic/internal/config"
)

// ortLibEnv is the process-local marker Bootstrap leaves behind so
// anything spawned later resolves the same library without re-probing.
const ortLibEnv = "SUPERTONIC_ORT_LIB"

// RuntimeInfo describes the resolved ONNX Runtime shared object.
type RuntimeInfo struct {
	LibraryPath string
	Version     string
	Initialized bool
}

var versionPattern = regexp.MustCompile(`([0-9]+\.[0-9]+\.[0-9]+)`)

var (
	runtimeOnce  sync.Once
	runtimeInfo  RuntimeInfo
	runtimeErr   error
	shutdownDone atomic.Bool
)

// Bootstrap resolves the runtime library once per process and records it
// in the environment. Later calls return the first resolution regardless
// of cfg.
func Bootstrap(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	runtimeOnce.Do(func() {
		info, err := DetectRuntime(cfg)
		if err != nil {
			runtimeErr = err
			return
		}

		if err := os.Setenv(ortLibEnv, info.LibraryPath); err != nil {
			runtimeErr = fmt.Errorf("set %s: %w", ortLibEnv, err)
			return
		}

		info.Initialized = true
		runtimeInfo = info
	})

	if runtimeErr != nil {
		return RuntimeInfo{}, runtimeErr
	}

	return runtimeInfo, nil
}

// Shutdown marks the bootstrapped runtime released. Idempotent; a
// process that never bootstrapped has nothing to release.
func Shutdown() error {
	if !runtimeInfo.Initialized {
		return nil
	}

	if shutdownDone.Swap(true) {
		return nil
	}

	runtimeInfo.Initialized = false

	return nil
}

// wellKnownLibraries are probed in order when nothing names the runtime
// library explicitly.
var wellKnownLibraries = []string{
	"/usr/lib/libonnxruntime.so",
	"/usr/local/lib/libonnxruntime.so",
	"/opt/homebrew/lib/libonnxruntime.dylib",
	"C:/onnxruntime/lib/onnxruntime.dll",
}

// DetectRuntime locates the ONNX Runtime shared object. Explicit sources
// win in order: config, the bootstrap marker, then ORT_LIBRARY_PATH; an
// explicitly named library that does not exist is an error rather than a
// fallthrough. Without an explicit source the well-known install
// locations are probed.
func DetectRuntime(cfg config.RuntimeConfig) (RuntimeInfo, error) {
	if path := explicitLibraryPath(cfg); path != "" {
		if _, err := os.Stat(path); err != nil {
			return RuntimeInfo{LibraryPath: path, Version: "unknown"}, fmt.Errorf("onnx runtime library path check failed: %w", err)
		}
		return RuntimeInfo{LibraryPath: path, Version: libraryVersion(cfg, path)}, nil
	}

	for _, candidate := range wellKnownLibraries {
		if _, err := os.Stat(candidate); err == nil {
			return RuntimeInfo{LibraryPath: candidate, Version: libraryVersion(cfg, candidate)}, nil
		}
	}

	return RuntimeInfo{LibraryPath: "not found", Version: "unknown"}, errors.New("unable to detect ONNX Runtime library path")
}

func explicitLibraryPath(cfg config.RuntimeConfig) string {
	for _, p := range []string{cfg.ORTLibraryPath, os.Getenv(ortLibEnv), os.Getenv("ORT_LIBRARY_PATH")} {
		if p != "" {
			return p
		}
	}
	return ""
}

// libraryVersion resolves the runtime version: config, then ORT_VERSION,
// then a version number embedded in the library filename.
func libraryVersion(cfg config.RuntimeConfig, path string) string {
	if cfg.ORTVersion != "" {
		return cfg.ORTVersion
	}
	if v := os.Getenv("ORT_VERSION"); v != "" {
		return v
	}
	if m := versionPattern.FindStringSubmatch(filepath.Base(path)); len(m) == 2 {
		return m[1]
	}
	return "unknown"
}
