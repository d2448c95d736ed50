// Package testutil provides shared skip helpers for integration tests.
//
// Each helper calls t.Skip with a clear human-readable reason when the named
// prerequisite is absent, so integration tests remain runnable in partial
// environments without failing noisily.
//
// Typical usage:
//
//	func TestMyIntegration(t *testing.T) {
//	    testutil.RequireONNXRuntime(t)
//	    dir := testutil.RequireModelBundle(t)
//	    ...
//	}
package testutil

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/example/go-supertonic/internal/config"
	"github.com/example/go-supertonic/internal/onnx"
)

// ModelDirEnv names the environment variable that points integration tests
// at a downloaded model bundle.
const ModelDirEnv = "SUPERTONIC_MODEL_DIR"

// RequireONNXRuntime skips the test if no ONNX Runtime shared library can
// be located. Discovery follows the production order: SUPERTONIC_ORT_LIB,
// then ORT_LIBRARY_PATH, then common system library paths.
func RequireONNXRuntime(tb testing.TB) onnx.RuntimeInfo {
	tb.Helper()

	info, err := onnx.DetectRuntime(config.RuntimeConfig{})
	if err != nil {
		tb.Skipf("ONNX Runtime shared library not found (%v); set SUPERTONIC_ORT_LIB or ORT_LIBRARY_PATH", err)
	}

	return info
}

// RequireModelBundle skips the test unless SUPERTONIC_MODEL_DIR points at a
// directory holding at least the model config, and returns that directory.
func RequireModelBundle(tb testing.TB) string {
	tb.Helper()

	dir := os.Getenv(ModelDirEnv)
	if dir == "" {
		tb.Skipf("set %s to a downloaded model bundle to run this test", ModelDirEnv)
	}

	if _, err := os.Stat(filepath.Join(dir, onnx.ModelConfigFile)); err != nil {
		tb.Skipf("model bundle at %s=%q is incomplete: %v", ModelDirEnv, dir, err)
	}

	return dir
}

// RequireVoiceFile skips the test unless the voice id exists in dir as
// either a .bin or .json style file, and returns the resolved path.
func RequireVoiceFile(tb testing.TB, dir, id string) string {
	tb.Helper()

	for _, ext := range []string{".bin", ".json"} {
		p := filepath.Join(dir, id+ext)
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	tb.Skipf("voice %q not available under %s", id, dir)
	return ""
}
