// Package doctor provides environment preflight checks for supertonic.
package doctor

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/example/go-supertonic/internal/onnx"
)

// PassMark and FailMark are the prefix symbols printed for each check result.
const (
	PassMark = "✓"
	FailMark = "✗"
)

// VersionFunc returns a version string or an error if the component is unavailable.
type VersionFunc func() (string, error)

// Config holds injectable dependencies for each doctor check.
type Config struct {
	// Runtime returns the resolved ONNX Runtime library version, e.g.
	// "1.23.0 (/usr/lib/libonnxruntime.so)".
	Runtime VersionFunc
	// SkipRuntime skips the library check (text-only tooling).
	SkipRuntime bool
	// ORTAPIVersion is the API level sessions are created with (0 = default 23).
	ORTAPIVersion uint32
	// BundleDir is the model bundle directory to inspect. Empty skips the check.
	BundleDir string
	// VoiceFiles is the list of voice style paths to verify on disk.
	VoiceFiles []string
}

// Result collects the outcome of all checks.
type Result struct {
	failures []string
}

// Failed returns true if any check failed.
func (r *Result) Failed() bool { return len(r.failures) > 0 }

// Failures returns the list of failure messages.
func (r *Result) Failures() []string { return append([]string(nil), r.failures...) }

// AddFailure appends an external failure message to the result.
func (r *Result) AddFailure(msg string) { r.failures = append(r.failures, msg) }

func (r *Result) fail(msg string) { r.failures = append(r.failures, msg) }

// Run executes all configured checks and writes human-readable output to w.
// Each check line is prefixed with PassMark or FailMark.
func Run(cfg Config, w io.Writer) Result {
	var res Result

	// ---- ONNX Runtime library ---------------------------------------------
	if cfg.SkipRuntime {
		fmt.Fprintf(w, "%s onnxruntime library: skipped\n", PassMark)
	} else {
		ver, err := cfg.Runtime()
		if err != nil {
			res.fail(fmt.Sprintf("onnxruntime library: %v", err))
			fmt.Fprintf(w, "%s onnxruntime library: not found (%v)\n", FailMark, err)
		} else if verErr := checkRuntimeVersion(ver, cfg.ORTAPIVersion); verErr != nil {
			res.fail(fmt.Sprintf("onnxruntime library: %v", verErr))
			fmt.Fprintf(w, "%s onnxruntime library %s: %v\n", FailMark, ver, verErr)
		} else {
			fmt.Fprintf(w, "%s onnxruntime library: %s\n", PassMark, ver)
		}
	}

	// ---- model bundle -----------------------------------------------------
	if cfg.BundleDir == "" {
		fmt.Fprintf(w, "%s model bundle: skipped\n", PassMark)
	} else {
		checkBundle(cfg.BundleDir, &res, w)
	}

	// ---- voice files ------------------------------------------------------
	for _, path := range cfg.VoiceFiles {
		if _, err := os.Stat(path); err != nil {
			res.fail(fmt.Sprintf("voice file %q: %v", path, err))
			fmt.Fprintf(w, "%s voice file %s: not found\n", FailMark, path)
		} else {
			fmt.Fprintf(w, "%s voice file: %s\n", PassMark, path)
		}
	}

	return res
}

// checkBundle verifies the bundle's file inventory and, when the config
// file is present, that it parses into usable model dimensions.
func checkBundle(dir string, res *Result, w io.Writer) {
	configMissing := false

	for _, name := range onnx.BundleFiles() {
		if _, err := os.Stat(filepath.Join(dir, name)); err != nil {
			res.fail(fmt.Sprintf("bundle file %q: %v", name, err))
			fmt.Fprintf(w, "%s bundle file %s: not found\n", FailMark, name)

			if name == onnx.ModelConfigFile {
				configMissing = true
			}
			continue
		}

		fmt.Fprintf(w, "%s bundle file: %s\n", PassMark, name)
	}

	if configMissing {
		return
	}

	cfg, err := onnx.LoadModelConfig(filepath.Join(dir, onnx.ModelConfigFile))
	if err != nil {
		res.fail(fmt.Sprintf("model config: %v", err))
		fmt.Fprintf(w, "%s model config: %v\n", FailMark, err)
		return
	}

	fmt.Fprintf(w, "%s model config: sample_rate=%d latent_dim=%d chunk_size=%d\n",
		PassMark, cfg.AE.SampleRate, cfg.EffectiveLatentDim(), cfg.EffectiveChunkSize())
}

// checkRuntimeVersion returns an error when a parseable library version is
// below the floor implied by the requested API level: onnxruntime 1.N ships
// C API level N. Unknown or unparseable versions pass; real incompatibility
// surfaces at session creation.
func checkRuntimeVersion(ver string, apiVersion uint32) error {
	if apiVersion == 0 {
		apiVersion = 23
	}

	major, minor, err := parseMajorMinor(ver)
	if err != nil {
		return nil
	}
	if major != 1 {
		return fmt.Errorf("requires onnxruntime 1.x, got %d.%d", major, minor)
	}
	if minor < int(apiVersion) {
		return fmt.Errorf("requires onnxruntime >= 1.%d for API level %d, got 1.%d", apiVersion, apiVersion, minor)
	}
	return nil
}

func parseMajorMinor(ver string) (major, minor int, err error) {
	parts := strings.SplitN(ver, ".", 3)
	if len(parts) < 2 {
		return 0, 0, fmt.Errorf("unexpected version format %q", ver)
	}
	major, err = strconv.Atoi(parts[0])
	if err != nil {
		return 0, 0, fmt.Errorf("bad major in %q: %w", ver, err)
	}
	minor, err = strconv.Atoi(parts[1])
	if err != nil {
		return 0, 0, fmt.Errorf("bad minor in %q: %w", ver, err)
	}
	return major, minor, nil
}
