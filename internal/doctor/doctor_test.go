package doctor_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-supertonic/internal/doctor"
)

// writeBundleDir lays out a minimal complete bundle directory.
func writeBundleDir(t *testing.T) string {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"tts.json":               `{"ae":{"sample_rate":44100,"base_chunk_size":320},"ttl":{"chunk_compress_factor":4,"latent_dim":24}}`,
		"unicode_indexer.json":   `{}`,
		"duration_predictor.onnx": "x",
		"text_encoder.onnx":      "x",
		"vector_estimator.onnx":  "x",
		"vocoder.onnx":           "x",
	}
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	return dir
}

// ---------------------------------------------------------------------------
// all-pass scenario
// ---------------------------------------------------------------------------

func TestRun_AllChecksPass(t *testing.T) {
	bundleDir := writeBundleDir(t)
	voice := filepath.Join(t.TempDir(), "F1.json")
	if err := os.WriteFile(voice, []byte("{}"), 0o644); err != nil {
		t.Fatalf("write voice: %v", err)
	}

	cfg := doctor.Config{
		Runtime:    func() (string, error) { return "1.23.0 (/usr/lib/libonnxruntime.so)", nil },
		BundleDir:  bundleDir,
		VoiceFiles: []string{voice},
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if result.Failed() {
		t.Errorf("expected all checks to pass; failures: %v", result.Failures())
	}

	body := out.String()
	if !strings.Contains(body, "onnxruntime") {
		t.Error("output should mention onnxruntime")
	}
	if !strings.Contains(body, "sample_rate=44100") {
		t.Errorf("output should report the parsed model config:\n%s", body)
	}
}

// ---------------------------------------------------------------------------
// runtime library
// ---------------------------------------------------------------------------

func TestRun_RuntimeMissingFails(t *testing.T) {
	cfg := doctor.Config{
		Runtime: func() (string, error) { return "", errLibNotFound },
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !result.Failed() {
		t.Fatal("expected failure when the runtime library is not found")
	}
	if !hasFailureContaining(result.Failures(), "onnxruntime") {
		t.Errorf("expected failure mentioning onnxruntime, got: %v", result.Failures())
	}
}

func TestRun_RuntimeTooOldFails(t *testing.T) {
	cfg := doctor.Config{
		Runtime: func() (string, error) { return "1.17.3", nil },
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !result.Failed() {
		t.Fatal("expected failure for onnxruntime 1.17 below API level 23")
	}
}

func TestRun_RuntimeUnknownVersionPasses(t *testing.T) {
	cfg := doctor.Config{
		Runtime: func() (string, error) { return "unknown (/opt/ort/libonnxruntime.so)", nil },
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if result.Failed() {
		t.Errorf("unknown version should not fail preflight, got: %v", result.Failures())
	}
}

// ---------------------------------------------------------------------------
// bundle files
// ---------------------------------------------------------------------------

func TestRun_MissingGraphFileFails(t *testing.T) {
	bundleDir := writeBundleDir(t)
	if err := os.Remove(filepath.Join(bundleDir, "vocoder.onnx")); err != nil {
		t.Fatalf("remove fixture: %v", err)
	}

	cfg := doctor.Config{
		Runtime:   func() (string, error) { return "1.23.0", nil },
		BundleDir: bundleDir,
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !result.Failed() {
		t.Fatal("expected failure for missing graph file")
	}
	if !hasFailureContaining(result.Failures(), "vocoder.onnx") {
		t.Errorf("expected failure mentioning vocoder.onnx, got: %v", result.Failures())
	}
}

func TestRun_BrokenModelConfigFails(t *testing.T) {
	bundleDir := writeBundleDir(t)
	if err := os.WriteFile(filepath.Join(bundleDir, "tts.json"), []byte("{broken"), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}

	cfg := doctor.Config{
		Runtime:   func() (string, error) { return "1.23.0", nil },
		BundleDir: bundleDir,
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !result.Failed() {
		t.Fatal("expected failure for unparseable model config")
	}
	if !hasFailureContaining(result.Failures(), "model config") {
		t.Errorf("expected failure mentioning model config, got: %v", result.Failures())
	}
}

// ---------------------------------------------------------------------------
// voice file existence
// ---------------------------------------------------------------------------

func TestRun_MissingVoiceFileFails(t *testing.T) {
	cfg := doctor.Config{
		Runtime:    func() (string, error) { return "1.23.0", nil },
		VoiceFiles: []string{"/nonexistent/F1.json"},
	}

	var out strings.Builder
	result := doctor.Run(cfg, &out)

	if !result.Failed() {
		t.Fatal("expected failure for missing voice file")
	}
	if !hasFailureContaining(result.Failures(), "voice") {
		t.Errorf("expected failure mentioning voice, got: %v", result.Failures())
	}
}

// ---------------------------------------------------------------------------
// output markers and skips
// ---------------------------------------------------------------------------

func TestRun_OutputContainsPassAndFailMarkers(t *testing.T) {
	cfg := doctor.Config{
		Runtime:    func() (string, error) { return "", errLibNotFound },
		VoiceFiles: []string{},
	}

	var out strings.Builder
	doctor.Run(cfg, &out)

	body := out.String()
	if !strings.Contains(body, doctor.PassMark) {
		t.Errorf("output missing pass marker %q:\n%s", doctor.PassMark, body)
	}
	if !strings.Contains(body, doctor.FailMark) {
		t.Errorf("output missing fail marker %q:\n%s", doctor.FailMark, body)
	}
}

func TestRun_SkipChecks(t *testing.T) {
	cfg := doctor.Config{
		SkipRuntime: true,
	}

	var out strings.Builder

	result := doctor.Run(cfg, &out)
	if result.Failed() {
		t.Fatalf("expected no failures when checks are skipped, got: %v", result.Failures())
	}

	body := out.String()
	if !strings.Contains(body, "onnxruntime library: skipped") {
		t.Fatalf("expected runtime skipped output, got:\n%s", body)
	}
	if !strings.Contains(body, "model bundle: skipped") {
		t.Fatalf("expected bundle skipped output, got:\n%s", body)
	}
}

func TestResult_AddFailure(t *testing.T) {
	var res doctor.Result
	if res.Failed() {
		t.Fatal("zero result should not be failed")
	}

	res.AddFailure("external check broke")
	if !res.Failed() {
		t.Fatal("AddFailure should mark the result failed")
	}
	if got := res.Failures(); len(got) != 1 || got[0] != "external check broke" {
		t.Errorf("Failures() = %v", got)
	}
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

var errLibNotFound = sentinelError("library not found")

func hasFailureContaining(failures []string, substr string) bool {
	substr = strings.ToLower(substr)
	for _, f := range failures {
		if strings.Contains(strings.ToLower(f), substr) {
			return true
		}
	}

	return false
}
