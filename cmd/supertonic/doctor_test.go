package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-supertonic/internal/config"
)

func writeEmptyFile(t *testing.T, path string) {
	t.Helper()
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
}

func TestCollectVoiceFiles_ResolvesAbsolutePaths(t *testing.T) {
	dir := writeVoiceBundle(t)

	paths := collectVoiceFiles(config.PathsConfig{ModelDir: dir})
	if len(paths) != 2 {
		t.Fatalf("expected 2 voice files, got %d: %v", len(paths), paths)
	}

	for _, p := range paths {
		if !filepath.IsAbs(p) {
			t.Errorf("expected absolute path, got %q", p)
		}
		if !strings.HasSuffix(p, ".bin") {
			t.Errorf("expected a style file path, got %q", p)
		}
	}
}

func TestCollectVoiceFiles_NilWithoutBundle(t *testing.T) {
	paths := collectVoiceFiles(config.PathsConfig{ModelDir: filepath.Join(t.TempDir(), "missing")})
	if paths != nil {
		t.Errorf("expected nil for a missing bundle, got %v", paths)
	}
}

func TestProbeRuntimeVersion_ErrorWhenLibraryMissing(t *testing.T) {
	_, err := probeRuntimeVersion(config.RuntimeConfig{
		ORTLibraryPath: filepath.Join(t.TempDir(), "libonnxruntime.so"),
	})
	if err == nil {
		t.Fatal("expected error for a missing runtime library")
	}
}

func TestProbeRuntimeVersion_FormatsVersionAndPath(t *testing.T) {
	t.Setenv("ORT_VERSION", "")

	lib := filepath.Join(t.TempDir(), "libonnxruntime.so.1.23.0")
	writeEmptyFile(t, lib)

	got, err := probeRuntimeVersion(config.RuntimeConfig{ORTLibraryPath: lib})
	if err != nil {
		t.Fatalf("probeRuntimeVersion: %v", err)
	}

	if !strings.HasPrefix(got, "1.23.0 (") || !strings.Contains(got, lib) {
		t.Errorf("unexpected probe line: %q", got)
	}
}
