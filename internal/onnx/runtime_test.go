package onnx

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/example/go-supertonic/internal/config"
)

func resetRuntimeStateForTest() {
	runtimeOnce = sync.Once{}
	runtimeInfo = RuntimeInfo{}
	runtimeErr = nil
	shutdownDone.Store(false)
}

func writeFakeLibrary(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("not a real shared object"), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestDetectRuntime_SourcePrecedence(t *testing.T) {
	cfgLib := writeFakeLibrary(t, "from-config.so")
	markerLib := writeFakeLibrary(t, "from-marker.so")
	convLib := writeFakeLibrary(t, "from-ort-library-path.so")

	tests := []struct {
		name   string
		cfg    config.RuntimeConfig
		marker string
		conv   string
		want   string
	}{
		{
			name:   "config wins over both envs",
			cfg:    config.RuntimeConfig{ORTLibraryPath: cfgLib},
			marker: markerLib,
			conv:   convLib,
			want:   cfgLib,
		},
		{
			name:   "marker wins over conventional env",
			marker: markerLib,
			conv:   convLib,
			want:   markerLib,
		},
		{
			name: "conventional env used last",
			conv: convLib,
			want: convLib,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(ortLibEnv, tt.marker)
			t.Setenv("ORT_LIBRARY_PATH", tt.conv)

			info, err := DetectRuntime(tt.cfg)
			if err != nil {
				t.Fatalf("DetectRuntime failed: %v", err)
			}
			if info.LibraryPath != tt.want {
				t.Fatalf("resolved %q, want %q", info.LibraryPath, tt.want)
			}
		})
	}
}

func TestDetectRuntime_ExplicitMissingPathFails(t *testing.T) {
	t.Setenv(ortLibEnv, "")
	t.Setenv("ORT_LIBRARY_PATH", "")

	missing := filepath.Join(t.TempDir(), "nope.so")
	info, err := DetectRuntime(config.RuntimeConfig{ORTLibraryPath: missing})
	if err == nil {
		t.Fatal("expected an error for an explicitly named missing library")
	}
	if info.LibraryPath != missing {
		t.Fatalf("error info should carry the failing path, got %q", info.LibraryPath)
	}
}

func TestDetectRuntime_VersionResolution(t *testing.T) {
	versioned := writeFakeLibrary(t, "libonnxruntime.1.23.2.dylib")
	plain := writeFakeLibrary(t, "libonnxruntime.so")

	tests := []struct {
		name string
		cfg  config.RuntimeConfig
		env  string
		want string
	}{
		{
			name: "config version wins",
			cfg:  config.RuntimeConfig{ORTLibraryPath: versioned, ORTVersion: "9.9.9"},
			want: "9.9.9",
		},
		{
			name: "env version beats filename",
			cfg:  config.RuntimeConfig{ORTLibraryPath: versioned},
			env:  "2.0.0",
			want: "2.0.0",
		},
		{
			name: "filename version parsed",
			cfg:  config.RuntimeConfig{ORTLibraryPath: versioned},
			want: "1.23.2",
		},
		{
			name: "unversioned filename reports unknown",
			cfg:  config.RuntimeConfig{ORTLibraryPath: plain},
			want: "unknown",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("ORT_VERSION", tt.env)

			info, err := DetectRuntime(tt.cfg)
			if err != nil {
				t.Fatalf("DetectRuntime failed: %v", err)
			}
			if info.Version != tt.want {
				t.Fatalf("version %q, want %q", info.Version, tt.want)
			}
		})
	}
}

func TestBootstrap_FirstResolutionSticks(t *testing.T) {
	resetRuntimeStateForTest()
	t.Setenv(ortLibEnv, "")

	lib1 := writeFakeLibrary(t, "lib1.so")
	lib2 := writeFakeLibrary(t, "lib2.so")

	info1, err := Bootstrap(config.RuntimeConfig{Threads: 1, ORTLibraryPath: lib1})
	if err != nil {
		t.Fatalf("first bootstrap failed: %v", err)
	}
	info2, err := Bootstrap(config.RuntimeConfig{Threads: 1, ORTLibraryPath: lib2})
	if err != nil {
		t.Fatalf("second bootstrap failed: %v", err)
	}

	if info1.LibraryPath != lib1 {
		t.Fatalf("first resolution %q, want %q", info1.LibraryPath, lib1)
	}
	if info2.LibraryPath != lib1 {
		t.Fatalf("second call re-resolved to %q, want sticky %q", info2.LibraryPath, lib1)
	}
	if !info2.Initialized {
		t.Fatal("bootstrapped info should be marked initialized")
	}
	if os.Getenv(ortLibEnv) != lib1 {
		t.Fatalf("bootstrap marker %q, want %q", os.Getenv(ortLibEnv), lib1)
	}

	if err := Shutdown(); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if err := Shutdown(); err != nil {
		t.Fatalf("repeated shutdown failed: %v", err)
	}
}
