package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/example/go-supertonic/internal/audio"
	"github.com/example/go-supertonic/internal/config"
	"github.com/example/go-supertonic/internal/tts"
)

// fakeSynthBackend records what the command hands to the service and
// plays back canned results.
type fakeSynthBackend struct {
	rate      int
	result    *tts.Result
	err       error
	chunks    []tts.ChunkAudio
	streamErr error

	gotInput string
	gotOpts  tts.Options
	closed   bool
}

func (f *fakeSynthBackend) Synthesize(_ context.Context, input string, opts tts.Options) (*tts.Result, error) {
	f.gotInput = input
	f.gotOpts = opts
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *fakeSynthBackend) SynthesizeStream(_ context.Context, input string, opts tts.Options, emit func(tts.ChunkAudio) error) (float64, error) {
	f.gotInput = input
	f.gotOpts = opts
	if f.streamErr != nil {
		return 0, f.streamErr
	}

	total := 0.0
	for _, c := range f.chunks {
		if err := emit(c); err != nil {
			return 0, err
		}
		total += c.Duration
	}
	return total, nil
}

func (f *fakeSynthBackend) SampleRate() int { return f.rate }

func (f *fakeSynthBackend) Close() { f.closed = true }

func withFakeBackend(t *testing.T, f *fakeSynthBackend) {
	t.Helper()

	orig := openSynthBackend
	t.Cleanup(func() { openSynthBackend = orig })
	openSynthBackend = func(config.Config) (synthBackend, error) { return f, nil }
}

func TestRunSynthCommand_StdinToStdout(t *testing.T) {
	fake := &fakeSynthBackend{
		rate: 44100,
		result: &tts.Result{
			Samples:    []float32{0.5, -0.25},
			SampleRate: 44100,
			Duration:   2.0 / 44100,
			Chunks:     1,
			Voice:      "F1",
		},
	}
	withFakeBackend(t, fake)

	var stdout bytes.Buffer

	err := runSynthCommand(
		context.Background(),
		config.DefaultConfig(),
		synthRunOptions{Out: "-", Voice: "F1"},
		strings.NewReader(" hello from stdin "),
		&stdout,
	)
	if err != nil {
		t.Fatalf("runSynthCommand: %v", err)
	}

	if fake.gotInput != "hello from stdin" {
		t.Errorf("backend received %q", fake.gotInput)
	}
	if fake.gotOpts.Voice != "F1" {
		t.Errorf("backend received voice %q", fake.gotOpts.Voice)
	}
	if !fake.closed {
		t.Error("backend was not closed")
	}

	decoded, err := audio.DecodeWAV(stdout.Bytes(), 44100)
	if err != nil {
		t.Fatalf("DecodeWAV(stdout): %v", err)
	}
	if len(decoded) != 2 {
		t.Fatalf("decoded %d samples, want 2", len(decoded))
	}
	if math.Abs(float64(decoded[0])-0.5) > 1e-3 {
		t.Errorf("decoded[0] = %v, want about 0.5", decoded[0])
	}
}

func TestRunSynthCommand_WritesFile(t *testing.T) {
	fake := &fakeSynthBackend{
		rate:   44100,
		result: &tts.Result{Samples: make([]float32, 441), SampleRate: 44100, Chunks: 1},
	}
	withFakeBackend(t, fake)

	out := filepath.Join(t.TempDir(), "speech.wav")

	err := runSynthCommand(
		context.Background(),
		config.DefaultConfig(),
		synthRunOptions{Text: "hello", Out: out},
		strings.NewReader(""),
		io.Discard,
	)
	if err != nil {
		t.Fatalf("runSynthCommand: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if _, err := audio.DecodeWAV(data, 44100); err != nil {
		t.Fatalf("output is not a valid WAV: %v", err)
	}
}

func TestRunSynthCommand_AppliesDSP(t *testing.T) {
	fake := &fakeSynthBackend{
		rate:   44100,
		result: &tts.Result{Samples: []float32{0.5, -0.25}, SampleRate: 44100, Chunks: 1},
	}
	withFakeBackend(t, fake)

	var stdout bytes.Buffer

	err := runSynthCommand(
		context.Background(),
		config.DefaultConfig(),
		synthRunOptions{Text: "hello", Out: "-", DSP: synthDSPOptions{Normalize: true}},
		strings.NewReader(""),
		&stdout,
	)
	if err != nil {
		t.Fatalf("runSynthCommand: %v", err)
	}

	decoded, err := audio.DecodeWAV(stdout.Bytes(), 44100)
	if err != nil {
		t.Fatalf("DecodeWAV(stdout): %v", err)
	}

	var peak float64
	for _, s := range decoded {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	if math.Abs(peak-1.0) > 1e-2 {
		t.Errorf("peak after --normalize = %v, want about 1.0", peak)
	}
}

func TestRunSynthCommand_ConfigDSPFallback(t *testing.T) {
	fake := &fakeSynthBackend{
		rate:   44100,
		result: &tts.Result{Samples: []float32{0.5, -0.25}, SampleRate: 44100, Chunks: 1},
	}
	withFakeBackend(t, fake)

	cfg := config.DefaultConfig()
	cfg.DSP.Normalize = true

	var stdout bytes.Buffer

	err := runSynthCommand(
		context.Background(),
		cfg,
		synthRunOptions{Text: "hello", Out: "-"},
		strings.NewReader(""),
		&stdout,
	)
	if err != nil {
		t.Fatalf("runSynthCommand: %v", err)
	}

	decoded, err := audio.DecodeWAV(stdout.Bytes(), 44100)
	if err != nil {
		t.Fatalf("DecodeWAV(stdout): %v", err)
	}

	var peak float64
	for _, s := range decoded {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	if math.Abs(peak-1.0) > 1e-2 {
		t.Errorf("peak with configured normalize = %v, want about 1.0", peak)
	}
}

func TestRunSynthCommand_FlagsReplaceConfigDSP(t *testing.T) {
	fake := &fakeSynthBackend{
		rate:   44100,
		result: &tts.Result{Samples: []float32{0.5, -0.25}, SampleRate: 44100, Chunks: 1},
	}
	withFakeBackend(t, fake)

	// The configured half gain must not run once any flag is set.
	cfg := config.DefaultConfig()
	cfg.DSP.Gain = 0.5

	var stdout bytes.Buffer

	err := runSynthCommand(
		context.Background(),
		cfg,
		synthRunOptions{Text: "hello", Out: "-", DSP: synthDSPOptions{Normalize: true}},
		strings.NewReader(""),
		&stdout,
	)
	if err != nil {
		t.Fatalf("runSynthCommand: %v", err)
	}

	decoded, err := audio.DecodeWAV(stdout.Bytes(), 44100)
	if err != nil {
		t.Fatalf("DecodeWAV(stdout): %v", err)
	}

	var peak float64
	for _, s := range decoded {
		if a := math.Abs(float64(s)); a > peak {
			peak = a
		}
	}
	if math.Abs(peak-1.0) > 1e-2 {
		t.Errorf("peak = %v, want about 1.0 from --normalize alone", peak)
	}
}

func TestRunSynthCommand_StreamIgnoresConfigDSP(t *testing.T) {
	raw := []float32{0.5, 0.5, 0.5, 0.5}
	fake := &fakeSynthBackend{
		rate:   44100,
		chunks: []tts.ChunkAudio{{Samples: raw, Duration: 4.0 / 44100}},
	}
	withFakeBackend(t, fake)

	cfg := config.DefaultConfig()
	cfg.DSP.Normalize = true
	cfg.DSP.Gain = 0.5

	var stdout bytes.Buffer

	err := runSynthCommand(
		context.Background(),
		cfg,
		synthRunOptions{Text: "hello", Out: "-", Stream: true},
		strings.NewReader(""),
		&stdout,
	)
	if err != nil {
		t.Fatalf("streaming with configured DSP should not error: %v", err)
	}

	var wantPCM bytes.Buffer
	if _, err := audio.WritePCM16Samples(&wantPCM, raw); err != nil {
		t.Fatalf("encode expected pcm: %v", err)
	}
	if !bytes.Equal(stdout.Bytes()[44:], wantPCM.Bytes()) {
		t.Error("streamed PCM was filtered; configured DSP covers buffered output only")
	}
}

func TestRunSynthCommand_StreamWritesHeaderAndChunks(t *testing.T) {
	fake := &fakeSynthBackend{
		rate: 44100,
		chunks: []tts.ChunkAudio{
			{Samples: make([]float32, 4), Duration: 4.0 / 44100},
			{Samples: make([]float32, 4), Duration: 4.0 / 44100},
		},
	}
	withFakeBackend(t, fake)

	var stdout bytes.Buffer

	err := runSynthCommand(
		context.Background(),
		config.DefaultConfig(),
		synthRunOptions{Text: "hello", Out: "-", Stream: true},
		strings.NewReader(""),
		&stdout,
	)
	if err != nil {
		t.Fatalf("runSynthCommand: %v", err)
	}

	data := stdout.Bytes()
	if len(data) != 44+16 {
		t.Fatalf("streamed %d bytes, want 44-byte header + 16 sample bytes", len(data))
	}
	if string(data[0:4]) != "RIFF" || string(data[8:12]) != "WAVE" {
		t.Error("streamed output does not start with a WAV header")
	}
}

func TestRunSynthCommand_StreamToFile(t *testing.T) {
	fake := &fakeSynthBackend{
		rate:   44100,
		chunks: []tts.ChunkAudio{{Samples: make([]float32, 8), Duration: 8.0 / 44100}},
	}
	withFakeBackend(t, fake)

	out := filepath.Join(t.TempDir(), "stream.wav")

	err := runSynthCommand(
		context.Background(),
		config.DefaultConfig(),
		synthRunOptions{Text: "hello", Out: out, Stream: true},
		strings.NewReader(""),
		io.Discard,
	)
	if err != nil {
		t.Fatalf("runSynthCommand: %v", err)
	}

	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if len(data) != 44+16 {
		t.Errorf("streamed file has %d bytes, want 60", len(data))
	}
}

func TestRunSynthCommand_StreamRejectsDSP(t *testing.T) {
	fake := &fakeSynthBackend{rate: 44100}
	withFakeBackend(t, fake)

	err := runSynthCommand(
		context.Background(),
		config.DefaultConfig(),
		synthRunOptions{Text: "hello", Out: "-", Stream: true, DSP: synthDSPOptions{Normalize: true}},
		strings.NewReader(""),
		io.Discard,
	)
	if err == nil || !strings.Contains(err.Error(), "--stream") {
		t.Fatalf("expected stream/DSP conflict error, got: %v", err)
	}
}

func TestRunSynthCommand_PropagatesBackendError(t *testing.T) {
	boom := errors.New("model exploded")
	fake := &fakeSynthBackend{rate: 44100, err: boom}
	withFakeBackend(t, fake)

	err := runSynthCommand(
		context.Background(),
		config.DefaultConfig(),
		synthRunOptions{Text: "hello", Out: "-"},
		strings.NewReader(""),
		io.Discard,
	)
	if !errors.Is(err, boom) {
		t.Fatalf("expected backend error, got: %v", err)
	}
	if !fake.closed {
		t.Error("backend should be closed even on failure")
	}
}

func TestRunSynthCommand_EmptyInputFailsBeforeBackendOpens(t *testing.T) {
	orig := openSynthBackend
	t.Cleanup(func() { openSynthBackend = orig })

	opened := false
	openSynthBackend = func(config.Config) (synthBackend, error) {
		opened = true
		return &fakeSynthBackend{rate: 44100}, nil
	}

	err := runSynthCommand(
		context.Background(),
		config.DefaultConfig(),
		synthRunOptions{Out: "-"},
		strings.NewReader("   "),
		io.Discard,
	)
	if err == nil {
		t.Fatal("expected error for empty input")
	}
	if opened {
		t.Error("backend should not be opened when input validation fails")
	}
}
