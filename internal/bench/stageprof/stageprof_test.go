package stageprof

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/example/go-supertonic/internal/onnx"
	"github.com/example/go-supertonic/internal/text"
	"github.com/example/go-supertonic/internal/tts"
)

// runeEncoder maps every rune to its code point, giving stable sequence
// lengths without a real indexer file.
type runeEncoder struct{}

func (runeEncoder) Encode(input string) ([]int64, error) {
	ids := make([]int64, 0, len(input))
	for _, r := range input {
		ids = append(ids, int64(r))
	}
	return ids, nil
}

// fakeModel satisfies tts.AcousticModel with canned durations and
// synthetic waveforms, recording calls for assertions.
type fakeModel struct {
	duration float32
	chunk    int

	encodeErr error
	refineErr error
	decodeErr error

	encodeCalls int
	refineSteps []int
	refineTotal int
	decodeCalls int
}

func (f *fakeModel) Encode(_ context.Context, ids, mask *onnx.Tensor, _ onnx.Style) (*onnx.Encoding, error) {
	if f.encodeErr != nil {
		return nil, f.encodeErr
	}
	f.encodeCalls++

	shape := ids.Shape()
	bsz, seq := shape[0], shape[1]

	durations := make([]float32, bsz)
	for i := range durations {
		durations[i] = f.duration
	}

	emb, err := onnx.NewTensor(make([]float32, bsz*4*seq), []int64{bsz, 4, seq})
	if err != nil {
		return nil, err
	}

	return &onnx.Encoding{TextEmb: emb, TextMask: mask, Durations: durations}, nil
}

func (f *fakeModel) Refine(_ context.Context, latent, _ *onnx.Tensor, _ *onnx.Encoding, _ onnx.Style, step, totalSteps int) (*onnx.Tensor, error) {
	if f.refineErr != nil {
		return nil, f.refineErr
	}
	f.refineSteps = append(f.refineSteps, step)
	f.refineTotal = totalSteps
	return latent, nil
}

func (f *fakeModel) Decode(_ context.Context, latent *onnx.Tensor) ([][]float32, error) {
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	f.decodeCalls++

	shape := latent.Shape()
	bsz, frames := int(shape[0]), int(shape[2])

	wavs := make([][]float32, bsz)
	for i := range wavs {
		wavs[i] = make([]float32, frames*f.chunk)
	}
	return wavs, nil
}

func profStyle(t *testing.T) onnx.Style {
	t.Helper()

	dp, err := onnx.NewTensor(make([]float32, 8), []int64{1, 2, 4})
	if err != nil {
		t.Fatalf("build dp style: %v", err)
	}
	ttl, err := onnx.NewTensor(make([]float32, 15), []int64{1, 3, 5})
	if err != nil {
		t.Fatalf("build ttl style: %v", err)
	}

	return onnx.Style{DP: dp, TTL: ttl}
}

func newTestSession(t *testing.T, m tts.AcousticModel) *session {
	t.Helper()

	return &session{
		model: m,
		enc:   runeEncoder{},
		sizer: tts.LatentSizer{SampleRate: 44100, ChunkSize: 1280, Dim: 6},
		norm:  text.NewNormalizer(text.NormalizerConfig{}),
		style: profStyle(t),
		noise: tts.SeededNoise(7),
		lang:  "en",
		rate:  44100,
	}
}

func testOptions() Options {
	return Options{
		Voice:   "F1",
		Text:    "Hello there.",
		Speed:   1.0,
		Steps:   3,
		Silence: 0.3,
		Runs:    1,
	}
}

// ---------------------------------------------------------------------------
// Single-run stage accounting
// ---------------------------------------------------------------------------

func TestRunOnce_DrivesEveryStage(t *testing.T) {
	model := &fakeModel{duration: 0.5, chunk: 1280}
	s := newTestSession(t, model)

	out, err := runOnce(context.Background(), s, testOptions())
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	if model.encodeCalls != 1 {
		t.Errorf("want 1 encode call, got %d", model.encodeCalls)
	}
	if model.decodeCalls != 1 {
		t.Errorf("want 1 decode call, got %d", model.decodeCalls)
	}

	if out.chunks != 1 {
		t.Errorf("want 1 chunk for short text, got %d", out.chunks)
	}

	// 0.5s at 44.1 kHz trims to exactly 22050 samples.
	if out.samples != 22050 {
		t.Errorf("want 22050 samples, got %d", out.samples)
	}

	if out.total <= 0 {
		t.Errorf("want positive total duration, got %v", out.total)
	}
}

func TestRunOnce_RefineStepOrder(t *testing.T) {
	model := &fakeModel{duration: 0.5, chunk: 1280}
	s := newTestSession(t, model)

	opts := testOptions()
	opts.Steps = 3

	_, err := runOnce(context.Background(), s, opts)
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	want := []int{0, 1, 2}
	if len(model.refineSteps) != len(want) {
		t.Fatalf("want %d refine steps, got %v", len(want), model.refineSteps)
	}
	for i, step := range want {
		if model.refineSteps[i] != step {
			t.Errorf("refine step %d: want %d, got %d", i, step, model.refineSteps[i])
		}
	}
	if model.refineTotal != 3 {
		t.Errorf("want total steps 3, got %d", model.refineTotal)
	}
}

func TestRunOnce_SpeedShortensOutput(t *testing.T) {
	model := &fakeModel{duration: 0.5, chunk: 1280}
	s := newTestSession(t, model)

	opts := testOptions()
	opts.Speed = 2.0

	out, err := runOnce(context.Background(), s, opts)
	if err != nil {
		t.Fatalf("runOnce: %v", err)
	}

	// 0.5s predicted at double speed trims to 0.25s of audio.
	if out.samples != 11025 {
		t.Errorf("want 11025 samples at speed 2.0, got %d", out.samples)
	}
}

// ---------------------------------------------------------------------------
// Error propagation
// ---------------------------------------------------------------------------

func TestRunOnce_EncodeErrorNamesStage(t *testing.T) {
	failure := errors.New("graph exploded")
	model := &fakeModel{duration: 0.5, chunk: 1280, encodeErr: failure}
	s := newTestSession(t, model)

	_, err := runOnce(context.Background(), s, testOptions())
	if err == nil {
		t.Fatal("want error from failing encode")
	}
	if !strings.Contains(err.Error(), "encode") {
		t.Errorf("want stage name in error, got %v", err)
	}
	if !errors.Is(err, failure) {
		t.Errorf("want wrapped cause, got %v", err)
	}
}

func TestRunOnce_CancelledContextAbortsRefine(t *testing.T) {
	model := &fakeModel{duration: 0.5, chunk: 1280}
	s := newTestSession(t, model)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := runOnce(ctx, s, testOptions())
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("want context.Canceled, got %v", err)
	}
	if len(model.refineSteps) != 0 {
		t.Errorf("want no refine steps after cancel, got %v", model.refineSteps)
	}
}

// ---------------------------------------------------------------------------
// Option validation and report output
// ---------------------------------------------------------------------------

func TestRun_RejectsZeroRuns(t *testing.T) {
	err := Run(context.Background(), Options{Runs: 0, Steps: 3}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "runs") {
		t.Fatalf("want runs validation error, got %v", err)
	}
}

func TestRun_RejectsZeroSteps(t *testing.T) {
	err := Run(context.Background(), Options{Runs: 1, Steps: 0}, &bytes.Buffer{})
	if err == nil || !strings.Contains(err.Error(), "steps") {
		t.Fatalf("want steps validation error, got %v", err)
	}
}

func TestReport_StageAveragesAndRTF(t *testing.T) {
	opts := testOptions()
	opts.Runs = 2

	agg := timings{
		prepare:  20 * time.Millisecond,
		encode:   200 * time.Millisecond,
		refine:   1200 * time.Millisecond,
		decode:   500 * time.Millisecond,
		assemble: 80 * time.Millisecond,
		total:    2 * time.Second,
		samples:  44100,
		chunks:   1,
	}

	var buf bytes.Buffer
	report(&buf, opts, agg, 44100)
	out := buf.String()

	for _, want := range []string{
		"chunks: 1",
		"audio_ms: 1000.00",
		"avg_prepare_ms: 10.00",
		"avg_refine_ms: 600.00",
		"avg_total_ms: 1000.00",
		"rtf: 1.000",
		"share_refine_pct: 60.00",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}
