// Package stageprof profiles the synthesis pipeline stage by stage.
// Each stage runs under a pprof label so CPU profiles attribute samples
// to the model graph that burned them, and per-stage wall-clock averages
// are reported at the end.
package stageprof

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime/pprof"
	"time"

	"github.com/example/go-supertonic/internal/audio"
	"github.com/example/go-supertonic/internal/config"
	"github.com/example/go-supertonic/internal/onnx"
	"github.com/example/go-supertonic/internal/text"
	"github.com/example/go-supertonic/internal/tokenizer"
	"github.com/example/go-supertonic/internal/tts"
)

// Options select what to profile and how often.
type Options struct {
	ModelDir  string
	VoicesDir string // empty derives <model_dir>/voices
	Voice     string
	Text      string
	Language  string
	Speed     float64
	Steps     int
	Silence   float64
	Runs      int
	Warmup    int
	// Seed fixes the latent noise so repeated runs refine the same
	// latent; zero keeps runs independent.
	Seed       uint64
	CPUProfile string
	Runtime    config.RuntimeConfig
}

// session is the loaded state one profiled run drives. Model and encoder
// are interfaces so tests can substitute fakes for the ONNX engine.
type session struct {
	model tts.AcousticModel
	enc   tokenizer.Tokenizer
	sizer tts.LatentSizer
	norm  *text.Normalizer
	style onnx.Style
	noise tts.NoiseSource
	lang  string
	rate  int
	close func()
}

// timings are the per-run stage durations plus output metadata.
type timings struct {
	prepare  time.Duration
	encode   time.Duration
	refine   time.Duration
	decode   time.Duration
	assemble time.Duration
	total    time.Duration
	samples  int
	chunks   int
}

// Run loads the bundle named by opts, performs warmup plus profiled
// synthesis runs, and writes per-stage averages to w.
func Run(ctx context.Context, opts Options, w io.Writer) error {
	if opts.Runs < 1 {
		return fmt.Errorf("runs must be >= 1, got %d", opts.Runs)
	}
	if opts.Steps < 1 {
		return fmt.Errorf("steps must be >= 1, got %d", opts.Steps)
	}
	if opts.Speed <= 0 {
		opts.Speed = 1.0
	}
	if opts.Silence <= 0 {
		opts.Silence = 0.3
	}
	if opts.Text == "" {
		opts.Text = "The quick brown fox jumps over the lazy dog."
	}

	s, err := newSession(opts)
	if err != nil {
		return err
	}
	defer s.close()

	for i := range opts.Warmup {
		if _, err := runOnce(ctx, s, opts); err != nil {
			return fmt.Errorf("warmup run %d: %w", i+1, err)
		}
	}

	if opts.CPUProfile != "" {
		f, err := os.Create(opts.CPUProfile)
		if err != nil {
			return fmt.Errorf("create cpuprofile: %w", err)
		}
		defer f.Close()

		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("start cpuprofile: %w", err)
		}
		defer pprof.StopCPUProfile()
	}

	var agg timings

	for i := range opts.Runs {
		t, err := runOnce(ctx, s, opts)
		if err != nil {
			return fmt.Errorf("profiled run %d: %w", i+1, err)
		}

		agg.prepare += t.prepare
		agg.encode += t.encode
		agg.refine += t.refine
		agg.decode += t.decode
		agg.assemble += t.assemble
		agg.total += t.total
		agg.samples = t.samples
		agg.chunks = t.chunks
	}

	report(w, opts, agg, s.rate)
	return nil
}

func newSession(opts Options) (*session, error) {
	info, err := onnx.Bootstrap(opts.Runtime)
	if err != nil {
		return nil, fmt.Errorf("onnx runtime: %w", err)
	}

	bundle, err := onnx.LoadBundle(opts.ModelDir)
	if err != nil {
		return nil, err
	}

	engine, err := onnx.NewEngine(bundle, onnx.RunnerConfig{LibraryPath: info.LibraryPath})
	if err != nil {
		return nil, err
	}

	tok, err := tokenizer.Open(bundle.IndexerPath())
	if err != nil {
		engine.Close()
		return nil, err
	}

	voicesDir := opts.VoicesDir
	if voicesDir == "" {
		voicesDir = filepath.Join(opts.ModelDir, "voices")
	}
	voices, err := tts.ScanVoices(voicesDir, bundle.Config)
	if err != nil {
		engine.Close()
		return nil, err
	}
	style, err := voices.LoadStyle(opts.Voice)
	if err != nil {
		engine.Close()
		return nil, err
	}

	lang := opts.Language
	if lang == "" {
		lang = "en"
	}
	norm := text.NewNormalizer(text.NormalizerConfig{DefaultLanguage: lang})
	if _, err := norm.Resolve(lang); err != nil {
		engine.Close()
		return nil, err
	}

	noise := tts.DefaultNoise()
	if opts.Seed != 0 {
		noise = tts.NewLockedNoise(tts.SeededNoise(opts.Seed))
	}

	return &session{
		model: engine,
		enc:   tok,
		sizer: tts.NewLatentSizer(bundle.Config),
		norm:  norm,
		style: style,
		noise: noise,
		lang:  lang,
		rate:  bundle.Config.AE.SampleRate,
		close: engine.Close,
	}, nil
}

// runOnce performs one full synthesis with each pipeline phase timed and
// labeled. The phases mirror the production pipeline: chunk and tokenize,
// encode text and size the latent, refine it, decode, then stitch.
func runOnce(ctx context.Context, s *session, opts Options) (timings, error) {
	var out timings
	startTotal := time.Now()

	var (
		ids, mask *onnx.Tensor
		style     onnx.Style
		bsz       int
		prepErr   error
	)

	pprof.Do(ctx, pprof.Labels("stage", "prepare"), func(context.Context) {
		start := time.Now()
		defer func() { out.prepare = time.Since(start) }()

		chunks := text.Chunk(opts.Text, 0)
		if len(chunks) == 0 {
			prepErr = text.ErrEmptyText
			return
		}
		out.chunks = len(chunks)

		normalized := make([]string, len(chunks))
		for i, chunk := range chunks {
			normalized[i], prepErr = s.norm.Normalize(chunk, s.lang)
			if prepErr != nil {
				return
			}
		}

		var batch *tokenizer.TokenBatch
		batch, prepErr = tokenizer.BuildBatch(s.enc, normalized)
		if prepErr != nil {
			return
		}

		bsz = batch.Batch()
		ids, prepErr = onnx.NewTensor(batch.FlatIDs(), []int64{int64(bsz), int64(batch.Seq)})
		if prepErr != nil {
			return
		}
		mask, prepErr = onnx.NewTensor(batch.FlatMask(), []int64{int64(bsz), 1, int64(batch.Seq)})
		if prepErr != nil {
			return
		}

		style, prepErr = s.style.Repeat(bsz)
	})
	if prepErr != nil {
		return out, fmt.Errorf("prepare: %w", prepErr)
	}

	var (
		enc       *onnx.Encoding
		state     *tts.LatentState
		durations []float32
		encErr    error
	)

	pprof.Do(ctx, pprof.Labels("stage", "encode"), func(ctx context.Context) {
		start := time.Now()
		defer func() { out.encode = time.Since(start) }()

		enc, encErr = s.model.Encode(ctx, ids, mask, style)
		if encErr != nil {
			return
		}
		if len(enc.Durations) != bsz {
			encErr = fmt.Errorf("got %d durations for batch %d", len(enc.Durations), bsz)
			return
		}

		durations = make([]float32, bsz)
		for i, d := range enc.Durations {
			durations[i] = d / float32(opts.Speed)
		}

		state, encErr = s.sizer.Sample(durations, s.noise)
	})
	if encErr != nil {
		return out, fmt.Errorf("encode: %w", encErr)
	}

	latent := state.Values
	var refineErr error

	pprof.Do(ctx, pprof.Labels("stage", "refine"), func(ctx context.Context) {
		start := time.Now()
		defer func() { out.refine = time.Since(start) }()

		for step := range opts.Steps {
			if refineErr = ctx.Err(); refineErr != nil {
				return
			}
			latent, refineErr = s.model.Refine(ctx, latent, state.Mask, enc, style, step, opts.Steps)
			if refineErr != nil {
				return
			}
		}
	})
	if refineErr != nil {
		return out, fmt.Errorf("refine: %w", refineErr)
	}

	var (
		clips     [][]float32
		decodeErr error
	)

	pprof.Do(ctx, pprof.Labels("stage", "decode"), func(ctx context.Context) {
		start := time.Now()
		defer func() { out.decode = time.Since(start) }()

		var wavs [][]float32
		wavs, decodeErr = s.model.Decode(ctx, latent)
		if decodeErr != nil {
			return
		}
		if len(wavs) != bsz {
			decodeErr = fmt.Errorf("got %d waveforms for batch %d", len(wavs), bsz)
			return
		}

		clips = make([][]float32, bsz)
		for i, wav := range wavs {
			clips[i] = audio.TrimToDuration(wav, float64(durations[i]), s.rate)
		}
	})
	if decodeErr != nil {
		return out, fmt.Errorf("decode: %w", decodeErr)
	}

	var asmErr error

	pprof.Do(ctx, pprof.Labels("stage", "assemble"), func(context.Context) {
		start := time.Now()
		defer func() { out.assemble = time.Since(start) }()

		stitched := audio.Stitch(clips, opts.Silence, s.rate)
		out.samples = len(stitched)
		_, asmErr = audio.EncodeWAVPCM16(stitched, s.rate)
	})
	if asmErr != nil {
		return out, fmt.Errorf("assemble: %w", asmErr)
	}

	out.total = time.Since(startTotal)
	return out, nil
}

func report(w io.Writer, opts Options, agg timings, rate int) {
	div := float64(opts.Runs)
	avgPrepare := agg.prepare.Seconds() * 1000 / div
	avgEncode := agg.encode.Seconds() * 1000 / div
	avgRefine := agg.refine.Seconds() * 1000 / div
	avgDecode := agg.decode.Seconds() * 1000 / div
	avgAssemble := agg.assemble.Seconds() * 1000 / div
	avgTotal := agg.total.Seconds() * 1000 / div

	audioMS := 0.0
	if rate > 0 {
		audioMS = float64(agg.samples) * 1000.0 / float64(rate)
	}
	rtf := 0.0
	if audioMS > 0 {
		rtf = avgTotal / audioMS
	}

	fmt.Fprintf(w, "text: %q\n", opts.Text)
	fmt.Fprintf(w, "voice: %s\n", opts.Voice)
	fmt.Fprintf(w, "runs: %d (warmup %d)\n", opts.Runs, opts.Warmup)
	fmt.Fprintf(w, "steps: %d\n", opts.Steps)
	fmt.Fprintf(w, "chunks: %d\n", agg.chunks)
	fmt.Fprintf(w, "audio_ms: %.2f\n", audioMS)
	fmt.Fprintf(w, "avg_prepare_ms: %.2f\n", avgPrepare)
	fmt.Fprintf(w, "avg_encode_ms: %.2f\n", avgEncode)
	fmt.Fprintf(w, "avg_refine_ms: %.2f\n", avgRefine)
	fmt.Fprintf(w, "avg_decode_ms: %.2f\n", avgDecode)
	fmt.Fprintf(w, "avg_assemble_ms: %.2f\n", avgAssemble)
	fmt.Fprintf(w, "avg_total_ms: %.2f\n", avgTotal)
	fmt.Fprintf(w, "rtf: %.3f\n", rtf)

	if avgTotal > 0 {
		fmt.Fprintf(w, "share_prepare_pct: %.2f\n", 100*avgPrepare/avgTotal)
		fmt.Fprintf(w, "share_encode_pct: %.2f\n", 100*avgEncode/avgTotal)
		fmt.Fprintf(w, "share_refine_pct: %.2f\n", 100*avgRefine/avgTotal)
		fmt.Fprintf(w, "share_decode_pct: %.2f\n", 100*avgDecode/avgTotal)
		fmt.Fprintf(w, "share_assemble_pct: %.2f\n", 100*avgAssemble/avgTotal)
	}
}
