package tts

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/example/go-supertonic/internal/audio"
	"github.com/example/go-supertonic/internal/config"
	"github.com/example/go-supertonic/internal/onnx"
	"github.com/example/go-supertonic/internal/text"
	"github.com/example/go-supertonic/internal/tokenizer"
)

// Bounds for per-request options. Values outside these fail with
// ErrInvalidOption rather than being clamped.
const (
	MinSpeed   = 0.5
	MaxSpeed   = 2.0
	MinSilence = 0.1
	MaxSilence = 2.0
)

// Options are the per-request synthesis knobs. Zero values fall back to
// the service defaults from configuration.
type Options struct {
	Voice    string
	Language string
	Speed    float64
	Steps    int
	Silence  float64
}

// Result is one finished synthesis: mono float32 samples in [-1, 1],
// their rate, the reported duration including inter-chunk silence, and
// how many chunks were stitched.
type Result struct {
	Samples    []float32
	SampleRate int
	Duration   float64
	Chunks     int
	Voice      string
}

// WAV serializes the result as 16-bit mono PCM.
func (r *Result) WAV() ([]byte, error) {
	return audio.EncodeWAVPCM16(r.Samples, r.SampleRate)
}

// Service owns the loaded model, tokenizer, and voice set, and exposes
// the synthesis entry points. Construct once at startup and share; all
// methods are safe for concurrent use.
type Service struct {
	pipeline   Pipeline
	normalizer *text.Normalizer
	voices     *VoiceManager
	noise      NoiseSource
	policy     text.Policy
	defaults   config.TTSConfig
	sampleRate int
	closeFn    func()
}

// NewService loads the model bundle, tokenizer, and voices named by cfg
// and wires them into a ready Service.
func NewService(cfg config.Config) (*Service, error) {
	info, err := onnx.Bootstrap(cfg.Runtime)
	if err != nil {
		return nil, fmt.Errorf("onnx runtime: %w", err)
	}

	bundle, err := onnx.LoadBundle(cfg.Paths.ModelDir)
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

	policy, err := text.ParsePolicy(cfg.TTS.LanguagePolicy)
	if err != nil {
		engine.Close()
		return nil, err
	}

	voices, err := openVoices(cfg.Paths, bundle.Config)
	if err != nil {
		engine.Close()
		return nil, err
	}

	sizer := NewLatentSizer(bundle.Config)
	sizer.MaxFrames = cfg.TTS.MaxLatentFrames

	noise := DefaultNoise()
	if cfg.TTS.Seed != 0 {
		noise = NewLockedNoise(SeededNoise(cfg.TTS.Seed))
	}

	return &Service{
		pipeline: Pipeline{
			Model:   engine,
			Encoder: tok,
			Sizer:   sizer,
		},
		normalizer: text.NewNormalizer(text.NormalizerConfig{
			Policy:          policy,
			DefaultLanguage: cfg.TTS.Language,
		}),
		voices:     voices,
		noise:      noise,
		policy:     policy,
		defaults:   cfg.TTS,
		sampleRate: bundle.Config.AE.SampleRate,
		closeFn:    engine.Close,
	}, nil
}

func openVoices(paths config.PathsConfig, model onnx.ModelConfig) (*VoiceManager, error) {
	if paths.VoiceManifest != "" {
		return NewVoiceManager(paths.VoiceManifest, model)
	}

	dir := paths.VoicesDir
	if dir == "" {
		dir = filepath.Join(paths.ModelDir, "voices")
	}

	return ScanVoices(dir, model)
}

// OpenVoices loads the voice set named by paths without starting the
// inference runtime, for tooling that only lists or checks voices. The
// bundle's config file supplies the style tensor dimensions.
func OpenVoices(paths config.PathsConfig) (*VoiceManager, error) {
	model, err := onnx.LoadModelConfig(filepath.Join(paths.ModelDir, onnx.ModelConfigFile))
	if err != nil {
		return nil, err
	}
	return openVoices(paths, model)
}

// Close releases the underlying model sessions.
func (s *Service) Close() {
	if s.closeFn != nil {
		s.closeFn()
	}
}

// SampleRate is the output rate of the loaded model.
func (s *Service) SampleRate() int { return s.sampleRate }

// Voices lists the loaded voice set.
func (s *Service) Voices() []Voice { return s.voices.ListVoices() }

// Languages lists the supported language codes.
func (s *Service) Languages() []string { return s.normalizer.Languages() }

// Synthesize renders input in one language into a stitched waveform.
// Input carrying well-formed language tags takes the mixed path instead,
// so tagged text never gets split mid-tag by the chunker.
func (s *Service) Synthesize(ctx context.Context, input string, opts Options) (*Result, error) {
	opts, err := s.resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	trimmed, err := s.checkText(input)
	if err != nil {
		return nil, err
	}

	if text.HasLanguageTags(trimmed) {
		return s.synthesizeMixed(ctx, trimmed, opts)
	}

	clips, err := s.synthesizeClips(ctx, trimmed, opts.Language, opts)
	if err != nil {
		return nil, err
	}

	return s.assemble(clips, opts), nil
}

// SynthesizeMixed renders language-tagged input ("<en>Hi</en> <es>Hola</es>")
// segment by segment, each with its own language, stitched with silence.
func (s *Service) SynthesizeMixed(ctx context.Context, tagged string, opts Options) (*Result, error) {
	opts, err := s.resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	trimmed, err := s.checkText(tagged)
	if err != nil {
		return nil, err
	}

	return s.synthesizeMixed(ctx, trimmed, opts)
}

func (s *Service) synthesizeMixed(ctx context.Context, tagged string, opts Options) (*Result, error) {
	segments, err := text.Segments(tagged)
	if err != nil {
		return nil, err
	}

	var clips []ChunkAudio
	for _, seg := range segments {
		segClips, err := s.synthesizeClips(ctx, seg.Text, seg.Language, opts)
		if err != nil {
			return nil, fmt.Errorf("segment <%s>: %w", seg.Language, err)
		}
		clips = append(clips, segClips...)
	}

	return s.assemble(clips, opts), nil
}

// SynthesizeBatch renders several short texts in one padded inference
// pass, one result per text. Items are not chunk-split, so each must fit
// the text length limit on its own.
func (s *Service) SynthesizeBatch(ctx context.Context, texts []string, opts Options) ([]*Result, error) {
	opts, err := s.resolveOptions(opts)
	if err != nil {
		return nil, err
	}

	if len(texts) == 0 {
		return nil, tokenizer.ErrEmptyBatch
	}

	lang, err := s.normalizer.Resolve(opts.Language)
	if err != nil {
		return nil, err
	}

	normalized := make([]string, len(texts))
	for i, t := range texts {
		trimmed, err := s.checkText(t)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
		normalized[i], err = s.normalizer.Normalize(trimmed, lang)
		if err != nil {
			return nil, fmt.Errorf("item %d: %w", i, err)
		}
	}

	style, err := s.voices.LoadStyle(opts.Voice)
	if err != nil {
		return nil, err
	}

	clips, err := s.pipeline.Run(ctx, normalized, style, opts.Speed, opts.Steps, s.noise)
	if err != nil {
		return nil, err
	}

	results := make([]*Result, len(clips))
	for i, clip := range clips {
		results[i] = &Result{
			Samples:    clip.Samples,
			SampleRate: s.sampleRate,
			Duration:   clip.Duration,
			Chunks:     1,
			Voice:      opts.Voice,
		}
	}

	return results, nil
}

// SynthesizeStream renders input chunk by chunk, calling emit with each
// clip as soon as it is decoded. Inter-chunk silence arrives as its own
// clip so consumers can write samples straight through. Returns the total
// duration in seconds.
func (s *Service) SynthesizeStream(ctx context.Context, input string, opts Options, emit func(ChunkAudio) error) (float64, error) {
	opts, err := s.resolveOptions(opts)
	if err != nil {
		return 0, err
	}

	trimmed, err := s.checkText(input)
	if err != nil {
		return 0, err
	}

	type unit struct {
		text string
		lang string
	}
	var units []unit
	if text.HasLanguageTags(trimmed) {
		segments, err := text.Segments(trimmed)
		if err != nil {
			return 0, err
		}
		for _, seg := range segments {
			units = append(units, unit{text: seg.Text, lang: seg.Language})
		}
	} else {
		units = append(units, unit{text: trimmed, lang: opts.Language})
	}

	total := 0.0
	emitted := 0
	forward := func(_ int, clip ChunkAudio) error {
		if emitted > 0 {
			gap := ChunkAudio{
				Samples:  audio.Silence(opts.Silence, s.sampleRate),
				Duration: opts.Silence,
			}
			if err := emit(gap); err != nil {
				return err
			}
			total += gap.Duration
		}
		if err := emit(clip); err != nil {
			return err
		}
		total += clip.Duration
		emitted++
		return nil
	}

	for _, u := range units {
		normalized, style, err := s.prepareUnit(u.text, u.lang, opts)
		if err != nil {
			return 0, err
		}
		if err := s.pipeline.RunChunks(ctx, normalized, style, opts.Speed, opts.Steps, s.noise, forward); err != nil {
			return 0, err
		}
	}

	return total, nil
}

// synthesizeClips chunks raw single-language text and renders every chunk
// in order.
func (s *Service) synthesizeClips(ctx context.Context, raw, lang string, opts Options) ([]ChunkAudio, error) {
	normalized, style, err := s.prepareUnit(raw, lang, opts)
	if err != nil {
		return nil, err
	}

	clips := make([]ChunkAudio, 0, len(normalized))
	err = s.pipeline.RunChunks(ctx, normalized, style, opts.Speed, opts.Steps, s.noise, func(_ int, clip ChunkAudio) error {
		clips = append(clips, clip)
		return nil
	})
	if err != nil {
		return nil, err
	}

	return clips, nil
}

// prepareUnit resolves the language, splits raw text into chunks, and
// normalizes each chunk, returning the model-ready texts plus the voice
// style. The language is resolved before chunking so per-language chunk
// lengths key off the resolved code.
func (s *Service) prepareUnit(raw, lang string, opts Options) ([]string, onnx.Style, error) {
	resolved, err := s.normalizer.Resolve(lang)
	if err != nil {
		return nil, onnx.Style{}, err
	}

	chunks := text.Chunk(raw, s.chunkLength(resolved))
	if len(chunks) == 0 {
		return nil, onnx.Style{}, text.ErrEmptyText
	}

	normalized := make([]string, len(chunks))
	for i, chunk := range chunks {
		normalized[i], err = s.normalizer.Normalize(chunk, resolved)
		if err != nil {
			return nil, onnx.Style{}, err
		}
	}

	style, err := s.voices.LoadStyle(opts.Voice)
	if err != nil {
		return nil, onnx.Style{}, err
	}

	return normalized, style, nil
}

func (s *Service) assemble(clips []ChunkAudio, opts Options) *Result {
	samples := make([][]float32, len(clips))
	total := 0.0
	for i, clip := range clips {
		samples[i] = clip.Samples
		total += clip.Duration
	}
	if len(clips) > 1 {
		total += float64(len(clips)-1) * opts.Silence
	}

	return &Result{
		Samples:    audio.Stitch(samples, opts.Silence, s.sampleRate),
		SampleRate: s.sampleRate,
		Duration:   total,
		Chunks:     len(clips),
		Voice:      opts.Voice,
	}
}

// resolveOptions fills zero values from the configured defaults and
// validates the result. Unknown voices fail under the strict policy and
// fall back to the default voice under coerce.
func (s *Service) resolveOptions(opts Options) (Options, error) {
	if opts.Voice == "" {
		opts.Voice = s.defaults.Voice
	}
	if opts.Language == "" {
		opts.Language = s.defaults.Language
	}
	if opts.Speed == 0 {
		opts.Speed = s.defaults.Speed
	}
	if opts.Steps == 0 {
		opts.Steps = s.defaults.Steps
	}
	if opts.Silence == 0 {
		opts.Silence = s.defaults.Silence
	}

	if opts.Speed < MinSpeed || opts.Speed > MaxSpeed {
		return opts, fmt.Errorf("%w: speed %.2f outside [%.1f, %.1f]", ErrInvalidOption, opts.Speed, MinSpeed, MaxSpeed)
	}
	if opts.Steps < 1 {
		return opts, fmt.Errorf("%w: steps %d must be >= 1", ErrInvalidOption, opts.Steps)
	}
	if opts.Silence < MinSilence || opts.Silence > MaxSilence {
		return opts, fmt.Errorf("%w: silence %.2fs outside [%.1f, %.1f]", ErrInvalidOption, opts.Silence, MinSilence, MaxSilence)
	}

	if !s.voices.Has(opts.Voice) {
		if s.policy == text.PolicyCoerce && s.voices.Has(s.defaults.Voice) {
			opts.Voice = s.defaults.Voice
		} else {
			return opts, fmt.Errorf("%w: %q", ErrUnknownVoice, opts.Voice)
		}
	}

	return opts, nil
}

func (s *Service) checkText(input string) (string, error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", text.ErrEmptyText
	}

	limit := s.defaults.MaxTextLength
	if limit > 0 {
		if n := utf8.RuneCountInString(trimmed); n > limit {
			return "", fmt.Errorf("%w: %d characters (limit %d)", ErrTextTooLong, n, limit)
		}
	}

	return trimmed, nil
}

func (s *Service) chunkLength(lang string) int {
	if n, ok := s.defaults.ChunkLengths[lang]; ok && n > 0 {
		return n
	}
	if s.defaults.ChunkLength > 0 {
		return s.defaults.ChunkLength
	}
	return text.DefaultMaxChunkLen
}

var ratePattern = regexp.MustCompile(`^([+-]?)(\d+)%$`)

// ParseRate converts a percentage rate string ("+20%", "-10%", "0%") to a
// speed multiplier. Empty or unrecognized input means no adjustment, so
// callers can pass user input straight through.
func ParseRate(rate string) float64 {
	m := ratePattern.FindStringSubmatch(strings.TrimSpace(rate))
	if m == nil {
		return 1.0
	}

	value := 0
	for _, d := range m[2] {
		value = value*10 + int(d-'0')
	}
	if m[1] == "-" {
		value = -value
	}

	return 1.0 + float64(value)/100
}
