package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/example/go-supertonic/internal/audio"
	"github.com/example/go-supertonic/internal/config"
	"github.com/example/go-supertonic/internal/tts"
	"github.com/spf13/cobra"
)

func newSynthCmd() *cobra.Command {
	var opts synthRunOptions

	cmd := &cobra.Command{
		Use:   "synth",
		Short: "Synthesize text to WAV",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}
			return runSynthCommand(cmd.Context(), cfg, opts, os.Stdin, os.Stdout)
		},
	}

	cmd.Flags().StringVar(&opts.Text, "text", "", "Text to synthesize (if empty, read --file or stdin)")
	cmd.Flags().StringVar(&opts.File, "file", "", "Read text from this file instead of --text")
	cmd.Flags().StringVar(&opts.Out, "out", "out.wav", "Output WAV path ('-' for stdout)")
	cmd.Flags().StringVar(&opts.Voice, "voice", "", "Voice ID from the bundle's voice set (overrides config)")
	cmd.Flags().StringVar(&opts.Language, "language", "", "Language code (overrides config)")
	cmd.Flags().Float64Var(&opts.Speed, "speed", 0, "Speaking speed multiplier (0 = configured default)")
	cmd.Flags().StringVar(&opts.Rate, "rate", "", "Speaking rate as a percentage ('+20%', '-10%'); --speed wins if both are set")
	cmd.Flags().StringVar(&opts.Quality, "quality", "", "Quality preset (fast|balanced|high|ultra); --steps wins if both are set")
	cmd.Flags().IntVar(&opts.Steps, "steps", 0, "Refinement steps (0 = configured default)")
	cmd.Flags().Float64Var(&opts.Silence, "silence", 0, "Inter-chunk silence in seconds (0 = configured default)")
	cmd.Flags().BoolVar(&opts.Stream, "stream", false, "Write WAV incrementally as chunks finish")
	cmd.Flags().BoolVar(&opts.DSP.Normalize, "normalize", false, "Peak-normalize output audio")
	cmd.Flags().BoolVar(&opts.DSP.DCBlock, "dc-block", false, "Apply DC-block high-pass filter")
	cmd.Flags().Float64Var(&opts.DSP.Gain, "gain", 1.0, "Linear output gain (1.0 = unchanged)")
	cmd.Flags().Float64Var(&opts.DSP.FadeInMS, "fade-in-ms", 0, "Apply linear fade-in duration in milliseconds")
	cmd.Flags().Float64Var(&opts.DSP.FadeOutMS, "fade-out-ms", 0, "Apply linear fade-out duration in milliseconds")

	return cmd
}

type synthRunOptions struct {
	Text     string
	File     string
	Out      string
	Voice    string
	Language string
	Speed    float64
	Rate     string
	Quality  string
	Steps    int
	Silence  float64
	Stream   bool
	DSP      synthDSPOptions
}

type synthDSPOptions struct {
	Normalize bool
	DCBlock   bool
	Gain      float64
	FadeInMS  float64
	FadeOutMS float64
}

// active reports whether any filter was requested. A Gain of 0 is the
// unset zero value, not a mute request, so both 0 and the neutral 1.0
// count as inactive.
func (o synthDSPOptions) active() bool {
	return o.Normalize || o.DCBlock || gainSet(o.Gain) || o.FadeInMS > 0 || o.FadeOutMS > 0
}

func gainSet(g float64) bool { return g != 0 && g != 1.0 }

// synthDSPFromConfig maps the configured post-processing chain onto the
// flag-level options, for runs where no DSP flag was given.
func synthDSPFromConfig(c config.DSPConfig) synthDSPOptions {
	return synthDSPOptions{
		Normalize: c.Normalize,
		DCBlock:   c.DCBlock,
		Gain:      c.Gain,
		FadeInMS:  c.FadeInMS,
		FadeOutMS: c.FadeOutMS,
	}
}

// synthBackend is the slice of the synthesis service the synth and bench
// commands drive. It exists so tests can substitute a fake for the
// model-backed service.
type synthBackend interface {
	Synthesize(ctx context.Context, input string, opts tts.Options) (*tts.Result, error)
	SynthesizeStream(ctx context.Context, input string, opts tts.Options, emit func(tts.ChunkAudio) error) (float64, error)
	SampleRate() int
	Close()
}

var openSynthBackend = func(cfg config.Config) (synthBackend, error) {
	svc, err := tts.NewService(cfg)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

func runSynthCommand(ctx context.Context, cfg config.Config, opts synthRunOptions, stdin io.Reader, stdout io.Writer) error {
	input, err := readSynthText(opts.Text, opts.File, stdin)
	if err != nil {
		return err
	}

	ttsOpts, err := buildSynthOptions(opts)
	if err != nil {
		return err
	}

	if opts.Stream && opts.DSP.active() {
		return fmt.Errorf("--stream cannot be combined with --normalize/--dc-block/--gain/fades; those filters need the full waveform")
	}

	backend, err := openSynthBackend(cfg)
	if err != nil {
		return err
	}
	defer backend.Close()

	if opts.Stream {
		return streamSynth(ctx, backend, input, ttsOpts, opts.Out, stdout)
	}

	res, err := backend.Synthesize(ctx, input, ttsOpts)
	if err != nil {
		return err
	}

	// Any explicit DSP flag replaces the configured chain wholesale.
	dsp := opts.DSP
	if !dsp.active() {
		dsp = synthDSPFromConfig(cfg.DSP)
	}
	samples := applySynthDSP(res.Samples, res.SampleRate, dsp)

	wavData, err := audio.EncodeWAVPCM16(samples, res.SampleRate)
	if err != nil {
		return err
	}

	return writeSynthOutput(opts.Out, wavData, stdout)
}

// readSynthText picks the input text: the --text flag, then the --file
// flag, then stdin. Combining --text and --file is rejected rather than
// silently preferring one.
func readSynthText(text, file string, stdin io.Reader) (string, error) {
	if strings.TrimSpace(text) != "" {
		if file != "" {
			return "", fmt.Errorf("--text and --file are mutually exclusive")
		}
		return text, nil
	}

	if file != "" {
		b, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read --file: %w", err)
		}
		input := strings.TrimSpace(string(b))
		if input == "" {
			return "", fmt.Errorf("%s contains no text", file)
		}
		return input, nil
	}

	b, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	input := strings.TrimSpace(string(b))
	if input == "" {
		return "", fmt.Errorf("provide --text, --file, or pipe text on stdin")
	}
	return input, nil
}

// buildSynthOptions maps flag values onto synthesis options. An explicit
// --speed wins over --rate and an explicit --steps wins over --quality;
// fields left at zero defer to the configured defaults.
func buildSynthOptions(opts synthRunOptions) (tts.Options, error) {
	out := tts.Options{
		Voice:    opts.Voice,
		Language: opts.Language,
		Speed:    opts.Speed,
		Steps:    opts.Steps,
		Silence:  opts.Silence,
	}

	if out.Speed == 0 && opts.Rate != "" {
		out.Speed = tts.ParseRate(opts.Rate)
	}

	if out.Steps == 0 && opts.Quality != "" {
		steps, err := config.StepsForQuality(opts.Quality)
		if err != nil {
			return tts.Options{}, err
		}
		out.Steps = steps
	} else if out.Steps != 0 && !config.IsPresetSteps(out.Steps) {
		slog.Warn("refinement steps are not a tuned preset",
			slog.Int("steps", out.Steps),
			slog.Any("presets", config.StepPresets))
	}

	return out, nil
}

func applySynthDSP(samples []float32, sampleRate int, opts synthDSPOptions) []float32 {
	if opts.Normalize {
		samples = audio.PeakNormalize(samples)
	}
	if opts.DCBlock {
		samples = audio.DCBlock(samples, sampleRate)
	}
	if gainSet(opts.Gain) {
		samples = audio.Gain(samples, opts.Gain)
	}
	if opts.FadeInMS > 0 {
		samples = audio.FadeIn(samples, sampleRate, opts.FadeInMS)
	}
	if opts.FadeOutMS > 0 {
		samples = audio.FadeOut(samples, sampleRate, opts.FadeOutMS)
	}
	return samples
}

// streamSynth renders to the output incrementally. The header carries the
// open-ended streaming sizes, same as the HTTP streaming endpoint, so
// players that tolerate unknown length can start before synthesis ends.
func streamSynth(ctx context.Context, backend synthBackend, input string, opts tts.Options, outPath string, stdout io.Writer) error {
	if outPath == "-" {
		_, err := writeSynthStream(ctx, backend, input, opts, stdout)
		return err
	}

	f, err := os.Create(outPath)
	if err != nil {
		return err
	}

	_, streamErr := writeSynthStream(ctx, backend, input, opts, f)
	closeErr := f.Close()
	if streamErr != nil {
		return streamErr
	}
	return closeErr
}

func writeSynthStream(ctx context.Context, backend synthBackend, input string, opts tts.Options, w io.Writer) (float64, error) {
	if _, err := audio.WriteWAVHeaderStreaming(w, backend.SampleRate()); err != nil {
		return 0, err
	}

	return backend.SynthesizeStream(ctx, input, opts, func(chunk tts.ChunkAudio) error {
		_, err := audio.WritePCM16Samples(w, chunk.Samples)
		return err
	})
}

func writeSynthOutput(outPath string, wavData []byte, stdout io.Writer) error {
	if outPath == "-" {
		if stdout == nil {
			return fmt.Errorf("stdout writer is nil")
		}
		_, err := stdout.Write(wavData)
		return err
	}
	return os.WriteFile(outPath, wavData, 0o644)
}
