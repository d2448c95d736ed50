package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/example/go-supertonic/internal/bench"
	"github.com/example/go-supertonic/internal/bench/stageprof"
	"github.com/example/go-supertonic/internal/tts"
	"github.com/spf13/cobra"
)

func newBenchCmd() *cobra.Command {
	var (
		text         string
		voice        string
		runs         int
		format       string
		rtfThreshold float64
		stages       bool
		warmup       int
		cpuProfile   string
	)

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Benchmark synthesis latency and realtime factor",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if strings.TrimSpace(text) == "" {
				return fmt.Errorf("--text is required for bench")
			}
			if runs < 1 {
				return fmt.Errorf("--runs must be at least 1")
			}

			selectedVoice := cfg.TTS.Voice
			if voice != "" {
				selectedVoice = voice
			}

			if stages {
				return stageprof.Run(cmd.Context(), stageprof.Options{
					ModelDir:   cfg.Paths.ModelDir,
					VoicesDir:  cfg.Paths.VoicesDir,
					Voice:      selectedVoice,
					Text:       text,
					Language:   cfg.TTS.Language,
					Speed:      cfg.TTS.Speed,
					Steps:      cfg.TTS.Steps,
					Silence:    cfg.TTS.Silence,
					Runs:       runs,
					Warmup:     warmup,
					Seed:       cfg.TTS.Seed,
					CPUProfile: cpuProfile,
					Runtime:    cfg.Runtime,
				}, os.Stdout)
			}

			if format != "table" && format != "json" {
				return fmt.Errorf("--format must be 'table' or 'json'")
			}

			backend, err := openSynthBackend(cfg)
			if err != nil {
				return err
			}
			defer backend.Close()

			results, err := runBench(cmd.Context(), backend, benchOptions{
				Text:  text,
				Voice: voice,
				Runs:  runs,
			}, os.Stderr)
			if err != nil {
				return err
			}

			durations := make([]time.Duration, len(results))
			for i, r := range results {
				durations[i] = r.Duration
			}
			stats := bench.ComputeStats(durations)

			switch format {
			case "json":
				bench.FormatJSON(results, stats, os.Stdout)
			default:
				bench.FormatTable(results, stats, os.Stdout)
			}

			return bench.CheckRTFThreshold(bench.MeanRTF(results), rtfThreshold)
		},
	}

	cmd.Flags().StringVar(&text, "text", "", "Text to synthesize for each run (required)")
	cmd.Flags().StringVar(&voice, "voice", "", "Voice ID (overrides config)")
	cmd.Flags().IntVar(&runs, "runs", 5, "Number of synthesis runs")
	cmd.Flags().StringVar(&format, "format", "table", "Output format: table|json")
	cmd.Flags().Float64Var(&rtfThreshold, "rtf-threshold", 0, "Exit non-zero if mean RTF exceeds this value (0 = disabled)")
	cmd.Flags().BoolVar(&stages, "stages", false, "Profile per-stage timings instead of end-to-end runs")
	cmd.Flags().IntVar(&warmup, "warmup", 1, "Warmup runs before measuring (with --stages)")
	cmd.Flags().StringVar(&cpuProfile, "cpuprofile", "", "Write a CPU profile to this file (with --stages)")

	return cmd
}

type benchOptions struct {
	Text  string
	Voice string
	Runs  int
}

// runBench drives full synthesis end to end once per run and collects
// wall-clock and realtime-factor numbers. A WAV the duration walker
// cannot parse is reported and scored as zero audio time rather than
// failing the whole benchmark.
func runBench(ctx context.Context, backend synthBackend, opts benchOptions, warnW io.Writer) ([]bench.RunResult, error) {
	results := make([]bench.RunResult, 0, opts.Runs)

	for i := range opts.Runs {
		start := time.Now()
		res, err := backend.Synthesize(ctx, opts.Text, tts.Options{Voice: opts.Voice})
		if err != nil {
			return nil, fmt.Errorf("run %d failed: %w", i+1, err)
		}
		dur := time.Since(start)

		wavBytes, err := res.WAV()
		if err != nil {
			return nil, fmt.Errorf("run %d: encode WAV: %w", i+1, err)
		}

		audioDur, err := bench.WAVDuration(wavBytes)
		if err != nil {
			fmt.Fprintf(warnW, "warn: run %d: could not parse WAV duration: %v\n", i+1, err)
		}

		results = append(results, bench.RunResult{
			Index:       i,
			Cold:        i == 0,
			Chunks:      res.Chunks,
			Duration:    dur,
			WAVDuration: audioDur,
			RTF:         bench.CalcRTF(dur, audioDur),
		})
	}

	return results, nil
}
