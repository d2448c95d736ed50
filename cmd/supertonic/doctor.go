package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/example/go-supertonic/internal/config"
	"github.com/example/go-supertonic/internal/doctor"
	"github.com/example/go-supertonic/internal/onnx"
	"github.com/example/go-supertonic/internal/tts"
	"github.com/spf13/cobra"
)

func newDoctorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Run local runtime and model checks",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			dcfg := doctor.Config{
				Runtime: func() (string, error) {
					return probeRuntimeVersion(cfg.Runtime)
				},
				BundleDir:  cfg.Paths.ModelDir,
				VoiceFiles: collectVoiceFiles(cfg.Paths),
			}

			result := doctor.Run(dcfg, os.Stdout)

			if result.Failed() {
				for _, f := range result.Failures() {
					fmt.Fprintf(os.Stderr, "FAIL: %s\n", f)
				}

				return errors.New("doctor checks failed")
			}

			_, _ = fmt.Fprintln(os.Stdout, "doctor checks passed")

			return nil
		},
	}

	return cmd
}

// probeRuntimeVersion resolves the ONNX Runtime library and reports its
// version and location in one line.
func probeRuntimeVersion(cfg config.RuntimeConfig) (string, error) {
	info, err := onnx.DetectRuntime(cfg)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("%s (%s)", info.Version, info.LibraryPath), nil
}

// collectVoiceFiles resolves the configured voice set to absolute style
// file paths. Unresolvable voices surface as their raw manifest paths so
// the doctor stat check reports them instead of silently passing a
// shorter list. A missing bundle returns nil; the bundle check reports
// that case on its own.
func collectVoiceFiles(paths config.PathsConfig) []string {
	vm, err := tts.OpenVoices(paths)
	if err != nil {
		return nil
	}

	voices := vm.ListVoices()

	out := make([]string, 0, len(voices))
	for _, v := range voices {
		resolved, err := vm.ResolvePath(v.ID)
		if err != nil {
			out = append(out, v.Path)
			continue
		}
		if abs, err := filepath.Abs(resolved); err == nil {
			resolved = abs
		}

		out = append(out, resolved)
	}

	return out
}
