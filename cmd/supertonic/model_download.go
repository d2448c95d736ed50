package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/example/go-supertonic/internal/model"
	"github.com/spf13/cobra"
)

func newModelDownloadCmd() *cobra.Command {
	var hfRepo string
	var outDir string
	var hfToken string

	cmd := &cobra.Command{
		Use:   "download",
		Short: "Download the ONNX model bundle from Hugging Face",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if outDir == "" {
				outDir = cfg.Paths.ModelDir
			}
			if hfToken == "" {
				hfToken = os.Getenv("HF_TOKEN")
			}

			err = model.Download(model.DownloadOptions{
				Repo:    hfRepo,
				OutDir:  outDir,
				HFToken: hfToken,
				Stdout:  os.Stdout,
				Stderr:  os.Stderr,
			})

			var denied *model.ErrAccessDenied
			if errors.As(err, &denied) && hfToken == "" {
				return fmt.Errorf("%w; pass --hf-token or set HF_TOKEN if the repository is gated", err)
			}
			if err != nil {
				return fmt.Errorf("model download failed: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&hfRepo, "hf-repo", model.DefaultRepo, "Hugging Face model repository")
	cmd.Flags().StringVar(&outDir, "out-dir", "", "Bundle directory (default: configured model dir)")
	cmd.Flags().StringVar(&hfToken, "hf-token", "", "Hugging Face token (falls back to HF_TOKEN env var)")

	return cmd
}
