package main

import (
	"fmt"
	"os"

	"github.com/example/go-supertonic/internal/model"
	"github.com/spf13/cobra"
)

func newModelVerifyCmd() *cobra.Command {
	var modelDir string

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Verify bundle integrity and load every graph",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			if modelDir == "" {
				modelDir = cfg.Paths.ModelDir
			}

			err = model.VerifyBundle(model.VerifyOptions{
				ModelDir:   modelDir,
				ORTLibrary: cfg.Runtime.ORTLibraryPath,
				Stdout:     os.Stdout,
				Stderr:     os.Stderr,
			})
			if err != nil {
				return fmt.Errorf("model verify failed: %w", err)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&modelDir, "model-dir", "", "Bundle directory (default: configured model dir)")

	return cmd
}
