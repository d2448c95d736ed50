package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/example/go-supertonic/internal/text"
	"github.com/example/go-supertonic/internal/tts"
	"github.com/spf13/cobra"
)

func newVoicesCmd() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "voices",
		Short: "List the voices in the configured bundle",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			mgr, err := tts.OpenVoices(cfg.Paths)
			if err != nil {
				return err
			}

			return printVoices(os.Stdout, mgr.ListVoices(), asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit the voice list as JSON")

	return cmd
}

func printVoices(w io.Writer, voices []tts.Voice, asJSON bool) error {
	if asJSON {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(voices)
	}

	for _, v := range voices {
		line := v.ID
		if v.License != "" {
			line += "\t" + v.License
		}
		if _, err := fmt.Fprintln(w, line); err != nil {
			return err
		}
	}
	return nil
}

func newLanguagesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "languages",
		Short: "List supported language codes",
		RunE: func(_ *cobra.Command, _ []string) error {
			return printLanguages(os.Stdout)
		},
	}

	return cmd
}

func printLanguages(w io.Writer) error {
	for _, lang := range text.DefaultLanguages {
		if _, err := fmt.Fprintln(w, lang); err != nil {
			return err
		}
	}
	return nil
}
