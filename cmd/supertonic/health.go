package main

import (
	"fmt"

	"github.com/example/go-supertonic/internal/server"
	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Probe a running server's health endpoint",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := requireConfig()
			if err != nil {
				return err
			}

			target := addr
			if target == "" {
				target = cfg.Server.ListenAddr
			}

			if err := server.ProbeHTTP(target); err != nil {
				return fmt.Errorf("health probe on %s: %w", target, err)
			}

			_, err = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return err
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "server address to probe (defaults to the configured listen address)")

	return cmd
}
