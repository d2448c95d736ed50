package main

import (
	"errors"
	"log/slog"
	"os"

	"github.com/example/go-supertonic/internal/config"
	"github.com/example/go-supertonic/internal/server"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	activeCfg config.Config
)

// NewRootCmd builds the supertonic command tree. Configuration is resolved
// once in PersistentPreRunE, so every subcommand reads the merged result
// through requireConfig instead of parsing flags itself.
func NewRootCmd() *cobra.Command {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "supertonic",
		Short: "Supertonic text-to-speech command line",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.Load(config.LoadOptions{
				Cmd:        cmd,
				ConfigFile: cfgFile,
				Defaults:   defaults,
			})
			if err != nil {
				return err
			}
			activeCfg = loaded
			setupLogger(loaded.LogLevel)
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Optional config file (yaml|toml|json)")
	config.RegisterFlags(cmd.PersistentFlags(), defaults)

	cmd.AddCommand(
		newSynthCmd(),
		newServeCmd(),
		newVoicesCmd(),
		newLanguagesCmd(),
		newModelCmd(),
		newBenchCmd(),
		newDoctorCmd(),
		newHealthCmd(),
	)

	return cmd
}

// setupLogger installs a JSON slog handler at the requested level, falling
// back to info when the level string does not parse.
func setupLogger(levelStr string) {
	lvl, err := server.ParseLogLevel(levelStr)
	if err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

// requireConfig returns the configuration resolved by PersistentPreRunE.
// A zero model directory means the pre-run never executed, which happens
// when a command function is invoked outside the cobra tree.
func requireConfig() (config.Config, error) {
	if activeCfg.Paths.ModelDir == "" {
		return config.Config{}, errors.New("configuration not loaded")
	}
	return activeCfg, nil
}
