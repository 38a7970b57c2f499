package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/rickgao/motionfeed/internal/config"
	"github.com/rickgao/motionfeed/internal/version"
)

type rootOptions struct {
	configPath string
	logLevel   string
}

func main() {
	// A missing .env is fine.
	_ = godotenv.Load()

	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "motionfeed",
		Short:         "Poll an incremental series endpoint and feed a live chart",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to config file")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override log.level")

	rootCmd.AddCommand(newPollCommand(opts))
	rootCmd.AddCommand(newServeCommand(opts))
	rootCmd.AddCommand(newVersionCommand())
	return rootCmd
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "motionfeed", version.String())
		},
	}
}

// loadConfig reads the config file (if any) with defaults applied and the
// log level override folded in.
func loadConfig(opts *rootOptions) (*config.Config, error) {
	cfg, err := config.LoadWithDefaults(opts.configPath)
	if err != nil {
		return nil, err
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	return cfg, nil
}

// newLogger builds the process logger and installs it as the default.
func newLogger(cfg config.LogConfig) (*slog.Logger, error) {
	level, err := cfg.SlogLevel()
	if err != nil {
		return nil, err
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: level,
	}))
	slog.SetDefault(logger)
	return logger, nil
}
