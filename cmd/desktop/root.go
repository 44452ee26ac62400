package main

import (
	"encoding/json"
	"io"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/leobar37/leobit2-sub001/internal/app"
	"github.com/leobar37/leobit2-sub001/internal/config"
	"github.com/leobar37/leobit2-sub001/internal/logging"
)

// Version is set at build time
var Version = "0.1.0"

// RootOptions holds global flags for all commands.
type RootOptions struct {
	ConfigPath string
	EnvFile    string
}

// NewRootCommand creates the root command for the sync process.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:     "leobit-sync",
		Short:   "Offline-first sync engine",
		Long:    "Records local mutations in a durable queue and reconciles them with the remote sync API.",
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// A missing env file is fine; real env vars still apply
			if opts.EnvFile != "" {
				_ = godotenv.Load(opts.EnvFile)
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", "", "path to config YAML (optional)")
	cmd.PersistentFlags().StringVar(&opts.EnvFile, "env-file", ".env", "dotenv file loaded before config")

	// Add subcommands
	cmd.AddCommand(NewServeCommand(opts))
	cmd.AddCommand(NewSyncCommand(opts))
	cmd.AddCommand(NewQueueCommand(opts))

	return cmd
}

// loadApp loads configuration, initializes logging and wires the app.
func loadApp(opts *RootOptions) (*app.App, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, err
	}

	logging.Init(logging.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: cfg.App.Name,
	})

	return app.New(cfg)
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
