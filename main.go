package main

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"os/signal"
	"syscall"

	"github.com/zircuit-labs/pod-identity/cmd/config"
	"github.com/zircuit-labs/pod-identity/cmd/handlers"
	"github.com/zircuit-labs/pod-identity/cmd/logger"
	"github.com/zircuit-labs/pod-identity/cmd/server"

	"github.com/spf13/cobra"
)

const (
	configEnvVar      = "POD_IDENTITY_CONFIG"
	defaultConfigPath = "config.toml"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "pod-identity",
		Short: "Report which pod instance answered a request",
		Long: `Serves GET /get-podname, returning {"pod_name": "<POD_NAME>"}.

Environment Variables:
  POD_NAME              Reported pod name (default: "Pod name not set")
  POD_IDENTITY_CONFIG   Path to config.toml file (default: config.toml)`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			path, viaEnv := resolveConfigPath(cmd, configPath)
			return run(ctx, path, viaEnv)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", defaultConfigPath, "Load TOML config file")

	return cmd
}

// resolveConfigPath prefers an explicit flag over the environment and
// reports whether the path came from the environment
func resolveConfigPath(cmd *cobra.Command, flagValue string) (string, bool) {
	if cmd.Flags().Changed("config") {
		return flagValue, false
	}
	if envPath := os.Getenv(configEnvVar); envPath != "" {
		return envPath, true
	}
	return flagValue, false
}

// loadConfig falls back to defaults only when the file does not exist
func loadConfig(path string) (*config.Config, bool, error) {
	cfg, err := config.Load(path)
	switch {
	case err == nil:
		return cfg, true, nil
	case errors.Is(err, fs.ErrNotExist):
		return config.Default(), false, nil
	default:
		return nil, false, err
	}
}

func run(ctx context.Context, configPath string, viaEnv bool) error {
	// Basic logger for early startup logging
	log := logger.NewFromConfigStruct("info", "json", "stdout")

	cfg, found, err := loadConfig(configPath)
	if err != nil {
		log.LogError("config loading", err, "source", "toml", "path", configPath)
		return err
	}
	if found {
		log.LogConfig(configPath, viaEnv, cfg.Metrics.Enabled)
	} else {
		log.Info("config file not found, using default configuration", "path", configPath)
	}

	// Reinitialize logger with configuration settings
	loggerConfig := &logger.Config{
		Level:  logger.LogLevel(cfg.Logger.Level),
		Format: cfg.Logger.Format,
		Output: cfg.Logger.Output,
	}
	logger.Init(loggerConfig)
	log = logger.Default()

	srv, err := server.New(cfg, log)
	if err != nil {
		log.LogError("server creation", err)
		return err
	}

	log.LogStartup(cfg.Server.Port, configPath, handlers.LookupPodName(), server.Version)

	if err := srv.Run(ctx); err != nil {
		log.LogError("HTTP server", err, "port", cfg.Server.Port)
		return err
	}
	return nil
}
