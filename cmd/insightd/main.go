package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	clientcmd "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/cmd/client"
	serverrun "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/cmd/run"
	cfgpkg "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/config"
	pebblestore "github.com/Shishir-S-H/Kaleidoscope-sub001/internal/storage/pebble"
	logpkg "github.com/Shishir-S-H/Kaleidoscope-sub001/pkg/log"
)

func main() {
	// Local overrides from .env, if present.
	_ = godotenv.Load()

	// Respect KLD_LOG_LEVEL for both CLI and server start output
	level := os.Getenv("KLD_LOG_LEVEL")
	parsed, err := logpkg.ParseLevel(level)
	if err != nil || level == "" {
		parsed = logpkg.InfoLevel
	}
	logger := logpkg.NewLogger(
		logpkg.WithLevel(parsed),
		logpkg.WithFormatter(&logpkg.TextFormatter{}),
		logpkg.WithOutput(logpkg.NewConsoleOutput()),
	)

	// Redirect standard library logs (used by Pebble) to our logger
	logpkg.RedirectStdLog(logger)

	rootCmd := &cobra.Command{
		Use:   "insightd",
		Short: "Kaleidoscope insight runtime CLI",
		Long:  "insightd runs the image-insight aggregation daemon and manages a running instance over its HTTP API.",
	}

	serverCmd := &cobra.Command{Use: "server", Short: "Server commands"}
	serverStartCmd := &cobra.Command{
		Use:     "start",
		Short:   "Start the insight daemon (stream consumers, aggregation, search sync, HTTP API)",
		Aliases: []string{"run"},
		RunE: func(cmd *cobra.Command, args []string) error {
			dataDir, _ := cmd.Flags().GetString("data-dir")
			httpAddr, _ := cmd.Flags().GetString("http")
			consumerName, _ := cmd.Flags().GetString("consumer")
			fsyncMode, _ := cmd.Flags().GetString("fsync")
			configPath, _ := cmd.Flags().GetString("config")
			logLevel, _ := cmd.Flags().GetString("log-level")
			logFormat, _ := cmd.Flags().GetString("log-format")

			mode := pebblestore.FsyncModeAlways
			switch fsyncMode {
			case "never":
				mode = pebblestore.FsyncModeNever
			case "interval":
				mode = pebblestore.FsyncModeInterval
			case "always":
				mode = pebblestore.FsyncModeAlways
			default:
				return fmt.Errorf("invalid --fsync; use always|interval|never")
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			cfg, err := cfgpkg.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			cfgpkg.FromEnv(&cfg)
			if logLevel != "" {
				_ = os.Setenv("KLD_LOG_LEVEL", logLevel)
			}
			if logFormat != "" {
				_ = os.Setenv("KLD_LOG_FORMAT", logFormat)
			}
			if err := serverrun.Run(ctx, serverrun.Options{
				DataDir:      dataDir,
				HTTPAddr:     httpAddr,
				ConsumerName: consumerName,
				Fsync:        mode,
				Config:       cfg,
			}); err != nil {
				return fmt.Errorf("server error: %w", err)
			}
			// brief delay to allow logs flush
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	serverStartCmd.Flags().String("data-dir", "", "Data directory (if not specified, uses OS-specific application data directory)")
	serverStartCmd.Flags().String("http", ":8080", "HTTP listen address")
	serverStartCmd.Flags().String("consumer", "", "Consumer name within groups (default hostname)")
	serverStartCmd.Flags().String("fsync", "always", "Fsync mode: always|interval|never")
	serverStartCmd.Flags().String("config", os.Getenv("KLD_CONFIG"), "Config file path (JSON or YAML)")
	serverStartCmd.Flags().String("log-level", os.Getenv("KLD_LOG_LEVEL"), "Log level: debug|info|warn|error")
	serverStartCmd.Flags().String("log-format", os.Getenv("KLD_LOG_FORMAT"), "Log format: text|json (default text)")
	serverCmd.AddCommand(serverStartCmd)
	rootCmd.AddCommand(serverCmd)

	// client commands (talk to a running daemon over HTTP)
	for _, c := range clientcmd.NewRoot(apiURL) {
		rootCmd.AddCommand(c)
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func apiURL() string {
	if v := os.Getenv("KLD_HTTP"); v != "" {
		return v
	}
	return "http://127.0.0.1:8080"
}
