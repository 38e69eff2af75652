package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/rickgao/framelink/internal/config"
	"github.com/rickgao/framelink/internal/metrics"
	"github.com/rickgao/framelink/internal/transport"
	"github.com/rickgao/framelink/internal/version"
)

var (
	// Global flags
	cfgFile     string
	logLevel    string
	metricsPort int

	// Shared state set during PersistentPreRun
	cfg    *config.Config
	logger *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "framelink",
	Short: "Framed TCP sessions with automatic recovery",
	Long: `framelink keeps a framed byte-stream session alive. As a server it accepts
any number of peers, broadcasts to all of them and merges what they send.
As a client it holds one connection to a server and reconnects whenever
the connection drops.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfgFile == "" {
			cfg = config.Default()
		} else if cfg, err = config.LoadWithDefaults(cfgFile); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// Override config with flags
		if logLevel != "" {
			cfg.Logging.Level = logLevel
		}
		if metricsPort != 0 {
			cfg.Metrics.Port = metricsPort
		}

		logger = newLogger(cmd.ErrOrStderr(), cfg.Logging)
		slog.SetDefault(logger)

		build := version.Get()
		logger.Info("starting framelink",
			"command", cmd.Name(),
			"version", build.Version,
			"commit", build.Commit,
			"config", cfgFile,
		)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to config file (defaults are used when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().IntVar(&metricsPort, "metrics-port", 0, "port for /health and metrics (overrides config)")

	rootCmd.AddCommand(serveCmd, connectCmd, versionCmd)
}

// newLogger builds the process logger from the logging section.
func newLogger(w io.Writer, lc config.LoggingConfig) *slog.Logger {
	opts := &slog.HandlerOptions{Level: lc.SlogLevel()}
	if strings.EqualFold(lc.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		defer signal.Stop(sigCh)
		select {
		case sig := <-sigCh:
			logger.Info("received shutdown signal", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, cancel
}

// newMetrics builds a registry with the runtime collectors and the
// framelink collectors registered.
func newMetrics() (*prometheus.Registry, *metrics.Metrics) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg, metrics.New(reg)
}

func newTransport() (transport.Transport, error) {
	tc, err := cfg.TransportConfig()
	if err != nil {
		return nil, err
	}
	return transport.New(tc, logger)
}
