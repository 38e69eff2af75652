package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/framelink/internal/config"
	"github.com/rickgao/framelink/internal/framing"
	"github.com/rickgao/framelink/internal/manager"
)

var serveFlags struct {
	listen string
	tick   time.Duration
	echo   bool
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Accept connections, broadcast to them and log what they send",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveFlags.listen, "listen", "", "address to listen on (overrides config)")
	serveCmd.Flags().DurationVar(&serveFlags.tick, "tick", 0, "broadcast a counter at this interval, 0 disables")
	serveCmd.Flags().BoolVar(&serveFlags.echo, "echo", false, "broadcast every received message back")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg.Mode = config.ModeServer
	if serveFlags.listen != "" {
		cfg.Server.Listen = serveFlags.listen
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	sc, err := cfg.ServerManagerConfig()
	if err != nil {
		return err
	}
	tr, err := newTransport()
	if err != nil {
		return err
	}
	reg, m := newMetrics()

	srv, err := manager.NewServer(sc,
		manager.WithLogger(logger),
		manager.WithTransport(tr),
		manager.WithObserver(m),
	)
	if err != nil {
		return fmt.Errorf("create server: %w", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if err := srv.Start(ctx); err != nil {
		return fmt.Errorf("start server: %w", err)
	}

	health := startHealthServer(cfg.Metrics.Port,
		createHealthHandler(manager.RoleServer, srv, func() any { return srv.Stats() }, reg, cfg.Metrics.Path),
		logger,
	)
	defer shutdown(srv, health, logger)

	go receiveLoop(ctx, srv, sc.Framing, serveFlags.echo, logger)

	logger.Info("server running",
		"instance_id", cfg.Instance.ID,
		"listen", sc.Listen,
		"transport", cfg.Transport.Kind,
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	if serveFlags.tick <= 0 {
		<-ctx.Done()
		return nil
	}

	ticker := time.NewTicker(serveFlags.tick)
	defer ticker.Stop()

	var n int
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if !srv.Healthy() {
				continue
			}
			n++
			sent := srv.Broadcast(framing.Frame(sc.Framing, fmt.Appendf(nil, "tick %d", n)))
			logger.Debug("tick broadcast", "tick", n, "receivers", sent)
		}
	}
}
