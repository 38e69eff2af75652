package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/rickgao/framelink/internal/config"
	"github.com/rickgao/framelink/internal/framing"
	"github.com/rickgao/framelink/internal/manager"
)

var connectFlags struct {
	address string
	port    int
	send    string
	every   time.Duration
	echo    bool
}

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Hold a connection to a server and log what it sends",
	RunE:  runConnect,
}

func init() {
	connectCmd.Flags().StringVar(&connectFlags.address, "address", "", "server hostname or IP (overrides config)")
	connectCmd.Flags().IntVar(&connectFlags.port, "port", 0, "server port (overrides config)")
	connectCmd.Flags().StringVar(&connectFlags.send, "send", "", "payload to send periodically")
	connectCmd.Flags().DurationVar(&connectFlags.every, "every", time.Second, "interval for --send")
	connectCmd.Flags().BoolVar(&connectFlags.echo, "echo", false, "send every received message back")
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg.Mode = config.ModeClient
	if connectFlags.address != "" {
		cfg.Client.Address = connectFlags.address
	}
	if connectFlags.port != 0 {
		cfg.Client.Port = connectFlags.port
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate config: %w", err)
	}

	cc, err := cfg.ClientManagerConfig()
	if err != nil {
		return err
	}
	tr, err := newTransport()
	if err != nil {
		return err
	}
	reg, m := newMetrics()

	client, err := manager.NewClient(cc,
		manager.WithLogger(logger),
		manager.WithTransport(tr),
		manager.WithObserver(m),
	)
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	ctx, cancel := signalContext(cmd.Context())
	defer cancel()

	if err := client.Start(ctx); err != nil {
		return fmt.Errorf("start client: %w", err)
	}

	health := startHealthServer(cfg.Metrics.Port,
		createHealthHandler(manager.RoleClient, client, func() any { return client.Stats() }, reg, cfg.Metrics.Path),
		logger,
	)
	defer shutdown(client, health, logger)

	go receiveLoop(ctx, client, cc.Supervisor.Framing, connectFlags.echo, logger)

	logger.Info("client running",
		"instance_id", cfg.Instance.ID,
		"server", fmt.Sprintf("%s:%d", cc.Supervisor.Host, cc.Supervisor.Port),
		"transport", cfg.Transport.Kind,
	)

	if connectFlags.send == "" || connectFlags.every <= 0 {
		<-ctx.Done()
		return nil
	}

	payload := framing.Frame(cc.Supervisor.Framing, []byte(connectFlags.send))
	ticker := time.NewTicker(connectFlags.every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// Dropped with a warning while disconnected.
			client.Send(payload)
		}
	}
}
