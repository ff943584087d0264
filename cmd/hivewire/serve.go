package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/alfredjeanlab/hivewire/internal/config"
	"github.com/alfredjeanlab/hivewire/internal/server"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Start the hivewire hub",
	GroupID: "system",
	// Override PersistentPreRunE so no client is constructed.
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error { return nil },
	RunE: func(cmd *cobra.Command, args []string) error {
		configPath, _ := cmd.Flags().GetString("config")

		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		applyServeFlags(cmd, cfg)

		logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: cfg.SlogLevel(),
		}))
		slog.SetDefault(logger)

		srv := server.New(cfg)
		if _, err := srv.Start(); err != nil {
			return err
		}

		// Wait for SIGINT or SIGTERM.
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("received signal, shutting down", "signal", sig.String())

		if err := srv.Stop(); err != nil {
			return err
		}
		slog.Info("shutdown complete")
		return nil
	},
}

// applyServeFlags lets explicit flags override file and environment values.
func applyServeFlags(cmd *cobra.Command, cfg *config.Config) {
	f := cmd.Flags()
	if f.Changed("host") {
		cfg.Host, _ = f.GetString("host")
	}
	if f.Changed("port") {
		cfg.Port, _ = f.GetInt("port")
	}
	if f.Changed("http-port") {
		cfg.HTTPPort, _ = f.GetInt("http-port")
	}
	if f.Changed("max-connections") {
		cfg.MaxConnections, _ = f.GetInt("max-connections")
	}
	if f.Changed("heartbeat") {
		cfg.HeartbeatInterval, _ = f.GetDuration("heartbeat")
	}
	if f.Changed("replay-buffer") {
		cfg.ReplayBufferSize, _ = f.GetInt("replay-buffer")
	}
	if f.Changed("nats-url") {
		cfg.NATSURL, _ = f.GetString("nats-url")
	}
	if f.Changed("nats-subject") {
		cfg.NATSSubject, _ = f.GetString("nats-subject")
	}
}

func init() {
	serveCmd.Flags().String("config", "", "path to TOML config file")
	serveCmd.Flags().String("host", "", "bind host")
	serveCmd.Flags().Int("port", 0, "stream listener port")
	serveCmd.Flags().Int("http-port", 0, "HTTP listener port")
	serveCmd.Flags().Int("max-connections", 0, "connection limit (0 = unlimited)")
	serveCmd.Flags().Duration("heartbeat", 0, "heartbeat probe interval")
	serveCmd.Flags().Int("replay-buffer", 0, "replay buffer capacity")
	serveCmd.Flags().String("nats-url", "", "NATS ingress URL")
	serveCmd.Flags().String("nats-subject", "", "NATS ingress subject root")
}
