package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"pfpgofer/internal/config"
	"pfpgofer/internal/server"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve profile pictures over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}

			logger := setupLogger(cfg.LogLevel)
			logger.Info().
				Str("config", configPath).
				Str("host", cfg.Host).
				Int("port", cfg.Port).
				Int("groups", len(cfg.Groups)).
				Msg("starting PFPGofer")

			srv, err := server.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to create server: %w", err)
			}
			if err := srv.Start(); err != nil {
				return fmt.Errorf("failed to start server: %w", err)
			}

			// Wait for shutdown signal
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			sig := <-quit

			logger.Info().Str("signal", sig.String()).Msg("received shutdown signal")

			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()

			return srv.Stop(ctx)
		},
	}

	cmd.Flags().StringVar(&configPath, "config", "config.json", "path to config file")
	return cmd
}
