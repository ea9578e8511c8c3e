package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pfpgofer/internal/address"
	"pfpgofer/internal/batcher"
	"pfpgofer/internal/config"
	"pfpgofer/internal/metadata"
	"pfpgofer/internal/pfp"
	"pfpgofer/internal/rpc"
	"pfpgofer/internal/solana"
)

func newResolveCommand() *cobra.Command {
	var (
		endpoint   string
		commitment string
		noFallback bool
		width      int
		logLevel   string
		timeout    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "resolve [flags] <owner>...",
		Short: "Resolve the profile pictures of one or more wallets",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			owners := make([]solana.PublicKey, len(args))
			for i, arg := range args {
				pk, err := solana.ParsePublicKey(arg)
				if err != nil {
					return fmt.Errorf("invalid owner %q: %w", arg, err)
				}
				owners[i] = pk
			}

			cfg := config.Default()
			logger := setupLogger(logLevel)

			deriver, err := address.NewDeriver(cfg.DerivationCacheSize)
			if err != nil {
				return err
			}

			registry := rpc.NewRegistry(rpc.Commitment(commitment), cfg.GetRequestTimeoutDuration(), logger)
			defer registry.Close()

			engine := batcher.NewEngine(
				batcher.ConfigFrom(cfg.Batching),
				deriver,
				func(endpoint string) (batcher.AccountFetcher, error) {
					c, err := registry.Dial(endpoint)
					if err != nil {
						return nil, err
					}
					return c, nil
				},
				metadata.NewResolver(deriver, cfg.GetRequestTimeoutDuration(), logger),
				logger,
			)
			resolver := pfp.NewResolver(engine, pfp.Config{CDNBase: cfg.CDNBase, Logger: logger})

			opts := pfp.Options{Fallback: !noFallback}
			if width > 0 {
				opts.Resize = &pfp.ResizeOptions{Width: width}
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			pics := resolver.ResolveMany(ctx, endpoint, owners, opts)
			if err := engine.Close(ctx); err != nil {
				logger.Warn().Err(err).Msg("batch engine did not drain")
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if len(pics) == 1 {
				return enc.Encode(pics[0])
			}
			return enc.Encode(pics)
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", "https://api.mainnet-beta.solana.com", "Solana RPC endpoint")
	cmd.Flags().StringVar(&commitment, "commitment", string(rpc.DefaultCommitment), "commitment level")
	cmd.Flags().BoolVar(&noFallback, "no-fallback", false, "use the static placeholder instead of an identicon")
	cmd.Flags().IntVar(&width, "width", 0, "resize the image through the CDN to this width")
	cmd.Flags().StringVar(&logLevel, "log-level", "warn", "log level")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "overall timeout")
	return cmd
}
