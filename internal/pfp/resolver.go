// Package pfp resolves the profile picture of a Solana wallet.
package pfp

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"pfpgofer/internal/avatar"
	"pfpgofer/internal/batcher"
	"pfpgofer/internal/metadata"
	"pfpgofer/internal/metrics"
	"pfpgofer/internal/plugin"
	"pfpgofer/internal/solana"
)

// ProfilePicture is the resolved picture of one owner
type ProfilePicture struct {
	IsAvailable  bool              `json:"isAvailable"`
	URL          string            `json:"url"`
	Name         string            `json:"name,omitempty"`
	Metadata     *metadata.NFT     `json:"metadata,omitempty"`
	TokenAccount *solana.PublicKey `json:"tokenAccount,omitempty"`
	MintAccount  *solana.PublicKey `json:"mintAccount,omitempty"`
}

// Options control how a picture URL is rendered
type Options struct {
	Fallback bool           // generate an identicon when no picture is set
	Resize   *ResizeOptions // route the image through the resizing CDN
}

// DefaultOptions returns Options with the identicon fallback enabled
func DefaultOptions() Options {
	return Options{Fallback: true}
}

// Pusher queues a lookup and delivers its result on the returned channel
type Pusher interface {
	Push(endpoint string, owner solana.PublicKey) <-chan batcher.Result
}

// Config for creating a Resolver
type Config struct {
	CDNBase     string
	Transformer plugin.Transformer // optional
	Logger      zerolog.Logger
}

// Resolver turns engine results into ProfilePicture values
type Resolver struct {
	engine      Pusher
	cdnBase     string
	transformer plugin.Transformer
	logger      zerolog.Logger
}

// NewResolver creates a Resolver on top of engine
func NewResolver(engine Pusher, cfg Config) *Resolver {
	cdnBase := cfg.CDNBase
	if cdnBase == "" {
		cdnBase = DefaultCDNBase
	}
	return &Resolver{
		engine:      engine,
		cdnBase:     cdnBase,
		transformer: cfg.Transformer,
		logger:      cfg.Logger.With().Str("component", "pfp").Logger(),
	}
}

// Resolve returns owner's profile picture as seen through endpoint. It never
// fails: any lookup error, or ctx ending first, yields an unavailable picture
// with a placeholder URL.
func (r *Resolver) Resolve(ctx context.Context, endpoint string, owner solana.PublicKey, opts Options) ProfilePicture {
	return r.await(ctx, owner, r.engine.Push(endpoint, owner), opts)
}

// ResolveMany resolves owners concurrently. All lookups are queued before any
// is awaited, so they share batches. The result is in the order of owners.
func (r *Resolver) ResolveMany(ctx context.Context, endpoint string, owners []solana.PublicKey, opts Options) []ProfilePicture {
	pending := make([]<-chan batcher.Result, len(owners))
	for i, owner := range owners {
		pending[i] = r.engine.Push(endpoint, owner)
	}

	out := make([]ProfilePicture, len(owners))
	var wg sync.WaitGroup
	for i, owner := range owners {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out[i] = r.await(ctx, owner, pending[i], opts)
		}()
	}
	wg.Wait()
	return out
}

func (r *Resolver) await(ctx context.Context, owner solana.PublicKey, resultChan <-chan batcher.Result, opts Options) ProfilePicture {
	var res batcher.Result
	select {
	case res = <-resultChan:
	case <-ctx.Done():
		res.Err = ctx.Err()
	}

	if res.Err != nil || res.Resolution == nil {
		r.logger.Debug().Err(res.Err).Str("owner", owner.String()).Msg("profile picture unavailable")
		metrics.Resolutions.WithLabelValues("false").Inc()
		return ProfilePicture{
			IsAvailable: false,
			URL:         r.FormatURL(ctx, "", owner, plugin.Input{}, opts),
		}
	}

	metrics.Resolutions.WithLabelValues("true").Inc()
	return r.format(ctx, owner, res.Resolution, opts)
}

func (r *Resolver) format(ctx context.Context, owner solana.PublicKey, res *batcher.Resolution, opts Options) ProfilePicture {
	pic := ProfilePicture{
		IsAvailable: true,
		Metadata:    res.NFT,
	}
	if res.Record != nil {
		tokenAccount := res.Record.NFTTokenAccount
		mint := res.Record.NFTMint
		pic.TokenAccount = &tokenAccount
		pic.MintAccount = &mint
	}

	var image string
	if res.NFT != nil {
		pic.Name = res.NFT.Name()
		image = res.NFT.Image()
	}

	in := plugin.Input{Owner: owner.String(), Name: pic.Name}
	if pic.MintAccount != nil {
		in.Mint = pic.MintAccount.String()
	}
	pic.URL = r.FormatURL(ctx, image, owner, in, opts)
	return pic
}

// FormatURL renders the URL of a picture. A known image is resized and
// transformed as configured; otherwise the owner's identicon or the static
// placeholder is returned.
func (r *Resolver) FormatURL(ctx context.Context, image string, owner solana.PublicKey, in plugin.Input, opts Options) string {
	if image != "" {
		u := image
		if opts.Resize != nil {
			u = ResizedURL(r.cdnBase, u, *opts.Resize)
		}
		if r.transformer != nil {
			in.URL = u
			if in.Owner == "" {
				in.Owner = owner.String()
			}
			u = r.transformer.Transform(ctx, in)
		}
		return u
	}

	if opts.Fallback {
		return avatar.IdenticonURL(owner.String(), avatar.DefaultSize)
	}
	return avatar.StaticPlaceholder
}
