// Package metadata resolves Metaplex token metadata for mints and loads the
// off-chain JSON documents they point to.
package metadata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pfpgofer/internal/layout"
	"pfpgofer/internal/metrics"
	"pfpgofer/internal/rpc"
	"pfpgofer/internal/solana"
)

// MaxDocumentSize caps the size of an off-chain metadata document
const MaxDocumentSize = 1 << 20

// ErrNoJSON is returned when a metadata URI does not yield a JSON document
var ErrNoJSON = errors.New("no JSON metadata")

// AccountFetcher is the bulk account lookup used to read metadata accounts
type AccountFetcher interface {
	GetMultipleAccounts(ctx context.Context, keys []solana.PublicKey) ([]*rpc.Account, error)
}

// AddressDeriver computes the metadata account address of a mint
type AddressDeriver interface {
	Metadata(mint solana.PublicKey) (solana.PublicKey, error)
}

// JSON is an off-chain metadata document
type JSON struct {
	Name        string          `json:"name,omitempty"`
	Symbol      string          `json:"symbol,omitempty"`
	Description string          `json:"description,omitempty"`
	Image       string          `json:"image,omitempty"`
	Raw         json.RawMessage `json:"-"`
}

// MarshalJSON emits the raw document so that callers see every field
func (j *JSON) MarshalJSON() ([]byte, error) {
	if len(j.Raw) > 0 {
		return j.Raw, nil
	}
	type plain JSON
	return json.Marshal((*plain)(j))
}

// NFT is on-chain metadata joined with its loaded JSON document
type NFT struct {
	Metadata *layout.Metadata `json:"metadata"`
	JSON     *JSON            `json:"json"`
}

// Name prefers the on-chain name and falls back to the document's
func (n *NFT) Name() string {
	if n.Metadata != nil && n.Metadata.Name != "" {
		return n.Metadata.Name
	}
	if n.JSON != nil {
		return n.JSON.Name
	}
	return ""
}

// Image returns the image URL of the document, if any
func (n *NFT) Image() string {
	if n.JSON == nil {
		return ""
	}
	return n.JSON.Image
}

// Resolver reads metadata accounts and their JSON documents
type Resolver struct {
	deriver    AddressDeriver
	httpClient *http.Client
	logger     zerolog.Logger
}

// NewResolver creates a Resolver. Documents are fetched with the given timeout.
func NewResolver(deriver AddressDeriver, timeout time.Duration, logger zerolog.Logger) *Resolver {
	return &Resolver{
		deriver: deriver,
		httpClient: &http.Client{
			Transport: otelhttp.NewTransport(&http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			}),
			Timeout: timeout,
		},
		logger: logger.With().Str("component", "metadata").Logger(),
	}
}

// FindAllByMintList resolves metadata for every mint in one bulk account read.
// The result is order-preserving; mints without a decodable metadata account
// yield a nil entry. Only a failed bulk read is returned as an error.
func (r *Resolver) FindAllByMintList(ctx context.Context, accounts AccountFetcher, mints []solana.PublicKey) ([]*layout.Metadata, error) {
	if len(mints) == 0 {
		return nil, nil
	}

	keys := make([]solana.PublicKey, len(mints))
	for i, mint := range mints {
		key, err := r.deriver.Metadata(mint)
		if err != nil {
			return nil, err
		}
		keys[i] = key
	}

	raw, err := accounts.GetMultipleAccounts(ctx, keys)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch metadata accounts: %w", err)
	}
	if len(raw) != len(mints) {
		return nil, fmt.Errorf("metadata fetch returned %d accounts for %d mints", len(raw), len(mints))
	}

	out := make([]*layout.Metadata, len(mints))
	for i, acc := range raw {
		if acc == nil {
			continue
		}
		if acc.Err != nil {
			r.logger.Debug().Err(acc.Err).Str("mint", mints[i].String()).Msg("skipping undecodable metadata account")
			continue
		}
		md, err := layout.DecodeMetadata(acc.Data)
		if err != nil {
			r.logger.Debug().Err(err).Str("mint", mints[i].String()).Msg("skipping undecodable metadata account")
			continue
		}
		if !md.Mint.Equals(mints[i]) {
			r.logger.Debug().Str("mint", mints[i].String()).Msg("metadata account mint mismatch")
			continue
		}
		out[i] = md
	}
	return out, nil
}

// Load fetches the JSON document referenced by md.URI
func (r *Resolver) Load(ctx context.Context, md *layout.Metadata) (*NFT, error) {
	if md == nil || md.URI == "" {
		return nil, ErrNoJSON
	}

	doc, err := r.fetch(ctx, md.URI)
	if err != nil {
		metrics.MetadataFetches.WithLabelValues("error").Inc()
		return nil, err
	}
	metrics.MetadataFetches.WithLabelValues("ok").Inc()

	return &NFT{Metadata: md, JSON: doc}, nil
}

func (r *Resolver) fetch(ctx context.Context, uri string) (*JSON, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid URI %q: %v", ErrNoJSON, uri, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, MaxDocumentSize))
		return nil, fmt.Errorf("%w: HTTP %d from %s", ErrNoJSON, resp.StatusCode, uri)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxDocumentSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read document: %v", ErrNoJSON, err)
	}
	if len(body) > MaxDocumentSize {
		return nil, fmt.Errorf("%w: document exceeds %d bytes", ErrNoJSON, MaxDocumentSize)
	}

	trimmed := strings.TrimSpace(string(body))
	if !strings.HasPrefix(trimmed, "{") {
		return nil, fmt.Errorf("%w: document is not a JSON object", ErrNoJSON)
	}

	var doc JSON
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	doc.Raw = json.RawMessage(trimmed)
	return &doc, nil
}
