package rpc

import (
	"context"
	"fmt"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"pfpgofer/internal/jsonrpc"
	"pfpgofer/internal/metrics"
	"pfpgofer/internal/solana"
)

// Client is a Solana JSON-RPC client bound to one endpoint
type Client struct {
	endpoint   string
	commitment Commitment
	transport  transport
	reqID      atomic.Int64
	logger     zerolog.Logger
}

// Config for creating a new Client
type Config struct {
	Endpoint       string
	Commitment     Commitment
	RequestTimeout time.Duration
	Logger         zerolog.Logger
}

// NewClient creates a Client. ws:// and wss:// endpoints use a WebSocket transport,
// everything else is posted over HTTP.
func NewClient(cfg Config) (*Client, error) {
	u, err := url.Parse(cfg.Endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", cfg.Endpoint, err)
	}

	commitment := cfg.Commitment
	if commitment == "" {
		commitment = DefaultCommitment
	}

	logger := cfg.Logger.With().Str("endpoint", redact(u)).Logger()

	var t transport
	switch u.Scheme {
	case "http", "https":
		t = newHTTPTransport(cfg.Endpoint, cfg.RequestTimeout)
	case "ws", "wss":
		t = newWSTransport(cfg.Endpoint, cfg.RequestTimeout, logger)
	default:
		return nil, fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}

	return &Client{
		endpoint:   cfg.Endpoint,
		commitment: commitment,
		transport:  t,
		logger:     logger,
	}, nil
}

// Endpoint returns the endpoint URL
func (c *Client) Endpoint() string {
	return c.endpoint
}

// Commitment returns the commitment used for queries
func (c *Client) Commitment() Commitment {
	return c.commitment
}

// Call executes method with params and decodes the result into result.
// A JSON-RPC error object is returned as *jsonrpc.Error.
func (c *Client) Call(ctx context.Context, method string, params interface{}, result interface{}) error {
	req, err := jsonrpc.NewRequest(method, params, jsonrpc.NewIDInt(c.reqID.Add(1)))
	if err != nil {
		return err
	}

	start := time.Now()
	resp, err := c.transport.Execute(ctx, req)
	metrics.RPCRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.RPCRequests.WithLabelValues(method, "transport_error").Inc()
		return fmt.Errorf("%s: %w", method, err)
	}
	if resp.HasError() {
		metrics.RPCRequests.WithLabelValues(method, "rpc_error").Inc()
		return fmt.Errorf("%s: %w", method, resp.Error)
	}
	metrics.RPCRequests.WithLabelValues(method, "ok").Inc()

	c.logger.Debug().
		Str("method", method).
		Dur("duration", time.Since(start)).
		Msg("rpc call completed")

	if err := resp.GetResultAs(result); err != nil {
		return fmt.Errorf("%s: failed to decode result: %w", method, err)
	}
	return nil
}

// GetMultipleAccounts fetches raw accounts. The result has the same length and order
// as keys; absent accounts are nil. An account whose data cannot be decoded is
// returned with Err set and does not fail the call.
func (c *Client) GetMultipleAccounts(ctx context.Context, keys []solana.PublicKey) ([]*Account, error) {
	raw, err := getMultiple[rawAccount](ctx, c, keys, "base64")
	if err != nil {
		return nil, err
	}

	accounts := make([]*Account, len(raw))
	for i, ra := range raw {
		if ra == nil {
			continue
		}
		acc := ra.decode()
		if acc.Err != nil {
			c.logger.Debug().Err(acc.Err).Str("account", keys[i].String()).Msg("undecodable account data")
		}
		accounts[i] = acc
	}
	return accounts, nil
}

// GetMultipleParsedAccounts fetches accounts with jsonParsed encoding, preserving order;
// absent accounts are nil.
func (c *Client) GetMultipleParsedAccounts(ctx context.Context, keys []solana.PublicKey) ([]*ParsedAccount, error) {
	raw, err := getMultiple[rawParsedAccount](ctx, c, keys, "jsonParsed")
	if err != nil {
		return nil, err
	}

	accounts := make([]*ParsedAccount, len(raw))
	for i, ra := range raw {
		if ra != nil {
			accounts[i] = ra.decode()
		}
	}
	return accounts, nil
}

// getMultiple issues getMultipleAccounts in chunks of MaxAccountsPerRequest
func getMultiple[T any](ctx context.Context, c *Client, keys []solana.PublicKey, encoding string) ([]*T, error) {
	out := make([]*T, 0, len(keys))
	cfg := accountsConfig{Encoding: encoding, Commitment: c.commitment}

	for start := 0; start < len(keys); start += MaxAccountsPerRequest {
		end := min(start+MaxAccountsPerRequest, len(keys))

		addrs := make([]string, 0, end-start)
		for _, k := range keys[start:end] {
			addrs = append(addrs, k.String())
		}

		var result multipleAccountsResult[T]
		if err := c.Call(ctx, "getMultipleAccounts", []interface{}{addrs, cfg}, &result); err != nil {
			return nil, err
		}
		if len(result.Value) != len(addrs) {
			return nil, fmt.Errorf("getMultipleAccounts: expected %d accounts, got %d", len(addrs), len(result.Value))
		}
		out = append(out, result.Value...)
	}
	return out, nil
}

// Close releases transport resources
func (c *Client) Close() {
	c.transport.Close()
}

// redact strips credentials and query strings (API keys) from an endpoint for logging
func redact(u *url.URL) string {
	clean := url.URL{Scheme: u.Scheme, Host: u.Host, Path: u.Path}
	return clean.String()
}
