package rpc

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"pfpgofer/internal/config"
)

// Registry hands out one shared Client per endpoint and maps configured group
// names to their endpoint
type Registry struct {
	clients        map[string]*Client // endpoint -> client
	groups         map[string]string  // group name -> endpoint
	commitment     Commitment
	requestTimeout time.Duration
	logger         zerolog.Logger
	mu             sync.RWMutex
}

// NewRegistry creates an empty Registry
func NewRegistry(commitment Commitment, requestTimeout time.Duration, logger zerolog.Logger) *Registry {
	return &Registry{
		clients:        make(map[string]*Client),
		groups:         make(map[string]string),
		commitment:     commitment,
		requestTimeout: requestTimeout,
		logger:         logger.With().Str("component", "rpc").Logger(),
	}
}

// NewRegistryFromConfig creates a Registry with every configured group registered
func NewRegistryFromConfig(cfg *config.Config, logger zerolog.Logger) (*Registry, error) {
	r := NewRegistry(Commitment(cfg.Commitment), cfg.GetRequestTimeoutDuration(), logger)
	for _, g := range cfg.Groups {
		if err := r.AddGroup(g.Name, g.RPCURL); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// AddGroup registers a named endpoint and eagerly creates its client
func (r *Registry) AddGroup(name, endpoint string) error {
	if _, err := r.Dial(endpoint); err != nil {
		return fmt.Errorf("group '%s': %w", name, err)
	}

	r.mu.Lock()
	r.groups[name] = endpoint
	r.mu.Unlock()
	return nil
}

// Endpoint returns the endpoint for a group name
func (r *Registry) Endpoint(group string) (string, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	endpoint, ok := r.groups[group]
	if !ok {
		return "", fmt.Errorf("group '%s' not found", group)
	}
	return endpoint, nil
}

// GroupNames returns all registered group names
func (r *Registry) GroupNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.groups))
	for name := range r.groups {
		names = append(names, name)
	}
	return names
}

// Dial returns the client for endpoint, creating it on first use
func (r *Registry) Dial(endpoint string) (*Client, error) {
	r.mu.RLock()
	c, ok := r.clients[endpoint]
	r.mu.RUnlock()
	if ok {
		return c, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.clients[endpoint]; ok {
		return c, nil
	}

	c, err := NewClient(Config{
		Endpoint:       endpoint,
		Commitment:     r.commitment,
		RequestTimeout: r.requestTimeout,
		Logger:         r.logger,
	})
	if err != nil {
		return nil, err
	}
	r.clients[endpoint] = c
	return c, nil
}

// Close closes every client
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for endpoint, c := range r.clients {
		c.Close()
		delete(r.clients, endpoint)
	}
}
