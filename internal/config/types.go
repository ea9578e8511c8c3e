package config

import "time"

// Config represents the main configuration structure
type Config struct {
	Host                string          `json:"host"`
	Port                int             `json:"port"`
	LogLevel            string          `json:"logLevel"`
	RequestTimeout      int             `json:"requestTimeout"` // ms - per RPC / metadata HTTP call
	Commitment          string          `json:"commitment"`
	DerivationCacheSize int             `json:"derivationCacheSize"`
	Fallback            bool            `json:"fallback"`
	CDNBase             string          `json:"cdnBase"`
	Resize              *ResizeConfig   `json:"resize,omitempty"`
	Batching            *BatchingConfig `json:"batching,omitempty"`
	Plugins             *PluginConfig   `json:"plugins,omitempty"`
	Groups              []GroupConfig   `json:"groups"`
}

// BatchingConfig controls request coalescing
type BatchingConfig struct {
	Size               int `json:"size"`               // distinct owners that force an early flush
	Interval           int `json:"interval"`           // ms - debounce before an unforced flush
	PayloadConcurrency int `json:"payloadConcurrency"` // parallel metadata JSON fetches per batch
}

// ResizeConfig enables CDN resizing of resolved images
type ResizeConfig struct {
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Quality int    `json:"quality,omitempty"`
	Fit     string `json:"fit,omitempty"`
}

// PluginConfig represents URL transform script configuration
type PluginConfig struct {
	Enabled   bool   `json:"enabled"`
	Directory string `json:"directory"` // path to scripts directory
	Timeout   int    `json:"timeout"`   // execution timeout in milliseconds
}

// GroupConfig names one Solana RPC endpoint
type GroupConfig struct {
	Name   string `json:"name"`
	RPCURL string `json:"rpcUrl"`
}

// Default values
const (
	DefaultHost                = "localhost"
	DefaultPort                = 8080
	DefaultLogLevel            = "info"
	DefaultRequestTimeout      = 10000 // ms
	DefaultCommitment          = "processed"
	DefaultDerivationCacheSize = 10000
	DefaultFallback            = true
	DefaultCDNBase             = "https://solana-cdn.com/cdn-cgi/image"
	DefaultBatchSize           = 50
	DefaultBatchInterval       = 200 // ms
	DefaultPayloadConcurrency  = 16
	DefaultPluginDirectory     = "./plugins"
	DefaultPluginTimeout       = 1000 // ms
)

// GetRequestTimeoutDuration returns request timeout as time.Duration
func (c *Config) GetRequestTimeoutDuration() time.Duration {
	return time.Duration(c.RequestTimeout) * time.Millisecond
}

// IsPluginsEnabled returns true if plugins are configured and enabled
func (c *Config) IsPluginsEnabled() bool {
	return c.Plugins != nil && c.Plugins.Enabled
}

// GetPluginDirectory returns the plugins directory path
func (c *Config) GetPluginDirectory() string {
	if c.Plugins == nil || c.Plugins.Directory == "" {
		return DefaultPluginDirectory
	}
	return c.Plugins.Directory
}

// GetPluginTimeoutDuration returns plugin timeout as time.Duration
func (c *Config) GetPluginTimeoutDuration() time.Duration {
	if c.Plugins == nil || c.Plugins.Timeout == 0 {
		return time.Duration(DefaultPluginTimeout) * time.Millisecond
	}
	return time.Duration(c.Plugins.Timeout) * time.Millisecond
}

// GetIntervalDuration returns the debounce interval as time.Duration
func (b *BatchingConfig) GetIntervalDuration() time.Duration {
	return time.Duration(b.Interval) * time.Millisecond
}
