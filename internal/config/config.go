package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
)

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// configWithFallbackDefault is used for proper default handling of fallback
type configWithFallbackDefault struct {
	Config
	FallbackPtr *bool `json:"fallback"`
}

// Parse decodes configuration bytes, applies defaults and validates the result.
// Since bool default is false, fallback is decoded through a pointer so that an
// absent key means DefaultFallback.
func Parse(data []byte) (*Config, error) {
	var rawCfg configWithFallbackDefault
	if err := json.Unmarshal(data, &rawCfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg := &rawCfg.Config
	if rawCfg.FallbackPtr != nil {
		cfg.Fallback = *rawCfg.FallbackPtr
	} else {
		cfg.Fallback = DefaultFallback
	}

	applyDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

// Default returns a configuration with every default applied and no groups
func Default() *Config {
	cfg := &Config{Fallback: DefaultFallback}
	applyDefaults(cfg)
	return cfg
}

// applyDefaults sets default values for unset fields
func applyDefaults(cfg *Config) {
	if cfg.Host == "" {
		cfg.Host = DefaultHost
	}
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultLogLevel
	}
	if cfg.RequestTimeout == 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}
	if cfg.Commitment == "" {
		cfg.Commitment = DefaultCommitment
	}
	if cfg.DerivationCacheSize == 0 {
		cfg.DerivationCacheSize = DefaultDerivationCacheSize
	}
	if cfg.CDNBase == "" {
		cfg.CDNBase = DefaultCDNBase
	}

	if cfg.Batching == nil {
		cfg.Batching = &BatchingConfig{}
	}
	if cfg.Batching.Size == 0 {
		cfg.Batching.Size = DefaultBatchSize
	}
	if cfg.Batching.Interval == 0 {
		cfg.Batching.Interval = DefaultBatchInterval
	}
	if cfg.Batching.PayloadConcurrency == 0 {
		cfg.Batching.PayloadConcurrency = DefaultPayloadConcurrency
	}
}

// validate checks the configuration for errors
func validate(cfg *Config) error {
	groupNames := make(map[string]bool)
	for i, group := range cfg.Groups {
		if group.Name == "" {
			return fmt.Errorf("group[%d]: name is required", i)
		}
		if groupNames[group.Name] {
			return fmt.Errorf("group[%d]: duplicate group name '%s'", i, group.Name)
		}
		groupNames[group.Name] = true

		if group.RPCURL == "" {
			return fmt.Errorf("group '%s': rpcUrl is required", group.Name)
		}
		u, err := url.Parse(group.RPCURL)
		if err != nil {
			return fmt.Errorf("group '%s': invalid rpcUrl: %w", group.Name, err)
		}
		switch u.Scheme {
		case "http", "https", "ws", "wss":
		default:
			return fmt.Errorf("group '%s': rpcUrl scheme must be http, https, ws or wss", group.Name)
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return errors.New("port must be between 1 and 65535")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[cfg.LogLevel] {
		return errors.New("logLevel must be one of: debug, info, warn, error")
	}

	switch cfg.Commitment {
	case "processed", "confirmed", "finalized":
	default:
		return errors.New("commitment must be one of: processed, confirmed, finalized")
	}

	if cfg.RequestTimeout < 0 {
		return errors.New("requestTimeout must be non-negative")
	}
	if cfg.DerivationCacheSize < 0 {
		return errors.New("derivationCacheSize must be non-negative")
	}
	if cfg.Batching.Size < 1 {
		return errors.New("batching.size must be positive")
	}
	if cfg.Batching.Interval < 0 {
		return errors.New("batching.interval must be non-negative")
	}
	if cfg.Batching.PayloadConcurrency < 1 {
		return errors.New("batching.payloadConcurrency must be positive")
	}
	if cfg.Resize != nil && (cfg.Resize.Width < 0 || cfg.Resize.Height < 0) {
		return errors.New("resize dimensions must be non-negative")
	}
	if cfg.IsPluginsEnabled() && cfg.Plugins.Timeout < 0 {
		return errors.New("plugins.timeout must be non-negative")
	}

	return nil
}
