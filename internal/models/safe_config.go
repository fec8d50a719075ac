package models

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// SafeConfig provides thread-safe access to configuration.
// It uses RWMutex to allow concurrent reads while serializing writes.
// Pattern from Prometheus blackbox_exporter.
//
// SafeConfig enables dynamic configuration reload without restarting the
// exporter:
//   - Operators can update credentials or the PBS endpoint via SIGHUP
//   - File watchers can trigger automatic reload when config files change
//   - Invalid configurations are rejected without affecting the running config
type SafeConfig struct {
	mu sync.RWMutex
	C  *Config
}

// NewSafeConfig creates a new SafeConfig with the provided initial config.
// The config is stored by reference; the caller should not modify it after
// passing it to NewSafeConfig.
func NewSafeConfig(cfg *Config) *SafeConfig {
	return &SafeConfig{
		C: cfg,
	}
}

// Get returns the current configuration (read-locked).
// The returned pointer is safe to use until the next reload.
// Multiple goroutines can call Get() concurrently.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.C
}

// ReloadConfig loads and validates a new configuration from the file.
// Validation happens BEFORE acquiring the write lock (fail-fast pattern) so
// invalid configurations never affect the running exporter.
//
// Returns:
//   - clientChanged: true if the PBS endpoint or credentials changed,
//     signalling that the API client must be rebuilt
//   - err: error if the file cannot be read or validation fails
func (sc *SafeConfig) ReloadConfig(configPath string) (clientChanged bool, err error) {
	newCfg, err := LoadConfig(configPath)
	if err != nil {
		return false, err
	}

	// Write lock is held only for the pointer swap.
	sc.mu.Lock()
	oldEndpoint := sc.C.PbsServer.Endpoint
	oldTokenID := sc.C.PbsServer.TokenID
	oldSecret := sc.C.PbsServer.TokenSecret
	sc.C = newCfg
	sc.mu.Unlock()

	clientChanged = oldEndpoint != newCfg.PbsServer.Endpoint ||
		oldTokenID != newCfg.PbsServer.TokenID ||
		oldSecret != newCfg.PbsServer.TokenSecret

	log.Info("Configuration reloaded successfully")
	if clientChanged {
		log.Info("PBS connection settings changed, API client will be rebuilt")
	}

	return clientChanged, nil
}
