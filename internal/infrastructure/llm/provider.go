// Package llm hosts the provider adapter registry and the plumbing
// shared by every adapter: HTTP dispatch with cancellation, history
// flattening, and SSE decoding. Each vendor adapter lives in its own
// sub-package and registers a factory via init().
package llm

import (
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/steerdev/steer/internal/domain/service"
	"github.com/steerdev/steer/pkg/cancel"
)

// HeaderSource builds the per-request auth header set. API-key mode is
// one fixed header; OAuth mode rebuilds the set each request so a
// refreshed access token is picked up immediately.
type HeaderSource interface {
	AuthHeaders(token *cancel.Token) (map[string]string, error)
}

// StaticHeaders is a fixed header set (API-key mode).
type StaticHeaders map[string]string

// AuthHeaders returns the fixed set.
func (h StaticHeaders) AuthHeaders(_ *cancel.Token) (map[string]string, error) {
	return h, nil
}

// ProviderConfig holds configuration for one adapter instance.
type ProviderConfig struct {
	Name    string `json:"name"`
	Type    string `json:"type"` // "anthropic" | "openai" | "openai_responses" | "gemini" | "xai"
	BaseURL string `json:"base_url"`
	APIKey  string `json:"api_key"`
}

// NormalizeBaseURL trims trailing slashes and falls back to def when
// the override is empty. Adapters append their canonical path suffix.
func NormalizeBaseURL(override, def string) string {
	u := strings.TrimRight(strings.TrimSpace(override), "/")
	if u == "" {
		return def
	}
	return u
}

// ProviderFactory creates an adapter from config. A nil headers source
// means "derive from the API key in cfg".
type ProviderFactory func(cfg ProviderConfig, headers HeaderSource, logger *zap.Logger) service.Provider

var (
	factoryMu sync.RWMutex
	factories = map[string]ProviderFactory{}
)

// RegisterFactory registers a provider factory for the given type
// name. Called from init() in each adapter sub-package.
func RegisterFactory(typeName string, factory ProviderFactory) {
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[typeName] = factory
}

// CreateProvider instantiates the adapter registered for cfg.Type.
func CreateProvider(cfg ProviderConfig, headers HeaderSource, logger *zap.Logger) (service.Provider, error) {
	factoryMu.RLock()
	factory, ok := factories[cfg.Type]
	factoryMu.RUnlock()

	if !ok {
		factoryMu.RLock()
		available := make([]string, 0, len(factories))
		for k := range factories {
			available = append(available, k)
		}
		factoryMu.RUnlock()
		return nil, fmt.Errorf("unknown provider type %q (available: %v)", cfg.Type, available)
	}

	return factory(cfg, headers, logger), nil
}
