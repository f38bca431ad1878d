package auth

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/steerdev/steer/pkg/cancel"
)

// refreshWindow triggers a refresh when the access token expires
// within it.
const refreshWindow = 5 * time.Minute

// Manager resolves per-request auth headers from the credential store,
// refreshing OAuth tokens before expiry. Reads are concurrent; the
// refresh exchange holds the write path exclusively so parallel
// requests do not race duplicate refreshes.
type Manager struct {
	store     CredentialStore
	providers map[string]*OAuthProvider
	refreshMu sync.Mutex
	logger    *zap.Logger
}

// NewManager creates a manager over the given store with the built-in
// OAuth providers registered.
func NewManager(store CredentialStore, logger *zap.Logger) *Manager {
	return &Manager{
		store: store,
		providers: map[string]*OAuthProvider{
			"anthropic": AnthropicOAuth(),
			"openai":    OpenAIOAuth(),
		},
		logger: logger,
	}
}

// RegisterOAuthProvider installs or replaces a login target.
func (m *Manager) RegisterOAuthProvider(p *OAuthProvider) {
	m.providers[p.Name] = p
}

// OAuthProviderFor returns the registered login target, if any.
func (m *Manager) OAuthProviderFor(provider string) (*OAuthProvider, bool) {
	p, ok := m.providers[provider]
	return p, ok
}

// Store exposes the underlying credential store.
func (m *Manager) Store() CredentialStore {
	return m.store
}

// HasCredential reports whether any credential exists for a provider.
func (m *Manager) HasCredential(provider string) bool {
	if _, ok := m.store.Get(provider, KindOAuth); ok {
		return true
	}
	_, ok := m.store.Get(provider, KindAPIKey)
	return ok
}

// AuthHeaders builds the header set for one request. OAuth wins over a
// stored API key; the set is rebuilt each request so a refreshed
// access token is picked up immediately.
func (m *Manager) AuthHeaders(provider string, token *cancel.Token) (map[string]string, error) {
	if cred, ok := m.store.Get(provider, KindOAuth); ok && cred.Tokens != nil {
		tokens, err := m.freshTokens(provider, cred.Tokens, token)
		if err != nil {
			return nil, err
		}
		headers := map[string]string{"Authorization": "Bearer " + tokens.AccessToken}
		if p, ok := m.providers[provider]; ok {
			for k, v := range p.ExtraHeaders {
				headers[k] = v
			}
		}
		return headers, nil
	}

	if cred, ok := m.store.Get(provider, KindAPIKey); ok && cred.APIKey != "" {
		return apiKeyHeaders(provider, cred.APIKey), nil
	}

	return nil, fmt.Errorf("no credential stored for provider %q", provider)
}

// freshTokens returns tokens valid for at least the refresh window,
// refreshing and persisting when needed. A refresh 401 clears the
// stored tokens and surfaces ErrReauthRequired.
func (m *Manager) freshTokens(provider string, tokens *AuthTokens, token *cancel.Token) (*AuthTokens, error) {
	if time.Until(tokens.ExpiresAt) > refreshWindow {
		return tokens, nil
	}

	m.refreshMu.Lock()
	defer m.refreshMu.Unlock()

	// Another request may have refreshed while this one waited.
	if cred, ok := m.store.Get(provider, KindOAuth); ok && cred.Tokens != nil {
		tokens = cred.Tokens
		if time.Until(tokens.ExpiresAt) > refreshWindow {
			return tokens, nil
		}
	}

	oauthProvider, ok := m.providers[provider]
	if !ok {
		return nil, fmt.Errorf("no oauth provider registered for %q", provider)
	}

	m.logger.Info("Refreshing OAuth tokens",
		zap.String("provider", provider),
		zap.Time("expires_at", tokens.ExpiresAt),
	)

	refreshed, err := oauthProvider.Refresh(tokens.RefreshToken, token)
	if err != nil {
		if err == ErrReauthRequired {
			m.logger.Warn("Refresh rejected, clearing stored tokens",
				zap.String("provider", provider),
			)
			_ = m.store.Remove(provider, KindOAuth)
		}
		return nil, err
	}

	if err := m.store.Set(provider, Credential{Kind: KindOAuth, Tokens: refreshed}); err != nil {
		return nil, fmt.Errorf("persist refreshed tokens: %w", err)
	}
	return refreshed, nil
}

// apiKeyHeaders returns the fixed single-header set for API-key mode.
func apiKeyHeaders(provider, key string) map[string]string {
	switch provider {
	case "anthropic":
		return map[string]string{"x-api-key": key}
	default:
		return map[string]string{"Authorization": "Bearer " + key}
	}
}

// ProviderHeaderSource binds the manager to one provider, satisfying
// the adapter layer's header-source contract.
type ProviderHeaderSource struct {
	manager  *Manager
	provider string
}

// AuthHeaders implements the adapter header-source contract.
func (h ProviderHeaderSource) AuthHeaders(token *cancel.Token) (map[string]string, error) {
	return h.manager.AuthHeaders(h.provider, token)
}

// HeaderSource returns a per-provider header source for the adapters.
func (m *Manager) HeaderSource(provider string) ProviderHeaderSource {
	return ProviderHeaderSource{manager: m, provider: provider}
}
