package auth

import (
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/steerdev/steer/pkg/cancel"
)

// AuthMethod selects the interactive login path.
type AuthMethod string

const (
	MethodOAuth  AuthMethod = "oauth"
	MethodAPIKey AuthMethod = "api_key"
)

// FlowState is the phase of an interactive login.
type FlowState string

const (
	FlowInitial      FlowState = "initial"
	FlowOAuthStarted FlowState = "oauth_started"
	FlowAwaitingKey  FlowState = "awaiting_api_key"
	FlowComplete     FlowState = "complete"
)

// ErrInvalidCredential reports an API key that fails the provider's
// prefix or length rules.
var ErrInvalidCredential = errors.New("invalid credential")

// Flow drives one interactive login:
//
//	Initial --start(oauth)--> OAuthStarted --callback--> Complete
//	Initial --start(api_key)--> AwaitingKey --key--> Complete
type Flow struct {
	provider string
	manager  *Manager
	logger   *zap.Logger

	state    FlowState
	verifier string
	authURL  string
}

// NewFlow creates a login flow for the given provider.
func NewFlow(provider string, manager *Manager, logger *zap.Logger) *Flow {
	return &Flow{
		provider: provider,
		manager:  manager,
		logger:   logger,
		state:    FlowInitial,
	}
}

// State returns the current flow phase.
func (f *Flow) State() FlowState {
	return f.state
}

// AuthURL returns the authorization URL once OAuth has started.
func (f *Flow) AuthURL() string {
	return f.authURL
}

// Start begins the flow with the chosen method. For OAuth it generates
// the PKCE pair and returns the authorization URL for the user to
// open; for API-key mode it moves to AwaitingKey.
func (f *Flow) Start(method AuthMethod) (FlowState, error) {
	if f.state != FlowInitial {
		return f.state, fmt.Errorf("flow already started (state %s)", f.state)
	}

	switch method {
	case MethodOAuth:
		oauthProvider, ok := f.manager.OAuthProviderFor(f.provider)
		if !ok {
			return f.state, fmt.Errorf("provider %q does not support oauth login", f.provider)
		}
		pkce, err := GeneratePKCE()
		if err != nil {
			return f.state, err
		}
		f.verifier = pkce.Verifier
		f.authURL = oauthProvider.BuildAuthURL(pkce)
		f.state = FlowOAuthStarted
		return f.state, nil

	case MethodAPIKey:
		f.state = FlowAwaitingKey
		return f.state, nil

	default:
		return f.state, fmt.Errorf("unknown auth method %q", method)
	}
}

// HandleInput advances the flow with user input: the pasted redirect
// URL or code#state in OAuth mode, the key string in API-key mode. On
// success the credential is stored and the flow completes.
func (f *Flow) HandleInput(input string, token *cancel.Token) (FlowState, error) {
	switch f.state {
	case FlowOAuthStarted:
		code, state, err := ParseCallback(input)
		if err != nil {
			return f.state, err
		}
		oauthProvider, _ := f.manager.OAuthProviderFor(f.provider)
		tokens, err := oauthProvider.ExchangeCode(code, state, f.verifier, token)
		if err != nil {
			return f.state, err
		}
		if err := f.manager.Store().Set(f.provider, Credential{Kind: KindOAuth, Tokens: tokens}); err != nil {
			return f.state, fmt.Errorf("store tokens: %w", err)
		}
		f.logger.Info("OAuth login complete", zap.String("provider", f.provider))
		f.state = FlowComplete
		return f.state, nil

	case FlowAwaitingKey:
		key := strings.TrimSpace(input)
		if err := ValidateAPIKey(f.provider, key); err != nil {
			return f.state, err
		}
		if err := f.manager.Store().Set(f.provider, Credential{Kind: KindAPIKey, APIKey: key}); err != nil {
			return f.state, fmt.Errorf("store api key: %w", err)
		}
		f.logger.Info("API key stored", zap.String("provider", f.provider))
		f.state = FlowComplete
		return f.state, nil

	default:
		return f.state, fmt.Errorf("flow not awaiting input (state %s)", f.state)
	}
}

// ValidateAPIKey applies the provider's prefix and minimum-length
// rules.
func ValidateAPIKey(provider, key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidCredential)
	}
	switch provider {
	case "anthropic":
		if !strings.HasPrefix(key, "sk-ant-") {
			return fmt.Errorf("%w: anthropic keys start with sk-ant-", ErrInvalidCredential)
		}
	case "openai":
		if !strings.HasPrefix(key, "sk-") || len(key) < 20 {
			return fmt.Errorf("%w: openai keys start with sk- and have at least 20 characters", ErrInvalidCredential)
		}
	}
	return nil
}
