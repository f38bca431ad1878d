package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/steerdev/steer/pkg/cancel"
)

// ErrReauthRequired signals that refresh failed with 401: stored
// tokens were cleared and the user must log in again.
var ErrReauthRequired = errors.New("reauthentication required")

// ErrInvalidState signals a state mismatch in the OAuth callback.
var ErrInvalidState = errors.New("oauth state does not match verifier")

// OAuthProvider describes one OAuth2 + PKCE login target.
type OAuthProvider struct {
	Name        string
	ClientID    string
	AuthURL     string
	TokenURL    string
	RedirectURI string
	Scopes      []string

	// ExtraHeaders are added to every authenticated request beyond the
	// bearer token (provider beta flags).
	ExtraHeaders map[string]string
}

// Anthropic OAuth constants.
const (
	anthropicAuthURL     = "https://claude.ai/oauth/authorize"
	anthropicTokenURL    = "https://console.anthropic.com/v1/oauth/token"
	anthropicClientID    = "9d1c250a-e61b-44d9-88ed-5944d1962f5e"
	anthropicRedirectURI = "https://console.anthropic.com/oauth/code/callback"

	// anthropicOAuthBeta must accompany OAuth-authenticated API calls.
	anthropicOAuthBeta = "oauth-2025-04-20"
)

// OpenAI (Codex) OAuth constants.
const (
	openaiAuthURL     = "https://auth.openai.com/oauth/authorize"
	openaiTokenURL    = "https://auth.openai.com/oauth/token"
	openaiClientID    = "app_EMoamEEZ73f0CkXaXp7hrann"
	openaiRedirectURI = "http://localhost:1455/auth/callback"
)

// AnthropicOAuth returns the Anthropic login target.
func AnthropicOAuth() *OAuthProvider {
	return &OAuthProvider{
		Name:        "anthropic",
		ClientID:    anthropicClientID,
		AuthURL:     anthropicAuthURL,
		TokenURL:    anthropicTokenURL,
		RedirectURI: anthropicRedirectURI,
		Scopes:      []string{"org:create_api_key", "user:profile", "user:inference"},
		ExtraHeaders: map[string]string{
			"anthropic-beta": anthropicOAuthBeta,
		},
	}
}

// OpenAIOAuth returns the OpenAI (Codex) login target.
func OpenAIOAuth() *OAuthProvider {
	return &OAuthProvider{
		Name:        "openai",
		ClientID:    openaiClientID,
		AuthURL:     openaiAuthURL,
		TokenURL:    openaiTokenURL,
		RedirectURI: openaiRedirectURI,
		Scopes:      []string{"openid", "profile", "email", "offline_access"},
	}
}

func (p *OAuthProvider) config() *oauth2.Config {
	return &oauth2.Config{
		ClientID:    p.ClientID,
		RedirectURL: p.RedirectURI,
		Scopes:      p.Scopes,
		Endpoint: oauth2.Endpoint{
			AuthURL:  p.AuthURL,
			TokenURL: p.TokenURL,
		},
	}
}

// BuildAuthURL assembles the authorization URL for a PKCE challenge.
// The verifier doubles as the state parameter.
func (p *OAuthProvider) BuildAuthURL(pkce *PKCEChallenge) string {
	return p.config().AuthCodeURL(pkce.Verifier,
		oauth2.SetAuthURLParam("code", "true"),
		oauth2.SetAuthURLParam("code_challenge", pkce.Challenge),
		oauth2.SetAuthURLParam("code_challenge_method", "S256"),
	)
}

// ExchangeCode trades an authorization code for tokens, asserting the
// returned state equals the verifier.
func (p *OAuthProvider) ExchangeCode(code, state, verifier string, token *cancel.Token) (*AuthTokens, error) {
	if state != verifier {
		return nil, ErrInvalidState
	}

	ctx, stop := token.Context(context.Background())
	defer stop()

	tok, err := p.config().Exchange(ctx, code,
		oauth2.SetAuthURLParam("code_verifier", verifier),
		oauth2.SetAuthURLParam("state", state),
	)
	if err != nil {
		if token.IsCancelled() {
			return nil, context.Canceled
		}
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}

	return tokensFromOAuth2(tok)
}

// Refresh performs a refresh-grant request. A 401 from the token
// endpoint maps to ErrReauthRequired; transient failures propagate.
// Refresh tokens rotate, so the returned pair replaces both tokens.
func (p *OAuthProvider) Refresh(refreshToken string, token *cancel.Token) (*AuthTokens, error) {
	ctx, stop := token.Context(context.Background())
	defer stop()

	src := p.config().TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})
	tok, err := src.Token()
	if err != nil {
		if token.IsCancelled() {
			return nil, context.Canceled
		}
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) && retrieveErr.Response != nil && retrieveErr.Response.StatusCode == 401 {
			return nil, ErrReauthRequired
		}
		return nil, fmt.Errorf("refresh tokens: %w", err)
	}

	refreshed, convErr := tokensFromOAuth2(tok)
	if convErr != nil {
		return nil, convErr
	}
	if refreshed.RefreshToken == "" {
		refreshed.RefreshToken = refreshToken
	}
	return refreshed, nil
}

func tokensFromOAuth2(tok *oauth2.Token) (*AuthTokens, error) {
	if tok.AccessToken == "" {
		return nil, fmt.Errorf("token endpoint returned no access token")
	}
	expiresAt := tok.Expiry
	if expiresAt.IsZero() {
		expiresAt = time.Now().Add(time.Hour)
	}
	return &AuthTokens{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		ExpiresAt:    expiresAt,
	}, nil
}
