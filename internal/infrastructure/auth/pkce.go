// Package auth manages credentials for the provider adapters: API
// keys, OAuth2 tokens with PKCE login, and refresh-before-expiry. The
// credential store sits behind a read-friendly lock; a refresh
// exchange holds exclusive access for its duration.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// verifierLength is the PKCE verifier size in characters.
const verifierLength = 128

// verifierAlphabet is the URL-safe unreserved character set.
const verifierAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789-._~"

// PKCEChallenge is a generated verifier/challenge pair. The state
// parameter of the authorization request equals the verifier.
type PKCEChallenge struct {
	Verifier  string
	Challenge string
}

// GeneratePKCE creates a 128-character random verifier and its S256
// challenge: base64url(SHA256(verifier)) without padding.
func GeneratePKCE() (*PKCEChallenge, error) {
	raw := make([]byte, verifierLength)
	if _, err := rand.Read(raw); err != nil {
		return nil, fmt.Errorf("generate PKCE verifier: %w", err)
	}
	chars := make([]byte, verifierLength)
	for i, b := range raw {
		chars[i] = verifierAlphabet[int(b)%len(verifierAlphabet)]
	}
	verifier := string(chars)
	return &PKCEChallenge{
		Verifier:  verifier,
		Challenge: ComputeChallenge(verifier),
	}, nil
}

// ComputeChallenge derives the S256 challenge for a verifier.
func ComputeChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// ParseCallback extracts (code, state) from the value the user pastes
// back: either "code#state" or a full redirect URL carrying code and
// state query parameters. "code#state#extra" and a bare code are
// rejected.
func ParseCallback(input string) (code, state string, err error) {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return "", "", fmt.Errorf("empty callback input")
	}

	if strings.HasPrefix(trimmed, "http://") || strings.HasPrefix(trimmed, "https://") {
		u, parseErr := url.Parse(trimmed)
		if parseErr != nil {
			return "", "", fmt.Errorf("invalid redirect URL: %w", parseErr)
		}
		code = u.Query().Get("code")
		state = u.Query().Get("state")
		if code == "" || state == "" {
			return "", "", fmt.Errorf("redirect URL missing code or state parameter")
		}
		return code, state, nil
	}

	parts := strings.Split(trimmed, "#")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid callback code format, expected code#state")
	}
	return parts[0], parts[1], nil
}
