package auth

import (
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"testing"
)

func TestGeneratePKCE(t *testing.T) {
	pkce, err := GeneratePKCE()
	if err != nil {
		t.Fatal(err)
	}
	if len(pkce.Verifier) != 128 {
		t.Errorf("verifier length = %d, want 128", len(pkce.Verifier))
	}
	for _, r := range pkce.Verifier {
		if !strings.ContainsRune(verifierAlphabet, r) {
			t.Fatalf("verifier contains non-URL-safe rune %q", r)
		}
	}

	// Property: challenge equals base64url(SHA256(verifier)), unpadded.
	sum := sha256.Sum256([]byte(pkce.Verifier))
	want := base64.RawURLEncoding.EncodeToString(sum[:])
	if pkce.Challenge != want {
		t.Errorf("challenge = %s, want %s", pkce.Challenge, want)
	}
	if strings.Contains(pkce.Challenge, "=") {
		t.Error("challenge must not be padded")
	}
}

func TestGeneratePKCEUnique(t *testing.T) {
	a, _ := GeneratePKCE()
	b, _ := GeneratePKCE()
	if a.Verifier == b.Verifier {
		t.Error("verifiers must be random")
	}
}

func TestParseCallback(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantCode  string
		wantState string
		wantErr   bool
	}{
		{"code hash state", "abc123#st-456", "abc123", "st-456", false},
		{"extra segment", "abc#state#extra", "", "", true},
		{"bare code", "abc123", "", "", true},
		{"empty", "  ", "", "", true},
		{"trailing hash", "abc#", "", "", true},
		{"leading hash", "#state", "", "", true},
		{
			"redirect url",
			"https://console.anthropic.com/oauth/code/callback?code=xyz&state=st9",
			"xyz", "st9", false,
		},
		{"url missing state", "https://example.com/cb?code=xyz", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, state, err := ParseCallback(tt.input)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			if code != tt.wantCode || state != tt.wantState {
				t.Errorf("got (%s, %s), want (%s, %s)", code, state, tt.wantCode, tt.wantState)
			}
		})
	}
}

func TestBuildAuthURL(t *testing.T) {
	pkce := &PKCEChallenge{Verifier: "v-123", Challenge: "c-456"}
	u := AnthropicOAuth().BuildAuthURL(pkce)

	for _, fragment := range []string{
		"response_type=code",
		"code_challenge=c-456",
		"code_challenge_method=S256",
		"state=v-123",
		"client_id=" + anthropicClientID,
	} {
		if !strings.Contains(u, fragment) {
			t.Errorf("auth URL missing %s: %s", fragment, u)
		}
	}
}

func TestValidateAPIKey(t *testing.T) {
	tests := []struct {
		provider string
		key      string
		wantErr  bool
	}{
		{"anthropic", "sk-ant-abc123", false},
		{"anthropic", "sk-abc123", true},
		{"anthropic", "", true},
		{"openai", "sk-" + strings.Repeat("a", 20), false},
		{"openai", "sk-short", true},
		{"openai", "pk-" + strings.Repeat("a", 20), true},
		{"gemini", "anything-goes", false},
	}

	for _, tt := range tests {
		t.Run(tt.provider+"/"+tt.key, func(t *testing.T) {
			err := ValidateAPIKey(tt.provider, tt.key)
			if (err != nil) != tt.wantErr {
				t.Errorf("err = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
