package anthropic

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/steerdev/steer/internal/domain/service"
	"github.com/steerdev/steer/internal/infrastructure/llm"
	"github.com/steerdev/steer/pkg/cancel"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	messagesPath     = "/v1/messages"
	anthropicVersion = "2023-06-01"

	// interleavedThinkingBeta lets supported models emit thinking
	// between tool calls.
	interleavedThinkingBeta = "interleaved-thinking-2025-05-14"

	defaultMaxTokens = 8192
)

func init() {
	llm.RegisterFactory("anthropic", func(cfg llm.ProviderConfig, headers llm.HeaderSource, logger *zap.Logger) service.Provider {
		return New(cfg, headers, logger)
	})
}

// Provider implements the Anthropic Messages API natively.
type Provider struct {
	name    string
	baseURL string
	headers llm.HeaderSource
	client  *http.Client
	logger  *zap.Logger
}

// New creates an Anthropic adapter. When headers is nil an x-api-key
// header set is derived from the configured key.
func New(cfg llm.ProviderConfig, headers llm.HeaderSource, logger *zap.Logger) *Provider {
	if headers == nil {
		headers = llm.StaticHeaders{"x-api-key": cfg.APIKey}
	}
	name := cfg.Name
	if name == "" {
		name = "anthropic"
	}
	return &Provider{
		name:    name,
		baseURL: llm.NormalizeBaseURL(cfg.BaseURL, defaultBaseURL),
		headers: headers,
		client:  llm.NewHTTPClient(),
		logger:  logger.With(zap.String("provider", name), zap.String("type", "anthropic")),
	}
}

var (
	_ service.Provider          = (*Provider)(nil)
	_ service.StreamingProvider = (*Provider)(nil)
)

func (p *Provider) Name() string { return p.name }

// endpoint appends the canonical path unless the base URL override
// already carries it.
func (p *Provider) endpoint() string {
	if strings.HasSuffix(p.baseURL, messagesPath) {
		return p.baseURL
	}
	return p.baseURL + messagesPath
}

func (p *Provider) requestHeaders(token *cancel.Token) (map[string]string, *service.ApiError) {
	auth, err := p.headers.AuthHeaders(token)
	if err != nil {
		if token.IsCancelled() {
			return nil, service.NewCancelledError(p.name)
		}
		return nil, &service.ApiError{
			Kind:     service.ErrKindAuthentication,
			Provider: p.name,
			Message:  "resolve auth headers",
			Cause:    err,
		}
	}

	headers := map[string]string{"anthropic-version": anthropicVersion}
	for k, v := range auth {
		headers[k] = v
	}
	return headers, nil
}

func (p *Provider) buildRequest(req *service.CompletionRequest) *Request {
	apiReq := &Request{
		Model:     req.Model,
		MaxTokens: req.Options.EffectiveMaxTokens(defaultMaxTokens),
		Messages:  buildMessages(req.Messages),
		Tools:     convertTools(req),
	}

	if req.SystemPrompt != "" {
		apiReq.System = []SystemBlock{{
			Type:         "text",
			Text:         req.SystemPrompt,
			CacheControl: &CacheControl{Type: "ephemeral"},
		}}
	}

	if opts := req.Options; opts != nil {
		apiReq.Temperature = opts.Temperature
		apiReq.TopP = opts.TopP
		if opts.ThinkingEnabled {
			budget := opts.ThinkingBudget
			if budget <= 0 {
				budget = 4096
			}
			apiReq.Thinking = &ThinkingConfig{Type: "enabled", BudgetTokens: budget}
			// Thinking consumes output budget; grow max_tokens so the
			// visible reply is not starved.
			if apiReq.MaxTokens <= budget {
				apiReq.MaxTokens = budget + defaultMaxTokens
			}
		}
	}

	return apiReq
}

// Complete implements service.Provider.
func (p *Provider) Complete(req *service.CompletionRequest, token *cancel.Token) (*service.CompletionResponse, error) {
	headers, hErr := p.requestHeaders(token)
	if hErr != nil {
		return nil, hErr
	}
	if req.Options != nil && req.Options.ThinkingEnabled {
		headers["anthropic-beta"] = appendBeta(headers["anthropic-beta"], interleavedThinkingBeta)
	}

	body, apiErr := llm.PostJSON(p.client, p.name, p.endpoint(), headers, p.buildRequest(req), token)
	if apiErr != nil {
		return nil, apiErr
	}

	var resp Response
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &service.ApiError{
			Kind:     service.ErrKindResponseParsing,
			Provider: p.name,
			Message:  "decode response",
			Cause:    err,
		}
	}
	if resp.Error != nil {
		return nil, &service.ApiError{
			Kind:     service.ErrKindUnknown,
			Provider: p.name,
			Message:  resp.Error.Message,
		}
	}
	if resp.StopReason == "refusal" {
		return nil, &service.ApiError{
			Kind:     service.ErrKindRequestBlocked,
			Provider: p.name,
			Message:  "model refused the request",
		}
	}

	return &service.CompletionResponse{
		Content: parseContent(resp.Content),
		Model:   resp.Model,
		Usage: service.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}

// CompleteStream implements service.StreamingProvider. The decoder
// feeds StreamChunk values to deltaCh and returns the same final
// response a non-streaming call would have produced.
func (p *Provider) CompleteStream(req *service.CompletionRequest, deltaCh chan<- service.StreamChunk, token *cancel.Token) (*service.CompletionResponse, error) {
	headers, hErr := p.requestHeaders(token)
	if hErr != nil {
		return nil, hErr
	}
	if req.Options != nil && req.Options.ThinkingEnabled {
		headers["anthropic-beta"] = appendBeta(headers["anthropic-beta"], interleavedThinkingBeta)
	}

	apiReq := p.buildRequest(req)
	apiReq.Stream = true

	body, stop, apiErr := llm.OpenStream(p.client, p.name, p.endpoint(), headers, apiReq, token)
	if apiErr != nil {
		return nil, apiErr
	}
	defer stop()
	defer body.Close()

	return decodeStream(p.name, body, deltaCh, token, p.logger)
}

func appendBeta(existing, flag string) string {
	if existing == "" {
		return flag
	}
	if strings.Contains(existing, flag) {
		return existing
	}
	return existing + "," + flag
}
