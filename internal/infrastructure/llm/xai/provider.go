// Package xai adapts the xAI chat endpoint. The wire format matches
// OpenAI Chat Completions; reasoning models take a low/high
// reasoning_effort and return visible reasoning in reasoning_content,
// which passes through as a simple thought.
package xai

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/steerdev/steer/internal/domain/service"
	"github.com/steerdev/steer/internal/infrastructure/llm"
	"github.com/steerdev/steer/internal/infrastructure/llm/openai"
	"github.com/steerdev/steer/pkg/cancel"
)

const (
	defaultBaseURL = "https://api.x.ai"
	chatPath       = "/v1/chat/completions"
)

func init() {
	llm.RegisterFactory("xai", func(cfg llm.ProviderConfig, headers llm.HeaderSource, logger *zap.Logger) service.Provider {
		return New(cfg, headers, logger)
	})
}

// Provider implements the xAI chat endpoint.
type Provider struct {
	name    string
	baseURL string
	headers llm.HeaderSource
	client  *http.Client
	logger  *zap.Logger
}

// New creates an xAI adapter.
func New(cfg llm.ProviderConfig, headers llm.HeaderSource, logger *zap.Logger) *Provider {
	if headers == nil {
		headers = llm.StaticHeaders{"Authorization": "Bearer " + cfg.APIKey}
	}
	name := cfg.Name
	if name == "" {
		name = "xai"
	}
	return &Provider{
		name:    name,
		baseURL: llm.NormalizeBaseURL(cfg.BaseURL, defaultBaseURL),
		headers: headers,
		client:  llm.NewHTTPClient(),
		logger:  logger.With(zap.String("provider", name), zap.String("type", "xai")),
	}
}

var _ service.Provider = (*Provider)(nil)

func (p *Provider) Name() string { return p.name }

func (p *Provider) endpoint() string {
	if strings.HasSuffix(p.baseURL, chatPath) {
		return p.baseURL
	}
	return p.baseURL + chatPath
}

// isReasoningModel reports whether the model accepts reasoning_effort.
func isReasoningModel(model string) bool {
	return strings.Contains(model, "grok-3-mini") || strings.Contains(model, "reasoning")
}

func (p *Provider) buildRequest(req *service.CompletionRequest) *openai.ChatRequest {
	apiReq := &openai.ChatRequest{
		Model:    req.Model,
		Messages: openai.BuildChatMessages(req.Messages, req.SystemPrompt),
	}

	var defs []openai.ChatToolFuncDef
	for _, s := range req.Tools {
		defs = append(defs, openai.ChatToolFuncDef{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.InputSchema,
		})
	}
	apiReq.Tools = openai.BuildChatTools(defs)

	if opts := req.Options; opts != nil {
		apiReq.Temperature = opts.Temperature
		apiReq.TopP = opts.TopP
		apiReq.MaxTokens = opts.MaxTokens
		if opts.ThinkingEnabled && isReasoningModel(req.Model) {
			// This endpoint only accepts low or high.
			apiReq.ReasoningEffort = "high"
		}
	}

	return apiReq
}

// Complete implements service.Provider.
func (p *Provider) Complete(req *service.CompletionRequest, token *cancel.Token) (*service.CompletionResponse, error) {
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

	body, apiErr := llm.PostJSON(p.client, p.name, p.endpoint(), auth, p.buildRequest(req), token)
	if apiErr != nil {
		return nil, apiErr
	}

	var resp openai.ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &service.ApiError{
			Kind:     service.ErrKindResponseParsing,
			Provider: p.name,
			Message:  "decode response",
			Cause:    err,
		}
	}

	return openai.ParseChatResponse(p.name, &resp)
}
