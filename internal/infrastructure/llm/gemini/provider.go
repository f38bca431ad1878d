package gemini

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/steerdev/steer/internal/domain/entity"
	"github.com/steerdev/steer/internal/domain/service"
	"github.com/steerdev/steer/internal/infrastructure/llm"
	"github.com/steerdev/steer/pkg/cancel"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com"

func init() {
	llm.RegisterFactory("gemini", func(cfg llm.ProviderConfig, _ llm.HeaderSource, logger *zap.Logger) service.Provider {
		return New(cfg, logger)
	})
}

// Provider implements the generateContent API. Authentication rides as
// a ?key= query parameter rather than a header.
type Provider struct {
	name    string
	baseURL string
	apiKey  string
	client  *http.Client
	logger  *zap.Logger
}

// New creates a Gemini adapter.
func New(cfg llm.ProviderConfig, logger *zap.Logger) *Provider {
	name := cfg.Name
	if name == "" {
		name = "gemini"
	}
	return &Provider{
		name:    name,
		baseURL: llm.NormalizeBaseURL(cfg.BaseURL, defaultBaseURL),
		apiKey:  cfg.APIKey,
		client:  llm.NewHTTPClient(),
		logger:  logger.With(zap.String("provider", name), zap.String("type", "gemini")),
	}
}

var _ service.Provider = (*Provider)(nil)

func (p *Provider) Name() string { return p.name }

func (p *Provider) endpoint(model string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		p.baseURL, url.PathEscape(model), url.QueryEscape(p.apiKey))
}

// toolNamesByID indexes tool-call names so functionResponse parts,
// which this API keys by name, can be matched to tool_use ids.
func toolNamesByID(history []entity.Message) map[string]string {
	names := make(map[string]string)
	for _, m := range history {
		if am, ok := m.(*entity.AssistantMessage); ok {
			for _, call := range am.ToolCalls() {
				names[call.ID] = call.Name
			}
		}
	}
	return names
}

func (p *Provider) buildRequest(req *service.CompletionRequest) *Request {
	history := llm.RepairDanglingToolCalls(req.Messages)
	names := toolNamesByID(history)

	apiReq := &Request{}

	if req.SystemPrompt != "" {
		apiReq.SystemInstruction = &Content{Parts: []Part{{Text: req.SystemPrompt}}}
	}

	for _, m := range history {
		switch msg := m.(type) {
		case *entity.UserMessage:
			text := llm.FlattenUserText(msg.Content)
			if text == "" {
				continue
			}
			apiReq.Contents = append(apiReq.Contents, Content{
				Role:  "user",
				Parts: []Part{{Text: text}},
			})

		case *entity.AssistantMessage:
			var parts []Part
			for _, c := range msg.Content {
				switch v := c.(type) {
				case entity.TextBlock:
					if v.Text != "" {
						parts = append(parts, Part{Text: v.Text})
					}
				case entity.ToolCallContent:
					parts = append(parts, Part{FunctionCall: &FunctionCall{
						Name: v.Name,
						Args: llm.DefaultParameters(v.Parameters),
					}})
				case entity.ThoughtContent:
					// Thought parts are not replayed; the API treats
					// them as server-side output only.
				}
			}
			if len(parts) > 0 {
				apiReq.Contents = append(apiReq.Contents, Content{Role: "model", Parts: parts})
			}

		case *entity.ToolMessage:
			name := names[msg.ToolUseID]
			apiReq.Contents = append(apiReq.Contents, Content{
				Role: "user",
				Parts: []Part{{FunctionResponse: &FunctionResponse{
					Name:     name,
					Response: map[string]any{"output": msg.Result.LLMFormat()},
				}}},
			})
		}
	}

	if len(req.Tools) > 0 {
		decls := make([]FunctionDecl, 0, len(req.Tools))
		for _, s := range req.Tools {
			decls = append(decls, FunctionDecl{
				Name:        s.Name,
				Description: s.Description,
				Parameters:  SimplifySchema(s.InputSchema),
			})
		}
		apiReq.Tools = []ToolDecls{{FunctionDeclarations: decls}}
	}

	if opts := req.Options; opts != nil {
		gc := &GenerationConfig{
			Temperature:     opts.Temperature,
			TopP:            opts.TopP,
			MaxOutputTokens: opts.MaxTokens,
		}
		if opts.ThinkingEnabled {
			budget := opts.ThinkingBudget
			if budget <= 0 {
				budget = 4096
			}
			gc.ThinkingConfig = &ThinkingConfig{IncludeThoughts: true, ThinkingBudget: budget}
		}
		apiReq.GenerationConfig = gc
	}

	return apiReq
}

// Complete implements service.Provider.
func (p *Provider) Complete(req *service.CompletionRequest, token *cancel.Token) (*service.CompletionResponse, error) {
	body, apiErr := llm.PostJSON(p.client, p.name, p.endpoint(req.Model), nil, p.buildRequest(req), token)
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

	if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
		return nil, &service.ApiError{
			Kind:     service.ErrKindRequestBlocked,
			Provider: p.name,
			Message:  fmt.Sprintf("prompt blocked: %s", resp.PromptFeedback.BlockReason),
		}
	}
	if len(resp.Candidates) == 0 {
		return nil, &service.ApiError{
			Kind:     service.ErrKindNoChoices,
			Provider: p.name,
			Message:  "response contained no candidates",
		}
	}

	candidate := resp.Candidates[0]
	if candidate.FinishReason == "SAFETY" {
		return nil, &service.ApiError{
			Kind:     service.ErrKindRequestBlocked,
			Provider: p.name,
			Message:  "candidate blocked by safety filter",
		}
	}

	var content []entity.AssistantContent
	for i, part := range candidate.Content.Parts {
		switch {
		case part.FunctionCall != nil:
			content = append(content, entity.ToolCallContent{
				// This API does not assign call ids; mint one so tool
				// results can correlate internally.
				ID:         fmt.Sprintf("call-%d-%s", i, entity.NewMessageID()),
				Name:       part.FunctionCall.Name,
				Parameters: llm.DefaultParameters(part.FunctionCall.Args),
			})
		case part.Thought:
			content = append(content, entity.ThoughtContent{
				Thought: entity.SimpleThought{Text: part.Text},
			})
		case part.Text != "":
			content = append(content, entity.TextBlock{Text: part.Text})
		}
	}

	result := &service.CompletionResponse{
		Content: content,
		Model:   resp.ModelVersion,
	}
	if result.Model == "" {
		result.Model = req.Model
	}
	if resp.UsageMetadata != nil {
		result.Usage = service.TokenUsage{
			InputTokens:  resp.UsageMetadata.PromptTokenCount,
			OutputTokens: resp.UsageMetadata.CandidatesTokenCount + resp.UsageMetadata.ThoughtsTokenCount,
		}
	}
	return result, nil
}
