package openai

import (
	"encoding/json"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/steerdev/steer/internal/domain/entity"
	"github.com/steerdev/steer/internal/domain/service"
	"github.com/steerdev/steer/internal/infrastructure/llm"
	"github.com/steerdev/steer/pkg/cancel"
)

const responsesPath = "/v1/responses"

func init() {
	llm.RegisterFactory("openai_responses", func(cfg llm.ProviderConfig, headers llm.HeaderSource, logger *zap.Logger) service.Provider {
		return NewResponses(cfg, headers, logger)
	})
}

// ResponsesProvider implements the Responses API: structured input
// items in, typed output items out, with reasoning summaries extracted
// as simple thoughts.
type ResponsesProvider struct {
	name    string
	baseURL string
	headers llm.HeaderSource
	client  *http.Client
	logger  *zap.Logger
}

// NewResponses creates a Responses API adapter.
func NewResponses(cfg llm.ProviderConfig, headers llm.HeaderSource, logger *zap.Logger) *ResponsesProvider {
	if headers == nil {
		headers = llm.StaticHeaders{"Authorization": "Bearer " + cfg.APIKey}
	}
	name := cfg.Name
	if name == "" {
		name = "openai_responses"
	}
	return &ResponsesProvider{
		name:    name,
		baseURL: llm.NormalizeBaseURL(cfg.BaseURL, defaultBaseURL),
		headers: headers,
		client:  llm.NewHTTPClient(),
		logger:  logger.With(zap.String("provider", name), zap.String("type", "openai_responses")),
	}
}

var _ service.Provider = (*ResponsesProvider)(nil)

func (p *ResponsesProvider) Name() string { return p.name }

func (p *ResponsesProvider) endpoint() string {
	if strings.HasSuffix(p.baseURL, responsesPath) {
		return p.baseURL
	}
	return p.baseURL + responsesPath
}

func textContent(partType, text string) json.RawMessage {
	raw, _ := json.Marshal([]ContentPart{{Type: partType, Text: text}})
	return raw
}

func (p *ResponsesProvider) buildRequest(req *service.CompletionRequest) *ResponsesRequest {
	history := llm.RepairDanglingToolCalls(req.Messages)

	apiReq := &ResponsesRequest{
		Model:        req.Model,
		Instructions: req.SystemPrompt,
	}

	for _, m := range history {
		switch msg := m.(type) {
		case *entity.UserMessage:
			text := llm.FlattenUserText(msg.Content)
			if text == "" {
				continue
			}
			apiReq.Input = append(apiReq.Input, ResponseItem{
				Type:    "message",
				Role:    "user",
				Content: textContent("input_text", text),
			})

		case *entity.AssistantMessage:
			if text := entity.AssistantText(msg.Content); text != "" {
				apiReq.Input = append(apiReq.Input, ResponseItem{
					Type:    "message",
					Role:    "assistant",
					Content: textContent("output_text", text),
				})
			}
			for _, call := range msg.ToolCalls() {
				args, err := json.Marshal(llm.DefaultParameters(call.Parameters))
				if err != nil {
					args = []byte("{}")
				}
				apiReq.Input = append(apiReq.Input, ResponseItem{
					Type:      "function_call",
					CallID:    call.ID,
					Name:      call.Name,
					Arguments: string(args),
				})
			}
			// Thought blocks are not replayed: reasoning items are
			// server-managed in this API.

		case *entity.ToolMessage:
			apiReq.Input = append(apiReq.Input, ResponseItem{
				Type:   "function_call_output",
				CallID: msg.ToolUseID,
				Output: msg.Result.LLMFormat(),
			})
		}
	}

	for _, s := range req.Tools {
		apiReq.Tools = append(apiReq.Tools, ResponsesTool{
			Type:        "function",
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.InputSchema,
		})
	}

	if opts := req.Options; opts != nil {
		apiReq.Temperature = opts.Temperature
		apiReq.TopP = opts.TopP
		apiReq.MaxOutputTokens = opts.MaxTokens
		if opts.ThinkingEnabled {
			apiReq.Reasoning = &ReasoningConfig{Effort: "medium", Summary: "auto"}
		}
	}

	return apiReq
}

// Complete implements service.Provider.
func (p *ResponsesProvider) Complete(req *service.CompletionRequest, token *cancel.Token) (*service.CompletionResponse, error) {
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

	var resp ResponsesResponse
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

	return p.parseOutput(&resp)
}

// parseOutput converts output items to internal content: message items
// become text, function calls become tool calls, reasoning summaries
// become simple thoughts.
func (p *ResponsesProvider) parseOutput(resp *ResponsesResponse) (*service.CompletionResponse, error) {
	var content []entity.AssistantContent

	for _, item := range resp.Output {
		switch item.Type {
		case "message":
			var parts []ContentPart
			if err := json.Unmarshal(item.Content, &parts); err != nil {
				continue
			}
			for _, part := range parts {
				if part.Type == "output_text" && part.Text != "" {
					content = append(content, entity.TextBlock{Text: part.Text})
				}
			}
		case "function_call":
			var params map[string]any
			if err := json.Unmarshal([]byte(item.Arguments), &params); err != nil {
				params = map[string]any{}
			}
			content = append(content, entity.ToolCallContent{
				ID:         item.CallID,
				Name:       item.Name,
				Parameters: params,
			})
		case "reasoning":
			var summary strings.Builder
			for _, s := range item.Summary {
				if s.Text != "" {
					if summary.Len() > 0 {
						summary.WriteString("\n")
					}
					summary.WriteString(s.Text)
				}
			}
			if summary.Len() > 0 {
				content = append(content, entity.ThoughtContent{
					Thought: entity.SimpleThought{Text: summary.String()},
				})
			}
		default:
			content = append(content, entity.UnknownContent{Type: item.Type})
		}
	}

	if len(content) == 0 {
		return nil, &service.ApiError{
			Kind:     service.ErrKindNoChoices,
			Provider: p.name,
			Message:  "response contained no output",
		}
	}

	return &service.CompletionResponse{
		Content: content,
		Model:   resp.Model,
		Usage: service.TokenUsage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}, nil
}
