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

const (
	defaultBaseURL = "https://api.openai.com"
	chatPath       = "/v1/chat/completions"
)

func init() {
	llm.RegisterFactory("openai", func(cfg llm.ProviderConfig, headers llm.HeaderSource, logger *zap.Logger) service.Provider {
		return NewChat(cfg, headers, logger)
	})
}

// ChatProvider implements the Chat Completions API.
type ChatProvider struct {
	name    string
	baseURL string
	headers llm.HeaderSource
	client  *http.Client
	logger  *zap.Logger
}

// NewChat creates a Chat Completions adapter.
func NewChat(cfg llm.ProviderConfig, headers llm.HeaderSource, logger *zap.Logger) *ChatProvider {
	if headers == nil {
		headers = llm.StaticHeaders{"Authorization": "Bearer " + cfg.APIKey}
	}
	name := cfg.Name
	if name == "" {
		name = "openai"
	}
	return &ChatProvider{
		name:    name,
		baseURL: llm.NormalizeBaseURL(cfg.BaseURL, defaultBaseURL),
		headers: headers,
		client:  llm.NewHTTPClient(),
		logger:  logger.With(zap.String("provider", name), zap.String("type", "openai")),
	}
}

var (
	_ service.Provider          = (*ChatProvider)(nil)
	_ service.StreamingProvider = (*ChatProvider)(nil)
)

func (p *ChatProvider) Name() string { return p.name }

func (p *ChatProvider) endpoint() string {
	if strings.HasSuffix(p.baseURL, chatPath) {
		return p.baseURL
	}
	return p.baseURL + chatPath
}

// isReasoningModel reports whether the model accepts reasoning_effort.
func isReasoningModel(model string) bool {
	return strings.HasPrefix(model, "o1") ||
		strings.HasPrefix(model, "o3") ||
		strings.HasPrefix(model, "o4") ||
		strings.HasPrefix(model, "gpt-5")
}

// BuildChatMessages flattens the internal history into role-tagged
// chat messages. Shared by the chat and xAI adapters.
func BuildChatMessages(history []entity.Message, systemPrompt string) []ChatMessage {
	history = llm.RepairDanglingToolCalls(history)

	var out []ChatMessage
	if systemPrompt != "" {
		out = append(out, ChatMessage{Role: "system", Content: systemPrompt})
	}

	for _, m := range history {
		switch msg := m.(type) {
		case *entity.UserMessage:
			text := llm.FlattenUserText(msg.Content)
			if text == "" {
				continue
			}
			out = append(out, ChatMessage{Role: "user", Content: text})

		case *entity.AssistantMessage:
			chat := ChatMessage{Role: "assistant"}
			for _, c := range msg.Content {
				switch v := c.(type) {
				case entity.TextBlock:
					if chat.Content != "" {
						chat.Content += "\n"
					}
					chat.Content += v.Text
				case entity.ToolCallContent:
					args, err := json.Marshal(llm.DefaultParameters(v.Parameters))
					if err != nil {
						args = []byte("{}")
					}
					chat.ToolCalls = append(chat.ToolCalls, ChatToolCall{
						ID:   v.ID,
						Type: "function",
						Function: ChatFunction{
							Name:      v.Name,
							Arguments: string(args),
						},
					})
				case entity.ThoughtContent:
					// This API has no replayable thinking shape; signed
					// and redacted blocks are never echoed back.
				}
			}
			if chat.Content != "" || len(chat.ToolCalls) > 0 {
				out = append(out, chat)
			}

		case *entity.ToolMessage:
			out = append(out, ChatMessage{
				Role:       "tool",
				Content:    msg.Result.LLMFormat(),
				ToolCallID: msg.ToolUseID,
			})
		}
	}
	return out
}

// BuildChatTools converts tool schemas to the function-tool shape.
func BuildChatTools(schemas []ChatToolFuncDef) []ChatTool {
	var tools []ChatTool
	for _, s := range schemas {
		tools = append(tools, ChatTool{Type: "function", Function: s})
	}
	return tools
}

func (p *ChatProvider) buildRequest(req *service.CompletionRequest) *ChatRequest {
	apiReq := &ChatRequest{
		Model:    req.Model,
		Messages: BuildChatMessages(req.Messages, req.SystemPrompt),
	}

	var defs []ChatToolFuncDef
	for _, s := range req.Tools {
		defs = append(defs, ChatToolFuncDef{
			Name:        s.Name,
			Description: s.Description,
			Parameters:  s.InputSchema,
		})
	}
	apiReq.Tools = BuildChatTools(defs)

	if opts := req.Options; opts != nil {
		apiReq.Temperature = opts.Temperature
		apiReq.TopP = opts.TopP
		apiReq.MaxTokens = opts.MaxTokens
		if opts.ThinkingEnabled && isReasoningModel(req.Model) {
			apiReq.ReasoningEffort = "medium"
		}
	}

	return apiReq
}

// Complete implements service.Provider.
func (p *ChatProvider) Complete(req *service.CompletionRequest, token *cancel.Token) (*service.CompletionResponse, error) {
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

	var resp ChatResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, &service.ApiError{
			Kind:     service.ErrKindResponseParsing,
			Provider: p.name,
			Message:  "decode response",
			Cause:    err,
		}
	}

	return ParseChatResponse(p.name, &resp)
}

// CompleteStream implements service.StreamingProvider.
func (p *ChatProvider) CompleteStream(req *service.CompletionRequest, deltaCh chan<- service.StreamChunk, token *cancel.Token) (*service.CompletionResponse, error) {
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

	apiReq := p.buildRequest(req)
	apiReq.Stream = true

	body, stop, apiErr := llm.OpenStream(p.client, p.name, p.endpoint(), auth, apiReq, token)
	if apiErr != nil {
		return nil, apiErr
	}
	defer stop()
	defer body.Close()

	return decodeChatStream(p.name, body, deltaCh, token, p.logger)
}

// ParseChatResponse converts a chat response to the internal shape.
// Shared with the xAI adapter, whose wire format matches. A vendor
// reasoning_content field passes through as a simple thought.
func ParseChatResponse(provider string, resp *ChatResponse) (*service.CompletionResponse, error) {
	if len(resp.Choices) == 0 {
		return nil, &service.ApiError{
			Kind:     service.ErrKindNoChoices,
			Provider: provider,
			Message:  "response contained no choices",
		}
	}

	choice := resp.Choices[0]
	var content []entity.AssistantContent

	if choice.Message.ReasoningContent != "" {
		content = append(content, entity.ThoughtContent{
			Thought: entity.SimpleThought{Text: choice.Message.ReasoningContent},
		})
	}
	if choice.Message.Content != "" {
		content = append(content, entity.TextBlock{Text: choice.Message.Content})
	}
	for _, tc := range choice.Message.ToolCalls {
		var params map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &params); err != nil {
			params = map[string]any{}
		}
		content = append(content, entity.ToolCallContent{
			ID:         tc.ID,
			Name:       tc.Function.Name,
			Parameters: params,
		})
	}

	if choice.FinishReason == "content_filter" {
		return nil, &service.ApiError{
			Kind:     service.ErrKindRequestBlocked,
			Provider: provider,
			Message:  "response blocked by content filter",
		}
	}

	return &service.CompletionResponse{
		Content: content,
		Model:   resp.Model,
		Usage: service.TokenUsage{
			InputTokens:  resp.Usage.PromptTokens,
			OutputTokens: resp.Usage.CompletionTokens,
		},
	}, nil
}
