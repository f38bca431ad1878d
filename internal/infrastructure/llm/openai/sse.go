package openai

import (
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/steerdev/steer/internal/domain/entity"
	"github.com/steerdev/steer/internal/domain/service"
	"github.com/steerdev/steer/internal/infrastructure/llm"
	"github.com/steerdev/steer/pkg/cancel"
)

// Chat Completions streaming types. Deltas arrive as partial choice
// messages; tool calls fragment across chunks keyed by index.

// chatStreamChunk is one streamed chunk.
type chatStreamChunk struct {
	ID      string             `json:"id"`
	Model   string             `json:"model"`
	Choices []chatStreamChoice `json:"choices"`
	Usage   *ChatUsage         `json:"usage,omitempty"`
}

type chatStreamChoice struct {
	Index        int             `json:"index"`
	Delta        chatStreamDelta `json:"delta"`
	FinishReason string          `json:"finish_reason,omitempty"`
}

type chatStreamDelta struct {
	Content          string                `json:"content,omitempty"`
	ReasoningContent string                `json:"reasoning_content,omitempty"`
	ToolCalls        []chatStreamToolDelta `json:"tool_calls,omitempty"`
}

type chatStreamToolDelta struct {
	Index    int    `json:"index"`
	ID       string `json:"id,omitempty"`
	Type     string `json:"type,omitempty"`
	Function struct {
		Name      string `json:"name,omitempty"`
		Arguments string `json:"arguments,omitempty"`
	} `json:"function"`
}

// chatToolAccumulator gathers one streamed tool call by index.
type chatToolAccumulator struct {
	id      string
	name    string
	args    strings.Builder
	started bool
}

// decodeChatStream consumes a Chat Completions SSE body. Some
// OpenAI-compatible endpoints never send [DONE], so finish_reason also
// terminates cleanly. The terminal chunk carries the same response a
// non-streaming call would have produced.
func decodeChatStream(provider string, body io.Reader, deltaCh chan<- service.StreamChunk, token *cancel.Token, logger *zap.Logger) (*service.CompletionResponse, error) {
	reader := llm.NewSSEReader(body)

	var text, thinking strings.Builder
	var model string
	var usage service.TokenUsage
	tools := make(map[int]*chatToolAccumulator)

	emit := func(chunk service.StreamChunk) bool {
		select {
		case deltaCh <- chunk:
			return true
		case <-token.Done():
			return false
		}
	}

	for {
		if token.IsCancelled() {
			return nil, service.NewCancelledError(provider)
		}

		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if token.IsCancelled() {
				return nil, service.NewCancelledError(provider)
			}
			if errors.Is(err, llm.ErrStreamStalled) {
				return nil, &service.ApiError{
					Kind:     service.ErrKindTimeout,
					Provider: provider,
					Message:  "stream stalled",
					Cause:    err,
				}
			}
			return nil, &service.ApiError{
				Kind:     service.ErrKindNetwork,
				Provider: provider,
				Message:  "stream read",
				Cause:    err,
			}
		}

		if ev.Data == "[DONE]" {
			break
		}

		var chunk chatStreamChunk
		if err := json.Unmarshal([]byte(ev.Data), &chunk); err != nil {
			logger.Debug("Skipping unparseable stream chunk", zap.Error(err))
			continue
		}

		if chunk.Model != "" {
			model = chunk.Model
		}
		if chunk.Usage != nil {
			usage.InputTokens = chunk.Usage.PromptTokens
			usage.OutputTokens = chunk.Usage.CompletionTokens
		}
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]

		if choice.Delta.Content != "" {
			text.WriteString(choice.Delta.Content)
			if !emit(service.StreamChunk{Kind: service.ChunkTextDelta, Delta: choice.Delta.Content}) {
				return nil, service.NewCancelledError(provider)
			}
		}
		if choice.Delta.ReasoningContent != "" {
			thinking.WriteString(choice.Delta.ReasoningContent)
			if !emit(service.StreamChunk{Kind: service.ChunkThinkingDelta, Delta: choice.Delta.ReasoningContent}) {
				return nil, service.NewCancelledError(provider)
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			acc, ok := tools[tc.Index]
			if !ok {
				acc = &chatToolAccumulator{}
				tools[tc.Index] = acc
			}
			if tc.ID != "" {
				acc.id = tc.ID
			}
			if tc.Function.Name != "" {
				acc.name = tc.Function.Name
			}
			if tc.Function.Arguments != "" {
				acc.args.WriteString(tc.Function.Arguments)
				if acc.started {
					if !emit(service.StreamChunk{
						Kind:       service.ChunkToolUseInputDelta,
						ToolCallID: acc.id,
						InputDelta: tc.Function.Arguments,
					}) {
						return nil, service.NewCancelledError(provider)
					}
				}
			}
			// The start surfaces only once both id and name are known —
			// this API may deliver them in separate fragments.
			if !acc.started && acc.id != "" && acc.name != "" {
				acc.started = true
				if !emit(service.StreamChunk{
					Kind:       service.ChunkToolUseStart,
					ToolCallID: acc.id,
					ToolName:   acc.name,
				}) {
					return nil, service.NewCancelledError(provider)
				}
			}
		}

		if choice.FinishReason != "" {
			if !emit(service.StreamChunk{Kind: service.ChunkContentBlockStop, BlockIndex: choice.Index}) {
				return nil, service.NewCancelledError(provider)
			}
			if choice.FinishReason == "content_filter" {
				apiErr := &service.ApiError{
					Kind:     service.ErrKindRequestBlocked,
					Provider: provider,
					Message:  "response blocked by content filter",
				}
				emit(service.StreamChunk{Kind: service.ChunkError, Err: apiErr})
				return nil, apiErr
			}
			// Don't wait for [DONE]; some compatible endpoints omit it.
			break
		}
	}

	resp := &service.CompletionResponse{Model: model, Usage: usage}
	if thinking.Len() > 0 {
		resp.Content = append(resp.Content, entity.ThoughtContent{
			Thought: entity.SimpleThought{Text: thinking.String()},
		})
	}
	if text.Len() > 0 {
		resp.Content = append(resp.Content, entity.TextBlock{Text: text.String()})
	}

	indices := make([]int, 0, len(tools))
	for idx := range tools {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	for _, idx := range indices {
		acc := tools[idx]
		var params map[string]any
		if err := json.Unmarshal([]byte(acc.args.String()), &params); err != nil {
			params = map[string]any{}
		}
		resp.Content = append(resp.Content, entity.ToolCallContent{
			ID:         acc.id,
			Name:       acc.name,
			Parameters: params,
		})
	}

	if !emit(service.StreamChunk{Kind: service.ChunkMessageComplete, Response: resp}) {
		return nil, service.NewCancelledError(provider)
	}
	return resp, nil
}
