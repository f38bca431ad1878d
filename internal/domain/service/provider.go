// Package service holds the engine core: the conversation store, the
// agent executor loop, the retry policy, and the contracts the
// infrastructure layer implements (providers, credential sources).
package service

import (
	"github.com/steerdev/steer/internal/domain/entity"
	"github.com/steerdev/steer/internal/domain/tool"
	"github.com/steerdev/steer/internal/domain/valueobject"
	"github.com/steerdev/steer/pkg/cancel"
)

// CompletionRequest carries one model call. Messages are the full
// thread view in temporal order; adapters own the translation to each
// vendor's wire format.
type CompletionRequest struct {
	Model        string
	Messages     []entity.Message
	SystemPrompt string
	Tools        []tool.Schema
	Options      *valueobject.CallOptions
}

// TokenUsage reports token consumption for one call.
type TokenUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns total token count.
func (u TokenUsage) Total() int {
	return u.InputTokens + u.OutputTokens
}

// CompletionResponse is the provider-neutral model reply.
type CompletionResponse struct {
	Content []entity.AssistantContent
	Model   string
	Usage   TokenUsage
}

// ToolCalls extracts the tool-call blocks from the response content.
func (r *CompletionResponse) ToolCalls() []entity.ToolCallContent {
	var calls []entity.ToolCallContent
	for _, c := range r.Content {
		if tc, ok := c.(entity.ToolCallContent); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// Provider is the contract every model adapter implements. Adapters
// bear sole responsibility for translating between the internal
// representation and the vendor wire format, and must race every HTTP
// boundary against the cancellation token.
type Provider interface {
	// Name returns the provider identifier (e.g. "anthropic", "openai").
	Name() string

	// Complete sends the conversation and returns the full response.
	Complete(req *CompletionRequest, token *cancel.Token) (*CompletionResponse, error)
}

// StreamChunk is a single event from a streaming completion.
type StreamChunk struct {
	Kind StreamChunkKind

	// TextDelta / ThinkingDelta
	Delta string

	// ToolUseStart / ToolUseInputDelta
	ToolCallID string
	ToolName   string
	InputDelta string

	// ContentBlockStop
	BlockIndex int

	// MessageComplete — carries the same CompletionResponse a
	// non-streaming call would have returned for the same input.
	Response *CompletionResponse

	// Error
	Err error
}

// StreamChunkKind tags a StreamChunk.
type StreamChunkKind int

const (
	ChunkTextDelta StreamChunkKind = iota
	ChunkThinkingDelta
	ChunkToolUseStart
	ChunkToolUseInputDelta
	ChunkContentBlockStop
	ChunkMessageComplete
	ChunkError
)

// StreamingProvider is implemented by adapters that support SSE
// streaming. The channel is closed when the stream ends; the terminal
// ChunkMessageComplete carries the final response, which is also
// returned. The agent loop consumes only the terminal event;
// intermediate deltas are for the embedder's UI.
type StreamingProvider interface {
	Provider

	CompleteStream(req *CompletionRequest, deltaCh chan<- StreamChunk, token *cancel.Token) (*CompletionResponse, error)
}
