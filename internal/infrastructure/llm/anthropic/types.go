package anthropic

import "encoding/json"

// Anthropic Messages API wire types.
//
// Differences from the OpenAI shape that matter here:
//   - messages carry content blocks, not flat strings
//   - tool calls are "tool_use" blocks; results are "tool_result"
//     blocks on a user-role message
//   - the system prompt is a top-level field of content blocks
//   - extended thinking arrives as "thinking"/"redacted_thinking"
//     blocks that must round-trip unchanged (text + signature)

// Request is the Messages API request.
type Request struct {
	Model       string          `json:"model"`
	MaxTokens   int             `json:"max_tokens"`
	System      []SystemBlock   `json:"system,omitempty"`
	Messages    []Message       `json:"messages"`
	Tools       []Tool          `json:"tools,omitempty"`
	Temperature *float64        `json:"temperature,omitempty"`
	TopP        *float64        `json:"top_p,omitempty"`
	Thinking    *ThinkingConfig `json:"thinking,omitempty"`
	Stream      bool            `json:"stream,omitempty"`
}

// SystemBlock is one system prompt segment. The cache control marker
// lets the API cache the prompt prefix between calls.
type SystemBlock struct {
	Type         string        `json:"type"` // "text"
	Text         string        `json:"text"`
	CacheControl *CacheControl `json:"cache_control,omitempty"`
}

// CacheControl marks a block as cacheable.
type CacheControl struct {
	Type string `json:"type"` // "ephemeral"
}

// ThinkingConfig enables extended thinking with a token budget.
type ThinkingConfig struct {
	Type         string `json:"type"` // "enabled"
	BudgetTokens int    `json:"budget_tokens"`
}

// Message is one conversation message.
type Message struct {
	Role    string         `json:"role"` // "user" | "assistant"
	Content []ContentBlock `json:"content"`
}

// ContentBlock is the polymorphic content element.
type ContentBlock struct {
	Type string `json:"type"`

	// "text"
	Text string `json:"text,omitempty"`

	// "tool_use"
	ID    string         `json:"id,omitempty"`
	Name  string         `json:"name,omitempty"`
	Input map[string]any `json:"input,omitempty"`

	// "tool_result"
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
	IsError   bool   `json:"is_error,omitempty"`

	// "thinking"
	Thinking  string `json:"thinking,omitempty"`
	Signature string `json:"signature,omitempty"`

	// "redacted_thinking"
	Data string `json:"data,omitempty"`
}

// Tool is a tool definition.
type Tool struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"input_schema"`
}

// Response is the Messages API response.
type Response struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"` // "message" | "error"
	Role       string         `json:"role"`
	Content    []ContentBlock `json:"content"`
	Model      string         `json:"model"`
	StopReason string         `json:"stop_reason"` // "end_turn" | "tool_use" | "max_tokens" | "refusal"
	Usage      Usage          `json:"usage"`
	Error      *APIErrorBody  `json:"error,omitempty"`
}

// APIErrorBody is the error envelope.
type APIErrorBody struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// Usage reports token consumption.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// --- streaming ---

// StreamEvent is one typed SSE event.
type StreamEvent struct {
	Type  string `json:"type"`
	Index int    `json:"index,omitempty"`

	// content_block_start
	ContentBlock *ContentBlock `json:"content_block,omitempty"`

	// content_block_delta / message_delta
	Delta *DeltaBlock `json:"delta,omitempty"`

	// message_start
	Message *Response `json:"message,omitempty"`

	// message_delta
	Usage *Usage `json:"usage,omitempty"`

	// error
	Error *APIErrorBody `json:"error,omitempty"`
}

// DeltaBlock is incremental streamed content.
type DeltaBlock struct {
	Type        string `json:"type"` // "text_delta" | "input_json_delta" | "thinking_delta" | "signature_delta"
	Text        string `json:"text,omitempty"`
	PartialJSON string `json:"partial_json,omitempty"`
	Thinking    string `json:"thinking,omitempty"`
	Signature   string `json:"signature,omitempty"`

	// message_delta
	StopReason string `json:"stop_reason,omitempty"`
}

// decodeInput parses a tool-input JSON fragment into a map, defaulting
// to an empty object on malformed input.
func decodeInput(raw string) map[string]any {
	if raw == "" {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return map[string]any{}
	}
	return m
}
