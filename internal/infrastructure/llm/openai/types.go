package openai

import "encoding/json"

// OpenAI wire types: the Chat Completions shape and the Responses
// shape. The two endpoints disagree enough that each adapter keeps its
// own request/response structs.

// --- Chat Completions (/v1/chat/completions) ---

// ChatRequest is the Chat Completions request.
type ChatRequest struct {
	Model           string        `json:"model"`
	Messages        []ChatMessage `json:"messages"`
	Tools           []ChatTool    `json:"tools,omitempty"`
	Temperature     *float64      `json:"temperature,omitempty"`
	TopP            *float64      `json:"top_p,omitempty"`
	MaxTokens       *int          `json:"max_completion_tokens,omitempty"`
	ReasoningEffort string        `json:"reasoning_effort,omitempty"`
	Stream          bool          `json:"stream,omitempty"`
}

// ChatMessage is one role-tagged message.
type ChatMessage struct {
	Role       string         `json:"role"` // "system" | "user" | "assistant" | "tool"
	Content    string         `json:"content,omitempty"`
	ToolCalls  []ChatToolCall `json:"tool_calls,omitempty"`
	ToolCallID string         `json:"tool_call_id,omitempty"`
}

// ChatToolCall is an assistant function call.
type ChatToolCall struct {
	ID       string       `json:"id"`
	Type     string       `json:"type"` // "function"
	Function ChatFunction `json:"function"`
}

// ChatFunction carries the function name and JSON-encoded arguments.
type ChatFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

// ChatTool is a function-tool schema.
type ChatTool struct {
	Type     string          `json:"type"` // "function"
	Function ChatToolFuncDef `json:"function"`
}

// ChatToolFuncDef is the schema body of a function tool.
type ChatToolFuncDef struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ChatResponse is the Chat Completions response.
type ChatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []ChatChoice `json:"choices"`
	Usage   ChatUsage    `json:"usage"`
}

// ChatChoice is one completion alternative.
type ChatChoice struct {
	Index        int               `json:"index"`
	Message      ChatChoiceMessage `json:"message"`
	FinishReason string            `json:"finish_reason"`
}

// ChatChoiceMessage is the assistant reply inside a choice.
// ReasoningContent is the OpenAI-compatible extension several vendors
// (xAI among them) use for visible reasoning.
type ChatChoiceMessage struct {
	Role             string         `json:"role"`
	Content          string         `json:"content"`
	ReasoningContent string         `json:"reasoning_content,omitempty"`
	ToolCalls        []ChatToolCall `json:"tool_calls,omitempty"`
}

// ChatUsage reports token consumption.
type ChatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
}

// --- Responses (/v1/responses) ---

// ResponsesRequest is the Responses API request. Input is a flat list
// of typed items rather than role-tagged messages.
type ResponsesRequest struct {
	Model           string           `json:"model"`
	Input           []ResponseItem   `json:"input"`
	Instructions    string           `json:"instructions,omitempty"`
	Tools           []ResponsesTool  `json:"tools,omitempty"`
	Temperature     *float64         `json:"temperature,omitempty"`
	TopP            *float64         `json:"top_p,omitempty"`
	MaxOutputTokens *int             `json:"max_output_tokens,omitempty"`
	Reasoning       *ReasoningConfig `json:"reasoning,omitempty"`
}

// ResponseItem is a polymorphic input/output item.
type ResponseItem struct {
	Type string `json:"type"` // "message" | "function_call" | "function_call_output" | "reasoning"

	// "message"
	Role    string          `json:"role,omitempty"`
	Content json.RawMessage `json:"content,omitempty"`

	// "function_call"
	CallID    string `json:"call_id,omitempty"`
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	// "function_call_output"
	Output string `json:"output,omitempty"`

	// "reasoning"
	Summary []ReasoningSummary `json:"summary,omitempty"`
}

// ContentPart is one part of a message item's content array.
type ContentPart struct {
	Type string `json:"type"` // "input_text" | "output_text"
	Text string `json:"text"`
}

// ReasoningSummary is a summarized reasoning fragment.
type ReasoningSummary struct {
	Type string `json:"type"` // "summary_text"
	Text string `json:"text"`
}

// ReasoningConfig controls reasoning on thinking models.
type ReasoningConfig struct {
	Effort  string `json:"effort,omitempty"`  // "low" | "medium" | "high"
	Summary string `json:"summary,omitempty"` // "auto"
}

// ResponsesTool is a function tool in the Responses shape: the schema
// fields sit at the top level instead of under "function".
type ResponsesTool struct {
	Type        string         `json:"type"` // "function"
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Parameters  map[string]any `json:"parameters,omitempty"`
}

// ResponsesResponse is the Responses API response.
type ResponsesResponse struct {
	ID     string         `json:"id"`
	Model  string         `json:"model"`
	Status string         `json:"status"`
	Output []ResponseItem `json:"output"`
	Usage  ResponsesUsage `json:"usage"`
	Error  *ResponsesErr  `json:"error,omitempty"`
}

// ResponsesErr is the error envelope.
type ResponsesErr struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ResponsesUsage reports token consumption.
type ResponsesUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}
