// Package valueobject holds immutable values shared across the domain:
// typed tool results and per-call model options.
package valueobject

import (
	"fmt"
	"strings"

	"github.com/steerdev/steer/internal/domain/tool"
)

// ToolResult is the typed output of a tool execution. LLMFormat renders
// the result to the plain-text form included in the next model call.
type ToolResult interface {
	tool.Result
	resultKind() string
}

// SearchResult is the output of a content search tool.
type SearchResult struct {
	Query   string       `json:"query"`
	Matches []SearchHit  `json:"matches"`
}

// SearchHit is a single match within a file.
type SearchHit struct {
	Path string `json:"path"`
	Line int    `json:"line"`
	Text string `json:"text"`
}

func (r SearchResult) resultKind() string { return "search" }

func (r SearchResult) LLMFormat() string {
	if len(r.Matches) == 0 {
		return fmt.Sprintf("No matches found for %q.", r.Query)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d matches:\n", len(r.Matches))
	for _, m := range r.Matches {
		fmt.Fprintf(&b, "%s:%d: %s\n", m.Path, m.Line, m.Text)
	}
	return b.String()
}

// FileListResult is the output of a directory listing tool.
type FileListResult struct {
	Entries []string `json:"entries"`
}

func (r FileListResult) resultKind() string { return "file_list" }

func (r FileListResult) LLMFormat() string {
	return strings.Join(r.Entries, "\n")
}

// FileContentResult is the output of a file read tool.
type FileContentResult struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (r FileContentResult) resultKind() string { return "file_content" }

func (r FileContentResult) LLMFormat() string {
	return r.Content
}

// EditResult is the output of a file edit tool.
type EditResult struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (r EditResult) resultKind() string { return "edit" }

func (r EditResult) LLMFormat() string {
	if r.Message != "" {
		return r.Message
	}
	return fmt.Sprintf("Edited %s", r.Path)
}

// BashResult is the output of a shell command tool.
type BashResult struct {
	Command  string `json:"command"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

func (r BashResult) resultKind() string { return "bash" }

func (r BashResult) LLMFormat() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Exit code: %d\n", r.ExitCode)
	if r.Stdout != "" {
		fmt.Fprintf(&b, "stdout:\n%s\n", r.Stdout)
	}
	if r.Stderr != "" {
		fmt.Fprintf(&b, "stderr:\n%s\n", r.Stderr)
	}
	return b.String()
}

// GlobResult is the output of a filename pattern match tool.
type GlobResult struct {
	Pattern string   `json:"pattern"`
	Paths   []string `json:"paths"`
}

func (r GlobResult) resultKind() string { return "glob" }

func (r GlobResult) LLMFormat() string {
	if len(r.Paths) == 0 {
		return fmt.Sprintf("No files matched %q.", r.Pattern)
	}
	return strings.Join(r.Paths, "\n")
}

// TodoItem is one entry in a todo-list tool result.
type TodoItem struct {
	Content string `json:"content"`
	Status  string `json:"status"` // "pending" | "in_progress" | "completed"
}

// TodoResult is the output of the todo management tool.
type TodoResult struct {
	Items []TodoItem `json:"items"`
}

func (r TodoResult) resultKind() string { return "todo" }

func (r TodoResult) LLMFormat() string {
	var b strings.Builder
	for _, item := range r.Items {
		fmt.Fprintf(&b, "[%s] %s\n", item.Status, item.Content)
	}
	return b.String()
}

// FetchResult is the output of a URL fetch tool.
type FetchResult struct {
	URL     string `json:"url"`
	Content string `json:"content"`
}

func (r FetchResult) resultKind() string { return "fetch" }

func (r FetchResult) LLMFormat() string {
	return r.Content
}

// AgentResult is the output of a nested sub-agent tool.
type AgentResult struct {
	Content string `json:"content"`
}

func (r AgentResult) resultKind() string { return "agent" }

func (r AgentResult) LLMFormat() string {
	return r.Content
}

// ExternalResult carries output from an external (e.g. MCP) tool whose
// shape the engine does not model.
type ExternalResult struct {
	ToolName string `json:"tool_name"`
	Payload  string `json:"payload"`
}

func (r ExternalResult) resultKind() string { return "external" }

func (r ExternalResult) LLMFormat() string {
	return r.Payload
}

// ErrorResult wraps a tool.Error as a result so the model sees the
// failure and may correct itself on the next turn.
type ErrorResult struct {
	Err *tool.Error `json:"error"`
}

func (r ErrorResult) resultKind() string { return "error" }

func (r ErrorResult) LLMFormat() string {
	return fmt.Sprintf("Error: %v", r.Err)
}

// NewErrorResult wraps any error into an ErrorResult, converting plain
// errors into execution failures.
func NewErrorResult(toolName string, err error) ErrorResult {
	if te, ok := err.(*tool.Error); ok {
		return ErrorResult{Err: te}
	}
	return ErrorResult{Err: tool.NewExecutionError(toolName, err)}
}

// IsError reports whether a result is error-bearing.
func IsError(r ToolResult) bool {
	_, ok := r.(ErrorResult)
	return ok
}
