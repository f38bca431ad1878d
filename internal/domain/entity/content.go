package entity

import (
	"fmt"
	"strings"
)

// UserContent is one block of a user message.
type UserContent interface {
	isUserContent()
}

// TextContent is plain user text.
type TextContent struct {
	Text string `json:"text"`
}

func (TextContent) isUserContent() {}

// CommandExecutionContent records a shell command the user ran locally.
// It is rendered as an XML block when sent to the model.
type CommandExecutionContent struct {
	Command  string `json:"command"`
	Stdout   string `json:"stdout"`
	Stderr   string `json:"stderr"`
	ExitCode int    `json:"exit_code"`
}

func (CommandExecutionContent) isUserContent() {}

// XMLBlock renders the executed command for inclusion in a model call.
func (c CommandExecutionContent) XMLBlock() string {
	var b strings.Builder
	b.WriteString("<executed_command>\n")
	fmt.Fprintf(&b, "<command>%s</command>\n", c.Command)
	fmt.Fprintf(&b, "<stdout>%s</stdout>\n", c.Stdout)
	fmt.Fprintf(&b, "<stderr>%s</stderr>\n", c.Stderr)
	fmt.Fprintf(&b, "<exit_code>%d</exit_code>\n", c.ExitCode)
	b.WriteString("</executed_command>")
	return b.String()
}

// AppCommandContent records a slash command (/clear, /compact,
// /model <target>). App commands execute locally and are never sent to
// the model.
type AppCommandContent struct {
	Command  string `json:"command"`
	Response string `json:"response,omitempty"`
}

func (AppCommandContent) isUserContent() {}

// AssistantContent is one block of an assistant message.
type AssistantContent interface {
	isAssistantContent()
}

// TextBlock is plain assistant text.
type TextBlock struct {
	Text string `json:"text"`
}

func (TextBlock) isAssistantContent() {}

// ToolCallContent is a model-emitted tool invocation request.
type ToolCallContent struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Parameters map[string]any `json:"parameters"`
}

func (ToolCallContent) isAssistantContent() {}

// ThoughtContent carries a model reasoning block.
type ThoughtContent struct {
	Thought Thought `json:"thought"`
}

func (ThoughtContent) isAssistantContent() {}

// UnknownContent preserves content blocks the engine does not model.
// Vendors add block types without warning; unknown blocks round-trip
// through persistence untouched and are dropped on the wire.
type UnknownContent struct {
	Type string `json:"type"`
	Raw  []byte `json:"raw"`
}

func (UnknownContent) isAssistantContent() {}

// Thought is the tagged sum over reasoning shapes.
type Thought interface {
	isThought()
}

// SimpleThought is unsigned reasoning text.
type SimpleThought struct {
	Text string `json:"text"`
}

func (SimpleThought) isThought() {}

// SignedThought is cryptographically signed reasoning. Both text and
// signature must round-trip unchanged to the provider so the model
// accepts the block on the next turn.
type SignedThought struct {
	Text      string `json:"text"`
	Signature string `json:"signature"`
}

func (SignedThought) isThought() {}

// RedactedThought is opaque provider-encrypted reasoning data.
type RedactedThought struct {
	Data string `json:"data"`
}

func (RedactedThought) isThought() {}

// AssistantText joins the text blocks of an assistant message.
func AssistantText(content []AssistantContent) string {
	var parts []string
	for _, c := range content {
		if t, ok := c.(TextBlock); ok && t.Text != "" {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n")
}
