// Package entity defines the internal conversation model: messages,
// content blocks, and the events the engine emits while running.
//
// Messages are never mutated after append. Edits mint new message
// identities on a new thread; parent links preserve causality across
// thread boundaries.
package entity

import (
	"time"

	"github.com/google/uuid"

	"github.com/steerdev/steer/internal/domain/valueobject"
)

// Role identifies the message variant.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// MessageMeta carries the fields common to every message variant.
// ParentID is empty only for a conversation root or a post-compaction
// root. ThreadID identifies the branch the message belongs to.
type MessageMeta struct {
	ID        string
	Timestamp int64 // unix seconds, non-decreasing within a thread
	ThreadID  string
	ParentID  string
}

// Message is the tagged sum over the three message variants.
type Message interface {
	Meta() *MessageMeta
	Role() Role
}

// UserMessage carries user-originated content blocks.
type UserMessage struct {
	MessageMeta
	Content []UserContent
}

func (m *UserMessage) Meta() *MessageMeta { return &m.MessageMeta }
func (m *UserMessage) Role() Role         { return RoleUser }

// AssistantMessage carries model-originated content blocks.
type AssistantMessage struct {
	MessageMeta
	Content []AssistantContent
}

func (m *AssistantMessage) Meta() *MessageMeta { return &m.MessageMeta }
func (m *AssistantMessage) Role() Role         { return RoleAssistant }

// ToolCalls extracts the tool-call blocks from the message content.
func (m *AssistantMessage) ToolCalls() []ToolCallContent {
	var calls []ToolCallContent
	for _, c := range m.Content {
		if tc, ok := c.(ToolCallContent); ok {
			calls = append(calls, tc)
		}
	}
	return calls
}

// ToolMessage carries the result of one tool call. ToolUseID is the id
// of a ToolCall in a prior assistant message within the same lineage.
type ToolMessage struct {
	MessageMeta
	ToolUseID string
	Result    valueobject.ToolResult
}

func (m *ToolMessage) Meta() *MessageMeta { return &m.MessageMeta }
func (m *ToolMessage) Role() Role         { return RoleTool }

// NewMessageID returns a time-sortable unique message id (UUIDv7).
func NewMessageID() string {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the entropy source does; fall back to v4
		// rather than propagating an error through every constructor.
		return uuid.NewString()
	}
	return id.String()
}

// NewThreadID returns a fresh thread identifier.
func NewThreadID() string {
	return uuid.NewString()
}

// Now returns the second-resolution timestamp used for message ordering.
func Now() int64 {
	return time.Now().Unix()
}

// NewUserMessage constructs a user message on the given thread.
func NewUserMessage(threadID, parentID string, content []UserContent) *UserMessage {
	return &UserMessage{
		MessageMeta: MessageMeta{
			ID:        NewMessageID(),
			Timestamp: Now(),
			ThreadID:  threadID,
			ParentID:  parentID,
		},
		Content: content,
	}
}

// NewAssistantMessage constructs an assistant message on the given thread.
func NewAssistantMessage(threadID, parentID string, content []AssistantContent) *AssistantMessage {
	return &AssistantMessage{
		MessageMeta: MessageMeta{
			ID:        NewMessageID(),
			Timestamp: Now(),
			ThreadID:  threadID,
			ParentID:  parentID,
		},
		Content: content,
	}
}

// NewToolMessage constructs a tool-result message on the given thread.
func NewToolMessage(threadID, parentID, toolUseID string, result valueobject.ToolResult) *ToolMessage {
	return &ToolMessage{
		MessageMeta: MessageMeta{
			ID:        NewMessageID(),
			Timestamp: Now(),
			ThreadID:  threadID,
			ParentID:  parentID,
		},
		ToolUseID: toolUseID,
		Result:    result,
	}
}
