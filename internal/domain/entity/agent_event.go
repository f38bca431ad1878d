package entity

// AgentEventType defines the type of event emitted during an agent run.
type AgentEventType string

const (
	EventMessageFinal  AgentEventType = "message_final"
	EventExecutingTool AgentEventType = "executing_tool"
)

// AgentEvent is a single event in the agent loop. Consumers receive
// these on a bounded channel; message events preserve engine-side
// append order.
type AgentEvent struct {
	Type AgentEventType

	// For EventMessageFinal
	Message Message

	// For EventExecutingTool
	ToolCallID string
	ToolName   string
	Parameters map[string]any
}

// NewMessageFinalEvent wraps an appended message.
func NewMessageFinalEvent(m Message) AgentEvent {
	return AgentEvent{Type: EventMessageFinal, Message: m}
}

// NewExecutingToolEvent signals that an approved tool call started.
func NewExecutingToolEvent(call ToolCallContent) AgentEvent {
	return AgentEvent{
		Type:       EventExecutingTool,
		ToolCallID: call.ID,
		ToolName:   call.Name,
		Parameters: call.Parameters,
	}
}
