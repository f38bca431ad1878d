// Package application wires the engine together: it owns the
// conversation store, drives the agent executor, and exposes the
// command/event channels the embedder (CLI, HTTP server) talks to.
package application

import (
	"github.com/steerdev/steer/internal/domain/entity"
)

// ChannelCapacity bounds the command and event channels. Back-pressure
// on the embedder is expected and acceptable; events are never dropped
// silently.
const ChannelCapacity = 32

// Command is a request from the embedder to the engine.
type Command interface {
	isCommand()
}

// ProcessUserInput submits one user turn (plain text or slash command).
type ProcessUserInput struct {
	Text string
}

func (ProcessUserInput) isCommand() {}

// HandleToolResponse answers a pending approval request. Always marks
// the tool as pre-approved for the rest of the session.
type HandleToolResponse struct {
	ID       string
	Approved bool
	Always   bool
}

func (HandleToolResponse) isCommand() {}

// ExecuteBashCommand runs a shell command on the user's behalf and
// records it in the conversation as an executed-command block.
type ExecuteBashCommand struct {
	Command string
}

func (ExecuteBashCommand) isCommand() {}

// CancelProcessing cancels the active turn.
type CancelProcessing struct{}

func (CancelProcessing) isCommand() {}

// GetCurrentConversation requests a ConversationSnapshot event.
type GetCurrentConversation struct{}

func (GetCurrentConversation) isCommand() {}

// Shutdown stops the engine loop and closes the event channel.
type Shutdown struct{}

func (Shutdown) isCommand() {}

// Event is a notification from the engine to the embedder.
type Event interface {
	isEvent()
}

// MessageAppended reports a message added to the conversation.
type MessageAppended struct {
	Message entity.Message
}

func (MessageAppended) isEvent() {}

// ToolExecuting reports an approved tool call that started running.
type ToolExecuting struct {
	ToolCallID string
	Name       string
	Parameters map[string]any
}

func (ToolExecuting) isEvent() {}

// ApprovalRequested asks the embedder to approve or deny a tool call.
// Answer with HandleToolResponse carrying the same id.
type ApprovalRequested struct {
	ToolCallID string
	Name       string
	Parameters map[string]any
}

func (ApprovalRequested) isEvent() {}

// ProcessingStarted reports the beginning of a turn.
type ProcessingStarted struct{}

func (ProcessingStarted) isEvent() {}

// ProcessingDone reports the end of a turn. Err is empty on success
// and on user cancellation carries "cancelled".
type ProcessingDone struct {
	Err string
}

func (ProcessingDone) isEvent() {}

// ConversationSnapshot carries the current thread view.
type ConversationSnapshot struct {
	ThreadID string
	Messages []entity.Message
}

func (ConversationSnapshot) isEvent() {}

// ConfigUpdated reports a configuration change (e.g. /model).
type ConfigUpdated struct {
	Model string
}

func (ConfigUpdated) isEvent() {}

// CommandFailed reports a command the engine could not act on.
type CommandFailed struct {
	Reason string
}

func (CommandFailed) isEvent() {}
