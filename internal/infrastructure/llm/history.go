package llm

import (
	"strings"

	"github.com/steerdev/steer/internal/domain/entity"
	"github.com/steerdev/steer/internal/domain/tool"
	"github.com/steerdev/steer/internal/domain/valueobject"
)

// History flattening shared by every adapter. The rules:
//   - consecutive text items in one user message join with newline,
//   - executed commands render as an <executed_command> XML block,
//   - app commands are local-only and are dropped entirely,
//   - user messages left empty after drops are skipped,
//   - assistant tool calls that never received a result get a
//     synthetic error result so providers accept the history after a
//     mid-flight cancellation.

// FlattenUserText renders a user message's content to the single text
// body sent to the model. Returns "" when every block was dropped.
func FlattenUserText(content []entity.UserContent) string {
	var parts []string
	for _, c := range content {
		switch v := c.(type) {
		case entity.TextContent:
			if v.Text != "" {
				parts = append(parts, v.Text)
			}
		case entity.CommandExecutionContent:
			parts = append(parts, v.XMLBlock())
		case entity.AppCommandContent:
			// Local-only; never sent to the model.
		}
	}
	return strings.Join(parts, "\n")
}

// RepairDanglingToolCalls appends a synthetic cancelled-tool result
// message for every tool call that lacks one. This happens after a
// user interrupt: an assistant message may reference calls that never
// produced results, and most vendors reject such a history.
func RepairDanglingToolCalls(messages []entity.Message) []entity.Message {
	responded := make(map[string]bool)
	for _, m := range messages {
		if tm, ok := m.(*entity.ToolMessage); ok {
			responded[tm.ToolUseID] = true
		}
	}

	var patched []entity.Message
	patched = append(patched, messages...)

	for _, m := range messages {
		am, ok := m.(*entity.AssistantMessage)
		if !ok {
			continue
		}
		for _, call := range am.ToolCalls() {
			if call.ID == "" || responded[call.ID] {
				continue
			}
			responded[call.ID] = true
			patched = append(patched, &entity.ToolMessage{
				MessageMeta: entity.MessageMeta{
					ID:        entity.NewMessageID(),
					Timestamp: m.Meta().Timestamp,
					ThreadID:  m.Meta().ThreadID,
					ParentID:  m.Meta().ID,
				},
				ToolUseID: call.ID,
				Result:    valueobject.ErrorResult{Err: tool.NewCancelledError(call.Name)},
			})
		}
	}

	return patched
}

// DefaultParameters replaces nil tool-call parameters with an empty
// object. Malformed arguments are not retried; the backend decides how
// to respond to an empty input.
func DefaultParameters(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{}
	}
	return params
}
