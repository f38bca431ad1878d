package anthropic

import (
	"github.com/steerdev/steer/internal/domain/entity"
	"github.com/steerdev/steer/internal/domain/service"
	"github.com/steerdev/steer/internal/domain/valueobject"
	"github.com/steerdev/steer/internal/infrastructure/llm"
)

// buildMessages flattens the internal history into wire messages.
// User content follows the shared flattening rules; tool results ride
// as tool_result blocks on user-role messages keyed by the id the
// model emitted; thinking blocks round-trip unchanged and precede all
// other assistant content.
func buildMessages(history []entity.Message) []Message {
	history = llm.RepairDanglingToolCalls(history)

	var out []Message
	for _, m := range history {
		switch msg := m.(type) {
		case *entity.UserMessage:
			text := llm.FlattenUserText(msg.Content)
			if text == "" {
				continue
			}
			out = append(out, Message{
				Role:    "user",
				Content: []ContentBlock{{Type: "text", Text: text}},
			})

		case *entity.AssistantMessage:
			blocks := assistantBlocks(msg.Content)
			if len(blocks) > 0 {
				out = append(out, Message{Role: "assistant", Content: blocks})
			}

		case *entity.ToolMessage:
			block := ContentBlock{
				Type:      "tool_result",
				ToolUseID: msg.ToolUseID,
				Content:   msg.Result.LLMFormat(),
			}
			if valueobject.IsError(msg.Result) {
				block.IsError = true
			}
			out = append(out, Message{Role: "user", Content: []ContentBlock{block}})
		}
	}
	return out
}

// assistantBlocks converts assistant content, emitting thinking blocks
// first — the API requires reasoning to precede other content when a
// turn is replayed.
func assistantBlocks(content []entity.AssistantContent) []ContentBlock {
	var thinking, rest []ContentBlock

	for _, c := range content {
		switch v := c.(type) {
		case entity.TextBlock:
			if v.Text != "" {
				rest = append(rest, ContentBlock{Type: "text", Text: v.Text})
			}
		case entity.ToolCallContent:
			rest = append(rest, ContentBlock{
				Type:  "tool_use",
				ID:    v.ID,
				Name:  v.Name,
				Input: llm.DefaultParameters(v.Parameters),
			})
		case entity.ThoughtContent:
			switch th := v.Thought.(type) {
			case entity.SignedThought:
				thinking = append(thinking, ContentBlock{
					Type:      "thinking",
					Thinking:  th.Text,
					Signature: th.Signature,
				})
			case entity.RedactedThought:
				thinking = append(thinking, ContentBlock{
					Type: "redacted_thinking",
					Data: th.Data,
				})
			case entity.SimpleThought:
				// Unsigned reasoning came from another provider; the
				// API rejects thinking blocks without signatures, so
				// it is not replayed.
			}
		case entity.UnknownContent:
			// Not replayed on the wire.
		}
	}

	return append(thinking, rest...)
}

// parseContent converts response blocks to internal assistant content.
// Unrecognized block types are preserved as UnknownContent so new
// vendor block types do not break parsing.
func parseContent(blocks []ContentBlock) []entity.AssistantContent {
	var content []entity.AssistantContent
	for _, b := range blocks {
		switch b.Type {
		case "text":
			content = append(content, entity.TextBlock{Text: b.Text})
		case "tool_use":
			content = append(content, entity.ToolCallContent{
				ID:         b.ID,
				Name:       b.Name,
				Parameters: llm.DefaultParameters(b.Input),
			})
		case "thinking":
			content = append(content, entity.ThoughtContent{
				Thought: entity.SignedThought{Text: b.Thinking, Signature: b.Signature},
			})
		case "redacted_thinking":
			content = append(content, entity.ThoughtContent{
				Thought: entity.RedactedThought{Data: b.Data},
			})
		default:
			content = append(content, entity.UnknownContent{Type: b.Type})
		}
	}
	return content
}

// convertTools converts tool schemas, guaranteeing an object-typed
// input schema.
func convertTools(req *service.CompletionRequest) []Tool {
	var tools []Tool
	for _, s := range req.Tools {
		schema := s.InputSchema
		if schema == nil {
			schema = map[string]any{"type": "object", "properties": map[string]any{}}
		}
		tools = append(tools, Tool{
			Name:        s.Name,
			Description: s.Description,
			InputSchema: schema,
		})
	}
	return tools
}
