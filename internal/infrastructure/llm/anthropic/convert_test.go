package anthropic

import (
	"testing"

	"github.com/steerdev/steer/internal/domain/entity"
	"github.com/steerdev/steer/internal/domain/tool"
	"github.com/steerdev/steer/internal/domain/valueobject"
)

func history(t *testing.T) []entity.Message {
	t.Helper()
	u := entity.NewUserMessage("t0", "", []entity.UserContent{
		entity.TextContent{Text: "list files"},
		entity.AppCommandContent{Command: "/compact"},
	})
	a := entity.NewAssistantMessage("t0", u.ID, []entity.AssistantContent{
		entity.TextBlock{Text: "sure"},
		entity.ToolCallContent{ID: "c1", Name: "ls", Parameters: map[string]any{"path": "."}},
	})
	tm := entity.NewToolMessage("t0", a.ID, "c1", valueobject.FileListResult{Entries: []string{"a"}})
	return []entity.Message{u, a, tm}
}

func TestBuildMessagesToolLinkage(t *testing.T) {
	messages := buildMessages(history(t))
	if len(messages) != 3 {
		t.Fatalf("expected 3 wire messages, got %d", len(messages))
	}

	assistant := messages[1]
	if assistant.Role != "assistant" {
		t.Fatal("second message should be the assistant turn")
	}
	var toolUse *ContentBlock
	for i := range assistant.Content {
		if assistant.Content[i].Type == "tool_use" {
			toolUse = &assistant.Content[i]
		}
	}
	if toolUse == nil || toolUse.ID != "c1" || toolUse.Name != "ls" {
		t.Fatal("tool_use block must carry the model-emitted id")
	}

	result := messages[2]
	if result.Role != "user" || result.Content[0].Type != "tool_result" {
		t.Fatal("tool results ride as user-role tool_result blocks")
	}
	if result.Content[0].ToolUseID != "c1" {
		t.Error("tool_result must echo the tool_use id")
	}
}

func TestBuildMessagesSkipsEmptyUser(t *testing.T) {
	u := entity.NewUserMessage("t0", "", []entity.UserContent{
		entity.AppCommandContent{Command: "/clear"},
	})
	messages := buildMessages([]entity.Message{u})
	if len(messages) != 0 {
		t.Errorf("a user message emptied by drops must be skipped, got %d", len(messages))
	}
}

func TestAssistantBlocksThinkingFirst(t *testing.T) {
	blocks := assistantBlocks([]entity.AssistantContent{
		entity.TextBlock{Text: "answer"},
		entity.ThoughtContent{Thought: entity.SignedThought{Text: "why", Signature: "s1"}},
		entity.ToolCallContent{ID: "c1", Name: "ls", Parameters: map[string]any{}},
		entity.ThoughtContent{Thought: entity.RedactedThought{Data: "blob"}},
	})

	if blocks[0].Type != "thinking" || blocks[1].Type != "redacted_thinking" {
		t.Fatalf("reasoning blocks must precede all other content, got %s,%s",
			blocks[0].Type, blocks[1].Type)
	}
	if blocks[0].Thinking != "why" || blocks[0].Signature != "s1" {
		t.Error("signed thinking must round-trip text and signature unchanged")
	}
	if blocks[1].Data != "blob" {
		t.Error("redacted thinking must round-trip its data")
	}
}

func TestAssistantBlocksDropSimpleThoughts(t *testing.T) {
	blocks := assistantBlocks([]entity.AssistantContent{
		entity.ThoughtContent{Thought: entity.SimpleThought{Text: "from another provider"}},
		entity.TextBlock{Text: "hi"},
	})
	for _, b := range blocks {
		if b.Type == "thinking" {
			t.Error("unsigned thoughts must not be replayed to this API")
		}
	}
}

// Round trip: response parsing inverts message building for the shapes
// the provider owns.
func TestParseContentRoundTrip(t *testing.T) {
	wire := []ContentBlock{
		{Type: "thinking", Thinking: "reason", Signature: "sig"},
		{Type: "text", Text: "hello"},
		{Type: "tool_use", ID: "c2", Name: "grep", Input: map[string]any{"q": "x"}},
		{Type: "redacted_thinking", Data: "opaque"},
		{Type: "brand_new_block", Text: "?"},
	}

	content := parseContent(wire)
	if len(content) != 5 {
		t.Fatalf("got %d blocks", len(content))
	}

	signed := content[0].(entity.ThoughtContent).Thought.(entity.SignedThought)
	if signed.Text != "reason" || signed.Signature != "sig" {
		t.Error("signed thinking lost in parse")
	}
	if content[1].(entity.TextBlock).Text != "hello" {
		t.Error("text lost in parse")
	}
	call := content[2].(entity.ToolCallContent)
	if call.ID != "c2" || call.Parameters["q"] != "x" {
		t.Error("tool call lost in parse")
	}
	if _, ok := content[4].(entity.UnknownContent); !ok {
		t.Error("unrecognized block types become UnknownContent")
	}

	// Feeding the parsed content back produces the same wire blocks
	// (thinking first, unknown dropped).
	back := assistantBlocks(content)
	if back[0].Type != "thinking" || back[1].Type != "redacted_thinking" {
		t.Error("round trip must preserve reasoning-first ordering")
	}
	for _, b := range back {
		if b.Type == "brand_new_block" {
			t.Error("unknown blocks are not echoed to the wire")
		}
	}
}

func TestBuildMessagesMarksErrorResults(t *testing.T) {
	u := entity.NewUserMessage("t0", "", []entity.UserContent{entity.TextContent{Text: "go"}})
	a := entity.NewAssistantMessage("t0", u.ID, []entity.AssistantContent{
		entity.ToolCallContent{ID: "c1", Name: "rm", Parameters: map[string]any{}},
	})
	tm := entity.NewToolMessage("t0", a.ID, "c1",
		valueobject.ErrorResult{Err: tool.NewDeniedError("rm")})

	messages := buildMessages([]entity.Message{u, a, tm})
	last := messages[len(messages)-1]
	if !last.Content[0].IsError {
		t.Error("error results must set is_error on the wire")
	}
}

func TestBuildMessagesRepairsDanglingCalls(t *testing.T) {
	u := entity.NewUserMessage("t0", "", []entity.UserContent{entity.TextContent{Text: "go"}})
	a := entity.NewAssistantMessage("t0", u.ID, []entity.AssistantContent{
		entity.ToolCallContent{ID: "c1", Name: "slow", Parameters: map[string]any{}},
	})

	messages := buildMessages([]entity.Message{u, a})
	last := messages[len(messages)-1]
	if last.Content[0].Type != "tool_result" || last.Content[0].ToolUseID != "c1" {
		t.Fatal("an interrupted call must get a synthetic tool_result")
	}
	if !last.Content[0].IsError {
		t.Error("the synthetic result is error-bearing")
	}
}
