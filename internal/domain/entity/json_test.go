package entity

import (
	"encoding/json"
	"testing"

	"github.com/steerdev/steer/internal/domain/tool"
	"github.com/steerdev/steer/internal/domain/valueobject"
)

func TestMessageRoundTripUser(t *testing.T) {
	original := NewUserMessage("t0", "parent-1", []UserContent{
		TextContent{Text: "hello"},
		CommandExecutionContent{Command: "ls", Stdout: "a\nb", ExitCode: 0},
		AppCommandContent{Command: "/model x", Response: "ok"},
	})

	raw, err := MarshalMessage(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := UnmarshalMessage(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	um, ok := decoded.(*UserMessage)
	if !ok {
		t.Fatalf("decoded %T, want *UserMessage", decoded)
	}
	if um.ID != original.ID || um.ThreadID != "t0" || um.ParentID != "parent-1" {
		t.Error("meta fields must survive the round trip")
	}
	if len(um.Content) != 3 {
		t.Fatalf("content length = %d", len(um.Content))
	}
	if cmd, ok := um.Content[1].(CommandExecutionContent); !ok || cmd.Stdout != "a\nb" {
		t.Error("command execution block must survive")
	}
}

func TestMessageRoundTripAssistantThoughts(t *testing.T) {
	original := NewAssistantMessage("t0", "p", []AssistantContent{
		ThoughtContent{Thought: SignedThought{Text: "reasoning", Signature: "sig=="}},
		ThoughtContent{Thought: RedactedThought{Data: "opaque"}},
		TextBlock{Text: "answer"},
		ToolCallContent{ID: "c9", Name: "grep", Parameters: map[string]any{"pattern": "x"}},
	})

	raw, err := MarshalMessage(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	decoded, err := UnmarshalMessage(raw)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	am := decoded.(*AssistantMessage)
	signed, ok := am.Content[0].(ThoughtContent).Thought.(SignedThought)
	if !ok || signed.Text != "reasoning" || signed.Signature != "sig==" {
		t.Error("signed thought must round-trip text and signature unchanged")
	}
	redacted, ok := am.Content[1].(ThoughtContent).Thought.(RedactedThought)
	if !ok || redacted.Data != "opaque" {
		t.Error("redacted thought must round-trip its data")
	}
	call, ok := am.Content[3].(ToolCallContent)
	if !ok || call.ID != "c9" || call.Parameters["pattern"] != "x" {
		t.Error("tool call must round-trip id and parameters")
	}
}

func TestMessageRoundTripToolResults(t *testing.T) {
	results := []valueobject.ToolResult{
		valueobject.BashResult{Command: "make", Stdout: "ok", ExitCode: 0},
		valueobject.FileListResult{Entries: []string{"a", "b"}},
		valueobject.ErrorResult{Err: tool.NewDeniedError("rm")},
	}

	for _, result := range results {
		original := NewToolMessage("t0", "p", "call-1", result)
		raw, err := MarshalMessage(original)
		if err != nil {
			t.Fatalf("marshal %T: %v", result, err)
		}
		decoded, err := UnmarshalMessage(raw)
		if err != nil {
			t.Fatalf("unmarshal %T: %v", result, err)
		}
		tm := decoded.(*ToolMessage)
		if tm.ToolUseID != "call-1" {
			t.Error("tool_use_id must survive")
		}
		if tm.Result.LLMFormat() != result.LLMFormat() {
			t.Errorf("%T: llm format changed across round trip", result)
		}
	}
}

func TestUnknownAssistantBlockPreserved(t *testing.T) {
	raw := []byte(`{"role":"assistant","id":"m1","ts":5,"thread_id":"t0",` +
		`"content":[{"type":"server_widget","payload":{"x":1}}]}`)

	decoded, err := UnmarshalMessage(raw)
	if err != nil {
		t.Fatalf("unknown blocks must not fail decoding: %v", err)
	}
	am := decoded.(*AssistantMessage)
	unknown, ok := am.Content[0].(UnknownContent)
	if !ok || unknown.Type != "server_widget" {
		t.Fatalf("expected UnknownContent, got %T", am.Content[0])
	}

	// Re-encoding emits the original payload untouched.
	out, err := MarshalMessage(am)
	if err != nil {
		t.Fatalf("re-marshal: %v", err)
	}
	var env struct {
		Content []json.RawMessage `json:"content"`
	}
	if err := json.Unmarshal(out, &env); err != nil {
		t.Fatal(err)
	}
	var block map[string]any
	if err := json.Unmarshal(env.Content[0], &block); err != nil {
		t.Fatal(err)
	}
	if block["type"] != "server_widget" {
		t.Error("unknown block type must round-trip verbatim")
	}
}

func TestMessagesListRoundTripPreservesOrderAndLinks(t *testing.T) {
	u := NewUserMessage("t0", "", []UserContent{TextContent{Text: "hi"}})
	a := NewAssistantMessage("t0", u.ID, []AssistantContent{TextBlock{Text: "yo"}})
	tm := NewToolMessage("t0", a.ID, "c1", valueobject.AgentResult{Content: "done"})

	raw, err := MarshalMessages([]Message{u, a, tm})
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := UnmarshalMessages(raw)
	if err != nil {
		t.Fatal(err)
	}
	if len(decoded) != 3 {
		t.Fatalf("length = %d", len(decoded))
	}
	if decoded[1].Meta().ParentID != decoded[0].Meta().ID {
		t.Error("parent links must survive in order")
	}
	if decoded[2].Meta().ParentID != decoded[1].Meta().ID {
		t.Error("parent links must survive in order")
	}
}
