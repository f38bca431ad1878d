package openai

import (
	"strings"
	"testing"

	"go.uber.org/zap"

	"github.com/steerdev/steer/internal/domain/entity"
	"github.com/steerdev/steer/internal/domain/service"
	"github.com/steerdev/steer/pkg/cancel"
)

// Fragmented tool call: the id arrives first, the name next, and the
// arguments split across chunks. A finish_reason terminates without
// [DONE].
const chatStream = `data: {"id":"x","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"Sure, "}}]}

data: {"id":"x","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"one moment."}}]}

data: {"id":"x","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"id":"call_1"}]}}]}

data: {"id":"x","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"name":"ls"}}]}}]}

data: {"id":"x","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":"{\"path\""}}]}}]}

data: {"id":"x","choices":[{"index":0,"delta":{"tool_calls":[{"index":0,"function":{"arguments":": \".\"}"}}]}}]}

data: {"id":"x","usage":{"prompt_tokens":9,"completion_tokens":21},"choices":[{"index":0,"delta":{},"finish_reason":"tool_calls"}]}

`

func TestDecodeChatStream(t *testing.T) {
	deltaCh := make(chan service.StreamChunk, 64)
	resp, err := decodeChatStream("openai", strings.NewReader(chatStream), deltaCh, cancel.NewToken(), zap.NewNop())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	close(deltaCh)

	if resp.Model != "gpt-4o" {
		t.Errorf("model = %s", resp.Model)
	}
	if resp.Usage.InputTokens != 9 || resp.Usage.OutputTokens != 21 {
		t.Errorf("usage = %+v", resp.Usage)
	}

	if text := entity.AssistantText(resp.Content); text != "Sure, one moment." {
		t.Errorf("text = %q", text)
	}
	var call *entity.ToolCallContent
	for _, c := range resp.Content {
		if tc, ok := c.(entity.ToolCallContent); ok {
			call = &tc
		}
	}
	if call == nil || call.ID != "call_1" || call.Name != "ls" {
		t.Fatalf("call = %+v", call)
	}
	if call.Parameters["path"] != "." {
		t.Errorf("arguments fragments must concatenate, got %v", call.Parameters)
	}

	// The tool-use start waits until both id and name are known.
	var order []service.StreamChunkKind
	for chunk := range deltaCh {
		order = append(order, chunk.Kind)
	}
	sawStart := false
	for i, kind := range order {
		if kind == service.ChunkToolUseStart {
			sawStart = true
			// All input deltas come after the start.
			for j := 0; j < i; j++ {
				if order[j] == service.ChunkToolUseInputDelta {
					t.Error("input delta emitted before tool-use start")
				}
			}
		}
	}
	if !sawStart {
		t.Error("expected a tool-use start chunk")
	}
	if order[len(order)-1] != service.ChunkMessageComplete {
		t.Error("stream must end with MessageComplete")
	}
}

func TestDecodeChatStreamDoneSentinel(t *testing.T) {
	stream := `data: {"id":"x","model":"gpt-4o","choices":[{"index":0,"delta":{"content":"hi"}}]}

data: [DONE]

`
	deltaCh := make(chan service.StreamChunk, 16)
	resp, err := decodeChatStream("openai", strings.NewReader(stream), deltaCh, cancel.NewToken(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if entity.AssistantText(resp.Content) != "hi" {
		t.Errorf("content = %v", resp.Content)
	}
}

func TestDecodeChatStreamReasoningContent(t *testing.T) {
	stream := `data: {"id":"x","choices":[{"index":0,"delta":{"reasoning_content":"thinking..."}}]}

data: {"id":"x","choices":[{"index":0,"delta":{"content":"answer"},"finish_reason":"stop"}]}

`
	deltaCh := make(chan service.StreamChunk, 16)
	resp, err := decodeChatStream("xai", strings.NewReader(stream), deltaCh, cancel.NewToken(), zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	thought, ok := resp.Content[0].(entity.ThoughtContent)
	if !ok || thought.Thought.(entity.SimpleThought).Text != "thinking..." {
		t.Error("reasoning_content must accumulate into a simple thought")
	}
}
