package service

import (
	"errors"
	"testing"
	"time"

	"github.com/steerdev/steer/internal/domain/entity"
	"github.com/steerdev/steer/internal/domain/tool"
	"github.com/steerdev/steer/internal/domain/valueobject"
	"github.com/steerdev/steer/pkg/cancel"
)

// scriptedProvider replays a fixed sequence of responses.
type scriptedProvider struct {
	responses [][]entity.AssistantContent
	requests  []*CompletionRequest
}

func (s *scriptedProvider) Name() string { return "scripted" }

func (s *scriptedProvider) Complete(req *CompletionRequest, token *cancel.Token) (*CompletionResponse, error) {
	if token.IsCancelled() {
		return nil, NewCancelledError("scripted")
	}
	s.requests = append(s.requests, req)
	idx := len(s.requests) - 1
	if idx >= len(s.responses) {
		return nil, &ApiError{Kind: ErrKindUnknown, Message: "script exhausted"}
	}
	return &CompletionResponse{Content: s.responses[idx], Model: req.Model}, nil
}

func approveAll(tool.Call) (ApprovalDecision, error) { return Approved, nil }

func seedUser(text string) []entity.Message {
	return []entity.Message{
		entity.NewUserMessage("t0", "", []entity.UserContent{entity.TextContent{Text: text}}),
	}
}

func drainEvents(events chan entity.AgentEvent) []entity.AgentEvent {
	close(events)
	var out []entity.AgentEvent
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

// Scenario S1: a plain text turn terminates after one completion.
func TestRunPlainTurn(t *testing.T) {
	provider := &scriptedProvider{responses: [][]entity.AssistantContent{
		{entity.TextBlock{Text: "4"}},
	}}
	executor := NewAgentExecutor(provider, fastRetry(0), testLogger())
	events := make(chan entity.AgentEvent, 64)

	msg, err := executor.Run(RunRequest{
		Model:           "test-model",
		ThreadID:        "t0",
		InitialMessages: seedUser("What is 2+2?"),
		Approve:         approveAll,
		Execute: func(call tool.Call, token *cancel.Token) (valueobject.ToolResult, error) {
			t.Fatal("no tool execution expected")
			return nil, nil
		},
	}, events, cancel.NewToken())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := entity.AssistantText(msg.Content); got != "4" {
		t.Errorf("final text = %q, want 4", got)
	}

	collected := drainEvents(events)
	if len(collected) != 1 || collected[0].Type != entity.EventMessageFinal {
		t.Fatalf("expected exactly one MessageFinal, got %d events", len(collected))
	}
	if collected[0].Message.Meta().ParentID != "" && len(provider.requests) != 1 {
		t.Error("single completion expected")
	}
}

// Scenario S2: one approved tool call, then a closing text reply.
func TestRunSingleToolCallApproved(t *testing.T) {
	provider := &scriptedProvider{responses: [][]entity.AssistantContent{
		{entity.ToolCallContent{ID: "c1", Name: "ls", Parameters: map[string]any{".": true}}},
		{entity.TextBlock{Text: "Found a and b."}},
	}}
	executor := NewAgentExecutor(provider, fastRetry(0), testLogger())
	events := make(chan entity.AgentEvent, 64)

	executed := 0
	msg, err := executor.Run(RunRequest{
		Model:           "test-model",
		ThreadID:        "t0",
		InitialMessages: seedUser("List files."),
		Approve:         approveAll,
		Execute: func(call tool.Call, token *cancel.Token) (valueobject.ToolResult, error) {
			executed++
			if call.ID != "c1" || call.Name != "ls" {
				t.Errorf("unexpected call %+v", call)
			}
			return valueobject.FileListResult{Entries: []string{"a", "b"}}, nil
		},
	}, events, cancel.NewToken())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if executed != 1 {
		t.Errorf("execution callback invoked %d times, want 1", executed)
	}
	if got := entity.AssistantText(msg.Content); got != "Found a and b." {
		t.Errorf("final text = %q", got)
	}

	collected := drainEvents(events)
	var kinds []entity.AgentEventType
	for _, ev := range collected {
		kinds = append(kinds, ev.Type)
	}
	want := []entity.AgentEventType{
		entity.EventMessageFinal,  // assistant with c1
		entity.EventExecutingTool, // c1 begins
		entity.EventMessageFinal,  // tool result
		entity.EventMessageFinal,  // closing text
	}
	if len(kinds) != len(want) {
		t.Fatalf("event kinds = %v, want %v", kinds, want)
	}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("event kinds = %v, want %v", kinds, want)
		}
	}

	// The second completion observes user, assistant, and tool result.
	second := provider.requests[1].Messages
	if len(second) != 3 {
		t.Fatalf("second call should see 3 messages, got %d", len(second))
	}
	toolMsg, ok := second[2].(*entity.ToolMessage)
	if !ok || toolMsg.ToolUseID != "c1" {
		t.Error("tool result must carry the call id")
	}
	// Assistant-before-result ordering via parent links.
	if toolMsg.ParentID != second[1].Meta().ID {
		t.Error("tool message parent should be the assistant message")
	}
}

// Scenario S3: two concurrent calls, one denied — both results appear
// and the loop continues.
func TestRunPartialApproval(t *testing.T) {
	provider := &scriptedProvider{responses: [][]entity.AssistantContent{
		{
			entity.ToolCallContent{ID: "c1", Name: "read", Parameters: map[string]any{}},
			entity.ToolCallContent{ID: "c2", Name: "write", Parameters: map[string]any{}},
		},
		{entity.TextBlock{Text: "done"}},
	}}
	executor := NewAgentExecutor(provider, fastRetry(0), testLogger())
	events := make(chan entity.AgentEvent, 64)

	executions := 0
	_, err := executor.Run(RunRequest{
		Model:           "test-model",
		ThreadID:        "t0",
		InitialMessages: seedUser("go"),
		Approve: func(call tool.Call) (ApprovalDecision, error) {
			if call.ID == "c2" {
				return Denied, nil
			}
			return Approved, nil
		},
		Execute: func(call tool.Call, token *cancel.Token) (valueobject.ToolResult, error) {
			executions++
			if call.ID != "c1" {
				t.Errorf("denied call must not execute, got %s", call.ID)
			}
			return valueobject.FileContentResult{Path: "f", Content: "ok"}, nil
		},
	}, events, cancel.NewToken())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if executions != 1 {
		t.Errorf("expected one execution, got %d", executions)
	}

	// Results correlate by tool_use_id, not position.
	results := make(map[string]valueobject.ToolResult)
	for _, m := range provider.requests[1].Messages {
		if tm, ok := m.(*entity.ToolMessage); ok {
			results[tm.ToolUseID] = tm.Result
		}
	}
	if len(results) != 2 {
		t.Fatalf("both calls need results, got %d", len(results))
	}
	denied, ok := results["c2"].(valueobject.ErrorResult)
	if !ok {
		t.Fatal("c2 should carry an error result")
	}
	if denied.Err.Kind != tool.ErrDeniedByUser {
		t.Errorf("c2 error kind = %v, want denied_by_user", denied.Err.Kind)
	}
	if _, ok := results["c1"].(valueobject.FileContentResult); !ok {
		t.Error("c1 should carry the real result")
	}
}

// Scenario S4: cancellation mid-execution produces a cancelled tool
// result and a cancelled run.
func TestRunCancellationMidTool(t *testing.T) {
	provider := &scriptedProvider{responses: [][]entity.AssistantContent{
		{entity.ToolCallContent{ID: "c1", Name: "slow", Parameters: map[string]any{}}},
	}}
	executor := NewAgentExecutor(provider, fastRetry(0), testLogger())
	events := make(chan entity.AgentEvent, 64)
	token := cancel.NewToken()

	executing := make(chan struct{})
	type runOutcome struct {
		msg *entity.AssistantMessage
		err error
	}
	done := make(chan runOutcome, 1)
	go func() {
		msg, err := executor.Run(RunRequest{
			Model:           "test-model",
			ThreadID:        "t0",
			InitialMessages: seedUser("go"),
			Approve:         approveAll,
			Execute: func(call tool.Call, tok *cancel.Token) (valueobject.ToolResult, error) {
				close(executing)
				<-tok.Done()
				return nil, tool.NewCancelledError(call.Name)
			},
		}, events, token)
		done <- runOutcome{msg, err}
	}()

	select {
	case <-executing:
	case <-time.After(time.Second):
		t.Fatal("tool execution never started")
	}
	token.Cancel()

	var outcome runOutcome
	select {
	case outcome = <-done:
	case <-time.After(time.Second):
		t.Fatal("run did not settle after cancellation")
	}

	var execErr *AgentExecutorError
	if !errors.As(outcome.err, &execErr) || execErr.Kind != AgentErrCancelled {
		t.Fatalf("expected cancelled run, got %v", outcome.err)
	}

	foundCancelledResult := false
	for _, ev := range drainEvents(events) {
		if ev.Type != entity.EventMessageFinal {
			continue
		}
		if tm, ok := ev.Message.(*entity.ToolMessage); ok && tm.ToolUseID == "c1" {
			if er, ok := tm.Result.(valueobject.ErrorResult); ok && er.Err.Kind == tool.ErrCancelled {
				foundCancelledResult = true
			}
		}
	}
	if !foundCancelledResult {
		t.Error("cancelled tool call should still produce an error-bearing result message")
	}
}

func TestRunCancelledBeforeStart(t *testing.T) {
	provider := &scriptedProvider{responses: nil}
	executor := NewAgentExecutor(provider, fastRetry(0), testLogger())
	token := cancel.NewToken()
	token.Cancel()

	_, err := executor.Run(RunRequest{
		Model:           "test-model",
		ThreadID:        "t0",
		InitialMessages: seedUser("hi"),
		Approve:         approveAll,
		Execute: func(tool.Call, *cancel.Token) (valueobject.ToolResult, error) {
			return nil, nil
		},
	}, make(chan entity.AgentEvent, 4), token)

	var execErr *AgentExecutorError
	if !errors.As(err, &execErr) || execErr.Kind != AgentErrCancelled {
		t.Fatalf("expected cancelled, got %v", err)
	}
	if len(provider.requests) != 0 {
		t.Error("no provider call after pre-cancelled token")
	}
}

// Model-only thought content with no text or tool calls still ends the
// loop.
func TestRunThoughtOnlyResponseTerminates(t *testing.T) {
	provider := &scriptedProvider{responses: [][]entity.AssistantContent{
		{entity.ThoughtContent{Thought: entity.SimpleThought{Text: "hmm"}}},
	}}
	executor := NewAgentExecutor(provider, fastRetry(0), testLogger())

	msg, err := executor.Run(RunRequest{
		Model:           "test-model",
		ThreadID:        "t0",
		InitialMessages: seedUser("?"),
		Approve:         approveAll,
		Execute: func(tool.Call, *cancel.Token) (valueobject.ToolResult, error) {
			return nil, nil
		},
	}, make(chan entity.AgentEvent, 8), cancel.NewToken())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(msg.ToolCalls()) != 0 {
		t.Error("no tool calls expected")
	}
	if len(provider.requests) != 1 {
		t.Errorf("loop should terminate after one call, got %d", len(provider.requests))
	}
}

// An unknown tool surfaces as an error result and the model may
// correct itself next turn.
func TestRunUnknownToolContinuesLoop(t *testing.T) {
	provider := &scriptedProvider{responses: [][]entity.AssistantContent{
		{entity.ToolCallContent{ID: "c1", Name: "nope", Parameters: map[string]any{}}},
		{entity.TextBlock{Text: "sorry"}},
	}}
	executor := NewAgentExecutor(provider, fastRetry(0), testLogger())

	msg, err := executor.Run(RunRequest{
		Model:           "test-model",
		ThreadID:        "t0",
		InitialMessages: seedUser("go"),
		Approve:         approveAll,
		Execute: func(call tool.Call, token *cancel.Token) (valueobject.ToolResult, error) {
			return nil, tool.NewUnknownToolError(call.Name)
		},
	}, make(chan entity.AgentEvent, 16), cancel.NewToken())
	if err != nil {
		t.Fatalf("tool errors must not abort the loop: %v", err)
	}
	if got := entity.AssistantText(msg.Content); got != "sorry" {
		t.Errorf("final text = %q", got)
	}

	var errResult *valueobject.ErrorResult
	for _, m := range provider.requests[1].Messages {
		if tm, ok := m.(*entity.ToolMessage); ok {
			if er, ok := tm.Result.(valueobject.ErrorResult); ok {
				errResult = &er
			}
		}
	}
	if errResult == nil || errResult.Err.Kind != tool.ErrUnknownTool {
		t.Error("unknown tool should surface as an error result in the next call")
	}
}
