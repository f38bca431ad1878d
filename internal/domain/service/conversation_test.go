package service

import (
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"github.com/steerdev/steer/internal/domain/entity"
	"github.com/steerdev/steer/pkg/cancel"
)

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func userText(text string) []entity.UserContent {
	return []entity.UserContent{entity.TextContent{Text: text}}
}

// appendUser appends a user message chained to the current tail.
func appendUser(c *Conversation, text string) *entity.UserMessage {
	m := entity.NewUserMessage(c.CurrentThreadID(), c.LastMessageID(), userText(text))
	c.Append(m)
	return m
}

func appendAssistant(c *Conversation, content ...entity.AssistantContent) *entity.AssistantMessage {
	m := entity.NewAssistantMessage(c.CurrentThreadID(), c.LastMessageID(), content)
	c.Append(m)
	return m
}

func TestThreadMessagesEmptyConversation(t *testing.T) {
	c := NewConversation("/tmp", testLogger())
	if got := c.ThreadMessages(); len(got) != 0 {
		t.Fatalf("expected empty thread, got %d messages", len(got))
	}
}

func TestAppendAndThreadOrder(t *testing.T) {
	c := NewConversation("/tmp", testLogger())
	u1 := appendUser(c, "first")
	a1 := appendAssistant(c, entity.TextBlock{Text: "reply"})
	u2 := appendUser(c, "second")

	thread := c.ThreadMessages()
	if len(thread) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(thread))
	}
	wantIDs := []string{u1.ID, a1.ID, u2.ID}
	for i, m := range thread {
		if m.Meta().ID != wantIDs[i] {
			t.Errorf("position %d: got %s want %s", i, m.Meta().ID, wantIDs[i])
		}
	}
}

func TestFindToolNameByID(t *testing.T) {
	c := NewConversation("/tmp", testLogger())
	appendUser(c, "list files")
	appendAssistant(c, entity.ToolCallContent{ID: "c1", Name: "ls", Parameters: map[string]any{}})

	name, ok := c.FindToolNameByID("c1")
	if !ok || name != "ls" {
		t.Fatalf("expected (ls, true), got (%s, %v)", name, ok)
	}
	if _, ok := c.FindToolNameByID("missing"); ok {
		t.Error("unknown id should not resolve")
	}
}

// Scenario S6: editing U1 removes A1/U2/A2 and switches to a fresh
// single-message branch.
func TestEditMessageBranchesThread(t *testing.T) {
	c := NewConversation("/tmp", testLogger())
	t0 := c.CurrentThreadID()
	u1 := appendUser(c, "u1")
	appendAssistant(c, entity.TextBlock{Text: "a1"})
	appendUser(c, "u2")
	appendAssistant(c, entity.TextBlock{Text: "a2"})

	t1, ok := c.EditMessage(u1.ID, userText("new"))
	if !ok {
		t.Fatal("edit should succeed for a user message")
	}
	if t1 == t0 {
		t.Error("edit must mint a fresh thread id")
	}
	if c.CurrentThreadID() != t1 {
		t.Error("current thread should switch to the new branch")
	}
	if c.Len() != 1 {
		t.Fatalf("descendants should be removed, store has %d messages", c.Len())
	}

	thread := c.ThreadMessages()
	if len(thread) != 1 {
		t.Fatalf("new branch should hold exactly the edited message, got %d", len(thread))
	}
	edited, isUser := thread[0].(*entity.UserMessage)
	if !isUser {
		t.Fatal("branch root should be a user message")
	}
	if edited.ParentID != "" {
		t.Errorf("edited U1 preserves its parent link, got %q", edited.ParentID)
	}

	// A subsequent reply lands on the new thread with the edited
	// message as parent.
	reply := appendAssistant(c, entity.TextBlock{Text: "fresh"})
	if reply.ThreadID != t1 {
		t.Errorf("reply thread = %s, want %s", reply.ThreadID, t1)
	}
	if reply.ParentID != edited.ID {
		t.Errorf("reply parent = %s, want %s", reply.ParentID, edited.ID)
	}
}

func TestEditNonUserMessageRejected(t *testing.T) {
	c := NewConversation("/tmp", testLogger())
	appendUser(c, "hi")
	a := appendAssistant(c, entity.TextBlock{Text: "yo"})

	if _, ok := c.EditMessage(a.ID, userText("x")); ok {
		t.Error("assistant messages must not be editable")
	}
	if c.Len() != 2 {
		t.Error("failed edit must not modify the store")
	}
}

func TestEditMessageIdenticalContentStillBranches(t *testing.T) {
	c := NewConversation("/tmp", testLogger())
	u := appendUser(c, "same")

	t1, ok := c.EditMessage(u.ID, userText("same"))
	if !ok {
		t.Fatal("edit with identical content should still branch")
	}

	// Property: editing again yields a third independent branch and
	// first-branch messages stay invisible.
	branchMsg := c.ThreadMessages()[0]
	t2, ok := c.EditMessage(branchMsg.Meta().ID, userText("same"))
	if !ok {
		t.Fatal("second edit should succeed")
	}
	if t1 == t2 {
		t.Error("each edit mints an independent branch")
	}
	for _, m := range c.ThreadMessages() {
		if m.Meta().ThreadID == t1 {
			t.Error("messages from the first branch must not appear after the second edit")
		}
	}
}

func TestEditMessageSiblingBranchExcluded(t *testing.T) {
	c := NewConversation("/tmp", testLogger())
	u1 := appendUser(c, "root")
	appendAssistant(c, entity.TextBlock{Text: "old"})

	c.EditMessage(u1.ID, userText("edited"))
	appendAssistant(c, entity.TextBlock{Text: "new branch reply"})

	thread := c.ThreadMessages()
	for _, m := range thread {
		if am, ok := m.(*entity.AssistantMessage); ok {
			if entity.AssistantText(am.Content) == "old" {
				t.Error("sibling branch message leaked into thread view")
			}
		}
	}
}

// stubProvider returns canned content or an error.
type stubProvider struct {
	name     string
	content  []entity.AssistantContent
	err      error
	requests []*CompletionRequest
}

func (s *stubProvider) Name() string { return s.name }

func (s *stubProvider) Complete(req *CompletionRequest, token *cancel.Token) (*CompletionResponse, error) {
	s.requests = append(s.requests, req)
	if token.IsCancelled() {
		return nil, NewCancelledError(s.name)
	}
	if s.err != nil {
		return nil, s.err
	}
	return &CompletionResponse{Content: s.content, Model: req.Model}, nil
}

func fillConversation(c *Conversation, n int) {
	for i := 0; i < n; i++ {
		appendUser(c, fmt.Sprintf("message %d", i))
	}
}

func TestCompactInsufficientMessages(t *testing.T) {
	c := NewConversation("/tmp", testLogger())
	fillConversation(c, 9)

	provider := &stubProvider{name: "stub"}
	outcome, err := c.Compact(provider, "test-model", cancel.NewToken())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != CompactInsufficientMessages {
		t.Fatalf("9 messages should be insufficient, got %v", outcome)
	}
	if len(provider.requests) != 0 {
		t.Error("no provider call expected below the threshold")
	}
	if c.Len() != 9 {
		t.Error("store must be unmodified")
	}
}

func TestCompactReplacesHistoryWithSummaryRoot(t *testing.T) {
	c := NewConversation("/tmp", testLogger())
	fillConversation(c, 10)

	provider := &stubProvider{
		name:    "stub",
		content: []entity.AssistantContent{entity.TextBlock{Text: "the summary"}},
	}
	outcome, err := c.Compact(provider, "test-model", cancel.NewToken())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != CompactSuccess {
		t.Fatalf("expected success, got %v", outcome)
	}
	if len(provider.requests) != 1 {
		t.Fatalf("expected one provider call, got %d", len(provider.requests))
	}
	// The request carries the history plus the synthetic prompt.
	if got := len(provider.requests[0].Messages); got != 11 {
		t.Errorf("summarization request should carry 11 messages, got %d", got)
	}

	if c.Len() != 1 {
		t.Fatalf("store should hold exactly the summary root, got %d", c.Len())
	}
	root, ok := c.Messages()[0].(*entity.UserMessage)
	if !ok {
		t.Fatal("summary root should be a user message")
	}
	if root.ParentID != "" {
		t.Error("summary root must have no parent")
	}
	text, _ := root.Content[0].(entity.TextContent)
	if want := "[CONVERSATION COMPACTED]"; len(text.Text) == 0 || text.Text[:len(want)] != want {
		t.Errorf("summary root must start with the compaction marker, got %q", text.Text)
	}
}

func TestCompactCancelledLeavesStoreUnmodified(t *testing.T) {
	c := NewConversation("/tmp", testLogger())
	fillConversation(c, 12)

	token := cancel.NewToken()
	token.Cancel()

	provider := &stubProvider{name: "stub", content: []entity.AssistantContent{entity.TextBlock{Text: "s"}}}
	outcome, err := c.Compact(provider, "test-model", token)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if outcome != CompactCancelled {
		t.Fatalf("expected cancellation outcome, got %v", outcome)
	}
	if c.Len() != 12 {
		t.Error("cancelled compaction must not modify the store")
	}
}

func TestCompactProviderErrorPropagates(t *testing.T) {
	c := NewConversation("/tmp", testLogger())
	fillConversation(c, 10)

	boom := &ApiError{Kind: ErrKindServerError, Provider: "stub", Message: "boom"}
	provider := &stubProvider{name: "stub", err: boom}
	_, err := c.Compact(provider, "test-model", cancel.NewToken())
	if err == nil || !errors.Is(err, boom) {
		t.Fatalf("provider error should propagate, got %v", err)
	}
	if c.Len() != 10 {
		t.Error("failed compaction must not modify the store")
	}
}
