package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/steerdev/steer/internal/domain/entity"
	"github.com/steerdev/steer/pkg/cancel"
)

// compactMinMessages is the minimum history size worth summarizing.
const compactMinMessages = 10

// compactMarker prefixes the synthetic root message after compaction.
const compactMarker = "[CONVERSATION COMPACTED]"

// summarizationPrompt asks the model for a structured summary of the
// conversation so far. Appended as a synthetic user message.
const summarizationPrompt = `Summarize the conversation so far for a fresh context window. Structure the summary as:

1. Task: what the user is trying to accomplish.
2. Current state: what has been done, with file paths and key code changes.
3. Tool activity: commands run and their relevant output.
4. Decisions: choices made and why.
5. Open items: what remains, including known failures or blockers.
6. Optional next step.

Be precise and thorough. Include file reads verbatim where they are load-bearing. If the conversation contains additional summarization instructions, follow them as well.`

// CompactOutcome is the result classification of Compact.
type CompactOutcome int

const (
	// CompactSuccess means the history was replaced with a summary root.
	CompactSuccess CompactOutcome = iota

	// CompactInsufficientMessages means there was too little history.
	CompactInsufficientMessages

	// CompactCancelled means cancellation fired during summarization;
	// the store was left unmodified.
	CompactCancelled
)

// Conversation is the append-only message log with branch support.
// It is owned exclusively by the engine loop; external components
// observe it only through emitted events.
type Conversation struct {
	messages         []entity.Message
	workingDirectory string
	currentThreadID  string
	index            map[string]entity.Message // id → message
	logger           *zap.Logger
}

// NewConversation creates an empty conversation rooted in dir.
func NewConversation(dir string, logger *zap.Logger) *Conversation {
	return &Conversation{
		workingDirectory: dir,
		currentThreadID:  entity.NewThreadID(),
		index:            make(map[string]entity.Message),
		logger:           logger,
	}
}

// CurrentThreadID returns the active branch id.
func (c *Conversation) CurrentThreadID() string {
	return c.currentThreadID
}

// SetCurrentThread switches the active branch. Used when restoring a
// persisted conversation.
func (c *Conversation) SetCurrentThread(threadID string) {
	c.currentThreadID = threadID
}

// WorkingDirectory returns the conversation's working directory.
func (c *Conversation) WorkingDirectory() string {
	return c.workingDirectory
}

// Len returns the total number of stored messages across all threads.
func (c *Conversation) Len() int {
	return len(c.messages)
}

// Messages returns the raw message log in append order, all threads.
func (c *Conversation) Messages() []entity.Message {
	return c.messages
}

// Append pushes a message. Constant time; messages are never mutated
// after append.
func (c *Conversation) Append(m entity.Message) {
	c.messages = append(c.messages, m)
	c.index[m.Meta().ID] = m
}

// LastMessageID returns the id of the newest message in the current
// thread view, or empty for a fresh conversation.
func (c *Conversation) LastMessageID() string {
	thread := c.ThreadMessages()
	if len(thread) == 0 {
		return ""
	}
	return thread[len(thread)-1].Meta().ID
}

// FindToolNameByID scans assistant messages for a tool call with the
// given id and returns its tool name.
func (c *Conversation) FindToolNameByID(toolCallID string) (string, bool) {
	for _, m := range c.messages {
		am, ok := m.(*entity.AssistantMessage)
		if !ok {
			continue
		}
		for _, call := range am.ToolCalls() {
			if call.ID == toolCallID {
				return call.Name, true
			}
		}
	}
	return "", false
}

// EditMessage rewrites a user message onto a fresh branch. The edited
// message and its descendant closure are removed, a new thread id is
// minted, and a fresh user message is appended with the preserved
// parent link. Returns the new thread id, or false when the target is
// missing or not a user message. Editing with identical content still
// produces a new branch.
func (c *Conversation) EditMessage(messageID string, newContent []entity.UserContent) (string, bool) {
	target, ok := c.index[messageID]
	if !ok {
		return "", false
	}
	if _, isUser := target.(*entity.UserMessage); !isUser {
		return "", false
	}

	parentID := target.Meta().ParentID

	// Descendant closure: everything reachable by following
	// parent_message_id links down from the edited message.
	toRemove := map[string]bool{messageID: true}
	queue := []string{messageID}
	for len(queue) > 0 {
		currentID := queue[0]
		queue = queue[1:]
		for _, m := range c.messages {
			if m.Meta().ParentID != currentID {
				continue
			}
			childID := m.Meta().ID
			if !toRemove[childID] {
				toRemove[childID] = true
				queue = append(queue, childID)
			}
		}
	}

	kept := c.messages[:0]
	for _, m := range c.messages {
		if toRemove[m.Meta().ID] {
			delete(c.index, m.Meta().ID)
			continue
		}
		kept = append(kept, m)
	}
	c.messages = kept

	newThreadID := entity.NewThreadID()
	edited := entity.NewUserMessage(newThreadID, parentID, newContent)
	c.Append(edited)
	c.currentThreadID = newThreadID

	c.logger.Debug("Message edited onto new branch",
		zap.String("edited_id", messageID),
		zap.String("new_thread", newThreadID),
		zap.Int("removed", len(toRemove)),
	)

	return newThreadID, true
}

// ThreadMessages returns the current thread in temporal order: the
// newest message on the current thread, then parent links walked
// backward across thread boundaries, reversed. Sibling branches never
// appear.
func (c *Conversation) ThreadMessages() []entity.Message {
	var newest entity.Message
	for _, m := range c.messages {
		if m.Meta().ThreadID != c.currentThreadID {
			continue
		}
		if newest == nil || m.Meta().Timestamp >= newest.Meta().Timestamp {
			newest = m
		}
	}

	var result []entity.Message
	for current := newest; current != nil; {
		result = append(result, current)
		parentID := current.Meta().ParentID
		if parentID == "" {
			break
		}
		current = c.index[parentID]
	}

	// Reverse into temporal order.
	for i, j := 0, len(result)-1; i < j; i, j = i+1, j-1 {
		result[i], result[j] = result[j], result[i]
	}
	return result
}

// Compact summarizes the current thread and replaces the history with
// a single synthetic root user message carrying the summary. With
// fewer than 10 messages it returns CompactInsufficientMessages. On
// cancellation the store is left unmodified.
func (c *Conversation) Compact(provider Provider, model string, token *cancel.Token) (CompactOutcome, error) {
	if len(c.messages) < compactMinMessages {
		return CompactInsufficientMessages, nil
	}

	thread := c.ThreadMessages()
	request := make([]entity.Message, 0, len(thread)+1)
	request = append(request, thread...)
	request = append(request, entity.NewUserMessage(
		c.currentThreadID,
		c.LastMessageID(),
		[]entity.UserContent{entity.TextContent{Text: summarizationPrompt}},
	))

	resp, err := provider.Complete(&CompletionRequest{
		Model:    model,
		Messages: request,
	}, token)
	if err != nil {
		if IsCancelled(err) || token.IsCancelled() {
			return CompactCancelled, nil
		}
		return 0, fmt.Errorf("summarize conversation: %w", err)
	}

	summary := entity.AssistantText(resp.Content)

	c.messages = nil
	c.index = make(map[string]entity.Message)
	root := entity.NewUserMessage(c.currentThreadID, "", []entity.UserContent{
		entity.TextContent{
			Text: fmt.Sprintf("%s\n\nPrevious conversation summary:\n%s", compactMarker, summary),
		},
	})
	c.Append(root)

	c.logger.Info("Conversation compacted",
		zap.Int("summary_chars", len(summary)),
	)

	return CompactSuccess, nil
}
