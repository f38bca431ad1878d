// Package cli hosts the thin command-line embedders around the
// engine: a headless one-shot runner and an interactive prompt loop.
// Both are pure command sources and event sinks; rendering stays
// minimal by design.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"

	"github.com/steerdev/steer/internal/application"
	"github.com/steerdev/steer/internal/domain/entity"
)

// HeadlessOptions configures a one-shot run.
type HeadlessOptions struct {
	Prompt       string
	MessagesPath string // optional JSON file with seed messages
	AutoApprove  bool
	Output       io.Writer
}

// RunHeadless submits one prompt, auto-approving tools when asked, and
// prints the final assistant text. Returns a non-nil error on engine
// failure so the caller can map it to a non-zero exit code.
func RunHeadless(engine *application.Engine, opts HeadlessOptions, logger *zap.Logger) error {
	if opts.Output == nil {
		opts.Output = os.Stdout
	}

	go engine.Run()
	defer func() { engine.Commands() <- application.Shutdown{} }()

	engine.Commands() <- application.ProcessUserInput{Text: opts.Prompt}

	var lastAssistant *entity.AssistantMessage
	for ev := range engine.Events() {
		switch e := ev.(type) {
		case application.MessageAppended:
			if am, ok := e.Message.(*entity.AssistantMessage); ok {
				lastAssistant = am
			}
		case application.ApprovalRequested:
			engine.Commands() <- application.HandleToolResponse{
				ID:       e.ToolCallID,
				Approved: opts.AutoApprove,
			}
		case application.ToolExecuting:
			logger.Debug("Executing tool",
				zap.String("tool", e.Name),
				zap.String("tool_call_id", e.ToolCallID),
			)
		case application.ProcessingDone:
			if e.Err != "" {
				return fmt.Errorf("run failed: %s", e.Err)
			}
			if lastAssistant != nil {
				fmt.Fprintln(opts.Output, entity.AssistantText(lastAssistant.Content))
			}
			return nil
		case application.CommandFailed:
			return fmt.Errorf("command rejected: %s", e.Reason)
		}
	}

	return fmt.Errorf("event channel closed before the turn completed")
}

// LoadSeedMessages reads a JSON message list for headless seeding.
func LoadSeedMessages(path string) ([]entity.Message, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read messages file: %w", err)
	}
	messages, err := entity.UnmarshalMessages(data)
	if err != nil {
		return nil, fmt.Errorf("decode messages file: %w", err)
	}
	return messages, nil
}

// DumpMessages writes a thread as indented JSON (session show).
func DumpMessages(w io.Writer, messages []entity.Message) error {
	raw, err := entity.MarshalMessages(messages)
	if err != nil {
		return err
	}
	var buf any
	if err := json.Unmarshal(raw, &buf); err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(buf)
}
