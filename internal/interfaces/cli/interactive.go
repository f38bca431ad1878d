package cli

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/steerdev/steer/internal/application"
	"github.com/steerdev/steer/internal/domain/entity"
)

// InteractiveOptions configures the prompt loop.
type InteractiveOptions struct {
	Input       io.Reader
	Output      io.Writer
	AutoApprove bool
}

// RunInteractive reads lines from input and feeds them to the engine,
// printing events as they arrive. "exit" or EOF ends the session;
// "!<command>" runs a shell command locally; everything else is a
// turn. Tool approvals are answered inline on the same input stream.
func RunInteractive(engine *application.Engine, opts InteractiveOptions, logger *zap.Logger) error {
	go engine.Run()
	defer func() { engine.Commands() <- application.Shutdown{} }()

	out := opts.Output
	scanner := bufio.NewScanner(opts.Input)

	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())

		switch {
		case line == "":
			continue
		case line == "exit" || line == "quit":
			return nil
		case strings.HasPrefix(line, "!"):
			engine.Commands() <- application.ExecuteBashCommand{Command: strings.TrimPrefix(line, "!")}
			if err := drainTurn(engine, scanner, out, opts, false); err != nil {
				return err
			}
		default:
			engine.Commands() <- application.ProcessUserInput{Text: line}
			if err := drainTurn(engine, scanner, out, opts, true); err != nil {
				return err
			}
		}
	}
}

// drainTurn consumes events until the turn settles. Approval requests
// block on the same input stream the prompt uses.
func drainTurn(engine *application.Engine, scanner *bufio.Scanner, out io.Writer, opts InteractiveOptions, fullTurn bool) error {
	for ev := range engine.Events() {
		switch e := ev.(type) {
		case application.MessageAppended:
			printMessage(out, e.Message)
			if !fullTurn {
				// Bash commands settle on the appended message;
				// there is no ProcessingDone.
				return nil
			}
		case application.ToolExecuting:
			fmt.Fprintf(out, "⏺ running %s...\n", e.Name)
		case application.ApprovalRequested:
			if opts.AutoApprove {
				engine.Commands() <- application.HandleToolResponse{ID: e.ToolCallID, Approved: true}
				continue
			}
			fmt.Fprintf(out, "Allow tool %s? [y/N/a(lways)] ", e.Name)
			answer := ""
			if scanner.Scan() {
				answer = strings.TrimSpace(scanner.Text())
			}
			engine.Commands() <- application.HandleToolResponse{
				ID:       e.ToolCallID,
				Approved: answer == "y" || answer == "a",
				Always:   answer == "a",
			}
		case application.ProcessingDone:
			if e.Err != "" {
				fmt.Fprintf(out, "error: %s\n", e.Err)
			}
			return nil
		case application.CommandFailed:
			fmt.Fprintf(out, "rejected: %s\n", e.Reason)
			return nil
		case application.ConfigUpdated:
			fmt.Fprintf(out, "model: %s\n", e.Model)
		}
	}
	return fmt.Errorf("event channel closed unexpectedly")
}

// printMessage renders one appended message for the terminal.
func printMessage(w io.Writer, m entity.Message) {
	switch msg := m.(type) {
	case *entity.AssistantMessage:
		if text := entity.AssistantText(msg.Content); text != "" {
			fmt.Fprintln(w, text)
		}
		for _, call := range msg.ToolCalls() {
			fmt.Fprintf(w, "⏺ tool requested: %s\n", call.Name)
		}
	case *entity.ToolMessage:
		fmt.Fprintf(w, "⏺ result (%s):\n%s\n", msg.ToolUseID, msg.Result.LLMFormat())
	case *entity.UserMessage:
		for _, c := range msg.Content {
			if app, ok := c.(entity.AppCommandContent); ok && app.Response != "" {
				fmt.Fprintln(w, app.Response)
			}
		}
	}
}
