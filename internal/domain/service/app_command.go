package service

import (
	"fmt"
	"strings"
)

// AppCommandType is a slash command executed locally, never sent to
// the model.
type AppCommandType int

const (
	CommandClear AppCommandType = iota
	CommandCompact
	CommandModel
)

// AppCommand is a parsed slash command.
type AppCommand struct {
	Type   AppCommandType
	Target string // model target for CommandModel
}

// ParseAppCommand recognizes "/clear", "/compact" and "/model <target>".
// Returns false when the input is not a slash command at all; an
// unknown slash command is an error so the user gets feedback instead
// of the text going to the model.
func ParseAppCommand(input string) (*AppCommand, bool, error) {
	trimmed := strings.TrimSpace(input)
	if !strings.HasPrefix(trimmed, "/") {
		return nil, false, nil
	}

	fields := strings.Fields(strings.TrimPrefix(trimmed, "/"))
	if len(fields) == 0 {
		return nil, true, fmt.Errorf("empty command")
	}

	switch fields[0] {
	case "clear":
		return &AppCommand{Type: CommandClear}, true, nil
	case "compact":
		return &AppCommand{Type: CommandCompact}, true, nil
	case "model":
		if len(fields) < 2 {
			return nil, true, fmt.Errorf("usage: /model <target>")
		}
		return &AppCommand{Type: CommandModel, Target: fields[1]}, true, nil
	default:
		return nil, true, fmt.Errorf("unknown command: /%s", fields[0])
	}
}

// CommandName returns the canonical name of a command type.
func (t AppCommandType) CommandName() string {
	switch t {
	case CommandClear:
		return "clear"
	case CommandCompact:
		return "compact"
	case CommandModel:
		return "model"
	default:
		return "unknown"
	}
}
