package entity

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/steerdev/steer/internal/domain/tool"
	"github.com/steerdev/steer/internal/domain/valueobject"
)

// Message serialization. The engine does not prescribe where messages
// are stored, but guarantees order, ids, and parent links survive a
// round trip. Content blocks and tool results are encoded as tagged
// envelopes; unknown assistant block types are preserved verbatim.

type messageEnvelope struct {
	Role      Role              `json:"role"`
	ID        string            `json:"id"`
	Timestamp int64             `json:"ts"`
	ThreadID  string            `json:"thread_id"`
	ParentID  string            `json:"parent_message_id,omitempty"`
	Content   []json.RawMessage `json:"content,omitempty"`
	ToolUseID string            `json:"tool_use_id,omitempty"`
	Result    json.RawMessage   `json:"result,omitempty"`
}

type taggedBlock struct {
	Type string `json:"type"`
}

// MarshalMessage encodes a message to its persistent form.
func MarshalMessage(m Message) ([]byte, error) {
	meta := m.Meta()
	env := messageEnvelope{
		Role:      m.Role(),
		ID:        meta.ID,
		Timestamp: meta.Timestamp,
		ThreadID:  meta.ThreadID,
		ParentID:  meta.ParentID,
	}

	switch msg := m.(type) {
	case *UserMessage:
		for _, c := range msg.Content {
			raw, err := marshalUserContent(c)
			if err != nil {
				return nil, err
			}
			env.Content = append(env.Content, raw)
		}
	case *AssistantMessage:
		for _, c := range msg.Content {
			raw, err := marshalAssistantContent(c)
			if err != nil {
				return nil, err
			}
			env.Content = append(env.Content, raw)
		}
	case *ToolMessage:
		env.ToolUseID = msg.ToolUseID
		raw, err := marshalToolResult(msg.Result)
		if err != nil {
			return nil, err
		}
		env.Result = raw
	default:
		return nil, fmt.Errorf("unknown message variant %T", m)
	}

	return json.Marshal(env)
}

// UnmarshalMessage decodes a message from its persistent form.
func UnmarshalMessage(data []byte) (Message, error) {
	var env messageEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode message envelope: %w", err)
	}

	meta := MessageMeta{
		ID:        env.ID,
		Timestamp: env.Timestamp,
		ThreadID:  env.ThreadID,
		ParentID:  env.ParentID,
	}

	switch env.Role {
	case RoleUser:
		msg := &UserMessage{MessageMeta: meta}
		for _, raw := range env.Content {
			c, err := unmarshalUserContent(raw)
			if err != nil {
				return nil, err
			}
			msg.Content = append(msg.Content, c)
		}
		return msg, nil

	case RoleAssistant:
		msg := &AssistantMessage{MessageMeta: meta}
		for _, raw := range env.Content {
			c, err := unmarshalAssistantContent(raw)
			if err != nil {
				return nil, err
			}
			msg.Content = append(msg.Content, c)
		}
		return msg, nil

	case RoleTool:
		result, err := unmarshalToolResult(env.Result)
		if err != nil {
			return nil, err
		}
		return &ToolMessage{MessageMeta: meta, ToolUseID: env.ToolUseID, Result: result}, nil

	default:
		return nil, fmt.Errorf("unknown message role %q", env.Role)
	}
}

// MarshalMessages encodes an ordered message list.
func MarshalMessages(msgs []Message) ([]byte, error) {
	raws := make([]json.RawMessage, 0, len(msgs))
	for _, m := range msgs {
		raw, err := MarshalMessage(m)
		if err != nil {
			return nil, err
		}
		raws = append(raws, raw)
	}
	return json.Marshal(raws)
}

// UnmarshalMessages decodes an ordered message list.
func UnmarshalMessages(data []byte) ([]Message, error) {
	var raws []json.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("decode message list: %w", err)
	}
	msgs := make([]Message, 0, len(raws))
	for _, raw := range raws {
		m, err := UnmarshalMessage(raw)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, m)
	}
	return msgs, nil
}

// --- user content ---

func marshalUserContent(c UserContent) (json.RawMessage, error) {
	switch v := c.(type) {
	case TextContent:
		return json.Marshal(struct {
			Type string `json:"type"`
			TextContent
		}{"text", v})
	case CommandExecutionContent:
		return json.Marshal(struct {
			Type string `json:"type"`
			CommandExecutionContent
		}{"command_execution", v})
	case AppCommandContent:
		return json.Marshal(struct {
			Type string `json:"type"`
			AppCommandContent
		}{"app_command", v})
	default:
		return nil, fmt.Errorf("unknown user content %T", c)
	}
}

func unmarshalUserContent(raw json.RawMessage) (UserContent, error) {
	var tag taggedBlock
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, err
	}
	switch tag.Type {
	case "text":
		var v TextContent
		err := json.Unmarshal(raw, &v)
		return v, err
	case "command_execution":
		var v CommandExecutionContent
		err := json.Unmarshal(raw, &v)
		return v, err
	case "app_command":
		var v AppCommandContent
		err := json.Unmarshal(raw, &v)
		return v, err
	default:
		return nil, fmt.Errorf("unknown user content type %q", tag.Type)
	}
}

// --- assistant content ---

type thoughtEnvelope struct {
	Type      string `json:"type"`
	Text      string `json:"text,omitempty"`
	Signature string `json:"signature,omitempty"`
	Data      string `json:"data,omitempty"`
}

func marshalAssistantContent(c AssistantContent) (json.RawMessage, error) {
	switch v := c.(type) {
	case TextBlock:
		return json.Marshal(struct {
			Type string `json:"type"`
			TextBlock
		}{"text", v})
	case ToolCallContent:
		return json.Marshal(struct {
			Type string `json:"type"`
			ToolCallContent
		}{"tool_call", v})
	case ThoughtContent:
		env := struct {
			Type    string          `json:"type"`
			Thought thoughtEnvelope `json:"thought"`
		}{Type: "thought"}
		switch th := v.Thought.(type) {
		case SimpleThought:
			env.Thought = thoughtEnvelope{Type: "simple", Text: th.Text}
		case SignedThought:
			env.Thought = thoughtEnvelope{Type: "signed", Text: th.Text, Signature: th.Signature}
		case RedactedThought:
			env.Thought = thoughtEnvelope{Type: "redacted", Data: th.Data}
		default:
			return nil, fmt.Errorf("unknown thought variant %T", v.Thought)
		}
		return json.Marshal(env)
	case UnknownContent:
		if len(v.Raw) == 0 {
			return json.Marshal(taggedBlock{Type: v.Type})
		}
		// Round-trip the original payload untouched.
		return json.RawMessage(v.Raw), nil
	default:
		return nil, fmt.Errorf("unknown assistant content %T", c)
	}
}

func unmarshalAssistantContent(raw json.RawMessage) (AssistantContent, error) {
	var tag taggedBlock
	if err := json.Unmarshal(raw, &tag); err != nil {
		return nil, err
	}
	switch tag.Type {
	case "text":
		var v TextBlock
		err := json.Unmarshal(raw, &v)
		return v, err
	case "tool_call":
		var v ToolCallContent
		err := json.Unmarshal(raw, &v)
		return v, err
	case "thought":
		var env struct {
			Thought thoughtEnvelope `json:"thought"`
		}
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, err
		}
		switch env.Thought.Type {
		case "simple":
			return ThoughtContent{Thought: SimpleThought{Text: env.Thought.Text}}, nil
		case "signed":
			return ThoughtContent{Thought: SignedThought{Text: env.Thought.Text, Signature: env.Thought.Signature}}, nil
		case "redacted":
			return ThoughtContent{Thought: RedactedThought{Data: env.Thought.Data}}, nil
		default:
			return nil, fmt.Errorf("unknown thought type %q", env.Thought.Type)
		}
	default:
		// Forward compatibility: preserve blocks this build does not model.
		cp := make([]byte, len(raw))
		copy(cp, raw)
		return UnknownContent{Type: tag.Type, Raw: cp}, nil
	}
}

// --- tool results ---

type resultEnvelope struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload,omitempty"`

	// Error results flatten the tool.Error.
	ErrorKind string `json:"error_kind,omitempty"`
	Tool      string `json:"tool,omitempty"`
	Message   string `json:"message,omitempty"`
}

func marshalToolResult(r valueobject.ToolResult) (json.RawMessage, error) {
	if er, ok := r.(valueobject.ErrorResult); ok {
		env := resultEnvelope{Kind: "error", ErrorKind: er.Err.Kind.String(), Tool: er.Err.Tool}
		if er.Err.Cause != nil {
			env.Message = er.Err.Cause.Error()
		}
		return json.Marshal(env)
	}

	kind, err := resultKindOf(r)
	if err != nil {
		return nil, err
	}
	payload, err := json.Marshal(r)
	if err != nil {
		return nil, err
	}
	return json.Marshal(resultEnvelope{Kind: kind, Payload: payload})
}

func resultKindOf(r valueobject.ToolResult) (string, error) {
	switch r.(type) {
	case valueobject.SearchResult:
		return "search", nil
	case valueobject.FileListResult:
		return "file_list", nil
	case valueobject.FileContentResult:
		return "file_content", nil
	case valueobject.EditResult:
		return "edit", nil
	case valueobject.BashResult:
		return "bash", nil
	case valueobject.GlobResult:
		return "glob", nil
	case valueobject.TodoResult:
		return "todo", nil
	case valueobject.FetchResult:
		return "fetch", nil
	case valueobject.AgentResult:
		return "agent", nil
	case valueobject.ExternalResult:
		return "external", nil
	default:
		return "", fmt.Errorf("unknown tool result %T", r)
	}
}

func unmarshalToolResult(raw json.RawMessage) (valueobject.ToolResult, error) {
	if len(raw) == 0 {
		return nil, errors.New("tool message missing result")
	}
	var env resultEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, err
	}

	switch env.Kind {
	case "error":
		te := &tool.Error{Tool: env.Tool}
		switch env.ErrorKind {
		case "unknown_tool":
			te.Kind = tool.ErrUnknownTool
		case "denied_by_user":
			te.Kind = tool.ErrDeniedByUser
		case "cancelled":
			te.Kind = tool.ErrCancelled
		default:
			te.Kind = tool.ErrExecution
			if env.Message != "" {
				te.Cause = errors.New(env.Message)
			}
		}
		return valueobject.ErrorResult{Err: te}, nil
	case "search":
		var v valueobject.SearchResult
		err := json.Unmarshal(env.Payload, &v)
		return v, err
	case "file_list":
		var v valueobject.FileListResult
		err := json.Unmarshal(env.Payload, &v)
		return v, err
	case "file_content":
		var v valueobject.FileContentResult
		err := json.Unmarshal(env.Payload, &v)
		return v, err
	case "edit":
		var v valueobject.EditResult
		err := json.Unmarshal(env.Payload, &v)
		return v, err
	case "bash":
		var v valueobject.BashResult
		err := json.Unmarshal(env.Payload, &v)
		return v, err
	case "glob":
		var v valueobject.GlobResult
		err := json.Unmarshal(env.Payload, &v)
		return v, err
	case "todo":
		var v valueobject.TodoResult
		err := json.Unmarshal(env.Payload, &v)
		return v, err
	case "fetch":
		var v valueobject.FetchResult
		err := json.Unmarshal(env.Payload, &v)
		return v, err
	case "agent":
		var v valueobject.AgentResult
		err := json.Unmarshal(env.Payload, &v)
		return v, err
	case "external":
		var v valueobject.ExternalResult
		err := json.Unmarshal(env.Payload, &v)
		return v, err
	default:
		return nil, fmt.Errorf("unknown tool result kind %q", env.Kind)
	}
}
