package anthropic

import (
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/steerdev/steer/internal/domain/entity"
	"github.com/steerdev/steer/internal/domain/service"
	"github.com/steerdev/steer/internal/infrastructure/llm"
	"github.com/steerdev/steer/pkg/cancel"
)

// blockAccumulator gathers one content block across delta events,
// keyed by the provider-reported block index. Partial JSON fragments
// concatenate into a well-formed object by block stop.
type blockAccumulator struct {
	kind      string // "text" | "tool_use" | "thinking" | "redacted_thinking"
	id        string
	name      string
	text      strings.Builder
	inputJSON strings.Builder
	signature strings.Builder
	data      string
}

// decodeStream consumes an Anthropic SSE body and emits StreamChunk
// values. The terminal chunk carries the assembled CompletionResponse,
// which is also returned.
func decodeStream(provider string, body io.Reader, deltaCh chan<- service.StreamChunk, token *cancel.Token, logger *zap.Logger) (*service.CompletionResponse, error) {
	reader := llm.NewSSEReader(body)

	blocks := make(map[int]*blockAccumulator)
	var order []int
	var model string
	var usage service.TokenUsage

	emit := func(chunk service.StreamChunk) bool {
		select {
		case deltaCh <- chunk:
			return true
		case <-token.Done():
			return false
		}
	}

	for {
		if token.IsCancelled() {
			return nil, service.NewCancelledError(provider)
		}

		ev, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			if token.IsCancelled() {
				return nil, service.NewCancelledError(provider)
			}
			if errors.Is(err, llm.ErrStreamStalled) {
				return nil, &service.ApiError{
					Kind:     service.ErrKindTimeout,
					Provider: provider,
					Message:  "stream stalled",
					Cause:    err,
				}
			}
			return nil, &service.ApiError{
				Kind:     service.ErrKindNetwork,
				Provider: provider,
				Message:  "stream read",
				Cause:    err,
			}
		}

		var evt StreamEvent
		if err := json.Unmarshal([]byte(ev.Data), &evt); err != nil {
			logger.Debug("Skipping unparseable stream event",
				zap.String("event", ev.Name),
				zap.Error(err),
			)
			continue
		}

		switch ev.Name {
		case "message_start":
			if evt.Message != nil {
				model = evt.Message.Model
				usage.InputTokens = evt.Message.Usage.InputTokens
			}

		case "content_block_start":
			if evt.ContentBlock == nil {
				continue
			}
			acc := &blockAccumulator{
				kind: evt.ContentBlock.Type,
				id:   evt.ContentBlock.ID,
				name: evt.ContentBlock.Name,
				data: evt.ContentBlock.Data,
			}
			blocks[evt.Index] = acc
			order = append(order, evt.Index)

			// Tool-use starts surface only once both id and name are
			// known — for this API that is the start event itself.
			if acc.kind == "tool_use" && acc.id != "" && acc.name != "" {
				if !emit(service.StreamChunk{
					Kind:       service.ChunkToolUseStart,
					ToolCallID: acc.id,
					ToolName:   acc.name,
				}) {
					return nil, service.NewCancelledError(provider)
				}
			}

		case "content_block_delta":
			acc, ok := blocks[evt.Index]
			if !ok || evt.Delta == nil {
				continue
			}
			switch evt.Delta.Type {
			case "text_delta":
				acc.text.WriteString(evt.Delta.Text)
				if !emit(service.StreamChunk{Kind: service.ChunkTextDelta, Delta: evt.Delta.Text}) {
					return nil, service.NewCancelledError(provider)
				}
			case "input_json_delta":
				acc.inputJSON.WriteString(evt.Delta.PartialJSON)
				if !emit(service.StreamChunk{
					Kind:       service.ChunkToolUseInputDelta,
					ToolCallID: acc.id,
					InputDelta: evt.Delta.PartialJSON,
				}) {
					return nil, service.NewCancelledError(provider)
				}
			case "thinking_delta":
				acc.text.WriteString(evt.Delta.Thinking)
				if !emit(service.StreamChunk{Kind: service.ChunkThinkingDelta, Delta: evt.Delta.Thinking}) {
					return nil, service.NewCancelledError(provider)
				}
			case "signature_delta":
				acc.signature.WriteString(evt.Delta.Signature)
			}

		case "content_block_stop":
			if !emit(service.StreamChunk{Kind: service.ChunkContentBlockStop, BlockIndex: evt.Index}) {
				return nil, service.NewCancelledError(provider)
			}

		case "message_delta":
			if evt.Usage != nil {
				usage.OutputTokens = evt.Usage.OutputTokens
			}

		case "message_stop":
			// Terminal; the loop drains on EOF.

		case "ping":
			// Heartbeat.

		case "error":
			msg := "stream error"
			if evt.Error != nil {
				msg = evt.Error.Message
			}
			apiErr := &service.ApiError{
				Kind:     service.ErrKindServerError,
				Provider: provider,
				Message:  msg,
			}
			emit(service.StreamChunk{Kind: service.ChunkError, Err: apiErr})
			return nil, apiErr

		default:
			logger.Debug("Unknown stream event type", zap.String("type", ev.Name))
		}
	}

	resp := &service.CompletionResponse{Model: model, Usage: usage}

	sort.Ints(order)
	seen := make(map[int]bool)
	for _, idx := range order {
		if seen[idx] {
			continue
		}
		seen[idx] = true
		acc := blocks[idx]
		switch acc.kind {
		case "text":
			resp.Content = append(resp.Content, entity.TextBlock{Text: acc.text.String()})
		case "tool_use":
			resp.Content = append(resp.Content, entity.ToolCallContent{
				ID:         acc.id,
				Name:       acc.name,
				Parameters: decodeInput(acc.inputJSON.String()),
			})
		case "thinking":
			resp.Content = append(resp.Content, entity.ThoughtContent{
				Thought: entity.SignedThought{
					Text:      acc.text.String(),
					Signature: acc.signature.String(),
				},
			})
		case "redacted_thinking":
			resp.Content = append(resp.Content, entity.ThoughtContent{
				Thought: entity.RedactedThought{Data: acc.data},
			})
		default:
			resp.Content = append(resp.Content, entity.UnknownContent{Type: acc.kind})
		}
	}

	if !emit(service.StreamChunk{Kind: service.ChunkMessageComplete, Response: resp}) {
		return nil, service.NewCancelledError(provider)
	}

	return resp, nil
}
