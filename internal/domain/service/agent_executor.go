package service

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/steerdev/steer/internal/domain/entity"
	"github.com/steerdev/steer/internal/domain/tool"
	"github.com/steerdev/steer/internal/domain/valueobject"
	"github.com/steerdev/steer/pkg/cancel"
	"github.com/steerdev/steer/pkg/safego"
)

// ApprovalDecision is the verdict from an approval callback.
type ApprovalDecision int

const (
	Approved ApprovalDecision = iota
	Denied
)

// ApprovalCallback decides per call whether a tool executes. The
// executor does not cache approvals; always-approve policies live in
// the callback. The callback may block indefinitely — the executor
// races it against cancellation.
type ApprovalCallback func(call tool.Call) (ApprovalDecision, error)

// ExecutionCallback runs an approved tool call. It must observe the
// token and return promptly once cancellation fires.
type ExecutionCallback func(call tool.Call, token *cancel.Token) (valueobject.ToolResult, error)

// AgentErrorKind classifies executor-level failures.
type AgentErrorKind int

const (
	AgentErrAPI AgentErrorKind = iota
	AgentErrTool
	AgentErrSend
	AgentErrCancelled
	AgentErrInternal
	AgentErrUnexpectedResponse
)

// AgentExecutorError is the terminal failure of a run.
type AgentExecutorError struct {
	Kind    AgentErrorKind
	Message string
	Cause   error
}

func (e *AgentExecutorError) Error() string {
	switch e.Kind {
	case AgentErrCancelled:
		return "operation cancelled"
	case AgentErrUnexpectedResponse:
		return "unexpected API response structure"
	default:
		if e.Cause != nil {
			if e.Message != "" {
				return fmt.Sprintf("%s: %v", e.Message, e.Cause)
			}
			return e.Cause.Error()
		}
		return e.Message
	}
}

func (e *AgentExecutorError) Unwrap() error {
	return e.Cause
}

// ErrRunCancelled is the shared cancellation failure.
func ErrRunCancelled() *AgentExecutorError {
	return &AgentExecutorError{Kind: AgentErrCancelled}
}

// RunRequest is one agent run: a user turn driven to completion.
type RunRequest struct {
	Model           string
	ThreadID        string
	InitialMessages []entity.Message
	SystemPrompt    string
	Tools           []tool.Schema
	Options         *valueobject.CallOptions
	Approve         ApprovalCallback
	Execute         ExecutionCallback
}

// AgentExecutor drives the completion/tool loop for one run at a time.
type AgentExecutor struct {
	provider Provider
	retry    RetryPolicy
	logger   *zap.Logger
}

// NewAgentExecutor creates an executor over the given provider.
func NewAgentExecutor(provider Provider, retry RetryPolicy, logger *zap.Logger) *AgentExecutor {
	return &AgentExecutor{
		provider: provider,
		retry:    retry,
		logger:   logger,
	}
}

// toolTaskResult is one finished tool task, delivered in completion
// order through the results channel.
type toolTaskResult struct {
	callID string
	result valueobject.ToolResult
}

// Run executes the loop: completion → extract tool calls → approve →
// execute → feed results back — until the model stops calling tools,
// cancellation fires, or a fatal error occurs. Events stream on the
// given channel; the final assistant message is returned on success.
//
// Ordering guarantees: the assistant message carrying tool calls is
// appended before any of its results; results land in task-completion
// order (correlate by tool_use_id, not position); the next completion
// observes every result appended so far.
func (a *AgentExecutor) Run(req RunRequest, events chan<- entity.AgentEvent, token *cancel.Token) (*entity.AssistantMessage, error) {
	messages := make([]entity.Message, len(req.InitialMessages))
	copy(messages, req.InitialMessages)

	sm := NewStateMachine(a.logger)

	for {
		if token.IsCancelled() {
			a.logger.Info("Run cancelled before completion call")
			_ = sm.Transition(StateCancelled)
			return nil, ErrRunCancelled()
		}

		iteration := sm.NextIteration()
		if err := sm.Transition(StateCompleting); err != nil {
			return nil, &AgentExecutorError{Kind: AgentErrInternal, Message: err.Error()}
		}

		a.logger.Debug("Calling provider",
			zap.String("model", req.Model),
			zap.Int("iteration", iteration),
			zap.Int("messages", len(messages)),
		)

		resp, err := a.retry.Do(token, a.logger, func() (*CompletionResponse, error) {
			return a.provider.Complete(&CompletionRequest{
				Model:        req.Model,
				Messages:     messages,
				SystemPrompt: req.SystemPrompt,
				Tools:        req.Tools,
				Options:      req.Options,
			}, token)
		})
		if err != nil {
			if IsCancelled(err) || token.IsCancelled() {
				_ = sm.Transition(StateCancelled)
				return nil, ErrRunCancelled()
			}
			_ = sm.Transition(StateError)
			return nil, &AgentExecutorError{Kind: AgentErrAPI, Cause: err}
		}

		sm.AddTokens(resp.Usage.Total())

		parentID := ""
		if len(messages) > 0 {
			parentID = messages[len(messages)-1].Meta().ID
		}

		assistant := entity.NewAssistantMessage(req.ThreadID, parentID, resp.Content)
		messages = append(messages, assistant)

		if err := a.emit(events, entity.NewMessageFinalEvent(assistant), token); err != nil {
			return nil, err
		}

		toolCalls := assistant.ToolCalls()
		if len(toolCalls) == 0 {
			a.logger.Debug("No tool calls requested, run complete",
				zap.Int("iteration", iteration),
			)
			_ = sm.Transition(StateDone)
			return assistant, nil
		}

		a.logger.Debug("Model requested tool calls",
			zap.Int("count", len(toolCalls)),
			zap.Int("iteration", iteration),
		)

		if err := sm.Transition(StateAwaitApproval); err != nil {
			return nil, &AgentExecutorError{Kind: AgentErrInternal, Message: err.Error()}
		}

		// One concurrent task per tool call; results arrive in
		// completion order, not call order.
		results := make(chan toolTaskResult, len(toolCalls))
		for _, tc := range toolCalls {
			call := tool.Call{ID: tc.ID, Name: tc.Name, Parameters: tc.Parameters}
			safego.Go(a.logger, "tool-task-"+call.ID, func() {
				results <- toolTaskResult{
					callID: call.ID,
					result: a.handleToolCall(call, req, events, token),
				}
			})
		}

		// StateExecuting is entered once the first task settles.
		executing := false

		for completed := 0; completed < len(toolCalls); completed++ {
			r := <-results

			if !executing {
				executing = true
				if err := sm.Transition(StateExecuting); err != nil {
					return nil, &AgentExecutorError{Kind: AgentErrInternal, Message: err.Error()}
				}
			}
			sm.RecordToolRun()

			parentID = messages[len(messages)-1].Meta().ID
			toolMsg := entity.NewToolMessage(req.ThreadID, parentID, r.callID, r.result)
			messages = append(messages, toolMsg)

			if err := a.emit(events, entity.NewMessageFinalEvent(toolMsg), token); err != nil {
				return nil, err
			}
		}

		if token.IsCancelled() {
			a.logger.Info("Run cancelled during tool handling")
			_ = sm.Transition(StateCancelled)
			return nil, ErrRunCancelled()
		}

		a.logger.Debug("Tool results drained, looping back to provider")
	}
}

// handleToolCall races approval and execution against cancellation and
// always produces a result — errors become error-bearing results so
// the model sees them.
func (a *AgentExecutor) handleToolCall(call tool.Call, req RunRequest, events chan<- entity.AgentEvent, token *cancel.Token) valueobject.ToolResult {
	type approvalResult struct {
		decision ApprovalDecision
		err      error
	}

	approvalCh := make(chan approvalResult, 1)
	safego.Go(a.logger, "tool-approval-"+call.ID, func() {
		decision, err := req.Approve(call)
		approvalCh <- approvalResult{decision, err}
	})

	var approval approvalResult
	select {
	case <-token.Done():
		a.logger.Warn("Cancellation during tool approval",
			zap.String("tool_call_id", call.ID),
			zap.String("tool", call.Name),
		)
		return valueobject.ErrorResult{Err: tool.NewCancelledError(call.Name)}
	case approval = <-approvalCh:
	}

	if approval.err != nil {
		if tool.IsCancelled(approval.err) {
			a.logger.Warn("Tool approval cancelled",
				zap.String("tool", call.Name),
			)
		} else {
			a.logger.Error("Tool approval failed",
				zap.String("tool", call.Name),
				zap.Error(approval.err),
			)
		}
		return valueobject.NewErrorResult(call.Name, approval.err)
	}

	if approval.decision == Denied {
		a.logger.Warn("Tool approval denied",
			zap.String("tool_call_id", call.ID),
			zap.String("tool", call.Name),
		)
		return valueobject.ErrorResult{Err: tool.NewDeniedError(call.Name)}
	}

	if err := a.emit(events, entity.NewExecutingToolEvent(entity.ToolCallContent{
		ID:         call.ID,
		Name:       call.Name,
		Parameters: call.Parameters,
	}), token); err != nil {
		a.logger.Warn("Failed to emit ExecutingTool event",
			zap.String("tool_call_id", call.ID),
			zap.Error(err),
		)
	}

	type executionResult struct {
		result valueobject.ToolResult
		err    error
	}

	execCh := make(chan executionResult, 1)
	safego.Go(a.logger, "tool-exec-"+call.ID, func() {
		result, err := req.Execute(call, token)
		execCh <- executionResult{result, err}
	})

	select {
	case <-token.Done():
		a.logger.Warn("Cancellation during tool execution",
			zap.String("tool_call_id", call.ID),
			zap.String("tool", call.Name),
		)
		return valueobject.ErrorResult{Err: tool.NewCancelledError(call.Name)}
	case exec := <-execCh:
		if exec.err != nil {
			a.logger.Error("Tool execution failed",
				zap.String("tool_call_id", call.ID),
				zap.String("tool", call.Name),
				zap.Error(exec.err),
			)
			return valueobject.NewErrorResult(call.Name, exec.err)
		}
		return exec.result
	}
}

// emit sends an event, racing the bounded channel against cancellation.
// Events are never dropped silently; back-pressure on the embedder is
// expected. The non-blocking attempt first keeps already-completed
// results flowing after cancellation fires.
func (a *AgentExecutor) emit(events chan<- entity.AgentEvent, ev entity.AgentEvent, token *cancel.Token) error {
	select {
	case events <- ev:
		return nil
	default:
	}
	select {
	case events <- ev:
		return nil
	case <-token.Done():
		return ErrRunCancelled()
	}
}
