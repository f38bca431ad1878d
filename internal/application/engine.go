package application

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/steerdev/steer/internal/domain/entity"
	"github.com/steerdev/steer/internal/domain/repository"
	"github.com/steerdev/steer/internal/domain/service"
	"github.com/steerdev/steer/internal/domain/tool"
	"github.com/steerdev/steer/internal/domain/valueobject"
	"github.com/steerdev/steer/pkg/cancel"
	"github.com/steerdev/steer/pkg/safego"
)

// EngineConfig selects the engine's model and run options.
type EngineConfig struct {
	Model        string
	SystemPrompt string
	Workspace    string
	SessionID    string
	Options      *valueobject.CallOptions
	Retry        service.RetryPolicy
}

// Engine owns the conversation store and drives agent runs. The
// embedder communicates exclusively over the Commands/Events channels.
type Engine struct {
	config   EngineConfig
	provider service.Provider
	registry *tool.Registry
	sessions repository.SessionRepository // nil = no persistence
	logger   *zap.Logger

	commands chan Command
	events   chan Event

	mu           sync.Mutex
	conversation *service.Conversation
	approved     map[string]bool      // tool name → always approved
	pending      map[string]chan bool // tool call id → decision
	pendingNames map[string]string    // tool call id → tool name
	activeToken  *cancel.Token        // non-nil while a turn runs
	model        string
}

// NewEngine assembles an engine.
func NewEngine(cfg EngineConfig, provider service.Provider, registry *tool.Registry, sessions repository.SessionRepository, logger *zap.Logger) *Engine {
	if cfg.SessionID == "" {
		cfg.SessionID = uuid.NewString()
	}
	return &Engine{
		config:       cfg,
		provider:     provider,
		registry:     registry,
		sessions:     sessions,
		logger:       logger,
		commands:     make(chan Command, ChannelCapacity),
		events:       make(chan Event, ChannelCapacity),
		conversation: service.NewConversation(cfg.Workspace, logger),
		approved:     make(map[string]bool),
		pending:      make(map[string]chan bool),
		pendingNames: make(map[string]string),
		model:        cfg.Model,
	}
}

// Commands is the channel the embedder submits commands on.
func (e *Engine) Commands() chan<- Command {
	return e.commands
}

// Events is the channel the engine emits events on.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// SessionID returns the engine's session identifier.
func (e *Engine) SessionID() string {
	return e.config.SessionID
}

// RestoreSession seeds the conversation from a persisted session.
// Call before Run.
func (e *Engine) RestoreSession(session *repository.Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, m := range session.Messages {
		e.conversation.Append(m)
	}
	if n := len(session.Messages); n > 0 {
		e.conversation.SetCurrentThread(session.Messages[n-1].Meta().ThreadID)
	}
	for _, name := range session.ApprovedTools {
		e.approved[name] = true
	}
	if session.SystemPrompt != "" {
		e.config.SystemPrompt = session.SystemPrompt
	}
}

// Run processes commands until Shutdown. It blocks; start it on its
// own goroutine. The event channel closes on return.
func (e *Engine) Run() {
	defer close(e.events)

	for cmd := range e.commands {
		switch c := cmd.(type) {
		case ProcessUserInput:
			e.handleUserInput(c.Text)
		case HandleToolResponse:
			e.handleToolResponse(c)
		case ExecuteBashCommand:
			e.handleBashCommand(c.Command)
		case CancelProcessing:
			e.handleCancel()
		case GetCurrentConversation:
			e.emitSnapshot()
		case Shutdown:
			e.handleCancel()
			e.logger.Info("Engine shutting down")
			return
		default:
			e.emit(CommandFailed{Reason: fmt.Sprintf("unknown command %T", cmd)})
		}
	}
}

// emit blocks until the embedder drains the event. Events preserve
// engine-side order; nothing is dropped.
func (e *Engine) emit(ev Event) {
	e.events <- ev
}

func (e *Engine) emitSnapshot() {
	e.mu.Lock()
	snapshot := ConversationSnapshot{
		ThreadID: e.conversation.CurrentThreadID(),
		Messages: e.conversation.ThreadMessages(),
	}
	e.mu.Unlock()
	e.emit(snapshot)
}

// handleUserInput routes slash commands locally and starts an agent
// run for everything else.
func (e *Engine) handleUserInput(text string) {
	appCmd, isCommand, err := service.ParseAppCommand(text)
	if isCommand {
		e.handleAppCommand(text, appCmd, err)
		return
	}

	e.mu.Lock()
	if e.activeToken != nil {
		e.mu.Unlock()
		e.emit(CommandFailed{Reason: "a turn is already processing"})
		return
	}

	userMsg := entity.NewUserMessage(
		e.conversation.CurrentThreadID(),
		e.conversation.LastMessageID(),
		[]entity.UserContent{entity.TextContent{Text: text}},
	)
	e.conversation.Append(userMsg)

	token := cancel.NewToken()
	e.activeToken = token
	threadID := e.conversation.CurrentThreadID()
	initial := e.conversation.ThreadMessages()
	model := e.model
	e.mu.Unlock()

	e.emit(MessageAppended{Message: userMsg})
	e.emit(ProcessingStarted{})

	executor := service.NewAgentExecutor(e.provider, e.config.Retry, e.logger)
	agentEvents := make(chan entity.AgentEvent, ChannelCapacity)

	// Forward executor events, appending messages to the store as the
	// single writer for this run.
	var forwardDone sync.WaitGroup
	forwardDone.Add(1)
	safego.Go(e.logger, "agent-event-forwarder", func() {
		defer forwardDone.Done()
		for ev := range agentEvents {
			switch ev.Type {
			case entity.EventMessageFinal:
				e.mu.Lock()
				e.conversation.Append(ev.Message)
				e.mu.Unlock()
				e.emit(MessageAppended{Message: ev.Message})
			case entity.EventExecutingTool:
				e.emit(ToolExecuting{
					ToolCallID: ev.ToolCallID,
					Name:       ev.ToolName,
					Parameters: ev.Parameters,
				})
			}
		}
	})

	safego.Go(e.logger, "agent-run", func() {
		_, runErr := executor.Run(service.RunRequest{
			Model:           model,
			ThreadID:        threadID,
			InitialMessages: initial,
			SystemPrompt:    e.config.SystemPrompt,
			Tools:           e.registry.Schemas(),
			Options:         e.config.Options,
			Approve:         e.approveCallback(token),
			Execute:         e.executeCallback(),
		}, agentEvents, token)

		close(agentEvents)
		forwardDone.Wait()

		e.mu.Lock()
		e.activeToken = nil
		e.failPendingLocked()
		e.mu.Unlock()

		e.persistSession()

		done := ProcessingDone{}
		if runErr != nil {
			done.Err = runErr.Error()
			e.logger.Warn("Turn ended with error", zap.Error(runErr))
		}
		e.emit(done)
	})
}

// approveCallback builds the per-run approval callback: pre-approved
// tools pass straight through; everything else asks the embedder and
// waits for HandleToolResponse or cancellation.
func (e *Engine) approveCallback(token *cancel.Token) service.ApprovalCallback {
	return func(call tool.Call) (service.ApprovalDecision, error) {
		required, err := e.registry.RequiresApproval(call.Name)
		if err != nil {
			return service.Denied, err
		}

		e.mu.Lock()
		preApproved := e.approved[call.Name]
		e.mu.Unlock()

		if !required || preApproved {
			return service.Approved, nil
		}

		decision := make(chan bool, 1)
		e.mu.Lock()
		e.pending[call.ID] = decision
		e.pendingNames[call.ID] = call.Name
		e.mu.Unlock()

		e.emit(ApprovalRequested{
			ToolCallID: call.ID,
			Name:       call.Name,
			Parameters: call.Parameters,
		})

		select {
		case approved := <-decision:
			if approved {
				return service.Approved, nil
			}
			return service.Denied, nil
		case <-token.Done():
			e.mu.Lock()
			delete(e.pending, call.ID)
			delete(e.pendingNames, call.ID)
			e.mu.Unlock()
			return service.Denied, tool.NewCancelledError(call.Name)
		}
	}
}

// executeCallback dispatches approved calls to the backend registry.
func (e *Engine) executeCallback() service.ExecutionCallback {
	return func(call tool.Call, token *cancel.Token) (valueobject.ToolResult, error) {
		e.mu.Lock()
		workspace := e.conversation.WorkingDirectory()
		e.mu.Unlock()

		result, err := e.registry.Execute(call, tool.ExecutionContext{
			SessionID:        e.config.SessionID,
			OperationID:      call.ID,
			Token:            token,
			WorkingDirectory: workspace,
		})
		if err != nil {
			return nil, err
		}
		typed, ok := result.(valueobject.ToolResult)
		if !ok {
			return valueobject.ExternalResult{ToolName: call.Name, Payload: result.LLMFormat()}, nil
		}
		return typed, nil
	}
}

// handleToolResponse resolves a pending approval. Unknown ids are
// idempotently ignored: the turn may have been cancelled meanwhile.
func (e *Engine) handleToolResponse(resp HandleToolResponse) {
	e.mu.Lock()
	decision, ok := e.pending[resp.ID]
	name, haveName := e.pendingNames[resp.ID]
	if ok {
		delete(e.pending, resp.ID)
		delete(e.pendingNames, resp.ID)
	}
	if resp.Approved && resp.Always {
		if !haveName {
			name, haveName = e.conversation.FindToolNameByID(resp.ID)
		}
		if haveName {
			e.approved[name] = true
		}
	}
	e.mu.Unlock()

	if ok {
		decision <- resp.Approved
	}
}

// failPendingLocked denies approvals orphaned by a finished turn.
func (e *Engine) failPendingLocked() {
	for id, decision := range e.pending {
		close(decision)
		delete(e.pending, id)
		delete(e.pendingNames, id)
	}
}

// handleBashCommand executes a user-invoked shell command through the
// bash backend and records it as an executed-command block.
func (e *Engine) handleBashCommand(command string) {
	token := cancel.NewToken()
	call := tool.Call{
		ID:         uuid.NewString(),
		Name:       "bash",
		Parameters: map[string]any{"command": command},
	}

	e.mu.Lock()
	workspace := e.conversation.WorkingDirectory()
	e.mu.Unlock()

	result, err := e.registry.Execute(call, tool.ExecutionContext{
		SessionID:        e.config.SessionID,
		OperationID:      call.ID,
		Token:            token,
		WorkingDirectory: workspace,
	})

	content := entity.CommandExecutionContent{Command: command}
	switch {
	case err != nil:
		content.Stderr = err.Error()
		content.ExitCode = 1
	default:
		if bash, ok := result.(valueobject.BashResult); ok {
			content.Stdout = bash.Stdout
			content.Stderr = bash.Stderr
			content.ExitCode = bash.ExitCode
		} else {
			content.Stdout = result.LLMFormat()
		}
	}

	e.mu.Lock()
	msg := entity.NewUserMessage(
		e.conversation.CurrentThreadID(),
		e.conversation.LastMessageID(),
		[]entity.UserContent{content},
	)
	e.conversation.Append(msg)
	e.mu.Unlock()

	e.emit(MessageAppended{Message: msg})
}

// handleCancel fires the active turn's root token.
func (e *Engine) handleCancel() {
	e.mu.Lock()
	token := e.activeToken
	e.mu.Unlock()
	if token != nil {
		e.logger.Info("Cancelling active turn")
		token.Cancel()
	}
}

// handleAppCommand executes a slash command locally and records it in
// the conversation. App commands are never sent to the model.
func (e *Engine) handleAppCommand(raw string, cmd *service.AppCommand, parseErr error) {
	response := ""

	switch {
	case parseErr != nil:
		response = parseErr.Error()

	case cmd.Type == service.CommandClear:
		e.mu.Lock()
		e.conversation = service.NewConversation(e.config.Workspace, e.logger)
		e.mu.Unlock()
		response = "Conversation cleared."

	case cmd.Type == service.CommandCompact:
		token := cancel.NewToken()
		e.mu.Lock()
		conversation := e.conversation
		model := e.model
		e.mu.Unlock()

		outcome, err := conversation.Compact(e.provider, model, token)
		switch {
		case err != nil:
			response = fmt.Sprintf("Compaction failed: %v", err)
		case outcome == service.CompactInsufficientMessages:
			response = "Not enough messages to compact (minimum 10 required)."
		case outcome == service.CompactCancelled:
			response = "Compaction cancelled."
		default:
			response = "Conversation compacted."
		}

	case cmd.Type == service.CommandModel:
		e.mu.Lock()
		e.model = cmd.Target
		e.mu.Unlock()
		response = fmt.Sprintf("Model set to %s.", cmd.Target)
		e.emit(ConfigUpdated{Model: cmd.Target})
	}

	e.mu.Lock()
	msg := entity.NewUserMessage(
		e.conversation.CurrentThreadID(),
		e.conversation.LastMessageID(),
		[]entity.UserContent{entity.AppCommandContent{Command: raw, Response: response}},
	)
	e.conversation.Append(msg)
	e.mu.Unlock()

	e.emit(MessageAppended{Message: msg})
	e.persistSession()
	e.emit(ProcessingDone{})
}

// persistSession writes the conversation through the session
// repository, when one is configured.
func (e *Engine) persistSession() {
	if e.sessions == nil {
		return
	}

	e.mu.Lock()
	session := &repository.Session{
		ID:           e.config.SessionID,
		Workspace:    e.config.Workspace,
		SystemPrompt: e.config.SystemPrompt,
		Messages:     append([]entity.Message(nil), e.conversation.Messages()...),
	}
	for name := range e.approved {
		session.ApprovedTools = append(session.ApprovedTools, name)
	}
	e.mu.Unlock()

	if err := e.sessions.Save(session); err != nil {
		e.logger.Error("Failed to persist session",
			zap.String("session_id", session.ID),
			zap.Error(err),
		)
	}
}
