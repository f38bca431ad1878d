package service

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
)

// AgentState is one phase of an agent run.
type AgentState string

const (
	StateIdle          AgentState = "idle"
	StateCompleting    AgentState = "completing"
	StateAwaitApproval AgentState = "await_approval"
	StateExecuting     AgentState = "executing"
	StateDone          AgentState = "done"
	StateError         AgentState = "error"
	StateCancelled     AgentState = "cancelled"
)

// validTransitions encodes the loop's state diagram. The executor
// drives these transitions for observability; an invalid transition is
// an invariant violation.
var validTransitions = map[AgentState][]AgentState{
	StateIdle:          {StateCompleting, StateCancelled},
	StateCompleting:    {StateDone, StateAwaitApproval, StateError, StateCancelled, StateCompleting},
	StateAwaitApproval: {StateExecuting, StateCompleting, StateError, StateCancelled},
	StateExecuting:     {StateCompleting, StateError, StateCancelled},
	StateDone:          {},
	StateError:         {},
	StateCancelled:     {},
}

// StateSnapshot is an immutable view of the machine.
type StateSnapshot struct {
	State      AgentState
	Iteration  int
	ToolsRun   int
	TokensUsed int
}

// StateMachine tracks an agent run's lifecycle. All methods are safe
// for concurrent use; only the loop task mutates it in practice.
type StateMachine struct {
	mu         sync.Mutex
	state      AgentState
	iteration  int
	toolsRun   int
	tokensUsed int
	onChange   func(from, to AgentState, snap StateSnapshot)
	logger     *zap.Logger
}

// NewStateMachine creates a machine in StateIdle.
func NewStateMachine(logger *zap.Logger) *StateMachine {
	return &StateMachine{state: StateIdle, logger: logger}
}

// OnTransition installs a transition observer.
func (sm *StateMachine) OnTransition(fn func(from, to AgentState, snap StateSnapshot)) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.onChange = fn
}

// State returns the current state.
func (sm *StateMachine) State() AgentState {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// IsTerminal reports whether the run has ended.
func (sm *StateMachine) IsTerminal() bool {
	switch sm.State() {
	case StateDone, StateError, StateCancelled:
		return true
	}
	return false
}

// Transition moves to the target state, rejecting moves the diagram
// does not allow.
func (sm *StateMachine) Transition(to AgentState) error {
	sm.mu.Lock()
	from := sm.state

	allowed := false
	for _, s := range validTransitions[from] {
		if s == to {
			allowed = true
			break
		}
	}
	if !allowed {
		sm.mu.Unlock()
		return fmt.Errorf("invalid state transition %s -> %s", from, to)
	}

	sm.state = to
	snap := sm.snapshotLocked()
	onChange := sm.onChange
	sm.mu.Unlock()

	sm.logger.Debug("Agent state transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)

	if onChange != nil {
		onChange(from, to, snap)
	}
	return nil
}

// NextIteration increments the loop iteration counter.
func (sm *StateMachine) NextIteration() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.iteration++
	return sm.iteration
}

// RecordToolRun counts a finished tool task.
func (sm *StateMachine) RecordToolRun() {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.toolsRun++
}

// AddTokens accumulates usage from one completion.
func (sm *StateMachine) AddTokens(n int) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.tokensUsed += n
}

// Snapshot returns an immutable view.
func (sm *StateMachine) Snapshot() StateSnapshot {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.snapshotLocked()
}

func (sm *StateMachine) snapshotLocked() StateSnapshot {
	return StateSnapshot{
		State:      sm.state,
		Iteration:  sm.iteration,
		ToolsRun:   sm.toolsRun,
		TokensUsed: sm.tokensUsed,
	}
}
