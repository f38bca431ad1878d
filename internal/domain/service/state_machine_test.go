package service

import "testing"

func TestStateMachineInitial(t *testing.T) {
	sm := NewStateMachine(testLogger())
	if sm.State() != StateIdle {
		t.Errorf("initial state = %s, want idle", sm.State())
	}
	if sm.IsTerminal() {
		t.Error("idle is not terminal")
	}
}

func TestStateMachineValidPaths(t *testing.T) {
	tests := []struct {
		name string
		path []AgentState
	}{
		{
			name: "plain turn",
			path: []AgentState{StateCompleting, StateDone},
		},
		{
			name: "tool iteration",
			path: []AgentState{StateCompleting, StateAwaitApproval, StateExecuting, StateCompleting, StateDone},
		},
		{
			name: "all denied loops back",
			path: []AgentState{StateCompleting, StateAwaitApproval, StateCompleting, StateDone},
		},
		{
			name: "cancel during execution",
			path: []AgentState{StateCompleting, StateAwaitApproval, StateExecuting, StateCancelled},
		},
		{
			name: "provider failure",
			path: []AgentState{StateCompleting, StateError},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := NewStateMachine(testLogger())
			for _, state := range tt.path {
				if err := sm.Transition(state); err != nil {
					t.Fatalf("transition to %s: %v", state, err)
				}
			}
			if sm.State() != tt.path[len(tt.path)-1] {
				t.Errorf("final state = %s", sm.State())
			}
			if !sm.IsTerminal() && sm.State() != StateCompleting {
				t.Log("non-terminal end state", sm.State())
			}
		})
	}
}

func TestStateMachineRejectsInvalidTransition(t *testing.T) {
	sm := NewStateMachine(testLogger())
	if err := sm.Transition(StateExecuting); err == nil {
		t.Error("idle -> executing must be rejected")
	}

	_ = sm.Transition(StateCompleting)
	_ = sm.Transition(StateDone)
	if err := sm.Transition(StateCompleting); err == nil {
		t.Error("terminal states accept no transitions")
	}
}

func TestStateMachineObserver(t *testing.T) {
	sm := NewStateMachine(testLogger())
	var seen []AgentState
	sm.OnTransition(func(from, to AgentState, snap StateSnapshot) {
		seen = append(seen, to)
	})

	_ = sm.Transition(StateCompleting)
	_ = sm.Transition(StateDone)

	if len(seen) != 2 || seen[0] != StateCompleting || seen[1] != StateDone {
		t.Errorf("observer saw %v", seen)
	}
}
