package tool

import (
	"sync"

	"go.uber.org/zap"

	"github.com/steerdev/steer/pkg/cancel"
)

// ExecutionContext carries per-call metadata into a backend.
type ExecutionContext struct {
	SessionID        string
	OperationID      string
	Token            *cancel.Token
	WorkingDirectory string
}

// BackendMetadata describes a backend for diagnostics.
type BackendMetadata struct {
	Name        string
	Kind        string // "local" | "remote" | "read_only"
	Description string
}

// Result is the value a backend returns from Execute. It is defined in
// valueobject; backends depend only on this minimal surface.
type Result interface {
	// LLMFormat renders the result to plain text for the next model call.
	LLMFormat() string
}

// Backend dispatches tool calls by name to an executor. The engine does
// not know how a backend executes a tool; it only knows this contract.
type Backend interface {
	Execute(call Call, execCtx ExecutionContext) (Result, error)
	SupportedTools() []string
	Schemas() []Schema
	RequiresApproval(name string) (bool, error)
	HealthCheck() bool
	Metadata() BackendMetadata
}

// Registry maps tool names to backends. Registration installs an entry
// per name returned by SupportedTools; lookup is O(1).
type Registry struct {
	mu       sync.RWMutex
	backends map[string]Backend
	logger   *zap.Logger
}

// NewRegistry creates an empty backend registry.
func NewRegistry(logger *zap.Logger) *Registry {
	return &Registry{
		backends: make(map[string]Backend),
		logger:   logger,
	}
}

// Register installs a backend for every tool it supports.
// Later registrations win on name conflicts.
func (r *Registry) Register(b Backend) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, name := range b.SupportedTools() {
		if prev, ok := r.backends[name]; ok {
			r.logger.Warn("Tool name re-registered",
				zap.String("tool", name),
				zap.String("previous_backend", prev.Metadata().Name),
				zap.String("new_backend", b.Metadata().Name),
			)
		}
		r.backends[name] = b
	}

	r.logger.Debug("Backend registered",
		zap.String("backend", b.Metadata().Name),
		zap.Int("tools", len(b.SupportedTools())),
	)
}

// Lookup returns the backend for a tool name.
func (r *Registry) Lookup(name string) (Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// Execute dispatches a call to the owning backend. An unknown tool name
// surfaces as ErrUnknownTool.
func (r *Registry) Execute(call Call, execCtx ExecutionContext) (Result, error) {
	b, ok := r.Lookup(call.Name)
	if !ok {
		return nil, NewUnknownToolError(call.Name)
	}
	return b.Execute(call, execCtx)
}

// RequiresApproval asks the owning backend whether the named tool needs
// human approval before execution.
func (r *Registry) RequiresApproval(name string) (bool, error) {
	b, ok := r.Lookup(name)
	if !ok {
		return false, NewUnknownToolError(name)
	}
	return b.RequiresApproval(name)
}

// Schemas returns every registered tool schema, deduplicated per backend.
func (r *Registry) Schemas() []Schema {
	r.mu.RLock()
	defer r.mu.RUnlock()

	seen := make(map[string]bool)
	var schemas []Schema
	for _, b := range r.backends {
		for _, s := range b.Schemas() {
			if seen[s.Name] {
				continue
			}
			seen[s.Name] = true
			schemas = append(schemas, s)
		}
	}
	return schemas
}

// Names returns all registered tool names.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.backends))
	for name := range r.backends {
		names = append(names, name)
	}
	return names
}
