// Package repository defines persistence contracts the infrastructure
// layer implements.
package repository

import (
	"errors"
	"time"

	"github.com/steerdev/steer/internal/domain/entity"
)

// ErrSessionNotFound reports a lookup miss.
var ErrSessionNotFound = errors.New("session not found")

// Session is the persisted conversation document. Message order, ids,
// and parent links survive a round trip; the engine does not prescribe
// the serialization.
type Session struct {
	ID            string
	Workspace     string
	ToolConfig    map[string]any
	SystemPrompt  string
	Metadata      map[string]string
	Messages      []entity.Message
	ApprovedTools []string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// SessionSummary is the listing view of a session.
type SessionSummary struct {
	ID        string
	Workspace string
	Messages  int
	UpdatedAt time.Time
}

// SessionRepository stores conversation sessions.
type SessionRepository interface {
	Save(session *Session) error
	FindByID(id string) (*Session, error)
	Latest() (*Session, error)
	List() ([]SessionSummary, error)
	Delete(id string) error
}
