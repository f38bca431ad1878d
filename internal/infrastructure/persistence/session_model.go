package persistence

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/steerdev/steer/internal/domain/entity"
	"github.com/steerdev/steer/internal/domain/repository"
)

// SessionModel is the database row for one session. Structured fields
// serialize to JSON columns; messages use the entity envelope format
// so ids and parent links survive the round trip.
type SessionModel struct {
	ID            string `gorm:"primaryKey"`
	Workspace     string
	ToolConfig    string `gorm:"type:text"`
	SystemPrompt  string
	Metadata      string `gorm:"type:text"`
	Messages      string `gorm:"type:text"`
	ApprovedTools string `gorm:"type:text"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TableName pins the table name.
func (SessionModel) TableName() string {
	return "sessions"
}

// toModel converts a domain session to its row form.
func toModel(s *repository.Session) (*SessionModel, error) {
	messages, err := entity.MarshalMessages(s.Messages)
	if err != nil {
		return nil, fmt.Errorf("encode messages: %w", err)
	}
	toolConfig, err := json.Marshal(s.ToolConfig)
	if err != nil {
		return nil, fmt.Errorf("encode tool config: %w", err)
	}
	metadata, err := json.Marshal(s.Metadata)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	approved, err := json.Marshal(s.ApprovedTools)
	if err != nil {
		return nil, fmt.Errorf("encode approved tools: %w", err)
	}

	return &SessionModel{
		ID:            s.ID,
		Workspace:     s.Workspace,
		ToolConfig:    string(toolConfig),
		SystemPrompt:  s.SystemPrompt,
		Metadata:      string(metadata),
		Messages:      string(messages),
		ApprovedTools: string(approved),
		CreatedAt:     s.CreatedAt,
		UpdatedAt:     s.UpdatedAt,
	}, nil
}

// toDomain converts a row back to the domain session.
func toDomain(m *SessionModel) (*repository.Session, error) {
	s := &repository.Session{
		ID:           m.ID,
		Workspace:    m.Workspace,
		SystemPrompt: m.SystemPrompt,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}

	if m.Messages != "" {
		messages, err := entity.UnmarshalMessages([]byte(m.Messages))
		if err != nil {
			return nil, fmt.Errorf("decode messages: %w", err)
		}
		s.Messages = messages
	}
	if m.ToolConfig != "" {
		if err := json.Unmarshal([]byte(m.ToolConfig), &s.ToolConfig); err != nil {
			return nil, fmt.Errorf("decode tool config: %w", err)
		}
	}
	if m.Metadata != "" {
		if err := json.Unmarshal([]byte(m.Metadata), &s.Metadata); err != nil {
			return nil, fmt.Errorf("decode metadata: %w", err)
		}
	}
	if m.ApprovedTools != "" {
		if err := json.Unmarshal([]byte(m.ApprovedTools), &s.ApprovedTools); err != nil {
			return nil, fmt.Errorf("decode approved tools: %w", err)
		}
	}
	return s, nil
}
