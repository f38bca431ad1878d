package persistence

import (
	"sort"
	"sync"
	"time"

	"github.com/steerdev/steer/internal/domain/repository"
)

// MemorySessionRepository keeps sessions in process memory. Used by
// tests and by headless runs without a database.
type MemorySessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*repository.Session
}

// NewMemorySessionRepository creates an empty repository.
func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{sessions: make(map[string]*repository.Session)}
}

var _ repository.SessionRepository = (*MemorySessionRepository)(nil)

// Save upserts a session.
func (r *MemorySessionRepository) Save(session *repository.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	session.UpdatedAt = time.Now()
	cp := *session
	r.sessions[session.ID] = &cp
	return nil
}

// FindByID loads one session.
func (r *MemorySessionRepository) FindByID(id string) (*repository.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, repository.ErrSessionNotFound
	}
	cp := *session
	return &cp, nil
}

// Latest returns the most recently updated session.
func (r *MemorySessionRepository) Latest() (*repository.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var latest *repository.Session
	for _, s := range r.sessions {
		if latest == nil || s.UpdatedAt.After(latest.UpdatedAt) {
			latest = s
		}
	}
	if latest == nil {
		return nil, repository.ErrSessionNotFound
	}
	cp := *latest
	return &cp, nil
}

// List returns session summaries, newest first.
func (r *MemorySessionRepository) List() ([]repository.SessionSummary, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	summaries := make([]repository.SessionSummary, 0, len(r.sessions))
	for _, s := range r.sessions {
		summaries = append(summaries, repository.SessionSummary{
			ID:        s.ID,
			Workspace: s.Workspace,
			Messages:  len(s.Messages),
			UpdatedAt: s.UpdatedAt,
		})
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// Delete removes a session.
func (r *MemorySessionRepository) Delete(id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return repository.ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}
