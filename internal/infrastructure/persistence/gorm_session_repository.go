package persistence

import (
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/steerdev/steer/internal/domain/repository"
)

// GormSessionRepository persists sessions in the configured database.
type GormSessionRepository struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormSessionRepository creates the repository.
func NewGormSessionRepository(db *gorm.DB, logger *zap.Logger) *GormSessionRepository {
	return &GormSessionRepository{db: db, logger: logger}
}

var _ repository.SessionRepository = (*GormSessionRepository)(nil)

// Save upserts a session.
func (r *GormSessionRepository) Save(session *repository.Session) error {
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	session.UpdatedAt = time.Now()

	model, err := toModel(session)
	if err != nil {
		return err
	}
	return r.db.Save(model).Error
}

// FindByID loads one session.
func (r *GormSessionRepository) FindByID(id string) (*repository.Session, error) {
	var model SessionModel
	if err := r.db.First(&model, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrSessionNotFound
		}
		return nil, err
	}
	return toDomain(&model)
}

// Latest returns the most recently updated session.
func (r *GormSessionRepository) Latest() (*repository.Session, error) {
	var model SessionModel
	if err := r.db.Order("updated_at DESC").First(&model).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, repository.ErrSessionNotFound
		}
		return nil, err
	}
	return toDomain(&model)
}

// List returns session summaries, newest first.
func (r *GormSessionRepository) List() ([]repository.SessionSummary, error) {
	var models []SessionModel
	if err := r.db.Order("updated_at DESC").Find(&models).Error; err != nil {
		return nil, err
	}

	summaries := make([]repository.SessionSummary, 0, len(models))
	for i := range models {
		session, err := toDomain(&models[i])
		if err != nil {
			r.logger.Warn("Skipping undecodable session",
				zap.String("id", models[i].ID),
				zap.Error(err),
			)
			continue
		}
		summaries = append(summaries, repository.SessionSummary{
			ID:        session.ID,
			Workspace: session.Workspace,
			Messages:  len(session.Messages),
			UpdatedAt: session.UpdatedAt,
		})
	}
	return summaries, nil
}

// Delete removes a session.
func (r *GormSessionRepository) Delete(id string) error {
	result := r.db.Delete(&SessionModel{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return repository.ErrSessionNotFound
	}
	return nil
}
