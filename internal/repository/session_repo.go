package repository

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/intervo-dev/intervo-go-api/internal/models"
)

// ErrSessionNotFound indicates no snapshot exists for the session id.
var ErrSessionNotFound = errors.New("session not found")

// SessionRepository persists session snapshots between turns. The engine
// treats it as an opaque collaborator: snapshots go in, sessions come out.
type SessionRepository interface {
	Save(ctx context.Context, session models.Session) error
	Get(ctx context.Context, id string) (models.Session, error)
}

// NewSessionRepository constructs a gorm backed session repository.
func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &sessionRepository{db: db}
}

type sessionRepository struct {
	db *gorm.DB
}

func (r *sessionRepository) Save(ctx context.Context, session models.Session) error {
	record, err := models.NewSessionRecord(session)
	if err != nil {
		return err
	}

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&record).Error
}

func (r *sessionRepository) Get(ctx context.Context, id string) (models.Session, error) {
	var record models.SessionRecord
	if err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return models.Session{}, ErrSessionNotFound
		}
		return models.Session{}, err
	}

	return record.ToSession()
}
