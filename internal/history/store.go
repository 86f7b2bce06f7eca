package history

import (
	"context"
	"errors"

	"github.com/eleven-am/voice-stt/internal/shared"
	"gorm.io/gorm"
)

const defaultListLimit = 100

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(&Transcript{})
}

func (s *Store) Create(ctx context.Context, t *Transcript) error {
	if t.ID == "" {
		t.ID = shared.NewID("tr_")
	}
	return s.db.WithContext(ctx).Create(t).Error
}

func (s *Store) GetByID(ctx context.Context, id string) (*Transcript, error) {
	var t Transcript
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&t).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, shared.ErrNotFound
	}
	return &t, err
}

// ListBySession returns a session's transcripts oldest first.
func (s *Store) ListBySession(ctx context.Context, sessionID string, limit int) ([]*Transcript, error) {
	if limit <= 0 || limit > defaultListLimit {
		limit = defaultListLimit
	}
	var out []*Transcript
	err := s.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("created_at asc").
		Limit(limit).
		Find(&out).Error
	return out, err
}

func (s *Store) CountBySession(ctx context.Context, sessionID string) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&Transcript{}).Where("session_id = ?", sessionID).Count(&n).Error
	return n, err
}

func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
