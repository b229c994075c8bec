package repo

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/BengeeL/Dental-Chatbot/internal/domain"
)

type ProfileRepository interface {
	InsertIfAbsent(ctx context.Context, profile *domain.Profile) (bool, error)
	FindByID(ctx context.Context, id string) (*domain.Profile, error)
	Ping(ctx context.Context) error
}

type profileRepo struct{ db *gorm.DB }

func NewProfileRepository(db *gorm.DB) ProfileRepository { return &profileRepo{db: db} }

// InsertIfAbsent reports whether a new row was written. An existing row with the same id is left as is.
func (r *profileRepo) InsertIfAbsent(ctx context.Context, profile *domain.Profile) (bool, error) {
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "id"}}, DoNothing: true}).
		Create(profile)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// FindByID returns ErrProfileNotFound for ids that are not uuids instead of letting the
// uuid column reject them.
func (r *profileRepo) FindByID(ctx context.Context, id string) (*domain.Profile, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrProfileNotFound
	}
	var profile domain.Profile
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&profile).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrProfileNotFound
		}
		return nil, err
	}
	return &profile, nil
}

func (r *profileRepo) Ping(ctx context.Context) error {
	sqlDB, err := r.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
