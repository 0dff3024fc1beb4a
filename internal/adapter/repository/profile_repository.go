package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/flipmyera/credit-ledger/internal/domain/model"
	"github.com/flipmyera/credit-ledger/internal/domain/repository"
)

type profileRepository struct {
	db *gorm.DB
}

func NewProfileRepository(db *gorm.DB) repository.ProfileRepository {
	return &profileRepository{
		db: db,
	}
}

func (r *profileRepository) FindByEmail(ctx context.Context, email string) (*model.Profile, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, nil
	}
	return r.first(ctx, "LOWER(email) = ?", strings.ToLower(email))
}

func (r *profileRepository) FindByCustomerID(ctx context.Context, customerID string) (*model.Profile, error) {
	if customerID == "" {
		return nil, nil
	}
	return r.first(ctx, "stripe_customer_id = ?", customerID)
}

func (r *profileRepository) FindByID(ctx context.Context, id string) (*model.Profile, error) {
	return r.first(ctx, "id = ?", id)
}

func (r *profileRepository) BackfillCustomerID(ctx context.Context, profileID, customerID string) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&model.Profile{}).
		Where("id = ? AND (stripe_customer_id IS NULL OR stripe_customer_id = '')", profileID).
		Update("stripe_customer_id", customerID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *profileRepository) first(ctx context.Context, query string, args ...interface{}) (*model.Profile, error) {
	var profile model.Profile
	err := r.db.WithContext(ctx).Where(query, args...).First(&profile).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &profile, nil
}
