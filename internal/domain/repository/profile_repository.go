package repository

import (
	"context"

	"github.com/flipmyera/credit-ledger/internal/domain/model"
)

// ProfileRepository reads profiles and backfills their provider customer id.
type ProfileRepository interface {
	// FindByEmail matches case-insensitively; returns nil when absent
	FindByEmail(ctx context.Context, email string) (*model.Profile, error)

	// FindByCustomerID returns nil when absent
	FindByCustomerID(ctx context.Context, customerID string) (*model.Profile, error)

	FindByID(ctx context.Context, id string) (*model.Profile, error)

	// BackfillCustomerID sets stripe_customer_id only when it is still empty.
	// It reports whether the row was updated.
	BackfillCustomerID(ctx context.Context, profileID, customerID string) (bool, error)
}
