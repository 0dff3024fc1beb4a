package usecase

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	domainErrors "github.com/flipmyera/credit-ledger/internal/domain/errors"
	"github.com/flipmyera/credit-ledger/internal/domain/event"
	"github.com/flipmyera/credit-ledger/internal/domain/model"
	"github.com/flipmyera/credit-ledger/internal/domain/repository"
)

// IdentityResolver maps the customer identity carried by a payment event to a profile.
type IdentityResolver struct {
	profiles repository.ProfileRepository
	logger   *zap.Logger
}

// NewIdentityResolver creates a new identity resolver
func NewIdentityResolver(profiles repository.ProfileRepository, logger *zap.Logger) *IdentityResolver {
	return &IdentityResolver{
		profiles: profiles,
		logger:   logger,
	}
}

// Resolve looks the user up by email first and by provider customer id second.
// On success a missing stripe_customer_id is backfilled.
func (r *IdentityResolver) Resolve(ctx context.Context, identity event.Identity) (*model.Profile, error) {
	email := strings.TrimSpace(identity.Email)
	customerID := strings.TrimSpace(identity.CustomerID)

	var profile *model.Profile
	if email != "" {
		p, err := r.profiles.FindByEmail(ctx, email)
		if err != nil {
			return nil, fmt.Errorf("failed to look up profile by email: %w", err)
		}
		profile = p
	}

	if profile == nil && customerID != "" {
		p, err := r.profiles.FindByCustomerID(ctx, customerID)
		if err != nil {
			return nil, fmt.Errorf("failed to look up profile by customer id: %w", err)
		}
		profile = p
	}

	if profile == nil {
		r.logger.Warn("No profile matches payment identity",
			zap.Bool("has_email", email != ""),
			zap.String("customer_id", customerID))
		return nil, domainErrors.ErrUserNotFound
	}

	if customerID != "" && (profile.StripeCustomerID == nil || *profile.StripeCustomerID == "") {
		updated, err := r.profiles.BackfillCustomerID(ctx, profile.ID, customerID)
		if err != nil {
			// The lookup succeeded; a failed backfill only costs a future email lookup.
			r.logger.Warn("Failed to backfill stripe customer id",
				zap.String("user_id", profile.ID),
				zap.String("customer_id", customerID),
				zap.Error(err))
		} else if updated {
			profile.StripeCustomerID = &customerID
			r.logger.Info("Backfilled stripe customer id",
				zap.String("user_id", profile.ID),
				zap.String("customer_id", customerID))
		}
	}

	return profile, nil
}
