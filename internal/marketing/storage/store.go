package storage

import (
	"context"

	"ms-fulfillment/internal/models"
)

// Store caches marketing profile IDs by email. The cache is advisory:
// a miss or a failed write falls through to the marketing API.
type Store interface {
	GetProfileID(ctx context.Context, email string) (string, error)
	SaveProfile(ctx context.Context, profile models.MarketingProfile) error
}
