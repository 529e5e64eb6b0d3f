package fare

import "context"

// TierRepository defines persistence operations for service tiers.
type TierRepository interface {
	FindActive(ctx context.Context) ([]ServiceTier, error)
	Upsert(ctx context.Context, tier ServiceTier, sortOrder int) error
	Deactivate(ctx context.Context, key string) error
}
