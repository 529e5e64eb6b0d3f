package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vtc-premium/service-reservation/internal/domain/fare"
)

// ServiceTierModel is the GORM model for the service_tiers table.
type ServiceTierModel struct {
	Key       string    `gorm:"primaryKey;size:30"`
	Label     string    `gorm:"not null;size:100"`
	PerKm     float64   `gorm:"type:numeric(10,2);not null"`
	SortOrder int       `gorm:"not null;default:0"`
	Active    bool      `gorm:"not null;default:true;index"`
	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for the GORM model.
func (ServiceTierModel) TableName() string {
	return "service_tiers"
}

// GormTierRepository is the GORM-based implementation of fare.TierRepository.
type GormTierRepository struct {
	db *gorm.DB
}

// NewGormTierRepository creates a new GormTierRepository.
func NewGormTierRepository(db *gorm.DB) *GormTierRepository {
	return &GormTierRepository{db: db}
}

// FindActive returns the active tiers in display order.
func (r *GormTierRepository) FindActive(ctx context.Context) ([]fare.ServiceTier, error) {
	var models []ServiceTierModel
	if err := r.db.WithContext(ctx).
		Where("active = ?", true).
		Order("sort_order ASC, key ASC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list service tiers: %w", err)
	}

	tiers := make([]fare.ServiceTier, 0, len(models))
	for i := range models {
		tiers = append(tiers, toDomainTier(&models[i]))
	}
	return tiers, nil
}

// Upsert inserts the tier or updates its label, rate and order, reactivating it.
func (r *GormTierRepository) Upsert(ctx context.Context, tier fare.ServiceTier, sortOrder int) error {
	model := toTierModel(tier, sortOrder)
	if err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"label", "per_km", "sort_order", "active", "updated_at"}),
	}).Create(model).Error; err != nil {
		return fmt.Errorf("failed to upsert service tier %s: %w", tier.Key, err)
	}
	return nil
}

// Deactivate hides a tier from new quotes.
func (r *GormTierRepository) Deactivate(ctx context.Context, key string) error {
	result := r.db.WithContext(ctx).Model(&ServiceTierModel{}).
		Where("key = ?", key).
		Updates(map[string]any{"active": false, "updated_at": time.Now().UTC()})
	if result.Error != nil {
		return fmt.Errorf("failed to deactivate service tier %s: %w", key, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: %q", fare.ErrInvalidTier, key)
	}
	return nil
}

// SeedIfEmpty stores the given tiers when the table has none.
func (r *GormTierRepository) SeedIfEmpty(ctx context.Context, tiers []fare.ServiceTier) error {
	var count int64
	if err := r.db.WithContext(ctx).Model(&ServiceTierModel{}).Count(&count).Error; err != nil {
		return fmt.Errorf("failed to count service tiers: %w", err)
	}
	if count > 0 {
		return nil
	}
	for i, t := range tiers {
		if err := r.Upsert(ctx, t, i); err != nil {
			return err
		}
	}
	return nil
}

// LoadRateTable builds a rate table from the active tiers.
func LoadRateTable(ctx context.Context, repo fare.TierRepository, baseFare float64, currency string) (*fare.RateTable, error) {
	tiers, err := repo.FindActive(ctx)
	if err != nil {
		return nil, err
	}
	if len(tiers) == 0 {
		return nil, fmt.Errorf("no active service tiers")
	}
	return fare.NewRateTable(baseFare, currency, tiers...)
}

func toTierModel(t fare.ServiceTier, sortOrder int) *ServiceTierModel {
	now := time.Now().UTC()
	return &ServiceTierModel{
		Key:       t.Key,
		Label:     t.Label,
		PerKm:     t.PerKm,
		SortOrder: sortOrder,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func toDomainTier(m *ServiceTierModel) fare.ServiceTier {
	return fare.ServiceTier{
		Key:   m.Key,
		Label: m.Label,
		PerKm: m.PerKm,
	}
}
