package fare

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrInvalidTier is returned when a tier key is not in the rate table.
var ErrInvalidTier = errors.New("invalid service tier")

// Well-known tier keys.
const (
	TierStandard = "standard"
	TierPremium  = "premium"
	TierBusiness = "business"
)

// ServiceTier is a named pricing category with its own per-kilometer rate.
type ServiceTier struct {
	Key   string  `json:"key"`
	Label string  `json:"label"`
	PerKm float64 `json:"per_km"`
}

// RateTable maps tiers to per-kilometer rates plus a fixed base fare.
// It is read-only once constructed and safe for concurrent use.
type RateTable struct {
	baseFare float64
	currency string
	tiers    map[string]ServiceTier
	order    []string
}

// NewRateTable validates and builds a rate table.
func NewRateTable(baseFare float64, currency string, tiers ...ServiceTier) (*RateTable, error) {
	if baseFare < 0 {
		return nil, fmt.Errorf("base fare cannot be negative: %v", baseFare)
	}
	if len(tiers) == 0 {
		return nil, errors.New("rate table needs at least one tier")
	}
	if currency == "" {
		currency = "EUR"
	}

	rt := &RateTable{
		baseFare: baseFare,
		currency: currency,
		tiers:    make(map[string]ServiceTier, len(tiers)),
	}
	for _, t := range tiers {
		key := strings.ToLower(strings.TrimSpace(t.Key))
		if key == "" {
			return nil, errors.New("tier key is required")
		}
		if t.PerKm < 0 {
			return nil, fmt.Errorf("tier %s: per-km rate cannot be negative", key)
		}
		if _, dup := rt.tiers[key]; dup {
			return nil, fmt.Errorf("duplicate tier: %s", key)
		}
		t.Key = key
		if t.Label == "" {
			t.Label = key
		}
		rt.tiers[key] = t
		rt.order = append(rt.order, key)
	}
	return rt, nil
}

// DefaultRateTable returns the three-tier table used by the hosted widget.
func DefaultRateTable() *RateTable {
	rt, _ := NewRateTable(5.00, "EUR",
		ServiceTier{Key: TierStandard, Label: "Standard", PerKm: 1.50},
		ServiceTier{Key: TierPremium, Label: "Premium", PerKm: 2.00},
		ServiceTier{Key: TierBusiness, Label: "Business", PerKm: 2.50},
	)
	return rt
}

// TwoTierRateTable returns the sedan/van table used by the embeddable widget.
func TwoTierRateTable() *RateTable {
	rt, _ := NewRateTable(5.00, "EUR",
		ServiceTier{Key: TierStandard, Label: "Citadine", PerKm: 1.50},
		ServiceTier{Key: TierPremium, Label: "Van", PerKm: 2.00},
	)
	return rt
}

// BaseFare returns the fixed charge added regardless of distance.
func (rt *RateTable) BaseFare() float64 { return rt.baseFare }

// Currency returns the ISO currency code.
func (rt *RateTable) Currency() string { return rt.currency }

// Tier looks up a tier by key, case-insensitively.
func (rt *RateTable) Tier(key string) (ServiceTier, error) {
	t, ok := rt.tiers[strings.ToLower(strings.TrimSpace(key))]
	if !ok {
		return ServiceTier{}, fmt.Errorf("%w: %q", ErrInvalidTier, key)
	}
	return t, nil
}

// Has reports whether the tier key exists.
func (rt *RateTable) Has(key string) bool {
	_, err := rt.Tier(key)
	return err == nil
}

// Tiers returns the tiers in declaration order.
func (rt *RateTable) Tiers() []ServiceTier {
	out := make([]ServiceTier, 0, len(rt.order))
	for _, k := range rt.order {
		out = append(out, rt.tiers[k])
	}
	return out
}

// Keys returns the sorted tier keys.
func (rt *RateTable) Keys() []string {
	keys := make([]string, 0, len(rt.tiers))
	for k := range rt.tiers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Price computes baseFare + distanceKm × perKm for the tier.
func (rt *RateTable) Price(distanceKm float64, tierKey string) (float64, error) {
	if distanceKm < 0 {
		return 0, fmt.Errorf("distance cannot be negative")
	}
	tier, err := rt.Tier(tierKey)
	if err != nil {
		return 0, err
	}
	return rt.baseFare + distanceKm*tier.PerKm, nil
}

// Describe renders the tier with its rate, e.g. "Standard (1.50€/km)".
func (rt *RateTable) Describe(tierKey string) string {
	tier, err := rt.Tier(tierKey)
	if err != nil {
		return tierKey
	}
	return fmt.Sprintf("%s (%.2f%s/km)", tier.Label, tier.PerKm, currencySymbol(rt.currency))
}

func currencySymbol(code string) string {
	if code == "EUR" {
		return "€"
	}
	return " " + code
}
