package commerce

import (
	"strings"
	"time"

	"github.com/kasuwahq/support-agent/storage"
)

// PricingConfig carries every commercial tunable. Source documentation
// disagreed on the free-delivery threshold; it is a single named, configurable
// value here.
type PricingConfig struct {
	FreeDeliveryThreshold float64 `envconfig:"FREE_DELIVERY_THRESHOLD" split_words:"true" default:"200000"`

	SilverThreshold   float64 `envconfig:"SILVER_THRESHOLD" split_words:"true" default:"500000"`
	GoldThreshold     float64 `envconfig:"GOLD_THRESHOLD" split_words:"true" default:"2000000"`
	PlatinumThreshold float64 `envconfig:"PLATINUM_THRESHOLD" split_words:"true" default:"5000000"`

	DefaultPaymentMethod string `envconfig:"DEFAULT_PAYMENT_METHOD" split_words:"true" default:"card"`
}

// tierDiscountRates is fixed by the loyalty program, not configuration.
var tierDiscountRates = map[storage.Tier]float64{
	storage.TierBronze:   0,
	storage.TierSilver:   0.02,
	storage.TierGold:     0.05,
	storage.TierPlatinum: 0.10,
}

func DiscountRate(tier storage.Tier) float64 {
	return tierDiscountRates[tier]
}

// deliveryBands maps a region to its delivery fee band (NGN). Regions outside
// the table fall into the nationwide band.
var deliveryBands = map[string]float64{
	"lagos":         1500,
	"abuja":         2000,
	"ibadan":        2200,
	"abeokuta":      2200,
	"benin city":    2200,
	"port harcourt": 2500,
	"enugu":         2500,
	"kano":          3000,
	"kaduna":        3000,
}

const nationwideDeliveryFee = 3500

// deliveryETADays drives the delivery-date estimate; always >= 1 so the
// delivery date is strictly after creation.
var deliveryETADays = map[string]int{
	"lagos":         2,
	"abuja":         3,
	"ibadan":        3,
	"port harcourt": 4,
}

const nationwideETADays = 5

// Quote is the priced view of a cart.
type Quote struct {
	Subtotal     float64 `json:"subtotal"`
	DiscountRate float64 `json:"discount_rate"`
	TierDiscount float64 `json:"tier_discount"`
	DeliveryFee  float64 `json:"delivery_fee"`
	Total        float64 `json:"total"`
}

// ComputeQuote prices a subtotal for a tier and region. The total is never
// negative; delivery is free at or above the configured threshold.
func (cfg PricingConfig) ComputeQuote(subtotal float64, tier storage.Tier, region string) Quote {
	discount := DiscountRate(tier) * subtotal

	fee := 0.0
	if subtotal > 0 && subtotal < cfg.FreeDeliveryThreshold {
		fee = deliveryFee(region)
	}

	total := subtotal - discount + fee
	if total < 0 {
		total = 0
	}

	return Quote{
		Subtotal:     subtotal,
		DiscountRate: DiscountRate(tier),
		TierDiscount: discount,
		DeliveryFee:  fee,
		Total:        total,
	}
}

func deliveryFee(region string) float64 {
	if fee, ok := deliveryBands[strings.ToLower(strings.TrimSpace(region))]; ok {
		return fee
	}
	return nationwideDeliveryFee
}

// DeliveryDate estimates arrival; strictly after now by construction.
func DeliveryDate(now time.Time, region string) time.Time {
	days, ok := deliveryETADays[strings.ToLower(strings.TrimSpace(region))]
	if !ok {
		days = nationwideETADays
	}
	if days < 1 {
		days = 1
	}
	return now.UTC().AddDate(0, 0, days)
}

// TierFor maps lifetime spend to the loyalty tier it qualifies for.
func (cfg PricingConfig) TierFor(lifetimeSpend float64) storage.Tier {
	switch {
	case lifetimeSpend >= cfg.PlatinumThreshold:
		return storage.TierPlatinum
	case lifetimeSpend >= cfg.GoldThreshold:
		return storage.TierGold
	case lifetimeSpend >= cfg.SilverThreshold:
		return storage.TierSilver
	default:
		return storage.TierBronze
	}
}

// NextTier applies monotonic-upward progression: a customer never drops below
// the tier they already hold.
func (cfg PricingConfig) NextTier(current storage.Tier, lifetimeSpend float64) storage.Tier {
	qualified := cfg.TierFor(lifetimeSpend)
	if current.AtLeast(qualified) {
		return current
	}
	return qualified
}

// ResolvePaymentMethod picks the first explicit closed-set mention, else the
// platform default.
func (cfg PricingConfig) ResolvePaymentMethod(mentioned []string) string {
	if len(mentioned) > 0 && strings.TrimSpace(mentioned[0]) != "" {
		return mentioned[0]
	}
	return cfg.DefaultPaymentMethod
}
