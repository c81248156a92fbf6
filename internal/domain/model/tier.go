package model

import (
	"errors"
	"strings"
)

// QualityTier is an output-quality preset. Tiers are totally ordered from
// TierHigh down to TierUltraLow.
type QualityTier string

const (
	TierHigh     QualityTier = "HIGH"
	TierMedium   QualityTier = "MEDIUM"
	TierLow      QualityTier = "LOW"
	TierVeryLow  QualityTier = "VERY_LOW"
	TierUltraLow QualityTier = "ULTRA_LOW"
)

// ErrUnknownQualityTier is returned when a tier string does not name a known tier.
var ErrUnknownQualityTier = errors.New("unknown quality tier")

// tierOrder lists tiers from highest to lowest quality.
var tierOrder = []QualityTier{TierHigh, TierMedium, TierLow, TierVeryLow, TierUltraLow}

// Box is a bounding box expressed as long side × short side.
type Box struct {
	Long  int
	Short int
}

var tierBounds = map[QualityTier]Box{
	TierHigh:     {Long: 1920, Short: 1080},
	TierMedium:   {Long: 1280, Short: 720},
	TierLow:      {Long: 854, Short: 480},
	TierVeryLow:  {Long: 640, Short: 360},
	TierUltraLow: {Long: 426, Short: 240},
}

// ParseQualityTier parses a tier name case-insensitively.
// Unknown names are rejected rather than mapped to a default tier.
func ParseQualityTier(s string) (QualityTier, error) {
	tier := QualityTier(strings.ToUpper(strings.TrimSpace(s)))
	if !tier.IsValid() {
		return "", ErrUnknownQualityTier
	}
	return tier, nil
}

func (t QualityTier) IsValid() bool {
	switch t {
	case TierHigh, TierMedium, TierLow, TierVeryLow, TierUltraLow:
		return true
	default:
		return false
	}
}

func (t QualityTier) String() string {
	return string(t)
}

// Rank returns the position of the tier in the quality order, 0 being the
// highest. Invalid tiers return -1.
func (t QualityTier) Rank() int {
	for i, tier := range tierOrder {
		if tier == t {
			return i
		}
	}
	return -1
}

// Lower reports whether t is a strictly lower quality than other.
func (t QualityTier) Lower(other QualityTier) bool {
	return t.Rank() > other.Rank()
}

// Downgrade returns the next lower tier. TierUltraLow is a fixed point.
func (t QualityTier) Downgrade() QualityTier {
	switch t {
	case TierHigh:
		return TierMedium
	case TierMedium:
		return TierLow
	case TierLow:
		return TierVeryLow
	case TierVeryLow, TierUltraLow:
		return TierUltraLow
	default:
		return t
	}
}

// HasLower reports whether a strictly lower tier exists.
func (t QualityTier) HasLower() bool {
	return t.IsValid() && t != TierUltraLow
}

// Bounds returns the tier's bounding box.
func (t QualityTier) Bounds() Box {
	return tierBounds[t]
}
