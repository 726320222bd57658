package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PricingRules collects the tunable thresholds of the listing filter, the
// estimator, the opportunity classifier and the freshness policy.
// Lifecycle age buckets are deliberately absent: they are fixed business rules.
type PricingRules struct {
	BulkThreshold     int     `yaml:"bulkThreshold"`
	IQRMinListings    int     `yaml:"iqrMinListings"`
	IQRMinSamples     int     `yaml:"iqrMinSamples"`
	IQRMultiplier     float64 `yaml:"iqrMultiplier"`
	MinifigFloorRatio float64 `yaml:"minifigFloorRatio"`
	GlobalFloorRatio  float64 `yaml:"globalFloorRatio"`

	// VolatileFloor replaces the ratio floor for items released in the
	// volatile year. VolatileYear pins that year explicitly; when zero it is
	// computed as the analysis year minus VolatileYearOffset.
	VolatileFloor      float64 `yaml:"volatileFloor"`
	VolatileYear       int     `yaml:"volatileYear"`
	VolatileYearOffset int     `yaml:"volatileYearOffset"`

	HighSoldCount   int     `yaml:"highSoldCount"`
	MediumSoldCount int     `yaml:"mediumSoldCount"`
	HighSoldWeight  float64 `yaml:"highSoldWeight"`
	MedSoldWeight   float64 `yaml:"mediumSoldWeight"`
	DowngradeRatio  float64 `yaml:"downgradeRatio"`
	RangeBand       float64 `yaml:"rangeBand"`
	BuyTargetRatio  float64 `yaml:"buyTargetRatio"`

	MarketplaceFee  float64 `yaml:"marketplaceFee"`
	ExcellentMargin float64 `yaml:"excellentMargin"`
	GoodMargin      float64 `yaml:"goodMargin"`

	StaleAfterDays int `yaml:"staleAfterDays"`

	PartOutHighPPP   float64 `yaml:"partOutHighPPP"`
	PartOutMediumPPP float64 `yaml:"partOutMediumPPP"`

	// PartOutFigsPct is the share of a set's new price its minifigures must
	// exceed for the set to count as a part-out candidate.
	PartOutFigsPct float64 `yaml:"partOutFigsPct"`
}

// DefaultRules returns the rule set the estimator was calibrated with.
func DefaultRules() PricingRules {
	return PricingRules{
		BulkThreshold:     3,
		IQRMinListings:    5,
		IQRMinSamples:     4,
		IQRMultiplier:     1.5,
		MinifigFloorRatio: 0.80,
		GlobalFloorRatio:  0.20,

		VolatileFloor:      1,
		VolatileYear:       0,
		VolatileYearOffset: 0,

		HighSoldCount:   10,
		MediumSoldCount: 2,
		HighSoldWeight:  0.70,
		MedSoldWeight:   0.60,
		DowngradeRatio:  0.30,
		RangeBand:       0.10,
		BuyTargetRatio:  0.80,

		MarketplaceFee:  1.13,
		ExcellentMargin: 20,
		GoodMargin:      10,

		StaleAfterDays: 30,

		PartOutHighPPP:   0.25,
		PartOutMediumPPP: 0.35,
		PartOutFigsPct:   80,
	}
}

// LoadRules overlays the YAML file at path (if any) onto DefaultRules.
// Unreadable or malformed files fall back to the defaults.
func LoadRules(path string) PricingRules {
	rules := DefaultRules()
	if path == "" {
		return rules
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[config] cannot read rules file %s: %v (falling back to defaults)", path, err)
		return rules
	}

	rules, err = ParseRules(raw)
	if err != nil {
		log.Printf("[config] cannot parse rules file %s: %v (falling back to defaults)", path, err)
		return DefaultRules()
	}
	return rules
}

// ParseRules decodes YAML over the defaults. Fields omitted from the
// document keep their default values; non-positive values are reset.
func ParseRules(raw []byte) (PricingRules, error) {
	rules := DefaultRules()
	if err := yaml.Unmarshal(raw, &rules); err != nil {
		return DefaultRules(), err
	}
	rules.sanitize()
	return rules, nil
}

// VolatileYearFor returns the release year treated as volatile when
// analysing at the given time.
func (r PricingRules) VolatileYearFor(now time.Time) int {
	if r.VolatileYear != 0 {
		return r.VolatileYear
	}
	return now.Year() - r.VolatileYearOffset
}

// StaleAfter is the maximum age of a cached record.
func (r PricingRules) StaleAfter() time.Duration {
	return time.Duration(r.StaleAfterDays) * 24 * time.Hour
}

func (r *PricingRules) sanitize() {
	def := DefaultRules()

	resetInt := func(v *int, fallback int) {
		if *v <= 0 {
			*v = fallback
		}
	}
	resetFloat := func(v *float64, fallback float64) {
		if *v <= 0 {
			*v = fallback
		}
	}

	resetInt(&r.BulkThreshold, def.BulkThreshold)
	resetInt(&r.IQRMinListings, def.IQRMinListings)
	resetInt(&r.IQRMinSamples, def.IQRMinSamples)
	resetInt(&r.HighSoldCount, def.HighSoldCount)
	resetInt(&r.MediumSoldCount, def.MediumSoldCount)
	resetInt(&r.StaleAfterDays, def.StaleAfterDays)

	resetFloat(&r.IQRMultiplier, def.IQRMultiplier)
	resetFloat(&r.MinifigFloorRatio, def.MinifigFloorRatio)
	resetFloat(&r.GlobalFloorRatio, def.GlobalFloorRatio)
	resetFloat(&r.VolatileFloor, def.VolatileFloor)
	resetFloat(&r.HighSoldWeight, def.HighSoldWeight)
	resetFloat(&r.MedSoldWeight, def.MedSoldWeight)
	resetFloat(&r.DowngradeRatio, def.DowngradeRatio)
	resetFloat(&r.RangeBand, def.RangeBand)
	resetFloat(&r.BuyTargetRatio, def.BuyTargetRatio)
	resetFloat(&r.MarketplaceFee, def.MarketplaceFee)
	resetFloat(&r.ExcellentMargin, def.ExcellentMargin)
	resetFloat(&r.GoodMargin, def.GoodMargin)
	resetFloat(&r.PartOutHighPPP, def.PartOutHighPPP)
	resetFloat(&r.PartOutMediumPPP, def.PartOutMediumPPP)
	resetFloat(&r.PartOutFigsPct, def.PartOutFigsPct)

	if r.MediumSoldCount > r.HighSoldCount {
		r.MediumSoldCount, r.HighSoldCount = def.MediumSoldCount, def.HighSoldCount
	}
	if r.HighSoldWeight > 1 {
		r.HighSoldWeight = def.HighSoldWeight
	}
	if r.MedSoldWeight > 1 {
		r.MedSoldWeight = def.MedSoldWeight
	}
	if r.VolatileYearOffset < 0 {
		r.VolatileYearOffset = def.VolatileYearOffset
	}
}
