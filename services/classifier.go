package services

import (
	"brick-pricer/config"
	"brick-pricer/models"
)

// Classifier derives the lifecycle tag and sniper signal of an item from
// its new-condition estimate.
type Classifier struct {
	rules config.PricingRules
}

// NewClassifier creates a Classifier using the fee and margin rules.
func NewClassifier(rules config.PricingRules) *Classifier {
	return &Classifier{rules: rules}
}

// Classify tags the item's lifecycle and rates the cheapest cleaned new
// stock listing against the market price.
func (c *Classifier) Classify(newEstimate models.Estimate, releaseYear *int, currentYear int) models.DeepDive {
	lifecycle := ClassifyLifecycle(releaseYear, currentYear)
	return models.DeepDive{
		Lifecycle: lifecycle,
		Sniper:    c.sniper(newEstimate, lifecycle.Status),
	}
}

// ClassifyLifecycle buckets an item by years since release. The age
// boundaries follow typical catalog retirement cycles and are fixed.
func ClassifyLifecycle(releaseYear *int, currentYear int) models.Lifecycle {
	if releaseYear == nil || *releaseYear <= 0 {
		return models.Lifecycle{Status: models.LifecycleUnknown, Description: "Year not found"}
	}

	year := *releaseYear
	age := currentYear - year
	switch {
	case age <= 1:
		return models.Lifecycle{Status: models.LifecycleNew, Year: &year, Description: "Flooded market"}
	case age <= 4:
		return models.Lifecycle{Status: models.LifecycleEOL, Year: &year, Description: "Production ending soon"}
	default:
		return models.Lifecycle{Status: models.LifecycleRetired, Year: &year, Description: "Production stopped"}
	}
}

func (c *Classifier) sniper(est models.Estimate, status models.LifecycleStatus) *models.SniperSignal {
	stock := est.Stats.Stock.CleanItems
	if len(stock) == 0 {
		return nil
	}

	cheapest := sortedByPrice(stock)[0].Price
	market := est.MarketPrice

	var profit, margin float64
	if market > 0 && cheapest > 0 {
		profit = market - cheapest*c.rules.MarketplaceFee
		margin = profit / cheapest * 100
	}

	rating := models.RatingIrrelevant
	switch {
	case margin >= c.rules.ExcellentMargin:
		rating = models.RatingExcellent
	case margin >= c.rules.GoodMargin:
		rating = models.RatingGood
	}

	if rating == models.RatingGood &&
		(status == models.LifecycleEOL || status == models.LifecycleRetired) {
		rating = models.RatingGreatInvest
	}

	return &models.SniperSignal{
		Price:     cheapest,
		MarginPct: roundTo(margin, 1),
		ProfitAbs: round2(profit),
		Rating:    rating,
	}
}
