package services

import (
	"time"

	"brick-pricer/config"
	"brick-pricer/models"
	"brick-pricer/utils"
)

// Analyzer produces the complete analysis of one item's listings.
type Analyzer struct {
	rules      config.PricingRules
	estimator  *Estimator
	classifier *Classifier
	now        func() time.Time
}

// NewAnalyzer wires an estimator and classifier sharing the same rules.
func NewAnalyzer(rules config.PricingRules, logger *utils.Logger) *Analyzer {
	return &Analyzer{
		rules:      rules,
		estimator:  NewEstimator(rules, logger),
		classifier: NewClassifier(rules),
		now:        time.Now,
	}
}

// Analyze estimates both conditions and derives the deep dive and part-out
// views. minifigValueUsed is the used-condition minifigure floor basis;
// minifigValueNew is accepted for symmetry and does not filter new listings.
func (a *Analyzer) Analyze(item models.ItemListings, minifigValueNew, minifigValueUsed float64) *models.Analysis {
	year := item.Meta.YearReleased

	newEst := a.estimator.Estimate(EstimateInput{
		Condition:    models.ConditionNew,
		Bucket:       item.New,
		MinifigValue: minifigValueNew,
		ReleaseYear:  year,
	})
	usedEst := a.estimator.Estimate(EstimateInput{
		Condition:    models.ConditionUsed,
		Bucket:       item.Used,
		MinifigValue: minifigValueUsed,
		ReleaseYear:  year,
	})

	return &models.Analysis{
		New:      newEst,
		Used:     usedEst,
		DeepDive: a.classifier.Classify(newEst, year, a.now().Year()),
		PartOut:  PartOut(a.rules, newEst.MarketPrice, item.Meta.Specs),
		Meta:     item.Meta,
	}
}

// CompareSet relates the minifigure totals of a set to its market prices.
// A share is 0 when the matching set price is 0.
func (a *Analyzer) CompareSet(set *models.Analysis, minifigValueNew, minifigValueUsed float64) *models.SetComparison {
	share := func(figs, price float64) float64 {
		if price <= 0 {
			return 0
		}
		return roundTo(figs/price*100, 1)
	}
	pctNew := share(minifigValueNew, set.New.MarketPrice)
	return &models.SetComparison{
		FigsPctNew:       pctNew,
		FigsPctUsed:      share(minifigValueUsed, set.Used.MarketPrice),
		ProfitVsFigs:     round2(minifigValueNew - set.New.MarketPrice),
		PartOutCandidate: pctNew > a.rules.PartOutFigsPct,
	}
}
