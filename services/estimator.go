package services

import (
	"time"

	"brick-pricer/config"
	"brick-pricer/models"
	"brick-pricer/utils"
)

// Estimator turns a raw condition bucket into a market price estimate.
// It holds no mutable state and may be shared across goroutines.
type Estimator struct {
	rules   config.PricingRules
	cleaner *Cleaner
	logger  *utils.Logger
	now     func() time.Time
}

// NewEstimator creates an Estimator using the given rules.
func NewEstimator(rules config.PricingRules, logger *utils.Logger) *Estimator {
	return &Estimator{
		rules:   rules,
		cleaner: NewCleaner(logger),
		logger:  logger,
		now:     time.Now,
	}
}

// EstimateInput is everything the estimator needs for one condition.
type EstimateInput struct {
	Condition models.Condition
	Bucket    models.ConditionBucket
	// MinifigValue is the summed market value of the item's minifigures.
	// It only acts as a price floor for used listings.
	MinifigValue float64
	ReleaseYear  *int
}

// Estimate runs the full cleaning pipeline and blends the sold median with
// the stock anchor. Empty input yields a zero, LOW confidence estimate.
func (e *Estimator) Estimate(in EstimateInput) models.Estimate {
	originalCount := len(in.Bucket.Sold) + len(in.Bucket.Stock)

	sold, stock := e.Filter(in)
	soldRes := e.ProcessDataset(sold)
	stockRes := e.ProcessDataset(stock)

	soldPrice := soldRes.Median
	stockAnchor := CompetitiveStockPrice(stockRes.CleanItems)
	soldCount := soldRes.FinalCount

	var marketPrice float64
	var confidence models.Confidence
	switch {
	case soldCount >= e.rules.HighSoldCount:
		marketPrice = soldPrice*e.rules.HighSoldWeight + stockAnchor*(1-e.rules.HighSoldWeight)
		confidence = models.ConfidenceHigh
	case soldCount >= e.rules.MediumSoldCount:
		marketPrice = soldPrice*e.rules.MedSoldWeight + stockAnchor*(1-e.rules.MedSoldWeight)
		confidence = models.ConfidenceMedium
	default:
		marketPrice = stockAnchor
		confidence = models.ConfidenceLow
	}

	finalCount := len(soldRes.CleanItems) + len(stockRes.CleanItems)
	if originalCount > 0 && confidence == models.ConfidenceHigh {
		filtered := float64(originalCount-finalCount) / float64(originalCount)
		if filtered > e.rules.DowngradeRatio {
			confidence = models.ConfidenceMedium
			e.logger.Info("[estimator] Confidence downgraded (%s): %.1f%% of data filtered",
				in.Condition, filtered*100)
		}
	}

	if round2(marketPrice) == 0 && soldPrice > 0 {
		marketPrice = soldPrice
	}
	marketPrice = round2(marketPrice)

	return models.Estimate{
		MarketPrice: marketPrice,
		Range: models.PriceRange{
			Low:  round2(marketPrice * (1 - e.rules.RangeBand)),
			High: round2(marketPrice * (1 + e.rules.RangeBand)),
		},
		BuyTarget:  round2(marketPrice * e.rules.BuyTargetRatio),
		Confidence: confidence,
		Stats: models.EstimateStats{
			Sold:        soldRes,
			Stock:       stockRes,
			StockAnchor: stockAnchor,
		},
	}
}

// Filter applies the completeness filter, the minifigure floor and the
// global price floor to both arrays of the bucket.
func (e *Estimator) Filter(in EstimateInput) (sold, stock []models.Listing) {
	sold = e.cleaner.Clean(in.Bucket.Sold)
	stock = e.cleaner.Clean(in.Bucket.Stock)

	if in.Condition == models.ConditionUsed && in.MinifigValue > 0 {
		floor := in.MinifigValue * e.rules.MinifigFloorRatio
		sold = aboveFloor(sold, floor)
		stock = aboveFloor(stock, floor)
	}

	all := append(prices(sold), prices(stock)...)
	if len(all) == 0 {
		return sold, stock
	}

	floor := median(all) * e.rules.GlobalFloorRatio
	if in.ReleaseYear != nil && *in.ReleaseYear == e.rules.VolatileYearFor(e.now()) {
		floor = e.rules.VolatileFloor
	}
	return aboveFloor(sold, floor), aboveFloor(stock, floor)
}

// ProcessDataset removes bulk lots and IQR outliers from an already
// floor-filtered array and reports its median price.
func (e *Estimator) ProcessDataset(items []models.Listing) models.DatasetStats {
	var complete []models.Listing
	for _, l := range items {
		if l.Valid() && l.Status == models.StatusComplete && IsComplete(l) {
			complete = append(complete, l)
		}
	}
	if len(complete) == 0 {
		return models.DatasetStats{CleanItems: []models.Listing{}}
	}

	noBulk := make([]models.Listing, 0, len(complete))
	for _, l := range complete {
		if l.Quantity <= e.rules.BulkThreshold {
			noBulk = append(noBulk, l)
		}
	}

	final := e.rejectOutliers(noBulk)

	return models.DatasetStats{
		Median:     median(prices(final)),
		FinalCount: len(final),
		CleanItems: final,
	}
}

func (e *Estimator) rejectOutliers(items []models.Listing) []models.Listing {
	if len(items) < e.rules.IQRMinListings {
		return items
	}
	samples := expandSamples(items)
	if len(samples) < e.rules.IQRMinSamples {
		return items
	}
	q1, q3, ok := quartiles(samples)
	if !ok {
		return items
	}
	iqr := q3 - q1
	low, high := q1-e.rules.IQRMultiplier*iqr, q3+e.rules.IQRMultiplier*iqr

	kept := make([]models.Listing, 0, len(items))
	for _, l := range items {
		if l.Price >= low && l.Price <= high {
			kept = append(kept, l)
		}
	}
	return kept
}

// CompetitiveStockPrice is the median of the cheapest half of the stock
// listings (at least one listing). It approximates what a buyer would pay
// today rather than the average asking price.
func CompetitiveStockPrice(items []models.Listing) float64 {
	if len(items) == 0 {
		return 0
	}
	sorted := sortedByPrice(items)
	cutoff := len(sorted) / 2
	if cutoff < 1 {
		cutoff = 1
	}
	return median(prices(sorted[:cutoff]))
}

func aboveFloor(items []models.Listing, floor float64) []models.Listing {
	kept := make([]models.Listing, 0, len(items))
	for _, l := range items {
		if l.Price >= floor {
			kept = append(kept, l)
		}
	}
	return kept
}
