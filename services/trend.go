package services

import "brick-pricer/models"

// PriceTrend compares the newest and oldest points of a history ordered
// newest first. It returns nil when fewer than two points exist.
func PriceTrend(history []models.PricePoint) *models.PriceTrend {
	if len(history) < 2 {
		return nil
	}
	latest, oldest := history[0], history[len(history)-1]

	trend := &models.PriceTrend{}
	if latest.PriceNew > 0 && oldest.PriceNew > 0 {
		pct := roundTo((latest.PriceNew-oldest.PriceNew)/oldest.PriceNew*100, 1)
		trend.NewChangePct = &pct
	}
	if latest.PriceUsed > 0 && oldest.PriceUsed > 0 {
		pct := roundTo((latest.PriceUsed-oldest.PriceUsed)/oldest.PriceUsed*100, 1)
		trend.UsedChangePct = &pct
	}
	return trend
}
