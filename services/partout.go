package services

import (
	"brick-pricer/config"
	"brick-pricer/models"
)

// PartOut values an item by price per part and per gram.
func PartOut(rules config.PricingRules, marketPrice float64, specs models.Specs) models.PartOut {
	var ppp, ppg float64
	if specs.Parts > 0 {
		ppp = marketPrice / float64(specs.Parts)
	}
	if specs.WeightGrams > 0 {
		ppg = marketPrice / specs.WeightGrams
	}

	rating, reason := models.PartOutLow, "Expensive per piece"
	if specs.Parts > 0 {
		switch {
		case ppp < rules.PartOutHighPPP:
			rating, reason = models.PartOutHigh, "Excellent price per part"
		case ppp < rules.PartOutMediumPPP:
			rating, reason = models.PartOutMedium, "Decent price per part"
		}
	}

	return models.PartOut{
		PricePerPart:  roundTo(ppp, 3),
		PricePerGram:  roundTo(ppg, 3),
		PartsCount:    specs.Parts,
		WeightGrams:   specs.WeightGrams,
		MinifigsCount: specs.Minifigs,
		Rating:        rating,
		Reason:        reason,
	}
}
