package models

import "time"

// CachedRecord is what the storage layer knows about an item. LastUpdate
// is kept as the raw stored text; the freshness policy parses it.
type CachedRecord struct {
	ItemID     string         `json:"item_id"`
	LastUpdate string         `json:"last_update"`
	Listings   ItemListings   `json:"listings"`
	Prior      *PriorEstimate `json:"prior,omitempty"`
}

// PriorEstimate is the last estimate pair recorded for an item.
type PriorEstimate struct {
	PriceNew       float64    `json:"price_new"`
	PriceUsed      float64    `json:"price_used"`
	ConfidenceNew  Confidence `json:"confidence_new"`
	ConfidenceUsed Confidence `json:"confidence_used"`
}

// PricePoint is one row of an item's price history.
type PricePoint struct {
	PriceNew       float64    `json:"price_new"`
	PriceUsed      float64    `json:"price_used"`
	ConfidenceNew  Confidence `json:"confidence_new"`
	ConfidenceUsed Confidence `json:"confidence_used"`
	ScrapedAt      time.Time  `json:"scraped_at"`
}

// PriceTrend is the percentage change across a history window.
// A nil field means one of the endpoints had no price.
type PriceTrend struct {
	NewChangePct  *float64 `json:"new_change_pct,omitempty"`
	UsedChangePct *float64 `json:"used_change_pct,omitempty"`
}
