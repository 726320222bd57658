package models

import (
	"bytes"
	"encoding/json"
	"time"
)

// ListingStatus is the completeness flag reported by the marketplace.
type ListingStatus string

const (
	StatusComplete   ListingStatus = "complete"
	StatusIncomplete ListingStatus = "incomplete"
)

// Condition selects the new or used half of an item's listings.
type Condition string

const (
	ConditionNew  Condition = "new"
	ConditionUsed Condition = "used"
)

// ItemType is the catalog type code: S for sets, M for minifigures.
type ItemType string

const (
	ItemTypeSet     ItemType = "S"
	ItemTypeMinifig ItemType = "M"
)

// Listing is a single reported sale or active offer.
// Listings are produced by the scraper and never mutated afterwards.
type Listing struct {
	Price       float64       `json:"price"`
	Quantity    int           `json:"qty"`
	Status      ListingStatus `json:"status"`
	Description string        `json:"description,omitempty"`
}

// UnmarshalJSON accepts "quantity" as an alias of "qty". Unknown fields
// are rejected.
func (l *Listing) UnmarshalJSON(data []byte) error {
	type plain Listing
	var aux struct {
		plain
		Quantity *int `json:"quantity"`
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&aux); err != nil {
		return err
	}
	*l = Listing(aux.plain)
	if aux.Quantity != nil && l.Quantity == 0 {
		l.Quantity = *aux.Quantity
	}
	return nil
}

// Valid reports whether the listing carries the fields the pricing
// pipeline needs. Invalid listings are skipped, never fatal.
func (l Listing) Valid() bool {
	if l.Price <= 0 || l.Quantity < 1 {
		return false
	}
	return l.Status == StatusComplete || l.Status == StatusIncomplete
}

// ConditionBucket holds historical sales and active stock for one condition.
type ConditionBucket struct {
	Sold  []Listing `json:"sold"`
	Stock []Listing `json:"stock"`
}

// Empty reports whether the bucket has no rows at all.
func (b ConditionBucket) Empty() bool {
	return len(b.Sold) == 0 && len(b.Stock) == 0
}

// Specs are the physical attributes used by the part-out analysis.
type Specs struct {
	Parts       int     `json:"parts"`
	WeightGrams float64 `json:"weight_g"`
	Minifigs    int     `json:"minifigs"`
}

// ItemMeta describes the catalog item a listing set belongs to.
type ItemMeta struct {
	ItemID       string    `json:"item_id"`
	ItemName     string    `json:"item_name"`
	ItemType     ItemType  `json:"item_type,omitempty"`
	YearReleased *int      `json:"year_released"`
	Specs        Specs     `json:"specs"`
	Timestamp    time.Time `json:"timestamp"`
}

// ItemListings is the full scrape result for one item.
type ItemListings struct {
	Meta ItemMeta        `json:"meta"`
	New  ConditionBucket `json:"new"`
	Used ConditionBucket `json:"used"`
}

// Bucket returns the listings for the given condition.
func (i ItemListings) Bucket(c Condition) ConditionBucket {
	if c == ConditionUsed {
		return i.Used
	}
	return i.New
}

// Empty reports whether the scrape produced no rows in any table.
func (i ItemListings) Empty() bool {
	return i.New.Empty() && i.Used.Empty()
}

// Component is one sub-item of a composite item, e.g. a minifigure in a set.
type Component struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Quantity int    `json:"qty"`
}

// DetectItemType guesses the catalog type from an ID: set numbers start
// with a digit, minifigure IDs with a theme prefix.
func DetectItemType(id string) ItemType {
	if id != "" && id[0] >= '0' && id[0] <= '9' {
		return ItemTypeSet
	}
	return ItemTypeMinifig
}
