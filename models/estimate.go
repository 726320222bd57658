package models

// Confidence is the reliability tier of a price estimate.
type Confidence string

const (
	ConfidenceLow    Confidence = "LOW"
	ConfidenceMedium Confidence = "MEDIUM"
	ConfidenceHigh   Confidence = "HIGH"
)

// Rank orders confidence tiers, LOW being 0.
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

// DatasetStats summarises one cleaned listing array.
type DatasetStats struct {
	Median     float64   `json:"avg"`
	FinalCount int       `json:"final_count"`
	CleanItems []Listing `json:"clean_items"`
}

// EstimateStats carries the per-source statistics behind an estimate.
type EstimateStats struct {
	Sold        DatasetStats `json:"sold"`
	Stock       DatasetStats `json:"stock"`
	StockAnchor float64      `json:"stock_anchor"`
}

// PriceRange is the ±band around the market price.
type PriceRange struct {
	Low  float64 `json:"low"`
	High float64 `json:"high"`
}

// Estimate is the market valuation of one condition bucket.
type Estimate struct {
	MarketPrice float64       `json:"market_price"`
	Range       PriceRange    `json:"range"`
	BuyTarget   float64       `json:"buy_target"`
	Confidence  Confidence    `json:"confidence"`
	Stats       EstimateStats `json:"stats"`
}

// LifecycleStatus buckets an item by age since release.
type LifecycleStatus string

const (
	LifecycleNew     LifecycleStatus = "NEW"
	LifecycleEOL     LifecycleStatus = "EOL WATCH"
	LifecycleRetired LifecycleStatus = "RETIRED"
	LifecycleUnknown LifecycleStatus = "UNKNOWN"
)

// Lifecycle is the age-based tag of an item.
type Lifecycle struct {
	Status      LifecycleStatus `json:"status"`
	Year        *int            `json:"year"`
	Description string          `json:"desc"`
}

// SniperRating is the qualitative verdict on a buy opportunity.
type SniperRating string

const (
	RatingExcellent   SniperRating = "EXCELLENT"
	RatingGood        SniperRating = "GOOD"
	RatingGreatInvest SniperRating = "GREAT INVEST"
	RatingIrrelevant  SniperRating = "IRRELEVANT"
)

// SniperSignal compares the market price with the cheapest active listing.
type SniperSignal struct {
	Price     float64      `json:"price"`
	MarginPct float64      `json:"margin_pct"`
	ProfitAbs float64      `json:"profit_abs"`
	Rating    SniperRating `json:"rating"`
}

// DeepDive is the investment view of an item. Sniper is nil when there
// is no cleaned new-condition stock to buy from.
type DeepDive struct {
	Lifecycle Lifecycle     `json:"lifecycle"`
	Sniper    *SniperSignal `json:"sniper"`
}

// PartOutRating grades the price per part.
type PartOutRating string

const (
	PartOutHigh   PartOutRating = "HIGH"
	PartOutMedium PartOutRating = "MEDIUM"
	PartOutLow    PartOutRating = "LOW"
)

// PartOut values an item by its physical content.
type PartOut struct {
	PricePerPart  float64       `json:"ppp"`
	PricePerGram  float64       `json:"ppg"`
	PartsCount    int           `json:"parts_count"`
	WeightGrams   float64       `json:"weight_g"`
	MinifigsCount int           `json:"minifigs_count"`
	Rating        PartOutRating `json:"rating"`
	Reason        string        `json:"reason"`
}

// SetComparison weighs a set's market price against the value of its
// minifigures.
type SetComparison struct {
	FigsPctNew       float64 `json:"figs_pct_new"`
	FigsPctUsed      float64 `json:"figs_pct_used"`
	ProfitVsFigs     float64 `json:"profit_vs_figs"`
	PartOutCandidate bool    `json:"part_out_candidate"`
}

// Analysis is the combined result handed to storage and reports.
type Analysis struct {
	New      Estimate `json:"new"`
	Used     Estimate `json:"used"`
	DeepDive DeepDive `json:"deep_dive"`
	PartOut  PartOut  `json:"part_out"`
	Meta     ItemMeta `json:"meta"`
}
