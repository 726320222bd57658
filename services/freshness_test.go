package services

import (
	"testing"
	"time"

	"brick-pricer/models"
)

func newTestPolicy() *FreshnessPolicy {
	p := NewFreshnessPolicy(30 * 24 * time.Hour)
	p.now = func() time.Time { return fixedNow }
	return p
}

func recordAged(age time.Duration, listings models.ItemListings) *models.CachedRecord {
	return &models.CachedRecord{
		ItemID:     "75192-1",
		LastUpdate: fixedNow.Add(-age).Format(time.RFC3339Nano),
		Listings:   listings,
	}
}

func nonEmptyListings() models.ItemListings {
	return models.ItemListings{New: models.ConditionBucket{Stock: []models.Listing{complete(10)}}}
}

func TestFreshnessDecisionTable(t *testing.T) {
	p := newTestPolicy()
	day := 24 * time.Hour

	tests := []struct {
		name    string
		rec     *models.CachedRecord
		deep    bool
		force   bool
		refresh bool
		reason  RefreshReason
	}{
		{"force beats fresh record", recordAged(day, nonEmptyListings()), false, true, true, ReasonForced},
		{"no record", nil, false, false, true, ReasonNoRecord},
		{"empty timestamp", &models.CachedRecord{Listings: nonEmptyListings()}, false, false, true, ReasonBadTimestamp},
		{"garbage timestamp", &models.CachedRecord{LastUpdate: "yesterday", Listings: nonEmptyListings()}, false, false, true, ReasonBadTimestamp},
		{"45 days old without deep scan", recordAged(45*day, nonEmptyListings()), false, false, true, ReasonStale},
		{"hollow scrape with deep scan", recordAged(day, models.ItemListings{}), true, false, true, ReasonHollowScrape},
		{"hollow scrape without deep scan", recordAged(day, models.ItemListings{}), false, false, false, ReasonFresh},
		{"fresh", recordAged(29*day, nonEmptyListings()), true, false, false, ReasonFresh},
	}
	for _, tt := range tests {
		got := p.Evaluate(tt.rec, tt.deep, tt.force)
		if got.Refresh != tt.refresh || got.Reason != tt.reason {
			t.Errorf("%s: got %+v, want refresh=%v reason=%q", tt.name, got, tt.refresh, tt.reason)
		}
		if p.NeedsRefresh(tt.rec, tt.deep, tt.force) != tt.refresh {
			t.Errorf("%s: NeedsRefresh disagrees with Evaluate", tt.name)
		}
	}
}

func TestParseTimestamp(t *testing.T) {
	want := time.Date(2026, 10, 1, 12, 0, 0, 0, time.UTC)
	inputs := []string{
		"2026-10-01T12:00:00Z",
		"2026-10-01T12:00:00",
		"2026-10-01T14:00:00+02:00",
		"2026-10-01 12:00:00+00",
		"2026-10-01 12:00:00+00:00",
		"2026-10-01 12:00:00",
	}
	for _, s := range inputs {
		got, err := ParseTimestamp(s)
		if err != nil {
			t.Errorf("ParseTimestamp(%q): %v", s, err)
			continue
		}
		if !got.Equal(want) {
			t.Errorf("ParseTimestamp(%q) = %v; want %v", s, got, want)
		}
	}

	for _, s := range []string{"", "  ", "not a date", "01/10/2026"} {
		if _, err := ParseTimestamp(s); err == nil {
			t.Errorf("ParseTimestamp(%q): expected error", s)
		}
	}
}
