package services

import (
	"errors"
	"strings"
	"time"

	"brick-pricer/models"
)

// RefreshReason explains a freshness decision.
type RefreshReason string

const (
	ReasonForced       RefreshReason = "forced"
	ReasonNoRecord     RefreshReason = "no cached record"
	ReasonBadTimestamp RefreshReason = "missing or unparseable timestamp"
	ReasonStale        RefreshReason = "stale"
	ReasonHollowScrape RefreshReason = "empty cached scrape"
	ReasonFresh        RefreshReason = "fresh"
)

// FreshnessDecision is the outcome of the freshness policy for one item.
type FreshnessDecision struct {
	Refresh bool          `json:"refresh"`
	Reason  RefreshReason `json:"reason"`
	Age     time.Duration `json:"age_ns,omitempty"`
}

// FreshnessPolicy decides whether a cached record may be served or must be
// re-fetched. It performs no I/O.
type FreshnessPolicy struct {
	staleAfter time.Duration
	now        func() time.Time
}

// NewFreshnessPolicy creates a policy treating records older than
// staleAfter as stale.
func NewFreshnessPolicy(staleAfter time.Duration) *FreshnessPolicy {
	return &FreshnessPolicy{staleAfter: staleAfter, now: time.Now}
}

// NeedsRefresh reports whether the item must be fetched again.
func (p *FreshnessPolicy) NeedsRefresh(rec *models.CachedRecord, deepScan, force bool) bool {
	return p.Evaluate(rec, deepScan, force).Refresh
}

// Evaluate applies the decision table in order; the first matching rule wins.
func (p *FreshnessPolicy) Evaluate(rec *models.CachedRecord, deepScan, force bool) FreshnessDecision {
	if force {
		return FreshnessDecision{Refresh: true, Reason: ReasonForced}
	}
	if rec == nil {
		return FreshnessDecision{Refresh: true, Reason: ReasonNoRecord}
	}

	updated, err := ParseTimestamp(rec.LastUpdate)
	if err != nil {
		return FreshnessDecision{Refresh: true, Reason: ReasonBadTimestamp}
	}

	age := p.now().Sub(updated)
	if age > p.staleAfter {
		return FreshnessDecision{Refresh: true, Reason: ReasonStale, Age: age}
	}

	if deepScan && rec.Listings.Empty() {
		return FreshnessDecision{Refresh: true, Reason: ReasonHollowScrape, Age: age}
	}

	return FreshnessDecision{Refresh: false, Reason: ReasonFresh, Age: age}
}

var errNoTimestamp = errors.New("empty timestamp")

// timestampLayouts covers RFC 3339, ISO timestamps without zone and the
// textual form Postgres uses for timestamptz.
var timestampLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999-07",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// ParseTimestamp parses the stored last-update text. Values without a zone
// are interpreted as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, errNoTimestamp
	}
	var lastErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
