package services

import (
	"testing"

	"brick-pricer/models"
	"brick-pricer/utils"
)

func newTestLogger() *utils.Logger { return utils.NewDiscardLogger() }

func TestMatchesBlacklist(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"set is missing parts", true},
		{"100% complete, no box", true},
		{"(i) see photos", true},
		{"brand new sealed", false},
		{"complete with manual", false},
	}
	for _, tt := range tests {
		if got := matchesBlacklist(tt.text); got != tt.want {
			t.Errorf("matchesBlacklist(%q) = %v; want %v", tt.text, got, tt.want)
		}
	}
}

func TestNegatedComponentRegexp(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"comes with no minifigs", true},
		{"sold without the box", true},
		{"no original figures", true},
		{"box included", false},
		{"nothing missing, minifigs included", false},
	}
	for _, tt := range tests {
		if got := negatedComponentRegexp.MatchString(tt.text); got != tt.want {
			t.Errorf("negatedComponentRegexp(%q) = %v; want %v", tt.text, got, tt.want)
		}
	}
}

func TestPartialBuildRegexp(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"vehicle only", true},
		{"the castle part only", true},
		{"only vehicle", false},
		{"full build with figures", false},
	}
	for _, tt := range tests {
		if got := partialBuildRegexp.MatchString(tt.text); got != tt.want {
			t.Errorf("partialBuildRegexp(%q) = %v; want %v", tt.text, got, tt.want)
		}
	}
}

func TestMatchesOnlyWithBuildWord(t *testing.T) {
	tests := []struct {
		text string
		want bool
	}{
		{"instructions only", true},
		{"parts only, no figs", true},
		{"only one owner", false},
		{"build is complete", false},
	}
	for _, tt := range tests {
		if got := matchesOnlyWithBuildWord(tt.text); got != tt.want {
			t.Errorf("matchesOnlyWithBuildWord(%q) = %v; want %v", tt.text, got, tt.want)
		}
	}
}

func TestIncompleteReasonRuleOrder(t *testing.T) {
	tests := []struct {
		listing models.Listing
		rule    string
		bad     bool
	}{
		{models.Listing{Status: models.StatusIncomplete, Description: "mint"}, "status-flag", true},
		{models.Listing{Status: models.StatusComplete, Description: "No Minifigs Included"}, "blacklist", true},
		{models.Listing{Status: models.StatusComplete, Description: "Sold WITHOUT the box"}, "negated-component", true},
		{models.Listing{Status: models.StatusComplete, Description: "Vehicle   only"}, "partial-build", true},
		{models.Listing{Status: models.StatusComplete, Description: "Instructions only"}, "only-with-build-word", true},
		{models.Listing{Status: models.StatusComplete, Description: "Sealed, mint condition"}, "", false},
	}
	for _, tt := range tests {
		rule, bad := incompleteReason(tt.listing)
		if bad != tt.bad || rule != tt.rule {
			t.Errorf("incompleteReason(%q) = (%q, %v); want (%q, %v)",
				tt.listing.Description, rule, bad, tt.rule, tt.bad)
		}
	}
}

func TestNormaliseText(t *testing.T) {
	if got := normaliseText("  No\tMINIFIGS \n included "); got != "no minifigs included" {
		t.Errorf("normaliseText: got %q", got)
	}
}

func TestCleanerDropsMalformedAndIncomplete(t *testing.T) {
	c := NewCleaner(newTestLogger())
	raw := []models.Listing{
		{Price: 10, Quantity: 1, Status: models.StatusComplete},
		{Price: 0, Quantity: 1, Status: models.StatusComplete},
		{Price: 10, Quantity: 0, Status: models.StatusComplete},
		{Price: 10, Quantity: 1},
		{Price: 5, Quantity: 1, Status: models.StatusComplete, Description: "No Minifigs Included"},
		{Price: 12, Quantity: 2, Status: models.StatusIncomplete},
		{Price: 11, Quantity: 1, Status: models.StatusComplete},
	}

	got := c.Clean(raw)
	if len(got) != 2 {
		t.Fatalf("Clean: got %d listings, want 2: %+v", len(got), got)
	}
	if got[0].Price != 10 || got[1].Price != 11 {
		t.Errorf("Clean should preserve order, got %+v", got)
	}
}
