package services

import (
	"regexp"
	"strings"
	"unicode"

	"brick-pricer/models"
	"brick-pricer/utils"
)

// incompleteMarkers are substrings that, anywhere in a listing's text,
// mark it as not a complete item.
var incompleteMarkers = []string{
	"incomplete", "missing", "no minifig", "no minifigs", "no figure",
	"no figs", "no box", "no instructions", "no manual", "only build",
	"build only", "just build", "instruction only", "without minifig",
	"without minifigures", "figures removed", "minifigures removed",
	"no figures", "no mf", "no character", "no-minifig", "no-minifigures",
	"(i)", "missing parts", "partially complete", "only castle", "no characters",
}

var (
	// negatedComponentRegexp catches "no ... minifigs", "without the box" and similar.
	negatedComponentRegexp = regexp.MustCompile(`\b(no|without)\b.{0,15}\b(minifig|minifigure|figure|fig|cat|manual|box)(e?s)?\b`)
	// partialBuildRegexp catches "build only", "vehicle only" and similar.
	partialBuildRegexp = regexp.MustCompile(`\b(build|castle|vehicle)\b.{0,15}\bonly\b`)
)

// textRule is one predicate of the completeness classifier. It reports
// true when the normalised listing text looks incomplete.
type textRule struct {
	name  string
	match func(text string) bool
}

// incompleteRules are evaluated in order; the first match rejects a listing.
var incompleteRules = []textRule{
	{name: "blacklist", match: matchesBlacklist},
	{name: "negated-component", match: negatedComponentRegexp.MatchString},
	{name: "partial-build", match: partialBuildRegexp.MatchString},
	{name: "only-with-build-word", match: matchesOnlyWithBuildWord},
}

func matchesBlacklist(text string) bool {
	for _, marker := range incompleteMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func matchesOnlyWithBuildWord(text string) bool {
	if !strings.Contains(text, "only") {
		return false
	}
	for _, w := range []string{"build", "instruction", "parts"} {
		if strings.Contains(text, w) {
			return true
		}
	}
	return false
}

// Cleaner drops listings that are malformed or not complete items.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean returns the listings that are well formed and pass every
// completeness rule, preserving order.
func (c *Cleaner) Clean(raw []models.Listing) []models.Listing {
	result := make([]models.Listing, 0, len(raw))
	for _, l := range raw {
		if !l.Valid() {
			c.logger.Debug("[cleaner] Skipping malformed listing: %+v", l)
			continue
		}
		if rule, bad := incompleteReason(l); bad {
			c.logger.Debug("[cleaner] Dropping listing at %.2f (%s)", l.Price, rule)
			continue
		}
		result = append(result, l)
	}
	return result
}

// IsComplete reports whether a listing passes the status flag and every
// text rule.
func IsComplete(l models.Listing) bool {
	_, bad := incompleteReason(l)
	return !bad
}

func incompleteReason(l models.Listing) (string, bool) {
	if l.Status == models.StatusIncomplete {
		return "status-flag", true
	}
	text := normaliseText(string(l.Status) + " " + l.Description)
	for _, rule := range incompleteRules {
		if rule.match(text) {
			return rule.name, true
		}
	}
	return "", false
}

// normaliseText lowercases s and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
