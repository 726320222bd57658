package services

import (
	"math"
	"sort"

	"brick-pricer/models"
)

// median returns the middle value of vals, averaging the two central
// values for even lengths. Empty input yields 0.
func median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)
	mid := len(s) / 2
	if len(s)%2 == 1 {
		return s[mid]
	}
	return (s[mid-1] + s[mid]) / 2
}

// quartiles computes Q1 and Q3 with the exclusive method (the n+1
// interpolation used by most statistics packages). It needs at least two
// samples; ok is false otherwise.
func quartiles(vals []float64) (q1, q3 float64, ok bool) {
	n := len(vals)
	if n < 2 {
		return 0, 0, false
	}
	s := append([]float64(nil), vals...)
	sort.Float64s(s)

	m := n + 1
	cut := func(i int) float64 {
		j := i * m / 4
		if j < 1 {
			j = 1
		}
		if j >= n {
			return s[n-1]
		}
		delta := i*m - j*4
		return (s[j-1]*float64(4-delta) + s[j]*float64(delta)) / 4
	}
	return cut(1), cut(3), true
}

func prices(items []models.Listing) []float64 {
	out := make([]float64, 0, len(items))
	for _, l := range items {
		out = append(out, l.Price)
	}
	return out
}

// expandSamples repeats each price once per unit of lot quantity.
func expandSamples(items []models.Listing) []float64 {
	var out []float64
	for _, l := range items {
		for q := 0; q < l.Quantity; q++ {
			out = append(out, l.Price)
		}
	}
	return out
}

func sortedByPrice(items []models.Listing) []models.Listing {
	s := append([]models.Listing(nil), items...)
	sort.SliceStable(s, func(i, j int) bool { return s[i].Price < s[j].Price })
	return s
}

func roundTo(f float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(f*p) / p
}

func round2(f float64) float64 { return roundTo(f, 2) }
