package services

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"brick-pricer/models"
)

func TestReportPrintItem(t *testing.T) {
	year := 2019
	var buf bytes.Buffer
	s := &ReportService{out: &buf}
	s.PrintItem(ItemResult{
		ItemID: "75192-1",
		Analysis: &models.Analysis{
			Meta: models.ItemMeta{ItemName: "Millennium Falcon"},
			New:  models.Estimate{MarketPrice: 110, Confidence: models.ConfidenceHigh},
			DeepDive: models.DeepDive{
				Lifecycle: models.Lifecycle{Status: models.LifecycleRetired, Year: &year, Description: "Production stopped"},
				Sniper:    &models.SniperSignal{Price: 80, ProfitAbs: 19.6, MarginPct: 24.5, Rating: models.RatingExcellent},
			},
		},
		Components:      []ComponentValue{{Component: models.Component{ID: "sw0001", Name: "Luke", Quantity: 1}, LineNew: 99, LineUsed: 10}},
		MinifigValueNew: 99,
		Comparison:      &models.SetComparison{FigsPctNew: 90, ProfitVsFigs: -11, PartOutCandidate: true},
		Prior:           &models.PriorEstimate{PriceNew: 100},
	})

	out := buf.String()
	for _, want := range []string{"75192-1", "Millennium Falcon", "RETIRED", "EXCELLENT", "+10.0% vs last", "sw0001",
		"Set vs Minifigures", "90.0%", "-11.00", "Strong part-out candidate"} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestReportPrintBatch(t *testing.T) {
	var buf bytes.Buffer
	s := &ReportService{out: &buf}
	s.PrintBatch([]ItemResult{
		{ItemID: "sw0001", FromCache: true, Analysis: &models.Analysis{
			Meta: models.ItemMeta{ItemName: "Luke"},
			New:  models.Estimate{MarketPrice: 20.5},
			Used: models.Estimate{MarketPrice: 10},
		}},
		{ItemID: "75192-1", Analysis: &models.Analysis{
			New:  models.Estimate{MarketPrice: 700},
			Used: models.Estimate{MarketPrice: 450.25},
		}},
		{ItemID: "bad-1", Err: errors.New("fetch failed")},
	})

	out := buf.String()
	if !strings.Contains(out, "Items analysed : \033[1m3") || !strings.Contains(out, "fetch failed") {
		t.Errorf("unexpected batch output:\n%s", out)
	}
	for _, want := range []string{"Grand totals (3 items)", "New condition  : \033[1;32m720.50", "Used condition : \033[1;33m460.25"} {
		if !strings.Contains(out, want) {
			t.Errorf("batch output missing %q:\n%s", want, out)
		}
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("Millennium Falcon", 10); got != "Millenn..." {
		t.Errorf("truncate: got %q", got)
	}
	if got := truncate("Luke", 10); got != "Luke" {
		t.Errorf("truncate: got %q", got)
	}
	got := truncate("Ninja Castle – Collector’s Edition", 17)
	if !utf8.ValidString(got) || got != "Ninja Castle –..." {
		t.Errorf("truncate multibyte: got %q", got)
	}
	if got := truncate("Señor Brick", 11); got != "Señor Brick" {
		t.Errorf("truncate counts runes: got %q", got)
	}
}

func TestReportOmitsComparisonForMinifigs(t *testing.T) {
	var buf bytes.Buffer
	s := &ReportService{out: &buf}
	s.PrintItem(ItemResult{ItemID: "sw0001", Analysis: &models.Analysis{Meta: models.ItemMeta{ItemName: "Luke"}}})
	if strings.Contains(buf.String(), "Set vs Minifigures") {
		t.Errorf("minifig report should not compare against figures:\n%s", buf.String())
	}
}
