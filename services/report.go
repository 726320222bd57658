package services

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"brick-pricer/models"
	"brick-pricer/storage"
)

// ReportService renders analyses as a terminal report.
type ReportService struct {
	out io.Writer
}

// NewReportService creates a ReportService writing to stdout.
func NewReportService() *ReportService {
	return &ReportService{out: os.Stdout}
}

// SummaryRows flattens batch results into CSV summary rows, one per item.
func SummaryRows(results []ItemResult) []storage.SummaryRow {
	rows := make([]storage.SummaryRow, 0, len(results))
	for _, r := range results {
		row := storage.SummaryRow{
			ItemID:           r.ItemID,
			MinifigValueNew:  r.MinifigValueNew,
			MinifigValueUsed: r.MinifigValueUsed,
			FromCache:        r.FromCache,
		}
		if r.Err != nil {
			row.Error = r.Err.Error()
		}
		if c := r.Comparison; c != nil {
			row.FigsPctNew = c.FigsPctNew
			row.FigsPctUsed = c.FigsPctUsed
			row.ProfitVsFigs = c.ProfitVsFigs
			row.PartOutCandidate = c.PartOutCandidate
		}
		if a := r.Analysis; a != nil {
			row.ItemName = a.Meta.ItemName
			row.ItemType = string(a.Meta.ItemType)
			row.Lifecycle = string(a.DeepDive.Lifecycle.Status)
			row.PriceNew = a.New.MarketPrice
			row.ConfidenceNew = string(a.New.Confidence)
			row.PriceUsed = a.Used.MarketPrice
			row.ConfidenceUsed = string(a.Used.Confidence)
			row.SniperRating = "N/A"
			if s := a.DeepDive.Sniper; s != nil {
				row.SniperRating = string(s.Rating)
				row.SniperProfit = s.ProfitAbs
				row.SniperMarginPct = s.MarginPct
			}
		}
		rows = append(rows, row)
	}
	return rows
}

// PrintItem writes the full report of one item.
func (s *ReportService) PrintItem(r ItemResult) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)
	w := s.out

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	if r.Analysis == nil {
		fmt.Fprintf(w, "\033[1;31m  %s: %v\033[0m\n", r.ItemID, r.Err)
		fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)
		return
	}
	a := r.Analysis

	source := "fresh scrape"
	if r.FromCache {
		source = "cache"
	}
	fmt.Fprintf(w, "\033[1;35m  🧱 %s  %s\033[0m\n", r.ItemID, truncate(a.Meta.ItemName, 36))
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "  Source : %s\n\n", source)

	fmt.Fprintf(w, "\033[1;33m  Market Estimate\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	s.printEstimate("New ", a.New, priorPrice(r.Prior, models.ConditionNew))
	s.printEstimate("Used", a.Used, priorPrice(r.Prior, models.ConditionUsed))
	fmt.Fprintln(w)

	fmt.Fprintf(w, "\033[1;33m  Deep Dive\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	lc := a.DeepDive.Lifecycle
	if lc.Year != nil {
		fmt.Fprintf(w, "  Lifecycle : \033[1m%s\033[0m (%d, %s)\n", lc.Status, *lc.Year, lc.Description)
	} else {
		fmt.Fprintf(w, "  Lifecycle : \033[1m%s\033[0m (%s)\n", lc.Status, lc.Description)
	}
	if sn := a.DeepDive.Sniper; sn != nil {
		fmt.Fprintf(w, "  Sniper    : %s%s\033[0m  cheapest %.2f, profit %.2f (%.1f%%)\n",
			ratingColor(sn.Rating), sn.Rating, sn.Price, sn.ProfitAbs, sn.MarginPct)
	} else {
		fmt.Fprintf(w, "  Sniper    : no new stock to buy\n")
	}
	po := a.PartOut
	if po.PartsCount > 0 {
		fmt.Fprintf(w, "  Part-out  : %s, %.3f per part over %d parts (%s)\n",
			po.Rating, po.PricePerPart, po.PartsCount, po.Reason)
	}
	fmt.Fprintln(w)

	if len(r.Components) > 0 {
		fmt.Fprintf(w, "\033[1;33m  Minifigures\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		comps := append([]ComponentValue(nil), r.Components...)
		sort.SliceStable(comps, func(i, j int) bool { return comps[i].LineUsed > comps[j].LineUsed })
		for _, c := range comps {
			fmt.Fprintf(w, "  %-10s %-22s x%d  new %8.2f  used %8.2f\n",
				c.Component.ID, truncate(c.Component.Name, 22), max(c.Component.Quantity, 1), c.LineNew, c.LineUsed)
		}
		fmt.Fprintf(w, "  %-36s new \033[1m%8.2f\033[0m  used \033[1m%8.2f\033[0m\n", "Total", r.MinifigValueNew, r.MinifigValueUsed)
		fmt.Fprintln(w)
	}

	if c := r.Comparison; c != nil {
		fmt.Fprintf(w, "\033[1;33m  Set vs Minifigures\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %-14s %10s %10s\n", "", "New", "Used")
		fmt.Fprintf(w, "  %-14s %10.2f %10.2f\n", "Set price", a.New.MarketPrice, a.Used.MarketPrice)
		fmt.Fprintf(w, "  %-14s %10.2f %10.2f\n", "Figs sum", r.MinifigValueNew, r.MinifigValueUsed)
		fmt.Fprintf(w, "  %-14s %9.1f%% %9.1f%%\n", "Figs % of set", c.FigsPctNew, c.FigsPctUsed)
		fmt.Fprintf(w, "  %-14s %10.2f\n", "Profit vs figs", c.ProfitVsFigs)
		if c.PartOutCandidate {
			fmt.Fprintf(w, "  \033[1;32m🔥 Strong part-out candidate\033[0m\n")
		} else {
			fmt.Fprintf(w, "  ❄️  Value is mostly in the bricks\n")
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)
}

func (s *ReportService) printEstimate(label string, e models.Estimate, prior float64) {
	trend := ""
	if prior > 0 && e.MarketPrice > 0 {
		change := (e.MarketPrice - prior) / prior * 100
		trend = fmt.Sprintf("  (%+.1f%% vs last)", change)
	}
	fmt.Fprintf(s.out, "  %s : \033[1;32m%.2f\033[0m  [%.2f - %.2f]  buy ≤ %.2f  %s%s\n",
		label, e.MarketPrice, e.Range.Low, e.Range.High, e.BuyTarget, e.Confidence, trend)
}

// PrintBatch writes a one-line-per-item overview of a batch run.
func (s *ReportService) PrintBatch(results []ItemResult) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)
	w := s.out

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 BATCH SUMMARY\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	var failed, cached int
	var totalNew, totalUsed float64
	for _, r := range results {
		if r.Err != nil {
			failed++
		}
		if r.FromCache {
			cached++
		}
		if r.Analysis != nil {
			totalNew += r.Analysis.New.MarketPrice
			totalUsed += r.Analysis.Used.MarketPrice
		}
	}
	fmt.Fprintf(w, "  Items analysed : \033[1m%d\033[0m\n", len(results))
	fmt.Fprintf(w, "  From cache     : \033[1m%d\033[0m\n", cached)
	fmt.Fprintf(w, "  Failed         : \033[1m%d\033[0m\n", failed)
	fmt.Fprintf(w, "  %s\n", thin)

	for _, row := range SummaryRows(results) {
		if row.Error != "" {
			fmt.Fprintf(w, "  %-10s \033[1;31m%s\033[0m\n", row.ItemID, truncate(row.Error, 40))
			continue
		}
		fmt.Fprintf(w, "  %-10s %-20s %8.2f %-6s %8.2f %-6s %s\n",
			row.ItemID, truncate(row.ItemName, 20),
			row.PriceNew, row.ConfidenceNew, row.PriceUsed, row.ConfidenceUsed, row.SniperRating)
	}

	fmt.Fprintf(w, "  %s\n", thin)
	fmt.Fprintf(w, "  🏆 Grand totals (%d items)\n", len(results))
	fmt.Fprintf(w, "  New condition  : \033[1;32m%.2f\033[0m\n", totalNew)
	fmt.Fprintf(w, "  Used condition : \033[1;33m%.2f\033[0m\n", totalUsed)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n\n", sep)
}

func priorPrice(p *models.PriorEstimate, c models.Condition) float64 {
	if p == nil {
		return 0
	}
	if c == models.ConditionUsed {
		return p.PriceUsed
	}
	return p.PriceNew
}

func ratingColor(r models.SniperRating) string {
	switch r {
	case models.RatingExcellent, models.RatingGreatInvest:
		return "\033[1;32m"
	case models.RatingGood:
		return "\033[1;33m"
	default:
		return "\033[2m"
	}
}

func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
