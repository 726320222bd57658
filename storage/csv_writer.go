package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
)

// SummaryRow is one line of the batch summary CSV.
type SummaryRow struct {
	ItemID           string
	ItemName         string
	ItemType         string
	Lifecycle        string
	PriceNew         float64
	ConfidenceNew    string
	PriceUsed        float64
	ConfidenceUsed   string
	SniperRating     string
	SniperProfit     float64
	SniperMarginPct  float64
	MinifigValueNew  float64
	MinifigValueUsed float64
	FigsPctNew       float64
	FigsPctUsed      float64
	ProfitVsFigs     float64
	PartOutCandidate bool
	FromCache        bool
	Error            string
}

var summaryHeader = []string{
	"item_id", "item_name", "item_type", "lifecycle",
	"price_new", "confidence_new", "price_used", "confidence_used",
	"sniper_rating", "sniper_profit", "sniper_margin_pct",
	"minifig_value_new", "minifig_value_used",
	"figs_pct_new", "figs_pct_used", "profit_vs_figs", "part_out_candidate",
	"from_cache", "error",
}

// CSVWriter appends batch summaries to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

var _ SummaryWriter = (*CSVWriter)(nil)

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(summaryHeader); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteSummary appends one line per row.
func (c *CSVWriter) WriteSummary(rows []SummaryRow) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, r := range rows {
		if err := c.writer.Write(r.record()); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

func (r SummaryRow) record() []string {
	money := func(f float64) string { return strconv.FormatFloat(f, 'f', 2, 64) }
	return []string{
		r.ItemID,
		r.ItemName,
		r.ItemType,
		r.Lifecycle,
		money(r.PriceNew),
		r.ConfidenceNew,
		money(r.PriceUsed),
		r.ConfidenceUsed,
		r.SniperRating,
		money(r.SniperProfit),
		strconv.FormatFloat(r.SniperMarginPct, 'f', 1, 64),
		money(r.MinifigValueNew),
		money(r.MinifigValueUsed),
		strconv.FormatFloat(r.FigsPctNew, 'f', 1, 64),
		strconv.FormatFloat(r.FigsPctUsed, 'f', 1, 64),
		money(r.ProfitVsFigs),
		strconv.FormatBool(r.PartOutCandidate),
		strconv.FormatBool(r.FromCache),
		r.Error,
	}
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}
