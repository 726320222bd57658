package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultRules(t *testing.T) {
	r := DefaultRules()
	if r.BulkThreshold != 3 {
		t.Errorf("BulkThreshold: got %d, want 3", r.BulkThreshold)
	}
	if r.MarketplaceFee != 1.13 {
		t.Errorf("MarketplaceFee: got %.2f, want 1.13", r.MarketplaceFee)
	}
	if r.StaleAfter() != 30*24*time.Hour {
		t.Errorf("StaleAfter: got %v, want 720h", r.StaleAfter())
	}
}

func TestParseRulesOverlaysDefaults(t *testing.T) {
	raw := []byte("bulkThreshold: 5\nmarketplaceFee: 1.2\nvolatileYearOffset: 1\n")
	r, err := ParseRules(raw)
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	if r.BulkThreshold != 5 {
		t.Errorf("BulkThreshold: got %d, want 5", r.BulkThreshold)
	}
	if r.MarketplaceFee != 1.2 {
		t.Errorf("MarketplaceFee: got %.2f, want 1.2", r.MarketplaceFee)
	}
	if r.GlobalFloorRatio != 0.20 {
		t.Errorf("GlobalFloorRatio should keep default, got %.2f", r.GlobalFloorRatio)
	}
	if r.VolatileYearOffset != 1 {
		t.Errorf("VolatileYearOffset: got %d, want 1", r.VolatileYearOffset)
	}
}

func TestParseRulesResetsInvalidValues(t *testing.T) {
	raw := []byte("bulkThreshold: -1\nhighSoldWeight: 3\nmediumSoldCount: 50\n")
	r, err := ParseRules(raw)
	if err != nil {
		t.Fatalf("ParseRules: %v", err)
	}
	def := DefaultRules()
	if r.BulkThreshold != def.BulkThreshold {
		t.Errorf("BulkThreshold: got %d, want %d", r.BulkThreshold, def.BulkThreshold)
	}
	if r.HighSoldWeight != def.HighSoldWeight {
		t.Errorf("HighSoldWeight: got %.2f, want %.2f", r.HighSoldWeight, def.HighSoldWeight)
	}
	if r.MediumSoldCount != def.MediumSoldCount || r.HighSoldCount != def.HighSoldCount {
		t.Errorf("sold thresholds: got %d/%d, want %d/%d",
			r.MediumSoldCount, r.HighSoldCount, def.MediumSoldCount, def.HighSoldCount)
	}
}

func TestParseRulesMalformed(t *testing.T) {
	_, err := ParseRules([]byte("bulkThreshold: [oops"))
	if err == nil {
		t.Fatal("expected error for malformed YAML")
	}
}

func TestLoadRulesFallsBack(t *testing.T) {
	r := LoadRules(filepath.Join(t.TempDir(), "missing.yaml"))
	if r != DefaultRules() {
		t.Errorf("missing file should yield defaults, got %+v", r)
	}

	path := filepath.Join(t.TempDir(), "rules.yaml")
	if err := os.WriteFile(path, []byte("staleAfterDays: 14\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	r = LoadRules(path)
	if r.StaleAfterDays != 14 {
		t.Errorf("StaleAfterDays: got %d, want 14", r.StaleAfterDays)
	}
}

func TestVolatileYearFor(t *testing.T) {
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	r := DefaultRules()
	if got := r.VolatileYearFor(now); got != 2026 {
		t.Errorf("computed volatile year: got %d, want 2026", got)
	}

	r.VolatileYear = 2025
	if got := r.VolatileYearFor(now); got != 2025 {
		t.Errorf("pinned volatile year: got %d, want 2025", got)
	}
}

func TestLoadReadsEnv(t *testing.T) {
	t.Setenv("MAX_CONCURRENCY", "7")
	t.Setenv("POSTGRES_DB", "testdb")
	t.Setenv("PRICER_RULES_FILE", "")

	cfg := Load()
	if cfg.MaxConcurrency != 7 {
		t.Errorf("MaxConcurrency: got %d, want 7", cfg.MaxConcurrency)
	}
	if cfg.PostgresDB != "testdb" {
		t.Errorf("PostgresDB: got %q, want testdb", cfg.PostgresDB)
	}
	if cfg.Rules != DefaultRules() {
		t.Errorf("Rules should be defaults without a rules file")
	}
}
