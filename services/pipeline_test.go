package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"brick-pricer/config"
	"brick-pricer/models"
	"brick-pricer/storage"
)

type fakeFetcher struct {
	mu          sync.Mutex
	items       map[string]models.ItemListings
	inventories map[string][]models.Component
	failing     map[string]bool
	itemCalls   map[string]int
	invCalls    map[string]int
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{
		items:       make(map[string]models.ItemListings),
		inventories: make(map[string][]models.Component),
		failing:     make(map[string]bool),
		itemCalls:   make(map[string]int),
		invCalls:    make(map[string]int),
	}
}

func (f *fakeFetcher) FetchItem(_ context.Context, id string, itemType models.ItemType) (*models.ItemListings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.itemCalls[id]++
	if f.failing[id] {
		return nil, errors.New("page did not render")
	}
	item := f.items[id]
	item.Meta.ItemID = id
	item.Meta.ItemType = itemType
	return &item, nil
}

func (f *fakeFetcher) FetchInventory(_ context.Context, setID string) ([]models.Component, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invCalls[setID]++
	if f.failing[setID] {
		return nil, errors.New("inventory unavailable")
	}
	return f.inventories[setID], nil
}

func bucket(stock ...float64) models.ConditionBucket {
	b := models.ConditionBucket{Sold: []models.Listing{}}
	for _, p := range stock {
		b.Stock = append(b.Stock, complete(p))
	}
	return b
}

func newTestPipeline(store storage.ItemStore, fetcher Fetcher) *Pipeline {
	rules := config.DefaultRules()
	analyzer := NewAnalyzer(rules, newTestLogger())
	analyzer.now = func() time.Time { return fixedNow }
	analyzer.estimator.now = analyzer.now

	return NewPipeline(PipelineDeps{
		Store:      store,
		Fetcher:    fetcher,
		Analyzer:   analyzer,
		Policy:     NewFreshnessPolicy(rules.StaleAfter()),
		MaxWorkers: 2,
		MaxDepth:   1,
		Logger:     newTestLogger(),
	})
}

func seededFetcher() *fakeFetcher {
	f := newFakeFetcher()
	f.inventories["75192-1"] = []models.Component{
		{ID: "sw0001", Name: "Luke", Quantity: 1},
		{ID: "sw0002", Name: "Han", Quantity: 2},
	}
	f.items["75192-1"] = models.ItemListings{New: bucket(200), Used: bucket(100)}
	f.items["sw0001"] = models.ItemListings{New: bucket(20), Used: bucket(10)}
	f.items["sw0002"] = models.ItemListings{New: bucket(8), Used: bucket(5)}
	return f
}

func TestPipelineValuesComponentsAndCaches(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	fetcher := seededFetcher()
	p := newTestPipeline(store, fetcher)

	results := p.Run(ctx, []string{"75192-1"}, PipelineOptions{})
	if len(results) != 1 {
		t.Fatalf("results: got %d", len(results))
	}
	res := results[0]
	if res.Err != nil {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if res.RunID == "" {
		t.Error("RunID should be set")
	}
	if len(res.Components) != 2 {
		t.Fatalf("components: got %d, want 2", len(res.Components))
	}
	if res.MinifigValueUsed != 20 || res.MinifigValueNew != 36 {
		t.Errorf("minifig values: got new %.2f used %.2f, want 36 / 20", res.MinifigValueNew, res.MinifigValueUsed)
	}
	if res.Analysis.New.MarketPrice != 200 || res.Analysis.Used.MarketPrice != 100 {
		t.Errorf("analysis: got new %.2f used %.2f", res.Analysis.New.MarketPrice, res.Analysis.Used.MarketPrice)
	}
	if res.FromCache {
		t.Error("first run should not be served from cache")
	}
	want := models.SetComparison{FigsPctNew: 18, FigsPctUsed: 20, ProfitVsFigs: -164}
	if res.Comparison == nil || *res.Comparison != want {
		t.Errorf("comparison: got %+v, want %+v", res.Comparison, want)
	}
	for _, id := range []string{"75192-1", "sw0001", "sw0002"} {
		if fetcher.itemCalls[id] != 1 {
			t.Errorf("%s fetched %d times, want 1", id, fetcher.itemCalls[id])
		}
		if _, err := store.GetItem(ctx, id); err != nil {
			t.Errorf("%s not stored: %v", id, err)
		}
	}

	res = p.AnalyzeItem(ctx, "75192-1", PipelineOptions{})
	if !res.FromCache {
		t.Error("second run should be served from cache")
	}
	if fetcher.itemCalls["75192-1"] != 1 || fetcher.invCalls["75192-1"] != 1 {
		t.Errorf("second run refetched: items %v inventories %v", fetcher.itemCalls, fetcher.invCalls)
	}
	if res.Prior == nil || res.Prior.PriceNew != 200 {
		t.Errorf("Prior: got %+v", res.Prior)
	}
	if res.MinifigValueUsed != 20 {
		t.Errorf("cached minifig value: got %.2f", res.MinifigValueUsed)
	}

	p.AnalyzeItem(ctx, "75192-1", PipelineOptions{Force: true})
	if fetcher.itemCalls["75192-1"] != 2 || fetcher.itemCalls["sw0002"] != 2 || fetcher.invCalls["75192-1"] != 2 {
		t.Errorf("force should refetch everything once: items %v inventories %v", fetcher.itemCalls, fetcher.invCalls)
	}
}

func TestPipelineIsolatesFailingItems(t *testing.T) {
	fetcher := seededFetcher()
	fetcher.failing["10000-1"] = true
	p := newTestPipeline(storage.NewMemoryStore(), fetcher)

	results := p.Run(context.Background(), []string{"10000-1", "sw0001"}, PipelineOptions{})
	if len(results) != 2 {
		t.Fatalf("results: got %d", len(results))
	}
	if results[0].ItemID != "10000-1" || results[1].ItemID != "sw0001" {
		t.Errorf("results out of order: %s %s", results[0].ItemID, results[1].ItemID)
	}
	if results[0].Analysis == nil || results[0].Analysis.New.MarketPrice != 0 {
		t.Errorf("failed fetch should analyse as empty: %+v", results[0].Analysis)
	}
	if results[1].Err != nil || results[1].Analysis.New.MarketPrice != 20 {
		t.Errorf("healthy item affected: %+v", results[1])
	}
}

func TestPipelineFallsBackToCacheWhenFetchFails(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStore()
	store.Put("sw0001", models.ItemListings{New: bucket(30)}, time.Now().Add(-90*24*time.Hour))

	fetcher := newFakeFetcher()
	fetcher.failing["sw0001"] = true
	p := newTestPipeline(store, fetcher)

	res := p.AnalyzeItem(ctx, "sw0001", PipelineOptions{})
	if !res.FromCache || res.Analysis.New.MarketPrice != 30 {
		t.Errorf("expected cached fallback, got %+v", res)
	}
	if fetcher.itemCalls["sw0001"] != 1 {
		t.Errorf("stale item should be fetched once, got %d", fetcher.itemCalls["sw0001"])
	}
}

func TestPipelineOfflineNeverFetches(t *testing.T) {
	store := storage.NewMemoryStore()
	store.Put("sw0001", models.ItemListings{New: bucket(30)}, time.Now().Add(-90*24*time.Hour))
	fetcher := newFakeFetcher()
	p := newTestPipeline(store, fetcher)

	res := p.AnalyzeItem(context.Background(), "sw0001", PipelineOptions{Offline: true, Force: true})
	if len(fetcher.itemCalls) != 0 {
		t.Errorf("offline run fetched: %v", fetcher.itemCalls)
	}
	if res.Analysis.New.MarketPrice != 30 {
		t.Errorf("offline analysis: got %.2f", res.Analysis.New.MarketPrice)
	}
}

func TestPipelineRunCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	p := newTestPipeline(storage.NewMemoryStore(), seededFetcher())

	results := p.Run(ctx, []string{"75192-1", "sw0001"}, PipelineOptions{})
	for _, r := range results {
		if r.Err == nil {
			t.Errorf("%s: expected an error after cancellation", r.ItemID)
		}
	}
}

func TestSummaryRows(t *testing.T) {
	p := newTestPipeline(storage.NewMemoryStore(), seededFetcher())
	results := p.Run(context.Background(), []string{"75192-1"}, PipelineOptions{})
	results = append(results, ItemResult{ItemID: "broken", Err: errors.New("boom")})

	rows := SummaryRows(results)
	if len(rows) != 2 {
		t.Fatalf("rows: got %d", len(rows))
	}
	if rows[0].PriceNew != 200 || rows[0].MinifigValueUsed != 20 || rows[0].ItemType != "S" || rows[0].FigsPctNew != 18 {
		t.Errorf("row: got %+v", rows[0])
	}
	if rows[1].Error != "boom" {
		t.Errorf("error row: got %+v", rows[1])
	}
}

func TestPipelineFlagsPartOutCandidates(t *testing.T) {
	fetcher := seededFetcher()
	fetcher.items["75192-1"] = models.ItemListings{New: bucket(40)}
	p := newTestPipeline(storage.NewMemoryStore(), fetcher)

	res := p.AnalyzeItem(context.Background(), "75192-1", PipelineOptions{})
	c := res.Comparison
	if c == nil {
		t.Fatal("expected a set comparison")
	}
	if c.FigsPctNew != 90 || !c.PartOutCandidate || c.ProfitVsFigs != -4 {
		t.Errorf("comparison: got %+v", c)
	}
	if c.FigsPctUsed != 0 {
		t.Errorf("used share with no used price: got %.1f, want 0", c.FigsPctUsed)
	}

	minifig := p.AnalyzeItem(context.Background(), "sw0001", PipelineOptions{})
	if minifig.Comparison != nil {
		t.Errorf("minifig should have no set comparison: %+v", minifig.Comparison)
	}
}
