package services

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"brick-pricer/models"
	"brick-pricer/storage"
	"brick-pricer/utils"
)

// Fetcher retrieves fresh listings and inventories from the marketplace.
type Fetcher interface {
	FetchItem(ctx context.Context, itemID string, itemType models.ItemType) (*models.ItemListings, error)
	FetchInventory(ctx context.Context, setID string) ([]models.Component, error)
}

// PipelineOptions controls one batch run.
type PipelineOptions struct {
	Force    bool
	DeepScan bool
	// Offline serves whatever is cached and never calls the fetcher.
	Offline bool
	// ItemType overrides type detection for the root items.
	ItemType models.ItemType
}

// ComponentValue is the valuation of one sub-item of a set.
type ComponentValue struct {
	Component models.Component `json:"component"`
	PriceNew  float64          `json:"price_new"`
	PriceUsed float64          `json:"price_used"`
	LineNew   float64          `json:"line_new"`
	LineUsed  float64          `json:"line_used"`
	FromCache bool             `json:"from_cache"`
}

// ItemResult is the outcome of analysing one requested item.
type ItemResult struct {
	RunID            string                `json:"run_id"`
	ItemID           string                `json:"item_id"`
	Analysis         *models.Analysis      `json:"analysis,omitempty"`
	Components       []ComponentValue      `json:"components,omitempty"`
	MinifigValueNew  float64               `json:"minifig_value_new"`
	MinifigValueUsed float64               `json:"minifig_value_used"`
	Comparison       *models.SetComparison `json:"comparison,omitempty"`
	FromCache        bool                  `json:"from_cache"`
	Prior            *models.PriorEstimate `json:"prior,omitempty"`
	Err              error                 `json:"-"`
}

// PipelineDeps groups the collaborators of a Pipeline. Fetcher may be nil,
// in which case every run behaves as Offline.
type PipelineDeps struct {
	Store      storage.ItemStore
	Fetcher    Fetcher
	Analyzer   *Analyzer
	Policy     *FreshnessPolicy
	MaxWorkers int
	MaxDepth   int
	Logger     *utils.Logger
}

// Pipeline refreshes stale items, analyses them and stores the result.
type Pipeline struct {
	store      storage.ItemStore
	fetcher    Fetcher
	analyzer   *Analyzer
	policy     *FreshnessPolicy
	maxWorkers int
	maxDepth   int
	logger     *utils.Logger
}

// NewPipeline wires a Pipeline from its dependencies.
func NewPipeline(deps PipelineDeps) *Pipeline {
	if deps.MaxWorkers < 1 {
		deps.MaxWorkers = 1
	}
	if deps.MaxDepth < 0 {
		deps.MaxDepth = 0
	}
	return &Pipeline{
		store:      deps.Store,
		fetcher:    deps.Fetcher,
		analyzer:   deps.Analyzer,
		policy:     deps.Policy,
		maxWorkers: deps.MaxWorkers,
		maxDepth:   deps.MaxDepth,
		logger:     deps.Logger,
	}
}

// Run analyses every item concurrently. A failing item never blocks the
// others; its error is reported in its ItemResult.
func (p *Pipeline) Run(ctx context.Context, ids []string, opts PipelineOptions) []ItemResult {
	runID := uuid.NewString()
	p.logger.Info("[pipeline] Run %s: %d items (force=%v deep=%v)", runID, len(ids), opts.Force, opts.DeepScan)

	results := make([]ItemResult, len(ids))
	done := make([]bool, len(ids))

	pool := utils.NewWorkerPool(p.maxWorkers, 0)
	for i, id := range ids {
		i, id := i, id
		pool.Submit(ctx, func() {
			res := p.AnalyzeItem(ctx, id, opts)
			res.RunID = runID
			results[i] = res
			done[i] = true
		})
	}
	pool.Wait()

	for i := range results {
		if !done[i] {
			results[i] = ItemResult{RunID: runID, ItemID: ids[i], Err: fmt.Errorf("pipeline: %s skipped: %w", ids[i], ctx.Err())}
		}
		if results[i].Err != nil {
			p.logger.Error("[pipeline] %s: %v", ids[i], results[i].Err)
		}
	}
	return results
}

type loadedItem struct {
	listings  models.ItemListings
	fromCache bool
	fetched   bool
}

// AnalyzeItem refreshes the item and its components as the freshness
// policy demands, then analyses it.
func (p *Pipeline) AnalyzeItem(ctx context.Context, itemID string, opts PipelineOptions) ItemResult {
	if p.fetcher == nil {
		opts.Offline = true
	}
	rootType := opts.ItemType
	if rootType == "" {
		rootType = models.DetectItemType(itemID)
	}

	resolver := &componentResolver{
		pipeline: p,
		rootID:   itemID,
		rootType: rootType,
		force:    opts.Force,
		offline:  opts.Offline,
		found:    make(map[string][]models.Component),
	}
	planner := NewRefreshPlanner(p.policy, p.store, resolver, p.maxDepth, p.logger)
	plan, err := planner.Plan(ctx, []string{itemID}, opts.DeepScan, opts.Force)
	if err != nil {
		return ItemResult{ItemID: itemID, Err: fmt.Errorf("pipeline: plan %s: %w", itemID, err)}
	}
	if len(plan) == 0 {
		return ItemResult{ItemID: itemID, Err: errors.New("pipeline: empty item id")}
	}

	// Components are loaded before their parent so their values can feed
	// the parent's minifigure floor.
	loaded := make(map[string]loadedItem, len(plan))
	for i := len(plan) - 1; i >= 0; i-- {
		item := plan[i]
		if err := ctx.Err(); err != nil {
			return ItemResult{ItemID: itemID, Err: err}
		}
		typ := models.ItemTypeMinifig
		if item.Depth == 0 {
			typ = rootType
		}
		loaded[item.ItemID] = p.load(ctx, item, typ, opts.Offline)
	}

	result := ItemResult{ItemID: itemID}
	if rec := plan[0].Record; rec != nil {
		result.Prior = rec.Prior
	}

	for _, comp := range resolver.found[itemID] {
		li, ok := loaded[comp.ID]
		if !ok {
			continue
		}
		a := p.analyzer.Analyze(li.listings, 0, 0)
		p.persist(ctx, comp.ID, li, a)

		qty := float64(comp.Quantity)
		if qty < 1 {
			qty = 1
		}
		cv := ComponentValue{
			Component: comp,
			PriceNew:  a.New.MarketPrice,
			PriceUsed: a.Used.MarketPrice,
			LineNew:   round2(a.New.MarketPrice * qty),
			LineUsed:  round2(a.Used.MarketPrice * qty),
			FromCache: li.fromCache,
		}
		result.Components = append(result.Components, cv)
		result.MinifigValueNew += cv.LineNew
		result.MinifigValueUsed += cv.LineUsed
	}
	result.MinifigValueNew = round2(result.MinifigValueNew)
	result.MinifigValueUsed = round2(result.MinifigValueUsed)

	root := loaded[itemID]
	result.Analysis = p.analyzer.Analyze(root.listings, result.MinifigValueNew, result.MinifigValueUsed)
	result.FromCache = root.fromCache
	if len(result.Components) > 0 {
		result.Comparison = p.analyzer.CompareSet(result.Analysis, result.MinifigValueNew, result.MinifigValueUsed)
	}
	p.persist(ctx, itemID, root, result.Analysis)

	return result
}

// load returns cached listings for fresh items and fetches stale ones
// exactly once. A failed or hollow fetch falls back to the cached
// listings, or to empty listings when nothing is cached.
func (p *Pipeline) load(ctx context.Context, item PlannedItem, typ models.ItemType, offline bool) loadedItem {
	cached := item.Record
	if !item.Decision.Refresh || offline {
		if cached != nil {
			return loadedItem{listings: cached.Listings, fromCache: true}
		}
		return loadedItem{listings: emptyListings(item.ItemID, typ)}
	}

	fetched, err := p.fetcher.FetchItem(ctx, item.ItemID, typ)
	switch {
	case err != nil:
		p.logger.Warn("[pipeline] Fetch of %s failed: %v", item.ItemID, err)
	case fetched == nil:
		p.logger.Warn("[pipeline] Fetch of %s returned nothing", item.ItemID)
	case fetched.Empty() && cached != nil && !cached.Listings.Empty():
		p.logger.Warn("[pipeline] Ignoring empty scrape for %s, keeping cached listings", item.ItemID)
	default:
		return loadedItem{listings: *fetched, fetched: true}
	}

	if cached != nil {
		return loadedItem{listings: cached.Listings, fromCache: true}
	}
	return loadedItem{listings: emptyListings(item.ItemID, typ)}
}

func (p *Pipeline) persist(ctx context.Context, itemID string, li loadedItem, a *models.Analysis) {
	if !li.fetched || p.store == nil {
		return
	}
	if err := p.store.SaveItem(ctx, itemID, li.listings, a); err != nil {
		p.logger.Error("[pipeline] Save of %s failed: %v", itemID, err)
	}
}

func emptyListings(itemID string, typ models.ItemType) models.ItemListings {
	return models.ItemListings{Meta: models.ItemMeta{ItemID: itemID, ItemName: "Unknown", ItemType: typ}}
}

// componentResolver lists the minifigures of sets for the refresh planner,
// preferring the stored inventory unless a refresh is forced.
type componentResolver struct {
	pipeline *Pipeline
	rootID   string
	rootType models.ItemType
	force    bool
	offline  bool

	mu    sync.Mutex
	found map[string][]models.Component
}

func (r *componentResolver) Components(ctx context.Context, itemID string) ([]models.Component, error) {
	typ := models.DetectItemType(itemID)
	if itemID == r.rootID {
		typ = r.rootType
	}
	if typ != models.ItemTypeSet {
		return nil, nil
	}

	comps, err := r.lookup(ctx, itemID)
	if err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.found[itemID] = comps
	r.mu.Unlock()
	return comps, nil
}

func (r *componentResolver) lookup(ctx context.Context, setID string) ([]models.Component, error) {
	p := r.pipeline

	var stored []models.Component
	var storedErr error = storage.ErrNotFound
	if p.store != nil {
		stored, storedErr = p.store.GetInventory(ctx, setID)
		if storedErr != nil && !errors.Is(storedErr, storage.ErrNotFound) {
			p.logger.Warn("[pipeline] Inventory lookup of %s failed: %v", setID, storedErr)
		}
	}
	haveStored := storedErr == nil

	if haveStored && (!r.force || r.offline) {
		return stored, nil
	}
	if r.offline {
		return nil, nil
	}

	comps, err := p.fetcher.FetchInventory(ctx, setID)
	if err != nil {
		if haveStored {
			p.logger.Warn("[pipeline] Inventory fetch of %s failed, using stored list: %v", setID, err)
			return stored, nil
		}
		return nil, fmt.Errorf("inventory %s: %w", setID, err)
	}
	if p.store != nil {
		if err := p.store.SaveInventory(ctx, setID, comps); err != nil {
			p.logger.Error("[pipeline] Save inventory of %s failed: %v", setID, err)
		}
	}
	return comps, nil
}
