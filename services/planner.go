package services

import (
	"context"
	"errors"

	"brick-pricer/models"
	"brick-pricer/storage"
	"brick-pricer/utils"
)

// RecordLookup loads cached records. Missing items are reported with
// storage.ErrNotFound.
type RecordLookup interface {
	GetItem(ctx context.Context, itemID string) (*models.CachedRecord, error)
}

// ComponentLister resolves the sub-items of a composite item. Items
// without components return an empty slice.
type ComponentLister interface {
	Components(ctx context.Context, itemID string) ([]models.Component, error)
}

// PlannedItem is one entry of a refresh plan.
type PlannedItem struct {
	ItemID   string
	ParentID string
	Depth    int
	Record   *models.CachedRecord
	Decision FreshnessDecision
}

// RefreshPlanner walks items and their components breadth first through
// an explicit worklist and applies the freshness policy to each of them.
type RefreshPlanner struct {
	policy     *FreshnessPolicy
	records    RecordLookup
	components ComponentLister
	maxDepth   int
	logger     *utils.Logger
}

// NewRefreshPlanner creates a planner descending at most maxDepth levels
// below the root items. components may be nil to disable descent.
func NewRefreshPlanner(policy *FreshnessPolicy, records RecordLookup, components ComponentLister,
	maxDepth int, logger *utils.Logger) *RefreshPlanner {
	return &RefreshPlanner{
		policy:     policy,
		records:    records,
		components: components,
		maxDepth:   maxDepth,
		logger:     logger,
	}
}

// Plan returns every reachable item exactly once, roots first, each with
// its freshness decision. It stops with ctx.Err() when ctx is cancelled.
func (p *RefreshPlanner) Plan(ctx context.Context, roots []string, deepScan, force bool) ([]PlannedItem, error) {
	type work struct {
		id, parent string
		depth      int
	}

	queue := make([]work, 0, len(roots))
	for _, id := range roots {
		queue = append(queue, work{id: id})
	}

	seen := utils.NewIDSet()
	var plan []PlannedItem

	for len(queue) > 0 {
		if err := ctx.Err(); err != nil {
			return plan, err
		}

		w := queue[0]
		queue = queue[1:]
		if w.id == "" || !seen.Add(w.id) {
			continue
		}

		rec := p.lookup(ctx, w.id)
		decision := p.policy.Evaluate(rec, deepScan, force)
		p.logger.Debug("[freshness] %s (depth %d): refresh=%v (%s)", w.id, w.depth, decision.Refresh, decision.Reason)

		plan = append(plan, PlannedItem{
			ItemID:   w.id,
			ParentID: w.parent,
			Depth:    w.depth,
			Record:   rec,
			Decision: decision,
		})

		if p.components == nil || w.depth >= p.maxDepth {
			continue
		}
		comps, err := p.components.Components(ctx, w.id)
		if err != nil {
			p.logger.Warn("[freshness] Could not list components of %s: %v", w.id, err)
			continue
		}
		for _, c := range comps {
			queue = append(queue, work{id: c.ID, parent: w.id, depth: w.depth + 1})
		}
	}

	return plan, nil
}

func (p *RefreshPlanner) lookup(ctx context.Context, id string) *models.CachedRecord {
	if p.records == nil {
		return nil
	}
	rec, err := p.records.GetItem(ctx, id)
	if err != nil {
		if !errors.Is(err, storage.ErrNotFound) {
			p.logger.Warn("[freshness] Lookup of %s failed, treating as uncached: %v", id, err)
		}
		return nil
	}
	return rec
}
