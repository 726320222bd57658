package storage

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"brick-pricer/models"
)

type memoryItem struct {
	listings models.ItemListings
	updated  time.Time
	history  []models.PricePoint
}

// MemoryStore is an in-process ItemStore used when no database is
// configured and in tests. It is safe for concurrent use.
type MemoryStore struct {
	mu          sync.RWMutex
	items       map[string]memoryItem
	inventories map[string][]models.Component
	collections map[string][]string
	now         func() time.Time
}

var (
	_ ItemStore = (*MemoryStore)(nil)
	_ Catalog   = (*MemoryStore)(nil)
)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		items:       make(map[string]memoryItem),
		inventories: make(map[string][]models.Component),
		collections: make(map[string][]string),
		now:         time.Now,
	}
}

// Put stores listings with an explicit refresh time, bypassing the
// empty-scrape guard. It is meant for seeding caches.
func (m *MemoryStore) Put(itemID string, listings models.ItemListings, updated time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	it := m.items[itemID]
	it.listings = listings
	it.updated = updated
	m.items[itemID] = it
}

func (m *MemoryStore) GetItem(_ context.Context, itemID string) (*models.CachedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	it, ok := m.items[itemID]
	if !ok {
		return nil, ErrNotFound
	}
	return it.record(itemID), nil
}

func (it memoryItem) record(itemID string) *models.CachedRecord {
	rec := &models.CachedRecord{ItemID: itemID, Listings: it.listings}
	if !it.updated.IsZero() {
		rec.LastUpdate = it.updated.UTC().Format(time.RFC3339Nano)
	}
	if n := len(it.history); n > 0 {
		last := it.history[n-1]
		rec.Prior = &models.PriorEstimate{
			PriceNew:       last.PriceNew,
			PriceUsed:      last.PriceUsed,
			ConfidenceNew:  last.ConfidenceNew,
			ConfidenceUsed: last.ConfidenceUsed,
		}
	}
	return rec
}

// GetItems loads several items at once. Missing IDs are absent from the map.
func (m *MemoryStore) GetItems(_ context.Context, ids []string) (map[string]*models.CachedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*models.CachedRecord, len(ids))
	for _, id := range ids {
		if it, ok := m.items[id]; ok {
			out[id] = it.record(id)
		}
	}
	return out, nil
}

// ItemsByPrefix returns every item whose ID starts with prefix, by ID.
func (m *MemoryStore) ItemsByPrefix(_ context.Context, prefix string) ([]*models.CachedRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.CachedRecord
	for id, it := range m.items {
		if strings.HasPrefix(id, prefix) {
			out = append(out, it.record(id))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ItemID < out[j].ItemID })
	return out, nil
}

// StaleItems lists items not refreshed within the last days, by ID.
func (m *MemoryStore) StaleItems(_ context.Context, days int) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	cutoff := m.now().Add(-time.Duration(days) * 24 * time.Hour)
	var out []string
	for id, it := range m.items {
		if it.updated.IsZero() || it.updated.Before(cutoff) {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out, nil
}

// AddToCollection tags an item with a collection name. Re-adding is a no-op.
func (m *MemoryStore) AddToCollection(_ context.Context, itemID, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range m.collections[collection] {
		if id == itemID {
			return nil
		}
	}
	m.collections[collection] = append(m.collections[collection], itemID)
	return nil
}

// RemoveFromCollection removes the tag.
func (m *MemoryStore) RemoveFromCollection(_ context.Context, itemID, collection string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.collections[collection]
	for i, id := range ids {
		if id == itemID {
			m.collections[collection] = append(ids[:i:i], ids[i+1:]...)
			return nil
		}
	}
	return nil
}

// CollectionItems lists the item IDs tagged with collection in insertion order.
func (m *MemoryStore) CollectionItems(_ context.Context, collection string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.collections[collection]...), nil
}

func (m *MemoryStore) SaveItem(_ context.Context, itemID string, listings models.ItemListings, analysis *models.Analysis) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	it, exists := m.items[itemID]
	if exists && listings.Empty() {
		return nil
	}

	now := m.now()
	it.listings = listings
	it.updated = now
	if analysis != nil {
		it.history = append(it.history, models.PricePoint{
			PriceNew:       analysis.New.MarketPrice,
			PriceUsed:      analysis.Used.MarketPrice,
			ConfidenceNew:  analysis.New.Confidence,
			ConfidenceUsed: analysis.Used.Confidence,
			ScrapedAt:      now,
		})
	}
	m.items[itemID] = it
	return nil
}

func (m *MemoryStore) GetInventory(_ context.Context, setID string) ([]models.Component, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	comps, ok := m.inventories[setID]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]models.Component(nil), comps...), nil
}

func (m *MemoryStore) SaveInventory(_ context.Context, setID string, components []models.Component) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.inventories[setID] = append([]models.Component(nil), components...)
	return nil
}

// PriceHistory returns the points of the last days, newest first.
func (m *MemoryStore) PriceHistory(_ context.Context, itemID string, days int) ([]models.PricePoint, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	cutoff := m.now().Add(-time.Duration(days) * 24 * time.Hour)
	var out []models.PricePoint
	for _, p := range m.items[itemID].history {
		if p.ScrapedAt.After(cutoff) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScrapedAt.After(out[j].ScrapedAt) })
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
