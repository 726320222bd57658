package storage

import (
	"context"
	"errors"

	"brick-pricer/models"
)

// ErrNotFound is returned when an item or inventory is not stored.
var ErrNotFound = errors.New("storage: not found")

// ItemStore is the interface any item storage backend must satisfy.
type ItemStore interface {
	GetItem(ctx context.Context, itemID string) (*models.CachedRecord, error)
	SaveItem(ctx context.Context, itemID string, listings models.ItemListings, analysis *models.Analysis) error
	GetInventory(ctx context.Context, setID string) ([]models.Component, error)
	SaveInventory(ctx context.Context, setID string, components []models.Component) error
	PriceHistory(ctx context.Context, itemID string, days int) ([]models.PricePoint, error)
	Close() error
}

// Catalog is implemented by stores that can enumerate and group items.
type Catalog interface {
	GetItems(ctx context.Context, ids []string) (map[string]*models.CachedRecord, error)
	ItemsByPrefix(ctx context.Context, prefix string) ([]*models.CachedRecord, error)
	StaleItems(ctx context.Context, days int) ([]string, error)
	AddToCollection(ctx context.Context, itemID, collection string) error
	RemoveFromCollection(ctx context.Context, itemID, collection string) error
	CollectionItems(ctx context.Context, collection string) ([]string, error)
}

// SummaryWriter is the interface for persisting batch summaries.
type SummaryWriter interface {
	WriteSummary(rows []SummaryRow) error
	Close() error
}
