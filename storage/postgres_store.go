package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"brick-pricer/models"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// PostgresStore persists scraped items, inventories, collections and price
// history to PostgreSQL.
type PostgresStore struct {
	db  *sql.DB
	now func() time.Time
}

var (
	_ ItemStore = (*PostgresStore)(nil)
	_ Catalog   = (*PostgresStore)(nil)
)

// NewPostgresStore opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresStore.
func NewPostgresStore(ctx context.Context, dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.PingContext(ctx); err == nil {
			break
		}
		select {
		case <-ctx.Done():
			_ = db.Close()
			return nil, fmt.Errorf("postgres: ping cancelled: %w", ctx.Err())
		case <-time.After(2 * time.Second):
		}
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	ps := &PostgresStore{db: db, now: time.Now}
	if err := ps.migrate(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return ps, nil
}

func (ps *PostgresStore) migrate(ctx context.Context) error {
	_, err := ps.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS items (
			item_id       TEXT PRIMARY KEY,
			json_data     TEXT NOT NULL,
			updated_at    TIMESTAMPTZ,
			cached_rating TEXT,
			cached_profit REAL,
			cached_margin REAL
		);

		CREATE TABLE IF NOT EXISTS inventory_lists (
			set_id     TEXT PRIMARY KEY,
			json_data  TEXT NOT NULL,
			updated_at TIMESTAMPTZ
		);

		CREATE TABLE IF NOT EXISTS collections (
			item_id         TEXT NOT NULL,
			collection_name TEXT NOT NULL,
			added_at        TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (item_id, collection_name)
		);

		CREATE TABLE IF NOT EXISTS price_history (
			id              SERIAL PRIMARY KEY,
			item_id         TEXT NOT NULL REFERENCES items(item_id) ON DELETE CASCADE,
			price_new       REAL,
			price_used      REAL,
			confidence_new  TEXT,
			confidence_used TEXT,
			scraped_at      TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_items_cached_rating       ON items(cached_rating);
		CREATE INDEX IF NOT EXISTS idx_price_history_item_id     ON price_history(item_id);
		CREATE INDEX IF NOT EXISTS idx_price_history_scraped_at  ON price_history(scraped_at);
	`)
	return err
}

// GetItem loads the cached listings of an item together with its last
// recorded estimate pair.
func (ps *PostgresStore) GetItem(ctx context.Context, itemID string) (*models.CachedRecord, error) {
	query, args, err := selectItems().Where(sq.Eq{"item_id": itemID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build get item: %w", err)
	}

	rec, err := scanRecord(ps.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get item %s: %w", itemID, err)
	}

	prior, err := ps.latestPrice(ctx, itemID)
	if err != nil {
		return nil, err
	}
	rec.Prior = prior
	return rec, nil
}

// GetItems loads several items at once. Missing IDs are absent from the map.
func (ps *PostgresStore) GetItems(ctx context.Context, ids []string) (map[string]*models.CachedRecord, error) {
	result := make(map[string]*models.CachedRecord, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	query, args, err := selectItems().Where(sq.Expr("item_id = ANY(?)", pq.Array(ids))).ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build get items: %w", err)
	}
	err = ps.collectRecords(ctx, query, args, func(rec *models.CachedRecord) {
		result[rec.ItemID] = rec
	})
	return result, err
}

// ItemsByPrefix returns every item whose ID starts with prefix.
func (ps *PostgresStore) ItemsByPrefix(ctx context.Context, prefix string) ([]*models.CachedRecord, error) {
	query, args, err := selectItems().Where(sq.Like{"item_id": prefix + "%"}).OrderBy("item_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build items by prefix: %w", err)
	}
	var out []*models.CachedRecord
	err = ps.collectRecords(ctx, query, args, func(rec *models.CachedRecord) {
		out = append(out, rec)
	})
	return out, err
}

func (ps *PostgresStore) collectRecords(ctx context.Context, query string, args []any, fn func(*models.CachedRecord)) error {
	rows, err := ps.db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("postgres: query items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return fmt.Errorf("postgres: scan item: %w", err)
		}
		fn(rec)
	}
	return rows.Err()
}

// SaveItem upserts the item's listings with cached sniper columns and
// appends a price history row. An empty scrape never overwrites an
// existing record.
func (ps *PostgresStore) SaveItem(ctx context.Context, itemID string, listings models.ItemListings, analysis *models.Analysis) error {
	if listings.Empty() {
		exists, err := ps.itemExists(ctx, itemID)
		if err != nil {
			return err
		}
		if exists {
			return nil
		}
	}

	payload, err := json.Marshal(listings)
	if err != nil {
		return fmt.Errorf("postgres: encode item %s: %w", itemID, err)
	}

	now := ps.now()
	upsert, upsertArgs, err := upsertItemQuery(itemID, string(payload), now, analysis).ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build upsert: %w", err)
	}

	tx, err := ps.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, upsert, upsertArgs...); err != nil {
		return fmt.Errorf("postgres: upsert item %s: %w", itemID, err)
	}

	if analysis != nil {
		hist, histArgs, err := insertHistoryQuery(itemID, analysis, now).ToSql()
		if err != nil {
			return fmt.Errorf("postgres: build history insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, hist, histArgs...); err != nil {
			return fmt.Errorf("postgres: insert history %s: %w", itemID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("postgres: commit item %s: %w", itemID, err)
	}
	return nil
}

func (ps *PostgresStore) itemExists(ctx context.Context, itemID string) (bool, error) {
	query, args, err := psql.Select("1").From("items").Where(sq.Eq{"item_id": itemID}).ToSql()
	if err != nil {
		return false, fmt.Errorf("postgres: build exists: %w", err)
	}
	var one int
	err = ps.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("postgres: exists %s: %w", itemID, err)
	}
	return true, nil
}

// GetInventory returns the stored component list of a set.
func (ps *PostgresStore) GetInventory(ctx context.Context, setID string) ([]models.Component, error) {
	query, args, err := psql.Select("json_data").From("inventory_lists").Where(sq.Eq{"set_id": setID}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build get inventory: %w", err)
	}

	var raw string
	err = ps.db.QueryRowContext(ctx, query, args...).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: get inventory %s: %w", setID, err)
	}

	var comps []models.Component
	if err := json.Unmarshal([]byte(raw), &comps); err != nil {
		return nil, fmt.Errorf("postgres: decode inventory %s: %w", setID, err)
	}
	return comps, nil
}

// SaveInventory upserts the component list of a set.
func (ps *PostgresStore) SaveInventory(ctx context.Context, setID string, components []models.Component) error {
	payload, err := json.Marshal(components)
	if err != nil {
		return fmt.Errorf("postgres: encode inventory %s: %w", setID, err)
	}

	query, args, err := psql.Insert("inventory_lists").
		Columns("set_id", "json_data", "updated_at").
		Values(setID, string(payload), ps.now()).
		Suffix("ON CONFLICT (set_id) DO UPDATE SET json_data = EXCLUDED.json_data, updated_at = EXCLUDED.updated_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build save inventory: %w", err)
	}
	if _, err := ps.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: save inventory %s: %w", setID, err)
	}
	return nil
}

// AddToCollection tags an item with a collection name. Re-adding is a no-op.
func (ps *PostgresStore) AddToCollection(ctx context.Context, itemID, collection string) error {
	query, args, err := psql.Insert("collections").
		Columns("item_id", "collection_name", "added_at").
		Values(itemID, collection, ps.now()).
		Suffix("ON CONFLICT (item_id, collection_name) DO NOTHING").
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build add to collection: %w", err)
	}
	if _, err := ps.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: add %s to %s: %w", itemID, collection, err)
	}
	return nil
}

// RemoveFromCollection removes the tag.
func (ps *PostgresStore) RemoveFromCollection(ctx context.Context, itemID, collection string) error {
	query, args, err := psql.Delete("collections").
		Where(sq.Eq{"item_id": itemID, "collection_name": collection}).
		ToSql()
	if err != nil {
		return fmt.Errorf("postgres: build remove from collection: %w", err)
	}
	if _, err := ps.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("postgres: remove %s from %s: %w", itemID, collection, err)
	}
	return nil
}

// CollectionItems lists the item IDs tagged with collection.
func (ps *PostgresStore) CollectionItems(ctx context.Context, collection string) ([]string, error) {
	query, args, err := psql.Select("item_id").From("collections").
		Where(sq.Eq{"collection_name": collection}).OrderBy("added_at").ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build collection items: %w", err)
	}
	return ps.queryIDs(ctx, query, args)
}

// StaleItems lists items not refreshed within the last days.
func (ps *PostgresStore) StaleItems(ctx context.Context, days int) ([]string, error) {
	cutoff := ps.now().Add(-time.Duration(days) * 24 * time.Hour)
	query, args, err := psql.Select("item_id").From("items").
		Where(sq.Or{sq.Lt{"updated_at": cutoff}, sq.Eq{"updated_at": nil}}).
		OrderBy("item_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build stale items: %w", err)
	}
	return ps.queryIDs(ctx, query, args)
}

func (ps *PostgresStore) queryIDs(ctx context.Context, query string, args []any) ([]string, error) {
	rows, err := ps.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: query ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("postgres: scan id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// PriceHistory returns the item's estimates of the last days, newest first.
func (ps *PostgresStore) PriceHistory(ctx context.Context, itemID string, days int) ([]models.PricePoint, error) {
	cutoff := ps.now().Add(-time.Duration(days) * 24 * time.Hour)
	query, args, err := historyQuery(itemID).Where(sq.Gt{"scraped_at": cutoff}).ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build history: %w", err)
	}

	rows, err := ps.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: history %s: %w", itemID, err)
	}
	defer rows.Close()

	var points []models.PricePoint
	for rows.Next() {
		p, err := scanPricePoint(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan history: %w", err)
		}
		points = append(points, p)
	}
	return points, rows.Err()
}

func (ps *PostgresStore) latestPrice(ctx context.Context, itemID string) (*models.PriorEstimate, error) {
	query, args, err := historyQuery(itemID).Limit(1).ToSql()
	if err != nil {
		return nil, fmt.Errorf("postgres: build latest price: %w", err)
	}
	p, err := scanPricePoint(ps.db.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("postgres: latest price %s: %w", itemID, err)
	}
	return &models.PriorEstimate{
		PriceNew:       p.PriceNew,
		PriceUsed:      p.PriceUsed,
		ConfidenceNew:  p.ConfidenceNew,
		ConfidenceUsed: p.ConfidenceUsed,
	}, nil
}

func (ps *PostgresStore) Close() error {
	return ps.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func selectItems() sq.SelectBuilder {
	return psql.Select("item_id", "json_data", "updated_at").From("items")
}

func scanRecord(row rowScanner) (*models.CachedRecord, error) {
	var (
		id      string
		raw     string
		updated sql.NullTime
	)
	if err := row.Scan(&id, &raw, &updated); err != nil {
		return nil, err
	}
	return decodeRecord(id, raw, updated)
}

func decodeRecord(id, raw string, updated sql.NullTime) (*models.CachedRecord, error) {
	rec := &models.CachedRecord{ItemID: id}
	if updated.Valid {
		rec.LastUpdate = updated.Time.UTC().Format(time.RFC3339Nano)
	}
	if err := json.Unmarshal([]byte(raw), &rec.Listings); err != nil {
		return nil, fmt.Errorf("decode item %s: %w", id, err)
	}
	return rec, nil
}

func historyQuery(itemID string) sq.SelectBuilder {
	return psql.Select("price_new", "price_used", "confidence_new", "confidence_used", "scraped_at").
		From("price_history").
		Where(sq.Eq{"item_id": itemID}).
		OrderBy("scraped_at DESC")
}

func scanPricePoint(row rowScanner) (models.PricePoint, error) {
	var (
		p                  models.PricePoint
		priceNew, priceUse sql.NullFloat64
		confNew, confUsed  sql.NullString
	)
	if err := row.Scan(&priceNew, &priceUse, &confNew, &confUsed, &p.ScrapedAt); err != nil {
		return p, err
	}
	p.PriceNew = priceNew.Float64
	p.PriceUsed = priceUse.Float64
	p.ConfidenceNew = models.Confidence(confNew.String)
	p.ConfidenceUsed = models.Confidence(confUsed.String)
	return p, nil
}

func upsertItemQuery(itemID, payload string, now time.Time, analysis *models.Analysis) sq.InsertBuilder {
	rating, profit, margin := cachedSniperColumns(analysis)
	return psql.Insert("items").
		Columns("item_id", "json_data", "updated_at", "cached_rating", "cached_profit", "cached_margin").
		Values(itemID, payload, now, rating, profit, margin).
		Suffix(`ON CONFLICT (item_id) DO UPDATE SET
			json_data = EXCLUDED.json_data,
			updated_at = EXCLUDED.updated_at,
			cached_rating = EXCLUDED.cached_rating,
			cached_profit = EXCLUDED.cached_profit,
			cached_margin = EXCLUDED.cached_margin`)
}

func insertHistoryQuery(itemID string, a *models.Analysis, now time.Time) sq.InsertBuilder {
	return psql.Insert("price_history").
		Columns("item_id", "price_new", "price_used", "confidence_new", "confidence_used", "scraped_at").
		Values(itemID, a.New.MarketPrice, a.Used.MarketPrice, string(a.New.Confidence), string(a.Used.Confidence), now)
}

// cachedSniperColumns flattens the sniper signal for indexed queries.
func cachedSniperColumns(a *models.Analysis) (rating string, profit, margin float64) {
	if a == nil || a.DeepDive.Sniper == nil {
		return "N/A", 0, 0
	}
	s := a.DeepDive.Sniper
	return string(s.Rating), s.ProfitAbs, s.MarginPct
}
