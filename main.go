package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"brick-pricer/api"
	"brick-pricer/config"
	"brick-pricer/models"
	"brick-pricer/scraper/bricklink"
	"brick-pricer/services"
	"brick-pricer/storage"
	"brick-pricer/utils"
)

type store interface {
	storage.ItemStore
	storage.Catalog
}

func main() {
	force := flag.Bool("force", false, "refetch every item regardless of cache age")
	deep := flag.Bool("deep", false, "refetch cached items whose last scrape was empty")
	itemType := flag.String("type", "", "catalog type of the given IDs: S (set) or M (minifig), detected when empty")
	serve := flag.Bool("serve", false, "start the HTTP API instead of running a batch")
	backend := flag.String("store", "postgres", "storage backend: postgres or memory")
	collection := flag.String("collection", "", "also analyse every item of this collection")
	addTo := flag.String("add", "", "tag the analysed items with this collection")
	removeFrom := flag.String("remove", "", "untag the given IDs from this collection and exit")
	prefix := flag.String("prefix", "", "also analyse every cached item whose ID starts with this prefix")
	stale := flag.Bool("stale", false, "also analyse every cached item older than the stale threshold")
	flag.Parse()

	rootType, err := parseItemType(*itemType)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.PrintDefaults()
		os.Exit(2)
	}

	cfg := config.Load()
	logger := utils.NewLoggerWithLevel(cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("=== Brick pricer starting ===")
	logger.Info("Config: concurrency %d | rate %dms | retries %d | stale after %dd",
		cfg.MaxConcurrency, cfg.RateLimitMs, cfg.MaxRetries, cfg.Rules.StaleAfterDays)

	st := openStore(ctx, *backend, cfg, logger)
	defer st.Close()

	analyzer := services.NewAnalyzer(cfg.Rules, logger)
	policy := services.NewFreshnessPolicy(cfg.Rules.StaleAfter())
	deps := services.PipelineDeps{
		Store:      st,
		Analyzer:   analyzer,
		Policy:     policy,
		MaxWorkers: cfg.MaxConcurrency,
		MaxDepth:   1,
		Logger:     logger,
	}

	if *serve {
		app := api.NewApp(st, services.NewPipeline(deps), analyzer, policy, logger)
		if err := runServer(ctx, cfg.ListenAddr, api.NewRouter(app), logger); err != nil {
			logger.Error("Server failed: %v", err)
			os.Exit(1)
		}
		return
	}

	ids := normaliseIDs(flag.Args())
	if *removeFrom != "" {
		for _, id := range ids {
			if err := st.RemoveFromCollection(ctx, id, *removeFrom); err != nil {
				logger.Error("Remove %s from %s failed: %v", id, *removeFrom, err)
			}
		}
		logger.Info("Removed %d items from collection %q", len(ids), *removeFrom)
		return
	}

	ids = append(ids, catalogIDs(ctx, st, *collection, *prefix, *stale, cfg.Rules.StaleAfterDays, logger)...)
	ids = dedupe(ids)
	if len(ids) == 0 {
		fmt.Fprintln(os.Stderr, "usage: brick-pricer [flags] ID...")
		flag.PrintDefaults()
		os.Exit(2)
	}

	if cached, err := st.GetItems(ctx, ids); err == nil {
		hits, missing := cacheCoverage(ids, cached)
		logger.Info("%d/%d requested items already cached", hits, len(ids))
		if len(missing) > 0 {
			logger.Debug("Not cached yet: %s", strings.Join(missing, ", "))
		}
	}

	scraper := bricklink.New(cfg, logger)
	defer scraper.Close()
	deps.Fetcher = scraper
	pipeline := services.NewPipeline(deps)

	opts := services.PipelineOptions{
		Force:    *force,
		DeepScan: *deep,
		ItemType: rootType,
	}
	results := pipeline.Run(ctx, ids, opts)

	report := services.NewReportService()
	for _, r := range results {
		report.PrintItem(r)
	}
	report.PrintBatch(results)

	if *addTo != "" {
		for _, r := range results {
			if r.Err != nil {
				continue
			}
			if err := st.AddToCollection(ctx, r.ItemID, *addTo); err != nil {
				logger.Error("Add %s to %s failed: %v", r.ItemID, *addTo, err)
			}
		}
	}

	csvWriter, err := storage.NewCSVWriter(cfg.CSVOutputPath)
	if err != nil {
		logger.Error("Failed to create CSV writer: %v", err)
		os.Exit(1)
	}
	defer csvWriter.Close()

	if err := csvWriter.WriteSummary(services.SummaryRows(results)); err != nil {
		logger.Error("CSV write failed: %v", err)
	} else {
		logger.Info("Batch summary saved to %s", cfg.CSVOutputPath)
	}
}

// openStore connects to PostgreSQL, falling back to an in-memory store
// when the database is unreachable.
func openStore(ctx context.Context, backend string, cfg *config.Config, logger *utils.Logger) store {
	if backend == "memory" {
		logger.Info("Using in-memory store")
		return storage.NewMemoryStore()
	}

	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	pg, err := storage.NewPostgresStore(connectCtx, cfg.DSN())
	if err != nil {
		logger.Error("Failed to connect to PostgreSQL: %v", err)
		logger.Warn("Falling back to in-memory store; nothing will be persisted")
		return storage.NewMemoryStore()
	}
	logger.Info("Connected to PostgreSQL at %s:%s/%s", cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresDB)
	return pg
}

func catalogIDs(ctx context.Context, st store, collection, prefix string, stale bool, staleDays int, logger *utils.Logger) []string {
	var ids []string
	if collection != "" {
		found, err := st.CollectionItems(ctx, collection)
		if err != nil {
			logger.Error("Listing collection %q failed: %v", collection, err)
		}
		logger.Info("Collection %q: %d items", collection, len(found))
		ids = append(ids, found...)
	}
	if prefix != "" {
		recs, err := st.ItemsByPrefix(ctx, prefix)
		if err != nil {
			logger.Error("Listing prefix %q failed: %v", prefix, err)
		}
		for _, rec := range recs {
			ids = append(ids, rec.ItemID)
		}
	}
	if stale {
		found, err := st.StaleItems(ctx, staleDays)
		if err != nil {
			logger.Error("Listing stale items failed: %v", err)
		}
		logger.Info("%d cached items are stale", len(found))
		ids = append(ids, found...)
	}
	return ids
}

func runServer(ctx context.Context, addr string, handler http.Handler, logger *utils.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("API listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("Shutting down API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

func normaliseIDs(args []string) []string {
	var ids []string
	for _, a := range args {
		for _, id := range strings.Split(a, ",") {
			if id = strings.TrimSpace(id); id != "" {
				ids = append(ids, id)
			}
		}
	}
	return ids
}

func dedupe(ids []string) []string {
	seen := utils.NewIDSet()
	out := ids[:0]
	for _, id := range ids {
		if seen.Add(id) {
			out = append(out, id)
		}
	}
	return out
}

// parseItemType maps the -type flag to a catalog type. An empty value
// leaves detection to the pipeline.
func parseItemType(s string) (models.ItemType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "s", "set":
		return models.ItemTypeSet, nil
	case "m", "minifig":
		return models.ItemTypeMinifig, nil
	}
	return "", fmt.Errorf("invalid -type %q: want S, M, set or minifig", s)
}

// cacheCoverage counts the requested IDs present in cached and lists the
// rest in request order.
func cacheCoverage(ids []string, cached map[string]*models.CachedRecord) (int, []string) {
	hits := utils.NewIDSet()
	for id, rec := range cached {
		if rec != nil {
			hits.Add(id)
		}
	}
	var missing []string
	for _, id := range ids {
		if !hits.Contains(id) {
			missing = append(missing, id)
		}
	}
	return hits.Size(), missing
}
