package bricklink

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"golang.org/x/time/rate"

	"brick-pricer/config"
	"brick-pricer/models"
	"brick-pricer/utils"
)

const (
	catalogURL   = "https://www.bricklink.com/v2/catalog/catalogitem.page"
	inventoryURL = "https://www.bricklink.com/catalogItemInv.asp"
	userAgent    = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 " +
		"(KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Scraper renders BrickLink catalog pages in headless Chrome and parses
// them into listings. One browser is shared by all fetches; page loads are
// paced by a token bucket.
type Scraper struct {
	cfg     *config.Config
	logger  *utils.Logger
	limiter *rate.Limiter
	retry   *utils.RetryConfig
	now     func() time.Time

	mu          sync.Mutex
	browserCtx  context.Context
	cancelAlloc context.CancelFunc
	cancelTab   context.CancelFunc
}

// New creates a ready-to-use BrickLink Scraper. The browser starts lazily
// on the first fetch.
func New(cfg *config.Config, logger *utils.Logger) *Scraper {
	return &Scraper{
		cfg:     cfg,
		logger:  logger,
		limiter: utils.NewLimiter(cfg.RateLimitMs),
		retry: &utils.RetryConfig{
			MaxAttempts: cfg.MaxRetries,
			BaseDelay:   2 * time.Second,
			Logger:      logger,
		},
		now: time.Now,
	}
}

// FetchItem renders the price guide of an item and parses its four
// listing tables.
func (s *Scraper) FetchItem(ctx context.Context, itemID string, itemType models.ItemType) (*models.ItemListings, error) {
	pageURL := fmt.Sprintf("%s?%s=%s#T=P", catalogURL, itemType, url.QueryEscape(itemID))
	s.logger.Info("[bricklink] Fetching price guide for %s", itemID)

	html, err := s.render(ctx, "price-guide-"+itemID, pageURL, "table.pcipgInnerTable")
	if err != nil {
		return nil, err
	}
	item, err := ParsePriceGuide(itemID, itemType, html, s.now())
	if err != nil {
		return nil, err
	}
	s.logger.Debug("[bricklink] %s: new %d/%d, used %d/%d (sold/stock)", itemID,
		len(item.New.Sold), len(item.New.Stock), len(item.Used.Sold), len(item.Used.Stock))
	return item, nil
}

// FetchInventory renders a set's minifigure inventory.
func (s *Scraper) FetchInventory(ctx context.Context, setID string) ([]models.Component, error) {
	if !strings.Contains(setID, "-") {
		setID += "-1"
	}
	pageURL := fmt.Sprintf("%s?S=%s&viewItemType=M", inventoryURL, url.QueryEscape(setID))
	s.logger.Info("[bricklink] Fetching inventory for %s", setID)

	html, err := s.render(ctx, "inventory-"+setID, pageURL, "table")
	if err != nil {
		return nil, err
	}
	return ParseInventory(html)
}

// render loads pageURL in a fresh tab, waits for waitSel and returns the
// document HTML.
func (s *Scraper) render(ctx context.Context, op, pageURL, waitSel string) (string, error) {
	browser, err := s.browser()
	if err != nil {
		return "", err
	}

	var html string
	err = s.retry.Do(ctx, op, func(ctx context.Context) error {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}

		tabCtx, cancel := chromedp.NewContext(browser)
		defer cancel()
		stop := context.AfterFunc(ctx, cancel)
		defer stop()

		tabCtx, cancelTimeout := context.WithTimeout(tabCtx, time.Duration(s.cfg.PageTimeoutSec)*time.Second)
		defer cancelTimeout()

		if err := chromedp.Run(tabCtx,
			chromedp.Navigate(pageURL),
			chromedp.WaitReady(waitSel, chromedp.ByQuery),
			chromedp.Sleep(1500*time.Millisecond),
			chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		); err != nil {
			return fmt.Errorf("chromedp render %s: %w", pageURL, err)
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("bricklink: %w", err)
	}
	return html, nil
}

func (s *Scraper) browser() (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.browserCtx != nil {
		return s.browserCtx, nil
	}

	chromeBin := s.cfg.ChromeBin
	if chromeBin == "" {
		chromeBin = findChromeBinary()
	}
	s.logger.Info("[bricklink] Using browser binary: %s", chromeBin)

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.UserAgent(userAgent),
	)
	if chromeBin != "" {
		opts = append(opts, chromedp.ExecPath(chromeBin))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(context.Background(), opts...)
	// Suppress chromedp log noise
	browserCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(func(string, ...interface{}) {}))
	if err := chromedp.Run(browserCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("bricklink: start browser: %w", err)
	}

	s.browserCtx, s.cancelAlloc, s.cancelTab = browserCtx, cancelAlloc, cancelTab
	return browserCtx, nil
}

// Close shuts the shared browser down.
func (s *Scraper) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelTab != nil {
		s.cancelTab()
		s.cancelAlloc()
		s.browserCtx = nil
	}
}

// findChromeBinary locates Chrome/Chromium binary.
func findChromeBinary() string {
	if bin := os.Getenv("CHROME_BIN"); bin != "" {
		return bin
	}

	names := []string{"google-chrome-stable", "google-chrome", "chromium", "chromium-browser"}
	for _, name := range names {
		if path, err := exec.LookPath(name); err == nil {
			return path
		}
	}

	paths := []string{
		"/usr/bin/google-chrome-stable",
		"/usr/bin/chromium-browser",
		"/usr/bin/chromium",
		"/snap/bin/chromium",
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}

	return ""
}
