package bricklink

import (
	"fmt"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"brick-pricer/models"
)

var (
	yearRegexp     = regexp.MustCompile(`Year Released\D*(\d{4})`)
	weightRegexp   = regexp.MustCompile(`Weight:\s*([\d.]+)\s*g`)
	partsRegexp    = regexp.MustCompile(`(\d+)\s*Parts`)
	minifigsRegexp = regexp.MustCompile(`(\d+)\s*Minifig`)
	nonPriceRegexp = regexp.MustCompile(`[^\d.]`)
	nonDigitRegexp = regexp.MustCompile(`[^\d]`)
	spaceRegexp    = regexp.MustCompile(`\s+`)
)

type tableKind int

const (
	soldTable tableKind = iota
	stockTable
)

// ParsePriceGuide extracts item metadata and the four price guide tables
// (new sold, used sold, new stock, used stock) from a rendered catalog page.
// Rows that cannot be parsed are skipped.
func ParsePriceGuide(itemID string, itemType models.ItemType, html string, scrapedAt time.Time) (*models.ItemListings, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("bricklink: parse price guide %s: %w", itemID, err)
	}

	text := doc.Text()
	item := &models.ItemListings{
		Meta: models.ItemMeta{
			ItemID:       itemID,
			ItemName:     itemName(doc),
			ItemType:     itemType,
			YearReleased: releaseYear(text),
			Specs:        specs(text),
			Timestamp:    scrapedAt,
		},
		New:  models.ConditionBucket{Sold: []models.Listing{}, Stock: []models.Listing{}},
		Used: models.ConditionBucket{Sold: []models.Listing{}, Stock: []models.Listing{}},
	}

	tables := doc.Find("table.pcipgInnerTable")
	if tables.Length() >= 4 {
		item.New.Sold = extractRows(tables.Eq(0), soldTable)
		item.Used.Sold = extractRows(tables.Eq(1), soldTable)
		item.New.Stock = extractRows(tables.Eq(2), stockTable)
		item.Used.Stock = extractRows(tables.Eq(3), stockTable)
	}
	return item, nil
}

func itemName(doc *goquery.Document) string {
	name := strings.TrimSpace(doc.Find("h1#item-name-title").First().Text())
	if name == "" {
		name = strings.TrimSpace(doc.Find("title").First().Text())
	}
	if name == "" {
		return "Unknown"
	}
	return strings.TrimSpace(strings.SplitN(name, ":", 2)[0])
}

func releaseYear(text string) *int {
	m := yearRegexp.FindStringSubmatch(text)
	if len(m) < 2 {
		return nil
	}
	year, err := strconv.Atoi(m[1])
	if err != nil {
		return nil
	}
	return &year
}

func specs(text string) models.Specs {
	var s models.Specs
	if m := weightRegexp.FindStringSubmatch(text); len(m) == 2 {
		s.WeightGrams, _ = strconv.ParseFloat(m[1], 64)
	}
	if m := partsRegexp.FindStringSubmatch(text); len(m) == 2 {
		s.Parts, _ = strconv.Atoi(m[1])
	}
	if m := minifigsRegexp.FindStringSubmatch(text); len(m) == 2 {
		s.Minifigs, _ = strconv.Atoi(m[1])
	}
	return s
}

// extractRows reads quantity and price cells. Sold tables carry them in the
// last two cells, stock tables in the second and third.
func extractRows(table *goquery.Selection, kind tableKind) []models.Listing {
	rows := []models.Listing{}
	table.Find("tr").Each(func(_ int, tr *goquery.Selection) {
		tds := tr.Find("td")
		n := tds.Length()
		if n < 2 {
			return
		}

		qtyIdx, priceIdx := n-2, n-1
		if kind == stockTable {
			if n < 3 {
				return
			}
			qtyIdx, priceIdx = 1, 2
		}

		rowText := strings.TrimSpace(spaceRegexp.ReplaceAllString(tr.Text(), " "))
		incomplete := tr.Find(".js-item-status-incomplete").Length() > 0 ||
			strings.Contains(strings.ToLower(rowText), "(i)")

		price, err := strconv.ParseFloat(cleanNumber(tds.Eq(priceIdx).Text(), nonPriceRegexp), 64)
		if err != nil || price <= 0 {
			return
		}
		qty, err := strconv.Atoi(cleanNumber(tds.Eq(qtyIdx).Text(), nonDigitRegexp))
		if err != nil || qty < 1 {
			return
		}

		status := models.StatusComplete
		if incomplete {
			status = models.StatusIncomplete
		}
		rows = append(rows, models.Listing{
			Price:       price,
			Quantity:    qty,
			Status:      status,
			Description: rowText,
		})
	})
	return rows
}

func cleanNumber(s string, strip *regexp.Regexp) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	return strings.Trim(strip.ReplaceAllString(s, ""), ".")
}

// ParseInventory lists the minifigures linked from a set inventory page.
func ParseInventory(html string) ([]models.Component, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("bricklink: parse inventory: %w", err)
	}

	seen := make(map[string]int)
	var comps []models.Component
	doc.Find("tr a[href*='?M=']").Each(func(_ int, a *goquery.Selection) {
		href, _ := a.Attr("href")
		id := minifigID(href)
		if id == "" {
			return
		}
		if idx, dup := seen[id]; dup {
			if comps[idx].Name == "" {
				comps[idx].Name = strings.TrimSpace(a.Text())
			}
			return
		}
		seen[id] = len(comps)
		comps = append(comps, models.Component{
			ID:       id,
			Name:     strings.TrimSpace(a.Text()),
			Quantity: 1,
		})
	})
	return comps, nil
}

func minifigID(href string) string {
	i := strings.Index(href, "?")
	if i < 0 {
		return ""
	}
	query, _, _ := strings.Cut(href[i+1:], "#")
	q, err := url.ParseQuery(query)
	if err != nil {
		return ""
	}
	return q.Get("M")
}
