package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"brick-pricer/models"
	"brick-pricer/services"
	"brick-pricer/storage"
	"brick-pricer/utils"
)

const maxHistoryDays = 365

// App holds the collaborators shared by the HTTP handlers.
type App struct {
	Store    storage.ItemStore
	Pipeline *services.Pipeline
	Analyzer *services.Analyzer
	Policy   *services.FreshnessPolicy
	Logger   *utils.Logger
	started  time.Time
}

// NewApp creates an App. The pipeline is only used offline, so API
// requests never trigger a scrape.
func NewApp(store storage.ItemStore, pipeline *services.Pipeline, analyzer *services.Analyzer,
	policy *services.FreshnessPolicy, logger *utils.Logger) *App {
	return &App{
		Store:    store,
		Pipeline: pipeline,
		Analyzer: analyzer,
		Policy:   policy,
		Logger:   logger,
		started:  time.Now(),
	}
}

type freshnessResponse struct {
	ItemID     string                 `json:"item_id"`
	Refresh    bool                   `json:"refresh"`
	Reason     services.RefreshReason `json:"reason"`
	AgeSeconds int64                  `json:"age_seconds"`
	LastUpdate string                 `json:"last_update,omitempty"`
}

type historyResponse struct {
	ItemID string              `json:"item_id"`
	Days   int                 `json:"days"`
	Points []models.PricePoint `json:"points"`
	Trend  *models.PriceTrend  `json:"trend,omitempty"`
}

type analyzeRequest struct {
	Listings         models.ItemListings `json:"listings"`
	MinifigValueNew  float64             `json:"minifig_value_new"`
	MinifigValueUsed float64             `json:"minifig_value_used"`
}

func (a *App) healthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"uptime_sec": int64(time.Since(a.started).Seconds()),
	})
}

func (a *App) analysisHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if _, err := a.Store.GetItem(r.Context(), id); err != nil {
		a.writeStoreError(w, id, err)
		return
	}

	res := a.Pipeline.AnalyzeItem(r.Context(), id, services.PipelineOptions{Offline: true})
	if res.Err != nil {
		WriteJSONError(w, http.StatusInternalServerError, "analysis_failed", res.Err.Error())
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (a *App) freshnessHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	rec, err := a.Store.GetItem(r.Context(), id)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		a.writeStoreError(w, id, err)
		return
	}

	q := r.URL.Query()
	decision := a.Policy.Evaluate(rec, queryBool(q.Get("deep")), queryBool(q.Get("force")))

	resp := freshnessResponse{
		ItemID:     id,
		Refresh:    decision.Refresh,
		Reason:     decision.Reason,
		AgeSeconds: int64(decision.Age.Seconds()),
	}
	if rec != nil {
		resp.LastUpdate = rec.LastUpdate
	}
	writeJSON(w, http.StatusOK, resp)
}

func (a *App) historyHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	days := 30
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxHistoryDays {
			WriteJSONError(w, http.StatusBadRequest, "validation_error", "days must be between 1 and 365")
			return
		}
		days = n
	}

	points, err := a.Store.PriceHistory(r.Context(), id, days)
	if err != nil {
		a.writeStoreError(w, id, err)
		return
	}
	if points == nil {
		points = []models.PricePoint{}
	}
	writeJSON(w, http.StatusOK, historyResponse{
		ItemID: id,
		Days:   days,
		Points: points,
		Trend:  services.PriceTrend(points),
	})
}

func (a *App) analyzeHandler(w http.ResponseWriter, r *http.Request) {
	ct := r.Header.Get("Content-Type")
	if !strings.HasPrefix(strings.ToLower(ct), "application/json") {
		WriteJSONError(w, http.StatusUnsupportedMediaType, "unsupported_media_type", "expected application/json")
		return
	}

	var req analyzeRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid_json", err.Error())
		return
	}
	if req.MinifigValueNew < 0 || req.MinifigValueUsed < 0 {
		WriteJSONError(w, http.StatusBadRequest, "validation_error", "minifig values must be >= 0")
		return
	}

	writeJSON(w, http.StatusOK, a.Analyzer.Analyze(req.Listings, req.MinifigValueNew, req.MinifigValueUsed))
}

func (a *App) writeStoreError(w http.ResponseWriter, id string, err error) {
	if errors.Is(err, storage.ErrNotFound) {
		WriteJSONError(w, http.StatusNotFound, "not_found", "item "+id+" is not cached")
		return
	}
	a.Logger.Error("[api] Store lookup of %s failed: %v", id, err)
	WriteJSONError(w, http.StatusInternalServerError, "storage_error", "")
}

func queryBool(v string) bool {
	b, err := strconv.ParseBool(v)
	return err == nil && b
}
