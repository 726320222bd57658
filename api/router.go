package api

import (
	"net/http"

	"github.com/gorilla/mux"
)

// NewRouter registers the HTTP routes and wraps them in middleware.
func NewRouter(app *App) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", app.healthHandler).Methods(http.MethodGet)
	r.HandleFunc("/items/{id}/analysis", app.analysisHandler).Methods(http.MethodGet)
	r.HandleFunc("/items/{id}/freshness", app.freshnessHandler).Methods(http.MethodGet)
	r.HandleFunc("/items/{id}/history", app.historyHandler).Methods(http.MethodGet)
	r.HandleFunc("/analyze", app.analyzeHandler).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSONError(w, http.StatusNotFound, "not_found", "")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		WriteJSONError(w, http.StatusMethodNotAllowed, "method_not_allowed", "")
	})

	return WithRequestID(WithLogging(app.Logger)(r))
}
