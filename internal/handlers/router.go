package handlers

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/jwaldner/wheelhouse/internal/metrics"
)

// NewRouter wires the API and the metrics endpoint
func NewRouter(h *OptionsHandler) *mux.Router {
	r := mux.NewRouter()
	r.Use(LoggingMiddleware, CORSMiddleware)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(ZstdMiddleware)
	api.HandleFunc("/health", h.HealthHandler).Methods(http.MethodGet)
	api.HandleFunc("/market", h.MarketHandler).Methods(http.MethodGet)
	api.HandleFunc("/scan/{strategy}", h.ScanHandler).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/positions/review", h.ReviewHandler).Methods(http.MethodGet)
	api.HandleFunc("/capital", h.CapitalHandler).Methods(http.MethodGet)
	api.HandleFunc("/factors", h.FactorsHandler).Methods(http.MethodGet)
	api.HandleFunc("/factors/{ticker}/refresh", h.RefreshFactorsHandler).Methods(http.MethodPost)
	api.HandleFunc("/factors/{ticker}", h.ForgetFactorsHandler).Methods(http.MethodDelete)

	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)
	return r
}
