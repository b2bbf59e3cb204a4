package state

import (
	"encoding/json"
	"net/http"

	"NetPulse/internal/model"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter builds the read-only state API. Everything here serves data
// the dashboard core already holds in memory; there are no write paths.
func NewRouter(d *Dashboard, gatherer prometheus.Gatherer, logger *zap.Logger) *mux.Router {
	h := &apiHandler{dash: d, logger: logger}

	r := mux.NewRouter()
	r.HandleFunc("/api/v1/state", h.stateHandler).Methods("GET")
	r.HandleFunc("/api/v1/traffic", h.trafficHandler).Methods("GET")
	r.HandleFunc("/api/v1/protocols", h.protocolsHandler).Methods("GET")
	r.HandleFunc("/api/v1/packets", h.packetsHandler).Methods("GET")
	r.HandleFunc("/api/v1/hosts", h.hostsHandler).Methods("GET")
	r.HandleFunc("/api/v1/health", h.healthHandler).Methods("GET")
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	return r
}

type apiHandler struct {
	dash   *Dashboard
	logger *zap.Logger
}

func (h *apiHandler) stateHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.dash.Overview())
}

func (h *apiHandler) trafficHandler(w http.ResponseWriter, r *http.Request) {
	detailed, aggregate := h.dash.Traffic()
	h.writeJSON(w, struct {
		Detailed  []model.TrafficSample `json:"detailed"`
		Aggregate []model.TrafficSample `json:"aggregate"`
	}{detailed, aggregate})
}

func (h *apiHandler) protocolsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.dash.Protocols())
}

func (h *apiHandler) packetsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.dash.Packets())
}

func (h *apiHandler) hostsHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.dash.Hosts())
}

func (h *apiHandler) healthHandler(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, h.dash.Health())
}

func (h *apiHandler) writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Warn("failed to encode response", zap.Error(err))
	}
}
