package handlers

import (
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kr1s57/sshsentinel/internal/adapter/external/threatintel"
)

// ReputationHandler exposes on-demand threat intel lookups
type ReputationHandler struct {
	aggregator *threatintel.Aggregator
}

// NewReputationHandler creates a new reputation handler
func NewReputationHandler(aggregator *threatintel.Aggregator) *ReputationHandler {
	return &ReputationHandler{aggregator: aggregator}
}

// Check queries every configured source for an IP
// GET /api/v1/reputation/{ip}
func (h *ReputationHandler) Check(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	if net.ParseIP(ip) == nil {
		ErrorResponse(w, http.StatusBadRequest, "Invalid IP address", nil)
		return
	}

	result := h.aggregator.CheckIP(r.Context(), ip)
	JSONResponse(w, http.StatusOK, result)
}

// Sources lists configured providers and lookup statistics
// GET /api/v1/reputation
func (h *ReputationHandler) Sources(w http.ResponseWriter, r *http.Request) {
	JSONResponse(w, http.StatusOK, map[string]interface{}{
		"providers": h.aggregator.ConfiguredProviders(),
		"stats":     h.aggregator.Stats(),
	})
}
