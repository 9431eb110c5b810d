package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kr1s57/sshsentinel/internal/usecase/blocks"
)

// WhitelistHandler handles whitelist control requests
type WhitelistHandler struct {
	service *blocks.Service
}

// NewWhitelistHandler creates a new whitelist handler
func NewWhitelistHandler(service *blocks.Service) *WhitelistHandler {
	return &WhitelistHandler{service: service}
}

type whitelistRequest struct {
	CIDR    string `json:"cidr"`
	Reason  string `json:"reason"`
	AddedBy string `json:"added_by"`
}

// List returns all whitelist entries
// GET /api/v1/whitelist
func (h *WhitelistHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.service.ListWhitelist()
	if err != nil {
		ErrorResponse(w, http.StatusInternalServerError, "Failed to fetch whitelist", err)
		return
	}
	JSONResponse(w, http.StatusOK, map[string]interface{}{"data": entries})
}

// Add adds an IP or CIDR to the whitelist
// POST /api/v1/whitelist
func (h *WhitelistHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req whitelistRequest
	if err := DecodeJSON(r, &req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.CIDR == "" {
		ErrorResponse(w, http.StatusBadRequest, "cidr is required", nil)
		return
	}
	if req.AddedBy == "" {
		req.AddedBy = "api"
	}

	if err := h.service.AddWhitelist(r.Context(), req.CIDR, req.Reason, req.AddedBy); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "Failed to add whitelist entry", err)
		return
	}
	SuccessResponse(w, "Whitelist entry added", nil)
}

// Remove removes an IP or CIDR from the whitelist
// DELETE /api/v1/whitelist/{cidr}
func (h *WhitelistHandler) Remove(w http.ResponseWriter, r *http.Request) {
	cidr := chi.URLParam(r, "cidr")

	if err := h.service.RemoveWhitelist(cidr); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "Failed to remove whitelist entry", err)
		return
	}
	SuccessResponse(w, "Whitelist entry removed", nil)
}

// Check reports whether an IP is whitelisted
// GET /api/v1/whitelist/check/{ip}
func (h *WhitelistHandler) Check(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	JSONResponse(w, http.StatusOK, map[string]interface{}{
		"ip":          ip,
		"whitelisted": h.service.IsWhitelisted(ip),
	})
}
