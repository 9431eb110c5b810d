package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kr1s57/sshsentinel/internal/entity"
	"github.com/kr1s57/sshsentinel/internal/usecase/blocks"
)

// BlocksHandler handles manual block control requests
type BlocksHandler struct {
	service *blocks.Service
}

// NewBlocksHandler creates a new blocks handler
func NewBlocksHandler(service *blocks.Service) *BlocksHandler {
	return &BlocksHandler{service: service}
}

// List returns all active blocks
// GET /api/v1/blocks
func (h *BlocksHandler) List(w http.ResponseWriter, r *http.Request) {
	active, err := h.service.ListBlocks()
	if err != nil {
		ErrorResponse(w, http.StatusInternalServerError, "Failed to fetch blocks", err)
		return
	}
	JSONResponse(w, http.StatusOK, map[string]interface{}{"data": active})
}

// Get returns a specific block by IP
// GET /api/v1/blocks/{ip}
func (h *BlocksHandler) Get(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")

	block, err := h.service.GetBlock(ip)
	if err != nil {
		ErrorResponse(w, http.StatusNotFound, "Block not found", err)
		return
	}
	JSONResponse(w, http.StatusOK, map[string]interface{}{"data": block})
}

// Create blocks an IP address
// POST /api/v1/blocks
func (h *BlocksHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req entity.BlockRequest
	if err := DecodeJSON(r, &req); err != nil {
		ErrorResponse(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.IP == "" {
		ErrorResponse(w, http.StatusBadRequest, "IP address is required", nil)
		return
	}
	if req.Reason == "" {
		ErrorResponse(w, http.StatusBadRequest, "Reason is required", nil)
		return
	}
	if req.ThreatLevel == "" {
		req.ThreatLevel = entity.LevelMedium
	}
	req.Manual = true

	block, created, err := h.service.Block(r.Context(), &req)
	if err != nil {
		if errors.Is(err, blocks.ErrWhitelisted) {
			ErrorResponse(w, http.StatusConflict, "IP is whitelisted", err)
			return
		}
		ErrorResponse(w, http.StatusInternalServerError, "Failed to block IP", err)
		return
	}
	if !created {
		JSONResponse(w, http.StatusOK, map[string]interface{}{"data": block, "already_blocked": true})
		return
	}
	JSONResponse(w, http.StatusCreated, map[string]interface{}{"data": block})
}

// Delete unblocks an IP address
// DELETE /api/v1/blocks/{ip}
func (h *BlocksHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "manual unblock"
	}

	if err := h.service.Unblock(r.Context(), ip, reason, "api"); err != nil {
		if errors.Is(err, blocks.ErrNotBlocked) {
			ErrorResponse(w, http.StatusNotFound, "Block not found", err)
			return
		}
		ErrorResponse(w, http.StatusInternalServerError, "Failed to unblock IP", err)
		return
	}
	SuccessResponse(w, "IP unblocked", nil)
}

// History returns the audit trail for an IP
// GET /api/v1/blocks/{ip}/history
func (h *BlocksHandler) History(w http.ResponseWriter, r *http.Request) {
	ip := chi.URLParam(r, "ip")

	history, err := h.service.History(ip, 50)
	if err != nil {
		ErrorResponse(w, http.StatusInternalServerError, "Failed to fetch history", err)
		return
	}
	JSONResponse(w, http.StatusOK, map[string]interface{}{"data": history})
}
