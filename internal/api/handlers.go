package api

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/starford/dagaz/internal/apperr"
	"github.com/starford/dagaz/internal/service"
)

// Handler holds API route handlers.
type Handler struct {
	svc *service.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *service.Service) *Handler {
	return &Handler{svc: svc}
}

// Query handles POST /api/query.
//
//	@Summary		Query flattened preset records
//	@Tags			query
//	@Accept			json
//	@Produce		json
//	@Param			body	body		QueryRequestDTO	false	"Filters, columns, and preview limit override"
//	@Success		200		{object}	QueryResponse
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/query [post]
func (h *Handler) Query(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	res, err := h.svc.Query(r.Context(), req)
	if err != nil {
		writeServiceError(w, "query", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Export handles POST /api/query/export.
//
//	@Summary		Export matching records as CSV
//	@Tags			query
//	@Accept			json
//	@Produce		text/csv
//	@Param			body	body		QueryRequestDTO	false	"Filters and columns; the preview limit does not apply"
//	@Success		200		{string}	string	"CSV document"
//	@Failure		400		{object}	errResponse
//	@Failure		503		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/query/export [post]
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	// Build the document before touching the response so a late failure
	// can still produce a JSON error.
	var buf bytes.Buffer
	if _, err := h.svc.Export(r.Context(), &buf, req); err != nil {
		writeServiceError(w, "export", err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="presets.csv"`)
	w.WriteHeader(http.StatusOK)
	if _, err := buf.WriteTo(w); err != nil {
		slog.Error("export write failed", slog.String("error", err.Error()))
	}
}

// Properties handles GET /api/properties.
//
//	@Summary		List distinct property names across all records
//	@Tags			query
//	@Produce		json
//	@Success		200	{object}	PropertiesResponse
//	@Security		BearerAuth
//	@Router			/properties [get]
func (h *Handler) Properties(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.Properties(r.Context())
	if err != nil {
		writeServiceError(w, "properties", err)
		return
	}
	writeJSON(w, http.StatusOK, PropertiesResponse{Properties: names})
}

// Status handles GET /api/status.
//
//	@Summary		Report store readiness and sync state
//	@Tags			sync
//	@Produce		json
//	@Success		200	{object}	StatusResponse
//	@Security		BearerAuth
//	@Router			/status [get]
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.Status(r.Context())
	if err != nil {
		writeServiceError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// Sync handles POST /api/sync.
//
//	@Summary		Start a sync pass in the background
//	@Tags			sync
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SyncRequest	false	"Set full to rebuild the store from scratch"
//	@Success		202		{object}	SyncAcceptedResponse
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/sync [post]
func (h *Handler) Sync(w http.ResponseWriter, r *http.Request) {
	var req SyncRequest
	if err := decodeBody(w, r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if h.svc.SyncRunning() {
		writeJSON(w, http.StatusConflict, errorBody("sync already running"))
		return
	}
	// Detach from the request context: the pass outlives the response.
	go func(full bool) {
		if _, err := h.svc.Sync(context.Background(), full); err != nil && !errors.Is(err, apperr.ErrSyncRunning) {
			slog.Error("background sync failed", slog.String("error", err.Error()))
		}
	}(req.Full)
	writeJSON(w, http.StatusAccepted, SyncAcceptedResponse{Started: true})
}
