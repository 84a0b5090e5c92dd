package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/rl1809/wip-inventory/internal/core/domain"
	"github.com/rl1809/wip-inventory/internal/core/service"
	"github.com/rl1809/wip-inventory/internal/logging"
)

type HTTPHandler struct {
	svc    Services
	logger *zap.Logger
}

type apiResponse struct {
	Success bool     `json:"success"`
	Message string   `json:"message,omitempty"`
	Errors  []string `json:"errors,omitempty"`
	Data    any      `json:"data,omitempty"`
}

func NewHTTPHandler(svc Services, logger *zap.Logger) *HTTPHandler {
	return &HTTPHandler{svc: svc, logger: logger}
}

// NewRouter mounts every endpoint. readiness decides the /health status; nil
// means always ready.
func NewRouter(h *HTTPHandler, readiness func() bool) chi.Router {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		if readiness != nil && !readiness() {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	router.Route("/api", func(r chi.Router) {
		r.Get("/inventory", h.Search)
		r.Post("/inventory/add", h.AddStock)
		r.Post("/inventory/remove", h.RemoveStock)
		r.Get("/locations", h.Locations)
		r.Post("/locations/reload", h.ReloadLocations)
		r.Post("/transfers/validate", h.Validate)
		r.Post("/transfers", h.Transfer)
		r.Get("/transactions", h.Transactions)
		r.Get("/transactions/summary", h.Summary)
	})
	return router
}

func (h *HTTPHandler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	recs, err := h.svc.Query.Search(r.Context(), q.Get("part_id"), q.Get("operation"))
	if err != nil {
		logging.L(r.Context(), h.logger).Error("search inventory", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, apiResponse{Message: "inventory storage is unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: toRecords(recs)})
}

func (h *HTTPHandler) Locations(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: h.svc.Locations.ListLocations()})
}

func (h *HTTPHandler) ReloadLocations(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Locations.Reload(r.Context()); err != nil {
		logging.L(r.Context(), h.logger).Warn("reload locations", zap.Error(err))
		writeJSON(w, http.StatusServiceUnavailable, apiResponse{Message: "location catalog is unavailable"})
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: h.svc.Locations.ListLocations()})
}

func (h *HTTPHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferRequest
	if !decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: toValidation(h.svc.Transfers.Validate(r.Context(), req))})
}

func (h *HTTPHandler) Transfer(w http.ResponseWriter, r *http.Request) {
	var req domain.TransferRequest
	if !decode(w, r, &req) {
		return
	}

	result, err := h.svc.Transfers.ExecuteTransfer(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Message: result.Message, Data: toTransfer(result)})
}

func (h *HTTPHandler) AddStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockRequest
	if !decode(w, r, &req) {
		return
	}

	tx, err := h.svc.Transfers.AddStock(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: toTransaction(tx)})
}

func (h *HTTPHandler) RemoveStock(w http.ResponseWriter, r *http.Request) {
	var req domain.StockRequest
	if !decode(w, r, &req) {
		return
	}

	tx, err := h.svc.Transfers.RemoveStock(r.Context(), req)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: toTransaction(tx)})
}

// Transactions lists history by part_id or, failing that, by user.
func (h *HTTPHandler) Transactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 0
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeJSON(w, http.StatusBadRequest, apiResponse{Message: "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	var txs []domain.Transaction
	var err error
	if partID := q.Get("part_id"); partID != "" {
		txs, err = h.svc.History.ByPart(r.Context(), partID, limit)
	} else {
		txs, err = h.svc.History.ByUser(r.Context(), q.Get("user"), limit)
	}
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: toTransactions(txs)})
}

func (h *HTTPHandler) Summary(w http.ResponseWriter, r *http.Request) {
	from, errFrom := time.Parse(time.RFC3339, r.URL.Query().Get("from"))
	to, errTo := time.Parse(time.RFC3339, r.URL.Query().Get("to"))
	if errFrom != nil || errTo != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Message: "from and to must be RFC3339 timestamps"})
		return
	}

	summary, err := h.svc.History.Summary(r.Context(), from, to)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, apiResponse{Success: true, Data: summary})
}

// writeError maps engine failures onto status codes. Internal causes are
// logged, never returned.
func (h *HTTPHandler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, resp := http.StatusInternalServerError, apiResponse{Message: "internal error"}

	var te *domain.TransferError
	switch {
	case errors.As(err, &te):
		resp = apiResponse{Message: te.Message, Errors: te.Errors}
		switch te.Kind {
		case domain.KindValidationFailed:
			status = http.StatusBadRequest
		case domain.KindInsufficientQuantity:
			status = http.StatusConflict
		case domain.KindPersistenceFailure:
			status = http.StatusServiceUnavailable
		}
	case errors.Is(err, service.ErrAborted):
		status, resp = http.StatusRequestTimeout, apiResponse{Message: "request cancelled before any change was made"}
	case errors.Is(err, service.ErrMissingFilter), errors.Is(err, service.ErrInvalidRange):
		status, resp = http.StatusBadRequest, apiResponse{Message: err.Error()}
	}

	if status >= http.StatusInternalServerError {
		logging.L(r.Context(), h.logger).Error("request failed",
			zap.String("path", r.URL.Path), zap.Error(err))
	}
	writeJSON(w, status, resp)
}

func decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeJSON(w, http.StatusBadRequest, apiResponse{Message: "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
