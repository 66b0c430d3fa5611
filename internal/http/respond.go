package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/fjod/mindquiz/internal/gateway"
	"github.com/fjod/mindquiz/internal/service"
)

type ErrorResponse struct {
	Error  string `json:"error"`
	Detail any    `json:"detail,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

func respondError(w http.ResponseWriter, status int, code string) {
	respondJSON(w, status, ErrorResponse{Error: code})
}

// handleReadyError maps service errors from the ready path. Provider
// rejections pass the provider body through as the error value.
func handleReadyError(w http.ResponseWriter, err error) {
	var gwErr *gateway.Error
	switch {
	case errors.Is(err, service.ErrPaymentsDisabled):
		respondError(w, http.StatusServiceUnavailable, "PAYMENTS_DISABLED")
	case errors.Is(err, service.ErrInvalidSignature):
		respondError(w, http.StatusBadRequest, "INVALID_SIGNATURE")
	case errors.Is(err, service.ErrInvalidCoupon):
		respondError(w, http.StatusBadRequest, "INVALID_COUPON")
	case errors.Is(err, service.ErrUnknownProvider):
		respondError(w, http.StatusNotFound, "unknown provider")
	case errors.As(err, &gwErr):
		respondJSON(w, http.StatusInternalServerError, map[string]json.RawMessage{"error": gwErr.Payload()})
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func handleCancelError(w http.ResponseWriter, err error) {
	var gwErr *gateway.Error
	switch {
	case errors.Is(err, service.ErrMissingOrderID):
		respondError(w, http.StatusBadRequest, "orderId required")
	case errors.Is(err, service.ErrUnknownProvider):
		respondError(w, http.StatusBadRequest, "unknown provider")
	case errors.Is(err, service.ErrOrderNotFound):
		respondError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, service.ErrProviderMismatch):
		respondError(w, http.StatusConflict, "provider mismatch")
	case errors.As(err, &gwErr):
		respondJSON(w, http.StatusBadGateway, ErrorResponse{Error: "gateway", Detail: gwErr.Payload()})
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}
