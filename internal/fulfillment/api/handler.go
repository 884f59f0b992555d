package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"

	"ms-fulfillment/internal/auth"
	"ms-fulfillment/internal/gateway"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/orders/db"
	"ms-fulfillment/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Workflow is the slice of the fulfillment service the HTTP layer
// exposes.
type Workflow interface {
	StartCapture(ctx context.Context, orderID, intentID string) error
	Cancel(ctx context.Context, orderID, readerID string) error
	Dispatch(ctx context.Context, orderID string) ([]byte, error)
	ListOutstanding(ctx context.Context, storeID string) ([]models.Order, error)
}

type Handler struct {
	Workflow Workflow
}

func (h *Handler) StartCapture(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var req models.CaptureRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	if req.PaymentIntentID == "" {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Missing payment_intent_id", ""))
		return
	}

	if err := h.Workflow.StartCapture(r.Context(), orderID, req.PaymentIntentID); err != nil {
		writeWorkflowError(w, "Could not capture payment", err)
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Payment captured", map[string]string{
		"order_id": orderID,
		"status":   models.StatusCaptured,
	}))
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	var req models.CancelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Invalid request body", err.Error()))
		return
	}
	if req.ReaderID == "" {
		writeJSON(w, http.StatusBadRequest, utils.ErrorResponse("Missing reader_id", ""))
		return
	}

	if err := h.Workflow.Cancel(r.Context(), orderID, req.ReaderID); err != nil {
		writeWorkflowError(w, "Could not cancel order", err)
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Order canceled", map[string]string{
		"order_id": orderID,
		"status":   models.StatusCanceled,
	}))
}

func (h *Handler) Dispatch(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	labelPNG, err := h.Workflow.Dispatch(r.Context(), orderID)
	if err != nil {
		writeWorkflowError(w, "Could not dispatch order", err)
		return
	}

	resp := models.DispatchResponse{
		OrderID: orderID,
		Status:  models.StatusDispatched,
	}
	if labelPNG != nil {
		resp.Label = base64.StdEncoding.EncodeToString(labelPNG)
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Order dispatched", resp))
}

func (h *Handler) ListOutstanding(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeId")

	if !auth.AuthorizedForStore(r.Context(), storeID) {
		writeJSON(w, http.StatusForbidden, utils.ErrorResponse("Not authorized for this store", ""))
		return
	}

	orders, err := h.Workflow.ListOutstanding(r.Context(), storeID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not list outstanding orders", err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Outstanding orders", orders))
}

// writeWorkflowError maps the workflow's error kinds onto HTTP statuses.
// Transient kinds get statuses the dashboard treats as "try again".
func writeWorkflowError(w http.ResponseWriter, message string, err error) {
	switch {
	case errors.Is(err, db.ErrNotFound):
		writeJSON(w, http.StatusNotFound, utils.ErrorResponse(message, err.Error()))
	case errors.Is(err, db.ErrInvalidState):
		writeJSON(w, http.StatusConflict, utils.ErrorResponse(message, err.Error()))
	case errors.Is(err, gateway.ErrReaderBusy):
		writeJSON(w, http.StatusConflict, utils.ErrorResponse("Another action is in progress, try again", err.Error()))
	case errors.Is(err, gateway.ErrNotCapturable):
		writeJSON(w, http.StatusUnprocessableEntity, utils.ErrorResponse(message, err.Error()))
	case errors.Is(err, gateway.ErrUpstreamUnavailable):
		writeJSON(w, http.StatusServiceUnavailable, utils.ErrorResponse("Payment processor unavailable, try again", err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse(message, err.Error()))
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
