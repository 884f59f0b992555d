package api

import (
	"encoding/json"
	"net/http"

	"ms-fulfillment/internal/analytics"
	"ms-fulfillment/internal/auth"
	"ms-fulfillment/internal/utils"

	"github.com/go-chi/chi/v5"
)

type Handler struct {
	Service *analytics.Service
}

func (h *Handler) GetStoreSummary(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeId")

	if !auth.AuthorizedForStore(r.Context(), storeID) {
		writeJSON(w, http.StatusForbidden, utils.ErrorResponse("Not authorized for this store", ""))
		return
	}

	summary, err := h.Service.StoreSummary(r.Context(), storeID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not load store summary", err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Store summary", summary))
}

func (h *Handler) GetDailySales(w http.ResponseWriter, r *http.Request) {
	storeID := chi.URLParam(r, "storeId")

	if !auth.AuthorizedForStore(r.Context(), storeID) {
		writeJSON(w, http.StatusForbidden, utils.ErrorResponse("Not authorized for this store", ""))
		return
	}

	daily, err := h.Service.DailySales(r.Context(), storeID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, utils.ErrorResponse("Could not load daily sales", err.Error()))
		return
	}

	writeJSON(w, http.StatusOK, utils.SuccessResponse("Daily sales", daily))
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}
