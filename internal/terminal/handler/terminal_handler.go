package handler

import (
	"errors"
	"fmt"
	"net/http"

	"ms-fulfillment/internal/gateway"
	"ms-fulfillment/internal/logger"
	"ms-fulfillment/internal/models"
	"ms-fulfillment/internal/utils"

	"github.com/gin-gonic/gin"
)

// TerminalHandler exposes the reader-pairing surface the dashboard's
// terminal page calls.
type TerminalHandler struct {
	gateway gateway.Client
	logger  *logger.Logger
}

func NewTerminalHandler(gw gateway.Client, log *logger.Logger) *TerminalHandler {
	return &TerminalHandler{gateway: gw, logger: log}
}

// CreateConnectionToken issues a short-lived pairing credential. The
// token is single-use; clients re-request on failure rather than retry.
func (h *TerminalHandler) CreateConnectionToken(c *gin.Context) {
	secret, err := h.gateway.CreateConnectionToken(c.Request.Context())
	if err != nil {
		h.logger.Error("TERMINAL", fmt.Sprintf("Connection token request failed: %v", err))
		c.JSON(statusFor(err), utils.ErrorResponse("Could not create connection token", err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Connection token created", models.ConnectionTokenResponse{
		Secret: secret,
	}))
}

// ListReaders returns the registered terminal readers.
func (h *TerminalHandler) ListReaders(c *gin.Context) {
	readers, err := h.gateway.ListReaders(c.Request.Context())
	if err != nil {
		h.logger.Error("TERMINAL", fmt.Sprintf("Reader listing failed: %v", err))
		c.JSON(statusFor(err), utils.ErrorResponse("Could not list readers", err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Readers", readers))
}

// CancelAction cancels the reader's in-flight action. An idle reader is
// reported as success, since the caller's goal is already met.
func (h *TerminalHandler) CancelAction(c *gin.Context) {
	readerID := c.Param("readerId")

	intent, err := h.gateway.CancelReaderAction(c.Request.Context(), readerID)
	if err != nil {
		if errors.Is(err, gateway.ErrNoActiveAction) {
			c.JSON(http.StatusOK, utils.SuccessResponse("Reader had no active action", nil))
			return
		}
		h.logger.Error("TERMINAL", fmt.Sprintf("Cancel action on reader %s failed: %v", readerID, err))
		c.JSON(statusFor(err), utils.ErrorResponse("Could not cancel reader action", err.Error()))
		return
	}

	c.JSON(http.StatusOK, utils.SuccessResponse("Reader action canceled", intent))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, gateway.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, gateway.ErrReaderBusy):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}
