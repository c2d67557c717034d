package api

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/Domenick1991/airways/internal/domain"
	"github.com/Domenick1991/airways/internal/service/payment"
	"github.com/gin-gonic/gin"
)

const maxWebhookBody = 1 << 20

type CallbackHandler interface {
	HandleCallback(ctx context.Context, gatewayName string, header http.Header, body []byte) (payment.Result, error)
}

// PaymentHandler receives provider webhooks.
type PaymentHandler struct {
	service CallbackHandler
}

func NewPaymentHandler(service CallbackHandler) *PaymentHandler {
	return &PaymentHandler{service: service}
}

func (h *PaymentHandler) Register(router *gin.RouterGroup) {
	router.POST("/webhooks/:gateway", h.webhook)
}

func (h *PaymentHandler) webhook(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, "unreadable body")
		return
	}
	// Providers retry anything but 2xx, so replays and undeliverable
	// notifications are acknowledged. Bad signatures and store failures are not.
	res, err := h.service.HandleCallback(c.Request.Context(), c.Param("gateway"), c.Request.Header, body)
	switch {
	case errors.Is(err, domain.ErrInvalidInput):
		_ = c.Error(err)
		res = payment.ResultIgnored
	case err != nil:
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"result": res})
}
