package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/Domenick1991/airways/internal/service/cancellation"
	"github.com/gin-gonic/gin"
)

type FlightAdmin interface {
	CancelFlight(ctx context.Context, flightID int64, reason string) (*cancellation.FlightCancellation, error)
	ReverseFlightTickets(ctx context.Context, flightID int64, reason string) (*cancellation.FlightCancellation, error)
	DeleteFlight(ctx context.Context, flightID int64) error
}

type AdminHandler struct {
	service FlightAdmin
}

type cancelFlightRequest struct {
	Reason string `json:"reason"`
}

func NewAdminHandler(service FlightAdmin) *AdminHandler {
	return &AdminHandler{service: service}
}

func (h *AdminHandler) Register(router *gin.RouterGroup) {
	router.POST("/flights/:id/cancel", h.cancelFlight)
	router.POST("/flights/:id/reverse", h.reverse)
	router.DELETE("/flights/:id", h.deleteFlight)
}

func (h *AdminHandler) cancelFlight(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req cancelFlightRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err.Error())
			return
		}
	}
	res, err := h.service.CancelFlight(c.Request.Context(), id, req.Reason)
	h.writeReversal(c, res, err)
}

func (h *AdminHandler) reverse(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	res, err := h.service.ReverseFlightTickets(c.Request.Context(), id, "")
	h.writeReversal(c, res, err)
}

// writeReversal reports partial reversals with 207 and the failed ticket ids.
func (h *AdminHandler) writeReversal(c *gin.Context, res *cancellation.FlightCancellation, err error) {
	var partial *cancellation.PartialReversalError
	switch {
	case errors.As(err, &partial):
		c.JSON(http.StatusMultiStatus, gin.H{
			"flight_id":         partial.FlightID,
			"cancelled_tickets": res.CancelledTickets,
			"refunded":          money(res.RefundedCents),
			"failed_ticket_ids": partial.Failed,
		})
	case err != nil:
		writeError(c, err)
	default:
		c.JSON(http.StatusOK, gin.H{
			"flight_id":         res.FlightID,
			"cancelled_tickets": res.CancelledTickets,
			"refunded":          money(res.RefundedCents),
		})
	}
}

func (h *AdminHandler) deleteFlight(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteFlight(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
