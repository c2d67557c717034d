package api

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/Domenick1991/airways/internal/payment/gateway"
	"github.com/Domenick1991/airways/internal/service/booking"
	"github.com/Domenick1991/airways/internal/service/cancellation"
	"github.com/gin-gonic/gin"
)

type BookingCanceller interface {
	CancelBooking(ctx context.Context, reference string, userID int64) (*cancellation.BookingCancellation, error)
}

type PaymentStarter interface {
	InitiatePayment(ctx context.Context, reference string, userID int64, gatewayName string) (*gateway.Checkout, error)
}

type BookingHandler struct {
	service  booking.BookingUseCase
	cancel   BookingCanceller
	payments PaymentStarter
}

type passengerRequest struct {
	Name            string          `json:"name"`
	Passport        string          `json:"passport"`
	SpecialRequests json.RawMessage `json:"special_requests"`
}

type createBookingRequest struct {
	FlightID   int64              `json:"flight_id" binding:"required"`
	ClassID    int64              `json:"class_id" binding:"required"`
	SeatIDs    []int64            `json:"seat_ids" binding:"required,min=1"`
	Passengers int                `json:"passengers" binding:"required,min=1"`
	Details    []passengerRequest `json:"passenger_details"`
	Gateway    string             `json:"gateway"`
}

type paymentRequest struct {
	Gateway string `json:"gateway" binding:"required"`
}

func NewBookingHandler(service booking.BookingUseCase, cancel BookingCanceller, payments PaymentStarter) *BookingHandler {
	return &BookingHandler{service: service, cancel: cancel, payments: payments}
}

func (h *BookingHandler) Register(router *gin.RouterGroup) {
	router.POST("", h.create)
	router.GET("/:reference", h.get)
	router.DELETE("/:reference", h.cancelBooking)
	router.POST("/:reference/check-in", h.checkIn)
	router.POST("/:reference/payments", h.pay)
}

func (h *BookingHandler) create(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req createBookingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}

	input := booking.CreateBookingInput{
		UserID:     uid,
		FlightID:   req.FlightID,
		ClassID:    req.ClassID,
		SeatIDs:    req.SeatIDs,
		Passengers: req.Passengers,
		Gateway:    req.Gateway,
	}
	for _, p := range req.Details {
		input.Details = append(input.Details, booking.PassengerDetails(p))
	}

	res, err := h.service.CreateBooking(c.Request.Context(), input)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, newBookingResponse(res.Booking, res.Checkout))
}

func (h *BookingHandler) get(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	b, err := h.service.GetBooking(c.Request.Context(), c.Param("reference"), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBookingResponse(b, nil))
}

func (h *BookingHandler) cancelBooking(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	res, err := h.cancel.CancelBooking(c.Request.Context(), c.Param("reference"), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"reference":         res.Reference,
		"cancelled_tickets": len(res.TicketIDs),
		"refund":            money(res.RefundCents),
	})
}

func (h *BookingHandler) checkIn(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	b, err := h.service.CheckIn(c.Request.Context(), c.Param("reference"), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newBookingResponse(b, nil))
}

func (h *BookingHandler) pay(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req paymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err.Error())
		return
	}
	checkout, err := h.payments.InitiatePayment(c.Request.Context(), c.Param("reference"), uid, req.Gateway)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newCheckoutResponse(checkout))
}
