package api

import (
	"net/http"
	"strconv"

	"github.com/Domenick1991/airways/internal/service/inventory"
	"github.com/gin-gonic/gin"
)

type FlightHandler struct {
	service inventory.InventoryUseCase
}

func NewFlightHandler(service inventory.InventoryUseCase) *FlightHandler {
	return &FlightHandler{service: service}
}

func (h *FlightHandler) Register(router *gin.RouterGroup) {
	router.GET("", h.list)
	router.GET("/:id", h.get)
	router.GET("/:id/seats", h.seats)
}

func (h *FlightHandler) list(c *gin.Context) {
	flights, err := h.service.ListFlights(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]flightResponse, len(flights))
	for i := range flights {
		out[i] = newFlightResponse(&flights[i])
	}
	c.JSON(http.StatusOK, out)
}

func (h *FlightHandler) get(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	flight, err := h.service.GetFlight(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, newFlightResponse(flight))
}

// seats accepts ?class_id=, ?available=true and ?limit=.
func (h *FlightHandler) seats(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}

	var query inventory.SeatQuery
	if v := c.Query("class_id"); v != "" {
		classID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			badRequest(c, "invalid class_id")
			return
		}
		query.ClassID = classID
	}
	if v := c.Query("available"); v != "" {
		available, err := strconv.ParseBool(v)
		if err != nil {
			badRequest(c, "invalid available")
			return
		}
		query.OnlyAvailable = available
	}
	if v := c.Query("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			badRequest(c, "invalid limit")
			return
		}
		query.Limit = limit
	}

	res, err := h.service.FlightSeats(c.Request.Context(), id, query)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"flight": newFlightResponse(&res.Flight),
		"seats":  newSeatResponses(res.Seats),
	})
}
