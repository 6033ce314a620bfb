package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridecore/internal/domain"
	"ridecore/internal/service"
)

// RideServiceInterface is the booking API the ride handler serves.
type RideServiceInterface interface {
	QuoteFare(ctx context.Context, passengerID string, req service.TripRequest) (*service.FareQuote, error)
	BookRide(ctx context.Context, req service.BookRideRequest) (*service.BookRideResponse, error)
	GetRide(ctx context.Context, caller service.Caller, rideID string) (*domain.Ride, error)
	ListRidesForUser(ctx context.Context, caller service.Caller, limit int) ([]*domain.Ride, error)
	ListOpenRides(ctx context.Context, caller service.Caller, lat, lng, radiusKm float64, limit int) ([]service.OpenRide, error)
	UpdateRideStatus(ctx context.Context, caller service.Caller, req service.UpdateRideStatusRequest) (*domain.Ride, error)
	CancelRide(ctx context.Context, caller service.Caller, rideID, reason string) (*domain.Ride, error)
	AcceptRide(ctx context.Context, caller service.Caller, rideID string) (*service.DriverAssignment, error)
	RateRide(ctx context.Context, caller service.Caller, rideID string, rating int) (*domain.Ride, error)
	FindNearestDriver(ctx context.Context, lat, lng float64, vehicleType string) (*service.DriverAssignment, error)
}

// RideHandler handles HTTP requests for fares and rides.
type RideHandler struct {
	rideService RideServiceInterface
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService RideServiceInterface) *RideHandler {
	return &RideHandler{rideService: rideService}
}

// TripBody is the trip part shared by quote and booking requests.
type TripBody struct {
	Pickup          domain.Location `json:"pickup"`
	Dropoff         domain.Location `json:"dropoff"`
	DistanceKm      float64         `json:"distance_km,omitempty"`
	DurationMinutes int             `json:"duration_minutes,omitempty"`
	VehicleType     string          `json:"vehicle_type,omitempty"`
	PromoCode       string          `json:"promo_code,omitempty"`
}

func (b TripBody) toTripRequest() service.TripRequest {
	return service.TripRequest{
		Pickup:          b.Pickup,
		Dropoff:         b.Dropoff,
		DistanceKm:      b.DistanceKm,
		DurationMinutes: b.DurationMinutes,
		VehicleType:     b.VehicleType,
		PromoCode:       b.PromoCode,
	}
}

// CreateRideRequest is the HTTP request body for booking a ride. Any price
// sent by the client is ignored.
type CreateRideRequest struct {
	TripBody
	PaymentMethod string `json:"payment_method,omitempty"` // cash, card, wallet
	Notes         string `json:"notes,omitempty"`
}

// UpdateStatusRequest is the HTTP request body for a lifecycle step.
type UpdateStatusRequest struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// CancelRideRequest is the HTTP request body for cancelling a ride.
type CancelRideRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RateRideRequest is the HTTP request body for rating a ride.
type RateRideRequest struct {
	Rating int `json:"rating"`
}

// QuoteFare handles POST /v1/fares/quote
func (h *RideHandler) QuoteFare(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	var req TripBody
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	passengerID := ""
	if caller.Role == domain.RolePassenger {
		passengerID = caller.UserID
	}
	quote, err := h.rideService.QuoteFare(c.Request.Context(), passengerID, req.toTripRequest())
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, quote)
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.rideService.BookRide(c.Request.Context(), service.BookRideRequest{
		TripRequest:   req.toTripRequest(),
		PassengerID:   caller.UserID,
		PaymentMethod: req.PaymentMethod,
		Notes:         req.Notes,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, result)
}

// ListRides handles GET /v1/rides
func (h *RideHandler) ListRides(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	rides, err := h.rideService.ListRidesForUser(c.Request.Context(), caller, queryIntDefault(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	if rides == nil {
		rides = []*domain.Ride{}
	}

	respondJSON(c, http.StatusOK, rides)
}

// ListOpenRides handles GET /v1/rides/open?lat=&lng=&radius_km=
func (h *RideHandler) ListOpenRides(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	lat, err := queryFloat(c, "lat")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	lng, err := queryFloat(c, "lng")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	radius, _ := queryFloat(c, "radius_km")

	open, err := h.rideService.ListOpenRides(c.Request.Context(), caller, lat, lng, radius, queryIntDefault(c, "limit", 0))
	if err != nil {
		respondError(c, err)
		return
	}
	if open == nil {
		open = []service.OpenRide{}
	}

	respondJSON(c, http.StatusOK, open)
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	ride, err := h.rideService.GetRide(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ride)
}

// UpdateStatus handles PUT /v1/rides/:id/status
func (h *RideHandler) UpdateStatus(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.rideService.UpdateRideStatus(c.Request.Context(), caller, service.UpdateRideStatusRequest{
		RideID: c.Param("id"),
		Status: req.Status,
		Reason: req.Reason,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ride)
}

// CancelRide handles POST /v1/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	// The body is optional.
	var req CancelRideRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
			return
		}
	}

	ride, err := h.rideService.CancelRide(c.Request.Context(), caller, c.Param("id"), req.Reason)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ride)
}

// AcceptRide handles POST /v1/rides/:id/accept
func (h *RideHandler) AcceptRide(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	assignment, err := h.rideService.AcceptRide(c.Request.Context(), caller, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, assignment)
}

// RateRide handles POST /v1/rides/:id/rating
func (h *RideHandler) RateRide(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	var req RateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.rideService.RateRide(c.Request.Context(), caller, c.Param("id"), req.Rating)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, ride)
}

// NearestDriver handles GET /v1/drivers/nearest?lat=&lng=&vehicle_type=
func (h *RideHandler) NearestDriver(c *gin.Context) {
	lat, err := queryFloat(c, "lat")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}
	lng, err := queryFloat(c, "lng")
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
		return
	}

	assignment, err := h.rideService.FindNearestDriver(c.Request.Context(), lat, lng, c.DefaultQuery("vehicle_type", string(domain.VehicleTypeCar)))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, assignment)
}
