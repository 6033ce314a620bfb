package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridecore/internal/domain"
	"ridecore/internal/service"
)

// DriverServiceInterface is the driver presence API.
type DriverServiceInterface interface {
	UpdateLocation(ctx context.Context, req service.UpdateLocationRequest) error
	GoOnline(ctx context.Context, driverID string) (*domain.Driver, error)
	GoOffline(ctx context.Context, driverID string) error
}

// DriverHandler handles HTTP requests from drivers about themselves.
type DriverHandler struct {
	driverService DriverServiceInterface
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(driverService DriverServiceInterface) *DriverHandler {
	return &DriverHandler{driverService: driverService}
}

// UpdateLocationRequest is the HTTP request body for updating driver location.
type UpdateLocationRequest struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// UpdateLocation handles POST /v1/drivers/me/location
func (h *DriverHandler) UpdateLocation(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	var req UpdateLocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	err := h.driverService.UpdateLocation(c.Request.Context(), service.UpdateLocationRequest{
		DriverID: caller.DriverID,
		Lat:      req.Lat,
		Lng:      req.Lng,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

// GoOnline handles POST /v1/drivers/me/online
func (h *DriverHandler) GoOnline(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	driver, err := h.driverService.GoOnline(c.Request.Context(), caller.DriverID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, driver)
}

// GoOffline handles POST /v1/drivers/me/offline
func (h *DriverHandler) GoOffline(c *gin.Context) {
	caller, ok := mustCaller(c)
	if !ok {
		return
	}

	if err := h.driverService.GoOffline(c.Request.Context(), caller.DriverID); err != nil {
		respondError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
