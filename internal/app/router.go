package app

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/integrations/nrgin"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"ridecore/internal/domain"
	"ridecore/internal/handler"
	"ridecore/internal/middleware"
)

// RouterDeps contains all dependencies needed for the router.
type RouterDeps struct {
	RideHandler   *handler.RideHandler
	DriverHandler *handler.DriverHandler
	RedisClient   *redis.Client
	NewRelicApp   *newrelic.Application
	JWTSecret     []byte
	Logger        logrus.FieldLogger
}

// NewRouter creates a new Gin router with all routes registered.
func NewRouter(deps RouterDeps) *gin.Engine {
	router := gin.New()

	// Global middleware.
	router.Use(gin.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORSMiddleware())
	router.Use(middleware.RequestIDMiddleware())

	if deps.NewRelicApp != nil {
		router.Use(nrgin.Middleware(deps.NewRelicApp))
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Idempotency keys are scoped per caller, so it runs after auth.
	v1 := router.Group("/v1")
	v1.Use(middleware.Auth(deps.JWTSecret))
	v1.Use(middleware.IdempotencyMiddleware(deps.RedisClient, deps.Logger))
	{
		v1.POST("/fares/quote", deps.RideHandler.QuoteFare)

		rides := v1.Group("/rides")
		{
			rides.POST("", middleware.RequireRole(domain.RolePassenger), deps.RideHandler.CreateRide)
			rides.GET("", deps.RideHandler.ListRides)
			rides.GET("/open", middleware.RequireRole(domain.RoleDriver, domain.RoleAdmin), deps.RideHandler.ListOpenRides)
			rides.GET("/:id", deps.RideHandler.GetRide)
			rides.PUT("/:id/status", deps.RideHandler.UpdateStatus)
			rides.POST("/:id/cancel", deps.RideHandler.CancelRide)
			rides.POST("/:id/accept", middleware.RequireRole(domain.RoleDriver), deps.RideHandler.AcceptRide)
			rides.POST("/:id/rating", deps.RideHandler.RateRide)
		}

		drivers := v1.Group("/drivers")
		{
			drivers.GET("/nearest", deps.RideHandler.NearestDriver)

			me := drivers.Group("/me", middleware.RequireRole(domain.RoleDriver))
			me.POST("/location", deps.DriverHandler.UpdateLocation)
			me.POST("/online", deps.DriverHandler.GoOnline)
			me.POST("/offline", deps.DriverHandler.GoOffline)
		}
	}

	return router
}
