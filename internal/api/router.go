package api

import (
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"simrig-booking-backend/config"
	"simrig-booking-backend/internal/mw"
)

// NewRouter creates and configures a new Gin router.
func NewRouter(svc Services, cfg config.ServerConfig, webpushOptions *webpush.Options, logger *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	handler := NewHandler(svc, webpushOptions, cfg.OperatorToken, logger)

	limit := rate.Inf
	if cfg.RateLimitPerSec > 0 {
		limit = rate.Limit(cfg.RateLimitPerSec)
	}
	rateLimiter := mw.RateLimiter(limit, 5, cfg.RequestIPHeader)

	// A zero TTL disables response caching. Only responses that do not depend
	// on the clock are cached.
	ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(ttl, 2*ttl)
	var caching gin.HandlerFunc = func(c *gin.Context) { c.Next() }
	if ttl > 0 {
		caching = mw.Cache(cacheStore, ttl)
	}
	operator := handler.OperatorOnly

	api := r.Group("/api")
	api.Use(rateLimiter, mw.Invalidate(cacheStore))
	{
		api.GET("/machines", caching, handler.ListMachines)
		api.GET("/machines/available", handler.ListAvailableMachines)
		api.PUT("/machines/:id", operator, handler.PutMachine)
		api.PATCH("/machines/:id/status", operator, handler.PatchMachineStatus)
		api.GET("/machines/:id/schedule", handler.GetSchedule)
		api.GET("/machines/:id/availability", handler.GetAvailability)
		api.GET("/machines/:id/free-starts", handler.GetFreeStarts)
		api.GET("/available-dates", handler.GetAvailableDates)

		api.POST("/bookings", handler.CreateBooking)
		api.GET("/bookings", handler.ListBookings)
		api.GET("/bookings/:id", handler.GetBooking)
		api.PATCH("/bookings/:id", handler.PatchBooking)
		api.POST("/bookings/:id/confirm", operator, handler.ConfirmBooking)
		api.POST("/bookings/:id/cancel", handler.CancelBooking)
		api.POST("/bookings/:id/check-in", operator, handler.CheckInBooking)

		api.POST("/queue", handler.JoinQueue)
		api.GET("/queue", handler.ListQueue)
		api.GET("/queue/me", handler.MyQueueStatus)
		api.GET("/queue/stats", operator, handler.QueueStats)
		api.GET("/queue/next-number", handler.NextQueueNumber)
		api.POST("/queue/:id/call", operator, handler.CallQueueEntry)
		api.POST("/queue/:id/seat", operator, handler.SeatQueueEntry)
		api.POST("/queue/:id/cancel", handler.CancelQueueEntry)

		api.POST("/sessions", operator, handler.StartSession)
		api.GET("/sessions/active", handler.ActiveSessions)
		api.GET("/sessions/stats", operator, handler.SessionStats)
		api.POST("/sessions/:id/end", operator, handler.EndSession)
		api.PATCH("/sessions/:id/payment", operator, handler.UpdatePayment)
		api.PATCH("/sessions/:id/amount", operator, handler.UpdateAmount)
		api.GET("/stations/:id/session", handler.StationSession)
		api.GET("/stations/:id/sessions", operator, handler.StationSessions)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
