package api

import (
	"context"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/gin-gonic/gin"
	"github.com/patrickmn/go-cache"
	"golang.org/x/time/rate"

	"repairhub-backend/config"
	"repairhub-backend/internal/hub"
	"repairhub-backend/internal/mw"
	"repairhub-backend/internal/notify"
	"repairhub-backend/internal/store"
)

// NewRouter creates and configures a new Gin router for the hub API.
func NewRouter(ctx context.Context, cfg *config.ServerConfig, coord *hub.Coordinator, s store.Store, notifier *notify.Notifier, webpushOptions *webpush.Options) *gin.Engine {
	r := gin.Default()

	handler := NewHandler(coord, s, notifier, webpushOptions)

	rateLimiter := mw.RateLimiter(rate.Limit(cfg.RateLimitPerSec), cfg.RateLimitBurst, cfg.RequestIPHeader)

	cacheTTL := time.Duration(cfg.CacheTTLSeconds) * time.Second
	cacheStore := cache.New(cacheTTL, 2*cacheTTL)
	caching := mw.Cache(cacheStore, cacheTTL)
	mw.InvalidateOnChange(ctx, cacheStore, notifier)

	api := r.Group("/api")
	api.Use(rateLimiter)
	{
		api.GET("/health", handler.GetHealth)

		api.POST("/tickets/next-receipt-number", handler.NextReceiptNumber)
		api.GET("/tickets", caching, handler.ListTickets)
		api.GET("/tickets/:id", handler.GetTicket)
		api.POST("/tickets", handler.CreateTicket)
		api.PUT("/tickets/:id", handler.UpdateTicket)
		api.DELETE("/tickets/:id", handler.DeleteTicket)

		api.GET("/tickets/:id/lock", handler.GetLock)
		api.POST("/tickets/:id/lock", handler.AcquireLock)
		api.DELETE("/tickets/:id/lock", handler.ReleaseLock)

		api.POST("/tickets/:id/parts", handler.AttachPart)
		api.DELETE("/tickets/:id/parts/:part_id", handler.DetachPart)

		api.GET("/parts", caching, handler.ListParts)
		api.POST("/parts", handler.CreatePart)

		api.GET("/events", handler.StreamEvents)

		api.GET("/subscriptions", handler.GetSubscription)
		api.PUT("/subscriptions", handler.PutSubscription)
		api.DELETE("/subscriptions", handler.DeleteSubscription)
		api.GET("/vapid_public_key", handler.GetVAPIDPublicKey)
	}

	return r
}
