package api

import (
	"shutterhub/internal/server/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization", "X-Uploader-Phone"},
	}))
	e.Use(RequestLogger())

	// Rate limiter on the streaming upload endpoints only
	uploadLimiter := NewRateLimiter(cfg.Limits.RPS, cfg.Limits.Burst)

	// Health & stats
	e.GET("/health", handler.HandleHealth)
	e.GET("/api/stats", handler.HandleStats)

	// Accounts
	e.POST("/api/users", handler.HandleCreateUser)
	e.GET("/api/users/:id", handler.HandleGetUser)

	// Events
	e.POST("/api/events", handler.HandleCreateEvent)
	e.GET("/api/events", handler.HandleListEvents)
	e.GET("/api/events/:id", handler.HandleGetEvent)
	e.PATCH("/api/events/:id", handler.HandleUpdateEvent)
	e.DELETE("/api/events/:id", handler.HandleDeleteEvent)

	// Photo uploads (rate-limited, SSE responses)
	e.POST("/api/events/:id/photos", handler.HandleUploadPhotos, uploadLimiter.Middleware())
	e.POST("/api/events/:id/photos/append", handler.HandleAppendPhotos, uploadLimiter.Middleware())
	e.DELETE("/api/events/:id/photos", handler.HandleDeletePhotos)

	// Selection
	e.POST("/api/photos/select", handler.HandleSelectPhotos)
	e.POST("/api/photos/deselect", handler.HandleDeselectPhotos)

	// Shares
	e.POST("/api/events/:id/share", handler.HandleCreateShare)
	e.GET("/api/share/:token", handler.HandleResolveShare)

	// Packages & purchases
	e.GET("/api/packages", handler.HandleListStoragePackages)
	e.POST("/api/packages", handler.HandleCreateStoragePackage)
	e.POST("/api/packages/:id/purchase", handler.HandlePurchasePackage)
	e.POST("/api/photo-packages", handler.HandleCreatePhotoPackage)

	// Reviews
	e.POST("/api/reviews", handler.HandleCreateReview)
	e.GET("/api/reviews/:photographerId", handler.HandleListReviews)

	return e
}
