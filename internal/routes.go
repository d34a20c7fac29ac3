// Package internal contains core application functionality
package internal

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"

	"glimpse/internal/config"
	glimpsehttp "glimpse/internal/http"
	"glimpse/internal/http/middleware"
)

// publicCORSConfig is the standard CORS configuration for public
// endpoints: permissive, so any page on the origin's site can post events
// cross-origin.
var publicCORSConfig = cors.Config{
	AllowOrigins: "*",
	AllowMethods: "POST,GET,OPTIONS",
	AllowHeaders: "Origin, Content-Type, Accept, Referrer, User-Agent",
}

// MountAppRoutes mounts every route on the fiber app.
func MountAppRoutes(app *fiber.App, h *glimpsehttp.Handler) {
	cfg := config.GetConfig()

	// Rate limiting would interfere with testing, so it only applies in
	// production. 70/min per IP handles legitimate analytics traffic while
	// preventing abuse.
	publicRateLimiter := func(c *fiber.Ctx) error { return c.Next() }
	if cfg.IsProduction() {
		publicRateLimiter = limiter.New(limiter.Config{
			Max:        70,
			Expiration: time.Minute,
		})
	}

	visitor := middleware.VisitorContext(cfg.AppName, time.Duration(cfg.SessionTTLSeconds)*time.Second)

	// Health check endpoint
	app.Get("/_health", h.HealthIndexAction)
	app.Head("/_health", h.HealthIndexAction)

	// === PUBLIC API ROUTES ===
	api := app.Group("/x/api/v1", cors.New(publicCORSConfig), publicRateLimiter, visitor)
	api.Post("/pageviews", h.CreatePageViewAction)
	api.Post("/sales", h.CreateSaleAction)
	api.Get("/stats", h.GetStatsAction)
	api.Get("/stats/monthly", h.GetMonthlyDataAction)
	api.Get("/stats/countries", h.GetCountryDataAction)
	api.Post("/reset", h.ResetAction)
	api.Options("/*", func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
}
